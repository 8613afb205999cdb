// Package s3 implements [download.Sink] on an S3-compatible bucket.
//
// Objects are stored under <prefix>/<uuid>/<filename> so two recordings with
// the same suggested name never overwrite each other. The download
// identifier is the s3:// URI of the object.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/MrWong99/tabrec/pkg/download"
)

// API is the subset of the S3 client the sink uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds the bucket settings.
type Config struct {
	Bucket string
	Region string
	Prefix string

	// Endpoint overrides the service endpoint for S3-compatible stores
	// (MinIO, R2). Path-style addressing is used when set.
	Endpoint string

	// AccessKeyID and SecretAccessKey are optional static credentials. When
	// empty the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// Sink uploads files to a bucket.
type Sink struct {
	client API
	bucket string
	prefix string
}

var _ download.Sink = (*Sink)(nil)

// New creates a Sink with a real S3 client built from cfg.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket must not be empty")
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient creates a Sink around an existing client.
func NewWithClient(client API, bucket, prefix string) *Sink {
	return &Sink{client: client, bucket: bucket, prefix: prefix}
}

// Save implements [download.Sink].
func (s *Sink) Save(ctx context.Context, f download.File) (string, error) {
	name := download.SanitizeName(f.Name, path.Ext(f.Name))
	key := path.Join(s.prefix, uuid.NewString(), name)
	contentType := f.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(f.Data),
		ContentLength:      aws.Int64(int64(len(f.Data))),
		ContentType:        aws.String(contentType),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", name)),
	})
	if err != nil {
		return "", fmt.Errorf("%w: put s3://%s/%s: %w", download.ErrDownloadFailure, s.bucket, key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}
