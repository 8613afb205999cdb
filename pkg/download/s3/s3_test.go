package s3_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/MrWong99/tabrec/pkg/download"
	s3sink "github.com/MrWong99/tabrec/pkg/download/s3"
)

type fakeClient struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeClient) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	if in.Body != nil {
		f.body, _ = io.ReadAll(in.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestSave_PutsObject(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	sink := s3sink.NewWithClient(client, "recordings", "tabrec")

	id, err := sink.Save(context.Background(), download.File{Name: "t.mp3", MIMEType: "audio/mpeg", Data: []byte("frames")})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	key := aws.ToString(client.in.Key)
	if !strings.HasPrefix(key, "tabrec/") || !strings.HasSuffix(key, "/t.mp3") {
		t.Errorf("key = %q, want tabrec/<uuid>/t.mp3", key)
	}
	if id != "s3://recordings/"+key {
		t.Errorf("id = %q", id)
	}
	if aws.ToString(client.in.Bucket) != "recordings" {
		t.Errorf("bucket = %q", aws.ToString(client.in.Bucket))
	}
	if aws.ToString(client.in.ContentType) != "audio/mpeg" {
		t.Errorf("content type = %q", aws.ToString(client.in.ContentType))
	}
	if string(client.body) != "frames" {
		t.Errorf("body = %q", client.body)
	}
}

func TestSave_DistinctKeys(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	sink := s3sink.NewWithClient(client, "b", "")
	id1, _ := sink.Save(context.Background(), download.File{Name: "t.mp3"})
	id2, _ := sink.Save(context.Background(), download.File{Name: "t.mp3"})
	if id1 == id2 {
		t.Errorf("two saves produced the same id %q", id1)
	}
}

func TestSave_ErrorWraps(t *testing.T) {
	t.Parallel()

	sink := s3sink.NewWithClient(&fakeClient{err: errors.New("access denied")}, "b", "")
	_, err := sink.Save(context.Background(), download.File{Name: "t.mp3"})
	if !errors.Is(err, download.ErrDownloadFailure) {
		t.Fatalf("Save = %v, want ErrDownloadFailure", err)
	}
}

func TestNew_RequiresBucket(t *testing.T) {
	t.Parallel()

	if _, err := s3sink.New(context.Background(), s3sink.Config{}); err == nil {
		t.Error("expected error for empty bucket")
	}
}
