// Package download hands finished recordings to a persistence collaborator.
//
// A [Sink] stores one file and returns an opaque identifier the control
// surface can use to show or fetch it. Implementations: download/local (a
// directory on disk), download/s3 (an S3-compatible bucket) and download/mock.
package download

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ErrDownloadFailure wraps every error a [Sink] returns.
var ErrDownloadFailure = errors.New("download: download failure")

// DefaultFilename is used when a session was started without a filename.
const DefaultFilename = "tab-audio.mp3"

// File is a finished recording.
type File struct {
	// Name is the suggested filename (e.g., "t.mp3").
	Name string

	// MIMEType of Data (e.g., "audio/mpeg").
	MIMEType string

	// Data is the complete encoded file.
	Data []byte
}

// Sink persists files.
type Sink interface {
	// Save stores f and returns its download identifier. Errors wrap
	// [ErrDownloadFailure].
	Save(ctx context.Context, f File) (id string, err error)
}

// Locator is implemented by sinks whose saved files can be served back.
type Locator interface {
	// Locate returns the local path of a saved file.
	Locate(id string) (path string, ok bool)
}

// SanitizeName reduces name to a safe base filename and makes sure it ends
// with ext (e.g., ".mp3"). An empty or unusable name falls back to
// "tab-audio" + ext.
func SanitizeName(name, ext string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(`<>:"|?*`, r) {
			return '_'
		}
		return r
	}, name)
	if name == "." || name == "/" || name == ".." {
		name = ""
	}
	if ext == "" {
		ext = filepath.Ext(DefaultFilename)
	}
	if name == "" {
		return strings.TrimSuffix(DefaultFilename, filepath.Ext(DefaultFilename)) + ext
	}
	if !strings.EqualFold(filepath.Ext(name), ext) {
		name += ext
	}
	return name
}
