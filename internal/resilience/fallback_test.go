package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/tabrec/pkg/download"
	downloadmock "github.com/MrWong99/tabrec/pkg/download/mock"
)

// locatingSink is a mock sink that can serve saved files back.
type locatingSink struct {
	*downloadmock.Sink
	paths map[string]string
}

func (l locatingSink) Locate(id string) (string, bool) {
	p, ok := l.paths[id]
	return p, ok
}

var testFile = download.File{Name: "t.mp3", MIMEType: "audio/mpeg", Data: []byte("ID3")}

func TestFallbackSink_PrimarySuccess(t *testing.T) {
	primary := &downloadmock.Sink{}
	secondary := &downloadmock.Sink{}
	s := NewFallbackSink(primary, "s3", FallbackConfig{})
	s.AddFallback("local", secondary)

	if _, err := s.Save(context.Background(), testFile); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.SaveCount() != 1 || secondary.SaveCount() != 0 {
		t.Errorf("saves: primary=%d secondary=%d, want 1/0", primary.SaveCount(), secondary.SaveCount())
	}
}

func TestFallbackSink_PrimaryFailFallbackSuccess(t *testing.T) {
	primary := &downloadmock.Sink{}
	primary.SetSaveErr(errTest)
	secondary := &downloadmock.Sink{}
	s := NewFallbackSink(primary, "s3", FallbackConfig{})
	s.AddFallback("local", secondary)

	if _, err := s.Save(context.Background(), testFile); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	saved := secondary.Saved()
	if len(saved) != 1 || saved[0].Name != "t.mp3" || string(saved[0].Data) != "ID3" {
		t.Errorf("fallback saved %+v", saved)
	}
}

func TestFallbackSink_AllFail(t *testing.T) {
	primary := &downloadmock.Sink{}
	primary.SetSaveErr(errTest)
	secondary := &downloadmock.Sink{}
	secondary.SetSaveErr(errTest)
	s := NewFallbackSink(primary, "s3", FallbackConfig{})
	s.AddFallback("local", secondary)

	_, err := s.Save(context.Background(), testFile)
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, download.ErrDownloadFailure) {
		t.Errorf("err = %v, want ErrDownloadFailure", err)
	}
}

func TestFallbackSink_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &downloadmock.Sink{}
	primary.SetSaveErr(errTest)
	secondary := &downloadmock.Sink{}
	s := NewFallbackSink(primary, "s3", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	s.AddFallback("local", secondary)

	for range 2 {
		if _, err := s.Save(context.Background(), testFile); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := s.Save(context.Background(), testFile); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.SaveCount() != 2 {
		t.Errorf("primary saves = %d, want 2 (breaker should skip the third)", primary.SaveCount())
	}
	if secondary.SaveCount() != 3 {
		t.Errorf("secondary saves = %d, want 3", secondary.SaveCount())
	}
}

func TestFallbackSink_Locate(t *testing.T) {
	s := NewFallbackSink(&downloadmock.Sink{}, "s3", FallbackConfig{})
	s.AddFallback("local", locatingSink{Sink: &downloadmock.Sink{}, paths: map[string]string{"abc": "/rec/t.mp3"}})

	if p, ok := s.Locate("abc"); !ok || p != "/rec/t.mp3" {
		t.Errorf("Locate(abc) = %q, %v", p, ok)
	}
	if _, ok := s.Locate("nope"); ok {
		t.Error("Locate(nope) should fail")
	}
}
