package capture_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/tabrec/pkg/audio"
	"github.com/MrWong99/tabrec/pkg/capture"
)

func TestStream_PushDropsWhenFull(t *testing.T) {
	t.Parallel()

	s := capture.NewStream(audio.Format{SampleRate: 48000, Channels: 1}, 2, nil)
	c := audio.Chunk{Samples: [][]float32{{0}}}
	if !s.Push(c) || !s.Push(c) {
		t.Fatal("first two pushes should succeed")
	}
	if s.Push(c) {
		t.Error("third push should be dropped")
	}
	if s.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", s.Dropped())
	}
}

func TestStream_EndIsIdempotent(t *testing.T) {
	t.Parallel()

	s := capture.NewStream(audio.Format{}, 0, nil)
	s.End()
	s.End()
	select {
	case <-s.Ended():
	default:
		t.Fatal("Ended not closed")
	}
	if s.Push(audio.Chunk{Samples: [][]float32{{0}}}) {
		t.Error("push after End should fail")
	}
}

func TestStream_ReleaseRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	wantErr := errors.New("stop failed")
	s := capture.NewStream(audio.Format{}, 0, func() error {
		calls++
		return wantErr
	})
	for range 3 {
		if err := s.Release(); !errors.Is(err, wantErr) {
			t.Errorf("Release() = %v, want %v", err, wantErr)
		}
	}
	if calls != 1 {
		t.Errorf("onRelease called %d times, want 1", calls)
	}
	select {
	case <-s.Ended():
	default:
		t.Error("Release should end the stream")
	}
}
