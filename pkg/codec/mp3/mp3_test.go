package mp3_test

import (
	"errors"
	"math"
	"os/exec"
	"testing"

	"github.com/MrWong99/tabrec/pkg/codec"
	"github.com/MrWong99/tabrec/pkg/codec/mp3"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     codec.Config
		wantErr bool
	}{
		{"stereo 44.1k 128", codec.Config{Channels: 2, SampleRate: 44100, BitrateKbps: 128}, false},
		{"mono 48k 320", codec.Config{Channels: 1, SampleRate: 48000, BitrateKbps: 320}, false},
		{"mpeg2 22.05k 64", codec.Config{Channels: 2, SampleRate: 22050, BitrateKbps: 64}, false},
		{"three channels", codec.Config{Channels: 3, SampleRate: 44100, BitrateKbps: 128}, true},
		{"zero channels", codec.Config{Channels: 0, SampleRate: 44100, BitrateKbps: 128}, true},
		{"odd rate", codec.Config{Channels: 2, SampleRate: 96000, BitrateKbps: 128}, true},
		{"odd bitrate", codec.Config{Channels: 2, SampleRate: 44100, BitrateKbps: 100}, true},
		{"mpeg1 bitrate at mpeg2 rate", codec.Config{Channels: 2, SampleRate: 16000, BitrateKbps: 320}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := mp3.Validate(tc.cfg)
			if tc.wantErr {
				if !errors.Is(err, codec.ErrUnsupportedConfiguration) {
					t.Errorf("Validate(%+v) = %v, want ErrUnsupportedConfiguration", tc.cfg, err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate(%+v) unexpected error: %v", tc.cfg, err)
			}
		})
	}
}

func TestNew_RejectsBeforeStartingProcess(t *testing.T) {
	t.Parallel()

	_, err := mp3.New(codec.Config{Channels: 5, SampleRate: 44100, BitrateKbps: 128},
		mp3.WithBinary("/nonexistent/ffmpeg"))
	if !errors.Is(err, codec.ErrUnsupportedConfiguration) {
		t.Fatalf("New = %v, want ErrUnsupportedConfiguration", err)
	}
}

func TestNew_MissingBinary(t *testing.T) {
	t.Parallel()

	_, err := mp3.New(codec.Config{Channels: 2, SampleRate: 44100, BitrateKbps: 128},
		mp3.WithBinary("/nonexistent/ffmpeg"))
	if err == nil {
		t.Fatal("expected error for missing ffmpeg binary")
	}
}

func TestEncoder_ProducesMPEGFrames(t *testing.T) {
	if _, err := exec.LookPath(mp3.DefaultBinary); err != nil {
		t.Skip("ffmpeg not installed")
	}
	t.Parallel()

	enc, err := mp3.New(codec.Config{Channels: 2, SampleRate: 44100, BitrateKbps: 128})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer enc.Close()

	if enc.UnitSize() != mp3.UnitSize || enc.MIMEType() != "audio/mpeg" || enc.Extension() != ".mp3" {
		t.Fatalf("unexpected encoder metadata")
	}

	var out []byte
	left := make([]int16, mp3.UnitSize)
	right := make([]int16, mp3.UnitSize)
	for n := range 40 {
		for i := range left {
			v := int16(8000 * math.Sin(2*math.Pi*440*float64(n*mp3.UnitSize+i)/44100))
			left[i], right[i] = v, v
		}
		chunk, err := enc.Encode(left, right)
		if err != nil {
			t.Fatalf("Encode unit %d: %v", n, err)
		}
		out = append(out, chunk...)
	}
	// Short final unit.
	chunk, err := enc.Encode(left[:300], right[:300])
	if err != nil {
		t.Fatalf("Encode short unit: %v", err)
	}
	out = append(out, chunk...)

	tail, err := enc.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	out = append(out, tail...)

	if len(out) < 4 {
		t.Fatalf("output too short: %d bytes", len(out))
	}
	if out[0] != 0xFF || out[1]&0xE0 != 0xE0 {
		t.Errorf("output does not start with an MPEG frame sync: % x", out[:4])
	}

	if _, err := enc.Flush(); !errors.Is(err, codec.ErrEncodeFailure) {
		t.Errorf("second Flush = %v, want ErrEncodeFailure", err)
	}
}

func TestEncoder_CloseWithoutFlush(t *testing.T) {
	if _, err := exec.LookPath(mp3.DefaultBinary); err != nil {
		t.Skip("ffmpeg not installed")
	}
	t.Parallel()

	enc, err := mp3.New(codec.Config{Channels: 1, SampleRate: 48000, BitrateKbps: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := enc.Encode(make([]int16, mp3.UnitSize), nil); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := enc.Encode(make([]int16, mp3.UnitSize), nil); !errors.Is(err, codec.ErrEncodeFailure) {
		t.Errorf("Encode after Close = %v, want ErrEncodeFailure", err)
	}
}
