// Package mp3 implements [codec.Encoder] on top of an ffmpeg child process
// running libmp3lame.
//
// PCM is streamed to ffmpeg's stdin as interleaved signed 16-bit little-endian
// samples and the MPEG audio stream is read back from stdout. Each Encode call
// returns whatever compressed bytes ffmpeg produced so far, so chunks are often
// empty while the LAME look-ahead fills up. Flush closes stdin and waits for the
// process to write its tail.
package mp3

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/MrWong99/tabrec/pkg/audio"
	"github.com/MrWong99/tabrec/pkg/codec"
)

// UnitSize is the number of samples per channel in one MPEG layer III frame.
const UnitSize = 1152

// DefaultBinary is the ffmpeg executable looked up on PATH.
const DefaultBinary = "ffmpeg"

// SampleRates lists the rates libmp3lame accepts.
var SampleRates = []int{8000, 11025, 12000, 16000, 22050, 24000, 32000, 44100, 48000}

// MPEG-1 (32 kHz and up) and MPEG-2/2.5 (below 32 kHz) bitrate tables in kbps.
var (
	bitratesMPEG1 = []int{32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320}
	bitratesMPEG2 = []int{8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160}
)

// Bitrates returns the valid constant bitrates for the given sample rate.
func Bitrates(sampleRate int) []int {
	if sampleRate >= 32000 {
		return bitratesMPEG1
	}
	return bitratesMPEG2
}

// Option is a functional option for [New].
type Option func(*Encoder)

// WithBinary overrides the ffmpeg executable path.
func WithBinary(path string) Option {
	return func(e *Encoder) {
		if path != "" {
			e.binary = path
		}
	}
}

// Encoder is an MP3 [codec.Encoder]. It is not safe for concurrent Encode
// calls; the internal lock only guards the output collected by the reader
// goroutine.
type Encoder struct {
	cfg    codec.Config
	binary string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer

	mu      sync.Mutex
	out     bytes.Buffer
	readErr error
	done    chan struct{}

	flushed bool
	closed  bool
}

var _ codec.Encoder = (*Encoder)(nil)

// Validate reports whether cfg can be encoded as MP3.
func Validate(cfg codec.Config) error {
	if err := codec.ValidateChannels(cfg.Channels); err != nil {
		return err
	}
	if err := codec.ValidateOneOf("sample rate", cfg.SampleRate, SampleRates); err != nil {
		return err
	}
	return codec.ValidateOneOf("bitrate", cfg.BitrateKbps, Bitrates(cfg.SampleRate))
}

// New validates cfg and starts the ffmpeg process.
func New(cfg codec.Config, opts ...Option) (*Encoder, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	e := &Encoder{
		cfg:    cfg,
		binary: DefaultBinary,
		stderr: &tailBuffer{limit: 4096},
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}

	path, err := exec.LookPath(e.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found: %w", codec.ErrUnsupportedConfiguration, e.binary, err)
	}

	e.cmd = exec.Command(path,
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", "s16le",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-ac", strconv.Itoa(cfg.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", strconv.Itoa(cfg.BitrateKbps)+"k",
		"-write_xing", "0",
		"-id3v2_version", "0",
		"-f", "mp3",
		"pipe:1",
	)
	e.cmd.Stderr = e.stderr
	e.stdin, err = e.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mp3: stdin pipe: %w", err)
	}
	stdout, err := e.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mp3: stdout pipe: %w", err)
	}
	if err := e.cmd.Start(); err != nil {
		return nil, fmt.Errorf("mp3: start %s: %w", e.binary, err)
	}
	go e.readLoop(stdout)
	return e, nil
}

func (e *Encoder) readLoop(r io.Reader) {
	defer close(e.done)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			e.mu.Lock()
			e.out.Write(buf[:n])
			e.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.mu.Lock()
				e.readErr = err
				e.mu.Unlock()
			}
			return
		}
	}
}

// drain returns and clears everything read from ffmpeg so far.
func (e *Encoder) drain() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.readErr != nil {
		return nil, fmt.Errorf("%w: read: %w", codec.ErrEncodeFailure, e.readErr)
	}
	if e.out.Len() == 0 {
		return nil, nil
	}
	chunk := bytes.Clone(e.out.Bytes())
	e.out.Reset()
	return chunk, nil
}

// UnitSize implements [codec.Encoder].
func (e *Encoder) UnitSize() int { return UnitSize }

// MIMEType implements [codec.Encoder].
func (e *Encoder) MIMEType() string { return "audio/mpeg" }

// Extension implements [codec.Encoder].
func (e *Encoder) Extension() string { return ".mp3" }

// Encode implements [codec.Encoder].
func (e *Encoder) Encode(left, right []int16) ([]byte, error) {
	if e.flushed || e.closed {
		return nil, fmt.Errorf("%w: encoder already finished", codec.ErrEncodeFailure)
	}
	if e.cfg.Channels == 2 && len(right) != len(left) {
		return nil, fmt.Errorf("%w: channel length mismatch %d/%d", codec.ErrEncodeFailure, len(left), len(right))
	}
	if e.cfg.Channels == 1 {
		right = nil
	}
	pcm := audio.Int16sToBytes(audio.Interleave16(left, right))
	if _, err := e.stdin.Write(pcm); err != nil {
		return nil, fmt.Errorf("%w: write: %w%s", codec.ErrEncodeFailure, err, e.stderr.suffix())
	}
	return e.drain()
}

// Flush implements [codec.Encoder]. It closes ffmpeg's input and blocks until
// the process has written the final frames and exited.
func (e *Encoder) Flush() ([]byte, error) {
	if e.flushed || e.closed {
		return nil, fmt.Errorf("%w: encoder already finished", codec.ErrEncodeFailure)
	}
	e.flushed = true
	if err := e.stdin.Close(); err != nil {
		return nil, fmt.Errorf("%w: close input: %w", codec.ErrEncodeFailure, err)
	}
	<-e.done
	if err := e.cmd.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w%s", codec.ErrEncodeFailure, e.binary, err, e.stderr.suffix())
	}
	return e.drain()
}

// Close implements [codec.Encoder]. An unflushed process is killed.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.flushed {
		return nil
	}
	_ = e.stdin.Close()
	_ = e.cmd.Process.Kill()
	<-e.done
	_ = e.cmd.Wait()
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) suffix() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := bytes.TrimSpace(t.buf)
	if len(s) == 0 {
		return ""
	}
	return ": " + string(s)
}
