package coordinator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/tabrec/internal/coordinator"
	"github.com/MrWong99/tabrec/internal/message"
	"github.com/MrWong99/tabrec/internal/observe"
	"github.com/MrWong99/tabrec/internal/recorder"
	"github.com/MrWong99/tabrec/pkg/audio"
	capmock "github.com/MrWong99/tabrec/pkg/capture/mock"
	"github.com/MrWong99/tabrec/pkg/codec"
	codecmock "github.com/MrWong99/tabrec/pkg/codec/mock"
	dlmock "github.com/MrWong99/tabrec/pkg/download/mock"
	"github.com/MrWong99/tabrec/pkg/statestore"
)

type stack struct {
	coord *coordinator.Coordinator
	host  *recorder.Host
	src   *capmock.Source
	sink  *dlmock.Sink
	store *statestore.MemoryStore
}

// newStack wires a real capture host to a coordinator the way the app does.
func newStack(t *testing.T) *stack {
	t.Helper()
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	s := &stack{
		src:   &capmock.Source{Format: audio.Format{SampleRate: 44100, Channels: 2}},
		sink:  &dlmock.Sink{},
		store: statestore.NewMemoryStore(),
	}
	var host *recorder.Host
	s.coord = coordinator.New(coordinator.Config{
		Host: message.EndpointFunc(func(ctx context.Context, m message.Message) message.Ack {
			return host.Deliver(ctx, m)
		}),
		Store: s.store,
	})
	host = recorder.NewHost(recorder.HostConfig{
		Source: s.src,
		NewEncoder: func(codec.Config) (codec.Encoder, error) {
			return &codecmock.Encoder{Unit: 1152, FlushResult: []byte("END"), Ext: ".mp3"}, nil
		},
		Codec:   "mock",
		Sink:    s.sink,
		Notify:  s.coord,
		Metrics: metrics,
	})
	s.host = host

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Go(func() { _ = host.Run(ctx) })
	wg.Go(func() { _ = s.coord.Run(ctx) })
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return s
}

func (s *stack) push(t *testing.T, frames int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	h := s.src.LastHandle()
	for i := range frames {
		c := make([][]float32, 2)
		for ch := range c {
			c[ch] = make([]float32, audio.DefaultFrameSize)
			for j := range c[ch] {
				c[ch][j] = float32((i+j+ch)%200-100) / 100
			}
		}
		if !h.Push(ctx, audio.Chunk{Samples: c}) {
			t.Fatal("chunk not consumed")
		}
	}
}

func collectTerminal(t *testing.T, events <-chan coordinator.Event) []coordinator.Event {
	t.Helper()
	var out []coordinator.Event
	deadline := time.After(waitTimeout)
	quiet := 200 * time.Millisecond
	for {
		select {
		case ev := <-events:
			if ev.Type != coordinator.EventState {
				out = append(out, ev)
			}
		case <-time.After(quiet):
			if len(out) > 0 {
				return out
			}
		case <-deadline:
			return out
		}
	}
}

func TestStack_RecordThenStop(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	events, unsubscribe := s.coord.Subscribe(32)
	defer unsubscribe()
	ctx := testCtx(t)

	if err := s.coord.Start(ctx, coordinator.StartRequest{BitrateKbps: 128, Filename: "t.mp3"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if st, _ := s.coord.Status(ctx); !st.Recording {
		t.Error("flag not set while recording")
	}
	if err := s.coord.Start(ctx, coordinator.StartRequest{}); err == nil {
		t.Error("second start must be rejected")
	}
	s.push(t, 10)
	if err := s.coord.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got := collectTerminal(t, events)
	if len(got) != 1 || got[0].Type != coordinator.EventSaved || got[0].Filename != "t.mp3" {
		t.Fatalf("terminal events = %+v, want one SAVED t.mp3", got)
	}
	if s.src.AcquireCount() != 1 || s.sink.SaveCount() != 1 {
		t.Errorf("acquire = %d, save = %d", s.src.AcquireCount(), s.sink.SaveCount())
	}
	if st, _ := s.coord.Status(ctx); st.Recording || st.Filename != "t.mp3" {
		t.Errorf("Status() = %+v", st)
	}
	if s.host.State() != recorder.StateIdle {
		t.Errorf("host state = %s", s.host.State())
	}
}

func TestStack_StreamEndAndStopRace(t *testing.T) {
	t.Parallel()

	for range 10 {
		s := newStack(t)
		events, unsubscribe := s.coord.Subscribe(32)
		ctx := testCtx(t)
		if err := s.coord.Start(ctx, coordinator.StartRequest{}); err != nil {
			t.Fatal(err)
		}
		s.push(t, 2)

		var wg sync.WaitGroup
		wg.Go(s.src.LastHandle().End)
		wg.Go(func() {
			if err := s.coord.Stop(ctx); err != nil {
				t.Errorf("Stop: %v", err)
			}
		})
		wg.Wait()

		got := collectTerminal(t, events)
		if len(got) != 1 || got[0].Type != coordinator.EventSaved {
			t.Fatalf("terminal events = %+v, want exactly one SAVED", got)
		}
		if s.sink.SaveCount() != 1 {
			t.Fatalf("saved %d times", s.sink.SaveCount())
		}
		unsubscribe()
	}
}
