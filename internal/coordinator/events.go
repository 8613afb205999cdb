package coordinator

import (
	"log/slog"
	"time"
)

// EventType classifies control-surface events.
type EventType string

const (
	// EventState reports a phase change.
	EventState EventType = "STATE"

	// EventSaved reports a finished recording.
	EventSaved EventType = "SAVED"

	// EventError reports a failed start or recording.
	EventError EventType = "ERROR"
)

// DefaultEventBuffer is the per-subscriber queue depth.
const DefaultEventBuffer = 16

// Event is published to control surfaces.
type Event struct {
	Type        EventType `json:"type"`
	Phase       Phase     `json:"phase"`
	SessionID   string    `json:"session_id,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	DownloadID  string    `json:"download_id,omitempty"`
	BitrateKbps int       `json:"bitrate_kbps,omitempty"`

	// Text is a human-readable status line.
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Subscribe registers a listener. Events are dropped for a subscriber whose
// queue is full. Call the returned function to unsubscribe.
func (c *Coordinator) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	ch := make(chan Event, buffer)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

func (c *Coordinator) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("coordinator: dropping event for slow subscriber", "subscriber", id, "type", ev.Type)
		}
	}
}
