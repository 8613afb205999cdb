package message

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned when delivering to a mailbox whose actor stopped.
var ErrClosed = errors.New("message: mailbox closed")

// Envelope carries a message into an actor loop together with the channel
// its acknowledgement goes back on.
type Envelope struct {
	Msg   Message
	reply chan Ack
}

// Reply sends the acknowledgement. Envelopes posted without a waiting sender
// ignore it. Reply must be called at most once.
func (e Envelope) Reply(a Ack) {
	if e.reply != nil {
		e.reply <- a
	}
}

// Mailbox is an actor inbox. Any goroutine may deliver; exactly one
// goroutine (the actor) receives from C and replies.
type Mailbox struct {
	ch   chan Envelope
	done chan struct{}
}

// NewMailbox creates a Mailbox with the given queue depth.
func NewMailbox(size int) *Mailbox {
	return &Mailbox{
		ch:   make(chan Envelope, size),
		done: make(chan struct{}),
	}
}

// C is the actor's receive channel.
func (m *Mailbox) C() <-chan Envelope { return m.ch }

// Close marks the actor as stopped. Pending and future deliveries fail with
// [ErrClosed]. Close must be called once, by the actor.
func (m *Mailbox) Close() { close(m.done) }

// Deliver implements [Endpoint]: it enqueues msg and waits for the actor's
// acknowledgement.
func (m *Mailbox) Deliver(ctx context.Context, msg Message) Ack {
	reply := make(chan Ack, 1)
	select {
	case m.ch <- Envelope{Msg: msg, reply: reply}:
	case <-m.done:
		return Fail(ErrClosed)
	case <-ctx.Done():
		return Fail(fmt.Errorf("message: deliver %s: %w", msg.Kind, ctx.Err()))
	}
	select {
	case a := <-reply:
		return a
	case <-m.done:
		// The actor may have replied right before stopping.
		select {
		case a := <-reply:
			return a
		default:
			return Fail(ErrClosed)
		}
	case <-ctx.Done():
		return Fail(fmt.Errorf("message: await %s ack: %w", msg.Kind, ctx.Err()))
	}
}

// Post enqueues msg without waiting for an acknowledgement.
func (m *Mailbox) Post(ctx context.Context, msg Message) error {
	select {
	case m.ch <- Envelope{Msg: msg}:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
