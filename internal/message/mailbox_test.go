package message_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/tabrec/internal/message"
)

func TestMailbox_DeliverWaitsForReply(t *testing.T) {
	t.Parallel()

	mb := message.NewMailbox(1)
	go func() {
		env := <-mb.C()
		if env.Msg.Kind != message.KindStart || env.Msg.Filename != "t.mp3" {
			env.Reply(message.Fail(errors.New("unexpected message")))
			return
		}
		env.Reply(message.Ack{OK: true, State: "recording"})
	}()

	ack := mb.Deliver(context.Background(), message.Message{Kind: message.KindStart, Filename: "t.mp3"})
	if !ack.OK || ack.State != "recording" {
		t.Fatalf("ack = %+v", ack)
	}
	if ack.Err() != nil {
		t.Errorf("Err() = %v, want nil", ack.Err())
	}
}

func TestMailbox_DeliverContextCancelled(t *testing.T) {
	t.Parallel()

	mb := message.NewMailbox(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ack := mb.Deliver(ctx, message.Message{Kind: message.KindStop})
	if ack.OK {
		t.Fatal("delivery without a receiver should fail")
	}
	if ack.Err() == nil {
		t.Error("Err() should be non-nil for a failed ack")
	}
}

func TestMailbox_Closed(t *testing.T) {
	t.Parallel()

	mb := message.NewMailbox(0)
	mb.Close()
	ack := mb.Deliver(context.Background(), message.Message{Kind: message.KindStop})
	if ack.OK || ack.Error != message.ErrClosed.Error() {
		t.Errorf("ack = %+v, want ErrClosed", ack)
	}
	if err := mb.Post(context.Background(), message.Message{Kind: message.KindSaved}); !errors.Is(err, message.ErrClosed) {
		t.Errorf("Post = %v, want ErrClosed", err)
	}
}

func TestMailbox_PostDoesNotWait(t *testing.T) {
	t.Parallel()

	mb := message.NewMailbox(1)
	if err := mb.Post(context.Background(), message.Message{Kind: message.KindSaved, DownloadID: "d1"}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	env := <-mb.C()
	env.Reply(message.OK()) // no waiting sender; must not block
	if env.Msg.DownloadID != "d1" {
		t.Errorf("DownloadID = %q", env.Msg.DownloadID)
	}
}

func TestAck_Err(t *testing.T) {
	t.Parallel()

	if err := message.Fail(nil).Err(); err == nil {
		t.Error("failed ack without text should still produce an error")
	}
	if err := message.Fail(errors.New("boom")).Err(); err == nil || err.Error() != "boom" {
		t.Errorf("Err() = %v, want boom", err)
	}
}

func TestEndpointFunc(t *testing.T) {
	t.Parallel()

	var got message.Kind
	var ep message.Endpoint = message.EndpointFunc(func(_ context.Context, m message.Message) message.Ack {
		got = m.Kind
		return message.OK()
	})
	ep.Deliver(context.Background(), message.Message{Kind: message.KindError})
	if got != message.KindError {
		t.Errorf("got %s", got)
	}
}
