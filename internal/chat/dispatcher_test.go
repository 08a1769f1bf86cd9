package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDispatcherRejectsWhenFull(t *testing.T) {
	d := NewDispatcher(newRecordingDeliverer(), 2, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := d.Enqueue(ctx, Notification{Payload: []byte("x")}); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	if err := d.Enqueue(ctx, Notification{Payload: []byte("x")}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestDispatcherDeliversTargetedNotifications(t *testing.T) {
	rec := newRecordingDeliverer("u1")
	d := NewDispatcher(rec, 4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	if err := d.Enqueue(ctx, Notification{UserIDs: []string{"u1", "u2"}, Payload: []byte("note")}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for len(rec.framesFor("u1")) == 0 {
		select {
		case <-deadline:
			t.Fatal("notification was not delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if n := len(rec.framesFor("u2")); n != 0 {
		t.Errorf("offline user got %d frames", n)
	}
}

func TestDispatcherEnqueueHonoursContext(t *testing.T) {
	d := NewDispatcher(newRecordingDeliverer(), 1, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Enqueue(ctx, Notification{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
