package server

import (
	"context"
	"testing"
	"time"
)

func TestRealtimeDispatcherDeliversToRecipient(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, 7)
	defer cleanup()

	message := RealtimeMessage{
		RecipientID:      7,
		EventType:        RealtimeEventNotification,
		NotificationID:   1,
		NotificationType: "LIKE",
		Timestamp:        time.Now(),
	}
	dispatcher.Publish(message)

	select {
	case got := <-stream:
		if got.NotificationID != 1 || got.NotificationType != "LIKE" {
			t.Fatalf("unexpected message %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a delivered message")
	}
}

func TestRealtimeDispatcherScopesByRecipient(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, 7)
	defer cleanup()

	dispatcher.Publish(RealtimeMessage{
		RecipientID:    8,
		EventType:      RealtimeEventNotification,
		NotificationID: 1,
	})

	select {
	case got := <-stream:
		t.Fatalf("expected no delivery, got %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRealtimeDispatcherDropsWhenBufferFull(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, 7)
	defer cleanup()

	// Nobody draining the stream: publishing past the buffer must not block.
	for i := 0; i < 100; i++ {
		dispatcher.Publish(RealtimeMessage{
			RecipientID:    7,
			EventType:      RealtimeEventNotification,
			NotificationID: int64(i + 1),
		})
	}

	delivered := 0
	for {
		select {
		case <-stream:
			delivered++
			continue
		default:
		}
		break
	}
	if delivered == 0 || delivered >= 100 {
		t.Fatalf("expected a bounded number of buffered messages, got %d", delivered)
	}
}

func TestRealtimeDispatcherCleanupDetaches(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, cleanup := dispatcher.Subscribe(ctx, 7)
	cleanup()

	dispatcher.mu.RLock()
	remaining := len(dispatcher.subscribers)
	dispatcher.mu.RUnlock()
	if remaining != 0 {
		t.Fatalf("expected subscriber map emptied, got %d entries", remaining)
	}
}

func TestRealtimeDispatcherRejectsAnonymousSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()

	stream, cleanup := dispatcher.Subscribe(context.Background(), 0)
	defer cleanup()

	if _, open := <-stream; open {
		t.Fatalf("expected a closed stream for an anonymous subscriber")
	}
}
