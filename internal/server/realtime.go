package server

import (
	"context"
	"sync"
	"time"
)

const (
	// RealtimeEventNotification announces a freshly recorded notification.
	RealtimeEventNotification = "notification"
	realtimeEventHeartbeat    = "heartbeat"
)

// RealtimeMessage is one event pushed to a recipient's open streams.
type RealtimeMessage struct {
	RecipientID      int64
	EventType        string
	NotificationID   int64
	NotificationType string
	Timestamp        time.Time
}

// RealtimeDispatcher fans notification events out to per-recipient
// subscribers. Slow subscribers drop messages rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

// NewRealtimeDispatcher constructs an empty dispatcher.
func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for the recipient. The returned cleanup
// detaches it; cancellation of ctx detaches it as well.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, recipientID int64) (<-chan RealtimeMessage, func()) {
	if recipientID <= 0 {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(recipientID, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(recipientID, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message to every open stream of its recipient.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.RecipientID <= 0 || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.RecipientID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(recipientID int64, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[recipientID]; !ok {
		d.subscribers[recipientID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[recipientID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(recipientID int64, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[recipientID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, recipientID)
		}
	}
	d.mu.Unlock()
}
