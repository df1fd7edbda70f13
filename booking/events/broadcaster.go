package events

import (
	"sync"

	"go.uber.org/zap"
)

// Broadcaster fans events out to every subscribed listener.
// It holds non-owning references: subscribers are added on Subscribe and
// removed on Unsubscribe, nothing else manages their lifecycle.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[Listener]struct{}
	logger    *zap.SugaredLogger
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster(log *zap.SugaredLogger) *Broadcaster {
	return &Broadcaster{
		listeners: make(map[Listener]struct{}),
		logger:    log,
	}
}

// Subscribe registers a listener for all future events
func (b *Broadcaster) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[l] = struct{}{}
}

// Unsubscribe removes a listener. Safe to call for a listener that was never
// subscribed. A Publish already in flight may still call Deliver once after
// Unsubscribe returns; listeners must tolerate one late delivery.
func (b *Broadcaster) Unsubscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, l)
}

// Publish delivers the event to every currently subscribed listener.
// Delivery to one listener cannot fail delivery to others.
func (b *Broadcaster) Publish(ev Event) {
	if ev.Timestamp == 0 {
		ev.Timestamp = now().Unix()
	}

	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.listeners))
	for l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.RUnlock()

	for _, l := range listeners {
		l.Deliver(ev)
	}

	if b.logger != nil {
		b.logger.Debugw("Published event",
			"kind", ev.Kind,
			"job_id", ev.JobID,
			"listeners", len(listeners))
	}
}

// Subscribers returns the current subscriber count
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
