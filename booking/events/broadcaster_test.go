package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hspbot/hspbot/logger"
)

// recordingListener collects delivered events
type recordingListener struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingListener) Deliver(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingListener) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster(logger.Logger)
	first := &recordingListener{}
	second := &recordingListener{}
	b.Subscribe(first)
	b.Subscribe(second)

	b.Publish(Event{Kind: KindScheduleAttempt, JobID: "schedule-1-1", Attempt: 3})

	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, second.count())
	assert.Equal(t, KindScheduleAttempt, first.events[0].Kind)
	assert.NotZero(t, first.events[0].Timestamp)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster(logger.Logger)
	l := &recordingListener{}
	b.Subscribe(l)

	b.Publish(Event{Kind: KindJobStarted})
	b.Unsubscribe(l)
	b.Publish(Event{Kind: KindJobStopped})

	assert.Equal(t, 1, l.count())
	assert.Equal(t, 0, b.Subscribers())
}

func TestUnsubscribeUnknownListenerIsNoop(t *testing.T) {
	b := NewBroadcaster(logger.Logger)
	assert.NotPanics(t, func() {
		b.Unsubscribe(&recordingListener{})
	})
}

func TestPublishWithNoSubscribers(t *testing.T) {
	b := NewBroadcaster(logger.Logger)
	assert.NotPanics(t, func() {
		b.Publish(Event{Kind: KindScheduleError, Message: "no listeners"})
	})
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := NewBroadcaster(logger.Logger)
	l := &recordingListener{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.Subscribe(l)
		}()
		go func() {
			defer wg.Done()
			b.Publish(Event{Kind: KindScheduleAttempt})
		}()
	}
	wg.Wait()

	// Exact count depends on interleaving; only the invariant matters
	assert.Equal(t, 1, b.Subscribers())
}
