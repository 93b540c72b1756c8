// Package bus fans registry notifications out to local UIs.
package bus

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/NeillJohnston/macropinna/internal/device"
)

// queueSize is how many undelivered notifications a subscriber may hold
// before further ones are dropped for it.
const queueSize = 64

// Subscription receives the device events whose topic starts with its prefix.
type Subscription struct {
	bus    *Bus
	prefix string
	events chan device.Event
	once   sync.Once
}

// Events returns the delivery channel. It is closed by Close.
func (s *Subscription) Events() <-chan device.Event {
	return s.events
}

// Close detaches the subscription from the bus. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.events)
	})
}

// Bus implements device.Publisher. Publishing never waits on a subscriber:
// one that has fallen a full queue behind misses the notification, which is
// harmless because every event only asks the UI to refetch.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	dropped atomic.Uint64
}

// New creates a bus with no subscribers.
func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers interest in topics starting with prefix, such as
// device.TopicPrefix. An empty prefix receives everything.
func (b *Bus) Subscribe(prefix string) *Subscription {
	sub := &Subscription{
		bus:    b,
		prefix: prefix,
		events: make(chan device.Event, queueSize),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers e on its topic.
func (b *Bus) Publish(e device.Event) {
	topic := e.Topic()

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if !strings.HasPrefix(topic, sub.prefix) {
			continue
		}
		select {
		case sub.events <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped for full subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
