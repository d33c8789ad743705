// Package events fans agent events out to subscribers. The event logger is
// the main subscriber; tests and the process entry may add their own.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/OldStager01/swarm-autoscaler/internal/logger"
	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

type EventBus struct {
	mu         sync.RWMutex
	byType     map[models.EventType][]chan *models.Event
	wildcard   []chan *models.Event
	bufferSize int
	closed     bool
	dropped    atomic.Uint64
}

func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{
		byType:     make(map[models.EventType][]chan *models.Event),
		bufferSize: bufferSize,
	}
}

// Subscribe returns a channel receiving events of one type. It is closed by
// Close.
func (b *EventBus) Subscribe(eventType models.EventType) <-chan *models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *models.Event, b.bufferSize)
	b.byType[eventType] = append(b.byType[eventType], ch)
	return ch
}

// SubscribeAll returns a channel receiving every event.
func (b *EventBus) SubscribeAll() <-chan *models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *models.Event, b.bufferSize)
	b.wildcard = append(b.wildcard, ch)
	return ch
}

// Publish never blocks the control loop: a subscriber whose buffer is full
// misses the event.
func (b *EventBus) Publish(event *models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	deliver := func(ch chan *models.Event) {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
			logger.Warnf("Event channel full, dropping %s event", event.Type)
		}
	}

	for _, ch := range b.byType[event.Type] {
		deliver(ch)
	}
	for _, ch := range b.wildcard {
		deliver(ch)
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was
// full.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.byType {
		for _, ch := range subs {
			close(ch)
		}
	}
	for _, ch := range b.wildcard {
		close(ch)
	}

	b.byType = nil
	b.wildcard = nil
}
