package event

import (
	"sync"

	"github.com/google/uuid"
)

type Type string

const (
	TransferProgress Type = "transfer.progress"
	TransferStatus   Type = "transfer.status"
	TransferFinished Type = "transfer.finished"
)

// Event is one notification. Payload is a domain.Progress for progress
// events and a *domain.QueuedTransfer snapshot otherwise.
type Event struct {
	Type    Type   `json:"type"`
	ID      string `json:"id"`
	Payload any    `json:"payload"`
}

type Handler func(Event)

type Bus interface {
	Subscribe(topic Type, handler Handler) string
	Unsubscribe(topic Type, subID string)
	Publish(topic Type, id string, payload any)
}

type subscription struct {
	id      string
	handler Handler
}

// InMemoryBus delivers events synchronously, in publish order. Handlers
// must not block; slow consumers should hand off to their own goroutine.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[Type][]subscription
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[Type][]subscription),
	}
}

func (b *InMemoryBus) Subscribe(topic Type, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	b.handlers[topic] = append(b.handlers[topic], subscription{id: id, handler: handler})
	return id
}

func (b *InMemoryBus) Unsubscribe(topic Type, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[topic]
	for i, s := range subs {
		if s.id == subID {
			// Copy so a concurrent Publish keeps iterating its own slice
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			b.handlers[topic] = append(next, subs[i+1:]...)
			break
		}
	}
}

func (b *InMemoryBus) Publish(topic Type, id string, payload any) {
	b.mu.RLock()
	subs := b.handlers[topic]
	b.mu.RUnlock()

	evt := Event{Type: topic, ID: id, Payload: payload}
	for _, s := range subs {
		s.handler(evt)
	}
}

// SubscribeAll registers handler on every transfer topic and returns a
// func that removes it again.
func SubscribeAll(b Bus, handler Handler) func() {
	topics := []Type{TransferProgress, TransferStatus, TransferFinished}
	ids := make([]string, len(topics))
	for i, topic := range topics {
		ids[i] = b.Subscribe(topic, handler)
	}
	return func() {
		for i, topic := range topics {
			b.Unsubscribe(topic, ids[i])
		}
	}
}
