package testutil

import (
	"context"
	"sync"

	"github.com/HerbHall/amrwatch/internal/event"
)

// MockBus is a thread-safe in-memory publisher that records every event for
// later inspection.
type MockBus struct {
	mu     sync.Mutex
	events []event.Event
}

// NewMockBus returns a new MockBus.
func NewMockBus() *MockBus {
	return &MockBus{}
}

// Publish records an event synchronously.
func (b *MockBus) Publish(_ context.Context, e event.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

// Topic returns the payloads recorded for topic, in publish order.
func (b *MockBus) Topic(topic string) []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []any
	for _, e := range b.events {
		if e.Topic == topic {
			out = append(out, e.Payload)
		}
	}
	return out
}

// Transitions returns the recorded transition payloads.
func (b *MockBus) Transitions() []event.Transition {
	var out []event.Transition
	for _, p := range b.Topic(event.TopicTransition) {
		out = append(out, p.(event.Transition))
	}
	return out
}

// Statuses returns the recorded status update payloads.
func (b *MockBus) Statuses() []event.StatusUpdate {
	var out []event.StatusUpdate
	for _, p := range b.Topic(event.TopicStatus) {
		out = append(out, p.(event.StatusUpdate))
	}
	return out
}
