// Package memory records completion events in process, for tests and for
// single-node runs where no broker is configured.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Event captures one publish call.
type Event struct {
	Topic   string
	Payload any
}

// Publisher stores events instead of sending them.
type Publisher struct {
	mu     sync.RWMutex
	events []Event
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns a synthetic ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Topic: topic, Payload: payload})
	return fmt.Sprintf("local-%d", len(p.events)), nil
}

// Events returns a copy of the recorded events in publish order.
func (p *Publisher) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
