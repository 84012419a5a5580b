// Package memory keeps completion events in process. It stands in for Pub/Sub
// when no project is configured and lets tests assert on what was announced.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
)

// Event is one recorded publish. Data holds the JSON body a real topic would
// have received.
type Event struct {
	ID         string
	Topic      string
	Data       []byte
	Completion cnr.Completion
}

// Publisher records completion events.
type Publisher struct {
	mu     sync.RWMutex
	events []Event
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish encodes payload the way the Pub/Sub publisher does and records it.
// Payloads that do not decode as a completion are still recorded with a zero
// Completion.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	var completion cnr.Completion
	_ = json.Unmarshal(data, &completion)

	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.events)+1)
	p.events = append(p.events, Event{ID: id, Topic: topic, Data: data, Completion: completion})
	return id, nil
}

// Events returns a copy of the recorded events in publish order.
func (p *Publisher) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// ForJob returns the latest completion published for jobID.
func (p *Publisher) ForJob(jobID string) (cnr.Completion, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Completion.JobID == jobID {
			return p.events[i].Completion, true
		}
	}
	return cnr.Completion{}, false
}

// Close is a no-op.
func (p *Publisher) Close() error { return nil }
