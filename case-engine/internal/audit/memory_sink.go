package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemorySink keeps published events in order. Used by tests and by dev runs
// without Kafka or S3.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Publish(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// ForCase filters to one case, preserving order.
func (m *MemorySink) ForCase(id uuid.UUID) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events {
		if ev.CaseID == id {
			out = append(out, ev)
		}
	}
	return out
}
