// Package audit keeps a signed, hash-chained trail of case transitions and
// fans each event out to durable sinks (Kafka, S3).
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventCaseCreated    = "case.created"
	EventCaseProcessing = "case.processing"
	EventCaseEthics     = "case.ethics"
	EventCaseCompleted  = "case.completed"
	EventCaseFailed     = "case.failed"
	EventCaseReviewed   = "case.reviewed"
)

// Event is one link in the chain. Payload holds canonical JSON and
// Hash = sha256(Payload || prevHashBytes).
type Event struct {
	ID        string          `json:"id"`
	CaseID    uuid.UUID       `json:"caseId"`
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
	PrevHash  string          `json:"prevHash,omitempty"`
	Hash      string          `json:"hash"`
	Signature string          `json:"signature"`
	SignerID  string          `json:"signerId"`
	Ts        time.Time       `json:"ts"`
}

// Recorder is what the pipeline and review service depend on.
type Recorder interface {
	Record(ctx context.Context, caseID uuid.UUID, eventType string, payload interface{}) (Event, error)
}

// Sink receives events in chain order.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards everything. It is the default when no chain is configured.
type Nop struct{}

func (Nop) Record(ctx context.Context, caseID uuid.UUID, eventType string, payload interface{}) (Event, error) {
	return Event{CaseID: caseID, EventType: eventType}, nil
}
