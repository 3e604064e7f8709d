package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/Venture/case-engine/internal/models"
)

var ErrNotFound = errors.New("not found")

// Store is the durable record of cases. Update and AppendLog on an unknown id
// log and return nil so the pipeline survives stale references; only I/O
// failures are returned. Every successful write is visible to the next Get.
type Store interface {
	Create(ctx context.Context, payload json.RawMessage) (models.Case, error)
	Get(ctx context.Context, id uuid.UUID) (models.Case, error)
	Update(ctx context.Context, id uuid.UUID, in CaseUpdate) error
	AppendLog(ctx context.Context, id uuid.UUID, message string) error
	List(ctx context.Context) ([]models.Case, error)
	Ping(ctx context.Context) error
}

// CaseUpdate is a shallow patch: nil fields are left untouched.
type CaseUpdate struct {
	Status *models.CaseStatus
	Result *models.Result
}

func StatusPtr(s models.CaseStatus) *models.CaseStatus { return &s }

const createdMessage = "Case created"

// FormatLog renders a log line as "[<RFC3339Nano>] message".
func FormatLog(ts time.Time, message string) string {
	return fmt.Sprintf("[%s] %s", ts.UTC().Format(time.RFC3339Nano), message)
}

func ensurePayload(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func newCase(payload json.RawMessage, now time.Time) models.Case {
	return models.Case{
		ID:      uuid.New(),
		Payload: ensurePayload(payload),
		Status:  models.StatusPending,
		Logs:    []string{FormatLog(now, createdMessage)},
		Created: now,
	}
}

func applyUpdate(c *models.Case, in CaseUpdate) {
	if in.Status != nil {
		c.Status = *in.Status
	}
	if in.Result != nil {
		r := in.Result.Clone()
		c.Result = &r
	}
}

func nopIfNil(logger *zap.SugaredLogger) *zap.SugaredLogger {
	if logger == nil {
		return zap.NewNop().Sugar()
	}
	return logger
}
