package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/Venture/case-engine/internal/audit"
	"github.com/ILLUVRSE/Venture/case-engine/internal/models"
	"github.com/ILLUVRSE/Venture/case-engine/internal/store"
)

var (
	ErrNotTerminal     = errors.New("case is not in a terminal state")
	ErrInvalidDecision = errors.New("decision must be one of approve, reject, escalate")
)

var decisions = map[string]bool{
	"approve":  true,
	"reject":   true,
	"escalate": true,
}

type Service struct {
	store    store.Store
	recorder audit.Recorder
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func New(st store.Store, recorder audit.Recorder, logger *zap.SugaredLogger) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		store:    st,
		recorder: recorder,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ReviewCase attaches a human decision to a finished case. Only
// result.adminReview is written; the ethics report and SPI are left as they are.
// A second review replaces the first.
func (s *Service) ReviewCase(ctx context.Context, id uuid.UUID, decision, notes string) (models.Case, error) {
	decision = strings.ToLower(strings.TrimSpace(decision))
	if !decisions[decision] {
		return models.Case{}, ErrInvalidDecision
	}
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return models.Case{}, err
	}
	if !c.Status.IsTerminal() {
		return models.Case{}, fmt.Errorf("%w: status %s", ErrNotTerminal, c.Status)
	}

	var result models.Result
	if c.Result != nil {
		result = c.Result.Clone()
	}
	result.AdminReview = &models.AdminReview{
		Decision:   decision,
		Notes:      notes,
		ReviewedAt: s.now(),
	}
	if err := s.store.Update(ctx, id, store.CaseUpdate{Result: &result}); err != nil {
		return models.Case{}, fmt.Errorf("store review: %w", err)
	}
	if err := s.store.AppendLog(ctx, id, "Admin review recorded: "+decision); err != nil {
		return models.Case{}, err
	}
	if _, err := s.recorder.Record(ctx, id, audit.EventCaseReviewed, result.AdminReview); err != nil {
		s.logger.Warnw("audit record failed", "caseId", id, "eventType", audit.EventCaseReviewed, "error", err)
	}
	s.logger.Infow("admin review recorded", "caseId", id, "decision", decision)
	return s.store.Get(ctx, id)
}
