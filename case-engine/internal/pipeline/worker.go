// Package pipeline moves cases through the ethics gate and, unless the gate
// blocks, the SPI scorer, one case at a time.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/Venture/case-engine/internal/audit"
	"github.com/ILLUVRSE/Venture/case-engine/internal/models"
	"github.com/ILLUVRSE/Venture/case-engine/internal/spi"
	"github.com/ILLUVRSE/Venture/case-engine/internal/store"
)

const (
	NoteHalted  = "Halted for human review"
	NoteCaution = "Proceed with caution - mitigation suggested"
	NoteOK      = "OK"
)

var ErrAlreadyRunning = errors.New("pipeline worker already running")

// Evaluator is the ethics gate as seen by the worker.
type Evaluator interface {
	Evaluate(ctx context.Context, payload json.RawMessage) (models.EthicsReport, error)
}

// ScoreFunc computes the SPI for a payload.
type ScoreFunc func(payload json.RawMessage) models.SPIResult

// ScorePayload is the default ScoreFunc.
func ScorePayload(payload json.RawMessage) models.SPIResult {
	return spi.Compute(spi.InputsFromIntake(models.ParseIntake(payload)))
}

type Config struct {
	// JobTimeout bounds one job; zero means no limit. Expiry fails the case.
	JobTimeout time.Duration
	Score      ScoreFunc
	Recorder   audit.Recorder
	Logger     *zap.SugaredLogger
}

type Job struct {
	CaseID  uuid.UUID
	Payload json.RawMessage
}

// Worker drains an in-memory FIFO with exactly one job in flight at a time.
// Enqueue is safe from any goroutine; Run must be called once.
type Worker struct {
	store      store.Store
	gate       Evaluator
	score      ScoreFunc
	recorder   audit.Recorder
	logger     *zap.SugaredLogger
	jobTimeout time.Duration

	mu      sync.Mutex
	queue   []Job
	wake    chan struct{}
	running atomic.Bool
}

func NewWorker(st store.Store, gate Evaluator, cfg Config) *Worker {
	w := &Worker{
		store:      st,
		gate:       gate,
		score:      cfg.Score,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger,
		jobTimeout: cfg.JobTimeout,
		wake:       make(chan struct{}, 1),
	}
	if w.score == nil {
		w.score = ScorePayload
	}
	if w.recorder == nil {
		w.recorder = audit.Nop{}
	}
	if w.logger == nil {
		w.logger = zap.NewNop().Sugar()
	}
	return w
}

// Submit creates the case record and queues it.
func (w *Worker) Submit(ctx context.Context, payload json.RawMessage) (models.Case, error) {
	c, err := w.store.Create(ctx, payload)
	if err != nil {
		return models.Case{}, fmt.Errorf("create case: %w", err)
	}
	w.record(ctx, c.ID, audit.EventCaseCreated, map[string]interface{}{"status": c.Status})
	w.Enqueue(c.ID, c.Payload)
	return c, nil
}

// Enqueue appends to the tail of the queue and never blocks.
func (w *Worker) Enqueue(caseID uuid.UUID, payload json.RawMessage) {
	w.mu.Lock()
	w.queue = append(w.queue, Job{CaseID: caseID, Payload: payload})
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Pending reports how many jobs are waiting, excluding the one in flight.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

func (w *Worker) next() (Job, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return Job{}, false
	}
	job := w.queue[0]
	w.queue[0] = Job{}
	w.queue = w.queue[1:]
	return job, true
}

// Run processes jobs until ctx is cancelled. The job in flight at that point
// runs to completion, bounded only by JobTimeout; jobs still queued are left
// PENDING in the store.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.running.Store(false)

	w.logger.Infow("pipeline worker started", "jobTimeout", w.jobTimeout)
	defer w.logger.Infow("pipeline worker stopped", "pending", w.Pending())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job, ok := w.next()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.wake:
			}
			continue
		}
		w.process(context.WithoutCancel(ctx), job)
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	start := time.Now()
	log := w.logger.With("caseId", job.CaseID)

	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	flag, err := w.runJob(jobCtx, job)
	if err != nil {
		log.Errorw("case failed", "error", err, "duration", time.Since(start))
		w.fail(ctx, job.CaseID, err)
		return
	}
	log.Infow("case complete", "flag", flag, "duration", time.Since(start))
}

// runJob runs the stages for one case. A panic in any stage becomes an error.
func (w *Worker) runJob(ctx context.Context, job Job) (flag models.Flag, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := w.store.Update(ctx, job.CaseID, store.CaseUpdate{Status: store.StatusPtr(models.StatusProcessing)}); err != nil {
		return "", fmt.Errorf("mark processing: %w", err)
	}
	if err := w.store.AppendLog(ctx, job.CaseID, "Job started..."); err != nil {
		return "", err
	}
	w.record(ctx, job.CaseID, audit.EventCaseProcessing, map[string]interface{}{"status": models.StatusProcessing})

	report, err := w.gate.Evaluate(ctx, job.Payload)
	if err != nil {
		return "", err
	}
	result := models.Result{Ethics: &report}
	if err := w.store.Update(ctx, job.CaseID, store.CaseUpdate{Result: &result}); err != nil {
		return "", fmt.Errorf("store ethics report: %w", err)
	}
	msg := fmt.Sprintf("Ethics check complete: flag=%s score=%d", report.OverallFlag, report.OverallScore)
	if err := w.store.AppendLog(ctx, job.CaseID, msg); err != nil {
		return "", err
	}
	w.record(ctx, job.CaseID, audit.EventCaseEthics, map[string]interface{}{
		"overallFlag":  report.OverallFlag,
		"overallScore": report.OverallScore,
	})

	if report.OverallFlag == models.FlagBlock {
		result.Note = NoteHalted
		if err := w.store.AppendLog(ctx, job.CaseID, "Halted for human review: ethics gate returned BLOCK"); err != nil {
			return "", err
		}
		return report.OverallFlag, w.complete(ctx, job.CaseID, result)
	}

	if err := w.store.AppendLog(ctx, job.CaseID, "Proceeding to compute SPI"); err != nil {
		return "", err
	}
	score := w.score(job.Payload)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	result.SPI = &score
	result.Note = NoteOK
	if report.OverallFlag == models.FlagCaution {
		result.Note = NoteCaution
	}
	if err := w.store.AppendLog(ctx, job.CaseID, fmt.Sprintf("SPI computed: %.2f; case complete", score.SPI)); err != nil {
		return "", err
	}
	return report.OverallFlag, w.complete(ctx, job.CaseID, result)
}

func (w *Worker) complete(ctx context.Context, id uuid.UUID, result models.Result) error {
	if err := w.store.Update(ctx, id, store.CaseUpdate{Status: store.StatusPtr(models.StatusComplete), Result: &result}); err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	payload := map[string]interface{}{"status": models.StatusComplete, "note": result.Note}
	if result.SPI != nil {
		payload["spi"] = result.SPI.SPI
	}
	w.record(ctx, id, audit.EventCaseCompleted, payload)
	return nil
}

// fail leaves any partial result in place and never retries.
func (w *Worker) fail(ctx context.Context, id uuid.UUID, cause error) {
	if err := w.store.AppendLog(ctx, id, "ERROR: "+cause.Error()); err != nil {
		w.logger.Errorw("append error log", "caseId", id, "error", err)
	}
	if err := w.store.Update(ctx, id, store.CaseUpdate{Status: store.StatusPtr(models.StatusError)}); err != nil {
		w.logger.Errorw("mark case failed", "caseId", id, "error", err)
	}
	w.record(ctx, id, audit.EventCaseFailed, map[string]interface{}{"status": models.StatusError, "error": cause.Error()})
}

func (w *Worker) record(ctx context.Context, id uuid.UUID, eventType string, payload interface{}) {
	if _, err := w.recorder.Record(ctx, id, eventType, payload); err != nil {
		w.logger.Warnw("audit record failed", "caseId", id, "eventType", eventType, "error", err)
	}
}
