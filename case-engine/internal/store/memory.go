package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/Venture/case-engine/internal/models"
)

// MemoryStore provides an in-memory implementation useful for tests.
type MemoryStore struct {
	mu     sync.RWMutex
	cases  map[uuid.UUID]models.Case
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewMemoryStore(logger *zap.SugaredLogger) *MemoryStore {
	return &MemoryStore{
		cases:  map[uuid.UUID]models.Case{},
		logger: nopIfNil(logger),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Create(ctx context.Context, payload json.RawMessage) (models.Case, error) {
	c := newCase(payload, m.now())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases[c.ID] = c.Clone()
	return c, nil
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[id]
	if !ok {
		return models.Case{}, ErrNotFound
	}
	return c.Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, id uuid.UUID, in CaseUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		m.logger.Warnw("update ignored: unknown case", "caseId", id)
		return nil
	}
	applyUpdate(&c, in)
	m.cases[id] = c
	return nil
}

func (m *MemoryStore) AppendLog(ctx context.Context, id uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		m.logger.Warnw("log append ignored: unknown case", "caseId", id, "message", message)
		return nil
	}
	c.Logs = append(c.Logs, FormatLog(m.now(), message))
	m.cases[id] = c
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]models.Case, error) {
	m.mu.RLock()
	out := make([]models.Case, 0, len(m.cases))
	for _, c := range m.cases {
		out = append(out, c.Clone())
	}
	m.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func sortNewestFirst(cases []models.Case) {
	sort.SliceStable(cases, func(i, j int) bool {
		return cases[i].Created.After(cases[j].Created)
	})
}
