package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/Venture/case-engine/internal/models"
)

// FileStore is a simple file-backed store for dev/testing.
// Each case lives in its own case_<id>.json; writes go through a temp file and
// a rename so a failed write can never truncate another case.
type FileStore struct {
	mu     sync.Mutex
	dir    string
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewFileStore returns a new FileStore and ensures the data directory exists.
func NewFileStore(dir string, logger *zap.SugaredLogger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{
		dir:    dir,
		logger: nopIfNil(logger),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (f *FileStore) Ping(ctx context.Context) error {
	_, err := os.Stat(f.dir)
	return err
}

func (f *FileStore) path(id uuid.UUID) string {
	return filepath.Join(f.dir, fmt.Sprintf("case_%s.json", id))
}

func (f *FileStore) Create(ctx context.Context, payload json.RawMessage) (models.Case, error) {
	c := newCase(payload, f.now())
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.write(c); err != nil {
		return models.Case{}, err
	}
	return c, nil
}

func (f *FileStore) Get(ctx context.Context, id uuid.UUID) (models.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read(id)
}

func (f *FileStore) Update(ctx context.Context, id uuid.UUID, in CaseUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.read(id)
	if errors.Is(err, ErrNotFound) {
		f.logger.Warnw("update ignored: unknown case", "caseId", id)
		return nil
	}
	if err != nil {
		return err
	}
	applyUpdate(&c, in)
	return f.write(c)
}

func (f *FileStore) AppendLog(ctx context.Context, id uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.read(id)
	if errors.Is(err, ErrNotFound) {
		f.logger.Warnw("log append ignored: unknown case", "caseId", id, "message", message)
		return nil
	}
	if err != nil {
		return err
	}
	c.Logs = append(c.Logs, FormatLog(f.now(), message))
	return f.write(c)
}

func (f *FileStore) List(ctx context.Context) ([]models.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	out := make([]models.Case, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "case_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(strings.TrimPrefix(name, "case_"), ".json"))
		if err != nil {
			continue
		}
		c, err := f.read(id)
		if err != nil {
			f.logger.Warnw("skipping unreadable case file", "file", name, "error", err)
			continue
		}
		out = append(out, c)
	}
	sortNewestFirst(out)
	return out, nil
}

func (f *FileStore) read(id uuid.UUID) (models.Case, error) {
	b, err := os.ReadFile(f.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Case{}, ErrNotFound
		}
		return models.Case{}, fmt.Errorf("read case file: %w", err)
	}
	var c models.Case
	if err := json.Unmarshal(b, &c); err != nil {
		return models.Case{}, fmt.Errorf("decode case file: %w", err)
	}
	return c, nil
}

func (f *FileStore) write(c models.Case) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode case: %w", err)
	}
	tmp, err := os.CreateTemp(f.dir, ".case-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write case file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync case file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close case file: %w", err)
	}
	if err := os.Rename(tmpName, f.path(c.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit case file: %w", err)
	}
	return nil
}
