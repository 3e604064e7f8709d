package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/Venture/case-engine/internal/models"
)

// PGStore persists cases into Postgres. Each mutation is a single UPDATE so a
// concurrent log append can never be lost to a read-modify-write race.
type PGStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewPGStore(db *sql.DB, logger *zap.SugaredLogger) *PGStore {
	return &PGStore{
		db:     db,
		logger: nopIfNil(logger),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *PGStore) Create(ctx context.Context, payload json.RawMessage) (models.Case, error) {
	c := newCase(payload, s.now())
	logs, err := json.Marshal(c.Logs)
	if err != nil {
		return models.Case{}, fmt.Errorf("marshal logs: %w", err)
	}
	query := `
		INSERT INTO cases (id, payload, status, result, logs, created)
		VALUES ($1,$2,$3,NULL,$4,$5)
	`
	if _, err := s.db.ExecContext(ctx, query, c.ID, string(c.Payload), string(c.Status), string(logs), c.Created); err != nil {
		return models.Case{}, fmt.Errorf("insert case: %w", err)
	}
	return c, nil
}

const selectCase = `SELECT id, payload, status, result, logs, created FROM cases`

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (models.Case, error) {
	row := s.db.QueryRowContext(ctx, selectCase+` WHERE id=$1`, id)
	c, err := scanCase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Case{}, ErrNotFound
		}
		return models.Case{}, fmt.Errorf("get case: %w", err)
	}
	return c, nil
}

func (s *PGStore) Update(ctx context.Context, id uuid.UUID, in CaseUpdate) error {
	var status sql.NullString
	if in.Status != nil {
		status = sql.NullString{String: string(*in.Status), Valid: true}
	}
	var result sql.NullString
	if in.Result != nil {
		b, err := json.Marshal(in.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		result = sql.NullString{String: string(b), Valid: true}
	}
	query := `
		UPDATE cases
		SET status = COALESCE($2, status),
		    result = COALESCE($3::jsonb, result)
		WHERE id=$1
	`
	res, err := s.db.ExecContext(ctx, query, id, status, result)
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		s.logger.Warnw("update ignored: unknown case", "caseId", id)
	}
	return nil
}

func (s *PGStore) AppendLog(ctx context.Context, id uuid.UUID, message string) error {
	line, err := json.Marshal([]string{FormatLog(s.now(), message)})
	if err != nil {
		return fmt.Errorf("marshal log line: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE cases SET logs = logs || $2::jsonb WHERE id=$1`, id, string(line))
	if err != nil {
		return fmt.Errorf("append case log: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		s.logger.Warnw("log append ignored: unknown case", "caseId", id, "message", message)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context) ([]models.Case, error) {
	rows, err := s.db.QueryContext(ctx, selectCase+` ORDER BY created DESC`)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()
	out := []models.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	return out, nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCase(row rowScanner) (models.Case, error) {
	var (
		c       models.Case
		status  string
		payload []byte
		result  []byte
		logs    []byte
	)
	if err := row.Scan(&c.ID, &payload, &status, &result, &logs, &c.Created); err != nil {
		return models.Case{}, err
	}
	c.Status = models.CaseStatus(status)
	c.Payload = append(json.RawMessage(nil), payload...)
	if len(result) > 0 && string(result) != "null" {
		var r models.Result
		if err := json.Unmarshal(result, &r); err != nil {
			return models.Case{}, fmt.Errorf("decode result: %w", err)
		}
		c.Result = &r
	}
	if len(logs) > 0 {
		if err := json.Unmarshal(logs, &c.Logs); err != nil {
			return models.Case{}, fmt.Errorf("decode logs: %w", err)
		}
	}
	return c, nil
}
