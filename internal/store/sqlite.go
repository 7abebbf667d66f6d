package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"diningflow/internal/domain"
)

// EnsureSchema creates the results table if it doesn't exist. Rows are
// never deleted in normal operation; they stay queryable for audit.
func EnsureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS results (
  request_id TEXT PRIMARY KEY,
  request BLOB NOT NULL,
  candidates TEXT NOT NULL DEFAULT '[]',
  status TEXT NOT NULL CHECK(status IN ('PENDING','COMPLETED','FAILED')) DEFAULT 'PENDING',
  completed_at DATETIME,
  notified INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_results_unnotified ON results(status, notified, created_at);
`
	_, err := db.Exec(schema)
	return err
}

type sqliteStore struct{ db *sql.DB }

// NewSQLiteStore returns a Store backed by the given database.
func NewSQLiteStore(db *sql.DB) Store { return &sqliteStore{db: db} }

func (s *sqliteStore) Get(ctx context.Context, requestID string) (domain.Result, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT request_id, request, candidates, status, completed_at, notified, created_at, updated_at
FROM results WHERE request_id=?`, requestID)
	return scanResult(row)
}

func (s *sqliteStore) CreateIfAbsent(ctx context.Context, req domain.Request) (bool, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("marshal request %s: %w", req.RequestID, err)
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO results (request_id, request, status, created_at, updated_at)
VALUES (?, ?, 'PENDING', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
ON CONFLICT(request_id) DO NOTHING
`, req.RequestID, reqJSON)
	if err != nil {
		return false, fmt.Errorf("create result %s: %w", req.RequestID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) UpdateStatus(ctx context.Context, requestID string, expect, next domain.Status, candidates []string, completedAt time.Time) error {
	if candidates == nil {
		candidates = []string{}
	}
	candJSON, err := json.Marshal(candidates)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE results
SET status=?, candidates=?, completed_at=?, updated_at=CURRENT_TIMESTAMP
WHERE request_id=? AND status=?
`, string(next), string(candJSON), completedAt.UTC(), requestID, string(expect))
	if err != nil {
		return fmt.Errorf("update result %s: %w", requestID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Get(ctx, requestID); errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrStatusConflict
	}
	return nil
}

func (s *sqliteStore) MarkNotified(ctx context.Context, requestID string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE results
SET notified=1, updated_at=CURRENT_TIMESTAMP
WHERE request_id=? AND status='COMPLETED' AND notified=0
`, requestID)
	if err != nil {
		return fmt.Errorf("mark notified %s: %w", requestID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		existing, err := s.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if existing.Notified {
			return nil // already sent; never reverts
		}
		return domain.ErrStatusConflict
	}
	return nil
}

func (s *sqliteStore) ListUnnotified(ctx context.Context, limit int) ([]domain.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT request_id, request, candidates, status, completed_at, notified, created_at, updated_at
FROM results
WHERE status='COMPLETED' AND notified=0
ORDER BY created_at ASC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (domain.Result, error) {
	var (
		r           domain.Result
		reqJSON     []byte
		candJSON    string
		status      string
		completedAt sql.NullTime
		notified    int
	)
	err := row.Scan(&r.RequestID, &reqJSON, &candJSON, &status, &completedAt, &notified, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Result{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Result{}, err
	}
	if err := json.Unmarshal(reqJSON, &r.Request); err != nil {
		return domain.Result{}, fmt.Errorf("unmarshal request %s: %w", r.RequestID, err)
	}
	if err := json.Unmarshal([]byte(candJSON), &r.Candidates); err != nil {
		return domain.Result{}, fmt.Errorf("unmarshal candidates %s: %w", r.RequestID, err)
	}
	r.Status = domain.Status(status)
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	r.Notified = notified != 0
	return r, nil
}
