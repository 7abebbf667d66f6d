package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"diningflow/internal/domain"
)

// EnsureSchema creates the queue table if it doesn't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS work_items (
  request_id TEXT PRIMARY KEY,
  body BLOB NOT NULL,
  state TEXT NOT NULL CHECK(state IN ('queued','inflight','done')) DEFAULT 'queued',
  delivery_count INTEGER NOT NULL DEFAULT 0,
  visible_at INTEGER NOT NULL DEFAULT 0,
  handle TEXT,
  enqueued_at DATETIME NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_work_items_ready ON work_items(state, visible_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_work_items_handle ON work_items(handle) WHERE handle IS NOT NULL;
`
	_, err := db.Exec(schema)
	return err
}

type sqliteQueue struct {
	db                *sql.DB
	visibilityTimeout time.Duration
	pollInterval      time.Duration
}

// NewSQLiteQueue returns a Queue backed by the given database.
func NewSQLiteQueue(db *sql.DB, visibilityTimeout time.Duration) Queue {
	return &sqliteQueue{
		db:                db,
		visibilityTimeout: visibilityTimeout,
		pollInterval:      100 * time.Millisecond,
	}
}

func (q *sqliteQueue) Enqueue(ctx context.Context, item domain.WorkItem) error {
	if item.RequestID == "" {
		return fmt.Errorf("enqueue: work item has no request id")
	}
	_, err := q.db.ExecContext(ctx, `
INSERT INTO work_items (request_id, body, state, delivery_count, visible_at, enqueued_at, updated_at)
VALUES (?, ?, 'queued', 0, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(request_id) DO NOTHING
`, item.RequestID, item.Body, time.Now().Unix(), item.EnqueuedAt.UTC())
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", item.RequestID, err)
	}
	return nil
}

func (q *sqliteQueue) Poll(ctx context.Context, max int, wait time.Duration) ([]domain.Delivery, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	for {
		deliveries, err := q.lease(ctx, max, time.Now())
		if err != nil {
			return nil, err
		}
		if len(deliveries) > 0 {
			return deliveries, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrEmpty
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// lease claims up to max ready items in one transaction. Ready means
// queued, or inflight with an expired visibility timeout (redelivery).
func (q *sqliteQueue) lease(ctx context.Context, max int, now time.Time) ([]domain.Delivery, error) {
	tx, err := q.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `
SELECT request_id, body, delivery_count, enqueued_at
FROM work_items
WHERE state IN ('queued','inflight') AND visible_at <= ?
ORDER BY enqueued_at ASC
LIMIT ?
`, now.Unix(), max)
	if err != nil {
		return nil, err
	}

	var deliveries []domain.Delivery
	for rows.Next() {
		var d domain.Delivery
		if err = rows.Scan(&d.Item.RequestID, &d.Item.Body, &d.DeliveryCount, &d.Item.EnqueuedAt); err != nil {
			rows.Close()
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if len(deliveries) == 0 {
		return nil, tx.Rollback()
	}

	visibleAt := now.Add(q.visibilityTimeout).Unix()
	for i := range deliveries {
		deliveries[i].Handle = "dlv_" + uuid.NewString()
		deliveries[i].DeliveryCount++
		_, err = tx.ExecContext(ctx, `
UPDATE work_items
SET state='inflight', delivery_count=delivery_count+1, handle=?, visible_at=?, updated_at=CURRENT_TIMESTAMP
WHERE request_id=?
`, deliveries[i].Handle, visibleAt, deliveries[i].Item.RequestID)
		if err != nil {
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (q *sqliteQueue) Ack(ctx context.Context, handle string) error {
	res, err := q.db.ExecContext(ctx, `
UPDATE work_items
SET state='done', handle=NULL, updated_at=CURRENT_TIMESTAMP
WHERE handle=? AND state='inflight'
`, handle)
	if err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrStaleHandle
	}
	return nil
}

func (q *sqliteQueue) RecoverExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE work_items
SET state='queued', handle=NULL, updated_at=CURRENT_TIMESTAMP
WHERE state='inflight' AND visible_at <= ?
`, now.Unix())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
