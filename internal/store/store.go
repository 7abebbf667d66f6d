package store

import (
	"context"
	"time"

	"diningflow/internal/domain"
)

// Store is the result store: one row per logical request, and the
// only cross-worker serialization point in the pipeline. CreateIfAbsent
// and UpdateStatus are single-row conditional writes, atomic at the
// store level.
type Store interface {
	// Get returns the Result row, or domain.ErrNotFound.
	Get(ctx context.Context, requestID string) (domain.Result, error)

	// CreateIfAbsent creates a PENDING row for the request. It reports
	// false when a row already exists (a concurrent delivery won the
	// race); the caller must defer and re-read rather than overwrite.
	CreateIfAbsent(ctx context.Context, req domain.Request) (bool, error)

	// UpdateStatus advances the row from expect to next, recording
	// candidates and completion time. If the row's status is not expect
	// the update is rejected with domain.ErrStatusConflict.
	UpdateStatus(ctx context.Context, requestID string, expect, next domain.Status, candidates []string, completedAt time.Time) error

	// MarkNotified flips notified to true on a COMPLETED row. It never
	// reverts and is a no-op if already set.
	MarkNotified(ctx context.Context, requestID string) error

	// ListUnnotified returns COMPLETED rows whose notification has not
	// gone out yet, oldest first, for the out-of-band retry sweep.
	ListUnnotified(ctx context.Context, limit int) ([]domain.Result, error)
}
