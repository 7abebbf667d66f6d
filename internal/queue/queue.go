package queue

import (
	"context"
	"errors"
	"time"

	"diningflow/internal/domain"
)

var ErrEmpty = errors.New("no work items ready")

// Queue is the durable channel between the intake producer and the
// fulfillment worker. Delivery is at-least-once: an unacknowledged
// delivery becomes visible again after the visibility timeout, with
// its delivery count bumped. No ordering is guaranteed across request
// ids. Consumers must be correct under redelivery.
type Queue interface {
	// Enqueue adds one WorkItem. Re-enqueueing an id already present is
	// a no-op, so a producer may safely retry an ambiguous failure.
	Enqueue(ctx context.Context, item domain.WorkItem) error

	// Poll returns up to max deliveries, waiting up to wait for at
	// least one to become available. An empty result is (nil, ErrEmpty).
	Poll(ctx context.Context, max int, wait time.Duration) ([]domain.Delivery, error)

	// Ack settles a delivery by handle. A handle that expired or was
	// already settled yields domain.ErrStaleHandle.
	Ack(ctx context.Context, handle string) error

	// RecoverExpired returns expired in-flight deliveries to the queued
	// state and reports how many it touched.
	RecoverExpired(ctx context.Context, now time.Time) (int, error)
}
