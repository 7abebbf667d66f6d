package queue

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"diningflow/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "queue.db") + "?_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, EnsureSchema(db))
	return db
}

func testItem(id string) domain.WorkItem {
	return domain.WorkItem{
		RequestID:  id,
		Body:       []byte(`{"v":1}`),
		EnqueuedAt: time.Now().UTC(),
	}
}

func TestEnqueuePollAck(t *testing.T) {
	db := openTestDB(t)
	q := NewSQLiteQueue(db, time.Minute)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testItem("req_1")))

	deliveries, err := q.Poll(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	d := deliveries[0]
	assert.Equal(t, "req_1", d.Item.RequestID)
	assert.Equal(t, []byte(`{"v":1}`), d.Item.Body)
	assert.Equal(t, 1, d.DeliveryCount)
	assert.NotEmpty(t, d.Handle)

	// In flight and within the visibility timeout: nothing to poll.
	_, err = q.Poll(ctx, 10, 0)
	assert.ErrorIs(t, err, ErrEmpty)

	require.NoError(t, q.Ack(ctx, d.Handle))

	// Settled: never delivered again.
	_, err = q.Poll(ctx, 10, 0)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestEnqueueIsIdempotentPerRequestID(t *testing.T) {
	db := openTestDB(t)
	q := NewSQLiteQueue(db, time.Minute)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testItem("req_1")))
	require.NoError(t, q.Enqueue(ctx, testItem("req_1"))) // producer retry

	deliveries, err := q.Poll(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, deliveries, 1)
}

func TestRedeliveryAfterVisibilityTimeout(t *testing.T) {
	db := openTestDB(t)
	// Zero visibility timeout: an unacked delivery is immediately
	// eligible again, standing in for an expired lease.
	q := NewSQLiteQueue(db, 0)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testItem("req_1")))

	first, err := q.Poll(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, first[0].DeliveryCount)

	second, err := q.Poll(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "req_1", second[0].Item.RequestID)
	assert.Equal(t, 2, second[0].DeliveryCount)
	assert.NotEqual(t, first[0].Handle, second[0].Handle)

	// The superseded handle can no longer settle the item.
	assert.ErrorIs(t, q.Ack(ctx, first[0].Handle), domain.ErrStaleHandle)

	require.NoError(t, q.Ack(ctx, second[0].Handle))
	_, err = q.Poll(ctx, 1, 0)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestAckUnknownHandle(t *testing.T) {
	db := openTestDB(t)
	q := NewSQLiteQueue(db, time.Minute)

	err := q.Ack(context.Background(), "dlv_nope")
	assert.ErrorIs(t, err, domain.ErrStaleHandle)
}

func TestRecoverExpired(t *testing.T) {
	db := openTestDB(t)
	q := NewSQLiteQueue(db, 0)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testItem("req_1")))
	require.NoError(t, q.Enqueue(ctx, testItem("req_2")))

	deliveries, err := q.Poll(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)

	n, err := q.RecoverExpired(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Recovered items poll again with bumped delivery counts.
	deliveries, err = q.Poll(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	assert.Equal(t, 2, deliveries[0].DeliveryCount)
}

func TestPollWaitsForWork(t *testing.T) {
	db := openTestDB(t)
	q := NewSQLiteQueue(db, time.Minute)
	ctx := context.Background()

	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = q.Enqueue(ctx, testItem("req_late"))
	}()

	start := time.Now()
	deliveries, err := q.Poll(ctx, 1, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Less(t, time.Since(start), 2*time.Second)
}
