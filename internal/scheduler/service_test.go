package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"diningflow/internal/domain"
	"diningflow/internal/queue"
	"diningflow/internal/store"
)

type recordingNotifier struct {
	err   error
	calls int
	to    []string
}

func (n *recordingNotifier) Send(ctx context.Context, addr, subject, htmlBody string) error {
	n.calls++
	n.to = append(n.to, addr)
	return n.err
}

func newTestService(t *testing.T, n *recordingNotifier) (*Service, queue.Queue, store.Store) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "sched.db") + "?_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, queue.EnsureSchema(db))
	require.NoError(t, store.EnsureSchema(db))

	q := queue.NewSQLiteQueue(db, 0)
	st := store.NewSQLiteStore(db)
	return NewService(q, st, n, "* * * * *", "* * * * *"), q, st
}

func TestRecoverExpiredSweep(t *testing.T) {
	svc, q, _ := newTestService(t, &recordingNotifier{})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.WorkItem{
		RequestID: "req_1", Body: []byte(`{}`), EnqueuedAt: time.Now().UTC(),
	}))
	_, err := q.Poll(ctx, 1, 0)
	require.NoError(t, err)

	// Visibility timeout is zero, so the unacked delivery is expired.
	svc.recoverExpired(ctx)

	deliveries, err := q.Poll(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, 2, deliveries[0].DeliveryCount)
}

func TestNotificationRetrySweep(t *testing.T) {
	n := &recordingNotifier{}
	svc, _, st := newTestService(t, n)
	ctx := context.Background()

	req := domain.Request{
		RequestID:      "req_1",
		Cuisine:        "japanese",
		Location:       "Manhattan",
		PartySize:      2,
		Date:           "2026-08-26",
		Time:           "19:00",
		ContactAddress: "a@b.com",
		CreatedAt:      time.Now().UTC(),
	}
	_, err := st.CreateIfAbsent(ctx, req)
	require.NoError(t, err)
	require.NoError(t, st.UpdateStatus(ctx, "req_1", domain.StatusPending, domain.StatusCompleted, []string{"r1"}, time.Now().UTC()))

	svc.retryNotifications(ctx)

	require.Equal(t, 1, n.calls)
	assert.Equal(t, []string{"a@b.com"}, n.to)
	r, err := st.Get(ctx, "req_1")
	require.NoError(t, err)
	assert.True(t, r.Notified)

	// Nothing left to retry.
	svc.retryNotifications(ctx)
	assert.Equal(t, 1, n.calls)
}

func TestNotificationRetrySweepKeepsFailuresPending(t *testing.T) {
	n := &recordingNotifier{err: errors.New("relay down")}
	svc, _, st := newTestService(t, n)
	ctx := context.Background()

	req := domain.Request{
		RequestID:      "req_1",
		Cuisine:        "japanese",
		Location:       "Manhattan",
		PartySize:      2,
		Date:           "2026-08-26",
		Time:           "19:00",
		ContactAddress: "a@b.com",
		CreatedAt:      time.Now().UTC(),
	}
	_, err := st.CreateIfAbsent(ctx, req)
	require.NoError(t, err)
	require.NoError(t, st.UpdateStatus(ctx, "req_1", domain.StatusPending, domain.StatusCompleted, nil, time.Now().UTC()))

	svc.retryNotifications(ctx)

	r, err := st.Get(ctx, "req_1")
	require.NoError(t, err)
	assert.False(t, r.Notified, "stays eligible for the next sweep")
}

func TestStartRejectsBadCron(t *testing.T) {
	svc, _, _ := newTestService(t, &recordingNotifier{})
	svc.recoverExpr = "not a cron"
	err := svc.Start(context.Background())
	require.Error(t, err)
}
