package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"diningflow/internal/domain"
	"diningflow/internal/intake"
	"diningflow/internal/notify"
	"diningflow/internal/queue"
	"diningflow/internal/search"
	"diningflow/internal/store"
)

// Options bound the worker's behavior per delivery.
type Options struct {
	PoolSize      int
	BatchSize     int
	PollEvery     time.Duration
	PollWait      time.Duration
	SearchLimit   int
	MaxDeliveries int
	SearchTimeout time.Duration
	NotifyTimeout time.Duration
}

// Worker polls the durable queue and runs the fulfillment state
// machine per delivery. It holds no cross-invocation state of its own:
// everything shared lives in the queue and the result store, so any
// number of instances can run against the same database.
type Worker struct {
	queue    queue.Queue
	store    store.Store
	search   search.Client
	notifier notify.Notifier
	opts     Options
	sem      chan struct{}
	wg       sync.WaitGroup
}

func New(q queue.Queue, s store.Store, sc search.Client, n notify.Notifier, opts Options) *Worker {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 8
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = opts.PoolSize
	}
	if opts.PollEvery <= 0 {
		opts.PollEvery = 250 * time.Millisecond
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 5
	}
	if opts.MaxDeliveries <= 0 {
		opts.MaxDeliveries = 3
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 10 * time.Second
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	return &Worker{
		queue:    q,
		store:    s,
		search:   sc,
		notifier: n,
		opts:     opts,
		sem:      make(chan struct{}, opts.PoolSize),
	}
}

// Run polls until ctx is canceled, then drains in-flight deliveries.
// A delivery interrupted before acknowledgement is simply redelivered
// after its visibility timeout; nothing is force-abandoned mid-update.
func (w *Worker) Run(ctx context.Context) {
	t := time.NewTicker(w.opts.PollEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return
		case <-t.C:
			deliveries, err := w.queue.Poll(ctx, w.opts.BatchSize, w.opts.PollWait)
			if err != nil {
				if !errors.Is(err, queue.ErrEmpty) && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("poll queue")
				}
				continue
			}
			for _, d := range deliveries {
				w.sem <- struct{}{}
				w.wg.Add(1)
				go func(d domain.Delivery) {
					defer func() { <-w.sem; w.wg.Done() }()
					// Detached from Run's cancellation so shutdown lets
					// in-flight items reach acknowledgement.
					w.Process(context.WithoutCancel(ctx), d)
				}(d)
			}
		}
	}
}

// Process runs the state machine for one delivery:
// decode -> idempotency check -> PENDING row -> search -> terminal
// status -> notify -> ack. Ack happens only after the Result row is
// terminal, so a crash anywhere earlier causes redelivery, not loss.
func (w *Worker) Process(ctx context.Context, d domain.Delivery) {
	logger := log.With().
		Str("request_id", d.Item.RequestID).
		Int("delivery_count", d.DeliveryCount).
		Logger()

	req, err := intake.Decode(d.Item.Body)
	if err != nil {
		logger.Error().Err(err).Msg("malformed work item, draining as failed")
		w.drainFailed(ctx, domain.Request{RequestID: d.Item.RequestID}, d, logger)
		return
	}

	// Redelivery-safety guard: a terminal row means a previous delivery
	// already finished; settle the duplicate and do nothing else.
	existing, err := w.store.Get(ctx, req.RequestID)
	switch {
	case err == nil && existing.Status.Terminal():
		logger.Debug().Str("status", string(existing.Status)).Msg("duplicate delivery of settled request")
		w.ack(ctx, d, logger)
		return
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		logger.Error().Err(err).Msg("read result row, leaving for redelivery")
		return
	case errors.Is(err, domain.ErrNotFound):
		created, err := w.store.CreateIfAbsent(ctx, req)
		if err != nil {
			logger.Error().Err(err).Msg("create result row, leaving for redelivery")
			return
		}
		if !created {
			// A concurrent delivery won the create race; re-read and
			// defer to it if it already finished.
			existing, err = w.store.Get(ctx, req.RequestID)
			if err == nil && existing.Status.Terminal() {
				w.ack(ctx, d, logger)
				return
			}
		}
	}

	sctx, cancel := context.WithTimeout(ctx, w.opts.SearchTimeout)
	candidates, err := w.search.Find(sctx, req.Cuisine, req.Location, w.opts.SearchLimit)
	cancel()
	if err != nil {
		if domain.IsTerminal(err) {
			logger.Error().Err(err).Msg("search rejected query, draining as failed")
			w.drainFailed(ctx, req, d, logger)
			return
		}
		if d.DeliveryCount >= w.opts.MaxDeliveries {
			logger.Error().Err(err).Int("max_deliveries", w.opts.MaxDeliveries).
				Msg("retries exhausted, draining as failed")
			w.drainFailed(ctx, req, d, logger)
			return
		}
		logger.Warn().Err(err).Msg("transient search failure, leaving for redelivery")
		return
	}

	if err := w.store.UpdateStatus(ctx, req.RequestID, domain.StatusPending, domain.StatusCompleted, candidates, time.Now().UTC()); err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			// Lost the completion race to a concurrent delivery.
			w.ack(ctx, d, logger)
			return
		}
		logger.Error().Err(err).Msg("complete result row, leaving for redelivery")
		return
	}
	logger.Info().Int("candidates", len(candidates)).Msg("request fulfilled")

	w.sendNotification(ctx, req, candidates, logger)
	w.ack(ctx, d, logger)
}

// drainFailed marks the request FAILED and settles the delivery: the
// poison-message path. A lost race to COMPLETED is fine, the item is
// settled either way.
func (w *Worker) drainFailed(ctx context.Context, req domain.Request, d domain.Delivery, logger zerolog.Logger) {
	if req.RequestID != "" {
		if _, err := w.store.CreateIfAbsent(ctx, req); err != nil {
			logger.Error().Err(err).Msg("create result row for failure")
		}
		err := w.store.UpdateStatus(ctx, req.RequestID, domain.StatusPending, domain.StatusFailed, nil, time.Now().UTC())
		if err != nil && !errors.Is(err, domain.ErrStatusConflict) {
			logger.Error().Err(err).Msg("fail result row, leaving for redelivery")
			return
		}
	}
	w.ack(ctx, d, logger)
}

// sendNotification delivers the recommendation. Failure is logged and
// left to the out-of-band retry sweep; it never reopens fulfillment.
func (w *Worker) sendNotification(ctx context.Context, req domain.Request, candidates []string, logger zerolog.Logger) {
	subject, body, err := notify.Render(req, candidates)
	if err != nil {
		logger.Error().Err(err).Msg("render notification")
		return
	}
	nctx, cancel := context.WithTimeout(ctx, w.opts.NotifyTimeout)
	defer cancel()
	if err := w.notifier.Send(nctx, req.ContactAddress, subject, body); err != nil {
		logger.Warn().Err(err).Msg("notification failed, leaving for retry sweep")
		return
	}
	if err := w.store.MarkNotified(ctx, req.RequestID); err != nil {
		logger.Warn().Err(err).Msg("mark notified")
	}
}

func (w *Worker) ack(ctx context.Context, d domain.Delivery, logger zerolog.Logger) {
	if err := w.queue.Ack(ctx, d.Handle); err != nil {
		if errors.Is(err, domain.ErrStaleHandle) {
			// Visibility expired while we worked; the redelivery will
			// hit the idempotency guard and settle itself.
			logger.Debug().Msg("ack with stale handle")
			return
		}
		logger.Error().Err(err).Msg("ack delivery")
	}
}
