package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"diningflow/internal/notify"
	"diningflow/internal/queue"
	"diningflow/internal/store"
)

const sweepBatch = 50

// Service runs the pipeline's periodic maintenance on cron schedules:
// returning expired in-flight deliveries to the queue, and retrying
// notifications for completed requests whose message never went out.
type Service struct {
	queue    queue.Queue
	store    store.Store
	notifier notify.Notifier
	cron     *cron.Cron

	recoverExpr string
	notifyExpr  string
}

func NewService(q queue.Queue, s store.Store, n notify.Notifier, recoverExpr, notifyExpr string) *Service {
	return &Service{
		queue:       q,
		store:       s,
		notifier:    n,
		cron:        cron.New(),
		recoverExpr: recoverExpr,
		notifyExpr:  notifyExpr,
	}
}

func (s *Service) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.recoverExpr, func() { s.recoverExpired(ctx) }); err != nil {
		return fmt.Errorf("recover schedule %q: %w", s.recoverExpr, err)
	}
	if _, err := s.cron.AddFunc(s.notifyExpr, func() { s.retryNotifications(ctx) }); err != nil {
		return fmt.Errorf("notify retry schedule %q: %w", s.notifyExpr, err)
	}
	s.cron.Start()
	log.Info().Str("recover", s.recoverExpr).Str("notify_retry", s.notifyExpr).Msg("maintenance service started")
	return nil
}

// Stop halts scheduling; running sweeps finish on their own.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Service) recoverExpired(ctx context.Context) {
	n, err := s.queue.RecoverExpired(ctx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("recover expired deliveries")
		return
	}
	if n > 0 {
		log.Info().Int("recovered", n).Msg("returned expired deliveries to queue")
	}
}

func (s *Service) retryNotifications(ctx context.Context) {
	results, err := s.store.ListUnnotified(ctx, sweepBatch)
	if err != nil {
		log.Error().Err(err).Msg("list unnotified results")
		return
	}
	for _, r := range results {
		subject, body, err := notify.Render(r.Request, r.Candidates)
		if err != nil {
			log.Error().Err(err).Str("request_id", r.RequestID).Msg("render retry notification")
			continue
		}
		if err := s.notifier.Send(ctx, r.Request.ContactAddress, subject, body); err != nil {
			log.Warn().Err(err).Str("request_id", r.RequestID).Msg("retry notification failed")
			continue
		}
		if err := s.store.MarkNotified(ctx, r.RequestID); err != nil {
			log.Warn().Err(err).Str("request_id", r.RequestID).Msg("mark notified after retry")
			continue
		}
		log.Info().Str("request_id", r.RequestID).Msg("notification retried successfully")
	}
}
