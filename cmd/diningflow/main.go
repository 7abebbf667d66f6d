package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"diningflow/internal/api"
	"diningflow/internal/config"
	"diningflow/internal/intake"
	"diningflow/internal/notify"
	"diningflow/internal/queue"
	"diningflow/internal/scheduler"
	"diningflow/internal/search"
	"diningflow/internal/store"
	"diningflow/internal/worker"
)

func main() {
	var (
		addr    = flag.String("addr", ":8080", "HTTP bind address")
		dbPath  = flag.String("db", "diningflow.db", "SQLite DB path")
		workers = flag.Int("workers", 8, "number of worker goroutines")
		poll    = flag.Duration("poll", 250*time.Millisecond, "poll interval for queue")
		debug   = flag.Bool("debug", false, "enable pprof endpoints")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", *dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := queue.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure queue schema")
	}
	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure store schema")
	}

	q := queue.NewSQLiteQueue(db, cfg.VisibilityTimeout)
	st := store.NewSQLiteStore(db)
	if n, err := q.RecoverExpired(context.Background(), time.Now()); err == nil && n > 0 {
		log.Info().Int("recovered", n).Msg("recovered expired deliveries")
	}

	searcher := search.NewOpenSearch(cfg.SearchURL, cfg.SearchIndex, cfg.SearchTimeout)
	notifier := notify.NewRelay(cfg.NotifyURL, cfg.NotifyFrom, cfg.NotifyTimeout)
	validator := intake.NewValidator(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	w := worker.New(q, st, searcher, notifier, worker.Options{
		PoolSize:      *workers,
		PollEvery:     *poll,
		PollWait:      cfg.PollWait,
		SearchLimit:   cfg.SearchLimit,
		MaxDeliveries: cfg.MaxDeliveries,
		SearchTimeout: cfg.SearchTimeout,
		NotifyTimeout: cfg.NotifyTimeout,
	})
	workerDone := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(workerDone)
	}()

	maint := scheduler.NewService(q, st, notifier, cfg.RecoverCron, cfg.NotifyRetryCron)
	if err := maint.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start maintenance service")
	}

	srv := &http.Server{Addr: *addr, Handler: api.NewServerWithDebug(validator, q, st, *debug)}
	go func() {
		log.Info().Str("addr", *addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	maint.Stop()
	<-workerDone

	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}
