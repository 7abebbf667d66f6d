package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"diningflow/internal/domain"
	"diningflow/internal/intake"
	"diningflow/internal/queue"
	"diningflow/internal/store"
)

// enqueueAttempts bounds the producer-side retry: a validated Request
// must not be dropped just because the queue hiccuped once.
const enqueueAttempts = 3

type Server struct {
	r         *chi.Mux
	validator *intake.Validator
	queue     queue.Queue
	store     store.Store
}

func NewServer(v *intake.Validator, q queue.Queue, s store.Store) http.Handler {
	return NewServerWithDebug(v, q, s, false)
}

func NewServerWithDebug(v *intake.Validator, q queue.Queue, s store.Store, enableDebug bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	srv := &Server{r: r, validator: v, queue: q, store: s}

	r.Get("/health", srv.health)
	r.Get("/metrics", srv.metrics)
	r.Post("/api/requests", srv.submitRequest)
	r.Get("/api/requests/{id}", srv.getRequest)

	if enableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("diningflow_up 1\n"))
}

type submitReq struct {
	Slots map[string]string `json:"slots"`
}

type submitResp struct {
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

type errorResp struct {
	Error string `json:"error"`
	Slot  string `json:"slot,omitempty"`
}

func (s *Server) submitRequest(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	if len(req.Slots) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "slots is required"})
		return
	}

	validated, err := s.validator.Validate(req.Slots)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, errorResp{Error: verr.Error(), Slot: verr.Slot})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}

	item, err := intake.Encode(validated)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}

	if err := s.enqueueWithRetry(r, item); err != nil {
		log.Error().Err(err).Str("request_id", item.RequestID).Msg("enqueue failed after retries")
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: "request could not be queued, please retry"})
		return
	}

	msg := fmt.Sprintf("Got it! We'll email %s a list of %s places in %s around %s for %d people.",
		validated.ContactAddress, validated.Cuisine, validated.Location, validated.Time, validated.PartySize)
	writeJSON(w, http.StatusAccepted, submitResp{RequestID: item.RequestID, Message: msg})
}

// enqueueWithRetry retries with exponential backoff. Enqueue is
// idempotent per request id, so retrying an ambiguous failure is safe.
func (s *Server) enqueueWithRetry(r *http.Request, item domain.WorkItem) error {
	var err error
	for attempt := 0; attempt < enqueueAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-r.Context().Done():
				return r.Context().Err()
			case <-time.After(time.Duration(1<<(attempt-1)) * 100 * time.Millisecond):
			}
		}
		if err = s.queue.Enqueue(r.Context(), item); err == nil {
			return nil
		}
	}
	return err
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResp{Error: "not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
