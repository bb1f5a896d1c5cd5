// Package scheduler sweeps pending resources through the ingestion pipeline
// on a fixed interval and on demand.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/learnmate/internal/apperr"
	"github.com/starford/learnmate/internal/models"
	"github.com/starford/learnmate/internal/store"
)

// DefaultInterval is the time between timed sweeps.
const DefaultInterval = time.Minute

// Event kinds passed to the EventFunc.
const (
	EventProcessed = "resource.processed"
	EventFailed    = "resource.failed"
)

// Store is the slice of the relational store the scheduler needs.
type Store interface {
	PendingResources(ctx context.Context) ([]models.Resource, error)
	SetResourceStatus(ctx context.Context, id int64, from, to models.ResourceStatus, errMsg string) error
	GetResource(ctx context.Context, id int64) (*models.Resource, error)
}

// Ingester processes one resource.
type Ingester interface {
	Ingest(ctx context.Context, r *models.Resource) error
}

// Discarder is implemented by ingesters that can take back the chunks of a
// resource they ingested.
type Discarder interface {
	Discard(ctx context.Context, r *models.Resource) error
}

// EventFunc is called after each committed status transition.
type EventFunc func(kind string, r models.Resource)

// Result summarises one sweep.
type Result struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Total is the number of resources that changed state.
func (r Result) Total() int { return r.Processed + r.Failed }

// Scheduler owns the sweep loop. Sweeps never overlap: a manual sweep waits
// for a running timed sweep and vice versa.
type Scheduler struct {
	store    Store
	ingester Ingester
	interval time.Duration
	onEvent  EventFunc
	logger   *slog.Logger

	mu sync.Mutex // serializes sweeps
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the time between timed sweeps.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithEventFunc registers a callback for status transitions.
func WithEventFunc(fn EventFunc) Option {
	return func(s *Scheduler) { s.onEvent = fn }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l.With("component", "scheduler") }
}

// New creates a Scheduler. It does nothing until Run or Sweep is called.
func New(st Store, ing Ingester, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    st,
		ingester: ing,
		interval: DefaultInterval,
		logger:   slog.Default().With("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the configured sweep interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler: started", slog.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler: sweep failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep ingests every pending resource in creation order and records each
// outcome as soon as it is known. One resource failing does not stop the
// sweep. Resources that are not pending are never touched. When ctx is
// cancelled the sweep stops and the remaining resources stay pending.
func (s *Scheduler) Sweep(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res Result
	pending, err := s.store.PendingResources(ctx)
	if err != nil {
		return res, err
	}
	if len(pending) == 0 {
		return res, nil
	}
	s.logger.Info("sweep: started", slog.Int("pending", len(pending)))

	for i := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r := pending[i]

		ingestErr := s.ingester.Ingest(ctx, &r)
		if ingestErr != nil && ctx.Err() != nil {
			// Interrupted, not failed: leave it for the next sweep.
			return res, ctx.Err()
		}

		to, msg, kind := models.StatusProcessed, "", EventProcessed
		if ingestErr != nil {
			to, msg, kind = models.StatusError, ingestErr.Error(), EventFailed
		}
		if err := s.store.SetResourceStatus(ctx, r.ID, models.StatusPending, to, msg); err != nil {
			if errors.Is(err, store.ErrStatusChanged) {
				s.logger.Warn("sweep: resource changed during processing", slog.Int64("resource_id", r.ID))
				if ingestErr == nil {
					s.compensate(ctx, &r)
				}
			} else {
				s.logger.Error("sweep: record status failed",
					slog.Int64("resource_id", r.ID),
					slog.String("error", err.Error()))
			}
			continue
		}
		r.Status, r.ErrorMessage = to, msg

		if ingestErr != nil {
			res.Failed++
			s.logger.Warn("sweep: resource failed",
				slog.Int64("resource_id", r.ID),
				slog.String("error", msg))
		} else {
			res.Processed++
			s.logger.Info("sweep: resource processed", slog.Int64("resource_id", r.ID))
		}
		if s.onEvent != nil {
			s.onEvent(kind, r)
		}
	}

	s.logger.Info("sweep: finished",
		slog.Int("processed", res.Processed),
		slog.Int("failed", res.Failed))
	return res, nil
}

// compensate removes the chunks of a resource whose ingestion committed after
// the resource was deleted or left the pending state. Chunks of a resource
// that another sweep already marked processed are kept.
func (s *Scheduler) compensate(ctx context.Context, r *models.Resource) {
	d, ok := s.ingester.(Discarder)
	if !ok {
		return
	}
	current, err := s.store.GetResource(ctx, r.ID)
	switch {
	case err == nil && current.Status == models.StatusProcessed:
		return
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		s.logger.Error("sweep: lookup before discard failed",
			slog.Int64("resource_id", r.ID),
			slog.String("error", err.Error()))
		return
	}
	if err := d.Discard(ctx, r); err != nil {
		s.logger.Error("sweep: discard chunks failed",
			slog.Int64("resource_id", r.ID),
			slog.String("error", err.Error()))
		return
	}
	s.logger.Info("sweep: discarded chunks of changed resource", slog.Int64("resource_id", r.ID))
}
