// Package approval drives the pending-event workflow: it loads the events
// awaiting a decision, annotates each with the remote availability signal,
// and applies approve/reject transitions.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/eventdesk/internal/auth"
	"github.com/dukerupert/eventdesk/internal/metrics"
	"github.com/dukerupert/eventdesk/internal/model"
)

// Remote is the part of the event service the coordinator talks to.
type Remote interface {
	ListPendingEvents(ctx context.Context) ([]model.Event, error)
	EventAvailability(ctx context.Context, id int64) (model.Availability, error)
	DecideEvent(ctx context.Context, id int64, outcome model.EventStatus) error
}

// PendingEvent is a pending event annotated with its availability. CheckErr
// is set when the availability query failed and Unavailable was substituted.
type PendingEvent struct {
	model.Event
	Availability model.Availability
	CheckErr     error
}

// Coordinator holds the pending list and decisions for the current identity.
type Coordinator struct {
	remote  Remote
	logger  *slog.Logger
	metrics *metrics.Metrics
	limit   int

	mu      sync.Mutex
	epoch   uint64
	pending []PendingEvent
	decided map[int64]model.EventStatus
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithMetrics records availability checks on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithFanoutLimit bounds the number of concurrent availability queries.
// Zero or negative means one goroutine per event.
func WithFanoutLimit(n int) Option {
	return func(c *Coordinator) {
		c.limit = n
	}
}

// New returns a Coordinator backed by remote.
func New(remote Remote, opts ...Option) *Coordinator {
	c := &Coordinator{
		remote:  remote,
		logger:  slog.Default(),
		decided: make(map[int64]model.EventStatus),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "approval")
	return c
}

// LoadPending fetches the pending events and resolves availability for each
// of them. It returns only after every availability query has settled. A
// failed query marks that one event Unavailable; a failed list fetch is
// ErrLoadFailed and leaves the working set untouched.
func (c *Coordinator) LoadPending(ctx context.Context) ([]PendingEvent, error) {
	ident, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}

	events, err := c.remote.ListPendingEvents(ctx)
	if cerr := auth.CheckCurrent(ctx); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, fmt.Errorf("load pending: %w: %w", model.ErrLoadFailed, err)
	}

	result := make([]PendingEvent, len(events))
	var g errgroup.Group
	if c.limit > 0 {
		g.SetLimit(c.limit)
	}
	for i, e := range events {
		result[i].Event = e
		g.Go(func() error {
			result[i].Availability, result[i].CheckErr = c.checkAvailability(ctx, e.ID)
			return nil
		})
	}
	g.Wait()

	if cerr := auth.CheckCurrent(ctx); cerr != nil {
		return nil, cerr
	}

	c.mu.Lock()
	c.syncLocked(ident.Epoch)
	c.pending = slices.Clone(result)
	c.mu.Unlock()

	c.logger.Debug("pending events loaded", "count", len(result))
	return result, nil
}

func (c *Coordinator) checkAvailability(ctx context.Context, id int64) (model.Availability, error) {
	a, err := c.remote.EventAvailability(ctx, id)
	if err != nil {
		err = fmt.Errorf("event %d: %w: %w", id, model.ErrAvailabilityCheckFailed, err)
		c.logger.Warn("availability check failed, treating as unavailable", "event_id", id, "error", err)
		c.metrics.ObserveAvailability("failed")
		return model.Unavailable, err
	}
	if a == model.Available {
		c.metrics.ObserveAvailability("available")
	} else {
		c.metrics.ObserveAvailability("unavailable")
	}
	return a, nil
}

// Decide applies outcome to the pending event id and drops it from the
// working set. The entry leaves the set before the remote call so that a
// concurrent second Decide sees ErrNotFound; it is put back if the call fails.
func (c *Coordinator) Decide(ctx context.Context, id int64, outcome model.EventStatus) error {
	ident, err := auth.Require(ctx)
	if err != nil {
		return err
	}
	if !outcome.Terminal() {
		return fmt.Errorf("decide %d: %w: outcome %q", id, model.ErrInvalidTransition, outcome)
	}

	c.mu.Lock()
	c.syncLocked(ident.Epoch)
	idx := slices.IndexFunc(c.pending, func(p PendingEvent) bool { return p.ID == id })
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("decide %d: %w", id, model.ErrNotFound)
	}
	entry := c.pending[idx]
	from := entry.Status
	if st, ok := c.decided[id]; ok {
		from = st
	}
	if !model.CanTransition(from, outcome) {
		c.mu.Unlock()
		return fmt.Errorf("decide %d: %w: %s -> %s", id, model.ErrInvalidTransition, from, outcome)
	}
	c.pending = slices.Delete(c.pending, idx, idx+1)
	c.mu.Unlock()

	err = c.remote.DecideEvent(ctx, id, outcome)
	if cerr := auth.CheckCurrent(ctx); cerr != nil {
		return cerr
	}
	if err != nil {
		c.mu.Lock()
		// A LoadPending that finished meanwhile may already hold the entry.
		present := slices.ContainsFunc(c.pending, func(p PendingEvent) bool { return p.ID == id })
		if c.epoch == ident.Epoch && !present {
			c.pending = slices.Insert(c.pending, min(idx, len(c.pending)), entry)
		}
		c.mu.Unlock()
		return fmt.Errorf("decide %d: %w", id, err)
	}

	c.mu.Lock()
	if c.epoch == ident.Epoch {
		c.decided[id] = outcome
	}
	c.mu.Unlock()

	c.logger.Info("event decided", "event_id", id, "status", outcome)
	return nil
}

// syncLocked drops state owned by an earlier identity.
func (c *Coordinator) syncLocked(epoch uint64) {
	if c.epoch == epoch {
		return
	}
	c.epoch = epoch
	c.pending = nil
	clear(c.decided)
}

// currentLocked reports whether ctx carries the identity that owns the state.
// Callers must hold c.mu.
func (c *Coordinator) currentLocked(ctx context.Context) bool {
	ident, err := auth.Require(ctx)
	return err == nil && ident.Epoch == c.epoch
}

// Pending returns a copy of the working set. It is empty when ctx belongs to
// a different identity than the one that loaded it.
func (c *Coordinator) Pending(ctx context.Context) []PendingEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(ctx) {
		return nil
	}
	return slices.Clone(c.pending)
}

// Availability returns the availability of every event in the working set,
// keyed by event id, under the same identity rule as Pending.
func (c *Coordinator) Availability(ctx context.Context) map[int64]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(ctx) {
		return map[int64]bool{}
	}
	m := make(map[int64]bool, len(c.pending))
	for _, p := range c.pending {
		m[p.ID] = bool(p.Availability)
	}
	return m
}

// Outcome reports the decision recorded for id by the identity in ctx.
func (c *Coordinator) Outcome(ctx context.Context, id int64) (model.EventStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(ctx) {
		return "", false
	}
	st, ok := c.decided[id]
	return st, ok
}

func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	clear(c.decided)
}
