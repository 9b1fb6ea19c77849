// Package attendance handles event registration and attendance marking.
//
// Attendance is write-once for the life of a session: once a (event, user)
// pair has been marked, further marks for it are answered locally without a
// network call. The flags are held in memory only and start empty for every
// new identity.
package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dukerupert/eventdesk/internal/api"
	"github.com/dukerupert/eventdesk/internal/auth"
	"github.com/dukerupert/eventdesk/internal/metrics"
	"github.com/dukerupert/eventdesk/internal/model"
)

// Remote is the part of the event service the coordinator talks to.
type Remote interface {
	RegisterForEvent(ctx context.Context, id int64, kind model.RegistrationKind) error
	MarkAttendance(ctx context.Context, eventID, userID int64) error
	ParticipantList(ctx context.Context, eventID int64) ([]model.Participant, error)
}

// Path tells whether a mark was made by the attendee or by the host.
type Path string

const (
	SelfService   Path = "self"
	HostInitiated Path = "host"
)

// Mark describes one attendance mark. Suppressed means no request was sent.
type Mark struct {
	EventID    int64
	UserID     int64
	Path       Path
	Suppressed bool
}

// UserResult is the outcome of one mark within MarkAttendanceForAll.
type UserResult struct {
	UserID int64
	Mark   Mark
	Err    error
}

// RosterEntry is a participant and whether they were marked in this session.
type RosterEntry struct {
	model.Participant
	Attended bool
}

type markKey struct {
	eventID int64
	userID  int64
}

// Coordinator registers users and marks attendance for the current identity.
type Coordinator struct {
	remote  Remote
	logger  *slog.Logger
	metrics *metrics.Metrics
	limit   int

	mu     sync.Mutex
	epoch  uint64
	marked map[markKey]struct{}
	flight singleflight.Group
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithMetrics records attendance marks on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithFanoutLimit bounds concurrent requests in MarkAttendanceForAll.
func WithFanoutLimit(n int) Option {
	return func(c *Coordinator) {
		c.limit = n
	}
}

// New returns a Coordinator backed by remote.
func New(remote Remote, opts ...Option) *Coordinator {
	c := &Coordinator{
		remote: remote,
		logger: slog.Default(),
		marked: make(map[markKey]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "attendance")
	return c
}

// Register signs the current identity up for the event. userID must be the
// identity's own id since the service always registers the caller.
func (c *Coordinator) Register(ctx context.Context, eventID, userID int64, kind model.RegistrationKind) error {
	ident, err := auth.Require(ctx)
	if err != nil {
		return err
	}
	if userID != ident.UserID {
		return fmt.Errorf("register event %d user %d: %w", eventID, userID, model.ErrNotSelf)
	}
	if _, err := model.ParseRegistrationKind(string(kind)); err != nil {
		return fmt.Errorf("register event %d: %w", eventID, err)
	}

	err = c.remote.RegisterForEvent(ctx, eventID, kind)
	if cerr := auth.CheckCurrent(ctx); cerr != nil {
		return cerr
	}
	if err != nil {
		if api.StatusCode(err) != 0 {
			return fmt.Errorf("register event %d as %s: %w: %w", eventID, kind, model.ErrRegistrationRejected, err)
		}
		return fmt.Errorf("register event %d as %s: %w", eventID, kind, err)
	}

	c.logger.Info("registered", "event_id", eventID, "user_id", userID, "kind", kind)
	return nil
}

// MarkAttendance records that userID attended eventID. A pair already marked
// in this session is reported as Suppressed without a network call, and
// concurrent calls for the same pair share a single request.
func (c *Coordinator) MarkAttendance(ctx context.Context, eventID, userID int64) (Mark, error) {
	ident, err := auth.Require(ctx)
	if err != nil {
		return Mark{}, err
	}

	m := Mark{EventID: eventID, UserID: userID, Path: HostInitiated}
	if userID == ident.UserID {
		m.Path = SelfService
	}
	k := markKey{eventID: eventID, userID: userID}

	if c.checkMarked(ident.Epoch, k) {
		return c.suppressed(m), nil
	}

	led := false
	_, err, _ = c.flight.Do(fmt.Sprintf("%d/%d/%d", ident.Epoch, eventID, userID), func() (any, error) {
		led = true
		if c.checkMarked(ident.Epoch, k) {
			led = false
			return nil, nil
		}
		if err := c.remote.MarkAttendance(ctx, eventID, userID); err != nil {
			return nil, err
		}
		if cerr := auth.CheckCurrent(ctx); cerr != nil {
			return nil, cerr
		}
		c.mu.Lock()
		if c.epoch == ident.Epoch {
			c.marked[k] = struct{}{}
		}
		c.mu.Unlock()
		return nil, nil
	})

	if cerr := auth.CheckCurrent(ctx); cerr != nil {
		return Mark{}, cerr
	}
	if err != nil {
		c.metrics.ObserveAttendance(string(m.Path), "failed")
		return m, fmt.Errorf("mark attendance event %d user %d: %w: %w", eventID, userID, model.ErrAttendanceMarkFailed, err)
	}
	if !led {
		return c.suppressed(m), nil
	}

	c.metrics.ObserveAttendance(string(m.Path), "marked")
	c.logger.Info("attendance marked", "event_id", eventID, "user_id", userID, "path", m.Path)
	return m, nil
}

func (c *Coordinator) suppressed(m Mark) Mark {
	m.Suppressed = true
	c.metrics.ObserveAttendance(string(m.Path), "suppressed")
	c.logger.Debug("attendance already marked", "event_id", m.EventID, "user_id", m.UserID)
	return m
}

func (c *Coordinator) checkMarked(epoch uint64, k markKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		c.epoch = epoch
		clear(c.marked)
	}
	_, ok := c.marked[k]
	return ok
}

// MarkOwnAttendance is the self-service path.
func (c *Coordinator) MarkOwnAttendance(ctx context.Context, eventID int64) (Mark, error) {
	ident, err := auth.Require(ctx)
	if err != nil {
		return Mark{}, err
	}
	return c.MarkAttendance(ctx, eventID, ident.UserID)
}

// MarkAttendanceForAll marks every user independently. Results are in the
// order of userIDs; a failure for one user does not affect the others.
func (c *Coordinator) MarkAttendanceForAll(ctx context.Context, eventID int64, userIDs []int64) []UserResult {
	results := make([]UserResult, len(userIDs))
	var g errgroup.Group
	if c.limit > 0 {
		g.SetLimit(c.limit)
	}
	for i, uid := range userIDs {
		g.Go(func() error {
			m, err := c.MarkAttendance(ctx, eventID, uid)
			results[i] = UserResult{UserID: uid, Mark: m, Err: err}
			return nil
		})
	}
	g.Wait()
	return results
}

// IsMarked reports whether the pair has been marked in this session. Flags
// recorded under another identity than the one in ctx are not visible.
func (c *Coordinator) IsMarked(ctx context.Context, eventID, userID int64) bool {
	ident, err := auth.Require(ctx)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != ident.Epoch {
		return false
	}
	_, ok := c.marked[markKey{eventID: eventID, userID: userID}]
	return ok
}

// Roster returns the event's participants with the session's attendance flags.
func (c *Coordinator) Roster(ctx context.Context, eventID int64) ([]RosterEntry, error) {
	ident, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	ps, err := c.remote.ParticipantList(ctx, eventID)
	if cerr := auth.CheckCurrent(ctx); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, fmt.Errorf("roster event %d: %w: %w", eventID, model.ErrLoadFailed, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != ident.Epoch {
		c.epoch = ident.Epoch
		clear(c.marked)
	}
	roster := make([]RosterEntry, len(ps))
	for i, p := range ps {
		_, ok := c.marked[markKey{eventID: eventID, userID: p.ID}]
		roster[i] = RosterEntry{Participant: p, Attended: ok}
	}
	return roster, nil
}
