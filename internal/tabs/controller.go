// Package tabs implements the five session operations as short protocols
// over the session store and the window backend: start, new, next, prev,
// end. The controller reads live windows, reconciles stored state against
// them, executes the transition, and persists the reconciled result.
package tabs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/asheshgoplani/tabdeck/internal/journal"
	"github.com/asheshgoplani/tabdeck/internal/logging"
	"github.com/asheshgoplani/tabdeck/internal/store"
	"github.com/asheshgoplani/tabdeck/internal/wm"
)

var tabsLog = logging.ForComponent(logging.CompTabs)

var (
	// ErrNoSession is returned by New when no session has been started.
	ErrNoSession = errors.New("no active session")

	// ErrDiscoveryTimeout is returned when a launched terminal window
	// never appeared within the bounded poll. No state has been mutated;
	// the operation is safe to retry.
	ErrDiscoveryTimeout = errors.New("timed out waiting for terminal window")
)

// PollPolicy bounds the window-discovery poll: Attempts checks spaced
// Interval apart.
type PollPolicy struct {
	Attempts int
	Interval time.Duration
}

// DefaultPollPolicy is 50 attempts at 100ms spacing, a 5s ceiling.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Attempts: 50, Interval: 100 * time.Millisecond}
}

// Controller drives the session state machine. One controller per command
// invocation; operations are assumed serialized (see the concurrency notes
// on the session file in the store package).
type Controller struct {
	store   *store.Store
	backend wm.Backend
	poll    PollPolicy
	journal *journal.Journal
	log     *slog.Logger
}

// New returns a controller over the given store and backend.
func New(st *store.Store, backend wm.Backend, poll PollPolicy) *Controller {
	if poll.Attempts <= 0 || poll.Interval <= 0 {
		poll = DefaultPollPolicy()
	}
	return &Controller{
		store:   st,
		backend: backend,
		poll:    poll,
		log:     tabsLog,
	}
}

// AttachJournal enables best-effort operation recording. A nil journal
// disables it.
func (c *Controller) AttachJournal(j *journal.Journal) {
	c.journal = j
}

// Start begins a new session: any existing session is ended first to
// reclaim windows orphaned by a crash, then one terminal is launched and
// its window becomes the sole, active tab.
func (c *Controller) Start(ctx context.Context) (wm.WindowID, error) {
	if c.store.Exists() {
		c.log.Info("ending_previous_session")
		if err := c.End(); err != nil {
			return 0, err
		}
	}

	if err := c.backend.LaunchTerminal(); err != nil {
		return 0, fmt.Errorf("launch terminal: %w", err)
	}

	id, err := c.waitForNewWindow(ctx, wm.NewIDSet(nil))
	if err != nil {
		return 0, err
	}

	rec := store.Record{Windows: []wm.WindowID{id}, Active: &id}
	if _, err := c.store.Save(rec); err != nil {
		return 0, err
	}

	c.log.Info("session_started", slog.String("window", id.String()))
	c.record("start", id, 1)
	return id, nil
}

// NewTab adds a tab to the running session: capture a baseline of live
// windows, launch a terminal, and poll for a window outside the baseline.
// The previously active window is unmapped best-effort before persisting;
// its failure must not desynchronize the record from the backend.
func (c *Controller) NewTab(ctx context.Context) (wm.WindowID, error) {
	baseline := wm.NewIDSet(c.backend.Windows())
	rec := c.store.Load(baseline)
	if len(rec.Windows) == 0 {
		return 0, ErrNoSession
	}
	oldActive := rec.Active

	if err := c.backend.LaunchTerminal(); err != nil {
		return 0, fmt.Errorf("launch terminal: %w", err)
	}

	id, err := c.waitForNewWindow(ctx, baseline)
	if err != nil {
		return 0, err
	}

	if oldActive != nil {
		if err := c.backend.Hide(*oldActive); err != nil {
			c.log.Warn("hide_failed",
				slog.String("window", oldActive.String()),
				slog.String("error", err.Error()))
		}
	}

	rec.Windows = append(rec.Windows, id)
	rec.Active = &id
	saved, err := c.store.Save(rec)
	if err != nil {
		return 0, err
	}

	c.log.Info("tab_created", slog.String("window", id.String()))
	c.record("new", id, len(saved.Windows))
	return id, nil
}

// Next cycles to the following tab, wrapping at the end.
func (c *Controller) Next() (store.Record, error) {
	return c.cycle("next", 1)
}

// Prev cycles to the preceding tab, wrapping at the start.
func (c *Controller) Prev() (store.Record, error) {
	return c.cycle("prev", -1)
}

// cycle performs the visibility swap. Order matters: hide the old window,
// map the target, then raise/focus it, so the backend is never left with
// two tabs exposed at once.
func (c *Controller) cycle(op string, step int) (store.Record, error) {
	rec := c.store.Load(nil)
	n := len(rec.Windows)
	if n < 2 {
		return rec, nil
	}

	// Normalization guarantees membership; index 0 covers corrupted state.
	cur := 0
	if rec.Active != nil {
		for i, id := range rec.Windows {
			if id == *rec.Active {
				cur = i
				break
			}
		}
	}
	target := rec.Windows[((cur+step)%n+n)%n]

	if rec.Active != nil {
		if err := c.backend.Hide(*rec.Active); err != nil {
			c.log.Warn("hide_failed",
				slog.String("window", rec.Active.String()),
				slog.String("error", err.Error()))
		}
	}
	if err := c.backend.Show(target); err != nil {
		c.log.Warn("show_failed",
			slog.String("window", target.String()),
			slog.String("error", err.Error()))
	}
	if err := c.backend.Focus(target); err != nil {
		c.log.Warn("focus_failed",
			slog.String("window", target.String()),
			slog.String("error", err.Error()))
	}

	rec.Active = &target
	saved, err := c.store.Save(rec)
	if err != nil {
		return saved, err
	}

	c.record(op, target, n)
	return saved, nil
}

// End closes every tab window and deletes the session record. Each close
// is independent and best-effort. Idempotent: with no session present it
// is a successful no-op.
func (c *Controller) End() error {
	rec := c.store.Load(nil)
	for _, id := range rec.Windows {
		if err := c.backend.Close(id); err != nil {
			c.log.Warn("close_failed",
				slog.String("window", id.String()),
				slog.String("error", err.Error()))
		}
	}
	if err := c.store.Delete(); err != nil {
		return err
	}

	c.log.Info("session_ended", slog.Int("windows", len(rec.Windows)))
	c.record("end", 0, 0)
	return nil
}

// waitForNewWindow polls the backend until it reports a window outside
// baseline. The limiter admits the first check immediately, then paces the
// rest at the configured interval.
func (c *Controller) waitForNewWindow(ctx context.Context, baseline wm.IDSet) (wm.WindowID, error) {
	limiter := rate.NewLimiter(rate.Every(c.poll.Interval), 1)
	for attempt := 0; attempt < c.poll.Attempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return 0, err
		}
		for _, id := range c.backend.Windows() {
			if !baseline.Contains(id) {
				c.log.Debug("window_discovered",
					slog.String("window", id.String()),
					slog.Int("attempt", attempt+1))
				return id, nil
			}
		}
	}
	return 0, ErrDiscoveryTimeout
}

// record appends to the operation journal when one is attached.
func (c *Controller) record(op string, window wm.WindowID, tabs int) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Append(journal.Entry{Op: op, Window: window, Tabs: tabs}); err != nil {
		c.log.Debug("journal_append_failed", slog.String("error", err.Error()))
	}
}
