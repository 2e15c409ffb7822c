// Package unlock manages a user's multi-select of locked leads and spends
// credits to unlock them through the backend.
package unlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/backend"
	"github.com/sells-group/leadgate/internal/entitlement"
	"github.com/sells-group/leadgate/internal/metrics"
	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/notify"
)

// Defaults for Config.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultSettleDelay = 500 * time.Millisecond
)

// User-facing messages.
const (
	MsgEmptySelection = "Please select properties to unlock"
	MsgFailed         = "Failed to unlock properties"
	MsgTimeout        = "Unlock timed out. Please try again"
)

var (
	// ErrEmptySelection is returned when Unlock is called with nothing selected.
	ErrEmptySelection = eris.New("unlock: no properties selected")
	// ErrUnlockInProgress is returned while another unlock is in flight.
	ErrUnlockInProgress = eris.New("unlock: already in progress")
	// ErrTimeout is returned when the backend did not answer in time. The
	// selection is kept so the user can retry.
	ErrTimeout = eris.New("unlock: backend timed out")
)

// InsufficientCreditsError reports a selection larger than the balance.
type InsufficientCreditsError struct {
	Need int
	Have int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("Insufficient credits. Need %d, have %d", e.Need, e.Have)
}

// Shortfall is how many more credits the selection needs.
func (e *InsufficientCreditsError) Shortfall() int {
	return e.Need - entitlement.Spendable(e.Have)
}

// FailedError wraps a backend failure. Message is what the user was shown.
type FailedError struct {
	Message string
	Err     error
}

func (e *FailedError) Error() string { return e.Message + ": " + e.Err.Error() }
func (e *FailedError) Unwrap() error { return e.Err }

// Unlocker is the slice of the backend the coordinator writes through.
type Unlocker interface {
	UnlockLeads(ctx context.Context, userID string, leadIDs []string) error
}

// Phase is the coordinator's unlock state.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseUnlocking Phase = "unlocking"
)

// Config tunes the unlock workflow.
type Config struct {
	// Timeout bounds the backend call.
	Timeout time.Duration
	// SettleDelay is waited after a successful unlock before reloading.
	SettleDelay time.Duration
}

// ReloadFunc reloads leads, entitlements and credits after an unlock.
type ReloadFunc func(ctx context.Context) error

// Snapshot is a consistent copy of the coordinator state.
type Snapshot struct {
	Selected     []string `json:"selected"`
	Count        int      `json:"count"`
	Cost         int      `json:"cost"`
	Available    int      `json:"available"`
	Insufficient bool     `json:"insufficient"`
	Phase        Phase    `json:"phase"`
}

// Coordinator owns one user's selection. It is safe for concurrent use;
// the backend call runs without holding the lock, so Toggle and Clear stay
// available while an unlock is in flight.
type Coordinator struct {
	userID   string
	backend  Unlocker
	notifier notify.Notifier
	metrics  *metrics.Metrics
	cfg      Config
	reload   ReloadFunc
	sleep    func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	loaded      []string
	loadedSet   model.IDSet
	entitled    model.IDSet
	entitledGen uint64
	credits     int
	selected    model.IDSet
	phase       Phase
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConfig sets timeout and settle delay. Zero fields keep the defaults.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) {
		if cfg.Timeout > 0 {
			c.cfg.Timeout = cfg.Timeout
		}
		if cfg.SettleDelay > 0 {
			c.cfg.SettleDelay = cfg.SettleDelay
		}
	}
}

// WithMetrics records unlock outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithReload sets the callback run after a successful unlock.
func WithReload(fn ReloadFunc) Option {
	return func(c *Coordinator) { c.reload = fn }
}

// WithSleep replaces the settle-delay wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) { c.sleep = fn }
}

// NewCoordinator creates an idle coordinator with nothing loaded.
func NewCoordinator(userID string, b Unlocker, n notify.Notifier, opts ...Option) *Coordinator {
	if n == nil {
		n = notify.Discard
	}
	c := &Coordinator{
		userID:    userID,
		backend:   b,
		notifier:  n,
		cfg:       Config{Timeout: DefaultTimeout, SettleDelay: DefaultSettleDelay},
		sleep:     sleepCtx,
		loaded:    []string{},
		loadedSet: model.NewIDSet(),
		entitled:  model.NewIDSet(),
		selected:  model.NewIDSet(),
		phase:     PhaseIdle,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetData replaces the loaded leads, entitlements and balance. Selected ids
// that are no longer loaded or have become entitled are dropped.
func (c *Coordinator) SetData(leadIDs []string, entitled model.IDSet, credits int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loaded = append([]string(nil), leadIDs...)
	c.loadedSet = model.NewIDSet(leadIDs...)
	if entitled == nil {
		entitled = model.NewIDSet()
	}
	c.entitled = entitled.Clone()
	c.entitledGen++
	c.credits = credits

	for id := range c.selected {
		if !c.loadedSet.Has(id) || c.entitled.Has(id) {
			c.selected.Remove(id)
		}
	}
}

// Toggle flips id in the selection and reports whether it is now selected.
// Entitled and unknown ids are never added.
func (c *Coordinator) Toggle(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected.Has(id) {
		c.selected.Remove(id)
		return false
	}
	if c.entitled.Has(id) || !c.loadedSet.Has(id) {
		return false
	}
	c.selected.Add(id)
	return true
}

// SelectAll selects every loaded unentitled lead, regardless of any
// active filter, and returns the selection size.
func (c *Coordinator) SelectAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selected = model.NewIDSet()
	for _, id := range c.loaded {
		if !c.entitled.Has(id) {
			c.selected.Add(id)
		}
	}
	return c.selected.Len()
}

// Clear empties the selection.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	c.selected = model.NewIDSet()
	c.mu.Unlock()
}

// Entitled returns a copy of the entitlement set and its generation. The
// generation changes whenever the set does.
func (c *Coordinator) Entitled() (model.IDSet, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entitled.Clone(), c.entitledGen
}

// Snapshot returns the current selection state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.selected.Len()
	return Snapshot{
		Selected:     c.selected.Sorted(),
		Count:        n,
		Cost:         n,
		Available:    c.credits,
		Insufficient: n > entitlement.Spendable(c.credits),
		Phase:        c.phase,
	}
}

// Unlock spends credits on the current selection. It returns the number
// of leads submitted. Validation failures never reach the backend.
//
// Once submitted, the backend call and the follow-up reload ignore caller
// cancellation; the backend call is bounded by Config.Timeout only.
func (c *Coordinator) Unlock(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.phase == PhaseUnlocking {
		c.mu.Unlock()
		c.metrics.IncrementUnlock(metrics.OutcomeInProgress)
		return 0, ErrUnlockInProgress
	}
	if c.selected.Len() == 0 {
		c.mu.Unlock()
		c.metrics.IncrementUnlock(metrics.OutcomeEmpty)
		c.notifier.Notify(notify.LevelError, MsgEmptySelection)
		return 0, ErrEmptySelection
	}
	if need := c.selected.Len(); need > entitlement.Spendable(c.credits) {
		err := &InsufficientCreditsError{Need: need, Have: c.credits}
		c.mu.Unlock()
		c.metrics.IncrementUnlock(metrics.OutcomeInsufficient)
		c.notifier.Notify(notify.LevelError, err.Error())
		return 0, err
	}
	ids := c.selected.Sorted()
	c.phase = PhaseUnlocking
	c.mu.Unlock()

	log := zap.L().With(zap.String("user_id", c.userID), zap.Int("lead_count", len(ids)))
	log.Info("unlock: submitting")

	ctx = context.WithoutCancel(ctx)

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	start := time.Now()
	err := c.backend.UnlockLeads(callCtx, c.userID, ids)
	timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
	cancel()
	c.metrics.ObserveUnlockLatency(time.Since(start))

	if err != nil {
		c.mu.Lock()
		c.phase = PhaseIdle
		c.mu.Unlock()
		return 0, c.fail(log, err, timedOut)
	}

	c.mu.Lock()
	c.phase = PhaseIdle
	c.selected = model.NewIDSet()
	c.entitled.Add(ids...)
	c.entitledGen++
	c.mu.Unlock()

	c.metrics.IncrementUnlock(metrics.OutcomeSuccess)
	c.metrics.AddUnlocked(len(ids))
	log.Info("unlock: complete")
	c.notifier.Notify(notify.LevelSuccess, successMessage(len(ids)))

	if c.reload != nil {
		if err := c.sleep(ctx, c.cfg.SettleDelay); err != nil {
			log.Warn("unlock: reload skipped", zap.Error(err))
			return len(ids), nil
		}
		if err := c.reload(ctx); err != nil {
			log.Warn("unlock: reload failed", zap.Error(err))
		}
	}
	return len(ids), nil
}

func (c *Coordinator) fail(log *zap.Logger, err error, timedOut bool) error {
	if timedOut {
		log.Warn("unlock: timed out", zap.Duration("timeout", c.cfg.Timeout), zap.Error(err))
		c.metrics.IncrementUnlock(metrics.OutcomeTimeout)
		c.notifier.Notify(notify.LevelError, MsgTimeout)
		return ErrTimeout
	}

	msg := MsgFailed
	outcome := metrics.OutcomeFailed
	if reason, ok := backend.RejectionReason(err); ok {
		msg = reason
		outcome = metrics.OutcomeRejected
	}
	log.Error("unlock: failed", zap.Error(err))
	c.metrics.IncrementUnlock(outcome)
	c.notifier.Notify(notify.LevelError, msg)
	return &FailedError{Message: msg, Err: err}
}

func successMessage(n int) string {
	noun := "properties"
	if n == 1 {
		noun = "property"
	}
	return fmt.Sprintf("Successfully unlocked %d %s!", n, noun)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
