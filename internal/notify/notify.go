// Package notify carries user-facing status messages from dashboard
// components to whoever renders them.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Level classifies a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// DefaultTTL is how long a notification stays active.
const DefaultTTL = 4 * time.Second

// Notification is a single advisory message.
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Notifier receives user-facing status messages.
type Notifier interface {
	Notify(level Level, message string)
}

// Feed keeps recent notifications until they expire and fans each new
// one out to subscribers.
type Feed struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	items   []Notification
	subs    map[int]func(Notification)
	nextSub int
}

// FeedOption configures a Feed.
type FeedOption func(*Feed)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) FeedOption {
	return func(f *Feed) { f.now = now }
}

// NewFeed creates a Feed whose notifications expire after ttl.
// ttl <= 0 uses DefaultTTL.
func NewFeed(ttl time.Duration, opts ...FeedOption) *Feed {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	f := &Feed{
		ttl:  ttl,
		now:  time.Now,
		subs: make(map[int]func(Notification)),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Notify implements Notifier.
func (f *Feed) Notify(level Level, message string) {
	now := f.now()
	n := Notification{
		ID:        uuid.New().String(),
		Level:     level,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(f.ttl),
	}

	f.mu.Lock()
	f.pruneLocked(now)
	f.items = append(f.items, n)
	subs := make([]func(Notification), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	zap.L().Debug("notification",
		zap.String("level", string(level)),
		zap.String("message", message),
	)

	for _, fn := range subs {
		fn(n)
	}
}

// Active returns unexpired notifications, oldest first.
func (f *Feed) Active() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pruneLocked(f.now())
	out := make([]Notification, len(f.items))
	copy(out, f.items)
	return out
}

// Dismiss removes a notification before it expires.
func (f *Feed) Dismiss(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, n := range f.items {
		if n.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return true
		}
	}
	return false
}

// Subscribe registers fn for every future notification. The returned
// function unregisters it.
func (f *Feed) Subscribe(fn func(Notification)) (unsubscribe func()) {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *Feed) pruneLocked(now time.Time) {
	kept := f.items[:0]
	for _, n := range f.items {
		if now.Before(n.ExpiresAt) {
			kept = append(kept, n)
		}
	}
	f.items = kept
}

// Recorder is a Notifier that remembers everything it is told.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Notify implements Notifier.
func (r *Recorder) Notify(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Level: level, Message: message})
}

// All returns every recorded notification in order.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Messages returns the recorded messages at level.
func (r *Recorder) Messages(level Level) []string {
	var out []string
	for _, n := range r.All() {
		if n.Level == level {
			out = append(out, n.Message)
		}
	}
	return out
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.items = nil
	r.mu.Unlock()
}

// Discard drops every notification.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Level, string) {}
