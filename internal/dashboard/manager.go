package dashboard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/backend"
	"github.com/sells-group/leadgate/internal/metrics"
	"github.com/sells-group/leadgate/internal/unlock"
)

// Manager keeps one Session per user, created on first use and dropped
// after IdleTTL without activity.
type Manager struct {
	backend backend.Backend
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager. Zero config fields use DefaultConfig.
func NewManager(b backend.Backend, m *metrics.Metrics, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.UnlockTimeout <= 0 {
		cfg.UnlockTimeout = def.UnlockTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if cfg.NotificationTTL <= 0 {
		cfg.NotificationTTL = def.NotificationTTL
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	return &Manager{
		backend:  b,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the user's session, creating and loading it if needed.
func (m *Manager) Get(ctx context.Context, userID string) *Session {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		s = NewSession(userID, m.backend, m.metrics, m.cfg)
		m.sessions[userID] = s
	}
	m.mu.Unlock()

	s.touch(m.now())
	s.EnsureLoaded(ctx)
	return s
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Evict drops sessions idle for longer than IdleTTL and returns how many
// were removed. Sessions with an unlock in flight are kept.
func (m *Manager) Evict() int {
	cutoff := m.now().Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) && s.Selection().Phase != unlock.PhaseUnlocking {
			delete(m.sessions, id)
			n++
		}
	}
	if n > 0 {
		zap.L().Debug("dashboard: evicted idle sessions", zap.Int("count", n))
	}
	return n
}

// Run evicts idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evict()
		}
	}
}
