// Package dashboard ties loading, filtering, selection and presentation
// together into one interactive session per user.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/backend"
	"github.com/sells-group/leadgate/internal/entitlement"
	"github.com/sells-group/leadgate/internal/filter"
	"github.com/sells-group/leadgate/internal/metrics"
	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/notify"
	"github.com/sells-group/leadgate/internal/session"
	"github.com/sells-group/leadgate/internal/unlock"
	"github.com/sells-group/leadgate/internal/view"
)

// MsgRefreshing is raised before every reload.
const MsgRefreshing = "Refreshing data..."

var (
	// ErrLeadNotFound is returned for ids outside the loaded page.
	ErrLeadNotFound = eris.New("dashboard: lead not found")
	// ErrDetailDisabled is returned when the detail panel flag is off.
	ErrDetailDisabled = eris.New("dashboard: detail panel disabled")
)

// Config tunes every session a Manager creates.
type Config struct {
	PageSize        int
	UnlockTimeout   time.Duration
	SettleDelay     time.Duration
	NotificationTTL time.Duration
	IdleTTL         time.Duration
}

// DefaultConfig mirrors the config file defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:        backend.DefaultLeadLimit,
		UnlockTimeout:   unlock.DefaultTimeout,
		SettleDelay:     unlock.DefaultSettleDelay,
		NotificationTTL: notify.DefaultTTL,
		IdleTTL:         30 * time.Minute,
	}
}

// Page is everything the client needs to render the dashboard.
type Page struct {
	Status         session.Status        `json:"status"`
	Generation     uint64                `json:"generation"`
	Query          string                `json:"query"`
	Filters        filter.State          `json:"filters"`
	KPIs           []view.KPI            `json:"kpis,omitempty"`
	Stages         []view.StageBar       `json:"stages,omitempty"`
	Grid           view.Grid             `json:"grid"`
	Selection      view.SelectionBar     `json:"selection"`
	Unlock         unlock.Snapshot       `json:"unlock"`
	Credits        int                   `json:"credits"`
	DetailPanel    bool                  `json:"detail_panel"`
	CommandPalette bool                  `json:"command_palette"`
	Notifications  []notify.Notification `json:"notifications"`
	FailedSources  []string              `json:"failed_sources,omitempty"`
}

// Session is one user's dashboard. All methods are safe for concurrent use.
type Session struct {
	userID string
	loader *session.Loader
	coord  *unlock.Coordinator
	feed   *notify.Feed
	memo   filter.Memo

	loadMu sync.Mutex

	mu       sync.RWMutex
	snap     *session.Snapshot
	query    string
	state    filter.State
	lastSeen time.Time
}

// NewSession builds a session over b. Nothing is loaded until Load.
func NewSession(userID string, b backend.Backend, m *metrics.Metrics, cfg Config) *Session {
	s := &Session{
		userID:   userID,
		feed:     notify.NewFeed(cfg.NotificationTTL),
		snap:     session.Pending(),
		state:    filter.DefaultState(),
		lastSeen: time.Now(),
	}
	s.loader = session.NewLoader(b, entitlement.NewResolver(b, m), s.feed, m, cfg.PageSize)
	s.coord = unlock.NewCoordinator(userID, b, s.feed,
		unlock.WithConfig(unlock.Config{Timeout: cfg.UnlockTimeout, SettleDelay: cfg.SettleDelay}),
		unlock.WithMetrics(m),
		unlock.WithReload(s.Refresh),
	)
	return s
}

// UserID returns the session owner.
func (s *Session) UserID() string { return s.userID }

// Feed exposes the session's notifications.
func (s *Session) Feed() *notify.Feed { return s.feed }

// Load replaces leads, entitlements and credits wholesale.
func (s *Session) Load(ctx context.Context) *session.Snapshot {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.load(ctx)
}

// EnsureLoaded loads the session once. Concurrent first callers share a
// single load.
func (s *Session) EnsureLoaded(ctx context.Context) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.mu.RLock()
	loaded := s.snap.Generation > 0
	s.mu.RUnlock()
	if !loaded {
		s.load(ctx)
	}
}

// load must be called with loadMu held.
func (s *Session) load(ctx context.Context) *session.Snapshot {
	snap := s.loader.Load(ctx, s.userID)
	s.coord.SetData(snap.LeadIDs(), snap.Entitled, snap.Credits)

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	zap.L().Debug("dashboard: session loaded",
		zap.String("user_id", s.userID),
		zap.String("status", string(snap.Status)),
		zap.Int("lead_count", len(snap.Leads)),
	)
	return snap
}

// Refresh announces and performs a reload.
func (s *Session) Refresh(ctx context.Context) error {
	s.feed.Notify(notify.LevelInfo, MsgRefreshing)
	s.Load(ctx)
	return nil
}

// SetQuery updates the search text and filter panel.
func (s *Session) SetQuery(query string, state filter.State) {
	s.mu.Lock()
	s.query = query
	s.state = state.Normalize()
	s.mu.Unlock()
}

// Toggle flips a lead in the selection.
func (s *Session) Toggle(id string) bool { return s.coord.Toggle(id) }

// SelectAll selects every loaded unentitled lead.
func (s *Session) SelectAll() int { return s.coord.SelectAll() }

// ClearSelection empties the selection.
func (s *Session) ClearSelection() { s.coord.Clear() }

// Unlock spends credits on the selection. On success the session reloads
// after the settle delay before returning.
func (s *Session) Unlock(ctx context.Context) (int, error) {
	return s.coord.Unlock(ctx)
}

// Selection returns the current selection state.
func (s *Session) Selection() unlock.Snapshot { return s.coord.Snapshot() }

// Detail renders the drawer for one loaded lead.
func (s *Session) Detail(id string) (view.Detail, error) {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()

	if !snap.Flags.Enabled(model.FlagDetailPanel) {
		return view.Detail{}, ErrDetailDisabled
	}
	lead, ok := snap.Lead(id)
	if !ok {
		return view.Detail{}, ErrLeadNotFound
	}
	entitled, _ := s.coord.Entitled()
	return view.NewDetail(lead, entitled.Has(id)), nil
}

// Filtered returns the leads passing the current query and filters.
func (s *Session) Filtered() []model.Lead {
	s.mu.RLock()
	snap, query, state := s.snap, s.query, s.state
	s.mu.RUnlock()

	entitled, gen := s.coord.Entitled()
	return s.memo.Apply(filter.Input{
		Leads:       snap.Leads,
		LeadsGen:    snap.Generation,
		Entitled:    entitled,
		EntitledGen: gen,
		Query:       query,
		State:       state,
	})
}

// View renders the whole page, honouring feature flags.
func (s *Session) View() Page {
	s.mu.RLock()
	snap, query, state := s.snap, s.query, s.state
	s.mu.RUnlock()

	entitled, _ := s.coord.Entitled()
	sel := s.coord.Snapshot()
	filtered := s.Filtered()

	unentitled := 0
	for _, l := range snap.Leads {
		if !entitled.Has(l.ID) {
			unentitled++
		}
	}

	p := Page{
		Status:         snap.Status,
		Generation:     snap.Generation,
		Query:          query,
		Filters:        state,
		Grid:           view.NewGrid(filtered, len(snap.Leads), entitled, model.NewIDSet(sel.Selected...)),
		Selection:      view.NewSelectionBar(sel, unentitled),
		Unlock:         sel,
		Credits:        snap.Credits,
		DetailPanel:    snap.Flags.Enabled(model.FlagDetailPanel),
		CommandPalette: snap.Flags.Enabled(model.FlagCommandPalette),
		Notifications:  s.feed.Active(),
	}
	if snap.Flags.Enabled(model.FlagAnalyticsDashboard) && !snap.Failed(session.SourceMetrics) {
		p.KPIs = view.KPIs(snap.Metrics, snap.Credits, entitled.Len())
	}
	if len(snap.Stages) > 0 {
		p.Stages = view.Stages(snap.Stages, snap.Metrics.TotalCompanies)
	}
	for _, e := range snap.Errors {
		p.FailedSources = append(p.FailedSources, e.Source)
	}
	return p
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}
