// Package session loads everything the dashboard needs for one user in a
// single concurrent pass.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgate/internal/backend"
	"github.com/sells-group/leadgate/internal/entitlement"
	"github.com/sells-group/leadgate/internal/metrics"
	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/notify"
)

// MsgLoadError is the single notification raised when any source fails.
const MsgLoadError = "Error loading data"

// Source names.
const (
	SourceLeads        = "leads"
	SourceMetrics      = "metrics"
	SourceStages       = "stages"
	SourceFlags        = "flags"
	SourceEntitlements = entitlement.SourceEntitlements
	SourceCredits      = entitlement.SourceCredits
)

// Status is the lifecycle of a snapshot.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// SourceError tags a failed read with the source it came from.
type SourceError struct {
	Source string
	Err    error
}

func (e SourceError) Error() string { return fmt.Sprintf("%s: %v", e.Source, e.Err) }
func (e SourceError) Unwrap() error { return e.Err }

// Snapshot is one consistent load of a user's dashboard data. Failed
// sources hold their zero defaults and are listed in Errors.
type Snapshot struct {
	Status     Status
	Leads      []model.Lead
	Metrics    model.DashboardMetrics
	Stages     []model.StageCount
	Flags      model.FeatureFlags
	Entitled   model.IDSet
	Credits    int
	Errors     []SourceError
	Generation uint64
	LoadedAt   time.Time
}

// Pending returns an empty snapshot in the loading state.
func Pending() *Snapshot {
	return &Snapshot{
		Status:   StatusLoading,
		Leads:    []model.Lead{},
		Stages:   []model.StageCount{},
		Flags:    model.FeatureFlags{},
		Entitled: model.NewIDSet(),
	}
}

// Failed reports whether source failed in this load.
func (s *Snapshot) Failed(source string) bool {
	for _, e := range s.Errors {
		if e.Source == source {
			return true
		}
	}
	return false
}

// LeadIDs returns the ids of the loaded leads in order.
func (s *Snapshot) LeadIDs() []string {
	ids := make([]string, len(s.Leads))
	for i, l := range s.Leads {
		ids[i] = l.ID
	}
	return ids
}

// Lead finds a loaded lead by id.
func (s *Snapshot) Lead(id string) (model.Lead, bool) {
	for _, l := range s.Leads {
		if l.ID == id {
			return l, true
		}
	}
	return model.Lead{}, false
}

// Reader is the read side of the backend.
type Reader interface {
	ListLeads(ctx context.Context, limit int) ([]model.Lead, error)
	GetDashboardMetrics(ctx context.Context) (*model.DashboardMetrics, error)
	GetStageBreakdown(ctx context.Context) ([]model.StageCount, error)
	GetFeatureFlags(ctx context.Context) (model.FeatureFlags, error)
}

// Loader fans out the dashboard reads and joins them into a Snapshot.
type Loader struct {
	reader   Reader
	resolver *entitlement.Resolver
	notifier notify.Notifier
	metrics  *metrics.Metrics
	pageSize int
	gen      atomic.Uint64
	now      func() time.Time
}

// NewLoader creates a Loader. pageSize <= 0 uses backend.DefaultLeadLimit.
func NewLoader(r Reader, res *entitlement.Resolver, n notify.Notifier, m *metrics.Metrics, pageSize int) *Loader {
	if pageSize <= 0 {
		pageSize = backend.DefaultLeadLimit
	}
	if n == nil {
		n = notify.Discard
	}
	return &Loader{
		reader:   r,
		resolver: res,
		notifier: n,
		metrics:  m,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// Load reads all six sources concurrently. It never fails: sources that
// error fall back to defaults, and a single error notification is raised.
func (l *Loader) Load(ctx context.Context, userID string) *Snapshot {
	snap := Pending()
	snap.Generation = l.gen.Add(1)

	var (
		mu   sync.Mutex
		errs []SourceError
	)
	record := func(source string, err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = append(errs, SourceError{Source: source, Err: err})
		mu.Unlock()
	}

	var g errgroup.Group
	g.Go(func() error {
		leads, err := l.reader.ListLeads(ctx, l.pageSize)
		record(SourceLeads, err)
		if err == nil && leads != nil {
			snap.Leads = leads
		}
		return nil
	})
	g.Go(func() error {
		m, err := l.reader.GetDashboardMetrics(ctx)
		record(SourceMetrics, err)
		if err == nil && m != nil {
			snap.Metrics = *m
		}
		return nil
	})
	g.Go(func() error {
		stages, err := l.reader.GetStageBreakdown(ctx)
		record(SourceStages, err)
		if err == nil && stages != nil {
			snap.Stages = stages
		}
		return nil
	})
	g.Go(func() error {
		flags, err := l.reader.GetFeatureFlags(ctx)
		record(SourceFlags, err)
		if err == nil && flags != nil {
			snap.Flags = flags
		}
		return nil
	})
	g.Go(func() error {
		res := l.resolver.Resolve(ctx, userID)
		snap.Entitled = res.Entitled
		snap.Credits = res.Credits
		record(SourceEntitlements, res.EntitledErr)
		record(SourceCredits, res.CreditsErr)
		return nil
	})
	_ = g.Wait()

	for i := range snap.Leads {
		snap.Leads[i].Normalize()
	}
	sort.SliceStable(snap.Leads, func(i, j int) bool {
		return snap.Leads[i].IntelligenceScore > snap.Leads[j].IntelligenceScore
	})

	sort.Slice(errs, func(i, j int) bool { return errs[i].Source < errs[j].Source })
	snap.Errors = errs
	snap.LoadedAt = l.now()

	log := zap.L().With(zap.String("user_id", userID), zap.Uint64("generation", snap.Generation))
	switch {
	case snap.Failed(SourceLeads):
		snap.Status = StatusError
		l.metrics.IncrementLoad(metrics.LoadError)
	case len(errs) > 0:
		snap.Status = StatusReady
		l.metrics.IncrementLoad(metrics.LoadPartial)
	default:
		snap.Status = StatusReady
		l.metrics.IncrementLoad(metrics.LoadReady)
	}

	if len(errs) > 0 {
		for _, e := range errs {
			if e.Source != SourceEntitlements && e.Source != SourceCredits {
				l.metrics.IncrementReadFailure(e.Source)
			}
			log.Warn("session: source failed", zap.String("source", e.Source), zap.Error(e.Err))
		}
		l.notifier.Notify(notify.LevelError, MsgLoadError)
	} else {
		log.Debug("session: loaded", zap.Int("lead_count", len(snap.Leads)))
	}

	return snap
}
