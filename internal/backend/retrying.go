package backend

import (
	"context"

	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/resilience"
)

// Retrying decorates a Backend so transient read failures are retried.
// UnlockLeads is passed through untouched: a retried unlock after an
// ambiguous failure could double-submit.
type Retrying struct {
	Backend
	cfg resilience.RetryConfig
}

// WithRetry wraps b with read retries.
func WithRetry(b Backend, cfg resilience.RetryConfig) *Retrying {
	return &Retrying{Backend: b, cfg: cfg}
}

func (r *Retrying) config(source string) resilience.RetryConfig {
	cfg := r.cfg
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.LogRetry(source)
	}
	return cfg
}

func (r *Retrying) ListLeads(ctx context.Context, limit int) ([]model.Lead, error) {
	return resilience.DoVal(ctx, r.config("leads"), func(ctx context.Context) ([]model.Lead, error) {
		return r.Backend.ListLeads(ctx, limit)
	})
}

func (r *Retrying) GetDashboardMetrics(ctx context.Context) (*model.DashboardMetrics, error) {
	return resilience.DoVal(ctx, r.config("metrics"), r.Backend.GetDashboardMetrics)
}

func (r *Retrying) GetStageBreakdown(ctx context.Context) ([]model.StageCount, error) {
	return resilience.DoVal(ctx, r.config("stages"), r.Backend.GetStageBreakdown)
}

func (r *Retrying) GetFeatureFlags(ctx context.Context) (model.FeatureFlags, error) {
	return resilience.DoVal(ctx, r.config("flags"), r.Backend.GetFeatureFlags)
}

func (r *Retrying) GetEntitledLeadIDs(ctx context.Context, userID string) (model.IDSet, error) {
	return resilience.DoVal(ctx, r.config("entitlements"), func(ctx context.Context) (model.IDSet, error) {
		return r.Backend.GetEntitledLeadIDs(ctx, userID)
	})
}

func (r *Retrying) GetUserCredits(ctx context.Context, userID string) (int, error) {
	return resilience.DoVal(ctx, r.config("credits"), func(ctx context.Context) (int, error) {
		return r.Backend.GetUserCredits(ctx, userID)
	})
}
