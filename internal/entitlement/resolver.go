// Package entitlement resolves which leads a user may see unmasked and how
// many credits they can spend.
package entitlement

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgate/internal/metrics"
	"github.com/sells-group/leadgate/internal/model"
)

// Source names used in logs and metrics.
const (
	SourceEntitlements = "entitlements"
	SourceCredits      = "credits"
)

// Source is the slice of the backend the resolver reads from.
type Source interface {
	GetEntitledLeadIDs(ctx context.Context, userID string) (model.IDSet, error)
	GetUserCredits(ctx context.Context, userID string) (int, error)
}

// Resolver reads entitlements and credits. Both reads fail soft: an error
// yields an empty set or a zero balance, so a broken backend never
// over-grants.
type Resolver struct {
	src     Source
	metrics *metrics.Metrics
}

// NewResolver creates a Resolver over src. m may be nil.
func NewResolver(src Source, m *metrics.Metrics) *Resolver {
	return &Resolver{src: src, metrics: m}
}

// Result is the outcome of Resolve. Errors are informational; the values
// are always usable.
type Result struct {
	Entitled    model.IDSet
	Credits     int
	EntitledErr error
	CreditsErr  error
}

// Entitled returns the user's entitlement set, or an empty set on error.
func (r *Resolver) Entitled(ctx context.Context, userID string) model.IDSet {
	ids, _ := r.entitled(ctx, userID)
	return ids
}

// Credits returns the user's ledger balance, or 0 on error.
func (r *Resolver) Credits(ctx context.Context, userID string) int {
	credits, _ := r.credits(ctx, userID)
	return credits
}

// Resolve reads entitlements and credits concurrently.
func (r *Resolver) Resolve(ctx context.Context, userID string) Result {
	var res Result
	var g errgroup.Group
	g.Go(func() error {
		res.Entitled, res.EntitledErr = r.entitled(ctx, userID)
		return nil
	})
	g.Go(func() error {
		res.Credits, res.CreditsErr = r.credits(ctx, userID)
		return nil
	})
	_ = g.Wait()
	return res
}

func (r *Resolver) entitled(ctx context.Context, userID string) (model.IDSet, error) {
	ids, err := r.src.GetEntitledLeadIDs(ctx, userID)
	if err != nil {
		r.fail(SourceEntitlements, userID, err)
		return model.NewIDSet(), err
	}
	if ids == nil {
		ids = model.NewIDSet()
	}
	return ids, nil
}

func (r *Resolver) credits(ctx context.Context, userID string) (int, error) {
	credits, err := r.src.GetUserCredits(ctx, userID)
	if err != nil {
		r.fail(SourceCredits, userID, err)
		return 0, err
	}
	return credits, nil
}

func (r *Resolver) fail(source, userID string, err error) {
	zap.L().Warn("entitlement: read failed, degrading",
		zap.String("source", source),
		zap.String("user_id", userID),
		zap.Error(err),
	)
	r.metrics.IncrementReadFailure(source)
}

// Spendable is the balance usable for budget checks. A negative ledger
// sum is reported as-is elsewhere but buys nothing.
func Spendable(credits int) int {
	if credits < 0 {
		return 0
	}
	return credits
}
