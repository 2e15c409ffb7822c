// Package backend implements the hosted-database contracts the dashboard
// reads from and the atomic unlock it writes through.
package backend

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgate/internal/model"
)

// DefaultLeadLimit is the page size for ListLeads.
const DefaultLeadLimit = 100

// ErrUnlockRejected is the sentinel behind every RejectedError.
var ErrUnlockRejected = eris.New("unlock rejected")

// RejectedError is returned when the backend refuses an unlock as a whole
// (unknown lead, insufficient balance). Reason is safe to show to the user.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string { return e.Reason }
func (e *RejectedError) Unwrap() error { return ErrUnlockRejected }

// RejectionReason extracts the user-facing reason from err, if any.
func RejectionReason(err error) (string, bool) {
	var re *RejectedError
	if errors.As(err, &re) && re.Reason != "" {
		return re.Reason, true
	}
	return "", false
}

// Backend defines the operations the dashboard consumes.
type Backend interface {
	// ListLeads returns up to limit leads ordered by intelligence score,
	// highest first. limit <= 0 means DefaultLeadLimit.
	ListLeads(ctx context.Context, limit int) ([]model.Lead, error)
	GetDashboardMetrics(ctx context.Context) (*model.DashboardMetrics, error)
	// GetStageBreakdown returns stage counts ordered by count, highest first.
	GetStageBreakdown(ctx context.Context) ([]model.StageCount, error)
	GetFeatureFlags(ctx context.Context) (model.FeatureFlags, error)
	GetEntitledLeadIDs(ctx context.Context, userID string) (model.IDSet, error)
	// GetUserCredits returns the sum of the user's ledger entries.
	GetUserCredits(ctx context.Context, userID string) (int, error)
	// UnlockLeads grants the user every listed lead and deducts one credit
	// per newly granted lead, or does nothing. Leads the user already holds
	// are skipped without charge.
	UnlockLeads(ctx context.Context, userID string, leadIDs []string) error

	Migrate(ctx context.Context) error
	Close() error
}

// Seeder is implemented by backends that can be loaded with fixture data.
type Seeder interface {
	UpsertLeads(ctx context.Context, leads []model.Lead) (int, error)
	GrantCredits(ctx context.Context, userID string, amount int, reason string) error
	SetFeatureFlag(ctx context.Context, key string, enabled bool, description string) error
}

// dedupe returns ids without duplicates or empty strings, order preserved.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLeadLimit
	}
	return limit
}
