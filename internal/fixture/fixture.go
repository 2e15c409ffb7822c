// Package fixture loads seed data (leads, credit grants, feature flags)
// from YAML and applies it to a backend.
package fixture

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadgate/internal/backend"
	"github.com/sells-group/leadgate/internal/model"
)

// File is the top-level fixture document.
type File struct {
	Flags   []Flag       `yaml:"flags"`
	Credits []Grant      `yaml:"credits"`
	Leads   []model.Lead `yaml:"leads"`
}

// Flag sets one feature flag.
type Flag struct {
	Key         string `yaml:"key"`
	Enabled     bool   `yaml:"enabled"`
	Description string `yaml:"description"`
}

// Grant adds a signed ledger entry for a user.
type Grant struct {
	UserID string `yaml:"user_id"`
	Amount int    `yaml:"amount"`
	Reason string `yaml:"reason"`
}

// Result summarizes an Apply.
type Result struct {
	Flags   int
	Credits int
	Leads   int
}

// Load reads and validates a fixture file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fixture: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a fixture document. The YAML has a top-level "fixtures" key.
func Parse(data []byte) (*File, error) {
	var wrapper struct {
		Fixtures File `yaml:"fixtures"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "fixture: parse")
	}

	f := &wrapper.Fixtures
	seen := make(map[string]bool, len(f.Leads))
	for i := range f.Leads {
		l := &f.Leads[i]
		if l.ID == "" {
			return nil, eris.Errorf("fixture: lead %d has no id", i)
		}
		if seen[l.ID] {
			return nil, eris.Errorf("fixture: duplicate lead id %q", l.ID)
		}
		seen[l.ID] = true
		l.Normalize()
	}
	for i, g := range f.Credits {
		if g.UserID == "" {
			return nil, eris.Errorf("fixture: credit grant %d has no user_id", i)
		}
		if g.Reason == "" {
			f.Credits[i].Reason = "seed"
		}
	}
	for i, fl := range f.Flags {
		if fl.Key == "" {
			return nil, eris.Errorf("fixture: flag %d has no key", i)
		}
	}
	return f, nil
}

// Apply writes flags, then credit grants, then leads. Grants are appended
// to the ledger, so applying the same file twice doubles balances.
func Apply(ctx context.Context, s backend.Seeder, f *File) (Result, error) {
	var res Result

	for _, fl := range f.Flags {
		if err := s.SetFeatureFlag(ctx, fl.Key, fl.Enabled, fl.Description); err != nil {
			return res, eris.Wrapf(err, "fixture: set flag %s", fl.Key)
		}
		res.Flags++
	}

	for _, g := range f.Credits {
		if err := s.GrantCredits(ctx, g.UserID, g.Amount, g.Reason); err != nil {
			return res, eris.Wrapf(err, "fixture: grant credits to %s", g.UserID)
		}
		res.Credits++
	}

	if len(f.Leads) > 0 {
		n, err := s.UpsertLeads(ctx, f.Leads)
		if err != nil {
			return res, eris.Wrap(err, "fixture: upsert leads")
		}
		res.Leads = n
	}

	zap.L().Info("fixture applied",
		zap.Int("flags", res.Flags),
		zap.Int("credit_grants", res.Credits),
		zap.Int("lead_count", res.Leads),
	)
	return res, nil
}
