package fixture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgate/internal/backend"
	"github.com/sells-group/leadgate/internal/model"
)

const sample = `
fixtures:
  flags:
    - key: ENABLE_DETAIL_PANEL
      enabled: true
      description: drawer
    - key: ENABLE_COMMAND_PALETTE
      enabled: false
  credits:
    - user_id: user-1
      amount: 5
  leads:
    - id: lead-1
      company: Riverside Holdings
      email: owner@riverside.com
      intelligence_score: 140
      meta:
        city: Austin
        property_value: 450000
    - id: lead-2
      company: Oak Street LLC
      intelligence_score: 61
      workflow: qualified
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	require.Len(t, f.Flags, 2)
	assert.Equal(t, model.FlagDetailPanel, f.Flags[0].Key)
	assert.True(t, f.Flags[0].Enabled)

	require.Len(t, f.Credits, 1)
	assert.Equal(t, "seed", f.Credits[0].Reason)

	require.Len(t, f.Leads, 2)
	assert.Equal(t, 100, f.Leads[0].IntelligenceScore)
	assert.Equal(t, model.WorkflowNew, f.Leads[0].Workflow)
	assert.Equal(t, "Austin", f.Leads[0].Meta.City())
	assert.InDelta(t, 450000, f.Leads[0].Meta.PropertyValue(), 0.001)
	assert.Equal(t, model.WorkflowQualified, f.Leads[1].Workflow)
	assert.NotNil(t, f.Leads[1].Meta)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"bad yaml", "fixtures: [", "parse"},
		{"lead without id", "fixtures:\n  leads:\n    - company: X\n", "has no id"},
		{"duplicate lead", "fixtures:\n  leads:\n    - id: a\n    - id: a\n", "duplicate lead id"},
		{"grant without user", "fixtures:\n  credits:\n    - amount: 3\n", "no user_id"},
		{"flag without key", "fixtures:\n  flags:\n    - enabled: true\n", "no key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApply_SQLite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	b, err := backend.NewSQLite(filepath.Join(dir, "seed.db"))
	require.NoError(t, err)
	defer b.Close() //nolint:errcheck

	ctx := context.Background()
	require.NoError(t, b.Migrate(ctx))

	f, err := Load(path)
	require.NoError(t, err)

	res, err := Apply(ctx, b, f)
	require.NoError(t, err)
	assert.Equal(t, Result{Flags: 2, Credits: 1, Leads: 2}, res)

	leads, err := b.ListLeads(ctx, 100)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "lead-1", leads[0].ID)

	credits, err := b.GetUserCredits(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, credits)

	flags, err := b.GetFeatureFlags(ctx)
	require.NoError(t, err)
	assert.True(t, flags.Enabled(model.FlagDetailPanel))
	assert.False(t, flags.Enabled(model.FlagCommandPalette))
}

type failingSeeder struct {
	backend.Seeder
	calls int
}

func (f *failingSeeder) SetFeatureFlag(context.Context, string, bool, string) error {
	f.calls++
	return errors.New("read-only")
}

func TestApply_StopsOnError(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	s := &failingSeeder{}
	res, err := Apply(context.Background(), s, f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set flag ENABLE_DETAIL_PANEL")
	assert.Equal(t, Result{}, res)
	assert.Equal(t, 1, s.calls)
}
