package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadgate/internal/filter"
)

const fixtureYAML = `
fixtures:
  flags:
    - key: ENABLE_DETAIL_PANEL
      enabled: true
  credits:
    - user_id: user-1
      amount: 2
      reason: welcome
  leads:
    - id: lead-a
      company: Riverside Holdings
      email: owner@riverside.com
      phone: "5125550101"
      intelligence_score: 91
      meta:
        city: Austin
        property_value: 725000
    - id: lead-b
      company: Oak Street Partners
      email: hello@oakstreet.com
      intelligence_score: 74
      meta:
        city: Dallas
    - id: lead-c
      company: Elm Court Trust
      intelligence_score: 55
      meta:
        city: Austin
`

// seeded returns a migrated, seeded store for the test config.
func seeded(t *testing.T) store {
	t.Helper()
	useConfig(t, testConfig(t))

	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0644))

	ctx := context.Background()
	s, err := openStore(ctx, cfg.Store)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck

	var out bytes.Buffer
	require.NoError(t, runSeed(ctx, &out, s, path))
	assert.Equal(t, "Seeded 3 leads, 1 credit grants, 1 flags\n", out.String())
	return s
}

func TestRunLeads(t *testing.T) {
	s := seeded(t)

	var out bytes.Buffer
	require.NoError(t, runLeads(context.Background(), &out, s, "user-1", "", filter.DefaultState()))

	got := out.String()
	assert.Contains(t, got, "COMPANY")
	assert.Contains(t, got, "Riv••••••••••")
	assert.Contains(t, got, "ow•••@riverside.com")
	assert.Contains(t, got, "(•••) •••-0101")
	assert.Contains(t, got, "$725,000")
	assert.NotContains(t, got, "Riverside Holdings")
	assert.Contains(t, got, "3 of 3 leads, 2 credits")
}

func TestRunLeads_QueryNoMatch(t *testing.T) {
	s := seeded(t)

	var out bytes.Buffer
	require.NoError(t, runLeads(context.Background(), &out, s, "user-1", "houston", filter.DefaultState()))
	assert.Contains(t, out.String(), "No properties match your filters")
	assert.Contains(t, out.String(), "0 of 3 leads")
}

func TestRunLeads_RequiresUser(t *testing.T) {
	s := seeded(t)
	err := runLeads(context.Background(), &bytes.Buffer{}, s, " ", "", filter.DefaultState())
	assert.Error(t, err)
}

func TestRunUnlock(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runUnlock(ctx, &out, s, "user-1", []string{"lead-a", "lead-b", "lead-a", "missing"}))
	assert.Contains(t, out.String(), "skipping missing")
	assert.Contains(t, out.String(), "[success] Successfully unlocked 2 properties!")
	assert.Contains(t, out.String(), "[info] Refreshing data...")

	out.Reset()
	require.NoError(t, runLeads(ctx, &out, s, "user-1", "", filter.DefaultState()))
	assert.Contains(t, out.String(), "Riverside Holdings")
	assert.Contains(t, out.String(), "owner@riverside.com")
	assert.Contains(t, out.String(), "0 credits")
}

func TestRunUnlock_Insufficient(t *testing.T) {
	s := seeded(t)

	var out bytes.Buffer
	err := runUnlock(context.Background(), &out, s, "user-1", []string{"lead-a", "lead-b", "lead-c"})
	require.Error(t, err)
	assert.Contains(t, out.String(), "[error] Insufficient credits. Need 3, have 2")
}

func TestRunExport(t *testing.T) {
	s := seeded(t)
	path := filepath.Join(t.TempDir(), "leads.xlsx")

	var out bytes.Buffer
	require.NoError(t, runExport(context.Background(), &out, s, "user-1", "austin", path))
	assert.Equal(t, "Wrote 2 leads to "+path+"\n", out.String())

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet := f.Sheets[0]
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "lead-a", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "Riv••••••••••", sheet.Rows[1].Cells[1].String())
}
