// Package view turns leads and dashboard state into render-ready models.
// Masking decisions are made here and only here: every contact field an
// unentitled viewer sees goes through the mask package.
package view

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/leadgate/internal/mask"
	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/unlock"
)

// Fallbacks for absent fields.
const (
	Unknown = "Unknown"
	NA      = "N/A"
)

// LockedBadge is shown over the image of an unentitled card.
const LockedBadge = "Unlock to View"

// Card is one grid tile.
type Card struct {
	ID            string `json:"id"`
	Company       string `json:"company"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Score         int    `json:"score"`
	PropertyValue string `json:"property_value,omitempty"`
	City          string `json:"city,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
	ImageBlurred  bool   `json:"image_blurred"`
	Badge         string `json:"badge,omitempty"`
	HighPriority  bool   `json:"high_priority"`
	Entitled      bool   `json:"entitled"`
	Locked        bool   `json:"locked"`
	Selectable    bool   `json:"selectable"`
	Selected      bool   `json:"selected"`
}

// NewCard renders lead for a viewer. entitled decides masking; selected is
// only honoured for locked cards.
func NewCard(lead model.Lead, entitled, selected bool) Card {
	c := Card{
		ID:           lead.ID,
		Score:        lead.IntelligenceScore,
		City:         lead.Meta.City(),
		ImageURL:     lead.Meta.ImageURL(),
		HighPriority: lead.IsHighPriority,
		Entitled:     entitled,
	}
	if v := lead.Meta.PropertyValue(); v != 0 {
		c.PropertyValue = mask.Currency(v)
	}

	if entitled {
		c.Company = lead.Company
		c.Email = lead.Email
		c.Phone = lead.Phone
		return c
	}

	c.Company = mask.Company(lead.Company)
	c.Email = mask.Email(lead.Email)
	c.Phone = mask.Phone(lead.Phone)
	c.Locked = true
	c.Selectable = true
	c.Selected = selected
	if c.ImageURL != "" {
		c.ImageBlurred = true
		c.Badge = LockedBadge
	}
	return c
}

// Row is a label/value pair in the detail drawer.
type Row struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Detail is the side drawer for one lead.
type Detail struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Entitled   bool   `json:"entitled"`
	Property   []Row  `json:"property"`
	Score      int    `json:"score"`
	ScoreWidth string `json:"score_width"`
	Contact    []Row  `json:"contact"`
	Additional []Row  `json:"additional"`
}

// NewDetail renders the drawer. Absent meta keys fall back to Unknown or
// N/A instead of failing.
func NewDetail(lead model.Lead, entitled bool) Detail {
	d := Detail{
		ID:         lead.ID,
		Title:      lead.Company,
		Entitled:   entitled,
		Score:      lead.IntelligenceScore,
		ScoreWidth: fmt.Sprintf("%d%%", model.ClampScore(lead.IntelligenceScore)),
	}
	if !entitled {
		d.Title = mask.Company(lead.Company)
	}

	d.Property = []Row{
		{"Property Value", mask.Currency(lead.Meta.PropertyValue())},
		{"Owner Type", orDefault(lead.Meta.OwnerType(), Unknown)},
		{"City", orDefault(lead.Meta.City(), Unknown)},
		{"Last Sale", orDefault(lead.Meta.LastSale(), NA)},
		{"Location", orDefault(lead.Meta.Location(), NA)},
	}

	if entitled {
		d.Contact = []Row{
			{"Email", orDefault(lead.Email, NA)},
			{"Phone", orDefault(lead.Phone, NA)},
			{"Website", orDefault(lead.Website, NA)},
		}
	} else {
		d.Contact = []Row{
			{"Email", mask.Email(lead.Email)},
			{"Phone", mask.Phone(lead.Phone)},
			{"Website", mask.Website(lead.Website)},
		}
	}

	priority := "Normal"
	if lead.IsHighPriority {
		priority = "High"
	}
	d.Additional = []Row{
		{"Stage", orDefault(lead.Stage, NA)},
		{"Workflow", string(lead.Workflow)},
		{"Priority", priority},
	}
	return d
}

// KPI is one headline card.
type KPI struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// KPIs renders the analytics cards.
func KPIs(m model.DashboardMetrics, credits, unlocks int) []KPI {
	return []KPI{
		{"Total Properties", mask.Number(float64(m.TotalCompanies))},
		{"Avg Intelligence Score", strconv.Itoa(int(math.Round(m.AvgScore)))},
		{"Your Credits", strconv.Itoa(credits)},
		{"Unlocks", strconv.Itoa(unlocks)},
	}
}

// StageBar is one row of the stage breakdown.
type StageBar struct {
	Stage   string  `json:"stage"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Stages renders stage rows with widths relative to total. A zero total
// is treated as 1.
func Stages(breakdown []model.StageCount, total int) []StageBar {
	if total <= 0 {
		total = 1
	}
	out := make([]StageBar, len(breakdown))
	for i, s := range breakdown {
		out[i] = StageBar{
			Stage:   s.Stage,
			Count:   s.CompanyCount,
			Percent: float64(s.CompanyCount) / float64(total) * 100,
		}
	}
	return out
}

// SelectionBar is the strip above the grid that drives unlocking.
type SelectionBar struct {
	Visible     bool   `json:"visible"`
	Summary     string `json:"summary"`
	Cost        string `json:"cost,omitempty"`
	Available   string `json:"available,omitempty"`
	SelectAll   string `json:"select_all,omitempty"`
	CanClear    bool   `json:"can_clear"`
	UnlockLabel string `json:"unlock_label,omitempty"`
	CanUnlock   bool   `json:"can_unlock"`
}

// NewSelectionBar renders the bar. It is hidden when nothing is left to
// unlock.
func NewSelectionBar(s unlock.Snapshot, unentitledCount int) SelectionBar {
	if unentitledCount == 0 {
		return SelectionBar{}
	}
	b := SelectionBar{Visible: true}
	if s.Count == 0 {
		b.Summary = "Select properties to unlock contact information"
		b.SelectAll = fmt.Sprintf("Select All (%d)", unentitledCount)
		return b
	}

	b.Summary = fmt.Sprintf("%d selected", s.Count)
	b.Cost = plural(s.Cost, "credit", "credits")
	b.Available = plural(s.Available, "credit", "credits")
	b.CanClear = true
	switch {
	case s.Phase == unlock.PhaseUnlocking:
		b.UnlockLabel = "Unlocking..."
	case s.Insufficient:
		b.UnlockLabel = "Insufficient Credits"
	default:
		b.UnlockLabel = fmt.Sprintf("Unlock %d", s.Count)
		b.CanUnlock = true
	}
	return b
}

// Command is a palette entry.
type Command struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

var commands = []Command{
	{"Go to Dashboard", "/dashboard"},
	{"Go to Admin", "/admin"},
}

// NoCommands is shown when the palette filter matches nothing.
const NoCommands = "No commands found"

// Commands returns the palette entries whose label contains query,
// case-insensitively.
func Commands(query string) []Command {
	q := strings.ToLower(query)
	out := []Command{}
	for _, c := range commands {
		if strings.Contains(strings.ToLower(c.Label), q) {
			out = append(out, c)
		}
	}
	return out
}

// Grid is the card list plus its empty state.
type Grid struct {
	Cards         []Card `json:"cards"`
	TotalCount    int    `json:"total_count"`
	FilteredCount int    `json:"filtered_count"`
	Empty         string `json:"empty,omitempty"`
}

// Empty-state messages.
const (
	EmptyNoLeads   = "No properties available yet"
	EmptyNoMatches = "No properties match your filters"
)

// NewGrid renders filtered leads. total is the size of the loaded page.
func NewGrid(filtered []model.Lead, total int, entitled, selected model.IDSet) Grid {
	g := Grid{
		Cards:         make([]Card, len(filtered)),
		TotalCount:    total,
		FilteredCount: len(filtered),
	}
	for i, l := range filtered {
		g.Cards[i] = NewCard(l, entitled.Has(l.ID), selected.Has(l.ID))
	}
	switch {
	case total == 0:
		g.Empty = EmptyNoLeads
	case len(filtered) == 0:
		g.Empty = EmptyNoMatches
	}
	return g
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
