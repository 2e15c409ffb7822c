// Package filter narrows a loaded page of leads by free text, score and
// value ranges, and entitlement visibility.
package filter

import (
	"slices"
	"strings"
	"sync"

	"github.com/sells-group/leadgate/internal/model"
)

// MaxPropertyValue is the default upper bound of the value range.
const MaxPropertyValue = 10_000_000

// State is the user's filter panel. Cities and OwnerTypes are carried for
// the client but not evaluated.
type State struct {
	MinScore       int      `json:"min_score"`
	MaxScore       int      `json:"max_score"`
	MinValue       float64  `json:"min_value"`
	MaxValue       float64  `json:"max_value"`
	Cities         []string `json:"cities"`
	OwnerTypes     []string `json:"owner_types"`
	ShowEntitled   bool     `json:"show_entitled"`
	ShowUnentitled bool     `json:"show_unentitled"`
}

// DefaultState admits every lead.
func DefaultState() State {
	return State{
		MinScore:       model.MinScore,
		MaxScore:       model.MaxScore,
		MinValue:       0,
		MaxValue:       MaxPropertyValue,
		Cities:         []string{},
		OwnerTypes:     []string{},
		ShowEntitled:   true,
		ShowUnentitled: true,
	}
}

// Normalize clamps the score bounds into [0,100] and swaps inverted ranges.
func (s State) Normalize() State {
	s.MinScore = model.ClampScore(s.MinScore)
	s.MaxScore = model.ClampScore(s.MaxScore)
	if s.MinScore > s.MaxScore {
		s.MinScore, s.MaxScore = s.MaxScore, s.MinScore
	}
	if s.MinValue > s.MaxValue {
		s.MinValue, s.MaxValue = s.MaxValue, s.MinValue
	}
	return s
}

// Equal reports whether two states filter identically.
func (s State) Equal(o State) bool {
	return s.MinScore == o.MinScore &&
		s.MaxScore == o.MaxScore &&
		s.MinValue == o.MinValue &&
		s.MaxValue == o.MaxValue &&
		s.ShowEntitled == o.ShowEntitled &&
		s.ShowUnentitled == o.ShowUnentitled &&
		slices.Equal(s.Cities, o.Cities) &&
		slices.Equal(s.OwnerTypes, o.OwnerTypes)
}

// Match reports whether lead passes every clause.
func Match(lead model.Lead, query string, s State, entitled model.IDSet) bool {
	if query != "" && !matchesText(lead, strings.ToLower(query)) {
		return false
	}

	if lead.IntelligenceScore < s.MinScore || lead.IntelligenceScore > s.MaxScore {
		return false
	}

	value := lead.Meta.PropertyValue()
	if value < s.MinValue || value > s.MaxValue {
		return false
	}

	isEntitled := entitled.Has(lead.ID)
	if isEntitled && !s.ShowEntitled {
		return false
	}
	if !isEntitled && !s.ShowUnentitled {
		return false
	}
	return true
}

func matchesText(lead model.Lead, q string) bool {
	for _, field := range []string{lead.Company, lead.Meta.City(), lead.Meta.Location(), lead.Meta.OwnerType()} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Apply returns the leads that match, in input order.
func Apply(leads []model.Lead, query string, s State, entitled model.IDSet) []model.Lead {
	out := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if Match(l, query, s, entitled) {
			out = append(out, l)
		}
	}
	return out
}

// Input identifies one filter evaluation. The generations stand in for the
// identity of the lead page and the entitlement set: callers bump them
// whenever either is replaced or mutated.
type Input struct {
	Leads       []model.Lead
	LeadsGen    uint64
	Entitled    model.IDSet
	EntitledGen uint64
	Query       string
	State       State
}

// Memo caches the last Apply result and returns it while the inputs are
// unchanged.
type Memo struct {
	mu       sync.Mutex
	valid    bool
	last     Input
	result   []model.Lead
	computed int
}

// Apply returns the filtered leads for in, recomputing only on change.
func (m *Memo) Apply(in Input) []model.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid &&
		m.last.LeadsGen == in.LeadsGen &&
		m.last.EntitledGen == in.EntitledGen &&
		m.last.Query == in.Query &&
		m.last.State.Equal(in.State) {
		return m.result
	}

	m.result = Apply(in.Leads, in.Query, in.State, in.Entitled)
	m.last = in
	m.valid = true
	m.computed++
	return m.result
}

// Computations reports how many times the result was actually computed.
func (m *Memo) Computations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.computed
}

// Reset drops the cached result.
func (m *Memo) Reset() {
	m.mu.Lock()
	m.valid = false
	m.result = nil
	m.mu.Unlock()
}
