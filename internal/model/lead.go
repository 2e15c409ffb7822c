package model

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Workflow represents the sales stage a lead is in.
type Workflow string

const (
	WorkflowNew          Workflow = "new"
	WorkflowTriaged      Workflow = "triaged"
	WorkflowQualified    Workflow = "qualified"
	WorkflowInSequence   Workflow = "in_sequence"
	WorkflowEngaged      Workflow = "engaged"
	WorkflowWon          Workflow = "won"
	WorkflowLost         Workflow = "lost"
	WorkflowDoNotContact Workflow = "do_not_contact"
)

// Valid reports whether w is one of the known workflow stages.
func (w Workflow) Valid() bool {
	switch w {
	case WorkflowNew, WorkflowTriaged, WorkflowQualified, WorkflowInSequence,
		WorkflowEngaged, WorkflowWon, WorkflowLost, WorkflowDoNotContact:
		return true
	default:
		return false
	}
}

const (
	MinScore = 0
	MaxScore = 100
)

// Lead is a property/company record with contact and valuation metadata.
type Lead struct {
	ID                string    `json:"id" yaml:"id"`
	Company           string    `json:"company" yaml:"company"`
	Website           string    `json:"website,omitempty" yaml:"website"`
	Domain            string    `json:"domain,omitempty" yaml:"domain"`
	LogoURL           string    `json:"logo_url,omitempty" yaml:"logo_url"`
	Email             string    `json:"email,omitempty" yaml:"email"`
	Phone             string    `json:"phone,omitempty" yaml:"phone"`
	Stage             string    `json:"stage,omitempty" yaml:"stage"`
	ARREstimate       float64   `json:"arr_estimate,omitempty" yaml:"arr_estimate"`
	Employees         int       `json:"employees,omitempty" yaml:"employees"`
	TechStack         []string  `json:"tech_stack,omitempty" yaml:"tech_stack"`
	IntelligenceScore int       `json:"intelligence_score" yaml:"intelligence_score"`
	Workflow          Workflow  `json:"workflow" yaml:"workflow"`
	IsHighPriority    bool      `json:"is_high_priority" yaml:"is_high_priority"`
	IsArchived        bool      `json:"is_archived" yaml:"is_archived"`
	Meta              Meta      `json:"meta" yaml:"meta"`
	CreatedAt         time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" yaml:"updated_at"`
}

// UnmarshalJSON decodes a lead and clamps its score into range.
func (l *Lead) UnmarshalJSON(data []byte) error {
	type alias Lead
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*l = Lead(a)
	l.Normalize()
	return nil
}

// Normalize enforces the lead invariants: score in [0,100], a known workflow
// and a non-nil meta map.
func (l *Lead) Normalize() {
	l.IntelligenceScore = ClampScore(l.IntelligenceScore)
	if !l.Workflow.Valid() {
		l.Workflow = WorkflowNew
	}
	if l.Meta == nil {
		l.Meta = Meta{}
	}
}

// ClampScore bounds an intelligence score to [MinScore, MaxScore].
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Meta is the free-form metadata attached to a lead. Well-known keys have
// typed accessors; every accessor tolerates a missing key.
type Meta map[string]any

// Well-known meta keys.
const (
	MetaPropertyValue = "property_value"
	MetaOwnerType     = "owner_type"
	MetaCity          = "city"
	MetaLastSale      = "last_sale"
	MetaLocation      = "location"
	MetaImageURL      = "image_url"
	MetaSignal        = "signal"
)

// String returns the meta value for key as a string, or "" when absent.
func (m Meta) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Float returns the meta value for key as a finite number. Missing,
// non-numeric, NaN and infinite values yield 0.
func (m Meta) Float(key string) float64 {
	f := m.number(key)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func (m Meta) number(key string) float64 {
	v, ok := m[key]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func (m Meta) PropertyValue() float64 { return m.Float(MetaPropertyValue) }
func (m Meta) OwnerType() string      { return m.String(MetaOwnerType) }
func (m Meta) City() string           { return m.String(MetaCity) }
func (m Meta) LastSale() string       { return m.String(MetaLastSale) }
func (m Meta) Location() string       { return m.String(MetaLocation) }
func (m Meta) ImageURL() string       { return m.String(MetaImageURL) }
func (m Meta) Signal() string         { return m.String(MetaSignal) }

// LedgerEntry is a single signed movement in a user's credit ledger.
// Grants are positive, spends negative.
type LedgerEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason,omitempty"`
	RefType   string    `json:"ref_type,omitempty"`
	RefID     string    `json:"ref_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DashboardMetrics holds the headline numbers for the analytics region.
type DashboardMetrics struct {
	TotalCompanies int     `json:"total_companies"`
	AvgScore       float64 `json:"avg_score"`
}

// StageCount is one row of the stage breakdown.
type StageCount struct {
	Stage        string `json:"stage"`
	CompanyCount int    `json:"company_count"`
}
