package model

// Feature flag keys consumed by the dashboard.
const (
	FlagAnalyticsDashboard = "ENABLE_ANALYTICS_DASHBOARD"
	FlagDetailPanel        = "ENABLE_DETAIL_PANEL"
	FlagCommandPalette     = "ENABLE_COMMAND_PALETTE"
)

// FeatureFlags maps flag keys to their enabled state.
type FeatureFlags map[string]bool

// Enabled reports whether key is on. Absent keys are off.
func (f FeatureFlags) Enabled(key string) bool {
	return f[key]
}
