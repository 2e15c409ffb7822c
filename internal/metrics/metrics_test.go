package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementUnlock(OutcomeSuccess)
	m.IncrementUnlock(OutcomeSuccess)
	m.IncrementUnlock(OutcomeInsufficient)
	m.AddUnlocked(3)
	m.IncrementLoad(LoadPartial)
	m.IncrementReadFailure("credits")
	m.ObserveUnlockLatency(120 * time.Millisecond)
	m.ObserveRequest("GET", "/api/dashboard", "200", 5*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.UnlockAttempts.WithLabelValues(OutcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.UnlockAttempts.WithLabelValues(OutcomeInsufficient)), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.LeadsUnlocked), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SessionLoads.WithLabelValues(LoadPartial)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ReadFailures.WithLabelValues("credits")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/dashboard", "200")), 0)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementUnlock(OutcomeFailed)
		m.AddUnlocked(1)
		m.ObserveUnlockLatency(time.Second)
		m.IncrementLoad(LoadError)
		m.IncrementReadFailure("leads")
		m.ObserveRequest("POST", "/api/unlock", "502", time.Second)
	})
}
