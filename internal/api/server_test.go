package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgate/internal/backend"
	"github.com/sells-group/leadgate/internal/backend/mocks"
	"github.com/sells-group/leadgate/internal/dashboard"
	"github.com/sells-group/leadgate/internal/metrics"
	"github.com/sells-group/leadgate/internal/model"
)

func seededBackend(t *testing.T, leads, credits int) *backend.SQLite {
	t.Helper()
	b, err := backend.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() }) //nolint:errcheck

	ctx := context.Background()
	require.NoError(t, b.Migrate(ctx))
	rows := make([]model.Lead, leads)
	for i := range rows {
		rows[i] = model.Lead{
			ID:                fmt.Sprintf("lead-%02d", i),
			Company:           fmt.Sprintf("Lakeview Partners %d", i),
			Email:             fmt.Sprintf("contact%d@lakeview.com", i),
			IntelligenceScore: 50 + i,
			Meta:              model.Meta{"city": "Austin"},
		}
	}
	_, err = b.UpsertLeads(ctx, rows)
	require.NoError(t, err)
	require.NoError(t, b.GrantCredits(ctx, "user-1", credits, "welcome"))
	require.NoError(t, b.SetFeatureFlag(ctx, model.FlagDetailPanel, true, ""))
	return b
}

func newTestServer(t *testing.T, b backend.Backend, perMinute int) http.Handler {
	t.Helper()
	cfg := dashboard.DefaultConfig()
	cfg.SettleDelay = time.Millisecond
	cfg.UnlockTimeout = 2 * time.Second

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	srv := NewServer(dashboard.NewManager(b, m, cfg), Options{
		Metrics:         m,
		Gatherer:        reg,
		UnlockPerMinute: perMinute,
	})
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, seededBackend(t, 1, 0), 0)

	rr := do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", decode[map[string]string](t, rr)["status"])
}

func TestMissingUserIsUnauthorized(t *testing.T) {
	h := newTestServer(t, seededBackend(t, 1, 0), 0)

	rr := do(t, h, http.MethodGet, "/api/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDashboard_Filters(t *testing.T) {
	h := newTestServer(t, seededBackend(t, 5, 3), 0)

	rr := do(t, h, http.MethodGet, "/api/dashboard?min_score=52", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[dashboard.Page](t, rr)
	assert.Equal(t, 3, page.Grid.FilteredCount)
	assert.Equal(t, 5, page.Grid.TotalCount)
	assert.Equal(t, "lead-04", page.Grid.Cards[0].ID)
	assert.Equal(t, "Lak••••••••••", page.Grid.Cards[0].Company)

	rr = do(t, h, http.MethodGet, "/api/dashboard?min_score=abc", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/dashboard?q=nowhere", "user-1", nil)
	page = decode[dashboard.Page](t, rr)
	assert.Equal(t, 0, page.Grid.FilteredCount)
}

func TestLeadDetail(t *testing.T) {
	h := newTestServer(t, seededBackend(t, 2, 0), 0)

	rr := do(t, h, http.MethodGet, "/api/leads/lead-01", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "co•••@lakeview.com")

	rr = do(t, h, http.MethodGet, "/api/leads/nope", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUnlockFlow(t *testing.T) {
	h := newTestServer(t, seededBackend(t, 4, 2), 0)

	rr := do(t, h, http.MethodPost, "/api/unlock", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/selection/all", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(4), decode[map[string]any](t, rr)["count"])

	rr = do(t, h, http.MethodPost, "/api/unlock", "user-1", nil)
	assert.Equal(t, http.StatusPaymentRequired, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, "Insufficient credits. Need 4, have 2", body["error"])
	assert.Equal(t, float64(2), body["shortfall"])

	rr = do(t, h, http.MethodDelete, "/api/selection", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	for _, id := range []string{"lead-00", "lead-01"} {
		rr = do(t, h, http.MethodPost, "/api/selection/toggle", "user-1", map[string]string{"id": id})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, true, decode[map[string]any](t, rr)["selected"])
	}

	rr = do(t, h, http.MethodPost, "/api/unlock", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var res struct {
		Unlocked int            `json:"unlocked"`
		Page     dashboard.Page `json:"page"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Unlocked)
	assert.Equal(t, 0, res.Page.Credits)
	assert.Empty(t, res.Page.Unlock.Selected)

	rr = do(t, h, http.MethodGet, "/api/leads/lead-01", "user-1", nil)
	assert.Contains(t, rr.Body.String(), "contact1@lakeview.com")

	rr = do(t, h, http.MethodGet, "/api/notifications", "user-1", nil)
	assert.Contains(t, rr.Body.String(), "Successfully unlocked 2 properties!")
}

func TestToggle_BadBody(t *testing.T) {
	h := newTestServer(t, seededBackend(t, 1, 0), 0)

	req := httptest.NewRequest(http.MethodPost, "/api/selection/toggle", strings.NewReader("{"))
	req.Header.Set(UserHeader, "user-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/selection/toggle", "user-1", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUnlock_BackendFailureIsBadGateway(t *testing.T) {
	m := mocks.NewMockBackend(t)
	m.On("ListLeads", mock.Anything, 100).Return([]model.Lead{{ID: "a", Company: "Acme Holdings"}}, nil)
	m.On("GetDashboardMetrics", mock.Anything).Return(&model.DashboardMetrics{}, nil)
	m.On("GetStageBreakdown", mock.Anything).Return([]model.StageCount{}, nil)
	m.On("GetFeatureFlags", mock.Anything).Return(model.FeatureFlags{}, nil)
	m.On("GetEntitledLeadIDs", mock.Anything, "user-1").Return(model.NewIDSet(), nil)
	m.On("GetUserCredits", mock.Anything, "user-1").Return(5, nil)
	m.On("UnlockLeads", mock.Anything, "user-1", []string{"a"}).
		Return(&backend.RejectedError{Reason: "Unknown properties in request: 1"})

	h := newTestServer(t, m, 0)
	do(t, h, http.MethodPost, "/api/selection/toggle", "user-1", map[string]string{"id": "a"})

	rr := do(t, h, http.MethodPost, "/api/unlock", "user-1", nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "Unknown properties in request: 1", decode[map[string]string](t, rr)["error"])
}

func TestUnlock_RateLimited(t *testing.T) {
	h := newTestServer(t, seededBackend(t, 1, 0), 1)

	rr := do(t, h, http.MethodPost, "/api/unlock", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/unlock", "user-1", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/unlock", "user-2", nil)
	assert.NotEqual(t, http.StatusTooManyRequests, rr.Code)
}

func TestCommands(t *testing.T) {
	h := newTestServer(t, seededBackend(t, 1, 0), 0)

	rr := do(t, h, http.MethodGet, "/api/commands?q=dash", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Go to Dashboard")
	assert.NotContains(t, rr.Body.String(), "Go to Admin")
}

func TestRefreshAndMetrics(t *testing.T) {
	h := newTestServer(t, seededBackend(t, 1, 0), 0)

	rr := do(t, h, http.MethodPost, "/api/refresh", "user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, uint64(2), decode[dashboard.Page](t, rr).Generation)

	rr = do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "leadgate_session_loads_total")
	assert.Contains(t, rr.Body.String(), "leadgate_http_requests_total")
}
