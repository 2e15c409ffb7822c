package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/dashboard"
	"github.com/sells-group/leadgate/internal/filter"
	"github.com/sells-group/leadgate/internal/unlock"
	"github.com/sells-group/leadgate/internal/view"
)

type ctxKey int

const userKey ctxKey = iota

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserHeader)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+UserHeader)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, userID)))
	})
}

func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(userKey).(string)
	return id
}

func (s *Server) session(r *http.Request) *dashboard.Session {
	return s.sessions.Get(r.Context(), userFrom(r.Context()))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	query, state, err := parseFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess := s.session(r)
	sess.SetQuery(query, state)
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleLead(w http.ResponseWriter, r *http.Request) {
	d, err := s.session(r).Detail(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, dashboard.ErrLeadNotFound), errors.Is(err, dashboard.ErrDetailDisabled):
		writeError(w, http.StatusNotFound, "lead not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, d)
	}
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	sess := s.session(r)
	selected := sess.Toggle(req.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        req.ID,
		"selected":  selected,
		"selection": sess.Selection(),
	})
}

func (s *Server) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	sess.SelectAll()
	writeJSON(w, http.StatusOK, sess.Selection())
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	sess.ClearSelection()
	writeJSON(w, http.StatusOK, sess.Selection())
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r.Context())
	if !s.limits.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "too many unlock requests")
		return
	}

	sess := s.session(r)
	n, err := sess.Unlock(r.Context())

	var ice *unlock.InsufficientCreditsError
	var failed *unlock.FailedError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"unlocked": n,
			"page":     sess.View(),
		})
	case errors.Is(err, unlock.ErrEmptySelection):
		writeError(w, http.StatusBadRequest, unlock.MsgEmptySelection)
	case errors.As(err, &ice):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":     ice.Error(),
			"need":      ice.Need,
			"have":      ice.Have,
			"shortfall": ice.Shortfall(),
		})
	case errors.Is(err, unlock.ErrUnlockInProgress):
		writeError(w, http.StatusConflict, "unlock already in progress")
	case errors.Is(err, unlock.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, unlock.MsgTimeout)
	case errors.As(err, &failed):
		writeError(w, http.StatusBadGateway, failed.Message)
	default:
		zap.L().Error("api: unlock", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	_ = sess.Refresh(r.Context())
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session(r).Feed().Active())
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"commands": view.Commands(r.URL.Query().Get("q")),
		"empty":    view.NoCommands,
	})
}

// parseFilters reads the search text and filter panel from query params.
// Absent params keep their defaults.
func parseFilters(r *http.Request) (string, filter.State, error) {
	q := r.URL.Query()
	st := filter.DefaultState()

	ints := map[string]*int{"min_score": &st.MinScore, "max_score": &st.MaxScore}
	for key, dst := range ints {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return "", st, errors.New("invalid " + key)
			}
			*dst = n
		}
	}
	floats := map[string]*float64{"min_value": &st.MinValue, "max_value": &st.MaxValue}
	for key, dst := range floats {
		if v := q.Get(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return "", st, errors.New("invalid " + key)
			}
			*dst = f
		}
	}
	bools := map[string]*bool{"show_entitled": &st.ShowEntitled, "show_unentitled": &st.ShowUnentitled}
	for key, dst := range bools {
		if v := q.Get(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return "", st, errors.New("invalid " + key)
			}
			*dst = b
		}
	}
	if cities := q["city"]; len(cities) > 0 {
		st.Cities = cities
	}
	if owners := q["owner_type"]; len(owners) > 0 {
		st.OwnerTypes = owners
	}
	return q.Get("q"), st, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
