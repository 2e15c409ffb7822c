// Package api exposes dashboard sessions over HTTP.
package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgate/internal/dashboard"
	"github.com/sells-group/leadgate/internal/metrics"
)

// UserHeader carries the caller identity set by the upstream auth proxy.
const UserHeader = "X-User-ID"

// Options configures a Server.
type Options struct {
	Metrics         *metrics.Metrics
	Gatherer        prometheus.Gatherer
	CORSOrigins     []string
	UnlockPerMinute int
}

// Server routes HTTP requests to per-user dashboard sessions.
type Server struct {
	sessions *dashboard.Manager
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	origins  []string
	limits   *userLimiter
}

// NewServer creates a Server over mgr.
func NewServer(mgr *dashboard.Manager, opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		sessions: mgr,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		origins:  opts.CORSOrigins,
		limits:   newUserLimiter(opts.UnlockPerMinute),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", UserHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(api chi.Router) {
		api.Use(requireUser)
		api.Get("/dashboard", s.handleDashboard)
		api.Get("/leads/{id}", s.handleLead)
		api.Post("/selection/toggle", s.handleToggle)
		api.Post("/selection/all", s.handleSelectAll)
		api.Delete("/selection", s.handleClearSelection)
		api.Post("/unlock", s.handleUnlock)
		api.Post("/refresh", s.handleRefresh)
		api.Get("/notifications", s.handleNotifications)
		api.Get("/commands", s.handleCommands)
	})

	return r
}

// observe logs and counts every request by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(r.Method, route, strconv.Itoa(status), elapsed)

		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// userLimiter hands out one token bucket per user.
type userLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newUserLimiter(perMinute int) *userLimiter {
	if perMinute <= 0 {
		return &userLimiter{limit: rate.Inf}
	}
	return &userLimiter{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (u *userLimiter) Allow(userID string) bool {
	if u.limit == rate.Inf {
		return true
	}
	u.mu.Lock()
	l, ok := u.limiters[userID]
	if !ok {
		l = rate.NewLimiter(u.limit, u.burst)
		u.limiters[userID] = l
	}
	u.mu.Unlock()
	return l.Allow()
}
