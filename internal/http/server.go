package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"slipdash/internal/api"
	"slipdash/internal/cache"
	"slipdash/internal/log"
	"slipdash/internal/middleware/ratelimit"
	"slipdash/internal/middleware/security"
	"slipdash/internal/middleware/trace"
	"slipdash/internal/preview"
	"slipdash/internal/review"
	"slipdash/internal/session"
)

const (
	defaultMaxUpload     = 10 << 20
	defaultSweepInterval = time.Minute
	// multipartSlack covers the multipart framing around the file.
	multipartSlack = 1 << 20
)

// BackendAPI is the part of the expense backend the server calls.
type BackendAPI interface {
	review.Backend
	Login(ctx context.Context, username, password string) (api.LoginResult, error)
	Register(ctx context.Context, r api.RegisterRequest) error
	Dashboard(ctx context.Context, token string, view api.RangeKind) (api.Dashboard, error)
	ListTransactions(ctx context.Context, token string, q api.TransactionQuery) ([]api.Transaction, error)
	Stats(ctx context.Context, token string, q api.RangeQuery) (api.Stats, error)
}

// Config holds the listener settings and request limits.
type Config struct {
	Addr               string
	MaxUploadBytes     int64
	RequestsPerMinute  int
	CacheSweepInterval time.Duration
	SecureCookies      bool
	TrustedProxies     []string
}

// Deps are the collaborators the handlers use.
type Deps struct {
	API      BackendAPI
	Sessions *session.Manager
	Handoff  *review.Handoff
	Screens  *review.Registry
	Previews *preview.Store
	// Ping checks the storage backend for /readyz; nil skips the check.
	Ping   func(context.Context) error
	Logger *log.Logger
}

type Server struct {
	http.Server
	config   Config
	api      BackendAPI
	sessions *session.Manager
	handoff  *review.Handoff
	screens  *review.Registry
	previews *preview.Store
	ping     func(context.Context) error
	logger   *log.Logger

	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	caches   *cache.Manager

	started      time.Time
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server. The
// screen registry is swept for idle screens until Shutdown.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if cfg.CacheSweepInterval <= 0 {
		cfg.CacheSweepInterval = defaultSweepInterval
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}

	s := &Server{
		config:   cfg,
		api:      deps.API,
		sessions: deps.Sessions,
		handoff:  deps.Handoff,
		screens:  deps.Screens,
		previews: deps.Previews,
		ping:     deps.Ping,
		logger:   logger.WithComponent(log.ComponentHTTP),
		detector: security.NewDetector(logger),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RequestsPerMinute}),
		caches:   cache.NewManager(logger),
		started:  time.Now(),
		now:      time.Now,
	}
	for _, cidr := range cfg.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, log.FieldError, err.Error())
		}
	}
	s.tracer = trace.NewMiddleware(s.detector.ClientIP, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)

	mux.HandleFunc("POST /slips", s.handleUpload)
	mux.HandleFunc("GET /slips/current", s.handleCurrentSlip)
	mux.HandleFunc("GET /slips/{id}", s.handleGetSlip)
	mux.HandleFunc("GET /slips/{id}/preview", s.handlePreview)
	mux.HandleFunc("PATCH /slips/{id}", s.handleEditSlip)
	mux.HandleFunc("PUT /slips/{id}/category", s.handleSelectCategory)
	mux.HandleFunc("POST /slips/{id}/save", s.handleSaveSlip)
	mux.HandleFunc("DELETE /slips/{id}", s.handleCancelSlip)

	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/transactions", s.handleTransactions)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/overview", s.handleOverview)

	var h http.Handler = mux
	h = s.limitBody(h)
	h = s.limiter.Middleware(s.detector.ClientIP, ratelimit.Mutating, s.onRateLimited)(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if s.screens != nil {
		s.caches.Register(s.screens)
	}
	s.caches.StartCleanup(cfg.CacheSweepInterval)
	return s
}

// limitBody caps every request body at the upload limit plus multipart framing.
func (s *Server) limitBody(next http.Handler) http.Handler {
	limit := s.config.MaxUploadBytes + multipartSlack
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ClientIP(r), log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
}

// Shutdown stops accepting requests, waits for in-flight ones, then closes
// every open review screen and stops the background sweepers.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
		s.caches.Stop()
		s.limiter.Stop()
		if s.screens != nil {
			if n := s.screens.CloseAll(); n > 0 {
				s.logger.Info("Closed open review screens", "count", n)
			}
		}
	})
	return shutdownErr
}
