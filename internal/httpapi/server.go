// Package httpapi exposes the focusflow service over HTTP.
//
// All routes under /api/v1 except /api/v1/health require an HS256 bearer
// token whose subject is the user ID. Errors are returned as
//
//	{"error": {"code": "...", "message": "..."}}
//
// and 429 responses carry "remaining" and a Retry-After header when known.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aadithya-v/focusflow"
	"github.com/aadithya-v/focusflow/internal/assistant"
	"github.com/aadithya-v/focusflow/internal/lifecycle"
	"github.com/aadithya-v/focusflow/internal/logging"
	"github.com/aadithya-v/focusflow/internal/metrics"
	"github.com/aadithya-v/focusflow/store"
)

// Config tunes the HTTP API.
type Config struct {
	// RequestsPerMinute is the per-IP ceiling in front of /api/v1.
	// Zero disables it.
	RequestsPerMinute int

	// AllowedOrigins for websocket upgrades. Empty allows any origin.
	AllowedOrigins []string

	// ChatLimit messages are allowed per ChatWindow.
	// Default: 30 per 5 minutes.
	ChatLimit  int
	ChatWindow time.Duration

	// OracleWindow is the backup limit of one oracle consultation per window.
	// Default: 24 hours.
	OracleWindow time.Duration

	// PingInterval for room event websockets.
	// Default: 30 seconds.
	PingInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.ChatLimit <= 0 {
		c.ChatLimit = 30
	}
	if c.ChatWindow <= 0 {
		c.ChatWindow = 5 * time.Minute
	}
	if c.OracleWindow <= 0 {
		c.OracleWindow = 24 * time.Hour
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
}

// Deps are the collaborators behind the API.
type Deps struct {
	Service *focusflow.Service
	Ledger  store.SessionLedger
	Auth    *Authenticator
	Oracle  assistant.Generator
	Chat    assistant.Generator
	Quote   assistant.Generator
}

// Server serves the HTTP API.
type Server struct {
	svc      *focusflow.Service
	coord    *lifecycle.Coordinator
	ledger   store.SessionLedger
	auth     *Authenticator
	oracle   assistant.Generator
	chat     assistant.Generator
	quote    assistant.Generator
	cfg      Config
	upgrader websocket.Upgrader
}

// New creates a Server. Missing generators default to the offline ones.
func New(deps Deps, cfg Config) *Server {
	cfg.applyDefaults()

	s := &Server{
		svc:    deps.Service,
		coord:  lifecycle.New(deps.Service, deps.Ledger, lifecycle.Config{}),
		ledger: deps.Ledger,
		auth:   deps.Auth,
		oracle: deps.Oracle,
		chat:   deps.Chat,
		quote:  deps.Quote,
		cfg:    cfg,
	}
	if s.oracle == nil {
		s.oracle = assistant.NewOracleFallback()
	}
	if s.chat == nil {
		s.chat = assistant.NewChatFallback()
	}
	if s.quote == nil {
		s.quote = assistant.NewQuoteFallback()
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      s.checkOrigin,
	}
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(requestContext)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(instrument)
		r.Get("/", s.handleHealth)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RequestsPerMinute > 0 {
			r.Use(httprate.Limit(
				s.cfg.RequestsPerMinute,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeLimited(w, "RATE_LIMITED", "Too many requests", -1, 0)
				}),
			))
		}
		r.Use(instrument)
		r.Use(s.auth.Middleware)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/start", s.handleStartSession)
			r.Post("/pause", s.handlePauseSession)
			r.Post("/resume", s.handleResumeSession)
			r.Post("/cancel", s.handleCancelSession)
			r.Post("/complete", s.handleCompleteSession)
			r.Get("/history", s.handleSessionHistory)
			r.Get("/{sessionID}/timer", s.handleSessionTimer)
		})

		r.Route("/rooms", func(r chi.Router) {
			r.Post("/join", s.handleJoinRoom)
			r.Post("/leave", s.handleLeaveRoom)
			r.Get("/{roomID}/presence", s.handleRoomPresence)
			r.Get("/{roomID}/events", s.handleRoomEvents)
			r.Put("/{roomID}/status", s.handleRoomStatus)
		})

		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/stats", s.handleStats)

		r.Route("/ai", func(r chi.Router) {
			r.Post("/chat", s.handleChat)
			r.Post("/oracle", s.handleOracle)
			r.Get("/oracle/today", s.handleOracleToday)
			r.Get("/oracle/history", s.handleOracleHistory)
			r.Post("/oracle/feedback", s.handleOracleFeedback)
			r.Post("/deep-work-quote", s.handleDeepWorkQuote)
		})
	})

	return r
}

// requestContext carries chi's request ID into the logging context.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chimiddleware.GetReqID(r.Context())
		if id == "" {
			id = logging.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

// instrument records request latency by route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Method, route, status, time.Since(start))
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Ctx(r.Context()).Warn().Str("origin", origin).Msg("Websocket connection rejected from unauthorized origin")
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.svc.HealthCheck(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "store": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "store": true})
}
