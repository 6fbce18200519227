package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"nftmint/internal/apiauth"
	"nftmint/internal/app"
	"nftmint/internal/explorer"
)

type Server struct {
	app        *app.App
	hmac       *apiauth.Verifier
	links      explorer.Links
	logger     *slog.Logger
	now        func() time.Time
	httpServer *http.Server

	// serialises idempotency lookups with job creation
	mintMu sync.Mutex

	dbHealthFn  func(context.Context) error
	rpcHealthFn func(context.Context) error
}

func NewServer(a *app.App, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := a.Config

	s := &Server{
		app: a,
		hmac: &apiauth.Verifier{
			Secret:  cfg.Service.HMACSecret,
			MaxSkew: cfg.Service.HMACClockSkew,
		},
		links:       explorer.Links{Base: cfg.Chain.ExplorerURL},
		logger:      logger,
		now:         time.Now,
		rpcHealthFn: a.Ping,
	}
	if checker, ok := a.Store.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// Routes builds the API router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", s.app.Metrics.Handler())

		r.Get("/session", s.handleSession)
		r.Get("/collection", s.handleCollection)
		r.Get("/mints/current", s.handleCurrentMint)
		r.Get("/mints/{id}", s.handleGetMint)

		r.Group(func(r chi.Router) {
			r.Use(s.hmac.Middleware)
			r.Post("/session/connect", s.handleConnect)
			r.Post("/session/disconnect", s.handleDisconnect)
			r.Post("/mints", s.handleMint)
			r.Post("/collection/refresh", s.handleRefresh)
		})
	})
	return r
}

func (s *Server) Start() error {
	s.logger.Info("API listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"request_id", middleware.GetReqID(r.Context()),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
