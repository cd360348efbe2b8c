package routes

import (
	"context"
	"net/http"
	"time"

	scs "github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/tom2tomtomtom/airwave/cache"
	"github.com/tom2tomtomtom/airwave/internal/auth"
	"github.com/tom2tomtomtom/airwave/internal/catalog"
	appmw "github.com/tom2tomtomtom/airwave/internal/http/middleware"
	"github.com/tom2tomtomtom/airwave/internal/jobs"
)

// Enqueuer is the part of asynq.Client the server uses
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Server struct {
	Router  *chi.Mux
	Sess    *scs.SessionManager
	Catalog *catalog.Service
	Cache   *cache.Fetcher
	Signer  auth.Signer
	Queue   Enqueuer          // nil warms inline
	Warm    *jobs.WarmHandler // validates warm requests, runs them when Queue is nil
	Checks  map[string]HealthCheck
	Logger  zerolog.Logger
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

type ServerOptions struct {
	Sess    *scs.SessionManager
	Catalog *catalog.Service
	Signer  auth.Signer
	Queue   Enqueuer
	Warm    *jobs.WarmHandler
	Metrics http.Handler
	Checks  map[string]HealthCheck // run by /healthz, e.g. "redis"
	Logger  zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)

	s := &Server{
		Router:  r,
		Sess:    opts.Sess,
		Catalog: opts.Catalog,
		Cache:   opts.Catalog.Fetcher(),
		Signer:  opts.Signer,
		Queue:   opts.Queue,
		Warm:    opts.Warm,
		Checks:  opts.Checks,
		Logger:  opts.Logger,
	}

	r.Get("/healthz", s.handleHealth)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Group(func(pr chi.Router) {
		pr.Use(appmw.RequireAuth(s.Sess, s.Signer))

		pr.Route("/api", func(api chi.Router) {
			api.Get("/clients", s.handleListClients)
			api.Post("/clients", s.handleCreateClient)
			api.Get("/clients/{clientID}", s.handleGetClient)
			api.Put("/clients/{clientID}", s.handleUpdateClient)
			api.Delete("/clients/{clientID}", s.handleDeleteClient)
			api.Get("/clients/{clientID}/social-token", s.handleSocialToken)

			api.Get("/assets", s.handleListAssets)
			api.Post("/assets", s.handleCreateAsset)

			api.Get("/campaigns", s.handleListCampaigns)
		})

		pr.Route("/cache", func(c chi.Router) {
			c.Get("/stats", s.handleCacheStats)
			c.Post("/invalidate", s.handleCacheInvalidate)
			c.Delete("/", s.handleCacheClear)
			c.Post("/warm", s.handleCacheWarm)
		})
	})

	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, check := range s.Checks {
		if err := check(ctx); err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("check", name).Msg("health check failed")
			http.Error(w, name+" unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	if _, err := w.Write([]byte("ok")); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("write health check response")
	}
}

// Handler returns the router wrapped with session loading
func (s *Server) Handler() http.Handler {
	if s.Sess == nil {
		return s.Router
	}
	return s.Sess.LoadAndSave(s.Router)
}
