// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	scs "github.com/alexedwards/scs/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tom2tomtomtom/airwave/cache"
	"github.com/tom2tomtomtom/airwave/internal/auth"
	"github.com/tom2tomtomtom/airwave/internal/catalog"
	"github.com/tom2tomtomtom/airwave/internal/config"
	"github.com/tom2tomtomtom/airwave/internal/db"
	"github.com/tom2tomtomtom/airwave/internal/http/routes"
	"github.com/tom2tomtomtom/airwave/internal/jobs"
	"github.com/tom2tomtomtom/airwave/internal/logger"
	"github.com/tom2tomtomtom/airwave/internal/secrets"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New("info", false)
		l.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Cache: memory L1, Redis L2 when reachable
	l1 := cache.NewMemoryStore(cache.WithMaxEntries(cfg.Cache.MaxEntries))
	l1.StartJanitor(ctx, cfg.Cache.JanitorInterval)

	var (
		store  cache.Store = l1
		queue  routes.Enqueuer
		checks = map[string]routes.HealthCheck{}
	)
	if cfg.Cache.RedisEnabled {
		rc, err := cache.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using memory cache only")
		} else {
			defer rc.Close() //nolint:errcheck
			l2 := cache.NewRedisStore(rc, cfg.Cache.RedisPrefix, nil)
			store = cache.NewLayeredStore(l1, l2)
			checks["redis"] = l2.Ping

			client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
			defer func() {
				if err := client.Close(); err != nil {
					log.Error().Err(err).Msg("close asynq client")
				}
			}()
			queue = client
		}
	}

	fetcher := cache.NewFetcher(cache.Instrument(store),
		cache.WithLogger(log.With().Str("component", "cache").Logger()),
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithLoadTimeout(cfg.Cache.LoadTimeout),
	)

	// Catalog storage
	var repo catalog.Repository
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, serving an in-memory catalog")
		repo = catalog.NewMemoryRepository()
	} else {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("db error")
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("db schema")
		}
		repo = catalog.NewPGRepository(db.New(pool))
		checks["postgres"] = pool.Ping
	}

	box, err := secrets.New(cfg.SecretKey)
	if err != nil {
		log.Fatal().Err(err).Msg("secrets")
	}
	svc := catalog.NewService(repo, fetcher, box, log)

	warmer := cache.NewWarmer(fetcher, log.With().Str("component", "warmer").Logger(), cache.DefaultWarmupConfig())

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		cache.NewCollector("api", fetcher),
	)

	// Sessions
	sess := scs.New()
	sess.Lifetime = 12 * time.Hour
	sess.Cookie.HttpOnly = true
	sess.Cookie.SameSite = http.SameSiteLaxMode
	sess.Cookie.Secure = cfg.SecureCookie

	s := routes.New(routes.ServerOptions{
		Sess:    sess,
		Catalog: svc,
		Signer:  auth.NewSigner(cfg.JWTSecret),
		Queue:   queue,
		Warm:    jobs.NewWarmHandler(svc, warmer, log),
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Checks:  checks,
		Logger:  log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("base_url", cfg.BaseURL).Msg("starting api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	shutdown(srv, fetcher, log)
}

func shutdown(srv *http.Server, fetcher *cache.Fetcher, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	log.Info().Msg("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	fetcher.Wait()
}
