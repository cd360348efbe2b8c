package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/tom2tomtomtom/airwave/cache"
	"github.com/tom2tomtomtom/airwave/internal/catalog"
	"github.com/tom2tomtomtom/airwave/internal/config"
	"github.com/tom2tomtomtom/airwave/internal/db"
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
	if err := cfg.ValidateWorker(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to database")
	}
	defer pool.Close()

	// The worker fills the shared Redis layer that API instances read as L2
	rc, err := cache.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Msg("redis")
	}
	defer rc.Close() //nolint:errcheck

	fetcher := cache.NewFetcher(
		cache.Instrument(cache.NewRedisStore(rc, cfg.Cache.RedisPrefix, nil)),
		cache.WithLogger(log.With().Str("component", "cache").Logger()),
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithLoadTimeout(cfg.Cache.LoadTimeout),
	)

	box, err := secrets.New(cfg.SecretKey)
	if err != nil {
		log.Fatal().Err(err).Msg("secrets")
	}
	svc := catalog.NewService(catalog.NewPGRepository(db.New(pool)), fetcher, box, log)

	warmer := cache.NewWarmer(fetcher, log.With().Str("component", "warmer").Logger(), cache.WarmupConfig{
		Timeout:         cfg.Worker.WarmTimeout,
		ContinueOnError: true,
		Parallel:        true,
		Concurrency:     cfg.Worker.Concurrency,
	})
	handler := jobs.NewWarmHandler(svc, warmer, log.With().Str("component", "jobs").Logger())

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	alog := asynqLogger{log.With().Str("component", "asynq").Logger()}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    cfg.Worker.Concurrency,
		StrictPriority: false,
		Queues: map[string]int{
			jobs.QueueWarm:    10, // higher priority
			jobs.QueueDefault: 5,
		},
		Logger: alog,
	})
	mux := asynq.NewServeMux()
	mux.Handle(jobs.TaskWarmCache, handler)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: alog, Location: time.UTC})
	task, err := jobs.NewWarmTask(jobs.WarmPayload{})
	if err != nil {
		log.Fatal().Err(err).Msg("build warm task")
	}
	entryID, err := scheduler.Register(cfg.Worker.WarmSchedule, task)
	if err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Worker.WarmSchedule).Msg("register warm schedule")
	}
	log.Info().Str("entry", entryID).Str("schedule", cfg.Worker.WarmSchedule).Msg("warm scheduled")

	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("start scheduler")
	}
	defer scheduler.Shutdown()

	if err := srv.Start(mux); err != nil {
		log.Fatal().Err(err).Msg("start worker")
	}
	log.Info().Msg("worker running")

	<-ctx.Done()
	srv.Shutdown()
	fetcher.Wait()
}

// asynqLogger routes asynq's logs through zerolog
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }

var _ asynq.Logger = asynqLogger{}
