package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"eventattendance/internal/attendance"
	"eventattendance/internal/config"
	"eventattendance/internal/feed"
	"eventattendance/internal/httpapi"
	"eventattendance/internal/logging"
	"eventattendance/internal/metrics"
	"eventattendance/internal/queue"
	"eventattendance/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.WithComponent("api")
	checks := map[string]httpapi.HealthCheck{}

	var st attendance.Store
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		st = attendance.NewMemoryStore()
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		checks["db"] = db.Healthy
		st = attendance.NewRepository(db.Client)
	}

	var redisClient *store.Redis
	if cfg.QueueBackend == "redis" || cfg.FeedBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		checks["redis"] = redisClient.Healthy
	}

	var q queue.Queue
	switch cfg.QueueBackend {
	case "memory":
		q = queue.NewInMemory(256)
	case "amqp":
		aq, err := queue.NewAMQPQueue(cfg.AMQPURL, cfg.AMQPExchange, cfg.QueueKey, logging.WithComponent("queue"))
		if err != nil {
			return err
		}
		q = aq
	default:
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey, logging.WithComponent("queue"))
	}
	defer q.Close()

	var f feed.Feed
	if cfg.FeedBackend == "memory" {
		f = feed.NewMemory(cfg.FeedSize)
	} else {
		f = feed.NewRedis(redisClient.Client, cfg.FeedSize, logging.WithComponent("feed"))
	}

	// An in-process queue has no external worker, so drain it here.
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := feed.Drain(ctx, q, f, logging.WithComponent("feed")); err != nil {
				logger.Error().Err(err).Msg("feed drain stopped")
			}
		}()
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	svc := attendance.NewService(st)
	h := httpapi.New(httpapi.Deps{
		Service:  svc,
		Queue:    q,
		Feed:     f,
		Metrics:  m,
		Log:      logging.WithComponent("http"),
		Checks:   checks,
		Location: cfg.Location(),
	})
	r := httpapi.NewRouter(h, httpapi.RouterOptions{
		RateLimitPerMin: cfg.RateLimitPerMin,
		Log:             logging.WithComponent("access"),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("store", cfg.StoreBackend).Str("queue", cfg.QueueBackend).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced shutdown")
	}
	logger.Info().Msg("server exited")
	return nil
}
