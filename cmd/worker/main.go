package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"eventattendance/internal/config"
	"eventattendance/internal/feed"
	"eventattendance/internal/logging"
	"eventattendance/internal/queue"
	"eventattendance/internal/store"
)

// Worker consumes scan notifications and maintains the recent-scan feed.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	logger := logging.WithComponent("worker")

	if cfg.QueueBackend == "memory" {
		log.Fatal().Msg("QUEUE_BACKEND=memory is drained inside the api process; the worker needs redis or amqp")
	}
	if cfg.FeedBackend == "memory" {
		log.Fatal().Msg("FEED_BACKEND=memory is not visible to the api process; the worker needs redis")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet, will keep retrying")
	}

	var q queue.Queue
	if cfg.QueueBackend == "amqp" {
		aq, err := queue.NewAMQPQueue(cfg.AMQPURL, cfg.AMQPExchange, cfg.QueueKey, logging.WithComponent("queue"))
		if err != nil {
			log.Fatal().Err(err).Msg("amqp connect failed")
		}
		q = aq
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey, logging.WithComponent("queue"))
	}
	defer q.Close()

	f := feed.NewRedis(redisClient.Client, cfg.FeedSize, logging.WithComponent("feed"))

	logger.Info().Str("queue", cfg.QueueBackend).Msg("worker started, waiting for scans")
	if err := feed.Drain(ctx, q, f, logger); err != nil {
		logger.Error().Err(err).Msg("queue consume failed")
		return
	}
	logger.Info().Msg("worker stopped")
}
