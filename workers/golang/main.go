package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-xray-sdk-go/strategy/ctxmissing"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/rs/zerolog"

	"github.com/ljbeal/MCP-remotemanager/config"
	"github.com/ljbeal/MCP-remotemanager/observability"
	"github.com/ljbeal/MCP-remotemanager/services"
)

const (
	popTimeout        = 5 * time.Second
	heartbeatInterval = services.HeartbeatTTL / 3
)

// Worker consumes the queue of one host and stores each run's result in Redis
type Worker struct {
	host     string
	redis    *services.RedisService
	executor *Executor
	log      zerolog.Logger
}

func main() {
	configPath := flag.String("config", os.Getenv("REMOTERUN_CONFIG"), "path to TOML config file")
	host := flag.String("host", os.Getenv("REMOTERUN_WORKER_HOST"), "hostname whose queue this worker serves")
	sandbox := flag.String("sandbox", os.Getenv("REMOTERUN_SANDBOX"), "directory runs are materialised in")
	flag.Parse()

	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	if *host == "" {
		*host, _ = os.Hostname()
	}

	logger, closer, err := observability.NewLogger("remoterun-worker", cfg.Log)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to open log")
	}
	defer closer.Close()

	xray.Configure(xray.Config{ContextMissingStrategy: ctxmissing.NewDefaultIgnoreErrorStrategy()})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisService := services.NewRedisService(cfg.Redis.Host, cfg.Redis.Port)
	defer redisService.Close()
	if err := redisService.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Str("redis", cfg.Redis.Host).Msg("failed to connect to redis")
	}

	storage, err := services.NewStorageService(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Str("type", cfg.Storage.Type).Msg("failed to initialize storage service")
	}

	w := &Worker{
		host:     *host,
		redis:    redisService,
		executor: NewExecutor(storage, *sandbox, cfg.Wait.MaxWait, observability.Component(logger, "executor")),
		log:      observability.Component(logger, "worker"),
	}
	w.log.Info().Str("host", w.host).Str("queue", services.QueueKey(w.host)).Msg("worker started")

	go w.heartbeat(ctx)
	w.serve(ctx)
	w.log.Info().Msg("worker stopped")
}

func (w *Worker) heartbeat(ctx context.Context) {
	beat := func() {
		if err := w.redis.Heartbeat(ctx, w.host); err != nil && ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("heartbeat failed")
		}
	}
	beat()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}

func (w *Worker) serve(ctx context.Context) {
	queue := services.QueueKey(w.host)
	for ctx.Err() == nil {
		req, err := w.redis.PopExecutionRequest(ctx, queue, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("error reading from queue")
			time.Sleep(time.Second)
			continue
		}
		if req == nil {
			continue
		}

		w.log.Info().Str("run", req.RunName).Msg("processing run")
		res := w.executor.Execute(ctx, req)
		key := req.ResultKey
		if key == "" {
			key = services.ResultKey(req.RunName)
		}

		// store even when shutting down so the gateway sees the outcome
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		err = w.redis.SetResult(storeCtx, key, res)
		cancel()
		if err != nil {
			w.log.Error().Str("run", req.RunName).Err(err).Msg("error storing result")
			continue
		}
		w.log.Info().Str("run", req.RunName).Str("status", res.Status).Int64("duration_ms", res.DurationMs).Msg("finished run")
	}
}
