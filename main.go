package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-xray-sdk-go/strategy/ctxmissing"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ljbeal/MCP-remotemanager/config"
	"github.com/ljbeal/MCP-remotemanager/handlers"
	"github.com/ljbeal/MCP-remotemanager/middleware"
	"github.com/ljbeal/MCP-remotemanager/observability"
	"github.com/ljbeal/MCP-remotemanager/services"

	_ "github.com/ljbeal/MCP-remotemanager/docs"
)

// @title RemoteRun API
// @version 1.0
// @description Runs single self-contained Go functions on remote hosts
// @host localhost:8080
// @BasePath /api
func main() {
	configPath := flag.String("config", os.Getenv("REMOTERUN_CONFIG"), "path to TOML config file")
	transport := flag.String("transport", "", "stdio, http or both (overrides config)")
	flag.Parse()

	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	if *transport != "" {
		cfg.Server.Transport = *transport
		if err := cfg.Validate(); err != nil {
			bootLog.Fatal().Err(err).Msg("invalid transport")
		}
	}

	logger, logFile, err := observability.NewLogger("remoterun", cfg.Log)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to open log")
	}
	defer logFile.Close()

	// runs started from stdio carry no X-Ray segment
	xray.Configure(xray.Config{ContextMissingStrategy: ctxmissing.NewDefaultIgnoreErrorStrategy()})
	observability.RegisterMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	probe, engine, closer, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("engine", cfg.Engine).Msg("failed to initialize engine")
	}
	if closer != nil {
		defer closer.Close()
	}

	runService := services.NewRunService(services.RunServiceDeps{
		Probe:       probe,
		Engine:      engine,
		Clock:       time.Now,
		StagingRoot: cfg.Staging.LocalRoot,
		GoBinary:    cfg.Staging.GoBinary,
		Policy: services.WaitPolicy{
			PollInterval: cfg.Wait.PollInterval,
			MaxWait:      cfg.Wait.MaxWait,
		},
	}, logger)

	logger.Info().
		Str("engine", engine.Name()).
		Str("transport", cfg.Server.Transport).
		Str("profile", cfg.Wait.Profile).
		Dur("max_wait", cfg.Wait.MaxWait).
		Msg("RemoteRun starting")

	errCh := make(chan error, 2)
	var app *fiber.App
	if cfg.Server.Transport == "http" || cfg.Server.Transport == "both" {
		app = newApp(runService, logger)
		go func() {
			logger.Info().Str("port", cfg.Server.Port).Msg("HTTP server listening")
			errCh <- app.Listen(":" + cfg.Server.Port)
		}()
	}
	if cfg.Server.Transport == "stdio" || cfg.Server.Transport == "both" {
		go func() {
			errCh <- serveStdio(ctx, runService, logger)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("server stopped")
		}
	}

	if app != nil {
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error().Err(err).Msg("HTTP shutdown failed")
		}
	}
	logger.Info().Msg("RemoteRun stopped")
}

// buildEngine wires the execution engine and the host probe matching it
func buildEngine(ctx context.Context, cfg config.Config, logger zerolog.Logger) (services.HostProbe, services.Engine, io.Closer, error) {
	switch cfg.Engine {
	case config.EngineQueue:
		redisService := services.NewRedisService(cfg.Redis.Host, cfg.Redis.Port)
		if err := redisService.Ping(ctx); err != nil {
			redisService.Close()
			return nil, nil, nil, fmt.Errorf("connect to redis %s:%d: %w", cfg.Redis.Host, cfg.Redis.Port, err)
		}
		storage, err := services.NewStorageService(ctx, cfg.Storage)
		if err != nil {
			redisService.Close()
			return nil, nil, nil, fmt.Errorf("initialize storage: %w", err)
		}
		logger.Info().Str("storage", cfg.Storage.Type).Str("redis", cfg.Redis.Host).Msg("queue engine ready")

		probe := services.NewHeartbeatProbe(redisService, cfg.Wait.ProbeTimeout)
		engine := services.NewQueueEngine(storage, redisService, observability.Component(logger, "queue"))
		return probe, engine, redisService, nil
	default:
		connector := services.NewConnector(cfg.SSH, observability.Component(logger, "transport"))
		probe := services.NewCommandProbe(connector, cfg.Wait.ProbeTimeout)
		engine := services.NewShellEngine(connector, cfg.Staging.RemoteRoot, observability.Component(logger, "shell"))
		return probe, engine, nil, nil
	}
}

func newApp(runService *services.RunService, logger zerolog.Logger) *fiber.App {
	runHandler := handlers.NewRunHandler(runService)

	app := fiber.New(fiber.Config{
		AppName:               "RemoteRun",
		DisableStartupMessage: true,
		// a run may wait up to the production budget
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 330 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(observability.Component(logger, "http")))
	app.Use(middleware.XRayMiddleware(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "UP"})
	})

	api := app.Group("/api")
	api.Post("/run_code", runHandler.RunCode)

	return app
}

func serveStdio(ctx context.Context, runService *services.RunService, logger zerolog.Logger) error {
	mcpLogger := observability.Component(logger, "mcp")
	stdio := server.NewStdioServer(handlers.NewMCPServer(runService))
	stdio.SetErrorLogger(log.New(mcpLogger, "", 0))

	mcpLogger.Info().Msg("serving run_code over stdio")
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}
