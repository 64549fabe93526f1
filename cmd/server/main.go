package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/api/handlers"
	"github.com/maheshrc27/postdispatch/internal/api/middleware"
	"github.com/maheshrc27/postdispatch/internal/app"
	job "github.com/maheshrc27/postdispatch/internal/jobs"
	"github.com/maheshrc27/postdispatch/internal/metrics"
	"github.com/maheshrc27/postdispatch/internal/queue"
	"github.com/maheshrc27/postdispatch/internal/repository"
	"github.com/maheshrc27/postdispatch/pkg/logger"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "error", err)
	}

	cfg := config.LoadConfig()
	logger.Setup(cfg.LogLevel, cfg.LogFile)
	defer logger.Close()

	metrics.Register()

	ctx := context.Background()
	a, err := app.New(ctx, *cfg)
	if err != nil {
		slog.Error("setup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := repository.EnsureSchema(ctx, a.DB); err != nil {
		slog.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	fiberApp := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    512 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request failed", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	fiberApp.Use(metrics.Middleware())
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	handlers.RegisterRoutes(fiberApp, handlers.Routes{
		Auth:     middleware.NewAuthMiddleware(*cfg),
		Dispatch: handlers.NewDispatchHandler(a.Dispatcher),
		Post:     handlers.NewPostHandler(a.PostService, client),
		Platform: handlers.NewPlatformHandler(a.Connect, *cfg),
	})

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(a.Connections, a.Tokens)
	reconcileJob := job.NewReconcileJob(a.Journal, a.Recorder, a.Posts)

	c := cron.New()
	if err := c.AddFunc(cfg.Dispatch.TokenRefreshJob, func() { refreshTokenJob.RefreshTokens(ctx) }); err != nil {
		slog.Error("invalid token refresh schedule", "error", err)
		os.Exit(1)
	}
	if err := c.AddFunc(cfg.Dispatch.ReconcileEvery, func() { reconcileJob.Drain(ctx) }); err != nil {
		slog.Error("invalid reconcile schedule", "error", err)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	// queue
	queueW := queue.NewQueue(a.Dispatcher)
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: 10,
	})
	go func() {
		slog.Info("starting the asynq server")
		if err := server.Run(queueW.Mux()); err != nil {
			slog.Error("could not start asynq server", "error", err)
			os.Exit(1)
		}
	}()

	scheduler := asynq.NewScheduler(redisConn, nil)
	if _, err := queue.RegisterSchedule(scheduler, cfg.Dispatch.Schedule); err != nil {
		slog.Error("invalid dispatch schedule", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := scheduler.Run(); err != nil {
			slog.Error("could not start asynq scheduler", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		if err := fiberApp.Listen(cfg.ListenAddr); err != nil {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()
	slog.Info("server is running", "addr", cfg.ListenAddr)

	gracefulShutdown(fiberApp, server, scheduler)
}

func gracefulShutdown(app *fiber.App, server *asynq.Server, scheduler *asynq.Scheduler) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("shutting down server")

	scheduler.Shutdown()
	server.Shutdown()
	if err := app.Shutdown(); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}

	slog.Info("server shutdown complete")
}
