package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/cache"
	"github.com/maheshrc27/postdispatch/internal/queue"
	"github.com/maheshrc27/postdispatch/internal/repository"
	"github.com/maheshrc27/postdispatch/internal/service"
	"github.com/maheshrc27/postdispatch/internal/telemetry"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App holds the components shared by the HTTP server and the CLI. It is
// built once per process and passed down explicitly.
type App struct {
	Config config.Config
	DB     *sql.DB
	Redis  *redis.Client

	Posts       repository.PostRepository
	Connections repository.ConnectionRepository
	Logs        repository.PostLogRepository

	Registry    *service.Registry
	Tokens      service.TokenService
	Recorder    service.RecorderService
	PostService service.PostService
	Connect     service.ConnectionService
	Journal     *cache.OutcomeJournal
	Dispatcher  *queue.Dispatcher

	tracer *sdktrace.TracerProvider
}

// New validates cfg, connects to Postgres and Redis and wires every service.
// Any error here is a setup failure.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tp, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	db, err := OpenDB(ctx, cfg.PostgresURI)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, DB: db, tracer: tp}

	a.Redis = cache.NewRedisClient(cfg.RedisURI)
	a.Journal = cache.NewOutcomeJournal(a.Redis)

	a.Posts = repository.NewPostRepository(db)
	a.Connections = repository.NewConnectionRepository(db)
	a.Logs = repository.NewPostLogRepository(db)

	client := telemetry.NewInstrumentedHTTPClient(0)
	a.Registry, err = service.NewRegistry(
		service.NewYoutubeService(cfg, client),
		service.NewInstagramService(cfg, client),
		service.NewFacebookService(cfg, client),
		service.NewTiktokService(cfg, client),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	alerts, err := service.NewAlertService(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	r2, err := service.NewR2Service(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Tokens = service.NewTokenService(cfg, a.Connections, a.Registry)
	a.Recorder = service.NewRecorderService(repository.NewTxRunner(db), a.Posts, a.Logs, a.Journal, alerts, cfg.Dispatch.RecordAttempts)
	a.PostService = service.NewPostService(a.Posts, a.Logs, a.Connections, r2)
	a.Connect = service.NewConnectionService(cfg, a.Connections, a.Registry, a.Tokens)
	a.Dispatcher = queue.NewDispatcher(cfg, a.Posts, a.Connections, a.Tokens, a.Registry, a.Recorder)

	return a, nil
}

func OpenDB(ctx context.Context, uri string) (*sql.DB, error) {
	db, err := sql.Open("postgres", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database is unreachable: %w", err)
	}
	return db, nil
}

func (a *App) Close() {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(context.Background()))
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("error during shutdown", "error", err)
	}
}
