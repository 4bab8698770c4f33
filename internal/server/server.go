package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"awardgraph/internal/queue"
	mid "awardgraph/internal/server/middleware"
	"awardgraph/internal/util"
	"awardgraph/pkg/common"
	"awardgraph/pkg/fetchcache"
	"awardgraph/pkg/logger"
	"awardgraph/pkg/nsf"
	"awardgraph/pkg/orchestrator"
	"awardgraph/pkg/planner"
	"awardgraph/pkg/store"
	"awardgraph/pkg/store/memory"
	pgstore "awardgraph/pkg/store/pgx"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	graph, pgConn := initGraphStore(ctx)
	if pgConn != nil {
		defer pgConn.Close()
	}

	nsfClient := nsf.NewClient(nsf.NewClientParams{
		BaseURL: util.GetEnv("NSF_API_URL"),
		Timeout: time.Duration(util.GetEnvNumeric("NSF_TIMEOUT_MS", 5000)) * time.Millisecond,
	})

	cache, err := fetchcache.NewCache[[]common.RawRecord](fetchcache.NewCacheParams{
		Size:   int(util.GetEnvNumeric("FETCH_CACHE_SIZE", fetchcache.DefaultSize)),
		TTL:    time.Duration(util.GetEnvNumeric("FETCH_CACHE_TTL_S", 900)) * time.Second,
		NegTTL: time.Duration(util.GetEnvNumeric("FETCH_CACHE_NEG_TTL_S", 120)) * time.Second,
	})
	if err != nil {
		logger.Fatal("Failed to create fetch cache", "err", err)
	}

	queryPlanner := planner.NewPlanner(planner.NewPlannerParams{
		Deadline: time.Duration(util.GetEnvNumeric("QUERY_DEADLINE_MS", 10000)) * time.Millisecond,
	})

	orch := orchestrator.New(orchestrator.NewOrchestratorParams{
		Store:        graph,
		Fetcher:      nsfClient,
		Cache:        cache,
		Workers:      int(util.GetEnvNumeric("QUERY_WORKERS", 4)),
		FetchRetries: int(util.GetEnvNumeric("FETCH_RETRIES", 3)),
		FetchBackoff: time.Duration(util.GetEnvNumeric("FETCH_BACKOFF_MS", 200)) * time.Millisecond,
	})

	app := &mid.App{
		Store:        graph,
		Planner:      queryPlanner,
		Orchestrator: orch,
		NSF:          nsfClient,
	}

	if util.GetEnv("RABBITMQ_HOST") != "" {
		que := queue.Init()
		defer que.Close()
		channel, err := que.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		defer channel.Close()
		if err := queue.SetupQueues(channel, []string{queue.IngestQueue}); err != nil {
			logger.Fatal("Failed to set up queues", "err", err)
		}
		app.Queue = channel
	} else {
		logger.Warn("RABBITMQ_HOST not set, async ingest disabled")
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

// initGraphStore builds the graph engine, attaching Postgres persistence
// and restoring the persisted graph when DATABASE_URL is configured.
func initGraphStore(ctx context.Context) (store.GraphStore, *pgxpool.Pool) {
	threshold := 0.0
	if raw := util.GetEnv("RESOLVE_THRESHOLD"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			logger.Fatal("Invalid RESOLVE_THRESHOLD", "value", raw, "err", err)
		}
		threshold = parsed
	}

	databaseURL := util.GetEnv("DATABASE_URL")
	if databaseURL == "" {
		logger.Warn("DATABASE_URL not set, graph is memory only")
		return memory.NewStore(memory.NewStoreParams{Threshold: threshold}), nil
	}

	if err := pgstore.RunMigrations(databaseURL); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	conn, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}

	graph := memory.NewStore(memory.NewStoreParams{
		Threshold: threshold,
		Persister: pgstore.NewPersister(conn),
	})
	if err := graph.Restore(ctx); err != nil {
		logger.Fatal("Failed to restore persisted graph", "err", err)
	}
	logger.Info("Graph restored from database")
	return graph, conn
}
