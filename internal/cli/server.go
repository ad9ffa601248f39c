package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trivia-service/internal/app"
	"trivia-service/internal/config"
	"trivia-service/internal/domain"
	"trivia-service/internal/fanout"
	"trivia-service/internal/game"
	"trivia-service/internal/infra/memory"
	pgloader "trivia-service/internal/infra/postgres"
	infraredis "trivia-service/internal/infra/redis"
	"trivia-service/internal/question"
	transport "trivia-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 30*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.ActivityLoader = memory.NewStaticActivityLoader(sampleActivities())
	if pool != nil {
		loader = pgloader.NewActivityLoader(pool)
	}

	activityTTL := config.TTLDuration(cfg.Activities.TTL, 10*time.Minute)
	var activities question.ActivityRepository
	if redisClient != nil {
		activities = infraredis.NewActivityRepository(redisClient, loader, activityTTL)
	} else {
		activities = memory.NewActivityRepository(loader, activityTTL)
	}

	var store app.GameStore
	if redisClient != nil {
		store = infraredis.NewGameStore(redisClient, redisTTL)
	} else {
		store = memory.NewGameStore()
	}

	bank := question.NewBank(activities, logger)
	fm := fanout.NewManager(logger)
	registry := game.NewRegistry(logger)
	service := app.NewGameService(store, registry, bank, fm, cfg.GameConfig(), logger)
	wsHandler := transport.NewWSHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting trivia service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	fm.DisconnectAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleActivities provides a minimal pool for running without a
// database; swap in the Postgres loader for production.
func sampleActivities() []domain.Activity {
	return []domain.Activity{
		{ID: "a1", Description: "Taking a hot shower for 6 minutes", Cost: 4000},
		{ID: "a2", Description: "Washing a load of laundry at 40 degrees", Cost: 600},
		{ID: "a3", Description: "Using a hair dryer for 10 minutes", Cost: 200},
		{ID: "a4", Description: "Boiling a liter of water", Cost: 120},
		{ID: "a5", Description: "Watching TV for an hour", Cost: 100},
		{ID: "a6", Description: "Charging a smartphone overnight", Cost: 10},
		{ID: "a7", Description: "Running a dishwasher cycle", Cost: 1200},
		{ID: "a8", Description: "Baking a frozen pizza", Cost: 700},
		{ID: "a9", Description: "Vacuuming the living room", Cost: 300},
		{ID: "a10", Description: "An hour of gaming on a console", Cost: 150},
		{ID: "a11", Description: "Toasting two slices of bread", Cost: 50},
		{ID: "a12", Description: "Driving an electric car for 10 km", Cost: 2000},
	}
}
