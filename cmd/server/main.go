package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"covid_dashboard/internal/cache"
	"covid_dashboard/internal/config"
	"covid_dashboard/internal/dashboard"
	"covid_dashboard/internal/data"
	"covid_dashboard/internal/handlers"
	"covid_dashboard/internal/handlers/admin"
	"covid_dashboard/internal/jobs"
	"covid_dashboard/internal/middlewares"
	"covid_dashboard/internal/observability"
	"covid_dashboard/internal/router"
	"covid_dashboard/internal/server"
	"covid_dashboard/web"
)

const refreshTaskID = "dataset-refresh"

type options struct {
	file  string
	debug bool
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Serve the COVID-19 dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "dataset CSV to serve (overrides DATA_FILE)")
	cmd.Flags().BoolVarP(&opts.debug, "debug", "d", false, "enable debug logging")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	level := new(slog.LevelVar)
	if opts.debug || config.DebugRequested() {
		level.Set(slog.LevelDebug)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.file != "" {
		cfg.Data.File = opts.file
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !opts.debug && !config.DebugRequested() {
		level.Set(cfg.App.LogLevel)
	}

	sm := server.NewShutdownManager(&server.ShutdownConfig{
		Logger:  logger,
		Timeout: cfg.Server.ShutdownTimeout,
	})

	var store data.Store = data.NewFileStore(cfg.Data.File, cfg.Data.VariantsFile, logger)
	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		pool, err = config.NewPool(ctx, cfg.Database.DBConfig(logger))
		if err != nil {
			return err
		}
		sm.Register(server.NewDatabaseResource("postgres", pool, logger))

		pg := data.NewPostgresStore(pool, logger)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return err
		}
		store = data.MultiStore{pg, store}
	}

	repo := data.NewRepository(store, logger)

	metricsCfg := observability.DefaultMetricsConfig()
	metricsCfg.Logger = logger
	metrics := observability.NewMetrics(metricsCfg)
	repo.OnReload(metrics.ObserveDataset)

	cacheCfg := &cache.FallbackConfig{Memory: cache.DefaultConfig(), Logger: logger}
	cacheCfg.Memory.DefaultTTL = cfg.Cache.TTL
	if cfg.Redis.Addr != "" {
		redisCfg := cache.DefaultRedisConfig()
		redisCfg.Addr = cfg.Redis.Addr
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.DefaultTTL = cfg.Cache.TTL
		cacheCfg.Redis = redisCfg
	}
	outputs := cache.NewFallbackCache(cacheCfg)
	sm.Register(server.NewCacheResource("cache", outputs))

	svc := dashboard.NewService(dashboard.Config{
		Repository: repo,
		Cache:      outputs,
		CacheTTL:   cfg.Cache.TTL,
		Observe:    metrics.ObserveCallback,
		Logger:     logger,
	})

	// the page still renders without data; readiness reports it until a refresh succeeds
	if _, err := repo.Reload(ctx); err != nil {
		logger.Error("initial dataset load failed", "error", err, "file", cfg.Data.File)
	}

	scheduler := jobs.NewScheduler(logger)
	scheduler.Register(&jobs.ScheduledTask{
		ID:       refreshTaskID,
		Schedule: jobs.Every(cfg.Data.RefreshInterval),
		Run: func(ctx context.Context) error {
			_, err := repo.Reload(ctx)
			metrics.ObserveRefresh(err)
			if errors.Is(err, data.ErrNoDataset) {
				logger.Warn("dataset still missing", "file", cfg.Data.File)
			}
			return err
		},
		Config:  jobs.DefaultTaskConfig(),
		Enabled: true,
	})
	scheduler.Start(ctx)
	sm.Register(server.NewSchedulerResource("scheduler", scheduler))

	health := observability.DefaultHealthConfig()
	health.Logger = logger
	health.Version = cfg.App.Version
	health.Register("dataset", observability.DatasetHealthCheck(repo, 2*cfg.Data.RefreshInterval))
	if pool != nil {
		health.Register("postgres", observability.PoolHealthCheck(pool))
	}
	health.Register("cache", observability.PingHealthCheck("cache", outputs.Ping, true))

	routerCfg := router.DefaultConfig()
	routerCfg.Logger = logger
	routerCfg.Handler = handlers.NewHandler(svc, repo, outputs, logger)
	routerCfg.Refresh = admin.TriggerTask(scheduler, refreshTaskID)
	routerCfg.Metrics = metrics
	routerCfg.Health = health
	routerCfg.AdminTokenHash = cfg.Admin.TokenHash
	routerCfg.Static = web.Handler()
	routerCfg.Development = cfg.IsDevelopment()
	routerCfg.CORS = &middlewares.CORSConfig{
		AllowOrigins:  cfg.CORS.AllowedOrigins,
		AllowMethods:  cfg.CORS.AllowedMethods,
		AllowHeaders:  cfg.CORS.AllowedHeaders,
		ExposeHeaders: []string{middlewares.RequestIDHeader},
		MaxAge:        cfg.CORS.MaxAge,
	}
	if cacheCfg.Redis != nil && outputs.Primary() != nil {
		// share buckets across replicas
		routerCfg.RateLimitStore = middlewares.NewCacheTokenBucketStore(outputs, "")
	}
	if cfg.Admin.TokenHash == "" {
		logger.Warn("ADMIN_TOKEN_HASH not set, admin endpoints disabled")
	}

	srv := server.New(router.New(routerCfg), server.FromSettings(cfg.Server, logger))
	logger.Info("starting server",
		"addr", srv.Addr,
		"environment", cfg.App.Environment,
		"version", cfg.App.Version,
	)
	return server.Run(ctx, srv, sm)
}
