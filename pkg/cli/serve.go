package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/auth"
	"github.com/dock-ai/registry/pkg/config"
	"github.com/dock-ai/registry/pkg/database"
	"github.com/dock-ai/registry/pkg/discovery"
	"github.com/dock-ai/registry/pkg/entitycard"
	"github.com/dock-ai/registry/pkg/handlers"
	"github.com/dock-ai/registry/pkg/logging"
	"github.com/dock-ai/registry/pkg/mcp"
	"github.com/dock-ai/registry/pkg/middleware"
	"github.com/dock-ai/registry/pkg/ratelimit"
	"github.com/dock-ai/registry/pkg/repositories"
	"github.com/dock-ai/registry/pkg/services"
	"github.com/dock-ai/registry/pkg/services/workqueue"
)

// memoryCacheEntries bounds the in-process Entity Card cache used without Redis.
const memoryCacheEntries = 10000

func newServeCmd(opts *rootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registry HTTP API and MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply pending migrations before serving")
	return cmd
}

// limiters holds one rate limiter per endpoint class. Fields are nil when
// rate limiting is disabled.
type limiters struct {
	resolve, submit, sync, register *ratelimit.Limiter
}

func newLimiters(cfg config.RateLimitConfig) *limiters {
	if !cfg.Enabled {
		return &limiters{}
	}
	return &limiters{
		resolve:  ratelimit.New(cfg.Resolve),
		submit:   ratelimit.New(cfg.Submit),
		sync:     ratelimit.New(cfg.Sync),
		register: ratelimit.New(cfg.Register),
	}
}

func (l *limiters) stop() {
	for _, lim := range []*ratelimit.Limiter{l.resolve, l.submit, l.sync, l.register} {
		if lim != nil {
			lim.Stop()
		}
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrate bool) error {
	logger.Info("Starting dockai-registry",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.Bool("rate_limits", cfg.RateLimits.Enabled))

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if migrate {
		sqlDB := db.SQLDB()
		err := database.RunMigrations(sqlDB, cfg.MigrationsPath, logger)
		_ = sqlDB.Close()
		if err != nil {
			return err
		}
	}

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	var cardCache entitycard.Cache
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		logger.Info("Entity card cache: redis", zap.String("addr", cfg.Redis.Addr()))
		cardCache = entitycard.NewRedisCache(redisClient)
	} else {
		logger.Info("Entity card cache: in-memory")
		cardCache = entitycard.NewMemoryCache(memoryCacheEntries)
	}

	validator, err := entitycard.NewValidator()
	if err != nil {
		return err
	}
	fetcher := entitycard.NewHTTPFetcher(&cfg.EntityCard, validator, logger)
	source := entitycard.NewCachedSource(fetcher, cardCache, cfg.EntityCard.CacheTTL, cfg.EntityCard.NegativeTTL, logger)

	var detector discovery.Detector
	if cfg.Discovery.Enabled {
		catalog, err := discovery.LoadCatalog(cfg.Discovery.CatalogPath)
		if err != nil {
			return err
		}
		detector = discovery.NewHomepageDetector(catalog, &cfg.EntityCard, logger)
	}

	tokens, err := auth.NewJWKSClient(ctx, &auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		return err
	}

	scope := database.NewScopeFunc(db)
	providerRepo := repositories.NewProviderRepository()
	entityRepo := repositories.NewProviderEntityRepository()
	cardRepo := repositories.NewEntityCardRepository()
	pendingRepo := repositories.NewPendingProviderRepository()
	jobRepo := repositories.NewSyncJobRepository()

	retryCfg := workqueue.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.Sync.MaxRetries
	queue := workqueue.New(logger,
		workqueue.WithWorkers(cfg.Sync.Workers),
		workqueue.WithRetryConfig(retryCfg),
		workqueue.WithHistoryLimit(cfg.Sync.QueueHistory))

	resolver := services.NewResolutionService(scope, entityRepo, cardRepo, pendingRepo, source, logger)
	submitter := services.NewSubmitService(scope, cardRepo, pendingRepo, entityRepo, source, detector, logger)
	syncService := services.NewSyncService(scope, entityRepo, jobRepo, queue, services.NewProviderLocks(), cfg.Sync, logger)

	if n, err := syncService.ResumeUnfinished(ctx); err != nil {
		logger.Error("Failed to resume unfinished sync jobs", logging.Error(err))
	} else if n > 0 {
		logger.Info("Resumed unfinished sync jobs", zap.Int("count", n))
	}

	var refresher *services.CardRefresher
	if cfg.Refresh.Enabled {
		refresher = services.NewCardRefresher(scope, cardRepo, pendingRepo, source, detector, cfg.Refresh, cfg.EntityCard.CacheTTL, logger)
		if err := refresher.Start(); err != nil {
			return err
		}
	}

	lims := newLimiters(cfg.RateLimits)
	defer lims.stop()

	authMiddleware := auth.NewMiddleware(auth.NewAuthService(tokens, providerRepo, scope, logger), logger)
	mcpServer := mcp.NewServer(cfg.Version, mcp.Deps{Resolver: resolver, DB: db}, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, db, logger).WithSyncQueue(queue).RegisterRoutes(mux)
	handlers.NewResolveHandler(resolver, logger).RegisterRoutes(mux,
		ratelimit.Middleware(lims.resolve, ratelimit.ClientIP, logger))
	handlers.NewSubmitHandler(submitter, logger).RegisterRoutes(mux,
		ratelimit.Middleware(lims.submit, ratelimit.ClientIP, logger))
	handlers.NewProviderHandler(syncService, logger).RegisterRoutes(mux, authMiddleware,
		ratelimit.Middleware(lims.sync, ratelimit.ProviderKey, logger),
		ratelimit.Middleware(lims.register, ratelimit.ProviderKey, logger))
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux,
		ratelimit.Middleware(lims.resolve, ratelimit.ClientIP, logger))

	var handler http.Handler = mux
	handler = middleware.RequestLogger(logger)(handler)
	handler = middleware.Recover(logger)(handler)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr), zap.String("base_url", cfg.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	if refresher != nil {
		refresher.Stop(shutdownCtx)
	}
	// Unfinished jobs stay pending or processing in the store and resume on
	// the next start.
	if p := queue.Progress(); p.Busy() {
		logger.Info("Stopping sync queue with unfinished jobs",
			zap.Int("pending", p.Pending),
			zap.Int("running", p.Running))
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Sync queue shutdown incomplete", zap.Error(err))
	}
	logger.Info("Shutdown complete")
	return nil
}
