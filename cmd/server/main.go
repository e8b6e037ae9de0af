package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/ksred/holdings-ingest/internal/auth"
	"github.com/ksred/holdings-ingest/internal/batch"
	"github.com/ksred/holdings-ingest/internal/config"
	"github.com/ksred/holdings-ingest/internal/database"
	"github.com/ksred/holdings-ingest/internal/extract"
	"github.com/ksred/holdings-ingest/internal/feed"
	"github.com/ksred/holdings-ingest/internal/filings"
	"github.com/ksred/holdings-ingest/internal/gate"
	"github.com/ksred/holdings-ingest/internal/health"
	"github.com/ksred/holdings-ingest/internal/ingest"
	"github.com/ksred/holdings-ingest/internal/metrics"
	"github.com/ksred/holdings-ingest/internal/notify"
	"github.com/ksred/holdings-ingest/internal/resolver"
	"github.com/ksred/holdings-ingest/internal/retry"
	"github.com/ksred/holdings-ingest/internal/watchlist"
	"github.com/ksred/holdings-ingest/pkg/middleware"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cikFile string

	cmd := &cobra.Command{
		Use:           "holdings-server",
		Short:         "Poll EDGAR for 13F filings and ingest their holdings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				zlog.Error().Err(err).Msg("Invalid configuration")
				return err
			}
			if cikFile != "" {
				cfg.CIKFile = cikFile
			}

			if err := run(cmd.Context(), cfg); err != nil {
				zlog.Error().Err(err).Msg("Server stopped with error")
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cikFile, "cik", "", "path to the CIK watch list file (overrides CIK_FILE)")
	return cmd
}

// run wires every component and blocks until shutdown or a fatal error.
func run(parent context.Context, cfg *config.Config) error {
	closeLog, err := configureLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	zlog.Info().Str("database", cfg.Database.Redacted()).Msg("Connecting to database")
	db, err := database.NewDatabase(cfg.Database, cfg.Debug)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store := filings.NewDatabase(db)
	pingCtx, cancelPing := context.WithTimeout(ctx, 10*time.Second)
	err = store.Ping(pingCtx)
	cancelPing()
	if err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	loader, closeLoader, err := newLoader(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeLoader()

	ids, err := resolver.New(db, resolver.DefaultCacheSize)
	if err != nil {
		return err
	}
	writer := batch.NewWriter(ids, loader, cfg.ChunkSize, cfg.StoreTimeout)

	// One limiter caps every outbound call the loop makes.
	burst := int(cfg.RateLimitPerSecond)
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), burst)

	edgar, err := feed.NewClient(feed.Config{
		BaseURL:   cfg.SECBaseURL,
		UserAgent: cfg.SECIdentity,
		Timeout:   cfg.HTTPTimeout,
		MaxPages:  cfg.FeedMaxPages,
		CacheTTL:  cfg.FeedCacheTTL,
		Limiter:   limiter,
	})
	if err != nil {
		return err
	}

	zlog.Info().Str("path", cfg.CIKFile).Msg("Reading watch list")
	watch, err := watchlist.Load(cfg.CIKFile)
	if err != nil {
		return err
	}
	metrics.RecordWatchList(watch.Snapshot().Len())

	session := gate.NewSession(store, watch.Snapshot())
	pipeline := ingest.NewPipeline(store, edgar, extract.New(), writer)
	processor := ingest.NewProcessor(edgar, watch, session, pipeline,
		notify.NewPublisher(cfg.NotifyURLs, cfg.HTTPTimeout, limiter),
		ingest.Options{
			FormTypes:    cfg.FormTypes,
			PollInterval: cfg.PollInterval,
			Policy:       retry.CycleCooldown(cfg.RetryCooldown),
			Limiter:      limiter,
		})
	pinger := health.NewPinger(cfg.HealthcheckURL, cfg.PingInterval, cfg.PingTimeout)

	// Initialize router
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RateLimit())
	setupRoutes(router, cfg, processor, store)

	srv := &http.Server{
		Addr:    cfg.AdminAddr(),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return processor.Start(gctx)
	})
	g.Go(func() error {
		pinger.Start(gctx)
		return nil
	})
	g.Go(func() error {
		// Cycle-start refreshes still pick up changes if the watcher fails.
		if err := watch.Watch(gctx); err != nil {
			zlog.Warn().Err(err).Msg("Watch list file watcher unavailable")
		}
		return nil
	})
	g.Go(func() error {
		zlog.Info().Str("addr", srv.Addr).Msg("Admin API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info().Msg("Shutting down server...")

		// Give outstanding requests 5 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	err = g.Wait()
	zlog.Info().Msg("Server exiting")
	return err
}

// newLoader picks the bulk loading path. COPY needs its own pgx pool.
func newLoader(ctx context.Context, cfg *config.Config, db *gorm.DB) (batch.Loader, func(), error) {
	if cfg.BulkMode != config.BulkModeCopy {
		return batch.NewGormLoader(db, 0), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.PostgresDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open copy pool: %w", err)
	}
	return batch.NewCopyLoader(pool), pool.Close, nil
}

// configureLogging applies LOG_LEVEL and tees output to LOG_FILE when set.
func configureLogging(cfg *config.Config) (func(), error) {
	if cfg.LogLevel != "" && !cfg.Debug {
		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
		}
		zerolog.SetGlobalLevel(level)
	}

	if cfg.LogFile == "" {
		return func() {}, nil
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	var console io.Writer = os.Stdout
	if !cfg.IsProduction() {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	zlog.Logger = zerolog.New(zerolog.MultiLevelWriter(console, f)).With().Timestamp().Logger()
	return func() { f.Close() }, nil
}

// setupRoutes configures the operator API:
// - health and metrics are public
// - token issuing is public but rate limited
// - filing read-back needs a valid token
// - internal routes need an admin token
func setupRoutes(router *gin.Engine, cfg *config.Config, processor *ingest.Processor, store *filings.Database) {
	handlers := ingest.NewGinHandlers(processor, store)

	router.GET("/healthz", handlers.HealthHandler())
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	if strings.TrimSpace(cfg.Admin.JWTSecret) == "" {
		zlog.Warn().Msg("JWT_SECRET not set, authenticated admin routes disabled")
		return
	}

	authService := auth.NewService(cfg.Admin.JWTSecret)
	if cfg.Admin.APIKey != "" {
		authService.RegisterAPICredentials(cfg.Admin.APIKey, cfg.Admin.APISecret, auth.PermissionRead, auth.PermissionAdmin)
	}
	authHandlers := auth.NewGinHandlers(authService)

	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Filing read-back
		filingRoutes := v1.Group("/filings")
		filingRoutes.Use(middleware.JWTAuth(authService))
		{
			filingRoutes.GET("/:accession", handlers.GetFilingHandler())
		}

		// Internal routes
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(authService))
		{
			internal.POST("/watchlist/reload", handlers.ReloadWatchListHandler())
			internal.GET("/status", handlers.StatusHandler())
		}
	}
}
