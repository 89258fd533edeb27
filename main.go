package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/config"
	"github.com/ekaya-inc/ekaya-crm/pkg/crypto"
	"github.com/ekaya-inc/ekaya-crm/pkg/database"
	"github.com/ekaya-inc/ekaya-crm/pkg/handlers"
	"github.com/ekaya-inc/ekaya-crm/pkg/llm"
	"github.com/ekaya-inc/ekaya-crm/pkg/logging"
	"github.com/ekaya-inc/ekaya-crm/pkg/mail"
	"github.com/ekaya-inc/ekaya-crm/pkg/mcp"
	"github.com/ekaya-inc/ekaya-crm/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-crm/pkg/middleware"
	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/repositories"
	"github.com/ekaya-inc/ekaya-crm/pkg/services"
	"github.com/ekaya-inc/ekaya-crm/pkg/web"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("store", cfg.Store.Type),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("ai_model", cfg.AI.Model),
		zap.Bool("redis", cfg.Redis.Host != ""),
		zap.Bool("mail", cfg.Mail.Enabled))

	checks := map[string]handlers.HealthCheck{}

	// Record store
	var (
		tableRepo repositories.TableRepository
		credRepo  repositories.MailCredentialRepository
	)
	switch cfg.Store.Type {
	case "postgres":
		db, err := database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		})
		if err != nil {
			return err
		}
		defer db.Close()

		sqlDB := db.SQLDB()
		err = database.RunMigrations(sqlDB, logger)
		_ = sqlDB.Close()
		if err != nil {
			return err
		}

		tableRepo = repositories.NewTableRepository(db)
		credRepo = repositories.NewMailCredentialRepository(db)
		checks["postgres"] = func(ctx context.Context) error { return db.Ping(ctx) }
	default:
		tableRepo = repositories.NewMemoryTableRepository()
		credRepo = repositories.NewMemoryMailCredentialRepository()
	}

	// Batch locks: shared through Redis when configured, process-local otherwise.
	rdb, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	var locker services.TableLocker
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		locker = services.NewRedisTableLocker(rdb, cfg.Enrichment.LockTTL, logger)
		checks["redis"] = redisCheck(rdb)
	} else {
		locker = services.NewMemoryTableLocker()
	}
	tracker := services.NewBatchTracker(locker, rdb, logger)
	if rdb != nil {
		if err := tracker.StartCancelListener(ctx); err != nil {
			return err
		}
	}

	// Generative gateway
	pages := web.NewPageFetcher(web.FetcherConfig{}, logger)
	gateway, err := llm.NewGatewayFromConfig(ctx, cfg.AI, pages, logger)
	if err != nil {
		return err
	}

	// Services
	pipeline := services.NewEnrichmentPipeline(gateway, services.EnrichmentPipelineConfig{
		MaxCandidateURLs: cfg.Enrichment.MaxCandidateURLs,
	}, logger)
	runner := services.NewBatchRunner(tableRepo, pipeline, gateway, services.BatchRunnerConfig{
		MaxConcurrentRows: cfg.Enrichment.MaxConcurrentRows,
		MaxGenerateCount:  cfg.Enrichment.MaxGenerateCount,
	}, logger)
	classifier := services.NewIntentClassifier(gateway, logger)
	dispatcher := services.NewToolDispatcher(runner, logger)
	tableService := services.NewTableService(tableRepo, logger)

	var sealer *crypto.TokenSealer
	if cfg.Mail.Enabled {
		sealer, err = crypto.NewTokenSealer(cfg.CredentialsKey)
		if err != nil {
			return err
		}
	}
	bulkSend := services.NewBulkSendService(credRepo, sealer, gmailSenderFactory(logger), cfg.Mail.SendDelay, logger)

	// HTTP surface
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, checks, logger).RegisterRoutes(mux)
	handlers.NewTablesHandler(tableService, logger).RegisterRoutes(mux)
	handlers.NewBatchHandler(classifier, dispatcher, runner, tracker, tableService, logger).RegisterRoutes(mux)
	handlers.NewMailHandler(bulkSend, logger).RegisterRoutes(mux)

	// MCP surface
	mcpServer := mcp.NewServer("ekaya-crm", cfg.Version, logger)
	mcpServer.RegisterCRMTools(cfg.Version, cfg.Store.Type, &tools.CRMToolDeps{
		Tables:     tableService,
		Classifier: classifier,
		Dispatcher: dispatcher,
		Runner:     runner,
		Tracker:    tracker,
		Logger:     logger,
	})
	mux.Handle("/mcp", middleware.MCPRequestLogger(logger)(mcpServer.NewStreamableHTTPServer()))

	srv := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.Recover(logger)(middleware.RequestLogger(logger)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-crm", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func redisCheck(rdb *redis.Client) handlers.HealthCheck {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

func gmailSenderFactory(logger *zap.Logger) services.SenderFactory {
	return func(ctx context.Context, cred models.MailCredential) (mail.Sender, error) {
		return mail.NewGmailSender(ctx, cred, logger)
	}
}
