package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askdb/askdb/internal/api"
	"github.com/askdb/askdb/internal/assistant"
	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/schema"
	s3store "github.com/askdb/askdb/internal/storage/s3"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv("askdb-web")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	dialect, err := database.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		logger.Error("invalid database dialect", slog.Any("error", err))
		os.Exit(1)
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancelStartup()

	if cfg.Snapshot.Key != "" {
		if err := fetchSnapshot(startupCtx, cfg, dialect, logger); err != nil {
			logger.Error("failed to fetch database snapshot", slog.Any("error", err))
			os.Exit(1)
		}
	}

	db, err := database.Open(startupCtx, database.Config{
		Dialect:         dialect,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	entries, err := schema.NewIntrospector(db, dialect).Introspect(startupCtx)
	if err != nil {
		logger.Error("failed to read database schema", slog.Any("error", err))
		os.Exit(1)
	}
	catalog := assistant.NewCatalog(entries)
	logger.Info("database schema loaded",
		slog.String("dialect", string(dialect)),
		slog.Int("tables", len(entries)),
	)

	chat, err := nl2sql.NewOpenAIClient(nl2sql.OpenAIConfig{
		BaseURL:      cfg.AI.BaseURL,
		APIKey:       cfg.AI.APIKey,
		Model:        cfg.AI.Model,
		Timeout:      cfg.AI.Timeout,
		MaxAttempts:  cfg.AI.MaxAttempts,
		RetryWaitMin: cfg.AI.RetryWaitMin,
		RetryWaitMax: cfg.AI.RetryWaitMax,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("failed to initialize chat client", slog.Any("error", err))
		os.Exit(1)
	}
	answerer, err := assistant.New(assistant.Config{
		Chat:     chat,
		Executor: query.NewExecutor(db, logger),
		Catalog:  catalog,
		Engine:   dialect.PromptName(),
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to initialize assistant", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:    logger,
		Assistant: answerer,
		Catalog:   catalog,
		Readiness: api.CombineReadinessChecks(
			api.PingDatabase(db),
			api.CheckDatabaseFile(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting web server", slog.String("addr", cfg.HTTP.Address), slog.String("model", chat.Model()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("web server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down web server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func fetchSnapshot(ctx context.Context, cfg config.Config, dialect database.Dialect, logger *slog.Logger) error {
	if !dialect.FileBacked() {
		return errors.New("snapshots need a file-backed database dialect")
	}
	store, err := s3store.New(ctx, s3store.ConfigFrom(cfg.ObjectStore))
	if err != nil {
		return err
	}
	path := database.FilePath(cfg.Database.DSN)
	fetch, err := database.FetchSnapshot(ctx, store, cfg.Snapshot.Key, path, cfg.Snapshot.Overwrite)
	if err != nil {
		return err
	}
	if !fetch.Downloaded {
		logger.Info("database file present; snapshot not fetched", slog.String("path", path))
		return nil
	}
	logger.Info("database snapshot fetched",
		slog.String("key", cfg.Snapshot.Key),
		slog.String("path", path),
		slog.Int64("bytes", fetch.Object.Size),
		slog.String("etag", fetch.Object.ETag),
	)
	return nil
}
