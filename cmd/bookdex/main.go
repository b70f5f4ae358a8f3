package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookdex/internal/cache"
	"github.com/kailas-cloud/bookdex/internal/config"
	"github.com/kailas-cloud/bookdex/internal/db"
	dbRedis "github.com/kailas-cloud/bookdex/internal/db/redis"
	logpkg "github.com/kailas-cloud/bookdex/internal/logger"
	"github.com/kailas-cloud/bookdex/internal/metrics"
	booksrepo "github.com/kailas-cloud/bookdex/internal/repository/books"
	historiesrepo "github.com/kailas-cloud/bookdex/internal/repository/histories"
	librariesrepo "github.com/kailas-cloud/bookdex/internal/repository/libraries"
	usersrepo "github.com/kailas-cloud/bookdex/internal/repository/users"
	chiTransport "github.com/kailas-cloud/bookdex/internal/transport/chi"
	"github.com/kailas-cloud/bookdex/internal/transport/openlibrary"
	authuc "github.com/kailas-cloud/bookdex/internal/usecase/auth"
	cataloguc "github.com/kailas-cloud/bookdex/internal/usecase/catalog"
	healthuc "github.com/kailas-cloud/bookdex/internal/usecase/health"
	historyuc "github.com/kailas-cloud/bookdex/internal/usecase/history"
	libraryuc "github.com/kailas-cloud/bookdex/internal/usecase/library"
	reviewuc "github.com/kailas-cloud/bookdex/internal/usecase/review"
	"github.com/kailas-cloud/bookdex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting bookdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register catalog metrics explicitly (no init())
	metrics.RegisterCatalogMetrics()

	// Create repositories
	prefix := cfg.Storage.KeyPrefix
	booksRepo := booksrepo.New(store, logger, prefix)
	usersRepo := usersrepo.New(store, logger, prefix)
	historiesRepo := historiesrepo.New(store, logger, prefix)
	librariesRepo := librariesrepo.New(store, logger, prefix)

	// Ensure the catalog search index exists
	if err := store.CreateIndex(ctx, booksRepo.IndexDefinition()); err != nil {
		if !errors.Is(err, db.ErrIndexExists) {
			logger.Fatal("Failed to create search index", zap.Error(err))
		}
		logger.Info("Search index already exists", zap.String("index", booksRepo.IndexName()))
	} else {
		logger.Info("Search index created", zap.String("index", booksRepo.IndexName()))
	}

	// Cache layer plus the invalidation fan-out used by all services
	cacheLayer := cache.New(store, logger, prefix, time.Duration(cfg.Cache.TTLSec)*time.Second)
	invalidator := cache.NewInvalidator(cacheLayer, logger)

	// Upstream provider
	provider := openlibrary.NewClient(&openlibrary.Config{
		BaseURL:  cfg.Provider.BaseURL,
		PageSize: cfg.Provider.PageSize,
		Timeout:  time.Duration(cfg.Provider.TimeoutSec) * time.Second,
		Logger:   logger,
	})
	fetcher := openlibrary.NewAssetFetcher(time.Duration(cfg.Assets.TimeoutSec)*time.Second, logger)

	// Create use case services
	authSvc := authuc.New(usersRepo, authuc.Config{
		AccessSecret:  cfg.Auth.JWTSecret,
		RefreshSecret: cfg.Auth.JWTRefreshSecret,
		AccessTTL:     time.Duration(cfg.Auth.AccessExpiresMin) * time.Minute,
		RefreshTTL:    time.Duration(cfg.Auth.RefreshExpiresHrs) * time.Hour,
	})
	historySvc := historyuc.New(historiesRepo, cacheLayer, invalidator)
	librarySvc := libraryuc.New(librariesRepo, booksRepo, cacheLayer, invalidator)
	reviewSvc := reviewuc.New(booksRepo, invalidator)
	catalogSvc := cataloguc.New(cataloguc.Deps{
		Provider:    provider,
		Fetcher:     fetcher,
		Books:       booksRepo,
		Libraries:   librariesRepo,
		History:     historySvc,
		Assets:      store,
		AssetPrefix: prefix + "assets:",
		Cache:       cacheLayer,
		Notifier:    invalidator,
		Logger:      logger,
	}).WithPagination(cfg.Catalog.DefaultPageSize, cfg.Catalog.MaxPageSize)
	healthSvc := healthuc.New(store)

	// Create chi server
	server := chiTransport.NewServer(
		authSvc, authSvc, catalogSvc, reviewSvc, historySvc, librarySvc, healthSvc, logger,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
