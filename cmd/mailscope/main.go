package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/cache"
	"github.com/mailscope/mailscope/internal/config"
	dbRedis "github.com/mailscope/mailscope/internal/db/redis"
	"github.com/mailscope/mailscope/internal/domain"
	logpkg "github.com/mailscope/mailscope/internal/logger"
	"github.com/mailscope/mailscope/internal/metrics"
	"github.com/mailscope/mailscope/internal/repository/embcache"
	metadatarepo "github.com/mailscope/mailscope/internal/repository/metadata"
	searchrepo "github.com/mailscope/mailscope/internal/repository/search"
	"github.com/mailscope/mailscope/internal/repository/searchlog"
	chiTransport "github.com/mailscope/mailscope/internal/transport/chi"
	openaiEmb "github.com/mailscope/mailscope/internal/transport/openai"
	embeddinguc "github.com/mailscope/mailscope/internal/usecase/embedding"
	enrichuc "github.com/mailscope/mailscope/internal/usecase/enrich"
	healthuc "github.com/mailscope/mailscope/internal/usecase/health"
	monitoruc "github.com/mailscope/mailscope/internal/usecase/monitor"
	orchestratoruc "github.com/mailscope/mailscope/internal/usecase/orchestrator"
	queryprocuc "github.com/mailscope/mailscope/internal/usecase/queryproc"
	vectoruc "github.com/mailscope/mailscope/internal/usecase/vector"
	"github.com/mailscope/mailscope/internal/version"
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

	logger.Info("Starting mailscope API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
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

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()

	sharedCache := cache.New(store, cache.TTLs{
		Embedding: time.Duration(cfg.Cache.EmbeddingTTLSec) * time.Second,
		Query:     time.Duration(cfg.Cache.QueryTTLSec) * time.Second,
		Metadata:  time.Duration(cfg.Cache.MetadataTTLSec) * time.Second,
		Results:   time.Duration(cfg.Cache.ResultsTTLSec) * time.Second,
	})

	embedder := buildEmbedder(cfg.Embedding, sharedCache, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Repositories
	searchRepo := searchrepo.New(store)
	metadataRepo := metadatarepo.New(store, sharedCache)
	logRepo := searchlog.New(store, time.Duration(cfg.Cache.SearchLogTTLSec)*time.Second)

	// Use case services
	processor := queryprocuc.New(sharedCache)
	collections := make([]vectoruc.Collection, 0, len(cfg.Search.Collections))
	for _, c := range cfg.Search.Collections {
		collections = append(collections, vectoruc.Collection{
			Name:     c.Name,
			Weight:   c.Weight,
			Keywords: c.Keywords,
		})
	}
	engine := vectoruc.New(searchRepo, vectoruc.Config{
		Collections:       collections,
		DefaultCollection: cfg.Search.DefaultCollection,
		CallTimeout:       time.Duration(cfg.Search.CallTimeoutSec) * time.Second,
	})
	enricher := enrichuc.New(metadataRepo)
	perfMonitor := monitoruc.New(sharedCache)

	searchSvc := orchestratoruc.New(
		processor, embedder, engine, enricher, logRepo, perfMonitor, sharedCache,
	)

	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(embedder), searchSvc)

	server := chiTransport.NewServer(searchSvc, healthSvc, perfMonitor, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Router())

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

// buildEmbedder assembles the decorator chain: OpenAI -> Retrying -> Validating -> Cached.
// The cache sits outermost so a hit skips the whole chain.
func buildEmbedder(cfg config.EmbeddingConfig, c *cache.Cache, logger *zap.Logger) domain.Embedder {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Dimensions:  cfg.Dimensions,
		Provider:    cfg.Provider,
		CallTimeout: time.Duration(cfg.CallTimeoutSec) * time.Second,
		Logger:      logger,
	})

	policy := embeddinguc.DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RateLimitCooldownSec > 0 {
		policy.RateLimitCooldown = time.Duration(cfg.RateLimitCooldownSec) * time.Second
	}

	var embedder domain.Embedder = base
	embedder = embeddinguc.NewRetryingEmbedder(embedder, policy, cfg.Provider, logger)
	embedder = embeddinguc.NewValidatingEmbedder(embedder, cfg.Dimensions)
	return embcache.New(embedder, c, cfg.Model, cfg.Dimensions, metrics.EmbeddingCacheTotal, logger)
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
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

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
