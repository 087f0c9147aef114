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

	"github.com/helixdata/metasearch/internal/cache"
	"github.com/helixdata/metasearch/internal/config"
	dbBleve "github.com/helixdata/metasearch/internal/db/bleve"
	dbRedis "github.com/helixdata/metasearch/internal/db/redis"
	"github.com/helixdata/metasearch/internal/domain/entity"
	logpkg "github.com/helixdata/metasearch/internal/logger"
	"github.com/helixdata/metasearch/internal/metrics"
	"github.com/helixdata/metasearch/internal/repository/entitysearch"
	graphrepo "github.com/helixdata/metasearch/internal/repository/graph"
	chiTransport "github.com/helixdata/metasearch/internal/transport/chi"
	healthuc "github.com/helixdata/metasearch/internal/usecase/health"
	lineageuc "github.com/helixdata/metasearch/internal/usecase/lineage"
	searchuc "github.com/helixdata/metasearch/internal/usecase/search"
	"github.com/helixdata/metasearch/internal/version"
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

	logger.Info("Starting metasearch API server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_path", cfg.Engine.IndexPath),
		zap.Int("entity_types", len(cfg.Entities)),
	)

	specs, err := cfg.EntitySpecs()
	if err != nil {
		logger.Fatal("Invalid entity configuration", zap.Error(err))
	}
	registry, err := entity.NewRegistry(specs)
	if err != nil {
		logger.Fatal("Failed to build entity registry", zap.Error(err))
	}

	store, err := dbBleve.NewStore(dbBleve.Config{
		Path:          cfg.Engine.IndexPath,
		KeywordFields: keywordFields(specs),
	})
	if err != nil {
		logger.Fatal("Failed to open search index", zap.Error(err))
	}
	defer func() { _ = store.Close() }()
	logger.Info("Search index ready")

	// Register search metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	handlers := entitysearch.NewHandlerRegistry(registry, entitysearch.Config{
		MaxTermBucketSize: cfg.Engine.MaxTermBucketSize,
	}, logger)
	searchRepo := entitysearch.New(store, handlers)

	// Result cache — shared by the caching search service and the lineage
	// graph snapshot cache.
	resultCache, err := buildCache(cfg.Cache, logger)
	if err != nil {
		logger.Fatal("Failed to create result cache", zap.Error(err))
	}

	searchSvc := searchuc.New(
		searchRepo, resultCache,
		searchuc.Config{BatchSize: cfg.Cache.BatchSize},
		metrics.SearchCacheTotal, logger,
	)

	graphClient, err := graphrepo.NewClient(graphrepo.Config{
		BaseURL: cfg.Lineage.GraphURL,
		Timeout: time.Duration(cfg.Lineage.TimeoutSec) * time.Second,
	})
	if err != nil {
		logger.Fatal("Failed to create lineage graph client", zap.Error(err))
	}
	lineageSvc := lineageuc.New(graphClient, searchSvc, registry, resultCache, logger)

	// Health service
	var cachePinger healthuc.CachePinger
	if resultCache != nil {
		cachePinger = &cacheProbe{cache: resultCache}
	}
	healthSvc := healthuc.New(&engineProbe{store: store}, cachePinger)

	// Create chi server
	server := chiTransport.NewServer(searchSvc, lineageSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
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

// keywordFields collects every field that needs an unanalyzed keyword twin:
// all searchable fields plus the fields the pipeline itself filters on.
func keywordFields(specs []entity.Spec) []string {
	seen := map[string]struct{}{
		entitysearch.URNField:        {},
		entitysearch.EntityTypeField: {},
		entitysearch.RemovedField:    {},
		entitysearch.BrowsePathField: {},
	}
	for _, spec := range specs {
		for _, f := range spec.Fields() {
			seen[f.Name] = struct{}{}
		}
	}
	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	return fields
}

// buildCache creates the configured cache backend, or nil when caching is
// disabled.
func buildCache(cfg config.CacheConfig, logger *zap.Logger) (cache.Cache, error) {
	if !cfg.Enabled {
		logger.Info("Result caching disabled")
		return nil, nil
	}
	ttl := time.Duration(cfg.TTLSec) * time.Second
	switch cfg.Driver {
	case "memory":
		logger.Info("Using in-memory result cache",
			zap.Int("max_entries", cfg.MaxEntries),
			zap.Duration("ttl", ttl),
		)
		return cache.NewMemory(cfg.MaxEntries, ttl), nil
	case "redis":
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Redis.Addrs,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		logger.Info("Using redis result cache",
			zap.Strings("addrs", cfg.Redis.Addrs),
			zap.Duration("ttl", ttl),
		)
		return cache.NewRedis(store, ttl), nil
	}
	return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
}

// engineProbe adapts the bleve store to the health EnginePinger contract.
type engineProbe struct {
	store *dbBleve.Store
}

func (p *engineProbe) Ping(_ context.Context) error {
	_, err := p.store.DocCount()
	return err
}

// cacheProbe adapts the result cache to the health CachePinger contract. A
// miss on the probe key means the backend answered, which is healthy.
type cacheProbe struct {
	cache cache.Cache
}

func (p *cacheProbe) Ping(ctx context.Context) error {
	_, err := p.cache.Get(ctx, "health:probe")
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		return err
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
