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

	"github.com/kailas-cloud/petmatch/internal/config"
	dbRedis "github.com/kailas-cloud/petmatch/internal/db/redis"
	"github.com/kailas-cloud/petmatch/internal/domain"
	logpkg "github.com/kailas-cloud/petmatch/internal/logger"
	"github.com/kailas-cloud/petmatch/internal/metrics"
	descriptorrepo "github.com/kailas-cloud/petmatch/internal/repository/descriptor"
	matcheventrepo "github.com/kailas-cloud/petmatch/internal/repository/matchevent"
	chiTransport "github.com/kailas-cloud/petmatch/internal/transport/chi"
	onnxExt "github.com/kailas-cloud/petmatch/internal/transport/onnx"
	openaiExt "github.com/kailas-cloud/petmatch/internal/transport/openai"
	"github.com/kailas-cloud/petmatch/internal/transport/webhook"
	healthuc "github.com/kailas-cloud/petmatch/internal/usecase/health"
	indexinguc "github.com/kailas-cloud/petmatch/internal/usecase/indexing"
	matchinguc "github.com/kailas-cloud/petmatch/internal/usecase/matching"
	notifyuc "github.com/kailas-cloud/petmatch/internal/usecase/notify"
	"github.com/kailas-cloud/petmatch/internal/version"
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

	logger.Info("Starting petmatch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("extractor_driver", cfg.Extractor.Driver),
		zap.String("model_version", cfg.Extractor.ModelVersion),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:     cfg.Database.Addrs,
		Username:  cfg.Database.Username,
		Password:  cfg.Database.Password,
		OpTimeout: time.Duration(cfg.Database.OpTimeoutSec) * time.Second,
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
	metrics.RegisterInferenceMetrics()
	metrics.RegisterMatchingMetrics()

	// Build the feature extraction driver — composition root
	extractor, modelChecker, cleanup := buildExtractor(cfg, logger)
	defer cleanup()

	descRepo := descriptorrepo.New(store, cfg.Storage.KeyPrefix, cfg.Extractor.Dimensions).
		WithHNSW(descriptorrepo.HNSWConfig{
			M:           cfg.Matching.HNSWM,
			EFConstruct: cfg.Matching.HNSWEFConstruct,
		})
	if err := descRepo.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure descriptor index", zap.Error(err))
	}
	eventRepo := matcheventrepo.New(store, cfg.Storage.KeyPrefix)

	// Delivery collaborator: webhook when configured, log-only otherwise.
	var deliverer notifyuc.Deliverer
	if cfg.Notifier.WebhookURL != "" {
		deliverer = webhook.NewDeliverer(
			cfg.Notifier.WebhookURL,
			time.Duration(cfg.Notifier.TimeoutSec)*time.Second,
			logger,
		)
		logger.Info("Webhook delivery enabled", zap.String("url", cfg.Notifier.WebhookURL))
	} else {
		deliverer = webhook.NewLogDeliverer(logger)
		logger.Info("Log-only delivery enabled")
	}

	// Create use case services
	indexingSvc := indexinguc.New(descRepo, extractor, logger)
	matchingSvc := matchinguc.New(descRepo, extractor, matchinguc.Policy{
		TopK:          cfg.Matching.TopK,
		MinConfidence: cfg.Matching.MinConfidence,
		Oversample:    cfg.Matching.Oversample,
	}, logger)
	notifySvc := notifyuc.New(eventRepo, deliverer, cfg.Matching.MinConfidence, logger)
	healthSvc := healthuc.New(store, modelChecker)

	// Create chi server
	server := chiTransport.NewServer(indexingSvc, matchingSvc, notifySvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Mount(r)

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

// buildExtractor assembles the configured extraction driver. The returned
// cleanup releases driver resources on shutdown.
func buildExtractor(cfg config.Config, logger *zap.Logger) (domain.Extractor, domain.HealthChecker, func()) {
	switch cfg.Extractor.Driver {
	case "onnx":
		ext, err := onnxExt.NewExtractor(&onnxExt.Config{
			ModelPath:    cfg.Extractor.ONNX.ModelPath,
			LibraryPath:  cfg.Extractor.ONNX.LibraryPath,
			ModelVersion: cfg.Extractor.ModelVersion,
			Dimensions:   cfg.Extractor.Dimensions,
			InputName:    cfg.Extractor.ONNX.InputName,
			OutputName:   cfg.Extractor.ONNX.OutputName,
			PoolSize:     cfg.Extractor.ONNX.PoolSize,
			Logger:       logger,
		})
		if err != nil {
			logger.Fatal("Failed to load ONNX model", zap.Error(err))
		}
		return ext, ext, ext.Close
	case "openai":
		ext := openaiExt.NewExtractor(&openaiExt.Config{
			APIKey:       cfg.Extractor.OpenAI.APIKey,
			BaseURL:      cfg.Extractor.OpenAI.BaseURL,
			Model:        cfg.Extractor.OpenAI.Model,
			ModelVersion: cfg.Extractor.ModelVersion,
			Dimensions:   cfg.Extractor.Dimensions,
			Timeout:      time.Duration(cfg.Extractor.OpenAI.TimeoutSec) * time.Second,
			Logger:       logger,
		})
		return ext, ext, func() {}
	default:
		logger.Fatal("Unknown extractor driver", zap.String("driver", cfg.Extractor.Driver))
		return nil, nil, nil
	}
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
