//	@title			Cloud Asset Gateway API
//	@version		1.0
//	@description	Upload and retrieval gateway between the CMS dashboard and the external object store.
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**. Required only when UPLOAD_JWT_SECRET is set.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/studiocms/service/internal/assetref"
	"github.com/studiocms/service/internal/config"
	"github.com/studiocms/service/internal/logging"
	"github.com/studiocms/service/internal/metrics"
	"github.com/studiocms/service/internal/retrieval"
	"github.com/studiocms/service/internal/server"
	"github.com/studiocms/service/internal/storage"
	"github.com/studiocms/service/internal/upload"

	_ "github.com/studiocms/service/docs/swagger"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	resolver := assetref.NewResolver(cfg.ProxyBasePath, cfg.UpstreamBaseURL, cfg.UpstreamReadKey)

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := newStore(initCtx, cfg, resolver)
	cancelInit()
	if err != nil {
		slog.Error("object storage init failed", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}

	metrics.Register()

	// Wire dependencies: store → gateway → handler
	gateway := retrieval.NewGateway(store,
		retrieval.NewFileFallback(cfg.FallbackAssetPath, cfg.FallbackCache),
		retrieval.WithSecrets(cfg.UpstreamReadKey, cfg.UpstreamWriteKey),
	)
	uploads := upload.NewService(store, resolver, upload.WithMaxBytes(cfg.UploadMaxBytes))

	router := server.NewRouter(server.Deps{
		Config:    cfg,
		Retrieval: retrieval.NewHandler(gateway),
		Upload:    upload.NewHandler(uploads, cfg.UploadSource),
	})

	// Retrieval may spend a few seconds in retries before answering.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server listening", "addr", srv.Addr, "env", cfg.AppEnv, "backend", cfg.StorageBackend)
		slog.Info("swagger UI available", "url", fmt.Sprintf("http://localhost:%s/swagger/", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

func newStore(ctx context.Context, cfg *config.Config, resolver *assetref.Resolver) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendMinio:
		return storage.NewMinioStorage(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	case config.BackendS3:
		return storage.NewS3Storage(ctx, cfg.S3Bucket, cfg.AWSRegion, cfg.S3Prefix, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey)
	default:
		return storage.NewHTTPStore(resolver, cfg.UpstreamBaseURL, cfg.UpstreamReadKey, cfg.UpstreamWriteKey, cfg.UpstreamTimeout), nil
	}
}
