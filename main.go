package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/haojie06/imagen-http/internal/archive"
	"github.com/haojie06/imagen-http/internal/cache"
	"github.com/haojie06/imagen-http/internal/config"
	"github.com/haojie06/imagen-http/internal/history"
	"github.com/haojie06/imagen-http/internal/imagen"
	"github.com/haojie06/imagen-http/internal/logger"
	"github.com/haojie06/imagen-http/internal/provider"
	"github.com/haojie06/imagen-http/internal/ratelimit"
	"github.com/haojie06/imagen-http/internal/server"
	"github.com/haojie06/imagen-http/internal/store"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		panic(err)
	}
	if err := logger.Setup(cfg.Log); err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := provider.New(cfg.Provider)
	if err != nil {
		logger.Errorf("failed to create provider: %s", err)
		return
	}
	if cfg.Provider.APIKey == "" {
		logger.Warnf("no default API key configured, requests must bring their own key")
	}

	var opts []imagen.Option
	if cfg.Redis.Enabled() {
		client, err := store.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Errorf("%s", err)
			return
		}
		defer client.Close()
		opts = append(opts,
			imagen.WithLimiter(ratelimit.NewFixedWindow(client, cfg.RateLimit)),
			imagen.WithHistory(history.NewStore(client, cfg.History)),
		)
		logger.Infof("rate limit enabled, %d requests per %s", cfg.RateLimit.Limit, cfg.RateLimit.Window)
	} else {
		logger.Warnf("redis is not configured, rate limit and history are disabled")
	}

	if imageCache := cache.New(cfg.Cache); imageCache != nil {
		opts = append(opts, imagen.WithCache(imageCache))
	}

	if cfg.Archive.Enabled() {
		s3Client, err := archive.NewS3Client(ctx, cfg.Archive)
		if err != nil {
			logger.Errorf("failed to create s3 client: %s", err)
			return
		}
		archiver := archive.New(s3Client, cfg.Archive)
		defer archiver.Close()
		opts = append(opts, imagen.WithArchiver(archiver))
	}

	service := imagen.NewService(p, cfg.Provider.APIKey, cfg.Generation, opts...)

	logger.Infof("service is starting, host: %s, port: %s, provider: %s", cfg.Server.Host, cfg.Server.Port, p.Name())
	if err := server.Start(ctx, cfg.Server, service); err != nil {
		logger.Errorf("server stopped: %s", err)
	}
}
