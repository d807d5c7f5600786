package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/haojie06/imagen-http/internal/imagen"
	"github.com/haojie06/imagen-http/internal/logger"
	"github.com/haojie06/imagen-http/internal/server/handler"
)

type Config struct {
	Host string `mapstructure:"host"`

	Port string `mapstructure:"port"`

	EnablePprof bool `mapstructure:"pprof"`

	AllowOrigins []string `mapstructure:"allowOrigins"`

	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, cfg Config, service *imagen.Service) error {
	srv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: InitRouter(cfg, service),
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Infof("shutting down server")
		timeout := cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errChan; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func InitRouter(cfg Config, service *imagen.Service) *gin.Engine {
	router := gin.New()
	router.Use(ginzap.RecoveryWithZap(logger.ZapLogger, true))
	router.Use(ginzap.Ginzap(logger.ZapLogger, time.RFC3339Nano, true))
	router.Use(RequestIDMiddleware())
	router.Use(cors.New(corsConfig(cfg.AllowOrigins)))
	if cfg.EnablePprof {
		pprof.Register(router)
	}

	h := handler.NewHandler(service)
	router.GET("/healthz", h.Health)

	apiGroup := router.Group("/api")
	apiGroup.POST("/generateImage", h.GenerateImage)
	if service.HistoryEnabled() {
		apiGroup.GET("/history", h.ListHistory)
		apiGroup.GET("/history/:id", h.GetHistoryEntry)
		apiGroup.DELETE("/history", h.ClearHistory)
	}
	return router
}

func corsConfig(allowOrigins []string) cors.Config {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	config.AllowHeaders = []string{"Origin", "Content-Type", RequestIDHeader}
	config.ExposeHeaders = []string{
		RequestIDHeader,
		handler.HeaderRateLimitLimit,
		handler.HeaderRateLimitRemaining,
		handler.HeaderRateLimitReset,
	}
	if len(allowOrigins) == 0 || (len(allowOrigins) == 1 && allowOrigins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowOrigins
	}
	return config
}
