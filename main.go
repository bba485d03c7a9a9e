package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/plchld/news-copilot/internal/article"
	"github.com/plchld/news-copilot/internal/cache"
	"github.com/plchld/news-copilot/internal/config"
	"github.com/plchld/news-copilot/internal/coordinator"
	"github.com/plchld/news-copilot/internal/handlers"
	"github.com/plchld/news-copilot/internal/llm"
	"github.com/plchld/news-copilot/internal/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting news-copilot",
		"environment", cfg.Environment,
		"port", cfg.HTTP.Port,
		"cache_backend", cfg.Cache.Backend,
	)

	client, err := llm.NewGrokClient(cfg.Grok, log)
	if err != nil {
		return fmt.Errorf("init grok client: %w", err)
	}

	var store cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		store, err = cache.NewRedisStore(cfg.Cache, log)
		if err != nil {
			return fmt.Errorf("init redis store: %w", err)
		}
	default:
		store = cache.NewMemoryStore(cfg.Cache.TTL, cfg.Cache.SweepInterval, log)
	}
	defer store.Close()

	coord := coordinator.New(client, cfg.Coordinator, log)
	optimized := coordinator.NewOptimized(coord, store, cfg.Coordinator, log)
	fetcher := article.NewFetcher(cfg.Article, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := handlers.New(coord, optimized, fetcher, store, client, log)
	handler.Register(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("stopped cleanly")
	return nil
}
