package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gmorandi/membot/internal/agent"
	"github.com/gmorandi/membot/internal/config"
	"github.com/gmorandi/membot/internal/conversation"
	"github.com/gmorandi/membot/internal/history"
	"github.com/gmorandi/membot/internal/httpapi"
	"github.com/gmorandi/membot/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	window := observability.NewTurnStageWindow(256)

	ctx := context.Background()
	store, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("history store init failed: %v", err)
	}
	defer store.Close()
	if cfg.DatabaseURL == "" {
		log.Printf("history store: in-memory (set DATABASE_URL for durable history)")
	} else {
		log.Printf("history store: postgres")
	}

	invoker, err := agent.NewInvoker(agent.Config{
		Mode:    cfg.AgentMode,
		HTTPURL: cfg.AgentHTTPURL,
		Timeout: cfg.AgentTimeout,
	})
	if err != nil {
		log.Fatalf("agent invoker init failed: %v", err)
	}

	cache := history.NewCache(cfg.CacheMaxUsers, cfg.CacheTurnsPerUser, func(userID string) {
		metrics.CacheEvictions.Inc()
	})

	svc := conversation.NewService(cache, store, invoker, metrics, window, conversation.Options{
		HydrateWindow: cfg.HydrateWindow,
		StoreTimeout:  cfg.StoreTimeout,
		AgentTimeout:  cfg.AgentTimeout,
	})

	api := httpapi.New(svc, window)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
