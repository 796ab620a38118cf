package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voicereader/speakd/internal/config"
	"github.com/voicereader/speakd/internal/httpapi"
	"github.com/voicereader/speakd/internal/observability"
	"github.com/voicereader/speakd/internal/runtimeapp"
)

const metricsNamespace = "speakd"
const shutdownTimeout = 5 * time.Second

func runServe(cfg config.EngineConfig) error {
	metrics := observability.NewMetrics(metricsNamespace)

	ctx := context.Background()
	rt, err := runtimeapp.New(ctx, cfg, metrics)
	if err != nil {
		return fmt.Errorf("runtime init failed: %w", err)
	}
	rt.StartupWarmup(ctx)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	var quitOnce bool
	httpServer := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)}
	api := httpapi.New(cfg.Token, rt, metrics, false, func() {
		if quitOnce {
			return
		}
		quitOnce = true
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	})
	httpServer.Handler = api.Router()

	go func() {
		log.Printf("speakd listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
	return nil
}
