package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hive-corporation/iocscope/internal/adapter/handler"
	"github.com/hive-corporation/iocscope/internal/adapter/metrics"
	"github.com/hive-corporation/iocscope/internal/app"
	"github.com/hive-corporation/iocscope/internal/config"
	"github.com/hive-corporation/iocscope/internal/platform/logging"
)

func main() {
	logger := logging.Init("iocscope-api")

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	m := metrics.Default()
	log.Println("✅ Prometheus metrics initialized")

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, m, logger)
	if err != nil {
		log.Fatalf("❌ Failed to start: %v", err)
	}
	defer a.Close()

	slowest := cfg.SourceTimeout
	for _, d := range app.SourceTimeouts(cfg) {
		slowest = max(slowest, d)
	}

	router := handler.NewRouter(handler.RouterConfig{
		Handler:        handler.NewRestHandler(a.Service, 2*slowest+5*time.Second, logger),
		Metrics:        m,
		MetricsHandler: promhttp.Handler(),
		CORSOrigins:    cfg.CORSOrigins,
		Logger:         logger,
	})

	// lookups fan out to every source, so writes wait for the slowest one
	srv := &http.Server{
		Addr:         cfg.RESTAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*slowest + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("🚀 iocscope REST API listening on %s", cfg.RESTAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
		return
	}

	log.Println("✅ Server stopped gracefully")
}
