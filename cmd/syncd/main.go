// Package main runs the sync core daemon: it keeps the local embedded
// replica connected to the remote database service, exposes the event hub
// for foreground observers on /ws, and serves Prometheus metrics on
// /metrics.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MainListActivity/cuckoox-google-sub012/internal/connection"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/consistency"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/db"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/events"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/logging"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/remote"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/transport"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	var (
		dataDir    = flag.String("data", envOr("DATA_DIR", "./data"), "data directory for the embedded replica")
		listenAddr = flag.String("listen", envOr("LISTEN_ADDR", "127.0.0.1:8790"), "address for /ws and /metrics")
		endpoint   = flag.String("endpoint", os.Getenv("REMOTE_ENDPOINT"), "remote service endpoint (empty: wait for restored state)")
		namespace  = flag.String("namespace", os.Getenv("REMOTE_NAMESPACE"), "remote namespace")
		dbName     = flag.String("database", os.Getenv("REMOTE_DATABASE"), "remote database")
		logLevel   = flag.String("log-level", envOr("LOG_LEVEL", "INFO"), "minimum log level (DEBUG/INFO/WARN/ERROR)")
	)
	flag.Parse()

	logging.Init(os.Stdout, logging.LogLevel(*logLevel))
	logging.Info("Sync core daemon starting", map[string]interface{}{
		"version": Version,
		"data":    *dataDir,
		"listen":  *listenAddr,
	})

	database, err := db.Open(*dataDir)
	if err != nil {
		log.Fatalf("Failed to open embedded replica: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	hub := events.NewHub(bus)
	go hub.Run(ctx)

	bridge := transport.NewBridge(nil)
	client := remote.NewClient(bridge)
	gateway := connection.NewGateway(database)
	manager := connection.NewManager(connection.DefaultManagerConfig(), client, gateway, bus)

	registry := consistency.NewSchemaRegistry()
	localStore := consistency.NewLocalStore(database)
	checker := consistency.NewManager(registry, localStore, database, bus)

	// A restored snapshot reconnects on its own; an explicit endpoint takes
	// precedence over whatever was persisted.
	if *endpoint != "" {
		config := &models.ConnectionConfig{
			Endpoint:  *endpoint,
			Namespace: *namespace,
			Database:  *dbName,
			Username:  os.Getenv("REMOTE_USERNAME"),
			Password:  os.Getenv("REMOTE_PASSWORD"),
			Token:     os.Getenv("REMOTE_TOKEN"),
		}
		if _, err := manager.Connect(ctx, config); err != nil {
			logging.Warn("Initial connect failed, supervisor will retry", map[string]interface{}{
				"error": err.Error(),
			})
		}
	} else {
		manager.RestoreState(ctx)
	}

	mux := http.NewServeMux()
	(&api{registry: registry, checker: checker}).register(mux)
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		snapshot := manager.State()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  snapshot.Connection.Status,
			"health":  snapshot.Connection.HealthStatus,
			"version": Version,
		})
	})

	server := &http.Server{
		Addr:         *listenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logging.Info("HTTP listener ready", map[string]interface{}{"addr": *listenAddr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logging.Info("Shutdown signal received", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := manager.GracefulShutdown(shutdownCtx); err != nil {
		logging.Error("Graceful shutdown failed", err, nil)
	}
	bridge.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("HTTP shutdown failed", err, nil)
	}
	logging.Info("Sync core daemon stopped", nil)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
