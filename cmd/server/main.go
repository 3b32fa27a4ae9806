/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the milk-route ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Configure structured logging
  3. Initialize SQLite store
  4. Create route service and API handler
  5. Start the automatic end-of-day reset scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: ledger.db)
              Use ":memory:" for in-memory database
  -log-level  Log level: debug, info, warn, error (default: info)
  -auto-reset Run the end-of-day reset automatically (default: true)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reset scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/route.db"

  # Run with in-memory database (demo scenarios)
  ./server -db=":memory:"

  # Run on different port without the automatic reset
  ./server -port=3000 -auto-reset=false

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Automatic end-of-day reset
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/milkroute/ledger-engine/api"
	"github.com/milkroute/ledger-engine/route"
	"github.com/milkroute/ledger-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "ledger.db", "SQLite database path")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	autoReset := flag.Bool("auto-reset", true, "Run the end-of-day reset automatically")
	flag.Parse()

	// Logging
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", *logLevel)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Route service and API handler
	svc := route.NewService(store, route.WithLogger(log))
	handler := api.NewHandler(svc)
	router := api.NewRouter(handler)

	// Automatic end-of-day reset
	scheduler := api.NewResetScheduler(svc, log)
	scheduler.Enabled = *autoReset
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infof("Server starting on http://localhost:%d", *port)
		log.Infof("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped")
}
