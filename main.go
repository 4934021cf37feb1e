package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/postale/postale/auth"
	"github.com/postale/postale/config"
	"github.com/postale/postale/delivery"
	"github.com/postale/postale/logger"
	"github.com/postale/postale/mailstore"
	"github.com/postale/postale/pkg/metrics"
	"github.com/postale/postale/server"
)

func main() {
	// Application defaults first; the TOML file layers on top, and
	// explicitly set command-line flags override both.
	cfg := config.NewDefaultConfig()

	configPath := flag.String("config", "config.toml", "Path to TOML configuration file")

	fAddr := flag.String("addr", cfg.Server.Addr, "Listen address (overrides config)")
	fLocalDomain := flag.String("localdomain", cfg.Server.LocalDomain, "Local mail domain (overrides config)")
	fStorageDriver := flag.String("storagedriver", cfg.Storage.Driver, "Storage driver: 'fs' or 'sqlite' (overrides config)")
	fDataDir := flag.String("datadir", cfg.Storage.DataDir, "Mail data directory for the fs driver (overrides config)")
	fSQLitePath := flag.String("sqlitepath", cfg.Storage.SQLitePath, "Database file for the sqlite driver (overrides config)")
	fRelayHost := flag.String("relayhost", cfg.Relay.Host, "External SMTP relay address (overrides config)")
	fMetrics := flag.Bool("metrics", cfg.Metrics.Enabled, "Enable the Prometheus metrics endpoint (overrides config)")
	fMetricsAddr := flag.String("metricsaddr", cfg.Metrics.Addr, "Metrics HTTP listen address (overrides config)")
	fLogOutput := flag.String("logoutput", cfg.Logging.Output, "Log output: 'stderr', 'stdout', 'syslog' or a file path (overrides config)")
	fLogLevel := flag.String("loglevel", cfg.Logging.Level, "Log level: debug, info, warn, error (overrides config)")

	flag.Parse()

	if err := config.Load(*configPath, &cfg); err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Only flags the user actually passed win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = *fAddr
		case "localdomain":
			cfg.Server.LocalDomain = *fLocalDomain
		case "storagedriver":
			cfg.Storage.Driver = *fStorageDriver
		case "datadir":
			cfg.Storage.DataDir = *fDataDir
		case "sqlitepath":
			cfg.Storage.SQLitePath = *fSQLitePath
		case "relayhost":
			cfg.Relay.Host = *fRelayHost
		case "metrics":
			cfg.Metrics.Enabled = *fMetrics
		case "metricsaddr":
			cfg.Metrics.Addr = *fMetricsAddr
		case "logoutput":
			cfg.Logging.Output = *fLogOutput
		case "loglevel":
			cfg.Logging.Level = *fLogLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logging: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	store, err := mailstore.New(&cfg.Storage)
	if err != nil {
		logger.Fatal("failed to initialize mailbox store", "error", err)
	}
	defer store.Close()

	smtpRelay, err := delivery.NewSMTPRelay(&cfg.Relay)
	if err != nil {
		logger.Fatal("failed to initialize relay", "error", err)
	}
	var relayHandler delivery.RelayHandler
	if smtpRelay != nil {
		relayHandler = smtpRelay
		logger.Info("external relay configured", "host", cfg.Relay.Host)
	} else {
		logger.Warn("no external relay configured, external mail will be rejected")
	}

	router := delivery.NewRouter(store, relayHandler, cfg.Server.LocalDomain)
	authManager := auth.NewManager(store)
	srv := server.New(&cfg.Server, store, authManager, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewHTTPServer(cfg.Metrics.Addr)
		go func() {
			logger.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Fatal("server failed", "error", err)
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}
}
