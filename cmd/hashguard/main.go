package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/y0ug/hashguard/internal/database"
	"github.com/y0ug/hashguard/internal/dataset"
	"github.com/y0ug/hashguard/internal/lookup"
	"github.com/y0ug/hashguard/internal/metrics"
	"github.com/y0ug/hashguard/internal/notifications"
	"github.com/y0ug/hashguard/internal/reputation"
	"github.com/y0ug/hashguard/internal/signals"
	"github.com/y0ug/hashguard/internal/verdict"
	"github.com/y0ug/hashguard/internal/webserver"
	"github.com/y0ug/hashguard/pkg/auth"
)

func main() {
	ctx := context.Background()

	// Initialize Logrus
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	issueTokenFlag := flag.String("issue-token", "", "Print an admin token for the given subject and exit")
	flag.Parse()

	// Load .env file if present
	err := godotenv.Load()
	if err != nil {
		logger.Info("No .env file found for hashguard configuration. Proceeding with environment variables.")
	}

	configureLogger(logger)

	authConfig, err := auth.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to initialize auth config: %v", err)
	}
	logger.Infof("Auth type: %v", authConfig.AuthType)

	if *issueTokenFlag != "" {
		if !authConfig.Enabled() {
			logger.Fatal("AUTH_TYPE must be jwt to issue tokens")
		}
		token, err := auth.GenerateToken(*issueTokenFlag, authConfig.AdminRole, authConfig)
		if err != nil {
			logger.Fatalf("Failed to issue token: %v", err)
		}
		if err := json.NewEncoder(os.Stdout).Encode(token); err != nil {
			logger.Fatalf("Failed to print token: %v", err)
		}
		return
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Load database configuration
	dbConfig, err := database.LoadDatabaseConfig()
	if err != nil {
		logger.Fatalf("Failed to load database configuration: %v", err)
	}

	db, err := database.Open(ctx, dbConfig, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize %s database: %v", dbConfig.Type, err)
	}
	defer db.Close(ctx)
	logger.WithField("type", dbConfig.Type).Info("Database initialized successfully")

	verdictConfig, err := verdict.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load verdict configuration: %v", err)
	}

	signalsConfig, err := signals.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load signal configuration: %v", err)
	}
	signalSet, err := signals.Build(signalsConfig, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize signal providers: %v", err)
	}

	cache := reputation.NewCache(db, verdictConfig.FreshnessWindow, logger)
	aggregator := verdict.New(cache, signalSet, verdictConfig, logger)
	aggregator.SetMetrics(m)

	// Load notification configuration
	notificationCfg, err := notifications.LoadNotificationConfig()
	if err != nil {
		logger.Fatalf("Failed to load notification configuration: %v", err)
	}
	if notificationCfg.Enabled() {
		notifier, err := notifications.NewNotifier(notificationCfg.ShoutrrrURLs, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize notifier: %v", err)
		}
		aggregator.SetNotifier(notifier)
		logger.Info("Notifier initialized successfully")
	} else {
		logger.Info("SHOUTRRR_URLS not set. Malicious verdict notifications disabled.")
	}

	lookupService := lookup.NewService(logger, m, lookup.DefaultDatasets...)

	datasetNames := make([]string, 0, len(lookup.DefaultDatasets))
	for _, d := range lookup.DefaultDatasets {
		datasetNames = append(datasetNames, d.Name)
	}
	datasetConfig, err := dataset.LoadConfig(datasetNames)
	if err != nil {
		logger.Fatalf("Failed to load dataset configuration: %v", err)
	}
	reloader := dataset.NewReloader(datasetConfig, lookupService, logger)
	if err := reloader.LoadAll(ctx); err != nil {
		// Range queries for a dataset that failed to load answer 503 until a reload succeeds.
		logger.WithError(err).Error("Initial dataset load incomplete")
	}

	webServerConfig, err := webserver.NewWebserverConfig()
	if err != nil {
		logger.Fatalf("Failed to load webserver configuration: %v", err)
	}

	// Initialize Web Server
	webServer := webserver.NewWebServer(lookupService, aggregator, cache, registry, webServerConfig, authConfig, logger)

	// Create a cancellable context
	ctxCancel, cancel := context.WithCancel(ctx)
	defer cancel()

	server, err := webserver.StartWebServer(ctxCancel, webServer)
	if err != nil {
		logger.Fatalf("Failed to start web server: %v", err)
	}

	reloaderDone := make(chan struct{})
	go func() {
		defer close(reloaderDone)
		reloader.Start(ctxCancel)
	}()

	// Listen for OS signals to handle graceful shutdown
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigs
	logger.Infof("Received signal: %s. Initiating shutdown...", sig)

	gracefulShutdown(ctx, server, cancel, reloaderDone, logger)
	aggregator.Close()

	logger.Info("Shutdown complete. Exiting.")
}

// gracefulShutdown drains the server, then cancels the base context shared by
// requests and background workers and waits for the workers to stop.
func gracefulShutdown(ctx context.Context, server *http.Server, cancel context.CancelFunc, workersDone <-chan struct{}, logger *logrus.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Failed to gracefully shutdown the server: %v", err)
	}

	cancel()
	<-workersDone
}

// configureLogger applies LOG_LEVEL and LOG_FILE. With LOG_FILE set, logs go to
// stdout and to a rotated file.
func configureLogger(logger *logrus.Logger) {
	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if path := os.Getenv("LOG_FILE"); path != "" {
		logger.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}))
		logger.Infof("Logging to %s", path)
	}
}
