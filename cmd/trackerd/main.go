// Command trackerd revalues the tracked trade table on a cron schedule.
// It is the long-running companion to the tracker CLI: the CLI mutates the
// table on demand, trackerd keeps marks fresh while the market is open.
package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"signalTracker/config"
	"signalTracker/internal/adapters/binancequotes"
	"signalTracker/internal/adapters/csvtable"
	"signalTracker/internal/adapters/logger"
	"signalTracker/internal/adapters/sqlite"
	"signalTracker/internal/adapters/yahooquotes"
	"signalTracker/internal/ports"
	"signalTracker/internal/scheduler"
	"signalTracker/internal/tracking"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Trade Table (Persistence Adapter)
	table, closeTable, err := newTradeTable(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trade table")
		log.Fatalf("FATAL: Failed to initialize trade table: %v", err) // Also log to stderr
	}
	defer closeTable()
	appLogger.Info(context.Background(), "Trade table initialized", map[string]interface{}{"backend": cfg.TradesBackend})

	// 4. Initialize Quote Provider
	quotes, err := newQuoteProvider(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize quote provider")
		log.Fatalf("FATAL: Failed to initialize quote provider: %v", err)
	}
	appLogger.Info(context.Background(), "Quote provider initialized", map[string]interface{}{"provider": cfg.QuoteProvider})

	// 5. Initialize Tracking Store
	store, err := tracking.New(tracking.Config{
		Table:        table,
		Quotes:       quotes,
		Logger:       appLogger,
		QuoteTimeout: cfg.QuoteTimeout,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize tracking store")
		log.Fatalf("FATAL: Failed to initialize tracking store: %v", err)
	}

	// 6. Initialize Scheduler and register the revaluation job
	sched, err := scheduler.New(scheduler.Config{Store: store, Logger: appLogger})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize scheduler")
		log.Fatalf("FATAL: Failed to initialize scheduler: %v", err)
	}
	if err := sched.RegisterUpdateJob(cfg.UpdateCron); err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to register revaluation job")
		log.Fatalf("FATAL: Failed to register revaluation job: %v", err)
	}

	// 7. Start and wait for a shutdown signal
	sched.Start()
	defer sched.Stop()

	if os.Getenv("RUN_ON_START") == "true" {
		appLogger.Info(context.Background(), "RUN_ON_START enabled, revaluing now")
		go sched.RunUpdateNow()
	}

	appLogger.Info(context.Background(), "trackerd is running", map[string]interface{}{"schedule": cfg.UpdateCron})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	appLogger.Info(context.Background(), "Received shutdown signal, stopping")
}

// newTradeTable builds the configured persistence adapter. The returned
// cleanup is a no-op for the CSV backend.
func newTradeTable(cfg *config.Config, appLogger ports.Logger) (ports.TradeTable, func(), error) {
	switch cfg.TradesBackend {
	case config.BackendSQLite:
		table, err := sqlite.New(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := table.Close(); err != nil {
				appLogger.Error(context.Background(), err, "Error closing trade table")
			}
		}
		return table, cleanup, nil
	default:
		table, err := csvtable.New(csvtable.Config{Path: cfg.TradesFile, Logger: appLogger})
		if err != nil {
			return nil, nil, err
		}
		return table, func() {}, nil
	}
}

func newQuoteProvider(cfg *config.Config, appLogger ports.Logger) (ports.QuoteProvider, error) {
	switch cfg.QuoteProvider {
	case config.ProviderBinance:
		return binancequotes.New(binancequotes.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			Logger:     appLogger,
		})
	default:
		return yahooquotes.New(yahooquotes.Config{
			Timeout:  cfg.QuoteTimeout,
			ProxyURL: cfg.HTTPProxy,
			Logger:   appLogger,
		})
	}
}
