package main

import (
	"context"
	"flag"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"text/tabwriter"
	"time"

	"signalTracker/config"
	"signalTracker/internal/adapters/binancequotes"
	"signalTracker/internal/adapters/csvtable"
	"signalTracker/internal/adapters/logger"
	"signalTracker/internal/adapters/sqlite"
	"signalTracker/internal/adapters/yahooquotes"
	"signalTracker/internal/analytics"
	"signalTracker/internal/domain"
	"signalTracker/internal/ingest"
	"signalTracker/internal/ports"
	"signalTracker/internal/tracking"
)

const dateLayout = "2006-01-02"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}
	command := os.Args[1]
	if command == "help" || command == "-h" || command == "--help" {
		printUsage()
		return
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Initialize Trade Table (Persistence Adapter)
	table, closeTable, err := newTradeTable(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trade table")
		log.Fatalf("FATAL: Failed to initialize trade table: %v", err) // Also log to stderr
	}
	defer closeTable()

	// 4. Initialize Quote Provider
	quotes, err := newQuoteProvider(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize quote provider")
		log.Fatalf("FATAL: Failed to initialize quote provider: %v", err)
	}

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

	// 6. Dispatch the subcommand
	if err := runCommand(context.Background(), command, os.Args[2:], cfg, appLogger, store); err != nil {
		appLogger.Error(context.Background(), err, "Command failed", map[string]interface{}{"command": command})
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeTable()
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, command string, args []string, cfg *config.Config, appLogger ports.Logger, store *tracking.Store) error {
	switch command {
	case "track":
		return runTrack(ctx, args, cfg, appLogger, store)
	case "update":
		return runUpdate(ctx, store)
	case "close":
		return runClose(ctx, args, store)
	case "list":
		return runList(ctx, args, store)
	case "report":
		return runReport(ctx, args, store)
	case "add":
		return runAdd(ctx, args, store)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
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

func runTrack(ctx context.Context, args []string, cfg *config.Config, appLogger ports.Logger, store *tracking.Store) error {
	fs := flag.NewFlagSet("track", flag.ExitOnError)
	signalsPath := fs.String("signals", "", "signal batch file (default: newest batch in SIGNALS_DIR)")
	trackAll := fs.Bool("all", false, "track segment signals as well as the overall top signal")
	dryRun := fs.Bool("dry-run", false, "report what would be tracked without writing anything")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *signalsPath
	if path == "" {
		latest, err := ingest.LatestBatch(cfg.SignalsDir)
		if err != nil {
			return err
		}
		path = latest
	}

	ing, err := ingest.New(store, appLogger)
	if err != nil {
		return err
	}
	report, err := ing.Track(ctx, path, *trackAll, *dryRun)
	if err != nil {
		return err
	}
	printTrackReport(report)
	return nil
}

func runUpdate(ctx context.Context, store *tracking.Store) error {
	updated, err := store.UpdateActiveTrades(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Revalued %d active trade(s).\n", updated)
	return nil
}

func runClose(ctx context.Context, args []string, store *tracking.Store) error {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	tradeID := fs.String("id", "", "trade id to close (required)")
	exitPrice := fs.Float64("price", 0, "exit price (required)")
	exitDateStr := fs.String("date", "", "exit date as YYYY-MM-DD (default: today)")
	reason := fs.String("reason", "manual exit", "why the trade is being closed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tradeID == "" {
		return fmt.Errorf("-id is required")
	}
	if *exitPrice <= 0 {
		return fmt.Errorf("-price must be positive")
	}

	var exitDate time.Time
	if *exitDateStr != "" {
		parsed, err := time.Parse(dateLayout, *exitDateStr)
		if err != nil {
			return fmt.Errorf("-date %q is not YYYY-MM-DD: %w", *exitDateStr, err)
		}
		exitDate = parsed
	}

	trade, err := store.CloseTrade(ctx, *tradeID, *exitPrice, exitDate, *reason)
	if err != nil {
		return err
	}
	fmt.Printf("Closed %s at %.2f on %s: realized P&L %+.2f over %d day(s) (%s)\n",
		trade.ID, *trade.ExitPrice, trade.ExitDate.Format(dateLayout), *trade.RealizedPNL, *trade.HoldingDays, trade.ExitReason)
	return nil
}

func runList(ctx context.Context, args []string, store *tracking.Store) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	all := fs.Bool("all", false, "include closed trades")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		trades []*domain.Trade
		err    error
	)
	if *all {
		trades, err = store.AllTrades(ctx)
	} else {
		trades, err = store.ActiveTrades(ctx)
	}
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		fmt.Println("No trades to show.")
		return nil
	}
	printTrades(trades)
	return nil
}

func runReport(ctx context.Context, args []string, store *tracking.Store) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	monthStr := fs.String("month", time.Now().UTC().Format("2006-01"), "report month as YYYY-MM")
	if err := fs.Parse(args); err != nil {
		return err
	}

	period, err := time.Parse("2006-01", *monthStr)
	if err != nil {
		return fmt.Errorf("-month %q is not YYYY-MM: %w", *monthStr, err)
	}

	trades, err := store.AllTrades(ctx)
	if err != nil {
		return err
	}
	printMonthlyReport(analytics.Monthly(trades, period.Year(), period.Month()))
	return nil
}

func runAdd(ctx context.Context, args []string, store *tracking.Store) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	symbol := fs.String("symbol", "", "ticker symbol (required)")
	entry := fs.Float64("entry", 0, "entry price (required)")
	stop := fs.Float64("stop", 0, "stop loss price (required)")
	target := fs.Float64("target", 0, "target price (required)")
	short := fs.Bool("short", false, "track as a short position")
	notes := fs.String("notes", "", "free-form notes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *symbol == "" {
		return fmt.Errorf("-symbol is required")
	}

	direction := domain.Long
	if *short {
		direction = domain.Short
	}
	trade, err := store.AddManualPick(ctx, tracking.ManualPick{
		Symbol:        *symbol,
		Direction:     direction,
		EntryPrice:    *entry,
		StopLossPrice: *stop,
		TargetPrice:   *target,
		Notes:         *notes,
	})
	if err != nil {
		return err
	}

	rr := "-"
	if trade.RiskRewardRatio != nil {
		rr = fmt.Sprintf("%.2f", *trade.RiskRewardRatio)
	}
	fmt.Printf("Tracking manual pick %s (%s %s @ %.2f, stop %.2f, target %.2f, R:R %s)\n",
		trade.ID, trade.Symbol, trade.Direction, trade.EntryPrice, trade.StopLossPrice, trade.TargetPrice, rr)
	return nil
}

func printTrackReport(report *ingest.Report) {
	fmt.Printf("Signal batch: %s\n", report.BatchPath)
	if report.DryRun {
		fmt.Println("Dry run: no trades were created.")
	}
	if len(report.Created) == 0 && len(report.Skipped) == 0 && len(report.Failed) == 0 {
		fmt.Println("Nothing to track: no signals found in the batch.")
		return
	}

	verb := "Tracked"
	if report.DryRun {
		verb = "Would track"
	}
	if len(report.Created) > 0 {
		fmt.Printf("%s %d signal(s):\n", verb, len(report.Created))
		for _, c := range report.Created {
			id := c.TradeID
			if id == "" {
				id = "-"
			}
			fmt.Printf("  %-18s %-6s (%s)\n", id, c.Symbol, segmentLabel(c.Segment))
		}
	}
	if len(report.Skipped) > 0 {
		fmt.Printf("Skipped %d signal(s):\n", len(report.Skipped))
		for _, s := range report.Skipped {
			fmt.Printf("  %-6s (%s)  %s\n", s.Symbol, segmentLabel(s.Segment), s.Reason)
		}
	}
	if len(report.Failed) > 0 {
		fmt.Printf("Failed %d signal(s):\n", len(report.Failed))
		for _, f := range report.Failed {
			fmt.Printf("  %-6s (%s)  %v\n", f.Symbol, segmentLabel(f.Segment), f.Err)
		}
	}
	if !report.DryRun {
		fmt.Printf("Revalued %d active trade(s).\n", report.Revalued)
	}
}

func segmentLabel(segment string) string {
	if segment == "" {
		return "overall"
	}
	return segment
}

func printTrades(trades []*domain.Trade) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TRADE ID\tSYMBOL\tSIDE\tTYPE\tSTATUS\tENTRY\tMARK\tP&L\tENTRY DATE\tEXIT DATE")
	for _, t := range trades {
		mark := t.CurrentPrice
		pnl := t.UnrealizedPNL
		exitDate := "-"
		if t.Status == domain.StatusClosed {
			if t.ExitPrice != nil {
				mark = *t.ExitPrice
			}
			if t.RealizedPNL != nil {
				pnl = *t.RealizedPNL
			}
			exitDate = t.ExitDate.Format(dateLayout)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.2f\t%.2f\t%+.2f\t%s\t%s\n",
			t.ID, t.Symbol, t.Direction, t.Type, t.Status, t.EntryPrice, mark, pnl,
			t.EntryDate.Format(dateLayout), exitDate)
	}
	w.Flush()
}

func printMonthlyReport(report *analytics.MonthlyReport) {
	fmt.Printf("Performance for %d-%02d\n\n", report.Year, int(report.Month))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tTRADES\tWINS\tLOSSES\tWIN RATE\tTOTAL P&L\tAVG WIN\tAVG LOSS\tPROFIT FACTOR")
	printMetricsRow(w, "Combined", report.Combined)
	printMetricsRow(w, "Tracked signals", report.TrackedSignals)
	printMetricsRow(w, "Manual picks", report.ManualPicks)
	w.Flush()

	if len(report.Trades) == 0 {
		fmt.Println("\nNo trades were closed in this month.")
		return
	}
	fmt.Println("\nClosed trades:")
	for _, t := range report.Trades {
		reason := t.ExitReason
		if reason == "" {
			reason = "-"
		}
		fmt.Printf("  %-18s %-6s %-7s %+8.2f  closed %s  %s\n",
			t.ID, t.Symbol, t.Type, *t.RealizedPNL, t.ExitDate.Format(dateLayout), reason)
	}
}

func printMetricsRow(w *tabwriter.Writer, label string, m analytics.Metrics) {
	fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f%%\t%+.2f\t%+.2f\t%+.2f\t%.2f\n",
		label, m.TotalTrades, m.WinningTrades, m.LosingTrades, m.WinRate*100,
		m.TotalPNL, m.AverageWin, m.AverageLoss, m.ProfitFactor)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: tracker <command> [flags]

Commands:
  track    ingest a signal batch into the trade ledger
  update   refresh valuation for every active trade
  close    close a tracked trade at an exit price
  list     show tracked trades
  report   monthly performance over closed trades
  add      track a manual pick

Run 'tracker <command> -h' for the flags of a command.

Configuration comes from the environment (or a .env file):
TRADES_BACKEND, TRADES_FILE, DB_PATH, QUOTE_PROVIDER, QUOTE_TIMEOUT_SECONDS,
SIGNALS_DIR, UPDATE_CRON, LOG_LEVEL, BINANCE_API_KEY, BINANCE_API_SECRET,
IS_TESTNET, HTTP_PROXY.
`)
}
