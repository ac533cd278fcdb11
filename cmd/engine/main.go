// Package main is the entry point for the algo trading engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tathienbao/algo-engine/internal/alerting"
	"github.com/tathienbao/algo-engine/internal/backtest"
	"github.com/tathienbao/algo-engine/internal/broker"
	"github.com/tathienbao/algo-engine/internal/broker/paper"
	"github.com/tathienbao/algo-engine/internal/config"
	"github.com/tathienbao/algo-engine/internal/engine"
	"github.com/tathienbao/algo-engine/internal/feed"
	"github.com/tathienbao/algo-engine/internal/journal"
	"github.com/tathienbao/algo-engine/internal/ledger"
	"github.com/tathienbao/algo-engine/internal/match"
	"github.com/tathienbao/algo-engine/internal/metrics"
	"github.com/tathienbao/algo-engine/internal/monitor"
	"github.com/tathienbao/algo-engine/internal/risk"
	"github.com/tathienbao/algo-engine/internal/strategy"
	"github.com/tathienbao/algo-engine/internal/types"
)

// Version information (set by build flags).
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	case "backtest":
		cmdBacktest(os.Args[2:])
	case "run":
		cmdRun(os.Args[2:])
	case "validate":
		cmdValidate(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Algo Engine - Backtesting and Paper Trading

Usage:
  engine <command> [options]

Commands:
  backtest   Replay historical data through a strategy
  run        Start the engine in paper trading mode
  validate   Validate configuration file
  version    Show version information
  help       Show this help message

Examples:
  engine backtest --config config.yaml --data data/INFY_5m.csv
  engine run --config config.yaml
  engine validate --config config.yaml

Use "engine <command> --help" for more information about a command.`)
}

func cmdVersion() {
	fmt.Printf("engine version %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Git commit: %s\n", GitCommit)
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration is valid!")
	fmt.Printf("  Initial capital:  %.2f\n", cfg.Account.InitialCapital)
	fmt.Printf("  Instrument:       %s\n", cfg.Data.Instrument)
	fmt.Printf("  Strategy:         %s\n", strategyName(cfg))
	fmt.Printf("  Reversal policy:  %s\n", cfg.ToEngineConfig(false).Reversal)
	fmt.Printf("  Slippage model:   %s\n", modelName(cfg.Execution.Slippage.Model))
	fmt.Printf("  Commission model: %s\n", modelName(cfg.Execution.Commission.Model))
}

func strategyName(cfg *config.Config) string {
	if cfg.Strategy.Name == "" {
		return "sma_crossover"
	}
	return cfg.Strategy.Name
}

func modelName(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func cmdBacktest(args []string) {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	dataPath := fs.String("data", "", "Path to CSV data file (overrides data.csv_path)")
	verbose := fs.Bool("verbose", false, "Verbose output")
	fs.Parse(args)

	logger := newLogger("text", *verbose)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	csvPath := cfg.Data.CSVPath
	if *dataPath != "" {
		csvPath = *dataPath
	}
	if csvPath == "" {
		fmt.Fprintln(os.Stderr, "Error: no data file (set data.csv_path or pass --data)")
		os.Exit(1)
	}

	led := ledger.New(cfg.InitialCapital(), logger)
	coord, err := buildCoordinator(cfg, led, buildAlerter(cfg, logger), logger, false)
	if err != nil {
		slog.Error("failed to build engine", "err", err)
		os.Exit(1)
	}

	start, end := cfg.DataWindow()
	runner := backtest.NewRunner(
		backtest.Config{
			Instrument: cfg.Data.Instrument,
			StartTime:  start,
			EndTime:    end,
		},
		feed.NewCSVFeed(csvPath, cfg.Data.Instrument),
		buildStrategy(cfg),
		coord,
		led,
		logger,
	)

	slog.Info("starting backtest",
		"data", csvPath,
		"instrument", cfg.Data.Instrument,
		"strategy", strategyName(cfg),
		"capital", cfg.Account.InitialCapital,
	)

	ctx := context.Background()
	result, err := runner.Run(ctx)
	if err != nil {
		slog.Error("backtest failed", "err", err)
		os.Exit(1)
	}

	if cfg.Journal.Enabled {
		if err := journalBacktest(ctx, cfg.Journal.Path, result, led); err != nil {
			slog.Warn("failed to journal backtest", "err", err)
		}
	}

	printBacktestResults(result)
	printMetrics(backtest.NewMetrics(result.Trades, result.EquityCurve, decimal.Zero))
}

// journalBacktest writes the run's fills, final equity, and per-day
// summaries to the trade journal.
func journalBacktest(ctx context.Context, path string, result *backtest.Result, led *ledger.Ledger) error {
	j, err := journal.NewSQLite(path)
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	for _, fill := range result.Fills {
		if err := j.RecordFill(ctx, fill); err != nil {
			return err
		}
	}
	if err := j.RecordEquity(ctx, journal.SnapshotFrom(led.Snapshot())); err != nil {
		return err
	}
	for _, summary := range summarizeDays(result) {
		if err := j.RecordDailySummary(ctx, summary); err != nil {
			return err
		}
	}
	return nil
}

// summarizeDays aggregates fills and trades by calendar day (UTC).
func summarizeDays(result *backtest.Result) []journal.DailySummary {
	byDay := make(map[time.Time]*journal.DailySummary)
	var order []time.Time

	day := func(ts time.Time) *journal.DailySummary {
		d := ts.UTC().Truncate(24 * time.Hour)
		s, ok := byDay[d]
		if !ok {
			s = &journal.DailySummary{Date: d}
			byDay[d] = s
			order = append(order, d)
		}
		return s
	}

	for _, fill := range result.Fills {
		s := day(fill.Timestamp)
		s.Fills++
		s.Commissions = s.Commissions.Add(fill.Commission)
	}
	for _, trade := range result.Trades {
		s := day(trade.Fill.Timestamp)
		s.Trades++
		s.NetPL = s.NetPL.Add(trade.NetPL)
		s.GrossPL = s.GrossPL.Add(trade.NetPL).Add(trade.Fill.Commission)
	}
	for _, point := range result.EquityCurve {
		day(point.Timestamp).EquityClose = point.Equity
	}

	summaries := make([]journal.DailySummary, 0, len(order))
	for _, d := range order {
		summaries = append(summaries, *byDay[d])
	}
	return summaries
}

func printBacktestResults(result *backtest.Result) {
	pct := decimal.NewFromInt(100)
	fmt.Println("\n=== BACKTEST RESULTS ===")
	fmt.Printf("Starting Equity:  %.2f\n", result.StartEquity.InexactFloat64())
	fmt.Printf("Ending Equity:    %.2f\n", result.EndEquity.InexactFloat64())
	fmt.Printf("Total Return:     %.2f%%\n", result.TotalReturn.Mul(pct).InexactFloat64())
	fmt.Printf("Max Drawdown:     %.2f%%\n", result.MaxDrawdown.Mul(pct).InexactFloat64())
	fmt.Printf("Commissions:      %.2f\n", result.CommissionsPaid.InexactFloat64())
	fmt.Println()
	fmt.Printf("Events Processed: %d\n", result.Events)
	fmt.Printf("Total Fills:      %d\n", len(result.Fills))
	fmt.Printf("Total Trades:     %d\n", result.TotalTrades)
	fmt.Printf("Winning Trades:   %d\n", result.WinningTrades)
	fmt.Printf("Losing Trades:    %d\n", result.LosingTrades)
	fmt.Printf("Win Rate:         %.2f%%\n", result.WinRate.Mul(pct).InexactFloat64())
	fmt.Printf("Profit Factor:    %.2f\n", result.ProfitFactor.InexactFloat64())
}

func printMetrics(m *backtest.Metrics) {
	fmt.Println("\n=== PERFORMANCE METRICS ===")
	fmt.Printf("Sharpe Ratio:     %.2f\n", m.SharpeRatio().InexactFloat64())
	fmt.Printf("Expectancy:       %.2f\n", m.Expectancy().InexactFloat64())
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging.Format, cfg.Logging.Level == "debug")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.SetBuildInfo(Version, GitCommit, BuildTime)

	slog.Info("engine starting",
		"version", Version,
		"mode", "paper",
		"instrument", cfg.Data.Instrument,
		"capital", cfg.Account.InitialCapital,
	)

	if err := runPaper(ctx, cfg, logger); err != nil {
		slog.Error("engine stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("engine shutdown complete")
}

// runPaper drives the live execution path against the paper venue:
// orders are submitted to the broker and fills come back
// asynchronously, exactly as they would from a real venue.
func runPaper(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	alerter := buildAlerter(cfg, logger)

	trades, err := buildJournal(cfg)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = trades.Close() }()

	led := ledger.New(cfg.InitialCapital(), logger)
	coord, err := buildCoordinator(cfg, led, alerter, logger, true)
	if err != nil {
		return err
	}

	venue, err := paper.New(paper.Config{
		MaxOrdersPerSecond: cfg.Broker.MaxOrdersPerSecond,
		Slippage:           cfg.ToSlippageConfig(),
		Commission:         cfg.ToCommissionConfig(),
	}, logger)
	if err != nil {
		return fmt.Errorf("create broker: %w", err)
	}
	if err := venue.Connect(ctx); err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	defer func() { _ = venue.Disconnect() }()

	venue.SetExecutionHandler(func(update broker.ExecutionUpdate) {
		err := coord.OnExecutionUpdate(ctx, engine.ExecutionUpdate{
			OrderID:  update.OrderID,
			Fill:     update.Fill,
			Rejected: update.Rejected,
			Reason:   update.Reason,
		})
		if err != nil {
			logger.Error("execution update failed", "order_id", update.OrderID, "err", err)
		}
	})

	coord.SetFillHandler(func(fill types.Fill) {
		if err := trades.RecordFill(ctx, fill); err != nil {
			logger.Warn("failed to journal fill", "trade_id", fill.TradeID, "err", err)
		}
		if order, ok := coord.Order(fill.OrderID); ok {
			if err := trades.UpdateOrder(ctx, order); err != nil {
				logger.Warn("failed to journal order update", "order_id", fill.OrderID, "err", err)
			}
		}
	})

	srv := startMetrics(cfg, venue, logger)
	if srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	dataFeed := feed.NewCSVFeed(cfg.Data.CSVPath, cfg.Data.Instrument)
	defer func() { _ = dataFeed.Close() }()

	events, err := dataFeed.Subscribe(ctx, cfg.Data.Instrument)
	if err != nil {
		return fmt.Errorf("subscribe to feed: %w", err)
	}

	strat := buildStrategy(cfg)
	recorder := metrics.NewRecorder()

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received")
			return shutdownPaper(trades, led)

		case event, ok := <-events:
			if !ok {
				slog.Info("feed exhausted")
				return shutdownPaper(trades, led)
			}

			// Triggers and EOD first; position fills for this event
			// arrive from the venue below.
			if _, err := coord.OnMarketEvent(ctx, event); err != nil {
				return fmt.Errorf("market event at %s: %w", event.Timestamp, err)
			}

			for _, sig := range strat.OnMarketEvent(ctx, event) {
				outcome, err := coord.ProcessSignal(ctx, sig)
				if err != nil {
					logger.Warn("signal not executed", "signal_id", sig.ID, "err", err)
					continue
				}
				if outcome.Kind != engine.OutcomeCreated {
					continue
				}
				for _, order := range outcome.Orders {
					if err := trades.RecordOrder(ctx, order); err != nil {
						logger.Warn("failed to journal order", "order_id", order.ID, "err", err)
					}
					if err := venue.SubmitOrder(ctx, order); err != nil {
						logger.Error("order submission failed", "order_id", order.ID, "err", err)
					}
				}
			}

			venue.OnMarketEvent(event)
			recorder.RecordHeartbeat()
		}
	}
}

func shutdownPaper(trades journal.Journal, led *ledger.Ledger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := trades.RecordEquity(ctx, journal.SnapshotFrom(led.Snapshot())); err != nil {
		return fmt.Errorf("journal final equity: %w", err)
	}
	return nil
}

func startMetrics(cfg *config.Config, venue *paper.Broker, logger *slog.Logger) *metrics.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}

	serverCfg := metrics.DefaultServerConfig()
	if cfg.Metrics.Port != 0 {
		serverCfg.Port = cfg.Metrics.Port
	}
	if cfg.Metrics.Path != "" {
		serverCfg.MetricsPath = cfg.Metrics.Path
	}

	srv := metrics.NewServer(serverCfg, logger)
	srv.RegisterHealthCheck("broker", func() metrics.Check {
		if !venue.IsConnected() {
			return metrics.Check{Status: "unhealthy", Message: "broker disconnected"}
		}
		return metrics.Check{Status: "healthy"}
	})
	srv.Start()
	return srv
}

func buildCoordinator(cfg *config.Config, led *ledger.Ledger, alerter alerting.Alerter, logger *slog.Logger, liveMode bool) (*engine.Coordinator, error) {
	slippage, err := match.NewSlippageModel(cfg.ToSlippageConfig())
	if err != nil {
		return nil, fmt.Errorf("slippage model: %w", err)
	}
	commission, err := match.NewCommissionModel(cfg.ToCommissionConfig())
	if err != nil {
		return nil, fmt.Errorf("commission model: %w", err)
	}

	return engine.NewCoordinator(
		cfg.ToEngineConfig(liveMode),
		match.NewEngine(slippage, commission),
		monitor.New(cfg.ToMonitorConfig()),
		led,
		risk.NewEngine(cfg.ToRiskConfig(), logger),
		alerter,
		logger,
	), nil
}

func buildStrategy(cfg *config.Config) strategy.Strategy {
	crossCfg := strategy.DefaultCrossoverConfig()
	if cfg.Strategy.FastPeriod > 0 {
		crossCfg.FastPeriod = cfg.Strategy.FastPeriod
	}
	if cfg.Strategy.SlowPeriod > 0 {
		crossCfg.SlowPeriod = cfg.Strategy.SlowPeriod
	}
	if cfg.Strategy.Quantity > 0 {
		crossCfg.Quantity = cfg.Strategy.Quantity
	}
	crossCfg.TargetPct = decimal.NewFromFloat(cfg.Strategy.TargetPct)
	crossCfg.StopPct = decimal.NewFromFloat(cfg.Strategy.StopPct)
	return strategy.NewCrossover(crossCfg)
}

func buildAlerter(cfg *config.Config, logger *slog.Logger) alerting.Alerter {
	if !cfg.Alerting.Enabled {
		return nil
	}

	var alerters []alerting.Alerter
	for _, channel := range cfg.Alerting.Channels {
		switch channel.Type {
		case "webhook":
			alerters = append(alerters, alerting.NewWebhookAlerter(alerting.WebhookConfig{
				URL: channel.WebhookURL,
			}))
		default:
			alerters = append(alerters, alerting.NewConsoleAlerter(logger))
		}
	}
	if len(alerters) == 0 {
		alerters = append(alerters, alerting.NewConsoleAlerter(logger))
	}
	if len(alerters) == 1 {
		return alerters[0]
	}
	return alerting.NewMultiAlerter(logger, alerters...)
}

func buildJournal(cfg *config.Config) (journal.Journal, error) {
	if !cfg.Journal.Enabled {
		return journal.Nop{}, nil
	}
	return journal.NewSQLite(cfg.Journal.Path)
}

func newLogger(format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
