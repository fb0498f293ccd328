package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"probable-pancake/internal/backtest"
	"probable-pancake/internal/config"
	"probable-pancake/internal/db"
	"probable-pancake/internal/repository"
	"probable-pancake/internal/service"
	"probable-pancake/pkg/tracing"

	"github.com/joho/godotenv"
)

var (
	loadEnvFunc              = godotenv.Load
	loadConfigFunc           = config.Load
	initPostgresFunc         = db.InitPostgres
	initTracerFunc           = tracing.InitTracer
	newBarRepoFunc           = repository.NewBarRepository
	newBacktestRepoFunc      = repository.NewBacktestRepository
	newMarketDataServiceFunc = service.NewMarketDataService
	newBacktestServiceFunc   = service.NewBacktestService
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("backtest: %v", err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ContinueOnError)
	csvPath := fs.String("csv", "", "path to an OHLCV csv file; when empty, stored bars are replayed")
	profile := fs.String("profile", "", "signal profile override (conservative or aggressive)")
	warmup := fs.Int("warmup", 0, "warmup bar override")
	equity := fs.Float64("equity", 0, "initial equity override")
	start := fs.String("start", "", "skip bars before this time (RFC3339 or YYYY-MM-DD)")
	from := fs.String("from", "", "stored-bar range start (RFC3339 or YYYY-MM-DD)")
	to := fs.String("to", "", "stored-bar range end (RFC3339 or YYYY-MM-DD)")
	parquetDir := fs.String("parquet", "", "directory for parquet trade and equity exports")
	persist := fs.Bool("persist", false, "persist the run to Postgres")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loadEnvFunc()
	cfg, err := loadConfigFunc()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if *profile != "" {
		cfg.Profile = *profile
	}
	if *warmup > 0 {
		cfg.WarmupBars = *warmup
	}
	if *equity > 0 {
		cfg.InitialEquity = *equity
	}

	req := service.BacktestRequest{
		CSVPath:    *csvPath,
		Persist:    *persist,
		ParquetDir: *parquetDir,
	}
	if req.From, err = parseTimeFlag(*from); err != nil {
		return fmt.Errorf("invalid -from: %w", err)
	}
	if req.To, err = parseTimeFlag(*to); err != nil {
		return fmt.Errorf("invalid -to: %w", err)
	}

	btCfg := backtest.FromConfig(cfg)
	if btCfg.StartAt, err = parseTimeFlag(*start); err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stored-bar replays and -persist need Postgres; pure csv runs do not.
	needDB := *csvPath == "" || *persist
	if needDB {
		os.Setenv("DATABASE_URL", cfg.DatabaseURL)
		initPostgresFunc(ctx)
		if db.Pool == nil {
			return fmt.Errorf("DATABASE_URL required for stored-bar or persisted runs")
		}
	}

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	var market *service.MarketDataService
	var repo service.BacktestStore
	if db.Pool != nil {
		market = newMarketDataServiceFunc(tracer, nil, newBarRepoFunc(db.Pool, tracer), cfg.Pair, cfg.Granularity)
		repo = newBacktestRepoFunc(db.Pool, tracer)
	}

	svc := newBacktestServiceFunc(tracer, market, repo, btCfg)
	report, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

func parseTimeFlag(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
}

func printReport(report *service.BacktestReport) {
	run := report.Run
	st := run.Stats
	fmt.Printf("pair:           %s %s (%s)\n", run.Pair, run.Granularity, run.Profile)
	fmt.Printf("bars:           %d (warmup %d)\n", run.BarCount, run.WarmupBars)
	fmt.Printf("trades:         %d (%d won, %d lost)\n", st.TradeCount, st.WinCount, st.LossCount)
	fmt.Printf("win rate:       %.1f%%\n", st.WinRate*100)
	fmt.Printf("profit factor:  %.2f\n", st.ProfitFactor)
	fmt.Printf("total pnl:      %+.2f (%+.2f%%)\n", st.TotalPnL, st.TotalReturn*100)
	fmt.Printf("max drawdown:   %.2f%%\n", st.MaxDrawdown*100)
	fmt.Printf("sharpe:         %.2f\n", st.SharpeRatio)
	fmt.Printf("final equity:   %.2f\n", st.FinalEquity)
	if run.ID != 0 {
		fmt.Printf("persisted run:  %d\n", run.ID)
	}
	if report.TradesParquet != "" {
		fmt.Printf("parquet:        %s, %s\n", report.TradesParquet, report.EquityCurveOut)
	}
	for _, w := range report.Warnings {
		log.Printf("warning: %s", w)
	}
}
