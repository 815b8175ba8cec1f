package main

import (
	"context"
	"flag"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/edgebot/config"
	"github.com/alejandrodnm/edgebot/internal/adapters/clob"
	"github.com/alejandrodnm/edgebot/internal/adapters/gamma"
	"github.com/alejandrodnm/edgebot/internal/adapters/notify"
	"github.com/alejandrodnm/edgebot/internal/adapters/storage"
	"github.com/alejandrodnm/edgebot/internal/application/engine"
	"github.com/alejandrodnm/edgebot/internal/application/execution"
	"github.com/alejandrodnm/edgebot/internal/application/portfolio"
	"github.com/alejandrodnm/edgebot/internal/application/reactor"
	"github.com/alejandrodnm/edgebot/internal/application/risk"
	"github.com/alejandrodnm/edgebot/internal/application/strategy"
	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
)

const portfolioPrintInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one scan cycle without executing and exit")
	paper := flag.Bool("paper", false, "force paper mode regardless of config")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	if *paper {
		cfg.Trading.Mode = string(domain.ModePaper)
	}
	mode := resolveMode(cfg)

	slog.Info("edgebot starting",
		"config", *configPath,
		"mode", mode,
		"interval", cfg.ScanInterval(),
		"once", *once,
	)

	ledger, err := storage.NewSQLiteLedger(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer ledger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := seedLedger(ctx, ledger, cfg); err != nil {
		slog.Error("failed to seed ledger", "err", err)
		os.Exit(1)
	}

	client := gamma.NewClient(cfg.API.GammaBase, cfg.Trading.MarketLimit)
	notifier := notify.NewConsole()
	pf := portfolio.New(ledger, client, cfg.Trading.InitialCapital)
	sizer := risk.New(riskConfig(cfg), mode)
	coord := execution.NewCoordinator(execution.DefaultBuyCooldown)

	gw, err := buildGateway(cfg, mode, ledger, sizer, pf, coord, notifier)
	if err != nil {
		slog.Error("failed to build execution gateway", "err", err)
		os.Exit(1)
	}

	// The whale tracker always exists so its aggregation window stays warm;
	// whether it emits scan opportunities is a separate switch.
	whale := strategy.NewWhale(strategy.WhaleConfig{
		MinNotional:  cfg.Strategies.Whale.MinNotional,
		Lookback:     cfg.WhaleLookback(),
		MinNetVolume: cfg.Strategies.Whale.MinNetVolume,
		MinTrades:    cfg.Strategies.Whale.MinTrades,
	})

	var strategies []strategy.Strategy
	if cfg.Strategies.Arbitrage.Enabled {
		strategies = append(strategies, strategy.NewArbitrage(strategy.ArbitrageConfig{
			MinProfitPct: cfg.Strategies.Arbitrage.MinProfitPct,
			MaxProfitPct: cfg.Strategies.Arbitrage.MaxProfitPct,
			MinLiquidity: cfg.Strategies.Arbitrage.MinLiquidity,
		}))
	}
	if cfg.Strategies.Value.Enabled {
		strategies = append(strategies, strategy.NewValue(strategy.ValueConfig{
			MinEdge:              cfg.Strategies.Value.MinEdge,
			MinLiquidity:         cfg.Strategies.Value.MinLiquidity,
			MinHoursToResolution: cfg.Strategies.Value.MinHoursToResolution,
			CategoryBias:         cfg.Strategies.Value.CategoryBias,
		}))
	}
	if cfg.Strategies.Whale.Enabled {
		strategies = append(strategies, whale)
	}
	if len(strategies) == 0 {
		slog.Warn("no strategies enabled: scan cycles will only run the exit pass")
	}

	var sink engine.MarketSink
	if cfg.Reactor.Enabled {
		r := reactor.New(reactor.Config{
			QueueSize:             cfg.Reactor.QueueSize,
			DropTriggerPct:        cfg.Reactor.DropTriggerPct,
			InstantFollowNotional: cfg.Reactor.InstantFollowNotional,
			WhaleMinNotional:      cfg.Strategies.Whale.MinNotional,
			ArbCheckInterval:      cfg.ArbCheckInterval(),
		}, gw, whale, ledger)
		sink = r
		go func() {
			if err := r.Run(ctx); err != nil {
				slog.Error("reactor exited", "err", err)
			}
		}()
	}

	eng := engine.New(engine.Config{
		ScanInterval:    cfg.ScanInterval(),
		MaxBuysPerCycle: cfg.Trading.MaxBuysPerCycle,
		DryRun:          *once,
	}, client, client, ledger, gw, strategies, sink)

	if !*once {
		go printLoop(ctx, pf, ledger, notifier)
	}

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("edgebot stopped cleanly")
}

// resolveMode decides paper vs real once, at startup. Real mode without
// credentials degrades to paper with a warning; it never prompts and never
// aborts.
func resolveMode(cfg *config.Config) domain.TradingMode {
	if cfg.Trading.Mode != string(domain.ModeReal) {
		return domain.ModePaper
	}
	if !config.RealCredentialsPresent() {
		slog.Warn("real mode requested but BROKER_API_KEY/BROKER_API_SECRET are missing, falling back to paper")
		return domain.ModePaper
	}
	return domain.ModeReal
}

func buildGateway(
	cfg *config.Config,
	mode domain.TradingMode,
	ledger ports.Ledger,
	sizer *risk.Sizer,
	pf *portfolio.Service,
	coord *execution.Coordinator,
	notifier ports.Notifier,
) (*execution.Gateway, error) {
	if mode == domain.ModeReal {
		broker, err := clob.NewBroker("", clob.Credentials{
			APIKey:     os.Getenv("BROKER_API_KEY"),
			Secret:     os.Getenv("BROKER_API_SECRET"),
			Passphrase: os.Getenv("BROKER_API_PASSPHRASE"),
			Address:    os.Getenv("BROKER_ADDRESS"),
		})
		if err != nil {
			return nil, err
		}
		return execution.NewRealGateway(
			execution.NewBrokerVenue(broker, ledger), sizer, pf, coord, notifier), nil
	}

	paper := execution.NewPaper(execution.PaperConfig{
		FeeRate:  cfg.Trading.FeeRate,
		Spread:   cfg.Trading.Spread,
		Slippage: cfg.Trading.Slippage,
	}, ledger)
	return execution.NewPaperGateway(paper, sizer, pf, coord, notifier), nil
}

// seedLedger writes the initial balance snapshot on first run and keeps
// the strategy allocations in sync with the configured weights.
func seedLedger(ctx context.Context, ledger ports.Ledger, cfg *config.Config) error {
	if _, _, ok, err := ledger.LoadSnapshot(ctx); err != nil {
		return err
	} else if !ok {
		capital := cfg.Trading.InitialCapital
		if err := ledger.SaveSnapshot(ctx, capital, capital); err != nil {
			return err
		}
		slog.Info("seeded initial balance", "capital", capital)
	}

	weights := map[domain.StrategyTag]float64{
		domain.StrategyArbitrage: cfg.Strategies.Arbitrage.Weight,
		domain.StrategyValue:     cfg.Strategies.Value.Weight,
		domain.StrategyWhale:     cfg.Strategies.Whale.Weight,
	}
	for tag, weight := range weights {
		alloc := domain.StrategyAllocation{
			Strategy:  tag,
			Weight:    weight,
			MinWeight: weight / 2,
			MaxWeight: math.Min(1, weight*2),
		}
		if err := ledger.UpdateAllocation(ctx, alloc); err != nil {
			return err
		}
	}
	return nil
}

func riskConfig(cfg *config.Config) risk.Config {
	return risk.Config{
		MaxPositionPct:  cfg.Risk.MaxPositionPct,
		MinSizeUSD:      cfg.Risk.MinSizeUSD,
		MaxSizeUSD:      cfg.Risk.MaxSizeUSD,
		CashReservePct:  cfg.Risk.CashReservePct,
		CategoryCapPct:  cfg.Risk.CategoryCapPct,
		DrawdownWarnPct: cfg.Risk.DrawdownWarnPct,
		DrawdownHaltPct: cfg.Risk.DrawdownHaltPct,
		MinBufferPct:    cfg.Risk.MinBufferPct,
		MinBalanceUSD:   cfg.Risk.MinBalanceUSD,
	}
}

// printLoop renders the portfolio table and ledger stats periodically.
func printLoop(ctx context.Context, pf *portfolio.Service, ledger ports.Ledger, console *notify.Console) {
	ticker := time.NewTicker(portfolioPrintInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := pf.Snapshot(ctx)
			if err != nil {
				slog.Warn("portfolio snapshot failed", "err", err)
				continue
			}
			console.PrintPortfolio(snap)
			if stats, err := ledger.Stats(ctx); err == nil {
				console.PrintStats(stats)
			}
		}
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
