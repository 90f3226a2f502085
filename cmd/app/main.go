package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"backtest_go/internal/engine"
	"backtest_go/internal/infra"
	"backtest_go/internal/loader"
	"backtest_go/internal/strategy"
)

func main() {
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		slog.Error("❌ Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	slog.Info("🚀 Starting backtest", slog.String("config", configPath))

	// 3. Load Data (fail fast: no run starts on a partial load)
	data := make(map[string]engine.ProductData, len(cfg.Products))
	for _, p := range cfg.Products {
		prices, err := loader.LoadPrices(p.PriceCSV)
		if err != nil {
			slog.Error("❌ Failed to load prices", slog.String("product", p.Name), slog.Any("error", err))
			os.Exit(1)
		}
		trades, err := loader.LoadTrades(p.TradesCSV)
		if err != nil {
			slog.Error("❌ Failed to load trades", slog.String("product", p.Name), slog.Any("error", err))
			os.Exit(1)
		}
		data[p.Name] = engine.ProductData{Prices: prices, Trades: trades}
		slog.Info("✅ Product loaded",
			slog.String("product", p.Name),
			slog.Int("price_rows", len(prices)),
			slog.Int("trade_ticks", len(trades)))
	}

	// 4. Build the run
	engineCfg := engine.Config{
		PositionLimits: cfg.PositionLimits(),
		DefaultLimit:   cfg.Run.DefaultPositionLimit,
	}
	if cfg.Run.FallbackMidPrice > 0 {
		engineCfg.FallbackMid = decimal.NewFromInt(cfg.Run.FallbackMidPrice)
	}

	// Example strategy: z-score mean reversion on the first configured product.
	strat := strategy.NewMeanReversionStrategy(cfg.Products[0].Name, 20, 10)

	bt, err := engine.New(data, strat, engineCfg)
	if err != nil {
		slog.Error("❌ Failed to build backtester", slog.Any("error", err))
		os.Exit(1)
	}

	// 5. Replay with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bt.Run(ctx); err != nil {
		slog.Error("❌ Run aborted", slog.Any("error", err))
		os.Exit(1)
	}

	// 6. Results
	bt.LogSummary()
	slog.Info("✨ Backtest complete")
}
