package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"crypto-trading-bot/config"
	"crypto-trading-bot/internal/api"
	"crypto-trading-bot/internal/binance"
	"crypto-trading-bot/internal/bot"
	"crypto-trading-bot/internal/database"
	"crypto-trading-bot/internal/events"
	"crypto-trading-bot/internal/execution"
	"crypto-trading-bot/internal/feed"
	"crypto-trading-bot/internal/logging"
	"crypto-trading-bot/internal/order"
	"crypto-trading-bot/internal/portfolio"
	"crypto-trading-bot/internal/risk"
	"crypto-trading-bot/internal/runner"
	"crypto-trading-bot/internal/sim"
	"crypto-trading-bot/internal/strategy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logging.SetDefault(logger)
	log := logger.WithComponent("main")

	bus := events.NewBus()

	// Optional persistence.
	var repo *database.Repository
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		}, logger)
		if err != nil {
			log.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.RunMigrations(context.Background()); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		repo = database.NewRepository(db)
	}

	// Kline cache: redis when enabled, in-memory otherwise.
	var cache feed.Cache = feed.NewMemoryCache()
	if cfg.RedisConfig.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn("redis unreachable, falling back to in-memory cache", "error", err)
		} else {
			cache = feed.NewRedisCache(rdb, "klines:", cfg.RedisConfig.TTL, logger)
			log.Info("redis kline cache enabled", "addr", cfg.RedisConfig.Addr)
		}
	}

	var client *binance.Client
	if !cfg.BinanceConfig.MockMode {
		client = binance.NewClient(cfg.BinanceConfig.BaseURL, cfg.BinanceConfig.RequestsPerMinute, logger)
	}

	manager := bot.NewManager(10*time.Second, logger)
	factory := makeBotFactory(cfg, client, cache, bus, logger)

	// Persist fills best effort as they happen.
	if repo != nil {
		bus.Subscribe(events.EventOrderFilled, func(ev events.Event) {
			f, ok := ev.Data["fill"].(order.Fill)
			if !ok {
				return
			}
			botID, _ := ev.Data["bot_id"].(string)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := repo.SaveFill(ctx, botID, f); err != nil {
				log.Warn("failed to persist fill", "fill_id", f.ID, "error", err)
			}
		})
	}

	ctx := context.Background()
	loadBots(ctx, cfg, repo, manager, factory, log)

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
		AllowOrigins:   cfg.ServerConfig.AllowOrigins,
	}, manager, factory, repo, logger)

	go func() {
		if err := server.Start(); err != nil {
			log.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()
	log.Info("trading bot started", "port", cfg.ServerConfig.Port, "mock_mode", cfg.BinanceConfig.MockMode)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("shutdown signal received", "signal", sig.String())

	manager.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	log.Info("shutdown complete")
}

// makeBotFactory wires a runner for one bot spec: strategy from the
// registry, dedicated portfolio/risk/sim/engine, and a feed chosen by
// mode. Mock walk, historical replay for bounded ranges, live stream
// otherwise.
func makeBotFactory(cfg *config.Config, client *binance.Client, cache feed.Cache, bus *events.Bus, logger *logging.Logger) api.BotFactory {
	return func(spec api.BotSpec) (*runner.Runner, error) {
		strat, err := strategy.New(spec.Class, spec.Symbol, spec.Interval, strategy.Params(spec.Parameters))
		if err != nil {
			return nil, err
		}

		balance := spec.InitialBalance
		if balance <= 0 {
			balance = cfg.TradingConfig.InitialBalance
		}
		pf := portfolio.New(spec.ID, balance, portfolio.Limits{
			MaxPositionFraction: cfg.TradingConfig.MaxPositionFraction,
			MinOrderSize:        cfg.TradingConfig.MinOrderSize,
			FeeEstimateRate:     cfg.TradingConfig.FeeEstimateRate,
		})

		re := risk.NewEngine(balance, logger)
		if cfg.RiskConfig.MaxPositionFraction > 0 {
			re.AddRule(&risk.MaxPositionNotional{Fraction: cfg.RiskConfig.MaxPositionFraction})
		}
		if cfg.RiskConfig.MaxDrawdownPct > 0 {
			re.AddRule(&risk.MaxDrawdown{ThresholdPct: cfg.RiskConfig.MaxDrawdownPct})
		}
		if cfg.RiskConfig.ConcentrationFraction > 0 {
			re.AddRule(&risk.PositionConcentration{Fraction: cfg.RiskConfig.ConcentrationFraction})
		}
		if cfg.RiskConfig.DailyLossLimit > 0 {
			re.AddRule(&risk.DailyLossLimit{Threshold: cfg.RiskConfig.DailyLossLimit})
		}

		s := sim.New(sim.Config{
			TakerFeeRate:           cfg.SimConfig.TakerFeeRate,
			MakerFeeRate:           cfg.SimConfig.MakerFeeRate,
			MarketSlippageBps:      cfg.SimConfig.MarketSlippageBps,
			PartialFillProbability: cfg.SimConfig.PartialFillProbability,
			ExecutionLatencyMs:     cfg.SimConfig.ExecutionLatencyMs,
			Seed:                   cfg.SimConfig.Seed,
		}, logger)

		engine := execution.New(spec.ID, execution.Config{
			SessionDurationMs: cfg.TradingConfig.SessionDurationMs,
		}, pf, re, s, bus, logger)

		f, mode, start, end, err := pickFeed(cfg, spec, client, cache, logger)
		if err != nil {
			return nil, err
		}

		return runner.New(spec.ID, strat, f, engine, pf, runner.Config{
			Mode:          mode,
			Start:         start,
			End:           end,
			SnapshotEvery: cfg.TradingConfig.SnapshotEvery,
			QueueSize:     cfg.FeedConfig.QueueSize,
		}, bus, logger), nil
	}
}

// pickFeed resolves a bot's feed from its requested mode. An empty
// mode falls back to the process default: mock when the venue client
// is mocked, historical when the bot carries a bounded range, live
// otherwise.
func pickFeed(cfg *config.Config, spec api.BotSpec, client *binance.Client, cache feed.Cache, logger *logging.Logger) (feed.Feed, string, int64, int64, error) {
	var start, end int64
	for _, bc := range cfg.Bots {
		if bc.ID == spec.ID {
			start, end = bc.Start, bc.End
		}
	}

	mode := spec.Mode
	if mode == "" {
		switch {
		case cfg.BinanceConfig.MockMode:
			mode = "mock"
		case start > 0 && end > start:
			mode = "historical"
		default:
			mode = "live"
		}
	}

	switch mode {
	case "mock":
		return feed.NewMockFeed(feed.MockConfig{
			StartPrice: 100,
			Volatility: 0.002,
			Seed:       cfg.SimConfig.Seed,
			TickDelay:  time.Second,
		}, logger), mode, start, end, nil
	case "historical":
		if client == nil {
			return nil, "", 0, 0, fmt.Errorf("no market data client configured")
		}
		if start <= 0 || end <= start {
			return nil, "", 0, 0, fmt.Errorf("historical mode needs a start/end range for bot %s", spec.ID)
		}
		hf := feed.NewHistoricalFeed(&feed.BinanceProvider{Client: client}, cache, cfg.FeedConfig.PageSize, logger)
		return hf, mode, start, end, nil
	case "live":
		if client == nil {
			return nil, "", 0, 0, fmt.Errorf("no market data client configured")
		}
		return feed.NewLiveFeed(feed.LiveConfig{
			WSBaseURL:        cfg.BinanceConfig.WSBaseURL,
			MaxReconnectWait: cfg.FeedConfig.MaxReconnectWait,
			HeartbeatEvery:   cfg.FeedConfig.HeartbeatEvery,
		}, logger), mode, 0, 0, nil
	default:
		return nil, "", 0, 0, fmt.Errorf("unknown feed mode %q for bot %s", spec.Mode, spec.ID)
	}
}

// loadBots registers bots from persisted config records first, then
// any file-configured bots not already present.
func loadBots(ctx context.Context, cfg *config.Config, repo *database.Repository, manager *bot.Manager, factory api.BotFactory, log *logging.Logger) {
	if repo != nil {
		records, err := repo.ListBotConfigs(ctx)
		if err != nil {
			log.Warn("failed to load persisted bot configs", "error", err)
		}
		for _, rec := range records {
			addBot(ctx, manager, factory, api.BotSpec{
				ID:             rec.BotID,
				Name:           rec.Name,
				Class:          rec.Class,
				Description:    rec.Description,
				Symbol:         rec.Symbol,
				Interval:       rec.Interval,
				Mode:           rec.Mode,
				InitialBalance: rec.InitialBalance,
				Parameters:     rec.Parameters,
			}, rec.Status == string(runner.StatusRunning), log)
		}
	}

	for _, bc := range cfg.Bots {
		if _, exists := manager.Get(bc.ID); exists {
			continue
		}
		addBot(ctx, manager, factory, api.BotSpec{
			ID:             bc.ID,
			Name:           bc.Name,
			Class:          bc.Class,
			Symbol:         bc.Symbol,
			Interval:       bc.Interval,
			Mode:           bc.Mode,
			InitialBalance: bc.InitialBalance,
			Parameters:     bc.Parameters,
		}, bc.AutoStart, log)
	}
}

func addBot(ctx context.Context, manager *bot.Manager, factory api.BotFactory, spec api.BotSpec, autoStart bool, log *logging.Logger) {
	r, err := factory(spec)
	if err != nil {
		log.Warn("skipping bot", "bot_id", spec.ID, "error", err)
		return
	}
	if err := manager.Add(r); err != nil {
		log.Warn("skipping bot", "bot_id", spec.ID, "error", err)
		return
	}
	log.Info("bot loaded", "bot_id", spec.ID, "class", spec.Class, "symbol", spec.Symbol)
	if autoStart {
		if err := manager.StartBot(ctx, spec.ID); err != nil {
			log.Warn("auto-start failed", "bot_id", spec.ID, "error", err)
		}
	}
}
