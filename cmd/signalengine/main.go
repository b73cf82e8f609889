package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"okxsignal/config"
	"okxsignal/internal/agg"
	"okxsignal/internal/bus"
	"okxsignal/internal/execution"
	"okxsignal/internal/feed"
	"okxsignal/internal/logger"
	"okxsignal/internal/metrics"
	"okxsignal/internal/model"
	redisstore "okxsignal/internal/store/redis"
	sqlitestore "okxsignal/internal/store/sqlite"
	"okxsignal/internal/strategy"
)

// Exit codes per the process contract.
const (
	exitOK       = 0
	exitFeedDead = 1
	exitConfig   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	slogger := logger.Init("signalengine", slog.LevelInfo)
	slogger.Info("starting")

	// ---- Load and validate config (fatal before any connection) ----
	cfg, err := config.Load()
	if err != nil {
		log.Printf("[signalengine] configuration invalid:\n%v", err)
		return exitConfig
	}
	log.Printf("[signalengine] symbol=%s tf=%s strategy=%s source=%s",
		cfg.Symbol, cfg.Timeframe, cfg.Strategy, cfg.BarSource)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetStrategy(cfg.Strategy)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Signal journal (off hot path) ----
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Printf("[signalengine] cannot create sqlite data dir: %v", err)
		return exitConfig
	}
	journal, err := sqlitestore.New(sqlitestore.JournalConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Printf("[signalengine] sqlite init failed: %v", err)
		return exitConfig
	}
	defer journal.Close()
	journal.OnCommit = func(d time.Duration) { prom.SQLiteCommitDur.Observe(d.Seconds()) }
	health.SetSQLiteOK(true)

	// ---- Redis publisher (optional: engine runs without it) ----
	var publisher *redisstore.Publisher
	if cfg.RedisAddr != "" {
		publisher, err = redisstore.New(redisstore.PublisherConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Symbol:    cfg.Symbol,
			Timeframe: cfg.TimeframeToken(),
		})
		if err != nil {
			log.Printf("[signalengine] WARNING: redis init failed: %v (continuing without redis)", err)
			publisher = nil
		} else {
			publisher.OnPublish = func(d time.Duration) { prom.RedisPublishDur.Observe(d.Seconds()) }
			health.SetRedisConnected(true)
		}
	}

	if publisher != nil {
		health.StartLivenessChecker(ctx, publisher.Client(), journal.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, journal.DB(), 10*time.Second)
	}

	// ---- Pipeline channels ----
	tickCh := make(chan model.Tick, 10000)
	rawBarCh := make(chan model.Bar, 512)
	barCh := make(chan model.Bar, 256)
	signalCh := make(chan model.Signal, 64)

	// ---- Event distribution ----
	// Ticks are lossy (a slow observer drops ticks); completed bars and
	// signals are reliable and delivered in receipt order.
	tickFan := bus.NewLossy[model.Tick]("ticks", 4096)
	tickFan.OnDrop = func(i int) {
		prom.FanoutDropsTotal.WithLabelValues("ticks", strconv.Itoa(i)).Inc()
		prom.DroppedTicks.Inc()
	}
	barFan := bus.NewReliable[model.Bar]("bars", 256)
	signalFan := bus.NewReliable[model.Signal]("signals", 64)

	aggTickCh := tickFan.Subscribe()
	observeTickCh := tickFan.Subscribe()

	strategyBarCh := barFan.Subscribe()
	var redisBarCh <-chan model.Bar
	if publisher != nil {
		redisBarCh = barFan.Subscribe()
	}

	executorSigCh := signalFan.Subscribe()
	journalSigCh := signalFan.Subscribe()
	var redisSigCh <-chan model.Signal
	if publisher != nil {
		redisSigCh = signalFan.Subscribe()
	}

	go tickFan.Run(ctx, tickCh)
	go barFan.Run(ctx, barCh)
	go signalFan.Run(ctx, signalCh)

	// Channel saturation reporter.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func(name string, stats []bus.ChannelStat) {
			for i, s := range stats {
				if s.Cap > 0 {
					pct := float64(s.Len) / float64(s.Cap) * 100
					prom.ChannelSaturationPct.WithLabelValues(name + "_" + strconv.Itoa(i)).Set(pct)
				}
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report("ticks", tickFan.ChannelStats())
				report("bars", barFan.ChannelStats())
				report("signals", signalFan.ChannelStats())
			}
		}
	}()

	// Tick observer: health freshness and the tick counter.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tick, ok := <-observeTickCh:
				if !ok {
					return
				}
				prom.TicksTotal.Inc()
				health.SetLastTickTime(tick.LocalTS)
			}
		}
	}()

	// ---- Aggregator ----
	source := agg.SourceExchange
	if cfg.BarSource == config.BarSourceTicks {
		source = agg.SourceTicks
	}
	aggregator := agg.New(cfg.Timeframe, source, cfg.TickHistoryCap)
	aggregator.OnDuplicate = func() { prom.DuplicateBars.Inc() }
	go aggregator.Run(ctx, aggTickCh, rawBarCh, barCh)

	// ---- Strategy engine (runs synchronously per completed bar) ----
	strat, err := buildStrategy(cfg)
	if err != nil {
		log.Printf("[signalengine] %v", err)
		return exitConfig
	}
	engine := strategy.NewEngine(strat, cfg.BarHistoryCap)
	engine.OnFault = func(any) { prom.StrategyFaults.Inc() }

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case bar, ok := <-strategyBarCh:
				if !ok {
					return
				}
				prom.BarsTotal.Inc()
				start := time.Now()
				sig := engine.OnBar(bar)
				prom.StrategyDur.Observe(time.Since(start).Seconds())
				health.SetBias(engine.Bias().String())
				if sig == nil {
					continue
				}
				prom.SignalsTotal.WithLabelValues(string(sig.Action)).Inc()
				log.Printf("[signalengine] signal %s price=%v strategy=%s bias=%s",
					sig.Action, sig.Price, sig.StrategyTag, engine.Bias())
				select {
				case signalCh <- *sig:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	// ---- Executor ----
	// The exchange REST client is an external collaborator; the dry-run
	// client stands in for it until one is injected.
	executor := execution.New(execution.Config{
		Symbol:     cfg.Symbol,
		OrderSize:  cfg.OrderSize,
		Cooldown:   cfg.TradeCooldown,
		Leverage:   cfg.Leverage,
		MarginMode: cfg.MarginMode,
	}, &dryRunClient{}, 64)
	executor.OnOrder = func(status string) { prom.OrdersTotal.WithLabelValues(status).Inc() }
	if err := executor.Setup(ctx); err != nil {
		log.Printf("[signalengine] executor setup failed: %v", err)
		return exitConfig
	}
	go executor.Run(ctx, executorSigCh)
	go journal.RunOrderResults(ctx, executor.Results())

	// ---- Stores ----
	go journal.RunSignals(ctx, journalSigCh)
	if publisher != nil {
		go publisher.RunBars(ctx, redisBarCh)
		go publisher.RunSignals(ctx, redisSigCh)
		defer publisher.Close()
	}

	// ---- Feed (the one task driving everything) ----
	f := feed.New(feed.Config{
		URL:           cfg.WSURL,
		Symbol:        cfg.Symbol,
		BarChannel:    cfg.BarChannel(),
		Timeframe:     cfg.Timeframe,
		PingInterval:  cfg.PingInterval,
		PongTimeout:   cfg.PongTimeout,
		InitialDelay:  cfg.ReconnectInitialDelay,
		Multiplier:    cfg.ReconnectMultiplier,
		MaxAttempts:   cfg.ReconnectMaxAttempts,
		SkewThreshold: cfg.SkewThreshold,
	})
	f.OnReconnect = func(int) { prom.WSReconnects.Inc() }
	f.OnMalformed = func() { prom.MalformedFrames.Inc() }
	f.OnSkew = func(time.Duration) { prom.SkewWarnings.Inc() }
	f.OnDrop = func() { prom.DroppedTicks.Inc() }

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				health.SetWSConnected(f.State() == feed.StateConnected)
				if price, ok := aggregator.LastPrice(); ok {
					health.SetLastPrice(price)
				}
			}
		}
	}()

	feedErr := make(chan error, 1)
	go func() {
		feedErr <- f.Start(ctx, tickCh, rawBarCh)
	}()

	log.Println("[signalengine] pipeline ready")

	// ---- Wait for shutdown or fatal feed failure ----
	code := exitOK
	select {
	case <-sigCh:
		log.Println("[signalengine] shutdown signal received, cleaning up...")
	case err := <-feedErr:
		if errors.Is(err, feed.ErrReconnectExhausted) {
			log.Printf("[signalengine] FATAL: %v", err)
			code = exitFeedDead
		} else if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[signalengine] feed stopped: %v", err)
			code = exitFeedDead
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[signalengine] shutdown complete.")
	return code
}

// buildStrategy constructs the configured strategy. Exactly one is active
// per process.
func buildStrategy(cfg *config.Config) (strategy.Strategy, error) {
	switch cfg.Strategy {
	case config.StrategyEMA:
		return strategy.NewEMACross(cfg.EMAShort, cfg.EMALong), nil
	case config.StrategyCombined:
		return strategy.NewCombined(strategy.CombinedConfig{
			SupertrendPeriod:     cfg.SupertrendPeriod,
			SupertrendMultiplier: cfg.SupertrendMultiplier,
			FractalPeriod:        cfg.FractalPeriod,
			BollingerLength:      cfg.BollingerLength,
			BollingerDeviation:   cfg.BollingerDeviation,
		}), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy)
	}
}

// dryRunClient satisfies the ExchangeClient collaborator contract without
// touching the exchange: orders are logged and acknowledged locally.
type dryRunClient struct {
	seq atomic.Int64
}

func (c *dryRunClient) PlaceOrder(_ context.Context, symbol, side string, size float64) (execution.OrderResult, error) {
	id := c.seq.Add(1)
	log.Printf("[dryrun] %s %s size=%v", side, symbol, size)
	return execution.OrderResult{
		OrderID: fmt.Sprintf("DRY-%d", id),
		Message: "dry run",
	}, nil
}

func (c *dryRunClient) SetLeverage(_ context.Context, symbol string, leverage int, mode string) error {
	log.Printf("[dryrun] set leverage symbol=%s lev=%d mode=%s", symbol, leverage, mode)
	return nil
}
