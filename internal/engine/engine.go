// Package engine wires the surveillance pipeline together: stream
// ingestion, USD normalisation, sliding-window aggregation, threshold
// detection, cooldown suppression and rate-limited dispatch.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"whale_watcher/internal/aggregate"
	"whale_watcher/internal/archive"
	"whale_watcher/internal/config"
	"whale_watcher/internal/core"
	"whale_watcher/internal/detect"
	"whale_watcher/internal/dispatch"
	"whale_watcher/internal/infrastructure/health"
	"whale_watcher/internal/ingest"
	"whale_watcher/internal/pricing"
	"whale_watcher/internal/recovery"
	"whale_watcher/internal/suppress"
	apperrors "whale_watcher/pkg/errors"
	"whale_watcher/pkg/telemetry"
)

// Engine owns every pipeline component and runs them under one
// lifecycle. It implements bootstrap.Runner.
type Engine struct {
	cfg    *config.Config
	logger core.ILogger

	ingestor  *ingest.Ingestor
	converter *pricing.Converter
	cache     *pricing.RateCache
	recovery  *recovery.Manager
	health    *health.Manager
	windowMgr *aggregate.Manager

	takerWindow *aggregate.SideWindow
	largeWindow *aggregate.Window

	singleDet *detect.SingleDetector
	takerDet  *detect.CumulativeDetector
	largeDet  *detect.CumulativeDetector

	takerRegistry *suppress.Registry
	largeRegistry *suppress.Registry
	takerSuppress *suppress.Suppressor
	largeSuppress *suppress.Suppressor

	dispatcher *dispatch.Dispatcher
	archiver   *archive.Writer

	runCtx context.Context

	startedAt     time.Time
	tradesSeen    atomic.Uint64
	convertMisses atomic.Uint64
	lastAlertUnix atomic.Int64
}

// largeView projects per-side sums out of the combined large-order
// window so the cumulative detector can read it side by side.
type largeView struct {
	w *aggregate.Window
}

func (v largeView) Summary(symbol string, side core.Side) core.WindowSummary {
	sum := v.w.Summary(symbol)
	out := core.WindowSummary{OldestTs: sum.OldestTs, NewestTs: sum.NewestTs}
	if side == core.SideBuy {
		out.Count = sum.BuyCount
		out.BuyCount = sum.BuyCount
		out.TotalUsd = sum.BuyUsd
		out.BuyUsd = sum.BuyUsd
		out.SellUsd = decimal.Zero
	} else {
		out.Count = sum.SellCount
		out.SellCount = sum.SellCount
		out.TotalUsd = sum.SellUsd
		out.SellUsd = sum.SellUsd
		out.BuyUsd = decimal.Zero
	}
	return out
}

func (v largeView) Duration() time.Duration {
	return v.w.Duration()
}

// New builds the full pipeline from config. deliverer is the outbound
// side, typically the telegram notifier.
func New(cfg *config.Config, deliverer core.IAlertDeliverer, logger core.ILogger) (*Engine, error) {
	e := &Engine{
		cfg:    cfg,
		logger: logger.WithField("component", "engine"),
	}

	e.recovery = recovery.NewManager(recovery.Config{
		MaxAttempts:       cfg.Recovery.MaxReconnectAttempts,
		BaseBackoff:       cfg.Recovery.BaseBackoff(),
		MaxBackoff:        cfg.Recovery.MaxBackoff(),
		CriticalThreshold: cfg.Recovery.CriticalThreshold,
	}, logger)

	e.cache = pricing.NewRateCache(cfg.PriceCache.TTL())
	fetcher := pricing.NewBinanceFetcher(cfg.Exchange.RestURL, logger)
	e.converter = pricing.NewConverter(e.cache, fetcher, e.recovery, logger)

	takerWindow, err := aggregate.NewSideWindow(cfg.Taker.Cumulative.Window())
	if err != nil {
		return nil, err
	}
	e.takerWindow = takerWindow

	largeWindow, err := aggregate.NewWindow(cfg.LargeOrder.Window())
	if err != nil {
		return nil, err
	}
	e.largeWindow = largeWindow

	e.windowMgr, err = aggregate.NewManager(cfg.LargeOrder.WindowMinutes, logger)
	if err != nil {
		return nil, err
	}
	e.windowMgr.Attach(largeWindow)
	e.windowMgr.OnChange(func(d time.Duration) {
		e.logger.Info("Large-order window resized", "window", d.String())
	})

	e.singleDet = detect.NewSingleDetector(cfg.Taker.SingleThresholds, logger)
	e.takerDet = detect.NewCumulativeDetector(
		"taker", takerWindow, cfg.Taker.Cumulative.ThresholdUsd, cfg.Taker.Cumulative.MinOrders, logger)
	// A lone trade can carry the whole notional, so the large-order
	// flavour runs with no minimum count.
	e.largeDet = detect.NewCumulativeDetector(
		"large_order", largeView{largeWindow}, cfg.LargeOrder.ThresholdUsd, 1, logger)

	renderer := dispatch.NewRenderer(cfg.Exchange.Name)
	e.dispatcher = dispatch.NewDispatcher(dispatch.Config{
		RateLimitPerMinute: cfg.Dispatcher.RateLimitPerMinute,
		QueueCapacity:      cfg.Dispatcher.QueueCapacity,
		RetryDelay:         cfg.Dispatcher.RetryDelay(),
		DrainTimeout:       cfg.Dispatcher.DrainTimeout(),
		DrainPending:       cfg.Dispatcher.DrainPending,
	}, renderer, deliverer, logger)

	// Each detector family owns its registry, so taker and large-order
	// cooldowns never shadow each other.
	e.takerRegistry = suppress.NewRegistry()
	e.takerSuppress = suppress.NewSuppressor(e.takerRegistry, map[core.EventKind]time.Duration{
		core.KindSingle:     cfg.Taker.Cooldown.Single(),
		core.KindCumulative: cfg.Taker.Cooldown.Cumulative(),
	}, func(ev core.ThresholdEvent) {
		e.dispatcher.Enqueue(ev, nil)
	}, logger)

	var largeResetter core.IWindowResetter
	if cfg.LargeOrder.ResetOnDispatch {
		largeResetter = largeWindow
	}
	e.largeRegistry = suppress.NewRegistry()
	e.largeSuppress = suppress.NewSuppressor(e.largeRegistry, map[core.EventKind]time.Duration{
		core.KindCumulative: cfg.LargeOrder.Cooldown(),
	}, func(ev core.ThresholdEvent) {
		e.dispatcher.Enqueue(ev, largeResetter)
	}, logger)

	if cfg.Archive.Enabled {
		e.archiver = archive.NewWriter(archive.Config{
			BaseDir:       cfg.Archive.BaseDir,
			RetentionDays: cfg.Archive.RetentionDays,
		}, logger)
	}

	e.dispatcher.SetOnDelivered(func(a core.Alert) {
		e.lastAlertUnix.Store(time.Now().UnixNano())
		if e.archiver != nil && a.Event.Kind != core.KindAdmin {
			e.archiver.RecordAlert(a)
		}
	})

	e.ingestor = ingest.NewIngestor(cfg.Exchange.Name, cfg.Exchange.WSURL, cfg.Symbols, logger)
	e.ingestor.OnTrade(e.handleTrade)
	e.ingestor.OnError(func(err error, severity core.ErrorSeverity) {
		e.recovery.RecordError("ingest", err.Error(), severity)
	})
	e.ingestor.OnState(func(from, to core.ConnectionState) {
		telemetry.GetGlobalMetrics().SetConnectionState(int64(to))
		e.logger.Info("Connection state changed", "from", from.String(), "to", to.String())
		if to == core.StateReconnecting {
			e.recovery.OnDisconnect(apperrors.ErrTransport)
		}
	})

	e.recovery.SetRestartable(e.ingestor)
	e.recovery.SetStateProbe(e.ingestor.State)
	e.recovery.SetNotifier(e.dispatcher.EnqueueMessage)
	e.recovery.SetOnRecovered(func() {
		e.logger.Info("Stream recovered", "uptime_pct", e.recovery.UptimePercent())
	})

	e.health = health.NewManager(logger)
	e.registerHealthChecks()

	return e, nil
}

// handleTrade is the hot path. It runs on the receive loop, so every
// step below is non-blocking: conversion hits the cache or returns
// zero, enqueue drops oldest instead of waiting, archival rides a
// non-blocking pool.
func (e *Engine) handleTrade(trade core.TradeEvent) {
	e.tradesSeen.Add(1)

	if e.archiver != nil {
		e.archiver.RecordTrade(trade)
	}

	ctx := e.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	usd := e.converter.ToUSD(ctx, trade.Symbol, trade.Price, trade.Quantity)
	if usd.LessThanOrEqual(decimal.Zero) {
		// Unknown rate. The refresh is already underway; this trade
		// stays out of the windows rather than skewing them with a
		// guessed value.
		e.convertMisses.Add(1)
		return
	}

	if ev, ok := e.singleDet.Check(trade, usd); ok {
		e.takerSuppress.Process(ev)
	}

	entry := core.WindowEntry{TradeTime: trade.TradeTime, UsdValue: usd, Side: trade.Side}

	if trade.IsTaker {
		e.takerWindow.Add(trade.Symbol, entry)
		for _, ev := range e.takerDet.Check(trade.Symbol) {
			e.takerSuppress.Process(ev)
		}
	}

	e.largeWindow.Add(trade.Symbol, entry)
	for _, ev := range e.largeDet.Check(trade.Symbol) {
		e.largeSuppress.Process(ev)
	}
}

// Run starts the pipeline and blocks until ctx is cancelled. Initial
// connect failures are not fatal; the recovery supervisor keeps
// redialling on its backoff schedule.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx
	e.startedAt = time.Now()

	if err := e.dispatcher.Start(ctx); err != nil {
		return err
	}

	e.converter.Warm(ctx, e.cfg.Symbols)

	if err := e.ingestor.Start(ctx); err != nil {
		e.logger.Warn("Initial connect failed, recovery takes over", "error", err)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		e.recovery.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		e.maintenanceLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		e.statusLoop(ctx)
	}()

	e.logger.Info("Engine started",
		"exchange", e.cfg.Exchange.Name,
		"symbols", len(e.cfg.Symbols),
		"large_order_window", e.largeWindow.Duration().String(),
		"taker_window", e.takerWindow.Duration().String())

	<-ctx.Done()

	if err := e.ingestor.Stop(); err != nil {
		e.logger.Warn("Ingestor stop failed", "error", err)
	}
	wg.Wait()
	if err := e.dispatcher.Stop(); err != nil {
		e.logger.Warn("Dispatcher stop failed", "error", err)
	}
	if e.archiver != nil {
		e.archiver.Stop()
	}

	e.logger.Info("Engine stopped",
		"trades_processed", e.tradesSeen.Load(),
		"alerts_dispatched", e.dispatcher.Stats().Dispatched)
	return nil
}

// Subscribe adds symbols to the live stream and pre-warms their quote
// rates so the first trades convert immediately.
func (e *Engine) Subscribe(symbols []string) error {
	if err := e.ingestor.Subscribe(symbols); err != nil {
		return err
	}
	ctx := e.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	e.converter.Warm(ctx, symbols)
	return nil
}

// SetLargeOrderWindow resizes the large-order window to one of the
// preset sizes. Entries are cleared on resize.
func (e *Engine) SetLargeOrderWindow(minutes int) error {
	return e.windowMgr.Set(minutes)
}

// WindowOptions lists the selectable large-order window sizes.
func (e *Engine) WindowOptions() []int {
	return e.windowMgr.Options()
}

// Health exposes the aggregated component checks.
func (e *Engine) Health() core.IHealthMonitor {
	return e.health
}
