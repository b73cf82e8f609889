// Package agg builds completed OHLCV bars aligned to timeframe boundaries.
//
// Two sources are supported. In tick mode the aggregator folds raw ticker
// updates into an in-progress bar and closes it when the wall clock crosses
// the next boundary. In exchange mode the exchange pushes pre-aggregated
// candle updates and the aggregator only validates alignment and passes the
// confirmed ones through. Either way the output stream carries completed
// bars in strictly increasing openTime order; anything at or behind the
// last emitted openTime is dropped as a duplicate.
//
// The aggregator also keeps the bounded history of recent tick prices,
// regardless of bar source, for consumers that need raw price.
package agg

import (
	"context"
	"log"
	"sync"
	"time"

	"okxsignal/internal/model"
	"okxsignal/internal/series"
)

// Source selects where bars come from.
type Source int

const (
	// SourceExchange passes through confirmed exchange candle pushes.
	SourceExchange Source = iota
	// SourceTicks folds raw ticks into bars locally.
	SourceTicks
)

// Aggregator owns the single in-progress bar. It runs in one goroutine;
// nothing else mutates the bar state.
type Aggregator struct {
	tf     time.Duration
	source Source

	cur     model.Bar
	open    bool
	lastVol float64 // previous vol24h reading, for volume deltas
	haveVol bool

	lastEmitted time.Time
	haveEmitted bool

	// prices is read from other goroutines via LastPrice/RecentPrices.
	priceMu sync.Mutex
	prices  *series.Series[float64]

	// now is the clock used for boundary decisions, swappable in tests.
	now func() time.Time

	// Metrics hooks (optional, set externally)
	OnDuplicate  func()
	OnMisaligned func()
}

// New creates an aggregator for the given timeframe and bar source.
// priceHistoryCap bounds the retained tick-price history.
func New(tf time.Duration, source Source, priceHistoryCap int) *Aggregator {
	return &Aggregator{
		tf:     tf,
		source: source,
		prices: series.New[float64](priceHistoryCap),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run consumes ticks and raw exchange candles and sends completed bars to
// out. Sends block: completed bars are never dropped. Blocks until ctx is
// cancelled or both inputs are closed.
func (a *Aggregator) Run(ctx context.Context, tickCh <-chan model.Tick, rawBarCh <-chan model.Bar, out chan<- model.Bar) {
	for tickCh != nil || rawBarCh != nil {
		select {
		case <-ctx.Done():
			return

		case tick, ok := <-tickCh:
			if !ok {
				tickCh = nil
				continue
			}
			a.recordPrice(tick.Price)
			if a.source != SourceTicks {
				continue
			}
			if bar, closed := a.ProcessTick(tick); closed {
				if !a.emit(ctx, bar, out) {
					return
				}
			}

		case raw, ok := <-rawBarCh:
			if !ok {
				rawBarCh = nil
				continue
			}
			if a.source != SourceExchange {
				continue
			}
			bar, pass := a.ProcessExchangeBar(raw)
			if pass {
				if !a.emit(ctx, bar, out) {
					return
				}
			}
		}
	}
}

// ProcessTick folds one tick into the in-progress bar. It returns the
// completed bar and true when the tick crossed a timeframe boundary.
func (a *Aggregator) ProcessTick(tick model.Tick) (model.Bar, bool) {
	now := a.now()

	weight := a.volumeWeight(tick.Volume)

	if !a.open {
		// First tick after startup: seed from the wall clock floored to the
		// timeframe, not the tick's own timestamp, so alignment holds even
		// when exchange and local clocks disagree.
		a.seed(now.Truncate(a.tf), tick.Price, weight)
		return model.Bar{}, false
	}

	if !now.Before(a.cur.OpenTime.Add(a.tf)) {
		closed := a.cur
		closed.Complete = true

		nextOpen := closed.OpenTime.Add(a.tf)
		if !now.Before(nextOpen.Add(a.tf)) {
			// More than one boundary crossed since the last tick: exactly
			// one stale bar is closed and the next opens at the current
			// aligned boundary. Skipped intervals are not synthesized.
			nextOpen = now.Truncate(a.tf)
		}
		a.seed(nextOpen, tick.Price, weight)
		return closed, true
	}

	c := &a.cur
	if tick.Price > c.High {
		c.High = tick.Price
	}
	if tick.Price < c.Low {
		c.Low = tick.Price
	}
	c.Close = tick.Price
	c.Volume += weight
	return model.Bar{}, false
}

// ProcessExchangeBar validates one exchange candle push. Only confirmed,
// boundary-aligned candles pass; partial updates are ignored.
func (a *Aggregator) ProcessExchangeBar(bar model.Bar) (model.Bar, bool) {
	if !bar.Complete {
		return model.Bar{}, false
	}
	if !bar.OpenTime.Truncate(a.tf).Equal(bar.OpenTime) {
		log.Printf("[agg] misaligned candle openTime=%s tf=%s, dropping",
			bar.OpenTime.Format(time.RFC3339), a.tf)
		if a.OnMisaligned != nil {
			a.OnMisaligned()
		}
		return model.Bar{}, false
	}
	if bar.CloseTime.IsZero() {
		bar.CloseTime = bar.OpenTime.Add(a.tf)
	}
	return bar, true
}

// emit sends one completed bar downstream, enforcing the strictly
// increasing openTime invariant. Returns false when ctx was cancelled.
func (a *Aggregator) emit(ctx context.Context, bar model.Bar, out chan<- model.Bar) bool {
	if a.haveEmitted && !bar.OpenTime.After(a.lastEmitted) {
		if a.OnDuplicate != nil {
			a.OnDuplicate()
		}
		return true
	}
	select {
	case out <- bar:
		a.lastEmitted = bar.OpenTime
		a.haveEmitted = true
		return true
	case <-ctx.Done():
		return false
	}
}

func (a *Aggregator) seed(openTime time.Time, price, volume float64) {
	a.cur = model.Bar{
		OpenTime:  openTime,
		CloseTime: openTime.Add(a.tf),
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    volume,
	}
	a.open = true
}

// recordPrice appends one tick price to the bounded history.
func (a *Aggregator) recordPrice(p float64) {
	a.priceMu.Lock()
	a.prices.Push(p)
	a.priceMu.Unlock()
}

// LastPrice returns the most recent tick price. ok is false before the
// first tick arrives.
func (a *Aggregator) LastPrice() (float64, bool) {
	a.priceMu.Lock()
	defer a.priceMu.Unlock()
	return a.prices.Last()
}

// RecentPrices returns a copy of the retained tick prices, oldest first.
func (a *Aggregator) RecentPrices() []float64 {
	a.priceMu.Lock()
	defer a.priceMu.Unlock()
	return a.prices.Values()
}

// volumeWeight turns the exchange's rolling 24h volume readings into a
// per-tick increment. The first reading and the daily reset (reading goes
// backwards) both contribute zero.
func (a *Aggregator) volumeWeight(vol24h float64) float64 {
	if !a.haveVol {
		a.lastVol = vol24h
		a.haveVol = true
		return 0
	}
	delta := vol24h - a.lastVol
	a.lastVol = vol24h
	if delta < 0 {
		return 0
	}
	return delta
}
