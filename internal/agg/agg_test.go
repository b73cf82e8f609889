package agg

import (
	"context"
	"testing"
	"time"

	"okxsignal/internal/model"
)

func tickAt(price, vol24h float64, ts time.Time) model.Tick {
	return model.Tick{Price: price, Volume: vol24h, ExchTS: ts, LocalTS: ts}
}

func TestProcessTick_FoldsAndRolls(t *testing.T) {
	a := New(time.Minute, SourceTicks, 16)

	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	now := base.Add(5 * time.Second)
	a.now = func() time.Time { return now }

	if _, closed := a.ProcessTick(tickAt(100, 1000, now)); closed {
		t.Fatal("first tick must not close a bar")
	}
	now = base.Add(20 * time.Second)
	a.ProcessTick(tickAt(105, 1010, now))
	now = base.Add(40 * time.Second)
	a.ProcessTick(tickAt(98, 1015, now))

	// Crossing the minute boundary closes the bar.
	now = base.Add(61 * time.Second)
	bar, closed := a.ProcessTick(tickAt(101, 1020, now))
	if !closed {
		t.Fatal("expected boundary crossing to close the bar")
	}
	if !bar.Complete {
		t.Error("closed bar must be marked complete")
	}
	if !bar.OpenTime.Equal(base) {
		t.Errorf("expected openTime=%v, got %v", base, bar.OpenTime)
	}
	if bar.Open != 100 || bar.High != 105 || bar.Low != 98 || bar.Close != 98 {
		t.Errorf("unexpected OHLC: o=%v h=%v l=%v c=%v", bar.Open, bar.High, bar.Low, bar.Close)
	}
	// First reading contributes 0, then deltas 10 and 5.
	if bar.Volume != 15 {
		t.Errorf("expected volume=15, got %v", bar.Volume)
	}
}

func TestProcessTick_OpenTimeAlwaysAligned(t *testing.T) {
	tf := 30 * time.Second
	a := New(tf, SourceTicks, 16)

	now := time.Date(2026, 3, 4, 10, 0, 7, 0, time.UTC)
	a.now = func() time.Time { return now }

	seen := map[int64]bool{}
	price := 100.0
	for i := 0; i < 500; i++ {
		bar, closed := a.ProcessTick(tickAt(price, 0, now))
		if closed {
			if bar.OpenTime.UnixNano()%int64(tf) != 0 {
				t.Fatalf("openTime %v not aligned to %v", bar.OpenTime, tf)
			}
			if seen[bar.OpenTime.Unix()] {
				t.Fatalf("duplicate openTime %v", bar.OpenTime)
			}
			seen[bar.OpenTime.Unix()] = true
		}
		now = now.Add(7 * time.Second)
		price += 0.5
	}
	if len(seen) == 0 {
		t.Fatal("expected at least one completed bar")
	}
}

func TestProcessTick_GapClosesExactlyOneBar(t *testing.T) {
	a := New(time.Minute, SourceTicks, 16)

	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	now := base.Add(time.Second)
	a.now = func() time.Time { return now }

	a.ProcessTick(tickAt(100, 0, now))

	// Next tick arrives five minutes later: one stale bar closes and the
	// fresh bar opens at the current aligned boundary.
	now = base.Add(5*time.Minute + 10*time.Second)
	bar, closed := a.ProcessTick(tickAt(120, 0, now))
	if !closed {
		t.Fatal("expected the gap to close a bar")
	}
	if !bar.OpenTime.Equal(base) {
		t.Errorf("closed bar openTime: expected %v, got %v", base, bar.OpenTime)
	}
	if a.cur.OpenTime != base.Add(5*time.Minute) {
		t.Errorf("reseeded openTime: expected %v, got %v", base.Add(5*time.Minute), a.cur.OpenTime)
	}
	if a.cur.Open != 120 || a.cur.Close != 120 {
		t.Errorf("reseeded bar must open at the new price, got o=%v c=%v", a.cur.Open, a.cur.Close)
	}
}

func TestProcessTick_VolumeResetClampsToZero(t *testing.T) {
	a := New(time.Minute, SourceTicks, 16)
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	a.ProcessTick(tickAt(100, 5000, now))
	a.ProcessTick(tickAt(100, 5020, now.Add(time.Second)))
	// 24h window reset: reading drops. Must not subtract volume.
	a.ProcessTick(tickAt(100, 10, now.Add(2*time.Second)))

	if a.cur.Volume != 20 {
		t.Errorf("expected volume=20 after reset clamp, got %v", a.cur.Volume)
	}
}

func TestProcessExchangeBar_PassThroughRules(t *testing.T) {
	tf := time.Minute
	a := New(tf, SourceExchange, 16)
	open := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	if _, pass := a.ProcessExchangeBar(model.Bar{OpenTime: open, Complete: false}); pass {
		t.Error("partial candle must not pass through")
	}

	misaligned := 0
	a.OnMisaligned = func() { misaligned++ }
	if _, pass := a.ProcessExchangeBar(model.Bar{OpenTime: open.Add(13 * time.Second), Complete: true}); pass {
		t.Error("misaligned candle must not pass through")
	}
	if misaligned != 1 {
		t.Errorf("expected 1 misaligned rejection, got %d", misaligned)
	}

	bar, pass := a.ProcessExchangeBar(model.Bar{OpenTime: open, Open: 1, High: 2, Low: 0.5, Close: 1.5, Complete: true})
	if !pass {
		t.Fatal("aligned confirmed candle must pass through")
	}
	if !bar.CloseTime.Equal(open.Add(tf)) {
		t.Errorf("expected closeTime %v, got %v", open.Add(tf), bar.CloseTime)
	}
}

func TestPriceHistory_BoundedFIFO(t *testing.T) {
	a := New(time.Minute, SourceTicks, 5)

	if _, ok := a.LastPrice(); ok {
		t.Error("LastPrice must report no price before the first tick")
	}

	for p := 1.0; p <= 8; p++ {
		a.recordPrice(p)
	}

	got := a.RecentPrices()
	want := []float64{4, 5, 6, 7, 8}
	if len(got) != len(want) {
		t.Fatalf("expected %d retained prices, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("price %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	last, ok := a.LastPrice()
	if !ok || last != 8 {
		t.Errorf("expected last price 8, got %v (ok=%v)", last, ok)
	}
}

func TestRun_RecordsPricesInExchangeMode(t *testing.T) {
	// Even when bars come from exchange pushes, raw tick prices are kept.
	a := New(time.Minute, SourceExchange, 8)

	tickCh := make(chan model.Tick, 4)
	rawBarCh := make(chan model.Bar)
	out := make(chan model.Bar, 4)

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	tickCh <- tickAt(100.5, 0, now)
	tickCh <- tickAt(101.5, 0, now.Add(time.Second))
	close(tickCh)
	close(rawBarCh)

	done := make(chan struct{})
	go func() {
		a.Run(context.Background(), tickCh, rawBarCh, out)
		close(done)
	}()
	<-done

	prices := a.RecentPrices()
	if len(prices) != 2 || prices[0] != 100.5 || prices[1] != 101.5 {
		t.Errorf("expected prices [100.5 101.5], got %v", prices)
	}
}

func TestEmit_DropsDuplicateAndOutOfOrder(t *testing.T) {
	a := New(time.Minute, SourceExchange, 16)
	dups := 0
	a.OnDuplicate = func() { dups++ }

	out := make(chan model.Bar, 10)
	open := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	mk := func(ot time.Time) model.Bar {
		return model.Bar{OpenTime: ot, CloseTime: ot.Add(time.Minute), Complete: true}
	}

	ctx := context.Background()
	a.emit(ctx, mk(open), out)
	a.emit(ctx, mk(open), out)                   // duplicate
	a.emit(ctx, mk(open.Add(-time.Minute)), out) // out of order
	a.emit(ctx, mk(open.Add(time.Minute)), out)  // ok

	if got := len(out); got != 2 {
		t.Errorf("expected 2 emitted bars, got %d", got)
	}
	if dups != 2 {
		t.Errorf("expected 2 duplicate drops, got %d", dups)
	}
}
