package indicator

import (
	"math"
	"testing"
	"time"

	"okxsignal/internal/model"
)

// makeBar creates a test bar; times are irrelevant to the indicator math.
func makeBar(open, high, low, close_ float64) model.Bar {
	return model.Bar{
		OpenTime:  time.Unix(0, 0).UTC(),
		CloseTime: time.Unix(60, 0).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close_,
		Volume:    1,
		Complete:  true,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMA(t *testing.T) {
	series := []float64{1, 2, 3, 4, 5}

	v, err := SMA(series, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(v, 4) { // (3+4+5)/3
		t.Errorf("expected 4, got %v", v)
	}

	if _, err := SMA(series, 6); err != ErrInsufficientData {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
	if _, err := SMA(series, 0); err != ErrInsufficientData {
		t.Errorf("expected ErrInsufficientData for zero length, got %v", err)
	}
}

func TestStdDev(t *testing.T) {
	// Population stddev of {2,4,4,4,5,5,7,9} is exactly 2.
	series := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	v, err := StdDev(series, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(v, 2) {
		t.Errorf("expected 2, got %v", v)
	}
}

func TestEMA_ConstantSeriesConvergesToConstant(t *testing.T) {
	series := make([]float64, 100)
	for i := range series {
		series[i] = 42.5
	}

	v, err := EMA(series, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(v, 42.5) {
		t.Errorf("expected 42.5, got %v", v)
	}
}

func TestEMA_InsufficientData(t *testing.T) {
	if _, err := EMA([]float64{1, 2, 3}, 9); err != ErrInsufficientData {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestEMA_SeededBySMA(t *testing.T) {
	// With len(series) == length the EMA is exactly the SMA seed.
	series := []float64{10, 20, 30}
	v, err := EMA(series, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(v, 20) {
		t.Errorf("expected seed 20, got %v", v)
	}
}

func TestBollingerBands(t *testing.T) {
	series := []float64{2, 4, 4, 4, 5, 5, 7, 9} // mean 5, stddev 2
	bb, err := BollingerBands(series, 8, 2.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(bb.Middle, 5) {
		t.Errorf("middle: expected 5, got %v", bb.Middle)
	}
	if !almostEqual(bb.Upper, 9) {
		t.Errorf("upper: expected 9, got %v", bb.Upper)
	}
	if !almostEqual(bb.Lower, 1) {
		t.Errorf("lower: expected 1, got %v", bb.Lower)
	}
}

func TestATR(t *testing.T) {
	// Equal closes and a constant 10-point range: every true range is 10.
	bars := []model.Bar{
		makeBar(100, 105, 95, 100),
		makeBar(100, 105, 95, 100),
		makeBar(100, 105, 95, 100),
		makeBar(100, 105, 95, 100),
	}
	v, err := ATR(bars, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(v, 10) {
		t.Errorf("expected ATR=10, got %v", v)
	}

	if _, err := ATR(bars, 4); err != ErrInsufficientData {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestATR_GapAboveRange(t *testing.T) {
	// A gap from the previous close dominates high-low.
	bars := []model.Bar{
		makeBar(100, 101, 99, 100),
		makeBar(120, 121, 119, 120), // |high-prevClose| = 21
	}
	v, err := ATR(bars, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(v, 21) {
		t.Errorf("expected ATR=21, got %v", v)
	}
}

func TestSupertrend_TrendFlips(t *testing.T) {
	st := NewSupertrend(3, 1.0)

	// Quiet bars establish an ATR of 2 around a 100 midpoint.
	bars := []model.Bar{
		makeBar(100, 101, 99, 100),
		makeBar(100, 101, 99, 100),
		makeBar(100, 101, 99, 100),
		makeBar(100, 101, 99, 100),
	}
	v, err := st.Compute(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Trend != TrendUp { // close 100 == midpoint, initial classification
		t.Errorf("expected initial trend up, got %v", v.Trend)
	}

	// Strong down bar: close far below the lower band.
	bars = append(bars, makeBar(100, 100, 80, 81))
	v, err = st.Compute(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Trend != TrendDown {
		t.Errorf("expected trend down after band cross, got %v", v.Trend)
	}
}

func TestSupertrend_MonotoneStableWithoutCross(t *testing.T) {
	st := NewSupertrend(3, 3.0)

	// Wide multiplier: closes never escape the bands, so whatever trend is
	// established first must persist across subsequent computations.
	bars := []model.Bar{
		makeBar(100, 102, 98, 101),
		makeBar(101, 103, 99, 100),
		makeBar(100, 102, 98, 101),
		makeBar(101, 103, 99, 100),
	}
	first, err := st.Compute(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 10; i++ {
		bars = append(bars, makeBar(100, 102, 98, 100.5))
		v, err := st.Compute(bars)
		if err != nil {
			t.Fatalf("unexpected error at bar %d: %v", i, err)
		}
		if v.Trend != first.Trend {
			t.Fatalf("trend changed without a band cross at bar %d: %v -> %v", i, first.Trend, v.Trend)
		}
	}
}

func TestFractalTrend_LowFractalBullish(t *testing.T) {
	// V-shape: lows descend into bar 2 and recover, making bar 2 a low
	// fractal for period 5. Closes finish above the Bollinger middle.
	bars := []model.Bar{
		makeBar(100, 101, 96, 100),
		makeBar(100, 101, 94, 99),
		makeBar(99, 100, 90, 98), // low fractal
		makeBar(98, 102, 95, 101),
		makeBar(101, 104, 100, 103),
	}
	bias, err := FractalTrend(bars, 5, 5, 2.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bias != BiasStronglyBullish {
		t.Errorf("expected strongly_bullish, got %v", bias)
	}
	if !bias.Bullish() {
		t.Error("expected Bullish()=true")
	}
}

func TestFractalTrend_HighFractalBearish(t *testing.T) {
	bars := []model.Bar{
		makeBar(100, 104, 99, 100),
		makeBar(100, 106, 99, 101),
		makeBar(101, 110, 100, 102), // high fractal
		makeBar(102, 105, 98, 99),
		makeBar(99, 102, 95, 96),
	}
	bias, err := FractalTrend(bars, 5, 5, 2.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bias.Bearish() {
		t.Errorf("expected bearish bias, got %v", bias)
	}
}

func TestFractalTrend_InsufficientData(t *testing.T) {
	bars := []model.Bar{makeBar(1, 2, 0, 1)}
	if _, err := FractalTrend(bars, 5, 5, 2.0); err != ErrInsufficientData {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
	// Even-width windows have no midpoint.
	if _, err := FractalTrend(bars, 4, 1, 2.0); err != ErrInsufficientData {
		t.Errorf("expected ErrInsufficientData for even period, got %v", err)
	}
}

func TestFractalTrend_DoesNotMutateInput(t *testing.T) {
	bars := []model.Bar{
		makeBar(100, 101, 96, 100),
		makeBar(100, 101, 94, 99),
		makeBar(99, 100, 90, 98),
		makeBar(98, 102, 95, 101),
		makeBar(101, 104, 100, 103),
	}
	before := make([]model.Bar, len(bars))
	copy(before, bars)

	if _, err := FractalTrend(bars, 5, 5, 2.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range bars {
		if bars[i] != before[i] {
			t.Fatalf("input bar %d mutated", i)
		}
	}
}
