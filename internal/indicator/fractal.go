package indicator

import "okxsignal/internal/model"

// TrendBias classifies the fractal/Bollinger trend reading.
type TrendBias int

const (
	BiasNeutral TrendBias = iota
	BiasBullish
	BiasStronglyBullish
	BiasBearish
	BiasStronglyBearish
)

func (b TrendBias) String() string {
	switch b {
	case BiasBullish:
		return "bullish"
	case BiasStronglyBullish:
		return "strongly_bullish"
	case BiasBearish:
		return "bearish"
	case BiasStronglyBearish:
		return "strongly_bearish"
	default:
		return "neutral"
	}
}

// Bullish reports whether the bias is on the buy side.
func (b TrendBias) Bullish() bool {
	return b == BiasBullish || b == BiasStronglyBullish
}

// Bearish reports whether the bias is on the sell side.
func (b TrendBias) Bearish() bool {
	return b == BiasBearish || b == BiasStronglyBearish
}

// isHighFractal reports whether the bar at mid strictly exceeds every other
// high in the window bars[mid-half : mid+half].
func isHighFractal(bars []model.Bar, mid, half int) bool {
	for i := mid - half; i <= mid+half; i++ {
		if i == mid {
			continue
		}
		if bars[i].High >= bars[mid].High {
			return false
		}
	}
	return true
}

// isLowFractal reports whether the bar at mid is strictly below every other
// low in the window.
func isLowFractal(bars []model.Bar, mid, half int) bool {
	for i := mid - half; i <= mid+half; i++ {
		if i == mid {
			continue
		}
		if bars[i].Low <= bars[mid].Low {
			return false
		}
	}
	return true
}

// FractalTrend scans for the most recent confirmed fractal (a local price
// extremum at the midpoint of a fractalPeriod-wide window) and combines it
// with the close's position inside the Bollinger Bands to classify trend
// bias. A low fractal reads bullish, strongly so when the close also sits
// above the Bollinger middle; a high fractal reads bearish symmetrically.
// fractalPeriod must be odd so the window has a midpoint.
func FractalTrend(bars []model.Bar, fractalPeriod, bbLength int, bbDeviation float64) (TrendBias, error) {
	if fractalPeriod < 3 || fractalPeriod%2 == 0 {
		return BiasNeutral, ErrInsufficientData
	}
	if len(bars) < fractalPeriod || len(bars) < bbLength {
		return BiasNeutral, ErrInsufficientData
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	bb, err := BollingerBands(closes, bbLength, bbDeviation)
	if err != nil {
		return BiasNeutral, err
	}

	half := fractalPeriod / 2
	close_ := bars[len(bars)-1].Close

	// Walk backwards over window midpoints; the first fractal found is the
	// most recently confirmed one.
	for mid := len(bars) - 1 - half; mid >= half; mid-- {
		switch {
		case isLowFractal(bars, mid, half):
			if close_ > bb.Middle {
				return BiasStronglyBullish, nil
			}
			return BiasBullish, nil
		case isHighFractal(bars, mid, half):
			if close_ < bb.Middle {
				return BiasStronglyBearish, nil
			}
			return BiasBearish, nil
		}
	}
	return BiasNeutral, nil
}
