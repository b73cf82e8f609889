package indicator

import (
	"math"

	"okxsignal/internal/model"
)

// trueRange computes max(high-low, |high-prevClose|, |low-prevClose|).
func trueRange(bar model.Bar, prevClose float64) float64 {
	tr := bar.High - bar.Low
	if hc := math.Abs(bar.High - prevClose); hc > tr {
		tr = hc
	}
	if lc := math.Abs(bar.Low - prevClose); lc > tr {
		tr = lc
	}
	return tr
}

// ATR returns the mean true range over the trailing period bars.
// Needs period+1 bars since the true range references the previous close.
func ATR(bars []model.Bar, period int) (float64, error) {
	if period <= 0 || len(bars) < period+1 {
		return 0, ErrInsufficientData
	}

	window := bars[len(bars)-period-1:]
	sum := 0.0
	for i := 1; i < len(window); i++ {
		sum += trueRange(window[i], window[i-1].Close)
	}
	return sum / float64(period), nil
}
