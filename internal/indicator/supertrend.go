package indicator

import "okxsignal/internal/model"

// Trend is the Supertrend direction.
type Trend int

const (
	TrendNone Trend = iota
	TrendUp
	TrendDown
)

func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	default:
		return "none"
	}
}

// SupertrendValue summarizes one Supertrend computation.
type SupertrendValue struct {
	Trend     Trend
	ATR       float64
	UpperBand float64
	LowerBand float64
}

// Supertrend computes ATR-based bands around the bar midpoint and tracks
// the trend direction. The trend flips to up when the close crosses above
// the upper band and to down when it crosses below the lower band;
// otherwise the prior trend persists. That continuation rule is the one
// piece of carried state in the indicator library.
type Supertrend struct {
	period     int
	multiplier float64
	prev       Trend
}

// NewSupertrend creates a Supertrend with the given ATR period and band
// multiplier.
func NewSupertrend(period int, multiplier float64) *Supertrend {
	return &Supertrend{
		period:     period,
		multiplier: multiplier,
	}
}

// Compute evaluates the bands over the latest bars and applies the
// continuation rule against the previously computed trend.
func (s *Supertrend) Compute(bars []model.Bar) (SupertrendValue, error) {
	atr, err := ATR(bars, s.period)
	if err != nil {
		return SupertrendValue{}, err
	}

	last := bars[len(bars)-1]
	mid := (last.High + last.Low) / 2
	upper := mid + s.multiplier*atr
	lower := mid - s.multiplier*atr

	trend := s.prev
	switch {
	case last.Close > upper:
		trend = TrendUp
	case last.Close < lower:
		trend = TrendDown
	case trend == TrendNone:
		// No prior trend and no band cross: classify off the midpoint so
		// the first computation still yields a direction.
		if last.Close >= mid {
			trend = TrendUp
		} else {
			trend = TrendDown
		}
	}
	s.prev = trend

	return SupertrendValue{
		Trend:     trend,
		ATR:       atr,
		UpperBand: upper,
		LowerBand: lower,
	}, nil
}

// Reset clears the carried trend, for reuse after a deliberate restart.
func (s *Supertrend) Reset() { s.prev = TrendNone }
