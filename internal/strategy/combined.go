package strategy

import (
	"okxsignal/internal/indicator"
	"okxsignal/internal/model"
)

// Combined enters positions when Supertrend and the fractal/Bollinger
// trend classification agree, and exits when the fractal trend flips
// against the held bias.
type Combined struct {
	st            *indicator.Supertrend
	fractalPeriod int
	bbLength      int
	bbDeviation   float64
	stPeriod      int
}

// CombinedConfig holds the indicator parameters for the combined strategy.
type CombinedConfig struct {
	SupertrendPeriod     int
	SupertrendMultiplier float64
	FractalPeriod        int
	BollingerLength      int
	BollingerDeviation   float64
}

// NewCombined creates the combined Supertrend + fractal strategy.
func NewCombined(cfg CombinedConfig) *Combined {
	return &Combined{
		st:            indicator.NewSupertrend(cfg.SupertrendPeriod, cfg.SupertrendMultiplier),
		fractalPeriod: cfg.FractalPeriod,
		bbLength:      cfg.BollingerLength,
		bbDeviation:   cfg.BollingerDeviation,
		stPeriod:      cfg.SupertrendPeriod,
	}
}

func (s *Combined) Name() string { return "combined" }

// Lookback is the longest of the component lookbacks; ATR needs one bar
// beyond its period.
func (s *Combined) Lookback() int {
	lb := s.stPeriod + 1
	if s.fractalPeriod > lb {
		lb = s.fractalPeriod
	}
	if s.bbLength > lb {
		lb = s.bbLength
	}
	return lb
}

func (s *Combined) Evaluate(bars []model.Bar, bias model.PositionBias) (Decision, error) {
	st, err := s.st.Compute(bars)
	if err != nil {
		return Decision{}, err
	}
	fractal, err := indicator.FractalTrend(bars, s.fractalPeriod, s.bbLength, s.bbDeviation)
	if err != nil {
		return Decision{}, err
	}

	inds := map[string]float64{
		"supertrend_atr":   st.ATR,
		"supertrend_upper": st.UpperBand,
		"supertrend_lower": st.LowerBand,
		"supertrend_trend": float64(st.Trend),
		"fractal_bias":     float64(fractal),
	}

	// Exits take precedence: a fractal flip against the held bias closes
	// the position regardless of what Supertrend says.
	switch {
	case bias == model.BiasLong && fractal.Bearish():
		return Decision{Action: model.ActionSell, Bias: model.BiasFlat, Indicators: inds}, nil
	case bias == model.BiasShort && fractal.Bullish():
		return Decision{Action: model.ActionBuy, Bias: model.BiasFlat, Indicators: inds}, nil
	}

	// Entries require Supertrend and the fractal trend to agree.
	switch {
	case bias != model.BiasLong && st.Trend == indicator.TrendUp && fractal.Bullish():
		return Decision{Action: model.ActionBuy, Bias: model.BiasLong, Indicators: inds}, nil
	case bias != model.BiasShort && st.Trend == indicator.TrendDown && fractal.Bearish():
		return Decision{Action: model.ActionSell, Bias: model.BiasShort, Indicators: inds}, nil
	}

	return Decision{Action: model.ActionHold, Bias: bias, Indicators: inds}, nil
}
