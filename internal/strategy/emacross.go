package strategy

import (
	"errors"

	"okxsignal/internal/indicator"
	"okxsignal/internal/model"
)

// ErrEvaluationFault marks a strategy evaluation that panicked and was
// degraded to "no signal this bar".
var ErrEvaluationFault = errors.New("strategy: evaluation fault")

// EMACross signals on EMA crossovers.
//
// Buy: short EMA crosses above long EMA between the previous and current
// bar. Sell: the reverse cross. The decision is level-based on the
// crossover itself; the engine's edge-triggering keeps repeats out.
type EMACross struct {
	short int
	long  int
}

// NewEMACross creates the crossover strategy. short must be less than long
// (e.g. 9 and 21); validated by config before the engine starts.
func NewEMACross(short, long int) *EMACross {
	return &EMACross{short: short, long: long}
}

func (s *EMACross) Name() string { return "ema-crossover" }

// Lookback needs one extra bar so the previous crossover state exists.
func (s *EMACross) Lookback() int { return s.long + 1 }

func (s *EMACross) Evaluate(bars []model.Bar, _ model.PositionBias) (Decision, error) {
	if len(bars) < s.Lookback() {
		return Decision{}, indicator.ErrInsufficientData
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	prev := closes[:len(closes)-1]

	curShort, err := indicator.EMA(closes, s.short)
	if err != nil {
		return Decision{}, err
	}
	curLong, err := indicator.EMA(closes, s.long)
	if err != nil {
		return Decision{}, err
	}
	prevShort, err := indicator.EMA(prev, s.short)
	if err != nil {
		return Decision{}, err
	}
	prevLong, err := indicator.EMA(prev, s.long)
	if err != nil {
		return Decision{}, err
	}

	inds := map[string]float64{
		"ema_short": curShort,
		"ema_long":  curLong,
	}

	switch {
	case prevShort <= prevLong && curShort > curLong:
		return Decision{Action: model.ActionBuy, Bias: model.BiasLong, Indicators: inds}, nil
	case prevShort >= prevLong && curShort < curLong:
		return Decision{Action: model.ActionSell, Bias: model.BiasShort, Indicators: inds}, nil
	}
	return Decision{Action: model.ActionHold, Indicators: inds}, nil
}
