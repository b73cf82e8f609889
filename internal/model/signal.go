package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action represents a trading action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// PositionBias is the position the signal state machine believes it holds.
// It is owned exclusively by the strategy engine and mutated only on a
// confirmed entry or exit signal.
type PositionBias int

const (
	BiasFlat PositionBias = iota
	BiasLong
	BiasShort
)

func (p PositionBias) String() string {
	switch p {
	case BiasLong:
		return "LONG"
	case BiasShort:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// Signal is an edge-triggered trading signal. It is published exactly once
// per state transition: a signal is emitted only when the computed action
// differs from the previously emitted action.
type Signal struct {
	ID          string             `json:"id"`
	Action      Action             `json:"action"`
	Price       float64            `json:"price"`
	Timestamp   time.Time          `json:"ts"`
	StrategyTag string             `json:"strategy"`
	Indicators  map[string]float64 `json:"indicators,omitempty"`
}

// NewSignal builds a signal with a fresh ID for journaling.
func NewSignal(action Action, price float64, ts time.Time, strategyTag string, indicators map[string]float64) Signal {
	return Signal{
		ID:          uuid.NewString(),
		Action:      action,
		Price:       price,
		Timestamp:   ts,
		StrategyTag: strategyTag,
		Indicators:  indicators,
	}
}

// JSON returns the JSON-encoded signal (ignoring errors for hot-path usage).
func (s *Signal) JSON() []byte {
	data, _ := json.Marshal(s)
	return data
}
