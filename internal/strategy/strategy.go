// Package strategy provides the position-aware signal state machine.
//
// A Strategy evaluates the rolling bar history once per completed bar and
// proposes an action plus the position bias that action would leave the
// engine in. The Engine owns the actual state: the bounded bar history,
// the current PositionBias, and the last emitted action. Emission is
// edge-triggered — a signal is published only when the computed action
// differs from the previously published one, so an unchanged decision
// never produces duplicate order submissions downstream.
package strategy

import (
	"log"
	"time"

	"okxsignal/internal/model"
	"okxsignal/internal/series"
)

// Decision is one strategy evaluation over the current bar history.
type Decision struct {
	Action     model.Action
	Bias       model.PositionBias // bias after the action is applied
	Indicators map[string]float64
}

// Strategy is implemented by the trading strategies the engine can run.
// Exactly one strategy is active per process, selected at startup.
type Strategy interface {
	// Name returns the strategy tag stamped onto emitted signals.
	Name() string

	// Evaluate inspects the bar history (oldest first, most recent bar
	// last) and the current position bias. Returning ErrInsufficientData
	// suppresses signal generation for this bar; it is not a fault.
	Evaluate(bars []model.Bar, bias model.PositionBias) (Decision, error)

	// Lookback returns the minimum number of bars the strategy needs.
	Lookback() int
}

// Engine drives the active strategy once per completed bar and applies the
// edge-triggered output discipline.
type Engine struct {
	strat   Strategy
	history *series.Series[model.Bar]

	bias       model.PositionBias
	lastAction model.Action // empty until the first emission

	// OnFault is called when a strategy evaluation panics; the fault
	// degrades to "no signal this bar" and the stream continues.
	OnFault func(err any)
}

// NewEngine creates an engine running the given strategy over a bounded
// bar history of the given capacity.
func NewEngine(strat Strategy, historyCap int) *Engine {
	if historyCap < strat.Lookback() {
		historyCap = strat.Lookback()
	}
	return &Engine{
		strat:   strat,
		history: series.New[model.Bar](historyCap),
	}
}

// Bias returns the current position bias.
func (e *Engine) Bias() model.PositionBias { return e.bias }

// OnBar folds one completed bar into the history and evaluates the
// strategy. It returns a signal only on an action edge; nil means hold.
func (e *Engine) OnBar(bar model.Bar) *model.Signal {
	e.history.Push(bar)
	if e.history.Len() < e.strat.Lookback() {
		return nil
	}

	dec, err := e.evaluate(bar)
	if err != nil {
		// Insufficient data and per-bar faults are both "no decision".
		return nil
	}

	if dec.Action == model.ActionHold || dec.Action == "" {
		return nil
	}
	if dec.Action == e.lastAction {
		return nil
	}

	e.lastAction = dec.Action
	e.bias = dec.Bias

	sig := model.NewSignal(dec.Action, bar.Close, bar.CloseTime, e.strat.Name(), dec.Indicators)
	return &sig
}

// evaluate runs the strategy with panic isolation so one bad bar cannot
// halt the stream.
func (e *Engine) evaluate(bar model.Bar) (dec Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[strategy] %s: evaluation fault on bar %s: %v",
				e.strat.Name(), bar.OpenTime.Format(time.RFC3339), r)
			if e.OnFault != nil {
				e.OnFault(r)
			}
			dec = Decision{}
			err = ErrEvaluationFault
		}
	}()
	return e.strat.Evaluate(e.history.Values(), e.bias)
}
