// Package execution consumes emitted signals and turns them into order
// placement calls against the exchange's REST API. The REST client itself
// is an external collaborator consumed through the ExchangeClient
// interface; this package only enforces the delivery discipline around it:
// at most one order call in flight and a minimum cooldown between accepted
// trades.
package execution

import (
	"context"
	"fmt"
	"log"
	"time"

	"okxsignal/internal/model"
)

// OrderResult is the outcome of handling one signal.
type OrderResult struct {
	OrderID  string       `json:"order_id"`
	Status   string       `json:"status"` // PLACED, SKIPPED, ERROR
	Message  string       `json:"message"`
	SignalID string       `json:"signal_id"`
	Action   model.Action `json:"action"`
	Price    float64      `json:"price"`
	TS       time.Time    `json:"ts"`
}

// ExchangeClient is the order-placement collaborator contract. It is
// consumed here, never implemented: the concrete client wraps the
// exchange's private REST API outside the core.
type ExchangeClient interface {
	PlaceOrder(ctx context.Context, symbol, side string, size float64) (OrderResult, error)
	SetLeverage(ctx context.Context, symbol string, leverage int, mode string) error
}

// Config holds the executor parameters.
type Config struct {
	Symbol     string
	OrderSize  float64
	Cooldown   time.Duration // minimum interval between accepted trades
	Leverage   int           // applied once at startup when > 0
	MarginMode string
}

// Executor places orders for emitted signals. Run is a single goroutine,
// so order calls are serialized by construction.
type Executor struct {
	cfg    Config
	client ExchangeClient

	lastTrade time.Time
	resultCh  chan OrderResult

	// now is the clock used for cooldown checks, swappable in tests.
	now func() time.Time

	// OnOrder observes each result status (optional, set externally).
	OnOrder func(status string)
}

// New creates an executor for the given client.
func New(cfg Config, client ExchangeClient, resultBufferSize int) *Executor {
	return &Executor{
		cfg:      cfg,
		client:   client,
		resultCh: make(chan OrderResult, resultBufferSize),
		now:      time.Now,
	}
}

// Results returns the channel of order results.
func (e *Executor) Results() <-chan OrderResult {
	return e.resultCh
}

// Setup applies one-time account configuration before trading starts.
func (e *Executor) Setup(ctx context.Context) error {
	if e.cfg.Leverage <= 0 {
		return nil
	}
	if err := e.client.SetLeverage(ctx, e.cfg.Symbol, e.cfg.Leverage, e.cfg.MarginMode); err != nil {
		return fmt.Errorf("set leverage: %w", err)
	}
	log.Printf("[executor] leverage set symbol=%s lev=%d mode=%s",
		e.cfg.Symbol, e.cfg.Leverage, e.cfg.MarginMode)
	return nil
}

// Run consumes signals and places orders. Blocks until ctx is cancelled or
// signalCh is closed. Results are delivered on the Results channel; a full
// results buffer drops the result rather than stalling order handling.
func (e *Executor) Run(ctx context.Context, signalCh <-chan model.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signalCh:
			if !ok {
				return
			}
			e.deliver(e.handle(ctx, sig))
		}
	}
}

func (e *Executor) handle(ctx context.Context, sig model.Signal) OrderResult {
	if sig.Action == model.ActionHold {
		return OrderResult{
			Status:   "SKIPPED",
			Message:  "hold signal",
			SignalID: sig.ID,
			Action:   sig.Action,
			Price:    sig.Price,
			TS:       e.now(),
		}
	}

	if since := e.now().Sub(e.lastTrade); !e.lastTrade.IsZero() && since < e.cfg.Cooldown {
		log.Printf("[executor] cooldown active (%s since last trade), skipping %s signal",
			since.Truncate(time.Millisecond), sig.Action)
		return OrderResult{
			Status:   "SKIPPED",
			Message:  fmt.Sprintf("cooldown: %s since last trade", since.Truncate(time.Millisecond)),
			SignalID: sig.ID,
			Action:   sig.Action,
			Price:    sig.Price,
			TS:       e.now(),
		}
	}

	side := "buy"
	if sig.Action == model.ActionSell {
		side = "sell"
	}

	res, err := e.client.PlaceOrder(ctx, e.cfg.Symbol, side, e.cfg.OrderSize)
	if err != nil {
		log.Printf("[executor] order error for %s %s: %v", side, e.cfg.Symbol, err)
		return OrderResult{
			Status:   "ERROR",
			Message:  err.Error(),
			SignalID: sig.ID,
			Action:   sig.Action,
			Price:    sig.Price,
			TS:       e.now(),
		}
	}

	e.lastTrade = e.now()
	res.Status = "PLACED"
	res.SignalID = sig.ID
	res.Action = sig.Action
	res.Price = sig.Price
	res.TS = e.lastTrade
	log.Printf("[executor] order placed id=%s %s %s size=%v price=%v",
		res.OrderID, side, e.cfg.Symbol, e.cfg.OrderSize, sig.Price)
	return res
}

func (e *Executor) deliver(res OrderResult) {
	if e.OnOrder != nil {
		e.OnOrder(res.Status)
	}
	select {
	case e.resultCh <- res:
	default:
		log.Printf("[executor] results channel full, dropping result order=%s", res.OrderID)
	}
}
