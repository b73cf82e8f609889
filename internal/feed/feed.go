// Package feed maintains the resilient websocket connection to the
// exchange and pushes normalized ticks and exchange candles downstream.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"okxsignal/internal/model"
)

// ErrReconnectExhausted is returned by Start when the reconnect budget is
// spent without re-establishing a subscription.
var ErrReconnectExhausted = errors.New("feed: reconnect attempts exhausted")

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackingOff
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackingOff:
		return "backing_off"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

// Config holds the feed connection parameters.
type Config struct {
	URL        string
	Symbol     string
	BarChannel string        // e.g. candle1m
	Timeframe  time.Duration // bar duration matching BarChannel

	PingInterval time.Duration
	PongTimeout  time.Duration // read deadline; any inbound frame counts as liveness

	InitialDelay time.Duration // first backoff delay
	Multiplier   float64       // backoff growth factor
	MaxAttempts  int           // consecutive failed attempts before giving up

	SkewThreshold time.Duration // exchange vs local clock warning threshold
}

// Feed streams ticks and candles for one instrument. One Feed drives one
// connection at a time; reconnects happen inside Start.
type Feed struct {
	cfg   Config
	state atomic.Int32

	// Optional observability hooks.
	OnReconnect func(attempt int)
	OnSkew      func(skew time.Duration)
	OnMalformed func()
	OnDrop      func()
}

// New creates a feed for the given configuration.
func New(cfg Config) *Feed {
	return &Feed{cfg: cfg}
}

// State returns the current connection state.
func (f *Feed) State() State { return State(f.state.Load()) }

func (f *Feed) setState(s State) { f.state.Store(int32(s)) }

// backoffDelay is the delay before reconnect attempt n (1-based):
// InitialDelay * Multiplier^(n-1).
func (f *Feed) backoffDelay(attempt int) time.Duration {
	d := float64(f.cfg.InitialDelay) * math.Pow(f.cfg.Multiplier, float64(attempt-1))
	return time.Duration(d)
}

// Start connects and streams until ctx is cancelled or the reconnect
// budget is exhausted. Ticks are delivered with a non-blocking send (a
// slow consumer drops ticks, never bars); candle sends block. The attempt
// counter resets every time a subscription is confirmed, so the budget
// bounds consecutive failures, not lifetime reconnects.
func (f *Feed) Start(ctx context.Context, tickCh chan<- model.Tick, barCh chan<- model.Bar) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			f.setState(StateDisconnected)
			return ctx.Err()
		}

		f.setState(StateConnecting)
		subscribed, err := f.runOnce(ctx, tickCh, barCh)
		if ctx.Err() != nil {
			f.setState(StateDisconnected)
			return ctx.Err()
		}
		if subscribed {
			attempt = 0
		}
		attempt++

		if f.cfg.MaxAttempts > 0 && attempt > f.cfg.MaxAttempts {
			f.setState(StateFailed)
			log.Printf("[feed] giving up after %d consecutive failed attempts: %v", f.cfg.MaxAttempts, err)
			return fmt.Errorf("%w: last error: %v", ErrReconnectExhausted, err)
		}

		delay := f.backoffDelay(attempt)
		log.Printf("[feed] connection lost (%v), reconnect attempt %d/%d in %s",
			err, attempt, f.cfg.MaxAttempts, delay)
		f.setState(StateBackingOff)
		if f.OnReconnect != nil {
			f.OnReconnect(attempt)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			f.setState(StateDisconnected)
			return ctx.Err()
		}
	}
}

// runOnce runs a single connection to failure. It reports whether a
// subscription was confirmed on this connection, which is what resets the
// reconnect budget.
func (f *Feed) runOnce(ctx context.Context, tickCh chan<- model.Tick, barCh chan<- model.Bar) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", f.cfg.URL, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)

	// Cancellation unblocks the reader by killing the connection.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteMessage(websocket.TextMessage, subscribeRequest(f.cfg.Symbol, f.cfg.BarChannel)); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	log.Printf("[feed] subscription sent symbol=%s channel=%s", f.cfg.Symbol, f.cfg.BarChannel)

	// Heartbeat writer. The read loop never writes after the subscribe, so
	// this goroutine is the only concurrent writer.
	go func() {
		ticker := time.NewTicker(f.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					conn.Close()
					return
				}
			case <-done:
				return
			}
		}
	}()

	subscribed := false
	for {
		if err := conn.SetReadDeadline(time.Now().Add(f.cfg.PongTimeout)); err != nil {
			return subscribed, err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return subscribed, fmt.Errorf("read: %w", err)
		}

		now := time.Now().UTC()
		fr, err := decodeFrame(data, f.cfg.Timeframe, now)
		if err != nil {
			log.Printf("[feed] malformed frame skipped: %v", err)
			if f.OnMalformed != nil {
				f.OnMalformed()
			}
			continue
		}

		switch fr.kind {
		case framePong:
			// Read deadline refresh above is the liveness accounting.

		case frameEvent:
			if fr.event == "error" {
				return subscribed, fmt.Errorf("exchange error event code=%s msg=%s", fr.code, fr.msg)
			}
			if fr.event == "subscribe" {
				subscribed = true
				f.setState(StateConnected)
				log.Printf("[feed] subscription confirmed symbol=%s", f.cfg.Symbol)
			}

		case frameTicks:
			for _, tick := range fr.ticks {
				f.checkSkew(tick)
				select {
				case tickCh <- tick:
				default:
					if f.OnDrop != nil {
						f.OnDrop()
					}
					log.Println("[feed] tick channel full, dropping tick")
				}
			}

		case frameBars:
			for _, bar := range fr.bars {
				select {
				case barCh <- bar:
				case <-ctx.Done():
					return subscribed, ctx.Err()
				}
			}
		}
	}
}

func (f *Feed) checkSkew(tick model.Tick) {
	if f.cfg.SkewThreshold <= 0 {
		return
	}
	skew := tick.LocalTS.Sub(tick.ExchTS)
	if skew < 0 {
		skew = -skew
	}
	if skew > f.cfg.SkewThreshold {
		log.Printf("[feed] clock skew %s exceeds threshold %s", skew, f.cfg.SkewThreshold)
		if f.OnSkew != nil {
			f.OnSkew(skew)
		}
	}
}
