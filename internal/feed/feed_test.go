package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"okxsignal/internal/model"
)

func TestBackoffDelaySchedule(t *testing.T) {
	f := New(Config{
		InitialDelay: 1000 * time.Millisecond,
		Multiplier:   1.5,
		MaxAttempts:  3,
	})

	want := []time.Duration{
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
	}
	for i, w := range want {
		if got := f.backoffDelay(i + 1); got != w {
			t.Errorf("attempt %d: expected %s, got %s", i+1, w, got)
		}
	}
}

func TestStart_ExhaustsReconnectBudget(t *testing.T) {
	// Unreachable endpoint: every attempt fails immediately.
	f := New(Config{
		URL:          "ws://127.0.0.1:1/ws",
		Symbol:       "BTC-USDT-SWAP",
		BarChannel:   "candle1m",
		Timeframe:    time.Minute,
		PingInterval: time.Minute,
		PongTimeout:  time.Minute,
		InitialDelay: time.Millisecond,
		Multiplier:   1.5,
		MaxAttempts:  3,
	})

	reconnects := 0
	f.OnReconnect = func(int) { reconnects++ }

	err := f.Start(context.Background(), make(chan model.Tick, 1), make(chan model.Bar, 1))
	if !errors.Is(err, ErrReconnectExhausted) {
		t.Fatalf("expected ErrReconnectExhausted, got %v", err)
	}
	if reconnects != 3 {
		t.Errorf("expected 3 backoff waits before giving up, got %d", reconnects)
	}
	if f.State() != StateFailed {
		t.Errorf("expected failed state, got %s", f.State())
	}
}

func TestStart_CancelReturnsPromptly(t *testing.T) {
	f := New(Config{
		URL:          "ws://127.0.0.1:1/ws",
		InitialDelay: time.Hour, // cancellation must not wait this out
		Multiplier:   1.5,
		MaxAttempts:  100,
		PingInterval: time.Minute,
		PongTimeout:  time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- f.Start(ctx, make(chan model.Tick, 1), make(chan model.Bar, 1))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
	if f.State() != StateDisconnected {
		t.Errorf("expected disconnected state, got %s", f.State())
	}
}

// wsServer runs a test websocket server that records the subscribe request
// and streams the given frames.
func wsServer(t *testing.T, frames []string, subscribeSeen chan<- string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case subscribeSeen <- string(msg):
		default:
		}

		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"subscribe","arg":{"channel":"tickers"}}`))
		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		// Keep the connection open briefly so the client reads everything.
		time.Sleep(200 * time.Millisecond)
	}))
}

func TestStart_StreamsTicksAndBars(t *testing.T) {
	frames := []string{
		`{"arg":{"channel":"tickers"},"data":[{"last":"50000.5","vol24h":"1234.5","ts":"1700000000000"}]}`,
		`this is not json`,
		`{"arg":{"channel":"candle1m"},"data":[["1700000040000","50000","50100","49900","50050","12.5","0","0","1"]]}`,
	}
	subscribeSeen := make(chan string, 1)
	srv := wsServer(t, frames, subscribeSeen)
	defer srv.Close()

	f := New(Config{
		URL:          "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbol:       "BTC-USDT-SWAP",
		BarChannel:   "candle1m",
		Timeframe:    time.Minute,
		PingInterval: time.Minute,
		PongTimeout:  5 * time.Second,
		InitialDelay: time.Millisecond,
		Multiplier:   1.5,
		MaxAttempts:  1,
	})

	malformed := 0
	f.OnMalformed = func() { malformed++ }

	tickCh := make(chan model.Tick, 10)
	barCh := make(chan model.Bar, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go f.Start(ctx, tickCh, barCh)

	select {
	case sub := <-subscribeSeen:
		if !strings.Contains(sub, `"op":"subscribe"`) || !strings.Contains(sub, "BTC-USDT-SWAP") {
			t.Errorf("unexpected subscribe request: %s", sub)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw a subscribe request")
	}

	select {
	case tick := <-tickCh:
		if tick.Price != 50000.5 || tick.Volume != 1234.5 {
			t.Errorf("unexpected tick: %+v", tick)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick received")
	}

	select {
	case bar := <-barCh:
		if bar.Open != 50000 || bar.Close != 50050 || !bar.Complete {
			t.Errorf("unexpected bar: %+v", bar)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no bar received")
	}

	// The invalid frame was skipped without killing the stream.
	if malformed != 1 {
		t.Errorf("expected 1 malformed frame, got %d", malformed)
	}
}
