package feed

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"okxsignal/internal/model"
)

type frameKind int

const (
	framePong frameKind = iota
	frameEvent
	frameTicks
	frameBars
)

// frame is one decoded inbound message.
type frame struct {
	kind  frameKind
	ticks []model.Tick
	bars  []model.Bar

	// event fields
	event string
	code  string
	msg   string
}

// subscribeRequest builds the subscription for the ticker stream and the
// candle stream of the configured timeframe.
func subscribeRequest(symbol, barChannel string) []byte {
	return []byte(fmt.Sprintf(
		`{"op":"subscribe","args":[{"channel":"tickers","instId":%q},{"channel":%q,"instId":%q}]}`,
		symbol, barChannel, symbol,
	))
}

// parseFloat rejects anything that is not a numeric string or number; the
// exchange sends prices and volumes as strings.
func parseFloat(r gjson.Result) (float64, error) {
	if r.Type != gjson.String && r.Type != gjson.Number {
		return 0, fmt.Errorf("not a number: %s", r.Raw)
	}
	return strconv.ParseFloat(r.String(), 64)
}

// parseMillis converts an epoch-milliseconds field to UTC time.
func parseMillis(r gjson.Result) (time.Time, error) {
	if r.Type != gjson.String && r.Type != gjson.Number {
		return time.Time{}, fmt.Errorf("not a timestamp: %s", r.Raw)
	}
	ms, err := strconv.ParseInt(r.String(), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
}

// decodeFrame classifies and decodes one raw websocket message. tf is the
// configured bar timeframe, used to derive candle close times.
func decodeFrame(data []byte, tf time.Duration, now time.Time) (frame, error) {
	if string(data) == "pong" {
		return frame{kind: framePong}, nil
	}
	if !gjson.ValidBytes(data) {
		return frame{}, fmt.Errorf("invalid json frame")
	}
	root := gjson.ParseBytes(data)

	if ev := root.Get("event"); ev.Exists() {
		return frame{
			kind:  frameEvent,
			event: ev.String(),
			code:  root.Get("code").String(),
			msg:   root.Get("msg").String(),
		}, nil
	}

	channel := root.Get("arg.channel").String()
	rows := root.Get("data")
	if channel == "" || !rows.IsArray() {
		return frame{}, fmt.Errorf("frame without channel or data array")
	}

	if channel == "tickers" {
		f := frame{kind: frameTicks}
		for _, row := range rows.Array() {
			tick, err := decodeTicker(row, now)
			if err != nil {
				return frame{}, fmt.Errorf("ticker row: %w", err)
			}
			f.ticks = append(f.ticks, tick)
		}
		return f, nil
	}

	// Candle channels are named candle<tf>, e.g. candle1m, candle4H.
	if len(channel) > len("candle") && channel[:len("candle")] == "candle" {
		f := frame{kind: frameBars}
		for _, row := range rows.Array() {
			bar, err := decodeCandle(row, tf)
			if err != nil {
				return frame{}, fmt.Errorf("candle row: %w", err)
			}
			f.bars = append(f.bars, bar)
		}
		return f, nil
	}

	return frame{}, fmt.Errorf("unknown channel %q", channel)
}

// decodeTicker maps one tickers row to a Tick. Volume carries the rolling
// 24h volume; the aggregator turns its deltas into per-bar volume.
func decodeTicker(row gjson.Result, now time.Time) (model.Tick, error) {
	price, err := parseFloat(row.Get("last"))
	if err != nil {
		return model.Tick{}, fmt.Errorf("last: %w", err)
	}
	vol, err := parseFloat(row.Get("vol24h"))
	if err != nil {
		return model.Tick{}, fmt.Errorf("vol24h: %w", err)
	}
	ts, err := parseMillis(row.Get("ts"))
	if err != nil {
		return model.Tick{}, fmt.Errorf("ts: %w", err)
	}
	return model.Tick{
		Price:   price,
		Volume:  vol,
		ExchTS:  ts,
		LocalTS: now,
	}, nil
}

// decodeCandle maps one candle row [ts, o, h, l, c, vol, ...] to a Bar. The
// optional confirm flag at index 8 marks the candle as closed.
func decodeCandle(row gjson.Result, tf time.Duration) (model.Bar, error) {
	cols := row.Array()
	if len(cols) < 6 {
		return model.Bar{}, fmt.Errorf("short candle row: %d columns", len(cols))
	}

	openTime, err := parseMillis(cols[0])
	if err != nil {
		return model.Bar{}, fmt.Errorf("ts: %w", err)
	}

	var vals [5]float64
	for i := 0; i < 5; i++ {
		v, err := parseFloat(cols[i+1])
		if err != nil {
			return model.Bar{}, fmt.Errorf("column %d: %w", i+1, err)
		}
		vals[i] = v
	}

	complete := false
	if len(cols) > 8 {
		complete = cols[8].String() == "1"
	}

	return model.Bar{
		OpenTime:  openTime,
		CloseTime: openTime.Add(tf),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
		Complete:  complete,
	}, nil
}
