package model

import (
	"encoding/json"
	"time"
)

// Bar is an OHLCV candle for one timeframe interval.
// OpenTime is always aligned to an exact multiple of the timeframe.
// Exactly one incomplete Bar exists at a time; once Complete is set the
// value is frozen and never mutated again.
type Bar struct {
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Complete  bool      `json:"complete"`
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}
