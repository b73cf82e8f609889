package model

import "time"

// Tick represents a single ticker update from the exchange feed.
// ExchTS is the server-side timestamp carried by the frame; LocalTS is the
// receipt time, recorded so clock skew can be detected downstream.
type Tick struct {
	Price   float64   `json:"price"`
	Volume  float64   `json:"volume"` // rolling 24h volume as reported by the exchange
	ExchTS  time.Time `json:"exch_ts"`
	LocalTS time.Time `json:"local_ts"`
}
