// Package indicator provides the technical indicator library the strategy
// layer computes over completed bars. All functions are pure: they never
// mutate the input series and return ErrInsufficientData instead of
// computing over a window shorter than the requested length. The one
// exception to statelessness is Supertrend, which carries the previous
// trend value across calls for its continuation rule.
package indicator

import "errors"

// ErrInsufficientData is returned when a series is shorter than the
// lookback an indicator needs. It signals "no decision yet", not a fault.
var ErrInsufficientData = errors.New("indicator: insufficient data")
