package indicator

import "math"

// SMA returns the simple moving average of the trailing length elements.
func SMA(series []float64, length int) (float64, error) {
	if length <= 0 || len(series) < length {
		return 0, ErrInsufficientData
	}
	sum := 0.0
	for _, v := range series[len(series)-length:] {
		sum += v
	}
	return sum / float64(length), nil
}

// StdDev returns the population standard deviation of the trailing length
// elements.
func StdDev(series []float64, length int) (float64, error) {
	mean, err := SMA(series, length)
	if err != nil {
		return 0, err
	}
	variance := 0.0
	for _, v := range series[len(series)-length:] {
		d := v - mean
		variance += d * d
	}
	variance /= float64(length)
	return math.Sqrt(variance), nil
}

// EMA returns the exponential moving average with smoothing factor
// 2/(length+1), seeded by the SMA of the first length elements and then
// folded forward over the remainder of the series.
func EMA(series []float64, length int) (float64, error) {
	if length <= 0 || len(series) < length {
		return 0, ErrInsufficientData
	}

	seed := 0.0
	for _, v := range series[:length] {
		seed += v
	}
	ema := seed / float64(length)

	k := 2.0 / float64(length+1)
	for _, v := range series[length:] {
		ema = v*k + ema*(1-k)
	}
	return ema, nil
}

// Bollinger holds one Bollinger Bands computation.
type Bollinger struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// BollingerBands returns SMA ± deviation·StdDev over the trailing length
// elements.
func BollingerBands(series []float64, length int, deviation float64) (Bollinger, error) {
	mid, err := SMA(series, length)
	if err != nil {
		return Bollinger{}, err
	}
	sd, err := StdDev(series, length)
	if err != nil {
		return Bollinger{}, err
	}
	return Bollinger{
		Upper:  mid + deviation*sd,
		Middle: mid,
		Lower:  mid - deviation*sd,
	}, nil
}
