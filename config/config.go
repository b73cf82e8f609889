// Package config loads the engine configuration from environment
// variables, with an optional .env file for local development. Validation
// failures are fatal before any connection attempt.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Strategy selectors.
const (
	StrategyEMA      = "EMA"
	StrategyCombined = "COMBINED"
)

// Bar source selectors.
const (
	BarSourceExchange = "exchange"
	BarSourceTicks    = "ticks"
)

// okxBarChannels maps supported timeframes to the exchange candle channel
// suffix.
var okxBarChannels = map[time.Duration]string{
	time.Minute:      "1m",
	3 * time.Minute:  "3m",
	5 * time.Minute:  "5m",
	15 * time.Minute: "15m",
	30 * time.Minute: "30m",
	time.Hour:        "1H",
	2 * time.Hour:    "2H",
	4 * time.Hour:    "4H",
}

// Config holds all application configuration loaded from the environment.
type Config struct {
	// Feed
	WSURL     string
	Symbol    string
	Timeframe time.Duration

	PingInterval time.Duration
	PongTimeout  time.Duration

	ReconnectInitialDelay time.Duration
	ReconnectMultiplier   float64
	ReconnectMaxAttempts  int
	SkewThreshold         time.Duration

	// Strategy
	Strategy             string
	EMAShort             int
	EMALong              int
	BollingerLength      int
	BollingerDeviation   float64
	SupertrendPeriod     int
	SupertrendMultiplier float64
	FractalPeriod        int

	// History capacities
	BarHistoryCap  int
	TickHistoryCap int

	// Aggregation
	BarSource string

	// Execution
	OrderSize     float64
	Leverage      int
	MarginMode    string
	TradeCooldown time.Duration

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	MetricsAddr   string
}

// Load reads configuration from the environment, merging in a .env file
// when one is present, and validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env file")
	}

	barSource := getEnv("BAR_SOURCE", BarSourceExchange)

	cfg := &Config{
		WSURL:     getEnv("OKX_WS_URL", defaultWSURL(barSource)),
		Symbol:    getEnv("SYMBOL", "BTC-USDT-SWAP"),
		Timeframe: getDuration("TIMEFRAME", 30*time.Minute),

		PingInterval: getDuration("PING_INTERVAL", 15*time.Second),
		PongTimeout:  getDuration("PONG_TIMEOUT", 30*time.Second),

		ReconnectInitialDelay: getDuration("RECONNECT_INITIAL_DELAY", time.Second),
		ReconnectMultiplier:   getFloat("RECONNECT_MULTIPLIER", 1.5),
		ReconnectMaxAttempts:  getInt("RECONNECT_MAX_ATTEMPTS", 10),
		SkewThreshold:         getDuration("CLOCK_SKEW_THRESHOLD", 5*time.Second),

		Strategy:             getEnv("STRATEGY", StrategyCombined),
		EMAShort:             getInt("EMA_SHORT", 9),
		EMALong:              getInt("EMA_LONG", 21),
		BollingerLength:      getInt("BOLLINGER_LENGTH", 20),
		BollingerDeviation:   getFloat("BOLLINGER_DEVIATION", 2.0),
		SupertrendPeriod:     getInt("SUPERTREND_PERIOD", 10),
		SupertrendMultiplier: getFloat("SUPERTREND_MULTIPLIER", 3.0),
		FractalPeriod:        getInt("FRACTAL_PERIOD", 5),

		BarHistoryCap:  getInt("BAR_HISTORY_CAP", 200),
		TickHistoryCap: getInt("TICK_HISTORY_CAP", 1000),

		BarSource: barSource,

		OrderSize:     getFloat("ORDER_SIZE", 1),
		Leverage:      getInt("LEVERAGE", 0),
		MarginMode:    getEnv("MARGIN_MODE", "isolated"),
		TradeCooldown: getDuration("TRADE_COOLDOWN", 5*time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every required parameter and reports all problems at
// once.
func (c *Config) Validate() error {
	var errs []error

	if c.WSURL == "" {
		errs = append(errs, errors.New("OKX_WS_URL must not be empty"))
	}
	if c.Symbol == "" {
		errs = append(errs, errors.New("SYMBOL must not be empty"))
	}
	if _, ok := okxBarChannels[c.Timeframe]; !ok {
		errs = append(errs, fmt.Errorf("TIMEFRAME %s is not a supported candle interval", c.Timeframe))
	}
	if c.ReconnectInitialDelay <= 0 {
		errs = append(errs, errors.New("RECONNECT_INITIAL_DELAY must be positive"))
	}
	if c.ReconnectMultiplier < 1 {
		errs = append(errs, errors.New("RECONNECT_MULTIPLIER must be at least 1"))
	}
	if c.ReconnectMaxAttempts < 1 {
		errs = append(errs, errors.New("RECONNECT_MAX_ATTEMPTS must be at least 1"))
	}
	if c.PingInterval <= 0 || c.PongTimeout <= c.PingInterval {
		errs = append(errs, errors.New("PONG_TIMEOUT must exceed a positive PING_INTERVAL"))
	}

	switch c.Strategy {
	case StrategyEMA:
		if c.EMAShort < 2 || c.EMALong <= c.EMAShort {
			errs = append(errs, fmt.Errorf("EMA periods invalid: short=%d long=%d", c.EMAShort, c.EMALong))
		}
	case StrategyCombined:
		if c.SupertrendPeriod < 2 {
			errs = append(errs, fmt.Errorf("SUPERTREND_PERIOD must be at least 2, got %d", c.SupertrendPeriod))
		}
		if c.SupertrendMultiplier <= 0 {
			errs = append(errs, errors.New("SUPERTREND_MULTIPLIER must be positive"))
		}
		if c.FractalPeriod < 3 || c.FractalPeriod%2 == 0 {
			errs = append(errs, fmt.Errorf("FRACTAL_PERIOD must be odd and at least 3, got %d", c.FractalPeriod))
		}
		if c.BollingerLength < 2 || c.BollingerDeviation <= 0 {
			errs = append(errs, fmt.Errorf("Bollinger parameters invalid: length=%d deviation=%v",
				c.BollingerLength, c.BollingerDeviation))
		}
	default:
		errs = append(errs, fmt.Errorf("STRATEGY must be %s or %s, got %q", StrategyEMA, StrategyCombined, c.Strategy))
	}

	if c.BarSource != BarSourceExchange && c.BarSource != BarSourceTicks {
		errs = append(errs, fmt.Errorf("BAR_SOURCE must be %s or %s, got %q", BarSourceExchange, BarSourceTicks, c.BarSource))
	}
	if c.BarHistoryCap < 2 || c.TickHistoryCap < 1 {
		errs = append(errs, fmt.Errorf("history capacities invalid: bars=%d ticks=%d", c.BarHistoryCap, c.TickHistoryCap))
	}
	if c.OrderSize <= 0 {
		errs = append(errs, errors.New("ORDER_SIZE must be positive"))
	}

	return errors.Join(errs...)
}

// defaultWSURL picks the endpoint that carries the channels the bar source
// needs: candle channels live on the business endpoint, the tickers channel
// on the public one. OKX_WS_URL overrides this for either mode.
func defaultWSURL(barSource string) string {
	if barSource == BarSourceTicks {
		return "wss://ws.okx.com:8443/ws/v5/public"
	}
	return "wss://ws.okx.com:8443/ws/v5/business"
}

// BarChannel returns the exchange candle channel name for the configured
// timeframe, e.g. "candle30m".
func (c *Config) BarChannel() string {
	return "candle" + okxBarChannels[c.Timeframe]
}

// TimeframeToken returns the bare timeframe suffix, e.g. "30m", used in
// pub/sub channel names.
func (c *Config) TimeframeToken() string {
	return okxBarChannels[c.Timeframe]
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s: %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
