// Package redis publishes completed bars and emitted signals over Redis
// pub/sub so external observers (dashboards, paper traders) can follow the
// live stream. Delivery is fire-and-forget: the engine runs unchanged when
// Redis is down, and nothing is persisted here.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"okxsignal/internal/model"
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	Symbol    string // instrument, used in channel names
	Timeframe string // bar channel suffix, e.g. "1m"
}

// Publisher publishes bars and signals to Redis pub/sub channels.
type Publisher struct {
	client *goredis.Client

	barChannel    string
	signalChannel string

	// OnPublish observes publish latency (optional, set externally).
	OnPublish func(d time.Duration)
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{
		client:        client,
		barChannel:    fmt.Sprintf("pub:bar:%s:%s", cfg.Symbol, cfg.Timeframe),
		signalChannel: fmt.Sprintf("pub:signal:%s", cfg.Symbol),
	}, nil
}

// RunBars reads completed bars from barCh and publishes them.
// Blocks until ctx is cancelled or barCh is closed.
func (p *Publisher) RunBars(ctx context.Context, barCh <-chan model.Bar) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			p.publish(ctx, p.barChannel, bar.JSON())
		}
	}
}

// RunSignals reads emitted signals from sigCh and publishes them.
// Blocks until ctx is cancelled or sigCh is closed.
func (p *Publisher) RunSignals(ctx context.Context, sigCh <-chan model.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			p.publish(ctx, p.signalChannel, sig.JSON())
		}
	}
}

func (p *Publisher) publish(ctx context.Context, channel string, payload []byte) {
	start := time.Now()
	if err := p.client.Publish(ctx, channel, string(payload)).Err(); err != nil {
		if ctx.Err() == nil {
			log.Printf("[redis] publish %s error: %v", channel, err)
		}
		return
	}
	if p.OnPublish != nil {
		p.OnPublish(time.Since(start))
	}
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
