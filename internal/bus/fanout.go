// Package bus is the event distribution point: one producer, N consumers.
//
// Two delivery policies exist. Lossy fan-outs (ticks) drop the event for a
// slow consumer so it can never stall the pipeline. Reliable fan-outs
// (completed bars, signals) block until every consumer has taken the event,
// preserving receipt order end to end. Subscriber channels are closed when
// Run returns.
package bus

import (
	"context"
	"log"
	"sync"
)

// FanOut broadcasts values from a single input channel to N output channels.
type FanOut[T any] struct {
	mu      sync.RWMutex
	outputs []chan T
	bufSize int
	lossy   bool
	name    string

	// OnDrop is called when a value is dropped for a subscriber (lossy
	// fan-outs only). subscriberIdx is the 0-based index of the slow
	// consumer.
	OnDrop func(subscriberIdx int)
}

// NewLossy creates a fan-out that drops events for slow consumers.
func NewLossy[T any](name string, outputBufferSize int) *FanOut[T] {
	return &FanOut[T]{bufSize: outputBufferSize, lossy: true, name: name}
}

// NewReliable creates a fan-out that blocks on slow consumers so no event
// is ever lost.
func NewReliable[T any](name string, outputBufferSize int) *FanOut[T] {
	return &FanOut[T]{bufSize: outputBufferSize, name: name}
}

// Subscribe creates and returns a new output channel. All subscriptions
// must happen before Run starts delivering.
func (f *FanOut[T]) Subscribe() <-chan T {
	ch := make(chan T, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.mu.Unlock()
	return ch
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed.
func (f *FanOut[T]) Run(ctx context.Context, input <-chan T) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				if f.lossy {
					select {
					case ch <- v:
					default:
						if f.OnDrop != nil {
							f.OnDrop(i)
						} else {
							log.Printf("[bus] %s: output channel %d full, dropping", f.name, i)
						}
					}
					continue
				}
				select {
				case ch <- v:
				case <-ctx.Done():
					f.mu.RUnlock()
					return
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat is the (length, capacity) of one subscriber channel, used
// for saturation reporting.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns the current stats for each subscriber channel.
func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
