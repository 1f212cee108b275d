// Package publish pushes tracker status snapshots to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/rovermap/internal/monitoring"
	"github.com/banshee-data/rovermap/internal/pose"
	"github.com/banshee-data/rovermap/internal/timeutil"
)

// Sink delivers one payload to a topic.
type Sink interface {
	Publish(topic string, payload []byte) error
}

// StatusPublisher forwards the latest status to a Sink at most once per
// interval. Intermediate statuses are coalesced; only the newest is sent.
type StatusPublisher struct {
	sink     Sink
	topic    string
	interval time.Duration
	clock    timeutil.Clock
	logf     func(format string, v ...interface{})

	mu      sync.Mutex
	pending *pose.Status
	notify  chan struct{}
}

// NewStatusPublisher returns a publisher for topic. A zero interval sends
// every status.
func NewStatusPublisher(sink Sink, topic string, interval time.Duration, clock timeutil.Clock) *StatusPublisher {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &StatusPublisher{
		sink:     sink,
		topic:    topic,
		interval: interval,
		clock:    clock,
		logf:     monitoring.Component("mqtt"),
		notify:   make(chan struct{}, 1),
	}
}

// Observe records st as the next status to send. It never blocks, so it is
// safe to call from the control loop.
func (p *StatusPublisher) Observe(st pose.Status) {
	p.mu.Lock()
	p.pending = &st
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *StatusPublisher) take() *pose.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.pending
	p.pending = nil
	return st
}

// Run publishes until ctx is cancelled. Publish failures are logged and the
// next status is tried as usual.
func (p *StatusPublisher) Run(ctx context.Context) error {
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.notify:
		}

		if !last.IsZero() && p.interval > 0 {
			if wait := p.interval - p.clock.Since(last); wait > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-p.clock.After(wait):
				}
			}
		}

		st := p.take()
		if st == nil {
			continue
		}
		last = p.clock.Now()
		if err := p.publish(*st); err != nil {
			p.logf("publish to %s failed: %v", p.topic, err)
		}
	}
}

func (p *StatusPublisher) publish(st pose.Status) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	return p.sink.Publish(p.topic, payload)
}
