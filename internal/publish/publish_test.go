package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rovermap/internal/monitoring"
	"github.com/banshee-data/rovermap/internal/pose"
	"github.com/banshee-data/rovermap/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

type fakeSink struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
}

func (s *fakeSink) Publish(topic string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
	s.payloads = append(s.payloads, payload)
	return s.err
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func (s *fakeSink) last(t *testing.T) map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.payloads)
	var m map[string]any
	require.NoError(t, json.Unmarshal(s.payloads[len(s.payloads)-1], &m))
	return m
}

func TestStatusPublisher_PublishesJSON(t *testing.T) {
	sink := &fakeSink{}
	p := NewStatusPublisher(sink, "rovermap/status", 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Observe(pose.Status{X: 12.5, HeadingDeg: 90, Moving: true})
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, time.Millisecond)

	got := sink.last(t)
	assert.Equal(t, 12.5, got["x_cm"])
	assert.Equal(t, true, got["moving"])
	assert.Equal(t, "rovermap/status", sink.topics[0])
}

func TestStatusPublisher_ThrottlesAndCoalesces(t *testing.T) {
	sink := &fakeSink{}
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	p := NewStatusPublisher(sink, "t", time.Second, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Observe(pose.Status{X: 1})
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, time.Millisecond)

	// Within the interval: held back, and only the newest survives.
	p.Observe(pose.Status{X: 2})
	p.Observe(pose.Status{X: 3})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, sink.count())

	require.Eventually(t, func() bool {
		clock.Advance(100 * time.Millisecond)
		return sink.count() == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, 3.0, sink.last(t)["x_cm"])
}

func TestStatusPublisher_SinkErrorDoesNotStop(t *testing.T) {
	sink := &fakeSink{err: errors.New("broker down")}
	p := NewStatusPublisher(sink, "t", 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	p.Observe(pose.Status{X: 1})
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, time.Millisecond)
	p.Observe(pose.Status{X: 2})
	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStatusPublisher_ObserveNeverBlocks(t *testing.T) {
	p := NewStatusPublisher(&fakeSink{}, "t", 0, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			p.Observe(pose.Status{X: float64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Observe blocked without a running publisher")
	}
}
