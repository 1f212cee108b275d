// Package tracker runs the fixed-period control loop that turns queued
// telemetry lines into pose updates, observation records and a published
// status snapshot.
package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rovermap/internal/history"
	"github.com/banshee-data/rovermap/internal/monitoring"
	"github.com/banshee-data/rovermap/internal/pose"
	"github.com/banshee-data/rovermap/internal/serialmux"
	"github.com/banshee-data/rovermap/internal/telemetry"
	"github.com/banshee-data/rovermap/internal/timeutil"
	"github.com/banshee-data/rovermap/internal/units"
)

const (
	// DefaultSpeed is the rover's nominal straight-line speed, 18.3 in/s.
	DefaultSpeed = 18.3 * units.CMPerInch
	// DefaultTickPeriod gives a ~33 Hz update rate.
	DefaultTickPeriod = 30 * time.Millisecond
	// DefaultQueueSize bounds the line queue between reader and loop.
	DefaultQueueSize = 1024
)

// Options configures a Tracker. Zero values take the defaults.
type Options struct {
	Speed      float64 // cm/s
	TickPeriod time.Duration
	HistoryCap int
	QueueSize  int
}

// Observer is called with each published status, on the loop goroutine.
// It must not block.
type Observer func(pose.Status)

// Tracker owns the estimator, the emitter and the inbound queue. Only the
// loop goroutine touches the estimator and emitter; other goroutines read
// the atomically published copies.
type Tracker struct {
	opts  Options
	clock timeutil.Clock
	logf  func(format string, v ...interface{})

	queue   chan serialmux.Item
	est     *pose.Estimator
	emitter *history.Emitter
	lastErr string

	status   atomic.Pointer[pose.Status]
	snapshot atomic.Pointer[history.Snapshot]

	observerMu sync.Mutex
	observers  []Observer
}

// New returns a Tracker with the estimator idle at the origin.
func New(opts Options, clock timeutil.Clock) *Tracker {
	if opts.Speed <= 0 {
		opts.Speed = DefaultSpeed
	}
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = DefaultTickPeriod
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = history.DefaultCap
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	t := &Tracker{
		opts:    opts,
		clock:   clock,
		logf:    monitoring.Component("tracker"),
		queue:   make(chan serialmux.Item, opts.QueueSize),
		est:     pose.New(opts.Speed, clock.Now()),
		emitter: history.NewEmitter(opts.HistoryCap),
	}
	t.publish()
	return t
}

// Inbox is the producer end of the queue, handed to the line source.
func (t *Tracker) Inbox() chan<- serialmux.Item { return t.queue }

// Options returns the effective options.
func (t *Tracker) Options() Options { return t.opts }

// Observe registers fn for every subsequent status publish.
func (t *Tracker) Observe(fn Observer) {
	t.observerMu.Lock()
	defer t.observerMu.Unlock()
	t.observers = append(t.observers, fn)
}

// Status returns the latest published status.
func (t *Tracker) Status() pose.Status {
	return *t.status.Load()
}

// Snapshot returns the latest published observation history. The slices
// are shared between callers and must not be modified.
func (t *Tracker) Snapshot() history.Snapshot {
	return *t.snapshot.Load()
}

// Run ticks until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := t.clock.NewTicker(t.opts.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			t.Step(t.clock.Now())
		}
	}
}

// Step runs one tick: integrate, drain the queue, publish.
func (t *Tracker) Step(now time.Time) {
	t.emitter.AddTrail(t.est.Integrate(now))
	t.drain(now)
	t.publish()
}

// drain applies every queued item without blocking. An error marker is
// recorded and ends the drain for this tick; lines behind it wait for the
// next one.
func (t *Tracker) drain(now time.Time) {
	for {
		select {
		case it := <-t.queue:
			if it.Err != nil {
				t.lastErr = it.Err.Error()
				t.logf("serial error: %v", it.Err)
				return
			}
			t.handleLine(it.Line, now)
		default:
			return
		}
	}
}

// handleLine applies one raw line. Any line arriving means the link is up
// again, so a recorded transport error is cleared.
func (t *Tracker) handleLine(line string, now time.Time) {
	t.lastErr = ""
	ev, ok := telemetry.Decode(line)
	if !ok {
		return
	}

	tr := t.est.Apply(ev, now)
	switch {
	case tr.Started:
		p := t.est.Pose()
		t.logf("drive start at (%.1f, %.1f)", p.Position.X, p.Position.Y)
	case tr.Turned:
		t.logf("%s: heading %.0f°", tr.Kind, units.HeadingDegrees(t.est.Pose().Heading))
	}
	if tr.Stopped {
		em := t.emitter.EmitStop(t.est.Pose(), t.est.Sensors(), now)
		if em.Obstacle != nil {
			t.logf("obstacle at (%.1f, %.1f) range %.1fcm", em.Obstacle.X, em.Obstacle.Y, em.Obstacle.RangeCM)
		}
	}
}

func (t *Tracker) publish() {
	st := t.est.Status(t.emitter.Obstacles())
	st.TempLabels = t.emitter.Temps()
	st.TrailSegments = t.emitter.TrailLen()
	st.LastError = t.lastErr
	t.status.Store(&st)

	if prev := t.snapshot.Load(); prev == nil || prev.Version != t.emitter.Version() {
		snap := t.emitter.Snapshot()
		t.snapshot.Store(&snap)
	}

	t.observerMu.Lock()
	obs := t.observers
	t.observerMu.Unlock()
	for _, fn := range obs {
		fn(st)
	}
}
