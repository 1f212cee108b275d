package serialmux

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ReplayPort implements SerialPorter by replaying recorded telemetry, one
// line per interval. Writes are captured so dev runs can inspect commands.
// When Loop is false the port goes quiet after the last line and reads block
// until Close.
type ReplayPort struct {
	lines    []string
	interval time.Duration
	loop     bool

	pr *io.PipeReader
	pw *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
	done    chan struct{}
}

// NewReplayPort starts replaying lines. Blank lines and lines starting with
// '#' are skipped.
func NewReplayPort(lines []string, interval time.Duration, loop bool) *ReplayPort {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	var kept []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		kept = append(kept, l)
	}

	pr, pw := io.Pipe()
	p := &ReplayPort{
		lines:    kept,
		interval: interval,
		loop:     loop,
		pr:       pr,
		pw:       pw,
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// OpenReplayFile reads a fixture file for NewReplayPort.
func OpenReplayFile(path string, interval time.Duration, loop bool) (*ReplayPort, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		lines = append(lines, scan.Text())
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	return NewReplayPort(lines, interval, loop), nil
}

func (p *ReplayPort) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		for _, line := range p.lines {
			select {
			case <-p.done:
				return
			case <-ticker.C:
			}
			if _, err := p.pw.Write([]byte(line + "\n")); err != nil {
				return
			}
		}
		if !p.loop || len(p.lines) == 0 {
			return
		}
	}
}

// Read returns replayed bytes.
func (p *ReplayPort) Read(b []byte) (int, error) {
	return p.pr.Read(b)
}

// Write records b.
func (p *ReplayPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	return p.written.Write(b)
}

// Written returns everything written so far.
func (p *ReplayPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// Close stops the replay and unblocks readers.
func (p *ReplayPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)
	p.pr.CloseWithError(ErrClosed)
	return nil
}

// DisabledPort is a no-op SerialPorter used when the rover is not attached.
// Reads block until Close and writes are discarded.
type DisabledPort struct {
	once sync.Once
	done chan struct{}
}

// NewDisabledPort returns an open DisabledPort.
func NewDisabledPort() *DisabledPort {
	return &DisabledPort{done: make(chan struct{})}
}

func (d *DisabledPort) Read([]byte) (int, error) {
	<-d.done
	return 0, ErrClosed
}

func (d *DisabledPort) Write(b []byte) (int, error) { return len(b), nil }

func (d *DisabledPort) Close() error {
	d.once.Do(func() { close(d.done) })
	return nil
}
