package serialmux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/banshee-data/rovermap/internal/monitoring"
	"github.com/banshee-data/rovermap/internal/timeutil"
)

// maxLineBytes caps a single telemetry frame. Real lines are a few dozen
// bytes; longer runs are link noise and are dropped.
const maxLineBytes = 64 * 1024

// Item is one entry on the tracker's queue: a raw line or a transport error
// marker.
type Item struct {
	Line string
	Err  error
	At   time.Time
}

// SourceOptions configures a Source.
type SourceOptions struct {
	// Opener reopens the port after a read error. Without it the Source
	// stops at the first error.
	Opener Opener
	// ReconnectDelay is the wait before each reopen attempt. Zero disables
	// reconnecting.
	ReconnectDelay time.Duration
	Clock          timeutil.Clock
}

// Source reads newline-terminated lines from the Mux's port and pushes them,
// in arrival order, onto out. It blocks only itself: when out is full the
// reader waits, the consumer never does.
type Source struct {
	mux  *Mux
	out  chan<- Item
	opts SourceOptions
	logf func(format string, v ...interface{})
}

// NewSource creates a Source feeding out, which is owned by the consumer.
func NewSource(mux *Mux, out chan<- Item, opts SourceOptions) *Source {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Source{mux: mux, out: out, opts: opts, logf: monitoring.Component("source")}
}

func (s *Source) reconnecting() bool {
	return s.opts.Opener != nil && s.opts.ReconnectDelay > 0
}

// Run reads until ctx is cancelled or, without reconnecting, until the first
// transport error. Every transport error is also pushed as an Item.
func (s *Source) Run(ctx context.Context) error {
	if s.mux.Port() == nil {
		if err := s.reopen(ctx); err != nil {
			return ignoreClosed(err)
		}
	}

	for {
		err := s.monitor(ctx, s.mux.Port())
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.mux.isClosing() {
			return nil
		}
		if err == nil {
			err = io.ErrUnexpectedEOF
		}

		s.logf("serial read error: %v", err)
		if !s.push(ctx, Item{Err: err, At: s.opts.Clock.Now()}) {
			return ctx.Err()
		}
		if !s.reconnecting() {
			return err
		}
		if err := s.reopen(ctx); err != nil {
			return ignoreClosed(err)
		}
	}
}

func ignoreClosed(err error) error {
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// reopen retries the Opener every ReconnectDelay until it succeeds or ctx
// ends. Each failure is reported on the queue.
func (s *Source) reopen(ctx context.Context) error {
	if s.opts.Opener == nil {
		return fmt.Errorf("no serial port open and no opener configured")
	}
	for attempt := 1; ; attempt++ {
		if attempt > 1 || s.mux.Port() != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.opts.Clock.After(s.opts.ReconnectDelay):
			}
		}

		port, err := s.opts.Opener()
		if err == nil {
			if err := s.mux.Swap(port); err != nil {
				return err
			}
			s.logf("serial port opened (attempt %d)", attempt)
			return nil
		}

		s.logf("serial open attempt %d failed: %v", attempt, err)
		if !s.push(ctx, Item{Err: err, At: s.opts.Clock.Now()}) {
			return ctx.Err()
		}
		if !s.reconnecting() {
			return err
		}
	}
}

func (s *Source) push(ctx context.Context, it Item) bool {
	select {
	case s.out <- it:
		return true
	case <-ctx.Done():
		return false
	}
}

// errLineTooLong marks a frame that overran maxLineBytes before its newline.
var errLineTooLong = errors.New("line exceeds maximum length")

// monitor reads one port until it fails. The blocking read runs on its own
// goroutine so cancellation is observed even while a read is in progress;
// that goroutine is abandoned, not joined, once ctx ends.
func (s *Source) monitor(ctx context.Context, port SerialPorter) error {
	r := bufio.NewReaderSize(&patientReader{ctx: ctx, r: port}, 4096)

	lineChan := make(chan string)
	readErrChan := make(chan error, 1)

	go func() {
		defer close(lineChan)
		for {
			line, err := readLine(r)
			if errors.Is(err, errLineTooLong) {
				s.logf("dropped line over %d bytes", maxLineBytes)
				continue
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				readErrChan <- err
				return
			}
			select {
			case lineChan <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-readErrChan:
					return err
				default:
					return ctx.Err()
				}
			}
			line = strings.TrimSpace(strings.ToValidUTF8(line, "�"))
			if line == "" {
				continue
			}
			s.mux.Publish(line)
			if !s.push(ctx, Item{Line: line, At: s.opts.Clock.Now()}) {
				return ctx.Err()
			}
		}
	}
}

// readLine returns the next line without its newline. A frame longer than
// maxLineBytes, terminator included, is consumed through its newline and reported as
// errLineTooLong, leaving r at the start of the following line. A final
// unterminated line is returned before io.EOF.
func readLine(r *bufio.Reader) (string, error) {
	var buf []byte
	dropping := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !dropping {
			if len(buf)+len(chunk) > maxLineBytes {
				dropping, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil && dropping:
			return "", errLineTooLong
		case err == nil:
			return strings.TrimRight(string(buf), "\r\n"), nil
		case errors.Is(err, io.EOF) && len(buf) > 0:
			return strings.TrimRight(string(buf), "\r"), nil
		default:
			return "", err
		}
	}
}

// patientReader turns read timeouts (zero bytes, nil error) into further
// reads, so bufio does not give up with io.ErrNoProgress on a quiet link.
type patientReader struct {
	ctx context.Context
	r   io.Reader
}

func (p *patientReader) Read(b []byte) (int, error) {
	for {
		if err := p.ctx.Err(); err != nil {
			return 0, err
		}
		n, err := p.r.Read(b)
		if n > 0 || err != nil {
			return n, err
		}
	}
}
