// Package command forwards operator text to the rover controller.
package command

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/banshee-data/rovermap/internal/monitoring"
)

// QuitCommand ends the session instead of being transmitted. It is matched
// case-insensitively after trimming.
const QuitCommand = "quit"

// ErrWriteFailed wraps every failed or short transport write.
var ErrWriteFailed = errors.New("failed to write command to serial port")

// Outcome describes what Send did with a command.
type Outcome int

const (
	// OutcomeSkipped means the command was blank and nothing was written.
	OutcomeSkipped Outcome = iota
	// OutcomeSent means the command was written with a trailing newline.
	OutcomeSent
	// OutcomeQuit means the caller should end the session. Nothing was
	// written and the transport is left open.
	OutcomeQuit
	// OutcomeFailed means the write failed; the error wraps ErrWriteFailed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSent:
		return "sent"
	case OutcomeQuit:
		return "quit"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Recorder receives every command that reached the transport, successfully
// or not. Blank and quit commands are not recorded.
type Recorder interface {
	RecordCommand(text string, outcome Outcome, sendErr error) error
}

// Channel writes commands to the controller. Sends are serialised so two
// callers (stdin and HTTP) never interleave bytes on the wire.
type Channel struct {
	mu       sync.Mutex
	w        io.Writer
	recorder Recorder
	logf     func(format string, v ...interface{})
}

// NewChannel returns a Channel writing to w. recorder may be nil.
func NewChannel(w io.Writer, recorder Recorder) *Channel {
	return &Channel{w: w, recorder: recorder, logf: monitoring.Component("command")}
}

// Send trims text and either skips it, reports quit, or writes it followed
// by a single newline. A write failure is returned as a recoverable error.
func (c *Channel) Send(text string) (Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return OutcomeSkipped, nil
	}
	if strings.EqualFold(text, QuitCommand) {
		return OutcomeQuit, nil
	}

	outcome, err := c.write(text)
	if c.recorder != nil {
		if recErr := c.recorder.RecordCommand(text, outcome, err); recErr != nil {
			c.logf("failed to record command %q: %v", text, recErr)
		}
	}
	return outcome, err
}

func (c *Channel) write(text string) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload := []byte(text + "\n")
	n, err := c.w.Write(payload)
	if err != nil {
		c.logf("send %q: %v", text, err)
		return OutcomeFailed, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if n != len(payload) {
		c.logf("send %q: short write %d/%d bytes", text, n, len(payload))
		return OutcomeFailed, fmt.Errorf("%w: wrote %d of %d bytes", ErrWriteFailed, n, len(payload))
	}
	return OutcomeSent, nil
}
