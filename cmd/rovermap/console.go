package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/rovermap/internal/command"
)

// errQuit is returned by readConsole when the operator typed quit.
var errQuit = errors.New("quit requested")

type commandSender interface {
	Send(text string) (command.Outcome, error)
}

// readConsole forwards each line typed on in to the rover. It returns
// errQuit on quit and nil when in reaches EOF. Send failures are reported
// on out and do not end the session.
func readConsole(in io.Reader, out io.Writer, cmds commandSender) error {
	scan := bufio.NewScanner(in)
	for scan.Scan() {
		outcome, err := cmds.Send(scan.Text())
		switch outcome {
		case command.OutcomeQuit:
			return errQuit
		case command.OutcomeFailed:
			fmt.Fprintf(out, "Send error: %v\n", err)
		}
	}
	return scan.Err()
}
