// Package serialmux owns the rover's serial link. A Mux wraps the current
// port, serialises writes to it and fans raw lines out to subscribers such as
// the debug live tail. A Source reads lines from the port and feeds the
// tracker's queue.
package serialmux

import (
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"tailscale.com/tsweb"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("serial port closed")

// Mux is a serial port multiplexer: one port, many line subscribers, and a
// single serialised writer.
type Mux struct {
	portMu  sync.Mutex
	port    SerialPorter
	closing bool

	subscriberMu sync.Mutex
	subscribers  map[string]chan string
}

// NewMux creates a Mux over an already opened port. port may be nil when the
// first open is left to a reconnecting Source.
func NewMux(port SerialPorter) *Mux {
	return &Mux{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel for receiving raw lines. The channel ID is
// used to identify the unique channel when unsubscribing.
func (m *Mux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if m.isClosing() {
		close(ch)
		return id, ch
	}
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (m *Mux) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Publish hands a line to every subscriber without blocking.
func (m *Mux) Publish(line string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- line:
		default:
			// if the channel is full/blocking skip so as not to block the reader
		}
	}
}

// Port returns the current port, or nil.
func (m *Mux) Port() SerialPorter {
	m.portMu.Lock()
	defer m.portMu.Unlock()
	return m.port
}

// Swap installs a freshly opened port and closes the previous one. It fails
// once the mux is closed, in which case the new port is closed too.
func (m *Mux) Swap(port SerialPorter) error {
	m.portMu.Lock()
	defer m.portMu.Unlock()
	if m.closing {
		port.Close()
		return ErrClosed
	}
	old := m.port
	m.port = port
	if old != nil && old != port {
		old.Close()
	}
	return nil
}

// Write sends p to the current port. Concurrent writers never interleave.
func (m *Mux) Write(p []byte) (int, error) {
	m.portMu.Lock()
	defer m.portMu.Unlock()
	if m.closing {
		return 0, ErrClosed
	}
	if m.port == nil {
		return 0, fmt.Errorf("no serial port open")
	}
	return m.port.Write(p)
}

func (m *Mux) isClosing() bool {
	m.portMu.Lock()
	defer m.portMu.Unlock()
	return m.closing
}

// Close closes all subscribed channels and the serial port. It is safe to
// call more than once.
func (m *Mux) Close() error {
	m.portMu.Lock()
	if m.closing {
		m.portMu.Unlock()
		return nil
	}
	m.closing = true
	port := m.port
	m.portMu.Unlock()

	m.subscriberMu.Lock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.subscriberMu.Unlock()

	if port == nil {
		return nil
	}
	return port.Close()
}

// AttachAdminRoutes attaches the live tail of raw serial lines to the
// /debug/ pages. These routes are meant for localhost or tailnet access.
func (m *Mux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Server-Sent Events with one event per raw serial line.
	debug.HandleFunc("tail", "live tail of raw serial lines (SSE)", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
