package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/rovermap/internal/command"
	"github.com/banshee-data/rovermap/internal/db"
	"github.com/banshee-data/rovermap/internal/history"
	"github.com/banshee-data/rovermap/internal/monitoring"
	"github.com/banshee-data/rovermap/internal/pose"
	"github.com/banshee-data/rovermap/internal/render"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultStreamInterval is how often the websocket checks for a new status.
const DefaultStreamInterval = 100 * time.Millisecond

// StateSource is the read side of the tracker.
type StateSource interface {
	Status() pose.Status
	Snapshot() history.Snapshot
}

// CommandSender forwards operator text to the rover.
type CommandSender interface {
	Send(text string) (command.Outcome, error)
}

// AuditLog reads back recorded sessions and their commands.
type AuditLog interface {
	RecentCommands(limit int) ([]db.CommandRecord, error)
	RecentSessions(limit int) ([]db.Session, error)
	GetSession(id string) (*db.Session, error)
}

type Server struct {
	state StateSource
	cmds  CommandSender
	log   AuditLog
	view  render.View

	streamInterval time.Duration
	upgrader       websocket.Upgrader
}

// NewServer wires the handlers. log may be nil when no database is open.
func NewServer(state StateSource, cmds CommandSender, log AuditLog, view render.View) *Server {
	return &Server{
		state:          state,
		cmds:           cmds,
		log:            log,
		view:           view,
		streamInterval: DefaultStreamInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // the map is served to the local network
			},
		},
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack passes through to the underlying writer for websocket upgrades.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the
// underlying connection.
func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/observations", s.showObservations)
	mux.HandleFunc("/api/command", s.sendCommandHandler)
	mux.HandleFunc("/api/commands", s.listCommands)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/", s.showSession)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/api/ws", s.streamStatus)
	mux.HandleFunc("/map.png", s.mapPNG)
	mux.HandleFunc("/map", s.mapHTML)
	return mux
}
