package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/rovermap/internal/command"
	"github.com/banshee-data/rovermap/internal/db"
	"github.com/banshee-data/rovermap/internal/httputil"
	"github.com/banshee-data/rovermap/internal/monitoring"
	"github.com/banshee-data/rovermap/internal/pose"
	"github.com/banshee-data/rovermap/internal/render"
	"github.com/banshee-data/rovermap/internal/version"
)

const (
	defaultCommandLimit = 50
	maxCommandLimit     = 500
	maxCommandBody      = 4 << 10
)

// CommandRequest is the JSON body accepted by POST /api/command.
type CommandRequest struct {
	Command string `json:"command"`
}

// CommandResponse reports what happened to a command.
type CommandResponse struct {
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	st := s.state.Status()
	httputil.WriteJSONOK(w, struct {
		pose.Status
		Text string `json:"text"`
	}{st, st.String()})
}

func (s *Server) showObservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.state.Snapshot())
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}

	text, err := readCommand(w, r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	outcome, err := s.cmds.Send(text)
	switch outcome {
	case command.OutcomeSkipped:
		w.WriteHeader(http.StatusNoContent)
	case command.OutcomeQuit:
		httputil.Conflict(w, "quit ends the console session and is not accepted over HTTP")
	case command.OutcomeFailed:
		httputil.WriteJSON(w, http.StatusBadGateway, CommandResponse{Outcome: outcome.String(), Error: errString(err)})
	default:
		httputil.WriteJSONOK(w, CommandResponse{Outcome: outcome.String()})
	}
}

// readCommand accepts either a JSON body or a form field named "command".
func readCommand(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCommandBody)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req CommandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", errors.New("invalid JSON body")
		}
		return req.Command, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", errors.New("invalid form body")
	}
	return r.FormValue("command"), nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// queryLimit reads the optional ?limit= parameter, capped at maxCommandLimit.
// On a bad value it writes the 400 itself and returns false.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultCommandLimit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		httputil.BadRequest(w, "limit must be a positive integer")
		return 0, false
	}
	return min(n, maxCommandLimit), true
}

func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	records := []db.CommandRecord{}
	if s.log != nil {
		got, err := s.log.RecentCommands(limit)
		if err != nil {
			monitoring.Logf("list commands: %v", err)
			httputil.InternalServerError(w, "failed to list commands")
			return
		}
		if got != nil {
			records = got
		}
	}
	httputil.WriteJSONOK(w, records)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	sessions := []db.Session{}
	if s.log != nil {
		got, err := s.log.RecentSessions(limit)
		if err != nil {
			monitoring.Logf("list sessions: %v", err)
			httputil.InternalServerError(w, "failed to list sessions")
			return
		}
		if got != nil {
			sessions = got
		}
	}
	httputil.WriteJSONOK(w, sessions)
}

// showSession serves GET /api/sessions/<id>.
func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if id == "" || strings.Contains(id, "/") {
		httputil.BadRequest(w, "expected /api/sessions/<id>")
		return
	}
	if s.log == nil {
		httputil.NotFound(w, "no session log")
		return
	}

	sess, err := s.log.GetSession(id)
	switch {
	case errors.Is(err, db.ErrSessionNotFound):
		httputil.NotFound(w, "session not found")
	case err != nil:
		monitoring.Logf("get session %s: %v", id, err)
		httputil.InternalServerError(w, "failed to load session")
	default:
		httputil.WriteJSONOK(w, sess)
	}
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}

func (s *Server) mapPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	var buf bytes.Buffer
	if err := render.PlotPNG(&buf, s.state.Snapshot(), s.state.Status(), s.view); err != nil {
		monitoring.Logf("render map.png: %v", err)
		httputil.InternalServerError(w, "failed to render map")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (s *Server) mapHTML(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	var buf bytes.Buffer
	if err := render.ChartHTML(&buf, s.state.Snapshot(), s.state.Status(), s.view); err != nil {
		monitoring.Logf("render map: %v", err)
		httputil.InternalServerError(w, "failed to render map")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
