package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/rovermap/internal/command"
	"github.com/banshee-data/rovermap/internal/monitoring"
	"github.com/banshee-data/rovermap/internal/pose"
)

const wsWriteWait = 5 * time.Second

// StreamMessage is one frame sent on /api/ws.
type StreamMessage struct {
	Type    string           `json:"type"` // "status" or "command"
	Status  *pose.Status     `json:"status,omitempty"`
	Command *CommandResponse `json:"command,omitempty"`
}

// streamStatus pushes the status whenever it changes and accepts
// {"command": "..."} frames from the client.
func (s *Server) streamStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("ws: upgrade error: %v", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(m StreamMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(m)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var req CommandRequest
			if err := conn.ReadJSON(&req); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					monitoring.Logf("ws: read error: %v", err)
				}
				return
			}
			outcome, err := s.cmds.Send(req.Command)
			resp := CommandResponse{Outcome: outcome.String(), Error: errString(err)}
			if outcome == command.OutcomeQuit {
				resp.Error = "quit is not accepted over the network"
			}
			if err := write(StreamMessage{Type: "command", Command: &resp}); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	var lastSent time.Time
	first := true
	for {
		st := s.state.Status()
		if first || !st.UpdatedAt.Equal(lastSent) {
			if err := write(StreamMessage{Type: "status", Status: &st}); err != nil {
				return
			}
			lastSent = st.UpdatedAt
			first = false
		}

		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}
