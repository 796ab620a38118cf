package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/voicereader/speakd/internal/auth"
	"github.com/voicereader/speakd/internal/protocol"
)

const (
	closeAuthFailed    = 4401
	closeJobNotFound   = 4404
	wsWriteDeadline    = 10 * time.Second
)

// handleStream upgrades to a WebSocket and pushes one job's events in
// order until a terminal frame is sent, then closes. Auth happens before
// Subscribe, so a failed auth is closed with 4401 and never leaks whether
// the job exists; an authenticated request for an unknown job is upgraded
// and then closed with 4404.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	ok, negotiated := auth.CheckWebSocket(r, s.token)
	if !ok {
		conn, upgradeErr := s.upgrader.Upgrade(w, r, nil)
		if upgradeErr != nil {
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeAuthFailed, "unauthorized"), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	bundle := s.runtime.Bundle()
	ch, history, found := bundle.Jobs.Subscribe(jobID)
	if !found {
		conn, upgradeErr := s.upgrader.Upgrade(w, r, nil)
		if upgradeErr != nil {
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeJobNotFound, "unknown job_id"), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	var responseHeader http.Header
	if negotiated != "" {
		responseHeader = http.Header{"Sec-WebSocket-Protocol": []string{negotiated}}
	}
	conn, err := s.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		bundle.Jobs.Unsubscribe(jobID, ch)
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.WSConnections.Inc()
		defer s.metrics.WSConnections.Dec()
	}

	go discardInbound(conn)

	for _, event := range history {
		if !s.writeEvent(conn, event) {
			bundle.Jobs.Unsubscribe(jobID, ch)
			return
		}
		if isTerminalFrame(event) {
			bundle.Jobs.Unsubscribe(jobID, ch)
			s.closeNormally(conn)
			return
		}
	}

	for event := range ch {
		if !s.writeEvent(conn, event) {
			bundle.Jobs.Unsubscribe(jobID, ch)
			return
		}
		if isTerminalFrame(event) {
			bundle.Jobs.Unsubscribe(jobID, ch)
			s.closeNormally(conn)
			return
		}
	}
	// Channel closed without a terminal frame: the subscriber was dropped
	// after its queue overflowed, so there is nothing further to deliver.
	bundle.Jobs.Unsubscribe(jobID, ch)
}

func (s *Server) writeEvent(conn *websocket.Conn, event any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
	if err := conn.WriteJSON(event); err != nil {
		if s.metrics != nil {
			s.metrics.WSWriteErrors.WithLabelValues("write_json").Inc()
		}
		return false
	}
	if s.metrics != nil {
		s.metrics.WSMessages.WithLabelValues(eventType(event)).Inc()
	}
	return true
}

func (s *Server) closeNormally(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

// discardInbound reads and drops any client frames so the connection's read
// deadline logic (and eventual close detection) keeps working; this stream
// is server-push only and never expects client messages.
func discardInbound(conn *websocket.Conn) {
	conn.SetReadLimit(1024)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func isTerminalFrame(event any) bool {
	switch v := event.(type) {
	case protocol.JobStarted:
		return v.Type.IsTerminal()
	case protocol.AudioChunk:
		return v.Type.IsTerminal()
	case protocol.TerminalEvent:
		return v.Type.IsTerminal()
	default:
		return false
	}
}

func eventType(event any) string {
	switch v := event.(type) {
	case protocol.JobStarted:
		return string(v.Type)
	case protocol.AudioChunk:
		return string(v.Type)
	case protocol.TerminalEvent:
		return string(v.Type)
	default:
		return "unknown"
	}
}
