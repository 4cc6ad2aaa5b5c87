package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/provisionwatch/internal/store"
)

// handleSSE streams the status of one install via Server-Sent Events.
//
// The current status is sent first, followed by every change. The stream
// ends after a terminal status. Writes use deadlines so a stalled client
// cannot keep the handler alive past shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// subscribe before reading current state so no transition is missed
	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	inst, ok := s.store.Get(id)
	if !ok {
		http.Error(w, "Unknown install", http.StatusNotFound)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(inst store.Install) error {
		data, err := json.Marshal(statusResponse(inst))
		if err != nil {
			return err
		}
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Debug("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if err := writeAndFlush(inst); err != nil || isTerminal(inst) {
		return
	}

	for {
		select {
		case update, ok := <-ch:
			if !ok {
				return
			}
			if update.ID != id {
				continue
			}
			if err := writeAndFlush(update); err != nil || isTerminal(update) {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown
			return
		}
	}
}

// handleWS streams the status of one install over a WebSocket.
//
// Messages are StatusResponse JSON objects. The server closes the connection
// after a terminal status.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	inst, ok := s.store.Get(id)
	if !ok {
		http.Error(w, "Unknown install", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "install_id", id, "error", err.Error())
		return
	}
	defer conn.Close()

	// drain client frames so close and ping control messages are handled
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(inst store.Install) error {
		if err := conn.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
			return err
		}
		return conn.WriteJSON(statusResponse(inst))
	}
	closeNormal := func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "install finished")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}

	if err := send(inst); err != nil {
		return
	}
	if isTerminal(inst) {
		closeNormal()
		return
	}

	for {
		select {
		case update, ok := <-ch:
			if !ok {
				return
			}
			if update.ID != id {
				continue
			}
			if err := send(update); err != nil {
				s.logger.Debug("websocket write failed", "install_id", id, "error", err.Error())
				return
			}
			if isTerminal(update) {
				closeNormal()
				return
			}

		case <-clientGone:
			return

		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}
