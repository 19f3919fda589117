package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/state"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool {
		return true // the API is already CORS-open for the UI
	},
}

// handleStream upgrades to a websocket and pushes job snapshots on every
// state change until the job reaches a terminal state or the client leaves.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	initial, err := s.service.Status(id)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade for job %s failed: %v", id, err)
		return
	}
	defer conn.Close()

	// Buffered so a slow client drops intermediate updates instead of
	// blocking the pipeline's listener callback.
	updates := make(chan state.Snapshot, 16)
	err = s.service.Subscribe(id, state.ListenerFunc(func(snap state.Snapshot, _ state.Event) {
		select {
		case updates <- snap:
		default:
		}
	}))
	if err != nil {
		return
	}

	writeSnapshot := func(snap state.Snapshot) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(snap); err != nil {
			return false
		}
		return !snap.Status.IsTerminal()
	}

	if !writeSnapshot(initial) {
		return
	}

	// Reader goroutine notices the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snap := <-updates:
			if !writeSnapshot(snap) {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
