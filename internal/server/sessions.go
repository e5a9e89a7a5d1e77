package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opd-ai/go-xc-watch/internal/playback"
	"github.com/opd-ai/go-xc-watch/internal/xtream"
)

// SessionCreateRequest selects what to play.
type SessionCreateRequest struct {
	Kind      string `json:"kind"`
	StreamID  int    `json:"stream_id"`
	Title     string `json:"title"`
	Extension string `json:"ext,omitempty"`
}

// SeekRequest carries the position for a seek-commit command.
type SeekRequest struct {
	Position float64 `json:"position"`
}

// RateRequest carries the playback rate for a rate command.
type RateRequest struct {
	Rate float64 `json:"rate"`
}

// MenuRequest names the overlay menu to open; empty closes the open one.
type MenuRequest struct {
	Menu string `json:"menu"`
}

func (s *Server) sessionPolicy() playback.Policy {
	if s.playback == nil {
		return playback.Policy{}
	}
	return playback.Policy{
		MaxRetries:        s.playback.MaxRetries,
		RetryBackoff:      s.playback.RetryBackoff,
		ControlsHideDelay: s.playback.ControlsHideDelay,
		SkipInterval:      s.playback.SkipInterval,
	}
}

// currentSession returns the active playback session, or nil.
func (s *Server) currentSession() *playback.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// exitCurrentSession tears down the active session, if any, and waits for
// its resources to be released so the playback slot is free again.
func (s *Server) exitCurrentSession() {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	if sess == nil {
		return
	}
	sess.Exit()
	<-sess.Done()
}

// handleSessionCreate resolves the selected item into a stream target and
// starts a playback session on the connected player. Only one session runs
// at a time: an existing one is torn down first.
func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	svc := s.activeCatalog()
	if svc == nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Not logged in", nil)
		return
	}

	var req SessionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	target, err := svc.Target(xtream.Kind(req.Kind), req.StreamID, req.Title, req.Extension)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid playback target", err)
		return
	}

	s.exitCurrentSession()

	sessionID := s.hub.nextSession()
	sess, err := playback.NewSession(target, s.hub, s.slot, s.sessionPolicy(), s.hub.broadcastSnapshot, s.logger)
	if err != nil {
		s.writeErrorResponse(w, http.StatusConflict, "Failed to start playback", err)
		return
	}

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	s.logger.Info("Playback session created",
		"session_id", sessionID,
		"kind", target.Kind,
		"title", target.Title)

	s.writeJSONResponse(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    sess.Snapshot(),
		Message: "Playback started",
	})
}

// handleSessionGet returns the current session snapshot.
func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession()
	if sess == nil {
		s.writeErrorResponse(w, http.StatusNotFound, "No active session", nil)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    sess.Snapshot(),
	})
}

// handleSessionCommand feeds one user intent into the session. Commands are
// applied asynchronously; the returned snapshot may not yet reflect them.
func (s *Server) handleSessionCommand(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession()
	if sess == nil {
		s.writeErrorResponse(w, http.StatusNotFound, "No active session", nil)
		return
	}

	command := chi.URLParam(r, "command")
	switch command {
	case "play":
		// Compare against the play intent, not the derived state, so the
		// command still applies while buffering or recovering.
		if !sess.Snapshot().Playing {
			sess.TogglePlay()
		}
	case "pause":
		if sess.Snapshot().Playing {
			sess.TogglePlay()
		}
	case "toggle-play":
		sess.TogglePlay()
	case "toggle-controls":
		sess.ToggleControls()
	case "seek-begin":
		sess.SeekBegin()
	case "seek-commit":
		var req SeekRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		sess.SeekCommit(req.Position)
	case "skip-forward":
		sess.SkipForward()
	case "skip-back":
		sess.SkipBack()
	case "rate":
		var req RateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		if req.Rate <= 0 {
			s.writeErrorResponse(w, http.StatusBadRequest, "Rate must be positive", nil)
			return
		}
		sess.SetRate(req.Rate)
	case "menu":
		var req MenuRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		switch playback.Menu(req.Menu) {
		case playback.MenuNone:
			sess.CloseMenu()
		case playback.MenuSpeed, playback.MenuSubtitles, playback.MenuQuality:
			sess.OpenMenu(playback.Menu(req.Menu))
		default:
			s.writeErrorResponse(w, http.StatusBadRequest, "Unknown menu", nil)
			return
		}
	case "retry":
		sess.Retry()
	default:
		s.writeErrorResponse(w, http.StatusBadRequest, "Unknown command", nil)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    sess.Snapshot(),
		Message: "Command accepted",
	})
}

// handleSessionDelete ends the current session. Deleting when none is
// active succeeds: exit is idempotent.
func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	s.exitCurrentSession()

	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "Session ended",
	})
}
