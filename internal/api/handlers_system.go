// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"time"

	"github.com/subwave-io/subwave/internal/types"
	"github.com/subwave-io/subwave/internal/version"
)

type clientRequest struct {
	ClientID string `json:"client_id"`
}

func (s *Server) handleSystemRegister(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.d.Lifecycle.Register(req.ClientID); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"registered": true,
		"clients":    s.d.Lifecycle.Clients(),
	})
}

func (s *Server) handleSystemHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.d.Lifecycle.Heartbeat(req.ClientID); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"alive": true})
}

func (s *Server) handleSystemUnregister(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	s.d.Lifecycle.Unregister(req.ClientID)
	writeJSON(w, http.StatusOK, map[string]bool{"unregistered": true})
}

// handleShutdown forces the graceful shutdown sequence the idle
// watchdog would otherwise trigger.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.logger.Info().Str("remote", r.RemoteAddr).Msg("shutdown requested over http")
	s.d.Lifecycle.RequestShutdown()
	writeJSON(w, http.StatusOK, map[string]bool{"shutting_down": true})
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"time":    time.Now().UTC().UnixMilli(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports 503 until the persistence root is writable and
// the external tools resolved.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.d.Ready != nil {
		if err := s.d.Ready(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorBody{
				Code:   types.KindOf(err).String(),
				Detail: err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
