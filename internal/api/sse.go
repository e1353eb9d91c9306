// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/subwave-io/subwave/internal/bus"
	"github.com/subwave-io/subwave/internal/types"
)

// handleJobStream serves the per-job SSE channel. The first event is
// always initial_state with the current job snapshot.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := s.d.Queue.Get(jobID); err != nil {
		respondError(w, r, err)
		return
	}

	sub, err := s.d.Bus.Subscribe(bus.JobChannel(jobID), func() any {
		job, err := s.d.Queue.Get(jobID)
		if err != nil {
			return nil
		}
		return statusResponse{Job: job, Media: s.mediaStatus(jobID)}
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.serveSSE(w, r, sub, jobEventName)
}

// handleGlobalStream serves the queue-scope SSE channel.
func (s *Server) handleGlobalStream(w http.ResponseWriter, r *http.Request) {
	sub, err := s.d.Bus.Subscribe(bus.ChannelGlobal, func() any {
		return s.d.Queue.Snapshot()
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.serveSSE(w, r, sub, globalEventName)
}

// jobEventName maps bus kinds onto the per-job stream's event names.
func jobEventName(kind types.EventKind) string {
	switch kind {
	case types.EventJobProgress:
		return "progress"
	case types.EventJobStatus:
		return "status"
	default:
		return kind.String()
	}
}

// globalEventName keeps the queue-scope kinds verbatim.
func globalEventName(kind types.EventKind) string {
	return kind.String()
}

// serveSSE pumps subscriber events to the client until either side
// disconnects. Handlers never reject mid-stream; reconnection is the
// client's job.
func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, sub *bus.Subscriber, name func(types.EventKind) string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		sub.Close()
		respondError(w, r, types.Ef(types.KindInternal, "api.sse", "streaming unsupported"))
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			data, err := json.Marshal(ev.Payload)
			if err != nil {
				s.logger.Error().Err(err).Str("kind", ev.Kind.String()).
					Msg("sse payload marshal failed")
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n",
				ev.ID, name(ev.Kind), data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
