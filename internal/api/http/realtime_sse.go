package httpapi

import (
	"net/http"
	"time"

	"github.com/openshelf/lending-hub/internal/infrastructure/realtime"
)

const sseKeepAlive = 20 * time.Second

// sseEndpoint streams the caller's events. SSE is receive-only; clients send
// through the REST routes.
func (s *Server) sseEndpoint(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	if auth == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	ch := s.hub.Connect(auth.UserID, realtime.TransportSSE)
	defer s.hub.Disconnect(ch.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case ev, ok := <-ch.Events():
			if !ok {
				return
			}
			payload, err := frameCodec.Marshal(ev)
			if err != nil {
				s.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("failed to encode frame")
				continue
			}
			_, _ = w.Write([]byte("event: " + string(ev.Type) + "\n"))
			_, _ = w.Write([]byte("id: " + ev.ID + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
			ch.Touch()
		case <-keepAlive.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
			ch.Touch()
		case <-ctx.Done():
			return
		}
	}
}
