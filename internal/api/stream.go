package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

// streamHeartbeat is how often an idle notice stream sends a keep-alive comment.
const streamHeartbeat = 30 * time.Second

// streamNoticesHandler streams newly delivered notices as server-sent events.
// Each notice is one "notice" event whose data is the notice JSON. The stream
// ends when the client goes away, the feed stops or the server shuts down.
func (s *Server) streamNoticesHandler(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	notices, cancel := s.feed.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.Error("Server.streamNoticesHandler: streaming unsupported", "error", err)
		return
	}
	slog.Debug("Server.streamNoticesHandler: client subscribed", "remote", r.RemoteAddr)

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.stopStreams:
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case notice, ok := <-notices:
			if !ok {
				return
			}
			if err := writeNoticeEvent(w, notice); err != nil {
				slog.Debug("Server.streamNoticesHandler: client gone", "error", err)
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeNoticeEvent(w http.ResponseWriter, notice models.Notice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: notice\ndata: %s\n\n", notice.ID, data)
	return err
}
