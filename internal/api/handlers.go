package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

// completeRequest is the body of POST /packs/{id}/complete.
type completeRequest struct {
	PromptID string `json:"prompt_id"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"status":     "healthy",
		"timestamp":  s.opts.Now().UTC().Format(time.RFC3339),
		"packs":      len(s.engine.Packs()),
		"timers":     len(s.notifier.ActiveTimers()),
		"permission": s.notifier.Permission(),
	}))
}

// listNoticesHandler returns the feed; ?active=true limits it to notices
// still within their display lifetime.
func (s *Server) listNoticesHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if v := r.URL.Query().Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, "listNoticesHandler", fmt.Errorf("%w: active must be a boolean", models.ErrValidation))
			return
		}
		activeOnly = b
	}
	notices := s.feed.List()
	if activeOnly {
		notices = s.feed.Active(s.opts.Now())
	}
	writeJSONResponse(w, http.StatusOK, models.Success(notices))
}

func (s *Server) openNoticeHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.notifier.HandleNoticeClick(r.Context(), id); err != nil {
		writeError(w, "openNoticeHandler", err)
		return
	}
	s.feed.Dismiss(id)
	slog.Info("Server.openNoticeHandler: notice opened", "noticeID", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Notice opened", nil))
}

func (s *Server) dismissNoticeHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.feed.Dismiss(id) {
		writeError(w, "dismissNoticeHandler", fmt.Errorf("%w: notice %q", models.ErrNotFound, id))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Notice dismissed", nil))
}

func (s *Server) listPacksHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.engine.Packs()))
}

func (s *Server) getPackHandler(w http.ResponseWriter, r *http.Request) {
	pack, err := s.engine.Pack(r.PathValue("id"))
	if err != nil {
		writeError(w, "getPackHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(pack))
}

func (s *Server) nextPromptHandler(w http.ResponseWriter, r *http.Request) {
	prompt, err := s.engine.GetNextPrompt(r.PathValue("id"))
	if err != nil {
		writeError(w, "nextPromptHandler", err)
		return
	}
	if prompt == nil {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("No prompt available", nil))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(prompt))
}

func (s *Server) completeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.completeHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.PromptID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: prompt_id"))
		return
	}
	packID := r.PathValue("id")
	if err := s.engine.MarkPromptCompleted(packID, req.PromptID); err != nil {
		writeError(w, "completeHandler", err)
		return
	}
	stats, err := s.engine.GetPackStats(packID)
	if err != nil {
		writeError(w, "completeHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Prompt completed", stats))
}

func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ResetProgress(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, "resetHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Progress reset", nil))
}

func (s *Server) resetCycleHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ResetCycle(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, "resetCycleHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Cycle reset", nil))
}

func (s *Server) restartHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Restart(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, "restartHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Pack restarted", nil))
}

func (s *Server) packStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.GetPackStats(r.PathValue("id"))
	if err != nil {
		writeError(w, "packStatsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

func (s *Server) overallStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.engine.GetOverallStats()))
}

func (s *Server) timersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.notifier.ActiveTimers()))
}
