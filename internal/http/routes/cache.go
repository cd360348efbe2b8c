package routes

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/hlog"

	"github.com/tom2tomtomtom/airwave/internal/jobs"
)

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.Cache.Stats())
}

// handleCacheInvalidate removes entries whose key contains ?pattern=. An
// empty pattern is rejected here; DELETE /cache clears everything.
func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	pattern := strings.TrimSpace(r.URL.Query().Get("pattern"))
	if pattern == "" {
		writeError(w, r, http.StatusBadRequest, "pattern is required")
		return
	}
	n, err := s.Cache.Invalidate(r.Context(), pattern)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("pattern", pattern).Msg("invalidate failed")
		writeError(w, r, http.StatusInternalServerError, "invalidate failed")
		return
	}
	hlog.FromRequest(r).Info().Str("pattern", pattern).Int("removed", n).Msg("cache invalidated")
	writeJSON(w, r, http.StatusOK, map[string]any{"pattern": pattern, "removed": n})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.Cache.Clear(r.Context()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("cache clear failed")
		writeError(w, r, http.StatusInternalServerError, "clear failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type warmResponse struct {
	TaskID  string `json:"task_id,omitempty"`
	Queue   string `json:"queue,omitempty"`
	Targets int    `json:"targets"`
	Errors  int    `json:"errors,omitempty"`
}

// handleCacheWarm enqueues a warm task, or warms inline when no queue is
// configured. The body is optional.
func (s *Server) handleCacheWarm(w http.ResponseWriter, r *http.Request) {
	var p jobs.WarmPayload
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &p); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, r, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if p.ClientID == "" {
		p.ClientID = r.URL.Query().Get("client_id")
	}

	targets, err := s.Warm.Targets(p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if s.Queue == nil {
		res, err := s.Warm.Run(r.Context(), p)
		if err != nil && !errors.Is(err, jobs.ErrWarmFailed) {
			writeServiceError(w, r, err)
			return
		}
		status := http.StatusOK
		if err != nil {
			status = http.StatusBadGateway
		}
		writeJSON(w, r, status, warmResponse{Targets: len(res.Results), Errors: res.Errors})
		return
	}

	task, err := jobs.NewWarmTask(p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	info, err := s.Queue.EnqueueContext(r.Context(), task)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("enqueue warm task failed")
		writeError(w, r, http.StatusServiceUnavailable, "failed to queue warm job")
		return
	}
	hlog.FromRequest(r).Info().Str("task_id", info.ID).Str("queue", info.Queue).Msg("warm task enqueued")
	writeJSON(w, r, http.StatusAccepted, warmResponse{TaskID: info.ID, Queue: info.Queue, Targets: len(targets)})
}

var _ Enqueuer = (*asynq.Client)(nil)
