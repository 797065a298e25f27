package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"signsmith/internal/imagegen"
	"signsmith/internal/queue"
)

// Generate accepts a generation request and enqueues it. The request is
// validated here; admission control happens in the queue.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req imagegen.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
		return
	}
	if req.Steps == 0 && a.Cfg.Model.DefaultSteps > 0 {
		req.Steps = a.Cfg.Model.DefaultSteps
	}
	req.ApplyDefaults()
	policy := imagegen.SafetyPolicy{
		MaxPromptLength: a.Cfg.Safety.MaxPromptLength,
		BlockedWords:    a.Cfg.Safety.BlockedWords,
	}
	if err := req.Validate(policy); err != nil {
		var verr *imagegen.ValidationError
		if errors.As(err, &verr) {
			a.json(w, http.StatusBadRequest, map[string]any{
				"error":   "validation_error",
				"message": verr.Message,
				"details": map[string]any{"field": verr.Field},
			})
			return
		}
		a.error(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	receipt, err := a.Svc.Submit(req)
	if err != nil {
		var full *queue.FullError
		if errors.As(err, &full) {
			a.json(w, http.StatusTooManyRequests, map[string]any{
				"error":   "queue_full",
				"message": full.Error(),
				"details": map[string]any{"queue_size": full.Size, "max_size": full.Max},
			})
			return
		}
		a.Logger.Error().Err(err).Msg("http: submit failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue request")
		return
	}
	a.json(w, http.StatusAccepted, receipt)
}

// GenerateStatus returns the lifecycle snapshot for one job.
func (a *App) GenerateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "item_id")
	snap, ok := a.Svc.GetStatus(id)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "item not found")
		return
	}
	a.json(w, http.StatusOK, snap)
}

// GenerateResult returns the result payload for a completed job, a 202 with
// the current status when the job exists but has not finished, or 404.
func (a *App) GenerateResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "item_id")
	result, ok := a.Svc.GetResult(id)
	if !ok {
		snap, exists := a.Svc.GetStatus(id)
		if !exists {
			a.error(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		a.json(w, http.StatusAccepted, map[string]any{
			"error":  "not_ready",
			"status": snap,
		})
		return
	}
	a.json(w, http.StatusOK, result)
}

// GenerateImage serves the generated PNG directly.
func (a *App) GenerateImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "item_id")
	data, ok := a.Svc.ImagePNG(id)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "image not available")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// RunImage serves images from a session's output directory.
func (a *App) RunImage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	filename := chi.URLParam(r, "filename")
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, "/\\") {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid filename")
		return
	}
	data, err := a.Svc.SessionFile(sessionID, filename)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "image not found")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GenerateCancel withdraws a job that is still pending. Processing jobs
// cannot be interrupted.
func (a *App) GenerateCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "item_id")
	if !a.Svc.Cancel(id) {
		snap, exists := a.Svc.GetStatus(id)
		if !exists {
			a.error(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		a.json(w, http.StatusConflict, map[string]any{
			"error":   "not_cancellable",
			"message": "only pending items can be cancelled",
			"status":  snap,
		})
		return
	}
	a.json(w, http.StatusOK, map[string]any{"item_id": id, "status": queue.StatusCancelled})
}

// QueueStatus returns the queue snapshot.
func (a *App) QueueStatus(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Svc.QueueStatus())
}
