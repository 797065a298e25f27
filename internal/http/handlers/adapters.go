package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (a *App) AdaptersList(w http.ResponseWriter, r *http.Request) {
	domains := a.Adapters.Domains()
	byDomain := make(map[string]any, len(domains))
	for _, domain := range domains {
		byDomain[domain] = a.Adapters.ByDomain(domain)
	}
	a.json(w, http.StatusOK, map[string]any{
		"domains":     domains,
		"adapters":    byDomain,
		"total_count": a.Adapters.Len(),
	})
}

func (a *App) AdaptersByDomain(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	adapters := a.Adapters.ByDomain(domain)
	a.json(w, http.StatusOK, map[string]any{
		"domain":   domain,
		"adapters": adapters,
		"count":    len(adapters),
	})
}

func (a *App) AdapterGet(w http.ResponseWriter, r *http.Request) {
	fullName := chi.URLParam(r, "domain") + "/" + chi.URLParam(r, "name")
	adapter, ok := a.Adapters.Get(fullName)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "adapter not found")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"name":               adapter.Name,
		"domain":             adapter.Domain,
		"path":               adapter.Path,
		"file_size":          adapter.FileSize,
		"file_size_mb":       adapter.FileSizeMB(),
		"recommended_weight": adapter.RecommendedWeight,
		"training_run_id":    adapter.TrainingRunID,
		"training_steps":     adapter.TrainingSteps,
		"training_loss":      adapter.TrainingLoss,
		"load_count":         adapter.LoadCount,
		"last_used":          adapter.LastUsed,
		"compatible_with":    adapter.CompatibleWith,
		"conflicts_with":     adapter.ConflictsWith,
	})
}

func (a *App) AdaptersSuggest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt required")
		return
	}
	a.json(w, http.StatusOK, a.Adapters.Suggest(body.Prompt))
}

func (a *App) AdaptersRescan(w http.ResponseWriter, r *http.Request) {
	count, err := a.Adapters.Scan()
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: adapter rescan failed")
		a.error(w, http.StatusInternalServerError, "internal", "scan failed")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"message": "scan complete", "count": count})
}

func (a *App) AdapterDefaultWeights(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Adapters.DefaultWeights())
}
