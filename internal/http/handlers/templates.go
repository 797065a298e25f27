package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"signsmith/internal/prompt"
)

func (a *App) TemplatesList(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"templates":  prompt.List(),
		"vocabulary": prompt.Vocabulary(),
	})
}

func (a *App) TemplateGet(w http.ResponseWriter, r *http.Request) {
	t, ok := prompt.Get(chi.URLParam(r, "name"))
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "template not found")
		return
	}
	a.json(w, http.StatusOK, t)
}

// TemplateRender fills a template's variables and returns the prompt pair
// ready to submit.
func (a *App) TemplateRender(w http.ResponseWriter, r *http.Request) {
	t, ok := prompt.Get(chi.URLParam(r, "name"))
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "template not found")
		return
	}
	var values map[string]string
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"prompt":             t.Render(values),
		"negative_prompt":    t.NegativePrompt,
		"suggested_adapters": t.SuggestedAdapters,
	})
}
