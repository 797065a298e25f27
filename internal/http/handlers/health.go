package handlers

import "net/http"

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	qs := a.Svc.QueueStatus()
	memory := a.Device.Memory()
	a.json(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"pipeline":      qs.Pipeline,
		"queue_running": qs.Running,
		"queue_size":    qs.QueueSize,
		"queue_max":     qs.MaxSize,
		"session_id":    qs.SessionID,
		"memory":        memory,
	})
}

// HealthReady reports 503 until the generation backend has loaded, for load
// balancers and startup probes.
func (a *App) HealthReady(w http.ResponseWriter, r *http.Request) {
	status := a.Svc.QueueStatus()
	loaded, _ := status.Pipeline["loaded"].(bool)
	if !loaded {
		a.json(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "reason": "backend not loaded"})
		return
	}
	a.json(w, http.StatusOK, map[string]any{"ready": true})
}

func (a *App) HealthLive(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"live": true})
}

func (a *App) HealthMemory(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Device.Memory())
}
