package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"signsmith/internal/device"
	"signsmith/internal/infra"
	"signsmith/internal/lora"
	"signsmith/internal/service"
)

// App is the handler container: one instance carries every dependency the
// HTTP layer needs.
type App struct {
	Svc      *service.Service
	Adapters *lora.Registry
	Device   *device.Manager
	Cfg      *infra.Config
	Logger   zerolog.Logger
}

func NewApp(svc *service.Service, adapters *lora.Registry, dev *device.Manager, cfg *infra.Config, logger zerolog.Logger) *App {
	return &App{Svc: svc, Adapters: adapters, Device: dev, Cfg: cfg, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{"error": errCode, "message": message})
}
