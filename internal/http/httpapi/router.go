package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"signsmith/internal/http/handlers"
	"signsmith/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
	)
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.CORS(app.Cfg.Server.CORSOrigins))

	// Health and metrics stay outside the rate limiter so probes never 429.
	r.Get("/health", app.Health)
	r.Get("/health/ready", app.HealthReady)
	r.Get("/health/live", app.HealthLive)
	r.Get("/health/memory", app.HealthMemory)
	if app.Cfg.Monitoring.Enabled {
		r.Method(http.MethodGet, "/metrics", app.Metrics())
	}

	r.Group(func(r chi.Router) {
		if app.Cfg.Server.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(app.Cfg.Server.RateLimitPerMin, time.Minute))
		}

		r.Route("/generate", func(r chi.Router) {
			r.Post("/", app.Generate)
			r.Get("/{item_id}", app.GenerateStatus)
			r.Get("/{item_id}/status", app.GenerateStatus)
			r.Get("/{item_id}/result", app.GenerateResult)
			r.Get("/{item_id}/image", app.GenerateImage)
			r.Post("/{item_id}/cancel", app.GenerateCancel)
		})

		r.Get("/runs/{session_id}/images/{filename}", app.RunImage)
		r.Get("/queue", app.QueueStatus)
		r.Get("/queue/status", app.QueueStatus)

		r.Route("/adapters", func(r chi.Router) {
			r.Get("/", app.AdaptersList)
			r.Post("/rescan", app.AdaptersRescan)
			r.Post("/suggest", app.AdaptersSuggest)
			r.Get("/weights/defaults", app.AdapterDefaultWeights)
			r.Get("/{domain}", app.AdaptersByDomain)
			r.Get("/{domain}/{name}", app.AdapterGet)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", app.TemplatesList)
			r.Get("/{name}", app.TemplateGet)
			r.Post("/{name}/render", app.TemplateRender)
		})
	})

	return r
}
