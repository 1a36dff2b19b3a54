package router

import (
	"net/http"

	"stocktake-api/internal/handler"
	"stocktake-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	HealthHandler     *handler.HealthHandler
	SessionHandler    *handler.SessionHandler
	ItemHandler       *handler.ItemHandler
	WorkflowHandler   *handler.WorkflowHandler
	PresenceHandler   *handler.PresenceHandler
	EventHandler      *handler.EventHandler
	PreferenceHandler *handler.PreferenceHandler
	AuthMiddleware    func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.HealthHandler != nil {
		r.Get("/api/status", cfg.HealthHandler.Status)
	}

	// AUTHENTICATED routes
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			if cfg.HealthHandler != nil {
				r.Get("/health", cfg.HealthHandler.Health)
				r.Get("/ready", cfg.HealthHandler.Ready)
			}

			r.Route("/sessions", func(r chi.Router) {
				if cfg.SessionHandler != nil {
					r.Post("/import", cfg.SessionHandler.Import)
					r.Get("/", cfg.SessionHandler.List)
				}

				r.Route("/{id}", func(r chi.Router) {
					if cfg.SessionHandler != nil {
						r.Get("/", cfg.SessionHandler.Get)
						r.Delete("/", cfg.SessionHandler.Delete)
						r.Get("/export", cfg.SessionHandler.Export)
						r.Get("/export/unknown", cfg.SessionHandler.ExportUnknown)
					}

					if cfg.ItemHandler != nil {
						r.Get("/items", cfg.ItemHandler.List)
						r.Get("/items/{barcode}", cfg.ItemHandler.Lookup)
						r.Get("/unknown-barcodes", cfg.ItemHandler.UnknownBarcodes)
					}

					if cfg.PresenceHandler != nil {
						r.Get("/presence", cfg.PresenceHandler.Roster)
						r.Put("/presence/{operator}", cfg.PresenceHandler.Heartbeat)
						r.Delete("/presence/{operator}", cfg.PresenceHandler.Leave)
					}

					if cfg.EventHandler != nil {
						r.Get("/events", cfg.EventHandler.Stream)
					}

					if cfg.WorkflowHandler != nil {
						r.Route("/workflow/{operator}", func(r chi.Router) {
							r.Get("/", cfg.WorkflowHandler.State)
							r.Post("/scan", cfg.WorkflowHandler.Scan)
							r.Post("/confirm-item", cfg.WorkflowHandler.ConfirmItem)
							r.Post("/continue", cfg.WorkflowHandler.Continue)
							r.Post("/skip", cfg.WorkflowHandler.Skip)
							r.Post("/product-barcode", cfg.WorkflowHandler.ProductBarcode)
							r.Post("/no-barcode", cfg.WorkflowHandler.NoBarcode)
							r.Post("/count-scan", cfg.WorkflowHandler.CountScan)
							r.Post("/quantity", cfg.WorkflowHandler.Quantity)
							r.Post("/adjust", cfg.WorkflowHandler.Adjust)
							r.Post("/back", cfg.WorkflowHandler.Back)
							r.Post("/save", cfg.WorkflowHandler.Save)
						})
					}
				})
			})

			if cfg.PreferenceHandler != nil {
				r.Route("/operators/{name}/preferences", func(r chi.Router) {
					r.Get("/", cfg.PreferenceHandler.Get)
					r.Put("/", cfg.PreferenceHandler.Put)
				})
			}
		})
	})

	return r
}
