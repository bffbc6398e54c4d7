/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. CORS:           Cross-origin requests for the frontend
  2. RequestLogger:  httplog structured request logging (ECS schema)
  3. CleanPath:      Collapses duplicate slashes
  4. Recoverer:      Panic recovery (500 instead of crash)
  5. Heartbeat:      GET /ping liveness check

ROUTE GROUPS:
  /api/users/*          Users, quota, warnings, available categories
  /api/categories       Category table
  /api/requests/*       Leave request workflow
  /api/attachments      Attachment upload/delete
  /api/settlements/*    Overtime settlement and detail review
  /api/admin/*          Resync and organization config
  /api/scenarios/*      Demo scenarios
  /*                    Static files (frontend)

SECURITY NOTE:
  No authentication middleware. Actor identity is taken from request bodies.

SEE ALSO:
  - handlers.go, settlements.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
)

// NewRouter creates a router with all routes configured. Request logs go to
// logger; pass nil to log JSON to stdout.
func NewRouter(h *Handler, logger *slog.Logger, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()
	if logger == nil {
		logFormat := httplog.SchemaECS.Concise(false)
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			ReplaceAttr: logFormat.ReplaceAttr,
		}))
	}
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))
	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelDebug,
		Schema: httplog.SchemaECS,
	}))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.SaveUser)
			r.Get("/{id}", h.GetUser)
			r.Get("/{id}/quota", h.GetQuota)
			r.Get("/{id}/warnings", h.GetWarnings)
			r.Get("/{id}/categories", h.GetAvailableCategories)
		})

		r.Get("/categories", h.ListCategories)

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", h.ListRequests)
			r.Post("/", h.SubmitRequest)
			r.Post("/preview", h.PreviewRequest)
			r.Post("/overlap", h.CheckOverlap)
			r.Post("/duration", h.ComputeDuration)
			r.Get("/{id}", h.GetRequest)
			r.Put("/{id}", h.EditRequest)
			r.Delete("/{id}", h.DeleteRequest)
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/reject", h.RejectRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
		})

		r.Route("/attachments", func(r chi.Router) {
			r.Post("/", h.UploadAttachment)
			r.Delete("/", h.DeleteAttachment)
		})

		r.Route("/settlements", func(r chi.Router) {
			r.Get("/", h.ListSettlements)
			r.Post("/", h.ApplySettlement)
			r.Get("/preview", h.PreviewSettlement)
			r.Get("/live", h.GetLiveBalance)
			r.Get("/review", h.ListReviewRows)
			r.Post("/review", h.ApplyDetailReview)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/resync", h.TriggerResync)
			r.Get("/config", h.GetConfig)
			r.Put("/config", h.PutConfig)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	// Serve the built frontend when present, with index.html as the SPA
	// fallback.
	staticDir := "./web/dist"
	if _, err := os.Stat(staticDir); os.IsNotExist(err) {
		exe, _ := os.Executable()
		staticDir = filepath.Join(filepath.Dir(exe), "web", "dist")
	}
	if _, err := os.Stat(staticDir); err == nil {
		fileServer := http.FileServer(http.Dir(staticDir))
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			if _, err := os.Stat(filepath.Join(staticDir, r.URL.Path)); os.IsNotExist(err) {
				http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
				return
			}
			fileServer.ServeHTTP(w, r)
		})
	}

	return r
}
