package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/NomadonaTrip/sophia/internal/api/handlers"
	"github.com/NomadonaTrip/sophia/internal/api/middleware"
	"github.com/NomadonaTrip/sophia/internal/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the operator-facing HTTP API: the approval queue and
// its per-draft actions, publish pause/resume, the health strip, and the
// SSE event stream.
func NewRouter(cfg *config.Config, h *handlers.Handlers, auth *middleware.OperatorAuth) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.ClientExtractor)
	r.Use(middleware.Telemetry)

	if auth != nil {
		r.Use(auth.Middleware)
	}

	corsOrigins := parseCORSOrigins()
	isWildcard := len(corsOrigins) == 1 && corsOrigins[0] == "*"
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Client-Id", "X-Request-Id", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !isWildcard,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/approval", func(r chi.Router) {
		r.Get("/queue", h.ListQueue)
		r.Get("/health-strip", h.HealthStrip)

		r.Route("/drafts/{id}", func(r chi.Router) {
			r.Post("/approve", h.Approve)
			r.Post("/reject", h.Reject)
			r.Post("/edit", h.Edit)
			r.Post("/skip", h.Skip)
			r.Post("/upload-image", h.UploadImage)
			r.Post("/recover", h.Recover)
		})

		r.Route("/publishing", func(r chi.Router) {
			r.Post("/pause", h.PausePublishing)
			r.Post("/resume", h.ResumePublishing)
		})
	})

	r.Get("/api/events", h.Events)

	if h.ImageDir != "" {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.ImageDir)))
		r.Get("/uploads/*", func(w http.ResponseWriter, r *http.Request) { fs.ServeHTTP(w, r) })
	}

	return r
}

// parseCORSOrigins reads allowed CORS origins from SOPHIA_CORS_ORIGINS.
// Default: wildcard (safe with AllowCredentials=false).
func parseCORSOrigins() []string {
	originsEnv := os.Getenv("SOPHIA_CORS_ORIGINS")
	if originsEnv == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(originsEnv, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "service": "sophia"})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"version": cfg.Version, "service": "sophia"})
	}
}
