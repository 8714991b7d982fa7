package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"panelmotion/internal/http/handlers"
	"panelmotion/internal/infra"
	"panelmotion/internal/middleware"
)

// Options configures the middleware chain and static file serving.
type Options struct {
	Logger          *infra.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	// StaticDir is served under /static when non-empty.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
		middleware.Logger(logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
	)
	r.NotFound(app.NotFound)
	r.MethodNotAllowed(app.MethodNotAllowed)

	limit := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.Get("/stages", app.ListStages)
		r.Get("/openapi.json", app.OpenAPIJSON)
		r.Get("/docs", app.OpenAPIDocs)

		r.Route("/jobs", func(r chi.Router) {
			r.With(limit).Post("/", app.CreateJob)
			r.Get("/", app.ListJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", app.GetJob)
				r.Get("/artifacts.zip", app.ArtifactsZip)
				r.With(limit).Post("/stages/{stage}", app.RunStage)
				r.Post("/finalize", app.FinalizeJob)
			})
		})
	})

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/static/*", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
			fs.ServeHTTP(w, req)
		})
	}

	return r
}
