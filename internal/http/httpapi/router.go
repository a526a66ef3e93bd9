package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"photoflow/internal/http/handlers"
	"photoflow/internal/infra"
	"photoflow/internal/middleware"
)

// Options configures NewRouter.
type Options struct {
	JWTSecret       string
	RateLimitPerMin int
	CORSOrigins     []string
	Logger          infra.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID(opts.Logger),
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	// Signed URLs carry their own authorization.
	if app.Files != nil {
		r.Route("/v1/files", func(r chi.Router) {
			r.Get("/*", app.GetFile)
			r.Put("/*", app.PutFile)
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.RateLimit(opts.RateLimitPerMin, time.Minute),
			middleware.AuthJWT(opts.JWTSecret),
		)
		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", app.CreateJob)
			r.Get("/{jobId}", app.GetJob)
		})
		r.Route("/v1/batches", func(r chi.Router) {
			r.Post("/", app.CreateBatch)
			r.Get("/{batchJobId}", app.GetBatch)
			r.Get("/{batchJobId}/archive", app.GetBatchArchive)
		})
	})

	return r
}
