package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"cartpilot/internal"
	"cartpilot/internal/catalog"
	"cartpilot/internal/observability"
	"cartpilot/internal/pipeline"
	"cartpilot/internal/storage"
)

type Searcher interface {
	Search(ctx context.Context, categories []string) (catalog.SearchResult, error)
}

type PreferenceStore interface {
	LoadPreferences(ctx context.Context) (internal.Preferences, error)
	SavePreferences(ctx context.Context, p internal.Preferences) error
}

type Config struct {
	Address  string
	Pipeline *pipeline.Service
	Catalog  Searcher
	Prefs    PreferenceStore
	// DB persists runs and checkout logs when set.
	DB     *storage.DB
	Logger *zap.Logger
}

type API struct {
	svc     *pipeline.Service
	catalog Searcher
	prefs   PreferenceStore
	db      *storage.DB
	session *Session
	logger  *zap.Logger
}

func NewAPI(cfg Config) *API {
	return &API{
		svc:     cfg.Pipeline,
		catalog: cfg.Catalog,
		prefs:   cfg.Prefs,
		db:      cfg.DB,
		session: NewSession(),
		logger:  observability.OrNop(cfg.Logger),
	}
}

// New builds the HTTP server for the API.
func New(cfg Config) *http.Server {
	return &http.Server{
		Addr:         cfg.Address,
		Handler:      NewAPI(cfg).Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(a.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(60 * time.Second))
			r.Get("/scenarios", a.listScenarios)
			r.Get("/products/search", a.searchProducts)
			r.Get("/preferences", a.getPreferences)
			r.Put("/preferences", a.putPreferences)
			r.Get("/pipeline", a.getPipeline)
			r.Get("/pipeline/ranked/{category}/{itemId}/explain", a.explainRanked)
			r.Post("/pipeline/run", a.runPipeline)
			r.Post("/pipeline/reoptimize", a.reoptimize)
			r.Post("/pipeline/replace-line", a.replaceLine)
		})
		// Streams progress; no handler timeout.
		r.Post("/pipeline/checkout", a.checkout)
	})
	return r
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Info("http request",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	})
}
