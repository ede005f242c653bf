package server

import (
	"context"
	"net/http"
	"time"

	httpLogger "github.com/chi-middleware/logrus-logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"tasknlp/internal/analyze"
	"tasknlp/internal/audit"
	"tasknlp/internal/classify"
	"tasknlp/internal/config"
	"tasknlp/internal/logger"
	"tasknlp/internal/ner"
)

var log = logger.GetLogger()

const ReadHeaderTimeout = 5 * time.Second

// Analyzer is the set of operations served over HTTP.
type Analyzer interface {
	PredictType(ctx context.Context, text string) (classify.Result, error)
	ExtractEntities(ctx context.Context, text string) (ner.EntityCollection, error)
	Analyze(ctx context.Context, text string) (analyze.Result, error)
}

var _ Analyzer = (*analyze.Orchestrator)(nil)

// State is shared by all handlers.
type State struct {
	Analyzer Analyzer
	Audit    audit.Logger
	// AuditFile is read back by the stats endpoint. Empty disables stats
	// history.
	AuditFile string
	Config    config.ServerConfig
	// Timeout bounds each model operation. Zero means no limit.
	Timeout time.Duration
	Started time.Time
}

// Create builds the HTTP server for state.
func Create(state *State) *http.Server {
	return &http.Server{
		Addr:              state.Config.Addr(),
		Handler:           NewRouter(state),
		ReadHeaderTimeout: ReadHeaderTimeout,
	}
}

func NewRouter(state *State) *chi.Mux {
	if state.Audit == nil {
		state.Audit = audit.Discard{}
	}
	if state.Started.IsZero() {
		state.Started = time.Now()
	}
	origins := state.Config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := chi.NewRouter()
	router.Use(httpLogger.Logger("router", log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Heartbeat("/healthz"))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	router.Get("/", RootHandler())
	for _, route := range []struct {
		path    string
		handler http.HandlerFunc
	}{
		{"/predict-type", PredictTypeHandler(state)},
		{"/extract-entities", ExtractEntitiesHandler(state)},
		{"/analyze-text", AnalyzeTextHandler(state)},
	} {
		router.Post(route.path, route.handler)
		router.Post(route.path+"/", route.handler)
	}
	router.Get("/api/stats", StatsHandler(state))

	return router
}
