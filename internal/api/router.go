// internal/api/router.go
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"astro-backend-llm/internal/common/config"
	apperrors "astro-backend-llm/internal/common/errors"
	"astro-backend-llm/internal/common/logger"
	"astro-backend-llm/internal/common/observability"
)

const APIPrefix = "/api/v1"

type Options struct {
	Generator      ProjectGenerator
	Limiter        RateLimiter
	Logger         logger.Logger
	CORS           config.CORSConfig
	RequestTimeout time.Duration
	Observability  *observability.Observability
	// MetricsHandler serves /metrics; nil uses the default Prometheus registry.
	MetricsHandler http.Handler
}

// NewRouter wires every route and middleware.
func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	errs := apperrors.NewErrorHandler(log)

	h := &Handlers{
		generator:      opts.Generator,
		errors:         errs,
		obs:            opts.Observability,
		requestTimeout: opts.RequestTimeout,
		logger:         log,
	}

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(h.NotFound)
	router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	router.HandleFunc(APIPrefix, h.Root).Methods(http.MethodGet)

	v1 := router.PathPrefix(APIPrefix).Subrouter()
	v1.HandleFunc("/", h.Root).Methods(http.MethodGet)
	v1.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	v1.Handle("/generate", RateLimit(opts.Limiter, errs, log)(http.HandlerFunc(h.Generate))).
		Methods(http.MethodPost)

	var handler http.Handler = router
	handler = CORS(opts.CORS)(handler)
	handler = AccessLog(log)(handler)
	handler = RequestID(handler)
	return handler
}
