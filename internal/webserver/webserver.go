package webserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/y0ug/hashguard/internal/database/models"
	"github.com/y0ug/hashguard/internal/lookup"
	"github.com/y0ug/hashguard/internal/prefixindex"
	"github.com/y0ug/hashguard/internal/verdict"
	"github.com/y0ug/hashguard/pkg/auth"
)

// PrefixService answers range queries and accepts dataset uploads.
type PrefixService interface {
	CheckPrefix(name, prefix string) (lookup.Result, error)
	Stats() []models.DatasetStats
	Publish(name string, records []prefixindex.CandidateRecord) error
}

// URLEvaluator computes URL verdicts and evicts stored ones.
type URLEvaluator interface {
	Evaluate(ctx context.Context, rawURL string, opts verdict.Options) (models.ReputationEntry, error)
	Forget(ctx context.Context, rawURL string) (string, error)
}

// EntryCounter reports the size of the reputation cache.
type EntryCounter interface {
	Len(ctx context.Context) int
}

// WebServer holds the data needed for handling HTTP requests.
type WebServer struct {
	Lookup     PrefixService
	Evaluator  URLEvaluator
	Entries    EntryCounter
	Gatherer   prometheus.Gatherer
	config     *WebserverConfig
	authConfig *auth.Config
	authMW     *auth.Middleware
	Logger     *logrus.Logger
}

// NewWebServer initializes a new WebServer.
func NewWebServer(lookupService PrefixService, evaluator URLEvaluator, entries EntryCounter, gatherer prometheus.Gatherer, config *WebserverConfig, authConfig *auth.Config, logger *logrus.Logger) *WebServer {
	return &WebServer{
		Lookup:     lookupService,
		Evaluator:  evaluator,
		Entries:    entries,
		Gatherer:   gatherer,
		config:     config,
		authConfig: authConfig,
		authMW:     auth.NewMiddleware(authConfig, logger),
		Logger:     logger,
	}
}

// StartWebServer starts the HTTP server.
func StartWebServer(ctx context.Context, ws *WebServer) (*http.Server, error) {
	router := ws.InitRouter()

	// Configure CORS options
	corsOptions := cors.Options{
		AllowedOrigins:   ws.config.CorsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		Debug:            false,
	}

	handler := cors.New(corsOptions).Handler(router)

	server := &http.Server{
		Addr:              ws.config.ListenTo,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	// Start the server in a separate goroutine
	go func() {
		ws.Logger.Infof("Server starting on %s", ws.config.ListenTo)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.Logger.Errorf("ListenAndServe(): %v", err)
		}
	}()

	ws.Logger.Infof("Server started on %s", ws.config.ListenTo)
	return server, nil
}

// InitRouter initializes the HTTP routes.
func (ws *WebServer) InitRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(ws.requestLogger)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/breaches/range/{prefix}", ws.handleRange(lookup.DatasetBreaches)).Methods(http.MethodGet)
	api.HandleFunc("/passwords/range/{prefix}", ws.handleRange(lookup.DatasetPasswords)).Methods(http.MethodGet)
	api.HandleFunc("/stats", ws.handleGetStats).Methods(http.MethodGet)
	api.HandleFunc("/urls/check", ws.handleCheckURL).Methods(http.MethodPost, http.MethodGet)

	if ws.authConfig.Enabled() {
		admin := api.PathPrefix("/admin").Subrouter()
		admin.Use(ws.authMW.Admin)
		admin.HandleFunc("/datasets/{name}", ws.handlePutDataset).Methods(http.MethodPut)
		admin.HandleFunc("/urls", ws.handleForgetURL).Methods(http.MethodDelete)
	} else {
		ws.Logger.Info("AUTH_TYPE is none. Admin endpoints disabled.")
	}

	if ws.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(ws.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", ws.handleHealthz).Methods(http.MethodGet)

	return r
}

// requestLogger tags each request with an id and logs its route template. Raw paths
// are never logged: range query paths carry the hash prefix.
func (ws *WebServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		ws.Logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"route":      route,
			"status":     rec.status,
			"duration":   time.Since(start).String(),
		}).Info("Request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
