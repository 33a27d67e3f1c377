package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/relabs-tech/fwevents/core/access"
	"github.com/relabs-tech/fwevents/core/csql"
	"github.com/relabs-tech/fwevents/core/logger"
	"github.com/relabs-tech/fwevents/core/schema"
)

// Service is the firmware event ingestion backend
type Service struct {
	db        *csql.DB
	router    *mux.Router
	store     *Store
	publisher *Publisher
	validator *schema.Validator

	authorizationEnabled bool

	queueConfig         QueueConfig
	handlers            map[string]func(context.Context, Task) error
	pipelineConcurrency int

	hasTasksToProcess        bool
	hasTasksToProcessLock    sync.Mutex
	processTasksAsyncRuns    bool
	processTasksAsyncTrigger chan struct{}

	tasksInsertQuery     string
	tasksUpdateQuery     string
	tasksDeleteQuery     string
	tasksDeadLetterQuery string
	tasksRequeueQuery    string
	tasksSweepQuery      string
}

// Builder is a builder helper for the Service
type Builder struct {
	// DB is a postgres database. This is mandatory.
	DB *csql.DB
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Queue configures the durable task queue. Zero values are replaced
	// with defaults.
	Queue QueueConfig
	// WorkerConcurrency is the number of concurrent task pipelines,
	// default 5.
	WorkerConcurrency int
	// Publisher receives successfully persisted firmware events. This is
	// optional, pass nil to disable fan-out.
	Publisher *Publisher
	// AuthorizationEnabled gates the operational routes with the "admin"
	// role. Data-plane key authentication is always enforced.
	AuthorizationEnabled bool
	// OperatorKeysURL installs the operator JWT middleware when set. The
	// URL must serve a JSON map of key id to PEM encoded RSA public key
	// or certificate. Setting the URL also enables authorization.
	OperatorKeysURL string
	// OperatorTokenIssuer is the accepted issuer for operator tokens.
	OperatorTokenIssuer string
	// UpdateSchema creates the database tables if they do not exist yet.
	UpdateSchema bool
}

// New realizes the firmware event service. It creates the sql relations (if
// requested and they do not exist) and adds the service's routes to router.
func New(bb *Builder) *Service {

	if bb.DB == nil {
		panic("DB is missing")
	}

	if bb.Router == nil {
		panic("Router is missing")
	}

	queueConfig := bb.Queue
	if queueConfig.MaxAttempts == 0 {
		queueConfig.MaxAttempts = 4
	}
	if queueConfig.BackoffBase == 0 {
		queueConfig.BackoffBase = 30 * time.Second
	}
	if len(queueConfig.DeadLetterQueue) == 0 {
		queueConfig.DeadLetterQueue = taskQueueFirmwareEvents + "_dead_letter"
	}

	concurrency := bb.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	s := &Service{
		db:                   bb.DB,
		router:               bb.Router,
		store:                NewStore(bb.DB, bb.UpdateSchema),
		publisher:            bb.Publisher,
		validator:            newReportValidator(),
		authorizationEnabled: bb.AuthorizationEnabled || len(bb.OperatorKeysURL) > 0,
		queueConfig:          queueConfig,
		handlers:             make(map[string]func(context.Context, Task) error),
		pipelineConcurrency:  concurrency,
	}

	logger.AddRequestID(bb.Router)
	s.handleCORS()
	s.handleCompression()
	if len(bb.OperatorKeysURL) > 0 {
		bb.Router.Use(access.NewJwtMiddelware(&access.JwtMiddlewareBuilder{
			KeysDownloadURL: bb.OperatorKeysURL,
			Issuer:          bb.OperatorTokenIssuer,
			DB:              bb.DB,
		}))
	}
	s.addKeyMiddleware(bb.Router)

	access.HandleAuthorizationRoute(bb.Router)
	s.handleHealthcheckRoute(bb.Router)
	s.handleFirmwareRoutes(bb.Router)
	s.handleTasks(bb.Router, bb.UpdateSchema)
	s.handleStatistics(bb.Router)
	s.handleVersion(bb.Router)

	s.registerFirmwareEventWorker()

	return s
}

// Store returns the service's data store.
func (s *Service) Store() *Store {
	return s.store
}

func (s *Service) handleHealthcheckRoute(router *mux.Router) {
	logger.Default().Debugln("healthcheck")
	logger.Default().Debugln("  handle route: /healthcheck GET")
	router.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		jsonData, _ := json.Marshal(struct {
			Status  int    `json:"status"`
			Message string `json:"message"`
		}{
			Status:  http.StatusOK,
			Message: "Healthy",
		})
		w.Write(jsonData)
	}).Methods(http.MethodOptions, http.MethodGet)
}

func (s *Service) handleCORS() {

	corsMiddleware := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Set CORS headers for all requests
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, If-None-Match, Access-Control-Allow-Origin, X-Device-Api-Key, X-Project-Membership-Api-Key")
			w.Header().Set("Access-Control-Expose-Headers", "*")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			// Handle preflight OPTIONS request
			if r.Method == http.MethodOptions {
				logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method, " (handled by CORS middleware)")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			h.ServeHTTP(w, r)
		})
	}
	s.router.Use(corsMiddleware)
}

func (s *Service) handleCompression() {

	compressionMiddleware := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlers.CompressHandler(h).ServeHTTP(w, r)
		})
	}
	s.router.Use(compressionMiddleware)
}

// jsonError replies to the request with the specified message as JSON object
// {"message": ...} and the specified HTTP code.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonData, _ := json.Marshal(map[string]string{"message": message})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(jsonData)
}
