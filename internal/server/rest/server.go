// Package rest exposes the API key service over HTTP: routing, bearer token
// authentication, JSON envelopes, request ids and Prometheus metrics.
package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/keyforge/internal/logging"
	"github.com/dmitrijs2005/keyforge/internal/server/auth"
	"github.com/dmitrijs2005/keyforge/internal/server/models"
	"github.com/dmitrijs2005/keyforge/internal/server/services"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// APIKeyManager is the part of services.APIKeyService used by the handlers.
type APIKeyManager interface {
	IssueNamed(ctx context.Context, userID int64, name string) (string, *models.APIKey, error)
	List(ctx context.Context) ([]models.APIKeyView, error)
	ListForUser(ctx context.Context, userID int64) ([]models.APIKeyView, error)
	Get(ctx context.Context, keyID int64) (models.APIKeyView, error)
	UpdateOwned(ctx context.Context, ownerID, keyID int64, patch services.APIKeyPatch) (*models.APIKey, error)
	RevokeOwned(ctx context.Context, ownerID, keyID int64) (bool, error)
}

// Authenticator exchanges credentials for a bearer token.
type Authenticator interface {
	Login(ctx context.Context, userName, password string) (*services.LoginResult, error)
}

// TokenVerifier resolves a bearer token to a principal.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*auth.Principal, error)
}

// Pinger reports database reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators of HTTPServer.
type Deps struct {
	APIKeys  APIKeyManager
	Users    Authenticator
	Verifier TokenVerifier
	DB       Pinger
	Logger   logging.Logger
	Registry *prometheus.Registry
}

type HTTPServer struct {
	address         string
	shutdownTimeout time.Duration
	apikeys         APIKeyManager
	users           Authenticator
	db              Pinger
	logger          logging.Logger
	metrics         *Metrics
	auth            *AuthMiddleware
	handler         http.Handler
}

func NewHTTPServer(address string, shutdownTimeout time.Duration, d Deps) *HTTPServer {
	logger := d.Logger
	if logger == nil {
		logger = logging.Nop{}
	}
	registry := d.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &HTTPServer{
		address:         address,
		shutdownTimeout: shutdownTimeout,
		apikeys:         d.APIKeys,
		users:           d.Users,
		db:              d.DB,
		logger:          logger.With("module", "http_server"),
		metrics:         NewMetrics(registry),
	}
	s.auth = NewAuthMiddleware(d.Verifier, s.logger, s.metrics)
	s.handler = s.routes(registry)
	return s
}

// Handler returns the fully wired router.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) routes(registry *prometheus.Registry) http.Handler {
	r := mux.NewRouter()
	r.Use(s.metrics.Middleware, s.accessLog)

	protected := s.auth.Handler

	handle(r, "/apikeys", protected(http.HandlerFunc(s.createAPIKey)), http.MethodPost)
	handle(r, "/apikeys", http.HandlerFunc(s.listAPIKeys), http.MethodGet)
	handle(r, "/apikeys/{id}", http.HandlerFunc(s.getAPIKey), http.MethodGet)
	handle(r, "/apikeys/{id}", protected(http.HandlerFunc(s.updateAPIKey)), http.MethodPut)
	handle(r, "/apikeys/{id}", protected(http.HandlerFunc(s.deleteAPIKey)), http.MethodDelete)
	handle(r, "/login", http.HandlerFunc(s.login), http.MethodPost)
	handle(r, "/healthz", http.HandlerFunc(s.healthz), http.MethodGet)
	r.Handle("/metrics", MetricsHandler(registry)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Message: "not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Message: "method not allowed"})
	})

	return requestID(r)
}

// handle registers path both with and without a trailing slash.
func handle(r *mux.Router, path string, h http.Handler, method string) {
	r.Handle(path, h).Methods(method)
	r.Handle(path+"/", h).Methods(method)
}

// Run serves until ctx is canceled, then drains in-flight requests for at
// most the shutdown timeout.
func (s *HTTPServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		stopped <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return <-stopped
}
