package rest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/keyforge/internal/common"
	"github.com/dmitrijs2005/keyforge/internal/logging"
	"github.com/dmitrijs2005/keyforge/internal/server/auth"
	"github.com/google/uuid"
)

type ctxKey int

const (
	principalKey ctxKey = iota
	requestIDKey
)

// maxRequestIDLength caps client supplied request ids.
const maxRequestIDLength = 128

// PrincipalFromContext returns the principal stored by AuthMiddleware.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*auth.Principal)
	return p, ok && p != nil
}

// RequestIDFromContext returns the id assigned to the current request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// AuthResult is the outcome of Authenticate: either a principal or a
// rejection carrying its kind, HTTP status and client message.
type AuthResult struct {
	Principal *auth.Principal
	Kind      auth.Kind
	Status    int
	Message   string
	Err       error
}

// OK reports whether the request was authenticated.
func (r AuthResult) OK() bool {
	return r.Principal != nil
}

// AuthMiddleware gates handlers behind a bearer token. It never writes to
// the store and never retries.
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   logging.Logger
	metrics  *Metrics
}

func NewAuthMiddleware(v TokenVerifier, logger logging.Logger, metrics *Metrics) *AuthMiddleware {
	return &AuthMiddleware{verifier: v, logger: logger.With("component", "auth"), metrics: metrics}
}

// Authenticate extracts and verifies the bearer token of r.
func (m *AuthMiddleware) Authenticate(r *http.Request) AuthResult {
	header := r.Header.Get(common.AuthorizationHeaderName)

	token, ok := strings.CutPrefix(header, common.BearerPrefix)
	if !ok {
		return rejection(common.ErrMissingCredential)
	}

	p, err := m.verifier.Verify(r.Context(), token)
	if err != nil {
		return rejection(err)
	}

	return AuthResult{Principal: p, Kind: auth.KindNone, Status: http.StatusOK}
}

func rejection(err error) AuthResult {
	return AuthResult{
		Kind:    auth.KindOf(err),
		Status:  statusFor(err),
		Message: messageFor(err),
		Err:     err,
	}
}

// Handler wraps next so it only runs for authenticated requests, with the
// principal available through PrincipalFromContext.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := m.Authenticate(r)
		if m.metrics != nil {
			m.metrics.AuthOutcomes.WithLabelValues(outcomeLabel(res.Kind)).Inc()
		}

		if !res.OK() {
			m.logRejection(r, res)
			writeJSON(w, res.Status, envelope{Message: res.Message})
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, res.Principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) logRejection(r *http.Request, res AuthResult) {
	args := []any{
		"kind", res.Kind.String(),
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", RequestIDFromContext(r.Context()),
	}

	switch {
	case res.Kind == auth.KindInternal:
		m.logger.Error(r.Context(), "authentication failed", append(args, "error", res.Err)...)
	case res.Kind.SecurityEvent():
		m.logger.Warn(r.Context(), "rejected forged bearer token", append(args, "security_event", true)...)
	default:
		m.logger.Info(r.Context(), "request not authenticated", args...)
	}
}

func outcomeLabel(k auth.Kind) string {
	if k == auth.KindNone {
		return "ok"
	}
	return k.String()
}

// requestID assigns every request an id, reusing a sane X-Request-ID from
// the client, and echoes it in the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(common.RequestIDHeaderName)
		if id == "" || len(id) > maxRequestIDLength || strings.ContainsAny(id, "\r\n") {
			id = uuid.NewString()
		}

		w.Header().Set(common.RequestIDHeaderName, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLog logs one line per routed request.
func (s *HTTPServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newStatusRecorder(w)

		next.ServeHTTP(rw, r)

		s.logger.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}

// statusRecorder wraps http.ResponseWriter to capture status code and size.
type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}
