package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/jkaninda/skillrouter/internal/router"
)

// CorrelationHeader carries the request correlation ID in both directions.
const CorrelationHeader = "X-Correlation-ID"

const maxCorrelationIDLen = 64

type clientKey struct{}

// clientFromContext returns the authenticated client label set by guard.
func clientFromContext(ctx context.Context) string {
	v, _ := ctx.Value(clientKey{}).(string)
	return v
}

// guard protects the /v1 API. For every /v1 request it:
//   - caps the body at the configured size
//   - resolves a correlation ID and echoes it in the response
//   - authenticates the bearer token when API keys are configured
//   - applies the per-client rate limit, answering 429 with Retry-After
//
// Other paths (probes, metrics, docs, WebSocket) pass through untouched.
func (g *Gateway) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/") {
			next.ServeHTTP(w, r)
			return
		}

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, g.maxRequestSize())
		}

		correlationID := r.Header.Get(CorrelationHeader)
		if correlationID == "" || len(correlationID) > maxCorrelationIDLen {
			correlationID = router.NewCorrelationID()
		}
		w.Header().Set(CorrelationHeader, correlationID)
		ctx := router.WithCorrelationID(r.Context(), correlationID)

		client, ok := g.authenticate(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing or invalid API key")
			return
		}

		if err := g.limiter.Allow(client); err != nil {
			retry := g.limiter.RetryAfter(client)
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
			g.logger.Warn("rate limit exceeded",
				slog.String("client", client),
				slog.String("correlation_id", correlationID),
			)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		ctx = context.WithValue(ctx, clientKey{}, client)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate resolves the client label for r. With no API keys
// configured every caller is accepted and identified by remote address;
// otherwise the bearer token must match one key (constant-time).
func (g *Gateway) authenticate(r *http.Request) (string, bool) {
	if len(g.config.APIKeys) == 0 {
		return remoteHost(r), true
	}

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	apiKey := strings.TrimPrefix(authHeader, "Bearer ")

	client := ""
	for i, key := range g.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			client = "key-" + strconv.Itoa(i)
		}
	}
	return client, client != ""
}

func (g *Gateway) maxRequestSize() int64 {
	if g.config.MaxRequestSize > 0 {
		return g.config.MaxRequestSize
	}
	return defaultMaxRequestSize
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: msg})
}
