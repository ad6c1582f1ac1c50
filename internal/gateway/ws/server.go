// Package ws implements persistent WebSocket routing sessions.
// A client connects, receives session.ready, and then sends route.request
// frames; each frame is answered by exactly one route.result or error
// frame, in order.
package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/jkaninda/skillrouter/internal/config"
	"github.com/jkaninda/skillrouter/internal/gateway"
	"github.com/jkaninda/skillrouter/internal/protocol"
	"github.com/jkaninda/skillrouter/internal/ratelimit"
	"github.com/jkaninda/skillrouter/internal/router"
)

// maxFrameSize caps a single inbound message.
const maxFrameSize = 64 << 10

// Server accepts WebSocket routing sessions.
type Server struct {
	router     gateway.Router
	health     gateway.HealthFunc
	thresholds router.Thresholds
	cfg        *config.WebSocketGatewayConfig
	tokens     []string
	limiter    *ratelimit.Limiter
	logger     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]time.Time // session ID → connected at
}

// NewServer creates a WebSocket server. When cfg.Token is empty, tokens
// (typically the HTTP API keys) authenticate instead; with neither,
// sessions are unauthenticated. limiter may be nil.
func NewServer(r gateway.Router, health gateway.HealthFunc, thresholds router.Thresholds, cfg *config.WebSocketGatewayConfig, tokens []string, limiter *ratelimit.Limiter, logger *slog.Logger) *Server {
	if cfg != nil && cfg.Token != "" {
		tokens = []string{cfg.Token}
	}
	return &Server{
		router:     r,
		health:     health,
		thresholds: thresholds,
		cfg:        cfg,
		tokens:     tokens,
		limiter:    limiter,
		logger:     logger,
		sessions:   make(map[string]time.Time),
	}
}

// ActiveSessions returns the number of connected sessions.
func (s *Server) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Handler returns an http.Handler that upgrades connections to WebSocket.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleUpgrade)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{protocol.Subprotocol},
	})
	if err != nil {
		s.logger.Error("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	conn.SetReadLimit(maxFrameSize)

	s.handleConnection(r.Context(), conn)
}

// authorized checks the token from the query string or the Authorization
// header against the configured tokens.
func (s *Server) authorized(r *http.Request) bool {
	if len(s.tokens) == 0 {
		return true
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	ok := false
	for _, t := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(t)) == 1 {
			ok = true
		}
	}
	return ok
}

func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn) {
	sessionID := uuid.New().String()
	s.mu.Lock()
	s.sessions[sessionID] = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "session closed")
	}()

	s.logger.Info("routing session opened", slog.String("session_id", sessionID))

	idle := s.cfg.IdleTimeout()
	ready, _ := protocol.NewEnvelope(protocol.MsgReady, protocol.ReadyPayload{
		SessionID:            sessionID,
		ConfidenceThreshold:  s.thresholds.Confidence,
		UncertaintyThreshold: s.thresholds.Uncertainty,
		IdleTimeoutSeconds:   int(idle.Seconds()),
	})
	if err := s.writeEnvelope(ctx, conn, ready); err != nil {
		s.logger.Warn("sending session.ready failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return
	}

	// Main message loop. Requests are served one at a time so replies
	// arrive in request order.
	for {
		readCtx, cancel := context.WithTimeout(ctx, idle)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			switch {
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
				websocket.CloseStatus(err) == websocket.StatusGoingAway:
				s.logger.Info("routing session closed by client", slog.String("session_id", sessionID))
			case errors.Is(err, context.DeadlineExceeded):
				s.logger.Info("routing session idle timeout", slog.String("session_id", sessionID))
			default:
				s.logger.Warn("routing session read error",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.replyError(ctx, conn, &protocol.Envelope{}, protocol.ErrCodeBadRequest, "invalid JSON message")
			continue
		}

		if err := s.handleMessage(ctx, conn, sessionID, &env); err != nil {
			s.logger.Warn("routing session write error",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

// handleMessage answers one inbound envelope. It returns an error only
// when the reply could not be written.
func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, sessionID string, env *protocol.Envelope) error {
	switch env.Type {
	case protocol.MsgRouteRequest:
		if err := s.limiter.Allow(sessionID); err != nil {
			return s.replyError(ctx, conn, env, protocol.ErrCodeRateLimited,
				fmt.Sprintf("rate limit exceeded, retry in %s", s.limiter.RetryAfter(sessionID)))
		}

		var req protocol.RouteRequestPayload
		if err := env.Decode(&req); err != nil {
			return s.replyError(ctx, conn, env, protocol.ErrCodeBadRequest, "invalid route.request payload")
		}

		correlationID := router.NewCorrelationID()
		routeCtx := router.WithCorrelationID(ctx, correlationID)
		resp, err := gateway.Route(routeCtx, s.router, req)
		if err != nil {
			if gateway.IsRequestError(err) {
				return s.replyError(ctx, conn, env, protocol.ErrCodeBadRequest, err.Error())
			}
			s.logger.Error("routing failed",
				slog.String("session_id", sessionID),
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)
			return s.replyError(ctx, conn, env, protocol.ErrCodeInternal, "routing failed")
		}

		s.logger.Debug("ws route",
			slog.String("session_id", sessionID),
			slog.String("correlation_id", correlationID),
			slog.Int("recommendations", len(resp.Recommendations)),
		)
		out, err := env.Reply(protocol.MsgRouteResult, resp)
		if err != nil {
			return err
		}
		return s.writeEnvelope(ctx, conn, out)

	case protocol.MsgHealthRequest:
		out, err := env.Reply(protocol.MsgHealthReport, s.health(ctx))
		if err != nil {
			return err
		}
		return s.writeEnvelope(ctx, conn, out)

	case protocol.MsgPing:
		out, _ := env.Reply(protocol.MsgPong, nil)
		return s.writeEnvelope(ctx, conn, out)

	default:
		s.logger.Warn("unknown message type from client",
			slog.String("session_id", sessionID),
			slog.String("type", string(env.Type)),
		)
		return s.replyError(ctx, conn, env, protocol.ErrCodeUnknownType,
			fmt.Sprintf("unknown message type %q", env.Type))
	}
}

func (s *Server) replyError(ctx context.Context, conn *websocket.Conn, req *protocol.Envelope, code, msg string) error {
	out, err := req.Reply(protocol.MsgError, protocol.ErrorPayload{Code: code, Message: msg})
	if err != nil {
		return err
	}
	return s.writeEnvelope(ctx, conn, out)
}

func (s *Server) writeEnvelope(ctx context.Context, conn *websocket.Conn, env *protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
