// Package protocol defines the WebSocket message types for routing sessions.
// All messages are JSON-encoded and wrapped in an Envelope; every client
// request gets exactly one reply whose RequestID echoes the request's ID.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/skillrouter/internal/catalog"
	"github.com/jkaninda/skillrouter/internal/gateway"
)

// Subprotocol is negotiated on the WebSocket upgrade.
const Subprotocol = "skillrouter-v1"

// MessageType identifies the kind of message in the WebSocket protocol.
type MessageType string

const (
	// Client → Server
	MsgRouteRequest  MessageType = "route.request"
	MsgHealthRequest MessageType = "catalog.health"
	MsgPing          MessageType = "session.ping"

	// Server → Client
	MsgReady        MessageType = "session.ready"
	MsgRouteResult  MessageType = "route.result"
	MsgHealthReport MessageType = "catalog.report"
	MsgPong         MessageType = "session.pong"

	// Server → Client, in reply to any request that could not be served.
	MsgError MessageType = "error"
)

// Envelope is the top-level message wrapper for all WebSocket communication.
type Envelope struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id"`                   // Message ID. Clients may set their own.
	RequestID string          `json:"request_id,omitempty"` // On replies: the ID of the request answered.
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope creates an Envelope with a fresh ID and current timestamp.
func NewEnvelope(msgType MessageType, payload any) (*Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Envelope{
		Type:      msgType,
		ID:        uuid.New().String(),
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Reply creates a response envelope answering e.
func (e *Envelope) Reply(msgType MessageType, payload any) (*Envelope, error) {
	out, err := NewEnvelope(msgType, payload)
	if err != nil {
		return nil, err
	}
	out.RequestID = e.ID
	return out, nil
}

// Decode unmarshals the Payload into the given target.
func (e *Envelope) Decode(target any) error {
	return json.Unmarshal(e.Payload, target)
}

// --- Payloads ---

// RouteRequestPayload is sent with MsgRouteRequest.
type RouteRequestPayload = gateway.RouteRequest

// RouteResultPayload is sent with MsgRouteResult.
type RouteResultPayload = gateway.RouteResponse

// HealthReportPayload is sent with MsgHealthReport.
type HealthReportPayload = catalog.HealthReport

// ReadyPayload is sent with MsgReady once the session is accepted.
type ReadyPayload struct {
	SessionID            string  `json:"session_id"`
	ConfidenceThreshold  float64 `json:"confidence_threshold"`
	UncertaintyThreshold float64 `json:"uncertainty_threshold"`
	IdleTimeoutSeconds   int     `json:"idle_timeout_seconds"`
}

// ErrorPayload is sent with MsgError.
type ErrorPayload struct {
	Code    string `json:"code"` // "bad_request", "rate_limited", "internal", "unknown_type"
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeRateLimited = "rate_limited"
	ErrCodeInternal    = "internal"
	ErrCodeUnknownType = "unknown_type"
)
