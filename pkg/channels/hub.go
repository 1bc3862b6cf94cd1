// Package channels manages live client sessions and frame delivery. Each Go
// process has one Hub instance; sessions are keyed by user and client type so
// approval requests can target the user's preferred surface.
package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specforge/specforge/pkg/metrics"
)

// DefaultSendTimeout bounds a single frame write. A stalled client never
// blocks the sender longer than this.
const DefaultSendTimeout = 30 * time.Second

// Client types.
const (
	ClientTypeEditor = "editor"
	ClientTypeWeb    = "web"
	ClientTypeCLI    = "cli"
)

// ValidClientType reports whether t is a known client type.
func ValidClientType(t string) bool {
	return t == ClientTypeEditor || t == ClientTypeWeb || t == ClientTypeCLI
}

// Frame is the wire envelope for every live message, both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn is the transport a session runs over. The websocket adapter implements
// it; tests use in-memory fakes.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
}

// Session is one live client connection.
type Session struct {
	ID         string
	UserID     string
	ClientType string
	conn       Conn
	ctx        context.Context
	cancel     context.CancelFunc
}

// Handler processes one inbound frame from a session.
type Handler func(ctx context.Context, s *Session, data json.RawMessage)

// Hub tracks live sessions and routes frames. All session maps are guarded by
// one mutex; sends happen outside the lock.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	// byUser: user id -> client type -> session ids
	byUser map[string]map[string]map[string]*Session

	handlerMu sync.RWMutex
	handlers  map[string]Handler

	sendTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewHub creates a hub. metrics may be nil.
func NewHub(sendTimeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions:    make(map[string]*Session),
		byUser:      make(map[string]map[string]map[string]*Session),
		handlers:    make(map[string]Handler),
		sendTimeout: sendTimeout,
		metrics:     m,
		logger:      logger,
	}
}

// On registers the handler for an inbound event name. Later registrations for
// the same event replace earlier ones.
func (h *Hub) On(event string, handler Handler) {
	h.handlerMu.Lock()
	defer h.handlerMu.Unlock()
	h.handlers[event] = handler
}

// HandleConnection registers the session and runs its read loop. Blocks until
// the connection closes or the parent context is cancelled.
func (h *Hub) HandleConnection(parentCtx context.Context, userID, clientType string, conn Conn) error {
	if !ValidClientType(clientType) {
		return fmt.Errorf("unknown client type %q", clientType)
	}
	ctx, cancel := context.WithCancel(parentCtx)
	s := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		ClientType: clientType,
		conn:       conn,
		ctx:        ctx,
		cancel:     cancel,
	}

	h.register(s)
	defer h.unregister(s)

	h.sendJSON(s, "connection:established", map[string]string{
		"session_id":  s.ID,
		"user_id":     userID,
		"client_type": clientType,
	})

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return nil
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.logger.Warn("Invalid live frame", "session_id", s.ID, "error", err)
			continue
		}
		h.dispatch(ctx, s, &frame)
	}
}

// IsConnected reports whether the user has at least one live session of the
// given client type. An empty clientType matches any session.
func (h *Hub) IsConnected(userID, clientType string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	types, ok := h.byUser[userID]
	if !ok {
		return false
	}
	if clientType == "" {
		for _, sessions := range types {
			if len(sessions) > 0 {
				return true
			}
		}
		return false
	}
	return len(types[clientType]) > 0
}

// SendToUser delivers an event to every session of the user with the given
// client type (all sessions of the user when clientType is empty). A user with
// no matching session is a silent drop. Partial send failures are logged, not
// returned.
func (h *Hub) SendToUser(userID, clientType, event string, data any) error {
	targets := h.snapshot(userID, clientType)
	if len(targets) == 0 {
		return nil
	}
	payload, err := encodeFrame(event, data)
	if err != nil {
		return err
	}
	for _, s := range targets {
		if err := h.send(s, payload); err != nil {
			h.logger.Warn("Failed to send live frame",
				"session_id", s.ID, "user_id", userID, "event", event, "error", err)
		}
	}
	return nil
}

// Broadcast delivers an event to every registered session.
func (h *Hub) Broadcast(event string, data any) {
	payload, err := encodeFrame(event, data)
	if err != nil {
		h.logger.Warn("Failed to encode broadcast frame", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if err := h.send(s, payload); err != nil {
			h.logger.Warn("Failed to send broadcast frame",
				"session_id", s.ID, "event", event, "error", err)
		}
	}
}

// ActiveSessions returns the number of registered sessions.
func (h *Hub) ActiveSessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close disconnects every session, used during shutdown.
func (h *Hub) Close(reason string) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		_ = s.conn.Close(reason)
		s.cancel()
	}
}

func (h *Hub) dispatch(ctx context.Context, s *Session, frame *Frame) {
	h.handlerMu.RLock()
	handler, ok := h.handlers[frame.Event]
	h.handlerMu.RUnlock()
	if !ok {
		h.logger.Warn("Unhandled live event",
			"session_id", s.ID, "event", frame.Event)
		h.sendJSON(s, "error", map[string]string{
			"message": fmt.Sprintf("unknown event %q", frame.Event),
		})
		return
	}
	handler(ctx, s, frame.Data)
}

// snapshot copies matching session pointers under the lock so sends happen
// without holding it.
func (h *Hub) snapshot(userID, clientType string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	types, ok := h.byUser[userID]
	if !ok {
		return nil
	}
	var out []*Session
	for ct, sessions := range types {
		if clientType != "" && ct != clientType {
			continue
		}
		for _, s := range sessions {
			out = append(out, s)
		}
	}
	return out
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	types, ok := h.byUser[s.UserID]
	if !ok {
		types = make(map[string]map[string]*Session)
		h.byUser[s.UserID] = types
	}
	sessions, ok := types[s.ClientType]
	if !ok {
		sessions = make(map[string]*Session)
		types[s.ClientType] = sessions
	}
	sessions[s.ID] = s
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Connections.Inc()
	}
	h.logger.Info("Live session registered",
		"session_id", s.ID, "user_id", s.UserID, "client_type", s.ClientType)
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID)
	if types, ok := h.byUser[s.UserID]; ok {
		if sessions, ok := types[s.ClientType]; ok {
			delete(sessions, s.ID)
			if len(sessions) == 0 {
				delete(types, s.ClientType)
			}
		}
		if len(types) == 0 {
			delete(h.byUser, s.UserID)
		}
	}
	h.mu.Unlock()

	s.cancel()
	_ = s.conn.Close("")
	if h.metrics != nil {
		h.metrics.Connections.Dec()
	}
	h.logger.Info("Live session unregistered",
		"session_id", s.ID, "user_id", s.UserID, "client_type", s.ClientType)
}

func (h *Hub) sendJSON(s *Session, event string, data any) {
	payload, err := encodeFrame(event, data)
	if err != nil {
		h.logger.Warn("Failed to encode live frame",
			"session_id", s.ID, "event", event, "error", err)
		return
	}
	if err := h.send(s, payload); err != nil {
		h.logger.Warn("Failed to send live frame",
			"session_id", s.ID, "event", event, "error", err)
	}
}

func (h *Hub) send(s *Session, payload []byte) error {
	writeCtx, cancel := context.WithTimeout(s.ctx, h.sendTimeout)
	defer cancel()
	return s.conn.Write(writeCtx, payload)
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
