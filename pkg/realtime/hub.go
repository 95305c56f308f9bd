// Package realtime pushes permission-change signals to connected
// clients over websockets so sessions can re-resolve instead of
// waiting out a poll interval. Delivery is at-most-once and advisory:
// a missed signal costs freshness, never correctness, because every
// authorization decision still reads durable state.
package realtime

import (
	"encoding/json"
	"io"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/girderhq/girder/pkg/contextkeys"
	"github.com/girderhq/girder/pkg/observability"
)

// Message is the wire format in both directions. Clients send
// join_tenant and leave_tenant; the server sends rbac_updated.
type Message struct {
	Type     string `json:"type"`
	TenantID int64  `json:"tenantId,omitempty"`
}

const (
	// TypeJoinTenant subscribes the session to one tenant's signals.
	TypeJoinTenant = "join_tenant"
	// TypeLeaveTenant drops the session's tenant subscription.
	TypeLeaveTenant = "leave_tenant"
	// TypeRBACUpdated tells the client its permissions in the joined
	// tenant may have changed and it should re-resolve.
	TypeRBACUpdated = "rbac_updated"
)

// sendBuffer bounds the per-session outbound queue. A full buffer
// drops the signal rather than blocking the hub.
const sendBuffer = 8

type session struct {
	conn   *websocket.Conn
	userID int64

	mu       sync.Mutex
	tenantID int64 // 0 when not joined

	send chan Message
	done chan struct{}
}

func (s *session) tenant() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenantID
}

func (s *session) setTenant(id int64) {
	s.mu.Lock()
	s.tenantID = id
	s.mu.Unlock()
}

// Hub tracks live websocket sessions and routes signals to the
// sessions of an affected user in a tenant. A session follows at most
// one tenant at a time; joining a second tenant replaces the first.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*session]struct{}

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewHub creates an empty hub. logger and metrics may be nil.
func NewHub(logger *observability.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		sessions: make(map[*session]struct{}),
		logger:   logger,
		metrics:  metrics,
	}
}

// Handler returns the websocket handler for the hub. The actor's user
// ID must already be on the request context (identity middleware runs
// before the handshake); connections without one are closed.
func (h *Hub) Handler() websocket.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		userID, ok := conn.Request().Context().Value(contextkeys.ActorIDKey).(int64)
		if !ok || userID == 0 {
			conn.Close()
			return
		}
		h.serve(conn, userID)
	})
}

func (h *Hub) serve(conn *websocket.Conn, userID int64) {
	sess := &session{
		conn:   conn,
		userID: userID,
		send:   make(chan Message, sendBuffer),
		done:   make(chan struct{}),
	}
	h.register(sess)
	defer h.unregister(sess)

	go h.writeLoop(sess)
	h.readLoop(sess)
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.RealtimeConnections.Inc()
	}
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	close(s.done)
	s.conn.Close()
	if h.metrics != nil {
		h.metrics.RealtimeConnections.Dec()
	}
}

func (h *Hub) readLoop(s *session) {
	dec := json.NewDecoder(s.conn)
	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			if err != io.EOF && h.logger != nil {
				h.logger.WithError(err).Debug("websocket read ended")
			}
			return
		}
		switch msg.Type {
		case TypeJoinTenant:
			if msg.TenantID <= 0 {
				continue
			}
			s.setTenant(msg.TenantID)
			if h.metrics != nil {
				h.metrics.RealtimeJoinsTotal.Inc()
			}
		case TypeLeaveTenant:
			s.setTenant(0)
		default:
			// Unknown client messages are ignored so protocol
			// additions do not break older servers.
		}
	}
}

func (h *Hub) writeLoop(s *session) {
	for {
		select {
		case msg := <-s.send:
			if err := websocket.JSON.Send(s.conn, msg); err != nil {
				s.conn.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// DeliverLocal queues an rbac_updated signal to every local session of
// the user that has joined the tenant. A session with a full buffer is
// skipped; the signal is advisory.
func (h *Hub) DeliverLocal(tenantID, userID int64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions {
		if s.userID != userID || s.tenant() != tenantID {
			continue
		}
		select {
		case s.send <- Message{Type: TypeRBACUpdated, TenantID: tenantID}:
			if h.metrics != nil {
				h.metrics.PropagationEventsTotal.WithLabelValues("delivered").Inc()
			}
		default:
			if h.metrics != nil {
				h.metrics.PropagationEventsTotal.WithLabelValues("dropped").Inc()
			}
		}
	}
}

// Close disconnects every session, for shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		s.conn.Close()
	}
}
