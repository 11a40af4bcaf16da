// Package websocket implements the live subscription registry: each
// WebSocket connection belongs to exactly one authenticated user and,
// transitively, one department. Events are published to identity topics
// and fanned out to every live connection subscribed to them. The
// server buffers nothing for disconnected clients; a client that missed
// events re-syncs by refetching state after reconnect.
package websocket

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/telemetry"
)

// UserTopic and DeptTopic name the identity topics a connection is
// subscribed to for its lifetime.
func UserTopic(userID uuid.UUID) string { return "user:" + userID.String() }
func DeptTopic(deptID uuid.UUID) string { return "dept:" + deptID.String() }

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client represents a single live connection and the identity it
// belongs to. Topics are fixed at registration; the subscription's
// lifetime is the connection's lifetime.
type Client struct {
	ID           string
	UserID       uuid.UUID
	DepartmentID uuid.UUID
	Send         chan []byte
	conn         Conn
}

func (c *Client) topics() []string {
	topics := []string{UserTopic(c.UserID)}
	if c.DepartmentID != uuid.Nil {
		topics = append(topics, DeptTopic(c.DepartmentID))
	}
	return topics
}

// Hub is the connection registry. All operations are thread-safe.
type Hub struct {
	mu          sync.RWMutex
	byTopic     map[string]map[*Client]struct{}
	all         map[*Client]struct{}
	connections *telemetry.Gauge
}

func NewHub(metrics *telemetry.Registry) *Hub {
	if metrics == nil {
		metrics = telemetry.NewRegistry()
	}
	return &Hub{
		byTopic:     make(map[string]map[*Client]struct{}),
		all:         make(map[*Client]struct{}),
		connections: metrics.Gauge("websocket_connections", "Live WebSocket subscriber connections."),
	}
}

// Register admits a connection and subscribes it to its identity
// topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.topics() {
		if h.byTopic[topic] == nil {
			h.byTopic[topic] = make(map[*Client]struct{})
		}
		h.byTopic[topic][client] = struct{}{}
	}
	h.connections.Inc()
}

// Unregister removes a connection from the registry and closes its Send
// channel. Safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	for _, topic := range client.topics() {
		if subscribers, ok := h.byTopic[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.byTopic, topic)
			}
		}
	}

	delete(h.all, client)
	close(client.Send)
	h.connections.Dec()
}

// PublishToUser delivers a payload to every live connection of the
// given user. A connection with a full send buffer is skipped: delivery
// is at-least-once across the system, and a slow reader must not block
// the publisher.
func (h *Hub) PublishToUser(userID uuid.UUID, data []byte) {
	h.publish(UserTopic(userID), data)
}

// PublishToDepartment delivers a payload to every live connection of
// the department's members.
func (h *Hub) PublishToDepartment(deptID uuid.UUID, data []byte) {
	h.publish(DeptTopic(deptID), data)
}

func (h *Hub) publish(topic string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.byTopic[topic] {
		select {
		case client.Send <- data:
		default:
			// Buffer full; drop. The client resyncs via refetch when it
			// notices the sequence gap.
		}
	}
}

// ClientCount returns the total number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of connections subscribed to a topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byTopic[topic])
}

// UserConnected reports whether the user has at least one live
// connection.
func (h *Hub) UserConnected(userID uuid.UUID) bool {
	return h.TopicCount(UserTopic(userID)) > 0
}

// ---------------------------------------------------------------------------
// Echo handler
// ---------------------------------------------------------------------------

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler upgrades HTTP connections and binds them to the hub under the
// caller's authenticated identity.
type Handler struct {
	hub *Hub
	log zerolog.Logger
}

func NewHandler(hub *Hub, log zerolog.Logger) *Handler {
	return &Handler{hub: hub, log: log.With().Str("component", "websocket").Logger()}
}

// RegisterRoutes registers the subscription endpoint.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleConnect)
}

// HandleConnect upgrades the connection and runs read/write pumps until
// the socket closes. The identity must already be established by the
// auth middleware; anonymous upgrades are refused.
func (h *Handler) HandleConnect(c echo.Context) error {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "subscription requires an authenticated user")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:           uuid.New().String(),
		UserID:       userID,
		DepartmentID: auth.CurrentDepartmentID(c),
		Send:         make(chan []byte, 256),
		conn:         &gorillaConn{ws},
	}

	h.hub.Register(client)
	h.log.Debug().Str("connection_id", client.ID).Str("user_id", userID.String()).Msg("subscriber connected")

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// readPump consumes inbound frames until the socket errors or closes.
// Clients send nothing the server acts on; the read loop exists to
// detect disconnection promptly.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		client.conn.Close()
		h.log.Debug().Str("connection_id", client.ID).Msg("subscriber disconnected")
	}()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump writes queued payloads to the socket. A write failure
// removes the subscription; the client reconnects and refetches.
func (h *Handler) writePump(client *Client) {
	defer client.conn.Close()

	for message := range client.Send {
		if err := client.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			h.hub.Unregister(client)
			return
		}
	}
}

// gorillaConn wraps a gorilla/websocket.Conn to satisfy Conn.
type gorillaConn struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConn) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConn) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConn) Close() error {
	return a.conn.Close()
}
