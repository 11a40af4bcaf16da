package websocket

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/telemetry"
)

func newClient(userID, deptID uuid.UUID, buffer int) *Client {
	return &Client{
		ID:           uuid.New().String(),
		UserID:       userID,
		DepartmentID: deptID,
		Send:         make(chan []byte, buffer),
	}
}

func TestHub_RegisterSubscribesIdentityTopics(t *testing.T) {
	hub := NewHub(nil)
	userID := uuid.New()
	deptID := uuid.New()

	client := newClient(userID, deptID, 4)
	hub.Register(client)

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount(UserTopic(userID)) != 1 {
		t.Error("expected subscription on user topic")
	}
	if hub.TopicCount(DeptTopic(deptID)) != 1 {
		t.Error("expected subscription on department topic")
	}
	if !hub.UserConnected(userID) {
		t.Error("expected UserConnected to report true")
	}
}

func TestHub_RegisterWithoutDepartment(t *testing.T) {
	hub := NewHub(nil)
	userID := uuid.New()

	hub.Register(newClient(userID, uuid.Nil, 4))

	if hub.TopicCount(UserTopic(userID)) != 1 {
		t.Error("expected subscription on user topic")
	}
	if hub.TopicCount(DeptTopic(uuid.Nil)) != 0 {
		t.Error("nil department must not create a topic")
	}
}

func TestHub_UnregisterRemovesAndClosesSend(t *testing.T) {
	hub := NewHub(nil)
	userID := uuid.New()
	deptID := uuid.New()

	client := newClient(userID, deptID, 4)
	hub.Register(client)
	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.UserConnected(userID) {
		t.Error("expected user to be disconnected")
	}
	if hub.TopicCount(DeptTopic(deptID)) != 0 {
		t.Error("expected department topic to be cleaned up")
	}

	select {
	case _, open := <-client.Send:
		if open {
			t.Error("expected Send channel to be closed")
		}
	default:
		t.Error("expected Send channel to be closed")
	}

	// A second Unregister must be a no-op, not a double close.
	hub.Unregister(client)
}

func TestHub_PublishToUser(t *testing.T) {
	hub := NewHub(nil)
	userID := uuid.New()
	other := uuid.New()

	first := newClient(userID, uuid.Nil, 4)
	second := newClient(userID, uuid.Nil, 4)
	bystander := newClient(other, uuid.Nil, 4)
	hub.Register(first)
	hub.Register(second)
	hub.Register(bystander)

	hub.PublishToUser(userID, []byte("hello"))

	for _, client := range []*Client{first, second} {
		select {
		case got := <-client.Send:
			if string(got) != "hello" {
				t.Errorf("unexpected payload %q", got)
			}
		default:
			t.Error("expected delivery to every connection of the user")
		}
	}
	select {
	case <-bystander.Send:
		t.Error("message leaked to another user")
	default:
	}
}

func TestHub_PublishToDepartment(t *testing.T) {
	hub := NewHub(nil)
	deptID := uuid.New()

	member := newClient(uuid.New(), deptID, 4)
	outsider := newClient(uuid.New(), uuid.New(), 4)
	hub.Register(member)
	hub.Register(outsider)

	hub.PublishToDepartment(deptID, []byte("rounds"))

	select {
	case got := <-member.Send:
		if string(got) != "rounds" {
			t.Errorf("unexpected payload %q", got)
		}
	default:
		t.Error("expected delivery to department member")
	}
	select {
	case <-outsider.Send:
		t.Error("message leaked across departments")
	default:
	}
}

func TestHub_PublishDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(nil)
	userID := uuid.New()

	slow := newClient(userID, uuid.Nil, 1)
	hub.Register(slow)

	hub.PublishToUser(userID, []byte("first"))
	// Buffer is full; this must not block the publisher.
	hub.PublishToUser(userID, []byte("second"))

	got := <-slow.Send
	if string(got) != "first" {
		t.Errorf("expected the queued payload, got %q", got)
	}
	select {
	case extra := <-slow.Send:
		t.Errorf("expected the overflow payload to be dropped, got %q", extra)
	default:
	}
}

func TestHub_ConnectionGauge(t *testing.T) {
	metrics := telemetry.NewRegistry()
	hub := NewHub(metrics)
	gauge := metrics.Gauge("websocket_connections", "")

	first := newClient(uuid.New(), uuid.Nil, 4)
	second := newClient(uuid.New(), uuid.Nil, 4)
	hub.Register(first)
	hub.Register(second)
	if got := gauge.Value(); got != 2 {
		t.Errorf("expected gauge 2 after two registrations, got %d", got)
	}

	hub.Unregister(first)
	hub.Unregister(first) // repeat unregister must not double-count
	if got := gauge.Value(); got != 1 {
		t.Errorf("expected gauge 1 after unregister, got %d", got)
	}

	hub.Unregister(second)
	if got := gauge.Value(); got != 0 {
		t.Errorf("expected gauge 0 with no connections, got %d", got)
	}
}

func TestHub_PublishToEmptyTopic(t *testing.T) {
	hub := NewHub(nil)
	// Must not panic with no subscribers.
	hub.PublishToUser(uuid.New(), []byte("noop"))
	hub.PublishToDepartment(uuid.New(), []byte("noop"))
}

func TestHandler_ConnectRequiresIdentity(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := NewHandler(NewHub(nil), zerolog.Nop())
	err := handler.HandleConnect(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

type scriptedConn struct {
	reads  chan struct{}
	writes chan []byte
	closed chan struct{}
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{
		reads:  make(chan struct{}),
		writes: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *scriptedConn) ReadMessage() (int, []byte, error) {
	<-c.reads
	return 0, nil, http.ErrServerClosed
}

func (c *scriptedConn) WriteMessage(_ int, data []byte) error {
	c.writes <- data
	return nil
}

func (c *scriptedConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func TestHandler_WritePumpDeliversAndStops(t *testing.T) {
	hub := NewHub(nil)
	handler := NewHandler(hub, zerolog.Nop())

	conn := newScriptedConn()
	client := newClient(uuid.New(), uuid.Nil, 4)
	client.conn = conn
	hub.Register(client)

	go handler.writePump(client)

	hub.PublishToUser(client.UserID, []byte("event"))
	if got := <-conn.writes; string(got) != "event" {
		t.Fatalf("unexpected frame %q", got)
	}

	hub.Unregister(client)
	<-conn.closed
}

func TestHandler_ReadPumpUnregistersOnError(t *testing.T) {
	hub := NewHub(nil)
	handler := NewHandler(hub, zerolog.Nop())

	conn := newScriptedConn()
	client := newClient(uuid.New(), uuid.Nil, 4)
	client.conn = conn
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		handler.readPump(client)
		close(done)
	}()

	close(conn.reads) // next ReadMessage returns an error
	<-done

	if hub.ClientCount() != 0 {
		t.Errorf("expected disconnected client to be unregistered, got %d", hub.ClientCount())
	}
}
