package dispatch

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/domain/consult"
	"github.com/carelink/carelink/internal/platform/auth"
)

// Channel identifies a delivery path.
type Channel string

const (
	ChannelLive Channel = "live"
	ChannelPush Channel = "push"
)

// Attempt records one per-recipient delivery attempt. Events are not
// persisted beyond this log; it exists for operational inspection.
type Attempt struct {
	ConsultID uuid.UUID         `json:"consult_id"`
	Sequence  int64             `json:"sequence"`
	Kind      consult.EventKind `json:"kind"`
	Channel   Channel           `json:"channel"`
	Recipient uuid.UUID         `json:"recipient"`
	DeviceID  string            `json:"device_id,omitempty"`
	OK        bool              `json:"ok"`
	Error     string            `json:"error,omitempty"`
	At        time.Time         `json:"at"`
}

// DeliveryLog is a fixed-size ring of recent delivery attempts.
type DeliveryLog struct {
	mu   sync.Mutex
	buf  []Attempt
	next int
	full bool

	sent   int64
	failed int64
}

func NewDeliveryLog(size int) *DeliveryLog {
	if size <= 0 {
		size = 512
	}
	return &DeliveryLog{buf: make([]Attempt, size)}
}

// Record appends an attempt, evicting the oldest when full.
func (l *DeliveryLog) Record(a Attempt) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf[l.next] = a
	l.next++
	if l.next == len(l.buf) {
		l.next = 0
		l.full = true
	}
	if a.OK {
		l.sent++
	} else {
		l.failed++
	}
}

// Recent returns up to n attempts, newest first.
func (l *DeliveryLog) Recent(n int) []Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := l.next
	if l.full {
		size = len(l.buf)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Attempt, 0, n)
	for i := 0; i < n; i++ {
		idx := l.next - 1 - i
		if idx < 0 {
			idx += len(l.buf)
		}
		out = append(out, l.buf[idx])
	}
	return out
}

// Stats returns lifetime delivery counts.
func (l *DeliveryLog) Stats() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return map[string]int64{
		"sent":   l.sent,
		"failed": l.failed,
	}
}

// Handler exposes the delivery log over HTTP for operators.
type Handler struct {
	log *DeliveryLog
}

func NewLogHandler(log *DeliveryLog) *Handler {
	return &Handler{log: log}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	admin := g.Group("", auth.RequireRole("admin"))
	admin.GET("/deliveries", h.Recent)
	admin.GET("/deliveries/stats", h.Stats)
}

func (h *Handler) Recent(c echo.Context) error {
	n, _ := strconv.Atoi(c.QueryParam("limit"))
	if n <= 0 {
		n = 50
	}
	return c.JSON(http.StatusOK, h.log.Recent(n))
}

func (h *Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.log.Stats())
}
