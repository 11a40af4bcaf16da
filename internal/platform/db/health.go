package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// DBHealth is the payload of the database health endpoint. The pool
// numbers matter operationally: an exhausted pool shows up as consult
// writes timing out long before the database itself is unhealthy.
type DBHealth struct {
	Status        string `json:"status"`
	TotalConns    int32  `json:"total_conns"`
	IdleConns     int32  `json:"idle_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	MaxConns      int32  `json:"max_conns"`
	WaitCount     int64  `json:"wait_count"`
	WaitDuration  string `json:"wait_duration"`
	Error         string `json:"error,omitempty"`
}

// CheckHealth pings the database and snapshots pool statistics.
func CheckHealth(ctx context.Context, pool *pgxpool.Pool) DBHealth {
	stat := pool.Stat()
	h := DBHealth{
		Status:        "up",
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
		WaitCount:     stat.EmptyAcquireCount(),
		WaitDuration:  stat.AcquireDuration().String(),
	}
	if err := pool.Ping(ctx); err != nil {
		h.Status = "down"
		h.Error = err.Error()
	}
	return h
}

// HealthHandler serves the database readiness check. 503 while the
// database is unreachable so the load balancer stops routing consult
// traffic here.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		h := CheckHealth(ctx, pool)
		if h.Status != "up" {
			return c.JSON(http.StatusServiceUnavailable, h)
		}
		return c.JSON(http.StatusOK, h)
	}
}
