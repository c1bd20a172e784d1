package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck is an extra named check reported next to the database, such as
// the document store.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler returns a handler for the health check endpoint. The response
// is 503 when the database or any extra check fails.
func HealthHandler(db Pinger, checks ...HealthCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		components := map[string]string{}

		if err := db.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			components["database"] = err.Error()
		} else {
			components["database"] = "ok"
		}

		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				components[hc.Name] = err.Error()
				continue
			}
			components[hc.Name] = "ok"
		}

		body := map[string]interface{}{
			"status":     "healthy",
			"components": components,
		}
		if status != http.StatusOK {
			body["status"] = "unhealthy"
		}
		if pool, ok := db.(*pgxpool.Pool); ok {
			body["pool"] = GetPoolStats(pool)
		}
		return c.JSON(status, body)
	}
}
