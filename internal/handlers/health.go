package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether the backing store is reachable.
type Pinger func(ctx context.Context) error

func Home() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Food ordering API",
			"health":  "/health",
			"api":     "/api",
		})
	}
}

func Health(ping Pinger, startedAt time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /health"
		defer handlePanic(c, route)

		status := http.StatusOK
		dbState := "connected"
		if err := ping(c.Request.Context()); err != nil {
			log.Println("[HEALTH] [ERROR] database ping failed:", err)
			status = http.StatusServiceUnavailable
			dbState = "disconnected"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":    state,
			"database":  dbState,
			"uptime":    time.Since(startedAt).Round(time.Second).String(),
			"timestamp": time.Now().UTC(),
		})
	}
}
