package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker is satisfied by *database.PostgresDB and *redis.Client
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Component is a dependency reported by /ready. A nil Check reports
// "not configured" without failing readiness.
type Component struct {
	Name  string
	Check HealthChecker
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	components []Component
}

func NewHealthHandler(components ...Component) *HealthHandler {
	return &HealthHandler{components: components}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type ReadyResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components"`
}

// Health is the liveness probe
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready is the readiness probe
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]string, len(h.components))
	allHealthy := true

	for _, comp := range h.components {
		if comp.Check == nil {
			components[comp.Name] = "not configured"
			continue
		}
		if err := comp.Check.HealthCheck(ctx); err != nil {
			components[comp.Name] = "unhealthy: " + err.Error()
			allHealthy = false
			continue
		}
		components[comp.Name] = "healthy"
	}

	resp := ReadyResponse{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	}
	if allHealthy {
		resp.Status = "ready"
		c.JSON(http.StatusOK, resp)
		return
	}
	resp.Status = "not ready"
	c.JSON(http.StatusServiceUnavailable, resp)
}
