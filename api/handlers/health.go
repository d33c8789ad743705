package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/swarm-autoscaler/pkg/database"
	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

// HealthChecker is satisfied by the snapshot collector.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type StatusProvider interface {
	Status() models.AgentStatus
}

type HealthHandler struct {
	db        *database.DB
	collector HealthChecker
	agent     StatusProvider
}

// NewHealthHandler builds the probe handlers. db may be nil when deployment
// history is disabled.
func NewHealthHandler(db *database.DB, collector HealthChecker, agent StatusProvider) *HealthHandler {
	return &HealthHandler{db: db, collector: collector, agent: agent}
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]string      `json:"checks,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Health checks the swarm manager, the database and whether the agent has
// halted.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "healthy"

	if err := h.collector.HealthCheck(ctx); err != nil {
		checks["swarm"] = "unhealthy: " + err.Error()
		status = "unhealthy"
	} else {
		checks["swarm"] = "healthy"
	}

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			status = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	}

	agent := h.agent.Status()
	if agent.IsHalted() {
		checks["agent"] = "halted: " + agent.LastError
		status = "unhealthy"
	} else {
		checks["agent"] = string(agent.Phase)
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    status,
		Timestamp: now(),
		Checks:    checks,
	})
}

// Ready reports ready once the manifest is in place and the loop is running.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	phase := h.agent.Status().Phase
	if phase == models.PhaseStarting || phase == models.PhaseHalted {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:    "not ready",
			Timestamp: now(),
			Checks:    map[string]string{"agent": string(phase)},
		})
		return
	}

	resp := HealthResponse{
		Status:    "ready",
		Timestamp: now(),
		Checks:    map[string]string{"agent": string(phase)},
	}

	if h.db != nil {
		if err := h.db.Ready(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, HealthResponse{
				Status:    "not ready",
				Timestamp: now(),
				Checks:    map[string]string{"database": err.Error()},
			})
			return
		}
		resp.Checks["database"] = "ready"
		resp.Details = h.db.ConnectionStats()
	}

	c.JSON(http.StatusOK, resp)
}

func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: now(),
	})
}
