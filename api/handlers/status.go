package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

// DeploymentHistory is satisfied by queries.DeploymentRepository.
type DeploymentHistory interface {
	GetByResourceGroup(ctx context.Context, resourceGroup string, limit int) ([]models.DeploymentRecord, error)
}

type StatusHandler struct {
	agent   StatusProvider
	history DeploymentHistory
}

// NewStatusHandler serves the agent's status. history may be nil.
func NewStatusHandler(agent StatusProvider, history DeploymentHistory) *StatusHandler {
	return &StatusHandler{agent: agent, history: history}
}

func (h *StatusHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.agent.Status())
}

// Deployments lists recent scale-up deployments for the agent's resource
// group, newest first.
func (h *StatusHandler) Deployments(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "deployment history is not configured"})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	rg := h.agent.Status().ResourceGroup
	deployments, err := h.history.GetByResourceGroup(c.Request.Context(), rg, limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load deployments"})
		return
	}
	if deployments == nil {
		deployments = []models.DeploymentRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"resource_group": rg,
		"deployments":    deployments,
	})
}
