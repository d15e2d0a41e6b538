package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/usecase"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	healthUseCase *usecase.HealthUseCase
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(healthUseCase *usecase.HealthUseCase) *HealthHandler {
	return &HealthHandler{
		healthUseCase: healthUseCase,
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", h.GetHealth)
	router.GET("/health/live", h.GetLiveness)
	router.GET("/health/ready", h.GetReadiness)
}

// GetHealth returns store and settings checks
// @Summary Get service health
// @Tags Health
// @Produce json
// @Success 200 {object} entities.HealthCheck
// @Success 503 {object} entities.HealthCheck
// @Router /health [get]
func (h *HealthHandler) GetHealth(c *gin.Context) {
	health, err := h.healthUseCase.GetHealth(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	// partial still answers 200
	statusCode := http.StatusOK
	if health.Status == entities.HealthStatusDown {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// GetLiveness returns liveness status
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	if h.healthUseCase.GetLiveness(c.Request.Context()) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "dead"})
}

// GetReadiness reports whether the backing store answers
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	ready, message := h.healthUseCase.GetReadiness(c.Request.Context())
	if ready {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ready",
			"message": message,
		})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"status":  "not_ready",
		"message": message,
	})
}
