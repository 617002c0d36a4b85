package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/learning-platform-service/internal/services"
	"github.com/SAP-F-2025/learning-platform-service/internal/utils"
)

type DashboardHandler struct {
	BaseHandler
	service services.DashboardService
}

func NewDashboardHandler(service services.DashboardService, logger utils.Logger) *DashboardHandler {
	return &DashboardHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// GetDashboardStats returns the statistics for the caller's role
// @Summary Get dashboard statistics
// @Tags dashboard
// @Produce json
// @Success 200 {object} services.DashboardStats
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 503 {object} ErrorResponse "Store unavailable"
// @Router /dashboard/stats [get]
func (h *DashboardHandler) GetDashboardStats(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Getting dashboard stats", "role", actor.Role)

	stats, err := h.service.GetStats(c.Request.Context(), actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
