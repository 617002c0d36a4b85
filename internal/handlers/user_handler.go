package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/services"
	"github.com/SAP-F-2025/learning-platform-service/internal/utils"
	"github.com/SAP-F-2025/learning-platform-service/internal/validator"
)

type UserHandler struct {
	BaseHandler
	service services.UserService
}

func NewUserHandler(service services.UserService, logger utils.Logger) *UserHandler {
	return &UserHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// GetMe returns the caller's directory record
// @Summary Current user
// @Tags users
// @Produce json
// @Success 200 {object} models.User
// @Router /users/me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := GetUserFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	c.JSON(http.StatusOK, user)
}

// ListUsers lists users with optional filtering. A bare role filter returns
// every user with that role in one page.
// @Summary List users
// @Tags users
// @Produce json
// @Param page query int false "Page number (default: 1)"
// @Param size query int false "Page size (default: 20, max: 100)"
// @Param q query string false "Search query (name or email)"
// @Param role query string false "student, lecturer or admin"
// @Param status query string false "active or suspended"
// @Success 200 {object} services.UserListResponse
// @Router /users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Listing users", "actor_id", actor.ID)

	page, size := h.parsePagination(c)
	filters := services.UserListFilters{
		Query: c.Query("q"),
		Page:  page,
		Size:  size,
	}
	if raw := c.Query("role"); raw != "" {
		role := models.UserRole(raw)
		filters.Role = &role
	}
	if raw := c.Query("status"); raw != "" {
		status := models.UserStatus(raw)
		filters.Status = &status
	}

	if filters.Role != nil && filters.Status == nil && filters.Query == "" &&
		c.Query("page") == "" && c.Query("size") == "" {
		users, err := h.service.ListByRole(c.Request.Context(), actor, *filters.Role)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, services.UserListResponse{
			Users: users,
			Total: int64(len(users)),
			Page:  1,
			Size:  len(users),
		})
		return
	}

	list, err := h.service.List(c.Request.Context(), actor, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// GetUser retrieves a user by ID
// @Summary Get user by ID
// @Tags users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} ErrorResponse "Not found"
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, ok := h.parseStringIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	user, err := h.service.GetByID(c.Request.Context(), actor, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// SetStatus suspends or reactivates an account
// @Summary Set user status
// @Tags users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param body body validator.UserStatusRequest true "New status"
// @Success 200 {object} models.User
// @Router /users/{id}/status [put]
func (h *UserHandler) SetStatus(c *gin.Context) {
	userID, ok := h.parseStringIDParam(c, "id")
	if !ok {
		return
	}

	var req validator.UserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	actor, ok := h.actor(c)
	if !ok {
		return
	}

	user, err := h.service.SetStatus(c.Request.Context(), actor, userID, req.Status)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// SetRole
// @Summary Set user role
// @Tags users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param body body validator.UserRoleRequest true "New role"
// @Success 200 {object} models.User
// @Router /users/{id}/role [put]
func (h *UserHandler) SetRole(c *gin.Context) {
	userID, ok := h.parseStringIDParam(c, "id")
	if !ok {
		return
	}

	var req validator.UserRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	actor, ok := h.actor(c)
	if !ok {
		return
	}

	user, err := h.service.SetRole(c.Request.Context(), actor, userID, req.Role)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// DeleteUser removes the account and its course dependencies. When some
// dependent updates fail the response is 207 with the cascade report.
// @Summary Delete user
// @Tags users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} services.CascadeReport
// @Success 207 {object} ErrorResponse "Partial cascade"
// @Router /users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	userID, ok := h.parseStringIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Deleting user", "user_id", userID, "actor_id", actor.ID)

	report, err := h.service.Delete(c.Request.Context(), actor, userID)
	if err != nil {
		var cascadeErr *services.CascadeError
		if errors.As(err, &cascadeErr) {
			utils.FromContext(c, h.logger).Warn("User deleted with failed cascade", "user_id", userID, "failed", len(cascadeErr.Report.Failed))
		}
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
