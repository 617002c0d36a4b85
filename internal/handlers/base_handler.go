package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/services"
	"github.com/SAP-F-2025/learning-platform-service/internal/utils"
)

type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// BaseHandler carries the helpers shared by every handler
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.FromContext(c, h.logger).Debug(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	utils.FromContext(c, h.logger).Error(msg, append(args, "error", err)...)
}

// actor returns the authenticated caller or writes a 401
func (h *BaseHandler) actor(c *gin.Context) (models.Actor, bool) {
	actor, err := GetActorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return models.Actor{}, false
	}
	return actor, true
}

func (h *BaseHandler) parseStringIDParam(c *gin.Context, param string) (string, bool) {
	id := c.Param(param)
	if id == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: param + " is required",
		})
		return "", false
	}
	return id, true
}

// parsePagination reads page and size, falling back to 1 and 20
func (h *BaseHandler) parsePagination(c *gin.Context) (int, int) {
	page, size := 1, 20

	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(c.Query("size")); err == nil && s > 0 && s <= 100 {
		size = s
	}

	return page, size
}

func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	var stateError *services.StateError
	if errors.As(err, &stateError) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: stateError.Error(),
			Details: map[string]interface{}{
				"operation": stateError.Operation,
				"status":    stateError.Current,
			},
		})
		return
	}

	var capacityError *services.CapacityError
	if errors.As(err, &capacityError) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Course is full",
			Details: map[string]interface{}{
				"max_students": capacityError.MaxStudents,
				"enrolled":     capacityError.Enrolled,
			},
		})
		return
	}

	var cascadeError *services.CascadeError
	if errors.As(err, &cascadeError) {
		c.JSON(http.StatusMultiStatus, ErrorResponse{
			Message: "Some dependent updates failed",
			Details: cascadeError.Report,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrValidationFailed):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
	case errors.Is(err, services.ErrCourseNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Course not found",
		})
	case errors.Is(err, services.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "User not found",
		})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Resource not found",
		})
	case errors.Is(err, services.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Forbidden - insufficient permissions",
		})
	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Resource conflict",
			Details: err.Error(),
		})
	case errors.Is(err, services.ErrDependencyUnavailable):
		h.LogError(c, err, "Dependency unavailable")
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Message: "Service temporarily unavailable, retry the request",
			Details: map[string]interface{}{"retryable": true},
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
