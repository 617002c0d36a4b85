package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/services"
	"github.com/SAP-F-2025/learning-platform-service/internal/utils"
	"github.com/SAP-F-2025/learning-platform-service/internal/validator"
)

const watchHeartbeat = 25 * time.Second

type CourseHandler struct {
	BaseHandler
	courseService       services.CourseService
	approvalService     services.ApprovalService
	subscriptionService services.SubscriptionService
	validator           *validator.Validator
}

func NewCourseHandler(
	courseService services.CourseService,
	approvalService services.ApprovalService,
	subscriptionService services.SubscriptionService,
	validator *validator.Validator,
	logger utils.Logger,
) *CourseHandler {
	return &CourseHandler{
		BaseHandler:         NewBaseHandler(logger),
		courseService:       courseService,
		approvalService:     approvalService,
		subscriptionService: subscriptionService,
		validator:           validator,
	}
}

// CreateCourse creates a new course in pending status
// @Summary Create course
// @Tags courses
// @Accept json
// @Produce json
// @Param course body services.CreateCourseRequest true "Course data"
// @Success 201 {object} services.CourseResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /courses [post]
func (h *CourseHandler) CreateCourse(c *gin.Context) {
	var req services.CreateCourseRequest
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

	course, err := h.courseService.Create(c.Request.Context(), actor, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, course)
}

// ListCourses lists the courses visible to the caller
// @Summary List courses
// @Tags courses
// @Produce json
// @Param status query string false "pending, approved or rejected"
// @Param lecturer_id query string false "Owning lecturer"
// @Param enrolled query string false "Student id, or me"
// @Param q query string false "Text search over title, description and category"
// @Param page query int false "Page number (default: 1)"
// @Param size query int false "Page size (default: 20, max: 100)"
// @Success 200 {object} services.CourseListResponse
// @Router /courses [get]
func (h *CourseHandler) ListCourses(c *gin.Context) {
	var query validator.CourseListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid query parameters",
			Details: err.Error(),
		})
		return
	}
	if err := h.validator.Validate(&query); err != nil {
		h.handleServiceError(c, err)
		return
	}

	actor, ok := h.actor(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Listing courses", "actor_id", actor.ID, "status", query.Status)

	filters := services.CourseListFilters{Query: query.Query}
	if query.Status != "" {
		status := models.CourseStatus(query.Status)
		filters.Status = &status
	}
	if query.LecturerID != "" {
		filters.LecturerID = &query.LecturerID
	}
	if query.Enrolled != "" {
		studentID := query.Enrolled
		if studentID == "me" {
			studentID = actor.ID
		}
		filters.EnrolledStudentID = &studentID
	}

	page, size := h.parsePagination(c)
	list, err := h.courseService.ListPage(c.Request.Context(), actor, filters, page, size)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// GetCourse retrieves a course by ID
// @Summary Get course
// @Tags courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} services.CourseResponse
// @Failure 404 {object} ErrorResponse
// @Router /courses/{id} [get]
func (h *CourseHandler) GetCourse(c *gin.Context) {
	id, ok := h.parseStringIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	course, err := h.courseService.GetByID(c.Request.Context(), actor, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, course)
}

// UpdateCourse edits the content fields of a course
// @Summary Update course
// @Tags courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param course body services.UpdateCourseRequest true "Fields to change"
// @Success 200 {object} services.CourseResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /courses/{id} [put]
func (h *CourseHandler) UpdateCourse(c *gin.Context) {
	id, ok := h.parseStringIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateCourseRequest
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

	h.LogRequest(c, "Updating course", "course_id", id)

	course, err := h.courseService.UpdateContent(c.Request.Context(), actor, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, course)
}

// DeleteCourse deletes a course. Unknown ids succeed.
// @Summary Delete course
// @Tags courses
// @Param id path string true "Course ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Router /courses/{id} [delete]
func (h *CourseHandler) DeleteCourse(c *gin.Context) {
	id, ok := h.parseStringIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	if err := h.courseService.Delete(c.Request.Context(), actor, id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetCourseHistory returns the audit trail of a course
// @Summary Course history
// @Tags courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {array} models.CourseAuditEntry
// @Router /courses/{id}/history [get]
func (h *CourseHandler) GetCourseHistory(c *gin.Context) {
	id, ok := h.parseStringIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	history, err := h.courseService.History(c.Request.Context(), actor, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"course_id": id, "entries": history})
}

// ApproveCourse
// @Summary Approve course
// @Tags approval
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} services.CourseResponse
// @Failure 409 {object} ErrorResponse
// @Router /courses/{id}/approve [post]
func (h *CourseHandler) ApproveCourse(c *gin.Context) {
	id, ok := h.parseStringIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	course, err := h.approvalService.Approve(c.Request.Context(), actor, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, course)
}

// RejectCourse
// @Summary Reject course
// @Tags approval
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param body body services.RejectCourseRequest false "Feedback for the lecturer"
// @Success 200 {object} services.CourseResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /courses/{id}/reject [post]
func (h *CourseHandler) RejectCourse(c *gin.Context) {
	id, ok := h.parseStringIDParam(c, "id")
	if !ok {
		return
	}

	var req services.RejectCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
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

	course, err := h.approvalService.Reject(c.Request.Context(), actor, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, course)
}

// WatchCourses streams course changes as server-sent events until the client goes away
// @Summary Watch courses
// @Tags courses
// @Produce text/event-stream
// @Param course_id query string false "Single course"
// @Param status query string false "pending, approved or rejected"
// @Param lecturer_id query string false "Owning lecturer"
// @Param q query string false "Text filter"
// @Router /courses/watch [get]
func (h *CourseHandler) WatchCourses(c *gin.Context) {
	var query services.WatchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid query parameters",
			Details: err.Error(),
		})
		return
	}
	if raw := c.Query("status"); raw != "" {
		status := models.CourseStatus(raw)
		query.Status = &status
	}

	actor, ok := h.actor(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	stream, err := h.subscriptionService.Watch(ctx, actor, query)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Watching courses", "actor_id", actor.ID, "course_id", query.CourseID)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(watchHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-stream:
			if !ok {
				// the hub dropped us; the client reconnects
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"at": time.Now().UTC()})
			return true
		case <-ctx.Done():
			return false
		}
	})
}
