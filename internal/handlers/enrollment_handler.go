package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/learning-platform-service/internal/services"
	"github.com/SAP-F-2025/learning-platform-service/internal/utils"
	"github.com/SAP-F-2025/learning-platform-service/internal/validator"
)

type EnrollmentHandler struct {
	BaseHandler
	service services.EnrollmentService
}

func NewEnrollmentHandler(service services.EnrollmentService, logger utils.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// Enroll adds the caller, or for admins the given student_id, to a course.
// A repeated enrollment is reported with already_enrolled set.
// @Summary Enroll in course
// @Tags enrollment
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param body body validator.EnrollRequest false "Student to enroll (admins only)"
// @Success 200 {object} services.EnrollmentResult
// @Failure 409 {object} ErrorResponse "Course full or not approved"
// @Router /courses/{id}/enrollment [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	courseID, ok := h.parseStringIDParam(c, "id")
	if !ok {
		return
	}

	var req validator.EnrollRequest
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

	result, err := h.service.Enroll(c.Request.Context(), actor, courseID, req.StudentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Unenroll removes the caller from a course
// @Summary Leave course
// @Tags enrollment
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} services.EnrollmentResult
// @Router /courses/{id}/enrollment [delete]
func (h *EnrollmentHandler) Unenroll(c *gin.Context) {
	courseID, ok := h.parseStringIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	result, err := h.service.Unenroll(c.Request.Context(), actor, courseID, actor.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RemoveStudent is the administrative unenroll used by course owners and admins
// @Summary Remove student from course
// @Tags enrollment
// @Produce json
// @Param id path string true "Course ID"
// @Param student_id path string true "Student ID"
// @Success 200 {object} services.EnrollmentResult
// @Router /courses/{id}/students/{student_id} [delete]
func (h *EnrollmentHandler) RemoveStudent(c *gin.Context) {
	courseID, ok := h.parseStringIDParam(c, "id")
	if !ok {
		return
	}
	studentID, ok := h.parseStringIDParam(c, "student_id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Removing student from course", "course_id", courseID, "student_id", studentID)

	result, err := h.service.Unenroll(c.Request.Context(), actor, courseID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListStudents
// @Summary List enrolled students
// @Tags enrollment
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {array} services.EnrolledStudent
// @Router /courses/{id}/students [get]
func (h *EnrollmentHandler) ListStudents(c *gin.Context) {
	courseID, ok := h.parseStringIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	students, err := h.service.ListEnrolled(c.Request.Context(), actor, courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"course_id": courseID,
		"students":  students,
		"total":     len(students),
	})
}

// ExportStudents downloads the roster as a spreadsheet
// @Summary Export roster
// @Tags enrollment
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Course ID"
// @Router /courses/{id}/students/export [get]
func (h *EnrollmentHandler) ExportStudents(c *gin.Context) {
	courseID, ok := h.parseStringIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	export, err := h.service.ExportRoster(c.Request.Context(), actor, courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.FileName+`"`)
	c.Data(http.StatusOK, export.ContentType, export.Data)
}
