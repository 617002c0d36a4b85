package validator

import (
	"github.com/SAP-F-2025/learning-platform-service/internal/models"
)

// CourseCreateRequest is the payload for creating a course.
// LecturerID is only honoured for admins creating on behalf of a lecturer.
type CourseCreateRequest struct {
	Title       string  `json:"title" validate:"required,course_title"`
	Description string  `json:"description" validate:"required,course_description"`
	Category    *string `json:"category" validate:"omitempty,max=100"`
	Duration    *string `json:"duration" validate:"omitempty,max=100"`
	MaxStudents *int    `json:"max_students" validate:"omitempty,min=1,max=10000"`
	LecturerID  string  `json:"lecturer_id" validate:"omitempty,max=255"`
}

// CourseUpdateRequest merges content fields into an existing course.
type CourseUpdateRequest struct {
	Title            *string `json:"title" validate:"omitempty,course_title"`
	Description      *string `json:"description" validate:"omitempty,course_description"`
	Category         *string `json:"category" validate:"omitempty,max=100"`
	Duration         *string `json:"duration" validate:"omitempty,max=100"`
	MaxStudents      *int    `json:"max_students" validate:"omitempty,min=1,max=10000"`
	ClearMaxStudents bool    `json:"clear_max_students"`
}

func (r *CourseUpdateRequest) IsEmpty() bool {
	return r.Title == nil && r.Description == nil && r.Category == nil &&
		r.Duration == nil && r.MaxStudents == nil && !r.ClearMaxStudents
}

// CourseRejectRequest carries the admin's feedback. An empty feedback is only
// accepted together with SkipFeedback.
type CourseRejectRequest struct {
	Feedback     *string `json:"feedback" validate:"omitempty,max=2000"`
	SkipFeedback bool    `json:"skip_feedback"`
}

type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"omitempty,max=255"`
}

type UserRegisterRequest struct {
	ID    string          `json:"id" validate:"required,max=255"`
	Email string          `json:"email" validate:"required,email,max=255"`
	Name  string          `json:"name" validate:"required,person_name,max=100"`
	Role  models.UserRole `json:"role" validate:"required,user_role"`
}

type UserStatusRequest struct {
	Status models.UserStatus `json:"status" validate:"required,user_status"`
}

type UserRoleRequest struct {
	Role models.UserRole `json:"role" validate:"required,user_role"`
}

// CourseListQuery is bound from the course listing query string.
type CourseListQuery struct {
	Status     string `form:"status" json:"status" validate:"omitempty,course_status"`
	LecturerID string `form:"lecturer_id" json:"lecturer_id" validate:"omitempty,max=255"`
	Enrolled   string `form:"enrolled" json:"enrolled" validate:"omitempty,max=255"`
	Query      string `form:"q" json:"q" validate:"omitempty,max=200"`
	Page       int    `form:"page" json:"page" validate:"omitempty,min=1"`
	Size       int    `form:"size" json:"size" validate:"omitempty,min=1,max=100"`
}
