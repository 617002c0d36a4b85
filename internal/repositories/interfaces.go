package repositories

import (
	"errors"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict means the row changed between read and write.
	ErrVersionConflict = errors.New("concurrent modification")

	ErrDuplicate = errors.New("duplicate record")

	// ErrSkipUpdate may be returned by a CourseMutation to leave the row untouched.
	ErrSkipUpdate = errors.New("skip update")
)

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// ===== SHARED FILTER STRUCTS =====

type CourseFilters struct {
	Status            *models.CourseStatus `json:"status"`
	LecturerID        *string              `json:"lecturer_id"`
	EnrolledStudentID *string              `json:"enrolled_student_id"`

	// Query is matched case-insensitively against title, description, category and lecturer name.
	Query string `json:"query"`

	// Viewer restricts results to what the actor may see. Nil means unrestricted.
	Viewer *models.Actor `json:"-"`

	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type UserFilters struct {
	Role   *models.UserRole   `json:"role"`
	Status *models.UserStatus `json:"status"`
	Query  string             `json:"query"` // name or email
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}
