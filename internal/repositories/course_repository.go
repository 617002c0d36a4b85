package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
)

// CourseMutation edits a locked copy of a course. Returning an error aborts the write.
type CourseMutation func(course *models.Course) error

type CourseRepository interface {
	Create(ctx context.Context, tx *gorm.DB, course *models.Course) error

	// GetByID reads the row and its roster straight from the database.
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Course, error)

	// GetCached serves display reads through the course cache.
	GetCached(ctx context.Context, id string) (*models.Course, error)

	// List returns one page ordered by created_at DESC, id ASC.
	List(ctx context.Context, tx *gorm.DB, filters CourseFilters) ([]*models.Course, error)
	Count(ctx context.Context, tx *gorm.DB, filters CourseFilters) (int64, error)

	// Update runs an atomic read-modify-write of one course. Status changes are
	// recorded in the audit trail under actorID.
	Update(ctx context.Context, id string, actorID string, mutate CourseMutation) (*models.Course, error)

	// Delete removes the course with its roster and audit rows. It returns the
	// course as last committed, or nil when no row existed.
	Delete(ctx context.Context, tx *gorm.DB, id string) (*models.Course, error)

	ListIDsByLecturer(ctx context.Context, tx *gorm.DB, lecturerID string) ([]string, error)
	ListIDsByStudent(ctx context.Context, tx *gorm.DB, studentID string) ([]string, error)

	GetAuditTrail(ctx context.Context, tx *gorm.DB, courseID string) ([]*models.CourseAuditEntry, error)
}
