package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
)

// DashboardRepository interface for dashboard counters
type DashboardRepository interface {
	// CountCoursesByStatus counts all courses, or only one lecturer's when lecturerID is set.
	CountCoursesByStatus(ctx context.Context, tx *gorm.DB, lecturerID *string) (models.StatusCounts, error)

	CountUsersByRole(ctx context.Context, tx *gorm.DB, role models.UserRole) (int64, error)

	// CountEnrollments counts roster rows, optionally scoped to one lecturer's courses.
	CountEnrollments(ctx context.Context, tx *gorm.DB, lecturerID *string) (int64, error)

	CountEnrolledCourses(ctx context.Context, tx *gorm.DB, studentID string) (int64, error)
}
