package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories"
)

type dashboardRepository struct {
	db *gorm.DB
}

func NewDashboardRepository(db *gorm.DB) repositories.DashboardRepository {
	return &dashboardRepository{db: db}
}

func (r *dashboardRepository) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *dashboardRepository) CountCoursesByStatus(ctx context.Context, tx *gorm.DB, lecturerID *string) (models.StatusCounts, error) {
	var rows []struct {
		Status models.CourseStatus
		Count  int64
	}

	query := r.getDB(tx).WithContext(ctx).
		Model(&models.Course{}).
		Select("status, COUNT(*) AS count")
	if lecturerID != nil {
		query = query.Where("lecturer_id = ?", *lecturerID)
	}
	if err := query.Group("status").Scan(&rows).Error; err != nil {
		return models.StatusCounts{}, fmt.Errorf("failed to count courses by status: %w", err)
	}

	var counts models.StatusCounts
	for _, row := range rows {
		switch row.Status {
		case models.CourseStatusPending:
			counts.Pending = row.Count
		case models.CourseStatusApproved:
			counts.Approved = row.Count
		case models.CourseStatusRejected:
			counts.Rejected = row.Count
		}
	}
	return counts, nil
}

func (r *dashboardRepository) CountUsersByRole(ctx context.Context, tx *gorm.DB, role models.UserRole) (int64, error) {
	var count int64
	if err := r.getDB(tx).WithContext(ctx).
		Model(&models.User{}).
		Where("role = ?", role).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (r *dashboardRepository) CountEnrollments(ctx context.Context, tx *gorm.DB, lecturerID *string) (int64, error) {
	query := r.getDB(tx).WithContext(ctx).Model(&models.CourseEnrollment{})
	if lecturerID != nil {
		query = query.
			Joins("JOIN courses ON courses.id = course_enrollments.course_id").
			Where("courses.lecturer_id = ?", *lecturerID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count enrollments: %w", err)
	}
	return count, nil
}

func (r *dashboardRepository) CountEnrolledCourses(ctx context.Context, tx *gorm.DB, studentID string) (int64, error) {
	var count int64
	if err := r.getDB(tx).WithContext(ctx).
		Model(&models.CourseEnrollment{}).
		Where("student_id = ?", studentID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count enrolled courses: %w", err)
	}
	return count, nil
}
