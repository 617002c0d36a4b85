package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SAP-F-2025/learning-platform-service/internal/cache"
	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories"
)

type dashboardService struct {
	repo   repositories.Repository
	cache  *cache.CacheManager
	logger *slog.Logger
}

func NewDashboardService(repo repositories.Repository, cacheManager *cache.CacheManager, logger *slog.Logger) DashboardService {
	return &dashboardService{
		repo:   repo,
		cache:  cacheManager,
		logger: logger,
	}
}

// GetStats returns the projection for the actor's role, cached until the next course or user write
func (s *dashboardService) GetStats(ctx context.Context, actor models.Actor) (*DashboardStats, error) {
	key := fmt.Sprintf("%s:%s", actor.Role, actor.ID)
	if actor.IsAdmin() {
		key = string(models.RoleAdmin)
	}

	var stats DashboardStats
	err := s.cache.Stats.CacheOrExecute(ctx, key, &stats, func() (interface{}, error) {
		return s.compute(ctx, actor)
	})
	if err != nil {
		return nil, storeError("get dashboard stats", err, nil)
	}
	return &stats, nil
}

func (s *dashboardService) compute(ctx context.Context, actor models.Actor) (*DashboardStats, error) {
	s.logger.Debug("Computing dashboard stats", "role", actor.Role, "user_id", actor.ID)

	dash := s.repo.Dashboard()
	stats := &DashboardStats{Role: actor.Role}

	switch actor.Role {
	case models.RoleAdmin:
		byStatus, err := dash.CountCoursesByStatus(ctx, nil, nil)
		if err != nil {
			return nil, err
		}
		students, err := dash.CountUsersByRole(ctx, nil, models.RoleStudent)
		if err != nil {
			return nil, err
		}
		lecturers, err := dash.CountUsersByRole(ctx, nil, models.RoleLecturer)
		if err != nil {
			return nil, err
		}
		enrollments, err := dash.CountEnrollments(ctx, nil, nil)
		if err != nil {
			return nil, err
		}
		stats.Admin = &models.AdminStats{
			TotalCourses:     byStatus.Total(),
			CoursesByStatus:  byStatus,
			TotalStudents:    students,
			TotalLecturers:   lecturers,
			TotalEnrollments: enrollments,
		}

	case models.RoleLecturer:
		byStatus, err := dash.CountCoursesByStatus(ctx, nil, &actor.ID)
		if err != nil {
			return nil, err
		}
		enrolled, err := dash.CountEnrollments(ctx, nil, &actor.ID)
		if err != nil {
			return nil, err
		}
		stats.Lecturer = &models.LecturerStats{
			TotalCourses:    byStatus.Total(),
			CoursesByStatus: byStatus,
			TotalEnrolled:   enrolled,
		}

	default:
		enrolled, err := dash.CountEnrolledCourses(ctx, nil, actor.ID)
		if err != nil {
			return nil, err
		}
		byStatus, err := dash.CountCoursesByStatus(ctx, nil, nil)
		if err != nil {
			return nil, err
		}
		stats.Student = &models.StudentStats{
			EnrolledCourses:  enrolled,
			AvailableCourses: byStatus.Approved,
		}
	}

	return stats, nil
}
