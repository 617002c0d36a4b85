package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/SAP-F-2025/learning-platform-service/internal/events"
	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories"
)

const (
	listPageSize    = 50
	defaultPageSize = 20
	maxPageSize     = 100

	unknownUserName = "Unknown"
)

func utcNow() time.Time {
	return time.Now().UTC()
}

// ===== ACCESS RULES =====

// canViewCourse mirrors the visibility applied by the repository filters
func canViewCourse(actor models.Actor, course *models.Course) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleLecturer:
		return course.LecturerID == actor.ID || course.Status == models.CourseStatusApproved
	default:
		return course.Status == models.CourseStatusApproved || course.IsEnrolled(actor.ID)
	}
}

// canManageCourse covers content edits, deletion and roster administration
func canManageCourse(actor models.Actor, course *models.Course) bool {
	return actor.IsAdmin() || (actor.IsLecturer() && course.LecturerID == actor.ID)
}

// ===== RESPONSES =====

func buildCourseResponse(course *models.Course, actor models.Actor, lecturerName string) *CourseResponse {
	view := course.Clone()
	manage := canManageCourse(actor, course)
	if !manage {
		// rosters are only shown to the owner and admins
		view.StudentsEnrolled = nil
	}

	return &CourseResponse{
		Course:        view,
		LecturerName:  lecturerName,
		EnrolledCount: course.EnrollmentCount(),
		IsEnrolled:    course.IsEnrolled(actor.ID),
		CanEdit:       manage,
		CanDelete:     manage,
		CanEnroll: actor.IsStudent() &&
			course.Status == models.CourseStatusApproved &&
			!course.IsEnrolled(actor.ID) &&
			course.HasCapacity(),
		CanReview: actor.IsAdmin(),
	}
}

// lecturerNames resolves display names for a page of courses with one lookup
func lecturerNames(ctx context.Context, repo repositories.Repository, courses []*models.Course) (map[string]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, c := range courses {
		if !seen[c.LecturerID] {
			seen[c.LecturerID] = true
			ids = append(ids, c.LecturerID)
		}
	}

	users, err := repo.User().GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(ids))
	for _, id := range ids {
		names[id] = unknownUserName
	}
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}

func lecturerName(ctx context.Context, repo repositories.Repository, lecturerID string) string {
	user, err := repo.User().GetByID(ctx, nil, lecturerID)
	if err != nil {
		return unknownUserName
	}
	return user.Name
}

// ===== EVENTS =====

// publishCourseEvent runs after commit; a failed publish is logged and the change stands
func publishCourseEvent(ctx context.Context, publisher events.EventPublisher, logger *slog.Logger, event events.CourseEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishCourseEvent(ctx, event); err != nil {
		logger.Error("Failed to publish course event",
			"type", event.Type,
			"course_id", event.CourseID,
			"version", event.Version,
			"error", err)
	}
}

// ===== INPUT =====

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
