package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/learning-platform-service/internal/events"
	"github.com/SAP-F-2025/learning-platform-service/internal/models"
)

type subscriptionService struct {
	hub    *events.Hub
	logger *slog.Logger
}

func NewSubscriptionService(hub *events.Hub, logger *slog.Logger) SubscriptionService {
	return &subscriptionService{
		hub:    hub,
		logger: logger,
	}
}

func (s *subscriptionService) Watch(ctx context.Context, actor models.Actor, query WatchQuery) (<-chan events.CourseEvent, error) {
	if query.Status != nil && !query.Status.IsValid() {
		return nil, NewValidationError("status", "must be one of pending approved rejected", *query.Status)
	}
	if actor.ID == "" || !actor.Role.IsValid() {
		return nil, NewPermissionError(actor.ID, "", "course", "watch", "authenticated actor required")
	}

	s.logger.Info("Opening course subscription",
		"actor_id", actor.ID,
		"course_id", query.CourseID,
		"lecturer_id", query.LecturerID)

	source := s.hub.Subscribe(ctx, watchFilter(actor, query))
	out := make(chan events.CourseEvent)
	go func() {
		defer close(out)
		for event := range source {
			select {
			case out <- redactEvent(actor, event):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// redactEvent hides the roster from viewers who do not manage the course
func redactEvent(actor models.Actor, event events.CourseEvent) events.CourseEvent {
	if event.Course == nil || canManageCourse(actor, event.Course) {
		return event
	}
	view := event.Course.Clone()
	view.StudentsEnrolled = nil
	event.Course = view
	return event
}

// watchFilter runs under the hub lock, so it only inspects the event snapshot
func watchFilter(actor models.Actor, query WatchQuery) events.Filter {
	needle := strings.ToLower(strings.TrimSpace(query.Query))

	return func(event events.CourseEvent) bool {
		course := event.Course
		if course == nil {
			return false
		}
		if query.CourseID != "" && event.CourseID != query.CourseID {
			return false
		}
		if query.LecturerID != "" && event.LecturerID != query.LecturerID {
			return false
		}
		if query.Status != nil && course.Status != *query.Status {
			return false
		}
		if needle != "" && !matchesText(course, needle) {
			return false
		}
		return canViewCourse(actor, course)
	}
}

func matchesText(course *models.Course, needle string) bool {
	if strings.Contains(strings.ToLower(course.Title), needle) ||
		strings.Contains(strings.ToLower(course.Description), needle) {
		return true
	}
	return course.Category != nil && strings.Contains(strings.ToLower(*course.Category), needle)
}
