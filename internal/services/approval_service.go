package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/SAP-F-2025/learning-platform-service/internal/events"
	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories"
	"github.com/SAP-F-2025/learning-platform-service/internal/validator"
)

type approvalService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
	clock     func() time.Time
}

func NewApprovalService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) ApprovalService {
	return &approvalService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validator: validator,
		clock:     utcNow,
	}
}

// Approve clears any earlier feedback. Approving an approved course only refreshes updatedAt.
func (s *approvalService) Approve(ctx context.Context, actor models.Actor, courseID string) (*CourseResponse, error) {
	s.logger.Info("Approving course", "course_id", courseID, "actor_id", actor.ID)
	return s.transition(ctx, actor, courseID, models.CourseStatusApproved, nil, "approve")
}

// Reject stores the feedback, or "" when the admin explicitly skipped it
func (s *approvalService) Reject(ctx context.Context, actor models.Actor, courseID string, req *RejectCourseRequest) (*CourseResponse, error) {
	s.logger.Info("Rejecting course", "course_id", courseID, "actor_id", actor.ID)

	if !actor.IsAdmin() {
		return nil, NewPermissionError(actor.ID, courseID, "course", "reject", "admin role required")
	}
	if errs := s.validator.GetBusinessValidator().ValidateRejection(req); len(errs) > 0 {
		return nil, errs
	}

	feedback := ""
	if req.Feedback != nil {
		feedback = strings.TrimSpace(*req.Feedback)
	}
	return s.transition(ctx, actor, courseID, models.CourseStatusRejected, &feedback, "reject")
}

func (s *approvalService) transition(ctx context.Context, actor models.Actor, courseID string, target models.CourseStatus, feedback *string, operation string) (*CourseResponse, error) {
	if !actor.IsAdmin() {
		return nil, NewPermissionError(actor.ID, courseID, "course", operation, "admin role required")
	}

	var previous models.CourseStatus
	updated, err := s.repo.Course().Update(ctx, courseID, actor.ID, func(course *models.Course) error {
		if !course.Status.CanTransitionTo(target) {
			return NewStateError("course", courseID, operation, course.Status, "transition not allowed")
		}

		previous = course.Status
		course.Status = target
		course.AdminFeedback = feedback
		course.UpdatedAt = s.clock()
		return nil
	})
	if err != nil {
		return nil, storeError(operation+" course", err, ErrCourseNotFound)
	}

	eventType := events.CourseStatusChanged
	if previous == target {
		eventType = events.CourseUpdated
	}
	event := events.NewCourseEvent(eventType, updated, actor.ID)
	event.PreviousStatus = previous
	publishCourseEvent(ctx, s.publisher, s.logger, event)

	s.logger.Info("Course status updated",
		"course_id", courseID,
		"from", previous,
		"to", target,
		"version", updated.Version)

	return buildCourseResponse(updated, actor, lecturerName(ctx, s.repo, updated.LecturerID)), nil
}
