package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/learning-platform-service/internal/events"
	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories"
)

type notificationService struct {
	hub    *events.Hub
	repo   repositories.Repository
	mailer Mailer
	retry  RetryPolicy
	logger *slog.Logger
}

func NewNotificationService(hub *events.Hub, repo repositories.Repository, mailer Mailer, retry RetryPolicy, logger *slog.Logger) NotificationService {
	return &notificationService{
		hub:    hub,
		repo:   repo,
		mailer: mailer,
		retry:  retry,
		logger: logger,
	}
}

// Start subscribes to review outcomes and mails them from a single goroutine.
// A consumer the hub disconnects for lagging subscribes again.
func (s *notificationService) Start(ctx context.Context) {
	go func() {
		for ctx.Err() == nil {
			s.consume(ctx, s.hub.Subscribe(ctx, isReviewOutcome))
			if ctx.Err() == nil {
				s.logger.Warn("Notification consumer disconnected, resubscribing")
			}
		}
		s.logger.Info("Notification consumer stopped")
	}()
}

func (s *notificationService) consume(ctx context.Context, outcomes <-chan events.CourseEvent) {
	for event := range outcomes {
		// later events of a seen course pass the hub unfiltered
		if !isReviewOutcome(event) {
			continue
		}
		if err := s.NotifyReviewOutcome(ctx, event); err != nil {
			s.logger.Error("Failed to notify lecturer",
				"course_id", event.CourseID,
				"lecturer_id", event.LecturerID,
				"error", err)
		}
	}
}

func isReviewOutcome(event events.CourseEvent) bool {
	if event.Type != events.CourseStatusChanged {
		return false
	}
	status := event.Status()
	return status == models.CourseStatusApproved || status == models.CourseStatusRejected
}

func (s *notificationService) NotifyReviewOutcome(ctx context.Context, event events.CourseEvent) error {
	if !isReviewOutcome(event) {
		return nil
	}

	lecturer, err := s.repo.User().GetByID(ctx, nil, event.LecturerID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			s.logger.Warn("Skipping notification for unknown lecturer",
				"course_id", event.CourseID, "lecturer_id", event.LecturerID)
			return nil
		}
		return storeError("get lecturer", err, nil)
	}

	msg := reviewOutcomeMessage(lecturer, event.Course)
	_, err = WithRetry(ctx, s.retry, func(ctx context.Context) (struct{}, error) {
		if err := s.mailer.Send(ctx, msg); err != nil {
			return struct{}{}, &DependencyError{Operation: "send notification", Err: err}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Lecturer notified of review outcome",
		"course_id", event.CourseID,
		"lecturer_id", lecturer.ID,
		"status", event.Status())
	return nil
}

func reviewOutcomeMessage(lecturer *models.User, course *models.Course) MailMessage {
	var body strings.Builder
	subject := fmt.Sprintf("Your course %q was approved", course.Title)

	fmt.Fprintf(&body, "Hello %s,\n\n", lecturer.Name)
	if course.Status == models.CourseStatusApproved {
		fmt.Fprintf(&body, "Your course %q has been approved and is now open for enrollment.\n", course.Title)
	} else {
		subject = fmt.Sprintf("Your course %q was rejected", course.Title)
		fmt.Fprintf(&body, "Your course %q has been rejected.\n", course.Title)
		if course.AdminFeedback != nil && *course.AdminFeedback != "" {
			fmt.Fprintf(&body, "\nFeedback from the reviewer:\n%s\n", *course.AdminFeedback)
		}
	}

	return MailMessage{
		ToName:    lecturer.Name,
		ToAddress: lecturer.Email,
		Subject:   subject,
		Body:      body.String(),
	}
}
