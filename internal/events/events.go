package events

import (
	"time"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
)

const (
	EventSource  = "learning-platform-service"
	EventVersion = "1.0"
)

type EventType string

const (
	CourseCreated           EventType = "course.created"
	CourseUpdated           EventType = "course.updated"
	CourseStatusChanged     EventType = "course.status_changed"
	CourseEnrollmentChanged EventType = "course.enrollment_changed"
	CourseDeleted           EventType = "course.deleted"
)

// Event is the envelope written to the transport
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      CourseEvent `json:"data"`
}

// CourseEvent describes one committed change to a course.
// Course is the state after the change and is nil for deletions.
type CourseEvent struct {
	CourseID       string              `json:"course_id"`
	LecturerID     string              `json:"lecturer_id"`
	Course         *models.Course      `json:"course,omitempty"`
	PreviousStatus models.CourseStatus `json:"previous_status,omitempty"`
	Version        int                 `json:"version"`
	ActorID        string              `json:"actor_id"`
	OccurredAt     time.Time           `json:"occurred_at"`

	// Set by the publisher from the envelope.
	Type EventType `json:"-"`
}

// Status returns the status after the change, or "" for deletions
func (e CourseEvent) Status() models.CourseStatus {
	if e.Course == nil {
		return ""
	}
	return e.Course.Status
}

// NewCourseEvent snapshots course for an event of the given type
func NewCourseEvent(eventType EventType, course *models.Course, actorID string) CourseEvent {
	return CourseEvent{
		Type:       eventType,
		CourseID:   course.ID,
		LecturerID: course.LecturerID,
		Course:     course.Clone(),
		Version:    course.Version,
		ActorID:    actorID,
		OccurredAt: course.UpdatedAt,
	}
}

// NewCourseDeletedEvent describes the removal of course. The version is one past the
// last stored version so it orders after every earlier event for the course.
func NewCourseDeletedEvent(course *models.Course, actorID string, at time.Time) CourseEvent {
	return CourseEvent{
		Type:           CourseDeleted,
		CourseID:       course.ID,
		LecturerID:     course.LecturerID,
		PreviousStatus: course.Status,
		Version:        course.Version + 1,
		ActorID:        actorID,
		OccurredAt:     at,
	}
}
