package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/learning-platform-service/internal/config"
	"github.com/SAP-F-2025/learning-platform-service/internal/events"
	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/validator"
)

func watchedCourse(id, lecturerID string, status models.CourseStatus, version int, students ...string) *models.Course {
	return &models.Course{
		ID:               id,
		Title:            "Course " + id,
		Description:      "About " + id,
		LecturerID:       lecturerID,
		Status:           status,
		Version:          version,
		UpdatedAt:        time.Date(2025, 1, 1, 0, 0, version, 0, time.UTC),
		StudentsEnrolled: students,
	}
}

func nextEvent(t *testing.T, ch <-chan events.CourseEvent) events.CourseEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for course event")
	}
	return events.CourseEvent{}
}

func noEvent(t *testing.T, ch <-chan events.CourseEvent) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event for course %s", ev.CourseID)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriptionService_RoleVisibility(t *testing.T) {
	hub := events.NewHub(discardLogger())
	svc := NewSubscriptionService(hub, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	student := models.Actor{ID: "stud-1", Role: models.RoleStudent}
	ch, err := svc.Watch(ctx, student, WatchQuery{})
	require.NoError(t, err)

	hub.Dispatch(events.NewCourseEvent(events.CourseCreated, watchedCourse("c1", "lect-1", models.CourseStatusPending, 1), "lect-1"))
	noEvent(t, ch)

	hub.Dispatch(events.NewCourseEvent(events.CourseStatusChanged, watchedCourse("c1", "lect-1", models.CourseStatusApproved, 2, "stud-9"), "admin"))
	ev := nextEvent(t, ch)
	assert.Equal(t, "c1", ev.CourseID)
	assert.Equal(t, models.CourseStatusApproved, ev.Status())
	assert.Nil(t, ev.Course.StudentsEnrolled, "roster is hidden from students")

	// a course already shown keeps reporting so the viewer sees it leave
	hub.Dispatch(events.NewCourseEvent(events.CourseStatusChanged, watchedCourse("c1", "lect-1", models.CourseStatusRejected, 3), "admin"))
	assert.Equal(t, models.CourseStatusRejected, nextEvent(t, ch).Status())
}

func TestSubscriptionService_QueryFilters(t *testing.T) {
	hub := events.NewHub(discardLogger())
	svc := NewSubscriptionService(hub, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	approved := models.CourseStatusApproved
	ch, err := svc.Watch(ctx, adminActor, WatchQuery{LecturerID: "lect-2", Status: &approved, Query: "kotlin"})
	require.NoError(t, err)

	hub.Dispatch(events.NewCourseEvent(events.CourseUpdated, watchedCourse("a", "lect-1", models.CourseStatusApproved, 1), "x"))
	hub.Dispatch(events.NewCourseEvent(events.CourseUpdated, watchedCourse("b", "lect-2", models.CourseStatusPending, 1), "x"))

	match := watchedCourse("kotlin-101", "lect-2", models.CourseStatusApproved, 1, "stud-1")
	hub.Dispatch(events.NewCourseEvent(events.CourseUpdated, match, "x"))

	ev := nextEvent(t, ch)
	assert.Equal(t, "kotlin-101", ev.CourseID)
	assert.Equal(t, []string{"stud-1"}, ev.Course.StudentsEnrolled, "admins see the roster")
	noEvent(t, ch)

	bad := models.CourseStatus("draft")
	_, err = svc.Watch(ctx, adminActor, WatchQuery{Status: &bad})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestSubscriptionService_CancelClosesChannel(t *testing.T) {
	hub := events.NewHub(discardLogger())
	svc := NewSubscriptionService(hub, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := svc.Watch(ctx, adminActor, WatchQuery{CourseID: "c1"})
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}

	require.Eventually(t, func() bool { return hub.WatcherCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSubscriptionService_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport, err := events.NewTransport(config.EventsConfig{Topic: "course-events"}, env.logger)
	require.NoError(t, err)
	defer transport.Close()

	messages, err := transport.Subscriber.Subscribe(ctx, transport.Topic)
	require.NoError(t, err)

	hub := events.NewHub(env.logger)
	go hub.Run(ctx, messages)

	publisher := events.NewWatermillEventPublisher(transport.Publisher, transport.Topic, env.logger)
	v := validator.New()
	courses := NewCourseService(env.repo, publisher, env.logger, v)
	approval := NewApprovalService(env.repo, publisher, env.logger, v)

	lecturer := env.seedUser(t, "lect-1", models.RoleLecturer)
	student := env.seedUser(t, "stud-1", models.RoleStudent)

	watch, err := NewSubscriptionService(hub, env.logger).Watch(ctx, actorOf(student), WatchQuery{})
	require.NoError(t, err)

	// the pending course is invisible to the student, so the first delivery is the approval
	created, err := courses.Create(ctx, actorOf(lecturer), &CreateCourseRequest{Title: "Live", Description: "Streamed"})
	require.NoError(t, err)

	_, err = approval.Approve(ctx, adminActor, created.ID)
	require.NoError(t, err)

	ev := nextEvent(t, watch)
	assert.Equal(t, created.ID, ev.CourseID)
	assert.Equal(t, events.CourseStatusChanged, ev.Type)
	assert.Equal(t, 2, ev.Version)
}
