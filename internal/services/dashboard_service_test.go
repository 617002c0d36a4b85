package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
)

func TestDashboardService_GetStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l1 := env.seedUser(t, "lect-1", models.RoleLecturer)
	l2 := env.seedUser(t, "lect-2", models.RoleLecturer)
	s1 := env.seedUser(t, "stud-1", models.RoleStudent)
	s2 := env.seedUser(t, "stud-2", models.RoleStudent)

	open := env.approvedCourse(t, l1, "Open", nil)
	env.createCourse(t, l1, "Draft", nil)
	other := env.approvedCourse(t, l2, "Elsewhere", nil)
	rejected := env.createCourse(t, l2, "Nope", nil)
	_, err := env.approval.Reject(ctx, adminActor, rejected.ID, &RejectCourseRequest{SkipFeedback: true})
	require.NoError(t, err)

	for _, s := range []*models.User{s1, s2} {
		_, err := env.enrollment.Enroll(ctx, actorOf(s), open.ID, "")
		require.NoError(t, err)
	}
	_, err = env.enrollment.Enroll(ctx, actorOf(s1), other.ID, "")
	require.NoError(t, err)

	t.Run("admin", func(t *testing.T) {
		stats, err := env.dashboard.GetStats(ctx, adminActor)
		require.NoError(t, err)
		require.NotNil(t, stats.Admin)
		assert.Nil(t, stats.Student)
		assert.Equal(t, int64(4), stats.Admin.TotalCourses)
		assert.Equal(t, models.StatusCounts{Pending: 1, Approved: 2, Rejected: 1}, stats.Admin.CoursesByStatus)
		assert.Equal(t, int64(2), stats.Admin.TotalStudents)
		assert.Equal(t, int64(2), stats.Admin.TotalLecturers)
		assert.Equal(t, int64(3), stats.Admin.TotalEnrollments)
	})

	t.Run("lecturer", func(t *testing.T) {
		stats, err := env.dashboard.GetStats(ctx, actorOf(l1))
		require.NoError(t, err)
		require.NotNil(t, stats.Lecturer)
		assert.Equal(t, int64(2), stats.Lecturer.TotalCourses)
		assert.Equal(t, int64(1), stats.Lecturer.CoursesByStatus.Pending)
		assert.Equal(t, int64(2), stats.Lecturer.TotalEnrolled)
	})

	t.Run("student", func(t *testing.T) {
		stats, err := env.dashboard.GetStats(ctx, actorOf(s1))
		require.NoError(t, err)
		require.NotNil(t, stats.Student)
		assert.Equal(t, int64(2), stats.Student.EnrolledCourses)
		assert.Equal(t, int64(2), stats.Student.AvailableCourses)
	})

	t.Run("cache is invalidated by course writes", func(t *testing.T) {
		before, err := env.dashboard.GetStats(ctx, actorOf(s2))
		require.NoError(t, err)
		assert.Equal(t, int64(1), before.Student.EnrolledCourses)

		_, err = env.enrollment.Enroll(ctx, actorOf(s2), other.ID, "")
		require.NoError(t, err)

		after, err := env.dashboard.GetStats(ctx, actorOf(s2))
		require.NoError(t, err)
		assert.Equal(t, int64(2), after.Student.EnrolledCourses)
	})
}
