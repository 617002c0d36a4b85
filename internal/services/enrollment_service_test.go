package services

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/learning-platform-service/internal/events"
	"github.com/SAP-F-2025/learning-platform-service/internal/models"
)

func TestEnrollmentService_Scenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l1 := env.seedUser(t, "L1", models.RoleLecturer)
	s1 := env.seedUser(t, "S1", models.RoleStudent)
	s2 := env.seedUser(t, "S2", models.RoleStudent)

	c1 := env.createCourse(t, l1, "C1", intPtr(1))
	assert.Equal(t, models.CourseStatusPending, c1.Status)

	_, err := env.enrollment.Enroll(ctx, actorOf(s1), c1.ID, "")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, env.storedCourse(t, c1.ID).StudentsEnrolled)

	_, err = env.approval.Approve(ctx, adminActor, c1.ID)
	require.NoError(t, err)

	result, err := env.enrollment.Enroll(ctx, actorOf(s1), c1.ID, "")
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, []string{"S1"}, env.storedCourse(t, c1.ID).StudentsEnrolled)

	_, err = env.enrollment.Enroll(ctx, actorOf(s2), c1.ID, "")
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	result, err = env.enrollment.Unenroll(ctx, actorOf(s1), c1.ID, "")
	require.NoError(t, err)
	assert.False(t, result.Enrolled)
	assert.Empty(t, env.storedCourse(t, c1.ID).StudentsEnrolled)

	_, err = env.enrollment.Enroll(ctx, actorOf(s2), c1.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"S2"}, env.storedCourse(t, c1.ID).StudentsEnrolled)
}

func TestEnrollmentService_DuplicateEnrollIsBenign(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lecturer := env.seedUser(t, "lect-1", models.RoleLecturer)
	student := env.seedUser(t, "stud-1", models.RoleStudent)
	course := env.approvedCourse(t, lecturer, "Once", intPtr(1))
	env.publisher.ClearEvents()

	_, err := env.enrollment.Enroll(ctx, actorOf(student), course.ID, "")
	require.NoError(t, err)
	before := env.storedCourse(t, course.ID)

	// a full course still reports the existing enrollment rather than a capacity error
	again, err := env.enrollment.Enroll(ctx, actorOf(student), course.ID, "")
	require.NoError(t, err)
	assert.True(t, again.AlreadyEnrolled)
	assert.False(t, again.Changed)

	after := env.storedCourse(t, course.ID)
	assert.Equal(t, []string{student.ID}, after.StudentsEnrolled)
	assert.Equal(t, before.Version, after.Version)
	assert.Len(t, env.publisher.EventsOfType(events.CourseEnrollmentChanged), 1)
}

func TestEnrollmentService_ConcurrentEnrollRespectsCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lecturer := env.seedUser(t, "lect-1", models.RoleLecturer)
	course := env.approvedCourse(t, lecturer, "Crowded", intPtr(3))

	const applicants = 10
	students := make([]*models.User, applicants)
	for i := range students {
		students[i] = env.seedUser(t, fmt.Sprintf("stud-%02d", i), models.RoleStudent)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		full      int
	)
	for _, s := range students {
		wg.Add(1)
		go func(s *models.User) {
			defer wg.Done()
			_, err := env.enrollment.Enroll(ctx, actorOf(s), course.ID, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case assert.ErrorIs(t, err, ErrCapacityExceeded):
				full++
			}
		}(s)
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, applicants-3, full)

	stored := env.storedCourse(t, course.ID)
	assert.Len(t, stored.StudentsEnrolled, 3)
}

func TestEnrollmentService_LostVersionRacesSurfaceAsRetryable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lecturer := env.seedUser(t, "lect-1", models.RoleLecturer)
	student := env.seedUser(t, "stud-1", models.RoleStudent)
	course := env.approvedCourse(t, lecturer, "Contended", intPtr(5))

	// one lost race is absorbed by the repository retry
	env.bumpVersionBeforeCourseWrites(t, 1)
	result, err := env.enrollment.Enroll(ctx, actorOf(student), course.ID, "")
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Contains(t, env.storedCourse(t, course.ID).StudentsEnrolled, student.ID)

	other := env.seedUser(t, "stud-2", models.RoleStudent)
	env.bumpVersionBeforeCourseWrites(t, 1000)
	_, err = env.enrollment.Enroll(ctx, actorOf(other), course.ID, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
	assert.True(t, IsRetryable(err))
	assert.NotContains(t, env.storedCourse(t, course.ID).StudentsEnrolled, other.ID,
		"an exhausted retry is not applied")
}

func TestEnrollmentService_Authorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.seedUser(t, "lect-1", models.RoleLecturer)
	s1 := env.seedUser(t, "stud-1", models.RoleStudent)
	s2 := env.seedUser(t, "stud-2", models.RoleStudent)
	course := env.approvedCourse(t, owner, "Guarded", nil)

	_, err := env.enrollment.Enroll(ctx, actorOf(s1), course.ID, s2.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = env.enrollment.Enroll(ctx, actorOf(owner), course.ID, s1.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	result, err := env.enrollment.Enroll(ctx, adminActor, course.ID, s1.ID)
	require.NoError(t, err)
	assert.True(t, result.Enrolled)

	_, err = env.enrollment.Enroll(ctx, adminActor, course.ID, owner.ID)
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = env.enrollment.Enroll(ctx, adminActor, course.ID, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = env.enrollment.Unenroll(ctx, actorOf(s2), course.ID, s1.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestEnrollmentService_UnenrollRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.seedUser(t, "lect-1", models.RoleLecturer)
	student := env.seedUser(t, "stud-1", models.RoleStudent)
	course := env.approvedCourse(t, owner, "Leaving", nil)

	_, err := env.enrollment.Enroll(ctx, actorOf(student), course.ID, "")
	require.NoError(t, err)

	_, err = env.approval.Reject(ctx, adminActor, course.ID, &RejectCourseRequest{SkipFeedback: true})
	require.NoError(t, err)

	_, err = env.enrollment.Unenroll(ctx, actorOf(student), course.ID, "")
	assert.ErrorIs(t, err, ErrInvalidState)

	result, err := env.enrollment.Unenroll(ctx, actorOf(owner), course.ID, student.ID)
	require.NoError(t, err)
	assert.True(t, result.Changed)

	before := env.storedCourse(t, course.ID)
	result, err = env.enrollment.Unenroll(ctx, adminActor, course.ID, student.ID)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	after := env.storedCourse(t, course.ID)
	assert.Equal(t, before.Version, after.Version)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))

	_, err = env.enrollment.Unenroll(ctx, adminActor, "missing", student.ID)
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestEnrollmentService_ListEnrolledResolvesUnknown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.seedUser(t, "lect-1", models.RoleLecturer)
	s1 := env.seedUser(t, "stud-1", models.RoleStudent)
	s2 := env.seedUser(t, "stud-2", models.RoleStudent)
	course := env.approvedCourse(t, owner, "Roster", nil)

	for _, s := range []*models.User{s1, s2} {
		_, err := env.enrollment.Enroll(ctx, actorOf(s), course.ID, "")
		require.NoError(t, err)
	}

	// directory record gone but roster entry left behind
	_, err := env.repo.User().Delete(ctx, nil, s2.ID)
	require.NoError(t, err)

	roster, err := env.enrollment.ListEnrolled(ctx, actorOf(owner), course.ID)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, s1.Name, roster[0].Name)
	assert.True(t, roster[0].Known)
	assert.Equal(t, s2.ID, roster[1].ID)
	assert.Equal(t, "Unknown", roster[1].Name)
	assert.False(t, roster[1].Known)

	_, err = env.enrollment.ListEnrolled(ctx, actorOf(s1), course.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestEnrollmentService_ExportRoster(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.seedUser(t, "lect-1", models.RoleLecturer)
	student := env.seedUser(t, "stud-1", models.RoleStudent)
	course := env.approvedCourse(t, owner, "Spreadsheet", nil)

	_, err := env.enrollment.Enroll(ctx, actorOf(student), course.ID, "")
	require.NoError(t, err)

	export, err := env.enrollment.ExportRoster(ctx, actorOf(owner), course.ID)
	require.NoError(t, err)
	assert.Equal(t, rosterContentType, export.ContentType)
	assert.Contains(t, export.FileName, course.ID)

	f, err := excelize.OpenReader(bytes.NewReader(export.Data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(rosterSheet)
	require.NoError(t, err)

	var found bool
	for _, row := range rows {
		for _, cell := range row {
			if cell == student.Email {
				found = true
			}
		}
	}
	assert.True(t, found, "roster sheet should list the student email")
}

func TestEnrollmentService_PurgeStudent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lecturer := env.seedUser(t, "lect-1", models.RoleLecturer)
	student := env.seedUser(t, "stud-1", models.RoleStudent)

	var ids []string
	for i := 0; i < 3; i++ {
		course := env.approvedCourse(t, lecturer, fmt.Sprintf("Course %d", i), nil)
		_, err := env.enrollment.Enroll(ctx, actorOf(student), course.ID, "")
		require.NoError(t, err)
		ids = append(ids, course.ID)
	}

	_, err := env.enrollment.PurgeStudent(ctx, actorOf(lecturer), student.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	report, err := env.enrollment.PurgeStudent(ctx, adminActor, student.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, report.Succeeded)
	assert.Empty(t, report.Failed)

	for _, id := range ids {
		assert.NotContains(t, env.storedCourse(t, id).StudentsEnrolled, student.ID)
	}
}
