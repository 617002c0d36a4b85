package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/SAP-F-2025/learning-platform-service/internal/config"
	"github.com/SAP-F-2025/learning-platform-service/internal/events"
	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/learning-platform-service/internal/services"
	"github.com/SAP-F-2025/learning-platform-service/internal/utils"
	"github.com/SAP-F-2025/learning-platform-service/internal/validator"
	"github.com/SAP-F-2025/learning-platform-service/pkg"
)

const (
	adminToken    = "admin-1:admin"
	lecturerToken = "lect-1:lecturer"
	studentToken  = "stud-1:student"
	student2Token = "stud-2:student"
)

type testServer struct {
	router *gin.Engine
	hub    *events.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := pkg.OpenDatabase(config.DatabaseConfig{
		Driver:       config.DriverSQLite,
		URL:          fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns: 1,
	}, logger.Silent)
	require.NoError(t, err)

	repoManager := postgres.NewRepositoryManager(postgres.RepositoryConfig{DB: db})
	require.NoError(t, repoManager.Initialize())

	slogLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := events.NewHub(slogLogger)
	v := validator.New()

	sm := services.NewServiceManager(services.ServiceManagerConfig{
		DB:         db,
		Repository: repoManager.GetRepository(),
		Publisher:  events.NewMockEventPublisher(slogLogger),
		Hub:        hub,
		Logger:     slogLogger,
		Validator:  v,
	})
	require.NoError(t, sm.Initialize(context.Background()))
	t.Cleanup(func() { _ = sm.Shutdown(context.Background()) })

	logger := utils.NewSlogLogger(slogLogger)
	router := gin.New()
	SetupMiddleware(router, logger, []string{"*"})
	NewHandlerManager(sm, v, logger, DevTokenVerifier{}).SetupRoutes(router)

	return &testServer{router: router, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// createApprovedCourse signs the lecturer in, creates a course and approves it
func (s *testServer) createApprovedCourse(t *testing.T, title string, maxStudents *int) string {
	t.Helper()

	w := s.do(t, http.MethodPost, "/api/v1/courses", lecturerToken, gin.H{
		"title":        title,
		"description":  "About " + title,
		"max_students": maxStudents,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[map[string]any](t, w)["id"].(string)

	w = s.do(t, http.MethodPost, "/api/v1/courses/"+id+"/approve", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return id
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]any](t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)

	t.Run("missing token", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/courses", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed token", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/courses", "nobody", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("first request registers the caller", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/users/me", studentToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		me := decode[models.User](t, w)
		assert.Equal(t, "stud-1", me.ID)
		assert.Equal(t, models.RoleStudent, me.Role)
	})

	t.Run("role guard", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/courses", studentToken, gin.H{"title": "x", "description": "y"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("suspended users are refused", func(t *testing.T) {
		s.do(t, http.MethodGet, "/api/v1/users/me", student2Token, nil)
		w := s.do(t, http.MethodPut, "/api/v1/users/stud-2/status", adminToken, gin.H{"status": "suspended"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = s.do(t, http.MethodGet, "/api/v1/courses", student2Token, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestCourseLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/api/v1/users/me", studentToken, nil)
	s.do(t, http.MethodGet, "/api/v1/users/me", student2Token, nil)

	one := 1
	courseID := s.createApprovedCourse(t, "Go Basics", &one)

	t.Run("validation errors are 400", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/courses", lecturerToken, gin.H{"title": "", "description": "d"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("enroll is idempotent", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/courses/"+courseID+"/enrollment", studentToken, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		first := decode[services.EnrollmentResult](t, w)
		assert.True(t, first.Enrolled)
		assert.Equal(t, 1, first.EnrolledCount)

		w = s.do(t, http.MethodPost, "/api/v1/courses/"+courseID+"/enrollment", studentToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decode[services.EnrollmentResult](t, w).AlreadyEnrolled)
	})

	t.Run("full course is a conflict", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/courses/"+courseID+"/enrollment", student2Token, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "Course is full", decode[ErrorResponse](t, w).Message)
	})

	t.Run("roster is for managers", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/courses/"+courseID+"/students", studentToken, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = s.do(t, http.MethodGet, "/api/v1/courses/"+courseID+"/students", lecturerToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 1, decode[map[string]any](t, w)["total"])

		w = s.do(t, http.MethodGet, "/api/v1/courses/"+courseID+"/students/export", lecturerToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "spreadsheetml")
		assert.Contains(t, w.Header().Get("Content-Disposition"), "roster-"+courseID+".xlsx")
		assert.NotZero(t, w.Body.Len())
	})

	t.Run("students see courses without the roster", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/courses/"+courseID, student2Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode[map[string]any](t, w)
		assert.Nil(t, body["students_enrolled"])
	})

	t.Run("pending courses reject enrollment", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/courses", lecturerToken, gin.H{"title": "Draft", "description": "Not yet"})
		require.Equal(t, http.StatusCreated, w.Code)
		pendingID := decode[map[string]any](t, w)["id"].(string)

		w = s.do(t, http.MethodPost, "/api/v1/courses/"+pendingID+"/enrollment", adminToken, gin.H{"student_id": "stud-2"})
		assert.Equal(t, http.StatusConflict, w.Code)

		w = s.do(t, http.MethodGet, "/api/v1/courses/"+pendingID, studentToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unenroll then list", func(t *testing.T) {
		w := s.do(t, http.MethodDelete, "/api/v1/courses/"+courseID+"/enrollment", studentToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decode[services.EnrollmentResult](t, w).Changed)

		w = s.do(t, http.MethodGet, "/api/v1/courses?status=approved", studentToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		list := decode[services.CourseListResponse](t, w)
		assert.EqualValues(t, 1, list.Total)

		w = s.do(t, http.MethodGet, "/api/v1/courses?status=draft", studentToken, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("reject with feedback and read history", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/courses/"+courseID+"/reject", adminToken, gin.H{"feedback": "Outdated"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "rejected", decode[map[string]any](t, w)["status"])

		w = s.do(t, http.MethodGet, "/api/v1/courses/"+courseID+"/history", lecturerToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		entries := decode[map[string]any](t, w)["entries"].([]any)
		assert.NotEmpty(t, entries)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		w := s.do(t, http.MethodDelete, "/api/v1/courses/"+courseID, lecturerToken, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		w = s.do(t, http.MethodDelete, "/api/v1/courses/"+courseID, lecturerToken, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestUserEndpoints(t *testing.T) {
	s := newTestServer(t)
	courseID := s.createApprovedCourse(t, "Cascade", nil)

	w := s.do(t, http.MethodPost, "/api/v1/courses/"+courseID+"/enrollment", studentToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("list by role", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/users?role=student", lecturerToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		list := decode[services.UserListResponse](t, w)
		require.Len(t, list.Users, 1)
		assert.Equal(t, "stud-1", list.Users[0].ID)

		w = s.do(t, http.MethodGet, "/api/v1/users", studentToken, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/users/missing", adminToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delete student cascades to rosters", func(t *testing.T) {
		w := s.do(t, http.MethodDelete, "/api/v1/users/stud-1", adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		report := decode[services.CascadeReport](t, w)
		assert.Equal(t, []string{courseID}, report.Succeeded)

		w = s.do(t, http.MethodGet, "/api/v1/courses/"+courseID+"/students", adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 0, decode[map[string]any](t, w)["total"])
	})

	t.Run("dashboard follows the role", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/dashboard/stats", adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		stats := decode[services.DashboardStats](t, w)
		require.NotNil(t, stats.Admin)
		assert.EqualValues(t, 1, stats.Admin.TotalCourses)
		assert.Nil(t, stats.Student)
	})
}

func TestHandleServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewBaseHandler(utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", services.NewValidationError("title", "is required", ""), http.StatusBadRequest},
		{"not found", services.ErrCourseNotFound, http.StatusNotFound},
		{"permission", services.NewPermissionError("u", "c", "course", "edit", "not owner"), http.StatusForbidden},
		{"state", services.NewStateError("course", "c", "enroll in", models.CourseStatusPending, ""), http.StatusConflict},
		{"capacity", &services.CapacityError{CourseID: "c", MaxStudents: 1, Enrolled: 1}, http.StatusConflict},
		{"conflict", services.ErrAlreadyEnrolled, http.StatusConflict},
		{"dependency", &services.DependencyError{Operation: "get", Err: errors.New("db down")}, http.StatusServiceUnavailable},
		{"partial", (&services.CascadeError{Report: &services.CascadeReport{UserID: "u"}}), http.StatusMultiStatus},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			h.handleServiceError(c, tc.err)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestDevTokenVerifier(t *testing.T) {
	user, err := DevTokenVerifier{}.ParseToken("lect-9:Lecturer:l9@example.com")
	require.NoError(t, err)
	assert.Equal(t, "lect-9", user.ID)
	assert.Equal(t, models.RoleLecturer, user.Role)
	assert.Equal(t, "l9@example.com", user.Email)

	_, err = DevTokenVerifier{}.ParseToken("lect-9:teacher")
	assert.Error(t, err)
	_, err = DevTokenVerifier{}.ParseToken("lect-9")
	assert.Error(t, err)
}

// closeNotifyingRecorder lets gin's Stream run against a recorder
type closeNotifyingRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyingRecorder) CloseNotify() <-chan bool { return r.closed }

func TestWatchCourses(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/api/v1/users/me", studentToken, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/courses/watch?access_token="+studentToken, nil)
	w := &closeNotifyingRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.router.ServeHTTP(w, req)
	}()

	require.Eventually(t, func() bool { return s.hub.WatcherCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	course := &models.Course{
		ID:               "c1",
		Title:            "Streaming",
		Description:      "Live",
		LecturerID:       "lect-1",
		Status:           models.CourseStatusApproved,
		Version:          2,
		StudentsEnrolled: []string{"stud-9"},
	}
	s.hub.Dispatch(events.NewCourseEvent(events.CourseStatusChanged, course, "admin-1"))
	s.hub.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch stream did not end after the hub closed")
	}

	body := w.Body.String()
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, body, "event:course.status_changed")
	assert.Contains(t, body, `"course_id":"c1"`)
	assert.NotContains(t, body, "stud-9")
}
