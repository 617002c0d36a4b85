package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/SAP-F-2025/learning-platform-service/internal/cache"
	"github.com/SAP-F-2025/learning-platform-service/internal/config"
	"github.com/SAP-F-2025/learning-platform-service/internal/events"
	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/learning-platform-service/internal/validator"
	"github.com/SAP-F-2025/learning-platform-service/pkg"
)

type testEnv struct {
	db        *gorm.DB
	repo      repositories.Repository
	cache     *cache.CacheManager
	publisher *events.MockEventPublisher
	identity  *stubIdentity
	logger    *slog.Logger
	writers   int

	courses    CourseService
	approval   ApprovalService
	enrollment EnrollmentService
	users      UserService
	dashboard  DashboardService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := pkg.OpenDatabase(config.DatabaseConfig{
		Driver:       config.DriverSQLite,
		URL:          fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns: 1,
	}, logger.Silent)
	require.NoError(t, err)
	require.NoError(t, postgres.Migrate(db))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cacheManager := cache.NewCacheManager(client)

	identity := &stubIdentity{}
	repo := postgres.NewPostgreSQLRepository(postgres.RepositoryConfig{
		DB:           db,
		RedisClient:  client,
		CacheManager: cacheManager,
		Identity:     identity,
	})
	t.Cleanup(func() { _ = repo.Close() })

	env := &testEnv{
		db:        db,
		repo:      repo,
		cache:     cacheManager,
		publisher: events.NewMockEventPublisher(discardLogger()),
		identity:  identity,
		logger:    discardLogger(),
	}
	env.wire(repo)
	return env
}

// wire builds the services over repo, which may decorate the real repository
func (e *testEnv) wire(repo repositories.Repository) {
	v := validator.New()
	e.courses = NewCourseService(repo, e.publisher, e.logger, v)
	e.approval = NewApprovalService(repo, e.publisher, e.logger, v)
	e.enrollment = NewEnrollmentService(repo, e.publisher, e.logger)
	e.users = NewUserService(repo, e.db, e.courses, e.enrollment, e.logger, v)
	e.dashboard = NewDashboardService(repo, e.cache, e.logger)
}

// bumpVersionBeforeCourseWrites raises the stored course version right before
// the next n course writes, as a concurrent writer committing between the
// locked read and the compare-and-set would.
func (e *testEnv) bumpVersionBeforeCourseWrites(t *testing.T, n int) {
	t.Helper()
	e.writers++
	bumps := 0
	name := fmt.Sprintf("test:concurrent_writer_%d", e.writers)
	err := e.db.Callback().Update().Before("gorm:update").Register(name, func(tx *gorm.DB) {
		if tx.Statement.Table != "courses" || bumps >= n {
			return
		}
		bumps++
		if _, err := tx.Statement.ConnPool.ExecContext(tx.Statement.Context, "UPDATE courses SET version = version + 1"); err != nil {
			_ = tx.AddError(err)
		}
	})
	require.NoError(t, err)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	adminActor = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
)

func actorOf(u *models.User) models.Actor {
	return models.Actor{ID: u.ID, Role: u.Role}
}

func (e *testEnv) seedUser(t *testing.T, id string, role models.UserRole) *models.User {
	t.Helper()
	now := time.Now().UTC()
	user := &models.User{
		ID:        id,
		Email:     id + "@example.com",
		Name:      "User " + id,
		Role:      role,
		Status:    models.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, e.repo.User().Create(context.Background(), nil, user))
	return user
}

func (e *testEnv) createCourse(t *testing.T, lecturer *models.User, title string, maxStudents *int) *CourseResponse {
	t.Helper()
	course, err := e.courses.Create(context.Background(), actorOf(lecturer), &CreateCourseRequest{
		Title:       title,
		Description: "Description of " + title,
		MaxStudents: maxStudents,
	})
	require.NoError(t, err)
	return course
}

func (e *testEnv) approvedCourse(t *testing.T, lecturer *models.User, title string, maxStudents *int) *CourseResponse {
	t.Helper()
	course := e.createCourse(t, lecturer, title, maxStudents)
	approved, err := e.approval.Approve(context.Background(), adminActor, course.ID)
	require.NoError(t, err)
	return approved
}

func (e *testEnv) storedCourse(t *testing.T, id string) *models.Course {
	t.Helper()
	course, err := e.repo.Course().GetByID(context.Background(), nil, id)
	require.NoError(t, err)
	return course
}

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

// stubIdentity records identity provider calls and can be made to fail
type stubIdentity struct {
	disabled map[string]bool
	deleted  []string
	err      error
}

func (s *stubIdentity) SetAccountDisabled(_ context.Context, userID string, disabled bool) error {
	if s.err != nil {
		return s.err
	}
	if s.disabled == nil {
		s.disabled = make(map[string]bool)
	}
	s.disabled[userID] = disabled
	return nil
}

func (s *stubIdentity) DeleteAccount(_ context.Context, userID string) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, userID)
	return nil
}

// flakyRepository fails course updates for the listed ids
type flakyRepository struct {
	repositories.Repository
	course *flakyCourseRepository
}

func newFlakyRepository(inner repositories.Repository, failing ...string) *flakyRepository {
	fail := make(map[string]bool, len(failing))
	for _, id := range failing {
		fail[id] = true
	}
	return &flakyRepository{
		Repository: inner,
		course:     &flakyCourseRepository{CourseRepository: inner.Course(), fail: fail},
	}
}

func (r *flakyRepository) Course() repositories.CourseRepository {
	return r.course
}

type flakyCourseRepository struct {
	repositories.CourseRepository
	fail map[string]bool

	// listFailures makes the next n ListIDsByLecturer calls fail
	listFailures int
}

var errStoreDown = errors.New("connection refused")

func (r *flakyCourseRepository) Update(ctx context.Context, id, actorID string, mutate repositories.CourseMutation) (*models.Course, error) {
	if r.fail[id] {
		return nil, errStoreDown
	}
	return r.CourseRepository.Update(ctx, id, actorID, mutate)
}

func (r *flakyCourseRepository) Delete(ctx context.Context, tx *gorm.DB, id string) (*models.Course, error) {
	if r.fail[id] {
		return nil, errStoreDown
	}
	return r.CourseRepository.Delete(ctx, tx, id)
}

func (r *flakyCourseRepository) ListIDsByLecturer(ctx context.Context, tx *gorm.DB, lecturerID string) ([]string, error) {
	if r.listFailures > 0 {
		r.listFailures--
		return nil, errStoreDown
	}
	return r.CourseRepository.ListIDsByLecturer(ctx, tx, lecturerID)
}
