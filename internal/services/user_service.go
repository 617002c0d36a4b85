package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories"
	"github.com/SAP-F-2025/learning-platform-service/internal/validator"
)

type userService struct {
	repo       repositories.Repository
	db         *gorm.DB
	courses    CourseService
	enrollment EnrollmentService
	logger     *slog.Logger
	validator  *validator.Validator
	clock      func() time.Time
}

func NewUserService(repo repositories.Repository, db *gorm.DB, courses CourseService, enrollment EnrollmentService, logger *slog.Logger, validator *validator.Validator) UserService {
	return &userService{
		repo:       repo,
		db:         db,
		courses:    courses,
		enrollment: enrollment,
		logger:     logger,
		validator:  validator,
		clock:      utcNow,
	}
}

// withTx runs fn in a database transaction
func (s *userService) withTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// ===== DIRECTORY =====

func (s *userService) Register(ctx context.Context, req *RegisterUserRequest) (*models.User, error) {
	s.logger.Info("Registering user", "user_id", req.ID, "role", req.Role)

	if errs := s.validator.GetBusinessValidator().ValidateRegistration(req); len(errs) > 0 {
		return nil, errs
	}

	now := s.clock()
	user := &models.User{
		ID:        req.ID,
		Email:     models.NormalizeEmail(req.Email),
		Name:      strings.TrimSpace(req.Name),
		Role:      req.Role,
		Status:    models.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.User().Create(ctx, nil, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, &ConflictError{Reason: fmt.Sprintf("user %s or email %s already registered", user.ID, user.Email)}
		}
		return nil, storeError("register user", err, nil)
	}

	s.logger.Info("User registered", "user_id", user.ID)
	return user, nil
}

// EnsureUser trusts the identity provider for id, email and name. An existing
// directory record wins so admin role and status changes stick.
func (s *userService) EnsureUser(ctx context.Context, identity *models.User) (*models.User, error) {
	existing, err := s.repo.User().GetByID(ctx, nil, identity.ID)
	if err == nil {
		return existing, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, storeError("get user", err, nil)
	}

	name := identity.Name
	if len([]rune(strings.TrimSpace(name))) < 2 {
		name = identity.Email
	}

	user, err := s.Register(ctx, &RegisterUserRequest{
		ID:    identity.ID,
		Email: identity.Email,
		Name:  name,
		Role:  identity.Role,
	})
	if errors.Is(err, ErrConflict) {
		// registered concurrently by another request
		existing, getErr := s.repo.User().GetByID(ctx, nil, identity.ID)
		if getErr == nil {
			return existing, nil
		}
	}
	return user, err
}

func (s *userService) GetByID(ctx context.Context, actor models.Actor, id string) (*models.User, error) {
	if actor.ID != id && !actor.IsAdmin() && !actor.IsLecturer() {
		return nil, NewPermissionError(actor.ID, id, "user", "read", "students only read their own record")
	}

	user, err := s.repo.User().GetByID(ctx, nil, id)
	if err != nil {
		return nil, storeError("get user", err, ErrUserNotFound)
	}
	return user, nil
}

// List is open to admins; lecturers may only list students
func (s *userService) List(ctx context.Context, actor models.Actor, filters UserListFilters) (*UserListResponse, error) {
	if err := s.authorizeListing(actor, filters.Role); err != nil {
		return nil, err
	}

	page, size := normalizePage(filters.Page, filters.Size)
	users, total, err := s.repo.User().List(ctx, nil, repositories.UserFilters{
		Role:   filters.Role,
		Status: filters.Status,
		Query:  strings.TrimSpace(filters.Query),
		Limit:  size,
		Offset: (page - 1) * size,
	})
	if err != nil {
		return nil, storeError("list users", err, nil)
	}

	return &UserListResponse{Users: users, Total: total, Page: page, Size: size}, nil
}

func (s *userService) ListByRole(ctx context.Context, actor models.Actor, role models.UserRole) ([]*models.User, error) {
	if !role.IsValid() {
		return nil, NewValidationError("role", "must be one of student lecturer admin", role)
	}
	if err := s.authorizeListing(actor, &role); err != nil {
		return nil, err
	}

	users, _, err := s.repo.User().List(ctx, nil, repositories.UserFilters{Role: &role})
	if err != nil {
		return nil, storeError("list users", err, nil)
	}
	return users, nil
}

func (s *userService) authorizeListing(actor models.Actor, role *models.UserRole) error {
	switch {
	case actor.IsAdmin():
		return nil
	case actor.IsLecturer() && role != nil && *role == models.RoleStudent:
		return nil
	default:
		return NewPermissionError(actor.ID, "", "user", "list", "admins list users; lecturers list students")
	}
}

// ===== ADMINISTRATION =====

// SetStatus mirrors the flag to the identity provider first so a failure there leaves the directory untouched
func (s *userService) SetStatus(ctx context.Context, actor models.Actor, id string, status models.UserStatus) (*models.User, error) {
	s.logger.Info("Setting user status", "user_id", id, "status", status, "actor_id", actor.ID)

	if !actor.IsAdmin() {
		return nil, NewPermissionError(actor.ID, id, "user", "set_status", "admin role required")
	}
	if !status.IsValid() {
		return nil, NewValidationError("status", "must be active or suspended", status)
	}
	if id == actor.ID && status == models.UserStatusSuspended {
		return nil, NewValidationError("status", "admins cannot suspend themselves", status)
	}

	user, err := s.repo.User().GetByID(ctx, nil, id)
	if err != nil {
		return nil, storeError("get user", err, ErrUserNotFound)
	}
	if user.Status == status {
		return user, nil
	}

	if err := s.repo.Identity().SetAccountDisabled(ctx, id, status == models.UserStatusSuspended); err != nil {
		return nil, &DependencyError{Operation: "sync identity status", Err: err}
	}

	now := s.clock()
	if err := s.repo.User().UpdateStatus(ctx, nil, id, status, now); err != nil {
		return nil, storeError("update user status", err, ErrUserNotFound)
	}

	user.Status = status
	user.UpdatedAt = now
	s.logger.Info("User status updated", "user_id", id, "status", status)
	return user, nil
}

// SetRole refuses to demote a lecturer who still owns courses, since every
// course must reference a lecturer
func (s *userService) SetRole(ctx context.Context, actor models.Actor, id string, role models.UserRole) (*models.User, error) {
	s.logger.Info("Setting user role", "user_id", id, "role", role, "actor_id", actor.ID)

	if !actor.IsAdmin() {
		return nil, NewPermissionError(actor.ID, id, "user", "set_role", "admin role required")
	}
	if !role.IsValid() {
		return nil, NewValidationError("role", "must be one of student lecturer admin", role)
	}
	if id == actor.ID && role != models.RoleAdmin {
		return nil, NewValidationError("role", "admins cannot demote themselves", role)
	}

	var user *models.User
	err := s.withTx(ctx, func(tx *gorm.DB) error {
		var err error
		user, err = s.repo.User().GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if user.Role == role {
			return nil
		}

		if user.Role == models.RoleLecturer {
			owned, err := s.repo.Course().ListIDsByLecturer(ctx, tx, id)
			if err != nil {
				return err
			}
			if len(owned) > 0 {
				return &StateError{
					Resource:  "user",
					ID:        id,
					Operation: "change role of",
					Reason:    fmt.Sprintf("lecturer still owns %d courses", len(owned)),
				}
			}
		}

		now := s.clock()
		if err := s.repo.User().UpdateRole(ctx, tx, id, role, now); err != nil {
			return err
		}
		user.Role = role
		user.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, storeError("set user role", err, ErrUserNotFound)
	}

	s.logger.Info("User role updated", "user_id", id, "role", user.Role)
	return user, nil
}

// Delete removes the identity account, then the directory record, then every
// dependent course update. Owned courses are listed first so a store outage
// aborts before anything is removed. The fan-out is not transactional: each
// course is attempted and failures are reported. Deleting an absent user
// still sweeps courses referencing the id, so a retry finishes a cascade that
// was cut short.
func (s *userService) Delete(ctx context.Context, actor models.Actor, id string) (*CascadeReport, error) {
	s.logger.Info("Deleting user", "user_id", id, "actor_id", actor.ID)

	if !actor.IsAdmin() {
		return nil, NewPermissionError(actor.ID, id, "user", "delete", "admin role required")
	}
	if id == actor.ID {
		return nil, NewValidationError("id", "admins cannot delete themselves", id)
	}

	var role models.UserRole
	user, err := s.repo.User().GetByID(ctx, nil, id)
	switch {
	case err == nil:
		role = user.Role
	case repositories.IsNotFoundError(err):
		s.logger.Info("User already absent, sweeping leftover references", "user_id", id)
	default:
		return nil, storeError("get user", err, nil)
	}

	owned, err := s.repo.Course().ListIDsByLecturer(ctx, nil, id)
	if err != nil {
		return nil, storeError("list lecturer courses", err, nil)
	}

	if user != nil {
		if err := s.repo.Identity().DeleteAccount(ctx, id); err != nil {
			return nil, &DependencyError{Operation: "delete identity account", Err: err}
		}
		if _, err := s.repo.User().Delete(ctx, nil, id); err != nil {
			return nil, storeError("delete user", err, nil)
		}
	}

	report := newCascadeReport(id, role)
	s.deleteOwnedCourses(ctx, actor, id, owned, report)

	// a former student keeps enrollments across a role change, so every
	// deletion purges rosters regardless of the current role
	purged, err := s.enrollment.PurgeStudent(ctx, actor, id)
	if err != nil {
		s.logger.Error("Failed to purge enrollments, retry the deletion", "user_id", id, "error", err)
		return report, err
	}
	report.merge(purged)

	if report.HasFailures() {
		s.logger.Warn("User deleted with cascade failures",
			"user_id", id, "failed", len(report.Failed), "succeeded", len(report.Succeeded))
		return report, report.Err()
	}

	s.logger.Info("User deleted successfully", "user_id", id, "dependent_updates", len(report.Succeeded))
	return report, nil
}

func (s *userService) deleteOwnedCourses(ctx context.Context, actor models.Actor, lecturerID string, courseIDs []string, report *CascadeReport) {
	for _, courseID := range courseIDs {
		err := s.courses.Delete(ctx, actor, courseID)
		if err != nil {
			s.logger.Error("Failed to delete lecturer course",
				"lecturer_id", lecturerID, "course_id", courseID, "error", err)
		}
		report.record(courseID, "delete_course", err)
	}
}
