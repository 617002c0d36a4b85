package services

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/learning-platform-service/internal/events"
	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories"
	"github.com/SAP-F-2025/learning-platform-service/internal/validator"
)

type courseService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
	clock     func() time.Time
}

func NewCourseService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) CourseService {
	return &courseService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validator: validator,
		clock:     utcNow,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *courseService) Create(ctx context.Context, actor models.Actor, req *CreateCourseRequest) (*CourseResponse, error) {
	s.logger.Info("Creating course", "actor_id", actor.ID, "title", req.Title)

	if !actor.IsLecturer() && !actor.IsAdmin() {
		return nil, NewPermissionError(actor.ID, "", "course", "create", "only lecturers and admins create courses")
	}

	if errs := s.validator.GetBusinessValidator().ValidateCourseCreate(req); len(errs) > 0 {
		return nil, errs
	}

	lecturerID := actor.ID
	if actor.IsAdmin() {
		if strings.TrimSpace(req.LecturerID) == "" {
			return nil, NewValidationError("lecturer_id", "is required when an admin creates a course", req.LecturerID)
		}
		lecturerID = strings.TrimSpace(req.LecturerID)
	} else if req.LecturerID != "" && req.LecturerID != actor.ID {
		return nil, NewPermissionError(actor.ID, "", "course", "create", "lecturers create courses for themselves")
	}

	lecturer, err := s.requireActiveLecturer(ctx, lecturerID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	course := &models.Course{
		ID:               uuid.NewString(),
		Title:            strings.TrimSpace(req.Title),
		Description:      strings.TrimSpace(req.Description),
		Category:         trimOptional(req.Category),
		Duration:         trimOptional(req.Duration),
		MaxStudents:      req.MaxStudents,
		LecturerID:       lecturer.ID,
		Status:           models.CourseStatusPending,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
		StudentsEnrolled: []string{},
	}

	if err := s.repo.Course().Create(ctx, nil, course); err != nil {
		return nil, storeError("create course", err, nil)
	}

	s.logger.Info("Course created successfully", "course_id", course.ID, "lecturer_id", course.LecturerID)
	publishCourseEvent(ctx, s.publisher, s.logger, events.NewCourseEvent(events.CourseCreated, course, actor.ID))

	return buildCourseResponse(course, actor, lecturer.Name), nil
}

// requireActiveLecturer reports a bad lecturer reference as a validation failure
func (s *courseService) requireActiveLecturer(ctx context.Context, lecturerID string) (*models.User, error) {
	lecturer, err := s.repo.User().GetByID(ctx, nil, lecturerID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewValidationError("lecturer_id", "does not reference an existing user", lecturerID)
		}
		return nil, storeError("get lecturer", err, nil)
	}
	if lecturer.Role != models.RoleLecturer {
		return nil, NewValidationError("lecturer_id", "does not reference a lecturer", lecturerID)
	}
	if !lecturer.IsActive() {
		return nil, NewValidationError("lecturer_id", "references a suspended lecturer", lecturerID)
	}
	return lecturer, nil
}

func (s *courseService) GetByID(ctx context.Context, actor models.Actor, id string) (*CourseResponse, error) {
	course, err := s.repo.Course().GetCached(ctx, id)
	if err != nil {
		return nil, storeError("get course", err, ErrCourseNotFound)
	}

	// invisible courses are reported as missing
	if !canViewCourse(actor, course) {
		return nil, ErrCourseNotFound
	}

	return buildCourseResponse(course, actor, lecturerName(ctx, s.repo, course.LecturerID)), nil
}

func (s *courseService) List(ctx context.Context, actor models.Actor, filters CourseListFilters) iter.Seq2[*CourseResponse, error] {
	return func(yield func(*CourseResponse, error) bool) {
		repoFilters, err := s.buildRepoFilters(actor, filters)
		if err != nil {
			yield(nil, err)
			return
		}

		for offset := 0; ; offset += listPageSize {
			repoFilters.Limit = listPageSize
			repoFilters.Offset = offset

			page, err := s.repo.Course().List(ctx, nil, repoFilters)
			if err != nil {
				yield(nil, storeError("list courses", err, nil))
				return
			}

			names, err := lecturerNames(ctx, s.repo, page)
			if err != nil {
				yield(nil, storeError("resolve lecturers", err, nil))
				return
			}

			for _, course := range page {
				if !yield(buildCourseResponse(course, actor, names[course.LecturerID]), nil) {
					return
				}
			}

			if len(page) < listPageSize {
				return
			}
		}
	}
}

func (s *courseService) ListPage(ctx context.Context, actor models.Actor, filters CourseListFilters, page, size int) (*CourseListResponse, error) {
	page, size = normalizePage(page, size)

	repoFilters, err := s.buildRepoFilters(actor, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.Course().Count(ctx, nil, repoFilters)
	if err != nil {
		return nil, storeError("count courses", err, nil)
	}

	repoFilters.Limit = size
	repoFilters.Offset = (page - 1) * size
	courses, err := s.repo.Course().List(ctx, nil, repoFilters)
	if err != nil {
		return nil, storeError("list courses", err, nil)
	}

	names, err := lecturerNames(ctx, s.repo, courses)
	if err != nil {
		return nil, storeError("resolve lecturers", err, nil)
	}

	responses := make([]*CourseResponse, len(courses))
	for i, course := range courses {
		responses[i] = buildCourseResponse(course, actor, names[course.LecturerID])
	}

	return &CourseListResponse{
		Courses: responses,
		Total:   total,
		Page:    page,
		Size:    size,
	}, nil
}

func (s *courseService) buildRepoFilters(actor models.Actor, filters CourseListFilters) (repositories.CourseFilters, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return repositories.CourseFilters{}, NewValidationError("status", "must be one of pending approved rejected", *filters.Status)
	}
	if filters.EnrolledStudentID != nil && actor.IsStudent() && *filters.EnrolledStudentID != actor.ID {
		return repositories.CourseFilters{}, NewPermissionError(actor.ID, *filters.EnrolledStudentID, "enrollment", "list", "students only list their own enrollments")
	}

	viewer := actor
	return repositories.CourseFilters{
		Status:            filters.Status,
		LecturerID:        filters.LecturerID,
		EnrolledStudentID: filters.EnrolledStudentID,
		Query:             strings.TrimSpace(filters.Query),
		Viewer:            &viewer,
	}, nil
}

func (s *courseService) UpdateContent(ctx context.Context, actor models.Actor, id string, req *UpdateCourseRequest) (*CourseResponse, error) {
	s.logger.Info("Updating course content", "course_id", id, "actor_id", actor.ID)

	if req.IsEmpty() {
		return nil, NewValidationError("request", "no fields to update", nil)
	}

	updated, err := s.repo.Course().Update(ctx, id, actor.ID, func(course *models.Course) error {
		if !canManageCourse(actor, course) {
			return NewPermissionError(actor.ID, id, "course", "update", "not owner or admin")
		}
		if errs := s.validator.GetBusinessValidator().ValidateCourseUpdate(req, course); len(errs) > 0 {
			return errs
		}

		if req.Title != nil {
			course.Title = strings.TrimSpace(*req.Title)
		}
		if req.Description != nil {
			course.Description = strings.TrimSpace(*req.Description)
		}
		if req.Category != nil {
			course.Category = trimOptional(req.Category)
		}
		if req.Duration != nil {
			course.Duration = trimOptional(req.Duration)
		}
		if req.ClearMaxStudents {
			course.MaxStudents = nil
		} else if req.MaxStudents != nil {
			limit := *req.MaxStudents
			course.MaxStudents = &limit
		}

		course.UpdatedAt = s.clock()
		return nil
	})
	if err != nil {
		return nil, storeError("update course", err, ErrCourseNotFound)
	}

	s.logger.Info("Course content updated", "course_id", id, "version", updated.Version)
	publishCourseEvent(ctx, s.publisher, s.logger, events.NewCourseEvent(events.CourseUpdated, updated, actor.ID))

	return buildCourseResponse(updated, actor, lecturerName(ctx, s.repo, updated.LecturerID)), nil
}

func (s *courseService) Delete(ctx context.Context, actor models.Actor, id string) error {
	s.logger.Info("Deleting course", "course_id", id, "actor_id", actor.ID)

	course, err := s.repo.Course().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			s.logger.Info("Course already absent", "course_id", id)
			return nil
		}
		return storeError("get course", err, nil)
	}

	if !canManageCourse(actor, course) {
		return NewPermissionError(actor.ID, id, "course", "delete", "not owner or admin")
	}

	// the event is built from the locked row so it orders after any update
	// committed since the read above
	deleted, err := s.repo.Course().Delete(ctx, nil, id)
	if err != nil {
		return storeError("delete course", err, nil)
	}

	if deleted != nil {
		s.logger.Info("Course deleted successfully", "course_id", id, "version", deleted.Version)
		publishCourseEvent(ctx, s.publisher, s.logger, events.NewCourseDeletedEvent(deleted, actor.ID, s.clock()))
	}
	return nil
}

func (s *courseService) History(ctx context.Context, actor models.Actor, id string) ([]*models.CourseAuditEntry, error) {
	course, err := s.repo.Course().GetCached(ctx, id)
	if err != nil {
		return nil, storeError("get course", err, ErrCourseNotFound)
	}
	if !canManageCourse(actor, course) {
		return nil, NewPermissionError(actor.ID, id, "course", "view_history", "not owner or admin")
	}

	entries, err := s.repo.Course().GetAuditTrail(ctx, nil, id)
	if err != nil {
		return nil, storeError("get audit trail", err, nil)
	}
	return entries, nil
}
