package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/learning-platform-service/internal/cache"
	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories"
)

const defaultUpdateAttempts = 3

type CoursePostgreSQL struct {
	db             *gorm.DB
	helpers        *SharedHelpers
	cacheManager   *cache.CacheManager
	updateAttempts int
}

func NewCoursePostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.CourseRepository {
	return &CoursePostgreSQL{
		db:             db,
		helpers:        NewSharedHelpers(db),
		cacheManager:   cacheManager,
		updateAttempts: defaultUpdateAttempts,
	}
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (r *CoursePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts a course together with any initial roster
func (r *CoursePostgreSQL) Create(ctx context.Context, tx *gorm.DB, course *models.Course) error {
	if course.Version == 0 {
		course.Version = 1
	}

	err := r.getDB(tx).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(course).Error; err != nil {
			return err
		}
		return r.insertEnrollments(tx, course.ID, course.StudentsEnrolled, course.CreatedAt)
	})
	if err != nil {
		return fmt.Errorf("failed to create course: %w", err)
	}

	cache.InvalidateCourseCache(ctx, r.cacheManager, course.ID)
	return nil
}

// GetByID reads a course and its roster, bypassing the cache
func (r *CoursePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Course, error) {
	db := r.getDB(tx).WithContext(ctx)

	var course models.Course
	if err := db.Where("id = ?", id).First(&course).Error; err != nil {
		return nil, notFound("course", id, err)
	}

	roster, err := r.helpers.LoadRoster(ctx, db, id)
	if err != nil {
		return nil, err
	}
	course.StudentsEnrolled = roster

	return &course, nil
}

// GetCached retrieves a course through the cache-aside helper
func (r *CoursePostgreSQL) GetCached(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	err := r.cacheManager.Course.CacheOrExecute(ctx, "id:"+id, &course, func() (interface{}, error) {
		return r.GetByID(ctx, nil, id)
	})
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// List retrieves one page of courses in listing order with rosters attached
func (r *CoursePostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.CourseFilters) ([]*models.Course, error) {
	db := r.getDB(tx).WithContext(ctx)

	query := r.helpers.ApplyCourseFilters(db.Model(&models.Course{}), filters)
	query = r.helpers.ApplyCourseOrder(query, filters.Limit, filters.Offset)

	var courses []*models.Course
	if err := query.Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}

	if err := r.helpers.AttachRosters(ctx, db, courses); err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *CoursePostgreSQL) Count(ctx context.Context, tx *gorm.DB, filters repositories.CourseFilters) (int64, error) {
	db := r.getDB(tx).WithContext(ctx)

	var total int64
	query := r.helpers.ApplyCourseFilters(db.Model(&models.Course{}), filters)
	if err := query.Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count courses: %w", err)
	}
	return total, nil
}

// Update applies mutate under a row lock and writes back with a version check.
// A lost version race is retried a bounded number of times.
func (r *CoursePostgreSQL) Update(ctx context.Context, id string, actorID string, mutate repositories.CourseMutation) (*models.Course, error) {
	var (
		course  *models.Course
		changed bool
		err     error
	)

	for attempt := 1; attempt <= r.updateAttempts; attempt++ {
		course, changed, err = r.updateOnce(ctx, id, actorID, mutate)
		if !errors.Is(err, repositories.ErrVersionConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	if changed {
		cache.InvalidateCourseCache(ctx, r.cacheManager, id)
	}
	return course, nil
}

func (r *CoursePostgreSQL) updateOnce(ctx context.Context, id string, actorID string, mutate repositories.CourseMutation) (*models.Course, bool, error) {
	var (
		result  *models.Course
		changed bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Course
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&current).Error
		if err != nil {
			return notFound("course", id, err)
		}

		roster, err := r.helpers.LoadRoster(ctx, tx, id)
		if err != nil {
			return err
		}
		current.StudentsEnrolled = roster

		next := current.Clone()
		if err := mutate(next); err != nil {
			if errors.Is(err, repositories.ErrSkipUpdate) {
				result = &current
				return nil
			}
			return err
		}

		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
		next.Version = current.Version + 1

		res := tx.Model(&models.Course{}).
			Where("id = ? AND version = ?", id, current.Version).
			Updates(map[string]interface{}{
				"title":          next.Title,
				"description":    next.Description,
				"category":       next.Category,
				"duration":       next.Duration,
				"max_students":   next.MaxStudents,
				"lecturer_id":    next.LecturerID,
				"status":         next.Status,
				"admin_feedback": next.AdminFeedback,
				"version":        next.Version,
				"updated_at":     next.UpdatedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update course: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return repositories.ErrVersionConflict
		}

		if err := r.syncRoster(tx, id, current.StudentsEnrolled, next.StudentsEnrolled, next.UpdatedAt); err != nil {
			return err
		}

		if current.Status != next.Status {
			if err := r.recordTransition(tx, &current, next, actorID); err != nil {
				return err
			}
		}

		result = next
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return result, changed, nil
}

// syncRoster writes the difference between two rosters
func (r *CoursePostgreSQL) syncRoster(tx *gorm.DB, courseID string, before, after []string, at time.Time) error {
	var added, removed []string
	for _, id := range after {
		if !slices.Contains(before, id) {
			added = append(added, id)
		}
	}
	for _, id := range before {
		if !slices.Contains(after, id) {
			removed = append(removed, id)
		}
	}

	if len(removed) > 0 {
		err := tx.Where("course_id = ? AND student_id IN ?", courseID, removed).
			Delete(&models.CourseEnrollment{}).Error
		if err != nil {
			return fmt.Errorf("failed to remove enrollments: %w", err)
		}
	}

	return r.insertEnrollments(tx, courseID, added, at)
}

func (r *CoursePostgreSQL) insertEnrollments(tx *gorm.DB, courseID string, studentIDs []string, at time.Time) error {
	if len(studentIDs) == 0 {
		return nil
	}

	rows := make([]models.CourseEnrollment, len(studentIDs))
	for i, sid := range studentIDs {
		rows[i] = models.CourseEnrollment{CourseID: courseID, StudentID: sid, EnrolledAt: at}
	}
	if err := tx.Create(&rows).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("enrollment for course %s: %w", courseID, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to add enrollments: %w", err)
	}
	return nil
}

func (r *CoursePostgreSQL) recordTransition(tx *gorm.DB, before, after *models.Course, actorID string) error {
	details, err := json.Marshal(map[string]interface{}{
		"enrolled": after.EnrollmentCount(),
		"version":  after.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	action := models.AuditActionRejected
	if after.Status == models.CourseStatusApproved {
		action = models.AuditActionApproved
	}

	entry := &models.CourseAuditEntry{
		CourseID:   after.ID,
		Action:     action,
		FromStatus: before.Status,
		ToStatus:   after.Status,
		ActorID:    actorID,
		Feedback:   after.AdminFeedback,
		Details:    datatypes.JSON(details),
		CreatedAt:  after.UpdatedAt,
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record status transition: %w", err)
	}
	return nil
}

// Delete hard deletes a course with its roster and audit trail
// Delete locks the row, then removes it with its roster and audit rows. The
// returned course is the last committed state, or nil when nothing existed.
func (r *CoursePostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id string) (*models.Course, error) {
	var deleted *models.Course

	err := r.getDB(tx).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Course
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&current).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if err := tx.Where("course_id = ?", id).Delete(&models.CourseEnrollment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("course_id = ?", id).Delete(&models.CourseAuditEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).Delete(&models.Course{}).Error; err != nil {
			return err
		}
		deleted = &current
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete course: %w", err)
	}

	cache.InvalidateCourseCache(ctx, r.cacheManager, id)
	return deleted, nil
}

func (r *CoursePostgreSQL) ListIDsByLecturer(ctx context.Context, tx *gorm.DB, lecturerID string) ([]string, error) {
	ids := []string{}
	err := r.getDB(tx).WithContext(ctx).
		Model(&models.Course{}).
		Where("lecturer_id = ?", lecturerID).
		Order("created_at DESC").Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list lecturer courses: %w", err)
	}
	return ids, nil
}

func (r *CoursePostgreSQL) ListIDsByStudent(ctx context.Context, tx *gorm.DB, studentID string) ([]string, error) {
	ids := []string{}
	err := r.getDB(tx).WithContext(ctx).
		Model(&models.CourseEnrollment{}).
		Where("student_id = ?", studentID).
		Order("course_id ASC").
		Pluck("course_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list student courses: %w", err)
	}
	return ids, nil
}

func (r *CoursePostgreSQL) GetAuditTrail(ctx context.Context, tx *gorm.DB, courseID string) ([]*models.CourseAuditEntry, error) {
	var entries []*models.CourseAuditEntry
	err := r.getDB(tx).WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("created_at ASC").Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load audit trail: %w", err)
	}
	return entries, nil
}
