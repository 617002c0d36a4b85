package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories"
)

// SharedHelpers contains common query building shared by the repositories
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// likeEscaper escapes LIKE wildcards; every LIKE below declares '\' as its escape character.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(q))) + "%"
}

// enrolledCourseIDs builds "SELECT course_id FROM course_enrollments WHERE student_id = ?"
func (h *SharedHelpers) enrolledCourseIDs(query *gorm.DB, studentID string) *gorm.DB {
	return query.Session(&gorm.Session{NewDB: true}).
		Model(&models.CourseEnrollment{}).
		Select("course_id").
		Where("student_id = ?", studentID)
}

// ApplyCourseFilters applies the course listing filters and viewer visibility
func (h *SharedHelpers) ApplyCourseFilters(query *gorm.DB, filters repositories.CourseFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("courses.status = ?", *filters.Status)
	}
	if filters.LecturerID != nil {
		query = query.Where("courses.lecturer_id = ?", *filters.LecturerID)
	}
	if filters.EnrolledStudentID != nil {
		query = query.Where("courses.id IN (?)", h.enrolledCourseIDs(query, *filters.EnrolledStudentID))
	}
	if strings.TrimSpace(filters.Query) != "" {
		pattern := containsPattern(filters.Query)
		lecturers := query.Session(&gorm.Session{NewDB: true}).
			Model(&models.User{}).
			Select("id").
			Where(`LOWER(name) LIKE ? ESCAPE '\'`, pattern)
		query = query.Where(
			`(LOWER(courses.title) LIKE ? ESCAPE '\' OR LOWER(courses.description) LIKE ? ESCAPE '\' OR LOWER(COALESCE(courses.category, '')) LIKE ? ESCAPE '\' OR courses.lecturer_id IN (?))`,
			pattern, pattern, pattern, lecturers,
		)
	}
	if viewer := filters.Viewer; viewer != nil {
		switch viewer.Role {
		case models.RoleAdmin:
		case models.RoleLecturer:
			query = query.Where("(courses.lecturer_id = ? OR courses.status = ?)", viewer.ID, models.CourseStatusApproved)
		default:
			query = query.Where("(courses.status = ? OR courses.id IN (?))",
				models.CourseStatusApproved, h.enrolledCourseIDs(query, viewer.ID))
		}
	}
	return query
}

// ApplyCourseOrder applies the canonical listing order and pagination
func (h *SharedHelpers) ApplyCourseOrder(query *gorm.DB, limit, offset int) *gorm.DB {
	query = query.Order("courses.created_at DESC").Order("courses.id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}

// ApplyUserFilters applies directory filters
func (h *SharedHelpers) ApplyUserFilters(query *gorm.DB, filters repositories.UserFilters) *gorm.DB {
	if filters.Role != nil {
		query = query.Where("role = ?", *filters.Role)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if strings.TrimSpace(filters.Query) != "" {
		pattern := containsPattern(filters.Query)
		query = query.Where(`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	return query
}

// LoadRoster returns one course's student ids in enrollment order
func (h *SharedHelpers) LoadRoster(ctx context.Context, db *gorm.DB, courseID string) ([]string, error) {
	ids := []string{}
	err := db.WithContext(ctx).
		Model(&models.CourseEnrollment{}).
		Where("course_id = ?", courseID).
		Order("enrolled_at ASC").Order("student_id ASC").
		Pluck("student_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	return ids, nil
}

// AttachRosters fills StudentsEnrolled for a page of courses with one query
func (h *SharedHelpers) AttachRosters(ctx context.Context, db *gorm.DB, courses []*models.Course) error {
	if len(courses) == 0 {
		return nil
	}

	ids := make([]string, len(courses))
	for i, c := range courses {
		ids[i] = c.ID
	}

	var rows []models.CourseEnrollment
	err := db.WithContext(ctx).
		Where("course_id IN ?", ids).
		Order("enrolled_at ASC").Order("student_id ASC").
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to load rosters: %w", err)
	}

	byCourse := make(map[string][]string, len(courses))
	for _, row := range rows {
		byCourse[row.CourseID] = append(byCourse[row.CourseID], row.StudentID)
	}
	for _, c := range courses {
		c.StudentsEnrolled = byCourse[c.ID]
		if c.StudentsEnrolled == nil {
			c.StudentsEnrolled = []string{}
		}
	}
	return nil
}

func notFound(resource, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", resource, id, repositories.ErrNotFound)
	}
	return err
}
