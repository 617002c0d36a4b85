package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/SAP-F-2025/learning-platform-service/internal/events"
	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories"
)

const (
	cascadeConcurrency = 4

	rosterSheet       = "Roster"
	rosterContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type enrollmentService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	clock     func() time.Time
}

func NewEnrollmentService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger) EnrollmentService {
	return &enrollmentService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		clock:     utcNow,
	}
}

// Enroll adds the student under the course lock, so the capacity check and the
// insert cannot interleave with another enrollment.
func (s *enrollmentService) Enroll(ctx context.Context, actor models.Actor, courseID, studentID string) (*EnrollmentResult, error) {
	if studentID == "" {
		studentID = actor.ID
	}
	s.logger.Info("Enrolling student", "course_id", courseID, "student_id", studentID, "actor_id", actor.ID)

	if !actor.IsAdmin() && !(actor.IsStudent() && studentID == actor.ID) {
		return nil, NewPermissionError(actor.ID, courseID, "course", "enroll", "students enroll themselves; admins may enroll anyone")
	}

	if err := s.requireActiveStudent(ctx, studentID); err != nil {
		return nil, err
	}

	already := false
	updated, err := s.repo.Course().Update(ctx, courseID, actor.ID, func(course *models.Course) error {
		if course.Status != models.CourseStatusApproved {
			return NewStateError("course", courseID, "enroll in", course.Status, "enrollment requires an approved course")
		}
		if course.IsEnrolled(studentID) {
			already = true
			return repositories.ErrSkipUpdate
		}
		if !course.HasCapacity() {
			return &CapacityError{CourseID: courseID, MaxStudents: *course.MaxStudents, Enrolled: course.EnrollmentCount()}
		}

		course.StudentsEnrolled = append(course.StudentsEnrolled, studentID)
		course.UpdatedAt = s.clock()
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			// lost an insert race against the same enrollment
			return s.currentResult(ctx, courseID, studentID)
		}
		return nil, storeError("enroll", err, ErrCourseNotFound)
	}

	result := enrollmentResult(updated, studentID)
	if already {
		s.logger.Info("Student already enrolled", "course_id", courseID, "student_id", studentID)
		result.AlreadyEnrolled = true
		return result, nil
	}

	result.Changed = true
	publishCourseEvent(ctx, s.publisher, s.logger, events.NewCourseEvent(events.CourseEnrollmentChanged, updated, actor.ID))
	s.logger.Info("Student enrolled", "course_id", courseID, "student_id", studentID, "enrolled", result.EnrolledCount)
	return result, nil
}

func (s *enrollmentService) requireActiveStudent(ctx context.Context, studentID string) error {
	student, err := s.repo.User().GetByID(ctx, nil, studentID)
	if err != nil {
		return storeError("get student", err, ErrUserNotFound)
	}
	if student.Role != models.RoleStudent {
		return NewValidationError("student_id", "does not reference a student", studentID)
	}
	if !student.IsActive() {
		return NewValidationError("student_id", "references a suspended student", studentID)
	}
	return nil
}

func (s *enrollmentService) currentResult(ctx context.Context, courseID, studentID string) (*EnrollmentResult, error) {
	course, err := s.repo.Course().GetByID(ctx, nil, courseID)
	if err != nil {
		return nil, storeError("get course", err, ErrCourseNotFound)
	}
	result := enrollmentResult(course, studentID)
	result.AlreadyEnrolled = result.Enrolled
	return result, nil
}

// Unenroll lets a student leave an approved course. Admins and the owning
// lecturer may remove a student at any status. Removing an absent id changes nothing.
func (s *enrollmentService) Unenroll(ctx context.Context, actor models.Actor, courseID, studentID string) (*EnrollmentResult, error) {
	if studentID == "" {
		studentID = actor.ID
	}
	s.logger.Info("Unenrolling student", "course_id", courseID, "student_id", studentID, "actor_id", actor.ID)

	changed := false
	updated, err := s.repo.Course().Update(ctx, courseID, actor.ID, func(course *models.Course) error {
		administrative := canManageCourse(actor, course)
		if !administrative && !(actor.IsStudent() && studentID == actor.ID) {
			return NewPermissionError(actor.ID, courseID, "course", "unenroll", "not the student, course owner or admin")
		}
		if !administrative && course.Status != models.CourseStatusApproved {
			return NewStateError("course", courseID, "unenroll from", course.Status, "enrollment requires an approved course")
		}
		if !course.IsEnrolled(studentID) {
			return repositories.ErrSkipUpdate
		}

		course.StudentsEnrolled = slices.DeleteFunc(course.StudentsEnrolled, func(id string) bool { return id == studentID })
		course.UpdatedAt = s.clock()
		changed = true
		return nil
	})
	if err != nil {
		return nil, storeError("unenroll", err, ErrCourseNotFound)
	}

	result := enrollmentResult(updated, studentID)
	result.Changed = changed
	if changed {
		publishCourseEvent(ctx, s.publisher, s.logger, events.NewCourseEvent(events.CourseEnrollmentChanged, updated, actor.ID))
		s.logger.Info("Student unenrolled", "course_id", courseID, "student_id", studentID)
	}
	return result, nil
}

func enrollmentResult(course *models.Course, studentID string) *EnrollmentResult {
	return &EnrollmentResult{
		CourseID:      course.ID,
		StudentID:     studentID,
		Enrolled:      course.IsEnrolled(studentID),
		EnrolledCount: course.EnrollmentCount(),
		MaxStudents:   course.MaxStudents,
		UpdatedAt:     course.UpdatedAt,
	}
}

// ===== ROSTER =====

func (s *enrollmentService) ListEnrolled(ctx context.Context, actor models.Actor, courseID string) ([]EnrolledStudent, error) {
	course, err := s.manageableCourse(ctx, actor, courseID, "list_students")
	if err != nil {
		return nil, err
	}
	return s.resolveRoster(ctx, course)
}

func (s *enrollmentService) manageableCourse(ctx context.Context, actor models.Actor, courseID, action string) (*models.Course, error) {
	course, err := s.repo.Course().GetByID(ctx, nil, courseID)
	if err != nil {
		return nil, storeError("get course", err, ErrCourseNotFound)
	}
	if !canManageCourse(actor, course) {
		return nil, NewPermissionError(actor.ID, courseID, "course", action, "not owner or admin")
	}
	return course, nil
}

// resolveRoster keeps enrollment order; ids without a directory record show as Unknown
func (s *enrollmentService) resolveRoster(ctx context.Context, course *models.Course) ([]EnrolledStudent, error) {
	users, err := s.repo.User().GetByIDs(ctx, nil, course.StudentsEnrolled)
	if err != nil {
		return nil, storeError("resolve roster", err, nil)
	}

	byID := make(map[string]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	roster := make([]EnrolledStudent, 0, len(course.StudentsEnrolled))
	for _, id := range course.StudentsEnrolled {
		entry := EnrolledStudent{ID: id, Name: unknownUserName}
		if u, ok := byID[id]; ok {
			entry.Name = u.Name
			entry.Email = u.Email
			entry.Status = u.Status
			entry.Known = true
		}
		roster = append(roster, entry)
	}
	return roster, nil
}

func (s *enrollmentService) ExportRoster(ctx context.Context, actor models.Actor, courseID string) (*RosterExport, error) {
	course, err := s.manageableCourse(ctx, actor, courseID, "export_students")
	if err != nil {
		return nil, err
	}

	roster, err := s.resolveRoster(ctx, course)
	if err != nil {
		return nil, err
	}

	data, err := buildRosterWorkbook(course, roster)
	if err != nil {
		return nil, fmt.Errorf("failed to build roster workbook: %w", err)
	}

	s.logger.Info("Roster exported", "course_id", courseID, "students", len(roster))
	return &RosterExport{
		FileName:    fmt.Sprintf("roster-%s.xlsx", course.ID),
		ContentType: rosterContentType,
		Data:        data,
	}, nil
}

func buildRosterWorkbook(course *models.Course, roster []EnrolledStudent) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", rosterSheet); err != nil {
		return nil, err
	}

	capacity := "unlimited"
	if course.MaxStudents != nil {
		capacity = fmt.Sprint(*course.MaxStudents)
	}

	rows := [][]interface{}{
		{"Course", course.Title},
		{"Status", string(course.Status)},
		{"Enrolled", fmt.Sprintf("%d / %s", len(roster), capacity)},
		{},
		{"#", "Student ID", "Name", "Email", "Status"},
	}
	for i, st := range roster {
		rows = append(rows, []interface{}{i + 1, st.ID, st.Name, st.Email, string(st.Status)})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(rosterSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(rosterSheet, "A5", "E5", headerStyle); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(rosterSheet, "B", "D", 30); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ===== CASCADE =====

func (s *enrollmentService) PurgeStudent(ctx context.Context, actor models.Actor, studentID string) (*CascadeReport, error) {
	if !actor.IsAdmin() {
		return nil, NewPermissionError(actor.ID, studentID, "user", "purge_enrollments", "admin role required")
	}

	courseIDs, err := s.repo.Course().ListIDsByStudent(ctx, nil, studentID)
	if err != nil {
		return nil, storeError("list student courses", err, nil)
	}

	s.logger.Info("Removing student from courses", "student_id", studentID, "courses", len(courseIDs))

	report := newCascadeReport(studentID, models.RoleStudent)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cascadeConcurrency)
	for _, courseID := range courseIDs {
		g.Go(func() error {
			err := s.removeFromCourse(gctx, actor, courseID, studentID)
			if err != nil {
				s.logger.Error("Failed to remove student from course",
					"student_id", studentID, "course_id", courseID, "error", err)
			}

			mu.Lock()
			report.record(courseID, "unenroll", err)
			mu.Unlock()

			// failures are collected, never propagated, so every course is attempted
			return nil
		})
	}
	_ = g.Wait()

	return report, nil
}

func (s *enrollmentService) removeFromCourse(ctx context.Context, actor models.Actor, courseID, studentID string) error {
	changed := false
	updated, err := s.repo.Course().Update(ctx, courseID, actor.ID, func(course *models.Course) error {
		if !course.IsEnrolled(studentID) {
			return repositories.ErrSkipUpdate
		}
		course.StudentsEnrolled = slices.DeleteFunc(course.StudentsEnrolled, func(id string) bool { return id == studentID })
		course.UpdatedAt = s.clock()
		changed = true
		return nil
	})
	if err != nil {
		if repositories.IsNotFoundError(err) {
			// course deleted meanwhile; nothing left to clean
			return nil
		}
		return storeError("unenroll", err, nil)
	}

	if changed {
		publishCourseEvent(ctx, s.publisher, s.logger, events.NewCourseEvent(events.CourseEnrollmentChanged, updated, actor.ID))
	}
	return nil
}
