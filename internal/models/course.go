package models

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

type CourseStatus string

const (
	CourseStatusPending  CourseStatus = "pending"
	CourseStatusApproved CourseStatus = "approved"
	CourseStatusRejected CourseStatus = "rejected"
)

// courseTransitions lists the targets reachable from each status.
// Approved and rejected are re-enterable so repeated reviews are no-ops.
var courseTransitions = map[CourseStatus][]CourseStatus{
	CourseStatusPending:  {CourseStatusApproved, CourseStatusRejected},
	CourseStatusApproved: {CourseStatusApproved, CourseStatusRejected},
	CourseStatusRejected: {CourseStatusApproved, CourseStatusRejected},
}

func (s CourseStatus) IsValid() bool {
	_, ok := courseTransitions[s]
	return ok
}

func (s CourseStatus) CanTransitionTo(target CourseStatus) bool {
	return slices.Contains(courseTransitions[s], target)
}

type Course struct {
	ID            string       `json:"id" gorm:"primaryKey;size:36"`
	Title         string       `json:"title" gorm:"not null;size:200"`
	Description   string       `json:"description" gorm:"type:text;not null"`
	Category      *string      `json:"category" gorm:"size:100"`
	Duration      *string      `json:"duration" gorm:"size:100"`
	MaxStudents   *int         `json:"max_students"`
	LecturerID    string       `json:"lecturer_id" gorm:"not null;index;size:255"`
	Status        CourseStatus `json:"status" gorm:"not null;index;size:20;default:pending"`
	AdminFeedback *string      `json:"admin_feedback" gorm:"type:text"`

	// Version is bumped on every write and used as a compare-and-set token.
	Version int `json:"version" gorm:"not null;default:1"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	// Materialised from course_enrollments in enrollment order.
	StudentsEnrolled []string `json:"students_enrolled" gorm:"-"`
}

func (Course) TableName() string {
	return "courses"
}

func (c *Course) IsEnrolled(studentID string) bool {
	return slices.Contains(c.StudentsEnrolled, studentID)
}

// HasCapacity reports whether one more student fits. A nil MaxStudents is unbounded.
func (c *Course) HasCapacity() bool {
	if c.MaxStudents == nil {
		return true
	}
	return len(c.StudentsEnrolled) < *c.MaxStudents
}

func (c *Course) EnrollmentCount() int {
	return len(c.StudentsEnrolled)
}

// Clone returns a deep copy so mutations can be diffed against the stored row.
func (c *Course) Clone() *Course {
	out := *c
	out.StudentsEnrolled = slices.Clone(c.StudentsEnrolled)
	if c.Category != nil {
		v := *c.Category
		out.Category = &v
	}
	if c.Duration != nil {
		v := *c.Duration
		out.Duration = &v
	}
	if c.MaxStudents != nil {
		v := *c.MaxStudents
		out.MaxStudents = &v
	}
	if c.AdminFeedback != nil {
		v := *c.AdminFeedback
		out.AdminFeedback = &v
	}
	return &out
}

type CourseEnrollment struct {
	CourseID   string    `json:"course_id" gorm:"primaryKey;size:36"`
	StudentID  string    `json:"student_id" gorm:"primaryKey;size:255;index"`
	EnrolledAt time.Time `json:"enrolled_at" gorm:"not null"`
}

func (CourseEnrollment) TableName() string {
	return "course_enrollments"
}

type CourseAuditAction string

const (
	AuditActionApproved CourseAuditAction = "approved"
	AuditActionRejected CourseAuditAction = "rejected"
)

// CourseAuditEntry records one applied status transition.
type CourseAuditEntry struct {
	ID         uint              `json:"id" gorm:"primaryKey"`
	CourseID   string            `json:"course_id" gorm:"not null;index;size:36"`
	Action     CourseAuditAction `json:"action" gorm:"not null;size:20"`
	FromStatus CourseStatus      `json:"from_status" gorm:"size:20"`
	ToStatus   CourseStatus      `json:"to_status" gorm:"size:20"`
	ActorID    string            `json:"actor_id" gorm:"size:255"`
	Feedback   *string           `json:"feedback" gorm:"type:text"`
	Details    datatypes.JSON    `json:"details"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (CourseAuditEntry) TableName() string {
	return "course_audit_entries"
}
