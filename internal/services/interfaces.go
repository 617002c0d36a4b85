package services

import (
	"context"
	"iter"
	"time"

	"github.com/SAP-F-2025/learning-platform-service/internal/events"
	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type CreateCourseRequest = validator.CourseCreateRequest
type UpdateCourseRequest = validator.CourseUpdateRequest
type RejectCourseRequest = validator.CourseRejectRequest
type RegisterUserRequest = validator.UserRegisterRequest

type CourseResponse struct {
	*models.Course
	LecturerName  string `json:"lecturer_name"`
	EnrolledCount int    `json:"enrolled_count"`
	IsEnrolled    bool   `json:"is_enrolled"`
	CanEdit       bool   `json:"can_edit"`
	CanDelete     bool   `json:"can_delete"`
	CanEnroll     bool   `json:"can_enroll"`
	CanReview     bool   `json:"can_review"`
}

type CourseListResponse struct {
	Courses []*CourseResponse `json:"courses"`
	Total   int64             `json:"total"`
	Page    int               `json:"page"`
	Size    int               `json:"size"`
}

// CourseListFilters narrows a listing; visibility for the actor is always applied on top
type CourseListFilters struct {
	Status            *models.CourseStatus `json:"status"`
	LecturerID        *string              `json:"lecturer_id"`
	EnrolledStudentID *string              `json:"enrolled_student_id"`
	Query             string               `json:"query"`
}

type EnrollmentResult struct {
	CourseID        string    `json:"course_id"`
	StudentID       string    `json:"student_id"`
	Enrolled        bool      `json:"enrolled"`
	AlreadyEnrolled bool      `json:"already_enrolled,omitempty"`
	Changed         bool      `json:"changed"`
	EnrolledCount   int       `json:"enrolled_count"`
	MaxStudents     *int      `json:"max_students"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EnrolledStudent is one roster row resolved against the directory
type EnrolledStudent struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Email  string            `json:"email,omitempty"`
	Status models.UserStatus `json:"status,omitempty"`
	Known  bool              `json:"known"`
}

type RosterExport struct {
	FileName    string
	ContentType string
	Data        []byte
}

type UserListFilters struct {
	Role   *models.UserRole   `json:"role"`
	Status *models.UserStatus `json:"status"`
	Query  string             `json:"query"`
	Page   int                `json:"page"`
	Size   int                `json:"size"`
}

type UserListResponse struct {
	Users []*models.User `json:"users"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
}

// DashboardStats carries the projection for the actor's role; the other fields stay nil
type DashboardStats struct {
	Role     models.UserRole       `json:"role"`
	Admin    *models.AdminStats    `json:"admin,omitempty"`
	Lecturer *models.LecturerStats `json:"lecturer,omitempty"`
	Student  *models.StudentStats  `json:"student,omitempty"`
}

// WatchQuery selects which course changes a subscription receives
type WatchQuery struct {
	CourseID   string               `form:"course_id" json:"course_id"`
	Status     *models.CourseStatus `form:"-" json:"status"`
	LecturerID string               `form:"lecturer_id" json:"lecturer_id"`
	Query      string               `form:"q" json:"q"`
}

// ===== SERVICE INTERFACES =====

type CourseService interface {
	Create(ctx context.Context, actor models.Actor, req *CreateCourseRequest) (*CourseResponse, error)
	GetByID(ctx context.Context, actor models.Actor, id string) (*CourseResponse, error)

	// List is lazy and restartable: every range re-queries the store page by page.
	List(ctx context.Context, actor models.Actor, filters CourseListFilters) iter.Seq2[*CourseResponse, error]
	ListPage(ctx context.Context, actor models.Actor, filters CourseListFilters, page, size int) (*CourseListResponse, error)

	UpdateContent(ctx context.Context, actor models.Actor, id string, req *UpdateCourseRequest) (*CourseResponse, error)

	// Delete succeeds for unknown ids.
	Delete(ctx context.Context, actor models.Actor, id string) error

	History(ctx context.Context, actor models.Actor, id string) ([]*models.CourseAuditEntry, error)
}

type ApprovalService interface {
	Approve(ctx context.Context, actor models.Actor, courseID string) (*CourseResponse, error)
	Reject(ctx context.Context, actor models.Actor, courseID string, req *RejectCourseRequest) (*CourseResponse, error)
}

type EnrollmentService interface {
	// Enroll reports a duplicate enrollment as success with AlreadyEnrolled set.
	Enroll(ctx context.Context, actor models.Actor, courseID, studentID string) (*EnrollmentResult, error)
	Unenroll(ctx context.Context, actor models.Actor, courseID, studentID string) (*EnrollmentResult, error)
	ListEnrolled(ctx context.Context, actor models.Actor, courseID string) ([]EnrolledStudent, error)
	ExportRoster(ctx context.Context, actor models.Actor, courseID string) (*RosterExport, error)

	// PurgeStudent removes the student from every course holding them, one atomic
	// update per course. Per-course failures are collected in the report.
	PurgeStudent(ctx context.Context, actor models.Actor, studentID string) (*CascadeReport, error)
}

type UserService interface {
	Register(ctx context.Context, req *RegisterUserRequest) (*models.User, error)

	// EnsureUser returns the directory record for an authenticated identity,
	// registering it on first sight.
	EnsureUser(ctx context.Context, identity *models.User) (*models.User, error)

	GetByID(ctx context.Context, actor models.Actor, id string) (*models.User, error)
	List(ctx context.Context, actor models.Actor, filters UserListFilters) (*UserListResponse, error)
	ListByRole(ctx context.Context, actor models.Actor, role models.UserRole) ([]*models.User, error)
	SetStatus(ctx context.Context, actor models.Actor, id string, status models.UserStatus) (*models.User, error)
	SetRole(ctx context.Context, actor models.Actor, id string, role models.UserRole) (*models.User, error)

	// Delete removes the account and fans out to dependent courses. A partial
	// cascade returns the report together with a CascadeError.
	Delete(ctx context.Context, actor models.Actor, id string) (*CascadeReport, error)
}

type DashboardService interface {
	GetStats(ctx context.Context, actor models.Actor) (*DashboardStats, error)
}

type SubscriptionService interface {
	// Watch delivers matching course changes until ctx is done, then closes the channel.
	Watch(ctx context.Context, actor models.Actor, query WatchQuery) (<-chan events.CourseEvent, error)
}

type NotificationService interface {
	// Start consumes review outcomes until ctx is done.
	Start(ctx context.Context)
	NotifyReviewOutcome(ctx context.Context, event events.CourseEvent) error
}

// ServiceManager manages all services and their dependencies
type ServiceManager interface {
	Course() CourseService
	Approval() ApprovalService
	Enrollment() EnrollmentService
	User() UserService
	Dashboard() DashboardService
	Subscription() SubscriptionService
	Notification() NotificationService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
