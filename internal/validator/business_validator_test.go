package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestValidateCourseCreate(t *testing.T) {
	bv := NewBusinessValidator()

	tests := []struct {
		name      string
		req       CourseCreateRequest
		wantField string
	}{
		{
			name: "valid",
			req:  CourseCreateRequest{Title: "Go 101", Description: "Intro"},
		},
		{
			name:      "whitespace title",
			req:       CourseCreateRequest{Title: "   ", Description: "Intro"},
			wantField: "title",
		},
		{
			name:      "missing description",
			req:       CourseCreateRequest{Title: "Go 101"},
			wantField: "description",
		},
		{
			name:      "zero capacity",
			req:       CourseCreateRequest{Title: "Go 101", Description: "Intro", MaxStudents: intPtr(0)},
			wantField: "max_students",
		},
		{
			name: "unbounded capacity",
			req:  CourseCreateRequest{Title: "Go 101", Description: "Intro", MaxStudents: nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := bv.ValidateCourseCreate(&tt.req)
			if tt.wantField == "" {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.wantField, errs[0].Field)
		})
	}
}

func TestValidateCourseUpdateCapacityBelowRoster(t *testing.T) {
	bv := NewBusinessValidator()
	existing := &models.Course{StudentsEnrolled: []string{"s1", "s2", "s3"}}

	errs := bv.ValidateCourseUpdate(&CourseUpdateRequest{MaxStudents: intPtr(2)}, existing)
	require.Len(t, errs, 1)
	assert.Equal(t, "max_students", errs[0].Field)

	assert.Empty(t, bv.ValidateCourseUpdate(&CourseUpdateRequest{MaxStudents: intPtr(3)}, existing))
	assert.NotEmpty(t, bv.ValidateCourseUpdate(&CourseUpdateRequest{Title: strPtr(" ")}, existing))
}

func TestValidateRejection(t *testing.T) {
	bv := NewBusinessValidator()

	assert.Empty(t, bv.ValidateRejection(&CourseRejectRequest{Feedback: strPtr("needs a syllabus")}))
	assert.Empty(t, bv.ValidateRejection(&CourseRejectRequest{SkipFeedback: true}))
	assert.NotEmpty(t, bv.ValidateRejection(&CourseRejectRequest{Feedback: strPtr("  ")}))
	assert.NotEmpty(t, bv.ValidateRejection(&CourseRejectRequest{}))
}

func TestValidateRegistration(t *testing.T) {
	bv := NewBusinessValidator()

	ok := &UserRegisterRequest{ID: "u1", Email: "a@b.co", Name: "Al", Role: models.RoleStudent}
	assert.Empty(t, bv.ValidateRegistration(ok))

	shortName := *ok
	shortName.Name = " A "
	assert.NotEmpty(t, bv.ValidateRegistration(&shortName))

	badRole := *ok
	badRole.Role = "teacher"
	errs := bv.ValidateRegistration(&badRole)
	require.Len(t, errs, 1)
	assert.Equal(t, "role", errs[0].Field)
}

func TestValidationErrorsMatchSentinel(t *testing.T) {
	var err error = ValidationErrors{{Field: "title", Message: "is required"}}
	assert.True(t, errors.Is(err, ErrValidationFailed))
	assert.Contains(t, err.Error(), "title: is required")
}
