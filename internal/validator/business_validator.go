package validator

import (
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
)

// BusinessValidator handles business rule validation
type BusinessValidator struct {
	validate *validator.Validate
}

// NewBusinessValidator creates a new business validator
func NewBusinessValidator() *BusinessValidator {
	validate := validator.New()
	validate.RegisterTagNameFunc(jsonFieldName)

	bv := &BusinessValidator{validate: validate}
	bv.registerBusinessRules()

	return bv
}

// Validate validates struct tags for any request
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	err := bv.validate.Struct(s)
	if err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidateCourseCreate validates course creation business rules
func (bv *BusinessValidator) ValidateCourseCreate(req *CourseCreateRequest) ValidationErrors {
	var errors ValidationErrors
	errors = append(errors, bv.Validate(req)...)
	return errors
}

// ValidateCourseUpdate validates a content update against the stored course.
// A capacity below the current roster size would break the enrollment bound.
func (bv *BusinessValidator) ValidateCourseUpdate(req *CourseUpdateRequest, existing *models.Course) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)

	if req.MaxStudents != nil && req.ClearMaxStudents {
		errors = append(errors, ValidationError{
			Field:   "max_students",
			Message: "cannot set and clear max_students in the same request",
			Value:   *req.MaxStudents,
			Rule:    "business_logic",
		})
	}

	if existing != nil && req.MaxStudents != nil && *req.MaxStudents < existing.EnrollmentCount() {
		errors = append(errors, ValidationError{
			Field:   "max_students",
			Message: "cannot be lower than the current number of enrolled students",
			Value:   *req.MaxStudents,
			Rule:    "business_logic",
		})
	}

	return errors
}

// ValidateRejection requires feedback unless the admin explicitly skipped it.
func (bv *BusinessValidator) ValidateRejection(req *CourseRejectRequest) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)

	hasFeedback := req.Feedback != nil && strings.TrimSpace(*req.Feedback) != ""
	if !hasFeedback && !req.SkipFeedback {
		errors = append(errors, ValidationError{
			Field:   "feedback",
			Message: "is required unless skip_feedback is set",
			Rule:    "business_logic",
		})
	}

	return errors
}

func (bv *BusinessValidator) ValidateRegistration(req *UserRegisterRequest) ValidationErrors {
	var errors ValidationErrors
	errors = append(errors, bv.Validate(req)...)
	return errors
}

// registerBusinessRules registers custom business rule validators
func (bv *BusinessValidator) registerBusinessRules() {
	bv.validate.RegisterValidation("course_title", func(fl validator.FieldLevel) bool {
		title := strings.TrimSpace(fl.Field().String())
		return title != "" && utf8.RuneCountInString(title) <= 200
	})

	bv.validate.RegisterValidation("course_description", func(fl validator.FieldLevel) bool {
		description := strings.TrimSpace(fl.Field().String())
		return description != "" && utf8.RuneCountInString(description) <= 5000
	})

	bv.validate.RegisterValidation("person_name", func(fl validator.FieldLevel) bool {
		return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= 2
	})

	bv.validate.RegisterValidation("user_role", func(fl validator.FieldLevel) bool {
		return models.UserRole(fl.Field().String()).IsValid()
	})

	bv.validate.RegisterValidation("user_status", func(fl validator.FieldLevel) bool {
		return models.UserStatus(fl.Field().String()).IsValid()
	})

	bv.validate.RegisterValidation("course_status", func(fl validator.FieldLevel) bool {
		return models.CourseStatus(fl.Field().String()).IsValid()
	})
}
