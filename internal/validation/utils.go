package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Validatable is implemented by request payload types that know how to validate themselves.
//
// Typical pattern:
// - Define a request struct with validator tags (`validate:"required,email"`)
// - Implement Validate() error that runs validator.Struct(req)
// - Return validator.ValidationErrors (or CustomValidationErrors for custom cases)
type Validatable interface {
	Validate() error
}

// CustomValidationError represents a single validation issue for a specific field.
// This is used for validation errors that cannot be expressed via validator tags.
type CustomValidationError struct {
	Field   string
	Message string
}

// CustomValidationErrors is a slice of custom validation errors that satisfies error.
type CustomValidationErrors []CustomValidationError

func (c CustomValidationErrors) Error() string {
	return "Validation failed"
}

// BindAndValidate binds the request sections into payload and validates it.
//
// Flow:
// 1) Bind(c, payload) fills the struct from body, params and query (in that order).
// 2) payload.Validate() applies validation rules.
// 3) Returns *Error with one issue per failing field; the error handler
// answers 422 like ValidateRequest does.
//
// payload must be a pointer to a struct.
func BindAndValidate(c echo.Context, payload Validatable) error {
	if err := Bind(c, payload); err != nil {
		return err
	}

	if err := payload.Validate(); err != nil {
		return extractValidationError(err)
	}

	return nil
}

func extractValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return &Error{Issues: fieldIssues(validationErrs)}
	}

	var customErrs CustomValidationErrors
	if errors.As(err, &customErrs) {
		issues := make([]Issue, 0, len(customErrs))
		for _, ce := range customErrs {
			issues = append(issues, Issue{
				Code:    "custom",
				Path:    namespacePath(ce.Field),
				Message: ce.Message,
			})
		}
		return &Error{Issues: issues}
	}

	var validationErr *Error
	if errors.As(err, &validationErr) {
		return validationErr
	}

	// Not a validation outcome (e.g. InvalidValidationError).
	return err
}

// NewValidator returns a validator that reports fields by their json name and
// knows the "uuidList" tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonTagName)

	if err := v.RegisterValidation("uuidList", validateUUIDList); err != nil {
		panic(fmt.Sprintf("register uuidList validation: %v", err))
	}

	return v
}

func jsonTagName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return field.Name
	}
	return name
}

// validateUUIDList accepts a comma-separated list of UUIDs, e.g. "?ids=a,b".
func validateUUIDList(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return false
	}

	raw := field.String()
	if raw == "" {
		return true
	}

	for _, part := range strings.Split(raw, ",") {
		if uuid.Validate(strings.TrimSpace(part)) != nil {
			return false
		}
	}
	return true
}

// fieldIssues converts validator errors into issues.
func fieldIssues(validationErrs validator.ValidationErrors) []Issue {
	issues := make([]Issue, 0, len(validationErrs))

	for _, fe := range validationErrs {
		// Namespace is "ListUsersQuery.tags[0]"; drop the root struct name.
		namespace := fe.Namespace()
		if _, rest, ok := strings.Cut(namespace, "."); ok {
			namespace = rest
		}

		issues = append(issues, Issue{
			Code:    fe.Tag(),
			Path:    namespacePath(namespace),
			Message: fieldMessage(fe),
		})
	}

	return issues
}

// fieldMessage turns a validator.FieldError into a user-friendly message.
func fieldMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"

	case "min":
		// min tag means:
		// - for strings: minimum length
		// - for numbers: minimum value
		// - for slices: minimum number of items
		switch err.Kind() {
		case reflect.String:
			return fmt.Sprintf("must be at least %s characters", err.Param())
		case reflect.Slice, reflect.Array, reflect.Map:
			return fmt.Sprintf("must contain at least %s items", err.Param())
		}
		return fmt.Sprintf("must be at least %s", err.Param())

	case "max":
		switch err.Kind() {
		case reflect.String:
			return fmt.Sprintf("must not exceed %s characters", err.Param())
		case reflect.Slice, reflect.Array, reflect.Map:
			return fmt.Sprintf("must not contain more than %s items", err.Param())
		}
		return fmt.Sprintf("must not exceed %s", err.Param())

	case "oneof":
		return fmt.Sprintf("must be one of: %s", err.Param())

	case "email":
		return "must be a valid email address"

	case "e164":
		return "must be a valid phone number with country code"

	case "uuid", "uuid4":
		return "must be a valid UUID"

	case "uuidList":
		return "must be a comma-separated list of valid UUIDs"

	case "dive":
		return "some items are invalid"
	}

	// Tags not handled above keep their name and param for debugging.
	if err.Param() != "" {
		return fmt.Sprintf("failed %s:%s", err.Tag(), err.Param())
	}
	return fmt.Sprintf("failed %s", err.Tag())
}

// namespacePath splits "items[0].name" into ["items", 0, "name"]. Bracketed
// segments that are not integers (map keys) stay strings.
func namespacePath(namespace string) []any {
	path := []any{}
	if namespace == "" {
		return path
	}

	for _, segment := range strings.Split(namespace, ".") {
		name, rest, hasIndex := strings.Cut(segment, "[")
		if name != "" {
			path = append(path, name)
		}
		if !hasIndex {
			continue
		}

		for _, index := range strings.Split(strings.TrimSuffix(rest, "]"), "][") {
			if i, err := strconv.Atoi(index); err == nil {
				path = append(path, i)
			} else {
				path = append(path, index)
			}
		}
	}

	return path
}
