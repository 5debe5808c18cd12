package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// StructSchema validates a section by decoding it into T and running
// go-playground/validator over the result.
//
// Typical pattern:
//   - Define a struct with `json` names and `validate` rules
//   - Register validation.NewStructSchema[MyQuery](nil) on the route
//
// Decoding is weakly typed, so "30" fills an int field and a single query
// value fills a slice. The validated struct is returned re-encoded as a map,
// keyed by json names; keys the struct does not declare are not returned
// (the middleware's merge keeps them on the request).
//
// If *T implements Defaulter, SetDefaults runs before decoding so absent
// keys come back with their default values.
type StructSchema[T any] struct {
	validate *validator.Validate
}

// Defaulter fills a struct with default values.
type Defaulter interface {
	SetDefaults()
}

// NewStructSchema returns a StructSchema using validate, or NewValidator()
// when validate is nil.
func NewStructSchema[T any](validate *validator.Validate) *StructSchema[T] {
	if validate == nil {
		validate = NewValidator()
	}
	return &StructSchema[T]{validate: validate}
}

// Parse decodes, validates and re-encodes input.
func (s *StructSchema[T]) Parse(ctx context.Context, input map[string]any) (map[string]any, error) {
	var out T
	if d, ok := any(&out).(Defaulter); ok {
		d.SetDefaults()
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}

	if err := decoder.Decode(input); err != nil {
		return nil, &Error{Issues: decodeIssues(err)}
	}

	if err := s.validate.StructCtx(ctx, &out); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return nil, &Error{Issues: fieldIssues(validationErrs)}
		}
		// InvalidValidationError and friends: T is not something the
		// validator can handle. Not the client's fault.
		return nil, err
	}

	// Going through encoding/json gives the same shapes as a decoded body
	// (json.Number, []any, nested maps) and honours omitempty.
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode validated struct: %w", err)
	}

	var result map[string]any
	if err := decodeJSONObject(data, &result); err != nil {
		return nil, fmt.Errorf("decode validated struct: %w", err)
	}

	return result, nil
}

// decodeIssues converts mapstructure decode errors into issues. Errors that
// name the failing field get a path; the rest are reported at the root.
func decodeIssues(err error) []Issue {
	var leaves []error

	var flatten func(e error)
	flatten = func(e error) {
		switch multi := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range multi.Unwrap() {
				flatten(inner)
			}
			return
		case interface{ WrappedErrors() []error }:
			for _, inner := range multi.WrappedErrors() {
				flatten(inner)
			}
			return
		}
		leaves = append(leaves, e)
	}
	flatten(err)

	issues := make([]Issue, 0, len(leaves))
	for _, leaf := range leaves {
		issue := Issue{
			Code:    "invalid_type",
			Path:    []any{},
			Message: leaf.Error(),
		}

		var named interface{ Name() string }
		if errors.As(leaf, &named) {
			issue.Path = namespacePath(named.Name())
		}

		issues = append(issues, issue)
	}

	return issues
}
