package validation

import (
	"context"
	"fmt"
	"strings"
)

// Schema is the validation capability the middleware relies on.
//
// Parse receives the raw section (body, params or query) and returns the
// validated value, which may differ from the input: coerced types,
// defaults, stripped keys. It must return *Error when the input does not
// satisfy the schema. Any other error is treated as a fault of the schema
// itself and is forwarded to the Echo error handler.
type Schema interface {
	Parse(ctx context.Context, input map[string]any) (map[string]any, error)
}

// SchemaFunc adapts a plain function to the Schema interface.
type SchemaFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// Parse calls f(ctx, input).
func (f SchemaFunc) Parse(ctx context.Context, input map[string]any) (map[string]any, error) {
	return f(ctx, input)
}

// Validators is the per-route configuration of ValidateRequest.
// Any of the fields may be nil, in which case that section is left alone.
type Validators struct {
	Body   Schema
	Params Schema
	Query  Schema
}

// IsEmpty reports whether no section has a schema.
func (v Validators) IsEmpty() bool {
	return v.Body == nil && v.Params == nil && v.Query == nil
}

// Section names one of the validated parts of a request.
type Section string

const (
	SectionBody   Section = "body"
	SectionParams Section = "params"
	SectionQuery  Section = "query"
)

// Issue is a single field-level validation problem.
//
// Path is relative to the section: string elements are object keys,
// int elements are array indices. Example:
//
//	{ "code": "type", "path": ["items", 0, "qty"], "message": "expected integer, but got string" }
type Issue struct {
	Code    string `json:"code"`
	Path    []any  `json:"path"`
	Message string `json:"message"`
}

// Error is the structured failure a Schema returns when input does not
// conform. ValidateRequest turns it into a 422 response whose body is
// Issues, unchanged.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}

	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", FormatPath(issue.Path), issue.Message))
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

// FormatPath renders an issue path as "items[0].qty".
// An empty path renders as "(root)".
func FormatPath(path []any) string {
	if len(path) == 0 {
		return "(root)"
	}

	var b strings.Builder
	for i, elem := range path {
		switch v := elem.(type) {
		case int:
			fmt.Fprintf(&b, "[%d]", v)
		default:
			if i > 0 {
				b.WriteByte('.')
			}
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}

// SectionError wraps an unexpected error raised while validating a section.
//
// It keeps the original error reachable through errors.Is / errors.As.
type SectionError struct {
	Section Section
	Err     error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("validate %s: %v", e.Section, e.Err)
}

func (e *SectionError) Unwrap() error {
	return e.Err
}
