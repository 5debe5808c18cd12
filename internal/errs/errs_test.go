package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(http.StatusUnsupportedMediaType, "")

	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", err.Code)
	assert.Equal(t, "Unsupported Media Type", err.Message)
	assert.Equal(t, http.StatusUnsupportedMediaType, err.Status)
}

func TestNewBadRequestError(t *testing.T) {
	code := "INVALID_BODY"
	fields := []FieldError{{Field: "age", Error: "not a number"}}

	err := NewBadRequestError("Request body must be a JSON object", true, &code, fields, nil)

	assert.Equal(t, "INVALID_BODY", err.Code)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.True(t, err.Override)
	assert.Equal(t, fields, err.Errors)
	assert.Equal(t, "BAD_REQUEST", NewBadRequestError("x", false, nil, nil, nil).Code)
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("Route not found", false, nil)

	assert.Equal(t, "NOT_FOUND", err.Code)
	assert.Equal(t, http.StatusNotFound, err.Status)
}

func TestHTTPError_Is(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NewInternalServerError())

	assert.ErrorIs(t, wrapped, &HTTPError{})
	assert.False(t, errors.Is(errors.New("plain"), &HTTPError{}))
}

func TestHTTPError_WithMessage(t *testing.T) {
	base := NewBadRequestError("original", true, nil, []FieldError{{Field: "a", Error: "b"}}, nil)

	changed := base.WithMessage("changed")

	assert.Equal(t, "original", base.Message)
	assert.Equal(t, "changed", changed.Message)
	assert.Equal(t, base.Errors, changed.Errors)
	assert.Equal(t, base.Status, changed.Status)
}

func TestMakeUpperCaseWithUnderscores(t *testing.T) {
	assert.Equal(t, "BAD_REQUEST", MakeUpperCaseWithUnderscores("Bad Request"))
	assert.Equal(t, "REQUEST_ENTITY_TOO_LARGE", MakeUpperCaseWithUnderscores(http.StatusText(http.StatusRequestEntityTooLarge)))
}
