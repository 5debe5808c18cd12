package validation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/deppfellow/reqvalid/internal/errs"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}

	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// nextRecorder is a terminal handler that remembers whether it ran.
type nextRecorder struct {
	called int
}

func (n *nextRecorder) handler(c echo.Context) error {
	n.called++
	return c.NoContent(http.StatusNoContent)
}

func passthrough(calls *[]Section, section Section) Schema {
	return SchemaFunc(func(_ context.Context, input map[string]any) (map[string]any, error) {
		*calls = append(*calls, section)
		return input, nil
	})
}

func failing(issues ...Issue) Schema {
	return SchemaFunc(func(context.Context, map[string]any) (map[string]any, error) {
		return nil, &Error{Issues: issues}
	})
}

func decodeIssues422(t *testing.T, rec *httptest.ResponseRecorder) []Issue {
	t.Helper()

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var issues []Issue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issues))
	return issues
}

func TestValidateRequest_NoValidatorsIsPassThrough(t *testing.T) {
	c, rec := newTestContext(http.MethodPost, "/users?x=1", `{"a":1}`)
	next := &nextRecorder{}

	err := ValidateRequest(Validators{})(next.handler)(c)

	require.NoError(t, err)
	assert.Equal(t, 1, next.called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, c.Get(SectionsKey), "pass-through must not read the request")
}

func TestValidateRequest_RunsSectionsInOrder(t *testing.T) {
	c, _ := newTestContext(http.MethodPost, "/users/7?x=1", `{"a":1}`)
	c.SetParamNames("id")
	c.SetParamValues("7")

	var calls []Section
	next := &nextRecorder{}

	mw := ValidateRequest(Validators{
		Query:  passthrough(&calls, SectionQuery),
		Params: passthrough(&calls, SectionParams),
		Body:   passthrough(&calls, SectionBody),
	})

	require.NoError(t, mw(next.handler)(c))
	assert.Equal(t, []Section{SectionBody, SectionParams, SectionQuery}, calls)
	assert.Equal(t, 1, next.called)
}

func TestValidateRequest_MergesValidatedValues(t *testing.T) {
	body := MustCompileJSONSchema("user.body", `{
		"type": "object",
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"age":  {"type": "integer", "minimum": 0}
		},
		"required": ["name", "age"]
	}`)

	c, _ := newTestContext(http.MethodPost, "/users", `{"name":"Alice","age":"30","nickname":"al"}`)

	var seen map[string]any
	var bound struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	next := func(c echo.Context) error {
		seen = Body(c)
		return c.Bind(&bound)
	}

	require.NoError(t, ValidateRequest(Validators{Body: body})(next)(c))

	assert.Equal(t, map[string]any{
		"name":     "Alice",
		"age":      json.Number("30"),
		"nickname": "al",
	}, seen)

	// The request body itself carries the coerced value.
	assert.Equal(t, "Alice", bound.Name)
	assert.Equal(t, 30, bound.Age)
}

func TestValidateRequest_MergeKeepsKeysMissingFromResult(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/users?page=2&debug=1", "")

	stripped := SchemaFunc(func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"page": float64(2), "limit": float64(20)}, nil
	})

	var seen map[string]any
	next := func(c echo.Context) error {
		seen = Query(c)
		return nil
	}

	require.NoError(t, ValidateRequest(Validators{Query: stripped})(next)(c))

	assert.Equal(t, map[string]any{
		"page":  float64(2),
		"limit": float64(20),
		"debug": "1",
	}, seen)
	assert.Equal(t, "20", c.QueryParam("limit"))
	assert.Equal(t, "1", c.QueryParam("debug"))
}

func TestValidateRequest_ShortCircuitsOnFirstFailure(t *testing.T) {
	c, rec := newTestContext(http.MethodPost, "/users?x=1", `{"age":"abc"}`)

	var calls []Section
	next := &nextRecorder{}

	mw := ValidateRequest(Validators{
		Body:   failing(Issue{Code: "invalid_type", Path: []any{"age"}, Message: "expected number"}),
		Params: passthrough(&calls, SectionParams),
		Query:  passthrough(&calls, SectionQuery),
	})

	require.NoError(t, mw(next.handler)(c))

	assert.Empty(t, calls, "later sections must not be validated")
	assert.Zero(t, next.called)

	issues := decodeIssues422(t, rec)
	require.Len(t, issues, 1)
	assert.Equal(t, "invalid_type", issues[0].Code)
	assert.Equal(t, []any{"age"}, issues[0].Path)
	assert.Equal(t, "expected number", issues[0].Message)
}

func TestValidateRequest_QueryFailureAfterBodyPassed(t *testing.T) {
	c, rec := newTestContext(http.MethodPost, "/users?limit=x", `{"a":1}`)

	var calls []Section
	next := &nextRecorder{}

	mw := ValidateRequest(Validators{
		Body:  passthrough(&calls, SectionBody),
		Query: failing(Issue{Code: "type", Path: []any{"limit"}, Message: "bad"}),
	})

	require.NoError(t, mw(next.handler)(c))

	assert.Equal(t, []Section{SectionBody}, calls)
	assert.Zero(t, next.called)
	assert.Len(t, decodeIssues422(t, rec), 1)
}

func TestValidateRequest_EmptyIssuesStillRespondsWithArray(t *testing.T) {
	c, rec := newTestContext(http.MethodPost, "/", `{}`)

	require.NoError(t, ValidateRequest(Validators{Body: failing()})((&nextRecorder{}).handler)(c))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestValidateRequest_ForwardsUnexpectedErrors(t *testing.T) {
	boom := errors.New("schema store unavailable")

	c, rec := newTestContext(http.MethodGet, "/users?x=1", "")
	next := &nextRecorder{}

	broken := SchemaFunc(func(context.Context, map[string]any) (map[string]any, error) {
		return nil, boom
	})

	err := ValidateRequest(Validators{Query: broken})(next.handler)(c)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var sectionErr *SectionError
	require.ErrorAs(t, err, &sectionErr)
	assert.Equal(t, SectionQuery, sectionErr.Section)

	assert.Zero(t, next.called)
	assert.False(t, c.Response().Committed, "no response may be written for unexpected errors")
	assert.Empty(t, rec.Body.String())
}

func TestValidateRequest_RecoversSchemaPanics(t *testing.T) {
	c, _ := newTestContext(http.MethodPost, "/", `{"a":1}`)
	next := &nextRecorder{}

	panicky := SchemaFunc(func(context.Context, map[string]any) (map[string]any, error) {
		panic("nil schema")
	})

	err := ValidateRequest(Validators{Body: panicky})(next.handler)(c)

	var sectionErr *SectionError
	require.ErrorAs(t, err, &sectionErr)
	assert.Equal(t, SectionBody, sectionErr.Section)
	assert.Contains(t, err.Error(), "nil schema")
	assert.Zero(t, next.called)
	assert.False(t, c.Response().Committed)
}

func TestValidateRequest_ValidationErrorWrappedIsStillIssues(t *testing.T) {
	c, rec := newTestContext(http.MethodPost, "/", `{}`)

	wrapped := SchemaFunc(func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.Join(errors.New("context"), &Error{Issues: []Issue{{Code: "required", Path: []any{"name"}, Message: "is required"}}})
	})

	require.NoError(t, ValidateRequest(Validators{Body: wrapped})((&nextRecorder{}).handler)(c))

	issues := decodeIssues422(t, rec)
	require.Len(t, issues, 1)
	assert.Equal(t, []any{"name"}, issues[0].Path)
}

func TestValidateRequest_MalformedBodyIsBadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"name":`},
		{name: "array body", body: `[1,2,3]`},
		{name: "string body", body: `"hello"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContext(http.MethodPost, "/", tt.body)
			var calls []Section
			next := &nextRecorder{}

			err := ValidateRequest(Validators{Body: passthrough(&calls, SectionBody)})(next.handler)(c)

			var httpErr *errs.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, http.StatusBadRequest, httpErr.Status)
			assert.Empty(t, calls)
			assert.Zero(t, next.called)
		})
	}
}

func TestValidateRequest_UnsupportedContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("<a/>"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationXML)
	c := echo.New().NewContext(req, httptest.NewRecorder())

	var calls []Section
	err := ValidateRequest(Validators{Body: passthrough(&calls, SectionBody)})((&nextRecorder{}).handler)(c)

	assert.ErrorIs(t, err, echo.ErrUnsupportedMediaType)
	assert.Empty(t, calls)
}

func TestValidateRequest_EmptyBodyIsEmptyObject(t *testing.T) {
	c, _ := newTestContext(http.MethodPost, "/", "")

	var got map[string]any
	capture := SchemaFunc(func(_ context.Context, input map[string]any) (map[string]any, error) {
		got = input
		return input, nil
	})

	require.NoError(t, ValidateRequest(Validators{Body: capture})((&nextRecorder{}).handler)(c))
	assert.Equal(t, map[string]any{}, got)
}

func TestValidateRequest_FormBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("name=Alice&tag=a&tag=b"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	c := e.NewContext(req, httptest.NewRecorder())

	var got map[string]any
	capture := SchemaFunc(func(_ context.Context, input map[string]any) (map[string]any, error) {
		got = maps.Clone(input)
		return map[string]any{"name": "ALICE"}, nil
	})

	next := func(c echo.Context) error {
		assert.Equal(t, "ALICE", c.FormValue("name"))
		assert.Equal(t, []string{"a", "b"}, c.Request().Form["tag"])
		return nil
	}

	require.NoError(t, ValidateRequest(Validators{Body: capture})(next)(c))
	assert.Equal(t, map[string]any{"name": "Alice", "tag": []any{"a", "b"}}, got)
}

func TestValidateRequest_WritesParamsBack(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/users/ABC", "")
	c.SetParamNames("id")
	c.SetParamValues("ABC")

	lower := SchemaFunc(func(_ context.Context, input map[string]any) (map[string]any, error) {
		return map[string]any{"id": strings.ToLower(input["id"].(string))}, nil
	})

	var param string
	next := func(c echo.Context) error {
		param = c.Param("id")
		return nil
	}

	require.NoError(t, ValidateRequest(Validators{Params: lower})(next)(c))
	assert.Equal(t, "abc", param)
	assert.Equal(t, map[string]any{"id": "abc"}, Params(c))
}

func TestValidateRequest_IdempotentOnValidInput(t *testing.T) {
	query := MustCompileJSONSchema("list.query", `{
		"type": "object",
		"properties": {
			"page":   {"type": "integer", "minimum": 1, "default": 1},
			"notify": {"type": "boolean", "default": false}
		}
	}`)
	mw := ValidateRequest(Validators{Query: query})

	run := func(target string) map[string]any {
		c, _ := newTestContext(http.MethodGet, target, "")
		var seen map[string]any
		require.NoError(t, mw(func(c echo.Context) error {
			seen = Query(c)
			return nil
		})(c))
		return seen
	}

	first := run("/users?page=3")
	second := run("/users?page=3")

	assert.Equal(t, first, second)
	assert.Equal(t, map[string]any{"page": json.Number("3"), "notify": false}, first)
}

func TestValidateRequest_BodyRoundTripKeepsNumbers(t *testing.T) {
	const body = `{"id":9007199254740993,"name":"x","price":0.1}`

	var calls []Section
	c, _ := newTestContext(http.MethodPost, "/events", body)

	var seen map[string]any
	var bound struct {
		ID    int64   `json:"id"`
		Name  string  `json:"name"`
		Price float64 `json:"price"`
	}
	require.NoError(t, ValidateRequest(Validators{Body: passthrough(&calls, SectionBody)})(func(c echo.Context) error {
		seen = Body(c)
		return c.Bind(&bound)
	})(c))

	assert.Equal(t, json.Number("9007199254740993"), seen["id"])
	assert.Equal(t, int64(9007199254740993), bound.ID)
	assert.Equal(t, "x", bound.Name)
	assert.Equal(t, 0.1, bound.Price)
}

func TestValidateRequest_BodyIdempotentOnValidInput(t *testing.T) {
	const body = `{"id":9007199254740993,"name":"Alice","age":30}`

	schema := MustCompileJSONSchema("user.body", `{
		"type": "object",
		"properties": {
			"id":   {"type": "integer"},
			"name": {"type": "string"},
			"age":  {"type": "integer", "minimum": 0}
		},
		"required": ["id", "name"]
	}`)

	c, _ := newTestContext(http.MethodPost, "/users", body)

	var raw []byte
	require.NoError(t, ValidateRequest(Validators{Body: schema})(func(c echo.Context) error {
		var err error
		raw, err = io.ReadAll(c.Request().Body)
		return err
	})(c))

	assert.JSONEq(t, body, string(raw))
}

func TestReadBody_TrailingData(t *testing.T) {
	c, _ := newTestContext(http.MethodPost, "/", `{"a":1} {"b":2}`)

	_, err := sectionsFor(c).load(c, SectionBody)

	var httpErr *errs.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
}

func TestValidateRequest_ReturnsNextError(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/?a=1", "")
	want := echo.NewHTTPError(http.StatusTeapot)

	var calls []Section
	err := ValidateRequest(Validators{Query: passthrough(&calls, SectionQuery)})(func(echo.Context) error {
		return want
	})(c)

	assert.Same(t, want, err)
}
