package validation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderSchema = `{
	"type": "object",
	"properties": {
		"customer": {"type": "string", "minLength": 1},
		"express":  {"type": "boolean", "default": false},
		"tags":     {"type": "array", "items": {"type": "string"}},
		"items": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"sku": {"type": "string"},
					"qty": {"type": "integer", "minimum": 1}
				},
				"required": ["sku", "qty"]
			}
		}
	},
	"required": ["customer"]
}`

func TestJSONSchema_Coercion(t *testing.T) {
	schema := MustCompileJSONSchema("order", orderSchema)

	tests := []struct {
		name  string
		input map[string]any
		want  map[string]any
	}{
		{
			name:  "boolean string and default",
			input: map[string]any{"customer": "c1", "express": "true"},
			want:  map[string]any{"customer": "c1", "express": true},
		},
		{
			name:  "default filled when missing",
			input: map[string]any{"customer": "c1"},
			want:  map[string]any{"customer": "c1", "express": false},
		},
		{
			name:  "lone value becomes array",
			input: map[string]any{"customer": "c1", "tags": "vip"},
			want:  map[string]any{"customer": "c1", "express": false, "tags": []any{"vip"}},
		},
		{
			name: "nested integers",
			input: map[string]any{
				"customer": "c1",
				"items":    []any{map[string]any{"sku": "A", "qty": "2"}},
			},
			want: map[string]any{
				"customer": "c1",
				"express":  false,
				"items":    []any{map[string]any{"sku": "A", "qty": json.Number("2")}},
			},
		},
		{
			name:  "unknown keys are kept",
			input: map[string]any{"customer": "c1", "note": "leave at door"},
			want:  map[string]any{"customer": "c1", "express": false, "note": "leave at door"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := schema.Parse(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONSchema_DoesNotModifyInput(t *testing.T) {
	schema := MustCompileJSONSchema("order", orderSchema)
	input := map[string]any{"customer": "c1", "tags": "vip"}

	_, err := schema.Parse(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"customer": "c1", "tags": "vip"}, input)
}

func TestJSONSchema_Issues(t *testing.T) {
	schema := MustCompileJSONSchema("order", orderSchema)

	t.Run("nested path uses array index", func(t *testing.T) {
		_, err := schema.Parse(context.Background(), map[string]any{
			"customer": "c1",
			"items":    []any{map[string]any{"sku": "A", "qty": "many"}},
		})

		var validationErr *Error
		require.ErrorAs(t, err, &validationErr)
		require.Len(t, validationErr.Issues, 1)

		issue := validationErr.Issues[0]
		assert.Equal(t, []any{"items", 0, "qty"}, issue.Path)
		assert.Equal(t, "type", issue.Code)
		assert.NotEmpty(t, issue.Message)
	})

	t.Run("minimum", func(t *testing.T) {
		_, err := schema.Parse(context.Background(), map[string]any{
			"customer": "c1",
			"items":    []any{map[string]any{"sku": "A", "qty": "0"}},
		})

		var validationErr *Error
		require.ErrorAs(t, err, &validationErr)
		require.Len(t, validationErr.Issues, 1)
		assert.Equal(t, "minimum", validationErr.Issues[0].Code)
		assert.Equal(t, "items[0].qty", FormatPath(validationErr.Issues[0].Path))
	})

	t.Run("missing required property is reported at the property", func(t *testing.T) {
		_, err := schema.Parse(context.Background(), map[string]any{})

		var validationErr *Error
		require.ErrorAs(t, err, &validationErr)
		require.Len(t, validationErr.Issues, 1)
		assert.Equal(t, "required", validationErr.Issues[0].Code)
		assert.Equal(t, []any{"customer"}, validationErr.Issues[0].Path)
		assert.Equal(t, "is required", validationErr.Issues[0].Message)
	})

	t.Run("each missing nested property is its own issue", func(t *testing.T) {
		_, err := schema.Parse(context.Background(), map[string]any{
			"customer": "c1",
			"items":    []any{map[string]any{}},
		})

		var validationErr *Error
		require.ErrorAs(t, err, &validationErr)
		require.Len(t, validationErr.Issues, 2)
		assert.Equal(t, []any{"items", 0, "sku"}, validationErr.Issues[0].Path)
		assert.Equal(t, []any{"items", 0, "qty"}, validationErr.Issues[1].Path)
	})
}

func TestJSONSchema_UserProfile(t *testing.T) {
	body := MustCompileJSONSchema("profile.body", `{
		"type": "object",
		"properties": {
			"name":  {"type": "string", "minLength": 1},
			"age":   {"type": "integer", "minimum": 0},
			"email": {"type": "string", "format": "email"}
		},
		"required": ["name", "age"]
	}`)

	got, err := body.Parse(context.Background(), map[string]any{"name": "Alice", "age": "30"})
	require.NoError(t, err)
	assert.Equal(t, json.Number("30"), got["age"])

	_, err = body.Parse(context.Background(), map[string]any{"name": "Alice", "age": "abc"})
	var validationErr *Error
	require.ErrorAs(t, err, &validationErr)
	require.NotEmpty(t, validationErr.Issues)
	assert.Contains(t, validationErr.Issues[0].Path, "age")

	_, err = body.Parse(context.Background(), map[string]any{"name": "Alice", "age": 3, "email": "nope"})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "format", validationErr.Issues[0].Code)
	assert.Equal(t, []any{"email"}, validationErr.Issues[0].Path)
}

func TestCompileJSONSchema_InvalidDocument(t *testing.T) {
	_, err := CompileJSONSchema("broken", []byte(`{"type": 12}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	_, err = CompileJSONSchema("not-json", []byte(`{`))
	require.Error(t, err)
}

func TestMustCompileJSONSchema_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustCompileJSONSchema("broken", `{"type": "nope"}`)
	})
}

func TestKeywordCode(t *testing.T) {
	assert.Equal(t, "type", keywordCode("/properties/age/type"))
	assert.Equal(t, "required", keywordCode("/required"))
	assert.Equal(t, "schema", keywordCode(""))
}

func TestMissingProperties(t *testing.T) {
	tests := []struct {
		message string
		want    []string
		ok      bool
	}{
		{message: "missing properties: 'name'", want: []string{"name"}, ok: true},
		{message: "missing properties: 'name', 'age'", want: []string{"name", "age"}, ok: true},
		{message: `missing properties: 'it\'s', 'say "hi"', 'a, b'`, want: []string{"it's", `say "hi"`, "a, b"}, ok: true},
		{message: "missing properties: 'unterminated", ok: false},
		{message: "value must be >= 1", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got, ok := missingProperties(tt.message)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONSchema_KeepsLargeIntegers(t *testing.T) {
	schema := MustCompileJSONSchema("event.body", `{
		"type": "object",
		"properties": {
			"id":  {"type": "integer"},
			"ref": {"type": "integer"}
		}
	}`)

	got, err := schema.Parse(context.Background(), map[string]any{
		"id":  json.Number("9007199254740993"),
		"ref": "9007199254740995",
	})

	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), got["id"])
	assert.Equal(t, json.Number("9007199254740995"), got["ref"])
}

func TestIsJSONNumber(t *testing.T) {
	for _, s := range []string{"0", "-1", "2.5", "1e3", "9007199254740993"} {
		assert.True(t, isJSONNumber(s), s)
	}
	for _, s := range []string{"", "abc", "01", "+1", "NaN", "Inf", "0x10", "1_000", `"1"`, "true"} {
		assert.False(t, isJSONNumber(s), s)
	}
}

func TestInstancePath(t *testing.T) {
	instance := map[string]any{
		"a/b":   map[string]any{"x": 1},
		"items": []any{map[string]any{}, map[string]any{"2": "object key"}},
	}

	assert.Equal(t, []any{}, instancePath("", instance))
	assert.Equal(t, []any{"a/b", "x"}, instancePath("/a~1b/x", instance))
	assert.Equal(t, []any{"items", 1, "2"}, instancePath("/items/1/2", instance))
}
