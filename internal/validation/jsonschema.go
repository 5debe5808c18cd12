package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JSONSchema validates a section against a compiled JSON Schema document.
//
// Request sections arrive loosely typed (path params and query values are
// always strings), so Parse coerces the input towards the types the schema
// declares before validating it:
//   - "integer" / "number": numeric strings become json.Number
//   - "boolean": "true", "false", "1", "0" ... become bool
//   - "array": a lone value becomes a one-element array
//   - missing properties that declare a "default" receive it
//
// Values that cannot be coerced are left untouched and reported by the
// validator.
type JSONSchema struct {
	name   string
	schema *jsonschema.Schema
}

// CompileJSONSchema compiles a JSON Schema document (Draft 2020-12 unless the
// document says otherwise). Formats such as "uuid" and "email" are asserted.
func CompileJSONSchema(name string, document []byte) (*JSONSchema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	// Defaults are annotations; they are only kept on the Schema when extracted.
	compiler.ExtractAnnotations = true

	url := name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(document)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource %s: %w", name, err)
	}

	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	return &JSONSchema{name: name, schema: schema}, nil
}

// MustCompileJSONSchema is like CompileJSONSchema but panics on error.
// Meant for schemas declared as package-level variables.
func MustCompileJSONSchema(name string, document string) *JSONSchema {
	s, err := CompileJSONSchema(name, []byte(document))
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the name the schema was compiled under.
func (s *JSONSchema) Name() string {
	return s.name
}

// Parse coerces input, validates it and returns the coerced object.
func (s *JSONSchema) Parse(_ context.Context, input map[string]any) (map[string]any, error) {
	coerced, _ := coerce(s.schema, input).(map[string]any)
	if coerced == nil {
		coerced = map[string]any{}
	}

	if err := s.schema.Validate(coerced); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			return nil, &Error{Issues: schemaIssues(validationErr, coerced)}
		}
		return nil, err
	}

	return coerced, nil
}

// coerce walks value alongside schema and returns a copy converted to the
// declared types. Maps and slices are copied, never modified in place.
func coerce(schema *jsonschema.Schema, value any) any {
	if schema == nil {
		return value
	}
	if schema.Ref != nil {
		value = coerce(schema.Ref, value)
	}
	for _, sub := range schema.AllOf {
		value = coerce(sub, value)
	}

	switch v := value.(type) {
	case map[string]any:
		if len(schema.Properties) == 0 && !hasType(schema, "object") {
			return v
		}
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = coerce(schema.Properties[k], item)
		}
		for k, prop := range schema.Properties {
			if _, ok := out[k]; !ok && prop != nil && prop.Default != nil {
				out[k] = cloneDefault(prop.Default)
			}
		}
		return out

	case []any:
		items := itemsSchema(schema)
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = coerce(items, item)
		}
		return out

	case string:
		return coerceString(schema, v)
	}

	return value
}

// cloneDefault copies a schema default so requests never share it. The
// compiler decodes documents with json.Number, the same representation a
// decoded body uses.
func cloneDefault(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, item := range vv {
			out[k] = cloneDefault(item)
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = cloneDefault(item)
		}
		return out
	}
	return v
}

func coerceString(schema *jsonschema.Schema, v string) any {
	if hasType(schema, "string") {
		return v
	}

	switch {
	case hasType(schema, "integer"), hasType(schema, "number"):
		// The literal is kept as is; "2.5" against "integer" is left to the
		// validator to reject.
		if n := strings.TrimSpace(v); isJSONNumber(n) {
			return json.Number(n)
		}
	case hasType(schema, "boolean"):
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	case hasType(schema, "null"):
		if v == "" {
			return nil
		}
	}

	if hasType(schema, "array") {
		return []any{coerce(itemsSchema(schema), v)}
	}

	return v
}

// isJSONNumber reports whether s is a JSON number literal.
func isJSONNumber(s string) bool {
	if s == "" || (s[0] != '-' && (s[0] < '0' || s[0] > '9')) {
		return false
	}
	return json.Valid([]byte(s))
}

func hasType(schema *jsonschema.Schema, t string) bool {
	return slices.Contains(schema.Types, t)
}

// itemsSchema returns the schema applied to every array element, if any.
func itemsSchema(schema *jsonschema.Schema) *jsonschema.Schema {
	if schema.Items2020 != nil {
		return schema.Items2020
	}
	if items, ok := schema.Items.(*jsonschema.Schema); ok {
		return items
	}
	return nil
}

// schemaIssues flattens a validation error tree into its leaf causes.
func schemaIssues(err *jsonschema.ValidationError, instance any) []Issue {
	var issues []Issue

	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			if keywordCode(e.KeywordLocation) == "required" {
				issues = append(issues, requiredIssues(e, instance)...)
				return
			}
			issues = append(issues, Issue{
				Code:    keywordCode(e.KeywordLocation),
				Path:    instancePath(e.InstanceLocation, instance),
				Message: e.Message,
			})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(err)

	return issues
}

// requiredIssues reports a "required" failure once per missing property,
// with the property name appended to the object's path. The library lists
// the names in one message ("missing properties: 'name', 'age'"); when it
// cannot be read back the failure stays a single issue at the object.
func requiredIssues(e *jsonschema.ValidationError, instance any) []Issue {
	base := instancePath(e.InstanceLocation, instance)

	names, ok := missingProperties(e.Message)
	if !ok {
		return []Issue{{Code: "required", Path: base, Message: e.Message}}
	}

	issues := make([]Issue, 0, len(names))
	for _, name := range names {
		issues = append(issues, Issue{
			Code:    "required",
			Path:    append(slices.Clone(base), name),
			Message: "is required",
		})
	}
	return issues
}

// missingProperties parses the quoted names of a "missing properties"
// message. Names are Go-quoted with ' as delimiter: \' stands for ' and
// double quotes are left bare.
func missingProperties(message string) ([]string, bool) {
	list, ok := strings.CutPrefix(message, "missing properties: ")
	if !ok {
		return nil, false
	}

	var names []string
	for {
		if list == "" || list[0] != '\'' {
			return nil, false
		}

		end := 1
		for end < len(list) && list[end] != '\'' {
			if list[end] == '\\' {
				end++
			}
			end++
		}
		if end >= len(list) {
			return nil, false
		}

		raw := strings.ReplaceAll(list[1:end], `\'`, `'`)
		raw = strings.ReplaceAll(raw, `"`, `\"`)
		name, err := strconv.Unquote(`"` + raw + `"`)
		if err != nil {
			return nil, false
		}
		names = append(names, name)

		list = list[end+1:]
		if list == "" {
			return names, true
		}
		if list, ok = strings.CutPrefix(list, ", "); !ok {
			return nil, false
		}
	}
}

// keywordCode returns the failing keyword: "/properties/age/type" -> "type".
func keywordCode(location string) string {
	location = strings.TrimSuffix(location, "/")
	if i := strings.LastIndex(location, "/"); i >= 0 {
		location = location[i+1:]
	}
	if location == "" {
		return "schema"
	}
	return location
}

// instancePath converts a JSON pointer into an issue path. Segments that
// index into an array (looked up in instance) become ints.
func instancePath(pointer string, instance any) []any {
	path := []any{}
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return path
	}

	current := instance
	for _, segment := range strings.Split(pointer, "/") {
		segment = strings.NewReplacer("~1", "/", "~0", "~").Replace(segment)

		switch node := current.(type) {
		case []any:
			if i, err := strconv.Atoi(segment); err == nil {
				path = append(path, i)
				if i >= 0 && i < len(node) {
					current = node[i]
				} else {
					current = nil
				}
				continue
			}
		case map[string]any:
			current = node[segment]
			path = append(path, segment)
			continue
		}

		current = nil
		path = append(path, segment)
	}

	return path
}
