// Package schema loads the JSON Schema documents routes validate against.
//
// Documents are JSON or YAML files named after what they validate:
//
//	profile.body.yaml    -> schema "profile.body"
//	profile.params.json  -> schema "profile.params"
//
// A set of built-in documents is embedded in the binary; a schema directory
// given at start-up adds to them and overrides them by name.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/deppfellow/reqvalid/internal/validation"
	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Registry maps schema names to compiled schemas. It is filled at start-up
// and only read afterwards, so it is safe for concurrent use once loaded.
type Registry struct {
	schemas   map[string]*validation.JSONSchema
	documents map[string][]byte
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas:   make(map[string]*validation.JSONSchema),
		documents: make(map[string][]byte),
	}
}

// Load returns a registry holding the built-in schemas plus every document
// found in dir. An empty dir loads the built-in schemas only.
func Load(dir string) (*Registry, error) {
	r := NewRegistry()

	builtin, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		return nil, err
	}
	if err := r.LoadFS(builtin); err != nil {
		return nil, fmt.Errorf("built-in schemas: %w", err)
	}

	if dir != "" {
		if err := r.LoadFS(os.DirFS(dir)); err != nil {
			return nil, fmt.Errorf("schema dir %s: %w", dir, err)
		}
	}

	return r, nil
}

// LoadFS compiles every *.json, *.yaml and *.yml file of fsys, recursively.
// Names are slash-separated paths without the extension
// ("billing/invoice.body.yaml" -> "billing/invoice.body").
func (r *Registry) LoadFS(fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := path.Ext(p)
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}

		return r.Add(strings.TrimSuffix(p, ext), ext, data)
	})
}

// Add compiles a document and registers it under name, replacing any schema
// with the same name. ext selects the format: ".yaml"/".yml" or JSON.
func (r *Registry) Add(name, ext string, data []byte) error {
	if ext == ".yaml" || ext == ".yml" {
		converted, err := yamlToJSON(data)
		if err != nil {
			return fmt.Errorf("schema %s: %w", name, err)
		}
		data = converted
	} else if !json.Valid(data) {
		return fmt.Errorf("schema %s: invalid JSON", name)
	}

	compiled, err := validation.CompileJSONSchema(name, data)
	if err != nil {
		return err
	}

	r.schemas[name] = compiled
	r.documents[name] = data
	return nil
}

// Get returns the schema registered under name.
func (r *Registry) Get(name string) (*validation.JSONSchema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// Document returns the JSON source of the schema registered under name.
func (r *Registry) Document(name string) ([]byte, bool) {
	data, ok := r.documents[name]
	return data, ok
}

// Names returns the registered schema names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Validators builds the middleware configuration for a route from the
// schemas "<route>.body", "<route>.params" and "<route>.query". Sections
// without a schema are not validated.
func (r *Registry) Validators(route string) validation.Validators {
	var v validation.Validators

	if s, ok := r.schemas[route+".body"]; ok {
		v.Body = s
	}
	if s, ok := r.schemas[route+".params"]; ok {
		v.Params = s
	}
	if s, ok := r.schemas[route+".query"]; ok {
		v.Query = s
	}

	return v
}

// yamlToJSON re-encodes a YAML document as JSON.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	return json.Marshal(normalize(doc))
}

// normalize turns the map[any]any values yaml.v3 produces for non-string
// keys into map[string]any so the document can be encoded as JSON.
func normalize(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		for k, item := range vv {
			vv[k] = normalize(item)
		}
		return vv
	case map[any]any:
		out := make(map[string]any, len(vv))
		for k, item := range vv {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		for i, item := range vv {
			vv[i] = normalize(item)
		}
		return vv
	}
	return v
}
