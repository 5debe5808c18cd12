package handler

import (
	"github.com/deppfellow/reqvalid/internal/errs"
	"github.com/deppfellow/reqvalid/internal/server"
	"github.com/deppfellow/reqvalid/internal/validation"
	"github.com/labstack/echo/v4"
)

// SchemaHandler publishes the loaded JSON Schemas so API clients can
// validate requests before sending them.
type SchemaHandler struct {
	Handler
}

func NewSchemaHandler(s *server.Server) *SchemaHandler {
	return &SchemaHandler{
		Handler: NewHandler(s),
	}
}

// ListSchemasRequest has no input.
type ListSchemasRequest struct{}

func (r *ListSchemasRequest) Validate() error {
	return nil
}

// SchemaList is the body of GET /schemas.
type SchemaList struct {
	Schemas []string `json:"schemas"`
}

// ListSchemas returns the names of every loaded schema.
func (h *SchemaHandler) ListSchemas(c echo.Context, _ *ListSchemasRequest) (SchemaList, error) {
	return SchemaList{Schemas: h.server.Schemas.Names()}, nil
}

// GetSchemaRequest is bound from the :name path parameter.
type GetSchemaRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func (r *GetSchemaRequest) Validate() error {
	return requestValidator.Struct(r)
}

// GetSchema returns the JSON source of one schema.
func (h *SchemaHandler) GetSchema(c echo.Context, req *GetSchemaRequest) ([]byte, error) {
	data, ok := h.server.Schemas.Document(req.Name)
	if !ok {
		return nil, errs.NewNotFoundError("Schema not found", false, nil)
	}
	return data, nil
}

// SchemaFilename names the download after the requested schema.
func SchemaFilename(c echo.Context) string {
	if name, ok := validation.Params(c)["name"].(string); ok && name != "" {
		return name + ".json"
	}
	return "schema.json"
}
