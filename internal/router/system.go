package router

import (
	"net/http"

	"github.com/deppfellow/reqvalid/internal/handler"
	"github.com/labstack/echo/v4"
)

// registerSystemRoutes registers "system" endpoints that are not part of business logic.
func registerSystemRoutes(r *echo.Echo, h *handler.Handlers) {
	// Health status endpoint (used by Kubernetes/monitors).
	r.GET("/status", h.Health.CheckHealth)

	// Published request schemas.
	r.GET("/schemas", handler.Handle(h.Schemas.Handler, h.Schemas.ListSchemas, http.StatusOK, &handler.ListSchemasRequest{}))
	r.GET("/schemas/:name", handler.HandleFile(
		h.Schemas.Handler,
		h.Schemas.GetSchema,
		http.StatusOK,
		&handler.GetSchemaRequest{},
		handler.SchemaFilename,
		"application/schema+json",
	))
}
