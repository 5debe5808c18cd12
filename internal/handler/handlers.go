// Package handler is the first layer. The first entry point
// for business logic after the router.
//
// Handlers receive requests whose sections were already validated by the
// route's validation middleware, bind them into typed requests and write
// the responses.
package handler

import (
	"github.com/deppfellow/reqvalid/internal/server"
)

// Handlers is a container that groups all HTTP handlers so router setup
// receives one value.
type Handlers struct {
	Health  *HealthHandler
	Schemas *SchemaHandler
	Users   *UserHandler
}

// NewHandlers constructs the handler container.
func NewHandlers(s *server.Server) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(s),
		Schemas: NewSchemaHandler(s),
		Users:   NewUserHandler(s),
	}
}
