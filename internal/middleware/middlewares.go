package middleware

import (
	"github.com/deppfellow/reqvalid/internal/server"
)

// Middlewares groups all middleware components used by the HTTP server so
// routing code receives one value instead of many.
type Middlewares struct {
	// Global holds CORS, body limit, request logging, recovery, secure
	// headers and the global error handler.
	Global *GlobalMiddlewares

	// ContextEnhancer installs the request-scoped logger.
	ContextEnhancer *ContextEnhancer

	// Tracing provides New Relic middleware and transaction attributes.
	Tracing *TracingMiddleware

	// RateLimit throttles clients per IP.
	RateLimit *RateLimitMiddleware
}

// NewMiddlewares constructs all middleware components using the application container.
//
// When New Relic is not configured the tracing middleware degrades into a
// pass-through.
func NewMiddlewares(s *server.Server) *Middlewares {
	return &Middlewares{
		Global:          NewGlobalMiddlewares(s),
		ContextEnhancer: NewContextEnhancer(s),
		Tracing:         NewTracingMiddleware(s, s.LoggerService.GetApplication()),
		RateLimit:       NewRateLimitMiddleware(s),
	}
}
