// Package middleware stores global and route-specific middleware.
//
// These intercept requests to handle cross-cutting concerns
// such as request IDs, request logging, tracing, CORS,
// body limits, rate limiting, and panic recovery.
//
// Request validation itself lives in the validation package.
package middleware
