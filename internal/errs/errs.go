// Package errs define custom error types and utilities.
//
// Its purpose is to create specific error structures
// (e.g. FieldErrors for malformed input or HTTPError for API responses)
// so clients receive consistent error bodies.
//
// - Return consistent error shapes to API clients (JSON).
// - Support field-level errors for undecodable input.
// - Support "action hints" (like retry) that frontends can interpret.
// - Provide errors that play nicely with Go's standard errors package.
package errs
