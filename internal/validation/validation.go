// Package validation contains the logic for validating
// request data.
//
// It exposes a single Echo middleware, ValidateRequest, which runs
// optional schemas against the body, path parameters and query string
// of a request (in that order), merges the validated values back onto
// the request and either continues the chain or answers with a 422 and
// the list of field issues.
//
// Schemas are anything implementing Schema. Two adapters ship with the
// package: JSONSchema (JSON Schema documents) and StructSchema (Go
// structs with `validate` tags).
package validation
