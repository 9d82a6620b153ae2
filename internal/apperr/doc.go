// Package apperr defines the typed error kinds the API layer maps to
// HTTP status codes: validation failures, oracle failures, conflicts,
// not-found lookups, and opaque internal errors.
package apperr
