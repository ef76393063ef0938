// Package storage persists dispatch history.
//
// The API is intentionally tiny. Callers must tolerate a nil Store
// (storage disabled).
package storage
