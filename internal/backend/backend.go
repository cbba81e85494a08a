package backend

import (
	"context"
	"errors"
)

// Sentinel errors
var (
	// ErrNotFound is returned when a single-row lookup matches nothing.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable is returned when the backend cannot be reached,
	// including while the circuit breaker is open.
	ErrUnavailable = errors.New("backend unavailable")
)

// Filters is a set of equality predicates combined with AND, keyed by
// column name. Values are matched exactly.
type Filters map[string]string

// Querier is the logical operation surface the core issues against the
// backend: filtered select, insert, conditional update and a named
// remote-procedure call. The HTTP client implements it for production;
// tests use an in-memory fake.
type Querier interface {
	// Select decodes all rows matching the filters into dest, which
	// must be a pointer to a slice of the row type.
	Select(ctx context.Context, table string, filters Filters, dest any) error

	// Insert writes a single record.
	Insert(ctx context.Context, table string, record any) error

	// Update sets the named fields on every row matching the filters
	// and returns how many rows matched, so callers can detect that a
	// conditional predicate no longer held.
	Update(ctx context.Context, table string, filters Filters, fields map[string]any) (int, error)

	// Rpc invokes a named remote procedure with keyword arguments,
	// decoding any result into dest when dest is non-nil.
	Rpc(ctx context.Context, name string, args map[string]any, dest any) error
}
