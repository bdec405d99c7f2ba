package rqlite

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrNotPointer is returned when dest is not a non-nil pointer.
	ErrNotPointer = errors.New("dest must be a non-nil pointer")
	// ErrNotSlice is returned when a multi-row scan gets something other than a pointer to a slice.
	ErrNotSlice = errors.New("dest must be pointer to a slice")
)

// Client is the query surface the index is written against.
type Client interface {
	// Query scans every row into dest, a pointer to a slice of structs
	// with db tags or of map[string]any.
	Query(ctx context.Context, dest any, query string, args ...any) error
	// QueryOne scans the first row into dest and returns sql.ErrNoRows when empty.
	QueryOne(ctx context.Context, dest any, query string, args ...any) error
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)

	// FindBy and FindOneBy filter table by column equality.
	FindBy(ctx context.Context, dest any, table string, criteria map[string]any, opts ...FindOption) error
	FindOneBy(ctx context.Context, dest any, table string, criteria map[string]any, opts ...FindOption) error

	Select(table string) *Selection
	Dialect() Dialect
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// FindOption shapes a FindBy selection.
type FindOption func(s *Selection)

// WithOrderBy orders the selection.
func WithOrderBy(exprs ...string) FindOption {
	return func(s *Selection) { s.OrderBy(exprs...) }
}

// WithLimit caps the number of rows returned.
func WithLimit(n int) FindOption {
	return func(s *Selection) { s.Limit(n) }
}
