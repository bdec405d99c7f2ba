// Package rqlite is a small ORM over database/sql used by the local index.
// It was built for rqlite and also runs on embedded SQLite and Postgres;
// statements are written with ? placeholders and rebound per dialect.
package rqlite

import (
	"context"
	"database/sql"
	"sort"
)

// NewClient wires the ORM client to a *sql.DB.
func NewClient(db *sql.DB, dialect Dialect) Client {
	return &client{db: db, dialect: dialect}
}

// client implements Client over *sql.DB.
type client struct {
	db      *sql.DB
	dialect Dialect
}

func (c *client) Dialect() Dialect { return c.dialect }

func (c *client) Query(ctx context.Context, dest any, query string, args ...any) error {
	rows, err := c.db.QueryContext(ctx, c.dialect.Rebind(query), args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	return scanIntoDest(rows, dest)
}

func (c *client) QueryOne(ctx context.Context, dest any, query string, args ...any) error {
	rows, err := c.db.QueryContext(ctx, c.dialect.Rebind(query), args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	return firstRow(rows, dest)
}

func (c *client) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, c.dialect.Rebind(query), args...)
}

func (c *client) FindBy(ctx context.Context, dest any, table string, criteria map[string]any, opts ...FindOption) error {
	return c.find(table, criteria, opts).All(ctx, dest)
}

func (c *client) FindOneBy(ctx context.Context, dest any, table string, criteria map[string]any, opts ...FindOption) error {
	return c.find(table, criteria, opts).First(ctx, dest)
}

func (c *client) Select(table string) *Selection {
	return &Selection{db: c.db, dialect: c.dialect, table: table}
}

// find builds equality filters in column order so the generated SQL is stable.
func (c *client) find(table string, criteria map[string]any, opts []FindOption) *Selection {
	s := c.Select(table)
	cols := make([]string, 0, len(criteria))
	for k := range criteria {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	for _, k := range cols {
		s.Where(k+" = ?", criteria[k])
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
