package rqlite

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// Selection is a single-table SELECT * with AND-ed filters.
type Selection struct {
	db      queryer
	dialect Dialect
	table   string
	filters []string
	args    []any
	order   []string
	limit   int
}

// Where adds a filter. Filters are joined with AND.
func (s *Selection) Where(expr string, args ...any) *Selection {
	s.filters = append(s.filters, "("+expr+")")
	s.args = append(s.args, args...)
	return s
}

// OrderBy appends ORDER BY expressions.
func (s *Selection) OrderBy(exprs ...string) *Selection {
	s.order = append(s.order, exprs...)
	return s
}

// Limit sets LIMIT; zero means no limit.
func (s *Selection) Limit(n int) *Selection {
	s.limit = n
	return s
}

// SQL returns the statement, rebound for the dialect, and its args.
func (s *Selection) SQL() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(s.table)
	if len(s.filters) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(s.filters, " AND "))
	}
	if len(s.order) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(s.order, ", "))
	}
	if s.limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(s.limit))
	}
	return s.dialect.Rebind(b.String()), s.args
}

// All scans every matching row into dest.
func (s *Selection) All(ctx context.Context, dest any) error {
	q, args := s.SQL()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	return scanIntoDest(rows, dest)
}

// First scans the first matching row into dest, or returns sql.ErrNoRows.
func (s *Selection) First(ctx context.Context, dest any) error {
	s.limit = 1
	q, args := s.SQL()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	return firstRow(rows, dest)
}

func firstRow(rows *sql.Rows, dest any) error {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return scanIntoSingle(rows, dest)
}
