package rqlite

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/mattn/go-sqlite3"    // registers "sqlite3"
	_ "github.com/rqlite/gorqlite/stdlib"
	_ "modernc.org/sqlite" // registers "sqlite"
)

// Dialect captures the SQL differences between supported drivers.
type Dialect int

const (
	// DialectSQLite covers rqlite, modernc sqlite and mattn sqlite3.
	DialectSQLite Dialect = iota
	// DialectPostgres uses $n placeholders.
	DialectPostgres
)

// driverNames maps configured driver names to database/sql driver names.
var driverNames = map[string]string{
	"rqlite":   "rqlite",
	"sqlite":   "sqlite",
	"sqlite3":  "sqlite3",
	"postgres": "pgx",
}

// Open opens a pooled *sql.DB for driver (rqlite, sqlite, sqlite3 or postgres).
func Open(driver, dsn string, maxOpenConns int) (*sql.DB, Dialect, error) {
	name, ok := driverNames[driver]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported index driver %q", driver)
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s sql db: %w", driver, err)
	}

	switch driver {
	case "sqlite", "sqlite3":
		// A single writer avoids SQLITE_BUSY on embedded files.
		db.SetMaxOpenConns(1)
	default:
		if maxOpenConns <= 0 {
			maxOpenConns = 25
		}
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(2 * time.Minute)
	}

	dialect := DialectSQLite
	if driver == "postgres" {
		dialect = DialectPostgres
	}
	return db, dialect, nil
}

// Rebind rewrites ? placeholders for the dialect, leaving quoted text alone.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inSingle, inDouble := false, false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
		case ch == '"' && !inSingle:
			inDouble = !inDouble
		case ch == '?' && !inSingle && !inDouble:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
