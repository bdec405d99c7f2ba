// Package index is the local, queryable mirror of ledger-attested records.
//
// Rows are keyed by subject identity and a per-subject sequence. The ledger
// stays authoritative: every row can be rebuilt from account state, and
// sequences are allocated here so that ledger addresses can be derived
// before attestation.
package index

import (
	"context"
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/config"
	"github.com/carefolio/records/pkg/errors"
	"github.com/carefolio/records/pkg/rqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	tableCertifications = "doctor_certifications"
	tableLogs           = "user_logs"
	tableConsultations  = "consultations"
	tableSequences      = "subject_sequences"
)

// Store reads and writes the index tables.
type Store struct {
	db     rqlite.Client
	closer func() error
	logger *zap.Logger
	now    func() time.Time

	// locks serializes sequence allocation per kind/subject. Entries are
	// dropped when their last holder releases them.
	locks *xsync.MapOf[string, *subjectLock]
}

type subjectLock struct {
	mu   sync.Mutex
	refs int
}

// Open connects to the configured index database, applies migrations and
// returns a ready Store.
func Open(ctx context.Context, cfg config.IndexConfig, logger *zap.Logger) (*Store, error) {
	db, dialect, err := rqlite.Open(cfg.Driver, cfg.DSN, cfg.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s index: %w", cfg.Driver, err)
	}

	s, err := New(ctx, rqlite.NewClient(db, dialect), logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.closer = db.Close
	return s, nil
}

// New wraps an existing client and applies migrations.
func New(ctx context.Context, db rqlite.Client, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	if err := rqlite.ApplyEmbeddedMigrations(ctx, db, sub, logger); err != nil {
		return nil, fmt.Errorf("migrate index: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger,
		now:    time.Now,
		locks:  xsync.NewMapOf[string, *subjectLock](),
	}, nil
}

// Close releases the database handle if the Store opened it.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// Health pings the index with a trivial query.
func (s *Store) Health(ctx context.Context) error {
	var rows []map[string]any
	if err := s.db.Query(ctx, &rows, "SELECT 1 AS ok"); err != nil {
		return errors.NewIndexReadError("health", err)
	}
	return nil
}

// NextSequence allocates the next sequence for subject under kind.
// Allocations are never returned, so a failed write leaves a gap.
func (s *Store) NextSequence(ctx context.Context, kind Kind, subject string) (uint64, error) {
	table, col, subjectCol, err := sequenceSource(kind)
	if err != nil {
		return 0, err
	}

	unlock := s.lockSubject(string(kind) + "/" + subject)
	defer unlock()

	var row struct {
		Next int64 `db:"next_seq"`
	}
	err = s.db.QueryOne(ctx, &row,
		`SELECT next_seq FROM subject_sequences WHERE kind = ? AND subject = ?`, string(kind), subject)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		// First allocation: continue after any rows written before the counter existed.
		q := fmt.Sprintf(`SELECT COALESCE(MAX(%s) + 1, 0) AS next_seq FROM %s WHERE %s = ?`, col, table, subjectCol)
		if err := s.db.QueryOne(ctx, &row, q, subject); err != nil {
			return 0, errors.NewIndexReadError(table, err)
		}
	case err != nil:
		return 0, errors.NewIndexReadError(tableSequences, err)
	}

	seq := row.Next
	if _, err := s.db.Exec(ctx, `
INSERT INTO subject_sequences (kind, subject, next_seq) VALUES (?, ?, ?)
ON CONFLICT (kind, subject) DO UPDATE SET next_seq = excluded.next_seq`,
		string(kind), subject, seq+1); err != nil {
		return 0, errors.NewIndexWriteError(tableSequences, err)
	}

	s.logger.Debug("Allocated sequence",
		zap.String("kind", string(kind)),
		zap.String("subject", subject),
		zap.Int64("sequence", seq))
	return uint64(seq), nil
}

func (s *Store) lockSubject(key string) func() {
	l, _ := s.locks.Compute(key, func(l *subjectLock, loaded bool) (*subjectLock, bool) {
		if !loaded {
			l = &subjectLock{}
		}
		l.refs++
		return l, false
	})
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locks.Compute(key, func(cur *subjectLock, loaded bool) (*subjectLock, bool) {
			if !loaded {
				return cur, true
			}
			cur.refs--
			return cur, cur.refs == 0
		})
	}
}

func sequenceSource(kind Kind) (table, col, subjectCol string, err error) {
	switch kind {
	case KindLog:
		return tableLogs, "log_index", "user_address", nil
	case KindConsultation:
		return tableConsultations, "consult_index", "patient_address", nil
	default:
		return "", "", "", errors.NewInternalError(fmt.Sprintf("kind %q is not sequenced", kind), nil)
	}
}

// nullableString and friends map nil pointers to SQL NULL.
func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return rqlite.FormatTime(*p)
}

func nullableUint32(p *uint32) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func readErr(table string, err error) error {
	return errors.NewIndexReadError(table, err)
}
