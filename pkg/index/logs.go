package index

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strconv"

	"github.com/carefolio/records/pkg/errors"
	"github.com/carefolio/records/pkg/rqlite"
)

// InsertLog writes a log entry. Rewriting the same (user, logIndex) replaces
// the row with the given values, which is how index repair converges.
func (s *Store) InsertLog(ctx context.Context, e *LogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO user_logs (
	user_address, log_index, data_cid, log_type, notes, activity_type, duration_minutes,
	created_at, tx_signature, ledger_address
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_address, log_index) DO UPDATE SET
	data_cid = excluded.data_cid,
	log_type = excluded.log_type,
	notes = excluded.notes,
	activity_type = excluded.activity_type,
	duration_minutes = excluded.duration_minutes,
	created_at = excluded.created_at,
	tx_signature = excluded.tx_signature,
	ledger_address = excluded.ledger_address`,
		e.User, int64(e.LogIndex), e.DataCID, e.LogType, e.Notes,
		nullableString(e.ActivityType), nullableUint32(e.DurationMinutes),
		rqlite.FormatTime(e.CreatedAt), e.TxSignature, e.LedgerAddress)
	if err != nil {
		return errors.NewIndexWriteError(tableLogs, err)
	}
	return nil
}

// FindLogs returns a user's logs, newest sequence first. An empty logType
// matches every type.
func (s *Store) FindLogs(ctx context.Context, user, logType string) ([]LogEntry, error) {
	criteria := map[string]any{"user_address": user}
	if logType != "" {
		criteria["log_type"] = logType
	}
	logs := []LogEntry{}
	if err := s.db.FindBy(ctx, &logs, tableLogs, criteria, rqlite.WithOrderBy("log_index DESC")); err != nil {
		return nil, readErr(tableLogs, err)
	}
	return logs, nil
}

// FindLog returns the log at (user, seq) or a NotFound error.
func (s *Store) FindLog(ctx context.Context, user string, seq uint64) (*LogEntry, error) {
	var e LogEntry
	err := s.db.FindOneBy(ctx, &e, tableLogs, map[string]any{
		"user_address": user,
		"log_index":    int64(seq),
	})
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("log", user+"/"+strconv.FormatUint(seq, 10))
	}
	if err != nil {
		return nil, readErr(tableLogs, err)
	}
	return &e, nil
}
