// Package intentlog records orchestrated writes in LevelDB so that writes
// accepted by the ledger but missing from the index survive a restart and can
// be repaired.
//
// An intent is written before the ledger call, marked attested with the
// transaction id once the ledger accepts it, and deleted once the index write
// succeeds. Intents that never reach the ledger are abandoned (deleted).
package intentlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

const keyPrefix = "intent_"

// Status is the last pipeline stage an intent reached.
type Status string

const (
	// StatusPending means the ledger call may or may not have landed.
	StatusPending Status = "pending"
	// StatusAttested means the ledger accepted the call and the index is behind.
	StatusAttested Status = "attested"
)

// Intent is one in-flight orchestrated write.
type Intent struct {
	ID            string    `json:"id"`
	Operation     string    `json:"operation"`
	Kind          string    `json:"kind"`
	Subject       string    `json:"subject"`
	Sequence      uint64    `json:"sequence"`
	LedgerAddress string    `json:"ledgerAddress"`
	TxID          string    `json:"txId,omitempty"`
	Status        Status    `json:"status"`
	LastError     string    `json:"lastError,omitempty"`
	Attempts      int       `json:"attempts"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Log is a LevelDB-backed intent journal.
type Log struct {
	mu     sync.Mutex
	db     *leveldb.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens (or creates) the journal at path.
func Open(path string, logger *zap.Logger) (*Log, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open intent log %s: %w", path, err)
	}
	return newLog(db, logger), nil
}

// OpenStorage opens the journal over an explicit goleveldb storage, such as
// storage.NewMemStorage in tests.
func OpenStorage(stor storage.Storage, logger *zap.Logger) (*Log, error) {
	db, err := leveldb.Open(stor, nil)
	if err != nil {
		return nil, fmt.Errorf("open intent log: %w", err)
	}
	return newLog(db, logger), nil
}

func newLog(db *leveldb.DB, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{db: db, logger: logger, now: time.Now}
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Begin records a new pending intent and returns it with ID and timestamps set.
func (l *Log) Begin(in Intent) (Intent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	in.ID = uuid.NewString()
	in.Status = StatusPending
	in.CreatedAt = now
	in.UpdatedAt = now
	if err := l.put(in); err != nil {
		return Intent{}, err
	}
	l.logger.Debug("Intent recorded",
		zap.String("id", in.ID),
		zap.String("operation", in.Operation),
		zap.String("subject", in.Subject))
	return in, nil
}

// MarkAttested stores the ledger transaction id for id.
func (l *Log) MarkAttested(id, txID string) error {
	return l.update(id, func(in *Intent) {
		in.Status = StatusAttested
		in.TxID = txID
	})
}

// RecordFailure notes a failed repair attempt for id.
func (l *Log) RecordFailure(id string, cause error) error {
	return l.update(id, func(in *Intent) {
		in.Attempts++
		if cause != nil {
			in.LastError = cause.Error()
		}
	})
}

// Complete removes id once the index reflects the write.
func (l *Log) Complete(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Delete(key(id), nil)
}

// Abandon removes id when the write failed before the ledger accepted it.
func (l *Log) Abandon(id string) error {
	return l.Complete(id)
}

// Get returns the intent with id.
func (l *Log) Get(id string) (Intent, bool, error) {
	raw, err := l.db.Get(key(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Intent{}, false, nil
	}
	if err != nil {
		return Intent{}, false, err
	}
	var in Intent
	if err := json.Unmarshal(raw, &in); err != nil {
		return Intent{}, false, fmt.Errorf("decode intent %s: %w", id, err)
	}
	return in, true, nil
}

// List returns every open intent, oldest first.
func (l *Log) List() ([]Intent, error) {
	iter := l.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	defer iter.Release()

	out := []Intent{}
	for iter.Next() {
		var in Intent
		if err := json.Unmarshal(iter.Value(), &in); err != nil {
			l.logger.Warn("Skipping undecodable intent", zap.ByteString("key", iter.Key()), zap.Error(err))
			continue
		}
		out = append(out, in)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (l *Log) update(id string, fn func(*Intent)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	in, ok, err := l.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("intent %s not found", id)
	}
	fn(&in)
	in.UpdatedAt = l.now().UTC()
	return l.put(in)
}

func (l *Log) put(in Intent) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return l.db.Put(key(in.ID), data, &opt.WriteOptions{Sync: true})
}

func key(id string) []byte {
	return []byte(keyPrefix + id)
}
