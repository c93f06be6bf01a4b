package trend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/boyarskiy/runledger/internal/clock"
	"github.com/boyarskiy/runledger/internal/errors"
	"github.com/boyarskiy/runledger/internal/model"
)

// Key layout:
//
//	run/<20-digit unix nanos>/<run_id> -> JSON Record
//	id/<run_id>                        -> run key
//	meta/latest                        -> run key of the newest run
const (
	runPrefix = "run/"
	idPrefix  = "id/"
	latestKey = "meta/latest"
)

// gcDiscardRatio is the garbage ratio above which Close rewrites the value log.
const gcDiscardRatio = 0.5

// lockRetryInterval is how often Open retries a directory held by another handle.
const lockRetryInterval = 50 * time.Millisecond

// Config holds configuration for a Badger-backed store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every commit before Write returns.
	SyncWrites bool

	// ReadOnly opens an existing store for queries only. Several read-only
	// processes may share a store; a writer excludes them.
	ReadOnly bool

	// Logger receives Badger's internal log lines at debug level and above.
	Logger zerolog.Logger

	// Clock supplies "now" for window queries. Defaults to the system clock.
	Clock clock.Clock

	// LockTimeout bounds how long Open waits while another handle holds the
	// directory lock. Zero fails on the first attempt.
	LockTimeout time.Duration
}

// DefaultConfig returns the on-disk configuration for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		Logger:     zerolog.Nop(),
		Clock:      clock.RealClock{},
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig(c clock.Clock) Config {
	return Config{
		InMemory: true,
		Logger:   zerolog.Nop(),
		Clock:    c,
	}
}

// badgerLogger adapts zerolog to Badger's Logger interface.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// BadgerStore is a Store on an embedded Badger database.
type BadgerStore struct {
	db       *badger.DB
	clock    clock.Clock
	logger   zerolog.Logger
	readOnly bool
	inMemory bool

	// mu serializes writers within the process. Badger's directory lock
	// excludes writers in other processes.
	mu sync.Mutex
}

var _ Store = (*BadgerStore)(nil)

// Open opens or creates a store. Any failure wraps errors.ErrStoreUnavailable.
func Open(cfg Config) (*BadgerStore, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}

	var opts badger.Options
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.Path == "":
		return nil, errors.Wrap(errors.ErrStoreUnavailable, "store path is required")
	case cfg.ReadOnly:
		if _, err := os.Stat(cfg.Path); err != nil {
			return nil, errors.Wrapf(errors.ErrStoreUnavailable, "store %s: %v", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithReadOnly(true)
	default:
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, errors.Wrapf(errors.ErrStoreUnavailable, "create store directory %s: %v", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{logger: cfg.Logger.With().Str("component", "badger").Logger()})

	db, err := openLocked(opts, cfg)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrStoreUnavailable, "open store %s: %v", cfg.Path, err)
	}

	return &BadgerStore{
		db:       db,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		readOnly: cfg.ReadOnly,
		inMemory: cfg.InMemory,
	}, nil
}

// openLocked opens the database, retrying while the directory lock is held
// elsewhere until cfg.LockTimeout elapses. A writer holds the lock for the
// lifetime of its handle, so readers wait for it instead of failing.
func openLocked(opts badger.Options, cfg Config) (*badger.DB, error) {
	deadline := time.Now().Add(cfg.LockTimeout)
	for {
		db, err := badger.Open(opts)
		if err == nil {
			return db, nil
		}
		if !isLockHeld(err) || time.Now().Add(lockRetryInterval).After(deadline) {
			return nil, err
		}
		cfg.Logger.Debug().Str("path", cfg.Path).Msg("trend store locked, retrying")
		time.Sleep(lockRetryInterval)
	}
}

// isLockHeld reports whether err is Badger's directory lock conflict. Badger
// formats the cause into the message, so there is no sentinel to match.
func isLockHeld(err error) bool {
	return strings.Contains(err.Error(), "Cannot acquire directory lock")
}

// runKey formats the primary key of a run. Zero-padded nanoseconds sort
// lexically in time order.
func runKey(ts time.Time, runID string) string {
	return fmt.Sprintf("%s%020d/%s", runPrefix, ts.UnixNano(), runID)
}

// keyNanos extracts the timestamp from a run key.
func keyNanos(key string) (int64, error) {
	rest := strings.TrimPrefix(key, runPrefix)
	nanos, _, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, fmt.Errorf("malformed run key %q", key)
	}
	return strconv.ParseInt(nanos, 10, 64)
}

// Write appends run in a single transaction: the record, its id index and the
// latest marker land together or not at all.
func (s *BadgerStore) Write(ctx context.Context, run *model.TestRun) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if run == nil || run.RunID == "" {
		return "", errors.Wrap(errors.ErrEmptyValue, "run id")
	}
	if run.Timestamp.IsZero() || run.Timestamp.UnixNano() < 0 {
		return "", errors.Wrap(errors.ErrEmptyValue, "run timestamp")
	}
	if strings.Contains(run.RunID, "/") {
		return "", fmt.Errorf("run id %q must not contain '/'", run.RunID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := NewRecord(run)
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to encode run %s: %w", run.RunID, err)
	}

	key := runKey(record.Timestamp, record.RunID)
	duplicate := false

	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(idPrefix + run.RunID))
		switch {
		case err == nil:
			duplicate = true
			return nil
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		if err := checkOrder(txn, record.Timestamp); err != nil {
			return err
		}

		if err := txn.Set([]byte(key), data); err != nil {
			return err
		}
		if err := txn.Set([]byte(idPrefix+run.RunID), []byte(key)); err != nil {
			return err
		}
		return txn.Set([]byte(latestKey), []byte(key))
	})
	if err != nil {
		if errors.Is(err, errors.ErrStoreOutOfOrder) {
			return "", err
		}
		return "", errors.Wrapf(errors.ErrStoreUnavailable, "write run %s: %v", run.RunID, err)
	}

	if duplicate {
		s.logger.Debug().Str("run_id", run.RunID).Msg("run already stored, history unchanged")
		return run.RunID, nil
	}

	s.logger.Debug().Str("run_id", run.RunID).Str("key", key).Msg("run stored")
	return run.RunID, nil
}

// checkOrder rejects a run older than the newest stored run.
func checkOrder(txn *badger.Txn, ts time.Time) error {
	item, err := txn.Get([]byte(latestKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	latest, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	latestNanos, err := keyNanos(string(latest))
	if err != nil {
		return err
	}

	if ts.UnixNano() < latestNanos {
		return errors.Wrapf(errors.ErrStoreOutOfOrder, "run at %s, latest stored at %s",
			ts.Format(time.RFC3339Nano), time.Unix(0, latestNanos).UTC().Format(time.RFC3339Nano))
	}
	return nil
}

// QueryWindow returns runs inside the window, oldest first.
func (s *BadgerStore) QueryWindow(ctx context.Context, days int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, errors.Wrapf(errors.ErrEmptyValue, "window must be at least one day, got %d", days)
	}

	cutoff := s.clock.Now().Add(-time.Duration(days) * 24 * time.Hour).UnixNano()
	if cutoff < 0 {
		cutoff = 0
	}
	start := []byte(fmt.Sprintf("%s%020d", runPrefix, cutoff))

	records := []Record{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var record Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Wrapf(errors.ErrStoreUnavailable, "query %d-day window: %v", days, err)
	}

	return records, nil
}

// Get returns one run by id, or errors.ErrRunNotFound.
func (s *BadgerStore) Get(ctx context.Context, runID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(idPrefix + runID))
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.Wrapf(errors.ErrRunNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrStoreUnavailable, "get run %s: %v", runID, err)
	}

	return &record, nil
}

// Close runs one value-log GC pass on writable stores and releases the database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.readOnly && !s.inMemory {
		if err := s.db.RunValueLogGC(gcDiscardRatio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			s.logger.Warn().Err(err).Msg("badger value log GC failed")
		}
	}

	return errors.Wrap(s.db.Close(), "failed to close trend store")
}
