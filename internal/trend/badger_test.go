package trend

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boyarskiy/runledger/internal/clock"
	"github.com/boyarskiy/runledger/internal/errors"
	"github.com/boyarskiy/runledger/internal/model"
)

var now = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func openMemory(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := Open(InMemoryConfig(clock.Fixed(now)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testRun(id string, ts time.Time, outcomes ...model.Outcome) *model.TestRun {
	run := &model.TestRun{RunID: id, Timestamp: ts}
	for i, o := range outcomes {
		r := model.TestResult{Suite: model.SuiteContract, Name: string(rune('a' + i)), Outcome: o, DurationMS: 5}
		if o == model.OutcomeFailed {
			r.Failure = &model.FailureDetail{Message: "boom", Trace: "long trace", Signature: model.SignatureAssertion}
		}
		run.Results = append(run.Results, r)
	}
	run.Summary.Total = len(outcomes)
	return run
}

func TestWriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)
	run := testRun("run-1", now.Add(-time.Hour), model.OutcomePassed)

	id, err := store.Write(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	changed := testRun("run-1", now.Add(-time.Minute), model.OutcomeFailed)
	id, err = store.Write(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	records, err := store.QueryWindow(ctx, 30)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.OutcomePassed, records[0].Outcomes[0].Outcome)
}

func TestWriteRejectsOutOfOrder(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)

	_, err := store.Write(ctx, testRun("newer", now.Add(-time.Hour)))
	require.NoError(t, err)

	_, err = store.Write(ctx, testRun("older", now.Add(-2*time.Hour)))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStoreOutOfOrder)

	_, err = store.Write(ctx, testRun("same-instant", now.Add(-time.Hour)))
	require.NoError(t, err)

	_, err = store.Get(ctx, "older")
	assert.ErrorIs(t, err, errors.ErrRunNotFound)
}

func TestWriteValidation(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)

	_, err := store.Write(ctx, testRun("", now))
	assert.ErrorIs(t, err, errors.ErrEmptyValue)

	_, err = store.Write(ctx, testRun("no-time", time.Time{}))
	assert.ErrorIs(t, err, errors.ErrEmptyValue)

	_, err = store.Write(ctx, testRun("a/b", now))
	assert.Error(t, err)
}

func TestQueryWindowBoundary(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)

	runs := []*model.TestRun{
		testRun("outside", now.Add(-30*24*time.Hour-time.Second)),
		testRun("edge", now.Add(-30*24*time.Hour)),
		testRun("inside", now.Add(-24*time.Hour)),
	}
	for _, r := range runs {
		_, err := store.Write(ctx, r)
		require.NoError(t, err)
	}

	records, err := store.QueryWindow(ctx, 30)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "edge", records[0].RunID)
	assert.Equal(t, "inside", records[1].RunID)

	records, err = store.QueryWindow(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "inside", records[0].RunID)
}

func TestQueryWindowEmpty(t *testing.T) {
	store := openMemory(t)

	records, err := store.QueryWindow(context.Background(), 7)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestQueryWindowRejectsNonPositiveDays(t *testing.T) {
	store := openMemory(t)

	_, err := store.QueryWindow(context.Background(), 0)
	assert.ErrorIs(t, err, errors.ErrEmptyValue)
}

func TestQueryWindowCanceled(t *testing.T) {
	store := openMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.QueryWindow(ctx, 7)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetReducesFailurePayload(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)

	_, err := store.Write(ctx, testRun("run-1", now, model.OutcomePassed, model.OutcomeFailed))
	require.NoError(t, err)

	record, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, record.Outcomes, 2)
	assert.Empty(t, record.Outcomes[0].Message)
	assert.Equal(t, "boom", record.Outcomes[1].Message)
	assert.Equal(t, model.SignatureAssertion, record.Outcomes[1].Signature)
	assert.Equal(t, model.TestKey{Suite: model.SuiteContract, Name: "b"}, record.Outcomes[1].Key())
}

func TestOnDiskStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "trend")

	cfg := DefaultConfig(dir)
	cfg.Clock = clock.Fixed(now)

	store, err := Open(cfg)
	require.NoError(t, err)

	_, err = store.Write(ctx, testRun("persisted", now.Add(-time.Hour), model.OutcomePassed))
	require.NoError(t, err)

	_, err = Open(cfg)
	require.Error(t, err, "a second writer must be excluded")
	assert.ErrorIs(t, err, errors.ErrStoreUnavailable)

	require.NoError(t, store.Close())

	readCfg := cfg
	readCfg.ReadOnly = true
	reader, err := Open(readCfg)
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	records, err := reader.QueryWindow(ctx, 30)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "persisted", records[0].RunID)

	_, err = reader.Write(ctx, testRun("rejected", now))
	assert.ErrorIs(t, err, errors.ErrStoreUnavailable)
}

func TestOpenReadOnlyMissingStore(t *testing.T) {
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "absent"))
	cfg.ReadOnly = true

	_, err := Open(cfg)
	assert.ErrorIs(t, err, errors.ErrStoreUnavailable)
}

func TestOpenReadOnlyWaitsForWriter(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "trend")

	cfg := DefaultConfig(dir)
	cfg.Clock = clock.Fixed(now)

	writer, err := Open(cfg)
	require.NoError(t, err)
	_, err = writer.Write(ctx, testRun("first", now.Add(-time.Hour), model.OutcomePassed))
	require.NoError(t, err)

	readCfg := cfg
	readCfg.ReadOnly = true

	_, err = Open(readCfg)
	require.Error(t, err, "without a lock timeout the reader gives up at once")
	assert.ErrorIs(t, err, errors.ErrStoreUnavailable)

	readCfg.LockTimeout = 10 * time.Second
	closed := make(chan error, 1)
	go func() {
		time.Sleep(200 * time.Millisecond)
		closed <- writer.Close()
	}()

	reader, err := Open(readCfg)
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()
	require.NoError(t, <-closed)

	records, err := reader.QueryWindow(ctx, 30)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "first", records[0].RunID)
}

func TestOpenLockTimeoutExpires(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "trend")
	cfg := DefaultConfig(dir)

	writer, err := Open(cfg)
	require.NoError(t, err)
	defer func() { _ = writer.Close() }()

	cfg.LockTimeout = 150 * time.Millisecond
	start := time.Now()
	_, err = Open(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStoreUnavailable)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestConcurrentWritersAndReaders(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)

	const (
		writers = 6
		runs    = 20
		readers = 4
	)
	ts := now.Add(-time.Hour)

	var wg sync.WaitGroup
	done := make(chan struct{})

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			// Every writer stores every run id, so most writes are retries.
			for i := 0; i < runs; i++ {
				id := fmt.Sprintf("run-%02d", (i+w)%runs)
				got, err := store.Write(ctx, testRun(id, ts, model.OutcomePassed, model.OutcomeFailed, model.OutcomeSkipped))
				assert.NoError(t, err)
				assert.Equal(t, id, got)
			}
		}(w)
	}

	var readerWG sync.WaitGroup
	for r := 0; r < readers; r++ {
		readerWG.Add(1)
		go func() {
			defer readerWG.Done()
			last := 0
			for {
				records, err := store.QueryWindow(ctx, 1)
				if !assert.NoError(t, err) {
					return
				}
				assert.GreaterOrEqual(t, len(records), last, "history never shrinks")
				last = len(records)

				seen := make(map[string]bool, len(records))
				for _, rec := range records {
					assert.False(t, seen[rec.RunID], "run %s listed twice", rec.RunID)
					seen[rec.RunID] = true
					assert.Len(t, rec.Outcomes, 3, "run %s read incomplete", rec.RunID)
					assert.Equal(t, 3, rec.Summary.Total)
				}

				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}

	wg.Wait()
	close(done)
	readerWG.Wait()

	records, err := store.QueryWindow(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, runs)
	for i, rec := range records {
		assert.Len(t, rec.Outcomes, 3)
		if i > 0 {
			assert.Less(t, records[i-1].RunID, rec.RunID, "equal timestamps order by run id")
		}
	}
}
