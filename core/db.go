package core

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/0xRadioAc7iv/go-daybreak/internal/record"
)

// DB is a key-value store held in memory and persisted to a journal.
//
// Reads are served from the in-memory table. Mutations update the table and
// enqueue a record for the journal's writer, so they return before the data
// is on disk; use the *Flush variants or Flush to wait for it.
type DB struct {
	journal *Journal
	table   *Table
	opts    *Options
	log     *zap.SugaredLogger
	ser     Serializer

	mu     sync.Mutex // table, and the order records reach the queue
	critMu sync.Mutex // Lock, Clear, Compact, Repair

	maintCancel context.CancelFunc
	maintWG     sync.WaitGroup
	closeOnce   sync.Once
}

// Open opens the database at path, creating the file if needed, and loads
// its contents.
func Open(path string, options ...Option) (*DB, error) {
	opts := DefaultOptions()
	for _, opt := range options {
		opt(opts)
	}

	journal, err := OpenJournal(path, opts)
	if err != nil {
		return nil, err
	}

	db := &DB{
		journal: journal,
		table:   NewTable(),
		opts:    opts,
		log:     opts.Logger,
		ser:     opts.Serializer,
	}

	if err := db.Load(); err != nil {
		journal.Close()
		return nil, err
	}

	db.startMaintenance()

	if opts.Registry != nil {
		opts.Registry.Register(db)
	}

	db.log.Infof("opened %s: %d keys, %d records in log", path, db.Size(), db.Logsize())
	return db, nil
}

func (db *DB) Path() string {
	return db.journal.Path()
}

// Get returns the value stored under key. A missing key yields the
// configured default, which is stored under the key; without a default it
// yields nil.
func (db *DB) Get(key any) (any, error) {
	k, err := db.ser.EncodeKey(key)
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if data, ok := db.table.Get(k); ok {
		return db.ser.Load(data)
	}
	if db.opts.Default == nil {
		return nil, nil
	}

	value := db.opts.Default(key)
	data, err := db.ser.Dump(value)
	if err != nil {
		return nil, err
	}
	if err := db.journal.Enqueue(record.New([]byte(k), data)); err != nil {
		return nil, err
	}
	db.table.Set(k, data)
	return value, nil
}

// Fetch returns the value stored under key and whether it exists. The
// default is not consulted.
func (db *DB) Fetch(key any) (any, bool, error) {
	k, err := db.ser.EncodeKey(key)
	if err != nil {
		return nil, false, err
	}

	db.mu.Lock()
	data, ok := db.table.Get(k)
	db.mu.Unlock()

	if !ok {
		return nil, false, nil
	}
	value, err := db.ser.Load(data)
	return value, err == nil, err
}

func (db *DB) Set(key, value any) error {
	k, err := db.ser.EncodeKey(key)
	if err != nil {
		return err
	}
	data, err := db.ser.Dump(value)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.journal.Enqueue(record.New([]byte(k), data)); err != nil {
		return err
	}
	db.table.Set(k, data)
	return nil
}

// SetFlush is Set followed by Flush.
func (db *DB) SetFlush(key, value any) error {
	if err := db.Set(key, value); err != nil {
		return err
	}
	return db.journal.Flush()
}

// Delete removes key. It returns the value the key held and whether it
// existed; the tombstone is written either way.
func (db *DB) Delete(key any) (any, bool, error) {
	k, err := db.ser.EncodeKey(key)
	if err != nil {
		return nil, false, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.journal.Enqueue(record.NewTombstone([]byte(k))); err != nil {
		return nil, false, err
	}
	data, ok := db.table.Delete(k)
	if !ok {
		return nil, false, nil
	}
	value, err := db.ser.Load(data)
	return value, true, err
}

// DeleteFlush is Delete followed by Flush.
func (db *DB) DeleteFlush(key any) (any, bool, error) {
	value, ok, err := db.Delete(key)
	if err != nil {
		return nil, false, err
	}
	return value, ok, db.journal.Flush()
}

// Update stores all pairs as one batch: their frames are written as one
// contiguous run, ordered by encoded key. Keys may be of any type the
// serializer accepts. When several keys encode to the same one, only one
// record is written for it, the one whose encoded value sorts last.
func (db *DB) Update(pairs map[any]any) error {
	records := make([]record.Record, 0, len(pairs))
	for key, value := range pairs {
		k, err := db.ser.EncodeKey(key)
		if err != nil {
			return err
		}
		data, err := db.ser.Dump(value)
		if err != nil {
			return err
		}
		records = append(records, record.New([]byte(k), data))
	}
	if len(records) == 0 {
		return nil
	}

	slices.SortFunc(records, func(a, b record.Record) int {
		if c := bytes.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		return bytes.Compare(a.Value, b.Value)
	})
	records = dedupLast(records)

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.journal.Enqueue(records...); err != nil {
		return err
	}
	db.table.Merge(records)
	return nil
}

// dedupLast keeps the last record of every run of equal keys in sorted.
func dedupLast(sorted []record.Record) []record.Record {
	out := sorted[:0]
	for i, rec := range sorted {
		if i+1 < len(sorted) && bytes.Equal(rec.Key, sorted[i+1].Key) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// UpdateFlush is Update followed by Flush.
func (db *DB) UpdateFlush(pairs map[any]any) error {
	if err := db.Update(pairs); err != nil {
		return err
	}
	return db.journal.Flush()
}

func (db *DB) HasKey(key any) bool {
	k, err := db.ser.EncodeKey(key)
	if err != nil {
		return false
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	return db.table.Has(k)
}

// HasValue reports whether any key holds value, comparing serialized bytes.
func (db *DB) HasValue(value any) bool {
	data, err := db.ser.Dump(value)
	if err != nil {
		return false
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	found := false
	db.table.Each(func(_ string, v []byte) bool {
		found = string(v) == string(data)
		return !found
	})
	return found
}

// Keys returns every key in insertion order.
func (db *DB) Keys() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.table.Keys()
}

func (db *DB) Size() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.table.Len()
}

func (db *DB) Empty() bool {
	return db.Size() == 0
}

// Each calls fn for every pair in insertion order until fn returns false.
// fn runs on a snapshot and may use the DB.
func (db *DB) Each(fn func(key string, value any) bool) error {
	db.mu.Lock()
	snapshot := db.table.Records()
	db.mu.Unlock()

	for _, rec := range snapshot {
		value, err := db.ser.Load(rec.Value)
		if err != nil {
			return err
		}
		if !fn(string(rec.Key), value) {
			return nil
		}
	}
	return nil
}

// Bytesize returns the size of the journal file.
func (db *DB) Bytesize() (int64, error) {
	return db.journal.Bytesize()
}

// Logsize returns the number of records in the journal, live or not.
func (db *DB) Logsize() int {
	return db.journal.Logsize()
}

// Flush blocks until every mutation so far is written and synced.
func (db *DB) Flush() error {
	return db.journal.Flush()
}

// Load flushes pending writes and rebuilds the table from the whole
// journal.
//
// A broken writer does not stop the reload: the table then reflects what
// actually reached the disk.
func (db *DB) Load() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.loadLocked()
}

// Sunrise is an alias for Load.
func (db *DB) Sunrise() error {
	return db.Load()
}

func (db *DB) loadLocked() error {
	if err := db.journal.Flush(); err != nil {
		if !IsWriterFault(err) {
			return err
		}
		db.log.Warnf("loading %s with a broken writer: %v", db.Path(), err)
	}
	db.journal.Rewind()
	return db.journal.Replay(db.table.Apply)
}

// Lock runs fn with exclusive access to the journal across processes. The
// table is brought up to date with other processes' writes before fn runs,
// and everything fn writes is flushed before the lock is released.
//
// fn may read and write through db, but must not call Lock, Clear, Compact
// or Repair.
func (db *DB) Lock(fn func(db *DB) error) error {
	db.critMu.Lock()
	defer db.critMu.Unlock()

	return db.journal.Lock(db.apply, func() error {
		return fn(db)
	})
}

func (db *DB) apply(rec *record.Record) {
	db.mu.Lock()
	db.table.Apply(rec)
	db.mu.Unlock()
}

// Clear removes every key, on disk and in memory.
func (db *DB) Clear() error {
	db.critMu.Lock()
	defer db.critMu.Unlock()
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.journal.Clear(); err != nil {
		return err
	}
	db.table.Clear()
	return db.journal.Replay(db.table.Apply)
}

// Compact rewrites the journal with one record per live key, dropping
// tombstones and overwritten values.
func (db *DB) Compact() error {
	db.critMu.Lock()
	defer db.critMu.Unlock()
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.loadLocked(); err != nil {
		return err
	}
	if err := db.journal.Compact(db.table.Records()); err != nil {
		return err
	}
	return db.journal.Replay(db.table.Apply)
}

// Repair drops the journal from its first corrupt frame on and reloads.
// It returns the number of bytes dropped.
func (db *DB) Repair() (int64, error) {
	db.critMu.Lock()
	defer db.critMu.Unlock()
	db.mu.Lock()
	defer db.mu.Unlock()

	dropped, err := db.journal.Repair()
	if err != nil {
		return 0, err
	}
	db.journal.Rewind()
	return dropped, db.journal.Replay(db.table.Apply)
}

// Fault returns the writer fault if the journal is broken, else nil.
func (db *DB) Fault() error {
	return db.journal.Fault()
}

// Reopen recovers from a writer fault: the journal is reopened, pending
// writes are retried and the table is reloaded from disk.
func (db *DB) Reopen() error {
	if err := db.journal.Reopen(); err != nil {
		return err
	}
	return db.Load()
}

func (db *DB) Closed() bool {
	return db.journal.Closed()
}

// Close flushes pending writes and closes the database.
func (db *DB) Close() error {
	return db.Shutdown(true)
}

// Shutdown closes the database. Without drain, writes not yet picked up
// by the writer are discarded.
func (db *DB) Shutdown(drain bool) error {
	var err error
	db.closeOnce.Do(func() {
		db.stopMaintenance()
		err = db.journal.Shutdown(drain)

		if db.opts.Registry != nil {
			db.opts.Registry.Unregister(db)
		}

		db.mu.Lock()
		db.table.Clear()
		db.mu.Unlock()

		db.log.Infof("closed %s", db.Path())
	})
	return err
}

func (db *DB) startMaintenance() {
	ctx, cancel := context.WithCancel(context.Background())
	db.maintCancel = cancel

	if db.opts.SyncInterval > 0 {
		db.maintWG.Add(1)
		go db.syncDiskInterval(ctx, db.opts.SyncInterval)
	}
	if db.opts.CompactInterval > 0 {
		db.maintWG.Add(1)
		go db.compactInterval(ctx, db.opts.CompactInterval)
	}
}

func (db *DB) stopMaintenance() {
	if db.maintCancel != nil {
		db.maintCancel()
	}
	db.maintWG.Wait()
}

func (db *DB) syncDiskInterval(ctx context.Context, interval time.Duration) {
	defer db.maintWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := db.journal.Sync(); err != nil {
				db.log.Warnf("Error syncing journal: %v", err)
			}

		case <-ctx.Done():
			return
		}
	}
}

func (db *DB) compactInterval(ctx context.Context, interval time.Duration) {
	defer db.maintWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !db.needsCompaction() {
				continue
			}
			if err := db.Compact(); err != nil {
				db.log.Errorf("Error compacting journal: %v", err)
			}

		case <-ctx.Done():
			return
		}
	}
}

// needsCompaction reports whether the share of dead records in the log has
// reached the configured garbage ratio.
func (db *DB) needsCompaction() bool {
	logsize := db.journal.Logsize()
	if logsize == 0 || logsize < db.opts.MinCompactLogsize {
		return false
	}
	garbage := 1 - float64(db.Size())/float64(logsize)
	return garbage >= db.opts.GarbageRatio
}
