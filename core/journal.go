package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/0xRadioAc7iv/go-daybreak/internal/atomicfile"
	"github.com/0xRadioAc7iv/go-daybreak/internal/lock"
	"github.com/0xRadioAc7iv/go-daybreak/internal/record"
	"github.com/0xRadioAc7iv/go-daybreak/internal/utils"
)

// ReplayFunc receives replayed records in file order. A nil record means the
// replay restarted from the beginning of the file and any state built from
// earlier replays must be dropped.
type ReplayFunc func(rec *record.Record)

// Journal owns the append-only log file of one database.
//
// Writes go through an asynchronous queue drained by a single writer
// goroutine; reads are incremental from a cursor that remembers how much of
// the file has been replayed. Processes sharing the file coordinate with an
// exclusive advisory lock on it.
type Journal struct {
	path       string
	log        *zap.SugaredLogger
	retryDelay time.Duration

	queue  *writeQueue
	write  func(buf []byte, n int) error
	exited chan struct{}

	fileMu  sync.Mutex // guards file, pos and logsize
	file    *os.File
	pos     int64
	logsize int

	// The file lock is shared by every goroutine of this process: while one
	// of them holds it, the others pass straight through.
	flockMu    sync.Mutex
	flockRefs  int
	lockedFile *os.File

	critMu sync.Mutex // serializes Lock, Clear, Compact and Repair

	stateMu sync.Mutex
	closed  bool
}

// OpenJournal opens or creates the journal at path and starts its writer.
// Nothing is replayed yet; the first Replay reads the whole file.
func OpenJournal(path string, opts *Options) (*Journal, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}

	j := &Journal{
		path:       path,
		log:        opts.Logger,
		retryDelay: opts.RetryDelay,
		queue:      newWriteQueue(),
	}
	j.write = j.appendFrames

	f, err := j.openFile()
	if err != nil {
		return nil, err
	}
	j.file = f

	j.startWriter()
	return j, nil
}

// openFile opens the journal path for reading and appending. An empty file
// receives the header while holding the file lock, so concurrent openers
// never write it twice.
func (j *Journal) openFile() (*os.File, error) {
	f, err := os.OpenFile(j.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	if err := lock.Lock(f); err != nil {
		f.Close()
		return nil, err
	}
	defer lock.Unlock(f)

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if _, err := f.Write(record.Header()); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, err
		}
		j.log.Debugf("created journal %s", j.path)
	}
	return f, nil
}

func (j *Journal) startWriter() {
	j.exited = make(chan struct{})
	go j.worker(j.exited)
}

func (j *Journal) Path() string {
	return j.path
}

// Enqueue hands one batch of records to the writer. It never blocks and never
// touches the disk. Records that can not be framed are rejected here.
func (j *Journal) Enqueue(records ...record.Record) error {
	for _, rec := range records {
		if err := record.Check(rec); err != nil {
			return err
		}
	}
	return j.queue.put(&batch{records: records})
}

// Pending returns the number of batches not yet written.
func (j *Journal) Pending() int {
	return j.queue.len()
}

// Flush waits until every enqueued batch is written and syncs the file.
func (j *Journal) Flush() error {
	if j.Closed() {
		return nil
	}
	if err := j.queue.join(); err != nil {
		return err
	}

	j.fileMu.Lock()
	defer j.fileMu.Unlock()
	if j.file == nil {
		return nil
	}
	return j.file.Sync()
}

// Sync fsyncs the file without waiting for the queue.
func (j *Journal) Sync() error {
	j.fileMu.Lock()
	defer j.fileMu.Unlock()
	if j.file == nil {
		return ErrClosed
	}
	return j.file.Sync()
}

// Replay applies every record appended since the last replay. When the
// cursor is at the start of the file, fn first receives nil.
//
// Decoding is all or nothing: on a FormatError no record is applied and the
// cursor does not move, so the next replay reports the same corruption.
func (j *Journal) Replay(fn ReplayFunc) error {
	if j.Closed() {
		return ErrClosed
	}

	records, full, err := j.read()
	if err != nil {
		return err
	}

	if full {
		fn(nil)
	}
	for i := range records {
		fn(&records[i])
	}
	return nil
}

// read decodes the bytes between the cursor and the end of the file and
// advances the cursor past them. full is set when the read started at 0.
func (j *Journal) read() (records []record.Record, full bool, err error) {
	err = j.withFlock(func() error {
		j.fileMu.Lock()
		defer j.fileMu.Unlock()

		if j.file == nil {
			return ErrClosed
		}
		base := j.pos
		if base == 0 {
			if err := record.ReadHeader(j.file); err != nil {
				return err
			}
			base = int64(record.HeaderSize)
			full = true
		} else if _, err := j.file.Seek(base, io.SeekStart); err != nil {
			return err
		}

		data, err := io.ReadAll(j.file)
		if err != nil {
			return err
		}
		if records, err = record.DecodeAll(data, base); err != nil {
			return err
		}

		j.pos = base + int64(len(data))
		if full {
			j.logsize = len(records)
		} else {
			j.logsize += len(records)
		}
		return nil
	})
	return records, full, err
}

// Rewind moves the cursor back to the start, so the next replay is a full
// rebuild.
func (j *Journal) Rewind() {
	j.fileMu.Lock()
	j.pos = 0
	j.fileMu.Unlock()
}

// appendFrames is the writer's disk path. A failed write is truncated away so
// a retry starts from a clean tail.
func (j *Journal) appendFrames(buf []byte, n int) error {
	return j.withFlock(func() error {
		j.fileMu.Lock()
		defer j.fileMu.Unlock()

		if j.file == nil {
			return ErrClosed
		}
		off, err := j.file.Seek(0, io.SeekEnd)
		if err != nil {
			return err
		}
		if written, err := j.file.Write(buf); err != nil {
			if written > 0 {
				if terr := j.file.Truncate(off); terr != nil {
					j.log.Errorf("could not truncate partial write at %d: %v", off, terr)
				}
			}
			return err
		}

		// Nobody else appended since our last read: skip our own frames on
		// the next replay.
		if j.pos == off {
			j.pos = off + int64(len(buf))
			j.logsize += n
		}
		return nil
	})
}

// Lock runs fn with the file locked against other processes. Before fn, the
// queue is flushed and records written by others are replayed through apply;
// after fn the queue is flushed again.
//
// fn must not call Lock, Clear, Compact or Repair.
func (j *Journal) Lock(apply ReplayFunc, fn func() error) error {
	j.critMu.Lock()
	defer j.critMu.Unlock()

	if j.Closed() {
		return ErrClosed
	}

	return j.withFlock(func() error {
		if err := j.Flush(); err != nil {
			return err
		}
		if err := j.Replay(apply); err != nil {
			return err
		}

		ferr := fn()
		if err := j.Flush(); ferr == nil {
			ferr = err
		}
		return ferr
	})
}

// Clear replaces the journal with a header-only file. The in-memory table
// is the caller's to clear.
func (j *Journal) Clear() error {
	j.critMu.Lock()
	defer j.critMu.Unlock()

	if j.Closed() {
		return ErrClosed
	}
	if err := j.Flush(); err != nil {
		return err
	}

	tmp, err := atomicfile.New(j.path)
	if err != nil {
		return err
	}
	defer tmp.Cancel()

	if _, err := tmp.Write(record.Header()); err != nil {
		return err
	}

	return j.withFlock(func() error {
		return j.install(tmp, false)
	})
}

// Compact rewrites the journal to hold only snapshot, which must be the full
// state as of the cursor. Frames other processes appended past the cursor
// are carried over. If the rewrite would not shrink the file, or the journal
// was replaced meanwhile, nothing happens.
//
// On success the cursor is at 0, so the next replay rebuilds from the new
// file.
func (j *Journal) Compact(snapshot []record.Record) error {
	j.critMu.Lock()
	defer j.critMu.Unlock()

	if j.Closed() {
		return ErrClosed
	}
	if err := j.Flush(); err != nil {
		return err
	}

	buf := record.Header()
	for _, rec := range snapshot {
		var err error
		if buf, err = record.AppendFrame(buf, rec); err != nil {
			return err
		}
	}

	j.fileMu.Lock()
	pos := j.pos
	j.fileMu.Unlock()
	if int64(len(buf)) == pos {
		j.log.Debugf("journal %s already compact (%d bytes)", j.path, pos)
		return nil
	}

	tmp, err := atomicfile.New(j.path)
	if err != nil {
		return err
	}
	defer tmp.Cancel()

	if _, err := tmp.Write(buf); err != nil {
		return err
	}

	return j.withFlock(func() error {
		j.fileMu.Lock()
		replaced := j.pos == 0
		j.fileMu.Unlock()
		if replaced {
			j.log.Infof("journal %s was replaced during compaction, skipping", j.path)
			return nil
		}
		if err := j.install(tmp, true); err != nil {
			return err
		}
		j.log.Infof("compacted journal %s from %d to %d bytes", j.path, pos, tmp.Size())
		return nil
	})
}

// install renames tmp over the journal path and switches to the new file.
// With tail set, bytes appended past the cursor are copied over first.
// Must be called with the file lock held.
func (j *Journal) install(tmp *atomicfile.File, tail bool) error {
	j.log.Debugf("installing %s over %s", tmp.Name(), j.path)
	j.fileMu.Lock()

	if tail {
		if _, err := j.file.Seek(j.pos, io.SeekStart); err != nil {
			j.fileMu.Unlock()
			return err
		}
		if _, err := io.Copy(tmp, j.file); err != nil {
			j.fileMu.Unlock()
			return err
		}
	}

	if err := tmp.Close(); err != nil {
		j.fileMu.Unlock()
		return err
	}

	nf, err := os.OpenFile(j.path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		j.fileMu.Unlock()
		return err
	}
	if err := lock.Lock(nf); err != nil {
		nf.Close()
		j.fileMu.Unlock()
		return err
	}

	old := j.file
	j.file = nf
	j.pos = 0
	j.logsize = 0
	j.fileMu.Unlock()

	j.flockMu.Lock()
	j.lockedFile = nf
	j.flockMu.Unlock()

	lock.Unlock(old)
	return old.Close()
}

// Repair truncates the journal at its first corrupt frame and returns the
// number of bytes dropped. A bad header can not be repaired and is returned
// as is.
func (j *Journal) Repair() (int64, error) {
	j.critMu.Lock()
	defer j.critMu.Unlock()

	if j.Closed() {
		return 0, ErrClosed
	}
	if err := j.Flush(); err != nil {
		return 0, err
	}

	var dropped int64
	err := j.withFlock(func() error {
		j.fileMu.Lock()
		defer j.fileMu.Unlock()

		if err := record.ReadHeader(j.file); err != nil {
			return err
		}
		data, err := io.ReadAll(j.file)
		if err != nil {
			return err
		}

		dec := record.NewDecoder(bytes.NewReader(data), int64(record.HeaderSize))
		for dec.Next() {
		}
		if dec.Err() == nil {
			return nil
		}

		var fe *record.FormatError
		if !errors.As(dec.Err(), &fe) {
			return dec.Err()
		}

		size := int64(record.HeaderSize + len(data))
		if err := utils.TruncateAt(j.file, dec.Offset()); err != nil {
			return err
		}
		dropped = size - dec.Offset()
		j.pos = 0
		j.log.Warnf("repaired journal %s: dropped %d bytes from offset %d (%v)", j.path, dropped, dec.Offset(), fe)
		return nil
	})
	return dropped, err
}

// Bytesize returns the size of the journal file on disk.
func (j *Journal) Bytesize() (int64, error) {
	j.fileMu.Lock()
	defer j.fileMu.Unlock()

	if j.file == nil {
		return 0, ErrClosed
	}
	info, err := j.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Logsize returns the number of records in the log as of the last full
// replay plus everything read or written since.
func (j *Journal) Logsize() int {
	j.fileMu.Lock()
	defer j.fileMu.Unlock()
	return j.logsize
}

func (j *Journal) Closed() bool {
	j.stateMu.Lock()
	defer j.stateMu.Unlock()
	return j.closed
}

// Fault returns the WriterFault that broke the journal, or nil.
func (j *Journal) Fault() error {
	return j.queue.err()
}

// Reopen leaves the broken state after a WriterFault: the file is reopened,
// the fault cleared and a new writer started. The batch that failed is the
// first one written. The cursor is reset, so callers should reload.
func (j *Journal) Reopen() error {
	j.stateMu.Lock()
	defer j.stateMu.Unlock()

	if j.closed {
		return ErrClosed
	}
	if j.queue.err() == nil {
		return nil
	}
	<-j.exited

	nf, err := j.openFile()
	if err != nil {
		return fmt.Errorf("reopen journal: %w", err)
	}

	j.fileMu.Lock()
	old := j.file
	j.file = nf
	j.pos = 0
	j.fileMu.Unlock()
	if old != nil {
		old.Close()
	}

	j.queue.restart()
	j.startWriter()
	j.log.Infof("journal %s reopened, %d batches pending", j.path, j.queue.len())
	return nil
}

// Close drains the queue, stops the writer and closes the file.
func (j *Journal) Close() error {
	return j.Shutdown(true)
}

// Shutdown stops the writer and closes the file. With drain set, every
// batch enqueued before the call is written first; otherwise batches the
// writer has not picked up yet are discarded. Shutdown is idempotent.
//
// If the writer had failed, its fault is returned: batches still queued
// are lost.
func (j *Journal) Shutdown(drain bool) error {
	j.stateMu.Lock()
	defer j.stateMu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if !drain {
		if n := j.queue.clear(); n > 0 {
			j.log.Warnf("discarding %d pending batches on close", n)
		}
	}
	j.queue.stop()
	<-j.exited

	j.fileMu.Lock()
	defer j.fileMu.Unlock()

	var errs []error
	if fault := j.queue.err(); fault != nil {
		errs = append(errs, fault)
	}
	if err := j.file.Sync(); err != nil && !errors.Is(err, fs.ErrClosed) {
		errs = append(errs, err)
	}
	if err := j.file.Close(); err != nil {
		errs = append(errs, err)
	}
	j.file = nil
	return errors.Join(errs...)
}

// withFlock runs fn holding the cross-process file lock.
func (j *Journal) withFlock(fn func() error) error {
	if err := j.flock(); err != nil {
		return err
	}
	defer j.funlock()
	return fn()
}

// flock takes the file lock, or joins it if another goroutine of this
// process already holds it. On first acquisition it checks that the open
// handle is still the file at the journal path; if another process replaced
// the journal (clear or compact), the handle is reopened and the cursor
// reset before trying again.
func (j *Journal) flock() error {
	j.flockMu.Lock()
	defer j.flockMu.Unlock()

	if j.flockRefs > 0 {
		j.flockRefs++
		return nil
	}

	for {
		j.fileMu.Lock()
		f := j.file
		j.fileMu.Unlock()
		if f == nil {
			return ErrClosed
		}

		if err := lock.TryLock(f); errors.Is(err, lock.ErrLocked) {
			j.log.Debugf("journal %s is locked by another process, waiting", j.path)
			if err := lock.Lock(f); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		stale, err := j.stale(f)
		if err != nil {
			lock.Unlock(f)
			return err
		}
		if !stale {
			j.lockedFile = f
			j.flockRefs = 1
			return nil
		}

		lock.Unlock(f)
		j.log.Debugf("journal %s was replaced, reopening", j.path)

		nf, err := j.openFile()
		if err != nil {
			return err
		}
		j.fileMu.Lock()
		j.file = nf
		j.pos = 0
		j.fileMu.Unlock()
		f.Close()
	}
}

func (j *Journal) funlock() {
	j.flockMu.Lock()
	defer j.flockMu.Unlock()

	j.flockRefs--
	if j.flockRefs == 0 {
		lock.Unlock(j.lockedFile)
		j.lockedFile = nil
	}
}

func (j *Journal) stale(f *os.File) (bool, error) {
	open, err := f.Stat()
	if err != nil {
		return false, err
	}
	current, err := os.Stat(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !os.SameFile(open, current), nil
}
