package core

import (
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/0xRadioAc7iv/go-daybreak/internal/record"
)

func TestWriteQueue(t *testing.T) {
	t.Run("batches come out in order", func(t *testing.T) {
		q := newWriteQueue()
		for _, key := range []string{"k1", "k2", "k3"} {
			require.NoError(t, q.put(&batch{records: []record.Record{record.NewTombstone([]byte(key))}}))
		}
		require.Equal(t, 3, q.len())

		for _, want := range []string{"k1", "k2", "k3"} {
			b := q.get()
			require.Equal(t, want, string(b.records[0].Key))
			q.done()
		}
		require.NoError(t, q.join())
	})

	t.Run("join waits for done", func(t *testing.T) {
		q := newWriteQueue()
		require.NoError(t, q.put(&batch{}))

		joined := make(chan error, 1)
		go func() { joined <- q.join() }()

		q.get()
		select {
		case <-joined:
			t.Fatal("join returned before the batch was done")
		case <-time.After(20 * time.Millisecond):
		}

		q.done()
		require.NoError(t, <-joined)
	})

	t.Run("fault is reported and the failed batch is retried first", func(t *testing.T) {
		q := newWriteQueue()
		first := &batch{records: []record.Record{record.NewTombstone([]byte("first"))}}
		second := &batch{records: []record.Record{record.NewTombstone([]byte("second"))}}
		require.NoError(t, q.put(first))
		require.NoError(t, q.put(second))

		require.Same(t, first, q.get())
		fault := &WriterFault{Attempts: 4, Err: errors.New("boom")}
		q.fail(fault)

		require.ErrorIs(t, q.join(), fault)
		require.ErrorIs(t, q.put(&batch{}), fault)

		q.restart()
		require.NoError(t, q.err())
		require.Same(t, first, q.get())
		q.done()
		require.Same(t, second, q.get())
		q.done()
		require.NoError(t, q.join())
	})

	t.Run("clear keeps the inflight batch", func(t *testing.T) {
		q := newWriteQueue()
		for i := 0; i < 3; i++ {
			require.NoError(t, q.put(&batch{}))
		}
		q.get()

		require.Equal(t, 2, q.clear())
		require.Equal(t, 1, q.len())
		q.done()
		require.NoError(t, q.join())
	})

	t.Run("put after stop is rejected", func(t *testing.T) {
		q := newWriteQueue()
		q.stop()
		require.ErrorIs(t, q.put(&batch{}), ErrClosed)
		require.True(t, q.get().stop)
	})
}

func TestWriterRetriesThenFaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	j, err := OpenJournal(path, &Options{Logger: DefaultOptions().Logger, RetryDelay: time.Millisecond})
	require.NoError(t, err)
	defer j.Close()

	var calls atomic.Int32
	j.write = func(buf []byte, n int) error {
		calls.Add(1)
		return errors.New("disk full")
	}

	require.NoError(t, j.Enqueue(record.New([]byte("a"), []byte("1"))))

	err = j.Flush()
	var fault *WriterFault
	require.ErrorAs(t, err, &fault)
	require.Equal(t, MaxWriteRetries+1, fault.Attempts)
	require.EqualError(t, fault.Err, "disk full")
	require.EqualValues(t, MaxWriteRetries+1, calls.Load())

	require.ErrorAs(t, j.Fault(), &fault)
	require.ErrorAs(t, j.Enqueue(record.New([]byte("b"), []byte("2"))), &fault)

	// reads keep working while broken
	tbl := NewTable()
	require.NoError(t, j.Replay(tbl.Apply))
	require.Zero(t, tbl.Len())

	j.write = j.appendFrames
	require.NoError(t, j.Reopen())
	require.NoError(t, j.Flush())
	require.NoError(t, j.Fault())

	require.NoError(t, j.Replay(tbl.Apply))
	v, ok := tbl.Get("a")
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
	require.False(t, tbl.Has("b"))
}

func TestWriterRecoversFromTransientFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	j, err := OpenJournal(path, &Options{Logger: DefaultOptions().Logger, RetryDelay: time.Millisecond})
	require.NoError(t, err)
	defer j.Close()

	var calls atomic.Int32
	j.write = func(buf []byte, n int) error {
		if calls.Add(1) <= 2 {
			return errors.New("interrupted")
		}
		return j.appendFrames(buf, n)
	}

	require.NoError(t, j.Enqueue(record.New([]byte("a"), []byte("1")), record.New([]byte("b"), []byte("2"))))
	require.NoError(t, j.Flush())
	require.EqualValues(t, 3, calls.Load())

	tbl := NewTable()
	require.NoError(t, j.Replay(tbl.Apply))
	require.Equal(t, []string{"a", "b"}, tbl.Keys())
}
