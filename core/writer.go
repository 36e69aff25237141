package core

import (
	"sync"
	"time"

	"github.com/0xRadioAc7iv/go-daybreak/internal/record"
)

// batch is one unit of the write queue. Its records are written as one
// contiguous run of frames. A batch with stop set tells the writer to exit.
type batch struct {
	records []record.Record
	stop    bool
}

// writeQueue is an unbounded FIFO with a single consumer. put never blocks;
// join blocks until everything put so far has been written.
type writeQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	items    []*batch
	inflight *batch
	pending  int // queued + inflight

	closed bool
	fault  error
}

func newWriteQueue() *writeQueue {
	q := &writeQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *writeQueue) put(b *batch) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.fault != nil {
		return q.fault
	}
	q.items = append(q.items, b)
	q.pending++
	q.cond.Broadcast()
	return nil
}

// get blocks until a batch is available and hands it to the writer. The
// batch counts as pending until done.
func (q *writeQueue) get() *batch {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		q.cond.Wait()
	}
	b := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.inflight = b
	return b
}

func (q *writeQueue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.inflight = nil
	q.pending--
	q.cond.Broadcast()
}

// fail marks the queue broken. The inflight batch is kept so restart can
// retry it.
func (q *writeQueue) fail(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.fault = err
	q.cond.Broadcast()
}

// restart clears the fault and puts the batch that failed back at the head.
func (q *writeQueue) restart() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.inflight != nil {
		q.items = append([]*batch{q.inflight}, q.items...)
		q.inflight = nil
	}
	q.fault = nil
}

// join waits for the queue to drain. It returns early with the fault if the
// writer breaks while waiting.
func (q *writeQueue) join() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.pending > 0 && q.fault == nil {
		q.cond.Wait()
	}
	return q.fault
}

// clear drops every queued batch that the writer has not picked up yet and
// returns how many were dropped.
func (q *writeQueue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	q.items = nil
	q.pending -= n
	q.cond.Broadcast()
	return n
}

// stop enqueues the shutdown sentinel behind all pending work and rejects
// any later put.
func (q *writeQueue) stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.items = append(q.items, &batch{stop: true})
	q.pending++
	q.cond.Broadcast()
}

func (q *writeQueue) err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fault
}

func (q *writeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// worker is the journal's writer goroutine. It drains the queue in order
// until it reads the stop sentinel or a batch fails for good.
func (j *Journal) worker(exited chan<- struct{}) {
	defer close(exited)

	for {
		b := j.queue.get()
		if b.stop {
			j.queue.done()
			return
		}

		if err := j.writeBatch(b); err != nil {
			j.log.Errorf("journal writer stopped: %v", err)
			j.queue.fail(err)
			return
		}
		j.queue.done()
	}
}

// writeBatch encodes b into one buffer and appends it, retrying up to
// MaxWriteRetries times with a linearly growing delay.
func (j *Journal) writeBatch(b *batch) error {
	size := 0
	for _, rec := range b.records {
		size += rec.FrameSize()
	}

	buf := make([]byte, 0, size)
	for _, rec := range b.records {
		var err error
		if buf, err = record.AppendFrame(buf, rec); err != nil {
			return &WriterFault{Attempts: 0, Err: err}
		}
	}

	var err error
	for attempt := 0; attempt <= MaxWriteRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * j.retryDelay)
		}
		if err = j.write(buf, len(b.records)); err == nil {
			return nil
		}
		j.log.Warnf("journal write attempt %d/%d failed: %v", attempt+1, MaxWriteRetries+1, err)
	}
	return &WriterFault{Attempts: MaxWriteRetries + 1, Err: err}
}
