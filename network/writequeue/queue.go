package writequeue

import (
	"errors"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var ErrClosed = errors.New("write queue closed")

// WriteFunc performs one complete, blocking write of buf
type WriteFunc func(buf []byte) error

// Queue serializes outbound buffers onto a single writer. At most one write
// is outstanding; buffers reach the writer in enqueue order.
type Queue struct {
	logger  hclog.Logger
	write   WriteFunc
	onError func(error)

	lock      sync.Mutex
	entries   [][]byte // entries[0] is in flight while writing is set
	writing   bool
	closed    bool
	onDrained func()

	// writers tracks the writer goroutine
	writers sync.WaitGroup
}

// New creates a queue writing through write. onError, if set, is called once
// for the first failed write; the queue is closed and emptied at that point.
func New(logger hclog.Logger, write WriteFunc, onError func(error)) *Queue {
	return &Queue{
		logger:  logger.Named("writequeue"),
		write:   write,
		onError: onError,
	}
}

// Enqueue appends buf to the tail. If no write is in flight it starts one.
// The queue owns buf until its write completes.
func (q *Queue) Enqueue(buf []byte) error {
	q.lock.Lock()

	if q.closed {
		q.lock.Unlock()

		return ErrClosed
	}

	q.entries = append(q.entries, buf)

	if q.writing {
		q.lock.Unlock()

		return nil
	}

	q.writing = true
	q.writers.Add(1)
	q.lock.Unlock()

	go q.run()

	return nil
}

func (q *Queue) run() {
	defer q.writers.Done()

	for {
		q.lock.Lock()
		buf := q.entries[0]
		q.lock.Unlock()

		if !q.onWriteComplete(q.write(buf)) {
			return
		}
	}
}

// onWriteComplete pops the finished entry and reports whether the next one
// should be written
func (q *Queue) onWriteComplete(err error) bool {
	q.lock.Lock()

	q.entries[0] = nil
	q.entries = q.entries[1:]

	if err != nil {
		q.logger.Debug("write failed", "err", err, "dropped", len(q.entries))

		q.closed = true
		q.entries = nil
	}

	if len(q.entries) > 0 {
		q.lock.Unlock()

		return true
	}

	q.writing = false
	q.entries = nil

	var drained func()
	if q.closed {
		drained, q.onDrained = q.onDrained, nil
	}

	q.lock.Unlock()

	if err != nil && q.onError != nil {
		q.onError(err)
	}

	if drained != nil {
		drained()
	}

	return false
}

// Close stops accepting new entries. Entries already queued are still
// written; drained runs once the queue is idle (immediately if it already
// is). Closing twice returns ErrClosed and drops drained.
func (q *Queue) Close(drained func()) error {
	q.lock.Lock()

	if q.closed {
		q.lock.Unlock()

		return ErrClosed
	}

	q.closed = true

	if q.writing {
		q.onDrained = drained
		q.lock.Unlock()

		return nil
	}

	q.lock.Unlock()

	if drained != nil {
		drained()
	}

	return nil
}

// Discard closes the queue and releases every entry that is not in flight
func (q *Queue) Discard() {
	q.lock.Lock()
	defer q.lock.Unlock()

	q.closed = true

	if q.writing {
		for i := 1; i < len(q.entries); i++ {
			q.entries[i] = nil
		}

		q.entries = q.entries[:1]

		return
	}

	q.entries = nil
}

// Len returns the number of entries including the one in flight
func (q *Queue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()

	return len(q.entries)
}

// Idle reports whether no write is in flight
func (q *Queue) Idle() bool {
	q.lock.Lock()
	defer q.lock.Unlock()

	return !q.writing
}

// Wait blocks until the writer goroutine has returned
func (q *Queue) Wait() {
	q.writers.Wait()
}
