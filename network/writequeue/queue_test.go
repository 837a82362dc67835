package writequeue

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// recorder is a transport that keeps every write it receives
type recorder struct {
	lock     sync.Mutex
	writes   [][]byte
	inFlight int32
	maxSeen  int32
	delay    time.Duration
}

func (r *recorder) write(buf []byte) error {
	n := atomic.AddInt32(&r.inFlight, 1)
	defer atomic.AddInt32(&r.inFlight, -1)

	for {
		seen := atomic.LoadInt32(&r.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&r.maxSeen, seen, n) {
			break
		}
	}

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.lock.Lock()
	r.writes = append(r.writes, append([]byte{}, buf...))
	r.lock.Unlock()

	return nil
}

func (r *recorder) all() [][]byte {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.writes
}

func closeAndWait(t require.TestingT, q *Queue) {
	done := make(chan struct{})
	require.NoError(t, q.Close(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "queue did not drain")
	}

	q.Wait()
}

func TestQueue_Order(t *testing.T) {
	rec := &recorder{delay: time.Millisecond}
	q := New(hclog.NewNullLogger(), rec.write, nil)

	for i := 0; i < 20; i++ {
		require.NoError(t, q.Enqueue([]byte{byte(i)}))
	}

	closeAndWait(t, q)

	writes := rec.all()
	require.Len(t, writes, 20)

	for i, w := range writes {
		assert.Equal(t, []byte{byte(i)}, w)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&rec.maxSeen))
	assert.True(t, q.Idle())
	assert.Zero(t, q.Len())
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	const (
		producers = 8
		perWorker = 200
	)

	rec := &recorder{}
	q := New(hclog.NewNullLogger(), rec.write, nil)

	var wg sync.WaitGroup

	for p := 0; p < producers; p++ {
		wg.Add(1)

		go func(p int) {
			defer wg.Done()

			for i := 0; i < perWorker; i++ {
				buf := make([]byte, 5)
				buf[0] = byte(p)
				binary.BigEndian.PutUint32(buf[1:], uint32(i))

				assert.NoError(t, q.Enqueue(buf))
			}
		}(p)
	}

	wg.Wait()
	closeAndWait(t, q)

	writes := rec.all()
	require.Len(t, writes, producers*perWorker)
	assert.Equal(t, int32(1), atomic.LoadInt32(&rec.maxSeen))

	next := make([]uint32, producers)

	for _, w := range writes {
		require.Len(t, w, 5)

		p := w[0]
		seq := binary.BigEndian.Uint32(w[1:])

		assert.Equal(t, next[p], seq, "producer %d out of order", p)
		next[p] = seq + 1
	}
}

func TestQueue_OrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payloads := rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), 1, 32), 1, 50).Draw(t, "payloads")

		rec := &recorder{}
		q := New(hclog.NewNullLogger(), rec.write, nil)

		var expected []byte

		for _, p := range payloads {
			require.NoError(t, q.Enqueue(p))
			expected = append(expected, p...)
		}

		closeAndWait(t, q)

		require.True(t, bytes.Equal(expected, bytes.Join(rec.all(), nil)))
	})
}

func TestQueue_EnqueueDoesNotWaitForWriter(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	q := New(hclog.NewNullLogger(), func(buf []byte) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release

		return nil
	}, nil)

	require.NoError(t, q.Enqueue([]byte{1}))
	<-started

	require.NoError(t, q.Enqueue([]byte{2}))
	require.NoError(t, q.Enqueue([]byte{3}))

	assert.Equal(t, 3, q.Len())
	assert.False(t, q.Idle())

	close(release)
	closeAndWait(t, q)
}

func TestQueue_CloseFlushesPending(t *testing.T) {
	release := make(chan struct{})
	rec := &recorder{}

	q := New(hclog.NewNullLogger(), func(buf []byte) error {
		<-release

		return rec.write(buf)
	}, nil)

	require.NoError(t, q.Enqueue([]byte("a")))
	require.NoError(t, q.Enqueue([]byte("b")))

	drained := make(chan struct{})
	require.NoError(t, q.Close(func() { close(drained) }))

	assert.ErrorIs(t, q.Enqueue([]byte("c")), ErrClosed)
	assert.ErrorIs(t, q.Close(nil), ErrClosed)

	close(release)
	<-drained
	q.Wait()

	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, rec.all())
}

func TestQueue_CloseIdleRunsImmediately(t *testing.T) {
	q := New(hclog.NewNullLogger(), (&recorder{}).write, nil)

	called := false
	require.NoError(t, q.Close(func() { called = true }))
	assert.True(t, called)
}

func TestQueue_WriteError(t *testing.T) {
	errBroken := errors.New("broken pipe")

	var (
		writes int32
		errs   int32
	)

	release := make(chan struct{})
	failed := make(chan struct{})

	q := New(hclog.NewNullLogger(), func(buf []byte) error {
		<-release
		atomic.AddInt32(&writes, 1)

		return errBroken
	}, func(err error) {
		assert.ErrorIs(t, err, errBroken)
		atomic.AddInt32(&errs, 1)
		close(failed)
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue([]byte{byte(i)}))
	}

	close(release)
	<-failed
	q.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&writes))
	assert.Equal(t, int32(1), atomic.LoadInt32(&errs))
	assert.Zero(t, q.Len())
	assert.ErrorIs(t, q.Enqueue([]byte{9}), ErrClosed)
}

func TestQueue_Discard(t *testing.T) {
	release := make(chan struct{})
	rec := &recorder{}

	q := New(hclog.NewNullLogger(), func(buf []byte) error {
		<-release

		return rec.write(buf)
	}, nil)

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Enqueue([]byte{byte(i)}))
	}

	q.Discard()
	assert.Equal(t, 1, q.Len())

	close(release)
	q.Wait()

	assert.Equal(t, [][]byte{{0}}, rec.all())
	assert.ErrorIs(t, q.Enqueue([]byte{5}), ErrClosed)
}
