package dial

import (
	"container/heap"
	"context"
	"sync"
)

// DialQueue is a queue that holds dial tasks for potential peers, implemented as a min-heap
type DialQueue struct {
	sync.Mutex

	heap  dialQueueImpl
	tasks map[string]*DialTask
	seq   uint64

	updateCh chan struct{}
	closeCh  chan struct{}
	closed   bool
}

// NewDialQueue creates a new DialQueue instance
func NewDialQueue() *DialQueue {
	return &DialQueue{
		heap:     dialQueueImpl{},
		tasks:    map[string]*DialTask{},
		updateCh: make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
	}
}

// Close closes the running DialQueue. Closing twice is a no-op.
func (d *DialQueue) Close() {
	d.Lock()
	defer d.Unlock()

	if d.closed {
		return
	}

	d.closed = true
	close(d.closeCh)
}

// Wait waits for closing or updating event or end of context.
// Returns true for closing event or end of the context [BLOCKING].
func (d *DialQueue) Wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-d.updateCh:
		return false
	case <-d.closeCh:
		return true
	}
}

// PopTask is the implementation for task popping from the min-heap
func (d *DialQueue) PopTask() *DialTask {
	d.Lock()
	defer d.Unlock()

	if len(d.heap) != 0 {
		task, ok := heap.Pop(&d.heap).(*DialTask)
		if !ok {
			return nil
		}

		delete(d.tasks, task.target.Key())

		return task
	}

	return nil
}

// DeleteTask deletes the pending task for the target with the given key
func (d *DialQueue) DeleteTask(key string) {
	d.Lock()
	defer d.Unlock()

	item, ok := d.tasks[key]
	if ok {
		heap.Remove(&d.heap, item.index)
		delete(d.tasks, key)
	}
}

// Len returns the number of pending tasks
func (d *DialQueue) Len() int {
	d.Lock()
	defer d.Unlock()

	return d.heap.Len()
}

// AddTask adds a new task to the dial queue
func (d *DialQueue) AddTask(target *Target, priority Priority) {
	if d.addTaskImpl(target, priority) {
		select {
		case d.updateCh <- struct{}{}:
		default:
		}
	}
}

func (d *DialQueue) addTaskImpl(target *Target, priority Priority) bool {
	d.Lock()
	defer d.Unlock()

	key := target.Key()

	// do not spam queue with same targets
	if item, ok := d.tasks[key]; ok {
		if item.priority > uint64(priority) {
			item.target = target
			item.priority = uint64(priority)
			heap.Fix(&d.heap, item.index)

			return true
		}

		return false
	}

	d.seq++

	task := &DialTask{
		target:   target,
		priority: uint64(priority),
		seq:      d.seq,
	}
	d.tasks[key] = task
	heap.Push(&d.heap, task)

	return true
}
