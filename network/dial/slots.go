package dial

import (
	"context"
)

// Slots bounds the number of dials in flight.
// Take blocks until a slot is free; Release hands one back.
type Slots chan struct{}

// NewSlots creates Slots object with maximal slots available
func NewSlots(maximal int) Slots {
	slots := make(Slots, maximal)

	for i := 0; i < maximal; i++ {
		slots <- struct{}{}
	}

	return slots
}

// Take takes slot if available or blocks until slot is available or context is done.
// Returns true if the context is done.
func (s Slots) Take(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-s:
		return false
	}
}

// Release returns back one slot. If all slots are already released, nothing will happen
func (s Slots) Release() {
	select {
	case s <- struct{}{}:
	default:
	}
}

// Available returns the number of free slots
func (s Slots) Available() int {
	return len(s)
}
