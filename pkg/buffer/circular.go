package buffer

import (
	"sync"

	"github.com/TheGonzalezDesigns/corpus-vision/errors"
)

// circular is a thread-safe circular buffer with configurable overflow policy.
type circular[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	stats    *Statistics
	opts     *options[T]
	closed   bool
}

func newCircular[T any](capacity int, opts *options[T]) *circular[T] {
	if capacity <= 0 {
		capacity = 1
	}

	return &circular[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		opts:     opts,
	}
}

// Write adds an item according to the overflow policy. The drop callback
// runs after the lock is released so it may safely touch the buffer.
func (cb *circular[T]) Write(item T) error {
	cb.mu.Lock()

	if cb.closed {
		cb.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Write", "buffer closed")
	}

	var dropped T
	notifyDrop := false

	if cb.size == cb.capacity {
		switch cb.opts.overflowPolicy {
		case DropOldest:
			dropped = cb.items[cb.tail]
			notifyDrop = cb.opts.dropCallback != nil
			cb.tail = (cb.tail + 1) % cb.capacity
			cb.size--

			cb.stats.Overflow()
			cb.stats.Drop()

		case DropNewest:
			cb.stats.Overflow()
			cb.stats.Drop()
			cb.mu.Unlock()

			if cb.opts.dropCallback != nil {
				cb.opts.dropCallback(item)
			}
			return nil
		}
	}

	cb.items[cb.head] = item
	cb.head = (cb.head + 1) % cb.capacity
	cb.size++

	cb.stats.Write()
	cb.stats.UpdateSize(int64(cb.size))
	cb.mu.Unlock()

	if notifyDrop {
		cb.opts.dropCallback(dropped)
	}
	return nil
}

// Read retrieves and removes one item from the buffer.
func (cb *circular[T]) Read() (T, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var zero T

	if cb.size == 0 {
		return zero, false
	}

	item := cb.items[cb.tail]
	cb.items[cb.tail] = zero // clear for GC
	cb.tail = (cb.tail + 1) % cb.capacity
	cb.size--

	cb.stats.Read()
	cb.stats.UpdateSize(int64(cb.size))

	return item, true
}

// ReadBatch retrieves and removes up to max items from the buffer.
func (cb *circular[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.size == 0 {
		return nil
	}

	readCount := max
	if readCount > cb.size {
		readCount = cb.size
	}

	result := make([]T, readCount)
	var zero T

	for i := 0; i < readCount; i++ {
		result[i] = cb.items[cb.tail]
		cb.items[cb.tail] = zero
		cb.tail = (cb.tail + 1) % cb.capacity
		cb.size--

		cb.stats.Read()
	}

	cb.stats.UpdateSize(int64(cb.size))

	return result
}

// Peek retrieves one item without removing it.
func (cb *circular[T]) Peek() (T, bool) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	var zero T

	if cb.size == 0 {
		return zero, false
	}

	return cb.items[cb.tail], true
}

// Size returns the current number of items in the buffer.
func (cb *circular[T]) Size() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.size
}

// Capacity returns the maximum number of items the buffer can hold.
func (cb *circular[T]) Capacity() int {
	return cb.capacity // immutable, no lock needed
}

// IsFull returns true if the buffer is at capacity.
func (cb *circular[T]) IsFull() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.size == cb.capacity
}

// IsEmpty returns true if the buffer contains no items.
func (cb *circular[T]) IsEmpty() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.size == 0
}

// Clear removes all items from the buffer.
func (cb *circular[T]) Clear() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var zero T

	if cb.opts.dropCallback != nil {
		itemsToDrop := make([]T, cb.size)
		for i := 0; i < cb.size; i++ {
			idx := (cb.tail + i) % cb.capacity
			itemsToDrop[i] = cb.items[idx]
		}
		defer func() {
			for _, item := range itemsToDrop {
				cb.opts.dropCallback(item)
			}
		}()
	}

	for i := 0; i < cb.capacity; i++ {
		cb.items[i] = zero
	}

	cb.head = 0
	cb.tail = 0
	cb.size = 0

	cb.stats.UpdateSize(0)
}

// Stats returns buffer statistics.
func (cb *circular[T]) Stats() *Statistics {
	return cb.stats
}

// Close shuts down the buffer.
func (cb *circular[T]) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.closed = true
	return nil
}
