package containers

import "errors"

var (
	ErrQueueFull  = errors.New("queue is full")
	ErrQueueEmpty = errors.New("queue is empty")
)

// RingQueue is a fixed capacity FIFO.
type RingQueue[T any] struct {
	data       []T
	size       int
	readIndex  int
	writeIndex int
	count      int
}

// Create a new RingQueue
func NewRingQueue[T any](size int) *RingQueue[T] {
	return &RingQueue[T]{
		data: make([]T, size),
		size: size,
	}
}

// Enqueue adds an element to the queue
func (rq *RingQueue[T]) Enqueue(value T) error {
	if rq.IsFull() {
		return ErrQueueFull
	}

	rq.data[rq.writeIndex] = value
	rq.writeIndex = (rq.writeIndex + 1) % rq.size
	rq.count++
	return nil
}

// Dequeue removes and returns the front element in the queue
func (rq *RingQueue[T]) Dequeue() (T, error) {
	var zero T
	if rq.IsEmpty() {
		return zero, ErrQueueEmpty
	}

	value := rq.data[rq.readIndex]
	rq.data[rq.readIndex] = zero
	rq.readIndex = (rq.readIndex + 1) % rq.size
	rq.count--
	return value, nil
}

// Peek returns the front element without removing it
func (rq *RingQueue[T]) Peek() (T, error) {
	if rq.IsEmpty() {
		var zero T
		return zero, ErrQueueEmpty
	}
	return rq.data[rq.readIndex], nil
}

// IsEmpty checks if the queue is empty
func (rq *RingQueue[T]) IsEmpty() bool {
	return rq.count == 0
}

// IsFull checks if the queue is full
func (rq *RingQueue[T]) IsFull() bool {
	return rq.count == rq.size
}

// Len returns the number of queued elements
func (rq *RingQueue[T]) Len() int {
	return rq.count
}

// Ring is a fixed set of elements visited round robin. The cursor only moves
// when Advance is called.
type Ring[T any] struct {
	items  []T
	cursor uint64
}

func NewRing[T any](items []T) *Ring[T] {
	return &Ring[T]{items: items}
}

// Current returns the index and element under the cursor.
func (r *Ring[T]) Current() (int, T) {
	i := int(r.cursor % uint64(len(r.items)))
	return i, r.items[i]
}

// Advance moves the cursor to the next element.
func (r *Ring[T]) Advance() {
	r.cursor++
}

// Counter returns how many times the cursor moved.
func (r *Ring[T]) Counter() uint64 {
	return r.cursor
}

// At returns the i-th element.
func (r *Ring[T]) At(i int) T {
	return r.items[i]
}

// Len returns the number of elements in the ring.
func (r *Ring[T]) Len() int {
	return len(r.items)
}
