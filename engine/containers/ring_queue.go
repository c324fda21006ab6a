package containers

// RingQueue is a FIFO queue backed by a circular buffer that grows on
// demand. The zero value is not usable; create instances with NewRingQueue.
type RingQueue[T any] struct {
	data       []T
	readIndex  int
	writeIndex int
	count      int
}

// NewRingQueue creates a queue with the given initial capacity.
func NewRingQueue[T any](capacity int) *RingQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingQueue[T]{
		data: make([]T, capacity),
	}
}

// Enqueue adds an element to the back of the queue, growing the backing
// buffer when full.
func (rq *RingQueue[T]) Enqueue(value T) {
	if rq.count == len(rq.data) {
		rq.grow()
	}
	rq.data[rq.writeIndex] = value
	rq.writeIndex = (rq.writeIndex + 1) % len(rq.data)
	rq.count++
}

// Dequeue removes and returns the front element in the queue.
func (rq *RingQueue[T]) Dequeue() (T, bool) {
	var zero T
	if rq.count == 0 {
		return zero, false
	}
	value := rq.data[rq.readIndex]
	rq.data[rq.readIndex] = zero
	rq.readIndex = (rq.readIndex + 1) % len(rq.data)
	rq.count--
	return value, true
}

// Peek returns the front element without removing it.
func (rq *RingQueue[T]) Peek() (T, bool) {
	var zero T
	if rq.count == 0 {
		return zero, false
	}
	return rq.data[rq.readIndex], true
}

// RemoveFunc removes and returns the first element for which match returns
// true, preserving the order of the remaining elements.
func (rq *RingQueue[T]) RemoveFunc(match func(T) bool) (T, bool) {
	var zero T
	for i := 0; i < rq.count; i++ {
		idx := (rq.readIndex + i) % len(rq.data)
		if !match(rq.data[idx]) {
			continue
		}
		removed := rq.data[idx]
		// Shift everything behind the hole forward by one slot.
		for j := i; j < rq.count-1; j++ {
			from := (rq.readIndex + j + 1) % len(rq.data)
			to := (rq.readIndex + j) % len(rq.data)
			rq.data[to] = rq.data[from]
		}
		last := (rq.readIndex + rq.count - 1) % len(rq.data)
		rq.data[last] = zero
		rq.writeIndex = last
		rq.count--
		return removed, true
	}
	return zero, false
}

// Len returns the number of queued elements.
func (rq *RingQueue[T]) Len() int {
	return rq.count
}

// IsEmpty checks if the queue is empty.
func (rq *RingQueue[T]) IsEmpty() bool {
	return rq.count == 0
}

func (rq *RingQueue[T]) grow() {
	data := make([]T, len(rq.data)*2)
	for i := 0; i < rq.count; i++ {
		data[i] = rq.data[(rq.readIndex+i)%len(rq.data)]
	}
	rq.data = data
	rq.readIndex = 0
	rq.writeIndex = rq.count
}
