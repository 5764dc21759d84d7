package strike

import (
	"log"
	"sync"
)

// DefaultCapacity bounds the buffer when no capacity is configured.
const DefaultCapacity = 512

// Buffer is a fixed-capacity FIFO of records. When full, the oldest record
// is dropped. Push, Swap and Requeue each run in one critical section, so
// no record is lost or duplicated across a drain.
type Buffer struct {
	mu       sync.Mutex
	buf      []Record
	capacity int
	head     int // next write position
	count    int
	dropped  int
	overflow bool // true if any record was dropped since last swap
}

// NewBuffer creates a buffer holding at most capacity records.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		buf:      make([]Record, capacity),
		capacity: capacity,
	}
}

// Push appends a record. Called from the interrupt handler.
func (b *Buffer) Push(r Record) {
	b.mu.Lock()
	b.push(r)
	b.mu.Unlock()
}

func (b *Buffer) push(r Record) {
	if b.count == b.capacity {
		if !b.overflow {
			log.Printf("strike: buffer full (%d records), dropping oldest", b.capacity)
			b.overflow = true
		}
		// Overwrite oldest: head is already pointing at it
		b.buf[b.head] = r
		b.head = (b.head + 1) % b.capacity
		b.dropped++
		return
	}
	b.buf[b.head] = r
	b.head = (b.head + 1) % b.capacity
	b.count++
}

// Swap removes and returns every buffered record in insertion order,
// leaving the buffer empty. Returns nil when empty.
func (b *Buffer) Swap() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drainAll()
}

func (b *Buffer) drainAll() []Record {
	if b.count == 0 {
		return nil
	}
	result := make([]Record, b.count)
	// Oldest item is at (head - count) mod capacity
	start := (b.head - b.count + b.capacity) % b.capacity
	for i := 0; i < b.count; i++ {
		result[i] = b.buf[(start+i)%b.capacity]
		b.buf[(start+i)%b.capacity] = Record{}
	}
	b.count = 0
	b.head = 0
	b.overflow = false
	return result
}

// Requeue puts records from a failed delivery back in front of anything
// pushed since the swap, keeping their original order. If the result
// exceeds capacity the oldest records are dropped.
func (b *Buffer) Requeue(records []Record) {
	if len(records) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	newer := b.drainAll()
	for _, r := range records {
		b.push(r)
	}
	for _, r := range newer {
		b.push(r)
	}
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns how many records were evicted since creation.
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Capacity returns the maximum number of buffered records.
func (b *Buffer) Capacity() int {
	return b.capacity
}
