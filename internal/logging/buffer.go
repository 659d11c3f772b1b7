package logging

import (
	"sync"
	"time"
)

// LogEntry is one record as kept for the logs endpoint.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent entries and numbers them. Sequence numbers
// start at 1 and keep counting after old entries are evicted, so a reader can
// resume with Since.
type RingBuffer struct {
	mu      sync.RWMutex
	slots   []LogEntry
	next    uint64
	evicted uint64
}

// NewRingBuffer returns a buffer retaining at most capacity entries.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{slots: make([]LogEntry, 0, capacity), next: 1}
}

// Append stores entry under the next sequence number and returns it.
func (rb *RingBuffer) Append(entry LogEntry) LogEntry {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	entry.Seq = rb.next
	rb.next++

	if len(rb.slots) < cap(rb.slots) {
		rb.slots = append(rb.slots, entry)
		return entry
	}
	rb.slots[rb.evicted%uint64(cap(rb.slots))] = entry
	rb.evicted++
	return entry
}

// ReadAll returns the retained entries, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.Since(0)
}

// Since returns retained entries with a sequence number above seq.
func (rb *RingBuffer) Since(seq uint64) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	n := len(rb.slots)
	if n == 0 {
		return nil
	}
	oldest := rb.next - uint64(n)
	skip := 0
	if seq >= oldest {
		skip = int(seq - oldest + 1)
	}
	if skip >= n {
		return nil
	}

	out := make([]LogEntry, 0, n-skip)
	start := int(rb.evicted % uint64(cap(rb.slots)))
	for i := skip; i < n; i++ {
		out = append(out, rb.slots[(start+i)%n])
	}
	return out
}

// Len returns the number of retained entries.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.slots)
}

// LastSeq is the sequence number of the newest entry, 0 when empty.
func (rb *RingBuffer) LastSeq() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.next - 1
}
