// Package hls feeds rendered frames to an ffmpeg HLS encoder and serves the
// playlist and segments it writes.
package hls

import (
	"sync/atomic"

	"github.com/enriquebris/goconcurrentqueue"

	"github.com/Rei0925/MFWeb/internal/frame"
	"github.com/Rei0925/MFWeb/internal/metrics"
)

// DefaultQueueCapacity bounds frames waiting for the encoder.
const DefaultQueueCapacity = 100

// Queue is a bounded FIFO of frames. Offer never blocks: when full the new
// frame is dropped and counted.
type Queue struct {
	fifo    *goconcurrentqueue.FixedFIFO
	dropped atomic.Uint64
}

// NewQueue creates a queue holding at most capacity frames.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{fifo: goconcurrentqueue.NewFixedFIFO(capacity)}
}

// Offer enqueues f, reporting false if the queue was full.
func (q *Queue) Offer(f *frame.Frame) bool {
	if err := q.fifo.Enqueue(f); err != nil {
		q.dropped.Add(1)
		metrics.IncFramesDropped()
		return false
	}
	metrics.SetQueueDepth(q.fifo.GetLen())
	return true
}

// Poll dequeues the oldest frame without waiting.
func (q *Queue) Poll() (*frame.Frame, bool) {
	v, err := q.fifo.Dequeue()
	if err != nil {
		return nil, false
	}
	metrics.SetQueueDepth(q.fifo.GetLen())
	f, ok := v.(*frame.Frame)
	return f, ok
}

// Len returns the number of queued frames.
func (q *Queue) Len() int { return q.fifo.GetLen() }

// Cap returns the capacity.
func (q *Queue) Cap() int { return q.fifo.GetCap() }

// Dropped counts frames rejected because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Drain discards every queued frame and returns how many there were.
func (q *Queue) Drain() int {
	n := 0
	for {
		if _, err := q.fifo.Dequeue(); err != nil {
			break
		}
		n++
	}
	metrics.SetQueueDepth(0)
	return n
}
