// Package backfill enriches thin book records in the background by
// re-fetching them from providers at a bounded rate.
package backfill

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

const (
	MinPriority = 1
	MaxPriority = 10

	// DefaultPriority is used for work that nobody is waiting on.
	DefaultPriority = 5
)

// Task is a single provider record to fetch. Lower priorities run first.
type Task struct {
	Source     string    `json:"source"`
	SourceID   string    `json:"source_id"`
	Priority   int       `json:"priority"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	seq uint64
}

func (t *Task) key() string {
	return t.Source + ":" + t.SourceID
}

func clampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// Queue is an in-memory priority queue that holds at most one task per
// (source, source id) from enqueue until the task is completed or dropped.
type Queue struct {
	mu       sync.Mutex
	tasks    taskHeap
	capacity int
	seq      uint64

	inFlight      sync.Map
	inFlightCount atomic.Int64

	// ready has room for one wakeup; Take rechecks the heap after each.
	ready chan struct{}
}

func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Enqueue adds a task. It returns false when the same record is already in
// flight or the queue is full.
func (q *Queue) Enqueue(source, sourceID string, priority int) bool {
	t := &Task{
		Source:     source,
		SourceID:   sourceID,
		Priority:   clampPriority(priority),
		EnqueuedAt: time.Now(),
	}
	key := t.key()
	if _, loaded := q.inFlight.LoadOrStore(key, struct{}{}); loaded {
		return false
	}
	q.inFlightCount.Add(1)

	if !q.push(t) {
		q.release(key)
		return false
	}
	return true
}

// Retry puts a task back. Its in-flight marker is kept. If the queue has
// filled up in the meantime the task is dropped and false is returned.
func (q *Queue) Retry(t *Task) bool {
	if !q.push(t) {
		q.release(t.key())
		return false
	}
	return true
}

// MarkCompleted releases the task's in-flight marker so the record can be
// enqueued again.
func (q *Queue) MarkCompleted(t *Task) {
	q.release(t.key())
}

func (q *Queue) release(key string) {
	if _, loaded := q.inFlight.LoadAndDelete(key); loaded {
		q.inFlightCount.Add(-1)
	}
}

func (q *Queue) push(t *Task) bool {
	q.mu.Lock()
	if q.tasks.Len() >= q.capacity {
		q.mu.Unlock()
		return false
	}
	q.seq++
	t.seq = q.seq
	heap.Push(&q.tasks, t)
	q.mu.Unlock()

	q.signal()
	return true
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Take blocks until a task is available or the context is done.
func (q *Queue) Take(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if q.tasks.Len() > 0 {
			t := heap.Pop(&q.tasks).(*Task)
			more := q.tasks.Len() > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return t, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		case <-q.ready:
		}
	}
}

// Len is the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Len()
}

// InFlight is the number of records queued or being processed.
func (q *Queue) InFlight() int {
	return int(q.inFlightCount.Load())
}

// Contains reports whether a record is in flight.
func (q *Queue) Contains(source, sourceID string) bool {
	_, ok := q.inFlight.Load(source + ":" + sourceID)
	return ok
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(*Task)) }

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
