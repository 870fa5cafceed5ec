package memory

import (
	"fmt"
	"sync"

	"github.com/metastable-lab/roleplay/internal/roleplay"
)

// Queue is the in-process memory task queue: tasks ride a shared worker
// pool, enqueued only after the turn commits. Publishing
// never blocks: a full queue is an error the engine logs and moves past.
// The dedup key is (session_id, last_included_message_id) — a task whose
// tail was already accepted is dropped.
type Queue struct {
	ch   chan roleplay.MemoryTask
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewQueue returns a Queue with the given buffer (minimum 1).
func NewQueue(buffer int) *Queue {
	if buffer < 1 {
		buffer = 1
	}
	return &Queue{
		ch:   make(chan roleplay.MemoryTask, buffer),
		seen: make(map[string]struct{}),
	}
}

func dedupKey(t roleplay.MemoryTask) string {
	return t.SessionID + "/" + t.LastMessageID
}

// Publish enqueues a task, deduplicating on (session, tail message).
func (q *Queue) Publish(t roleplay.MemoryTask) error {
	q.mu.Lock()
	key := dedupKey(t)
	if _, dup := q.seen[key]; dup {
		q.mu.Unlock()
		return nil
	}
	q.seen[key] = struct{}{}
	q.mu.Unlock()

	select {
	case q.ch <- t:
		return nil
	default:
		// Leave the key marked: the tail will be covered by a later task
		// for the same session.
		return fmt.Errorf("memory queue full, dropping task for session %s", t.SessionID)
	}
}

// Tasks exposes the consumer side for the worker pool.
func (q *Queue) Tasks() <-chan roleplay.MemoryTask { return q.ch }

// Close stops the queue; pending tasks drain.
func (q *Queue) Close() { close(q.ch) }
