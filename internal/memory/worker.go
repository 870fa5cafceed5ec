package memory

import (
	"context"
	"sync"

	"github.com/metastable-lab/roleplay/internal/persistence/store"
	"github.com/metastable-lab/roleplay/internal/rlog"
	"github.com/metastable-lab/roleplay/internal/roleplay"
)

// keyedMutex serializes work per key while letting distinct keys run in
// parallel: per (user, character) the reconciler runs one task at a time,
// guarded by a process-local mutex.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) *sync.Mutex {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m
}

// Worker drains the queue, running each task through the Updater. Tasks for
// the same (user, character) serialize; everything else runs concurrently
// up to the pool size.
type Worker struct {
	store   store.Store
	updater *Updater
	queue   *Queue
	keyed   *keyedMutex
	pool    int
}

// NewWorker wires a Worker with the given concurrency (minimum 1).
func NewWorker(st store.Store, updater *Updater, queue *Queue, pool int) *Worker {
	if pool < 1 {
		pool = 1
	}
	return &Worker{store: st, updater: updater, queue: queue, keyed: newKeyedMutex(), pool: pool}
}

// Run consumes tasks until ctx is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.pool; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task, ok := <-w.queue.Tasks():
					if !ok {
						return
					}
					w.process(ctx, task)
				}
			}
		}()
	}
	wg.Wait()
}

func (w *Worker) process(ctx context.Context, task roleplay.MemoryTask) {
	key, err := w.serializationKey(ctx, task)
	if err != nil {
		rlog.LoggerWithTrace(ctx).Warn().
			Str("component", "memory.worker").
			Str("session_id", task.SessionID).
			Err(err).
			Msg("memory task dropped: session resolution failed")
		return
	}
	m := w.keyed.lock(key)
	defer m.Unlock()

	if err := w.updater.UpdateMemory(ctx, task); err != nil {
		rlog.LoggerWithTrace(ctx).Error().
			Str("component", "memory.worker").
			Str("session_id", task.SessionID).
			Err(err).
			Msg("memory update failed")
	}
}

// serializationKey resolves the task's (user, character) pair.
func (w *Worker) serializationKey(ctx context.Context, task roleplay.MemoryTask) (string, error) {
	var key string
	err := w.store.WithTx(ctx, func(tx store.Tx) error {
		session, err := tx.GetSession(ctx, task.SessionID)
		if err != nil {
			return err
		}
		key = session.OwnerID + "/" + session.CharacterID
		return nil
	})
	return key, err
}
