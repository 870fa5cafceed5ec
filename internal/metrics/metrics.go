// Package metrics implements a minimal in-process counter collector for
// the runtime's operational events. There is no exporter wired; callers
// read Snapshot from health or debug surfaces.
package metrics

import "sync/atomic"

// Collector counts the handful of events the Roleplay Engine and Memory
// Pipeline surface: turns processed, regenerations, credits deducted, and
// memory tasks enqueued/processed. It is injected into the Engine rather
// than read from a package-level singleton.
type Collector struct {
	turnsProcessed       atomic.Int64
	regenerations        atomic.Int64
	creditsDeducted      atomic.Int64
	memoryTasksEnqueued  atomic.Int64
	memoryTasksProcessed atomic.Int64
	factsExtracted       atomic.Int64
}

// New returns a zeroed Collector.
func New() *Collector { return &Collector{} }

func (c *Collector) IncTurnsProcessed()         { c.turnsProcessed.Add(1) }
func (c *Collector) IncRegenerations()          { c.regenerations.Add(1) }
func (c *Collector) AddCreditsDeducted(n int64) { c.creditsDeducted.Add(n) }
func (c *Collector) IncMemoryTasksEnqueued()    { c.memoryTasksEnqueued.Add(1) }
func (c *Collector) IncMemoryTasksProcessed()   { c.memoryTasksProcessed.Add(1) }
func (c *Collector) AddFactsExtracted(n int64)  { c.factsExtracted.Add(int64(n)) }

// Snapshot is a point-in-time read of all counters, used by health/debug
// endpoints and tests.
type Snapshot struct {
	TurnsProcessed       int64
	Regenerations        int64
	CreditsDeducted      int64
	MemoryTasksEnqueued  int64
	MemoryTasksProcessed int64
	FactsExtracted       int64
}

func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		TurnsProcessed:       c.turnsProcessed.Load(),
		Regenerations:        c.regenerations.Load(),
		CreditsDeducted:      c.creditsDeducted.Load(),
		MemoryTasksEnqueued:  c.memoryTasksEnqueued.Load(),
		MemoryTasksProcessed: c.memoryTasksProcessed.Load(),
		FactsExtracted:       c.factsExtracted.Load(),
	}
}
