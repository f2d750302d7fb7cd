package vtex

import "sync/atomic"

// FrameStats holds the streaming counters for one frame. The engine
// resets them in BeginFrame, so a snapshot taken after Update describes
// exactly that frame's work.
type FrameStats struct {
	// Requested is the number of page requests submitted this frame.
	Requested int

	// Uploaded is the number of pages copied into the atlas this frame.
	Uploaded int

	// Evicted is the number of residents displaced this frame.
	Evicted int

	// Hits is the number of feedback samples that resolved to already
	// resident pages.
	Hits int

	// Misses is the number of distinct pages feedback demanded that were
	// not resident.
	Misses int

	// Dropped is the number of loaded pages discarded because their
	// texture was destroyed mid-flight, plus failed provider loads.
	Dropped int

	// Deferred is the number of loaded pages left queued because the
	// upload budget or the cache capacity was exhausted.
	Deferred int

	// Utilization is the occupied fraction of the physical cache at the
	// end of Update.
	Utilization float64
}

// Totals holds lifetime counters. Counters are atomic so they can be
// read from any goroutine while the engine runs.
type Totals struct {
	requested atomic.Uint64
	uploaded  atomic.Uint64
	evicted   atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// TotalsSnapshot is a point-in-time copy of the lifetime counters.
type TotalsSnapshot struct {
	Requested uint64
	Uploaded  uint64
	Evicted   uint64
	Dropped   uint64
	Failed    uint64
}

// Snapshot returns a consistent-enough copy of the counters for
// monitoring. Individual loads are atomic; the set is not.
func (t *Totals) Snapshot() TotalsSnapshot {
	return TotalsSnapshot{
		Requested: t.requested.Load(),
		Uploaded:  t.uploaded.Load(),
		Evicted:   t.evicted.Load(),
		Dropped:   t.dropped.Load(),
		Failed:    t.failed.Load(),
	}
}
