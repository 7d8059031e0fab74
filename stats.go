package potency

import "sync/atomic"

// Stats is a point-in-time snapshot of a store's counters. Namespaced
// handles derived from one store share counters.
type Stats struct {
	Hits      uint64 // served from the backend
	Misses    uint64 // not found; a computation was started
	Computes  uint64 // computations that succeeded
	Failures  uint64 // failed calls of any kind
	Coalesced uint64 // callers that joined another caller's computation
}

type counters struct {
	hits, misses, computes, failures, coalesced atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Computes:  c.computes.Load(),
		Failures:  c.failures.Load(),
		Coalesced: c.coalesced.Load(),
	}
}
