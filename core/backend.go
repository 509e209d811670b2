package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/orbitalfoundry/debris-simulator/model"
)

// BackendKind selects the concurrency strategy used to advance the
// simulation. Both backends evaluate the same physical model.
type BackendKind int

const (
	// BackendSequential processes every object in a single-threaded
	// loop per tick, with full collision and debris richness.
	// Appropriate up to roughly 10⁴ objects.
	BackendSequential BackendKind = iota
	// BackendParallel shards the integrate stage across workers over
	// the flat state buffer with simplified collision bookkeeping.
	// Appropriate from 10⁵ up to ~10⁶ objects.
	BackendParallel
)

// String returns the configuration name of the backend kind.
func (k BackendKind) String() string {
	switch k {
	case BackendSequential:
		return "sequential"
	case BackendParallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// ParseBackendKind resolves a configuration string to a backend kind.
func ParseBackendKind(s string) (BackendKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential", "":
		return BackendSequential, nil
	case "parallel":
		return BackendParallel, nil
	default:
		return 0, fmt.Errorf("%w: unknown backend kind %q", ErrInitialization, s)
	}
}

// TickResult reports everything one step produced for collaborators:
// effects, telemetry, and cascade accounting all read from here.
type TickResult struct {
	// SubSteps is how many integrator sub-steps the tick was split into.
	SubSteps int

	// DtSeconds is the simulated time actually advanced (after
	// multiplier and clamping).
	DtSeconds float64

	// Collisions are the captured collision events. On the parallel
	// backend this list may be capped; CollisionCount carries the true
	// total.
	Collisions     []model.CollisionEvent
	CollisionCount int

	// Removals covers burnups, numerical anomalies, and consumed
	// collision parents.
	Removals []model.RemovalEvent

	// FragmentsCreated / FragmentsDropped account for debris synthesis
	// and the capacity-truncated remainder.
	FragmentsCreated int
	FragmentsDropped int
}

// backend advances the store by one tick. Implementations own no
// state of their own beyond scratch buffers; the store, physics,
// detector, and breakup model are shared so both backends stay
// physically identical.
type backend interface {
	kind() BackendKind
	step(ctx context.Context, dtSeconds, simTime float64) (TickResult, error)
}

// runBreakup consumes a collision's parents and fills freed slots with
// synthesized fragments. Shared by both backends so debris policy
// cannot drift between them.
func runBreakup(store *Store, breakup *BreakupModel, ev model.CollisionEvent, simTime float64, result *TickResult) {
	if a, ok := store.Get(ev.A); ok {
		result.Removals = (lifecycle{store: store}).consume(a, result.Removals)
	}
	if b, ok := store.Get(ev.B); ok {
		result.Removals = (lifecycle{store: store}).consume(b, result.Removals)
	}

	fragments, dropped := breakup.Synthesize(ev, store.FreeSlots(), simTime)
	for _, frag := range fragments {
		if _, err := store.Allocate(frag); err != nil {
			// Free slots were recounted just above; treat any residual
			// shortfall as additional truncation.
			dropped++
			continue
		}
		result.FragmentsCreated++
	}
	result.FragmentsDropped += dropped
}
