package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/orbitalfoundry/debris-simulator/model"
)

func snapshotByID(engine *Engine) []model.RenderObject {
	objs := engine.Snapshot()
	sort.Slice(objs, func(i, j int) bool { return objs[i].ID < objs[j].ID })
	return objs
}

func TestBackendsAgreeOnPurePropagation(t *testing.T) {
	build := func(kind BackendKind) *Engine {
		cfg := DefaultConfig()
		cfg.Capacity = 100
		cfg.Seed = 13
		cfg.Backend = kind
		cfg.Workers = 4
		engine := newTestEngine(t, cfg)
		// Sparse population: no collisions, so the comparison covers
		// integration and lifecycle only.
		if _, err := engine.Populate(50, DefaultClassDistribution()); err != nil {
			t.Fatalf("Populate: %v", err)
		}
		return engine
	}

	seq := build(BackendSequential)
	par := build(BackendParallel)

	for i := 0; i < 20; i++ {
		rs, err := seq.Step(context.Background(), 1)
		if err != nil {
			t.Fatalf("sequential step %d: %v", i, err)
		}
		rp, err := par.Step(context.Background(), 1)
		if err != nil {
			t.Fatalf("parallel step %d: %v", i, err)
		}
		if rs.SubSteps != rp.SubSteps || rs.DtSeconds != rp.DtSeconds {
			t.Fatalf("step %d shape differs: seq (%d, %g) vs par (%d, %g)",
				i, rs.SubSteps, rs.DtSeconds, rp.SubSteps, rp.DtSeconds)
		}
	}

	a := snapshotByID(seq)
	b := snapshotByID(par)
	if len(a) != len(b) {
		t.Fatalf("populations diverged: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("object %d: IDs differ (%v vs %v)", i, a[i].ID, b[i].ID)
		}
		// Both backends run the same sub-step on the same float inputs,
		// so the states must match bitwise, not just approximately.
		if a[i].Position != b[i].Position {
			t.Fatalf("object %v positions differ: %v vs %v", a[i].ID, a[i].Position, b[i].Position)
		}
	}
}

func TestDispatchFence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 100
	cfg.Seed = 13
	cfg.Backend = BackendParallel
	engine := newTestEngine(t, cfg)
	if _, err := engine.Populate(50, DefaultClassDistribution()); err != nil {
		t.Fatalf("Populate: %v", err)
	}

	ctx := context.Background()
	pending, err := engine.Dispatch(ctx, 1)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	// The in-flight step fences off dispatches and mutating commands.
	if _, err := engine.Dispatch(ctx, 1); !errors.Is(err, ErrConcurrencyViolation) {
		t.Fatalf("second Dispatch err = %v, want ErrConcurrencyViolation", err)
	}
	if _, err := engine.Populate(1, DefaultClassDistribution()); !errors.Is(err, ErrConcurrencyViolation) {
		t.Fatalf("Populate during step err = %v, want ErrConcurrencyViolation", err)
	}
	if err := engine.TriggerCascade(); !errors.Is(err, ErrConcurrencyViolation) {
		t.Fatalf("TriggerCascade during step err = %v, want ErrConcurrencyViolation", err)
	}

	result, err := pending.Await()
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if result.SubSteps != 1 {
		t.Fatalf("sub-steps = %d, want 1", result.SubSteps)
	}

	// Awaiting releases the fence.
	if _, err := engine.Step(ctx, 1); err != nil {
		t.Fatalf("Step after Await: %v", err)
	}
}

func TestReadsWaitForInFlightStep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 5000
	cfg.Seed = 21
	cfg.Backend = BackendParallel
	cfg.Workers = 4
	engine := newTestEngine(t, cfg)
	if _, err := engine.Populate(5000, DefaultClassDistribution()); err != nil {
		t.Fatalf("Populate: %v", err)
	}

	// A long tick (600 sub-steps) keeps the workers busy while the
	// readers race it.
	pending, err := engine.Dispatch(context.Background(), 600)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	// Reads taken while the step is in flight must wait for it and
	// observe post-step state, never a half-integrated store.
	var wg sync.WaitGroup
	simTimes := make([]float64, 4)
	for i := range simTimes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stats := engine.Stats()
			simTimes[i] = stats.SimTime
			if got := len(engine.Snapshot()); got != stats.ActiveObjects {
				t.Errorf("snapshot has %d objects, stats reports %d", got, stats.ActiveObjects)
			}
		}(i)
	}

	result, err := pending.Await()
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	wg.Wait()

	for i, ts := range simTimes {
		if ts != result.DtSeconds {
			t.Errorf("reader %d saw sim time %g, want post-step %g", i, ts, result.DtSeconds)
		}
	}
	// The step the readers resolved is the same single step.
	if got := engine.SimTime(); got != result.DtSeconds {
		t.Fatalf("sim time = %g, want %g", got, result.DtSeconds)
	}
}

func TestAwaitIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 10
	cfg.Seed = 13
	cfg.Backend = BackendParallel
	engine := newTestEngine(t, cfg)

	pending, err := engine.Dispatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	first, err := pending.Await()
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	again, err := pending.Await()
	if err != nil {
		t.Fatalf("second Await: %v", err)
	}
	if first.SubSteps != again.SubSteps || first.DtSeconds != again.DtSeconds {
		t.Fatal("repeated Await returned a different result")
	}
	// Sim time advanced once, not twice.
	if got := engine.SimTime(); got != first.DtSeconds {
		t.Fatalf("sim time = %g, want %g", got, first.DtSeconds)
	}
}

func TestParallelCascadeMatchesAccounting(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 500
	cfg.Seed = 3
	cfg.Backend = BackendParallel
	cfg.Workers = 4
	engine := newTestEngine(t, cfg)

	allocSatellite(t, engine.store, model.Vec3{X: 7000})
	allocSatellite(t, engine.store, model.Vec3{X: -7002})

	if err := engine.TriggerCascade(); err != nil {
		t.Fatalf("TriggerCascade: %v", err)
	}
	result, err := engine.Step(context.Background(), 1)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if result.CollisionCount != 1 {
		t.Fatalf("collision count = %d, want 1", result.CollisionCount)
	}
	if result.FragmentsCreated < 1 {
		t.Fatal("staged collision created no fragments")
	}
	stats := engine.Stats()
	if stats.SatelliteCount != 0 {
		t.Fatalf("satellites after collision = %d, want 0", stats.SatelliteCount)
	}
	if stats.DebrisCount != result.FragmentsCreated {
		t.Fatalf("debris = %d, fragments created = %d", stats.DebrisCount, result.FragmentsCreated)
	}
}

func TestParallelBreakupCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 1000
	cfg.Seed = 9
	cfg.Backend = BackendParallel
	cfg.Workers = 4
	cfg.MaxBreakupEventsPerTick = 1

	engine := newTestEngine(t, cfg)

	// Two independent head-on pairs in distinct cells: two collisions,
	// but only the first gets full debris synthesis.
	allocAt(t, engine.store, model.Vec3{X: 7050.000}, model.Vec3{X: 7.5})
	allocAt(t, engine.store, model.Vec3{X: 7050.004}, model.Vec3{X: -7.5})
	allocAt(t, engine.store, model.Vec3{X: 7250.000}, model.Vec3{X: 7.5})
	allocAt(t, engine.store, model.Vec3{X: 7250.004}, model.Vec3{X: -7.5})

	result, err := engine.Step(context.Background(), 0.001)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if result.CollisionCount != 2 {
		t.Fatalf("collision count = %d, want 2", result.CollisionCount)
	}
	// All four parents are consumed either way.
	if got := engine.Stats().SatelliteCount; got != 0 {
		t.Fatalf("satellites remaining = %d, want 0", got)
	}
	// A ~15 km/s impact wants ~150 fragments. The uncapped event gets
	// them; the capped one only reports the shortfall.
	if result.FragmentsCreated < 140 || result.FragmentsCreated > 160 {
		t.Fatalf("fragments created = %d, want ~150 from one event", result.FragmentsCreated)
	}
	if result.FragmentsDropped < 140 {
		t.Fatalf("fragments dropped = %d, want ~150 from the capped event", result.FragmentsDropped)
	}
	if got := engine.Stats().DebrisCount; got != result.FragmentsCreated {
		t.Fatalf("debris = %d, fragments created = %d", got, result.FragmentsCreated)
	}
}
