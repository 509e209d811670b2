package core

import "context"

// sequentialBackend is the small-scale solver: one logical thread
// walks gravity, integration, lifecycle, collision, and debris
// generation strictly in order within a tick.
type sequentialBackend struct {
	store    *Store
	physics  PhysicsParams
	detector *Detector
	breakup  *BreakupModel
}

func (b *sequentialBackend) kind() BackendKind { return BackendSequential }

func (b *sequentialBackend) step(ctx context.Context, dtSeconds, simTime float64) (TickResult, error) {
	n, h := b.physics.subSteps(dtSeconds)
	result := TickResult{SubSteps: n, DtSeconds: h * float64(n)}
	if n == 0 {
		return result, nil
	}

	life := lifecycle{store: b.store}
	objects := b.store.slice()

	for sub := 0; sub < n; sub++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		for i := range objects {
			obj := &objects[i]
			if !obj.Alive {
				continue
			}
			outcome := b.physics.advance(obj, h)
			result.Removals = life.resolve(obj, outcome, result.Removals)
		}
	}

	events := b.detector.Detect(b.store, h)
	result.Collisions = events
	result.CollisionCount = len(events)
	for _, ev := range events {
		runBreakup(b.store, b.breakup, ev, simTime, &result)
	}
	return result, nil
}

var _ backend = (*sequentialBackend)(nil)
