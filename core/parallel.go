package core

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/orbitalfoundry/debris-simulator/model"
)

// parallelBackend is the large-scale solver: the integrate stage is
// sharded across workers over the flat state buffer (each worker
// writes only its own slots), and the collision narrow phase claims
// pairs through atomic flags. Debris synthesis is capped per tick;
// collisions past the cap still consume their parents and are counted,
// but produce no fragments. That trade keeps a ~10⁶-object population
// tractable.
type parallelBackend struct {
	store    *Store
	physics  PhysicsParams
	detector *Detector
	breakup  *BreakupModel

	workers          int
	maxBreakupEvents int

	// busy is the single-buffer fence: it is taken by dispatch and only
	// released once the matching future has been awaited, so a new step
	// can never write the buffer while a read-back is in flight.
	busy atomic.Bool

	// scratch reused across ticks.
	outcomes []stepOutcome
	claimed  []uint32
}

// newParallelBackend wires the backend around the shared model pieces.
func newParallelBackend(store *Store, physics PhysicsParams, detector *Detector, breakup *BreakupModel, workers, maxBreakupEvents int) *parallelBackend {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if maxBreakupEvents <= 0 {
		maxBreakupEvents = 64
	}
	return &parallelBackend{
		store:            store,
		physics:          physics,
		detector:         detector,
		breakup:          breakup,
		workers:          workers,
		maxBreakupEvents: maxBreakupEvents,
		outcomes:         make([]stepOutcome, store.Capacity()),
		claimed:          make([]uint32, store.Capacity()),
	}
}

func (b *parallelBackend) kind() BackendKind { return BackendParallel }

// StepFuture is the pending result of a dispatched parallel tick.
// Await blocks until the compute stage has fully completed, then
// releases the backend for the next dispatch.
type StepFuture struct {
	done    chan struct{}
	release sync.Once
	backend *parallelBackend
	result  TickResult
	err     error
}

// Await blocks until the dispatched tick completes and returns its
// result. Await may be called more than once; later calls return the
// same result.
func (f *StepFuture) Await() (TickResult, error) {
	<-f.done
	f.release.Do(func() { f.backend.busy.Store(false) })
	return f.result, f.err
}

// dispatch starts one tick of compute. It fails with
// ErrConcurrencyViolation when a prior dispatch has not been awaited;
// the request is rejected, never queued.
func (b *parallelBackend) dispatch(ctx context.Context, dtSeconds, simTime float64) (*StepFuture, error) {
	if !b.busy.CompareAndSwap(false, true) {
		return nil, ErrConcurrencyViolation
	}
	fut := &StepFuture{done: make(chan struct{}), backend: b}
	go func() {
		defer close(fut.done)
		fut.result, fut.err = b.run(ctx, dtSeconds, simTime)
	}()
	return fut, nil
}

// step is the synchronous form: dispatch immediately followed by await.
func (b *parallelBackend) step(ctx context.Context, dtSeconds, simTime float64) (TickResult, error) {
	fut, err := b.dispatch(ctx, dtSeconds, simTime)
	if err != nil {
		return TickResult{}, err
	}
	return fut.Await()
}

func (b *parallelBackend) run(ctx context.Context, dtSeconds, simTime float64) (TickResult, error) {
	n, h := b.physics.subSteps(dtSeconds)
	result := TickResult{SubSteps: n, DtSeconds: h * float64(n)}
	if n == 0 {
		return result, nil
	}

	objects := b.store.slice()
	life := lifecycle{store: b.store}

	for sub := 0; sub < n; sub++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		// Integrate stage: embarrassingly parallel, each worker reads
		// and writes only its own slice of the buffer.
		b.parallelFor(len(objects), func(start, end int) {
			for i := start; i < end; i++ {
				if !objects[i].Alive {
					b.outcomes[i] = outcomeActive
					continue
				}
				b.outcomes[i] = b.physics.advance(&objects[i], h)
			}
		})

		// Lifecycle transitions applied after the join: slot frees
		// mutate shared store bookkeeping and must happen-after the
		// compute stage.
		for i := range objects {
			if objects[i].Alive && b.outcomes[i] != outcomeActive {
				result.Removals = life.resolve(&objects[i], b.outcomes[i], result.Removals)
			}
		}
	}

	b.detectParallel(h, &result)

	// Breakup stays sequential: fragment allocation mutates the free
	// list. Only the first maxBreakupEvents events get fragments; the
	// remainder are counted and consumed without debris.
	for i, ev := range result.Collisions {
		if i < b.maxBreakupEvents {
			runBreakup(b.store, b.breakup, ev, simTime, &result)
			continue
		}
		if a, ok := b.store.Get(ev.A); ok {
			result.Removals = life.consume(a, result.Removals)
		}
		if bb, ok := b.store.Get(ev.B); ok {
			result.Removals = life.consume(bb, result.Removals)
		}
		result.FragmentsDropped += b.breakup.FragmentYield(ev.RelativeSpeed)
	}
	return result, nil
}

// detectParallel runs the broad phase single-threaded (it builds the
// hash map) and shards the narrow phase across workers. Pair
// exclusivity is enforced with compare-and-swap claims on a shared
// flag buffer; workers never write another worker's object slot.
func (b *parallelBackend) detectParallel(h float64, result *TickResult) {
	b.detector.rebuild(b.store)

	buckets := make([][]int32, 0, len(b.detector.cells))
	for _, bucket := range b.detector.cells {
		if len(bucket) >= 2 {
			buckets = append(buckets, bucket)
		}
	}
	if len(buckets) == 0 {
		return
	}

	for i := range b.claimed {
		b.claimed[i] = 0
	}

	var collisionCount atomic.Int64
	perWorker := make([][]model.CollisionEvent, b.workers)

	var wg sync.WaitGroup
	for w := 0; w < b.workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			var events []model.CollisionEvent
			for bi := w; bi < len(buckets); bi += b.workers {
				events = b.scanBucket(buckets[bi], h, &collisionCount, events)
			}
			perWorker[w] = events
		}(w)
	}
	wg.Wait()

	for _, events := range perWorker {
		result.Collisions = append(result.Collisions, events...)
	}
	result.CollisionCount = int(collisionCount.Load())
}

// scanBucket narrow-phase tests one bucket, claiming each colliding
// pair atomically so an object consumed by one collision cannot be
// reused by another in the same tick.
func (b *parallelBackend) scanBucket(bucket []int32, h float64, counter *atomic.Int64, events []model.CollisionEvent) []model.CollisionEvent {
	for i := 0; i < len(bucket); i++ {
		si := bucket[i]
		if atomic.LoadUint32(&b.claimed[si]) != 0 {
			continue
		}
		a := b.store.at(int(si))
		for j := i + 1; j < len(bucket); j++ {
			sj := bucket[j]
			if atomic.LoadUint32(&b.claimed[sj]) != 0 {
				continue
			}
			ev, hit := b.detector.contact(a, b.store.at(int(sj)), h)
			if !hit {
				continue
			}
			if !atomic.CompareAndSwapUint32(&b.claimed[si], 0, 1) {
				break // another worker consumed a first
			}
			if !atomic.CompareAndSwapUint32(&b.claimed[sj], 0, 1) {
				atomic.StoreUint32(&b.claimed[si], 0)
				continue
			}
			counter.Add(1)
			events = append(events, ev)
			break
		}
	}
	return events
}

// parallelFor splits [0, total) into contiguous shards, one goroutine
// per worker, and joins them.
func (b *parallelBackend) parallelFor(total int, fn func(start, end int)) {
	chunk := (total + b.workers - 1) / b.workers
	var wg sync.WaitGroup
	for start := 0; start < total; start += chunk {
		end := start + chunk
		if end > total {
			end = total
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}

var _ backend = (*parallelBackend)(nil)
