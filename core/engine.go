package core

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/orbitalfoundry/debris-simulator/internal/logging"
	"github.com/orbitalfoundry/debris-simulator/model"
)

// allowedMultipliers is the fixed allow-list of time-acceleration
// factors. Anything else is ignored with a warning.
var allowedMultipliers = []float64{1, 10, 60, 100, 1000, 10000}

// AllowedMultiplier reports whether v is an accepted time multiplier.
func AllowedMultiplier(v float64) bool {
	for _, m := range allowedMultipliers {
		if v == m {
			return true
		}
	}
	return false
}

// AllowedMultipliers returns the accepted time multipliers, ascending.
func AllowedMultipliers() []float64 {
	out := make([]float64, len(allowedMultipliers))
	copy(out, allowedMultipliers)
	return out
}

// Config assembles every engine tunable. DefaultConfig gives a runnable
// small-scale setup.
type Config struct {
	Capacity int
	Backend  BackendKind

	// Workers is the parallel backend's goroutine count; zero means
	// GOMAXPROCS.
	Workers int

	// MaxBreakupEventsPerTick caps full fragment synthesis on the
	// parallel backend.
	MaxBreakupEventsPerTick int

	// TimeMultiplier must be in the allow-list; zero means 1×.
	TimeMultiplier float64

	// Seed fixes the RNG for reproducible populations and breakups;
	// zero seeds from the wall clock.
	Seed int64

	Physics             PhysicsParams
	Breakup             BreakupParams
	Cascade             CascadeParams
	CollisionCellSizeKm float64
	SafetyMarginKm      float64
}

// DefaultConfig returns a sequential-backend configuration with the
// documented physical defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:                10000,
		Backend:                 BackendSequential,
		TimeMultiplier:          1,
		Physics:                 DefaultPhysicsParams(),
		Breakup:                 DefaultBreakupParams(),
		Cascade:                 DefaultCascadeParams(),
		CollisionCellSizeKm:     100,
		SafetyMarginKm:          25,
		MaxBreakupEventsPerTick: 64,
	}
}

// MetricsRecorder receives per-tick observations. Implemented by the
// observability package; the engine itself stays metrics-agnostic.
type MetricsRecorder interface {
	RecordTick(result TickResult, stats model.Stats, wall time.Duration)
}

// Engine owns the object store and advances it tick by tick. It is an
// explicit handle: callers construct one, keep the reference, and feed
// it commands. There is no ambient global instance.
//
// The engine serializes all mutation internally; collaborators only
// ever receive copies of object state.
type Engine struct {
	mu sync.Mutex

	store    *Store
	backend  backend
	detector *Detector
	breakup  *BreakupModel
	cascade  *CascadeController
	physics  PhysicsParams
	rng      *rand.Rand

	multiplier float64
	simTime    float64

	// inflight is the single-buffered dispatch/await cycle: non-nil
	// while a step runs. Mutating commands reject with
	// ErrConcurrencyViolation; read accessors await it so display
	// reads happen after the step completes.
	inflight *Pending

	log     logging.Logger
	metrics MetricsRecorder

	collisionListeners []func(model.CollisionEvent)
	removalListeners   []func(model.RemovalEvent)
}

// Option customizes engine construction.
type Option func(*Engine)

// WithLogger attaches a structured logger; the default drops all logs.
func WithLogger(log logging.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics attaches a per-tick metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// New initializes an engine. Initialization failures (bad capacity,
// unknown backend, inconsistent physics parameters) are fatal and
// surfaced immediately; there is no silent fallback.
func New(cfg Config, opts ...Option) (*Engine, error) {
	store, err := NewStore(cfg.Capacity)
	if err != nil {
		return nil, err
	}
	if !cfg.Physics.validate() {
		return nil, fmt.Errorf("%w: inconsistent physics parameters", ErrInitialization)
	}
	if cfg.TimeMultiplier == 0 {
		cfg.TimeMultiplier = 1
	}
	if !AllowedMultiplier(cfg.TimeMultiplier) {
		return nil, fmt.Errorf("%w: time multiplier %g not in allow-list", ErrInitialization, cfg.TimeMultiplier)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	detector := NewDetector(cfg.CollisionCellSizeKm, cfg.SafetyMarginKm)
	breakup := NewBreakupModel(cfg.Breakup, cfg.Physics, rng)

	e := &Engine{
		store:      store,
		detector:   detector,
		breakup:    breakup,
		cascade:    NewCascadeController(cfg.Cascade),
		physics:    cfg.Physics,
		rng:        rng,
		multiplier: cfg.TimeMultiplier,
		log:        logging.Noop(),
	}

	switch cfg.Backend {
	case BackendSequential:
		e.backend = &sequentialBackend{store: store, physics: cfg.Physics, detector: detector, breakup: breakup}
	case BackendParallel:
		e.backend = newParallelBackend(store, cfg.Physics, detector, breakup, cfg.Workers, cfg.MaxBreakupEventsPerTick)
	default:
		return nil, fmt.Errorf("%w: unknown backend kind %d", ErrInitialization, cfg.Backend)
	}

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Backend returns the concurrency strategy the engine was built with.
func (e *Engine) Backend() BackendKind { return e.backend.kind() }

// Capacity returns the configured maximum live population.
func (e *Engine) Capacity() int { return e.store.Capacity() }

// SimTime returns the accumulated simulation time in seconds.
func (e *Engine) SimTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.simTime
}

// TimeMultiplier returns the active time-acceleration factor.
func (e *Engine) TimeMultiplier() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.multiplier
}

// SetTimeMultiplier applies a new time-acceleration factor. Values
// outside the allow-list leave the multiplier unchanged and return
// false.
func (e *Engine) SetTimeMultiplier(v float64) bool {
	if !AllowedMultiplier(v) {
		e.log.Warn(context.Background(), "rejected time multiplier outside allow-list",
			logging.Float("requested", v))
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.multiplier = v
	return true
}

// OnCollision registers a listener fired once per collision event, on
// the goroutine that resolves the step.
func (e *Engine) OnCollision(fn func(model.CollisionEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.collisionListeners = append(e.collisionListeners, fn)
}

// OnRemoval registers a listener fired once per removal event.
func (e *Engine) OnRemoval(fn func(model.RemovalEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removalListeners = append(e.removalListeners, fn)
}

// Step advances the simulation by elapsedSeconds of wall time scaled
// by the time multiplier. It is the synchronous form of Dispatch
// followed by Await.
func (e *Engine) Step(ctx context.Context, elapsedSeconds float64) (TickResult, error) {
	pending, err := e.Dispatch(ctx, elapsedSeconds)
	if err != nil {
		return TickResult{}, err
	}
	return pending.Await()
}

// Pending is an in-flight step. The engine refuses new dispatches and
// mutating commands until Await resolves.
type Pending struct {
	engine  *Engine
	run     func() (TickResult, error)
	started time.Time
	once    sync.Once
	result  TickResult
	err     error
}

// Await blocks until the step completes, folds its results into the
// engine (sim time, cascade statistics, listeners, metrics), and
// returns them. Safe to call more than once and from any goroutine.
func (p *Pending) Await() (TickResult, error) {
	p.once.Do(p.resolve)
	return p.result, p.err
}

func (p *Pending) resolve() {
	p.result, p.err = p.run()
	wall := time.Since(p.started)

	e := p.engine
	e.mu.Lock()
	e.inflight = nil
	if p.err == nil {
		e.finalizeLocked(p.result, wall)
	}
	collisionListeners := e.collisionListeners
	removalListeners := e.removalListeners
	e.mu.Unlock()

	if p.err == nil {
		for _, fn := range collisionListeners {
			for _, ev := range p.result.Collisions {
				fn(ev)
			}
		}
		for _, fn := range removalListeners {
			for _, ev := range p.result.Removals {
				fn(ev)
			}
		}
	}
}

// Dispatch starts one step. On the parallel backend the compute stage
// runs concurrently and the caller must Await the returned Pending
// before dispatching again; a premature dispatch fails with
// ErrConcurrencyViolation. On the sequential backend the step runs
// inline and the Pending comes back already complete.
func (e *Engine) Dispatch(ctx context.Context, elapsedSeconds float64) (*Pending, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	if e.inflight != nil {
		e.mu.Unlock()
		return nil, ErrConcurrencyViolation
	}
	dt := elapsedSeconds * e.multiplier
	simTime := e.simTime
	p := &Pending{engine: e, started: time.Now()}

	if pb, ok := e.backend.(*parallelBackend); ok {
		fut, err := pb.dispatch(ctx, dt, simTime)
		if err != nil {
			e.mu.Unlock()
			return nil, err
		}
		p.run = fut.Await
		e.inflight = p
		e.mu.Unlock()
		return p, nil
	}
	p.run = func() (TickResult, error) { return e.backend.step(ctx, dt, simTime) }
	e.inflight = p
	e.mu.Unlock()

	if _, err := p.Await(); err != nil {
		return p, err
	}
	return p, nil
}

// lockQuiesced acquires e.mu with no step in flight, awaiting any
// pending dispatch first. Reads taken under it observe post-step
// state. Callers must Unlock.
func (e *Engine) lockQuiesced() {
	e.mu.Lock()
	for e.inflight != nil {
		p := e.inflight
		e.mu.Unlock()
		p.Await()
		e.mu.Lock()
	}
}

// finalizeLocked folds a completed tick into engine state. Callers
// hold e.mu.
func (e *Engine) finalizeLocked(result TickResult, wall time.Duration) {
	e.simTime += result.DtSeconds
	e.cascade.RecordCollisions(result.CollisionCount, result.FragmentsCreated)

	if result.CollisionCount > 0 || result.FragmentsDropped > 0 {
		e.log.Info(context.Background(), "tick resolved collisions",
			logging.Int("collisions", result.CollisionCount),
			logging.Int("fragments", result.FragmentsCreated),
			logging.Int("dropped", result.FragmentsDropped))
	}

	if e.metrics != nil {
		e.metrics.RecordTick(result, e.statsLocked(), wall)
	}
}

// TriggerCascade forces two live satellites onto a converging
// trajectory, guaranteeing a collision within the next tick, and
// activates cascade statistics.
func (e *Engine) TriggerCascade() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight != nil {
		return ErrConcurrencyViolation
	}
	pair, err := e.cascade.Trigger(e.store, e.simTime, e.detector.CellSizeKm)
	if err != nil {
		return err
	}
	e.log.Info(context.Background(), "cascade triggered",
		logging.Any("objectA", pair[0]), logging.Any("objectB", pair[1]))
	return nil
}

// CascadeState returns a copy of the cascade statistics.
func (e *Engine) CascadeState() model.CascadeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cascade.State()
}

// Stats summarizes the live population.
func (e *Engine) Stats() model.Stats {
	e.lockQuiesced()
	defer e.mu.Unlock()
	return e.statsLocked()
}

func (e *Engine) statsLocked() model.Stats {
	var altSum float64
	e.store.ForEachAlive(func(obj *model.PhysicsObject) {
		altSum += AltitudeKm(obj.Position, e.physics.PrimaryRadiusKm)
	})
	avg := 0.0
	if n := e.store.Len(); n > 0 {
		avg = altSum / float64(n)
	}
	return model.Stats{
		ActiveObjects:     e.store.Len(),
		SatelliteCount:    e.store.Satellites(),
		DebrisCount:       e.store.Debris(),
		AverageAltitudeKm: avg,
		SimTime:           e.simTime,
		TimeMultiplier:    e.multiplier,
		Cascade:           e.cascade.State(),
	}
}

// ObjectSnapshot returns a read-only copy of one object's state, or
// false when the ID is dead or unknown.
func (e *Engine) ObjectSnapshot(id model.ObjectID) (model.ObjectSnapshot, bool) {
	e.lockQuiesced()
	defer e.mu.Unlock()
	obj, ok := e.store.Get(id)
	if !ok {
		return model.ObjectSnapshot{}, false
	}
	return model.ObjectSnapshot{
		ID:         obj.ID,
		Position:   obj.Position,
		Velocity:   obj.Velocity,
		AltitudeKm: AltitudeKm(obj.Position, e.physics.PrimaryRadiusKm),
		SpeedKmS:   obj.Velocity.Norm(),
		Class:      obj.Class,
		Orbit:      obj.Orbit,
	}, true
}

// Snapshot returns the per-tick render projection: a copied array of
// (id, position, class) for every live object.
func (e *Engine) Snapshot() []model.RenderObject {
	e.lockQuiesced()
	defer e.mu.Unlock()
	out := make([]model.RenderObject, 0, e.store.Len())
	e.store.ForEachAlive(func(obj *model.PhysicsObject) {
		out = append(out, model.RenderObject{ID: obj.ID, Position: obj.Position, Class: obj.Class})
	})
	return out
}
