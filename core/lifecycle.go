package core

import "github.com/orbitalfoundry/debris-simulator/model"

// lifecycle turns integrator outcomes into store mutations and removal
// events. Removal happens between a sub-step and collision detection,
// so a burned-up object can never participate in a collision within
// the same tick.
type lifecycle struct {
	store *Store
}

// resolve applies the outcome of one object's sub-step. When the
// object did not survive, its slot is freed and a removal event is
// appended to events; the (possibly grown) slice is returned.
func (l lifecycle) resolve(obj *model.PhysicsObject, outcome stepOutcome, events []model.RemovalEvent) []model.RemovalEvent {
	switch outcome {
	case outcomeActive:
		return events
	case outcomeBurnup:
		ev := model.RemovalEvent{ID: obj.ID, Position: obj.Position, Reason: model.RemovalBurnup}
		l.store.Free(obj.ID)
		return append(events, ev)
	case outcomeAnomaly:
		// Non-finite state is quarantined as an implicit reentry rather
		// than propagated into neighbouring computations.
		ev := model.RemovalEvent{ID: obj.ID, Reason: model.RemovalAnomaly}
		l.store.Free(obj.ID)
		return append(events, ev)
	default:
		return events
	}
}

// consume removes a collision parent from the store and reports it.
func (l lifecycle) consume(obj model.PhysicsObject, events []model.RemovalEvent) []model.RemovalEvent {
	ev := model.RemovalEvent{ID: obj.ID, Position: obj.Position, Reason: model.RemovalCollision}
	l.store.Free(obj.ID)
	return append(events, ev)
}
