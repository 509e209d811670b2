package core

import (
	"math"
	"testing"

	"github.com/orbitalfoundry/debris-simulator/model"
)

func allocAt(t *testing.T, store *Store, pos, vel model.Vec3) model.ObjectID {
	t.Helper()
	id, err := store.Allocate(model.PhysicsObject{
		Position: pos,
		Velocity: vel,
		Mass:     1000,
		Radius:   0.005,
		Class:    model.ClassSatellite,
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	return id
}

func TestDetectOverlappingPair(t *testing.T) {
	store, _ := NewStore(8)
	det := NewDetector(100, 25)

	vel := model.Vec3{Y: 7.5}
	a := allocAt(t, store, model.Vec3{X: 7000}, vel)
	b := allocAt(t, store, model.Vec3{X: 7000.004}, vel)

	events := det.Detect(store, 1)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if !(ev.A == a && ev.B == b) && !(ev.A == b && ev.B == a) {
		t.Fatalf("event pair = (%v, %v), want (%v, %v)", ev.A, ev.B, a, b)
	}
	if ev.CombinedMass != 2000 {
		t.Fatalf("combined mass = %g, want 2000", ev.CombinedMass)
	}
	// Same velocity: zero relative speed, so the hit came from raw overlap.
	if ev.RelativeSpeed != 0 {
		t.Fatalf("relative speed = %g, want 0", ev.RelativeSpeed)
	}
	wantMid := 7000.002
	if math.Abs(ev.ContactPosition.X-wantMid) > 1e-9 {
		t.Fatalf("contact X = %g, want %g", ev.ContactPosition.X, wantMid)
	}
}

func TestDetectFastMoverMargin(t *testing.T) {
	store, _ := NewStore(8)
	det := NewDetector(100, 25)

	// 10 km apart but closing at 15 km/s: the speed-scaled margin
	// (capped at 25 km) must flag the pair a plain overlap test misses.
	allocAt(t, store, model.Vec3{X: 7000}, model.Vec3{Y: 7.5})
	allocAt(t, store, model.Vec3{X: 7010}, model.Vec3{Y: -7.5})

	if events := det.Detect(store, 1); len(events) != 1 {
		t.Fatalf("events with h=1 = %d, want 1", len(events))
	}

	// A tiny sub-step shrinks the margin below the gap: no hit.
	if events := det.Detect(store, 0.01); len(events) != 0 {
		t.Fatalf("events with h=0.01 = %d, want 0", len(events))
	}
}

func TestDetectFirstMatchWins(t *testing.T) {
	store, _ := NewStore(8)
	det := NewDetector(100, 25)

	// Three mutually overlapping objects: one pair consumes two of them,
	// the survivor gets no partner.
	vel := model.Vec3{Y: 7.5}
	allocAt(t, store, model.Vec3{X: 7000.000}, vel)
	allocAt(t, store, model.Vec3{X: 7000.003}, vel)
	allocAt(t, store, model.Vec3{X: 7000.006}, vel)

	events := det.Detect(store, 1)
	if len(events) != 1 {
		t.Fatalf("events = %d, want exactly 1 (first match wins)", len(events))
	}
	if events[0].A == events[0].B {
		t.Fatal("event pairs an object with itself")
	}
}

func TestDetectSimultaneousDistinctPairs(t *testing.T) {
	store, _ := NewStore(8)
	det := NewDetector(100, 25)

	vel := model.Vec3{Y: 7.5}
	allocAt(t, store, model.Vec3{X: 7000.000}, vel)
	allocAt(t, store, model.Vec3{X: 7000.004}, vel)
	allocAt(t, store, model.Vec3{X: 7030.000}, vel)
	allocAt(t, store, model.Vec3{X: 7030.004}, vel)

	if events := det.Detect(store, 1); len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
}

func TestDetectIgnoresDistantObjects(t *testing.T) {
	store, _ := NewStore(8)
	det := NewDetector(100, 25)

	allocAt(t, store, model.Vec3{X: 7000}, model.Vec3{Y: 7.5})
	allocAt(t, store, model.Vec3{X: 7500}, model.Vec3{Y: 7.5})
	allocAt(t, store, model.Vec3{Y: 8000}, model.Vec3{X: -7.2})

	if events := det.Detect(store, 1); len(events) != 0 {
		t.Fatalf("events = %d, want 0", len(events))
	}
}

func TestDetectSkipsDeadSlots(t *testing.T) {
	store, _ := NewStore(8)
	det := NewDetector(100, 25)

	vel := model.Vec3{Y: 7.5}
	a := allocAt(t, store, model.Vec3{X: 7000.000}, vel)
	allocAt(t, store, model.Vec3{X: 7000.004}, vel)
	store.Free(a)

	if events := det.Detect(store, 1); len(events) != 0 {
		t.Fatalf("events including dead slot = %d, want 0", len(events))
	}
}
