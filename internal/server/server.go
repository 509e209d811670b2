// Package server exposes the engine's command surface over HTTP JSON
// plus a websocket stream of per-tick state for the renderer.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orbitalfoundry/debris-simulator/core"
	"github.com/orbitalfoundry/debris-simulator/internal/logging"
	"github.com/orbitalfoundry/debris-simulator/model"
)

// Middleware wraps a route handler, e.g. for request metrics.
type Middleware func(route string, next http.Handler) http.Handler

// Server holds the control API around one engine handle.
type Server struct {
	engine *core.Engine
	hub    *Hub
	log    logging.Logger
	tracer trace.Tracer
	mux    *http.ServeMux
	wrap   Middleware
}

// New builds the route table. middleware may be nil.
func New(engine *core.Engine, log logging.Logger, middleware Middleware) *Server {
	if log == nil {
		log = logging.Noop()
	}
	if middleware == nil {
		middleware = func(_ string, next http.Handler) http.Handler { return next }
	}
	s := &Server{
		engine: engine,
		hub:    NewHub(log),
		log:    log,
		tracer: otel.Tracer("debris-simulator/server"),
		mux:    http.NewServeMux(),
		wrap:   middleware,
	}

	s.handle("GET /api/health", s.handleHealth)
	s.handle("POST /api/simulation/populate", s.handlePopulate)
	s.handle("POST /api/simulation/step", s.handleStep)
	s.handle("POST /api/simulation/time-multiplier", s.handleTimeMultiplier)
	s.handle("POST /api/simulation/cascade", s.handleCascade)
	s.handle("GET /api/simulation/stats", s.handleStats)
	s.handle("GET /api/objects", s.handleObjects)
	s.handle("GET /api/objects/{id}", s.handleObject)
	s.mux.HandleFunc("GET /ws", s.hub.ServeWS)
	return s
}

func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	s.mux.Handle(pattern, s.wrap(pattern, fn))
}

// Handler returns the composed route table.
func (s *Server) Handler() http.Handler { return s.mux }

// Hub exposes the websocket hub so the run loop can broadcast ticks.
func (s *Server) Hub() *Hub { return s.hub }

// wireObject is the render-stream projection of one live object.
type wireObject struct {
	ID       model.ObjectID `json:"id"`
	Position model.Vec3     `json:"position"`
	Class    string         `json:"class"`
}

// wireCollision lets the renderer flash an impact at the contact point.
type wireCollision struct {
	Position      model.Vec3 `json:"position"`
	RelativeSpeed float64    `json:"relativeSpeed"`
}

// wireRemoval lets the renderer play a burn/destruction effect.
type wireRemoval struct {
	ID       model.ObjectID `json:"id"`
	Position model.Vec3     `json:"position"`
	Reason   string         `json:"reason"`
}

type stateFrame struct {
	Type           string          `json:"type"` // always "state"
	SimTime        float64         `json:"simTime"`
	Objects        []wireObject    `json:"objects"`
	Collisions     []wireCollision `json:"collisions"`
	CollisionCount int             `json:"collisionCount"`
	Removals       []wireRemoval   `json:"removals"`
}

// PublishTick pushes the post-tick snapshot and the tick's collision
// and removal events to every renderer. Wire it as a timectrl.Runner
// listener.
func (s *Server) PublishTick(result core.TickResult) {
	if s.hub.SubscriberCount() == 0 {
		return
	}
	snapshot := s.engine.Snapshot()
	objects := make([]wireObject, len(snapshot))
	for i, obj := range snapshot {
		objects[i] = wireObject{ID: obj.ID, Position: obj.Position, Class: obj.Class.String()}
	}
	collisions := make([]wireCollision, len(result.Collisions))
	for i, ev := range result.Collisions {
		collisions[i] = wireCollision{Position: ev.ContactPosition, RelativeSpeed: ev.RelativeSpeed}
	}
	removals := make([]wireRemoval, len(result.Removals))
	for i, ev := range result.Removals {
		removals[i] = wireRemoval{ID: ev.ID, Position: ev.Position, Reason: ev.Reason.String()}
	}
	s.hub.Broadcast(stateFrame{
		Type:           "state",
		SimTime:        s.engine.SimTime(),
		Objects:        objects,
		Collisions:     collisions,
		CollisionCount: result.CollisionCount,
		Removals:       removals,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"backend": s.engine.Backend().String(),
	})
}

type populateRequest struct {
	Count        int `json:"count"`
	Distribution *struct {
		LEO    float64 `json:"leo"`
		MEO    float64 `json:"meo"`
		GEO    float64 `json:"geo"`
		HEO    float64 `json:"heo"`
		Debris float64 `json:"debris"`
	} `json:"distribution"`
}

func (s *Server) handlePopulate(w http.ResponseWriter, r *http.Request) {
	var req populateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	dist := core.DefaultClassDistribution()
	if req.Distribution != nil {
		dist = core.ClassDistribution{
			LEO:    req.Distribution.LEO,
			MEO:    req.Distribution.MEO,
			GEO:    req.Distribution.GEO,
			HEO:    req.Distribution.HEO,
			Debris: req.Distribution.Debris,
		}
	}

	seeded, err := s.engine.Populate(req.Count, dist)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requested": req.Count,
		"seeded":    seeded,
		"clamped":   seeded < req.Count,
	})
}

type stepRequest struct {
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "engine.step",
		trace.WithAttributes(attribute.Float64("sim.elapsed_seconds", req.ElapsedSeconds)))
	result, err := s.engine.Step(ctx, req.ElapsedSeconds)
	if err != nil {
		span.End()
		writeEngineError(w, err)
		return
	}
	span.SetAttributes(
		attribute.Int("sim.substeps", result.SubSteps),
		attribute.Int("sim.collisions", result.CollisionCount),
	)
	span.End()

	writeJSON(w, http.StatusOK, map[string]any{
		"dtSeconds":        result.DtSeconds,
		"subSteps":         result.SubSteps,
		"collisions":       result.CollisionCount,
		"removals":         len(result.Removals),
		"fragmentsCreated": result.FragmentsCreated,
		"fragmentsDropped": result.FragmentsDropped,
	})
}

type multiplierRequest struct {
	Value float64 `json:"value"`
}

func (s *Server) handleTimeMultiplier(w http.ResponseWriter, r *http.Request) {
	var req multiplierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	accepted := s.engine.SetTimeMultiplier(req.Value)
	writeJSON(w, http.StatusOK, map[string]any{
		"accepted":   accepted,
		"multiplier": s.engine.TimeMultiplier(),
		"allowed":    core.AllowedMultipliers(),
	})
}

func (s *Server) handleCascade(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.TriggerCascade(); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.CascadeState())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	snapshot := s.engine.Snapshot()
	objects := make([]wireObject, len(snapshot))
	for i, obj := range snapshot {
		objects[i] = wireObject{ID: obj.ID, Position: obj.Position, Class: obj.Class.String()}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(objects),
		"objects": objects,
	})
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	raw, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid object id")
		return
	}
	snap, ok := s.engine.ObjectSnapshot(model.ObjectID(raw))
	if !ok {
		writeError(w, http.StatusNotFound, core.ErrObjectNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         snap.ID,
		"position":   snap.Position,
		"velocity":   snap.Velocity,
		"altitudeKm": snap.AltitudeKm,
		"speedKms":   snap.SpeedKmS,
		"class":      snap.Class.String(),
		"orbit":      snap.Orbit.String(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeEngineError maps engine sentinel errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrConcurrencyViolation):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrCapacityExceeded):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, core.ErrCascadeUnavailable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, core.ErrInitialization):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
