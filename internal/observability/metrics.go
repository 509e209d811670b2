package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orbitalfoundry/debris-simulator/core"
	"github.com/orbitalfoundry/debris-simulator/model"
)

// EngineCollector bundles Prometheus metrics for the simulation engine
// and the HTTP control surface.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	ActiveObjects   prometheus.Gauge
	DebrisCount     prometheus.Gauge
	AverageAltitude prometheus.Gauge
	CascadeLevel    prometheus.Gauge

	CollisionsTotal  prometheus.Counter
	FragmentsTotal   prometheus.Counter
	FragmentsDropped prometheus.Counter
	RemovalsTotal    *prometheus.CounterVec

	StepDuration prometheus.Histogram
}

// NewEngineCollector registers engine metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &EngineCollector{
		gatherer: gatherer,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sim_http_requests_total",
			Help: "Total handled control-API requests, labeled by route and status code.",
		}, []string{"route", "code"}),
		HTTPDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sim_http_request_duration_seconds",
			Help:    "Control-API request latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"route"}),
		ActiveObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sim_active_objects",
			Help: "Current number of live objects in the store.",
		}),
		DebrisCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sim_debris_objects",
			Help: "Current number of live debris-class objects.",
		}),
		AverageAltitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sim_average_altitude_km",
			Help: "Mean altitude of the live population in kilometres.",
		}),
		CascadeLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sim_cascade_level",
			Help: "Current cascade level derived from the collision count.",
		}),
		CollisionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_collisions_total",
			Help: "Total collisions detected across all ticks.",
		}),
		FragmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_fragments_created_total",
			Help: "Total debris fragments synthesized by the breakup model.",
		}),
		FragmentsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_fragments_dropped_total",
			Help: "Fragments truncated because the object store was full.",
		}),
		RemovalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sim_removals_total",
			Help: "Objects removed from the simulation, labeled by reason.",
		}, []string{"reason"}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sim_step_duration_seconds",
			Help:    "Wall-clock duration of one engine step.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
	}

	collectors := []prometheus.Collector{
		c.HTTPRequests, c.HTTPDurations,
		c.ActiveObjects, c.DebrisCount, c.AverageAltitude, c.CascadeLevel,
		c.CollisionsTotal, c.FragmentsTotal, c.FragmentsDropped, c.RemovalsTotal,
		c.StepDuration,
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("registering engine metrics: %w", err)
		}
	}
	return c, nil
}

// RecordTick satisfies core.MetricsRecorder so the engine can drive
// gauges and counters directly from its step finalizer.
func (c *EngineCollector) RecordTick(result core.TickResult, stats model.Stats, wall time.Duration) {
	if c == nil {
		return
	}
	c.ActiveObjects.Set(float64(stats.ActiveObjects))
	c.DebrisCount.Set(float64(stats.DebrisCount))
	c.AverageAltitude.Set(stats.AverageAltitudeKm)
	c.CascadeLevel.Set(float64(stats.Cascade.Level))

	c.CollisionsTotal.Add(float64(result.CollisionCount))
	c.FragmentsTotal.Add(float64(result.FragmentsCreated))
	c.FragmentsDropped.Add(float64(result.FragmentsDropped))
	for _, ev := range result.Removals {
		c.RemovalsTotal.WithLabelValues(ev.Reason.String()).Inc()
	}
	if wall > 0 {
		c.StepDuration.Observe(wall.Seconds())
	}
}

// statusRecorder captures the response code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and durations for the control API.
// route should be the pattern, not the raw path, to keep cardinality
// bounded.
func (c *EngineCollector) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if c == nil {
			next.ServeHTTP(w, req)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, req)

		c.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		c.HTTPDurations.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ core.MetricsRecorder = (*EngineCollector)(nil)
