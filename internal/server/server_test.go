package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orbitalfoundry/debris-simulator/core"
)

func newTestServer(t *testing.T) (*Server, *core.Engine) {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Capacity = 500
	cfg.Seed = 17
	engine, err := core.New(cfg)
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}
	return New(engine, nil, nil), engine
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("%s %s: invalid JSON response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, payload
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, payload := doJSON(t, srv.Handler(), http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if payload["status"] != "ok" {
		t.Fatalf("status field = %v, want ok", payload["status"])
	}
	if payload["backend"] != "sequential" {
		t.Fatalf("backend = %v, want sequential", payload["backend"])
	}
}

func TestPopulateEndpoint(t *testing.T) {
	srv, engine := newTestServer(t)

	rec, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/simulation/populate", `{"count": 100}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if payload["seeded"].(float64) != 100 {
		t.Fatalf("seeded = %v, want 100", payload["seeded"])
	}
	if payload["clamped"].(bool) {
		t.Fatal("clamped = true for an in-capacity request")
	}
	if got := engine.Stats().ActiveObjects; got != 100 {
		t.Fatalf("engine active = %d, want 100", got)
	}

	// Requests beyond capacity are clamped, not failed.
	rec, payload = doJSON(t, srv.Handler(), http.MethodPost, "/api/simulation/populate", `{"count": 10000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !payload["clamped"].(bool) {
		t.Fatal("clamped = false for an over-capacity request")
	}
	if payload["seeded"].(float64) != 400 {
		t.Fatalf("seeded = %v, want 400 (remaining capacity)", payload["seeded"])
	}
}

func TestPopulateCustomDistribution(t *testing.T) {
	srv, engine := newTestServer(t)

	body := `{"count": 50, "distribution": {"leo": 1, "meo": 0, "geo": 0, "heo": 0, "debris": 0}}`
	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/api/simulation/populate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	stats := engine.Stats()
	if stats.SatelliteCount != 50 || stats.DebrisCount != 0 {
		t.Fatalf("stats = %+v, want 50 satellites and no debris", stats)
	}
}

func TestPopulateRejectsBadBody(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/api/simulation/populate", `{"count": `)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStepEndpoint(t *testing.T) {
	srv, engine := newTestServer(t)
	doJSON(t, srv.Handler(), http.MethodPost, "/api/simulation/populate", `{"count": 20}`)

	rec, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/simulation/step", `{"elapsedSeconds": 2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if payload["dtSeconds"].(float64) != 2 {
		t.Fatalf("dtSeconds = %v, want 2", payload["dtSeconds"])
	}
	if payload["subSteps"].(float64) != 2 {
		t.Fatalf("subSteps = %v, want 2", payload["subSteps"])
	}
	if got := engine.SimTime(); got != 2 {
		t.Fatalf("sim time = %g, want 2", got)
	}
}

func TestTimeMultiplierEndpoint(t *testing.T) {
	srv, engine := newTestServer(t)

	rec, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/simulation/time-multiplier", `{"value": 37}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if payload["accepted"].(bool) {
		t.Fatal("accepted = true for a value outside the allow-list")
	}
	if payload["multiplier"].(float64) != 1 {
		t.Fatalf("multiplier = %v, want unchanged 1", payload["multiplier"])
	}
	if allowed := payload["allowed"].([]any); len(allowed) != 6 {
		t.Fatalf("allowed list has %d entries, want 6", len(allowed))
	}

	_, payload = doJSON(t, srv.Handler(), http.MethodPost, "/api/simulation/time-multiplier", `{"value": 1000}`)
	if !payload["accepted"].(bool) {
		t.Fatal("accepted = false for an allow-listed value")
	}
	if got := engine.TimeMultiplier(); got != 1000 {
		t.Fatalf("engine multiplier = %g, want 1000", got)
	}
}

func TestCascadeEndpointWithoutSatellites(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/simulation/cascade", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if payload["error"] == "" {
		t.Fatal("error body missing")
	}
}

func TestCascadeEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	doJSON(t, srv.Handler(), http.MethodPost, "/api/simulation/populate", `{"count": 20}`)

	rec, payload := doJSON(t, srv.Handler(), http.MethodPost, "/api/simulation/cascade", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if active, ok := payload["active"].(bool); !ok || !active {
		t.Fatalf("cascade state = %v, want active", payload)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	doJSON(t, srv.Handler(), http.MethodPost, "/api/simulation/populate", `{"count": 30}`)

	rec, payload := doJSON(t, srv.Handler(), http.MethodGet, "/api/simulation/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if payload["activeObjects"].(float64) != 30 {
		t.Fatalf("activeObjects = %v, want 30", payload["activeObjects"])
	}
	if payload["timeMultiplier"].(float64) != 1 {
		t.Fatalf("timeMultiplier = %v, want 1", payload["timeMultiplier"])
	}
}

func TestObjectEndpoints(t *testing.T) {
	srv, engine := newTestServer(t)
	doJSON(t, srv.Handler(), http.MethodPost, "/api/simulation/populate", `{"count": 5}`)

	rec, payload := doJSON(t, srv.Handler(), http.MethodGet, "/api/objects", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if payload["count"].(float64) != 5 {
		t.Fatalf("count = %v, want 5", payload["count"])
	}

	id := engine.Snapshot()[0].ID
	rec, payload = doJSON(t, srv.Handler(), http.MethodGet, "/api/objects/"+strconv.FormatUint(uint64(id), 10), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if payload["class"] != "satellite" && payload["class"] != "debris" {
		t.Fatalf("class = %v", payload["class"])
	}
	if payload["altitudeKm"].(float64) <= 0 {
		t.Fatalf("altitudeKm = %v, want positive", payload["altitudeKm"])
	}

	rec, _ = doJSON(t, srv.Handler(), http.MethodGet, "/api/objects/18446744073709551615", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status for unknown id = %d, want 404", rec.Code)
	}

	rec, _ = doJSON(t, srv.Handler(), http.MethodGet, "/api/objects/not-a-number", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status for malformed id = %d, want 400", rec.Code)
	}
}

func TestWebsocketStreamReceivesTicks(t *testing.T) {
	srv, engine := newTestServer(t)
	doJSON(t, srv.Handler(), http.MethodPost, "/api/simulation/populate", `{"count": 10}`)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Hub().Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForSubscriber(t, srv.Hub())

	result, err := engine.Step(context.Background(), 1)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	srv.PublishTick(result)

	var frame stateFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Type != "state" {
		t.Fatalf("frame type = %q, want state", frame.Type)
	}
	if len(frame.Objects) != 10 {
		t.Fatalf("frame carries %d objects, want 10", len(frame.Objects))
	}
	if frame.SimTime != 1 {
		t.Fatalf("frame sim time = %g, want 1", frame.SimTime)
	}
}

// waitForSubscriber polls until the websocket registration, which
// completes shortly after the client handshake, becomes visible.
func waitForSubscriber(t *testing.T, hub *Hub) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if hub.SubscriberCount() > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("subscriber never registered")
}
