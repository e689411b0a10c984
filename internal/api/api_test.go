package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterplug/clusterplug/internal/app/hotplug"
	"github.com/clusterplug/clusterplug/internal/domain"
	"github.com/clusterplug/clusterplug/internal/health"
	"github.com/clusterplug/clusterplug/internal/infra/sqlite"
)

// memUnits is an in-memory unit lifecycle and idle accounting provider.
type memUnits struct {
	mu     sync.Mutex
	active map[domain.UnitID]bool
}

func newMemUnits(n int) *memUnits {
	m := &memUnits{active: make(map[domain.UnitID]bool)}
	for i := 0; i < n; i++ {
		m.active[domain.UnitID(i)] = true
	}
	return m
}

func (m *memUnits) PresentUnits() ([]domain.UnitID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]domain.UnitID, 0, len(m.active))
	for i := 0; i < len(m.active); i++ {
		ids = append(ids, domain.UnitID(i))
	}
	return ids, nil
}

func (m *memUnits) IsActive(id domain.UnitID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[id]
}

func (m *memUnits) Activate(id domain.UnitID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[id] = true
	return nil
}

func (m *memUnits) Deactivate(id domain.UnitID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[id] = false
	return nil
}

func (m *memUnits) IdleAndWall(domain.UnitID) (uint64, uint64, error) { return 0, 0, nil }

type fixedTemp float64

func (f fixedTemp) CPUTemp() float64 { return float64(f) }

type testEnv struct {
	srv  *Server
	ctrl *hotplug.Controller
	db   *sqlite.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	units := newMemUnits(8)
	ctrl, err := hotplug.New(hotplug.Options{
		Topology:   domain.NewTopology(4, 4),
		Units:      units,
		Accounting: units,
		Recorder:   db,
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Stop)

	srv := NewServer(ctrl)
	srv.SetJournal(db)
	srv.SetNodeInfo(db)
	srv.SetVersion("1.2.3")
	return &testEnv{srv: srv, ctrl: ctrl, db: db}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v), w.Body.String())
}

// ─── Health & Status ────────────────────────────────────────────────────────

func TestAPI_Health(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	decode(t, w, &body)
	assert.Equal(t, "ok", body["status"])
}

type stubHealth struct{ ok bool }

func (s stubHealth) Statuses() []health.Status {
	return []health.Status{{Name: "hotplug", Healthy: s.ok}}
}
func (s stubHealth) IsHealthy() bool { return s.ok }

func TestAPI_HealthDegraded(t *testing.T) {
	env := newTestEnv(t)
	env.srv.SetHealth(stubHealth{ok: false})
	w := env.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status string          `json:"status"`
		Checks []health.Status `json:"checks"`
	}
	decode(t, w, &body)
	assert.Equal(t, "degraded", body.Status)
	require.Len(t, body.Checks, 1)
	assert.Equal(t, "hotplug", body.Checks[0].Name)
}

func TestAPI_Status(t *testing.T) {
	env := newTestEnv(t)
	env.srv.SetThermal(fixedTemp(41.5))

	w := env.do(t, "GET", "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	decode(t, w, &body)
	assert.Equal(t, false, body["enabled"])
	assert.Equal(t, false, body["suspended"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, 41.5, body["cpu_temp_c"])
	assert.Contains(t, body, "engine")
	assert.Contains(t, body, "tunables")
}

func TestAPI_Version(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.SetNodeInfo("topology", "big=4 little=4 boundary=4"))

	w := env.do(t, "GET", "/api/version", "")
	var body struct {
		Version string            `json:"version"`
		Node    map[string]string `json:"node"`
	}
	decode(t, w, &body)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, "big=4 little=4 boundary=4", body.Node["topology"])
}

// ─── Tunables ───────────────────────────────────────────────────────────────

func TestAPI_ListTunables(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/api/tunables", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	decode(t, w, &body)
	assert.Len(t, body, 8)
	assert.Equal(t, "80", body[hotplug.TunableLoadThresholdUp])
	assert.Equal(t, "big", body[hotplug.TunableClusterPreference])
}

func TestAPI_GetTunable(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/api/tunables/hysteresis_ticks", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body tunableValue
	decode(t, w, &body)
	assert.Equal(t, "10", body.Value)

	w = env.do(t, "GET", "/api/tunables/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_SetTunablePersists(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "PUT", "/api/tunables/load_threshold_up", `{"value":"65"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body tunableValue
	decode(t, w, &body)
	assert.Equal(t, "65", body.Value)
	assert.True(t, body.Persisted)
	assert.Equal(t, 65, env.ctrl.Tunables().LoadThresholdUp())

	stored, err := env.db.Tunables()
	require.NoError(t, err)
	assert.Equal(t, "65", stored[hotplug.TunableLoadThresholdUp])
}

func TestAPI_SetTunableNormalizes(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "PUT", "/api/tunables/cluster_preference", `{"value":"LITTLE"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var body tunableValue
	decode(t, w, &body)
	assert.Equal(t, "little", body.Value)
}

func TestAPI_SetTunableErrors(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		path, body string
		want       int
	}{
		{"/api/tunables/load_threshold_up", `{"value":"101"}`, http.StatusBadRequest},
		{"/api/tunables/load_threshold_up", `{"value":"x"}`, http.StatusBadRequest},
		{"/api/tunables/enabled", `{"value":"maybe"}`, http.StatusBadRequest},
		{"/api/tunables/load_threshold_up", `{}`, http.StatusBadRequest},
		{"/api/tunables/load_threshold_up", `not json`, http.StatusBadRequest},
		{"/api/tunables/bogus", `{"value":"1"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		w := env.do(t, "PUT", tt.path, tt.body)
		assert.Equal(t, tt.want, w.Code, "%s %s", tt.path, tt.body)
	}
	assert.Equal(t, 80, env.ctrl.Tunables().LoadThresholdUp())
}

func TestAPI_ForgetTunable(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.SetTunable(hotplug.TunableHysteresisTicks, "3"))

	w := env.do(t, "DELETE", "/api/tunables/hysteresis_ticks", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	stored, err := env.db.Tunables()
	require.NoError(t, err)
	assert.NotContains(t, stored, hotplug.TunableHysteresisTicks)

	w = env.do(t, "DELETE", "/api/tunables/bogus", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_EnableViaTunable(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ctrl.Start(t.Context()))

	w := env.do(t, "PUT", "/api/tunables/enabled", `{"value":"1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.ctrl.Status().Enabled)
	assert.Eventually(t, env.ctrl.Pending, time.Second, time.Millisecond)

	events, err := env.db.ListEvents(sqlite.EventFilter{Kind: domain.EventEnabled})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

// ─── Power ──────────────────────────────────────────────────────────────────

func TestAPI_SuspendResume(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/power/suspend", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.ctrl.Suspended())

	w = env.do(t, "POST", "/api/power/resume", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.ctrl.Suspended())
}

// ─── Events ─────────────────────────────────────────────────────────────────

func seedEvents(t *testing.T, db *sqlite.DB) time.Time {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seed := []domain.Event{
		{ID: "e1", Kind: domain.EventEnabled, At: base},
		{ID: "e2", Kind: domain.EventPolicyChanged, At: base.Add(time.Second), Policy: domain.PolicyBoth},
		{ID: "e3", Kind: domain.EventPolicyChanged, At: base.Add(2 * time.Second), Policy: domain.PolicySuspend},
	}
	for _, e := range seed {
		require.NoError(t, db.RecordEvent(e))
	}
	return base
}

func TestAPI_ListEvents(t *testing.T) {
	env := newTestEnv(t)
	base := seedEvents(t, env.db)

	var body struct {
		Events []domain.Event `json:"events"`
	}
	w := env.do(t, "GET", "/api/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	require.Len(t, body.Events, 3)
	assert.Equal(t, "e3", body.Events[0].ID)

	w = env.do(t, "GET", "/api/events?kind=policy_changed&limit=1", "")
	decode(t, w, &body)
	require.Len(t, body.Events, 1)
	assert.Equal(t, "e3", body.Events[0].ID)

	since := base.Add(time.Second).Format(time.RFC3339)
	w = env.do(t, "GET", "/api/events?since="+since, "")
	decode(t, w, &body)
	assert.Len(t, body.Events, 2)
}

func TestAPI_ListEventsBadQuery(t *testing.T) {
	env := newTestEnv(t)
	for _, q := range []string{"limit=0", "limit=x", "since=yesterday"} {
		w := env.do(t, "GET", "/api/events?"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestAPI_GetEvent(t *testing.T) {
	env := newTestEnv(t)
	seedEvents(t, env.db)

	w := env.do(t, "GET", "/api/events/e2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var e domain.Event
	decode(t, w, &e)
	assert.Equal(t, domain.EventPolicyChanged, e.Kind)
	assert.Equal(t, domain.PolicyBoth, e.Policy)

	w = env.do(t, "GET", "/api/events/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_NoJournal(t *testing.T) {
	env := newTestEnv(t)
	env.srv.SetJournal(nil)

	w := env.do(t, "GET", "/api/events", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(t, "PUT", "/api/tunables/hysteresis_ticks", `{"value":"4"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var body tunableValue
	decode(t, w, &body)
	assert.False(t, body.Persisted)
}

// ─── Metrics ────────────────────────────────────────────────────────────────

func TestAPI_Metrics(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.srv.EnableMetrics()
	w = env.do(t, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "clusterplug_")
}
