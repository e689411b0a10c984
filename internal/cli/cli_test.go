package cli

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterplug/clusterplug/internal/api"
	"github.com/clusterplug/clusterplug/internal/app/hotplug"
	"github.com/clusterplug/clusterplug/internal/domain"
	"github.com/clusterplug/clusterplug/internal/infra/sqlite"
)

// fakeController satisfies api.Controller without touching any units.
type fakeController struct {
	mu        sync.Mutex
	tunables  *hotplug.Tunables
	suspended bool
}

func (f *fakeController) Status() hotplug.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return hotplug.Status{
		Enabled:      f.tunables.Enabled(),
		Suspended:    f.suspended,
		Topology:     domain.NewTopology(4, 4),
		Engine:       hotplug.EngineState{Algorithm: hotplug.AlgorithmVoting, VoteUp: 2, VoteDown: 7, LittleEngaged: true},
		Policy:       domain.PolicyBoth,
		ActiveBig:    4,
		ActiveLittle: 3,
		Ticks:        42,
		Tunables:     f.tunables.Settings(),
	}
}

func (f *fakeController) Tunables() *hotplug.Tunables { return f.tunables }

func (f *fakeController) OnSuspend() {
	f.mu.Lock()
	f.suspended = true
	f.mu.Unlock()
}

func (f *fakeController) OnResume() {
	f.mu.Lock()
	f.suspended = false
	f.mu.Unlock()
}

type testDaemon struct {
	ctrl *fakeController
	db   *sqlite.DB
	url  string
}

func startDaemon(t *testing.T) *testDaemon {
	t.Helper()
	tun, err := hotplug.NewTunables(hotplug.DefaultSettings())
	require.NoError(t, err)
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctrl := &fakeController{tunables: tun}
	srv := api.NewServer(ctrl)
	srv.SetJournal(db)
	srv.SetNodeInfo(db)
	srv.SetVersion("9.9.9")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testDaemon{ctrl: ctrl, db: db, url: ts.URL}
}

// run executes the root command with args and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, apiAddr = "", ""
	eventsKind, eventsLimit, eventsSince = "", 20, 0
	configForce = false

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// ─── Status ─────────────────────────────────────────────────────────────────

func TestStatus(t *testing.T) {
	d := startDaemon(t)
	out, err := run(t, "status", "--addr", d.url)
	require.NoError(t, err)

	assert.Contains(t, out, "9.9.9")
	assert.Contains(t, out, "big+little")
	assert.Contains(t, out, "4/4 active")
	assert.Contains(t, out, "3/4 active")
	assert.Contains(t, out, "up 2, down 7")
}

func TestStatus_DaemonDown(t *testing.T) {
	_, err := run(t, "status", "--addr", "127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

// ─── Tunables ───────────────────────────────────────────────────────────────

func TestTunables_List(t *testing.T) {
	d := startDaemon(t)
	out, err := run(t, "tunables", "--addr", d.url)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "load_threshold_up")
	assert.Equal(t, 9, strings.Count(out, "\n"), "header plus eight tunables")
}

func TestTunables_GetSet(t *testing.T) {
	d := startDaemon(t)

	out, err := run(t, "tunables", "set", "vote_threshold_up", "5", "--addr", d.url)
	require.NoError(t, err)
	assert.Equal(t, "vote_threshold_up = 5\n", out)
	assert.Equal(t, 5, d.ctrl.tunables.VoteThresholdUp())

	out, err = run(t, "tunables", "get", "vote_threshold_up", "--addr", d.url)
	require.NoError(t, err)
	assert.Equal(t, "5\n", out)

	stored, err := d.db.Tunables()
	require.NoError(t, err)
	assert.Equal(t, "5", stored["vote_threshold_up"])

	out, err = run(t, "tunables", "reset", "vote_threshold_up", "--addr", d.url)
	require.NoError(t, err)
	assert.Contains(t, out, "removed")
	stored, err = d.db.Tunables()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestTunables_SetInvalid(t *testing.T) {
	d := startDaemon(t)
	_, err := run(t, "tunables", "set", "load_threshold_down", "101", "--addr", d.url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")

	_, err = run(t, "tunables", "get", "nope", "--addr", d.url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tunable")
}

// ─── Power ──────────────────────────────────────────────────────────────────

func TestSuspendResume(t *testing.T) {
	d := startDaemon(t)

	out, err := run(t, "suspend", "--addr", d.url)
	require.NoError(t, err)
	assert.Equal(t, "suspended\n", out)
	assert.True(t, d.ctrl.Status().Suspended)

	out, err = run(t, "resume", "--addr", d.url)
	require.NoError(t, err)
	assert.Equal(t, "resumed\n", out)
	assert.False(t, d.ctrl.Status().Suspended)
}

func TestSuspendTwiceReportsEachTime(t *testing.T) {
	d := startDaemon(t)

	for i := 0; i < 2; i++ {
		out, err := run(t, "suspend", "--addr", d.url)
		require.NoError(t, err)
		assert.Equal(t, "suspended\n", out)
		assert.NotContains(t, out, "suspendd")
	}
}

// ─── Events ─────────────────────────────────────────────────────────────────

func TestEvents(t *testing.T) {
	d := startDaemon(t)

	out, err := run(t, "events", "--addr", d.url)
	require.NoError(t, err)
	assert.Equal(t, "No events.\n", out)

	now := time.Now()
	require.NoError(t, d.db.RecordEvent(domain.Event{
		ID: "0123456789abcdef", Kind: domain.EventPolicyChanged, At: now, Policy: domain.PolicyBoth, Detail: "engage",
	}))
	require.NoError(t, d.db.RecordEvent(domain.Event{
		ID: "fedcba9876543210", Kind: domain.EventSuspended, At: now.Add(time.Millisecond),
	}))

	out, err = run(t, "events", "--addr", d.url)
	require.NoError(t, err)
	assert.Contains(t, out, "policy_changed")
	assert.Contains(t, out, "01234567")
	assert.Contains(t, out, "suspended")

	out, err = run(t, "events", "--kind", "suspended", "--addr", d.url)
	require.NoError(t, err)
	assert.NotContains(t, out, "policy_changed")

	out, err = run(t, "events", "0123456789abcdef", "--addr", d.url)
	require.NoError(t, err)
	assert.Contains(t, out, "Detail:  engage")

	_, err = run(t, "events", "missing", "--addr", d.url)
	assert.Error(t, err)
}

// ─── Config & Version ───────────────────────────────────────────────────────

func TestConfigInitShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	out, err := run(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = run(t, "config", "init", "--config", path)
	assert.Error(t, err, "init must not overwrite without --force")

	out, err = run(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "[controller.tunables]")
	assert.Contains(t, out, "load_threshold_up = 80")
}

func TestVersion(t *testing.T) {
	d := startDaemon(t)
	require.NoError(t, d.db.SetNodeInfo("units", "8"))
	out, err := run(t, "version", "--addr", d.url)
	require.NoError(t, err)
	assert.Contains(t, out, "daemon: 9.9.9")
	assert.Contains(t, out, "  units: 8\n")

	out, err = run(t, "version", "--addr", "127.0.0.1:1")
	require.NoError(t, err)
	assert.Contains(t, out, "daemon: not running")
}

func TestDaemonAddr_FromConfig(t *testing.T) {
	t.Setenv("CLUSTERPLUG_HOME", t.TempDir())
	configPath, apiAddr = "", ""
	assert.Equal(t, "127.0.0.1:7423", daemonAddr())

	apiAddr = "10.0.0.2:9000"
	assert.Equal(t, "10.0.0.2:9000", daemonAddr())
	apiAddr = ""
}
