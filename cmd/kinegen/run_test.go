package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/kinegen/internal/cachestore"
	"github.com/banshee-data/kinegen/internal/kine"
	"github.com/banshee-data/kinegen/internal/monitor"
	"github.com/banshee-data/kinegen/internal/monitoring"
	"github.com/banshee-data/kinegen/internal/pdg"
)

func quietLogs(t *testing.T) {
	t.Helper()
	old := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = old })
}

func smallOptions(t *testing.T) options {
	t.Helper()
	cfg := kine.DefaultConfig()
	cfg.NucleonThrows = 50
	cfg.SearchMaxLayers = 10
	in, err := kine.NewInteraction(pdg.NuMu, 1.5, pdg.IonCode(12, 6), pdg.Neutron, kine.ProcessCC)
	require.NoError(t, err)
	return options{
		Config:      cfg,
		Interaction: in,
		Events:      20,
		Workers:     3,
		Seed:        7,
		CacheDB:     filepath.Join(t.TempDir(), "cache.db"),
		Registerer:  prometheus.NewRegistry(),
	}
}

func TestRun_WritesOneRowPerEvent(t *testing.T) {
	quietLogs(t)
	opts := smallOptions(t)
	opts.PlotsDir = t.TempDir()

	var buf bytes.Buffer
	sum, err := run(context.Background(), opts, &buf)
	require.NoError(t, err)
	assert.Equal(t, opts.Events, sum.Accepted+sum.Exhausted+sum.Blocked)
	assert.Positive(t, sum.Accepted)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, opts.Events+1)
	assert.Equal(t, csvHeader, rows[0])

	runID := rows[1][0]
	seen := make(map[string]bool)
	for _, row := range rows[1:] {
		assert.Len(t, row, len(csvHeader))
		assert.Equal(t, runID, row[0])
		assert.False(t, seen[row[1]], "event %s written twice", row[1])
		seen[row[1]] = true
	}

	_, err = os.Stat(filepath.Join(opts.PlotsDir, "report.html"))
	assert.NoError(t, err)
}

func TestRun_PersistsCacheBetweenRuns(t *testing.T) {
	quietLogs(t)
	opts := smallOptions(t)

	_, err := run(context.Background(), opts, &bytes.Buffer{})
	require.NoError(t, err)

	store, err := cachestore.Open(opts.CacheDB)
	require.NoError(t, err)
	knots, err := store.Load()
	require.NoError(t, err)
	runs, err := store.Runs()
	require.NoError(t, err)
	require.NoError(t, store.Close())

	require.NotEmpty(t, knots)
	assert.Len(t, runs, 1)
	for _, k := range knots {
		assert.Equal(t, 1.5, k.Energy)
		assert.Positive(t, k.MaxRate)
	}

	opts.Registerer = prometheus.NewRegistry()
	_, err = run(context.Background(), opts, &bytes.Buffer{})
	require.NoError(t, err)

	store, err = cachestore.Open(opts.CacheDB)
	require.NoError(t, err)
	defer store.Close()
	runs, err = store.Runs()
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRun_MissingInteraction(t *testing.T) {
	opts := smallOptions(t)
	opts.Interaction = nil

	_, err := run(context.Background(), opts, &bytes.Buffer{})
	assert.ErrorIs(t, err, kine.ErrInvalidInteraction)
}

func TestRun_NegativeEvents(t *testing.T) {
	opts := smallOptions(t)
	opts.Events = -1
	_, err := run(context.Background(), opts, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRun_CancelledContext(t *testing.T) {
	quietLogs(t)
	opts := smallOptions(t)
	opts.CacheDB = ""
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := run(ctx, opts, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatRow_WithoutKinematics(t *testing.T) {
	row := formatRow("run", result{event: 3, worker: 1, outcome: "exhausted", iters: 1000})
	require.Len(t, row, len(csvHeader))
	assert.Equal(t, []string{"run", "3", "1", "exhausted", "1000"}, row[:5])
	assert.Empty(t, strings.Join(row[5:], ""))
}

func TestStatusMux(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := kine.NewMetrics(reg)
	m.IncrementEvent("accepted")
	rec := monitor.NewRecorder()
	rec.ObserveOutcome(monitor.OutcomeAccepted)
	rec.ObserveOutcome(monitor.OutcomeBlocked)

	srv := httptest.NewServer(statusMux(reg, rec))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, body.String(), `kinegen_events_total{outcome="accepted"} 1`)

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	var sum monitor.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sum))
	resp.Body.Close()
	assert.Equal(t, 1, sum.Accepted)
	assert.Equal(t, 1, sum.Blocked)

	resp, err = http.Post(srv.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
