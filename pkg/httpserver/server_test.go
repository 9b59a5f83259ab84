package httpserver

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/controller"
	"github.com/mirrordesk/perp-mirror/internal/storage"
	"github.com/mirrordesk/perp-mirror/internal/supervisor"
	"github.com/mirrordesk/perp-mirror/pkg/healthprobe"
)

type statusStub struct {
	snap supervisor.StatsSnapshot
}

func (s *statusStub) Snapshot() supervisor.StatsSnapshot { return s.snap }

type storeStub struct {
	ratioChanges []*storage.RatioAudit
	err          error
}

func (s *storeStub) RecordEvent(ctx context.Context, ev *storage.MirrorEvent) error { return s.err }

func (s *storeStub) RecordRatioChange(ctx context.Context, ra *storage.RatioAudit) error {
	if s.err != nil {
		return s.err
	}
	s.ratioChanges = append(s.ratioChanges, ra)
	return nil
}

func (s *storeStub) Close() error { return nil }

func newTestServer(t *testing.T, ready bool) (*Server, *controller.Controller, *storeStub) {
	t.Helper()
	logger := zap.NewNop()
	hc := healthprobe.New()
	hc.SetReady(ready)

	ctl := controller.New(&controller.Config{EnabledDefault: true, RatioDefault: 1.0, Logger: logger})
	store := &storeStub{}
	srv := New(&Config{
		Port:          "0",
		Logger:        logger,
		HealthChecker: hc,
		Status:        &statusStub{snap: supervisor.StatsSnapshot{Enabled: true, Ratio: 1.0, SourcePrice: 100000}},
		Controller:    ctl,
		Store:         store,
	})
	return srv, ctl, store
}

func do(srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthAndReadyEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t, false)

	assert.Equal(t, http.StatusOK, do(srv, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(srv, http.MethodGet, "/ready", nil).Code)

	ready, _, _ := newTestServer(t, true)
	assert.Equal(t, http.StatusOK, do(ready, http.MethodGet, "/ready", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, true)

	w := do(srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
}

func TestStatusEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, true)

	w := do(srv, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var snap supervisor.StatsSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.True(t, snap.Enabled)
	assert.Equal(t, 100000.0, snap.SourcePrice)
}

func TestSetEnabled(t *testing.T) {
	srv, ctl, _ := newTestServer(t, true)

	body, _ := json.Marshal(SetEnabledRequest{Enabled: false, By: "ops"})
	w := do(srv, http.MethodPost, "/api/control/enabled", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, ctl.Enabled())

	var state ControlState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.False(t, state.Enabled)
}

func TestSetRatio_PersistsAudit(t *testing.T) {
	srv, ctl, store := newTestServer(t, true)

	body, _ := json.Marshal(SetRatioRequest{Ratio: 2.0, By: "ops"})
	w := do(srv, http.MethodPost, "/api/control/ratio", body)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 2.0, ctl.Ratio())
	require.Len(t, store.ratioChanges, 1)
	assert.Equal(t, 1.0, store.ratioChanges[0].Old)
	assert.Equal(t, 2.0, store.ratioChanges[0].New)
	assert.Equal(t, "ops", store.ratioChanges[0].By)
	assert.InDelta(t, 100.0, store.ratioChanges[0].DeltaPct, 1e-9)
}

func TestSetRatio_RejectsInvalid(t *testing.T) {
	srv, ctl, store := newTestServer(t, true)

	body, _ := json.Marshal(SetRatioRequest{Ratio: -1, By: "ops"})
	w := do(srv, http.MethodPost, "/api/control/ratio", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1.0, ctl.Ratio())
	assert.Empty(t, store.ratioChanges)

	w = do(srv, http.MethodPost, "/api/control/ratio", []byte("not json"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestControlState_IncludesAudit(t *testing.T) {
	srv, ctl, _ := newTestServer(t, true)
	_, err := ctl.SetRatio(1.5, "ops")
	require.NoError(t, err)

	w := do(srv, http.MethodGet, "/api/control", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var state ControlState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, 1.5, state.Ratio)
	require.Len(t, state.Audit, 1)
	assert.Equal(t, "ops", state.Audit[0].By)
}

func TestServer_StartAndShutdown(t *testing.T) {
	srv, _, _ := newTestServer(t, true)

	done := make(chan error, 1)
	go func() {
		done <- srv.Start()
	}()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after shutdown")
	}
}

func TestServer_RouteNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, true)
	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodGet, "/nonexistent", nil).Code)
}
