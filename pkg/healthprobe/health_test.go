package healthprobe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(h http.HandlerFunc) (*httptest.ResponseRecorder, ProbeResponse) {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	var resp ProbeResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestHealth_AlwaysOK(t *testing.T) {
	hc := New()

	w, resp := probe(hc.Health())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", resp.Status)
	assert.NotEmpty(t, resp.Uptime)
}

func TestReady_FollowsFlag(t *testing.T) {
	hc := New()

	w, resp := probe(hc.Ready())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not_ready", resp.Status)

	hc.SetReady(true)
	w, resp = probe(hc.Ready())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", resp.Status)

	hc.SetReady(false)
	w, _ = probe(hc.Ready())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
