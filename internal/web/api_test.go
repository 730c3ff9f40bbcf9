package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuha.dev/ravevision/internal/store/impl/memstore"
	"nuha.dev/ravevision/internal/web/monitoring"
	"nuha.dev/ravevision/internal/web/webstream"
)

func newApi(t *testing.T) *Api {
	mem := memstore.New(&memstore.Config{})
	t.Cleanup(mem.Close)
	ws := webstream.NewWebstream(mem, webstream.WebStreamConfig{})
	mon := monitoring.NewMonApi(mem, ws)
	return NewApi(ws.GetHandler(), mon.GetHandler(), &ApiConfig{ListenAddr: "127.0.0.1:0"})
}

func TestStatusRoute(t *testing.T) {
	api := newApi(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://example.com")
	api.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res monitoring.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 0, res.Records)
	assert.Equal(t, 0, res.Connections)
	assert.Empty(t, res.Groups)
	require.NotNil(t, res.Stats)
	assert.Equal(t, "http://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebsocketRouteRequiresUpgrade(t *testing.T) {
	api := newApi(t)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUpgradeRequired, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	api := newApi(t)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
