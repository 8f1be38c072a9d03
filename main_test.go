package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ztkent/lux-meter/internal/config"
	slm "github.com/ztkent/lux-meter/internal/sunlightmeter"
	"github.com/ztkent/lux-meter/internal/tools"
	"github.com/ztkent/lux-meter/veml7700"
)

func newTestServer(t *testing.T, localOnly bool) *httptest.Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SensorType = config.SensorSimulation
	cfg.SimulatedLux = 50

	bus, device, err := connectSensor(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })

	db, err := tools.ConnectSqlite(filepath.Join(t.TempDir(), "lux.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	meter := &slm.SLMeter{
		VEML7700:       device,
		ResultsDB:      db,
		LuxResultsChan: make(chan slm.LuxResults),
	}
	t.Cleanup(func() { close(meter.LuxResultsChan) })
	r := chi.NewRouter()
	r.Use(handleServerPanic)
	defineRoutes(r, meter, localOnly)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestServiceID(t *testing.T) {
	srv := newTestServer(t, true)

	resp, err := http.Get(srv.URL + "/id")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Lux Meter", body["service_name"])
}

func TestExposureAPI(t *testing.T) {
	// loopback passes the in-network check
	srv := newTestServer(t, true)

	resp, err := http.PostForm(srv.URL+"/api/v1/exposure", url.Values{
		"gain":           {"2x"},
		"integration_ms": {"200"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/exposure")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status slm.ExposureStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.Connected)
	assert.Equal(t, "2x", status.Gain)
	assert.Equal(t, 200, status.IntegrationMs)
	assert.Equal(t, veml7700.DefaultThresholds.Low, status.Low)
	assert.Equal(t, veml7700.DefaultThresholds.High, status.High)
}

func TestReadAPI(t *testing.T) {
	srv := newTestServer(t, false)

	resp, err := http.Get(srv.URL + "/api/v1/read")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"))
}

func TestOpenBus(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SensorType = config.SensorSimulation
	bus, err := openBus(cfg)
	require.NoError(t, err)
	assert.IsType(t, &veml7700.Simulator{}, bus)

	cfg = config.DefaultConfig()
	cfg.BusDriver = "spi"
	_, err = openBus(cfg)
	assert.Error(t, err)
}

func TestConnectSensorBadExposure(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SensorType = config.SensorSimulation
	cfg.Gain = "3x"
	bus, device, err := connectSensor(cfg)
	assert.Error(t, err)
	assert.Nil(t, bus)
	assert.Nil(t, device)
}
