package chongbot

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t testing.TB) *API {
	t.Helper()
	bot := newTestBot(t, newRecordingSession())
	api, err := newAPI(bot, bot.config.API)
	require.NoError(t, err)
	return api
}

func TestAPIStatus(t *testing.T) {
	api := newTestAPI(t)
	api.bot.discord.connected.Store(true)

	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var status statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "ChongBot", status.Bot)
	assert.True(t, status.DiscordConnected)
	assert.NotEmpty(t, status.Uptime)
}

func TestAPIHealthCheck(t *testing.T) {
	api := newTestAPI(t)

	// disconnected: 503, so a supervisor restarts the bot
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	api.bot.discord.connected.Store(true)
	api.bot.discord.metricConnects.Add(1)

	w = httptest.NewRecorder()
	api.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["discord_connected"])
	assert.Equal(t, float64(1), body["connects"])
	assert.Equal(t, float64(0), body["disconnects"])
}

func TestAPICORSDefaultsToWildcard(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPIPprofDisabledByDefault(t *testing.T) {
	api := newTestAPI(t)

	w := httptest.NewRecorder()
	api.engine.ServeHTTP(
		w, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil),
	)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIPprofEnabled(t *testing.T) {
	bot := newTestBot(t, newRecordingSession())
	bot.config.API.EnablePprof = true
	api, err := newAPI(bot, bot.config.API)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	api.engine.ServeHTTP(
		w, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil),
	)
	assert.Equal(t, http.StatusOK, w.Code)
}
