package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeld-project/skeld/internal/config"
	"github.com/skeld-project/skeld/internal/db"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/server"
)

const testToken = "secret"

type testEnv struct {
	srv     *Server
	manager *server.Manager
	store   *db.MatchStore
	cfg     *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.SetPath(filepath.Join(dir, "config.json"))
	rc := cfg.GetRoom()
	rc.PresetsFile = filepath.Join(dir, "presets.yaml")
	cfg.SetRoom(rc)
	app := cfg.GetApplicationData()
	app.Security.APIToken = testToken
	app.Security.RateLimitRPS = 0
	app.Logging.Directory = filepath.Join(dir, "logs")
	cfg.SetApplicationData(app)

	require.NoError(t, os.WriteFile(rc.PresetsFile, []byte("presets:\n  quick:\n    impostors: 2\n    kill_cooldown: 10\n"), 0o644))

	bus := events.NewEventBus()
	mgr, err := server.NewManager(cfg, bus)
	require.NoError(t, err)
	t.Cleanup(mgr.StopAll)

	store, err := db.NewMatchStore(filepath.Join(dir, "skeld.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &testEnv{
		srv:     NewServer(cfg, bus, mgr, nil, store),
		manager: mgr,
		store:   store,
		cfg:     cfg,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestPingIsPublic(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/public/ping", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Body.String(), `"skeld"`)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/rooms", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoomLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/api/rooms", map[string]interface{}{
		"code":   "abcdef",
		"preset": "quick",
		"public": true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "ABCDEF", body["code"])

	w, _ = env.do(t, http.MethodPost, "/api/rooms", map[string]interface{}{"code": "ABCDEF"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = env.do(t, http.MethodGet, "/api/rooms", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])

	w, body = env.do(t, http.MethodGet, "/api/rooms/abcdef", nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := body["state"].(map[string]interface{})
	assert.EqualValues(t, 2, state["impostors"])

	w, body = env.do(t, http.MethodPatch, "/api/rooms/ABCDEF/settings", map[string]interface{}{"impostors": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, body["settings"])

	w, body = env.do(t, http.MethodPost, "/api/rooms/ABCDEF/privacy", map[string]interface{}{"public": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["public"])

	w, _ = env.do(t, http.MethodPost, "/api/rooms/ABCDEF/preset", map[string]interface{}{"name": "missing"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/rooms/ABCDEF/end", map[string]interface{}{"reason": "humans_by_vote"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/rooms/ABCDEF/end", map[string]interface{}{"reason": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/rooms/ABCDEF/kick", map[string]interface{}{"client_id": 99})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/rooms/ABCDEF/replay", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodDelete, "/api/rooms/ABCDEF", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/rooms/ABCDEF", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicRoomList(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.CreateRoom(server.CreateOptions{Code: "PUBLIC", Public: true})
	require.NoError(t, err)
	_, err = env.manager.CreateRoom(server.CreateOptions{Code: "HIDDEN"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/api/public/rooms", nil)
		w := httptest.NewRecorder()
		env.srv.Handler().ServeHTTP(w, req)
		var body struct {
			Rooms []publicRoom `json:"rooms"`
		}
		if json.Unmarshal(w.Body.Bytes(), &body) != nil {
			return false
		}
		return len(body.Rooms) == 1 && body.Rooms[0].Code == "PUBLIC"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMatchHistory(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.RecordStart(events.GameStartedPayload{
		Code: "ABCDEF", MatchID: "m1", Map: "The Skeld", StartedAt: time.Now(),
	}))

	w, body := env.do(t, http.MethodGet, "/api/matches", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])

	w, body = env.do(t, http.MethodGet, "/api/matches/m1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "The Skeld", body["map"])

	w, _ = env.do(t, http.MethodGet, "/api/matches/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = env.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])
}

func TestAlerts(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.CreateAlert("lag", "warning", "slow room"))

	w, body := env.do(t, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	alerts := body["alerts"].([]interface{})
	require.Len(t, alerts, 1)
	id := int(alerts[0].(map[string]interface{})["id"].(float64))

	w, _ = env.do(t, http.MethodPost, "/api/alerts/"+strconv.Itoa(id)+"/ack", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/alerts/x/ack", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetRoomField(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodPut, "/api/config/room/max_rooms", map[string]interface{}{"value": 4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 4, env.cfg.GetRoom().MaxRooms)

	w, _ = env.do(t, http.MethodPut, "/api/config/room/tick_rate_hz", map[string]interface{}{"value": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, config.DefaultTickRate, env.cfg.GetRoom().TickRateHz)

	w, _ = env.do(t, http.MethodPut, "/api/config/room/nope", map[string]interface{}{"value": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := env.do(t, http.MethodPut, "/api/config/app/api", map[string]interface{}{"value": map[string]interface{}{"port": 9090}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["restart_required"])
	assert.Equal(t, 9090, env.cfg.GetApplicationData().API.Port)

	w, _ = env.do(t, http.MethodPut, "/api/config/app/api", map[string]interface{}{"value": map[string]interface{}{"port": 0}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 9090, env.cfg.GetApplicationData().API.Port)

	w, body = env.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	app := body["application_data"].(map[string]interface{})
	sec := app["security"].(map[string]interface{})
	assert.Equal(t, "", sec["api_token"])
}

func TestLogEntries(t *testing.T) {
	env := newTestEnv(t)
	dir := env.cfg.GetApplicationData().Logging.Directory
	require.NoError(t, os.MkdirAll(dir, 0o755))
	lines := `{"level":"info","time":"2026-01-01T00:00:00Z","message":"room created","code":"ABCDEF"}
not json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skeld.log"), []byte(lines), 0o644))

	entries, err := readRecentLogEntries(dir, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "room created", entries[0].Message)
	assert.Equal(t, "ABCDEF", entries[0].Fields["code"])
	assert.Equal(t, "not json", entries[1].Message)

	entries, err = readRecentLogEntries(dir, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Unix(0, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))

	now = now.Add(bucketIdle + time.Second)
	assert.True(t, rl.Allow("c"))
	rl.mu.Lock()
	assert.Len(t, rl.buckets, 1)
	rl.mu.Unlock()
}
