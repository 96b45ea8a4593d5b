package server

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/skeld-project/skeld/internal/config"
	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/logic"
	"github.com/skeld-project/skeld/internal/protocol"
	"github.com/skeld-project/skeld/internal/replay"
	"github.com/skeld-project/skeld/internal/room"
)

const waitFor = 2 * time.Second

type mockTransport struct {
	mock.Mock
}

func (t *mockTransport) Broadcaster(code string) room.Broadcaster {
	args := t.Called(code)
	if b, ok := args.Get(0).(room.Broadcaster); ok {
		return b
	}
	return nil
}

func (t *mockTransport) Disconnect(code string, clientID int32, grace time.Duration) {
	t.Called(code, clientID, grace)
}

func (t *mockTransport) CloseRoom(code string) {
	t.Called(code)
}

type busRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *busRecorder) handle(_ context.Context, e events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *busRecorder) of(t events.EventType) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	rc := cfg.GetRoom()
	rc.PresetsFile = filepath.Join(t.TempDir(), "missing.yaml")
	cfg.SetRoom(rc)
	return cfg
}

func newTestManager(t *testing.T, cfg *config.Config) (*Manager, *mockTransport, *busRecorder) {
	t.Helper()
	bus := events.NewEventBus()
	rec := &busRecorder{}
	for _, et := range []events.EventType{
		events.EventRoomCreated, events.EventRoomDestroyed,
		events.EventPlayerJoined, events.EventPlayerLeft,
		events.EventPrivacyChanged, events.EventSettingsChanged,
	} {
		bus.Subscribe(et, "test", rec.handle)
	}

	mgr, err := NewManager(cfg, bus)
	require.NoError(t, err)

	tr := &mockTransport{}
	tr.On("Broadcaster", mock.Anything).Return(nil)
	tr.On("CloseRoom", mock.Anything).Return()
	tr.On("Disconnect", mock.Anything, mock.Anything, mock.Anything).Return()
	mgr.SetTransport(tr)

	t.Cleanup(func() {
		mgr.StopAll()
		bus.Stop()
	})
	return mgr, tr, rec
}

func TestCreateRoomAndList(t *testing.T) {
	mgr, tr, rec := newTestManager(t, testConfig(t))

	inst, err := mgr.CreateRoom(CreateOptions{})
	require.NoError(t, err)
	assert.Len(t, inst.Code(), 6)
	assert.NotEmpty(t, inst.SessionID())

	got, ok := mgr.Get(inst.Code())
	require.True(t, ok)
	assert.Same(t, inst, got)
	assert.Equal(t, 1, mgr.RoomCount())

	list := mgr.List()
	require.Len(t, list, 1)
	assert.Equal(t, inst.Code(), list[0].Code)
	assert.Equal(t, 50, list[0].TickRate)
	assert.Equal(t, events.RoomPhaseLobby, list[0].State.Phase)

	tr.AssertCalled(t, "Broadcaster", inst.Code())
	require.Eventually(t, func() bool { return len(rec.of(events.EventRoomCreated)) == 1 }, waitFor, 10*time.Millisecond)
}

func TestCreateRoomWithCode(t *testing.T) {
	mgr, _, _ := newTestManager(t, testConfig(t))

	inst, err := mgr.CreateRoom(CreateOptions{Code: "abcd"})
	require.NoError(t, err)
	assert.Equal(t, "ABCD", inst.Code())

	_, err = mgr.CreateRoom(CreateOptions{Code: "ABCD"})
	assert.ErrorIs(t, err, ErrRoomExists)

	_, err = mgr.CreateRoom(CreateOptions{Code: "AB1D"})
	assert.Error(t, err)
}

func TestRoomLimit(t *testing.T) {
	cfg := testConfig(t)
	rc := cfg.GetRoom()
	rc.MaxRooms = 1
	cfg.SetRoom(rc)
	mgr, _, _ := newTestManager(t, cfg)

	_, err := mgr.CreateRoom(CreateOptions{})
	require.NoError(t, err)
	_, err = mgr.CreateRoom(CreateOptions{})
	assert.ErrorIs(t, err, ErrTooManyRooms)
}

func TestJoinAndLeave(t *testing.T) {
	mgr, _, rec := newTestManager(t, testConfig(t))
	inst, err := mgr.CreateRoom(CreateOptions{})
	require.NoError(t, err)

	id, err := mgr.Join(inst.Code())
	require.NoError(t, err)
	assert.Equal(t, int32(1), id)

	require.Eventually(t, func() bool { return mgr.PlayerCount() == 1 }, waitFor, 10*time.Millisecond)
	players, err := mgr.Players(inst.Code())
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, int32(1), players[0].ClientID)
	assert.Equal(t, -1, players[0].PlayerID)

	mgr.Leave(inst.Code(), id)
	require.Eventually(t, func() bool { return mgr.PlayerCount() == 0 }, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(rec.of(events.EventPlayerJoined)) == 1 && len(rec.of(events.EventPlayerLeft)) == 1
	}, waitFor, 10*time.Millisecond)

	_, err = mgr.Join("QQQQ")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestJoinFullRoom(t *testing.T) {
	mgr, _, _ := newTestManager(t, testConfig(t))
	settings := protocol.DefaultGameOptions()
	settings.MaxPlayers = 4
	inst, err := mgr.CreateRoom(CreateOptions{Settings: &settings})
	require.NoError(t, err)

	for range 4 {
		_, err := mgr.Join(inst.Code())
		require.NoError(t, err)
	}
	_, err = mgr.Join(inst.Code())
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestPresetsAndPatch(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("presets:\n  duo:\n    impostors: 2\n    kill_cooldown: 20\n"), 0o644))
	rc := cfg.GetRoom()
	rc.PresetsFile = path
	cfg.SetRoom(rc)

	mgr, _, rec := newTestManager(t, cfg)
	assert.Equal(t, []string{"duo"}, mgr.Presets())

	_, err := mgr.CreateRoom(CreateOptions{Preset: "nope"})
	assert.ErrorIs(t, err, ErrUnknownPreset)

	inst, err := mgr.CreateRoom(CreateOptions{Preset: "duo"})
	require.NoError(t, err)
	assert.Equal(t, byte(2), inst.State().GetSettings().Impostors)

	polus := content.MapPolus
	speed := float32(1.5)
	settings, err := mgr.PatchSettings(context.Background(), inst.Code(), logic.OptionsPatch{Map: &polus, PlayerSpeed: &speed})
	require.NoError(t, err)
	assert.Equal(t, content.MapPolus, settings.Map)
	assert.Equal(t, byte(2), settings.Impostors)
	assert.InDelta(t, 1.5, settings.PlayerSpeed, 0.001)
	assert.Equal(t, content.MapPolus, inst.State().GetSettings().Map)

	require.Eventually(t, func() bool { return len(rec.of(events.EventSettingsChanged)) == 1 }, waitFor, 10*time.Millisecond)

	_, err = mgr.ApplyPreset(context.Background(), inst.Code(), "missing")
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestSetPrivacy(t *testing.T) {
	mgr, _, rec := newTestManager(t, testConfig(t))
	inst, err := mgr.CreateRoom(CreateOptions{})
	require.NoError(t, err)

	public, err := mgr.SetPrivacy(context.Background(), inst.Code(), true)
	require.NoError(t, err)
	assert.True(t, public)
	assert.True(t, inst.State().Snapshot().Public)

	require.Eventually(t, func() bool { return len(rec.of(events.EventPrivacyChanged)) == 1 }, waitFor, 10*time.Millisecond)
}

func TestEndGameWithoutGame(t *testing.T) {
	mgr, _, _ := newTestManager(t, testConfig(t))
	inst, err := mgr.CreateRoom(CreateOptions{})
	require.NoError(t, err)

	err = mgr.EndGame(context.Background(), inst.Code(), protocol.GameOverHumansByVote)
	assert.ErrorIs(t, err, ErrGameNotStarted)
}

func TestDestroyRoom(t *testing.T) {
	mgr, tr, rec := newTestManager(t, testConfig(t))
	inst, err := mgr.CreateRoom(CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, mgr.DestroyRoom(inst.Code()))
	_, ok := mgr.Get(inst.Code())
	assert.False(t, ok)
	assert.Equal(t, events.RoomPhaseDestroyed, inst.State().GetPhase())
	tr.AssertCalled(t, "CloseRoom", inst.Code())

	require.Eventually(t, func() bool { return len(rec.of(events.EventRoomDestroyed)) == 1 }, waitFor, 10*time.Millisecond)
	assert.ErrorIs(t, mgr.DestroyRoom(inst.Code()), ErrRoomNotFound)
}

func TestRoomRecording(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	app := cfg.GetApplicationData()
	app.Replay.Enabled = true
	app.Replay.Directory = dir
	cfg.SetApplicationData(app)

	mgr, _, _ := newTestManager(t, cfg)
	inst, err := mgr.CreateRoom(CreateOptions{Public: true})
	require.NoError(t, err)
	require.NotEmpty(t, inst.RecordingPath())

	_, err = mgr.Join(inst.Code())
	require.NoError(t, err)
	require.NoError(t, mgr.DestroyRoom(inst.Code()))

	entries, err := replay.ReadAll(inst.RecordingPath())
	require.NoError(t, err)
	require.NotNil(t, entries[0].Header)
	assert.Equal(t, inst.SessionID(), entries[0].Header.MatchID)
	assert.True(t, entries[0].Header.Public)

	var joins int
	for _, e := range entries {
		if e.Kind == replay.KindJoin {
			joins++
		}
	}
	assert.Equal(t, 1, joins)
}

func TestStopAllRejectsNewRooms(t *testing.T) {
	mgr, _, _ := newTestManager(t, testConfig(t))
	_, err := mgr.CreateRoom(CreateOptions{})
	require.NoError(t, err)

	mgr.StopAll()
	assert.Zero(t, mgr.RoomCount())
	_, err = mgr.CreateRoom(CreateOptions{})
	assert.ErrorIs(t, err, ErrManagerStopping)
}

func TestLagMonitor(t *testing.T) {
	lm := NewLagMonitor(nil)
	for range LagWarningThreshold {
		lm.Observe("ABCD", 80*time.Millisecond)
	}
	lm.Observe("ABCD", 200*time.Millisecond)

	data, ok := lm.GetRoomData("ABCD")
	require.True(t, ok)
	assert.Equal(t, LagWarningThreshold+1, data.TotalEvents)
	assert.Equal(t, int64(200), data.MaxDelta)

	alerts := lm.CheckThresholds()
	require.Len(t, alerts, 1)
	assert.Equal(t, "warning", alerts[0].Level)

	_, ok = lm.GetRoomData("EFGH")
	assert.False(t, ok)
}

func TestRoomStateKeepsJoinTime(t *testing.T) {
	s := NewRoomState(protocol.DefaultGameOptions())
	s.ReplacePlayers(1, []PlayerInfo{{ClientID: 1}})
	first := s.GetPlayers()[0].JoinedAt
	require.False(t, first.IsZero())

	s.ReplacePlayers(1, []PlayerInfo{{ClientID: 1, Name: "red"}, {ClientID: 2}})
	players := s.GetPlayers()
	require.Len(t, players, 2)
	assert.Equal(t, first, players[0].JoinedAt)
	assert.Equal(t, "red", players[0].Name)
	assert.Equal(t, 2, s.Snapshot().PlayerCount)
}
