package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeld-project/skeld/internal/events"
)

func newTestStore(t *testing.T) *MatchStore {
	t.Helper()
	s, err := NewMatchStore(filepath.Join(t.TempDir(), "skeld.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func roster() []events.PlayerSummary {
	return []events.PlayerSummary{
		{ClientID: 1, PlayerID: 0, Name: "red", Color: "red", Tasks: 5},
		{ClientID: 2, PlayerID: 1, Name: "blue", Color: "blue", Impostor: true},
	}
}

func TestMatchLifecycle(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, s.RecordStart(events.GameStartedPayload{
		Code: "ABCDEF", MatchID: "m1", Map: "the_skeld", Players: roster(), StartedAt: start,
	}))
	require.NoError(t, s.RecordMurder(events.MurderPayload{Code: "ABCDEF", MatchID: "m1", Killer: 1, Victim: 0}))
	require.NoError(t, s.RecordMeeting(events.MeetingPayload{
		Code: "ABCDEF", MatchID: "m1", Caller: 1, Body: 0, Exiled: 1, Duration: 30 * time.Second,
	}))

	final := roster()
	final[0].Dead = true
	final[0].Done = 3
	require.NoError(t, s.RecordEnd(events.GameEndedPayload{
		Code: "ABCDEF", MatchID: "m1", Reason: "humans_by_vote", Winners: "crewmates",
		Players: final, EndedAt: start.Add(5 * time.Minute),
	}))

	m, err := s.GetMatch("m1")
	require.NoError(t, err)
	assert.Equal(t, "ABCDEF", m.Code)
	assert.Equal(t, "the_skeld", m.Map)
	assert.Equal(t, "crewmates", m.Winners)
	assert.Equal(t, 2, m.PlayerCount)
	require.NotNil(t, m.EndedAt)

	require.Len(t, m.Players, 2)
	assert.True(t, m.Players[0].Dead)
	assert.Equal(t, 3, m.Players[0].TasksDone)
	assert.True(t, m.Players[1].Impostor)

	require.Len(t, m.Meetings, 1)
	assert.Equal(t, 1, m.Meetings[0].Exiled)
	assert.Equal(t, int64(30000), m.Meetings[0].Duration)

	require.Len(t, m.Murders, 1)
	assert.Equal(t, uint8(1), m.Murders[0].Killer)

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 1, st.Finished)
	assert.Equal(t, 1, st.CrewmateWins)
	assert.InDelta(t, 300, st.AvgDuration, 0.001)
}

func TestGetMatchNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetMatch("missing")
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestEndBeforeStart(t *testing.T) {
	s := newTestStore(t)
	start := time.Now().UTC()

	require.NoError(t, s.RecordEnd(events.GameEndedPayload{
		Code: "QWERTY", MatchID: "m2", Reason: "impostor_by_kill", Winners: "impostors", EndedAt: start.Add(time.Minute),
	}))
	require.NoError(t, s.RecordStart(events.GameStartedPayload{
		Code: "QWERTY", MatchID: "m2", Map: "mira_hq", Players: roster(), StartedAt: start,
	}))

	m, err := s.GetMatch("m2")
	require.NoError(t, err)
	assert.Equal(t, "mira_hq", m.Map)
	assert.Equal(t, "impostors", m.Winners)
	assert.Equal(t, 2, m.PlayerCount)
}

func TestListMatches(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordStart(events.GameStartedPayload{
			Code: "ABCDEF", MatchID: id, StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	list, err := s.ListMatches(2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].MatchID)
	assert.Equal(t, "b", list[1].MatchID)
	assert.Nil(t, list[0].EndedAt)

	list, err = s.ListMatches(2, 2)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].MatchID)
}

func TestAlerts(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateAlert("lag", "warning", "slow"))
	require.NoError(t, s.CreateAlert("lag", "critical", "slower"))

	alerts, err := s.GetUnacknowledgedAlerts()
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "critical", alerts[0].Level)

	require.NoError(t, s.AcknowledgeAlert(alerts[0].ID))
	assert.Error(t, s.AcknowledgeAlert(9999))

	alerts, err = s.GetUnacknowledgedAlerts()
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
	assert.NoError(t, s.CleanOldAlerts(7))
}

func TestSubscribeRecordsLagAlerts(t *testing.T) {
	s := newTestStore(t)
	bus := events.NewEventBus()
	s.Subscribe(bus)

	require.NoError(t, bus.EmitSync(context.Background(), events.Event{
		Type:    events.EventLagAlert,
		Payload: events.AlertPayload{Code: "ABCDEF", Level: "warning", Events: 12, Message: "lagging"},
	}))

	alerts, err := s.GetUnacknowledgedAlerts()
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "lagging", alerts[0].Message)
	assert.Equal(t, "lag", alerts[0].Type)
}

func TestMigrationsAreVersioned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skeld.db")
	s, err := NewMatchStore(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordStart(events.GameStartedPayload{Code: "ABCDEF", MatchID: "m1", StartedAt: time.Now()}))

	v, err := s.db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(schema), v)
	require.NoError(t, s.Close())

	s, err = NewMatchStore(path)
	require.NoError(t, err)
	defer s.Close()
	matches, err := s.ListMatches(10, 0)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	assert.Error(t, s.db.Migrate(schema[:1]))
}
