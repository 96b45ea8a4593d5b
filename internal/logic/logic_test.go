package logic

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/protocol"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func TestImpostorCount(t *testing.T) {
	opts := protocol.DefaultGameOptions()
	opts.Impostors = 3

	tests := []struct {
		players int
		want    int
	}{
		{players: 1, want: 0},
		{players: 4, want: 1},
		{players: 7, want: 2},
		{players: 10, want: 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ImpostorCount(opts, tt.players), "players=%d", tt.players)
	}

	opts.Impostors = 1
	assert.Equal(t, 1, ImpostorCount(opts, 10))
}

func TestSelectImpostorsDeterministic(t *testing.T) {
	candidates := []uint8{4, 1, 3, 2, 5, 6, 7}

	a := SelectImpostors(newRand(7), candidates, 2)
	b := SelectImpostors(newRand(7), []uint8{7, 6, 5, 4, 3, 2, 1}, 2)

	require.Len(t, a, 2)
	assert.Equal(t, a, b, "candidate order must not change the pick")
	assert.True(t, a[0] < a[1])
	for _, id := range a {
		assert.Contains(t, candidates, id)
	}

	assert.Len(t, SelectImpostors(newRand(1), []uint8{1, 2}, 5), 2)
	assert.Empty(t, SelectImpostors(newRand(1), []uint8{1, 2}, -1))
}

func TestAssignTasks(t *testing.T) {
	opts := protocol.DefaultGameOptions()
	opts.CommonTasks, opts.LongTasks, opts.ShortTasks = 2, 1, 3

	got := AssignTasks(newRand(3), content.MapTheSkeld, opts, []uint8{1, 2, 3})
	require.Len(t, got, 3)

	common := got[1][:2]
	for id, list := range got {
		assert.Len(t, list, 6, "player %d", id)
		assert.Equal(t, common, list[:2], "common tasks are shared")
		for i, taskID := range list {
			task, ok := content.TaskByID(content.MapTheSkeld, taskID)
			require.True(t, ok)
			switch {
			case i < 2:
				assert.Equal(t, content.TaskCommon, task.Length)
			case i < 3:
				assert.Equal(t, content.TaskLong, task.Length)
			default:
				assert.Equal(t, content.TaskShort, task.Length)
			}
		}
	}
}

func TestClampOptions(t *testing.T) {
	o := protocol.DefaultGameOptions()
	o.MaxPlayers = 200
	o.Impostors = 0
	o.PlayerSpeed = 9
	o.Map = content.MapID(42)

	got := ClampOptions(o)
	assert.EqualValues(t, 15, got.MaxPlayers)
	assert.EqualValues(t, 1, got.Impostors)
	assert.EqualValues(t, 3, got.PlayerSpeed)
	assert.Equal(t, content.MapTheSkeld, got.Map)
}

func TestOptionsPatch(t *testing.T) {
	impostors := byte(2)
	polus := content.MapPolus
	patch := OptionsPatch{Impostors: &impostors, Map: &polus}

	base := protocol.DefaultGameOptions()
	got := patch.Apply(base)

	assert.EqualValues(t, 2, got.Impostors)
	assert.Equal(t, content.MapPolus, got.Map)
	assert.Equal(t, base.KillCooldown, got.KillCooldown, "unset fields are left alone")
	assert.False(t, got.IsDefaults)

	assert.Equal(t, base, OptionsPatch{}.Apply(base))
}

func TestLoadPresets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	raw := []byte(`presets:
  classic:
    impostors: 2
    map: 1
  speedy:
    player_speed: 2.5
    kill_cooldown: 100
`)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	presets, err := LoadPresets(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"classic", "speedy"}, PresetNames(presets))

	assert.EqualValues(t, 2, presets["classic"].Impostors)
	assert.Equal(t, content.MapMiraHQ, presets["classic"].Map)
	assert.EqualValues(t, 2.5, presets["speedy"].PlayerSpeed)
	assert.EqualValues(t, 60, presets["speedy"].KillCooldown, "out-of-range values are clamped")

	_, err = LoadPresets(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParsePresets([]byte("presets: [1, 2"))
	assert.Error(t, err)
}

func TestCheckEnd(t *testing.T) {
	crew := func(tasks, done int) PlayerState { return PlayerState{Tasks: tasks, Done: done} }
	impostor := PlayerState{Impostor: true}

	tests := []struct {
		name    string
		players []PlayerState
		cause   Cause
		want    []protocol.GameOverReason
	}{
		{
			name:    "game continues",
			players: []PlayerState{impostor, crew(2, 0), crew(2, 1)},
		},
		{
			name:    "impostor ejected",
			players: []PlayerState{{Impostor: true, Dead: true}, crew(2, 0), crew(2, 0)},
			cause:   CauseExile,
			want:    []protocol.GameOverReason{protocol.GameOverHumansByVote},
		},
		{
			name:    "impostor left",
			players: []PlayerState{{Impostor: true, Disconnected: true}, crew(2, 0), crew(2, 0)},
			cause:   CauseDisconnect,
			want:    []protocol.GameOverReason{protocol.GameOverImpostorDisconnect},
		},
		{
			name:    "no impostor in game",
			players: []PlayerState{crew(2, 0)},
			cause:   CauseTick,
		},
		{
			name:    "no impostor finishes tasks",
			players: []PlayerState{crew(2, 2)},
			cause:   CauseTick,
			want:    []protocol.GameOverReason{protocol.GameOverHumansByTask},
		},
		{
			name:    "kill parity",
			players: []PlayerState{impostor, crew(2, 0), {Dead: true, Tasks: 2}},
			cause:   CauseKill,
			want:    []protocol.GameOverReason{protocol.GameOverImpostorByKill},
		},
		{
			name:    "vote parity",
			players: []PlayerState{impostor, crew(2, 0), {Dead: true, Tasks: 2}},
			cause:   CauseExile,
			want:    []protocol.GameOverReason{protocol.GameOverImpostorByVote},
		},
		{
			name:    "tasks done",
			players: []PlayerState{impostor, crew(2, 2), crew(1, 1), {Dead: true, Tasks: 1, Done: 1}},
			want:    []protocol.GameOverReason{protocol.GameOverHumansByTask},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []protocol.GameOverReason
			for _, c := range CheckEnd(tt.players, tt.cause) {
				got = append(got, c.Reason)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Empty(t, CheckEnd(nil, CauseTick))
}
