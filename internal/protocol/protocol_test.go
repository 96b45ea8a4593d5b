package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeld-project/skeld/internal/content"
)

func TestPackedUint32(t *testing.T) {
	cases := []struct {
		value uint32
		want  []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xac, 0x02}},
		{0xffffffff, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}
	for _, tc := range cases {
		w := NewWriter().WritePackedUint32(tc.value)
		assert.Equal(t, tc.want, w.Bytes(), "encode %d", tc.value)

		r := NewReader(tc.want)
		assert.Equal(t, tc.value, r.ReadPackedUint32())
		require.NoError(t, r.Err())
	}
}

func TestPackedInt32Negative(t *testing.T) {
	w := NewWriter().WritePackedInt32(-1)
	r := NewReader(w.Bytes())
	assert.Equal(t, int32(-1), r.ReadPackedInt32())
	require.NoError(t, r.Err())
}

func TestReaderStickyError(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	assert.Equal(t, uint8(1), r.ReadUint8())
	assert.Equal(t, uint32(0), r.ReadUint32())
	assert.ErrorIs(t, r.Err(), ErrShortRead)

	// Further reads keep returning zero and the first error.
	assert.Equal(t, uint8(0), r.ReadUint8())
	assert.ErrorIs(t, r.Err(), ErrShortRead)
	assert.Equal(t, 0, r.Left())
}

func TestWriterBeginEnd(t *testing.T) {
	w := NewWriter()
	w.Begin(5)
	w.WriteUint8(0xAA)
	w.Begin(1)
	w.WriteUint16(0x0102)
	w.End()
	w.End()

	assert.Equal(t, []byte{
		0x06, 0x00, 0x05, 0xAA,
		0x02, 0x00, 0x01, 0x02, 0x01,
	}, w.Bytes())

	tag, sub := NewReader(w.Bytes()).ReadMessage()
	assert.Equal(t, byte(5), tag)
	assert.Equal(t, uint8(0xAA), sub.ReadUint8())
	innerTag, inner := sub.ReadMessage()
	assert.Equal(t, byte(1), innerTag)
	assert.Equal(t, uint16(0x0102), inner.ReadUint16())
	require.NoError(t, sub.Err())
}

func TestWriterEndWithoutBeginPanics(t *testing.T) {
	assert.Panics(t, func() { NewWriter().End() })
}

func TestVector2Precision(t *testing.T) {
	for _, v := range []Vector2{{0, 0}, {-50, 50}, {12.5, -3.25}, {-49.9, 49.9}} {
		r := NewReader(NewWriter().WriteVector2(v).Bytes())
		got := r.ReadVector2()
		assert.InDelta(t, v.X, got.X, 0.002)
		assert.InDelta(t, v.Y, got.Y, 0.002)
	}

	// Out of range positions clamp to the edges.
	got := NewReader(NewWriter().WriteVector2(Vector2{X: 80, Y: -80}).Bytes()).ReadVector2()
	assert.InDelta(t, 50, got.X, 0.002)
	assert.InDelta(t, -50, got.Y, 0.002)
}

func TestSequenceGreaterThan(t *testing.T) {
	assert.True(t, Seq16GreaterThan(1, 0))
	assert.False(t, Seq16GreaterThan(0, 1))
	assert.False(t, Seq16GreaterThan(5, 5))
	assert.True(t, Seq16GreaterThan(0, 65535), "wraps around")
	assert.True(t, Seq16GreaterThan(10, 65530))
	assert.False(t, Seq16GreaterThan(32768, 0), "half range is not newer")
	assert.True(t, Seq16GreaterThan(32767, 0))

	assert.True(t, Seq8GreaterThan(0, 255))
	assert.False(t, Seq8GreaterThan(200, 10))

	assert.Panics(t, func() { SequenceGreaterThan(1, 0, 0) })
	assert.Panics(t, func() { SequenceGreaterThan(1, 0, 33) })
	assert.True(t, Seq32GreaterThan(0, 0xFFFFFFFF), "32-bit wraps around")
	assert.False(t, Seq32GreaterThan(0x80000000, 0))
	assert.True(t, Seq32GreaterThan(0x7FFFFFFF, 0))
}

func TestRoomCodes(t *testing.T) {
	v, err := CodeToInt("ABCD")
	require.NoError(t, err)
	assert.Equal(t, int32(0x44434241), v)
	assert.Equal(t, "ABCD", IntToCode(v))

	for _, code := range []string{"REDSUS", "ABCDEF", "QQQQQQ", "ZZZZZZ"} {
		v, err := CodeToInt(code)
		require.NoError(t, err)
		assert.Less(t, v, int32(0), "v2 codes are negative")
		assert.Equal(t, code, IntToCode(v))
	}

	v, err = CodeToInt("redsus")
	require.NoError(t, err)
	assert.Equal(t, int32(-1975562029), v)

	_, err = CodeToInt("ABC")
	assert.Error(t, err)
	_, err = CodeToInt("AB1DEF")
	assert.Error(t, err)
}

func TestGameDataRoundTrip(t *testing.T) {
	messages := []GameDataMessage{
		&DataMessage{NetID: 300, Data: []byte{1, 2, 3}},
		NewRpcMessage(4, &SetNameRpc{Name: "weakeyes"}),
		&SpawnMessage{
			SpawnType: content.SpawnPlayer,
			OwnerID:   7,
			Flags:     SpawnFlagIsClientCharacter,
			Components: []ComponentData{
				{NetID: 10, Data: []byte{1, 0}},
				{NetID: 11, Data: nil},
				{NetID: 12, Data: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
			},
		},
		&DespawnMessage{NetID: 10},
		&SceneChangeMessage{ClientID: 7, Scene: "OnlineGame"},
		&ReadyMessage{ClientID: 7},
	}

	w := NewWriter()
	WriteGameData(w, messages)
	decoded, err := ReadGameData(NewReader(w.Bytes()))
	require.NoError(t, err)
	require.Len(t, decoded, len(messages))

	spawn, ok := decoded[2].(*SpawnMessage)
	require.True(t, ok)
	assert.Equal(t, content.SpawnPlayer, spawn.SpawnType)
	assert.Equal(t, int32(7), spawn.OwnerID)
	require.Len(t, spawn.Components, 3)
	assert.Equal(t, uint32(12), spawn.Components[2].NetID)
	assert.Len(t, spawn.Components[2].Data, 10)
	assert.Empty(t, spawn.Components[1].Data)

	scene := decoded[4].(*SceneChangeMessage)
	assert.Equal(t, "OnlineGame", scene.Scene)
}

func TestReadGameDataSkipsUnknownTags(t *testing.T) {
	w := NewWriter()
	w.WriteMessage(0x7f, []byte{9, 9, 9})
	WriteGameData(w, []GameDataMessage{&DespawnMessage{NetID: 3}})

	decoded, err := ReadGameData(NewReader(w.Bytes()))
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, uint32(3), decoded[0].(*DespawnMessage).NetID)
}

func TestSpawnMessageRejectsBogusCount(t *testing.T) {
	w := NewWriter()
	w.WritePackedUint32(uint32(content.SpawnPlayer))
	w.WritePackedInt32(1)
	w.WriteUint8(0)
	w.WritePackedUint32(1000)

	var m SpawnMessage
	assert.Error(t, m.Deserialize(NewReader(w.Bytes())))
}

func TestGameOptionsRoundTrip(t *testing.T) {
	opts := DefaultGameOptions()
	opts.Map = content.MapPolus
	opts.Impostors = 2
	opts.AnonymousVotes = true
	opts.KillCooldown = 22.5

	w := NewWriter()
	opts.Serialize(w)

	var got GameOptions
	require.NoError(t, got.Deserialize(NewReader(w.Bytes())))
	assert.Equal(t, opts, got)
}

func TestGameOptionsOlderVersion(t *testing.T) {
	body := NewWriter()
	body.WriteUint8(1)
	body.WriteUint8(10)
	body.WriteUint32(1)
	body.WriteUint8(byte(content.MapMiraHQ))
	body.WriteFloat32(1.25).WriteFloat32(1).WriteFloat32(1.5).WriteFloat32(30)
	body.WriteUint8(1).WriteUint8(1).WriteUint8(2)
	body.WriteInt32(1)
	body.WriteUint8(2)
	body.WriteUint8(byte(KillDistanceLong))
	body.WriteInt32(15).WriteInt32(120)
	body.WriteBool(false)

	w := NewWriter().WriteBytesAndSize(body.Bytes())

	got := DefaultGameOptions()
	require.NoError(t, got.Deserialize(NewReader(w.Bytes())))
	assert.Equal(t, content.MapMiraHQ, got.Map)
	assert.Equal(t, byte(2), got.Impostors)
	assert.Equal(t, KillDistanceLong, got.KillDistance)
	assert.Equal(t, byte(GameOptionsVersion), got.Version)
	// Fields added after version 1 keep their previous values.
	assert.True(t, got.ConfirmEjects)
}

func TestRpcRoundTrip(t *testing.T) {
	rpcs := []Rpc{
		&PlayAnimationRpc{Task: 6},
		&CompleteTaskRpc{TaskIndex: 3},
		&SyncSettingsRpc{Settings: DefaultGameOptions()},
		&SetInfectedRpc{Impostors: []uint8{2, 5}},
		&ExiledRpc{},
		&CheckNameRpc{Name: "red"},
		&CheckColorRpc{Color: content.ColorLime},
		&SetHatRpc{Hat: 92},
		&ReportDeadBodyRpc{BodyID: NoBody},
		&MurderPlayerRpc{VictimNetID: 400},
		&SendChatRpc{Message: "where"},
		&SetScannerRpc{Scanning: true, Seq: 4},
		&SendChatNoteRpc{PlayerID: 1, Note: ChatNoteDidVote},
		&SetStartCounterRpc{Seq: 9, Counter: -1},
		&EnterVentRpc{VentID: 2},
		&SnapToRpc{Position: Vector2{X: 1, Y: 2}, Seq: 77},
		&VotingCompleteRpc{
			States:   []VoterState{{PlayerID: 0, VotedFor: 1}, {PlayerID: 1, VotedFor: 253}},
			ExiledID: NoExile,
			Tie:      true,
		},
		&CastVoteRpc{VoterID: 1, SuspectID: 2},
		&AddVoteRpc{VoterClientID: 5, TargetClientID: 6},
		&CloseDoorsOfTypeRpc{System: content.SystemElectrical},
		&RepairSystemRpc{System: content.SystemReactor, PlayerNetID: 31, Amount: 0x40},
		&SetTasksRpc{PlayerID: 3, Tasks: []uint8{1, 4, 8}},
		&UpdateGameDataRpc{Data: []byte{0x02, 0x00, 0x01, 0xaa, 0xbb}},
		&ClimbLadderRpc{LadderID: 2, Seq: 1},
		&UsePlatformRpc{},
	}

	for _, rpc := range rpcs {
		msg := NewRpcMessage(1, rpc)
		w := NewWriter()
		msg.Serialize(w)

		var decoded RpcMessage
		require.NoError(t, decoded.Deserialize(NewReader(w.Bytes())), rpc.Tag().String())
		parsed, err := ParseRpc(&decoded)
		require.NoError(t, err, rpc.Tag().String())

		if snap, ok := rpc.(*SnapToRpc); ok {
			got := parsed.(*SnapToRpc)
			assert.Equal(t, snap.Seq, got.Seq)
			assert.InDelta(t, snap.Position.X, got.Position.X, 0.002)
			continue
		}
		assert.Equal(t, rpc, parsed, rpc.Tag().String())
	}
}

func TestParseRpcErrors(t *testing.T) {
	_, err := ParseRpc(&RpcMessage{NetID: 1, Call: RpcTag(200)})
	assert.ErrorIs(t, err, ErrUnknownTag)

	_, err = ParseRpc(&RpcMessage{NetID: 1, Call: RpcCastVote, Data: []byte{1}})
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestRootMessages(t *testing.T) {
	data := EncodeRoot(
		&GameDataToPayload{Code: 32, Recipient: 4, Messages: []GameDataMessage{&ReadyMessage{ClientID: 4}}},
		&EndGamePayload{Code: 32, Reason: GameOverImpostorByKill},
		&RemovePlayerPayload{Code: 32, ClientID: 2, HostID: 1, Reason: DisconnectExitGame},
	)

	decoded, err := DecodeRoot(data)
	require.NoError(t, err)
	require.Len(t, decoded, 3)

	to := decoded[0].(*GameDataToPayload)
	assert.Equal(t, int32(4), to.Recipient)
	require.Len(t, to.Messages, 1)
	assert.Equal(t, GameOverImpostorByKill, decoded[1].(*EndGamePayload).Reason)
	assert.Equal(t, int32(1), decoded[2].(*RemovePlayerPayload).HostID)
}

func TestEncodeBatch(t *testing.T) {
	ready := []GameDataMessage{&ReadyMessage{ClientID: 4}}

	decoded, err := DecodeRoot(EncodeBatch(32, -1, ready, []RootMessage{&StartGamePayload{Code: 32}}))
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.IsType(t, &GameDataPayload{}, decoded[0])
	assert.IsType(t, &StartGamePayload{}, decoded[1])

	decoded, err = DecodeRoot(EncodeBatch(32, 4, ready, nil))
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, int32(4), decoded[0].(*GameDataToPayload).Recipient)

	decoded, err = DecodeRoot(EncodeBatch(32, -1, nil, []RootMessage{&StartGamePayload{Code: 32}}))
	require.NoError(t, err)
	require.Len(t, decoded, 1)
}

func TestDispatcher(t *testing.T) {
	d := NewDispatcher()
	var order []string
	d.OnGameData(TagReady, func(_ context.Context, msg GameDataMessage, sender int32) error {
		order = append(order, "first")
		assert.Equal(t, int32(9), sender)
		return nil
	})
	d.OnGameData(TagReady, func(context.Context, GameDataMessage, int32) error {
		order = append(order, "second")
		return errors.New("stop")
	})
	d.OnGameData(TagReady, func(context.Context, GameDataMessage, int32) error {
		order = append(order, "third")
		return nil
	})

	err := d.DispatchRoot(context.Background(), &GameDataPayload{
		Messages: []GameDataMessage{&ReadyMessage{ClientID: 9}},
	}, 9)
	assert.EqualError(t, err, "stop")
	assert.Equal(t, []string{"first", "second"}, order)

	// Unhandled tags are ignored.
	assert.NoError(t, d.DispatchGameData(context.Background(), &DespawnMessage{}, 1))
}
