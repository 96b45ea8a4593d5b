package room

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type mockBroadcaster struct{ mock.Mock }

func (m *mockBroadcaster) Broadcast(ctx context.Context, messages []protocol.GameDataMessage, reliable bool, recipient int32, payloads []protocol.RootMessage) error {
	args := m.Called(ctx, messages, reliable, recipient, payloads)
	return args.Error(0)
}

func newHostRoom(t *testing.T) (*Room, *fakeClock, *mockBroadcaster) {
	t.Helper()
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := &mockBroadcaster{}
	b.On("Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	r := New(Options{
		Authoritative: true,
		Broadcaster:   b,
		Clock:         clk,
		Rand:          rand.New(rand.NewPCG(1, 2)),
	})
	return r, clk, b
}

func newClientRoom() *Room {
	return New(Options{ClientID: 9, HostID: 1, Clock: &fakeClock{now: time.Unix(0, 0)}})
}

// addPlayer joins a client and loads it into the lobby scene.
func addPlayer(t *testing.T, r *Room, clientID int32) *PlayerData {
	t.Helper()
	p := r.HandleJoin(clientID)
	require.NotNil(t, p)
	require.NoError(t, r.HandleGameData(&protocol.SceneChangeMessage{ClientID: clientID, Scene: SceneOnlineGame}, clientID))
	require.NotNil(t, p.Control(), "character spawned for %d", clientID)
	return p
}

// startGame readies every player so the host sets the game up at once.
func startGame(t *testing.T, r *Room) {
	t.Helper()
	require.NoError(t, r.HandleStart())
	for _, id := range sortedClientIDs(r.players) {
		r.players[id].SetReady()
	}
	require.True(t, r.Started())
}

func impostorOf(t *testing.T, r *Room) *PlayerData {
	t.Helper()
	for _, info := range r.GameData.Players() {
		if info.IsImpostor() {
			return r.GetPlayerByPlayerID(info.PlayerID)
		}
	}
	t.Fatal("no impostor assigned")
	return nil
}

func crewmates(r *Room) []*PlayerData {
	var out []*PlayerData
	for _, info := range r.GameData.Players() {
		if !info.IsImpostor() {
			out = append(out, r.GetPlayerByPlayerID(info.PlayerID))
		}
	}
	return out
}

func roundTrip(t *testing.T, src, dst Networkable, spawn bool) {
	t.Helper()
	w := protocol.NewWriter()
	src.PreSerialize()
	src.Serialize(w, spawn)
	r := protocol.NewReader(w.Bytes())
	dst.Deserialize(r, spawn)
	require.NoError(t, r.Err())
	assert.Equal(t, 0, r.Left(), "%T left unread bytes", src)
}

func TestHandleJoinTwice(t *testing.T) {
	r, _, _ := newHostRoom(t)
	assert.NotNil(t, r.HandleJoin(1))
	assert.Nil(t, r.HandleJoin(1))
	assert.Len(t, r.Players(), 1)
}

func TestFirstJoinerHostsUnlessAuthoritative(t *testing.T) {
	r := New(Options{ClientID: 1})
	r.HandleJoin(1)
	r.HandleJoin(2)
	assert.Equal(t, int32(1), r.HostID())
	assert.True(t, r.IsHost())

	r.HandleLeave(1)
	assert.Equal(t, int32(2), r.HostID())
	assert.False(t, r.IsHost())

	auth, _, _ := newHostRoom(t)
	auth.HandleJoin(7)
	assert.Equal(t, int32(0), auth.HostID())
}

func TestSceneChangeSpawnsCharacters(t *testing.T) {
	r, _, _ := newHostRoom(t)
	players := []*PlayerData{addPlayer(t, r, 1), addPlayer(t, r, 2), addPlayer(t, r, 3)}

	require.NotNil(t, r.GameData)
	require.NotNil(t, r.VoteBan)
	require.NotNil(t, r.Lobby)
	// GameData + VoteBan + lobby + three components per player.
	assert.Equal(t, 3+3*3, r.NetObjectCount())

	seen := map[uint32]bool{}
	for id := range r.netObjects {
		assert.False(t, seen[id])
		seen[id] = true
	}
	for i, p := range players {
		id, ok := p.PlayerID()
		require.True(t, ok)
		assert.Equal(t, uint8(i+1), id)
		assert.NotNil(t, p.Info())
		assert.NotNil(t, p.Physics())
		assert.NotNil(t, p.Transform())
	}
}

func TestSpawnIsIdempotent(t *testing.T) {
	r := newClientRoom()
	spawned := 0
	events.On(r.Emitter(), func(*SpawnEvent) { spawned++ })

	msg := &protocol.SpawnMessage{
		SpawnType: content.SpawnGameData,
		OwnerID:   RoomEntityID,
		Components: []protocol.ComponentData{
			{NetID: 5, Data: []byte{}},
			{NetID: 6, Data: []byte{0}},
		},
	}
	require.NoError(t, r.HandleGameData(msg, 1))
	require.NoError(t, r.HandleGameData(msg, 1))

	assert.Equal(t, 2, spawned, "one event per component")
	assert.Equal(t, 2, r.NetObjectCount())
	assert.Equal(t, uint32(7), r.nextNetID)
}

func TestSpawnForUnknownOwnerJoinsClient(t *testing.T) {
	r := newClientRoom()
	host, _, _ := newHostRoom(t)
	addPlayer(t, host, 4)

	for _, msg := range host.PendingMessages() {
		require.NoError(t, r.HandleGameData(msg, 1))
	}
	p := r.Player(4)
	require.NotNil(t, p)
	id, ok := p.PlayerID()
	require.True(t, ok)
	assert.Equal(t, uint8(1), id)
	assert.True(t, p.Control().IsNew())
}

func TestUnknownSpawnTypeIgnored(t *testing.T) {
	r := newClientRoom()
	err := r.HandleGameData(&protocol.SpawnMessage{SpawnType: 99, OwnerID: RoomEntityID}, 1)
	assert.NoError(t, err)
	assert.Zero(t, r.NetObjectCount())
}

func TestDespawnLeavesHole(t *testing.T) {
	r, _, _ := newHostRoom(t)
	p := addPlayer(t, r, 1)
	physics := p.Physics()

	r.DespawnComponent(physics)
	require.Len(t, p.Components(), 3)
	assert.NotNil(t, p.Components()[0])
	assert.Nil(t, p.Components()[1])
	assert.NotNil(t, p.Components()[2])
	assert.Nil(t, r.NetObject(physics.NetID()))
	assert.Same(t, p.Transform(), p.Components()[2])
}

func TestLeaveInLobbyRemovesRecord(t *testing.T) {
	r, _, _ := newHostRoom(t)
	addPlayer(t, r, 1)
	p := addPlayer(t, r, 2)
	control := p.Control()
	id, _ := p.PlayerID()

	left := 0
	events.On(r.Emitter(), func(*PlayerLeaveEvent) { left++ })
	assert.NotNil(t, r.HandleLeave(2))
	assert.Nil(t, r.HandleLeave(2))

	assert.Equal(t, 1, left)
	assert.Nil(t, r.GameData.Player(id))
	assert.Nil(t, r.NetObject(control.NetID()))
}

func TestGetAvailablePlayerID(t *testing.T) {
	r, _, _ := newHostRoom(t)
	var players []*PlayerData
	for id := int32(1); id <= 4; id++ {
		players = append(players, addPlayer(t, r, id))
	}
	for i, p := range players {
		p.Control().playerID = uint8(i)
	}
	assert.Equal(t, uint8(4), r.GetAvailablePlayerID())

	r.HandleLeave(2)
	assert.Equal(t, uint8(1), r.GetAvailablePlayerID())
}

func TestResolvePlayer(t *testing.T) {
	r, _, _ := newHostRoom(t)
	p := addPlayer(t, r, 3)

	assert.Same(t, p, r.ResolvePlayer(int32(3)))
	assert.Same(t, p, r.ResolvePlayer(p))
	assert.Same(t, p, r.ResolvePlayer(p.Control()))
	assert.Same(t, p, r.ResolvePlayer(p.Info()))
	assert.Nil(t, r.ResolvePlayer(nil))
	assert.Nil(t, r.ResolvePlayer("3"))
	assert.Nil(t, r.ResolvePlayer(r.GameData))

	waiting := r.HandleJoin(4)
	require.NotNil(t, waiting)
	assert.NotPanics(t, func() {
		assert.Nil(t, r.ResolvePlayer(waiting.Control()))
		assert.Nil(t, r.ResolvePlayer(waiting.Physics()))
		assert.Nil(t, r.ResolvePlayer(waiting.Transform()))
		_, ok := r.ResolvePlayerID(waiting.Control())
		assert.False(t, ok)
		_, ok = r.ResolvePlayerClientID(waiting.Transform())
		assert.False(t, ok)
	})

	id, ok := r.ResolvePlayerID(p.Transform())
	assert.True(t, ok)
	assert.Equal(t, uint8(1), id)

	clientID, ok := r.ResolvePlayerClientID(uint8(1))
	assert.True(t, ok)
	assert.Equal(t, int32(3), clientID)
}

func TestGameDataDeltaCarriesDirtyPlayersOnly(t *testing.T) {
	r, _, _ := newHostRoom(t)
	for id := int32(1); id <= 4; id++ {
		addPlayer(t, r, id)
	}
	g := r.GameData
	g.ClearDirty()

	g.SetName(3, "Blue")
	assert.Equal(t, uint64(1<<3), g.DirtyMask())

	w := protocol.NewWriter()
	require.True(t, g.Serialize(w, false))
	var tags []byte
	require.NoError(t, protocol.NewReader(w.Bytes()).Messages(func(tag byte, _ *protocol.Reader) error {
		tags = append(tags, tag)
		return nil
	}))
	assert.Equal(t, []byte{3}, tags)
	assert.False(t, g.Dirty(), "delta write clears the bits it sent")
	assert.False(t, g.Serialize(protocol.NewWriter(), false))
}

func TestGameDataRoundTrip(t *testing.T) {
	r, _, _ := newHostRoom(t)
	addPlayer(t, r, 1)
	addPlayer(t, r, 2)
	g := r.GameData
	g.SetName(1, "Red")
	g.SetColor(2, content.ColorLime)
	g.SetTasks(1, []uint8{4, 9})
	g.CompleteTask(1, 1)

	client := newClientRoom()
	dst := newGameData(client, content.SpawnGameData, 1, RoomEntityID, 0).(*GameData)
	roundTrip(t, g, dst, true)

	require.Len(t, dst.Players(), 2)
	assert.Equal(t, "Red", dst.Player(1).Name)
	assert.Equal(t, content.ColorLime, dst.Player(2).Color)
	assert.Equal(t, []TaskState{{Index: 0}, {Index: 1, Completed: true}}, dst.Player(1).Tasks)

	g.ClearDirty()
	g.SetDead(2, true)
	roundTrip(t, g, dst, false)
	assert.True(t, dst.Player(2).IsDead())
	assert.Equal(t, "Red", dst.Player(1).Name)
}

func TestPlayerControlRoundTrip(t *testing.T) {
	r, _, _ := newHostRoom(t)
	p := addPlayer(t, r, 1)
	src := p.Control()
	src.isNew = true

	dst := newPlayerControl(newClientRoom(), content.SpawnPlayer, 1, 1, 0).(*PlayerControl)
	roundTrip(t, src, dst, true)
	assert.True(t, dst.IsNew())
	assert.Equal(t, src.PlayerID(), dst.PlayerID())
	assert.False(t, src.IsNew(), "is_new is sent once")
}

func TestShipStatusRoundTrip(t *testing.T) {
	host, _, _ := newHostRoom(t)
	client := newClientRoom()
	for _, st := range []content.SpawnType{
		content.SpawnShipStatus,
		content.SpawnHeadquarters,
		content.SpawnPlanetMap,
		content.SpawnAprilShipStatus,
		content.SpawnAirship,
	} {
		t.Run(st.String(), func(t *testing.T) {
			src := newShipStatus(host, st, 1, RoomEntityID, 0).(*ShipStatus)
			dst := newShipStatus(client, st, 1, RoomEntityID, 0).(*ShipStatus)
			assert.Equal(t, shipMap(st), src.Map())
			roundTrip(t, src, dst, true)
			assert.False(t, src.Serialize(protocol.NewWriter(), false), "clean ship writes no delta")
		})
	}
}

func TestTransformSequenceGuard(t *testing.T) {
	r, _, _ := newHostRoom(t)
	p := addPlayer(t, r, 1)
	src := p.Transform()
	dst := newCustomNetworkTransform(newClientRoom(), content.SpawnPlayer, 3, 1, 0).(*CustomNetworkTransform)

	src.Move(protocol.Vector2{X: 1, Y: 2}, protocol.Vector2{X: 0.5})
	roundTrip(t, src, dst, false)
	assert.Equal(t, src.Seq(), dst.Seq())
	assert.InDelta(t, 1, dst.Position().X, 0.01)

	stale := protocol.NewWriter()
	stale.WriteUint16(src.Seq() - 1)
	stale.WriteVector2(protocol.Vector2{X: -9})
	stale.WriteVector2(protocol.Vector2{})
	dst.Deserialize(protocol.NewReader(stale.Bytes()), false)
	assert.InDelta(t, 1, dst.Position().X, 0.01, "stale update dropped")
}

func TestSnapToCanBeReverted(t *testing.T) {
	r, _, _ := newHostRoom(t)
	p := addPlayer(t, r, 1)
	cnt := p.Transform()

	off := events.On(p.Emitter(), func(ev *PlayerSnapToEvent) { ev.Revert() })
	cnt.SnapTo(protocol.Vector2{X: 5})
	assert.Zero(t, cnt.Position().X)
	off()

	cnt.SnapTo(protocol.Vector2{X: 5})
	assert.Equal(t, float32(5), cnt.Position().X)
	assert.Equal(t, uint16(1), cnt.Seq())
}

func TestFixedUpdateBroadcastsDirtyDeltas(t *testing.T) {
	r, _, b := newHostRoom(t)
	addPlayer(t, r, 1)
	require.NoError(t, r.FixedUpdate(context.Background()))
	b.Calls = nil

	r.Player(1).Transform().Move(protocol.Vector2{X: 3}, protocol.Vector2{})
	require.NoError(t, r.FixedUpdate(context.Background()))

	require.Len(t, b.Calls, 1)
	msgs := b.Calls[0].Arguments.Get(1).([]protocol.GameDataMessage)
	require.Len(t, msgs, 1)
	data, ok := msgs[0].(*protocol.DataMessage)
	require.True(t, ok)
	assert.Equal(t, r.Player(1).Transform().NetID(), data.NetID)
	assert.Equal(t, Everyone, b.Calls[0].Arguments.Get(3))
}

func TestFixedUpdateCancel(t *testing.T) {
	r, _, b := newHostRoom(t)
	events.On(r.Emitter(), func(ev *FixedUpdateEvent) { ev.Cancel() })
	addPlayer(t, r, 1)

	require.NoError(t, r.FixedUpdate(context.Background()))
	b.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, r.PendingMessages(), "canceled batch is dropped")
}

func TestSnapshotGoesToNewcomerOnly(t *testing.T) {
	r, _, b := newHostRoom(t)
	addPlayer(t, r, 1)
	require.NoError(t, r.FixedUpdate(context.Background()))
	b.Calls = nil

	addPlayer(t, r, 2)
	require.NoError(t, r.FixedUpdate(context.Background()))

	var direct []int32
	for _, call := range b.Calls {
		if rcpt := call.Arguments.Get(3).(int32); rcpt != Everyone {
			direct = append(direct, rcpt)
		}
	}
	assert.Equal(t, []int32{2}, direct)
}

type panicky struct{ NetObject }

func (p *panicky) HandleRpc(protocol.Rpc, int32) { panic("boom") }

func TestRpcPanicIsContained(t *testing.T) {
	r, _, _ := newHostRoom(t)
	r.RegisterPrefab(42, Prefab{func(r *Room, st content.SpawnType, netID uint32, owner int32, flags protocol.SpawnFlag) Networkable {
		return &panicky{NetObject: newNetObject(r, st, netID, owner, flags)}
	}})
	c, err := r.SpawnPrefab(42, RoomEntityID, protocol.SpawnFlagNone, nil, false)
	require.NoError(t, err)

	msg := protocol.NewRpcMessage(c.NetID(), &protocol.SendChatRpc{Message: "hi"})
	assert.NotPanics(t, func() {
		assert.NoError(t, r.HandleGameData(msg, 1))
	})

	bad := &protocol.RpcMessage{NetID: c.NetID(), Call: protocol.RpcSendChat, Data: []byte{0xff}}
	assert.NoError(t, r.HandleGameData(bad, 1))
}

func TestPrivacyChange(t *testing.T) {
	r, _, _ := newHostRoom(t)
	off := events.On(r.Emitter(), func(ev *PrivacyChangeEvent) { ev.Revert() })
	r.SetPrivacy(PrivacyPublic)
	assert.Equal(t, PrivacyPrivate, r.Privacy())
	assert.Empty(t, r.payloads)
	off()

	r.SetPrivacy(PrivacyPublic)
	assert.Equal(t, PrivacyPublic, r.Privacy())
	require.Len(t, r.payloads, 1)
	alter := r.payloads[0].(*protocol.AlterGamePayload)
	assert.True(t, alter.Public)
}

func TestStartCounterSequence(t *testing.T) {
	r := newClientRoom()
	r.applyStartCounter(2, 5)
	assert.Equal(t, int8(5), r.Counter())
	r.applyStartCounter(1, 4)
	assert.Equal(t, int8(5), r.Counter(), "older counter ignored")
	r.applyStartCounter(3, -1)
	assert.Equal(t, int8(-1), r.Counter())

	r.counterSeq = 0xFFFFFFFE
	r.applyStartCounter(1, 3)
	assert.Equal(t, int8(3), r.Counter(), "counter after wraparound applied")
	r.applyStartCounter(0xFFFFFFFF, 2)
	assert.Equal(t, int8(3), r.Counter(), "counter before wraparound ignored")
}

func TestKickByThreeVotes(t *testing.T) {
	r, _, _ := newHostRoom(t)
	for id := int32(1); id <= 4; id++ {
		addPlayer(t, r, id)
	}
	vb := r.VoteBan

	vb.AddVote(1, 4)
	vb.AddVote(1, 4)
	vb.AddVote(2, 4)
	assert.Equal(t, []int32{1, 2}, vb.Voters(4))
	assert.NotNil(t, r.Player(4))

	vb.AddVote(3, 4)
	assert.Nil(t, r.Player(4))
	assert.Empty(t, vb.Voters(4))

	var kicked *protocol.KickPlayerPayload
	for _, p := range r.payloads {
		if k, ok := p.(*protocol.KickPlayerPayload); ok {
			kicked = k
		}
	}
	require.NotNil(t, kicked)
	assert.Equal(t, int32(4), kicked.ClientID)
	assert.False(t, kicked.Banned)
}

func TestVoteBanRoundTripAndLeave(t *testing.T) {
	r, _, _ := newHostRoom(t)
	for id := int32(1); id <= 3; id++ {
		addPlayer(t, r, id)
	}
	r.VoteBan.AddVote(1, 3)
	r.VoteBan.AddVote(2, 3)

	dst := newVoteBanSystem(newClientRoom(), content.SpawnGameData, 2, RoomEntityID, 0).(*VoteBanSystem)
	roundTrip(t, r.VoteBan, dst, true)
	assert.Equal(t, []int32{1, 2}, dst.Voters(3))

	r.HandleLeave(1)
	assert.Equal(t, []int32{2}, r.VoteBan.Voters(3))
}

func TestReadyTimeoutDropsStragglers(t *testing.T) {
	r, clk, _ := newHostRoom(t)
	addPlayer(t, r, 1)
	addPlayer(t, r, 2)

	require.NoError(t, r.HandleStart())
	assert.ErrorIs(t, r.HandleStart(), ErrGameStarted)
	assert.Equal(t, events.RoomPhaseStarting, r.Phase())
	r.Player(1).SetReady()
	assert.False(t, r.Started())

	clk.Advance(DefaultReadyTimeout)
	require.NoError(t, r.FixedUpdate(context.Background()))

	assert.True(t, r.Started())
	assert.Nil(t, r.Player(2))
	assert.NotNil(t, r.ShipStatus)
	assert.Nil(t, r.Lobby)
	assert.Equal(t, content.MapTheSkeld, r.ShipStatus.Map())
}

func TestStartAssignsRolesAndTasks(t *testing.T) {
	r, _, _ := newHostRoom(t)
	for id := int32(1); id <= 4; id++ {
		addPlayer(t, r, id)
	}
	startGame(t, r)

	impostors := 0
	for _, info := range r.GameData.Players() {
		if info.IsImpostor() {
			impostors++
		}
		settings := r.Settings()
		assert.Len(t, info.Tasks, int(settings.CommonTasks+settings.LongTasks+settings.ShortTasks))
	}
	assert.Equal(t, 1, impostors)
	assert.Equal(t, events.RoomPhasePlaying, r.Phase())
}

func TestMurderEndsGameWhenImpostorsOutnumber(t *testing.T) {
	r, clk, _ := newHostRoom(t)
	for id := int32(1); id <= 3; id++ {
		addPlayer(t, r, id)
	}
	startGame(t, r)

	var ended *GameEndEvent
	events.On(r.Emitter(), func(ev *GameEndEvent) { ended = ev })

	impostor := impostorOf(t, r)
	crew := crewmates(r)
	assert.False(t, crew[0].Control().Murder(impostor), "crewmates cannot kill")
	require.True(t, impostor.Control().Murder(crew[0]))
	assert.True(t, crew[0].Info().IsDead())

	clk.Advance(20 * time.Millisecond)
	require.NoError(t, r.FixedUpdate(context.Background()))
	require.NotNil(t, ended)
	assert.Equal(t, protocol.GameOverImpostorByKill, ended.Reason)
	assert.Len(t, ended.Players, 3)
	assert.Empty(t, r.Players())
	assert.Equal(t, events.RoomPhaseEnded, r.Phase())
}

func TestEndGameIntentCanBeCanceled(t *testing.T) {
	r, _, _ := newHostRoom(t)
	for id := int32(1); id <= 3; id++ {
		addPlayer(t, r, id)
	}
	startGame(t, r)
	events.On(r.Emitter(), func(ev *EndGameIntentEvent) { ev.Cancel() })

	impostor := impostorOf(t, r)
	require.True(t, impostor.Control().Murder(crewmates(r)[0]))
	require.NoError(t, r.FixedUpdate(context.Background()))
	assert.True(t, r.Started())
}

func TestMeetingExilesImpostor(t *testing.T) {
	r, clk, _ := newHostRoom(t)
	for id := int32(1); id <= 3; id++ {
		addPlayer(t, r, id)
	}
	startGame(t, r)

	var ended *GameEndEvent
	events.On(r.Emitter(), func(ev *GameEndEvent) { ended = ev })

	impostor := impostorOf(t, r)
	impostorID, _ := impostor.PlayerID()
	crew := crewmates(r)

	crew[0].Control().ReportDeadBody(EmergencyButton)
	hud := r.MeetingHud
	require.NotNil(t, hud)
	assert.Equal(t, events.RoomPhaseMeeting, r.Phase())

	for _, p := range crew {
		id, _ := p.PlayerID()
		hud.CastVote(id, impostorID)
	}
	assert.False(t, hud.Resolved())
	hud.CastVote(impostorID, VoteSkipped)
	require.True(t, hud.Resolved())

	exiled, tie := hud.Outcome()
	assert.Equal(t, impostorID, exiled)
	assert.False(t, tie)

	clk.Advance(DefaultMeetingCloseDelay)
	require.NoError(t, r.FixedUpdate(context.Background()))
	require.NotNil(t, ended)
	assert.Equal(t, protocol.GameOverHumansByVote, ended.Reason)
}

func TestMeetingCloseTimerStopsOnDespawn(t *testing.T) {
	r, clk, _ := newHostRoom(t)
	for id := int32(1); id <= 3; id++ {
		addPlayer(t, r, id)
	}
	startGame(t, r)

	hud := crewmates(r)[0].Control().StartMeeting(EmergencyButton)
	require.NotNil(t, hud)
	for _, info := range r.GameData.Players() {
		hud.CastVote(info.PlayerID, VoteSkipped)
	}
	require.True(t, hud.Resolved())
	require.Equal(t, 1, r.timers.Len())

	closed := 0
	events.On(r.Emitter(), func(*MeetingCloseEvent) { closed++ })
	r.DespawnComponent(hud)
	assert.Nil(t, r.MeetingHud)

	clk.Advance(DefaultMeetingCloseDelay)
	require.NoError(t, r.FixedUpdate(context.Background()))
	assert.Zero(t, closed)
	assert.Zero(t, r.timers.Len())
}

func TestMeetingRoundTrip(t *testing.T) {
	r, _, _ := newHostRoom(t)
	for id := int32(1); id <= 3; id++ {
		addPlayer(t, r, id)
	}
	startGame(t, r)
	hud := crewmates(r)[0].Control().StartMeeting(EmergencyButton)
	require.NotNil(t, hud)

	dst := newMeetingHud(newClientRoom(), content.SpawnMeetingHud, hud.NetID(), RoomEntityID, 0).(*MeetingHud)
	roundTrip(t, hud, dst, true)
	require.Len(t, dst.states, 3)

	hud.ClearDirty()
	hud.CastVote(2, 3)
	assert.Equal(t, uint32(1<<2), hud.dirtyMask)
	roundTrip(t, hud, dst, false)
	assert.Equal(t, uint8(3), dst.State(2).VotedFor)
	assert.Equal(t, VoteHasNotVoted, dst.State(1).VotedFor)

	hud.ClearDirty()
	hud.states[31] = &PlayerVoteState{PlayerID: 31, VotedFor: VoteHasNotVoted}
	hud.CastVote(31, 2)
	assert.Equal(t, uint32(1<<31), hud.dirtyMask)
	roundTrip(t, hud, dst, false)
	require.NotNil(t, dst.State(31))
	assert.Equal(t, uint8(2), dst.State(31).VotedFor)

	hud.ClearDirty()
	hud.markDirty(deltaPlayerLimit)
	assert.False(t, hud.Dirty(), "ids past the mask are left to spawn state")
}

func TestMeetingVoteRules(t *testing.T) {
	r, _, _ := newHostRoom(t)
	for id := int32(1); id <= 3; id++ {
		addPlayer(t, r, id)
	}
	startGame(t, r)
	r.GameData.SetDead(3, true)

	hud := r.GetPlayerByPlayerID(1).Control().StartMeeting(EmergencyButton)
	require.NotNil(t, hud)
	assert.True(t, hud.State(3).IsDead())

	hud.CastVote(3, 1)
	assert.False(t, hud.State(3).HasVoted(), "dead players cannot vote")
	hud.CastVote(1, 3)
	assert.False(t, hud.State(1).HasVoted(), "dead players cannot be voted")

	off := events.On(r.Emitter(), func(ev *MeetingVoteEvent) { ev.Alter(VoteSkipped) })
	hud.CastVote(1, 2)
	off()
	assert.True(t, hud.State(1).Skipped())

	hud.CastVote(1, 2)
	assert.True(t, hud.State(1).Skipped(), "one vote per player")

	assert.Panics(t, func() { hud.State(2).SetVotedFor(VoteSkipped) })
}

func TestTally(t *testing.T) {
	states := func(votes ...uint8) map[uint8]*PlayerVoteState {
		out := make(map[uint8]*PlayerVoteState)
		for i, v := range votes {
			out[uint8(i)] = &PlayerVoteState{PlayerID: uint8(i), VotedFor: v}
		}
		return out
	}
	tests := []struct {
		name   string
		votes  []uint8
		exiled uint8
		tie    bool
	}{
		{"majority", []uint8{2, 2, 1, VoteSkipped}, 2, false},
		{"tie", []uint8{1, 1, 2, 2}, protocol.NoExile, true},
		{"skip wins", []uint8{VoteSkipped, VoteSkipped, 1}, protocol.NoExile, false},
		{"skip ties", []uint8{VoteSkipped, 1}, protocol.NoExile, true},
		{"nobody voted", []uint8{VoteHasNotVoted, VoteDead}, protocol.NoExile, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exiled, tie := tally(states(tt.votes...))
			assert.Equal(t, tt.exiled, exiled)
			assert.Equal(t, tt.tie, tie)
		})
	}
}

func TestLeaveDuringGameRemovesRecord(t *testing.T) {
	r, clk, _ := newHostRoom(t)
	for id := int32(1); id <= 4; id++ {
		addPlayer(t, r, id)
	}
	startGame(t, r)
	crew := crewmates(r)
	id, _ := crew[0].PlayerID()

	r.HandleLeave(crew[0].ClientID())
	assert.Nil(t, r.GameData.Player(id))
	require.NoError(t, r.FixedUpdate(context.Background()))
	assert.True(t, r.Started(), "one crewmate leaving does not end the game")

	var ended *GameEndEvent
	events.On(r.Emitter(), func(ev *GameEndEvent) { ended = ev })
	impostor := impostorOf(t, r)
	r.HandleLeave(impostor.ClientID())

	clk.Advance(20 * time.Millisecond)
	require.NoError(t, r.FixedUpdate(context.Background()))
	require.NotNil(t, ended)
	assert.Equal(t, protocol.GameOverImpostorDisconnect, ended.Reason)
}

func TestPlayingHostStartsGame(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := &mockBroadcaster{}
	b.On("Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	r := New(Options{
		ClientID:    1,
		Broadcaster: b,
		Clock:       clk,
		Rand:        rand.New(rand.NewPCG(3, 4)),
	})
	for id := int32(1); id <= 4; id++ {
		addPlayer(t, r, id)
	}
	require.True(t, r.IsHost())

	require.NoError(t, r.HandleStart())
	assert.True(t, r.Me().IsReady())
	r.Player(2).SetReady()
	r.Player(3).SetReady()
	assert.False(t, r.Started())

	clk.Advance(DefaultReadyTimeout)
	require.NoError(t, r.FixedUpdate(context.Background()))

	assert.True(t, r.Started())
	assert.NotNil(t, r.Me(), "host keeps its own player")
	assert.Equal(t, int32(1), r.HostID())
	assert.Nil(t, r.Player(4))
	assert.NotNil(t, r.ShipStatus)
	assert.Len(t, r.GameData.Players(), 3)
}

func TestPlayingHostStartsAtOnceWhenAllReady(t *testing.T) {
	r := New(Options{ClientID: 1, Clock: &fakeClock{now: time.Unix(0, 0)}, Rand: rand.New(rand.NewPCG(5, 6))})
	addPlayer(t, r, 1)
	addPlayer(t, r, 2)

	require.NoError(t, r.HandleStart())
	r.Player(2).SetReady()
	assert.True(t, r.Started())
	assert.NotNil(t, r.Me())
}

func TestCheckNameAndColor(t *testing.T) {
	r, _, _ := newHostRoom(t)
	a := addPlayer(t, r, 1)
	b := addPlayer(t, r, 2)

	a.Control().CheckName("  Alice  ")
	b.Control().CheckName("alice")
	assert.Equal(t, "Alice", a.Name())
	assert.Equal(t, "alice 1", b.Name())

	a.Control().CheckColor(content.ColorPink)
	b.Control().CheckColor(content.ColorPink)
	assert.Equal(t, content.ColorPink, a.Info().Color)
	assert.Equal(t, content.ColorOrange, b.Info().Color)
}

func TestClientForwardsCalls(t *testing.T) {
	host, _, _ := newHostRoom(t)
	addPlayer(t, host, 9)

	client := newClientRoom()
	for _, msg := range host.spawnedSnapshot() {
		require.NoError(t, client.HandleGameData(msg, 1))
	}
	me := client.Me()
	require.NotNil(t, me)

	me.Control().CheckName("Bob")
	pending := client.PendingMessages()
	require.Len(t, pending, 1)
	rpc := pending[0].(*protocol.RpcMessage)
	assert.Equal(t, protocol.RpcCheckName, rpc.Call)
	assert.Equal(t, "", me.Name(), "name waits for the host")
}

func TestShipRepairFromRpc(t *testing.T) {
	r, _, _ := newHostRoom(t)
	for id := int32(1); id <= 3; id++ {
		addPlayer(t, r, id)
	}
	startGame(t, r)
	ship := r.ShipStatus
	require.NotNil(t, ship)

	assert.False(t, ship.AnySabotaged())
	require.True(t, ship.Sabotage(content.SystemReactor))
	assert.True(t, ship.AnySabotaged())
	assert.True(t, ship.Dirty())

	w := protocol.NewWriter()
	require.True(t, ship.Serialize(w, false))
	ship.ClearDirty()
	assert.False(t, ship.Dirty())

	assert.False(t, ship.Sabotage(content.SystemGapRoom), "system missing on this map")
}

func TestDestroyStopsTimers(t *testing.T) {
	r, clk, _ := newHostRoom(t)
	fired := false
	r.After(time.Second, func() { fired = true })
	r.Destroy()

	clk.Advance(2 * time.Second)
	assert.ErrorIs(t, r.FixedUpdate(context.Background()), ErrRoomDestroyed)
	assert.False(t, fired)
	assert.Equal(t, events.RoomPhaseDestroyed, r.Phase())
}
