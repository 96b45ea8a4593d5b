package systems

import (
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

type fakeShip struct {
	mock.Mock
	mapID   content.MapID
	host    bool
	emitter *events.Emitter
	rng     *rand.Rand
	systems []System
	intents []EndGameIntent
}

func newFakeShip(m content.MapID, host bool) *fakeShip {
	s := &fakeShip{
		mapID:   m,
		host:    host,
		emitter: events.NewEmitter(nil),
		rng:     rand.New(rand.NewPCG(1, 2)),
	}
	s.systems = ForMap(s)
	return s
}

func (s *fakeShip) Map() content.MapID       { return s.mapID }
func (s *fakeShip) IsHost() bool             { return s.host }
func (s *fakeShip) Emitter() *events.Emitter { return s.emitter }
func (s *fakeShip) Rand() *rand.Rand         { return s.rng }
func (s *fakeShip) Systems() []System        { return s.systems }
func (s *fakeShip) RegisterEndGameIntent(i EndGameIntent) {
	s.intents = append(s.intents, i)
}

func (s *fakeShip) System(t content.SystemType) System {
	for _, sys := range s.systems {
		if sys.Type() == t {
			return sys
		}
	}
	return nil
}

func (s *fakeShip) SendRepair(t content.SystemType, amount uint8) {
	s.Called(t, amount)
}

func roundTrip(t *testing.T, src, dst System, spawn bool) {
	t.Helper()
	w := protocol.NewWriter()
	src.Serialize(w, spawn)
	r := protocol.NewReader(w.Bytes())
	dst.Deserialize(r, spawn)
	require.NoError(t, r.Err())
	assert.Equal(t, 0, r.Left(), "%s left unread bytes", src.Type())
}

func TestAutoOpenDoor(t *testing.T) {
	d := NewAutoOpenDoor(0)
	opened := 0

	d.Close(2 * time.Second)
	assert.False(t, d.IsOpen())
	for i := 0; i < 10; i++ {
		if d.DoUpdate(500 * time.Millisecond) {
			opened++
		}
	}
	assert.True(t, d.IsOpen())
	assert.Equal(t, 1, opened, "opens exactly once")
	assert.False(t, d.DoUpdate(time.Second))

	d.Close(time.Second)
	assert.False(t, d.DoUpdate(500*time.Millisecond))
	assert.True(t, d.DoUpdate(500*time.Millisecond))
}

func TestAutoDoorsCloseAndDelta(t *testing.T) {
	ship := newFakeShip(content.MapTheSkeld, true)
	doors := ship.System(content.SystemDoors).(*AutoDoorsSystem)

	assert.True(t, doors.CloseDoorsOfType(content.SystemSecurity, 1))
	assert.False(t, doors.Doors()[6].IsOpen())
	assert.True(t, doors.Dirty())

	w := protocol.NewWriter()
	doors.Serialize(w, false)
	assert.Equal(t, []byte{0x40, 0x00}, w.Bytes(), "mask bit 6, door closed")

	other := NewAutoDoorsSystem(newFakeShip(content.MapTheSkeld, false))
	other.Deserialize(protocol.NewReader(w.Bytes()), false)
	assert.False(t, other.Doors()[6].IsOpen())
	assert.True(t, other.Doors()[5].IsOpen())

	doors.ClearDirty()
	doors.FixedUpdate(AutoOpenDelay)
	assert.True(t, doors.Doors()[6].IsOpen())
	assert.True(t, doors.Dirty())
}

func TestDoorEventRevert(t *testing.T) {
	ship := newFakeShip(content.MapPolus, true)
	doors := ship.System(content.SystemDoors).(*DoorsSystem)
	events.On(ship.Emitter(), func(ev *DoorEvent) {
		if ev.Door == 0 {
			ev.Revert()
		}
	})

	assert.True(t, doors.CloseDoorsOfType(content.SystemElectrical, 2))
	assert.True(t, doors.Doors()[0].IsOpen(), "reverted")
	assert.False(t, doors.Doors()[1].IsOpen())
	assert.Equal(t, seconds(DoorCooldown), doors.Cooldown(content.SystemElectrical))

	// Cooling down.
	assert.False(t, doors.CloseDoorsOfType(content.SystemElectrical, 2))

	doors.HandleRepair(2, doorRepairOpen|1)
	assert.True(t, doors.Doors()[1].IsOpen())

	doors.FixedUpdate(DoorCooldown)
	assert.Equal(t, float32(0), doors.Cooldown(content.SystemElectrical))

	other := NewDoorsSystem(newFakeShip(content.MapPolus, false))
	roundTrip(t, doors, other, true)
	assert.Equal(t, doors.cooldowns, other.cooldowns)
}

func TestSwitchSabotageAndRepair(t *testing.T) {
	ship := newFakeShip(content.MapTheSkeld, true)
	sw := ship.System(content.SystemElectrical).(*SwitchSystem)

	var sabotaged, repaired int
	events.On(ship.Emitter(), func(*SystemSabotagedEvent) { sabotaged++ })
	events.On(ship.Emitter(), func(*SystemRepairedEvent) { repaired++ })

	sw.HandleSabotage(0)
	require.True(t, sw.Sabotaged())
	assert.Equal(t, 1, sabotaged)

	for i := 0; i < 10; i++ {
		sw.FixedUpdate(20 * time.Millisecond)
	}
	assert.Equal(t, uint8(MaxBrightness-10*BrightnessStep), sw.Brightness())

	diff := sw.Expected() ^ sw.Actual()
	for i := 0; i < numSwitches; i++ {
		if diff&(1<<i) != 0 {
			sw.HandleRepair(1, uint8(i))
		}
	}
	assert.False(t, sw.Sabotaged())
	assert.Equal(t, 1, repaired)

	for i := 0; i < 200; i++ {
		sw.FixedUpdate(20 * time.Millisecond)
	}
	assert.Equal(t, uint8(MaxBrightness), sw.Brightness())
}

func TestSwitchFlipAlteredAndReverted(t *testing.T) {
	ship := newFakeShip(content.MapTheSkeld, true)
	sw := ship.System(content.SystemElectrical).(*SwitchSystem)

	off := events.On(ship.Emitter(), func(ev *SwitchFlipEvent) { ev.Alter(0x1f) })
	sw.HandleRepair(0, 0)
	assert.Equal(t, uint8(0x1f), sw.Actual())
	off()

	events.On(ship.Emitter(), func(ev *SwitchFlipEvent) {
		ev.Alter(0)
		ev.Revert()
	})
	sw.HandleRepair(0, 1)
	assert.Equal(t, uint8(0x1f), sw.Actual(), "revert wins over alter")
}

func TestReactorTwoConsolesRepair(t *testing.T) {
	ship := newFakeShip(content.MapTheSkeld, true)
	reactor := ship.System(content.SystemReactor).(*ReactorSystem)

	reactor.HandleRepair(0, repairSabotage)
	require.True(t, reactor.Sabotaged())
	assert.Equal(t, float32(30), reactor.Timer())

	reactor.HandleRepair(1, repairOpen|0)
	reactor.HandleRepair(1, repairOpen|0)
	assert.Len(t, reactor.Pairs(), 1, "duplicate hand ignored")
	reactor.HandleRepair(1, repairClose|0)
	assert.Empty(t, reactor.Pairs())

	reactor.HandleRepair(1, repairOpen|0)
	reactor.HandleRepair(2, repairOpen|1)
	assert.False(t, reactor.Sabotaged())
	assert.Empty(t, reactor.Pairs())
}

func TestReactorMeltdownRegistersIntentOnce(t *testing.T) {
	ship := newFakeShip(content.MapMiraHQ, true)
	reactor := ship.System(content.SystemReactor).(*ReactorSystem)
	reactor.HandleSabotage(0)

	reactor.FixedUpdate(500 * time.Millisecond)
	reactor.ClearDirty()
	reactor.FixedUpdate(200 * time.Millisecond)
	assert.False(t, reactor.Dirty(), "no whole second crossed")
	reactor.FixedUpdate(time.Second)
	assert.True(t, reactor.Dirty())

	reactor.FixedUpdate(time.Minute)
	reactor.FixedUpdate(time.Minute)
	require.Len(t, ship.intents, 1)
	assert.Equal(t, protocol.GameOverImpostorBySabotage, ship.intents[0].Reason)
}

func TestLifeSupp(t *testing.T) {
	ship := newFakeShip(content.MapTheSkeld, true)
	o2 := ship.System(content.SystemLifeSupp).(*LifeSuppSystem)

	o2.HandleRepair(1, repairOpen|0)
	assert.Empty(t, o2.Completed(), "not sabotaged")

	o2.HandleSabotage(0)
	o2.HandleRepair(1, repairOpen|1)
	o2.HandleRepair(1, repairOpen|1)
	assert.Equal(t, []uint8{1}, o2.Completed())

	other := NewLifeSuppSystem(newFakeShip(content.MapTheSkeld, false))
	roundTrip(t, o2, other, false)
	assert.Equal(t, o2.Completed(), other.Completed())
	assert.Equal(t, o2.Timer(), other.Timer())

	o2.HandleRepair(2, repairOpen|0)
	assert.False(t, o2.Sabotaged())

	o2.HandleSabotage(0)
	o2.FixedUpdate(content.OxygenDuration)
	require.Len(t, ship.intents, 1)
	assert.Equal(t, "oxygen depleted", ship.intents[0].Name)
}

func TestMedScanQueueIdempotent(t *testing.T) {
	ship := newFakeShip(content.MapTheSkeld, true)
	scan := ship.System(content.SystemMedBay).(*MedScanSystem)

	scan.HandleRepair(3, medScanJoin|3)
	scan.HandleRepair(3, medScanJoin|3)
	scan.HandleRepair(4, medScanJoin|4)
	assert.Equal(t, []uint8{3, 4}, scan.Queue())

	scan.HandleRepair(3, medScanLeave|3)
	scan.HandleRepair(3, medScanLeave|3)
	assert.Equal(t, []uint8{4}, scan.Queue())
}

func TestSecurityCamera(t *testing.T) {
	ship := newFakeShip(content.MapTheSkeld, true)
	cams := ship.System(content.SystemSecurity).(*SecurityCameraSystem)

	cams.HandleRepair(2, 1)
	cams.HandleRepair(5, 1)
	cams.HandleRepair(2, 1)
	assert.Equal(t, []uint8{2, 5}, cams.Players())

	cams.HandleRepair(2, 0)
	assert.Equal(t, []uint8{5}, cams.Players())
}

func TestSabotageCooldown(t *testing.T) {
	ship := newFakeShip(content.MapTheSkeld, true)
	sab := ship.System(content.SystemSabotage).(*SabotageSystem)
	comms := ship.System(content.SystemComms).(*HudOverrideSystem)
	lights := ship.System(content.SystemElectrical).(*SwitchSystem)

	sab.HandleRepair(0, uint8(content.SystemComms))
	assert.True(t, comms.Sabotaged())
	assert.True(t, sab.AnySabotaged())
	assert.Equal(t, float32(30), sab.Cooldown())

	sab.HandleRepair(0, uint8(content.SystemElectrical))
	assert.False(t, lights.Sabotaged(), "still cooling down")

	sab.FixedUpdate(SabotageCooldown)
	assert.Equal(t, float32(0), sab.Cooldown())

	off := events.On(ship.Emitter(), func(ev *SystemSabotageEvent) { ev.Cancel() })
	sab.HandleRepair(0, uint8(content.SystemElectrical))
	assert.False(t, lights.Sabotaged(), "canceled")
	assert.Equal(t, float32(0), sab.Cooldown())
	off()

	sab.HandleRepair(0, uint8(content.SystemElectrical))
	assert.True(t, lights.Sabotaged())

	comms.HandleRepair(1, 0)
	assert.False(t, comms.Sabotaged())
}

func TestHqHud(t *testing.T) {
	ship := newFakeShip(content.MapMiraHQ, true)
	hq := ship.System(content.SystemComms).(*HqHudSystem)
	require.False(t, hq.Sabotaged())

	hq.HandleRepair(0, repairSabotage)
	require.True(t, hq.Sabotaged())
	assert.Empty(t, hq.Completed())

	hq.HandleRepair(1, repairOpen|0)
	hq.HandleRepair(2, repairOpen|1)
	assert.Len(t, hq.Active(), 2)

	other := NewHqHudSystem(newFakeShip(content.MapMiraHQ, false))
	roundTrip(t, hq, other, true)
	assert.Equal(t, hq.Active(), other.Active())

	hq.HandleRepair(1, repairComplete|0)
	assert.True(t, hq.Sabotaged())
	hq.HandleRepair(2, repairComplete|1)
	assert.False(t, hq.Sabotaged())
	assert.Empty(t, hq.Active())
}

func TestHeliSabotage(t *testing.T) {
	ship := newFakeShip(content.MapAirship, true)
	heli := ship.System(content.SystemReactor).(*HeliSabotageSystem)

	heli.HandleSabotage(0)
	assert.Equal(t, float32(90), heli.Countdown())

	heli.HandleRepair(1, repairOpen|0)
	heli.HandleRepair(1, repairComplete|0)
	heli.HandleRepair(1, repairClose|0)
	assert.Equal(t, seconds(HeliResetDelay), heli.ResetTimer())

	heli.FixedUpdate(HeliResetDelay)
	assert.Empty(t, heli.Completed(), "progress lost when nobody holds a console")

	heli.HandleRepair(1, repairComplete|0)
	heli.HandleRepair(2, repairComplete|1)
	assert.False(t, heli.Sabotaged())

	other := NewHeliSabotageSystem(newFakeShip(content.MapAirship, false))
	roundTrip(t, heli, other, false)
	assert.Equal(t, heli.Countdown(), other.Countdown())
}

func TestDeconCycle(t *testing.T) {
	ship := newFakeShip(content.MapMiraHQ, true)
	decon := ship.System(content.SystemDecontamination).(*DeconSystem)

	decon.HandleRepair(0, 4)
	assert.Equal(t, DeconEnter, decon.State())

	decon.HandleRepair(0, 3)
	assert.Equal(t, DeconEnter, decon.State(), "busy airlock ignores requests")

	decon.FixedUpdate(DeconPhase)
	assert.Equal(t, DeconClosed, decon.State())
	decon.FixedUpdate(DeconPhase)
	assert.Equal(t, DeconExit, decon.State())
	decon.FixedUpdate(DeconPhase)
	assert.Equal(t, DeconIdle, decon.State())

	decon.HandleRepair(0, 2)
	assert.Equal(t, DeconHeadingUp|DeconEnter, decon.State())
	decon.FixedUpdate(DeconPhase)
	assert.Equal(t, DeconHeadingUp|DeconClosed, decon.State())

	w := protocol.NewWriter()
	decon.Serialize(w, false)
	assert.Equal(t, []byte{3, byte(DeconHeadingUp | DeconClosed)}, w.Bytes())
}

func TestMovingPlatformSequenceGuard(t *testing.T) {
	ship := newFakeShip(content.MapAirship, true)
	platform := ship.System(content.SystemGapRoom).(*MovingPlatformSystem)

	require.True(t, platform.Use(42))
	assert.Equal(t, uint8(1), platform.UseID())
	assert.Equal(t, uint32(42), platform.Target())
	assert.False(t, platform.IsLeft())

	client := NewMovingPlatformSystem(newFakeShip(content.MapAirship, false))
	w := protocol.NewWriter()
	platform.Serialize(w, false)
	stale := append([]byte(nil), w.Bytes()...)

	client.Deserialize(protocol.NewReader(stale), false)
	assert.Equal(t, uint32(42), client.Target())

	platform.Use(43)
	w.Reset()
	platform.Serialize(w, false)
	client.Deserialize(protocol.NewReader(w.Bytes()), false)
	assert.Equal(t, uint32(43), client.Target())

	client.Deserialize(protocol.NewReader(stale), false)
	assert.Equal(t, uint32(43), client.Target(), "stale use id rejected")

	assert.False(t, client.Use(1), "clients cannot move the platform")
}

func TestNonHostForwardsRepair(t *testing.T) {
	ship := newFakeShip(content.MapTheSkeld, false)
	ship.On("SendRepair", content.SystemElectrical, uint8(2)).Once()
	ship.On("SendRepair", content.SystemReactor, uint8(repairOpen|1)).Once()

	sw := ship.System(content.SystemElectrical).(*SwitchSystem)
	sw.Flip(2, 0)
	assert.Equal(t, uint8(0), sw.Actual(), "no local change before the host answers")

	ship.System(content.SystemReactor).(*ReactorSystem).PlaceHand(0, 1)
	ship.AssertExpectations(t)
}

func TestSpawnRoundTripAllMaps(t *testing.T) {
	for _, m := range []content.MapID{content.MapTheSkeld, content.MapMiraHQ, content.MapPolus, content.MapAirship} {
		host := newFakeShip(m, true)
		for _, sys := range host.Systems() {
			sys.HandleSabotage(0)
		}
		client := newFakeShip(m, false)
		for i, sys := range host.Systems() {
			roundTrip(t, sys, client.Systems()[i], true)
			assert.Equal(t, sys.Sabotaged(), client.Systems()[i].Sabotaged(), "%s on %s", sys.Type(), m)
		}
	}
}
