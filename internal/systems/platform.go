package systems

import (
	"math"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

// NoTarget is the target net id of an unused platform.
const NoTarget uint32 = math.MaxUint32

// MovingPlatformSystem is the Airship gap room platform.
// Format (spawn and delta): [use_id:1][target_net_id:4][is_left:1]
type MovingPlatformSystem struct {
	base
	useID  uint8
	target uint32
	isLeft bool
}

// NewMovingPlatformSystem creates an idle platform on the left side.
func NewMovingPlatformSystem(ship Ship) *MovingPlatformSystem {
	return &MovingPlatformSystem{
		base:   base{ship: ship, typ: content.SystemGapRoom},
		target: NoTarget,
		isLeft: true,
	}
}

func (s *MovingPlatformSystem) UseID() uint8   { return s.useID }
func (s *MovingPlatformSystem) Target() uint32 { return s.target }
func (s *MovingPlatformSystem) IsLeft() bool   { return s.isLeft }

func (s *MovingPlatformSystem) Serialize(w *protocol.Writer, spawn bool) {
	w.WriteUint8(s.useID)
	w.WriteUint32(s.target)
	w.WriteBool(s.isLeft)
}

// Deserialize ignores a delta whose use id is not newer than the current one.
func (s *MovingPlatformSystem) Deserialize(r *protocol.Reader, spawn bool) {
	useID := r.ReadUint8()
	if !spawn && !protocol.Seq8GreaterThan(useID, s.useID) {
		return
	}
	s.useID = useID
	s.target = r.ReadUint32()
	s.isLeft = r.ReadBool()
}

// HandleRepair is unused; players move the platform with a UsePlatform RPC.
func (s *MovingPlatformSystem) HandleRepair(uint8, uint8) {}

// Use moves the platform to the other side carrying the player whose
// PlayerControl has netID. Host only; clients send UsePlatform instead.
func (s *MovingPlatformSystem) Use(netID uint32) bool {
	if !s.ship.IsHost() {
		return false
	}
	old := s.isLeft
	s.isLeft = !old
	ev := events.Emit(s.ship.Emitter(), &PlatformMoveEvent{
		Mutation: events.NewMutation(old, !old),
		Target:   netID,
	})
	if ev.Reverted() {
		s.isLeft = old
		return false
	}
	s.isLeft = ev.Resolve()
	s.useID++
	s.target = netID
	s.markDirty()
	return true
}
