package systems

import (
	"time"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

// SabotageCooldown is the room-wide delay between two sabotages.
const SabotageCooldown = 30 * time.Second

// SabotageSystem routes sabotage requests to the targeted system and holds
// the shared cooldown.
// Format (spawn and delta): [cooldown:f32]
type SabotageSystem struct {
	base
	cooldown float32
}

// NewSabotageSystem creates a sabotage system with no cooldown.
func NewSabotageSystem(ship Ship) *SabotageSystem {
	return &SabotageSystem{base: base{ship: ship, typ: content.SystemSabotage}}
}

// Cooldown returns the seconds before another sabotage is accepted.
func (s *SabotageSystem) Cooldown() float32 { return s.cooldown }

// AnySabotaged reports whether any system on the ship is sabotaged.
func (s *SabotageSystem) AnySabotaged() bool {
	for _, sys := range s.ship.Systems() {
		if sys.Sabotaged() {
			return true
		}
	}
	return false
}

func (s *SabotageSystem) Serialize(w *protocol.Writer, spawn bool) {
	w.WriteFloat32(s.cooldown)
}

func (s *SabotageSystem) Deserialize(r *protocol.Reader, spawn bool) {
	s.cooldown = r.ReadFloat32()
}

// HandleRepair sabotages the system whose type is amount.
func (s *SabotageSystem) HandleRepair(player uint8, amount uint8) {
	if s.cooldown > 0 {
		return
	}
	target := s.ship.System(content.SystemType(amount))
	if target == nil || target == System(s) || target.Sabotaged() {
		return
	}

	ev := events.Emit(s.ship.Emitter(), &SystemSabotageEvent{System: target.Type(), Player: player})
	if ev.Canceled() {
		return
	}
	target.HandleSabotage(player)
	s.cooldown = seconds(SabotageCooldown)
	s.markDirty()
}

// Sabotage requests a sabotage of target, forwarding to the host when needed.
func (s *SabotageSystem) Sabotage(target content.SystemType, player uint8) {
	s.repair(s, player, uint8(target))
}

func (s *SabotageSystem) FixedUpdate(delta time.Duration) {
	if s.cooldown <= 0 {
		return
	}
	before := s.cooldown
	s.cooldown -= seconds(delta)
	if s.cooldown < 0 {
		s.cooldown = 0
	}
	if crossedSecond(before, s.cooldown) || s.cooldown == 0 {
		s.markDirty()
	}
}
