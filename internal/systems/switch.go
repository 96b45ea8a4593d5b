package systems

import (
	"time"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

const (
	numSwitches   = 5
	switchMask    = 1<<numSwitches - 1
	switchAllBits = 0x80

	// BrightnessStep is how far the lights move per tick.
	BrightnessStep = 3
	MaxBrightness  = 255
)

// SwitchSystem is the electrical lights sabotage. The lights are out while
// the actual switch vector differs from the expected one.
// Format (spawn and delta): [expected:1][actual:1][brightness:1]
type SwitchSystem struct {
	base
	expected   uint8
	actual     uint8
	brightness uint8
}

// NewSwitchSystem creates a repaired switch panel at full brightness.
func NewSwitchSystem(ship Ship) *SwitchSystem {
	return &SwitchSystem{
		base:       base{ship: ship, typ: content.SystemElectrical},
		brightness: MaxBrightness,
	}
}

func (s *SwitchSystem) Expected() uint8   { return s.expected }
func (s *SwitchSystem) Actual() uint8     { return s.actual }
func (s *SwitchSystem) Brightness() uint8 { return s.brightness }

// Sabotaged reports whether any switch is in the wrong position.
func (s *SwitchSystem) Sabotaged() bool { return s.expected != s.actual }

func (s *SwitchSystem) Serialize(w *protocol.Writer, spawn bool) {
	w.WriteUint8(s.expected)
	w.WriteUint8(s.actual)
	w.WriteUint8(s.brightness)
}

func (s *SwitchSystem) Deserialize(r *protocol.Reader, spawn bool) {
	s.expected = r.ReadUint8()
	s.actual = r.ReadUint8()
	s.brightness = r.ReadUint8()
}

// HandleSabotage picks new random vectors until they differ.
func (s *SwitchSystem) HandleSabotage(player uint8) {
	if s.Sabotaged() {
		return
	}
	rng := s.ship.Rand()
	for s.expected == s.actual {
		s.expected = uint8(rng.IntN(switchMask + 1))
		s.actual = uint8(rng.IntN(switchMask + 1))
	}
	s.markDirty()
	s.sabotaged(player)
}

// HandleRepair flips switches. With the 0x80 bit set, the low five bits are
// XORed into the vector; otherwise amount is the index of one switch.
func (s *SwitchSystem) HandleRepair(player uint8, amount uint8) {
	if !s.beginRepair(player, amount) {
		return
	}

	index := -1
	var flip uint8
	if amount&switchAllBits != 0 {
		flip = amount & switchMask
	} else {
		if amount >= numSwitches {
			return
		}
		index = int(amount)
		flip = 1 << amount
	}
	s.setActual(s.actual^flip, index, player)
}

// Flip toggles one switch, forwarding to the host when needed.
func (s *SwitchSystem) Flip(index int, player uint8) {
	if index < 0 || index >= numSwitches {
		return
	}
	s.repair(s, player, uint8(index))
}

// SetSwitches moves every switch at once; used by the host to fix the
// lights outright.
func (s *SwitchSystem) SetSwitches(actual uint8, player uint8) {
	s.setActual(actual&switchMask, -1, player)
}

func (s *SwitchSystem) setActual(next uint8, index int, player uint8) {
	wasSabotaged := s.Sabotaged()
	old := s.actual
	s.actual = next

	ev := events.Emit(s.ship.Emitter(), &SwitchFlipEvent{
		Mutation: events.NewMutation(old, next),
		Player:   player,
		Switch:   index,
	})
	s.actual = ev.Resolve() & switchMask
	if s.actual == old {
		return
	}
	s.markDirty()
	if wasSabotaged && !s.Sabotaged() {
		s.repaired(player)
	}
}

// FixedUpdate ramps brightness down while sabotaged and back up otherwise.
func (s *SwitchSystem) FixedUpdate(time.Duration) {
	if s.Sabotaged() {
		if s.brightness > 0 {
			if s.brightness < BrightnessStep {
				s.brightness = 0
			} else {
				s.brightness -= BrightnessStep
			}
			s.markDirty()
		}
		return
	}
	if s.brightness < MaxBrightness {
		if s.brightness > MaxBrightness-BrightnessStep {
			s.brightness = MaxBrightness
		} else {
			s.brightness += BrightnessStep
		}
		s.markDirty()
	}
}
