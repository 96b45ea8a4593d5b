package systems

import (
	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

// Repair amount bits shared by the console-based systems.
const (
	repairSabotage = 0x80
	repairOpen     = 0x40
	repairClose    = 0x20
	repairComplete = 0x10
	consoleMask    = 0x0f
)

// HudOverrideSystem is the communications sabotage on the Skeld, Polus and
// the Airship.
// Format (spawn and delta): [active:1]
type HudOverrideSystem struct {
	base
	active bool
}

// NewHudOverrideSystem creates a repaired comms system.
func NewHudOverrideSystem(ship Ship) *HudOverrideSystem {
	return &HudOverrideSystem{base: base{ship: ship, typ: content.SystemComms}}
}

func (s *HudOverrideSystem) Sabotaged() bool { return s.active }

func (s *HudOverrideSystem) Serialize(w *protocol.Writer, spawn bool) {
	w.WriteBool(s.active)
}

func (s *HudOverrideSystem) Deserialize(r *protocol.Reader, spawn bool) {
	s.active = r.ReadBool()
}

func (s *HudOverrideSystem) HandleSabotage(player uint8) {
	if s.active {
		return
	}
	s.active = true
	s.markDirty()
	s.sabotaged(player)
}

// HandleRepair sabotages on 0x80 and repairs on anything else.
func (s *HudOverrideSystem) HandleRepair(player uint8, amount uint8) {
	if amount&repairSabotage != 0 {
		s.HandleSabotage(player)
		return
	}
	if !s.active || !s.beginRepair(player, amount) {
		return
	}
	s.active = false
	s.markDirty()
	s.repaired(player)
}

// Repair fixes comms, forwarding to the host when needed.
func (s *HudOverrideSystem) Repair(player uint8) {
	s.repair(s, player, 0)
}

// HqHudSystem is the two-console communications sabotage on Mira HQ.
// Format (spawn and delta): [num_active:packed][num_active * (player:1, console:1)]
// [num_completed:packed][num_completed * console:1]
type HqHudSystem struct {
	base
	active    []ConsolePair
	completed []uint8
}

// NewHqHudSystem creates a repaired comms system.
func NewHqHudSystem(ship Ship) *HqHudSystem {
	return &HqHudSystem{
		base:      base{ship: ship, typ: content.SystemComms},
		completed: []uint8{0, 1},
	}
}

func (s *HqHudSystem) Active() []ConsolePair { return s.active }
func (s *HqHudSystem) Completed() []uint8    { return s.completed }

func (s *HqHudSystem) Sabotaged() bool { return len(s.completed) < 2 }

func (s *HqHudSystem) Serialize(w *protocol.Writer, spawn bool) {
	writePairs(w, s.active)
	writeIDs(w, s.completed)
}

func (s *HqHudSystem) Deserialize(r *protocol.Reader, spawn bool) {
	s.active = readPairs(r)
	s.completed = readIDs(r)
}

func (s *HqHudSystem) HandleSabotage(player uint8) {
	if s.Sabotaged() {
		return
	}
	s.active = nil
	s.completed = nil
	s.markDirty()
	s.sabotaged(player)
}

func (s *HqHudSystem) HandleRepair(player uint8, amount uint8) {
	if amount&repairSabotage != 0 {
		s.HandleSabotage(player)
		return
	}
	if !s.beginRepair(player, amount) {
		return
	}
	console := amount & consoleMask
	switch {
	case amount&repairOpen != 0:
		s.openConsole(player, console)
	case amount&repairClose != 0:
		s.closeConsole(player, console)
	case amount&repairComplete != 0:
		s.completeConsole(player, console)
	}
}

func (s *HqHudSystem) openConsole(player, console uint8) {
	pair := ConsolePair{Player: player, Console: console}
	if indexPair(s.active, pair) >= 0 {
		return
	}
	s.active = append(s.active, pair)
	ev := events.Emit(s.ship.Emitter(), &ConsoleEvent{System: s.typ, Player: player, Console: console})
	if ev.Reverted() {
		s.active = s.active[:len(s.active)-1]
		return
	}
	s.markDirty()
}

func (s *HqHudSystem) closeConsole(player, console uint8) {
	i := indexPair(s.active, ConsolePair{Player: player, Console: console})
	if i < 0 {
		return
	}
	prev := s.active
	s.active = append(s.active[:i:i], s.active[i+1:]...)
	ev := events.Emit(s.ship.Emitter(), &ConsoleEvent{System: s.typ, Player: player, Console: console, Removed: true})
	if ev.Reverted() {
		s.active = prev
		return
	}
	s.markDirty()
}

func (s *HqHudSystem) completeConsole(player, console uint8) {
	if !s.Sabotaged() || containsID(s.completed, console) {
		return
	}
	s.completed = append(s.completed, console)
	ev := events.Emit(s.ship.Emitter(), &ConsoleEvent{System: s.typ, Player: player, Console: console, Completed: true})
	if ev.Reverted() {
		s.completed = s.completed[:len(s.completed)-1]
		return
	}
	s.markDirty()
	if !s.Sabotaged() {
		s.active = nil
		s.repaired(player)
	}
}

// OpenConsole, CloseConsole and CompleteConsole forward to the host when needed.
func (s *HqHudSystem) OpenConsole(player, console uint8) {
	s.repair(s, player, repairOpen|console&consoleMask)
}

func (s *HqHudSystem) CloseConsole(player, console uint8) {
	s.repair(s, player, repairClose|console&consoleMask)
}

func (s *HqHudSystem) CompleteConsole(player, console uint8) {
	s.repair(s, player, repairComplete|console&consoleMask)
}
