package systems

import (
	"time"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

// HeliDuration and HeliResetDelay drive the Airship crash course.
const (
	HeliDuration   = 90 * time.Second
	HeliResetDelay = 10 * time.Second
)

// consolesToRepair is how many consoles fix a critical sabotage.
const consolesToRepair = 2

// ReactorSystem is the reactor meltdown on the Skeld and Mira HQ, and the
// seismic stabilizers (laboratory) on Polus.
// Format (spawn and delta): [timer:f32][num_pairs:packed][num_pairs * (player:1, console:1)]
type ReactorSystem struct {
	base
	timer    float32
	duration time.Duration
	pairs    []ConsolePair
	fired    bool
}

// NewReactorSystem creates a repaired reactor registered as typ.
func NewReactorSystem(ship Ship, typ content.SystemType) *ReactorSystem {
	return &ReactorSystem{
		base:     base{ship: ship, typ: typ},
		timer:    inactiveTimer,
		duration: content.ReactorDuration(ship.Map()),
	}
}

func (s *ReactorSystem) Timer() float32       { return s.timer }
func (s *ReactorSystem) Pairs() []ConsolePair { return s.pairs }
func (s *ReactorSystem) Sabotaged() bool      { return s.timer < inactiveTimer }

func (s *ReactorSystem) Serialize(w *protocol.Writer, spawn bool) {
	w.WriteFloat32(s.timer)
	writePairs(w, s.pairs)
}

func (s *ReactorSystem) Deserialize(r *protocol.Reader, spawn bool) {
	s.timer = r.ReadFloat32()
	s.pairs = readPairs(r)
}

func (s *ReactorSystem) HandleSabotage(player uint8) {
	if s.Sabotaged() {
		return
	}
	s.timer = seconds(s.duration)
	s.pairs = nil
	s.fired = false
	s.markDirty()
	s.sabotaged(player)
}

// HandleRepair: 0x80 sabotages, 0x40|console places a hand, 0x20|console
// lifts it, 0x10 repairs outright.
func (s *ReactorSystem) HandleRepair(player uint8, amount uint8) {
	if amount&repairSabotage != 0 {
		s.HandleSabotage(player)
		return
	}
	if !s.Sabotaged() || !s.beginRepair(player, amount) {
		return
	}
	console := amount & 0x03
	switch {
	case amount&repairOpen != 0:
		s.addPair(player, console)
	case amount&repairClose != 0:
		s.removePair(player, console)
	case amount&repairComplete != 0:
		s.fix(player)
	}
}

func (s *ReactorSystem) addPair(player, console uint8) {
	pair := ConsolePair{Player: player, Console: console}
	if indexPair(s.pairs, pair) >= 0 {
		return
	}
	s.pairs = append(s.pairs, pair)
	ev := events.Emit(s.ship.Emitter(), &ConsoleEvent{System: s.typ, Player: player, Console: console})
	if ev.Reverted() {
		s.pairs = s.pairs[:len(s.pairs)-1]
		return
	}
	s.markDirty()
	if countDistinctConsoles(s.pairs) >= consolesToRepair {
		s.fix(player)
	}
}

func (s *ReactorSystem) removePair(player, console uint8) {
	i := indexPair(s.pairs, ConsolePair{Player: player, Console: console})
	if i < 0 {
		return
	}
	prev := s.pairs
	s.pairs = append(s.pairs[:i:i], s.pairs[i+1:]...)
	ev := events.Emit(s.ship.Emitter(), &ConsoleEvent{System: s.typ, Player: player, Console: console, Removed: true})
	if ev.Reverted() {
		s.pairs = prev
		return
	}
	s.markDirty()
}

func (s *ReactorSystem) fix(player uint8) {
	s.timer = inactiveTimer
	s.pairs = nil
	s.fired = false
	s.markDirty()
	s.repaired(player)
}

// PlaceHand and RemoveHand forward to the host when needed.
func (s *ReactorSystem) PlaceHand(player, console uint8) {
	s.repair(s, player, repairOpen|console&0x03)
}

func (s *ReactorSystem) RemoveHand(player, console uint8) {
	s.repair(s, player, repairClose|console&0x03)
}

// Repair fixes the reactor outright.
func (s *ReactorSystem) Repair(player uint8) {
	s.repair(s, player, repairComplete)
}

func (s *ReactorSystem) FixedUpdate(delta time.Duration) {
	if !s.Sabotaged() || s.fired {
		return
	}
	before := s.timer
	s.timer -= seconds(delta)
	if s.timer <= 0 {
		s.timer = 0
		s.fired = true
		s.markDirty()
		s.ship.RegisterEndGameIntent(EndGameIntent{
			Name:   "reactor meltdown",
			Reason: protocol.GameOverImpostorBySabotage,
		})
		return
	}
	if crossedSecond(before, s.timer) {
		s.markDirty()
	}
}

// LifeSuppSystem is the O2 depletion sabotage.
// Format (spawn and delta): [timer:f32][num_completed:packed][num_completed * console:packed]
type LifeSuppSystem struct {
	base
	timer     float32
	completed []uint8
	fired     bool
}

// NewLifeSuppSystem creates a repaired O2 system.
func NewLifeSuppSystem(ship Ship) *LifeSuppSystem {
	return &LifeSuppSystem{
		base:  base{ship: ship, typ: content.SystemLifeSupp},
		timer: inactiveTimer,
	}
}

func (s *LifeSuppSystem) Timer() float32     { return s.timer }
func (s *LifeSuppSystem) Completed() []uint8 { return s.completed }
func (s *LifeSuppSystem) Sabotaged() bool    { return s.timer < inactiveTimer }

func (s *LifeSuppSystem) Serialize(w *protocol.Writer, spawn bool) {
	w.WriteFloat32(s.timer)
	w.WritePackedUint32(uint32(len(s.completed)))
	for _, c := range s.completed {
		w.WritePackedUint32(uint32(c))
	}
}

func (s *LifeSuppSystem) Deserialize(r *protocol.Reader, spawn bool) {
	s.timer = r.ReadFloat32()
	n := r.ReadPackedUint32()
	if int(n) > r.Left() {
		n = uint32(r.Left())
	}
	s.completed = make([]uint8, 0, n)
	for i := uint32(0); i < n; i++ {
		s.completed = append(s.completed, uint8(r.ReadPackedUint32()))
	}
}

func (s *LifeSuppSystem) HandleSabotage(player uint8) {
	if s.Sabotaged() {
		return
	}
	s.timer = seconds(content.OxygenDuration)
	s.completed = nil
	s.fired = false
	s.markDirty()
	s.sabotaged(player)
}

// HandleRepair: 0x80 sabotages, 0x40|console enters a code, 0x10 repairs.
func (s *LifeSuppSystem) HandleRepair(player uint8, amount uint8) {
	if amount&repairSabotage != 0 {
		s.HandleSabotage(player)
		return
	}
	if !s.Sabotaged() || !s.beginRepair(player, amount) {
		return
	}
	switch {
	case amount&repairOpen != 0:
		s.complete(player, amount&0x03)
	case amount&repairComplete != 0:
		s.fix(player)
	}
}

func (s *LifeSuppSystem) complete(player, console uint8) {
	if containsID(s.completed, console) {
		return
	}
	s.completed = append(s.completed, console)
	ev := events.Emit(s.ship.Emitter(), &ConsoleEvent{System: s.typ, Player: player, Console: console, Completed: true})
	if ev.Reverted() {
		s.completed = s.completed[:len(s.completed)-1]
		return
	}
	s.markDirty()
	if len(s.completed) >= consolesToRepair {
		s.fix(player)
	}
}

func (s *LifeSuppSystem) fix(player uint8) {
	s.timer = inactiveTimer
	s.completed = nil
	s.fired = false
	s.markDirty()
	s.repaired(player)
}

// EnterCode completes one O2 console, forwarding to the host when needed.
func (s *LifeSuppSystem) EnterCode(player, console uint8) {
	s.repair(s, player, repairOpen|console&0x03)
}

// Repair fixes O2 outright.
func (s *LifeSuppSystem) Repair(player uint8) {
	s.repair(s, player, repairComplete)
}

func (s *LifeSuppSystem) FixedUpdate(delta time.Duration) {
	if !s.Sabotaged() || s.fired {
		return
	}
	before := s.timer
	s.timer -= seconds(delta)
	if s.timer <= 0 {
		s.timer = 0
		s.fired = true
		s.markDirty()
		s.ship.RegisterEndGameIntent(EndGameIntent{
			Name:   "oxygen depleted",
			Reason: protocol.GameOverImpostorBySabotage,
		})
		return
	}
	if crossedSecond(before, s.timer) {
		s.markDirty()
	}
}

// HeliSabotageSystem is the Airship crash course.
// Format (spawn and delta): [countdown:f32][reset_timer:f32]
// [num_active:packed][num_active * (player:1, console:1)]
// [num_completed:packed][num_completed * console:1]
type HeliSabotageSystem struct {
	base
	countdown  float32
	resetTimer float32
	active     []ConsolePair
	completed  []uint8
	fired      bool
}

// NewHeliSabotageSystem creates a repaired crash course system.
func NewHeliSabotageSystem(ship Ship) *HeliSabotageSystem {
	return &HeliSabotageSystem{
		base:       base{ship: ship, typ: content.SystemReactor},
		countdown:  inactiveTimer,
		resetTimer: -1,
	}
}

func (s *HeliSabotageSystem) Countdown() float32    { return s.countdown }
func (s *HeliSabotageSystem) ResetTimer() float32   { return s.resetTimer }
func (s *HeliSabotageSystem) Active() []ConsolePair { return s.active }
func (s *HeliSabotageSystem) Completed() []uint8    { return s.completed }
func (s *HeliSabotageSystem) Sabotaged() bool       { return s.countdown < inactiveTimer }

func (s *HeliSabotageSystem) Serialize(w *protocol.Writer, spawn bool) {
	w.WriteFloat32(s.countdown)
	w.WriteFloat32(s.resetTimer)
	writePairs(w, s.active)
	writeIDs(w, s.completed)
}

func (s *HeliSabotageSystem) Deserialize(r *protocol.Reader, spawn bool) {
	s.countdown = r.ReadFloat32()
	s.resetTimer = r.ReadFloat32()
	s.active = readPairs(r)
	s.completed = readIDs(r)
}

func (s *HeliSabotageSystem) HandleSabotage(player uint8) {
	if s.Sabotaged() {
		return
	}
	s.countdown = seconds(HeliDuration)
	s.resetTimer = -1
	s.active = nil
	s.completed = nil
	s.fired = false
	s.markDirty()
	s.sabotaged(player)
}

func (s *HeliSabotageSystem) HandleRepair(player uint8, amount uint8) {
	if amount&repairSabotage != 0 {
		s.HandleSabotage(player)
		return
	}
	if !s.Sabotaged() || !s.beginRepair(player, amount) {
		return
	}
	console := amount & consoleMask
	switch {
	case amount&repairOpen != 0:
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
		s.resetTimer = -1
		s.markDirty()
	case amount&repairClose != 0:
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
		if len(s.active) == 0 && len(s.completed) > 0 {
			s.resetTimer = seconds(HeliResetDelay)
		}
		s.markDirty()
	case amount&repairComplete != 0:
		if containsID(s.completed, console) {
			return
		}
		s.completed = append(s.completed, console)
		ev := events.Emit(s.ship.Emitter(), &ConsoleEvent{System: s.typ, Player: player, Console: console, Completed: true})
		if ev.Reverted() {
			s.completed = s.completed[:len(s.completed)-1]
			return
		}
		s.markDirty()
		if len(s.completed) >= consolesToRepair {
			s.countdown = inactiveTimer
			s.resetTimer = -1
			s.active = nil
			s.completed = nil
			s.repaired(player)
		}
	}
}

// OpenConsole, CloseConsole and CompleteConsole forward to the host when needed.
func (s *HeliSabotageSystem) OpenConsole(player, console uint8) {
	s.repair(s, player, repairOpen|console&consoleMask)
}

func (s *HeliSabotageSystem) CloseConsole(player, console uint8) {
	s.repair(s, player, repairClose|console&consoleMask)
}

func (s *HeliSabotageSystem) CompleteConsole(player, console uint8) {
	s.repair(s, player, repairComplete|console&consoleMask)
}

func (s *HeliSabotageSystem) FixedUpdate(delta time.Duration) {
	if !s.Sabotaged() || s.fired {
		return
	}
	dt := seconds(delta)

	if s.resetTimer > 0 {
		s.resetTimer -= dt
		if s.resetTimer <= 0 {
			s.resetTimer = -1
			s.completed = nil
			s.markDirty()
		}
	}

	before := s.countdown
	s.countdown -= dt
	if s.countdown <= 0 {
		s.countdown = 0
		s.fired = true
		s.markDirty()
		s.ship.RegisterEndGameIntent(EndGameIntent{
			Name:   "helicopter crash",
			Reason: protocol.GameOverImpostorBySabotage,
		})
		return
	}
	if crossedSecond(before, s.countdown) {
		s.markDirty()
	}
}
