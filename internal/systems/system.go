// Package systems implements the ship sub-systems owned by a ShipStatus:
// sabotage and repair minigames, doors and the small helpers they share.
//
// A system never mutates its ship directly. It reads the ship through the
// Ship interface, marks itself dirty so the ship re-serializes it, emits
// events on the ship's emitter and, for fatal sabotages, registers an
// end-game intent for the room to resolve at the end of the tick.
package systems

import (
	"math/rand/v2"
	"time"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

// NoPlayer is used when a repair cannot be attributed to a player.
const NoPlayer uint8 = 255

// inactiveTimer is the countdown value of a critical system that is not
// sabotaged.
const inactiveTimer float32 = 10000

// Ship is what a system needs from the ShipStatus that owns it.
type Ship interface {
	Map() content.MapID
	// IsHost reports whether this room resolves game rules locally.
	IsHost() bool
	Emitter() *events.Emitter
	Rand() *rand.Rand
	// System returns a sibling system, or nil.
	System(t content.SystemType) System
	Systems() []System
	// SendRepair asks the host to run a repair on our behalf.
	SendRepair(t content.SystemType, amount uint8)
	// RegisterEndGameIntent asks the room to consider ending the game.
	RegisterEndGameIntent(intent EndGameIntent)
}

// EndGameIntent is a request, raised during a tick, to end the game.
type EndGameIntent struct {
	Name   string
	Reason protocol.GameOverReason
}

// System is one ship sub-system.
type System interface {
	Type() content.SystemType
	Sabotaged() bool
	Dirty() bool
	ClearDirty()
	// Serialize writes the system state. Most systems write the same shape
	// for spawn and delta.
	Serialize(w *protocol.Writer, spawn bool)
	Deserialize(r *protocol.Reader, spawn bool)
	// HandleRepair applies a RepairSystem amount sent by player.
	HandleRepair(player uint8, amount uint8)
	// HandleSabotage starts this system's sabotage, if it has one.
	HandleSabotage(player uint8)
	FixedUpdate(delta time.Duration)
}

type base struct {
	ship  Ship
	typ   content.SystemType
	dirty bool
}

func (b *base) Type() content.SystemType  { return b.typ }
func (b *base) Sabotaged() bool           { return false }
func (b *base) Dirty() bool               { return b.dirty }
func (b *base) ClearDirty()               { b.dirty = false }
func (b *base) markDirty()                { b.dirty = true }
func (b *base) HandleSabotage(uint8)      {}
func (b *base) FixedUpdate(time.Duration) {}

// repair runs amount locally on the host or forwards it otherwise.
func (b *base) repair(self System, player uint8, amount uint8) {
	if b.ship.IsHost() {
		self.HandleRepair(player, amount)
		return
	}
	b.ship.SendRepair(b.typ, amount)
}

func (b *base) sabotaged(player uint8) {
	events.Emit(b.ship.Emitter(), &SystemSabotagedEvent{System: b.typ, Player: player})
}

func (b *base) repaired(player uint8) {
	events.Emit(b.ship.Emitter(), &SystemRepairedEvent{System: b.typ, Player: player})
}

// beginRepair emits the cancelable pre-repair event.
func (b *base) beginRepair(player, amount uint8) bool {
	ev := events.Emit(b.ship.Emitter(), &SystemRepairEvent{System: b.typ, Player: player, Amount: amount})
	return !ev.Canceled()
}

func seconds(d time.Duration) float32 {
	return float32(d.Seconds())
}

// crossedSecond reports whether a countdown moved across a whole-second
// boundary, which is when clients need a new value.
func crossedSecond(before, after float32) bool {
	return int(before) != int(after)
}

// ConsolePair is a player standing at a console.
type ConsolePair struct {
	Player  uint8 `json:"player"`
	Console uint8 `json:"console"`
}

func writePairs(w *protocol.Writer, pairs []ConsolePair) {
	w.WritePackedUint32(uint32(len(pairs)))
	for _, p := range pairs {
		w.WriteUint8(p.Player)
		w.WriteUint8(p.Console)
	}
}

func readPairs(r *protocol.Reader) []ConsolePair {
	n := r.ReadPackedUint32()
	if int(n)*2 > r.Left() {
		n = uint32(r.Left() / 2)
	}
	out := make([]ConsolePair, 0, n)
	for i := uint32(0); i < n; i++ {
		out = append(out, ConsolePair{Player: r.ReadUint8(), Console: r.ReadUint8()})
	}
	return out
}

func indexPair(pairs []ConsolePair, p ConsolePair) int {
	for i, q := range pairs {
		if q == p {
			return i
		}
	}
	return -1
}

func writeIDs(w *protocol.Writer, ids []uint8) {
	w.WritePackedUint32(uint32(len(ids)))
	for _, id := range ids {
		w.WriteUint8(id)
	}
}

func readIDs(r *protocol.Reader) []uint8 {
	n := r.ReadPackedUint32()
	if int(n) > r.Left() {
		n = uint32(r.Left())
	}
	out := make([]uint8, 0, n)
	for i := uint32(0); i < n; i++ {
		out = append(out, r.ReadUint8())
	}
	return out
}

func containsID(ids []uint8, id uint8) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []uint8, id uint8) []uint8 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

// countDistinctConsoles counts consoles with at least one player on them.
func countDistinctConsoles(pairs []ConsolePair) int {
	seen := make(map[uint8]struct{}, len(pairs))
	for _, p := range pairs {
		seen[p.Console] = struct{}{}
	}
	return len(seen)
}
