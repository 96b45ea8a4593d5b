package systems

import (
	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

const (
	medScanJoin  = 0x80
	medScanLeave = 0x40
	medScanID    = 0x1f
)

// MedScanSystem is the queue of players waiting for the med-bay scanner.
// Format (spawn and delta): [count:packed][count * player:1]
type MedScanSystem struct {
	base
	queue []uint8
}

// NewMedScanSystem creates an empty scan queue.
func NewMedScanSystem(ship Ship) *MedScanSystem {
	return &MedScanSystem{base: base{ship: ship, typ: content.SystemMedBay}}
}

// Queue returns the waiting players, first in line first.
func (s *MedScanSystem) Queue() []uint8 { return s.queue }

func (s *MedScanSystem) Serialize(w *protocol.Writer, spawn bool) {
	writeIDs(w, s.queue)
}

func (s *MedScanSystem) Deserialize(r *protocol.Reader, spawn bool) {
	s.queue = readIDs(r)
}

// HandleRepair: 0x80|player joins the queue, 0x40|player leaves it.
func (s *MedScanSystem) HandleRepair(player uint8, amount uint8) {
	if !s.beginRepair(player, amount) {
		return
	}
	id := amount & medScanID
	switch {
	case amount&medScanJoin != 0:
		s.join(id)
	case amount&medScanLeave != 0:
		s.leave(id)
	}
}

func (s *MedScanSystem) join(player uint8) {
	if containsID(s.queue, player) {
		return
	}
	s.queue = append(s.queue, player)
	ev := events.Emit(s.ship.Emitter(), &QueueEvent{System: s.typ, Player: player, Joined: true})
	if ev.Reverted() {
		s.queue = removeID(s.queue, player)
		return
	}
	s.markDirty()
}

func (s *MedScanSystem) leave(player uint8) {
	if !containsID(s.queue, player) {
		return
	}
	prev := append([]uint8(nil), s.queue...)
	s.queue = removeID(s.queue, player)
	ev := events.Emit(s.ship.Emitter(), &QueueEvent{System: s.typ, Player: player})
	if ev.Reverted() {
		s.queue = prev
		return
	}
	s.markDirty()
}

// JoinQueue and LeaveQueue forward to the host when needed.
func (s *MedScanSystem) JoinQueue(player uint8) {
	s.repair(s, player, medScanJoin|player&medScanID)
}

func (s *MedScanSystem) LeaveQueue(player uint8) {
	s.repair(s, player, medScanLeave|player&medScanID)
}

// SecurityCameraSystem tracks who is watching the cameras.
// Format (spawn and delta): [count:packed][count * player:1]
type SecurityCameraSystem struct {
	base
	players []uint8
}

// NewSecurityCameraSystem creates an unwatched camera system.
func NewSecurityCameraSystem(ship Ship) *SecurityCameraSystem {
	return &SecurityCameraSystem{base: base{ship: ship, typ: content.SystemSecurity}}
}

// Players returns who is watching.
func (s *SecurityCameraSystem) Players() []uint8 { return s.players }

func (s *SecurityCameraSystem) Serialize(w *protocol.Writer, spawn bool) {
	writeIDs(w, s.players)
}

func (s *SecurityCameraSystem) Deserialize(r *protocol.Reader, spawn bool) {
	s.players = readIDs(r)
}

// HandleRepair: 1 starts watching, 0 stops.
func (s *SecurityCameraSystem) HandleRepair(player uint8, amount uint8) {
	if player == NoPlayer || !s.beginRepair(player, amount) {
		return
	}
	watching := containsID(s.players, player)
	switch {
	case amount == 1 && !watching:
		s.players = append(s.players, player)
	case amount == 0 && watching:
		s.players = removeID(s.players, player)
	default:
		return
	}

	ev := events.Emit(s.ship.Emitter(), &QueueEvent{System: s.typ, Player: player, Joined: amount == 1})
	if ev.Reverted() {
		if amount == 1 {
			s.players = removeID(s.players, player)
		} else {
			s.players = append(s.players, player)
		}
		return
	}
	s.markDirty()
}

// Watch starts or stops watching, forwarding to the host when needed.
func (s *SecurityCameraSystem) Watch(player uint8, watching bool) {
	var amount uint8
	if watching {
		amount = 1
	}
	s.repair(s, player, amount)
}
