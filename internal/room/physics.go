package room

import (
	"slices"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

// NoVent is the vent id of a player outside every vent.
const NoVent int32 = -1

// PlayerPhysics carries vent and ladder movement. It has no replicated
// state of its own; everything travels as calls.
type PlayerPhysics struct {
	NetObject
	vent      int32
	ladderSeq uint8
}

func newPlayerPhysics(r *Room, spawnType content.SpawnType, netID uint32, ownerID int32, flags protocol.SpawnFlag) Networkable {
	return &PlayerPhysics{
		NetObject: newNetObject(r, spawnType, netID, ownerID, flags),
		vent:      NoVent,
	}
}

// Vent returns the vent the player is in, or NoVent.
func (p *PlayerPhysics) Vent() int32 { return p.vent }

func (p *PlayerPhysics) validVent(vent uint32) bool {
	if p.room.ShipStatus == nil {
		return true
	}
	return slices.Contains(content.Vents(p.room.ShipStatus.Map()), vent)
}

// EnterVent moves the player into a vent.
func (p *PlayerPhysics) EnterVent(vent uint32) bool {
	if !p.enterVent(vent) {
		return false
	}
	p.sendRpc(&protocol.EnterVentRpc{VentID: vent})
	return true
}

func (p *PlayerPhysics) enterVent(vent uint32) bool {
	if p.vent != NoVent || !p.validVent(vent) {
		return false
	}
	p.vent = int32(vent)
	events.Emit(p.emitter, &PlayerVentEvent{Player: p.Player(), Vent: vent, Entered: true})
	return true
}

// ExitVent moves the player out of a vent.
func (p *PlayerPhysics) ExitVent(vent uint32) bool {
	if !p.exitVent(vent) {
		return false
	}
	p.sendRpc(&protocol.ExitVentRpc{VentID: vent})
	return true
}

func (p *PlayerPhysics) exitVent(vent uint32) bool {
	if !p.validVent(vent) {
		return false
	}
	p.vent = NoVent
	events.Emit(p.emitter, &PlayerVentEvent{Player: p.Player(), Vent: vent, Entered: false})
	return true
}

// ClimbLadder moves the player along an Airship ladder.
func (p *PlayerPhysics) ClimbLadder(ladder uint8) bool {
	if p.room.ShipStatus != nil && !slices.Contains(content.Ladders(p.room.ShipStatus.Map()), ladder) {
		return false
	}
	p.ladderSeq++
	p.sendRpc(&protocol.ClimbLadderRpc{LadderID: ladder, Seq: p.ladderSeq})
	events.Emit(p.emitter, &PlayerClimbLadderEvent{Player: p.Player(), Ladder: ladder})
	return true
}

func (p *PlayerPhysics) HandleRpc(rpc protocol.Rpc, sender int32) {
	if sender != p.ownerID && sender != p.room.hostID {
		return
	}
	switch c := rpc.(type) {
	case *protocol.EnterVentRpc:
		p.enterVent(c.VentID)
	case *protocol.ExitVentRpc:
		p.exitVent(c.VentID)
	case *protocol.ClimbLadderRpc:
		if !protocol.Seq8GreaterThan(c.Seq, p.ladderSeq) {
			return
		}
		p.ladderSeq = c.Seq
		events.Emit(p.emitter, &PlayerClimbLadderEvent{Player: p.Player(), Ladder: c.LadderID})
	}
}
