package room

import (
	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

// CustomNetworkTransform replicates a player's position. Every update bumps
// a 16-bit sequence and stale updates are dropped.
//
// Format (spawn and delta): [seq:2][position:vector2][velocity:vector2]
type CustomNetworkTransform struct {
	NetObject
	seq      uint16
	position protocol.Vector2
	velocity protocol.Vector2
}

func newCustomNetworkTransform(r *Room, spawnType content.SpawnType, netID uint32, ownerID int32, flags protocol.SpawnFlag) Networkable {
	return &CustomNetworkTransform{NetObject: newNetObject(r, spawnType, netID, ownerID, flags)}
}

func (t *CustomNetworkTransform) Seq() uint16                { return t.seq }
func (t *CustomNetworkTransform) Position() protocol.Vector2 { return t.position }
func (t *CustomNetworkTransform) Velocity() protocol.Vector2 { return t.velocity }

// Move sets a new position and velocity, sent with the next tick.
func (t *CustomNetworkTransform) Move(position, velocity protocol.Vector2) {
	t.seq++
	t.position = position
	t.velocity = velocity
	t.MarkDirty()
	events.Emit(t.emitter, &PlayerMoveEvent{Player: t.Player(), Position: position, Velocity: velocity})
}

// SnapTo teleports the player. Listeners may revert or alter the target.
func (t *CustomNetworkTransform) SnapTo(position protocol.Vector2) {
	next, ok := t.snapTo(position, t.seq+1)
	if !ok {
		return
	}
	t.sendRpc(&protocol.SnapToRpc{Position: next, Seq: t.seq})
}

func (t *CustomNetworkTransform) snapTo(position protocol.Vector2, seq uint16) (protocol.Vector2, bool) {
	ev := events.Emit(t.emitter, &PlayerSnapToEvent{Mutation: events.NewMutation(t.position, position), Player: t.Player()})
	if ev.Reverted() {
		return t.position, false
	}
	t.seq = seq
	t.position = ev.Resolve()
	t.velocity = protocol.Vector2{}
	return t.position, true
}

func (t *CustomNetworkTransform) Serialize(w *protocol.Writer, spawn bool) bool {
	w.WriteUint16(t.seq)
	w.WriteVector2(t.position)
	w.WriteVector2(t.velocity)
	return true
}

func (t *CustomNetworkTransform) Deserialize(r *protocol.Reader, spawn bool) {
	seq := r.ReadUint16()
	if !spawn && !protocol.Seq16GreaterThan(seq, t.seq) {
		return
	}
	t.seq = seq
	t.position = r.ReadVector2()
	t.velocity = r.ReadVector2()
	if !spawn {
		events.Emit(t.emitter, &PlayerMoveEvent{Player: t.Player(), Position: t.position, Velocity: t.velocity})
	}
}

func (t *CustomNetworkTransform) HandleRpc(rpc protocol.Rpc, sender int32) {
	c, ok := rpc.(*protocol.SnapToRpc)
	if !ok || sender != t.ownerID && sender != t.room.hostID {
		return
	}
	if !protocol.Seq16GreaterThan(c.Seq, t.seq) {
		return
	}
	t.snapTo(c.Position, c.Seq)
}
