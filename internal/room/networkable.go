package room

import (
	"time"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

// Networkable is one replicated component.
type Networkable interface {
	NetID() uint32
	OwnerID() int32
	SpawnType() content.SpawnType
	Flags() protocol.SpawnFlag
	Emitter() *events.Emitter
	Room() *Room

	Dirty() bool
	ClearDirty()

	// Deserialize applies a spawn (full) or delta (partial) payload.
	Deserialize(r *protocol.Reader, spawn bool)
	// Serialize writes a spawn or delta payload and reports whether it
	// wrote anything.
	Serialize(w *protocol.Writer, spawn bool) bool
	// PreSerialize runs once before a serialize pass.
	PreSerialize()
	// HandleRpc applies a typed call sent by the client sender.
	HandleRpc(rpc protocol.Rpc, sender int32)
	// FixedUpdate runs once per tick on components we simulate.
	FixedUpdate(delta time.Duration)

	// Awake runs when the component is registered, Despawned when it is
	// removed.
	Awake()
	Despawned()

	base() *NetObject
}

// NetObject carries the state every component shares. Components embed it
// and override the hooks they need.
type NetObject struct {
	room      *Room
	netID     uint32
	ownerID   int32
	spawnType content.SpawnType
	flags     protocol.SpawnFlag
	dirty     bool
	emitter   *events.Emitter
}

func newNetObject(r *Room, spawnType content.SpawnType, netID uint32, ownerID int32, flags protocol.SpawnFlag) NetObject {
	return NetObject{
		room:      r,
		netID:     netID,
		ownerID:   ownerID,
		spawnType: spawnType,
		flags:     flags,
		emitter:   events.NewEmitter(nil),
	}
}

func (n *NetObject) NetID() uint32                { return n.netID }
func (n *NetObject) OwnerID() int32               { return n.ownerID }
func (n *NetObject) SpawnType() content.SpawnType { return n.spawnType }
func (n *NetObject) Flags() protocol.SpawnFlag    { return n.flags }
func (n *NetObject) Emitter() *events.Emitter     { return n.emitter }
func (n *NetObject) Room() *Room                  { return n.room }
func (n *NetObject) base() *NetObject             { return n }

func (n *NetObject) Dirty() bool { return n.dirty }
func (n *NetObject) ClearDirty() { n.dirty = false }

// MarkDirty flags the component for the next delta flush.
func (n *NetObject) MarkDirty() { n.dirty = true }

func (n *NetObject) Deserialize(*protocol.Reader, bool) {}

func (n *NetObject) Serialize(*protocol.Writer, bool) bool { return false }

func (n *NetObject) PreSerialize()                 {}
func (n *NetObject) HandleRpc(protocol.Rpc, int32) {}
func (n *NetObject) FixedUpdate(time.Duration)     {}
func (n *NetObject) Awake()                        {}
func (n *NetObject) Despawned()                    {}

// Owner returns the entity owning the component: the room for room-owned
// components, otherwise the player with the owner's client id.
func (n *NetObject) Owner() Heritable {
	if n.ownerID == RoomEntityID {
		return n.room
	}
	if p, ok := n.room.players[n.ownerID]; ok {
		return p
	}
	return nil
}

// Player returns the owning player, or nil for room-owned components.
func (n *NetObject) Player() *PlayerData {
	if n.ownerID == RoomEntityID {
		return nil
	}
	return n.room.players[n.ownerID]
}

// Spawned reports whether the component is registered in its room.
func (n *NetObject) Spawned() bool {
	c, ok := n.room.netObjects[n.netID]
	return ok && c.base() == n
}

// IsHost reports whether the room resolves game rules locally.
func (n *NetObject) IsHost() bool { return n.room.IsHost() }

// CanSimulate reports whether this room drives the component: the host
// drives everything, clients drive what they own.
func (n *NetObject) CanSimulate() bool {
	return n.room.IsHost() || n.ownerID == n.room.clientID
}

// sendRpc queues a call on this component.
func (n *NetObject) sendRpc(rpc protocol.Rpc) {
	n.room.QueueRpc(n.netID, rpc)
}

// sendRpcTo queues a call on this component for one client.
func (n *NetObject) sendRpcTo(recipient int32, rpc protocol.Rpc) {
	n.room.QueueTo(recipient, protocol.NewRpcMessage(n.netID, rpc))
}
