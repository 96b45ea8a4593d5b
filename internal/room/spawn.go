package room

import (
	"fmt"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

// ComponentFactory builds one component of a prefab.
type ComponentFactory func(r *Room, spawnType content.SpawnType, netID uint32, ownerID int32, flags protocol.SpawnFlag) Networkable

// Prefab is the ordered component list spawned together for a spawn type.
type Prefab []ComponentFactory

// DefaultPrefabs returns the stock prefab table. Each room gets its own
// copy so RegisterPrefab never leaks across rooms.
func DefaultPrefabs() map[content.SpawnType]Prefab {
	ship := Prefab{newShipStatus}
	return map[content.SpawnType]Prefab{
		content.SpawnShipStatus:      ship,
		content.SpawnHeadquarters:    ship,
		content.SpawnPlanetMap:       ship,
		content.SpawnAprilShipStatus: ship,
		content.SpawnAirship:         ship,
		content.SpawnMeetingHud:      {newMeetingHud},
		content.SpawnLobbyBehaviour:  {newLobbyBehaviour},
		content.SpawnGameData:        {newGameData, newVoteBanSystem},
		content.SpawnPlayer:          {newPlayerControl, newPlayerPhysics, newCustomNetworkTransform},
	}
}

// SpawnPrefab instantiates the prefab for spawnType under ownerID and
// returns its first component. When data is given (a received spawn) the
// net ids come from it and every component deserializes its spawn payload;
// otherwise fresh net ids are assigned. A host spawning with broadcast set
// queues a spawn message carrying each component's full state.
func (r *Room) SpawnPrefab(spawnType content.SpawnType, ownerID int32, flags protocol.SpawnFlag, data []protocol.ComponentData, broadcast bool) (Networkable, error) {
	if r.destroyed {
		return nil, ErrRoomDestroyed
	}
	prefab, ok := r.prefabs[spawnType]
	if !ok {
		return nil, fmt.Errorf("spawn type %d: %w", spawnType, ErrUnknownSpawnType)
	}
	owner := r.objects[ownerID]
	if owner == nil {
		return nil, fmt.Errorf("owner %d: %w", ownerID, ErrUnknownOwner)
	}

	spawned := make([]Networkable, 0, len(prefab))
	for i, factory := range prefab {
		var netID uint32
		var payload []byte
		if i < len(data) {
			netID, payload = data[i].NetID, data[i].Data
		} else {
			netID = r.nextNetID
		}
		if netID >= r.nextNetID {
			r.nextNetID = netID + 1
		}

		c, existing := r.netObjects[netID]
		if !existing {
			c = factory(r, spawnType, netID, ownerID, flags)
		}
		if payload != nil {
			c.Deserialize(protocol.NewReader(payload), true)
		}
		if existing {
			spawned = append(spawned, c)
			continue
		}

		c.Emitter().SetParent(owner.Emitter())
		c.Emitter().SetLogger(r.logger)
		if ownerID == RoomEntityID {
			r.appendComponent(c)
		} else {
			owner.entity().setSlot(i, c)
		}
		r.SpawnComponent(c)
		spawned = append(spawned, c)
	}

	if broadcast && r.IsHost() {
		msg := &protocol.SpawnMessage{
			SpawnType:  spawnType,
			OwnerID:    ownerID,
			Flags:      flags,
			Components: make([]protocol.ComponentData, 0, len(spawned)),
		}
		for _, c := range spawned {
			msg.Components = append(msg.Components, protocol.ComponentData{
				NetID: c.NetID(),
				Data:  spawnPayload(c),
			})
		}
		r.QueueMessage(msg)
	}

	r.logger.Debug().
		Str("type", spawnType.String()).
		Int32("owner", ownerID).
		Uint32("net_id", spawned[0].NetID()).
		Msg("spawned prefab")
	return spawned[0], nil
}

func spawnPayload(c Networkable) []byte {
	w := protocol.NewWriter()
	c.PreSerialize()
	c.Serialize(w, true)
	return w.Copy()
}

// SpawnComponent registers c. A net id that is already registered is left
// alone, so duplicate spawn messages bind once and emit one event.
func (r *Room) SpawnComponent(c Networkable) {
	if _, ok := r.netObjects[c.NetID()]; ok {
		return
	}

	switch v := c.(type) {
	case *ShipStatus:
		r.ShipStatus = v
	case *MeetingHud:
		r.MeetingHud = v
	case *LobbyBehaviour:
		r.Lobby = v
	case *GameData:
		r.GameData = v
	case *VoteBanSystem:
		r.VoteBan = v
	}

	r.netObjects[c.NetID()] = c
	if c.NetID() >= r.nextNetID {
		r.nextNetID = c.NetID() + 1
	}
	c.Awake()
	events.Emit(c.Emitter(), &SpawnEvent{Component: c})
}

// DespawnComponent removes c from the room. Its owner keeps a hole at the
// component's slot. A host also queues a despawn message.
func (r *Room) DespawnComponent(c Networkable) {
	r.despawn(c, true)
}

func (r *Room) despawn(c Networkable, notify bool) {
	if c == nil {
		return
	}
	registered, ok := r.netObjects[c.NetID()]
	if !ok || registered.base() != c.base() {
		return
	}
	delete(r.netObjects, c.NetID())

	switch c.(type) {
	case *ShipStatus:
		r.ShipStatus = nil
	case *MeetingHud:
		r.MeetingHud = nil
	case *LobbyBehaviour:
		r.Lobby = nil
	case *GameData:
		r.GameData = nil
	case *VoteBanSystem:
		r.VoteBan = nil
	}

	c.Despawned()
	if owner := c.base().Owner(); owner != nil {
		owner.entity().removeComponent(c)
	}
	events.Emit(c.Emitter(), &DespawnEvent{Component: c})

	if notify && r.IsHost() {
		r.QueueMessage(&protocol.DespawnMessage{NetID: c.NetID()})
	}
}

// despawnAll removes every live component of an entity.
func (r *Room) despawnAll(e *Entity) {
	for _, c := range e.liveComponents() {
		r.DespawnComponent(c)
	}
}

// spawnedSnapshot returns a spawn message for every live prefab group, in
// net id order. It is sent to a client entering the game scene.
func (r *Room) spawnedSnapshot() []protocol.GameDataMessage {
	var out []protocol.GameDataMessage
	seen := make(map[uint32]bool)
	for _, netID := range sortedNetIDs(r.netObjects) {
		if seen[netID] {
			continue
		}
		msg := r.spawnMessageFor(r.netObjects[netID])
		for _, cd := range msg.Components {
			seen[cd.NetID] = true
		}
		out = append(out, msg)
	}
	return out
}

// spawnMessageFor builds the spawn message of c's prefab group with every
// member's full state.
func (r *Room) spawnMessageFor(c Networkable) *protocol.SpawnMessage {
	msg := &protocol.SpawnMessage{
		SpawnType: c.SpawnType(),
		OwnerID:   c.OwnerID(),
		Flags:     c.Flags(),
	}
	for _, member := range r.prefabGroup(c) {
		msg.Components = append(msg.Components, protocol.ComponentData{
			NetID: member.NetID(),
			Data:  spawnPayload(member),
		})
	}
	return msg
}

// prefabGroup returns the live components spawned together with c.
func (r *Room) prefabGroup(c Networkable) []Networkable {
	if c.OwnerID() != RoomEntityID {
		if owner := c.base().Owner(); owner != nil {
			var group []Networkable
			for _, member := range owner.Components() {
				if member != nil && member.SpawnType() == c.SpawnType() {
					group = append(group, member)
				}
			}
			return group
		}
	}
	if _, ok := c.(*GameData); ok && r.VoteBan != nil {
		return []Networkable{c, r.VoteBan}
	}
	return []Networkable{c}
}
