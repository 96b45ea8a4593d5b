package room

import (
	"math/rand/v2"
	"time"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/protocol"
	"github.com/skeld-project/skeld/internal/systems"
)

// ShipStatus routes repairs to the ship systems of the current map and
// replicates them.
//
// Format: one framed sub-message per system, tagged with the system type.
// Spawn writes every system, delta only the dirty ones.
type ShipStatus struct {
	NetObject
	mapID   content.MapID
	systems []systems.System
	byType  map[content.SystemType]systems.System
}

var _ systems.Ship = (*ShipStatus)(nil)

func shipMap(t content.SpawnType) content.MapID {
	switch t {
	case content.SpawnHeadquarters:
		return content.MapMiraHQ
	case content.SpawnPlanetMap:
		return content.MapPolus
	case content.SpawnAprilShipStatus:
		return content.MapAprilSkeld
	case content.SpawnAirship:
		return content.MapAirship
	default:
		return content.MapTheSkeld
	}
}

func newShipStatus(r *Room, spawnType content.SpawnType, netID uint32, ownerID int32, flags protocol.SpawnFlag) Networkable {
	s := &ShipStatus{
		NetObject: newNetObject(r, spawnType, netID, ownerID, flags),
		mapID:     shipMap(spawnType),
		byType:    make(map[content.SystemType]systems.System),
	}
	s.systems = systems.ForMap(s)
	for _, sys := range s.systems {
		s.byType[sys.Type()] = sys
	}
	return s
}

func (s *ShipStatus) Map() content.MapID        { return s.mapID }
func (s *ShipStatus) Rand() *rand.Rand          { return s.room.rng }
func (s *ShipStatus) Systems() []systems.System { return s.systems }

func (s *ShipStatus) System(t content.SystemType) systems.System {
	return s.byType[t]
}

// SendRepair forwards a repair to the host on behalf of our own player.
func (s *ShipStatus) SendRepair(t content.SystemType, amount uint8) {
	var playerNetID uint32
	if me := s.room.Me(); me != nil {
		if c := me.Control(); c != nil {
			playerNetID = c.NetID()
		}
	}
	s.sendRpc(&protocol.RepairSystemRpc{System: t, PlayerNetID: playerNetID, Amount: amount})
}

func (s *ShipStatus) RegisterEndGameIntent(intent systems.EndGameIntent) {
	s.room.RegisterEndGameIntent(intent)
}

// Sabotage starts a sabotage of target through the sabotage system.
func (s *ShipStatus) Sabotage(target content.SystemType) bool {
	sab, ok := s.byType[content.SystemSabotage].(*systems.SabotageSystem)
	if !ok || s.byType[target] == nil {
		return false
	}
	sab.Sabotage(target, systems.NoPlayer)
	return true
}

// AnySabotaged reports whether any system is currently sabotaged.
func (s *ShipStatus) AnySabotaged() bool {
	for _, sys := range s.systems {
		if sys.Sabotaged() {
			return true
		}
	}
	return false
}

func (s *ShipStatus) Awake() {
	if !s.IsHost() {
		return
	}
	if doors, ok := s.byType[content.SystemDecontamination].(*systems.ElectricalDoorsSystem); ok {
		doors.Shuffle()
	}
}

func (s *ShipStatus) Dirty() bool {
	for _, sys := range s.systems {
		if sys.Dirty() {
			return true
		}
	}
	return false
}

func (s *ShipStatus) ClearDirty() {
	for _, sys := range s.systems {
		sys.ClearDirty()
	}
}

func (s *ShipStatus) FixedUpdate(delta time.Duration) {
	if !s.IsHost() {
		return
	}
	for _, sys := range s.systems {
		sys.FixedUpdate(delta)
	}
}

func (s *ShipStatus) Serialize(w *protocol.Writer, spawn bool) bool {
	wrote := false
	for _, sys := range s.systems {
		if !spawn && !sys.Dirty() {
			continue
		}
		w.Begin(byte(sys.Type()))
		sys.Serialize(w, spawn)
		w.End()
		wrote = true
	}
	return wrote
}

func (s *ShipStatus) Deserialize(r *protocol.Reader, spawn bool) {
	_ = r.Messages(func(tag byte, sub *protocol.Reader) error {
		if sys := s.byType[content.SystemType(tag)]; sys != nil {
			sys.Deserialize(sub, spawn)
		}
		return nil
	})
}

// playerForNetID maps a PlayerControl net id to its player id.
func (s *ShipStatus) playerForNetID(netID uint32) uint8 {
	if c, ok := s.room.netObjects[netID].(*PlayerControl); ok {
		return c.PlayerID()
	}
	return systems.NoPlayer
}

func (s *ShipStatus) playerForClient(clientID int32) uint8 {
	if p := s.room.players[clientID]; p != nil {
		if id, ok := p.PlayerID(); ok {
			return id
		}
	}
	return systems.NoPlayer
}

func (s *ShipStatus) HandleRpc(rpc protocol.Rpc, sender int32) {
	if !s.IsHost() {
		return
	}
	switch c := rpc.(type) {
	case *protocol.RepairSystemRpc:
		sys := s.byType[c.System]
		if sys == nil {
			s.room.logger.Debug().Uint8("system", uint8(c.System)).Msg("repair for missing system")
			return
		}
		sys.HandleRepair(s.playerForNetID(c.PlayerNetID), c.Amount)

	case *protocol.CloseDoorsOfTypeRpc:
		player := s.playerForClient(sender)
		for _, sys := range s.systems {
			if closer, ok := sys.(systems.DoorCloser); ok {
				closer.CloseDoorsOfType(c.System, player)
			}
		}
	}
}
