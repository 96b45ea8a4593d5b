package room

import (
	"github.com/skeld-project/skeld/internal/events"
)

// PlayerData is one connected client. Its entity slots hold the character
// components in Player prefab order: control, physics, transform.
type PlayerData struct {
	Entity
	room     *Room
	clientID int32
	isReady  bool
	inScene  bool
}

func newPlayerData(r *Room, clientID int32) *PlayerData {
	return &PlayerData{
		Entity:   newEntity(clientID, r.emitter),
		room:     r,
		clientID: clientID,
	}
}

func (p *PlayerData) ClientID() int32 { return p.clientID }
func (p *PlayerData) IsReady() bool   { return p.isReady }
func (p *PlayerData) InScene() bool   { return p.inScene }
func (p *PlayerData) Room() *Room     { return p.room }

// IsHost reports whether this player is the room's host.
func (p *PlayerData) IsHost() bool { return p.room.hostID == p.clientID }

// IsMe reports whether this player is the local client.
func (p *PlayerData) IsMe() bool { return p.room.clientID == p.clientID }

// Control returns the player's PlayerControl, or nil before it spawns.
func (p *PlayerData) Control() *PlayerControl { return componentOf[*PlayerControl](&p.Entity) }

// Physics returns the player's PlayerPhysics, or nil.
func (p *PlayerData) Physics() *PlayerPhysics { return componentOf[*PlayerPhysics](&p.Entity) }

// Transform returns the player's CustomNetworkTransform, or nil.
func (p *PlayerData) Transform() *CustomNetworkTransform {
	return componentOf[*CustomNetworkTransform](&p.Entity)
}

// PlayerID returns the player id assigned to the character, if spawned.
func (p *PlayerData) PlayerID() (uint8, bool) {
	c := p.Control()
	if c == nil {
		return 0, false
	}
	return c.PlayerID(), true
}

// Info returns the player's GameData record, or nil.
func (p *PlayerData) Info() *PlayerInfo {
	id, ok := p.PlayerID()
	if !ok || p.room.GameData == nil {
		return nil
	}
	return p.room.GameData.Player(id)
}

// Name returns the player's name, or "" before GameData knows it.
func (p *PlayerData) Name() string {
	if info := p.Info(); info != nil {
		return info.Name
	}
	return ""
}

// SetReady marks the player as having loaded the game scene.
func (p *PlayerData) SetReady() {
	if p.isReady {
		return
	}
	p.isReady = true
	events.Emit(p.emitter, &PlayerReadyEvent{Player: p})
	p.room.checkReady()
}

// Summary describes the player for observers outside the room.
func (p *PlayerData) Summary() events.PlayerSummary {
	s := events.PlayerSummary{ClientID: p.clientID}
	if id, ok := p.PlayerID(); ok {
		s.PlayerID = id
	}
	if info := p.Info(); info != nil {
		s.Name = info.Name
		s.Color = info.Color.String()
		s.Impostor = info.IsImpostor()
		s.Dead = info.IsDead()
		s.Tasks = len(info.Tasks)
		for _, t := range info.Tasks {
			if t.Completed {
				s.Done++
			}
		}
	}
	return s
}
