package room

import (
	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/protocol"
)

// LobbyBehaviour marks the pre-game lobby scene. It carries no state.
type LobbyBehaviour struct {
	NetObject
}

func newLobbyBehaviour(r *Room, spawnType content.SpawnType, netID uint32, ownerID int32, flags protocol.SpawnFlag) Networkable {
	return &LobbyBehaviour{NetObject: newNetObject(r, spawnType, netID, ownerID, flags)}
}
