package room

import (
	"reflect"
	"slices"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/logic"
	"github.com/skeld-project/skeld/internal/protocol"
)

// SceneOnlineGame is the scene a client enters when it loads the lobby.
const SceneOnlineGame = "OnlineGame"

// HandleJoin adds a client to the room. It returns nil if the client is
// already present.
func (r *Room) HandleJoin(clientID int32) *PlayerData {
	if r.destroyed || clientID == RoomEntityID {
		return nil
	}
	if _, ok := r.players[clientID]; ok {
		return nil
	}

	p := newPlayerData(r, clientID)
	r.players[clientID] = p
	r.objects[clientID] = p
	if r.hostID == 0 && !r.authoritative {
		r.hostID = clientID
	}

	r.logger.Info().Int32("client_id", clientID).Int("players", len(r.players)).Msg("player joined")
	events.Emit(p.emitter, &PlayerJoinEvent{Player: p})
	return p
}

// HandleLeave removes a player with all of its bookkeeping: its GameData
// record, its kick votes, its meeting vote and votes cast for it, and its
// character components. A player leaving a running game still counts as
// disconnected when end conditions are checked.
func (r *Room) HandleLeave(clientID int32) *PlayerData {
	p, ok := r.players[clientID]
	if !ok {
		return nil
	}

	if playerID, ok := p.PlayerID(); ok {
		if r.GameData != nil {
			if info := r.GameData.Player(playerID); info != nil && r.started {
				r.departed = append(r.departed, logic.PlayerState{
					Impostor:     info.IsImpostor(),
					Dead:         info.IsDead(),
					Disconnected: true,
				})
			}
			r.GameData.Remove(playerID)
		}
		if r.MeetingHud != nil {
			r.MeetingHud.handleLeave(playerID)
		}
	}
	if r.VoteBan != nil {
		r.VoteBan.RemovePlayer(clientID)
	}

	r.despawnAll(&p.Entity)
	delete(r.players, clientID)
	delete(r.objects, clientID)

	r.logger.Info().Int32("client_id", clientID).Int("players", len(r.players)).Msg("player left")
	events.Emit(p.emitter, &PlayerLeaveEvent{Player: p})

	if r.hostID == clientID && !r.authoritative {
		r.SetHost(r.lowestClientID())
	}
	if r.IsHost() {
		r.QueuePayload(&protocol.RemovePlayerPayload{
			Code:     r.code,
			ClientID: clientID,
			HostID:   r.hostID,
			Reason:   protocol.DisconnectExitGame,
		})
	}
	if r.waiting {
		r.checkReady()
	}
	if r.started {
		r.checkEndConditions(logic.CauseDisconnect)
	}
	return p
}

func (r *Room) lowestClientID() int32 {
	var ids []int32
	for id := range r.players {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return 0
	}
	return slices.Min(ids)
}

// KickPlayer removes a client and tells everyone it was kicked or banned.
func (r *Room) KickPlayer(clientID int32, banned bool) error {
	if !r.IsHost() {
		return ErrNotHost
	}
	p := r.players[clientID]
	if p == nil {
		return nil
	}
	r.QueuePayload(&protocol.KickPlayerPayload{Code: r.code, ClientID: clientID, Banned: banned})
	events.Emit(p.emitter, &PlayerKickedEvent{Player: p, Banned: banned})
	r.HandleLeave(clientID)
	return nil
}

// handleSceneChange marks a player as in the game scene. The host then
// spawns the shared objects if missing plus the player's character, and
// sends the newcomer every live object.
func (r *Room) handleSceneChange(p *PlayerData, scene string) {
	events.Emit(p.emitter, &PlayerSceneChangeEvent{Player: p, Scene: scene})
	if scene != SceneOnlineGame {
		return
	}
	p.inScene = true
	r.ended = false
	if !r.IsHost() {
		return
	}

	if r.GameData == nil {
		if _, err := r.SpawnPrefab(content.SpawnGameData, RoomEntityID, protocol.SpawnFlagNone, nil, true); err != nil {
			r.logger.Warn().Err(err).Msg("failed to spawn game data")
		}
	}
	if r.Lobby == nil && !r.started {
		if _, err := r.SpawnPrefab(content.SpawnLobbyBehaviour, RoomEntityID, protocol.SpawnFlagNone, nil, true); err != nil {
			r.logger.Warn().Err(err).Msg("failed to spawn lobby")
		}
	}

	for _, msg := range r.spawnedSnapshot() {
		r.QueueTo(p.clientID, msg)
	}

	if p.Control() != nil {
		return
	}
	playerID := r.GetAvailablePlayerID()
	r.GameData.Add(playerID)
	obj, err := r.SpawnPrefab(content.SpawnPlayer, p.clientID, protocol.SpawnFlagIsClientCharacter, nil, false)
	if err != nil {
		r.logger.Warn().Err(err).Int32("client_id", p.clientID).Msg("failed to spawn player")
		return
	}
	control := obj.(*PlayerControl)
	control.playerID = playerID
	control.isNew = true

	r.QueueMessage(r.spawnMessageFor(control))
}

// HandleStart begins a game. The host tells clients to load the ship, waits
// until every player is ready or the ready timeout passes, then sets the
// game up. A client only marks itself ready.
func (r *Room) HandleStart() error {
	if r.destroyed {
		return ErrRoomDestroyed
	}
	if r.started || r.waiting {
		return ErrGameStarted
	}

	if !r.IsHost() {
		r.started = true
		if me := r.Me(); me != nil {
			me.isReady = true
			r.QueueMessage(&protocol.ReadyMessage{ClientID: me.clientID})
		}
		events.Emit(r.emitter, &GameStartEvent{})
		return nil
	}

	r.waiting = true
	r.ended = false
	r.departed = nil
	for _, p := range r.players {
		p.isReady = false
	}
	r.QueuePayload(&protocol.StartGamePayload{Code: r.code})
	r.logger.Info().Int("players", len(r.players)).Msg("waiting for players to ready")

	r.readyTimer = r.After(r.readyTimeout, func() {
		r.readyTimer = nil
		r.finishStart()
	})
	// A host that plays never receives its own ready message.
	if me := r.Me(); me != nil {
		me.SetReady()
	}
	r.checkReady()
	return nil
}

func (r *Room) checkReady() {
	if !r.waiting {
		return
	}
	for _, p := range r.players {
		if !p.isReady {
			return
		}
	}
	r.finishStart()
}

// finishStart runs once the ready wait is over, by readiness or timeout.
func (r *Room) finishStart() {
	if !r.waiting {
		return
	}
	r.waiting = false
	r.readyTimer.Stop()
	r.readyTimer = nil

	for _, id := range sortedClientIDs(r.players) {
		if p := r.players[id]; !p.isReady {
			r.logger.Info().Int32("client_id", id).Msg("removing player that never readied")
			r.HandleLeave(id)
		}
	}

	r.started = true
	if !r.IsHost() {
		r.logger.Warn().Int32("host_id", r.hostID).Msg("host changed while starting, skipping game setup")
		events.Emit(r.emitter, &GameStartEvent{})
		return
	}
	if r.Lobby != nil {
		r.DespawnComponent(r.Lobby)
	}
	if r.ShipStatus == nil {
		shipType := content.ShipSpawnType(r.settings.Map)
		if _, err := r.SpawnPrefab(shipType, RoomEntityID, protocol.SpawnFlagNone, nil, true); err != nil {
			r.logger.Error().Err(err).Msg("failed to spawn ship")
		}
	}

	var ids []uint8
	for _, id := range sortedClientIDs(r.players) {
		if playerID, ok := r.players[id].PlayerID(); ok {
			ids = append(ids, playerID)
		}
	}

	impostors := logic.SelectImpostors(r.rng, ids, logic.ImpostorCount(r.settings, len(ids)))
	if c := r.anyControl(); c != nil && len(impostors) > 0 {
		c.SetImpostors(impostors)
	}
	if r.GameData != nil {
		tasks := logic.AssignTasks(r.rng, r.settings.Map, r.settings, ids)
		for _, id := range ids {
			r.GameData.SetTasks(id, tasks[id])
		}
	}

	r.logger.Info().Int("players", len(ids)).Int("impostors", len(impostors)).Msg("game started")
	events.Emit(r.emitter, &GameStartEvent{})
}

// HandleEnd finishes the running game. The final player table is captured
// for the event, then every player and component is cleared so clients can
// rejoin the lobby. It does nothing when no game is running.
func (r *Room) HandleEnd(reason protocol.GameOverReason) {
	if !r.started && !r.waiting {
		return
	}
	r.waiting = false
	r.readyTimer.Stop()
	r.readyTimer = nil

	summary := make([]events.PlayerSummary, 0, len(r.players))
	for _, id := range sortedClientIDs(r.players) {
		summary = append(summary, r.players[id].Summary())
	}

	if r.IsHost() {
		r.QueuePayload(&protocol.EndGamePayload{Code: r.code, Reason: reason})
	}

	for _, id := range sortedNetIDs(r.netObjects) {
		if c, ok := r.netObjects[id]; ok {
			r.despawn(c, false)
		}
	}
	for id := range r.players {
		delete(r.objects, id)
	}
	clear(r.players)
	r.components = nil
	r.intents = nil
	r.departed = nil
	r.started = false
	r.ended = true

	r.logger.Info().Uint8("reason", uint8(reason)).Msg("game ended")
	events.Emit(r.emitter, &GameEndEvent{Reason: reason, Players: summary})
}

// GetAvailablePlayerID returns the lowest player id from 1 upward that no
// connected player holds.
func (r *Room) GetAvailablePlayerID() uint8 {
	for id := 1; id < 255; id++ {
		if r.GetPlayerByPlayerID(uint8(id)) == nil {
			return uint8(id)
		}
	}
	return 255
}

// GetPlayerByPlayerID returns the player whose character has the given
// player id, or nil.
func (r *Room) GetPlayerByPlayerID(playerID uint8) *PlayerData {
	for _, p := range r.players {
		if id, ok := p.PlayerID(); ok && id == playerID {
			return p
		}
	}
	return nil
}

// ResolvePlayer normalizes a reference to a player. It accepts a client id
// (int32), a *PlayerData or any component the player owns. Anything else,
// nil included, resolves to nil.
func (r *Room) ResolvePlayer(ref any) *PlayerData {
	switch v := ref.(type) {
	case nil:
		return nil
	case int32:
		return r.players[v]
	case *PlayerData:
		if v == nil {
			return nil
		}
		return r.players[v.clientID]
	case *PlayerInfo:
		if v == nil {
			return nil
		}
		return r.GetPlayerByPlayerID(v.PlayerID)
	case Networkable:
		if isNilComponent(v) || v.OwnerID() == RoomEntityID {
			return nil
		}
		return r.players[v.OwnerID()]
	}
	return nil
}

// ResolvePlayerID returns the player id for a reference. A uint8 is taken
// as a player id as is.
func (r *Room) ResolvePlayerID(ref any) (uint8, bool) {
	if id, ok := ref.(uint8); ok {
		return id, true
	}
	if info, ok := ref.(*PlayerInfo); ok && info != nil {
		return info.PlayerID, true
	}
	if p := r.ResolvePlayer(ref); p != nil {
		return p.PlayerID()
	}
	return 0, false
}

// ResolvePlayerClientID returns the client id for a reference.
func (r *Room) ResolvePlayerClientID(ref any) (int32, bool) {
	if id, ok := ref.(uint8); ok {
		if p := r.GetPlayerByPlayerID(id); p != nil {
			return p.clientID, true
		}
		return 0, false
	}
	if p := r.ResolvePlayer(ref); p != nil {
		return p.clientID, true
	}
	return 0, false
}

func sortedClientIDs(players map[int32]*PlayerData) []int32 {
	ids := make([]int32, 0, len(players))
	for id := range players {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// isNilComponent reports whether n is nil or a nil pointer, as returned by
// PlayerData.Control and friends before the character spawns.
func isNilComponent(n Networkable) bool {
	if n == nil {
		return true
	}
	v := reflect.ValueOf(n)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
