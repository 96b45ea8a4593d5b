package room

import (
	"fmt"
	"slices"
	"strings"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/logic"
	"github.com/skeld-project/skeld/internal/protocol"
	"github.com/skeld-project/skeld/internal/systems"
)

// EmergencyButton is the body id of a meeting called with the button.
const EmergencyButton uint8 = 255

// MaxNameLength bounds player names accepted by CheckName.
const MaxNameLength = 10

// PlayerControl is a player's character. It carries the player id and the
// calls that change the player's GameData record.
//
// Spawn format: [is_new:1][player_id:1]
// Delta format: [player_id:1]
type PlayerControl struct {
	NetObject
	playerID   uint8
	isNew      bool
	scannerSeq uint8
}

func newPlayerControl(r *Room, spawnType content.SpawnType, netID uint32, ownerID int32, flags protocol.SpawnFlag) Networkable {
	return &PlayerControl{NetObject: newNetObject(r, spawnType, netID, ownerID, flags)}
}

// PlayerID returns the id of the player's GameData record.
func (c *PlayerControl) PlayerID() uint8 { return c.playerID }

// IsNew reports whether the character was spawned for a fresh join.
func (c *PlayerControl) IsNew() bool { return c.isNew }

// Info returns the player's GameData record, or nil.
func (c *PlayerControl) Info() *PlayerInfo {
	if c.room.GameData == nil {
		return nil
	}
	return c.room.GameData.Player(c.playerID)
}

func (c *PlayerControl) alive() bool {
	info := c.Info()
	return info != nil && !info.IsDead() && !info.IsDisconnected()
}

// fromOwner reports whether sender may act for this character.
func (c *PlayerControl) fromOwner(sender int32) bool {
	return sender == c.ownerID || sender == c.room.hostID || c.room.authoritative && sender == c.room.clientID
}

func (c *PlayerControl) Serialize(w *protocol.Writer, spawn bool) bool {
	if spawn {
		w.WriteBool(c.isNew)
		c.isNew = false
	}
	w.WriteUint8(c.playerID)
	return true
}

func (c *PlayerControl) Deserialize(r *protocol.Reader, spawn bool) {
	if spawn {
		c.isNew = r.ReadBool()
	}
	c.playerID = r.ReadUint8()
}

// CheckName asks the host to set the player's name. The host resolves
// clashes by appending a number.
func (c *PlayerControl) CheckName(name string) {
	if !c.IsHost() {
		c.sendRpc(&protocol.CheckNameRpc{Name: name})
		return
	}
	c.SetName(c.uniqueName(name))
}

func (c *PlayerControl) uniqueName(name string) string {
	name = strings.TrimSpace(name)
	if runes := []rune(name); len(runes) > MaxNameLength {
		name = string(runes[:MaxNameLength])
	}
	taken := func(candidate string) bool {
		if c.room.GameData == nil {
			return false
		}
		for _, info := range c.room.GameData.Players() {
			if info.PlayerID != c.playerID && strings.EqualFold(info.Name, candidate) {
				return true
			}
		}
		return false
	}
	candidate := name
	for i := 1; taken(candidate); i++ {
		candidate = fmt.Sprintf("%s %d", name, i)
	}
	return candidate
}

// SetName sets the player's name on every client.
func (c *PlayerControl) SetName(name string) { c.setName(name, true) }

func (c *PlayerControl) setName(name string, send bool) {
	info := c.Info()
	if info == nil {
		return
	}
	ev := events.Emit(c.emitter, &PlayerSetNameEvent{Mutation: events.NewMutation(info.Name, name), Player: c.Player()})
	next := ev.Resolve()
	if next == info.Name {
		return
	}
	c.room.GameData.SetName(c.playerID, next)
	if send {
		c.sendRpc(&protocol.SetNameRpc{Name: next})
	}
}

// CheckColor asks the host for a color. The host hands out the first free
// color starting at the requested one.
func (c *PlayerControl) CheckColor(color content.Color) {
	if !c.IsHost() {
		c.sendRpc(&protocol.CheckColorRpc{Color: color})
		return
	}
	c.SetColor(c.freeColor(color))
}

func (c *PlayerControl) freeColor(want content.Color) content.Color {
	used := make(map[content.Color]bool)
	if c.room.GameData != nil {
		for _, info := range c.room.GameData.Players() {
			if info.PlayerID != c.playerID && !info.IsDisconnected() {
				used[info.Color] = true
			}
		}
	}
	start := want % content.NumColors
	for i := range content.Color(content.NumColors) {
		color := (start + i) % content.NumColors
		if !used[color] {
			return color
		}
	}
	return start
}

// SetColor sets the player's body color on every client.
func (c *PlayerControl) SetColor(color content.Color) { c.setColor(color, true) }

func (c *PlayerControl) setColor(color content.Color, send bool) {
	info := c.Info()
	if info == nil {
		return
	}
	ev := events.Emit(c.emitter, &PlayerSetColorEvent{Mutation: events.NewMutation(info.Color, color), Player: c.Player()})
	next := ev.Resolve()
	if next == info.Color {
		return
	}
	c.room.GameData.SetColor(c.playerID, next)
	if send {
		c.sendRpc(&protocol.SetColorRpc{Color: next})
	}
}

func (c *PlayerControl) SetHat(hat uint32)   { c.setCosmetic(protocol.RpcSetHat, hat, true) }
func (c *PlayerControl) SetSkin(skin uint32) { c.setCosmetic(protocol.RpcSetSkin, skin, true) }
func (c *PlayerControl) SetPet(pet uint32)   { c.setCosmetic(protocol.RpcSetPet, pet, true) }

func (c *PlayerControl) setCosmetic(kind protocol.RpcTag, value uint32, send bool) {
	info := c.Info()
	if info == nil {
		return
	}
	var old uint32
	switch kind {
	case protocol.RpcSetHat:
		old = info.Hat
	case protocol.RpcSetSkin:
		old = info.Skin
	case protocol.RpcSetPet:
		old = info.Pet
	}
	ev := events.Emit(c.emitter, &PlayerSetCosmeticEvent{Mutation: events.NewMutation(old, value), Player: c.Player(), Kind: kind})
	next := ev.Resolve()
	if next == old {
		return
	}
	var call protocol.Rpc
	switch kind {
	case protocol.RpcSetHat:
		c.room.GameData.SetHat(c.playerID, next)
		call = &protocol.SetHatRpc{Hat: next}
	case protocol.RpcSetSkin:
		c.room.GameData.SetSkin(c.playerID, next)
		call = &protocol.SetSkinRpc{Skin: next}
	case protocol.RpcSetPet:
		c.room.GameData.SetPet(c.playerID, next)
		call = &protocol.SetPetRpc{Pet: next}
	}
	if send {
		c.sendRpc(call)
	}
}

// SendChat posts a chat message. Listeners may cancel it.
func (c *PlayerControl) SendChat(message string) {
	ev := events.Emit(c.emitter, &PlayerChatEvent{Player: c.Player(), Message: message})
	if ev.Canceled() {
		return
	}
	c.sendRpc(&protocol.SendChatRpc{Message: message})
}

// Murder kills victim. On the host it is validated first: the killer must be
// a living impostor and the victim a living crewmate.
func (c *PlayerControl) Murder(victim *PlayerData) bool {
	if victim == nil || victim.Control() == nil {
		return false
	}
	return c.murder(victim.Control(), true)
}

func (c *PlayerControl) murder(target *PlayerControl, send bool) bool {
	if c.IsHost() {
		info, vinfo := c.Info(), target.Info()
		if !c.room.started || info == nil || vinfo == nil {
			return false
		}
		if !info.IsImpostor() || !c.alive() || vinfo.IsImpostor() || !target.alive() {
			return false
		}
	}
	if !c.kill(target) {
		return false
	}
	if send {
		c.sendRpc(&protocol.MurderPlayerRpc{VictimNetID: target.NetID()})
	}
	return true
}

func (c *PlayerControl) kill(target *PlayerControl) bool {
	ev := events.Emit(c.emitter, &PlayerMurderEvent{Player: c.Player(), Victim: target.Player()})
	if ev.Reverted() {
		return false
	}
	if c.room.GameData != nil {
		c.room.GameData.SetDead(target.playerID, true)
	}
	c.room.logger.Info().Uint8("killer", c.playerID).Uint8("victim", target.playerID).Msg("player murdered")
	c.room.checkEndConditions(logic.CauseKill)
	return true
}

// ReportDeadBody reports a body, or calls an emergency meeting with
// EmergencyButton. A client asks the host; the host starts the meeting.
func (c *PlayerControl) ReportDeadBody(body uint8) {
	if !c.IsHost() {
		c.sendRpc(&protocol.ReportDeadBodyRpc{BodyID: body})
		return
	}
	if !c.room.started || c.room.MeetingHud != nil || !c.alive() {
		return
	}
	if body != EmergencyButton {
		info := c.room.GameData.Player(body)
		if info == nil || !info.IsDead() {
			return
		}
	}
	ev := events.Emit(c.emitter, &PlayerReportEvent{Player: c.Player(), Body: body})
	if ev.Canceled() {
		return
	}
	c.StartMeeting(body)
}

// StartMeeting opens a meeting called by this player. Host only.
func (c *PlayerControl) StartMeeting(body uint8) *MeetingHud {
	if !c.IsHost() || c.room.MeetingHud != nil {
		return nil
	}
	c.sendRpc(&protocol.StartMeetingRpc{BodyID: body})

	obj, err := c.room.SpawnPrefab(content.SpawnMeetingHud, RoomEntityID, protocol.SpawnFlagNone, nil, false)
	if err != nil {
		c.room.logger.Warn().Err(err).Msg("failed to spawn meeting hud")
		return nil
	}
	hud := obj.(*MeetingHud)
	hud.populate(c.playerID)
	c.room.QueueMessage(c.room.spawnMessageFor(hud))

	c.room.logger.Info().Uint8("caller", c.playerID).Uint8("body", body).Msg("meeting started")
	events.Emit(c.emitter, &PlayerStartMeetingEvent{Player: c.Player(), Body: body})
	return hud
}

// CompleteTask marks one of the player's tasks done.
func (c *PlayerControl) CompleteTask(index uint32) { c.completeTask(index, true) }

func (c *PlayerControl) completeTask(index uint32, send bool) {
	info := c.Info()
	if info == nil || int(index) >= len(info.Tasks) || info.Tasks[index].Completed {
		return
	}
	c.room.GameData.CompleteTask(c.playerID, index)
	if send {
		c.sendRpc(&protocol.CompleteTaskRpc{TaskIndex: index})
	}
	events.Emit(c.emitter, &PlayerCompleteTaskEvent{Player: c.Player(), Index: index})
	c.room.checkEndConditions(logic.CauseTick)
}

// SetImpostors flags the given players as impostors on every client.
func (c *PlayerControl) SetImpostors(ids []uint8) {
	c.applyImpostors(ids)
	c.sendRpc(&protocol.SetInfectedRpc{Impostors: slices.Clone(ids)})
}

func (c *PlayerControl) applyImpostors(ids []uint8) {
	if c.room.GameData != nil {
		for _, id := range ids {
			c.room.GameData.SetImpostor(id, true)
		}
	}
	events.Emit(c.emitter, &PlayerSetImpostorsEvent{Impostors: slices.Clone(ids)})
}

// exile kills the player after a vote.
func (c *PlayerControl) exile() {
	if c.room.GameData != nil {
		c.room.GameData.SetDead(c.playerID, true)
	}
	c.room.logger.Info().Uint8("player_id", c.playerID).Msg("player exiled")
	events.Emit(c.emitter, &PlayerExileEvent{Player: c.Player()})
}

// PlayAnimation shows a task animation to other players.
func (c *PlayerControl) PlayAnimation(task byte) {
	c.sendRpc(&protocol.PlayAnimationRpc{Task: task})
	events.Emit(c.emitter, &PlayerAnimationEvent{Player: c.Player(), Task: task})
}

// SetScanner toggles the med scan animation.
func (c *PlayerControl) SetScanner(scanning bool) {
	c.scannerSeq++
	c.sendRpc(&protocol.SetScannerRpc{Scanning: scanning, Seq: c.scannerSeq})
	events.Emit(c.emitter, &PlayerScannerEvent{Player: c.Player(), Scanning: scanning})
}

// UsePlatform rides the Airship moving platform.
func (c *PlayerControl) UsePlatform() bool {
	if !c.IsHost() {
		c.sendRpc(&protocol.UsePlatformRpc{})
		return true
	}
	return c.usePlatform()
}

func (c *PlayerControl) usePlatform() bool {
	ship := c.room.ShipStatus
	if ship == nil || !c.alive() {
		return false
	}
	platform, ok := ship.System(content.SystemGapRoom).(*systems.MovingPlatformSystem)
	if !ok {
		return false
	}
	return platform.Use(c.netID)
}

func (c *PlayerControl) HandleRpc(rpc protocol.Rpc, sender int32) {
	switch m := rpc.(type) {
	case *protocol.CheckNameRpc:
		if c.IsHost() && c.fromOwner(sender) {
			c.CheckName(m.Name)
		}
	case *protocol.CheckColorRpc:
		if c.IsHost() && c.fromOwner(sender) {
			c.CheckColor(m.Color)
		}
	case *protocol.SetNameRpc:
		if !c.IsHost() {
			c.setName(m.Name, false)
		}
	case *protocol.SetColorRpc:
		if !c.IsHost() {
			c.setColor(m.Color, false)
		}
	case *protocol.SetHatRpc:
		if c.fromOwner(sender) {
			c.setCosmetic(protocol.RpcSetHat, m.Hat, false)
		}
	case *protocol.SetSkinRpc:
		if c.fromOwner(sender) {
			c.setCosmetic(protocol.RpcSetSkin, m.Skin, false)
		}
	case *protocol.SetPetRpc:
		if c.fromOwner(sender) {
			c.setCosmetic(protocol.RpcSetPet, m.Pet, false)
		}

	case *protocol.SendChatRpc:
		if c.fromOwner(sender) {
			events.Emit(c.emitter, &PlayerChatEvent{Player: c.Player(), Message: m.Message})
		}
	case *protocol.SendChatNoteRpc:
		events.Emit(c.emitter, &PlayerChatNoteEvent{Player: c.room.GetPlayerByPlayerID(m.PlayerID), Note: m.Note})

	case *protocol.MurderPlayerRpc:
		target, ok := c.room.netObjects[m.VictimNetID].(*PlayerControl)
		if !ok || !c.fromOwner(sender) {
			return
		}
		c.murder(target, false)

	case *protocol.ReportDeadBodyRpc:
		if c.IsHost() && c.fromOwner(sender) {
			c.ReportDeadBody(m.BodyID)
		}
	case *protocol.StartMeetingRpc:
		if !c.IsHost() {
			events.Emit(c.emitter, &PlayerStartMeetingEvent{Player: c.Player(), Body: m.BodyID})
		}
	case *protocol.SetInfectedRpc:
		if !c.IsHost() {
			c.applyImpostors(m.Impostors)
		}
	case *protocol.ExiledRpc:
		if !c.IsHost() {
			c.exile()
		}

	case *protocol.CompleteTaskRpc:
		if c.fromOwner(sender) {
			c.completeTask(m.TaskIndex, false)
		}
	case *protocol.PlayAnimationRpc:
		events.Emit(c.emitter, &PlayerAnimationEvent{Player: c.Player(), Task: m.Task})
	case *protocol.SetScannerRpc:
		if !protocol.Seq8GreaterThan(m.Seq, c.scannerSeq) {
			return
		}
		c.scannerSeq = m.Seq
		events.Emit(c.emitter, &PlayerScannerEvent{Player: c.Player(), Scanning: m.Scanning})

	case *protocol.SyncSettingsRpc:
		if !c.IsHost() {
			c.room.SetSettings(m.Settings)
		}
	case *protocol.SetStartCounterRpc:
		if !c.IsHost() {
			c.room.applyStartCounter(m.Seq, m.Counter)
		}

	case *protocol.UsePlatformRpc:
		if c.IsHost() && c.fromOwner(sender) {
			c.usePlatform()
		}
	}
}
