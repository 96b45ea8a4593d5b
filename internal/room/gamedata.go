package room

import (
	"slices"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

// PlayerFlags are the status bits of a player record.
type PlayerFlags byte

const (
	FlagDisconnected PlayerFlags = 1 << 0
	FlagImpostor     PlayerFlags = 1 << 1
	FlagDead         PlayerFlags = 1 << 2
)

// TaskState is one entry of a player's task list. TypeID is only known
// from SetTasks and is not part of the replicated record.
type TaskState struct {
	Index     uint32
	TypeID    uint8
	Completed bool
}

// PlayerInfo is the replicated record of one player.
//
// Format: [name:string][color:packed][hat:packed][pet:packed][skin:packed]
// [flags:1][task_count:1][task_count * (index:packed, completed:1)]
type PlayerInfo struct {
	PlayerID uint8
	Name     string
	Color    content.Color
	Hat      uint32
	Pet      uint32
	Skin     uint32
	Flags    PlayerFlags
	Tasks    []TaskState
}

func (p *PlayerInfo) IsImpostor() bool     { return p.Flags&FlagImpostor != 0 }
func (p *PlayerInfo) IsDead() bool         { return p.Flags&FlagDead != 0 }
func (p *PlayerInfo) IsDisconnected() bool { return p.Flags&FlagDisconnected != 0 }

func (p *PlayerInfo) setFlag(f PlayerFlags, on bool) {
	if on {
		p.Flags |= f
	} else {
		p.Flags &^= f
	}
}

func (p *PlayerInfo) Serialize(w *protocol.Writer) {
	w.WriteString(p.Name)
	w.WritePackedUint32(uint32(p.Color))
	w.WritePackedUint32(p.Hat)
	w.WritePackedUint32(p.Pet)
	w.WritePackedUint32(p.Skin)
	w.WriteUint8(byte(p.Flags))
	w.WriteUint8(uint8(len(p.Tasks)))
	for _, t := range p.Tasks {
		w.WritePackedUint32(t.Index)
		w.WriteBool(t.Completed)
	}
}

// Deserialize replaces the record. Task type ids survive for indexes that
// are still present.
func (p *PlayerInfo) Deserialize(r *protocol.Reader) {
	p.Name = r.ReadString()
	p.Color = content.Color(r.ReadPackedUint32())
	p.Hat = r.ReadPackedUint32()
	p.Pet = r.ReadPackedUint32()
	p.Skin = r.ReadPackedUint32()
	p.Flags = PlayerFlags(r.ReadUint8())

	n := int(r.ReadUint8())
	tasks := make([]TaskState, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		t := TaskState{Index: r.ReadPackedUint32(), Completed: r.ReadBool()}
		if int(t.Index) < len(p.Tasks) {
			t.TypeID = p.Tasks[t.Index].TypeID
		}
		tasks = append(tasks, t)
	}
	p.Tasks = tasks
}

// GameData is the replicated player table. Its dirty state is a per-player
// bitmask: bit N set means player N's record must be resent.
type GameData struct {
	NetObject
	players map[uint8]*PlayerInfo
	dirty   [4]uint64
}

func newGameData(r *Room, spawnType content.SpawnType, netID uint32, ownerID int32, flags protocol.SpawnFlag) Networkable {
	return &GameData{
		NetObject: newNetObject(r, spawnType, netID, ownerID, flags),
		players:   make(map[uint8]*PlayerInfo),
	}
}

func (g *GameData) markDirty(id uint8)    { g.dirty[id/64] |= 1 << (id % 64) }
func (g *GameData) clearBit(id uint8)     { g.dirty[id/64] &^= 1 << (id % 64) }
func (g *GameData) isDirty(id uint8) bool { return g.dirty[id/64]&(1<<(id%64)) != 0 }

// DirtyMask returns the dirty bits of player ids 0-63.
func (g *GameData) DirtyMask() uint64 { return g.dirty[0] }

func (g *GameData) Dirty() bool {
	for _, word := range g.dirty {
		if word != 0 {
			return true
		}
	}
	return false
}

func (g *GameData) ClearDirty() { g.dirty = [4]uint64{} }

// Player returns the record for a player id, or nil.
func (g *GameData) Player(id uint8) *PlayerInfo { return g.players[id] }

// Players returns every record ordered by player id.
func (g *GameData) Players() []*PlayerInfo {
	out := make([]*PlayerInfo, 0, len(g.players))
	for _, id := range g.sortedIDs() {
		out = append(out, g.players[id])
	}
	return out
}

func (g *GameData) sortedIDs() []uint8 {
	ids := make([]uint8, 0, len(g.players))
	for id := range g.players {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Add creates a default record for a player id. An existing record is
// returned unchanged.
func (g *GameData) Add(id uint8) *PlayerInfo {
	if info, ok := g.players[id]; ok {
		return info
	}
	info := &PlayerInfo{PlayerID: id}
	g.players[id] = info
	g.markDirty(id)
	events.Emit(g.emitter, &PlayerInfoAddEvent{Info: info})
	return info
}

// Remove deletes a player's record.
func (g *GameData) Remove(id uint8) {
	info, ok := g.players[id]
	if !ok {
		return
	}
	g.clearBit(id)
	delete(g.players, id)
	events.Emit(g.emitter, &PlayerInfoRemoveEvent{Info: info})
}

func (g *GameData) update(id uint8, fn func(*PlayerInfo)) {
	info, ok := g.players[id]
	if !ok {
		return
	}
	fn(info)
	g.markDirty(id)
}

// SetName and the other setters change a record and mark it dirty. They do
// not notify clients; PlayerControl sends the matching call.
func (g *GameData) SetName(id uint8, name string) {
	g.update(id, func(p *PlayerInfo) { p.Name = name })
}

func (g *GameData) SetColor(id uint8, color content.Color) {
	g.update(id, func(p *PlayerInfo) { p.Color = color })
}

func (g *GameData) SetHat(id uint8, hat uint32) {
	g.update(id, func(p *PlayerInfo) { p.Hat = hat })
}

func (g *GameData) SetSkin(id uint8, skin uint32) {
	g.update(id, func(p *PlayerInfo) { p.Skin = skin })
}

func (g *GameData) SetPet(id uint8, pet uint32) {
	g.update(id, func(p *PlayerInfo) { p.Pet = pet })
}

func (g *GameData) SetImpostor(id uint8, impostor bool) {
	g.update(id, func(p *PlayerInfo) { p.setFlag(FlagImpostor, impostor) })
}

func (g *GameData) SetDead(id uint8, dead bool) {
	g.update(id, func(p *PlayerInfo) { p.setFlag(FlagDead, dead) })
}

// SetTasks replaces a player's tasks with fresh incomplete ones and sends
// the assignment to clients.
func (g *GameData) SetTasks(id uint8, taskIDs []uint8) {
	if !g.applyTasks(id, taskIDs) {
		return
	}
	g.sendRpc(&protocol.SetTasksRpc{PlayerID: id, Tasks: slices.Clone(taskIDs)})
}

func (g *GameData) applyTasks(id uint8, taskIDs []uint8) bool {
	info, ok := g.players[id]
	if !ok {
		return false
	}
	info.Tasks = make([]TaskState, len(taskIDs))
	for i, typeID := range taskIDs {
		info.Tasks[i] = TaskState{Index: uint32(i), TypeID: typeID}
	}
	g.markDirty(id)
	events.Emit(g.emitter, &PlayerSetTasksEvent{Info: info, Tasks: slices.Clone(taskIDs)})
	return true
}

// CompleteTask marks one task done. A missing player or index is ignored.
func (g *GameData) CompleteTask(id uint8, index uint32) {
	info, ok := g.players[id]
	if !ok || int(index) >= len(info.Tasks) || info.Tasks[index].Completed {
		return
	}
	info.Tasks[index].Completed = true
	g.markDirty(id)
}

// Serialize writes one framed record per player, all of them on spawn and
// only dirty ones otherwise. A delta write clears the bits it sent.
func (g *GameData) Serialize(w *protocol.Writer, spawn bool) bool {
	wrote := false
	for _, id := range g.sortedIDs() {
		if !spawn && !g.isDirty(id) {
			continue
		}
		w.Begin(id)
		g.players[id].Serialize(w)
		w.End()
		if !spawn {
			g.clearBit(id)
		}
		wrote = true
	}
	return wrote
}

func (g *GameData) Deserialize(r *protocol.Reader, spawn bool) {
	if spawn {
		clear(g.players)
	}
	g.readRecords(r)
}

// readRecords merges framed records; a player missing from the table is
// added first.
func (g *GameData) readRecords(r *protocol.Reader) {
	_ = r.Messages(func(tag byte, sub *protocol.Reader) error {
		info, ok := g.players[tag]
		if !ok {
			info = &PlayerInfo{PlayerID: tag}
			g.players[tag] = info
			events.Emit(g.emitter, &PlayerInfoAddEvent{Info: info})
		}
		info.Deserialize(sub)
		return nil
	})
}

func (g *GameData) HandleRpc(rpc protocol.Rpc, sender int32) {
	switch c := rpc.(type) {
	case *protocol.SetTasksRpc:
		if g.IsHost() {
			return
		}
		g.applyTasks(c.PlayerID, c.Tasks)
		g.clearBit(c.PlayerID)
	case *protocol.UpdateGameDataRpc:
		g.readRecords(protocol.NewReader(c.Data))
	}
}
