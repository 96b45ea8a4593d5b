package systems

import (
	"math/bits"
	"sort"
	"time"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

// DoorCooldown is how long a room's doors cannot be closed again.
const DoorCooldown = 30 * time.Second

// Repair amount bits used by door systems.
const doorRepairOpen = 0x40

// DoorCloser is implemented by systems that can close every door in a room.
type DoorCloser interface {
	CloseDoorsOfType(room content.SystemType, player uint8) bool
}

// AutoDoorsSystem drives the self-opening doors of the Skeld.
// Spawn format: [num_doors * open:1]
// Delta format: [dirty_mask:packed][for each set bit: open:1]
type AutoDoorsSystem struct {
	base
	doors     []*AutoOpenDoor
	dirtyMask uint32
}

// NewAutoDoorsSystem creates the system with every door of the ship's map.
func NewAutoDoorsSystem(ship Ship) *AutoDoorsSystem {
	n := content.NumDoors(ship.Map())
	s := &AutoDoorsSystem{base: base{ship: ship, typ: content.SystemDoors}}
	s.doors = make([]*AutoOpenDoor, n)
	for i := range s.doors {
		s.doors[i] = NewAutoOpenDoor(i)
	}
	return s
}

// Doors returns the doors in id order.
func (s *AutoDoorsSystem) Doors() []*AutoOpenDoor { return s.doors }

func (s *AutoDoorsSystem) ClearDirty() {
	s.dirty = false
	s.dirtyMask = 0
}

func (s *AutoDoorsSystem) markDoor(id int) {
	s.dirtyMask |= 1 << uint(id)
	s.markDirty()
}

func (s *AutoDoorsSystem) Serialize(w *protocol.Writer, spawn bool) {
	if spawn {
		for _, d := range s.doors {
			w.WriteBool(d.open)
		}
		return
	}
	w.WritePackedUint32(s.dirtyMask)
	for i, d := range s.doors {
		if s.dirtyMask&(1<<uint(i)) != 0 {
			w.WriteBool(d.open)
		}
	}
}

func (s *AutoDoorsSystem) Deserialize(r *protocol.Reader, spawn bool) {
	if spawn {
		for _, d := range s.doors {
			d.open = r.ReadBool()
		}
		return
	}
	mask := r.ReadPackedUint32()
	for i, d := range s.doors {
		if mask&(1<<uint(i)) != 0 {
			d.open = r.ReadBool()
		}
	}
}

// HandleRepair is unused by auto doors; they reopen on their own.
func (s *AutoDoorsSystem) HandleRepair(uint8, uint8) {}

// SetDoor opens or closes one door through the revertible DoorEvent.
func (s *AutoDoorsSystem) SetDoor(id int, open bool, player uint8) bool {
	if id < 0 || id >= len(s.doors) {
		return false
	}
	d := s.doors[id]
	old := d.open
	if old == open {
		return false
	}
	if open {
		d.open = true
	} else {
		d.Close(AutoOpenDelay)
	}

	ev := events.Emit(s.ship.Emitter(), &DoorEvent{
		Mutation: events.NewMutation(old, open),
		System:   s.typ,
		Door:     id,
		Player:   player,
	})
	if final := ev.Resolve(); final != d.open {
		if final {
			d.open = true
		} else {
			d.Close(AutoOpenDelay)
		}
	}
	if d.open != old {
		s.markDoor(id)
		return true
	}
	return false
}

// CloseDoorsOfType closes every door in room.
func (s *AutoDoorsSystem) CloseDoorsOfType(room content.SystemType, player uint8) bool {
	ids := content.Doors(s.ship.Map())[room]
	closed := false
	for _, id := range ids {
		if s.SetDoor(id, false, player) {
			closed = true
		}
	}
	return closed
}

func (s *AutoDoorsSystem) FixedUpdate(delta time.Duration) {
	for _, d := range s.doors {
		if d.DoUpdate(delta) {
			s.markDoor(d.id)
		}
	}
}

// DoorsSystem drives the manually opened doors of Polus and the Airship.
// Format (spawn and delta): [num_timers:1][num_timers * (room:1, cooldown:f32)]
// [num_doors * open:1]
type DoorsSystem struct {
	base
	doors     []*Door
	cooldowns map[content.SystemType]float32
}

// NewDoorsSystem creates the system with every door of the ship's map.
func NewDoorsSystem(ship Ship) *DoorsSystem {
	n := content.NumDoors(ship.Map())
	s := &DoorsSystem{
		base:      base{ship: ship, typ: content.SystemDoors},
		cooldowns: make(map[content.SystemType]float32),
	}
	s.doors = make([]*Door, n)
	for i := range s.doors {
		s.doors[i] = NewDoor(i)
	}
	return s
}

// Doors returns the doors in id order.
func (s *DoorsSystem) Doors() []*Door { return s.doors }

// Cooldown returns the seconds before a room's doors can be closed again.
func (s *DoorsSystem) Cooldown(room content.SystemType) float32 { return s.cooldowns[room] }

func (s *DoorsSystem) sortedRooms() []content.SystemType {
	rooms := make([]content.SystemType, 0, len(s.cooldowns))
	for r := range s.cooldowns {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}

func (s *DoorsSystem) Serialize(w *protocol.Writer, spawn bool) {
	rooms := s.sortedRooms()
	w.WriteUint8(uint8(len(rooms)))
	for _, room := range rooms {
		w.WriteUint8(uint8(room))
		w.WriteFloat32(s.cooldowns[room])
	}
	for _, d := range s.doors {
		w.WriteBool(d.open)
	}
}

func (s *DoorsSystem) Deserialize(r *protocol.Reader, spawn bool) {
	n := int(r.ReadUint8())
	cooldowns := make(map[content.SystemType]float32, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		room := content.SystemType(r.ReadUint8())
		cooldowns[room] = r.ReadFloat32()
	}
	s.cooldowns = cooldowns
	for _, d := range s.doors {
		d.open = r.ReadBool()
	}
}

// HandleRepair opens one door: amount is 0x40 | door id.
func (s *DoorsSystem) HandleRepair(player uint8, amount uint8) {
	if amount&doorRepairOpen == 0 {
		return
	}
	if !s.beginRepair(player, amount) {
		return
	}
	s.SetDoor(int(amount&0x1f), true, player)
}

// OpenDoor opens a door from a player's minigame, forwarding to the host
// when needed.
func (s *DoorsSystem) OpenDoor(id int, player uint8) {
	s.repair(s, player, doorRepairOpen|uint8(id&0x1f))
}

// SetDoor opens or closes one door through the revertible DoorEvent.
func (s *DoorsSystem) SetDoor(id int, open bool, player uint8) bool {
	if id < 0 || id >= len(s.doors) {
		return false
	}
	d := s.doors[id]
	old := d.open
	if !d.set(open) {
		return false
	}

	ev := events.Emit(s.ship.Emitter(), &DoorEvent{
		Mutation: events.NewMutation(old, open),
		System:   s.typ,
		Door:     id,
		Player:   player,
	})
	d.set(ev.Resolve())
	if d.open != old {
		s.markDirty()
		return true
	}
	return false
}

// CloseDoorsOfType closes every door in room unless the room is cooling down.
func (s *DoorsSystem) CloseDoorsOfType(room content.SystemType, player uint8) bool {
	if s.cooldowns[room] > 0 {
		return false
	}
	ids := content.Doors(s.ship.Map())[room]
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		s.SetDoor(id, false, player)
	}
	s.cooldowns[room] = seconds(DoorCooldown)
	s.markDirty()
	return true
}

func (s *DoorsSystem) FixedUpdate(delta time.Duration) {
	dt := seconds(delta)
	for room, left := range s.cooldowns {
		if left <= 0 {
			continue
		}
		next := left - dt
		if next < 0 {
			next = 0
		}
		s.cooldowns[room] = next
		if crossedSecond(left, next) || next == 0 {
			s.markDirty()
		}
	}
}

// ElectricalDoorsSystem is the Airship electrical maze.
// Format (spawn and delta): [open_mask:4]
type ElectricalDoorsSystem struct {
	base
	doors []*Door
}

// NewElectricalDoorsSystem creates the maze with every door open.
func NewElectricalDoorsSystem(ship Ship) *ElectricalDoorsSystem {
	s := &ElectricalDoorsSystem{base: base{ship: ship, typ: content.SystemDecontamination}}
	s.doors = make([]*Door, content.NumElectricalDoors)
	for i := range s.doors {
		s.doors[i] = NewDoor(i)
	}
	return s
}

// Doors returns the doors in id order.
func (s *ElectricalDoorsSystem) Doors() []*Door { return s.doors }

func (s *ElectricalDoorsSystem) mask() uint32 {
	var m uint32
	for i, d := range s.doors {
		if d.open {
			m |= 1 << uint(i)
		}
	}
	return m
}

func (s *ElectricalDoorsSystem) Serialize(w *protocol.Writer, spawn bool) {
	w.WriteUint32(s.mask())
}

func (s *ElectricalDoorsSystem) Deserialize(r *protocol.Reader, spawn bool) {
	m := r.ReadUint32()
	for i, d := range s.doors {
		d.open = m&(1<<uint(i)) != 0
	}
}

// HandleRepair is unused; the maze is only reshuffled by the host.
func (s *ElectricalDoorsSystem) HandleRepair(uint8, uint8) {}

// Shuffle closes a random half of the maze doors. Host only.
func (s *ElectricalDoorsSystem) Shuffle() {
	if !s.ship.IsHost() {
		return
	}
	rng := s.ship.Rand()
	var m uint32
	for bits.OnesCount32(m) < len(s.doors)/2 {
		m |= 1 << uint(rng.IntN(len(s.doors)))
	}
	for i, d := range s.doors {
		d.open = m&(1<<uint(i)) == 0
	}
	s.markDirty()
}
