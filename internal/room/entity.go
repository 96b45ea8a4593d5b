package room

import (
	"github.com/skeld-project/skeld/internal/events"
)

// RoomEntityID is the entity id of the room itself and the owner id of
// room-owned components.
const RoomEntityID int32 = -2

// Heritable is an entity that owns components: the room or a player.
type Heritable interface {
	ID() int32
	Components() []Networkable
	Emitter() *events.Emitter
	entity() *Entity
}

// Entity holds a component slot list. Despawned components leave a nil
// hole so the remaining components keep their prefab index.
type Entity struct {
	id         int32
	components []Networkable
	emitter    *events.Emitter
}

func newEntity(id int32, parent *events.Emitter) Entity {
	return Entity{id: id, emitter: events.NewEmitter(parent)}
}

func (e *Entity) ID() int32                 { return e.id }
func (e *Entity) Components() []Networkable { return e.components }
func (e *Entity) Emitter() *events.Emitter  { return e.emitter }
func (e *Entity) entity() *Entity           { return e }

// setSlot places c at index i, growing the slot list as needed.
func (e *Entity) setSlot(i int, c Networkable) {
	for len(e.components) <= i {
		e.components = append(e.components, nil)
	}
	e.components[i] = c
}

func (e *Entity) appendComponent(c Networkable) {
	e.components = append(e.components, c)
}

// removeComponent replaces c with a hole and reports whether it was found.
func (e *Entity) removeComponent(c Networkable) bool {
	for i, existing := range e.components {
		if existing != nil && existing.NetID() == c.NetID() {
			e.components[i] = nil
			return true
		}
	}
	return false
}

// liveComponents returns the non-nil components in slot order.
func (e *Entity) liveComponents() []Networkable {
	out := make([]Networkable, 0, len(e.components))
	for _, c := range e.components {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// componentOf returns the first component of type T owned by e.
func componentOf[T Networkable](e *Entity) T {
	var zero T
	for _, c := range e.components {
		if t, ok := c.(T); ok && c != nil {
			return t
		}
	}
	return zero
}
