package systems

import "time"

// AutoOpenDelay is how long a closed auto door stays shut.
const AutoOpenDelay = 10 * time.Second

// Door is a door owned by exactly one door system.
type Door struct {
	id   int
	open bool
}

// NewDoor creates an open door.
func NewDoor(id int) *Door {
	return &Door{id: id, open: true}
}

func (d *Door) ID() int      { return d.id }
func (d *Door) IsOpen() bool { return d.open }

// set changes the door state and reports whether it changed.
func (d *Door) set(open bool) bool {
	if d.open == open {
		return false
	}
	d.open = open
	return true
}

// AutoOpenDoor is a door that reopens by itself once its timer runs out.
type AutoOpenDoor struct {
	Door
	timer float32
}

// NewAutoOpenDoor creates an open auto door.
func NewAutoOpenDoor(id int) *AutoOpenDoor {
	return &AutoOpenDoor{Door: Door{id: id, open: true}}
}

// Timer returns the seconds left before the door reopens.
func (d *AutoOpenDoor) Timer() float32 { return d.timer }

// Close shuts the door and starts its timer.
func (d *AutoOpenDoor) Close(after time.Duration) {
	d.open = false
	d.timer = seconds(after)
}

// DoUpdate advances the timer and reports whether the door just opened.
func (d *AutoOpenDoor) DoUpdate(delta time.Duration) bool {
	if d.open {
		return false
	}
	d.timer -= seconds(delta)
	if d.timer > 0 {
		return false
	}
	d.timer = 0
	d.open = true
	return true
}
