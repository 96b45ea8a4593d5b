package systems

import (
	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
)

// SystemRepairEvent is emitted on the host before a repair amount is applied.
// Canceling it drops the repair.
type SystemRepairEvent struct {
	events.Cancelable
	System content.SystemType
	Player uint8
	Amount uint8
}

// SystemSabotageEvent is emitted before a sabotage is applied. Canceling it
// drops the sabotage and leaves the cooldown untouched.
type SystemSabotageEvent struct {
	events.Cancelable
	System content.SystemType
	Player uint8
}

// SystemSabotagedEvent is emitted once a system becomes sabotaged.
type SystemSabotagedEvent struct {
	System content.SystemType
	Player uint8
}

// SystemRepairedEvent is emitted once a sabotaged system is fixed.
type SystemRepairedEvent struct {
	System content.SystemType
	Player uint8
}

// SwitchFlipEvent reports a change to the electrical switch vector.
type SwitchFlipEvent struct {
	events.Mutation[uint8]
	Player uint8
	Switch int // -1 when several switches changed at once
}

// DoorEvent reports a door opening or closing.
type DoorEvent struct {
	events.Mutation[bool]
	System content.SystemType
	Door   int
	Player uint8
}

// ConsoleEvent reports a player starting, leaving or completing a console
// on a critical system (reactor, O2, comms, helicopter).
type ConsoleEvent struct {
	events.Revertible
	System    content.SystemType
	Player    uint8
	Console   uint8
	Completed bool
	Removed   bool
}

// QueueEvent reports a player joining or leaving the med-bay scan queue or
// the security cameras.
type QueueEvent struct {
	events.Revertible
	System content.SystemType
	Player uint8
	Joined bool
}

// DeconEvent reports a decontamination state change.
type DeconEvent struct {
	events.Mutation[DeconState]
	System content.SystemType
}

// PlatformMoveEvent reports the Airship gap platform moving.
type PlatformMoveEvent struct {
	events.Mutation[bool] // side: true when the platform is on the left
	Target                uint32
}
