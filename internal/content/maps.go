package content

import "time"

// DoorLayout maps every room that has doors to the door ids inside it.
type DoorLayout map[SystemType][]int

// Doors returns the door layout of a map's manual/auto door system.
func Doors(m MapID) DoorLayout {
	return doorLayouts[m]
}

// NumDoors returns the number of door ids used on a map.
func NumDoors(m MapID) int {
	n := 0
	for _, ids := range doorLayouts[m] {
		for _, id := range ids {
			if id+1 > n {
				n = id + 1
			}
		}
	}
	return n
}

// RoomOfDoor returns the room a door belongs to.
func RoomOfDoor(m MapID, door int) (SystemType, bool) {
	for room, ids := range doorLayouts[m] {
		for _, id := range ids {
			if id == door {
				return room, true
			}
		}
	}
	return 0, false
}

var skeldDoors = DoorLayout{
	SystemCafeteria:   {0, 3, 8},
	SystemStorage:     {1, 7, 12},
	SystemUpperEngine: {2, 5},
	SystemLowerEngine: {4, 11},
	SystemSecurity:    {6},
	SystemElectrical:  {9},
	SystemMedBay:      {10},
}

var polusDoors = DoorLayout{
	SystemElectrical: {0, 1, 2},
	SystemLifeSupp:   {3, 4},
	SystemWeapons:    {5},
	SystemComms:      {6},
	SystemOffice:     {7, 8},
	SystemLaboratory: {9, 10},
	SystemStorage:    {11},
}

var airshipDoors = DoorLayout{
	SystemComms:    {0, 1},
	SystemBrig:     {2, 3, 4},
	SystemKitchen:  {5, 6, 7},
	SystemMainHall: {8, 9},
	SystemRecords:  {10, 11, 12},
	SystemLounge:   {13, 14, 15, 16},
	SystemMedical:  {17, 18},
}

var doorLayouts = map[MapID]DoorLayout{
	MapTheSkeld:   skeldDoors,
	MapAprilSkeld: skeldDoors,
	MapPolus:      polusDoors,
	MapAirship:    airshipDoors,
}

// NumElectricalDoors is the number of doors in the Airship electrical maze.
const NumElectricalDoors = 12

// ReactorDuration returns how long a reactor meltdown takes before the
// impostors win by sabotage.
func ReactorDuration(m MapID) time.Duration {
	switch m {
	case MapMiraHQ:
		return 45 * time.Second
	case MapPolus:
		return 60 * time.Second
	case MapAirship:
		return 90 * time.Second
	default:
		return 30 * time.Second
	}
}

// OxygenDuration is how long O2 depletion takes.
const OxygenDuration = 30 * time.Second

// Vents returns the vent ids present on a map.
func Vents(m MapID) []uint32 {
	n := map[MapID]int{
		MapTheSkeld:   14,
		MapAprilSkeld: 14,
		MapMiraHQ:     11,
		MapPolus:      12,
		MapAirship:    12,
	}[m]
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i)
	}
	return out
}

// Ladders returns the ladder ids on a map (only the Airship has them).
func Ladders(m MapID) []uint8 {
	if m != MapAirship {
		return nil
	}
	return []uint8{0, 1, 2, 3, 4, 5}
}

// MaxImpostors is the largest impostor count allowed for a player count.
func MaxImpostors(players int) int {
	switch {
	case players <= 6:
		return 1
	case players <= 8:
		return 2
	default:
		return 3
	}
}
