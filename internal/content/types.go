// Package content holds the static game-content tables: maps, system and
// spawn types, colors, task catalogs and door layouts.
package content

import (
	"strconv"
	"strings"
)

// MapID identifies a ship map.
type MapID byte

const (
	MapTheSkeld   MapID = 0
	MapMiraHQ     MapID = 1
	MapPolus      MapID = 2
	MapAprilSkeld MapID = 3
	MapAirship    MapID = 4
)

var mapNames = map[MapID]string{
	MapTheSkeld:   "The Skeld",
	MapMiraHQ:     "Mira HQ",
	MapPolus:      "Polus",
	MapAprilSkeld: "April Skeld",
	MapAirship:    "Airship",
}

// String returns the display name of the map.
func (m MapID) String() string {
	if name, ok := mapNames[m]; ok {
		return name
	}
	return "Map(" + strconv.Itoa(int(m)) + ")"
}

// Valid reports whether m is a known map.
func (m MapID) Valid() bool {
	_, ok := mapNames[m]
	return ok
}

// ParseMap resolves a map by display name, ignoring case and spaces.
func ParseMap(name string) (MapID, bool) {
	key := strings.ToLower(strings.ReplaceAll(name, " ", ""))
	for id, n := range mapNames {
		if strings.ToLower(strings.ReplaceAll(n, " ", "")) == key {
			return id, true
		}
	}
	return 0, false
}

// SpawnType selects the prefab a SpawnMessage instantiates.
type SpawnType uint32

const (
	SpawnShipStatus      SpawnType = 0
	SpawnMeetingHud      SpawnType = 1
	SpawnLobbyBehaviour  SpawnType = 2
	SpawnGameData        SpawnType = 3
	SpawnPlayer          SpawnType = 4
	SpawnHeadquarters    SpawnType = 5
	SpawnPlanetMap       SpawnType = 6
	SpawnAprilShipStatus SpawnType = 7
	SpawnAirship         SpawnType = 8
)

var spawnTypeNames = map[SpawnType]string{
	SpawnShipStatus:      "ShipStatus",
	SpawnMeetingHud:      "MeetingHud",
	SpawnLobbyBehaviour:  "LobbyBehaviour",
	SpawnGameData:        "GameData",
	SpawnPlayer:          "Player",
	SpawnHeadquarters:    "Headquarters",
	SpawnPlanetMap:       "PlanetMap",
	SpawnAprilShipStatus: "AprilShipStatus",
	SpawnAirship:         "Airship",
}

func (s SpawnType) String() string {
	if name, ok := spawnTypeNames[s]; ok {
		return name
	}
	return "SpawnType(" + strconv.Itoa(int(s)) + ")"
}

// ShipSpawnType returns the prefab used for a map's ship status.
func ShipSpawnType(m MapID) SpawnType {
	switch m {
	case MapMiraHQ:
		return SpawnHeadquarters
	case MapPolus:
		return SpawnPlanetMap
	case MapAprilSkeld:
		return SpawnAprilShipStatus
	case MapAirship:
		return SpawnAirship
	default:
		return SpawnShipStatus
	}
}

// SystemType identifies a room on a map and, for the sabotage-capable
// subset, the ship system living there.
type SystemType byte

const (
	SystemHallway          SystemType = 0
	SystemStorage          SystemType = 1
	SystemCafeteria        SystemType = 2
	SystemReactor          SystemType = 3
	SystemUpperEngine      SystemType = 4
	SystemNav              SystemType = 5
	SystemAdmin            SystemType = 6
	SystemElectrical       SystemType = 7
	SystemLifeSupp         SystemType = 8
	SystemShields          SystemType = 9
	SystemMedBay           SystemType = 10
	SystemSecurity         SystemType = 11
	SystemWeapons          SystemType = 12
	SystemLowerEngine      SystemType = 13
	SystemComms            SystemType = 14
	SystemShipTasks        SystemType = 15
	SystemDoors            SystemType = 16
	SystemSabotage         SystemType = 17
	SystemDecontamination  SystemType = 18
	SystemLaunchpad        SystemType = 19
	SystemLockerRoom       SystemType = 20
	SystemLaboratory       SystemType = 21
	SystemBalcony          SystemType = 22
	SystemOffice           SystemType = 23
	SystemGreenhouse       SystemType = 24
	SystemDropship         SystemType = 25
	SystemDecontamination2 SystemType = 26
	SystemOutside          SystemType = 27
	SystemSpecimens        SystemType = 28
	SystemBoilerRoom       SystemType = 29
	SystemVaultRoom        SystemType = 30
	SystemCockpit          SystemType = 31
	SystemArmory           SystemType = 32
	SystemKitchen          SystemType = 33
	SystemViewingDeck      SystemType = 34
	SystemHallOfPortraits  SystemType = 35
	SystemCargoBay         SystemType = 36
	SystemVentilation      SystemType = 37
	SystemShowers          SystemType = 38
	SystemEngine           SystemType = 39
	SystemBrig             SystemType = 40
	SystemMeetingRoom      SystemType = 41
	SystemRecords          SystemType = 42
	SystemLounge           SystemType = 43
	SystemGapRoom          SystemType = 44
	SystemMainHall         SystemType = 45
	SystemMedical          SystemType = 46
)

var systemTypeNames = map[SystemType]string{
	SystemHallway: "Hallway", SystemStorage: "Storage", SystemCafeteria: "Cafeteria",
	SystemReactor: "Reactor", SystemUpperEngine: "UpperEngine", SystemNav: "Navigation",
	SystemAdmin: "Admin", SystemElectrical: "Electrical", SystemLifeSupp: "O2",
	SystemShields: "Shields", SystemMedBay: "MedBay", SystemSecurity: "Security",
	SystemWeapons: "Weapons", SystemLowerEngine: "LowerEngine", SystemComms: "Communications",
	SystemShipTasks: "ShipTasks", SystemDoors: "Doors", SystemSabotage: "Sabotage",
	SystemDecontamination: "Decontamination", SystemLaunchpad: "Launchpad",
	SystemLockerRoom: "LockerRoom", SystemLaboratory: "Laboratory", SystemBalcony: "Balcony",
	SystemOffice: "Office", SystemGreenhouse: "Greenhouse", SystemDropship: "Dropship",
	SystemDecontamination2: "Decontamination2", SystemOutside: "Outside",
	SystemSpecimens: "Specimens", SystemBoilerRoom: "BoilerRoom", SystemVaultRoom: "VaultRoom",
	SystemCockpit: "Cockpit", SystemArmory: "Armory", SystemKitchen: "Kitchen",
	SystemViewingDeck: "ViewingDeck", SystemHallOfPortraits: "HallOfPortraits",
	SystemCargoBay: "CargoBay", SystemVentilation: "Ventilation", SystemShowers: "Showers",
	SystemEngine: "Engine", SystemBrig: "Brig", SystemMeetingRoom: "MeetingRoom",
	SystemRecords: "Records", SystemLounge: "Lounge", SystemGapRoom: "GapRoom",
	SystemMainHall: "MainHall", SystemMedical: "Medical",
}

func (s SystemType) String() string {
	if name, ok := systemTypeNames[s]; ok {
		return name
	}
	return "SystemType(" + strconv.Itoa(int(s)) + ")"
}

// Color is a player body color.
type Color byte

const (
	ColorRed    Color = 0
	ColorBlue   Color = 1
	ColorGreen  Color = 2
	ColorPink   Color = 3
	ColorOrange Color = 4
	ColorYellow Color = 5
	ColorBlack  Color = 6
	ColorWhite  Color = 7
	ColorPurple Color = 8
	ColorBrown  Color = 9
	ColorCyan   Color = 10
	ColorLime   Color = 11
)

// NumColors is the number of selectable body colors.
const NumColors = 12

var colorNames = [NumColors]string{
	"Red", "Blue", "Green", "Pink", "Orange", "Yellow",
	"Black", "White", "Purple", "Brown", "Cyan", "Lime",
}

func (c Color) String() string {
	if int(c) < len(colorNames) {
		return colorNames[c]
	}
	return "Color(" + strconv.Itoa(int(c)) + ")"
}
