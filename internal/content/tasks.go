package content

// TaskLength classifies how a task is distributed at game start.
type TaskLength byte

const (
	TaskCommon TaskLength = iota // Same task for every crewmate
	TaskShort
	TaskLong
)

func (l TaskLength) String() string {
	switch l {
	case TaskCommon:
		return "common"
	case TaskShort:
		return "short"
	case TaskLong:
		return "long"
	default:
		return "unknown"
	}
}

// Task is one entry of a map's task catalog. ID is the task type id sent in
// SetTasks; Steps is the number of separate console visits.
type Task struct {
	ID     uint8
	Name   string
	Room   SystemType
	Length TaskLength
	Steps  int
}

var skeldTasks = []Task{
	{0, "Submit Scan", SystemMedBay, TaskLong, 1},
	{1, "Prime Shields", SystemShields, TaskShort, 1},
	{2, "Fuel Engines", SystemStorage, TaskLong, 4},
	{3, "Chart Course", SystemNav, TaskShort, 1},
	{4, "Start Reactor", SystemReactor, TaskLong, 1},
	{5, "Swipe Card", SystemAdmin, TaskCommon, 1},
	{6, "Clear Asteroids", SystemWeapons, TaskLong, 1},
	{7, "Upload Data", SystemCafeteria, TaskShort, 2},
	{8, "Inspect Sample", SystemMedBay, TaskLong, 1},
	{9, "Empty Chute", SystemStorage, TaskLong, 2},
	{10, "Empty Garbage", SystemCafeteria, TaskLong, 2},
	{11, "Align Engine Output", SystemUpperEngine, TaskLong, 2},
	{12, "Fix Wiring", SystemElectrical, TaskCommon, 3},
	{13, "Calibrate Distributor", SystemElectrical, TaskShort, 1},
	{14, "Divert Power", SystemElectrical, TaskShort, 2},
	{15, "Unlock Manifolds", SystemReactor, TaskShort, 1},
	{16, "Reset Reactor", SystemReactor, TaskShort, 1},
	{17, "Fix Lights", SystemElectrical, TaskShort, 1},
	{18, "Clean O2 Filter", SystemLifeSupp, TaskShort, 1},
	{19, "Fix Communications", SystemComms, TaskShort, 1},
	{20, "Restore Oxygen", SystemLifeSupp, TaskShort, 1},
	{21, "Stabilize Steering", SystemNav, TaskShort, 1},
	{22, "Assemble Artifact", SystemLaboratory, TaskShort, 1},
	{23, "Sort Samples", SystemLaboratory, TaskShort, 1},
	{24, "Measure Weather", SystemNav, TaskShort, 1},
	{25, "Enter ID Code", SystemAdmin, TaskShort, 1},
}

var miraTasks = []Task{
	{0, "Process Data", SystemOffice, TaskShort, 1},
	{1, "Run Diagnostics", SystemLaunchpad, TaskLong, 2},
	{2, "Sort Samples", SystemLaboratory, TaskShort, 1},
	{3, "Prime Shields", SystemAdmin, TaskShort, 1},
	{4, "Fuel Engines", SystemLaunchpad, TaskLong, 2},
	{5, "Chart Course", SystemAdmin, TaskShort, 1},
	{6, "Start Reactor", SystemReactor, TaskLong, 1},
	{7, "Clear Asteroids", SystemBalcony, TaskLong, 1},
	{8, "Upload Data", SystemOffice, TaskShort, 2},
	{9, "Empty Garbage", SystemCafeteria, TaskLong, 2},
	{10, "Fix Wiring", SystemHallway, TaskCommon, 3},
	{11, "Divert Power", SystemReactor, TaskShort, 2},
	{12, "Enter ID Code", SystemLockerRoom, TaskCommon, 1},
	{13, "Water Plants", SystemGreenhouse, TaskLong, 2},
	{14, "Buy Beverage", SystemCafeteria, TaskShort, 1},
	{15, "Measure Weather", SystemBalcony, TaskShort, 1},
	{16, "Assemble Artifact", SystemLaboratory, TaskShort, 1},
	{17, "Clean O2 Filter", SystemGreenhouse, TaskShort, 1},
	{18, "Submit Scan", SystemMedBay, TaskShort, 1},
	{19, "Align Telescope", SystemLaboratory, TaskShort, 1},
}

var polusTasks = []Task{
	{0, "Swipe Card", SystemOffice, TaskCommon, 1},
	{1, "Insert Keys", SystemDropship, TaskCommon, 1},
	{2, "Scan Boarding Pass", SystemOffice, TaskCommon, 1},
	{3, "Fix Wiring", SystemElectrical, TaskCommon, 3},
	{4, "Upload Data", SystemOffice, TaskShort, 2},
	{5, "Start Reactor", SystemSpecimens, TaskLong, 1},
	{6, "Fuel Engines", SystemStorage, TaskLong, 2},
	{7, "Open Waterways", SystemBoilerRoom, TaskLong, 3},
	{8, "Inspect Sample", SystemMedBay, TaskLong, 1},
	{9, "Replace Water Jug", SystemBoilerRoom, TaskLong, 2},
	{10, "Repair Drill", SystemLaboratory, TaskShort, 1},
	{11, "Record Temperature", SystemOutside, TaskShort, 1},
	{12, "Chart Course", SystemDropship, TaskShort, 1},
	{13, "Monitor Tree", SystemLifeSupp, TaskShort, 1},
	{14, "Fill Canisters", SystemLifeSupp, TaskLong, 1},
	{15, "Empty Garbage", SystemLifeSupp, TaskShort, 1},
	{16, "Align Telescope", SystemLaboratory, TaskShort, 1},
	{17, "Reboot Wifi", SystemComms, TaskLong, 1},
	{18, "Fix Weather Node", SystemOutside, TaskLong, 2},
	{19, "Clear Asteroids", SystemWeapons, TaskLong, 1},
	{20, "Submit Scan", SystemMedBay, TaskShort, 1},
	{21, "Store Artifacts", SystemSpecimens, TaskShort, 1},
	{22, "Sort Samples", SystemLaboratory, TaskShort, 1},
	{23, "Measure Weather", SystemOutside, TaskShort, 1},
}

var airshipTasks = []Task{
	{0, "Enter ID Code", SystemBrig, TaskCommon, 1},
	{1, "Fix Wiring", SystemMainHall, TaskCommon, 3},
	{2, "Calibrate Distributor", SystemElectrical, TaskShort, 1},
	{3, "Divert Power", SystemElectrical, TaskShort, 2},
	{4, "Empty Garbage", SystemKitchen, TaskLong, 2},
	{5, "Fuel Engines", SystemCargoBay, TaskLong, 2},
	{6, "Start Fans", SystemVentilation, TaskShort, 1},
	{7, "Develop Photos", SystemMainHall, TaskLong, 2},
	{8, "Pick Up Towels", SystemShowers, TaskShort, 1},
	{9, "Clean Toilet", SystemLounge, TaskShort, 1},
	{10, "Dress Mannequin", SystemVaultRoom, TaskShort, 1},
	{11, "Sort Records", SystemRecords, TaskShort, 1},
	{12, "Put Away Pistols", SystemArmory, TaskShort, 1},
	{13, "Put Away Rifles", SystemArmory, TaskShort, 1},
	{14, "Decontaminate", SystemViewingDeck, TaskLong, 1},
	{15, "Make Burger", SystemKitchen, TaskShort, 1},
	{16, "Unlock Safe", SystemCockpit, TaskLong, 1},
	{17, "Rewind Tapes", SystemSecurity, TaskLong, 1},
	{18, "Polish Ruby", SystemVaultRoom, TaskShort, 1},
	{19, "Stabilize Steering", SystemCockpit, TaskShort, 1},
	{20, "Upload Data", SystemCockpit, TaskShort, 2},
	{21, "Reset Breakers", SystemElectrical, TaskLong, 1},
	{22, "Clean Vent", SystemVentilation, TaskShort, 1},
}

var taskCatalog = map[MapID][]Task{
	MapTheSkeld:   skeldTasks,
	MapAprilSkeld: skeldTasks,
	MapMiraHQ:     miraTasks,
	MapPolus:      polusTasks,
	MapAirship:    airshipTasks,
}

// Tasks returns the task catalog for a map. The slice must not be modified.
func Tasks(m MapID) []Task {
	return taskCatalog[m]
}

// TasksOfLength returns every task of the given length on a map.
func TasksOfLength(m MapID, length TaskLength) []Task {
	var out []Task
	for _, t := range taskCatalog[m] {
		if t.Length == length {
			out = append(out, t)
		}
	}
	return out
}

// TaskByID looks up a task type on a map.
func TaskByID(m MapID, id uint8) (Task, bool) {
	for _, t := range taskCatalog[m] {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}
