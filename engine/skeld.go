package engine

import "time"

func ventAt(x, y int) *Position { return &Position{x, y} }

func station(x, y int, name string) TaskStation {
	return TaskStation{Position: Position{x, y}, TaskName: name}
}

var skeldRooms = []Room{
	{
		ID: 0, Name: "Cafeteria", Center: Position{24, 4}, Bounds: Rect{19, 1, 10, 6},
		TaskStations: []TaskStation{
			station(28, 3, "Empty Garbage"),
			station(20, 5, "Download Data"),
			station(25, 6, "Fix Wiring"),
		},
		Vent: ventAt(22, 2),
	},
	{
		ID: 1, Name: "Weapons", Center: Position{33, 4}, Bounds: Rect{30, 1, 6, 5},
		TaskStations: []TaskStation{
			station(34, 2, "Clear Asteroids"),
			station(31, 4, "Download Data"),
		},
	},
	{
		ID: 2, Name: "Navigation", Center: Position{38, 12}, Bounds: Rect{35, 9, 6, 6},
		TaskStations: []TaskStation{
			station(39, 10, "Chart Course"),
			station(37, 13, "Stabilize Steering"),
		},
		Vent: ventAt(40, 11),
	},
	{
		ID: 3, Name: "O2", Center: Position{30, 12}, Bounds: Rect{28, 10, 5, 5},
		TaskStations: []TaskStation{
			station(29, 11, "Clean O2 Filter"),
			station(31, 13, "Empty Chute"),
		},
	},
	{
		ID: 4, Name: "Shields", Center: Position{33, 18}, Bounds: Rect{31, 16, 5, 5},
		TaskStations: []TaskStation{
			station(34, 18, "Prime Shields"),
		},
		Vent: ventAt(32, 19),
	},
	{
		ID: 5, Name: "Communications", Center: Position{27, 20}, Bounds: Rect{25, 18, 5, 5},
		TaskStations: []TaskStation{
			station(26, 20, "Download Data"),
		},
	},
	{
		ID: 6, Name: "Storage", Center: Position{20, 18}, Bounds: Rect{17, 15, 7, 7},
		TaskStations: []TaskStation{
			station(19, 17, "Fuel Engines"),
			station(22, 20, "Empty Garbage"),
		},
	},
	{
		ID: 7, Name: "Admin", Center: Position{27, 14}, Bounds: Rect{24, 12, 6, 5},
		TaskStations: []TaskStation{
			station(25, 13, "Swipe Card"),
			station(28, 15, "Upload Data"),
		},
		Vent: ventAt(26, 15),
	},
	{
		ID: 8, Name: "Electrical", Center: Position{14, 14}, Bounds: Rect{12, 11, 5, 6},
		TaskStations: []TaskStation{
			station(13, 12, "Divert Power"),
			station(15, 14, "Calibrate Distributor"),
			station(13, 16, "Download Data"),
		},
		Vent: ventAt(14, 16),
	},
	{
		ID: 9, Name: "Lower Engine", Center: Position{8, 18}, Bounds: Rect{5, 15, 6, 6},
		TaskStations: []TaskStation{
			station(7, 17, "Align Engine"),
			station(9, 19, "Fuel Engines"),
		},
		Vent: ventAt(6, 19),
	},
	{
		ID: 10, Name: "Security", Center: Position{12, 10}, Bounds: Rect{10, 8, 4, 5},
		Vent: ventAt(11, 11),
	},
	{
		ID: 11, Name: "Reactor", Center: Position{4, 12}, Bounds: Rect{1, 9, 6, 6},
		TaskStations: []TaskStation{
			station(2, 11, "Start Reactor"),
			station(5, 13, "Unlock Manifolds"),
		},
		Vent: ventAt(3, 13),
	},
	{
		ID: 12, Name: "Upper Engine", Center: Position{8, 4}, Bounds: Rect{5, 1, 6, 6},
		TaskStations: []TaskStation{
			station(7, 3, "Align Engine"),
			station(9, 5, "Fuel Engines"),
		},
		Vent: ventAt(6, 3),
	},
	{
		ID: 13, Name: "MedBay", Center: Position{16, 6}, Bounds: Rect{14, 4, 5, 5},
		TaskStations: []TaskStation{
			station(15, 5, "Submit Scan"),
			station(17, 7, "Inspect Sample"),
		},
		Vent: ventAt(16, 8),
	},
}

// Weapons has no vent of its own; group C only matters for rooms that do.
var skeldVentGroups = []VentGroup{
	{ID: "A", Rooms: []int{0, 7}},
	{ID: "B", Rooms: []int{13, 8, 10}},
	{ID: "C", Rooms: []int{1, 2}},
	{ID: "D", Rooms: []int{4, 2}},
	{ID: "E", Rooms: []int{12, 11}},
	{ID: "F", Rooms: []int{9, 11}},
}

var skeldWalkable = []Rect{
	// rooms
	{5, 1, 6, 6},
	{19, 1, 10, 6},
	{30, 1, 6, 5},
	{14, 4, 5, 5},
	{1, 9, 6, 6},
	{10, 8, 4, 5},
	{12, 11, 5, 6},
	{5, 15, 6, 6},
	{17, 15, 7, 7},
	{24, 12, 6, 5},
	{28, 10, 5, 5},
	{35, 9, 6, 6},
	{31, 16, 5, 5},
	{25, 18, 5, 5},

	// upper links
	{11, 4, 3, 3},
	{29, 1, 1, 5},

	// engine spine
	{7, 7, 3, 9},

	// central hall and the corridor south of it
	{14, 7, 14, 5},
	{20, 12, 4, 4},

	// starboard links
	{32, 6, 3, 4},
	{33, 10, 2, 5},

	// lower links
	{10, 13, 3, 4},
	{16, 13, 2, 3},
	{23, 13, 2, 3},
	{31, 15, 3, 2},
	{24, 18, 1, 4},
	{30, 17, 1, 4},
}

// SkeldSpec returns the layout of the Skeld: a 44x26 grid with fourteen
// rooms, six vent groups and the button in the middle of the Cafeteria.
func SkeldSpec() MapSpec {
	return MapSpec{
		Width:      44,
		Height:     26,
		Walkable:   skeldWalkable,
		Rooms:      skeldRooms,
		VentGroups: skeldVentGroups,
		Button:     Position{24, 4},
		Spawn:      Position{24, 4},
	}
}

var skeld = NewMap(SkeldSpec())

// Skeld returns the shared, immutable Skeld map.
func Skeld() *Map { return skeld }

const (
	commonTaskDuration = 3 * time.Second
	shortTaskDuration  = 2 * time.Second
)

func taskDef(id, name, room string, t TaskType, d time.Duration) TaskDefinition {
	return TaskDefinition{ID: id, Name: name, Room: room, Type: t, Duration: d}
}

// TaskPool is the static pool tasks are drawn from. Common tasks are
// shared by every crewmate in a game.
var TaskPool = []TaskDefinition{
	taskDef("fix_wiring", "Fix Wiring", "Cafeteria", TaskCommon, commonTaskDuration),
	taskDef("swipe_card", "Swipe Card", "Admin", TaskCommon, commonTaskDuration),

	taskDef("clear_asteroids", "Clear Asteroids", "Weapons", TaskShort, shortTaskDuration),
	taskDef("chart_course", "Chart Course", "Navigation", TaskShort, shortTaskDuration),
	taskDef("clean_o2", "Clean O2 Filter", "O2", TaskShort, shortTaskDuration),
	taskDef("prime_shields", "Prime Shields", "Shields", TaskShort, shortTaskDuration),
	taskDef("stabilize_steering", "Stabilize Steering", "Navigation", TaskShort, shortTaskDuration),
	taskDef("empty_chute", "Empty Chute", "O2", TaskShort, shortTaskDuration),
	taskDef("calibrate_distributor", "Calibrate Distributor", "Electrical", TaskShort, shortTaskDuration),
	taskDef("divert_power", "Divert Power", "Electrical", TaskShort, 2500*time.Millisecond),
	taskDef("upload_data", "Upload Data", "Admin", TaskShort, 2500*time.Millisecond),

	taskDef("download_data_cafeteria", "Download Data", "Cafeteria", TaskLong, 8*time.Second),
	taskDef("download_data_weapons", "Download Data", "Weapons", TaskLong, 8*time.Second),
	taskDef("download_data_comms", "Download Data", "Communications", TaskLong, 8*time.Second),
	taskDef("download_data_electrical", "Download Data", "Electrical", TaskLong, 8*time.Second),
	taskDef("empty_garbage", "Empty Garbage", "Cafeteria", TaskLong, 6*time.Second),
	taskDef("empty_garbage_storage", "Empty Garbage", "Storage", TaskLong, 6*time.Second),
	taskDef("fuel_upper", "Fuel Engines", "Upper Engine", TaskLong, 6*time.Second),
	taskDef("fuel_lower", "Fuel Engines", "Lower Engine", TaskLong, 6*time.Second),
	taskDef("start_reactor", "Start Reactor", "Reactor", TaskLong, 8*time.Second),
	taskDef("submit_scan", "Submit Scan", "MedBay", TaskLong, 10*time.Second),
	taskDef("inspect_sample", "Inspect Sample", "MedBay", TaskLong, 10*time.Second),
	taskDef("align_upper", "Align Engine", "Upper Engine", TaskLong, 5*time.Second),
	taskDef("align_lower", "Align Engine", "Lower Engine", TaskLong, 5*time.Second),
	taskDef("unlock_manifolds", "Unlock Manifolds", "Reactor", TaskLong, 7*time.Second),
}

// TasksOfType filters pool by type, preserving order.
func TasksOfType(pool []TaskDefinition, t TaskType) []TaskDefinition {
	var out []TaskDefinition
	for _, d := range pool {
		if d.Type == t {
			out = append(out, d)
		}
	}
	return out
}
