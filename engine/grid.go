package engine

// CellType is the content of one grid cell.
type CellType uint8

const (
	CellWall CellType = iota
	CellFloor
	CellTaskStation
	CellVent
	CellButton
)

// TaskStation is a point inside a room where tasks are performed.
type TaskStation struct {
	Position Position `json:"position"`
	TaskName string   `json:"taskName"`
}

// Room is a named region of the map. Corridors belong to no room.
type Room struct {
	ID           int           `json:"id"`
	Name         string        `json:"name"`
	Center       Position      `json:"center"`
	Bounds       Rect          `json:"bounds"`
	TaskStations []TaskStation `json:"taskStations"`
	Vent         *Position     `json:"ventPosition,omitempty"`
}

// VentGroup is a set of rooms whose vents are mutually reachable in one move.
type VentGroup struct {
	ID    string `json:"id"`
	Rooms []int  `json:"rooms"`
}

// MapSpec describes a map before it is rasterised.
type MapSpec struct {
	Width, Height int
	Walkable      []Rect
	Rooms         []Room
	VentGroups    []VentGroup
	Button        Position
	Spawn         Position
}

// Map is a rasterised, immutable map. All queries are safe for concurrent use.
type Map struct {
	width, height int
	cells         []CellType
	rooms         []Room
	ventGroups    []VentGroup
	button        Position
	spawn         Position
}

const (
	ventProximity    = 1.0
	buttonProximity  = 2.0
	stationProximity = 1.0
)

// NewMap rasterises spec: walkable rectangles become floor, then task
// stations, vents and the button are overlaid on cells that are not walls.
func NewMap(spec MapSpec) *Map {
	m := &Map{
		width:      spec.Width,
		height:     spec.Height,
		cells:      make([]CellType, spec.Width*spec.Height),
		rooms:      spec.Rooms,
		ventGroups: spec.VentGroups,
		button:     spec.Button,
		spawn:      spec.Spawn,
	}

	for _, r := range spec.Walkable {
		for y := r.Y; y < r.Y+r.H; y++ {
			for x := r.X; x < r.X+r.W; x++ {
				m.set(Position{x, y}, CellFloor)
			}
		}
	}
	for _, room := range spec.Rooms {
		for _, ts := range room.TaskStations {
			m.overlay(ts.Position, CellTaskStation)
		}
		if room.Vent != nil {
			m.overlay(*room.Vent, CellVent)
		}
	}
	m.overlay(spec.Button, CellButton)
	return m
}

func (m *Map) inBounds(p Position) bool {
	return p.X >= 0 && p.X < m.width && p.Y >= 0 && p.Y < m.height
}

func (m *Map) set(p Position, c CellType) {
	if m.inBounds(p) {
		m.cells[p.Y*m.width+p.X] = c
	}
}

func (m *Map) overlay(p Position, c CellType) {
	if m.Cell(p) != CellWall {
		m.set(p, c)
	}
}

// Width returns the grid width in cells.
func (m *Map) Width() int { return m.width }

// Height returns the grid height in cells.
func (m *Map) Height() int { return m.height }

// Spawn is where players appear and where meetings teleport everyone.
func (m *Map) Spawn() Position { return m.spawn }

// Button is the emergency button location.
func (m *Map) Button() Position { return m.button }

// Rooms returns the static room list.
func (m *Map) Rooms() []Room { return m.rooms }

// VentGroups returns the static vent topology.
func (m *Map) VentGroups() []VentGroup { return m.ventGroups }

// Cell returns the cell type at p; out of bounds reads as wall.
func (m *Map) Cell(p Position) CellType {
	if !m.inBounds(p) {
		return CellWall
	}
	return m.cells[p.Y*m.width+p.X]
}

// IsWalkable reports whether a player may stand on p.
func (m *Map) IsWalkable(p Position) bool {
	return m.Cell(p) != CellWall
}

// RoomAt returns the first room whose bounds contain p, or nil.
func (m *Map) RoomAt(p Position) *Room {
	for i := range m.rooms {
		if m.rooms[i].Bounds.Contains(p) {
			return &m.rooms[i]
		}
	}
	return nil
}

// RoomName returns the name of the room containing p, or "" in a corridor.
func (m *Map) RoomName(p Position) string {
	if r := m.RoomAt(p); r != nil {
		return r.Name
	}
	return ""
}

// RoomByID looks a room up by id.
func (m *Map) RoomByID(id int) *Room {
	for i := range m.rooms {
		if m.rooms[i].ID == id {
			return &m.rooms[i]
		}
	}
	return nil
}

// RoomByName looks a room up by display name.
func (m *Map) RoomByName(name string) *Room {
	for i := range m.rooms {
		if m.rooms[i].Name == name {
			return &m.rooms[i]
		}
	}
	return nil
}

// VentGroupsOf returns every vent group containing roomID, in map order.
func (m *Map) VentGroupsOf(roomID int) []VentGroup {
	var out []VentGroup
	for _, g := range m.ventGroups {
		for _, id := range g.Rooms {
			if id == roomID {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// ConnectedVentRooms returns every other room sharing at least one vent
// group with roomID, once each, in group order.
func (m *Map) ConnectedVentRooms(roomID int) []Room {
	var out []Room
	seen := map[int]bool{roomID: true}
	for _, g := range m.VentGroupsOf(roomID) {
		for _, id := range g.Rooms {
			if seen[id] {
				continue
			}
			seen[id] = true
			if r := m.RoomByID(id); r != nil {
				out = append(out, *r)
			}
		}
	}
	return out
}

// NearVent returns the room whose vent is within reach of p, or nil.
func (m *Map) NearVent(p Position) *Room {
	for i := range m.rooms {
		v := m.rooms[i].Vent
		if v != nil && Distance(p, *v) <= ventProximity {
			return &m.rooms[i]
		}
	}
	return nil
}

// NearButton reports whether p is close enough to press the emergency button.
func (m *Map) NearButton(p Position) bool {
	return Distance(p, m.button) <= buttonProximity
}

// NearTaskStation reports whether p is next to any task station of the named room.
func (m *Map) NearTaskStation(p Position, roomName string) bool {
	r := m.RoomByName(roomName)
	if r == nil {
		return false
	}
	for _, ts := range r.TaskStations {
		if Distance(p, ts.Position) <= stationProximity {
			return true
		}
	}
	return false
}
