package engine

import "container/heap"

// --- A* pathfinding ---

type pathNode struct {
	pos    Position
	g, h   int
	seq    int // discovery order, breaks ties on f
	parent *pathNode
	index  int // heap index
}

type openList []*pathNode

func (ol openList) Len() int { return len(ol) }
func (ol openList) Less(i, j int) bool {
	fi, fj := ol[i].g+ol[i].h, ol[j].g+ol[j].h
	if fi != fj {
		return fi < fj
	}
	return ol[i].seq < ol[j].seq
}
func (ol openList) Swap(i, j int) { ol[i], ol[j] = ol[j], ol[i]; ol[i].index = i; ol[j].index = j }
func (ol *openList) Push(x any)   { n := x.(*pathNode); n.index = len(*ol); *ol = append(*ol, n) }
func (ol *openList) Pop() any {
	old := *ol
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*ol = old[:len(old)-1]
	return n
}

// up, down, left, right
var steps = [4]Position{{0, -1}, {0, 1}, {-1, 0}, {1, 0}}

func manhattan(a, b Position) int {
	return absInt(a.X-b.X) + absInt(a.Y-b.Y)
}

// FindPath returns the cells of a shortest 4-directional walkable path from
// from to to, excluding from and including to. ok is false when either end
// is a wall or no route exists. A path from a cell to itself is empty.
func (m *Map) FindPath(from, to Position) (path []Position, ok bool) {
	if !m.IsWalkable(from) || !m.IsWalkable(to) {
		return nil, false
	}
	if from == to {
		return nil, true
	}

	seq := 0
	start := &pathNode{pos: from, h: manhattan(from, to)}
	ol := &openList{start}
	heap.Init(ol)

	closed := make(map[Position]bool)
	best := map[Position]*pathNode{from: start}

	for ol.Len() > 0 {
		cur := heap.Pop(ol).(*pathNode)
		if cur.pos == to {
			return buildPath(cur), true
		}
		if closed[cur.pos] {
			continue
		}
		closed[cur.pos] = true

		for _, d := range steps {
			next := Position{cur.pos.X + d.X, cur.pos.Y + d.Y}
			if closed[next] || !m.IsWalkable(next) {
				continue
			}
			g := cur.g + 1
			if prev, ok := best[next]; ok && g >= prev.g {
				continue
			}
			seq++
			node := &pathNode{pos: next, g: g, h: manhattan(next, to), seq: seq, parent: cur}
			best[next] = node
			heap.Push(ol, node)
		}
	}
	return nil, false
}

func buildPath(end *pathNode) []Position {
	var cells []Position
	for n := end; n.parent != nil; n = n.parent {
		cells = append(cells, n.pos)
	}
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	return cells
}

// NextStep returns the first cell on a shortest path from from toward to.
// ok is false when from == to or to cannot be reached.
func (m *Map) NextStep(from, to Position) (Position, bool) {
	path, ok := m.FindPath(from, to)
	if !ok || len(path) == 0 {
		return Position{}, false
	}
	return path[0], true
}
