// Package kdtree implements a k-d tree over agent positions that splits
// each node at the midpoint of its longest axis, rebuilt each simulation step and queried per agent for its k
// nearest neighbours within a radius.
//
// The tree is decoupled from the agent type: callers hand it a slice of
// Agent values (an interface) and the filter parameters for a query,
// rather than the tree owning or reaching into agent internals.
package kdtree

import (
	"github.com/pthm-cable/orca3d/groups"
	"github.com/pthm-cable/orca3d/spatial"
)

// maxLeafSize bounds the number of agents held directly in a leaf node
// before the tree splits further.
const maxLeafSize = 10

// Agent is the narrow view the tree needs of a candidate or query origin.
type Agent interface {
	AgentID() uint32
	AgentPosition() spatial.Vec3
	AgentGroup() groups.Groups
}

// Neighbor pairs a candidate agent with its squared distance from the
// query origin. A Tree's query results are appended in ascending DistSq
// order.
type Neighbor struct {
	Agent  Agent
	DistSq float32
}

type node struct {
	begin, end     int
	left, right    int
	minCoord       spatial.Vec3
	maxCoord       spatial.Vec3
}

// Tree is a k-d tree over a snapshot of agent positions. It is rebuilt
// from scratch every simulation step; there is no incremental update.
type Tree struct {
	agents []Agent
	nodes  []node
}

// New returns an empty Tree. Call Build before querying it.
func New() *Tree {
	return &Tree{}
}

// Build reorders agents in place and constructs the tree over them. The
// Tree retains the (reordered) slice for the lifetime of the subsequent
// queries; callers must not mutate it until the next Build.
func (t *Tree) Build(agents []Agent) {
	t.agents = agents
	if len(agents) == 0 {
		t.nodes = t.nodes[:0]
		return
	}

	n := len(agents)
	if cap(t.nodes) < 2*n-1 {
		t.nodes = make([]node, 2*n-1)
	} else {
		t.nodes = t.nodes[:2*n-1]
	}
	t.buildRecursive(0, n, 0)
}

func (t *Tree) buildRecursive(begin, end, nodeIdx int) {
	nd := &t.nodes[nodeIdx]
	nd.begin, nd.end = begin, end
	nd.minCoord = t.agents[begin].AgentPosition()
	nd.maxCoord = nd.minCoord

	for i := begin + 1; i < end; i++ {
		p := t.agents[i].AgentPosition()
		nd.minCoord.X = min32(nd.minCoord.X, p.X)
		nd.maxCoord.X = max32(nd.maxCoord.X, p.X)
		nd.minCoord.Y = min32(nd.minCoord.Y, p.Y)
		nd.maxCoord.Y = max32(nd.maxCoord.Y, p.Y)
		nd.minCoord.Z = min32(nd.minCoord.Z, p.Z)
		nd.maxCoord.Z = max32(nd.maxCoord.Z, p.Z)
	}

	if end-begin <= maxLeafSize {
		return
	}

	extentX := nd.maxCoord.X - nd.minCoord.X
	extentY := nd.maxCoord.Y - nd.minCoord.Y
	extentZ := nd.maxCoord.Z - nd.minCoord.Z

	var axis int
	switch {
	case extentX > extentY && extentX > extentZ:
		axis = 0
	case extentY > extentZ:
		axis = 1
	default:
		axis = 2
	}

	splitValue := 0.5 * (nd.maxCoord.At(axis) + nd.minCoord.At(axis))

	left, right := begin, end
	for left < right {
		for left < right && t.agents[left].AgentPosition().At(axis) < splitValue {
			left++
		}
		for right > left && t.agents[right-1].AgentPosition().At(axis) >= splitValue {
			right--
		}
		if left < right {
			t.agents[left], t.agents[right-1] = t.agents[right-1], t.agents[left]
			left++
			right--
		}
	}

	leftSize := left - begin
	if leftSize == 0 {
		leftSize++
		left++
	}

	nd.left = nodeIdx + 1
	nd.right = nodeIdx + 2*leftSize

	t.buildRecursive(begin, left, nd.left)
	t.buildRecursive(left, end, nd.right)
}

// ComputeNeighbors descends the tree from the root and appends every
// candidate agent within rangeSq of self's position to dst, up to
// maxNeighbors entries, keeping dst sorted ascending by DistSq. self is
// never returned as its own neighbour. A candidate is skipped when
// groups.ShouldIgnore(groupsToAvoid, groupsToIgnore, candidate.AgentGroup())
// is true, or when its id is present in ignore.
//
// dst is reused across calls: pass a slice truncated to length 0
// (dst[:0]) to avoid reallocating the backing array every step.
func (t *Tree) ComputeNeighbors(self Agent, groupsToAvoid, groupsToIgnore groups.Groups, ignore map[uint32]struct{}, maxNeighbors int, rangeSq float32, dst []Neighbor) []Neighbor {
	if len(t.nodes) == 0 || maxNeighbors <= 0 {
		return dst
	}
	q := &query{
		tree:           t,
		self:           self,
		selfPos:        self.AgentPosition(),
		groupsToAvoid:  groupsToAvoid,
		groupsToIgnore: groupsToIgnore,
		ignore:         ignore,
		maxNeighbors:   maxNeighbors,
		rangeSq:        rangeSq,
		dst:            dst,
	}
	q.visit(0)
	return q.dst
}

type query struct {
	tree           *Tree
	self           Agent
	selfPos        spatial.Vec3
	groupsToAvoid  groups.Groups
	groupsToIgnore groups.Groups
	ignore         map[uint32]struct{}
	maxNeighbors   int
	rangeSq        float32
	dst            []Neighbor
}

func (q *query) visit(nodeIdx int) {
	nd := &q.tree.nodes[nodeIdx]
	if nd.end-nd.begin <= maxLeafSize {
		for i := nd.begin; i < nd.end; i++ {
			q.insert(q.tree.agents[i])
		}
		return
	}

	leftDistSq := boxDistSq(q.selfPos, &q.tree.nodes[nd.left])
	rightDistSq := boxDistSq(q.selfPos, &q.tree.nodes[nd.right])

	if leftDistSq < rightDistSq {
		if leftDistSq < q.rangeSq {
			q.visit(nd.left)
			if rightDistSq < q.rangeSq {
				q.visit(nd.right)
			}
		}
	} else {
		if rightDistSq < q.rangeSq {
			q.visit(nd.right)
			if leftDistSq < q.rangeSq {
				q.visit(nd.left)
			}
		}
	}
}

func boxDistSq(p spatial.Vec3, nd *node) float32 {
	dx := max32(0, nd.minCoord.X-p.X) + max32(0, p.X-nd.maxCoord.X)
	dy := max32(0, nd.minCoord.Y-p.Y) + max32(0, p.Y-nd.maxCoord.Y)
	dz := max32(0, nd.minCoord.Z-p.Z) + max32(0, p.Z-nd.maxCoord.Z)
	return dx*dx + dy*dy + dz*dz
}

func (q *query) insert(candidate Agent) {
	if candidate.AgentID() == q.self.AgentID() {
		return
	}
	if groups.ShouldIgnore(q.groupsToAvoid, q.groupsToIgnore, candidate.AgentGroup()) {
		return
	}
	if _, skip := q.ignore[candidate.AgentID()]; skip {
		return
	}

	delta := candidate.AgentPosition().Sub(q.selfPos)
	distSq := delta.LengthSq()
	if distSq >= q.rangeSq {
		return
	}

	if len(q.dst) < q.maxNeighbors {
		q.dst = append(q.dst, Neighbor{})
	} else if distSq >= q.dst[len(q.dst)-1].DistSq {
		return
	}

	i := len(q.dst) - 1
	for i > 0 && distSq < q.dst[i-1].DistSq {
		q.dst[i] = q.dst[i-1]
		i--
	}
	q.dst[i] = Neighbor{Agent: candidate, DistSq: distSq}

	if len(q.dst) == q.maxNeighbors {
		q.rangeSq = q.dst[len(q.dst)-1].DistSq
	}
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
