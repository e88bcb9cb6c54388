package scene

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrNodeNotFound  = errors.New("scene: node not found")
	ErrDuplicateNode = errors.New("scene: duplicate node id")
	ErrCycle         = errors.New("scene: node cannot contain itself")
)

// Graph is the scene capability the circuit core consumes.
type Graph interface {
	// Add appends n. Its parent must already exist.
	Add(n Node) error
	// Remove deletes id and all its descendants.
	Remove(id string) error
	// Nodes returns every node in insertion order.
	Nodes() []Node
	Node(id string) (Node, bool)
	Children(id string) []Node
	// Update replaces the stored node with fn's edit of it. ID and Parent
	// changes are ignored; use Group and Ungroup to reparent.
	Update(id string, fn func(*Node)) error
	SetPosition(id string, p Point) error
	SetRotation(id string, deg float64) error
	// Group reparents members under group, keeping their world placement.
	Group(group string, members ...string) error
	// Ungroup moves the children of group to group's parent, keeping their
	// world placement, removes group and returns the moved ids.
	Ungroup(group string) ([]string, error)
	// WorldPosition resolves a node's origin through all ancestor
	// transforms.
	WorldPosition(id string) (Point, error)
	// WorldTransform composes the transforms from the root down to id.
	WorldTransform(id string) (Transform, error)
	// HitTest returns the interactive nodes within tolerance of p, nearest
	// first.
	HitTest(p Point, tolerance float64) []Node
	Clear()
	Len() int
}

// MemoryGraph is a Graph held in memory.
type MemoryGraph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string
}

var _ Graph = (*MemoryGraph)(nil)

func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{nodes: make(map[string]*Node)}
}

func (g *MemoryGraph) Add(n Node) error {
	if n.ID == "" {
		return fmt.Errorf("scene: node without id")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	if n.Parent != "" {
		if _, ok := g.nodes[n.Parent]; !ok {
			return fmt.Errorf("%w: parent %s of %s", ErrNodeNotFound, n.Parent, n.ID)
		}
	}
	c := n.clone()
	g.nodes[n.ID] = &c
	g.order = append(g.order, n.ID)
	return nil
}

func (g *MemoryGraph) Remove(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	doomed := map[string]bool{id: true}
	// order is topological: a parent always precedes its children.
	for _, nid := range g.order {
		if doomed[g.nodes[nid].Parent] {
			doomed[nid] = true
		}
	}
	kept := g.order[:0]
	for _, nid := range g.order {
		if doomed[nid] {
			delete(g.nodes, nid)
			continue
		}
		kept = append(kept, nid)
	}
	g.order = kept
	return nil
}

func (g *MemoryGraph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id].clone())
	}
	return out
}

func (g *MemoryGraph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

func (g *MemoryGraph) Children(id string) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Node
	for _, nid := range g.order {
		if n := g.nodes[nid]; n.Parent == id {
			out = append(out, n.clone())
		}
	}
	return out
}

func (g *MemoryGraph) Update(id string, fn func(*Node)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	edited := n.clone()
	fn(&edited)
	edited.ID, edited.Parent = n.ID, n.Parent
	*n = edited
	return nil
}

func (g *MemoryGraph) SetPosition(id string, p Point) error {
	return g.Update(id, func(n *Node) { n.Position = p })
}

func (g *MemoryGraph) SetRotation(id string, deg float64) error {
	return g.Update(id, func(n *Node) { n.Rotation = deg })
}

func (g *MemoryGraph) Group(group string, members ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	parent, ok := g.nodes[group]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, group)
	}
	groupWorld := g.worldLocked(group)
	for _, id := range members {
		n, ok := g.nodes[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
		}
		if id == group || g.isAncestorLocked(id, group) {
			return fmt.Errorf("%w: %s", ErrCycle, id)
		}
		world := g.worldLocked(id)
		n.Position = groupWorld.ApplyInverse(world.Translate)
		n.Rotation = world.Rotate - groupWorld.Rotate
		n.Parent = parent.ID
	}
	g.reorderLocked()
	return nil
}

func (g *MemoryGraph) Ungroup(group string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.nodes[group]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, group)
	}
	outer := Transform{}
	if grp.Parent != "" {
		outer = g.worldLocked(grp.Parent)
	}
	var moved []string
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Parent != group {
			continue
		}
		world := g.worldLocked(id)
		n.Position = outer.ApplyInverse(world.Translate)
		n.Rotation = world.Rotate - outer.Rotate
		n.Parent = grp.Parent
		moved = append(moved, id)
	}
	delete(g.nodes, group)
	kept := g.order[:0]
	for _, id := range g.order {
		if id != group {
			kept = append(kept, id)
		}
	}
	g.order = kept
	return moved, nil
}

func (g *MemoryGraph) WorldPosition(id string) (Point, error) {
	t, err := g.WorldTransform(id)
	return t.Translate, err
}

func (g *MemoryGraph) WorldTransform(id string) (Transform, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[id]; !ok {
		return Transform{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return g.worldLocked(id), nil
}

// HitTest checks nodes with Bounds against the box grown by tolerance and
// all other nodes against a circle of radius tolerance around their origin.
func (g *MemoryGraph) HitTest(p Point, tolerance float64) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	type hit struct {
		node Node
		d2   float64
		z    int
	}
	var hits []hit
	for z, id := range g.order {
		n := g.nodes[id]
		if !n.Interactive {
			continue
		}
		world := g.worldLocked(id)
		if !n.Bounds.Empty() {
			local := world.ApplyInverse(p)
			if n.Bounds.Contains(local, tolerance) {
				hits = append(hits, hit{node: n.clone(), d2: local.Dist2(Point{}), z: z})
			}
			continue
		}
		if d2 := p.Dist2(world.Translate); d2 <= tolerance*tolerance {
			hits = append(hits, hit{node: n.clone(), d2: d2, z: z})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].d2 != hits[j].d2 {
			return hits[i].d2 < hits[j].d2
		}
		return hits[i].z > hits[j].z
	})
	out := make([]Node, len(hits))
	for i, h := range hits {
		out[i] = h.node
	}
	return out
}

func (g *MemoryGraph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]*Node)
	g.order = nil
}

func (g *MemoryGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

func (g *MemoryGraph) worldLocked(id string) Transform {
	var chain []*Node
	for n := g.nodes[id]; n != nil; n = g.nodes[n.Parent] {
		chain = append(chain, n)
		if n.Parent == "" {
			break
		}
	}
	t := Transform{}
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		t = Transform{
			Translate: t.Apply(n.Position),
			Rotate:    t.Rotate + n.Rotation,
		}
	}
	return t
}

func (g *MemoryGraph) isAncestorLocked(ancestor, id string) bool {
	for n := g.nodes[id]; n != nil && n.Parent != ""; n = g.nodes[n.Parent] {
		if n.Parent == ancestor {
			return true
		}
	}
	return false
}

// reorderLocked restores parent-before-child order after reparenting.
func (g *MemoryGraph) reorderLocked() {
	placed := make(map[string]bool, len(g.order))
	out := make([]string, 0, len(g.order))
	var place func(id string)
	place = func(id string) {
		if placed[id] {
			return
		}
		placed[id] = true
		if p := g.nodes[id].Parent; p != "" {
			place(p)
		}
		out = append(out, id)
	}
	// Parents are placed on demand, so a group added after its members still
	// precedes them.
	for _, id := range g.order {
		if p := g.nodes[id].Parent; p != "" && !placed[p] {
			place(p)
		}
		place(id)
	}
	g.order = out
}

// Bounds returns the world-space box around every node origin and shape
// point in g, and false when g is empty.
func Bounds(g Graph) (Rect, bool) {
	box := Rect{
		Min: Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	add := func(p Point) {
		box.Min.X = math.Min(box.Min.X, p.X)
		box.Min.Y = math.Min(box.Min.Y, p.Y)
		box.Max.X = math.Max(box.Max.X, p.X)
		box.Max.Y = math.Max(box.Max.Y, p.Y)
	}
	nodes := g.Nodes()
	for _, n := range nodes {
		t, err := g.WorldTransform(n.ID)
		if err != nil {
			continue
		}
		add(t.Translate)
		for _, s := range n.Shapes {
			for _, p := range s.Points {
				add(t.Apply(p))
			}
			if s.Kind == "circle" && len(s.Points) > 0 {
				c := t.Apply(s.Points[0])
				add(c.Add(Point{X: s.Radius, Y: s.Radius}))
				add(c.Sub(Point{X: s.Radius, Y: s.Radius}))
			}
		}
	}
	return box, len(nodes) > 0
}
