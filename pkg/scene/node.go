// Package scene is the visual layer of a design: a tree of positioned nodes,
// each tagged with a Role and carrying typed role data. The circuit core talks
// to scenes only through the Graph interface; MemoryGraph is the in-process
// implementation used by the viewer, the exporters and the tests.
package scene

import (
	"encoding/json"
	"fmt"
	"image/color"
)

// Role tags what a node stands for electrically.
type Role int

const (
	RoleNone Role = iota
	RoleComponent
	RolePin
	RoleWire
	RoleRatsnest
	RoleLabel
	RoleProvisional
	RoleGroup
)

var roleNames = map[Role]string{
	RoleNone:        "none",
	RoleComponent:   "component",
	RolePin:         "pin",
	RoleWire:        "wire",
	RoleRatsnest:    "ratsnest",
	RoleLabel:       "label",
	RoleProvisional: "provisional",
	RoleGroup:       "group",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole is the inverse of Role.String.
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return RoleNone, fmt.Errorf("scene: unknown role %q", s)
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Point is a scene position in millimeters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Dist2 is the squared distance between p and q.
func (p Point) Dist2(q Point) float64 {
	dx, dy := p.X-q.X, p.Y-q.Y
	return dx*dx + dy*dy
}

// Rect is an axis-aligned box in node-local coordinates.
type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

func (r Rect) Empty() bool { return r.Max.X <= r.Min.X || r.Max.Y <= r.Min.Y }

// Contains reports whether p lies inside r grown by pad on every side.
func (r Rect) Contains(p Point, pad float64) bool {
	return p.X >= r.Min.X-pad && p.X <= r.Max.X+pad &&
		p.Y >= r.Min.Y-pad && p.Y <= r.Max.Y+pad
}

// Shape is one drawable primitive in node-local coordinates. Kind is "line",
// "polyline", "rect" (two corner points) or "circle" (center and Radius).
type Shape struct {
	Kind   string  `json:"kind"`
	Points []Point `json:"points,omitempty"`
	Radius float64 `json:"radius,omitempty"`
	Filled bool    `json:"filled,omitempty"`
}

// Style is the stroke a painter uses for a node's shapes.
type Style struct {
	Color color.NRGBA `json:"color"`
	Width float64     `json:"width"`
	// Dash alternates drawn and skipped lengths; empty means solid.
	Dash []float64 `json:"dash,omitempty"`
}

// Data is the role-specific payload of a node.
type Data interface {
	Role() Role
}

// ComponentData marks the root node of a placed component.
type ComponentData struct {
	ComponentID string            `json:"componentId"`
	Kind        string            `json:"kind"`
	DisplayName string            `json:"displayName"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// PinData marks a pin terminal. Pin nodes are children of their component.
type PinData struct {
	ComponentID string `json:"componentId"`
	PinID       string `json:"pinId"`
	Label       string `json:"label,omitempty"`
}

// Endpoint names one end of a wire.
type Endpoint struct {
	ComponentID string `json:"componentId"`
	PinID       string `json:"pin"`
}

// WireData marks a committed connection.
type WireData struct {
	ConnectionID string   `json:"connectionId"`
	From         Endpoint `json:"from"`
	To           Endpoint `json:"to"`
	NetID        string   `json:"netId,omitempty"`
}

// RatsnestData marks an advisory, unrouted connection line.
type RatsnestData struct {
	ConnectionID string `json:"connectionId"`
}

// LabelData is free text drawn at the node position.
type LabelData struct {
	Text string `json:"text"`
}

// ProvisionalData marks the live line of an in-progress wire.
type ProvisionalData struct {
	Start Endpoint `json:"start"`
}

// GroupData marks a plain grouping node.
type GroupData struct{}

func (ComponentData) Role() Role   { return RoleComponent }
func (PinData) Role() Role         { return RolePin }
func (WireData) Role() Role        { return RoleWire }
func (RatsnestData) Role() Role    { return RoleRatsnest }
func (LabelData) Role() Role       { return RoleLabel }
func (ProvisionalData) Role() Role { return RoleProvisional }
func (GroupData) Role() Role       { return RoleGroup }

// Node is one entry of a scene graph. Position and Rotation are relative to
// Parent ("" for top-level nodes).
type Node struct {
	ID       string
	Parent   string
	Position Point
	// Rotation in degrees, counter-clockwise in a y-down frame.
	Rotation float64
	Bounds   Rect
	Shapes   []Shape
	Style    Style
	// Interactive nodes take part in hit testing.
	Interactive bool
	// Selectable nodes can be picked and dragged by ordinary pointer input.
	Selectable bool
	Data       Data
}

// Role returns the node's role, RoleNone when it carries no data.
func (n Node) Role() Role {
	if n.Data == nil {
		return RoleNone
	}
	return n.Data.Role()
}

func (n Node) Component() (ComponentData, bool) {
	d, ok := n.Data.(ComponentData)
	return d, ok
}

func (n Node) Pin() (PinData, bool) {
	d, ok := n.Data.(PinData)
	return d, ok
}

func (n Node) Wire() (WireData, bool) {
	d, ok := n.Data.(WireData)
	return d, ok
}

func (n Node) Ratsnest() (RatsnestData, bool) {
	d, ok := n.Data.(RatsnestData)
	return d, ok
}

func (n Node) Label() (LabelData, bool) {
	d, ok := n.Data.(LabelData)
	return d, ok
}

func (n Node) Provisional() (ProvisionalData, bool) {
	d, ok := n.Data.(ProvisionalData)
	return d, ok
}

func (n Node) clone() Node {
	out := n
	if n.Shapes != nil {
		out.Shapes = make([]Shape, len(n.Shapes))
		for i, s := range n.Shapes {
			s.Points = append([]Point(nil), s.Points...)
			out.Shapes[i] = s
		}
	}
	out.Style.Dash = append([]float64(nil), n.Style.Dash...)
	if c, ok := n.Data.(ComponentData); ok && c.Properties != nil {
		props := make(map[string]string, len(c.Properties))
		for k, v := range c.Properties {
			props[k] = v
		}
		c.Properties = props
		out.Data = c
	}
	return out
}
