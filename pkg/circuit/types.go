package circuit

import (
	"sort"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/catalog"
)

// View selects one of the two layouts of a design.
type View string

const (
	ViewSchematic View = "schematic"
	ViewBoard     View = "board"
)

// Other returns the opposite view.
func (v View) Other() View {
	if v == ViewBoard {
		return ViewSchematic
	}
	return ViewBoard
}

// Point is a position in millimeters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pin is one terminal of a component instance, fixed at creation.
type Pin struct {
	ID    string          `json:"id"`
	Label string          `json:"label"`
	Role  catalog.PinRole `json:"role"`
}

// Component is a placed instance of a catalog kind.
type Component struct {
	ID                string            `json:"id"`
	Kind              string            `json:"kind"`
	DisplayName       string            `json:"displayName"`
	SchematicPosition *Point            `json:"schematicPosition,omitempty"`
	BoardPosition     *Point            `json:"boardPosition,omitempty"`
	Rotation          float64           `json:"rotation"`
	Pins              []Pin             `json:"pins"`
	Properties        map[string]string `json:"properties,omitempty"`
}

// HasPin reports whether id is in the component's pin set.
func (c Component) HasPin(id string) bool {
	for _, p := range c.Pins {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Position returns the component position in view, nil when the component
// is not placed there.
func (c Component) Position(view View) *Point {
	if view == ViewBoard {
		return c.BoardPosition
	}
	return c.SchematicPosition
}

func (c Component) clone() Component {
	out := c
	out.Pins = append([]Pin(nil), c.Pins...)
	if c.SchematicPosition != nil {
		p := *c.SchematicPosition
		out.SchematicPosition = &p
	}
	if c.BoardPosition != nil {
		p := *c.BoardPosition
		out.BoardPosition = &p
	}
	if c.Properties != nil {
		out.Properties = make(map[string]string, len(c.Properties))
		for k, v := range c.Properties {
			out.Properties[k] = v
		}
	}
	return out
}

// PinRef addresses one pin of one component.
type PinRef struct {
	ComponentID string `json:"componentId"`
	PinID       string `json:"pin"`
}

func (r PinRef) String() string { return r.ComponentID + "." + r.PinID }

func (r PinRef) less(o PinRef) bool {
	if r.ComponentID != o.ComponentID {
		return r.ComponentID < o.ComponentID
	}
	return r.PinID < o.PinID
}

// Connection is one logical wire between two pins.
type Connection struct {
	ID    string `json:"id"`
	From  PinRef `json:"from"`
	To    PinRef `json:"to"`
	NetID string `json:"netId,omitempty"`
}

// Touches reports whether either endpoint belongs to componentID.
func (c Connection) Touches(componentID string) bool {
	return c.From.ComponentID == componentID || c.To.ComponentID == componentID
}

type endpointPair struct {
	a, b PinRef
}

// pair returns the endpoints in canonical order, so A-B and B-A compare equal.
func (c Connection) pair() endpointPair {
	if c.To.less(c.From) {
		return endpointPair{a: c.To, b: c.From}
	}
	return endpointPair{a: c.From, b: c.To}
}

// State is a complete copy of the model contents.
type State struct {
	Components  map[string]Component `json:"components"`
	Connections []Connection         `json:"connections"`
	Revision    uint64               `json:"revision"`
}

func (s State) clone() State {
	out := State{
		Components:  make(map[string]Component, len(s.Components)),
		Connections: append([]Connection(nil), s.Connections...),
		Revision:    s.Revision,
	}
	for id, c := range s.Components {
		out.Components[id] = c.clone()
	}
	return out
}

// SortedComponents returns the components ordered by id.
func (s State) SortedComponents() []Component {
	out := make([]Component, 0, len(s.Components))
	for _, c := range s.Components {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Removal captures everything RemoveComponent took out, so the removal can be
// reverted exactly.
type Removal struct {
	Component   Component
	Connections []IndexedConnection
}

// IndexedConnection is a connection with its position in the ordered list.
type IndexedConnection struct {
	Index      int
	Connection Connection
}

// Patch lists the fields UpdateComponent changes. Nil fields are left alone;
// a Properties entry with an empty value deletes the key.
type Patch struct {
	DisplayName       *string
	SchematicPosition *Point
	BoardPosition     *Point
	RemoveFromBoard   bool
	Rotation          *float64
	Properties        map[string]string
}
