package canvas

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/catalog"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
)

// pinRadius is the drawn and hit radius of a pin marker in millimeters.
const pinRadius = 0.5

func ComponentNodeID(componentID string) string { return "component:" + componentID }
func LabelNodeID(componentID string) string     { return "label:" + componentID }
func WireNodeID(connectionID string) string     { return "wire:" + connectionID }

func PinNodeID(componentID, pinID string) string {
	return "pin:" + componentID + ":" + pinID
}

// Placement is what Instantiate needs besides the catalog definition.
type Placement struct {
	ComponentID string
	DisplayName string
	Position    circuit.Point
	Rotation    float64
	Properties  map[string]string
}

// Instantiate adds the visual representation of one component to g: the
// component node, one child node per pin and a name label. In the board view
// pins sit on their footprint pads when the catalog knows them. On failure
// nothing of the component is left in g.
func Instantiate(g scene.Graph, def *catalog.Definition, p Placement, view circuit.View) error {
	id := ComponentNodeID(p.ComponentID)
	hw, hh := def.Template.Width/2, def.Template.Height/2
	node := scene.Node{
		ID:          id,
		Position:    toScene(p.Position),
		Rotation:    p.Rotation,
		Bounds:      scene.Rect{Min: scene.Point{X: -hw, Y: -hh}, Max: scene.Point{X: hw, Y: hh}},
		Interactive: true,
		Selectable:  true,
		Data: scene.ComponentData{
			ComponentID: p.ComponentID,
			Kind:        def.ID,
			DisplayName: p.DisplayName,
			Properties:  p.Properties,
		},
	}
	if view == circuit.ViewBoard {
		node.Shapes = footprintShapes(def)
	} else {
		node.Shapes = templateShapes(def.Template)
	}
	if err := g.Add(node); err != nil {
		return fmt.Errorf("canvas: add component %s: %w", p.ComponentID, err)
	}

	for _, pin := range def.Pins {
		offset := pin.Offset
		if view == circuit.ViewBoard {
			if pad, ok := def.PadOffsets[pin.ID]; ok {
				offset = pad
			}
		}
		err := g.Add(scene.Node{
			ID:          PinNodeID(p.ComponentID, pin.ID),
			Parent:      id,
			Position:    scene.Point{X: offset.X, Y: offset.Y},
			Shapes:      []scene.Shape{{Kind: "circle", Points: []scene.Point{{}}, Radius: pinRadius}},
			Interactive: true,
			Selectable:  true,
			Data:        scene.PinData{ComponentID: p.ComponentID, PinID: pin.ID, Label: pin.Label},
		})
		if err != nil {
			_ = g.Remove(id)
			return fmt.Errorf("canvas: add pin %s.%s: %w", p.ComponentID, pin.ID, err)
		}
	}

	err := g.Add(scene.Node{
		ID:         LabelNodeID(p.ComponentID),
		Parent:     id,
		Position:   scene.Point{X: hw + 0.5, Y: -hh},
		Selectable: true,
		Data:       scene.LabelData{Text: p.DisplayName},
	})
	if err != nil {
		_ = g.Remove(id)
		return fmt.Errorf("canvas: add label %s: %w", p.ComponentID, err)
	}
	return nil
}

// PinPosition resolves a pin's world position through its component's
// transform.
func PinPosition(g scene.Graph, ref circuit.PinRef) (scene.Point, error) {
	return g.WorldPosition(PinNodeID(ref.ComponentID, ref.PinID))
}

// DrawWire adds a wire node between the two endpoint pins of conn. Both pin
// nodes must exist.
func DrawWire(g scene.Graph, conn circuit.Connection) error {
	from, err := PinPosition(g, conn.From)
	if err != nil {
		return fmt.Errorf("canvas: wire %s start: %w", conn.ID, err)
	}
	to, err := PinPosition(g, conn.To)
	if err != nil {
		return fmt.Errorf("canvas: wire %s end: %w", conn.ID, err)
	}
	return g.Add(scene.Node{
		ID:          WireNodeID(conn.ID),
		Shapes:      []scene.Shape{{Kind: "line", Points: []scene.Point{from, to}}},
		Interactive: true,
		Selectable:  true,
		Data: scene.WireData{
			ConnectionID: conn.ID,
			From:         endpoint(conn.From),
			To:           endpoint(conn.To),
			NetID:        conn.NetID,
		},
	})
}

func templateShapes(t catalog.Template) []scene.Shape {
	out := make([]scene.Shape, 0, len(t.Graphics))
	for _, gr := range t.Graphics {
		out = append(out, scene.Shape{Kind: gr.Kind, Points: offsetsToPoints(gr.Points), Radius: gr.Radius})
	}
	return out
}

func footprintShapes(def *catalog.Definition) []scene.Shape {
	const pad = 0.6
	out := make([]scene.Shape, 0, len(def.PadOffsets))
	for _, pin := range def.Pins {
		o, ok := def.PadOffsets[pin.ID]
		if !ok {
			continue
		}
		out = append(out, scene.Shape{
			Kind:   "rect",
			Points: []scene.Point{{X: o.X - pad/2, Y: o.Y - pad/2}, {X: o.X + pad/2, Y: o.Y + pad/2}},
			Filled: true,
		})
	}
	return out
}

func offsetsToPoints(in []catalog.Offset) []scene.Point {
	out := make([]scene.Point, len(in))
	for i, o := range in {
		out[i] = scene.Point{X: o.X, Y: o.Y}
	}
	return out
}

func toScene(p circuit.Point) scene.Point   { return scene.Point{X: p.X, Y: p.Y} }
func fromScene(p scene.Point) circuit.Point { return circuit.Point{X: p.X, Y: p.Y} }

func endpoint(r circuit.PinRef) scene.Endpoint {
	return scene.Endpoint{ComponentID: r.ComponentID, PinID: r.PinID}
}

func pinRef(e scene.Endpoint) circuit.PinRef {
	return circuit.PinRef{ComponentID: e.ComponentID, PinID: e.PinID}
}
