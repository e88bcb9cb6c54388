package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
)

// SerializeRawSceneState captures g exactly as drawn. Node visuals go into
// the scene array; electrical roles go into a side map keyed by node index.
func SerializeRawSceneState(g scene.Graph) ([]byte, error) {
	raw := RawScene{
		Format:             FormatRaw,
		Version:            FormatVersion,
		Scene:              RawSceneNodes{Nodes: []RawNode{}},
		ElectricalMetadata: make(map[string]RawMetadata),
	}
	for i, n := range g.Nodes() {
		rn := RawNode{
			ID:          n.ID,
			Parent:      n.Parent,
			X:           n.Position.X,
			Y:           n.Position.Y,
			Rotation:    n.Rotation,
			Shapes:      n.Shapes,
			Style:       n.Style,
			Interactive: n.Interactive,
			Selectable:  n.Selectable,
		}
		if !n.Bounds.Empty() {
			b := n.Bounds
			rn.Bounds = &b
		}
		if l, ok := n.Label(); ok {
			rn.Text = l.Text
		}
		raw.Scene.Nodes = append(raw.Scene.Nodes, rn)
		if md, ok := metadataFor(n); ok {
			raw.ElectricalMetadata[strconv.Itoa(i)] = md
		}
	}
	out, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("canvas: encode raw scene: %w", err)
	}
	return out, nil
}

func metadataFor(n scene.Node) (RawMetadata, bool) {
	switch d := n.Data.(type) {
	case scene.ComponentData:
		return RawMetadata{Role: scene.RoleComponent, ComponentID: d.ComponentID, Kind: d.Kind,
			DisplayName: d.DisplayName, Properties: d.Properties}, true
	case scene.PinData:
		return RawMetadata{Role: scene.RolePin, ComponentID: d.ComponentID, PinID: d.PinID, PinLabel: d.Label}, true
	case scene.WireData:
		from, to := d.From, d.To
		return RawMetadata{Role: scene.RoleWire, ConnectionID: d.ConnectionID,
			WireFrom: &from, WireTo: &to, NetID: d.NetID}, true
	case scene.RatsnestData:
		return RawMetadata{Role: scene.RoleRatsnest, ConnectionID: d.ConnectionID}, true
	case scene.LabelData:
		return RawMetadata{Role: scene.RoleLabel}, true
	case scene.GroupData:
		return RawMetadata{Role: scene.RoleGroup}, true
	}
	// Provisional lines are transient and never persisted with a role.
	return RawMetadata{}, false
}

// RestoreRawSceneState clears g and re-adds every node of a raw blob,
// reattaching the electrical roles. Nodes that cannot be re-added and wires
// whose pins are missing are skipped with a warning.
func (l *Loader) RestoreRawSceneState(ctx context.Context, g scene.Graph, blob []byte) (*LoadResult, error) {
	var raw RawScene
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("canvas: decode raw scene: %w", err)
	}
	if raw.Version > FormatVersion {
		return nil, fmt.Errorf("%w: %s v%d", ErrUnsupportedVersion, FormatRaw, raw.Version)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.Clear()
	res := &LoadResult{}
	var wires []scene.Node
	for i, rn := range raw.Scene.Nodes {
		n := scene.Node{
			ID:          rn.ID,
			Parent:      rn.Parent,
			Position:    scene.Point{X: rn.X, Y: rn.Y},
			Rotation:    rn.Rotation,
			Shapes:      rn.Shapes,
			Style:       rn.Style,
			Interactive: rn.Interactive,
			Selectable:  rn.Selectable,
		}
		if rn.Bounds != nil {
			n.Bounds = *rn.Bounds
		}
		if md, ok := raw.ElectricalMetadata[strconv.Itoa(i)]; ok {
			n.Data = md.data(rn)
		}
		// Wires go last so their pins are in place to check against.
		if n.Role() == scene.RoleWire {
			wires = append(wires, n)
			continue
		}
		if err := g.Add(n); err != nil {
			l.warn(res, &RestoreWarning{ComponentID: componentOf(n), Err: err})
			continue
		}
		if n.Role() == scene.RoleComponent {
			res.Components++
		}
	}
	for _, n := range wires {
		w, _ := n.Wire()
		_, okFrom := g.Node(PinNodeID(w.From.ComponentID, w.From.PinID))
		_, okTo := g.Node(PinNodeID(w.To.ComponentID, w.To.PinID))
		if !okFrom || !okTo {
			l.warn(res, &RestoreWarning{ConnectionID: w.ConnectionID, Err: ErrEndpointSkipped})
			continue
		}
		if err := g.Add(n); err != nil {
			l.warn(res, &RestoreWarning{ConnectionID: w.ConnectionID, Err: err})
			continue
		}
		res.Connections++
	}

	l.logger.Info("raw scene restored",
		zap.Int("nodes", g.Len()),
		zap.Int("components", res.Components),
		zap.Int("connections", res.Connections),
		zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

func (md RawMetadata) data(rn RawNode) scene.Data {
	switch md.Role {
	case scene.RoleComponent:
		return scene.ComponentData{ComponentID: md.ComponentID, Kind: md.Kind,
			DisplayName: md.DisplayName, Properties: md.Properties}
	case scene.RolePin:
		return scene.PinData{ComponentID: md.ComponentID, PinID: md.PinID, Label: md.PinLabel}
	case scene.RoleWire:
		w := scene.WireData{ConnectionID: md.ConnectionID, NetID: md.NetID}
		if md.WireFrom != nil {
			w.From = *md.WireFrom
		}
		if md.WireTo != nil {
			w.To = *md.WireTo
		}
		return w
	case scene.RoleRatsnest:
		return scene.RatsnestData{ConnectionID: md.ConnectionID}
	case scene.RoleLabel:
		return scene.LabelData{Text: rn.Text}
	case scene.RoleGroup:
		return scene.GroupData{}
	}
	return nil
}

func componentOf(n scene.Node) string {
	switch d := n.Data.(type) {
	case scene.ComponentData:
		return d.ComponentID
	case scene.PinData:
		return d.ComponentID
	}
	return n.ID
}
