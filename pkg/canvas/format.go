package canvas

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
)

// Format tags a persisted design blob.
type Format string

const (
	FormatLogical Format = "otc/logical"
	FormatRaw     Format = "otc/raw"
)

// FormatVersion is written into every blob this package produces.
const FormatVersion = 1

var (
	ErrUnknownFormat      = errors.New("canvas: unrecognized design format")
	ErrUnsupportedVersion = errors.New("canvas: unsupported format version")
)

// PartialCircuit is the logical save format: catalog references, placements
// and connection endpoint pairs. Visuals are rebuilt from the catalog on load.
type PartialCircuit struct {
	Format      Format              `json:"format,omitempty"`
	Version     int                 `json:"version,omitempty"`
	Components  []LogicalComponent  `json:"components"`
	Connections []LogicalConnection `json:"connections"`
}

// LogicalComponent is one placed component. DatabaseID is the catalog id.
type LogicalComponent struct {
	ID            string            `json:"id"`
	DatabaseID    string            `json:"databaseId"`
	Name          string            `json:"name,omitempty"`
	Position      circuit.Point     `json:"position"`
	BoardPosition *circuit.Point    `json:"boardPosition,omitempty"`
	Rotation      float64           `json:"rotation"`
	Properties    map[string]string `json:"properties,omitempty"`
}

// LogicalConnection is one wire between two pins. The net label, if any, is
// kept under the "net" property.
type LogicalConnection struct {
	ID         string            `json:"id"`
	From       circuit.PinRef    `json:"from"`
	To         circuit.PinRef    `json:"to"`
	Properties map[string]string `json:"properties,omitempty"`
}

// NetProperty is the connection property holding the net label.
const NetProperty = "net"

// RawScene is the legacy save format: the literal scene plus the electrical
// tags needed to rebuild connectivity, keyed by node index.
type RawScene struct {
	Format             Format                 `json:"format,omitempty"`
	Version            int                    `json:"version,omitempty"`
	Scene              RawSceneNodes          `json:"scene"`
	ElectricalMetadata map[string]RawMetadata `json:"electricalMetadata,omitempty"`
}

type RawSceneNodes struct {
	Nodes []RawNode `json:"nodes"`
}

// RawNode holds the visual attributes of one scene node.
type RawNode struct {
	ID          string        `json:"id"`
	Parent      string        `json:"parent,omitempty"`
	X           float64       `json:"x"`
	Y           float64       `json:"y"`
	Rotation    float64       `json:"rotation,omitempty"`
	Bounds      *scene.Rect   `json:"bounds,omitempty"`
	Shapes      []scene.Shape `json:"shapes,omitempty"`
	Style       scene.Style   `json:"style"`
	Interactive bool          `json:"interactive,omitempty"`
	Selectable  bool          `json:"selectable,omitempty"`
	Text        string        `json:"text,omitempty"`
}

// RawMetadata carries the electrical role of one raw node.
type RawMetadata struct {
	Role         scene.Role        `json:"role"`
	ComponentID  string            `json:"componentId,omitempty"`
	Kind         string            `json:"kind,omitempty"`
	DisplayName  string            `json:"displayName,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
	PinID        string            `json:"pinId,omitempty"`
	PinLabel     string            `json:"pinLabel,omitempty"`
	ConnectionID string            `json:"connectionId,omitempty"`
	WireFrom     *scene.Endpoint   `json:"wireFrom,omitempty"`
	WireTo       *scene.Endpoint   `json:"wireTo,omitempty"`
	NetID        string            `json:"netId,omitempty"`
}

// blobHeader reads just enough of a blob to classify it.
type blobHeader struct {
	Format     Format          `json:"format"`
	Version    int             `json:"version"`
	Components json.RawMessage `json:"components"`
	Scene      *struct {
		Nodes json.RawMessage `json:"nodes"`
	} `json:"scene"`
}

// DetectFormat classifies a persisted blob. The format tag wins; untagged
// blobs are recognized by shape: components carrying a databaseId are
// logical, a scene with a node array is raw.
func DetectFormat(blob []byte) (Format, error) {
	var p blobHeader
	if err := json.Unmarshal(blob, &p); err != nil {
		return "", fmt.Errorf("canvas: decode blob: %w", err)
	}
	switch p.Format {
	case FormatLogical, FormatRaw:
		if p.Version > FormatVersion {
			return "", fmt.Errorf("%w: %s v%d", ErrUnsupportedVersion, p.Format, p.Version)
		}
		return p.Format, nil
	case "":
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, p.Format)
	}

	if len(p.Components) > 0 {
		var comps []map[string]json.RawMessage
		if err := json.Unmarshal(p.Components, &comps); err == nil {
			if len(comps) == 0 {
				return FormatLogical, nil
			}
			if _, ok := comps[0]["databaseId"]; ok {
				return FormatLogical, nil
			}
		}
	}
	if p.Scene != nil && len(p.Scene.Nodes) > 0 && p.Scene.Nodes[0] == '[' {
		return FormatRaw, nil
	}
	return "", ErrUnknownFormat
}

// MarshalCircuit encodes pc with the logical format tag.
func MarshalCircuit(pc PartialCircuit) ([]byte, error) {
	pc.Format, pc.Version = FormatLogical, FormatVersion
	if pc.Components == nil {
		pc.Components = []LogicalComponent{}
	}
	if pc.Connections == nil {
		pc.Connections = []LogicalConnection{}
	}
	return json.MarshalIndent(pc, "", "  ")
}

// UnmarshalCircuit decodes a logical blob, tagged or not.
func UnmarshalCircuit(blob []byte) (PartialCircuit, error) {
	var pc PartialCircuit
	if err := json.Unmarshal(blob, &pc); err != nil {
		return PartialCircuit{}, fmt.Errorf("canvas: decode logical circuit: %w", err)
	}
	return pc, nil
}

// FromState converts a model state into the logical format, components
// ordered by id and connections in model order.
func FromState(s circuit.State) PartialCircuit {
	pc := PartialCircuit{Format: FormatLogical, Version: FormatVersion}
	for _, c := range s.SortedComponents() {
		lc := LogicalComponent{
			ID:         c.ID,
			DatabaseID: c.Kind,
			Name:       c.DisplayName,
			Rotation:   c.Rotation,
			Properties: c.Properties,
		}
		if c.SchematicPosition != nil {
			lc.Position = *c.SchematicPosition
		}
		if c.BoardPosition != nil {
			p := *c.BoardPosition
			lc.BoardPosition = &p
		}
		pc.Components = append(pc.Components, lc)
	}
	for _, conn := range s.Connections {
		lc := LogicalConnection{ID: conn.ID, From: conn.From, To: conn.To}
		if conn.NetID != "" {
			lc.Properties = map[string]string{NetProperty: conn.NetID}
		}
		pc.Connections = append(pc.Connections, lc)
	}
	return pc
}
