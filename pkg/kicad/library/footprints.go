package library

import (
	"fmt"
	"io"
	"os"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/kicad/sexp/kicadsexp"
)

// Pad is one footprint pad relative to the footprint origin.
type Pad struct {
	Number   string
	Type     string // thru_hole, smd, np_thru_hole, connect
	Shape    string
	Position sexp.Position
	Angle    sexp.Angle
	Size     sexp.Size
}

// Footprint is a parsed .kicad_mod file.
type Footprint struct {
	Name string
	Pads []Pad
}

// PadOffsets maps pad number to its offset. Mechanical pads without a number
// are left out; for repeated numbers the first pad wins.
func (f *Footprint) PadOffsets() map[string]sexp.Position {
	out := make(map[string]sexp.Position, len(f.Pads))
	for _, pad := range f.Pads {
		if pad.Number == "" {
			continue
		}
		if _, seen := out[pad.Number]; !seen {
			out[pad.Number] = pad.Position
		}
	}
	return out
}

// ParseFootprintFile reads a .kicad_mod file.
func ParseFootprintFile(path string) (*Footprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("library: open %s: %w", path, err)
	}
	defer f.Close()
	return ParseFootprint(f)
}

// ParseFootprint reads a (footprint ...) document. KiCad 5 files use the
// older (module ...) keyword, which is accepted too.
func ParseFootprint(r io.Reader) (*Footprint, error) {
	exprs, err := kicadsexp.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("library: failed to parse s-expression: %w", err)
	}
	if len(exprs) == 0 {
		return nil, fmt.Errorf("library: empty document")
	}
	root := exprs[0]
	name, _ := sexp.GetNodeName(root)
	if name != "footprint" && name != "module" {
		return nil, fmt.Errorf("library: expected footprint, got %q", name)
	}

	fp := &Footprint{}
	fp.Name, _ = sexp.GetString(root, 1)
	for _, node := range sexp.FindAllNodes(root, "pad") {
		pad, err := parsePad(node)
		if err != nil {
			return nil, fmt.Errorf("library: footprint %s: %w", fp.Name, err)
		}
		fp.Pads = append(fp.Pads, pad)
	}
	return fp, nil
}

// parsePad reads (pad "1" smd roundrect (at x y [angle]) (size w h) ...).
func parsePad(node kicadsexp.Sexp) (Pad, error) {
	pad := Pad{}
	var err error
	if pad.Number, err = sexp.GetString(node, 1); err != nil {
		return Pad{}, fmt.Errorf("failed to parse pad number: %w", err)
	}
	if pad.Type, err = sexp.GetString(node, 2); err != nil {
		return Pad{}, fmt.Errorf("failed to parse pad type: %w", err)
	}
	pad.Shape, _ = sexp.GetString(node, 3)

	at, ok := sexp.FindNode(node, "at")
	if !ok {
		return Pad{}, fmt.Errorf("pad %s: missing required 'at' position", pad.Number)
	}
	pos, err := sexp.GetPosition(at)
	if err != nil {
		return Pad{}, fmt.Errorf("pad %s: %w", pad.Number, err)
	}
	pad.Position = pos.Position
	pad.Angle = pos.Angle

	if size, ok := sexp.FindNode(node, "size"); ok {
		pad.Size, _ = sexp.GetSize(size)
	}
	return pad, nil
}
