// Package library reads KiCad symbol libraries (.kicad_sym) and footprints
// (.kicad_mod) into the small subset the component catalog needs: pins,
// outline graphics and pad offsets.
package library

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/kicad/sexp/kicadsexp"
)

// Pin is one electrical pin of a library symbol.
type Pin struct {
	Number   string
	Name     string
	Type     string // input, output, passive, power_in, ...
	Position sexp.Position
	Angle    sexp.Angle
	Length   float64
	Hidden   bool
}

// Graphic is one outline primitive of a symbol body.
type Graphic struct {
	Kind   string // rectangle, circle, polyline
	Points []sexp.Position
	Radius float64
}

// Symbol is a library symbol flattened across its units.
type Symbol struct {
	Name       string
	Properties map[string]string
	Pins       []Pin
	Graphics   []Graphic
	InBom      bool
	OnBoard    bool
}

// Reference returns the designator prefix ("R", "U").
func (s Symbol) Reference() string {
	return strings.TrimRight(s.Properties["Reference"], "?0123456789")
}

// Footprint returns the footprint assignment as library and name.
func (s Symbol) Footprint() (lib, name string) {
	fp := s.Properties["Footprint"]
	if i := strings.IndexByte(fp, ':'); i >= 0 {
		return fp[:i], fp[i+1:]
	}
	return "", fp
}

// ParseSymbolFile reads a .kicad_sym file.
func ParseSymbolFile(path string) ([]Symbol, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("library: open %s: %w", path, err)
	}
	defer f.Close()
	return ParseSymbols(f)
}

// ParseSymbols reads a (kicad_symbol_lib ...) document.
func ParseSymbols(r io.Reader) ([]Symbol, error) {
	root, err := parseRoot(r, "kicad_symbol_lib")
	if err != nil {
		return nil, err
	}
	nodes := sexp.FindAllNodes(root, "symbol")
	symbols := make([]Symbol, 0, len(nodes))
	for _, node := range nodes {
		sym, err := parseSymbol(node)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, nil
}

func parseRoot(r io.Reader, want string) (kicadsexp.Sexp, error) {
	exprs, err := kicadsexp.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("library: failed to parse s-expression: %w", err)
	}
	if len(exprs) == 0 {
		return nil, fmt.Errorf("library: empty document")
	}
	name, err := sexp.GetNodeName(exprs[0])
	if err != nil {
		return nil, fmt.Errorf("library: %w", err)
	}
	if name != want {
		return nil, fmt.Errorf("library: expected %q, got %q", want, name)
	}
	return exprs[0], nil
}

func parseSymbol(node kicadsexp.Sexp) (Symbol, error) {
	name, err := sexp.GetString(node, 1)
	if err != nil {
		return Symbol{}, fmt.Errorf("library: symbol name: %w", err)
	}
	sym := Symbol{
		Name:       name,
		Properties: make(map[string]string),
		InBom:      sexp.GetYesNo(node, "in_bom", true),
		OnBoard:    sexp.GetYesNo(node, "on_board", true),
	}
	for _, pn := range sexp.FindAllNodes(node, "property") {
		if prop, err := sexp.GetProperty(pn); err == nil {
			sym.Properties[prop.Key] = prop.Value
		}
	}

	// Pins and graphics live in nested unit symbols ("R_0_1", "R_1_1"), but
	// simple libraries sometimes put them on the outer symbol.
	units := append([]kicadsexp.Sexp{node}, sexp.FindAllNodes(node, "symbol")...)
	for _, unit := range units {
		for _, pn := range sexp.FindAllNodes(unit, "pin") {
			sym.Pins = append(sym.Pins, parsePin(pn))
		}
		sym.Graphics = append(sym.Graphics, parseGraphics(unit)...)
	}
	if len(sym.Pins) == 0 {
		return Symbol{}, fmt.Errorf("library: symbol %s has no pins", name)
	}
	return sym, nil
}

func parsePin(node kicadsexp.Sexp) Pin {
	pin := Pin{}
	pin.Type, _ = sexp.GetString(node, 1)
	if at, ok := sexp.FindNode(node, "at"); ok {
		if pos, err := sexp.GetPosition(at); err == nil {
			pin.Position = pos.Position
			pin.Angle = pos.Angle
		}
	}
	if l, ok := sexp.FindNode(node, "length"); ok {
		pin.Length, _ = sexp.GetFloat(l, 1)
	}
	if n, ok := sexp.FindNode(node, "name"); ok {
		pin.Name, _ = sexp.GetString(n, 1)
	}
	if n, ok := sexp.FindNode(node, "number"); ok {
		pin.Number, _ = sexp.GetString(n, 1)
	}
	pin.Hidden = sexp.HasSymbol(node, "hide") || sexp.GetYesNo(node, "hide", false)
	return pin
}

func parseGraphics(unit kicadsexp.Sexp) []Graphic {
	var out []Graphic
	for _, n := range sexp.FindAllNodes(unit, "rectangle") {
		g := Graphic{Kind: "rectangle"}
		for _, key := range []string{"start", "end"} {
			if p, ok := sexp.FindNode(n, key); ok {
				if pos, err := sexp.GetXY(p); err == nil {
					g.Points = append(g.Points, pos)
				}
			}
		}
		if len(g.Points) == 2 {
			out = append(out, g)
		}
	}
	for _, n := range sexp.FindAllNodes(unit, "circle") {
		g := Graphic{Kind: "circle"}
		if c, ok := sexp.FindNode(n, "center"); ok {
			if pos, err := sexp.GetXY(c); err == nil {
				g.Points = []sexp.Position{pos}
			}
		}
		if r, ok := sexp.FindNode(n, "radius"); ok {
			g.Radius, _ = sexp.GetFloat(r, 1)
		}
		if len(g.Points) == 1 {
			out = append(out, g)
		}
	}
	for _, n := range sexp.FindAllNodes(unit, "polyline") {
		g := Graphic{Kind: "polyline"}
		if pts, ok := sexp.FindNode(n, "pts"); ok {
			for _, xy := range sexp.FindAllNodes(pts, "xy") {
				if pos, err := sexp.GetXY(xy); err == nil {
					g.Points = append(g.Points, pos)
				}
			}
		}
		if len(g.Points) >= 2 {
			out = append(out, g)
		}
	}
	return out
}
