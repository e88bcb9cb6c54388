// Package export renders read-only projections of a design: a bill of
// materials workbook and a printable netlist.
package export

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/catalog"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
)

// Design is the input of every exporter.
type Design struct {
	Title      string
	Components []circuit.Component
	Nets       []circuit.Net
}

// FromModel snapshots m into a Design.
func FromModel(title string, m *circuit.Model) Design {
	return Design{Title: title, Components: m.Components(), Nets: m.Nets()}
}

// BOMLine groups identical parts.
type BOMLine struct {
	Kind       string
	Name       string
	Value      string
	Footprint  string
	References []string
}

func (l BOMLine) Quantity() int { return len(l.References) }

// BuildBOM groups components by kind and value. Catalog data only fills in
// descriptive columns; lookup failures leave them blank.
func BuildBOM(ctx context.Context, comps []circuit.Component, cat catalog.Catalog) ([]BOMLine, error) {
	type key struct{ kind, value string }
	lines := make(map[key]*BOMLine)
	defs := make(map[string]*catalog.Definition)

	for _, c := range comps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		k := key{kind: c.Kind, value: c.Properties["value"]}
		line, ok := lines[k]
		if !ok {
			line = &BOMLine{Kind: c.Kind, Name: c.Kind, Value: k.value}
			def, seen := defs[c.Kind]
			if !seen && cat != nil {
				def, _ = cat.Lookup(ctx, c.Kind)
				defs[c.Kind] = def
			}
			if def != nil {
				line.Name = def.Name
				line.Footprint = def.Footprint
			}
			lines[k] = line
		}
		line.References = append(line.References, c.DisplayName)
	}

	out := make([]BOMLine, 0, len(lines))
	for _, l := range lines {
		sort.Slice(l.References, func(i, j int) bool { return designatorLess(l.References[i], l.References[j]) })
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return designatorLess(out[i].References[0], out[j].References[0]) })
	return out, nil
}

// designatorLess orders R2 before R10.
func designatorLess(a, b string) bool {
	pa, na := splitDesignator(a)
	pb, nb := splitDesignator(b)
	if pa != pb {
		return pa < pb
	}
	if na != nb {
		return na < nb
	}
	return a < b
}

func splitDesignator(s string) (string, int) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil {
		return strings.ToUpper(s), -1
	}
	return strings.ToUpper(s[:i]), n
}
