// Package catalog resolves component kinds to their definitions: pin set,
// schematic template and footprint pad offsets.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned by Lookup for an unknown catalog id.
var ErrNotFound = errors.New("catalog: definition not found")

// PinRole is the electrical role of a pin.
type PinRole string

const (
	RolePassive       PinRole = "passive"
	RoleInput         PinRole = "input"
	RoleOutput        PinRole = "output"
	RoleBidirectional PinRole = "bidirectional"
	RolePowerIn       PinRole = "power_in"
	RolePowerOut      PinRole = "power_out"
	RoleUnspecified   PinRole = "unspecified"
)

// Offset is a position relative to a component origin, in millimeters.
type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PinDef is one pin of a definition. Offset is the connection point on the
// schematic symbol.
type PinDef struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	Role   PinRole `json:"role"`
	Offset Offset  `json:"offset"`
}

// Graphic is one outline primitive of the schematic template.
type Graphic struct {
	Kind   string   `json:"kind"` // rect, circle, polyline
	Points []Offset `json:"points"`
	Radius float64  `json:"radius,omitempty"`
}

// Template is the visual body of a component on the schematic.
type Template struct {
	Width    float64   `json:"width"`
	Height   float64   `json:"height"`
	Graphics []Graphic `json:"graphics"`
}

// Definition is what the catalog knows about one component kind.
type Definition struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Category   string            `json:"category"`
	Prefix     string            `json:"prefix"`
	Template   Template          `json:"template"`
	Pins       []PinDef          `json:"pins"`
	Footprint  string            `json:"footprint,omitempty"`
	PadOffsets map[string]Offset `json:"padOffsets,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Pin returns the pin with id.
func (d *Definition) Pin(id string) (PinDef, bool) {
	for _, p := range d.Pins {
		if p.ID == id {
			return p, true
		}
	}
	return PinDef{}, false
}

// Catalog looks up component definitions. Implementations may block (disk or
// network), so callers pass a context.
type Catalog interface {
	Lookup(ctx context.Context, id string) (*Definition, error)
}

// Footprints resolves board pad offsets synchronously from already loaded
// definitions.
type Footprints interface {
	PadOffset(kind, pin string) (Offset, bool)
}

// MemoryCatalog is an in-memory catalog. It is safe for concurrent use.
type MemoryCatalog struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewMemoryCatalog returns a catalog holding defs.
func NewMemoryCatalog(defs ...Definition) *MemoryCatalog {
	c := &MemoryCatalog{defs: make(map[string]*Definition)}
	for _, d := range defs {
		c.Add(d)
	}
	return c
}

// NewBuiltinCatalog returns a catalog preloaded with Builtins.
func NewBuiltinCatalog() *MemoryCatalog {
	return NewMemoryCatalog(Builtins()...)
}

// Add registers def, replacing any definition with the same id.
func (c *MemoryCatalog) Add(def Definition) {
	d := cloneDefinition(def)
	c.mu.Lock()
	c.defs[d.ID] = d
	c.mu.Unlock()
}

// Lookup implements Catalog. The returned definition is a copy.
func (c *MemoryCatalog) Lookup(ctx context.Context, id string) (*Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneDefinition(*d), nil
}

// PadOffset implements Footprints.
func (c *MemoryCatalog) PadOffset(kind, pin string) (Offset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.defs[kind]
	if !ok {
		return Offset{}, false
	}
	off, ok := d.PadOffsets[pin]
	return off, ok
}

// List returns every definition sorted by category, then id.
func (c *MemoryCatalog) List() []Definition {
	c.mu.RLock()
	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, *cloneDefinition(*d))
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of definitions.
func (c *MemoryCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

func cloneDefinition(d Definition) *Definition {
	out := d
	out.Pins = append([]PinDef(nil), d.Pins...)
	if d.Template.Graphics != nil {
		out.Template.Graphics = make([]Graphic, len(d.Template.Graphics))
		for i, g := range d.Template.Graphics {
			g.Points = append([]Offset(nil), g.Points...)
			out.Template.Graphics[i] = g
		}
	}
	if d.PadOffsets != nil {
		out.PadOffsets = make(map[string]Offset, len(d.PadOffsets))
		for k, v := range d.PadOffsets {
			out.PadOffsets[k] = v
		}
	}
	if d.Properties != nil {
		out.Properties = make(map[string]string, len(d.Properties))
		for k, v := range d.Properties {
			out.Properties[k] = v
		}
	}
	return &out
}
