package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/kicad/library"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/kicad/sexp"
)

// KiCadLoader turns KiCad symbol libraries into catalog definitions. Footprint
// assignments ("Resistor_SMD:R_0805") are resolved against FootprintDirs,
// either as <dir>/<lib>.pretty/<name>.kicad_mod or <dir>/<name>.kicad_mod.
type KiCadLoader struct {
	FootprintDirs []string
	Logger        *zap.Logger
}

// LoadDir walks root and loads every .kicad_sym file into c. It returns the
// number of definitions added.
func (l *KiCadLoader) LoadDir(ctx context.Context, c *MemoryCatalog, root string) (int, error) {
	total := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".kicad_sym") {
			return nil
		}
		n, err := l.LoadFile(ctx, c, path)
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	return total, err
}

// LoadFile loads one .kicad_sym file into c. Definition ids are
// "<library>:<symbol>", the library being the file name without extension.
func (l *KiCadLoader) LoadFile(ctx context.Context, c *MemoryCatalog, path string) (int, error) {
	symbols, err := library.ParseSymbolFile(path)
	if err != nil {
		return 0, fmt.Errorf("catalog: %w", err)
	}
	libName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		c.Add(l.Definition(libName, sym))
	}
	return len(symbols), nil
}

// Definition converts a parsed symbol. A footprint that cannot be found
// leaves PadOffsets empty; the ratsnest skips such components.
func (l *KiCadLoader) Definition(libName string, sym library.Symbol) Definition {
	def := Definition{
		ID:         libName + ":" + sym.Name,
		Name:       sym.Name,
		Category:   libName,
		Prefix:     sym.Reference(),
		Properties: make(map[string]string),
	}
	if def.Prefix == "" {
		def.Prefix = "U"
	}
	if v := sym.Properties["Value"]; v != "" {
		def.Properties["value"] = v
	}

	box := newBox()
	for _, p := range sym.Pins {
		off := flipY(p.Position)
		box.add(off)
		def.Pins = append(def.Pins, PinDef{
			ID:     p.Number,
			Label:  p.Name,
			Role:   pinRole(p.Type),
			Offset: off,
		})
	}
	for _, g := range sym.Graphics {
		out := Graphic{Kind: g.Kind, Radius: g.Radius}
		if g.Kind == "rectangle" {
			out.Kind = "rect"
		}
		for _, p := range g.Points {
			off := flipY(p)
			box.add(off)
			out.Points = append(out.Points, off)
		}
		def.Template.Graphics = append(def.Template.Graphics, out)
	}
	def.Template.Width, def.Template.Height = box.size()

	fpLib, fpName := sym.Footprint()
	if fpName == "" {
		return def
	}
	def.Footprint = sym.Properties["Footprint"]
	fp, err := l.findFootprint(fpLib, fpName)
	if err != nil {
		l.logger().Warn("footprint not resolved",
			zap.String("symbol", def.ID),
			zap.String("footprint", def.Footprint),
			zap.Error(err))
		return def
	}
	def.PadOffsets = make(map[string]Offset)
	for num, pos := range fp.PadOffsets() {
		def.PadOffsets[num] = Offset{X: pos.X, Y: pos.Y}
	}
	return def
}

func (l *KiCadLoader) findFootprint(lib, name string) (*library.Footprint, error) {
	for _, dir := range l.FootprintDirs {
		candidates := []string{filepath.Join(dir, name+".kicad_mod")}
		if lib != "" {
			candidates = append([]string{filepath.Join(dir, lib+".pretty", name+".kicad_mod")}, candidates...)
		}
		for _, path := range candidates {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			return library.ParseFootprintFile(path)
		}
	}
	return nil, errors.New("no matching .kicad_mod file")
}

func (l *KiCadLoader) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// flipY converts from symbol space (Y up) to schematic space (Y down). The
// + 0 turns -0 into 0.
func flipY(p sexp.Position) Offset {
	return Offset{X: p.X, Y: -p.Y + 0}
}

func pinRole(kicadType string) PinRole {
	switch kicadType {
	case "input":
		return RoleInput
	case "output", "open_collector", "open_emitter", "tri_state":
		return RoleOutput
	case "bidirectional":
		return RoleBidirectional
	case "passive":
		return RolePassive
	case "power_in":
		return RolePowerIn
	case "power_out":
		return RolePowerOut
	}
	return RoleUnspecified
}

type box struct {
	minX, minY, maxX, maxY float64
}

func newBox() *box {
	return &box{minX: math.Inf(1), minY: math.Inf(1), maxX: math.Inf(-1), maxY: math.Inf(-1)}
}

func (b *box) add(o Offset) {
	b.minX = math.Min(b.minX, o.X)
	b.minY = math.Min(b.minY, o.Y)
	b.maxX = math.Max(b.maxX, o.X)
	b.maxY = math.Max(b.maxY, o.Y)
}

func (b *box) size() (float64, float64) {
	if b.minX > b.maxX {
		return 0, 0
	}
	return b.maxX - b.minX, b.maxY - b.minY
}
