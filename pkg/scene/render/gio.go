package render

import (
	"gioui.org/f32"
	"gioui.org/font"
	"gioui.org/font/gofont"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
)

// Painter draws scene graphs into Gio frames.
type Painter struct {
	Theme  Theme
	shaper *text.Shaper
}

// NewPainter returns a painter using the Go fonts for labels.
func NewPainter(th Theme) *Painter {
	return &Painter{
		Theme:  th,
		shaper: text.NewShaper(text.WithCollection(gofont.Collection())),
	}
}

// Paint fills the background and draws every graph in order, so later graphs
// (ratsnest overlays, the wire tool preview) end up on top.
func (p *Painter) Paint(gtx layout.Context, v *scene.Viewport, graphs ...scene.Graph) {
	paint.Fill(gtx.Ops, p.Theme.Background)
	for _, g := range graphs {
		if g == nil {
			continue
		}
		p.PaintPrimitives(gtx, Flatten(g, v, p.Theme))
	}
}

// PaintPrimitives draws already flattened primitives.
func (p *Painter) PaintPrimitives(gtx layout.Context, prims []Primitive) {
	for _, prim := range prims {
		switch prim.Kind {
		case KindPolyline:
			var path clip.Path
			path.Begin(gtx.Ops)
			path.MoveTo(prim.Points[0].F32())
			for _, pt := range prim.Points[1:] {
				path.LineTo(pt.F32())
			}
			paint.FillShape(gtx.Ops, prim.Color, clip.Stroke{
				Path:  path.End(),
				Width: float32(prim.Width),
			}.Op())
		case KindPolygon:
			var path clip.Path
			path.Begin(gtx.Ops)
			path.MoveTo(prim.Points[0].F32())
			for _, pt := range prim.Points[1:] {
				path.LineTo(pt.F32())
			}
			path.Close()
			paint.FillShape(gtx.Ops, prim.Color, clip.Outline{Path: path.End()}.Op())
		case KindText:
			p.paintText(gtx, prim)
		}
	}
}

func (p *Painter) paintText(gtx layout.Context, prim Primitive) {
	macro := op.Record(gtx.Ops)
	stack := op.Affine(f32.Affine2D{}.Offset(prim.Points[0].F32())).Push(gtx.Ops)

	rec := op.Record(gtx.Ops)
	paint.ColorOp{Color: prim.Color}.Add(gtx.Ops)
	material := rec.Stop()

	label := widget.Label{Alignment: text.Start, MaxLines: 1}
	label.Layout(gtx, p.shaper, font.Font{}, unit.Sp(prim.Size), prim.Text, material)

	stack.Pop()
	call := macro.Stop()
	call.Add(gtx.Ops)
}
