package ui

import (
	"context"

	"gioui.org/io/event"
	"gioui.org/io/key"
	"gioui.org/io/pointer"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
)

// layoutCanvas paints the active view and feeds pointer and key input to
// the editor.
func (a *App) layoutCanvas(gtx layout.Context) layout.Dimensions {
	ctx := context.Background()
	size := gtx.Constraints.Max
	a.Session.Viewport.Resize(size.X, size.Y)

	changed := false
	for {
		ev, ok := gtx.Event(key.Filter{Optional: key.ModShortcut | key.ModShift})
		if !ok {
			break
		}
		if ke, ok := ev.(key.Event); ok && ke.State == key.Press {
			if a.Editor.Key(ctx, string(ke.Name), ke.Modifiers.Contain(key.ModShortcut)) {
				changed = true
			}
		}
	}

	for {
		ev, ok := gtx.Event(pointer.Filter{
			Target:  &a.canvasTag,
			Kinds:   pointer.Press | pointer.Release | pointer.Drag | pointer.Move | pointer.Scroll,
			ScrollY: pointer.ScrollRange{Min: -1 << 16, Max: 1 << 16},
		})
		if !ok {
			break
		}
		pev, ok := ev.(pointer.Event)
		if !ok {
			continue
		}
		p := scene.Point{X: float64(pev.Position.X), Y: float64(pev.Position.Y)}
		switch pev.Kind {
		case pointer.Press:
			secondary := pev.Buttons.Contain(pointer.ButtonSecondary) || pev.Buttons.Contain(pointer.ButtonTertiary)
			a.Editor.Press(ctx, p, secondary)
		case pointer.Drag:
			a.Editor.Drag(p)
		case pointer.Release, pointer.Cancel:
			a.Editor.Release(ctx, p)
		case pointer.Move:
			a.Editor.Move(p)
		case pointer.Scroll:
			a.Editor.Scroll(p, float64(pev.Scroll.Y))
		}
		changed = true
	}
	if changed {
		gtx.Execute(op.InvalidateCmd{})
	}

	area := clip.Rect{Max: size}.Push(gtx.Ops)
	a.painter.Paint(gtx, a.Session.Viewport, a.Session.ActiveGraph())
	event.Op(gtx.Ops, &a.canvasTag)
	area.Pop()

	return layout.Dimensions{Size: size}
}
