package ui

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/session"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/canvas"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/command"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/wiretool"
)

const zoomStep = 1.1

// Editor turns canvas gestures and shortcuts into session operations. It
// holds no Gio state, so the window only translates events into calls.
type Editor struct {
	sess   *session.Session
	state  *AppState
	logger *zap.Logger

	panning bool
	last    scene.Point

	// component drag in select mode
	dragID     string
	dragOrigin scene.Point
	dragStart  scene.Point
	dragMoved  bool
}

func NewEditor(sess *session.Session, state *AppState) *Editor {
	state.SetView(sess.View())
	return &Editor{sess: sess, state: state, logger: sess.Logger.Named("ui")}
}

// Press handles a pointer press at screen position p. Secondary presses
// always pan.
func (e *Editor) Press(ctx context.Context, p scene.Point, secondary bool) {
	e.last = p
	if secondary {
		e.panning = true
		return
	}

	mode, kind := e.state.Mode()
	switch mode {
	case ModeWire:
		conn, err := e.sess.WireTool.PointerDown(ctx, p)
		if err != nil {
			e.state.SetError(err)
			return
		}
		if conn != nil {
			e.state.SetError(nil)
			e.state.SetStatus(fmt.Sprintf("Connected %s", e.describe(conn.From, conn.To)))
		}
	case ModePlace:
		e.place(ctx, kind, e.sess.Viewport.ScreenToWorld(p))
	default:
		id, origin, ok := e.componentAt(p)
		if !ok {
			e.state.Select("")
			e.panning = true
			return
		}
		e.state.Select(id)
		e.dragID = id
		e.dragOrigin = origin
		e.dragStart = e.sess.Viewport.ScreenToWorld(p)
		e.dragMoved = false
	}
}

// Drag handles pointer motion with a button held.
func (e *Editor) Drag(p scene.Point) {
	defer func() { e.last = p }()
	if e.panning {
		e.sess.Viewport.Pan(p.X-e.last.X, p.Y-e.last.Y)
		return
	}
	if e.dragID != "" {
		delta := e.sess.Viewport.ScreenToWorld(p).Sub(e.dragStart)
		// Preview only; the model is updated on release.
		if err := e.sess.ActiveGraph().SetPosition(canvas.ComponentNodeID(e.dragID), e.dragOrigin.Add(delta)); err == nil {
			e.dragMoved = true
		}
		return
	}
	e.sess.WireTool.PointerMove(p)
}

// Release ends a pan or commits a component drag as one move command.
func (e *Editor) Release(ctx context.Context, p scene.Point) {
	defer func() {
		e.panning = false
		e.dragID = ""
		e.dragMoved = false
	}()
	if e.dragID == "" || !e.dragMoved {
		return
	}
	to := e.dragOrigin.Add(e.sess.Viewport.ScreenToWorld(p).Sub(e.dragStart))
	_, err := e.sess.Executor.Execute(ctx, circuit.CmdMoveComponent, command.Params{
		"id":   e.dragID,
		"x":    to.X,
		"y":    to.Y,
		"view": string(e.sess.View()),
	})
	if err != nil {
		e.state.SetError(err)
	}
}

// Move handles pointer motion without a button held.
func (e *Editor) Move(p scene.Point) {
	e.last = p
	e.sess.WireTool.PointerMove(p)
}

// Scroll zooms around p; negative dy zooms in.
func (e *Editor) Scroll(p scene.Point, dy float64) {
	if dy == 0 {
		return
	}
	e.sess.Viewport.ZoomAt(p, math.Pow(zoomStep, -dy/math.Abs(dy)))
}

// Key handles a key press. shortcut reports the platform shortcut modifier.
// It returns false for keys it does not bind.
func (e *Editor) Key(ctx context.Context, name string, shortcut bool) bool {
	if shortcut {
		switch name {
		case "Z":
			e.Undo(ctx)
		case "Y":
			e.Redo(ctx)
		case "S":
			e.Save(ctx)
		default:
			return false
		}
		return true
	}
	switch name {
	case "⎋", "Escape":
		e.Cancel()
	case "W":
		e.ToggleWire()
	case "V":
		if e.sess.View() == circuit.ViewBoard {
			e.SetView(circuit.ViewSchematic)
		} else {
			e.SetView(circuit.ViewBoard)
		}
	case "R":
		e.RotateSelected(ctx)
	case "⌦", "⌫", "Delete":
		e.DeleteSelected(ctx)
	case "F":
		e.Fit()
	case "+", "=":
		e.zoomCenter(zoomStep)
	case "-":
		e.zoomCenter(1 / zoomStep)
	default:
		return false
	}
	return true
}

// Cancel drops the wire in progress and any pending placement.
func (e *Editor) Cancel() {
	if e.sess.WireTool.State() != wiretool.Idle {
		e.sess.WireTool.Cancel()
	}
	e.state.SetMode(ModeSelect, "")
	e.state.SetStatus("Idle")
}

// ToggleWire arms or disarms the wire tool. Wires are drawn on the
// schematic only.
func (e *Editor) ToggleWire() {
	if e.sess.View() != circuit.ViewSchematic {
		e.state.SetStatus("Switch to the schematic to draw wires")
		return
	}
	e.sess.WireTool.Toggle()
	if e.sess.WireTool.State() == wiretool.Idle {
		e.state.SetMode(ModeSelect, "")
		e.state.SetStatus("Idle")
		return
	}
	e.state.SetMode(ModeWire, "")
	e.state.SetStatus("Wire: click a pin to start")
}

// BeginPlace arms placement of one component of the given catalog kind.
func (e *Editor) BeginPlace(kind string) {
	if e.sess.WireTool.State() != wiretool.Idle {
		e.sess.WireTool.Cancel()
	}
	e.state.SetMode(ModePlace, kind)
	e.state.SetStatus("Place " + kind + ": click on the canvas")
}

func (e *Editor) SetView(v circuit.View) {
	e.sess.SetView(v)
	e.state.SetView(v)
	if mode, _ := e.state.Mode(); mode == ModeWire && v != circuit.ViewSchematic {
		e.state.SetMode(ModeSelect, "")
	}
}

func (e *Editor) Undo(ctx context.Context) {
	if !e.sess.Executor.CanUndo() {
		return
	}
	e.report(e.sess.Executor.Undo(ctx), "Undone")
}

func (e *Editor) Redo(ctx context.Context) {
	if !e.sess.Executor.CanRedo() {
		return
	}
	e.report(e.sess.Executor.Redo(ctx), "Redone")
}

// Save writes the design now. Without a backend it only reports.
func (e *Editor) Save(ctx context.Context) {
	err := e.sess.Save(ctx)
	if errors.Is(err, session.ErrNoBackend) {
		e.state.SetStatus("No persistence backend configured")
		return
	}
	e.report(err, "Saved")
}

// Validate runs the consistency check and the loop detector and publishes
// the findings to the side panel.
func (e *Editor) Validate(ctx context.Context) {
	res, err := e.sess.Executor.Execute(ctx, circuit.CmdValidate, nil)
	if err != nil {
		e.state.SetError(err)
		return
	}
	var lines []string
	if violations, ok := res.([]*circuit.ValidationError); ok {
		for _, v := range violations {
			lines = append(lines, v.Error())
		}
	}
	if res, err := e.sess.Executor.Execute(ctx, circuit.CmdDetectCycles, nil); err == nil {
		if cyclic, _ := res.(bool); cyclic {
			lines = append(lines, "circuit: connections form a loop")
		}
	}
	e.state.SetViolations(lines)
	if len(lines) == 0 {
		e.state.SetStatus("Design is consistent")
		return
	}
	e.state.SetStatus(fmt.Sprintf("%d problem(s) found", len(lines)))
}

func (e *Editor) RotateSelected(ctx context.Context) {
	id := e.state.Selected()
	if id == "" {
		return
	}
	_, err := e.sess.Executor.Execute(ctx, circuit.CmdRotateComponent, command.Params{"id": id, "degrees": 90.0})
	e.report(err, "")
}

func (e *Editor) DeleteSelected(ctx context.Context) {
	id := e.state.Selected()
	if id == "" {
		return
	}
	_, err := e.sess.Executor.Execute(ctx, circuit.CmdRemoveComponent, command.Params{"id": id})
	if err == nil {
		e.state.Select("")
	}
	e.report(err, "Deleted")
}

// Fit zooms the viewport onto the active view's contents.
func (e *Editor) Fit() {
	if bounds, ok := scene.Bounds(e.sess.ActiveGraph()); ok {
		e.sess.Viewport.Fit(bounds)
	}
}

func (e *Editor) place(ctx context.Context, kind string, at scene.Point) {
	params := command.Params{"kind": kind, "x": at.X, "y": at.Y}
	if e.sess.View() == circuit.ViewBoard {
		params["boardX"] = at.X
		params["boardY"] = at.Y
	}
	res, err := e.sess.Executor.Execute(ctx, circuit.CmdAddComponent, params)
	e.state.SetMode(ModeSelect, "")
	if err != nil {
		e.state.SetError(err)
		return
	}
	if c, ok := res.(circuit.Component); ok {
		e.state.Select(c.ID)
		e.state.SetError(nil)
		e.state.SetStatus("Placed " + c.DisplayName)
	}
}

// componentAt returns the component under screen position p and its node
// position. Pins resolve to their component.
func (e *Editor) componentAt(p scene.Point) (string, scene.Point, bool) {
	g := e.sess.ActiveGraph()
	world := e.sess.Viewport.ScreenToWorld(p)
	tol := e.sess.Viewport.PixelsToWorld(e.sess.Config.WireTool.HitTolerancePx)
	for _, n := range g.HitTest(world, tol) {
		if !n.Selectable {
			continue
		}
		var id string
		if c, ok := n.Component(); ok {
			id = c.ComponentID
		} else if pin, ok := n.Pin(); ok {
			id = pin.ComponentID
		} else {
			continue
		}
		node, ok := g.Node(canvas.ComponentNodeID(id))
		if !ok {
			continue
		}
		return id, node.Position, true
	}
	return "", scene.Point{}, false
}

func (e *Editor) zoomCenter(factor float64) {
	v := e.sess.Viewport
	v.ZoomAt(scene.Point{X: float64(v.ScreenWidth) / 2, Y: float64(v.ScreenHeight) / 2}, factor)
}

func (e *Editor) describe(from, to circuit.PinRef) string {
	name := func(r circuit.PinRef) string {
		if c, ok := e.sess.Model.Component(r.ComponentID); ok {
			return c.DisplayName + "." + r.PinID
		}
		return r.String()
	}
	return name(from) + " to " + name(to)
}

func (e *Editor) report(err error, ok string) {
	if err != nil {
		e.logger.Warn("edit failed", zap.Error(err))
		e.state.SetError(err)
		return
	}
	e.state.SetError(nil)
	if ok != "" {
		e.state.SetStatus(ok)
	}
}
