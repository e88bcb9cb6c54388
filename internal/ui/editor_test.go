package ui

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/config"
	"github.com/OpenTraceLab/OpenTraceCircuit/internal/session"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/canvas"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/command"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/wiretool"
)

func newEditor(t *testing.T) (*Editor, *session.Session, *AppState) {
	t.Helper()
	ctx := context.Background()
	sess, err := session.New(ctx, config.Default())
	require.NoError(t, err)
	require.NoError(t, sess.Init(ctx))
	t.Cleanup(func() { _ = sess.Dispose(context.Background()) })
	state := NewState()
	return NewEditor(sess, state), sess, state
}

func addResistor(t *testing.T, sess *session.Session, id string, x float64) {
	t.Helper()
	_, err := sess.Executor.Execute(context.Background(), circuit.CmdAddComponent, command.Params{
		"kind": "resistor", "id": id, "x": x, "y": 0.0,
	})
	require.NoError(t, err)
}

// screenOf returns where a world point lands on screen.
func screenOf(sess *session.Session, x, y float64) scene.Point {
	return sess.Viewport.WorldToScreen(scene.Point{X: x, Y: y})
}

func pinScreen(t *testing.T, sess *session.Session, comp, pin string) scene.Point {
	t.Helper()
	p, err := canvas.PinPosition(sess.Schematic, circuit.PinRef{ComponentID: comp, PinID: pin})
	require.NoError(t, err)
	return sess.Viewport.WorldToScreen(p)
}

func TestEditorPlacesFromPalette(t *testing.T) {
	ed, sess, state := newEditor(t)
	ctx := context.Background()

	ed.BeginPlace("resistor")
	mode, kind := state.Mode()
	require.Equal(t, ModePlace, mode)
	require.Equal(t, "resistor", kind)

	ed.Press(ctx, screenOf(sess, 5, 5), false)
	ed.Release(ctx, screenOf(sess, 5, 5))

	comps := sess.Model.Components()
	require.Len(t, comps, 1)
	require.NotNil(t, comps[0].SchematicPosition)
	assert.InDelta(t, 5, comps[0].SchematicPosition.X, 1e-9)
	assert.InDelta(t, 5, comps[0].SchematicPosition.Y, 1e-9)
	assert.Nil(t, comps[0].BoardPosition)

	snap := state.Snapshot()
	assert.Equal(t, ModeSelect, snap.Mode, "placement places one part")
	assert.Equal(t, comps[0].ID, snap.Selected)
	assert.Equal(t, "Placed R1", snap.Status)
}

func TestEditorPlacesOnBoard(t *testing.T) {
	ed, sess, _ := newEditor(t)
	ctx := context.Background()
	ed.SetView(circuit.ViewBoard)
	ed.BeginPlace("resistor")
	ed.Press(ctx, screenOf(sess, 2, 3), false)

	comps := sess.Model.Components()
	require.Len(t, comps, 1)
	require.NotNil(t, comps[0].BoardPosition)
	assert.InDelta(t, 2, comps[0].BoardPosition.X, 1e-9)
	_, ok := sess.Board.Node(canvas.ComponentNodeID(comps[0].ID))
	assert.True(t, ok)
}

func TestEditorDragMovesComponent(t *testing.T) {
	ed, sess, state := newEditor(t)
	ctx := context.Background()
	addResistor(t, sess, "r1", 0)

	ed.Press(ctx, screenOf(sess, 0, 0), false)
	assert.Equal(t, "r1", state.Selected())

	ed.Drag(screenOf(sess, 2.5, 0))
	ed.Drag(screenOf(sess, 5, 0))
	c, _ := sess.Model.Component("r1")
	assert.InDelta(t, 0, c.SchematicPosition.X, 1e-9, "dragging only previews")

	ed.Release(ctx, screenOf(sess, 5, 0))
	c, _ = sess.Model.Component("r1")
	assert.InDelta(t, 5, c.SchematicPosition.X, 1e-9)

	n, ok := sess.Schematic.Node(canvas.ComponentNodeID("r1"))
	require.True(t, ok)
	assert.InDelta(t, 5, n.Position.X, 1e-9)

	ed.Undo(ctx)
	c, _ = sess.Model.Component("r1")
	assert.InDelta(t, 0, c.SchematicPosition.X, 1e-9)
}

func TestEditorClickWithoutDragDoesNotMove(t *testing.T) {
	ed, sess, _ := newEditor(t)
	ctx := context.Background()
	addResistor(t, sess, "r1", 0)

	ed.Press(ctx, screenOf(sess, 0, 0), false)
	ed.Release(ctx, screenOf(sess, 0, 0))
	assert.Len(t, sess.Executor.History(), 1, "only the placement is recorded")
}

func TestEditorDrawsWire(t *testing.T) {
	ed, sess, state := newEditor(t)
	ctx := context.Background()
	addResistor(t, sess, "r1", 0)
	addResistor(t, sess, "r2", 10)

	ed.ToggleWire()
	mode, _ := state.Mode()
	require.Equal(t, ModeWire, mode)

	ed.Press(ctx, pinScreen(t, sess, "r1", "2"), false)
	require.Equal(t, wiretool.Drawing, sess.WireTool.State())
	ed.Move(screenOf(sess, 7, 3))
	ed.Press(ctx, pinScreen(t, sess, "r2", "1"), false)

	conns := sess.Model.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, circuit.PinRef{ComponentID: "r1", PinID: "2"}, conns[0].From)
	assert.Equal(t, circuit.PinRef{ComponentID: "r2", PinID: "1"}, conns[0].To)
	assert.Equal(t, "Connected R1.2 to R2.1", state.Snapshot().Status)
	assert.Equal(t, wiretool.ArmedNoStart, sess.WireTool.State(), "the tool stays armed")

	assert.True(t, ed.Key(ctx, "⎋", false))
	assert.Equal(t, wiretool.Idle, sess.WireTool.State())
	mode, _ = state.Mode()
	assert.Equal(t, ModeSelect, mode)
}

func TestEditorRejectedWireSurfacesError(t *testing.T) {
	ed, sess, state := newEditor(t)
	ctx := context.Background()
	addResistor(t, sess, "r1", 0)
	addResistor(t, sess, "r2", 10)
	_, err := sess.Executor.Execute(ctx, circuit.CmdAddConnection, command.Params{
		"fromComponent": "r1", "fromPin": "2", "toComponent": "r2", "toPin": "1",
	})
	require.NoError(t, err)

	ed.ToggleWire()
	ed.Press(ctx, pinScreen(t, sess, "r2", "1"), false)
	ed.Press(ctx, pinScreen(t, sess, "r1", "2"), false)

	assert.Len(t, sess.Model.Connections(), 1)
	assert.Error(t, state.Snapshot().LastError)
}

func TestEditorWireNeedsSchematic(t *testing.T) {
	ed, sess, state := newEditor(t)
	ed.SetView(circuit.ViewBoard)
	ed.ToggleWire()
	assert.Equal(t, wiretool.Idle, sess.WireTool.State())
	assert.Contains(t, state.Snapshot().Status, "schematic")

	ed.SetView(circuit.ViewSchematic)
	ed.ToggleWire()
	require.Equal(t, wiretool.ArmedNoStart, sess.WireTool.State())
	ed.SetView(circuit.ViewBoard)
	assert.Equal(t, wiretool.Idle, sess.WireTool.State())
	mode, _ := state.Mode()
	assert.Equal(t, ModeSelect, mode)
}

func TestEditorPanAndZoom(t *testing.T) {
	ed, sess, _ := newEditor(t)
	ctx := context.Background()

	ed.Press(ctx, scene.Point{X: 100, Y: 100}, true)
	ed.Drag(scene.Point{X: 110, Y: 100})
	ed.Release(ctx, scene.Point{X: 110, Y: 100})
	assert.InDelta(t, -1, sess.Viewport.Center.X, 1e-9)

	anchor := scene.Point{X: 300, Y: 200}
	before := sess.Viewport.ScreenToWorld(anchor)
	ed.Scroll(anchor, -3)
	assert.InDelta(t, 11, sess.Viewport.Zoom, 1e-9)
	after := sess.Viewport.ScreenToWorld(anchor)
	assert.InDelta(t, before.X, after.X, 1e-9)
	assert.InDelta(t, before.Y, after.Y, 1e-9)

	ed.Scroll(anchor, 0)
	assert.InDelta(t, 11, sess.Viewport.Zoom, 1e-9)
}

func TestEditorEmptyClickPansAndClearsSelection(t *testing.T) {
	ed, sess, state := newEditor(t)
	ctx := context.Background()
	state.Select("ghost")

	ed.Press(ctx, screenOf(sess, 40, 40), false)
	assert.Empty(t, state.Selected())
	ed.Drag(screenOf(sess, 41, 40))
	assert.InDelta(t, -1, sess.Viewport.Center.X, 1e-9)
}

func TestEditorKeys(t *testing.T) {
	ed, sess, state := newEditor(t)
	ctx := context.Background()
	addResistor(t, sess, "r1", 0)
	state.Select("r1")

	assert.True(t, ed.Key(ctx, "R", false))
	c, _ := sess.Model.Component("r1")
	assert.Equal(t, 90.0, c.Rotation)

	assert.True(t, ed.Key(ctx, "Z", true))
	c, _ = sess.Model.Component("r1")
	assert.Equal(t, 0.0, c.Rotation)
	assert.True(t, ed.Key(ctx, "Y", true))
	c, _ = sess.Model.Component("r1")
	assert.Equal(t, 90.0, c.Rotation)

	assert.True(t, ed.Key(ctx, "⌦", false))
	_, ok := sess.Model.Component("r1")
	assert.False(t, ok)
	assert.Empty(t, state.Selected())

	assert.True(t, ed.Key(ctx, "V", false))
	assert.Equal(t, circuit.ViewBoard, sess.View())
	assert.Equal(t, circuit.ViewBoard, state.View())

	assert.False(t, ed.Key(ctx, "Q", false))
	assert.False(t, ed.Key(ctx, "Q", true))
}

func TestEditorValidate(t *testing.T) {
	ed, sess, state := newEditor(t)
	addResistor(t, sess, "r1", 0)
	state.SetViolations([]string{"stale"})

	ed.Validate(context.Background())
	snap := state.Snapshot()
	assert.Empty(t, snap.Violations)
	assert.Equal(t, "Design is consistent", snap.Status)
	assert.Len(t, sess.Executor.History(), 1, "checks are not recorded")
}

func TestEditorSaveWithoutBackend(t *testing.T) {
	ed, _, state := newEditor(t)
	ed.Save(context.Background())
	assert.Equal(t, "No persistence backend configured", state.Snapshot().Status)
	assert.Nil(t, state.Snapshot().LastError)
}
