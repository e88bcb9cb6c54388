package wiretool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/canvas"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/catalog"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/command"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/store"
)

type fixture struct {
	model *circuit.Model
	exec  *command.Executor
	graph *scene.MemoryGraph
	tool  *Tool
	r1    circuit.Component
	r2    circuit.Component

	// Screen points over R1.2 (one pixel off, inside the tolerance) and R2.1.
	atR1Pin2 scene.Point
	atR2Pin1 scene.Point
}

// newFixture places R1 at the origin and R2 at (10,0) on an 800x600 view at
// 10 px/mm, so R1.2 is at screen (400,338.1) and R2.1 at (500,261.9).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.New(store.DefaultConfig())
	_, err := st.Init(nil)
	require.NoError(t, err)
	cat := catalog.NewBuiltinCatalog()
	m := circuit.NewModel(cat, circuit.WithStore(st), circuit.WithIDGenerator(circuit.SequentialIDs("id")))
	require.NoError(t, m.Init())
	exec := command.NewExecutor(command.DefaultConfig())
	require.NoError(t, circuit.RegisterCommands(exec, m))

	g := scene.NewMemoryGraph()
	vp := scene.NewViewport(800, 600)
	tool := New(DefaultConfig(), g, vp, exec)
	sync := canvas.NewSynchronizer(canvas.SyncConfig{Model: m, Store: st, Catalog: cat, Schematic: g})
	sync.OnProjected(func(circuit.View, scene.Graph) { tool.Reapply() })
	require.NoError(t, sync.Init(ctx))
	t.Cleanup(sync.Dispose)

	r1, err := m.AddComponent(ctx, "resistor", circuit.Point{})
	require.NoError(t, err)
	r2, err := m.AddComponent(ctx, "resistor", circuit.Point{X: 10})
	require.NoError(t, err)

	screenOf := func(c circuit.Component, pin string) scene.Point {
		t.Helper()
		w, err := canvas.PinPosition(g, circuit.PinRef{ComponentID: c.ID, PinID: pin})
		require.NoError(t, err)
		return vp.WorldToScreen(w)
	}
	f := &fixture{model: m, exec: exec, graph: g, tool: tool, r1: r1, r2: r2}
	f.atR1Pin2 = screenOf(r1, "2")
	f.atR1Pin2.X++
	f.atR2Pin1 = screenOf(r2, "1")
	return f
}

var nowhere = scene.Point{X: 700, Y: 50}

func TestFixtureScreenGeometry(t *testing.T) {
	f := newFixture(t)
	assert.InDelta(t, 401, f.atR1Pin2.X, 1e-9)
	assert.InDelta(t, 338.1, f.atR1Pin2.Y, 1e-9)
	assert.InDelta(t, 500, f.atR2Pin1.X, 1e-9)
	assert.InDelta(t, 261.9, f.atR2Pin1.Y, 1e-9)
}

func (f *fixture) selectable(t *testing.T, id string) bool {
	t.Helper()
	n, ok := f.graph.Node(id)
	require.True(t, ok, id)
	return n.Selectable
}

func TestWireScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.Equal(t, Idle, f.tool.State())

	f.tool.Toggle()
	assert.Equal(t, ArmedNoStart, f.tool.State())
	assert.False(t, f.selectable(t, canvas.ComponentNodeID(f.r1.ID)))
	assert.True(t, f.selectable(t, canvas.PinNodeID(f.r1.ID, "2")))

	conn, err := f.tool.PointerDown(ctx, nowhere)
	require.NoError(t, err)
	assert.Nil(t, conn)
	assert.Equal(t, ArmedNoStart, f.tool.State())

	_, err = f.tool.PointerDown(ctx, f.atR1Pin2)
	require.NoError(t, err)
	assert.Equal(t, Drawing, f.tool.State())
	line, ok := f.graph.Node(ProvisionalNodeID)
	require.True(t, ok)
	assert.InDelta(t, 3.81, line.Shapes[0].Points[0].Y, 1e-9)
	p, ok := line.Provisional()
	require.True(t, ok)
	assert.Equal(t, scene.Endpoint{ComponentID: f.r1.ID, PinID: "2"}, p.Start)

	rev := f.model.Revision()
	f.tool.PointerMove(scene.Point{X: 450, Y: 300})
	line, _ = f.graph.Node(ProvisionalNodeID)
	assert.Equal(t, scene.Point{X: 5, Y: 0}, line.Shapes[0].Points[1])
	assert.Equal(t, rev, f.model.Revision(), "moving never mutates the model")

	for _, at := range []scene.Point{f.atR1Pin2, nowhere} {
		conn, err = f.tool.PointerDown(ctx, at)
		require.NoError(t, err)
		assert.Nil(t, conn)
		assert.Equal(t, Drawing, f.tool.State())
	}

	conn, err = f.tool.PointerDown(ctx, f.atR2Pin1)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, circuit.PinRef{ComponentID: f.r1.ID, PinID: "2"}, conn.From)
	assert.Equal(t, circuit.PinRef{ComponentID: f.r2.ID, PinID: "1"}, conn.To)
	assert.Equal(t, ArmedNoStart, f.tool.State())
	_, ok = f.graph.Node(ProvisionalNodeID)
	assert.False(t, ok)
	_, ok = f.graph.Node(canvas.WireNodeID(conn.ID))
	assert.True(t, ok)
	assert.False(t, f.selectable(t, canvas.ComponentNodeID(f.r1.ID)), "rebuilt nodes stay unselectable while armed")

	// The reverse wire duplicates the first and is rejected.
	_, err = f.tool.PointerDown(ctx, f.atR2Pin1)
	require.NoError(t, err)
	conn, err = f.tool.PointerDown(ctx, f.atR1Pin2)
	assert.ErrorIs(t, err, circuit.ErrDuplicateConnection)
	assert.Nil(t, conn)
	assert.Equal(t, ArmedNoStart, f.tool.State())
	_, ok = f.graph.Node(ProvisionalNodeID)
	assert.False(t, ok)
	assert.Len(t, f.model.Connections(), 1)

	require.NoError(t, f.exec.Undo(ctx))
	assert.Empty(t, f.model.Connections())

	f.tool.Toggle()
	assert.Equal(t, Idle, f.tool.State())
	assert.True(t, f.selectable(t, canvas.ComponentNodeID(f.r1.ID)))
	assert.True(t, f.selectable(t, canvas.LabelNodeID(f.r2.ID)))
}

func TestCancelDiscardsLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tool.Toggle()
	_, err := f.tool.PointerDown(ctx, f.atR1Pin2)
	require.NoError(t, err)
	require.Equal(t, Drawing, f.tool.State())

	f.tool.Cancel()
	assert.Equal(t, Idle, f.tool.State())
	_, ok := f.graph.Node(ProvisionalNodeID)
	assert.False(t, ok)
	assert.True(t, f.selectable(t, canvas.ComponentNodeID(f.r2.ID)))
	assert.Empty(t, f.model.Connections())
}

func TestIdleIgnoresPointer(t *testing.T) {
	f := newFixture(t)
	conn, err := f.tool.PointerDown(context.Background(), f.atR1Pin2)
	require.NoError(t, err)
	assert.Nil(t, conn)
	f.tool.PointerMove(f.atR2Pin1)
	assert.Equal(t, Idle, f.tool.State())
	_, ok := f.graph.Node(ProvisionalNodeID)
	assert.False(t, ok)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "armed", ArmedNoStart.String())
	assert.Equal(t, "drawing", Drawing.String())
}
