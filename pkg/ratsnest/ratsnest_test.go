package ratsnest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/catalog"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
)

func placed(id, kind string, board *circuit.Point, rotation float64) circuit.Component {
	return circuit.Component{
		ID:                id,
		Kind:              kind,
		SchematicPosition: &circuit.Point{},
		BoardPosition:     board,
		Rotation:          rotation,
		Pins:              []circuit.Pin{{ID: "1"}, {ID: "2"}},
	}
}

func conn(id, a, pa, b, pb string) circuit.Connection {
	return circuit.Connection{
		ID:   id,
		From: circuit.PinRef{ComponentID: a, PinID: pa},
		To:   circuit.PinRef{ComponentID: b, PinID: pb},
	}
}

func TestComputeRotatesPadOffsets(t *testing.T) {
	r := NewRenderer(catalog.NewBuiltinCatalog())
	comps := map[string]circuit.Component{
		"r1": placed("r1", "resistor", &circuit.Point{X: 10, Y: 10}, 90),
		"r2": placed("r2", "resistor", &circuit.Point{X: 20, Y: 10}, 0),
	}
	lines := r.Compute([]circuit.Connection{conn("c1", "r1", "1", "r2", "2")}, comps, circuit.ViewBoard)
	require.Len(t, lines, 1)
	assert.Equal(t, "c1", lines[0].ConnectionID)
	assert.InDelta(t, 10, lines[0].From.X, 1e-9)
	assert.InDelta(t, 9.0875, lines[0].From.Y, 1e-9)
	assert.InDelta(t, 20.9125, lines[0].To.X, 1e-9)
	assert.InDelta(t, 10, lines[0].To.Y, 1e-9)
}

func TestComputeNeedsBothBoardPlacements(t *testing.T) {
	r := NewRenderer(catalog.NewBuiltinCatalog())
	comps := map[string]circuit.Component{
		"r1": placed("r1", "resistor", &circuit.Point{}, 0),
		"r2": placed("r2", "resistor", nil, 0),
	}
	conns := []circuit.Connection{conn("c1", "r1", "1", "r2", "2")}
	assert.Empty(t, r.Compute(conns, comps, circuit.ViewBoard))

	comps["r2"] = placed("r2", "resistor", &circuit.Point{X: 5}, 0)
	assert.Len(t, r.Compute(conns, comps, circuit.ViewBoard), 1)
	assert.Empty(t, r.Compute(conns, comps, circuit.ViewSchematic), "schematic shows wires, not ratsnest")
}

func TestRenderSkipsMissingFootprintOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cat := catalog.NewMemoryCatalog(catalog.Definition{
		ID:   "mystery",
		Pins: []catalog.PinDef{{ID: "1"}, {ID: "2"}},
	})
	r := NewRenderer(cat, WithLogger(zap.New(core)))

	comps := map[string]circuit.Component{
		"a": placed("a", "mystery", &circuit.Point{}, 0),
		"b": placed("b", "mystery", &circuit.Point{X: 5}, 0),
	}
	conns := []circuit.Connection{conn("c1", "a", "1", "b", "2")}
	g := scene.NewMemoryGraph()
	for i := 0; i < 3; i++ {
		lines, err := r.Render(g, conns, comps, circuit.ViewBoard)
		require.NoError(t, err)
		assert.Empty(t, lines)
	}
	assert.Zero(t, g.Len())

	skips := logs.FilterMessage("footprint data missing, ratsnest line skipped").All()
	require.Len(t, skips, 1)
	assert.Equal(t, "c1", skips[0].ContextMap()["connection"])
}

func TestRenderReplacesPreviousLines(t *testing.T) {
	r := NewRenderer(catalog.NewBuiltinCatalog())
	g := scene.NewMemoryGraph()
	require.NoError(t, g.Add(scene.Node{ID: "keep", Data: scene.LabelData{Text: "x"}}))

	comps := map[string]circuit.Component{
		"r1": placed("r1", "resistor", &circuit.Point{}, 0),
		"r2": placed("r2", "resistor", &circuit.Point{X: 5}, 0),
	}
	conns := []circuit.Connection{conn("c1", "r1", "2", "r2", "1"), conn("c2", "r1", "1", "r2", "2")}
	_, err := r.Render(g, conns, comps, circuit.ViewBoard)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())

	_, err = r.Render(g, conns[:1], comps, circuit.ViewBoard)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
	n, ok := g.Node(NodeID("c1"))
	require.True(t, ok)
	assert.False(t, n.Interactive)
	assert.Equal(t, scene.RoleRatsnest, n.Role())
	_, ok = g.Node("keep")
	assert.True(t, ok)
}
