package circuit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/catalog"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/command"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/store"
)

func newTestModel(t *testing.T, opts ...Option) *Model {
	t.Helper()
	opts = append([]Option{WithIDGenerator(SequentialIDs("id"))}, opts...)
	return NewModel(catalog.NewBuiltinCatalog(), opts...)
}

func addResistor(t *testing.T, m *Model, x float64) Component {
	t.Helper()
	c, err := m.AddComponent(context.Background(), "resistor", Point{X: x})
	require.NoError(t, err)
	return c
}

func ref(c Component, pin string) PinRef {
	return PinRef{ComponentID: c.ID, PinID: pin}
}

func TestAddComponentCopiesPins(t *testing.T) {
	m := newTestModel(t)
	r1 := addResistor(t, m, 0)
	r2 := addResistor(t, m, 10)

	assert.Equal(t, "R1", r1.DisplayName)
	assert.Equal(t, "R2", r2.DisplayName)
	assert.Equal(t, []Pin{
		{ID: "1", Label: "~", Role: catalog.RolePassive},
		{ID: "2", Label: "~", Role: catalog.RolePassive},
	}, r1.Pins)
	assert.Equal(t, "10k", r1.Properties["value"])
	assert.Nil(t, r1.BoardPosition)
	assert.Equal(t, uint64(2), m.Revision())

	found, ok := m.FindByName("r2")
	require.True(t, ok)
	assert.Equal(t, r2.ID, found.ID)
	assert.Empty(t, m.Validate())
}

func TestAddComponentUnknownKind(t *testing.T) {
	m := newTestModel(t)
	_, err := m.AddComponent(context.Background(), "flux_capacitor", Point{})
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Zero(t, m.Revision())
}

func TestAddConnectionRejections(t *testing.T) {
	m := newTestModel(t)
	r1 := addResistor(t, m, 0)
	r2 := addResistor(t, m, 10)

	_, err := m.AddConnection(ref(r1, "2"), ref(r2, "1"))
	require.NoError(t, err)

	tests := []struct {
		name     string
		from, to PinRef
		want     error
	}{
		{"same order", ref(r1, "2"), ref(r2, "1"), ErrDuplicateConnection},
		{"reversed", ref(r2, "1"), ref(r1, "2"), ErrDuplicateConnection},
		{"unknown pin", ref(r1, "7"), ref(r2, "2"), ErrUnknownPin},
		{"unknown component", PinRef{ComponentID: "nope", PinID: "1"}, ref(r2, "2"), ErrUnknownComponent},
		{"self", ref(r1, "1"), ref(r1, "1"), ErrSelfConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AddConnection(tt.from, tt.to)
			assert.ErrorIs(t, err, tt.want)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
	assert.Len(t, m.Connections(), 1)
	assert.Empty(t, m.Validate())
}

func TestRemoveComponentCascades(t *testing.T) {
	m := newTestModel(t)
	r1 := addResistor(t, m, 0)
	r2 := addResistor(t, m, 10)
	r3 := addResistor(t, m, 20)

	a, err := m.AddConnection(ref(r1, "2"), ref(r2, "1"))
	require.NoError(t, err)
	b, err := m.AddConnection(ref(r2, "2"), ref(r3, "1"))
	require.NoError(t, err)
	c, err := m.AddConnection(ref(r1, "1"), ref(r3, "2"))
	require.NoError(t, err)

	removal, err := m.RemoveComponent(r2.ID)
	require.NoError(t, err)
	assert.Equal(t, []IndexedConnection{{Index: 0, Connection: a}, {Index: 1, Connection: b}}, removal.Connections)
	assert.Equal(t, []Connection{c}, m.Connections())
	assert.Empty(t, m.Validate())

	require.NoError(t, m.RestoreComponent(removal))
	assert.Equal(t, []Connection{a, b, c}, m.Connections())
	got, ok := m.Component(r2.ID)
	require.True(t, ok)
	assert.Equal(t, r2, got)
	assert.Empty(t, m.Validate())

	_, err = m.RemoveComponent("missing")
	assert.ErrorIs(t, err, ErrUnknownComponent)
}

func TestSetComponentKeepsPins(t *testing.T) {
	m := newTestModel(t)
	r1 := addResistor(t, m, 0)

	changed := r1
	changed.Pins = changed.Pins[:1]
	assert.ErrorIs(t, m.SetComponent(changed), ErrPinSetImmutable)

	name := "RLOAD"
	rot := -90.0
	prev, err := m.UpdateComponent(r1.ID, Patch{
		DisplayName:   &name,
		Rotation:      &rot,
		BoardPosition: &Point{X: 3, Y: 4},
		Properties:    map[string]string{"value": "", "tolerance": "1%"},
	})
	require.NoError(t, err)
	assert.Equal(t, r1, prev)

	got, _ := m.Component(r1.ID)
	assert.Equal(t, "RLOAD", got.DisplayName)
	assert.Equal(t, 270.0, got.Rotation)
	assert.Equal(t, &Point{X: 3, Y: 4}, got.BoardPosition)
	assert.Equal(t, map[string]string{"tolerance": "1%"}, got.Properties)
}

func TestEveryMutationPublishesOnce(t *testing.T) {
	st := store.New(store.DefaultConfig())
	_, err := st.Init(nil)
	require.NoError(t, err)
	m := newTestModel(t, WithStore(st))
	require.NoError(t, m.Init())
	defer m.Dispose()

	r1 := addResistor(t, m, 0)
	r2 := addResistor(t, m, 10)
	_, err = m.AddConnection(ref(r1, "1"), ref(r2, "1"))
	require.NoError(t, err)
	_, err = m.AddConnection(ref(r1, "2"), ref(r2, "2"))
	require.NoError(t, err)

	var changes []store.Change
	unsub, err := st.Subscribe(StorePath, func(c store.Change) error {
		changes = append(changes, c)
		return nil
	}, store.SubscribeOptions{})
	require.NoError(t, err)
	defer unsub()

	_, err = m.RemoveComponent(r1.ID)
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, "circuit.removeComponent", changes[0].Source)
	value := changes[0].Value.(map[string]any)
	assert.Len(t, value["components"], 1)
	assert.Empty(t, value["connections"])
	assert.Equal(t, m.Revision(), value["revision"])
}

func TestModelFollowsSnapshotRestore(t *testing.T) {
	st := store.New(store.DefaultConfig())
	_, err := st.Init(nil)
	require.NoError(t, err)
	m := newTestModel(t, WithStore(st))
	require.NoError(t, m.Init())
	defer m.Dispose()

	r1 := addResistor(t, m, 0)
	snap, err := st.CreateSnapshot("one resistor")
	require.NoError(t, err)
	want := m.State()

	r2 := addResistor(t, m, 10)
	_, err = m.AddConnection(ref(r1, "1"), ref(r2, "2"))
	require.NoError(t, err)

	require.NoError(t, st.RestoreSnapshot(snap))
	assert.Equal(t, want, m.State())

	// Generated ids stay unique after going back in time.
	r3 := addResistor(t, m, 20)
	assert.NotEqual(t, r2.ID, r3.ID)
}

func TestCommandsUndoRedoSymmetry(t *testing.T) {
	ctx := context.Background()
	m := newTestModel(t)
	exec := command.NewExecutor(command.DefaultConfig())
	require.NoError(t, RegisterCommands(exec, m))

	type step struct {
		id     string
		params command.Params
	}
	res, err := exec.Execute(ctx, CmdAddComponent, command.Params{"kind": "resistor", "x": 0.0, "y": 0.0})
	require.NoError(t, err)
	r1 := res.(Component)
	res, err = exec.Execute(ctx, CmdAddComponent, command.Params{"kind": "led", "x": 10.0, "y": 0.0, "boardX": 5.0, "boardY": 5.0})
	require.NoError(t, err)
	d1 := res.(Component)

	steps := []step{
		{CmdAddConnection, command.Params{"fromComponent": r1.ID, "fromPin": "2", "toComponent": d1.ID, "toPin": "2"}},
		{CmdMoveComponent, command.Params{"id": r1.ID, "x": 2.54, "y": 5.08}},
		{CmdMoveComponent, command.Params{"id": d1.ID, "x": 1.0, "y": 1.0, "view": "board"}},
		{CmdRotateComponent, command.Params{"id": d1.ID}},
		{CmdUpdateComponent, command.Params{"id": r1.ID, "name": "RLIM", "properties": map[string]string{"value": "330"}}},
		{CmdRemoveComponent, command.Params{"id": d1.ID}},
	}

	for _, s := range steps {
		before := m.State()
		_, err := exec.Execute(ctx, s.id, s.params)
		require.NoError(t, err, s.id)
		after := m.State()
		assert.Empty(t, m.Validate(), s.id)

		require.NoError(t, exec.Undo(ctx), s.id)
		assert.Equal(t, before.Components, m.State().Components, "undo %s", s.id)
		assert.Equal(t, before.Connections, m.State().Connections, "undo %s", s.id)

		require.NoError(t, exec.Redo(ctx), s.id)
		assert.Equal(t, after.Components, m.State().Components, "redo %s", s.id)
		assert.Equal(t, after.Connections, m.State().Connections, "redo %s", s.id)
	}

	// Undo everything, then redo everything: ids are reproduced.
	final := m.State()
	for exec.CanUndo() {
		require.NoError(t, exec.Undo(ctx))
	}
	assert.Empty(t, m.State().Components)
	for exec.CanRedo() {
		require.NoError(t, exec.Redo(ctx))
	}
	assert.Equal(t, final.Components, m.State().Components)
	assert.Equal(t, final.Connections, m.State().Connections)
}

func TestRemoveConnectionCommandRestoresOrder(t *testing.T) {
	ctx := context.Background()
	m := newTestModel(t)
	exec := command.NewExecutor(command.DefaultConfig())
	require.NoError(t, RegisterCommands(exec, m))

	r1 := addResistor(t, m, 0)
	r2 := addResistor(t, m, 10)
	a, _ := m.AddConnection(ref(r1, "1"), ref(r2, "1"))
	b, _ := m.AddConnection(ref(r1, "2"), ref(r2, "2"))

	_, err := exec.Execute(ctx, CmdRemoveConnection, command.Params{"id": a.ID})
	require.NoError(t, err)
	assert.Equal(t, []Connection{b}, m.Connections())

	require.NoError(t, exec.Undo(ctx))
	assert.Equal(t, []Connection{a, b}, m.Connections())

	_, err = exec.Execute(ctx, CmdAssignNet, command.Params{"id": b.ID, "net": "GND"})
	require.NoError(t, err)
	assert.Equal(t, "GND", m.Connections()[1].NetID)
	require.NoError(t, exec.Undo(ctx))
	assert.Empty(t, m.Connections()[1].NetID)
}

func TestRemoveComponentCommandNotExecutable(t *testing.T) {
	m := newTestModel(t)
	exec := command.NewExecutor(command.DefaultConfig())
	require.NoError(t, RegisterCommands(exec, m))

	_, err := exec.Execute(context.Background(), CmdRemoveComponent, command.Params{"id": "ghost"})
	var notExec *command.NotExecutableError
	assert.ErrorAs(t, err, &notExec)
	assert.False(t, exec.CanUndo())
}

func TestNets(t *testing.T) {
	m := newTestModel(t)
	r1 := addResistor(t, m, 0)
	r2 := addResistor(t, m, 10)
	r3 := addResistor(t, m, 20)

	_, err := m.AddConnection(ref(r1, "2"), ref(r2, "1"))
	require.NoError(t, err)
	_, err = m.AddConnection(ref(r3, "1"), ref(r2, "2"), WithNet("OUT"))
	require.NoError(t, err)

	nets := m.Nets()
	require.Len(t, nets, 2)
	assert.Equal(t, "N$1", nets[0].Name)
	assert.Equal(t, []PinRef{ref(r1, "2"), ref(r2, "1")}, nets[0].Pins)
	assert.Equal(t, "OUT", nets[1].Name)
	assert.Equal(t, []PinRef{ref(r2, "2"), ref(r3, "1")}, nets[1].Pins)
	assert.False(t, m.DetectCycles())
}

func TestDetectCycles(t *testing.T) {
	m := newTestModel(t)
	r1 := addResistor(t, m, 0)
	r2 := addResistor(t, m, 10)
	r3 := addResistor(t, m, 20)

	_, err := m.AddConnection(ref(r1, "1"), ref(r2, "1"))
	require.NoError(t, err)
	_, err = m.AddConnection(ref(r2, "1"), ref(r3, "1"))
	require.NoError(t, err)
	assert.False(t, m.DetectCycles())

	_, err = m.AddConnection(ref(r3, "1"), ref(r1, "1"))
	require.NoError(t, err)
	assert.True(t, m.DetectCycles())
	assert.Len(t, m.Nets(), 1)
}

func TestDetectCyclesThroughComponents(t *testing.T) {
	tests := []struct {
		name  string
		pairs [][2]PinRef
		want  bool
	}{
		{"parallel parts", [][2]PinRef{
			{{"id1", "1"}, {"id2", "1"}},
			{{"id1", "2"}, {"id2", "2"}},
		}, true},
		{"series chain", [][2]PinRef{
			{{"id1", "2"}, {"id2", "1"}},
			{{"id2", "2"}, {"id3", "1"}},
		}, false},
		{"shorted part", [][2]PinRef{
			{{"id1", "1"}, {"id1", "2"}},
		}, true},
		{"loop over three parts", [][2]PinRef{
			{{"id1", "2"}, {"id2", "1"}},
			{{"id2", "2"}, {"id3", "1"}},
			{{"id3", "2"}, {"id1", "1"}},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(t)
			for i := 0; i < 3; i++ {
				addResistor(t, m, float64(i)*10)
			}
			for _, p := range tt.pairs {
				_, err := m.AddConnection(p[0], p[1])
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, m.DetectCycles())
			assert.Empty(t, m.Validate())
		})
	}
}

func TestRemovedIDsAreNeverReissued(t *testing.T) {
	ctx := context.Background()
	m := newTestModel(t)

	_, err := m.AddComponent(ctx, "resistor", Point{}, WithID("X"))
	require.NoError(t, err)
	_, err = m.RemoveComponent("X")
	require.NoError(t, err)

	_, err = m.AddComponent(ctx, "led", Point{}, WithID("X"))
	assert.ErrorIs(t, err, ErrDuplicateComponent)
	_, err = m.AddComponent(ctx, "resistor", Point{}, WithID("X"))
	assert.ErrorIs(t, err, ErrDuplicateComponent)
	assert.ErrorIs(t, m.InsertComponent(Component{ID: "X", Kind: "led"}), ErrDuplicateComponent)
	_, err = m.ReviveComponent(ctx, "led", Point{}, WithID("X"))
	assert.ErrorIs(t, err, ErrDuplicateComponent)
	assert.Empty(t, m.Components())

	c, err := m.ReviveComponent(ctx, "resistor", Point{X: 5}, WithID("X"))
	require.NoError(t, err)
	assert.Equal(t, "resistor", c.Kind)
	assert.Empty(t, m.Validate())

	// A new document forgets the ids of the old one.
	_, err = m.RemoveComponent("X")
	require.NoError(t, err)
	require.NoError(t, m.Clear())
	_, err = m.AddComponent(ctx, "led", Point{}, WithID("X"))
	assert.NoError(t, err)
}

func TestUndonePlacementKeepsItsID(t *testing.T) {
	ctx := context.Background()
	m := newTestModel(t)
	exec := command.NewExecutor(command.DefaultConfig())
	require.NoError(t, RegisterCommands(exec, m))

	_, err := exec.Execute(ctx, CmdAddComponent, command.Params{"kind": "resistor", "id": "X", "x": 0.0, "y": 0.0})
	require.NoError(t, err)
	require.NoError(t, exec.Undo(ctx))

	_, err = exec.Execute(ctx, CmdAddComponent, command.Params{"kind": "led", "id": "X", "x": 0.0, "y": 0.0})
	require.ErrorIs(t, err, ErrDuplicateComponent)
	require.True(t, exec.CanRedo())

	require.NoError(t, exec.Redo(ctx))
	c, ok := m.Component("X")
	require.True(t, ok)
	assert.Equal(t, "resistor", c.Kind)
}

func TestReplaceRejectsInvalidState(t *testing.T) {
	m := newTestModel(t)
	r1 := addResistor(t, m, 0)

	bad := m.State()
	bad.Connections = append(bad.Connections, Connection{
		ID:   "dangling",
		From: ref(r1, "1"),
		To:   PinRef{ComponentID: "gone", PinID: "1"},
	})
	assert.ErrorIs(t, m.Replace(bad), ErrUnknownComponent)
	assert.Empty(t, m.Connections())

	require.NoError(t, m.Clear())
	assert.Empty(t, m.Components())
}
