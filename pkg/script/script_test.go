package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/catalog"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/command"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/store"
)

const divider = `
# voltage divider with an indicator
place resistor at 0,0 board 5,5 as R1
place resistor at 10,0 as R2
place led at 20,0 rotated 90
connect R1.2 R2.1
connect r2.2 D1.2 net OUT
set R1 value "4k7"
move R2 to 12.7,0
rotate D1 180
snapshot "wired"
validate
`

func TestParse(t *testing.T) {
	p, err := NewParser()
	require.NoError(t, err)
	s, err := p.ParseString("divider.otcs", divider)
	require.NoError(t, err)
	require.Len(t, s.Statements, 10)

	place := s.Statements[0].Place
	require.NotNil(t, place)
	assert.Equal(t, "resistor", place.Kind)
	assert.Equal(t, Coord{X: 0, Y: 0}, *place.At)
	assert.Equal(t, Coord{X: 5, Y: 5}, *place.Board)
	assert.Equal(t, "R1", place.Name)
	assert.Equal(t, 3, s.Statements[0].Pos.Line)

	require.NotNil(t, s.Statements[2].Place.Rotation)
	assert.Equal(t, 90.0, *s.Statements[2].Place.Rotation)

	conn := s.Statements[4].Connect
	require.NotNil(t, conn)
	assert.Equal(t, PinRef{Component: "r2", Pin: "2"}, *conn.From)
	assert.Equal(t, "OUT", conn.Net)

	assert.Equal(t, "4k7", s.Statements[5].Set.Value)
	assert.False(t, s.Statements[6].Move.Board)
	assert.Equal(t, "wired", s.Statements[8].Snapshot.Label)
	assert.True(t, s.Statements[9].Validate)
}

func TestParseErrors(t *testing.T) {
	p, err := NewParser()
	require.NoError(t, err)
	for _, src := range []string{
		"place resistor 0,0",
		"connect R1 R2",
		"rotate",
		"frobnicate R1",
	} {
		_, err := p.ParseString("", src)
		assert.Error(t, err, src)
	}
}

type session struct {
	store *store.Store
	model *circuit.Model
	exec  *command.Executor
	run   *Runner
	parse *Parser
}

func newSession(t *testing.T) *session {
	t.Helper()
	st := store.New(store.DefaultConfig())
	_, err := st.Init(nil)
	require.NoError(t, err)
	m := circuit.NewModel(catalog.NewBuiltinCatalog(), circuit.WithStore(st), circuit.WithIDGenerator(circuit.SequentialIDs("id")))
	require.NoError(t, m.Init())
	exec := command.NewExecutor(command.DefaultConfig())
	require.NoError(t, circuit.RegisterCommands(exec, m))
	p, err := NewParser()
	require.NoError(t, err)
	return &session{
		store: st,
		model: m,
		exec:  exec,
		run:   NewRunner(RunnerConfig{Executor: exec, Model: m, Store: st}),
		parse: p,
	}
}

func (s *session) runScript(t *testing.T, src string) (*Report, error) {
	t.Helper()
	sc, err := s.parse.ParseString("test.otcs", src)
	require.NoError(t, err)
	return s.run.Run(context.Background(), sc)
}

func TestRunDivider(t *testing.T) {
	s := newSession(t)
	rep, err := s.runScript(t, divider)
	require.NoError(t, err)
	assert.Equal(t, 10, rep.Statements)
	assert.Len(t, rep.Snapshots, 1)
	assert.True(t, rep.Validated)
	assert.Empty(t, rep.Violations)

	r1, ok := s.model.FindByName("R1")
	require.True(t, ok)
	assert.Equal(t, "4k7", r1.Properties["value"])
	require.NotNil(t, r1.BoardPosition)
	assert.Equal(t, circuit.Point{X: 5, Y: 5}, *r1.BoardPosition)

	r2, _ := s.model.FindByName("R2")
	assert.Equal(t, circuit.Point{X: 12.7, Y: 0}, *r2.SchematicPosition)
	d1, ok := s.model.FindByName("D1")
	require.True(t, ok)
	assert.Equal(t, 270.0, d1.Rotation)

	conns := s.model.Connections()
	require.Len(t, conns, 2)
	assert.Equal(t, "OUT", conns[1].NetID)

	rep, err = s.runScript(t, "undo\nundo\ndisconnect R1.2 R2.1\nremove D1\n")
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Statements)
	r2, _ = s.model.FindByName("R2")
	assert.Equal(t, circuit.Point{X: 10, Y: 0}, *r2.SchematicPosition)
	assert.Empty(t, s.model.Connections())
	assert.Len(t, s.model.Components(), 2)
}

func TestRunDisconnectByID(t *testing.T) {
	s := newSession(t)
	_, err := s.runScript(t, "place resistor at 0,0\nplace resistor at 10,0\nconnect R1.1 R2.2\n")
	require.NoError(t, err)
	require.Len(t, s.model.Connections(), 1)
	id := s.model.Connections()[0].ID

	_, err = s.runScript(t, `disconnect "`+id+`"`)
	require.NoError(t, err)
	assert.Empty(t, s.model.Connections())
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	s := newSession(t)
	rep, err := s.runScript(t, "place resistor at 0,0\nconnect R1.2 R9.1\nplace resistor at 5,0\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, circuit.ErrUnknownComponent)
	assert.Contains(t, err.Error(), "test.otcs:2")
	assert.Equal(t, 1, rep.Statements)
	assert.Len(t, s.model.Components(), 1)

	_, err = s.runScript(t, "connect R1.1 R1.1\n")
	assert.ErrorIs(t, err, circuit.ErrSelfConnection)
}

func TestRunSnapshotNeedsStore(t *testing.T) {
	s := newSession(t)
	s.run = NewRunner(RunnerConfig{Executor: s.exec, Model: s.model})
	_, err := s.runScript(t, `snapshot "x"`)
	assert.ErrorIs(t, err, ErrNoStore)
}
