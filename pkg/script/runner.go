package script

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/command"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/store"
)

// ErrNoStore is returned by snapshot statements when the runner has no store.
var ErrNoStore = errors.New("script: snapshot needs a state store")

// RunnerConfig wires a Runner. Store and Logger are optional.
type RunnerConfig struct {
	Executor *command.Executor
	Model    *circuit.Model
	Store    *store.Store
	Logger   *zap.Logger
}

// Runner executes scripts through the command executor, so every edit is
// undoable exactly as if it had been made interactively.
type Runner struct {
	exec   *command.Executor
	model  *circuit.Model
	store  *store.Store
	logger *zap.Logger
}

func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{exec: cfg.Executor, model: cfg.Model, store: cfg.Store, logger: logger.Named("script")}
}

// Report summarizes a run.
type Report struct {
	Statements int
	// Snapshots lists the store snapshot ids taken, in order.
	Snapshots []string
	// Violations holds the result of the last validate statement.
	Violations []*circuit.ValidationError
	Validated  bool
}

// Run executes s statement by statement and stops at the first failure,
// reporting its line.
func (r *Runner) Run(ctx context.Context, s *Script) (*Report, error) {
	rep := &Report{}
	for _, st := range s.Statements {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := r.run(ctx, st, rep); err != nil {
			return rep, fmt.Errorf("script: %s:%d: %w", st.Pos.Filename, st.Pos.Line, err)
		}
		rep.Statements++
	}
	r.logger.Info("script finished",
		zap.Int("statements", rep.Statements),
		zap.Int("snapshots", len(rep.Snapshots)),
		zap.Int("violations", len(rep.Violations)))
	return rep, nil
}

func (r *Runner) run(ctx context.Context, st *Statement, rep *Report) error {
	switch {
	case st.Place != nil:
		p := command.Params{"kind": st.Place.Kind, "x": st.Place.At.X, "y": st.Place.At.Y}
		if st.Place.Board != nil {
			p["boardX"], p["boardY"] = st.Place.Board.X, st.Place.Board.Y
		}
		if st.Place.Rotation != nil {
			p["rotation"] = *st.Place.Rotation
		}
		if st.Place.Name != "" {
			p["name"] = st.Place.Name
		}
		return r.execute(ctx, circuit.CmdAddComponent, p)

	case st.Connect != nil:
		from, to, err := r.pins(st.Connect.From, st.Connect.To)
		if err != nil {
			return err
		}
		p := command.Params{
			"fromComponent": from.ComponentID, "fromPin": from.PinID,
			"toComponent": to.ComponentID, "toPin": to.PinID,
		}
		if st.Connect.Net != "" {
			p["net"] = st.Connect.Net
		}
		return r.execute(ctx, circuit.CmdAddConnection, p)

	case st.Disconnect != nil:
		id := st.Disconnect.ID
		if id == "" {
			conn, err := r.connection(st.Disconnect.From, st.Disconnect.To)
			if err != nil {
				return err
			}
			id = conn.ID
		}
		return r.execute(ctx, circuit.CmdRemoveConnection, command.Params{"id": id})

	case st.Net != nil:
		conn, err := r.connection(st.Net.From, st.Net.To)
		if err != nil {
			return err
		}
		return r.execute(ctx, circuit.CmdAssignNet, command.Params{"id": conn.ID, "net": st.Net.Name})

	case st.Set != nil:
		c, err := r.component(st.Set.Component)
		if err != nil {
			return err
		}
		p := command.Params{"id": c.ID}
		if st.Set.Key == "name" {
			p["name"] = st.Set.Value
		} else {
			p["properties"] = map[string]string{st.Set.Key: st.Set.Value}
		}
		return r.execute(ctx, circuit.CmdUpdateComponent, p)

	case st.Move != nil:
		c, err := r.component(st.Move.Component)
		if err != nil {
			return err
		}
		p := command.Params{"id": c.ID, "x": st.Move.To.X, "y": st.Move.To.Y}
		if st.Move.Board {
			p["view"] = string(circuit.ViewBoard)
		}
		return r.execute(ctx, circuit.CmdMoveComponent, p)

	case st.Rotate != nil:
		c, err := r.component(st.Rotate.Component)
		if err != nil {
			return err
		}
		p := command.Params{"id": c.ID}
		if st.Rotate.Degrees != nil {
			p["degrees"] = *st.Rotate.Degrees
		}
		return r.execute(ctx, circuit.CmdRotateComponent, p)

	case st.Remove != nil:
		c, err := r.component(st.Remove.Component)
		if err != nil {
			return err
		}
		return r.execute(ctx, circuit.CmdRemoveComponent, command.Params{"id": c.ID})

	case st.Snapshot != nil:
		if r.store == nil {
			return ErrNoStore
		}
		id, err := r.store.CreateSnapshot(st.Snapshot.Label)
		if err != nil {
			return err
		}
		rep.Snapshots = append(rep.Snapshots, id)
		return nil

	case st.Undo:
		return r.exec.Undo(ctx)
	case st.Redo:
		return r.exec.Redo(ctx)

	case st.Validate:
		res, err := r.exec.Execute(ctx, circuit.CmdValidate, nil)
		if err != nil {
			return err
		}
		rep.Violations, _ = res.([]*circuit.ValidationError)
		rep.Validated = true
		return nil
	}
	return errors.New("empty statement")
}

func (r *Runner) execute(ctx context.Context, id string, p command.Params) error {
	_, err := r.exec.Execute(ctx, id, p)
	return err
}

func (r *Runner) component(name string) (circuit.Component, error) {
	c, ok := r.model.FindByName(name)
	if !ok {
		return circuit.Component{}, &circuit.ValidationError{Err: circuit.ErrUnknownComponent, Detail: name}
	}
	return c, nil
}

func (r *Runner) pins(a, b *PinRef) (circuit.PinRef, circuit.PinRef, error) {
	from, err := r.pin(a)
	if err != nil {
		return circuit.PinRef{}, circuit.PinRef{}, err
	}
	to, err := r.pin(b)
	if err != nil {
		return circuit.PinRef{}, circuit.PinRef{}, err
	}
	return from, to, nil
}

func (r *Runner) pin(ref *PinRef) (circuit.PinRef, error) {
	c, err := r.component(ref.Component)
	if err != nil {
		return circuit.PinRef{}, err
	}
	return circuit.PinRef{ComponentID: c.ID, PinID: ref.Pin}, nil
}

// connection finds the connection joining two pins in either direction.
func (r *Runner) connection(a, b *PinRef) (circuit.Connection, error) {
	from, to, err := r.pins(a, b)
	if err != nil {
		return circuit.Connection{}, err
	}
	for _, conn := range r.model.Connections() {
		if (conn.From == from && conn.To == to) || (conn.From == to && conn.To == from) {
			return conn, nil
		}
	}
	return circuit.Connection{}, &circuit.ValidationError{
		Err:    circuit.ErrUnknownConnection,
		Detail: fmt.Sprintf("%s.%s to %s.%s", a.Component, a.Pin, b.Component, b.Pin),
	}
}
