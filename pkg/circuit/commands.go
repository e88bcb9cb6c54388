package circuit

import (
	"context"
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/command"
)

// Command ids registered by RegisterCommands.
const (
	CmdAddComponent     = "circuit.addComponent"
	CmdRemoveComponent  = "circuit.removeComponent"
	CmdUpdateComponent  = "circuit.updateComponent"
	CmdMoveComponent    = "circuit.moveComponent"
	CmdRotateComponent  = "circuit.rotateComponent"
	CmdAddConnection    = "circuit.addConnection"
	CmdRemoveConnection = "circuit.removeConnection"
	CmdAssignNet        = "circuit.assignNet"
	CmdValidate         = "circuit.validate"
	CmdDetectCycles     = "circuit.detectCycles"
)

// RegisterCommands exposes the model's mutations as undoable commands.
//
// Commands that create entities write the generated ids back into their
// params, so a redo recreates the very same entity rather than a new one.
// A redone placement revives its id through ReviveComponent.
func RegisterCommands(exec *command.Executor, m *Model) error {
	exists := func(key string) func(command.Params) bool {
		return func(p command.Params) bool {
			_, ok := m.Component(p.String(key))
			return ok
		}
	}

	cmds := []command.Command{
		{
			ID:       CmdAddComponent,
			Name:     "Place Component",
			Category: "Circuit",
			Shortcut: "A",
			Keywords: []string{"add", "place", "insert"},
			CanExecute: func(p command.Params) bool {
				return p.String("kind") != ""
			},
			Execute: func(ctx context.Context, p command.Params) (any, error) {
				x, _ := p.Float("x")
				y, _ := p.Float("y")
				var opts []ComponentOption
				if id := p.String("id"); id != "" {
					opts = append(opts, WithID(id))
				}
				if name := p.String("name"); name != "" {
					opts = append(opts, WithDisplayName(name))
				}
				if bx, ok := p.Float("boardX"); ok {
					by, _ := p.Float("boardY")
					opts = append(opts, OnBoard(Point{X: bx, Y: by}))
				}
				if r, ok := p.Float("rotation"); ok {
					opts = append(opts, WithRotation(r))
				}
				if props, ok := p["properties"].(map[string]string); ok {
					opts = append(opts, WithProperties(props))
				}
				add := m.AddComponent
				if p.Bool("revive") {
					add = m.ReviveComponent
				}
				c, err := add(ctx, p.String("kind"), Point{X: x, Y: y}, opts...)
				if err != nil {
					return nil, err
				}
				p["id"] = c.ID
				p["name"] = c.DisplayName
				p["revive"] = true
				return c, nil
			},
			Undo: func(_ context.Context, p command.Params, _ any) error {
				_, err := m.RemoveComponent(p.String("id"))
				return err
			},
		},
		{
			ID:         CmdRemoveComponent,
			Name:       "Delete Component",
			Category:   "Circuit",
			Shortcut:   "Delete",
			Keywords:   []string{"remove", "erase"},
			CanExecute: exists("id"),
			Execute: func(_ context.Context, p command.Params) (any, error) {
				return m.RemoveComponent(p.String("id"))
			},
			Undo: func(_ context.Context, _ command.Params, result any) error {
				r, ok := result.(Removal)
				if !ok {
					return fmt.Errorf("circuit: unexpected removal result %T", result)
				}
				return m.RestoreComponent(r)
			},
		},
		{
			ID:         CmdUpdateComponent,
			Name:       "Edit Component",
			Category:   "Circuit",
			Keywords:   []string{"rename", "property"},
			CanExecute: exists("id"),
			Execute: func(_ context.Context, p command.Params) (any, error) {
				return m.UpdateComponent(p.String("id"), patchFromParams(p))
			},
			Undo: undoUpdate(m),
		},
		{
			ID:         CmdMoveComponent,
			Name:       "Move Component",
			Category:   "Circuit",
			Shortcut:   "M",
			Keywords:   []string{"drag", "position"},
			CanExecute: exists("id"),
			Execute: func(_ context.Context, p command.Params) (any, error) {
				x, okX := p.Float("x")
				y, okY := p.Float("y")
				if !okX || !okY {
					return nil, errors.New("circuit: move needs x and y")
				}
				pt := Point{X: x, Y: y}
				patch := Patch{SchematicPosition: &pt}
				if View(p.String("view")) == ViewBoard {
					patch = Patch{BoardPosition: &pt}
				}
				return m.UpdateComponent(p.String("id"), patch)
			},
			Undo: undoUpdate(m),
		},
		{
			ID:         CmdRotateComponent,
			Name:       "Rotate Component",
			Category:   "Circuit",
			Shortcut:   "R",
			CanExecute: exists("id"),
			Execute: func(_ context.Context, p command.Params) (any, error) {
				c, ok := m.Component(p.String("id"))
				if !ok {
					return nil, &ValidationError{Err: ErrUnknownComponent, ComponentID: p.String("id")}
				}
				delta, ok := p.Float("degrees")
				if !ok {
					delta = 90
				}
				r := c.Rotation + delta
				return m.UpdateComponent(c.ID, Patch{Rotation: &r})
			},
			Undo: undoUpdate(m),
		},
		{
			ID:       CmdAddConnection,
			Name:     "Connect Pins",
			Category: "Circuit",
			Shortcut: "W",
			Keywords: []string{"wire", "connect"},
			CanExecute: func(p command.Params) bool {
				return p.String("fromComponent") != "" && p.String("toComponent") != ""
			},
			Execute: func(_ context.Context, p command.Params) (any, error) {
				var opts []ConnectionOption
				if id := p.String("id"); id != "" {
					opts = append(opts, WithConnectionID(id))
				}
				if net := p.String("net"); net != "" {
					opts = append(opts, WithNet(net))
				}
				conn, err := m.AddConnection(
					PinRef{ComponentID: p.String("fromComponent"), PinID: p.String("fromPin")},
					PinRef{ComponentID: p.String("toComponent"), PinID: p.String("toPin")},
					opts...)
				if err != nil {
					return nil, err
				}
				p["id"] = conn.ID
				return conn, nil
			},
			Undo: func(_ context.Context, p command.Params, _ any) error {
				_, err := m.RemoveConnection(p.String("id"))
				return err
			},
		},
		{
			ID:       CmdRemoveConnection,
			Name:     "Delete Connection",
			Category: "Circuit",
			Keywords: []string{"disconnect", "unwire"},
			Execute: func(_ context.Context, p command.Params) (any, error) {
				return m.RemoveConnection(p.String("id"))
			},
			Undo: func(_ context.Context, _ command.Params, result any) error {
				ic, ok := result.(IndexedConnection)
				if !ok {
					return fmt.Errorf("circuit: unexpected connection result %T", result)
				}
				return m.InsertConnection(ic.Connection, ic.Index)
			},
		},
		{
			ID:       CmdAssignNet,
			Name:     "Label Net",
			Category: "Circuit",
			Keywords: []string{"net", "label"},
			Execute: func(_ context.Context, p command.Params) (any, error) {
				return m.AssignNet(p.String("id"), p.String("net"))
			},
			Undo: func(_ context.Context, p command.Params, result any) error {
				prev, _ := result.(string)
				_, err := m.AssignNet(p.String("id"), prev)
				return err
			},
		},
		{
			ID:       CmdValidate,
			Name:     "Check Consistency",
			Category: "Circuit",
			Keywords: []string{"validate", "check"},
			Execute: func(context.Context, command.Params) (any, error) {
				return m.Validate(), nil
			},
		},
		{
			ID:       CmdDetectCycles,
			Name:     "Detect Loops",
			Category: "Circuit",
			Keywords: []string{"cycle", "loop"},
			Execute: func(context.Context, command.Params) (any, error) {
				return m.DetectCycles(), nil
			},
		},
	}

	for _, cmd := range cmds {
		if err := exec.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

func undoUpdate(m *Model) func(context.Context, command.Params, any) error {
	return func(_ context.Context, _ command.Params, result any) error {
		prev, ok := result.(Component)
		if !ok {
			return fmt.Errorf("circuit: unexpected update result %T", result)
		}
		return m.SetComponent(prev)
	}
}

func patchFromParams(p command.Params) Patch {
	var patch Patch
	if name, ok := p["name"].(string); ok {
		patch.DisplayName = &name
	}
	if x, ok := p.Float("x"); ok {
		y, _ := p.Float("y")
		patch.SchematicPosition = &Point{X: x, Y: y}
	}
	if x, ok := p.Float("boardX"); ok {
		y, _ := p.Float("boardY")
		patch.BoardPosition = &Point{X: x, Y: y}
	}
	patch.RemoveFromBoard = p.Bool("removeFromBoard")
	if r, ok := p.Float("rotation"); ok {
		patch.Rotation = &r
	}
	if props, ok := p["properties"].(map[string]string); ok {
		patch.Properties = props
	}
	return patch
}
