// Package wiretool turns pointer input on a schematic graph into pin-to-pin
// connections.
package wiretool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/command"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
)

// State is the tool's interaction state.
type State int

const (
	Idle State = iota
	ArmedNoStart
	Drawing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ArmedNoStart:
		return "armed"
	case Drawing:
		return "drawing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ProvisionalNodeID is the id of the live line while drawing.
const ProvisionalNodeID = "wiretool:provisional"

// Config holds the tool settings.
type Config struct {
	// HitTolerancePx is the pin pick radius in screen pixels.
	HitTolerancePx float64 `yaml:"hit_tolerance_px"`
}

func DefaultConfig() Config {
	return Config{HitTolerancePx: 8}
}

// Executor runs commands; *command.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, id string, params command.Params) (any, error)
}

type Option func(*Tool)

func WithLogger(logger *zap.Logger) Option {
	return func(t *Tool) {
		if logger != nil {
			t.logger = logger.Named("wiretool")
		}
	}
}

// Tool is the wire drawing state machine. Commits go through the command
// executor so every wire is undoable.
type Tool struct {
	cfg      Config
	graph    scene.Graph
	viewport *scene.Viewport
	exec     Executor
	logger   *zap.Logger

	mu    sync.Mutex
	state State
	start scene.Endpoint
	// disabled holds the nodes this tool made unselectable.
	disabled map[string]bool
}

func New(cfg Config, g scene.Graph, v *scene.Viewport, exec Executor, opts ...Option) *Tool {
	if cfg.HitTolerancePx <= 0 {
		cfg.HitTolerancePx = DefaultConfig().HitTolerancePx
	}
	t := &Tool{
		cfg:      cfg,
		graph:    g,
		viewport: v,
		exec:     exec,
		logger:   zap.NewNop(),
		disabled: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Toggle arms an idle tool and disarms an active one.
func (t *Tool) Toggle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Idle {
		t.state = ArmedNoStart
		t.disableLocked()
		t.logger.Debug("armed")
		return
	}
	t.exitLocked()
}

// Cancel abandons any wire in progress and returns to Idle.
func (t *Tool) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Idle {
		t.exitLocked()
	}
}

// PointerDown handles a primary press at screen position p. Pressing a pin
// while armed starts a wire. Pressing another pin while drawing commits the
// connection and returns it; a rejected commit discards the line and
// returns the executor's error. Any other press leaves the state unchanged.
func (t *Tool) PointerDown(ctx context.Context, p scene.Point) (*circuit.Connection, error) {
	t.mu.Lock()
	pin, pinPos, hit := t.pinAtLocked(p)

	switch t.state {
	case ArmedNoStart:
		defer t.mu.Unlock()
		if !hit {
			return nil, nil
		}
		err := t.graph.Add(scene.Node{
			ID:     ProvisionalNodeID,
			Shapes: []scene.Shape{{Kind: "line", Points: []scene.Point{pinPos, pinPos}}},
			Data:   scene.ProvisionalData{Start: pin},
		})
		if err != nil {
			return nil, fmt.Errorf("wiretool: start line: %w", err)
		}
		t.start = pin
		t.state = Drawing
		t.logger.Debug("wire started", zap.String("component", pin.ComponentID), zap.String("pin", pin.PinID))
		return nil, nil

	case Drawing:
		if !hit || pin == t.start {
			t.mu.Unlock()
			return nil, nil
		}
		start := t.start
		t.setFreeEndLocked(pinPos)
		t.removeProvisionalLocked()
		t.state = ArmedNoStart
		// The executor publishes synchronously and projection listeners
		// call back into the tool, so the lock is released first.
		t.mu.Unlock()

		res, err := t.exec.Execute(ctx, circuit.CmdAddConnection, command.Params{
			"fromComponent": start.ComponentID,
			"fromPin":       start.PinID,
			"toComponent":   pin.ComponentID,
			"toPin":         pin.PinID,
		})
		if err != nil {
			t.logger.Info("wire rejected", zap.Error(err))
			return nil, err
		}
		conn, ok := res.(circuit.Connection)
		if !ok {
			return nil, nil
		}
		t.logger.Debug("wire committed", zap.String("connection", conn.ID))
		return &conn, nil
	}
	t.mu.Unlock()
	return nil, nil
}

// PointerMove drags the free end of the wire in progress to screen position
// p. It never touches the circuit model.
func (t *Tool) PointerMove(p scene.Point) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Drawing {
		return
	}
	t.setFreeEndLocked(t.viewport.ScreenToWorld(p))
}

// Reapply disables selection on nodes created since the tool was armed. It
// is meant to run after the graph has been rebuilt.
func (t *Tool) Reapply() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Idle {
		t.disableLocked()
	}
}

func (t *Tool) pinAtLocked(screen scene.Point) (scene.Endpoint, scene.Point, bool) {
	world := t.viewport.ScreenToWorld(screen)
	tol := t.viewport.PixelsToWorld(t.cfg.HitTolerancePx)
	for _, n := range t.graph.HitTest(world, tol) {
		pd, ok := n.Pin()
		if !ok {
			continue
		}
		pos, err := t.graph.WorldPosition(n.ID)
		if err != nil {
			continue
		}
		return scene.Endpoint{ComponentID: pd.ComponentID, PinID: pd.PinID}, pos, true
	}
	return scene.Endpoint{}, scene.Point{}, false
}

func (t *Tool) setFreeEndLocked(p scene.Point) {
	err := t.graph.Update(ProvisionalNodeID, func(n *scene.Node) {
		if len(n.Shapes) == 1 && len(n.Shapes[0].Points) == 2 {
			n.Shapes[0].Points[1] = p
		}
	})
	if err != nil {
		t.logger.Debug("provisional line missing", zap.Error(err))
	}
}

func (t *Tool) removeProvisionalLocked() {
	if err := t.graph.Remove(ProvisionalNodeID); err != nil && !errors.Is(err, scene.ErrNodeNotFound) {
		t.logger.Warn("remove provisional line", zap.Error(err))
	}
}

func (t *Tool) disableLocked() {
	for _, n := range t.graph.Nodes() {
		if n.Role() == scene.RolePin || !n.Selectable {
			continue
		}
		if err := t.graph.Update(n.ID, func(n *scene.Node) { n.Selectable = false }); err == nil {
			t.disabled[n.ID] = true
		}
	}
}

func (t *Tool) exitLocked() {
	if t.state == Drawing {
		t.removeProvisionalLocked()
	}
	for id := range t.disabled {
		_ = t.graph.Update(id, func(n *scene.Node) { n.Selectable = true })
	}
	t.disabled = make(map[string]bool)
	t.start = scene.Endpoint{}
	t.state = Idle
	t.logger.Debug("disarmed")
}
