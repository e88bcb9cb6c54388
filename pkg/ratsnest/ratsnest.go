// Package ratsnest draws the advisory lines that show which board pads still
// need to be routed.
package ratsnest

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/metrics"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/catalog"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
)

// NodePrefix starts the id of every node this package adds to a graph.
const NodePrefix = "ratsnest:"

// Line is one unrouted connection between two board pads.
type Line struct {
	ConnectionID string
	From, To     scene.Point
}

// Option customizes a Renderer.
type Option func(*Renderer)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Renderer) {
		if logger != nil {
			r.logger = logger.Named("ratsnest")
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Renderer) { r.metrics = m }
}

// Renderer computes and draws ratsnest lines. It remembers which
// connections it already reported as unresolvable so each is logged once.
type Renderer struct {
	footprints catalog.Footprints
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu     sync.Mutex
	warned map[string]bool
}

func NewRenderer(fp catalog.Footprints, opts ...Option) *Renderer {
	r := &Renderer{
		footprints: fp,
		logger:     zap.NewNop(),
		warned:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Compute returns the ratsnest lines for a graph showing activeView. Lines
// only exist on the board: in the schematic every connection is already a
// drawn wire. A connection yields a line when both its components are placed
// on the board and both pads resolve; each endpoint is the component board
// position plus the pad offset rotated with the component.
func (r *Renderer) Compute(conns []circuit.Connection, comps map[string]circuit.Component, activeView circuit.View) []Line {
	lines, _ := r.compute(conns, comps, activeView)
	return lines
}

func (r *Renderer) compute(conns []circuit.Connection, comps map[string]circuit.Component, activeView circuit.View) ([]Line, int) {
	if activeView != circuit.ViewBoard {
		return nil, 0
	}
	var (
		lines   []Line
		skipped int
	)
	for _, conn := range conns {
		from, fok := comps[conn.From.ComponentID]
		to, tok := comps[conn.To.ComponentID]
		if !fok || !tok || from.BoardPosition == nil || to.BoardPosition == nil {
			continue
		}
		a, aok := r.padPosition(from, conn.From.PinID)
		b, bok := r.padPosition(to, conn.To.PinID)
		if !aok || !bok {
			skipped++
			r.warnOnce(conn)
			continue
		}
		lines = append(lines, Line{ConnectionID: conn.ID, From: a, To: b})
	}
	return lines, skipped
}

func (r *Renderer) padPosition(c circuit.Component, pin string) (scene.Point, bool) {
	if r.footprints == nil {
		return scene.Point{}, false
	}
	off, ok := r.footprints.PadOffset(c.Kind, pin)
	if !ok {
		return scene.Point{}, false
	}
	origin := scene.Point{X: c.BoardPosition.X, Y: c.BoardPosition.Y}
	return origin.Add(scene.RotateDeg(scene.Point{X: off.X, Y: off.Y}, c.Rotation)), true
}

func (r *Renderer) warnOnce(conn circuit.Connection) {
	r.mu.Lock()
	seen := r.warned[conn.ID]
	r.warned[conn.ID] = true
	r.mu.Unlock()
	if seen {
		return
	}
	r.logger.Warn("footprint data missing, ratsnest line skipped",
		zap.String("connection", conn.ID),
		zap.Stringer("from", conn.From),
		zap.Stringer("to", conn.To))
}

// Render replaces every ratsnest node in g with the lines computed for
// activeView and returns them.
func (r *Renderer) Render(g scene.Graph, conns []circuit.Connection, comps map[string]circuit.Component, activeView circuit.View) ([]Line, error) {
	if err := Clear(g); err != nil {
		return nil, err
	}
	lines, skipped := r.compute(conns, comps, activeView)
	for _, l := range lines {
		err := g.Add(scene.Node{
			ID:     NodeID(l.ConnectionID),
			Shapes: []scene.Shape{{Kind: "line", Points: []scene.Point{l.From, l.To}}},
			Data:   scene.RatsnestData{ConnectionID: l.ConnectionID},
		})
		if err != nil {
			return nil, fmt.Errorf("ratsnest: add %s: %w", l.ConnectionID, err)
		}
	}
	r.metrics.Ratsnest(len(lines), skipped)
	return lines, nil
}

// Clear removes every ratsnest node from g.
func Clear(g scene.Graph) error {
	var ids []string
	for _, n := range g.Nodes() {
		if n.Role() == scene.RoleRatsnest {
			ids = append(ids, n.ID)
		}
	}
	for _, id := range ids {
		if err := g.Remove(id); err != nil && !errors.Is(err, scene.ErrNodeNotFound) {
			return fmt.Errorf("ratsnest: remove %s: %w", id, err)
		}
	}
	return nil
}

func NodeID(connectionID string) string { return NodePrefix + connectionID }
