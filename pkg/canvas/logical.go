package canvas

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/metrics"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/catalog"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
)

// DefaultFetchConcurrency bounds parallel catalog lookups during a load.
const DefaultFetchConcurrency = 8

// SerializeToCircuit reads the logical circuit back out of a schematic
// graph. board may be nil; when given, component positions found there
// become board positions.
func SerializeToCircuit(schematic, board scene.Graph) PartialCircuit {
	pc := PartialCircuit{Format: FormatLogical, Version: FormatVersion}
	for _, n := range schematic.Nodes() {
		switch d := n.Data.(type) {
		case scene.ComponentData:
			lc := LogicalComponent{
				ID:         d.ComponentID,
				DatabaseID: d.Kind,
				Name:       d.DisplayName,
				Position:   fromScene(n.Position),
				Rotation:   n.Rotation,
				Properties: d.Properties,
			}
			if board != nil {
				if bn, ok := board.Node(n.ID); ok {
					p := fromScene(bn.Position)
					lc.BoardPosition = &p
				}
			}
			pc.Components = append(pc.Components, lc)
		case scene.WireData:
			lc := LogicalConnection{ID: d.ConnectionID, From: pinRef(d.From), To: pinRef(d.To)}
			if d.NetID != "" {
				lc.Properties = map[string]string{NetProperty: d.NetID}
			}
			pc.Connections = append(pc.Connections, lc)
		}
	}
	return pc
}

// LoadResult summarizes a restore.
type LoadResult struct {
	Components  int
	Connections int
	Warnings    []*RestoreWarning
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

func WithLoaderLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger.Named("canvas")
		}
	}
}

func WithLoaderMetrics(m *metrics.Metrics) LoaderOption {
	return func(l *Loader) { l.metrics = m }
}

// WithFetchConcurrency bounds parallel catalog lookups; n < 1 means one.
func WithFetchConcurrency(n int) LoaderOption {
	return func(l *Loader) {
		if n < 1 {
			n = 1
		}
		l.concurrency = n
	}
}

// Loader rebuilds scenes from persisted designs.
type Loader struct {
	catalog     catalog.Catalog
	logger      *zap.Logger
	metrics     *metrics.Metrics
	concurrency int
}

func NewLoader(cat catalog.Catalog, opts ...LoaderOption) *Loader {
	l := &Loader{
		catalog:     cat,
		logger:      zap.NewNop(),
		concurrency: DefaultFetchConcurrency,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadLogicalCircuit clears g and rebuilds it from pc in three ordered
// phases: catalog lookups for every component run concurrently; once all of
// them have returned the components are instantiated in saved order; only
// then are connections replayed between their pin nodes. Components whose
// kind cannot be resolved are skipped with a warning, as are the connections
// touching them. Only context cancellation fails the load.
func (l *Loader) LoadLogicalCircuit(ctx context.Context, g scene.Graph, pc PartialCircuit, view circuit.View) (*LoadResult, error) {
	g.Clear()
	res := &LoadResult{}

	defs, err := l.fetch(ctx, pc.Components)
	if err != nil {
		return nil, err
	}

	placed := make(map[string]bool, len(pc.Components))
	for i, lc := range pc.Components {
		if defs[i].warning != nil {
			l.warn(res, defs[i].warning)
			continue
		}
		pos := lc.Position
		if view == circuit.ViewBoard {
			if lc.BoardPosition == nil {
				continue
			}
			pos = *lc.BoardPosition
		}
		err := Instantiate(g, defs[i].def, Placement{
			ComponentID: lc.ID,
			DisplayName: lc.Name,
			Position:    pos,
			Rotation:    lc.Rotation,
			Properties:  lc.Properties,
		}, view)
		if err != nil {
			l.warn(res, &RestoreWarning{ComponentID: lc.ID, CatalogID: lc.DatabaseID, Err: err})
			continue
		}
		placed[lc.ID] = true
		res.Components++
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	admitted := newConnectionSet(len(pc.Connections))
	for _, lc := range pc.Connections {
		if !placed[lc.From.ComponentID] || !placed[lc.To.ComponentID] {
			if view == circuit.ViewSchematic {
				l.warn(res, &RestoreWarning{ConnectionID: lc.ID, Err: ErrEndpointSkipped})
			}
			continue
		}
		if err := admitted.admit(toConnection(lc)); err != nil {
			l.warn(res, &RestoreWarning{ConnectionID: lc.ID, Err: err})
			continue
		}
		if view == circuit.ViewBoard {
			// The board shows connections as ratsnest, not wires.
			res.Connections++
			continue
		}
		if err := DrawWire(g, toConnection(lc)); err != nil {
			l.warn(res, &RestoreWarning{ConnectionID: lc.ID, Err: err})
			continue
		}
		res.Connections++
	}

	l.logger.Info("logical circuit loaded",
		zap.String("view", string(view)),
		zap.Int("components", res.Components),
		zap.Int("connections", res.Connections),
		zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

type fetched struct {
	def     *catalog.Definition
	warning *RestoreWarning
}

func (l *Loader) fetch(ctx context.Context, comps []LogicalComponent) ([]fetched, error) {
	out := make([]fetched, len(comps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, lc := range comps {
		g.Go(func() error {
			def, err := l.catalog.Lookup(gctx, lc.DatabaseID)
			switch {
			case err == nil:
				out[i].def = def
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				out[i].warning = &RestoreWarning{ComponentID: lc.ID, CatalogID: lc.DatabaseID, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("canvas: load: %w", err)
	}
	return out, nil
}

func (l *Loader) warn(res *LoadResult, w *RestoreWarning) {
	res.Warnings = append(res.Warnings, w)
	l.metrics.RestoreWarning()
	l.logger.Warn("restore skipped item",
		zap.String("component", w.ComponentID),
		zap.String("catalog_id", w.CatalogID),
		zap.String("connection", w.ConnectionID),
		zap.Error(w.Err))
}

// Hydrate replaces the model contents with pc. Pin sets come from the
// loader's catalog. Every item the model would refuse is skipped with a
// warning, as in LoadLogicalCircuit, so one bad entry never fails the load.
func (l *Loader) Hydrate(ctx context.Context, m *circuit.Model, pc PartialCircuit) (*LoadResult, error) {
	defs, err := l.fetch(ctx, pc.Components)
	if err != nil {
		return nil, err
	}
	res := &LoadResult{}
	state := circuit.State{Components: make(map[string]circuit.Component, len(pc.Components))}
	for i, lc := range pc.Components {
		if defs[i].warning != nil {
			l.warn(res, defs[i].warning)
			continue
		}
		if _, dup := state.Components[lc.ID]; dup || lc.ID == "" {
			l.warn(res, &RestoreWarning{ComponentID: lc.ID, CatalogID: lc.DatabaseID, Err: circuit.ErrDuplicateComponent})
			continue
		}
		pos := lc.Position
		c := circuit.Component{
			ID:                lc.ID,
			Kind:              lc.DatabaseID,
			DisplayName:       lc.Name,
			SchematicPosition: &pos,
			Rotation:          lc.Rotation,
			Properties:        lc.Properties,
		}
		if lc.BoardPosition != nil {
			bp := *lc.BoardPosition
			c.BoardPosition = &bp
		}
		for _, p := range defs[i].def.Pins {
			c.Pins = append(c.Pins, circuit.Pin{ID: p.ID, Label: p.Label, Role: p.Role})
		}
		state.Components[c.ID] = c
		res.Components++
	}
	admitted := newConnectionSet(len(pc.Connections))
	for _, lc := range pc.Connections {
		conn := toConnection(lc)
		from, okFrom := state.Components[conn.From.ComponentID]
		to, okTo := state.Components[conn.To.ComponentID]
		switch {
		case !okFrom || !okTo:
			l.warn(res, &RestoreWarning{ConnectionID: lc.ID, Err: ErrEndpointSkipped})
			continue
		case !from.HasPin(conn.From.PinID) || !to.HasPin(conn.To.PinID):
			l.warn(res, &RestoreWarning{ConnectionID: lc.ID, Err: circuit.ErrUnknownPin})
			continue
		}
		if err := admitted.admit(conn); err != nil {
			l.warn(res, &RestoreWarning{ConnectionID: lc.ID, Err: err})
			continue
		}
		state.Connections = append(state.Connections, conn)
		res.Connections++
	}
	if err := m.Replace(state); err != nil {
		return nil, fmt.Errorf("canvas: hydrate: %w", err)
	}
	return res, nil
}

// connectionSet tracks the connections a load has accepted so far.
type connectionSet struct {
	ids   map[string]bool
	pairs map[[2]circuit.PinRef]bool
}

func newConnectionSet(n int) *connectionSet {
	return &connectionSet{ids: make(map[string]bool, n), pairs: make(map[[2]circuit.PinRef]bool, n)}
}

// admit records conn unless the model would refuse it next to the
// connections already admitted.
func (s *connectionSet) admit(conn circuit.Connection) error {
	if conn.From == conn.To {
		return circuit.ErrSelfConnection
	}
	if s.ids[conn.ID] {
		return fmt.Errorf("%w: id %q reused", circuit.ErrDuplicateConnection, conn.ID)
	}
	key := [2]circuit.PinRef{conn.From, conn.To}
	if conn.To.String() < conn.From.String() {
		key = [2]circuit.PinRef{conn.To, conn.From}
	}
	if s.pairs[key] {
		return circuit.ErrDuplicateConnection
	}
	s.ids[conn.ID] = true
	s.pairs[key] = true
	return nil
}

func toConnection(lc LogicalConnection) circuit.Connection {
	return circuit.Connection{
		ID:    lc.ID,
		From:  lc.From,
		To:    lc.To,
		NetID: lc.Properties[NetProperty],
	}
}
