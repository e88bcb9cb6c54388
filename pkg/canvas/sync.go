package canvas

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/catalog"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/ratsnest"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/store"
)

// ProjectedFunc is called after a graph has been rebuilt.
type ProjectedFunc func(view circuit.View, g scene.Graph)

// Synchronizer keeps the schematic and board graphs in step with the circuit
// model. Every circuit transition published to the store triggers a full
// re-projection of both graphs; nodes it does not own (such as the wire tool
// preview) are left alone.
type Synchronizer struct {
	model     *circuit.Model
	store     *store.Store
	catalog   catalog.Catalog
	ratsnest  *ratsnest.Renderer
	logger    *zap.Logger
	schematic scene.Graph
	board     scene.Graph

	mu          sync.Mutex
	ctx         context.Context
	defs        map[string]*catalog.Definition
	listeners   []ProjectedFunc
	unsubscribe func()
}

// SyncConfig wires a Synchronizer. Ratsnest and Logger are optional.
type SyncConfig struct {
	Model     *circuit.Model
	Store     *store.Store
	Catalog   catalog.Catalog
	Ratsnest  *ratsnest.Renderer
	Logger    *zap.Logger
	Schematic scene.Graph
	Board     scene.Graph
}

func NewSynchronizer(cfg SyncConfig) *Synchronizer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		model:     cfg.Model,
		store:     cfg.Store,
		catalog:   cfg.Catalog,
		ratsnest:  cfg.Ratsnest,
		logger:    logger.Named("canvas"),
		schematic: cfg.Schematic,
		board:     cfg.Board,
		defs:      make(map[string]*catalog.Definition),
	}
}

// OnProjected registers fn to run after every rebuild.
func (s *Synchronizer) OnProjected(fn ProjectedFunc) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Init projects the current model and follows the store from then on. ctx
// bounds the catalog lookups made while projecting.
func (s *Synchronizer) Init(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	unsub, err := s.store.Subscribe(circuit.StorePath, func(store.Change) error {
		return s.Sync()
	}, store.SubscribeOptions{Immediate: true})
	if err != nil {
		return fmt.Errorf("canvas: subscribe: %w", err)
	}
	s.unsubscribe = unsub
	return nil
}

func (s *Synchronizer) Dispose() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Sync re-projects both graphs from the model now.
func (s *Synchronizer) Sync() error {
	s.mu.Lock()
	ctx := s.ctx
	listeners := append([]ProjectedFunc(nil), s.listeners...)
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	state := s.model.State()
	var errs []error
	for _, target := range []struct {
		view circuit.View
		g    scene.Graph
	}{{circuit.ViewSchematic, s.schematic}, {circuit.ViewBoard, s.board}} {
		if target.g == nil {
			continue
		}
		if err := s.Project(ctx, target.g, state, target.view); err != nil {
			errs = append(errs, err)
			continue
		}
		for _, fn := range listeners {
			fn(target.view, target.g)
		}
	}
	return errors.Join(errs...)
}

// Project rebuilds the circuit-owned nodes of g from state for view.
// Components without a position in view are left out. In the schematic,
// connections become wires; on the board they become ratsnest lines.
func (s *Synchronizer) Project(ctx context.Context, g scene.Graph, state circuit.State, view circuit.View) error {
	for _, n := range g.Nodes() {
		if n.Parent != "" {
			continue
		}
		switch n.Role() {
		case scene.RoleComponent, scene.RoleWire, scene.RoleRatsnest:
			if err := g.Remove(n.ID); err != nil && !errors.Is(err, scene.ErrNodeNotFound) {
				return fmt.Errorf("canvas: clear %s: %w", n.ID, err)
			}
		}
	}

	placed := make(map[string]bool, len(state.Components))
	for _, c := range state.SortedComponents() {
		pos := c.Position(view)
		if pos == nil {
			continue
		}
		def, err := s.definition(ctx, c.Kind)
		if err != nil {
			s.logger.Warn("component kind unavailable, not drawn",
				zap.String("component", c.ID), zap.String("kind", c.Kind), zap.Error(err))
			continue
		}
		err = Instantiate(g, def, Placement{
			ComponentID: c.ID,
			DisplayName: c.DisplayName,
			Position:    *pos,
			Rotation:    c.Rotation,
			Properties:  c.Properties,
		}, view)
		if err != nil {
			return err
		}
		placed[c.ID] = true
	}

	if view == circuit.ViewBoard {
		if s.ratsnest != nil {
			if _, err := s.ratsnest.Render(g, state.Connections, state.Components, view); err != nil {
				return err
			}
		}
		return nil
	}
	for _, conn := range state.Connections {
		if !placed[conn.From.ComponentID] || !placed[conn.To.ComponentID] {
			continue
		}
		if err := DrawWire(g, conn); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synchronizer) definition(ctx context.Context, kind string) (*catalog.Definition, error) {
	s.mu.Lock()
	def, ok := s.defs[kind]
	s.mu.Unlock()
	if ok {
		return def, nil
	}
	def, err := s.catalog.Lookup(ctx, kind)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.defs[kind] = def
	s.mu.Unlock()
	return def, nil
}
