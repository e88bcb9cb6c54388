// Package circuit holds the logical circuit: components with fixed pin sets,
// point-to-point connections between pins, and the invariants tying them
// together.
//
// Every mutation is computed on a copy of the state, validated, committed and
// then published to the state store exactly once, so subscribers observe one
// transition per operation (a component removal and its cascaded connections
// arrive together).
package circuit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/metrics"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/catalog"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/store"
)

// StorePath is where the model publishes its state.
const StorePath = "circuit"

// Option customizes a Model.
type Option func(*Model)

// WithStore publishes every committed state to s at StorePath and follows
// snapshot restores made on s.
func WithStore(s *store.Store) Option {
	return func(m *Model) { m.store = s }
}

// WithLogger routes model diagnostics to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger.Named("circuit")
		}
	}
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Model) { m.metrics = mt }
}

// WithIDGenerator replaces the uuid generator for component and connection
// ids. The generator must never return the same id twice.
func WithIDGenerator(gen func() string) Option {
	return func(m *Model) { m.newID = gen }
}

// SequentialIDs returns a generator producing prefix1, prefix2, ...
func SequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + strconv.Itoa(n)
	}
}

// Model is the logical circuit of one design session.
type Model struct {
	// pubMu serializes commit+publish so store notifications arrive in
	// revision order. Subscribers must not mutate the model synchronously.
	pubMu sync.Mutex
	mu    sync.RWMutex

	catalog catalog.Catalog
	store   *store.Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	newID   func() string

	state State
	// retired maps removed component ids to their kind. Only a restore or
	// a revival of the same kind may bring one back.
	retired     map[string]string
	unsubscribe func()
}

// NewModel returns an empty model resolving kinds through cat.
func NewModel(cat catalog.Catalog, opts ...Option) *Model {
	m := &Model{
		catalog: cat,
		logger:  zap.NewNop(),
		newID:   uuid.NewString,
		state:   State{Components: make(map[string]Component)},
		retired: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init publishes the empty state and starts following store snapshot
// restores.
func (m *Model) Init() error {
	if m.store == nil {
		return nil
	}
	unsub, err := m.store.Subscribe(StorePath, m.onStoreChange, store.SubscribeOptions{})
	if err != nil {
		return fmt.Errorf("circuit: subscribe: %w", err)
	}
	m.unsubscribe = unsub
	m.publish(m.State(), "init")
	return nil
}

// Dispose stops following the store.
func (m *Model) Dispose() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// ComponentOption adjusts a component before AddComponent commits it.
type ComponentOption func(*Component)

// WithID places the component under a caller-chosen id.
func WithID(id string) ComponentOption {
	return func(c *Component) { c.ID = id }
}

// WithDisplayName overrides the generated designator.
func WithDisplayName(name string) ComponentOption {
	return func(c *Component) { c.DisplayName = name }
}

// OnBoard also places the component on the board layout.
func OnBoard(p Point) ComponentOption {
	return func(c *Component) { c.BoardPosition = &p }
}

// WithRotation sets the rotation in degrees.
func WithRotation(deg float64) ComponentOption {
	return func(c *Component) { c.Rotation = normalizeDegrees(deg) }
}

// WithProperties merges props over the catalog defaults.
func WithProperties(props map[string]string) ComponentOption {
	return func(c *Component) {
		if c.Properties == nil {
			c.Properties = make(map[string]string, len(props))
		}
		for k, v := range props {
			c.Properties[k] = v
		}
	}
}

// AddComponent instantiates kind at pos on the schematic. The pin set is
// copied from the catalog definition and never changes afterwards. Ids of
// removed components are never issued again.
func (m *Model) AddComponent(ctx context.Context, kind string, pos Point, opts ...ComponentOption) (Component, error) {
	return m.addComponent(ctx, kind, pos, false, opts...)
}

// ReviveComponent is AddComponent for an id the model retired, as when a
// placement is redone. The kind must match the removed component.
func (m *Model) ReviveComponent(ctx context.Context, kind string, pos Point, opts ...ComponentOption) (Component, error) {
	return m.addComponent(ctx, kind, pos, true, opts...)
}

func (m *Model) addComponent(ctx context.Context, kind string, pos Point, revive bool, opts ...ComponentOption) (Component, error) {
	def, err := m.catalog.Lookup(ctx, kind)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Component{}, &ValidationError{Err: ErrUnknownKind, Detail: kind}
		}
		return Component{}, fmt.Errorf("circuit: lookup %s: %w", kind, err)
	}

	c := Component{
		Kind:              kind,
		SchematicPosition: &pos,
		Pins:              make([]Pin, 0, len(def.Pins)),
	}
	for _, p := range def.Pins {
		c.Pins = append(c.Pins, Pin{ID: p.ID, Label: p.Label, Role: p.Role})
	}
	if len(def.Properties) > 0 {
		WithProperties(def.Properties)(&c)
	}
	for _, opt := range opts {
		opt(&c)
	}

	var added Component
	err = m.mutateWith("addComponent", func(next *State) error {
		if c.ID == "" {
			c.ID = m.newID()
		}
		if _, exists := next.Components[c.ID]; exists {
			return &ValidationError{Err: ErrDuplicateComponent, ComponentID: c.ID}
		}
		if was, ok := m.retired[c.ID]; ok && (!revive || was != kind) {
			return &ValidationError{Err: ErrDuplicateComponent, ComponentID: c.ID,
				Detail: fmt.Sprintf("id belonged to a removed %s", was)}
		}
		if c.DisplayName == "" {
			c.DisplayName = nextDisplayName(*next, def.Prefix)
		}
		next.Components[c.ID] = c
		added = c.clone()
		return nil
	}, func() { delete(m.retired, c.ID) })
	if err != nil {
		return Component{}, err
	}
	m.logger.Debug("component added",
		zap.String("id", added.ID),
		zap.String("kind", kind),
		zap.String("name", added.DisplayName))
	return added, nil
}

// InsertComponent adds a fully formed component, as read from a saved design.
func (m *Model) InsertComponent(c Component) error {
	if c.ID == "" {
		return &ValidationError{Err: ErrUnknownComponent, Detail: "empty id"}
	}
	return m.mutate("insertComponent", func(next *State) error {
		if _, exists := next.Components[c.ID]; exists {
			return &ValidationError{Err: ErrDuplicateComponent, ComponentID: c.ID}
		}
		if was, ok := m.retired[c.ID]; ok {
			return &ValidationError{Err: ErrDuplicateComponent, ComponentID: c.ID,
				Detail: fmt.Sprintf("id belonged to a removed %s", was)}
		}
		next.Components[c.ID] = c.clone()
		return nil
	})
}

// RemoveComponent deletes id together with every connection touching it, as
// one transition. The returned Removal can be handed to RestoreComponent.
func (m *Model) RemoveComponent(id string) (Removal, error) {
	var r Removal
	err := m.mutateWith("removeComponent", func(next *State) error {
		c, ok := next.Components[id]
		if !ok {
			return &ValidationError{Err: ErrUnknownComponent, ComponentID: id}
		}
		r = Removal{Component: c.clone()}
		kept := make([]Connection, 0, len(next.Connections))
		for i, conn := range next.Connections {
			if conn.Touches(id) {
				r.Connections = append(r.Connections, IndexedConnection{Index: i, Connection: conn})
				continue
			}
			kept = append(kept, conn)
		}
		next.Connections = kept
		delete(next.Components, id)
		return nil
	}, func() { m.retired[id] = r.Component.Kind })
	if err != nil {
		return Removal{}, err
	}
	m.logger.Debug("component removed",
		zap.String("id", id),
		zap.Int("cascaded", len(r.Connections)))
	return r, nil
}

// RestoreComponent reverts a removal: the same component comes back with its
// connections at their original positions.
func (m *Model) RestoreComponent(r Removal) error {
	return m.mutateWith("restoreComponent", func(next *State) error {
		if _, exists := next.Components[r.Component.ID]; exists {
			return &ValidationError{Err: ErrDuplicateComponent, ComponentID: r.Component.ID}
		}
		next.Components[r.Component.ID] = r.Component.clone()
		for _, ic := range r.Connections {
			next.Connections = insertAt(next.Connections, ic.Index, ic.Connection)
		}
		return nil
	}, func() { delete(m.retired, r.Component.ID) })
}

// UpdateComponent applies patch to id and returns the component as it was
// before.
func (m *Model) UpdateComponent(id string, patch Patch) (Component, error) {
	var prev Component
	err := m.mutate("updateComponent", func(next *State) error {
		c, ok := next.Components[id]
		if !ok {
			return &ValidationError{Err: ErrUnknownComponent, ComponentID: id}
		}
		prev = c.clone()
		if patch.DisplayName != nil {
			c.DisplayName = *patch.DisplayName
		}
		if patch.SchematicPosition != nil {
			p := *patch.SchematicPosition
			c.SchematicPosition = &p
		}
		if patch.RemoveFromBoard {
			c.BoardPosition = nil
		}
		if patch.BoardPosition != nil {
			p := *patch.BoardPosition
			c.BoardPosition = &p
		}
		if patch.Rotation != nil {
			c.Rotation = normalizeDegrees(*patch.Rotation)
		}
		for k, v := range patch.Properties {
			if c.Properties == nil {
				c.Properties = make(map[string]string)
			}
			if v == "" {
				delete(c.Properties, k)
			} else {
				c.Properties[k] = v
			}
		}
		next.Components[id] = c
		return nil
	})
	return prev, err
}

// SetComponent replaces a live component wholesale. The pin set must be
// unchanged.
func (m *Model) SetComponent(c Component) error {
	return m.mutate("setComponent", func(next *State) error {
		cur, ok := next.Components[c.ID]
		if !ok {
			return &ValidationError{Err: ErrUnknownComponent, ComponentID: c.ID}
		}
		if !samePins(cur.Pins, c.Pins) {
			return &ValidationError{Err: ErrPinSetImmutable, ComponentID: c.ID}
		}
		next.Components[c.ID] = c.clone()
		return nil
	})
}

// ConnectionOption adjusts a connection before AddConnection commits it.
type ConnectionOption func(*Connection)

// WithConnectionID uses a caller-chosen connection id.
func WithConnectionID(id string) ConnectionOption {
	return func(c *Connection) { c.ID = id }
}

// WithNet labels the connection with a net name.
func WithNet(net string) ConnectionOption {
	return func(c *Connection) { c.NetID = net }
}

// AddConnection wires from to to. It fails with ErrUnknownComponent,
// ErrUnknownPin, ErrSelfConnection or ErrDuplicateConnection, all wrapped in
// a *ValidationError.
func (m *Model) AddConnection(from, to PinRef, opts ...ConnectionOption) (Connection, error) {
	conn := Connection{From: from, To: to}
	for _, opt := range opts {
		opt(&conn)
	}
	var added Connection
	err := m.mutate("addConnection", func(next *State) error {
		if conn.ID == "" {
			conn.ID = m.newID()
		}
		if err := checkNewConnection(*next, conn); err != nil {
			return err
		}
		next.Connections = append(next.Connections, conn)
		added = conn
		return nil
	})
	if err != nil {
		return Connection{}, err
	}
	m.logger.Debug("connection added",
		zap.String("id", added.ID),
		zap.Stringer("from", added.From),
		zap.Stringer("to", added.To))
	return added, nil
}

// InsertConnection puts conn at index in the ordered list (append when index
// is negative or past the end). Used to revert removals and to load designs.
func (m *Model) InsertConnection(conn Connection, index int) error {
	return m.mutate("insertConnection", func(next *State) error {
		if conn.ID == "" {
			conn.ID = m.newID()
		}
		if err := checkNewConnection(*next, conn); err != nil {
			return err
		}
		next.Connections = insertAt(next.Connections, index, conn)
		return nil
	})
}

// RemoveConnection deletes connection id and returns it with its index.
func (m *Model) RemoveConnection(id string) (IndexedConnection, error) {
	var removed IndexedConnection
	err := m.mutate("removeConnection", func(next *State) error {
		for i, conn := range next.Connections {
			if conn.ID == id {
				removed = IndexedConnection{Index: i, Connection: conn}
				next.Connections = append(next.Connections[:i:i], next.Connections[i+1:]...)
				return nil
			}
		}
		return &ValidationError{Err: ErrUnknownConnection, ConnectionID: id}
	})
	return removed, err
}

// AssignNet labels connection id with net ("" clears it) and returns the
// previous label.
func (m *Model) AssignNet(id, net string) (string, error) {
	var prev string
	err := m.mutate("assignNet", func(next *State) error {
		for i := range next.Connections {
			if next.Connections[i].ID == id {
				prev = next.Connections[i].NetID
				next.Connections[i].NetID = net
				return nil
			}
		}
		return &ValidationError{Err: ErrUnknownConnection, ConnectionID: id}
	})
	return prev, err
}

// Replace swaps in a whole state after validating it. The replaced state is
// a new document, so previously removed ids are forgotten.
func (m *Model) Replace(s State) error {
	incoming := s.clone()
	if incoming.Components == nil {
		incoming.Components = make(map[string]Component)
	}
	return m.mutateWith("replace", func(next *State) error {
		next.Components = incoming.Components
		next.Connections = incoming.Connections
		return nil
	}, func() { m.retired = make(map[string]string) })
}

// Clear removes everything.
func (m *Model) Clear() error {
	return m.Replace(State{})
}

// State returns a deep copy of the current state.
func (m *Model) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Revision increases by one on every committed mutation.
func (m *Model) Revision() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Revision
}

// Component returns a copy of component id.
func (m *Model) Component(id string) (Component, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.state.Components[id]
	if !ok {
		return Component{}, false
	}
	return c.clone(), true
}

// Components returns copies of every component ordered by id.
func (m *Model) Components() []Component {
	return m.State().SortedComponents()
}

// Connections returns a copy of the ordered connection list.
func (m *Model) Connections() []Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Connection(nil), m.state.Connections...)
}

// FindByName resolves a display name ("R1"), case-insensitively.
func (m *Model) FindByName(name string) (Component, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.state.Components {
		if strings.EqualFold(c.DisplayName, name) {
			return c.clone(), true
		}
	}
	return Component{}, false
}

// Validate recomputes every invariant and returns the violations found. It
// never repairs anything.
func (m *Model) Validate() []*ValidationError {
	m.mu.RLock()
	violations := validateState(m.state)
	m.mu.RUnlock()
	m.metrics.CircuitViolations(len(violations))
	return violations
}

func (m *Model) mutate(source string, fn func(next *State) error) error {
	return m.mutateWith(source, fn, nil)
}

// mutateWith is mutate with a hook that runs, still under the write lock,
// once the new state is committed.
func (m *Model) mutateWith(source string, fn func(next *State) error, committed func()) error {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	next := m.state.clone()
	if err := fn(&next); err != nil {
		m.mu.Unlock()
		return err
	}
	if violations := validateState(next); len(violations) > 0 {
		m.mu.Unlock()
		return violations[0]
	}
	next.Revision = m.state.Revision + 1
	m.state = next
	if committed != nil {
		committed()
	}
	published := next.clone()
	m.mu.Unlock()

	m.metrics.CircuitSize(len(published.Components), len(published.Connections))
	m.publish(published, source)
	return nil
}

func (m *Model) publish(s State, source string) {
	if m.store == nil {
		return
	}
	components := make(map[string]any, len(s.Components))
	for id, c := range s.Components {
		components[id] = c
	}
	connections := s.Connections
	if connections == nil {
		connections = []Connection{}
	}
	value := map[string]any{
		"components":  components,
		"connections": connections,
		"revision":    s.Revision,
	}
	if err := m.store.Set(StorePath, value, "circuit."+source); err != nil {
		m.logger.Error("publish failed", zap.String("source", source), zap.Error(err))
	}
}

// onStoreChange adopts circuit state brought back by a store snapshot
// restore. Changes the model published itself are ignored.
func (m *Model) onStoreChange(change store.Change) error {
	if !strings.HasPrefix(change.Source, "snapshot:") && change.Source != "init" {
		return nil
	}
	s, err := decodeState(change.Value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	for id, c := range m.state.Components {
		if _, kept := s.Components[id]; !kept {
			m.retired[id] = c.Kind
		}
	}
	for id := range s.Components {
		delete(m.retired, id)
	}
	m.state = s
	m.mu.Unlock()
	m.metrics.CircuitSize(len(s.Components), len(s.Connections))
	m.logger.Info("circuit restored from snapshot", zap.Uint64("revision", s.Revision))
	return nil
}

func decodeState(v any) (State, error) {
	s := State{Components: make(map[string]Component)}
	if v == nil {
		return s, nil
	}
	root, ok := v.(map[string]any)
	if !ok {
		return State{}, fmt.Errorf("circuit: unexpected store value %T", v)
	}
	if comps, ok := root["components"].(map[string]any); ok {
		for id, raw := range comps {
			c, ok := raw.(Component)
			if !ok {
				return State{}, fmt.Errorf("circuit: component %s has type %T", id, raw)
			}
			s.Components[id] = c.clone()
		}
	}
	if conns, ok := root["connections"].([]Connection); ok {
		s.Connections = append([]Connection(nil), conns...)
	}
	s.Revision, _ = root["revision"].(uint64)
	return s, nil
}

// validateState checks every invariant over s. Violations are ordered by
// component id, then by connection order.
func validateState(s State) []*ValidationError {
	var out []*ValidationError
	ids := make([]string, 0, len(s.Components))
	for id := range s.Components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if c := s.Components[id]; c.ID != id {
			out = append(out, &ValidationError{Err: ErrDuplicateComponent, ComponentID: id,
				Detail: fmt.Sprintf("stored under %q but carries id %q", id, c.ID)})
		}
	}

	seenIDs := make(map[string]bool, len(s.Connections))
	seenPairs := make(map[endpointPair]string, len(s.Connections))
	for _, conn := range s.Connections {
		if err := checkEndpoints(s, conn); err != nil {
			out = append(out, err)
			continue
		}
		if seenIDs[conn.ID] {
			out = append(out, &ValidationError{Err: ErrDuplicateConnection, ConnectionID: conn.ID, Detail: "id reused"})
			continue
		}
		seenIDs[conn.ID] = true
		if other, dup := seenPairs[conn.pair()]; dup {
			out = append(out, &ValidationError{Err: ErrDuplicateConnection, ConnectionID: conn.ID,
				Detail: fmt.Sprintf("same pins as %s", other)})
			continue
		}
		seenPairs[conn.pair()] = conn.ID
	}
	return out
}

func checkEndpoints(s State, conn Connection) *ValidationError {
	for _, ref := range []PinRef{conn.From, conn.To} {
		c, ok := s.Components[ref.ComponentID]
		if !ok {
			return &ValidationError{Err: ErrUnknownComponent, ComponentID: ref.ComponentID, ConnectionID: conn.ID}
		}
		if !c.HasPin(ref.PinID) {
			return &ValidationError{Err: ErrUnknownPin, ComponentID: ref.ComponentID, PinID: ref.PinID, ConnectionID: conn.ID}
		}
	}
	if conn.From == conn.To {
		return &ValidationError{Err: ErrSelfConnection, ComponentID: conn.From.ComponentID, PinID: conn.From.PinID, ConnectionID: conn.ID}
	}
	return nil
}

// checkNewConnection reports why conn cannot join s.
func checkNewConnection(s State, conn Connection) error {
	if err := checkEndpoints(s, conn); err != nil {
		return err
	}
	pair := conn.pair()
	for _, existing := range s.Connections {
		if existing.ID == conn.ID {
			return &ValidationError{Err: ErrDuplicateConnection, ConnectionID: conn.ID, Detail: "id reused"}
		}
		if existing.pair() == pair {
			return &ValidationError{Err: ErrDuplicateConnection, ConnectionID: existing.ID,
				Detail: fmt.Sprintf("%s and %s are already connected", conn.From, conn.To)}
		}
	}
	return nil
}

func nextDisplayName(s State, prefix string) string {
	if prefix == "" {
		prefix = "X"
	}
	used := make(map[string]bool, len(s.Components))
	for _, c := range s.Components {
		used[strings.ToUpper(c.DisplayName)] = true
	}
	for n := 1; ; n++ {
		name := prefix + strconv.Itoa(n)
		if !used[strings.ToUpper(name)] {
			return name
		}
	}
}

func insertAt(list []Connection, index int, conn Connection) []Connection {
	if index < 0 || index >= len(list) {
		return append(list, conn)
	}
	list = append(list, Connection{})
	copy(list[index+1:], list[index:])
	list[index] = conn
	return list
}

func samePins(a, b []Pin) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func normalizeDegrees(deg float64) float64 {
	for deg < 0 {
		deg += 360
	}
	for deg >= 360 {
		deg -= 360
	}
	return deg
}
