// Package store implements the hierarchical key-path state store shared by the
// editor services.
//
// Values live in a single tree addressed by dot-delimited paths
// ("editor.zoom", "circuit.components.R1"). Interior nodes are
// map[string]any; leaves are arbitrary JSON-compatible values. Every mutation
// is applied completely before any subscriber is called, so a subscriber never
// observes a half-applied change.
package store

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohae/deepcopy"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/metrics"
)

var (
	// ErrDisposed is returned by mutations on a store after Dispose.
	ErrDisposed = errors.New("store: disposed")
	// ErrSnapshotNotFound is returned by RestoreSnapshot for an unknown id.
	ErrSnapshotNotFound = errors.New("store: snapshot not found")
	// ErrInvalidPath is returned for malformed paths ("a..b", ".a").
	ErrInvalidPath = errors.New("store: invalid path")
)

// Config bounds the diagnostic history and the retained snapshots.
type Config struct {
	HistoryLimit  int `yaml:"history_limit"`
	SnapshotLimit int `yaml:"snapshot_limit"`
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		HistoryLimit:  500,
		SnapshotLimit: 20,
	}
}

// Change describes one notification delivered to a subscriber. Value and
// Previous are resolved at the subscriber's own path, not at ChangedPath.
type Change struct {
	Path        string
	ChangedPath string
	Value       any
	Previous    any
	Source      string
}

// Callback receives change notifications. A returned error (or a panic) is
// logged and never reaches the writer or other subscribers.
type Callback func(Change) error

// SubscribeOptions tunes a subscription.
type SubscribeOptions struct {
	// Immediate delivers the current value synchronously on subscribe.
	Immediate bool
}

// HistoryEntry is one diagnostic record of a mutation.
type HistoryEntry struct {
	Op        string
	Path      string
	Previous  any
	Value     any
	Source    string
	Timestamp time.Time
}

// Snapshot is a restore point holding a deep copy of the whole tree.
type Snapshot struct {
	ID          string
	Timestamp   time.Time
	Description string
	State       map[string]any
}

type subscription struct {
	id       uint64
	path     string
	callback Callback
}

type notification struct {
	sub    *subscription
	change Change
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger routes store diagnostics to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger.Named("store")
		}
	}
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the session-scoped state tree. Construct with New, populate with
// Init, and release with Dispose.
type Store struct {
	mu sync.RWMutex

	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	root      map[string]any
	subs      map[uint64]*subscription
	nextSub   uint64
	history   []HistoryEntry
	snapshots []Snapshot
	disposed  bool
}

// New returns an empty store.
func New(cfg Config, opts ...Option) *Store {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}
	if cfg.SnapshotLimit <= 0 {
		cfg.SnapshotLimit = DefaultConfig().SnapshotLimit
	}
	s := &Store{
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
		root:   make(map[string]any),
		subs:   make(map[uint64]*subscription),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init populates the tree from initial and records a restore point for the
// initialized state. It returns the id of that snapshot.
func (s *Store) Init(initial map[string]any) (string, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return "", ErrDisposed
	}
	previous := s.root
	if initial == nil {
		s.root = make(map[string]any)
	} else {
		s.root = copyTree(initial)
	}
	pending := s.diffAllLocked(previous, "", "init")
	s.recordLocked(HistoryEntry{Op: "init", Source: "init"})
	snap := s.snapshotLocked("initialized")
	s.mu.Unlock()

	s.deliver(pending)
	return snap.ID, nil
}

// Dispose drops all state and subscriptions. Further mutations fail with
// ErrDisposed and reads return their defaults.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disposed = true
	s.root = nil
	s.subs = make(map[uint64]*subscription)
	s.history = nil
	s.snapshots = nil
}

// Get returns a copy of the value at path, or def when nothing is stored
// there. The empty path addresses the whole tree.
func (s *Store) Get(path string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.disposed {
		return def
	}
	v, ok := resolve(s.root, path)
	if !ok {
		return def
	}
	return deepcopy.Copy(v)
}

// Has reports whether a value exists at path.
func (s *Store) Has(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disposed {
		return false
	}
	_, ok := resolve(s.root, path)
	return ok
}

// Keys lists the child keys of the map stored at path, sorted.
func (s *Store) Keys(path string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disposed {
		return nil
	}
	v, ok := resolve(s.root, path)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set stores value at path. Writing a value deep-equal to the current one is
// a no-op: no history entry and no notification.
func (s *Store) Set(path string, value any, source string) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}

	old, existed := resolve(s.root, path)
	if existed && reflect.DeepEqual(old, value) {
		s.mu.Unlock()
		return nil
	}

	before := s.captureLocked(path)
	if len(segments) == 0 {
		tree, ok := value.(map[string]any)
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("store: root value must be map[string]any, got %T", value)
		}
		s.root = copyTree(tree)
	} else {
		assign(s.root, segments, deepcopy.Copy(value))
	}
	pending := s.collectLocked(before, path, source)
	s.recordLocked(HistoryEntry{
		Op:       "set",
		Path:     path,
		Previous: deepcopy.Copy(old),
		Value:    deepcopy.Copy(value),
		Source:   source,
	})
	s.mu.Unlock()

	s.deliver(pending)
	return nil
}

// Update applies fn to a copy of the current value (nil when absent) and
// stores the result through Set.
func (s *Store) Update(path string, fn func(current any) any, source string) error {
	current := s.Get(path, nil)
	return s.Set(path, fn(current), source)
}

// Delete removes the value at path. Deleting a missing path is a no-op.
func (s *Store) Delete(path string) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	old, existed := resolve(s.root, path)
	if !existed {
		s.mu.Unlock()
		return nil
	}

	before := s.captureLocked(path)
	if len(segments) == 0 {
		s.root = make(map[string]any)
	} else {
		remove(s.root, segments)
	}
	pending := s.collectLocked(before, path, "delete")
	s.recordLocked(HistoryEntry{Op: "delete", Path: path, Previous: deepcopy.Copy(old), Source: "delete"})
	s.mu.Unlock()

	s.deliver(pending)
	return nil
}

// Subscribe registers callback for changes at path or below it. The returned
// function cancels the subscription.
func (s *Store) Subscribe(path string, callback Callback, opts SubscribeOptions) (func(), error) {
	if _, err := splitPath(path); err != nil {
		return nil, err
	}
	if callback == nil {
		return nil, errors.New("store: nil callback")
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, ErrDisposed
	}
	s.nextSub++
	sub := &subscription{id: s.nextSub, path: path, callback: callback}
	s.subs[sub.id] = sub

	var pending []notification
	if opts.Immediate {
		v, _ := resolve(s.root, path)
		pending = append(pending, notification{sub: sub, change: Change{
			Path:        path,
			ChangedPath: path,
			Value:       deepcopy.Copy(v),
			Source:      "subscribe",
		}})
	}
	s.mu.Unlock()

	s.deliver(pending)

	return func() {
		s.mu.Lock()
		delete(s.subs, sub.id)
		s.mu.Unlock()
	}, nil
}

// CreateSnapshot deep-copies the tree into a new restore point. Once the
// configured limit is reached the oldest snapshot is evicted.
func (s *Store) CreateSnapshot(description string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return "", ErrDisposed
	}
	return s.snapshotLocked(description).ID, nil
}

// RestoreSnapshot replaces the whole tree with the snapshot's copy and
// notifies every subscription whose resolved value changed.
func (s *Store) RestoreSnapshot(id string) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	var snap *Snapshot
	for i := range s.snapshots {
		if s.snapshots[i].ID == id {
			snap = &s.snapshots[i]
			break
		}
	}
	if snap == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}

	previous := s.root
	s.root = copyTree(snap.State)
	source := "snapshot:" + id
	pending := s.diffAllLocked(previous, "", source)
	s.recordLocked(HistoryEntry{Op: "restore", Source: source})
	s.mu.Unlock()

	s.logger.Debug("snapshot restored",
		zap.String("snapshot", id),
		zap.String("description", snap.Description),
		zap.Int("notifications", len(pending)))
	s.deliver(pending)
	return nil
}

// Snapshots lists the retained snapshots without their state, oldest first.
func (s *Store) Snapshots() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, len(s.snapshots))
	for i, snap := range s.snapshots {
		out[i] = Snapshot{ID: snap.ID, Timestamp: snap.Timestamp, Description: snap.Description}
	}
	return out
}

// History returns up to limit of the most recent entries, oldest first.
// A limit <= 0 returns everything retained.
func (s *Store) History(limit int) []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if limit > 0 && len(s.history) > limit {
		start = len(s.history) - limit
	}
	out := make([]HistoryEntry, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}

func (s *Store) snapshotLocked(description string) Snapshot {
	snap := Snapshot{
		ID:          uuid.NewString(),
		Timestamp:   s.now(),
		Description: description,
		State:       copyTree(s.root),
	}
	s.snapshots = append(s.snapshots, snap)
	if len(s.snapshots) > s.cfg.SnapshotLimit {
		s.snapshots = append([]Snapshot(nil), s.snapshots[len(s.snapshots)-s.cfg.SnapshotLimit:]...)
	}
	return snap
}

func (s *Store) recordLocked(entry HistoryEntry) {
	entry.Timestamp = s.now()
	s.history = append(s.history, entry)
	if len(s.history) > s.cfg.HistoryLimit {
		offset := len(s.history) - s.cfg.HistoryLimit
		s.history = append([]HistoryEntry(nil), s.history[offset:]...)
		s.metrics.StoreHistoryDropped(offset)
	}
}

// captureLocked records the resolved value of every subscription whose path
// overlaps the written path, before the write happens.
func (s *Store) captureLocked(path string) map[uint64]any {
	before := make(map[uint64]any)
	for id, sub := range s.subs {
		if overlaps(sub.path, path) {
			v, _ := resolve(s.root, sub.path)
			before[id] = deepcopy.Copy(v)
		}
	}
	return before
}

func (s *Store) collectLocked(before map[uint64]any, changedPath, source string) []notification {
	var pending []notification
	for id, prev := range before {
		sub, ok := s.subs[id]
		if !ok {
			continue
		}
		v, _ := resolve(s.root, sub.path)
		if reflect.DeepEqual(prev, v) {
			continue
		}
		pending = append(pending, notification{sub: sub, change: Change{
			Path:        sub.path,
			ChangedPath: changedPath,
			Value:       deepcopy.Copy(v),
			Previous:    prev,
			Source:      source,
		}})
	}
	sortNotifications(pending)
	return pending
}

func (s *Store) diffAllLocked(previous map[string]any, changedPath, source string) []notification {
	var pending []notification
	for _, sub := range s.subs {
		oldV, _ := resolve(previous, sub.path)
		newV, _ := resolve(s.root, sub.path)
		if reflect.DeepEqual(oldV, newV) {
			continue
		}
		pending = append(pending, notification{sub: sub, change: Change{
			Path:        sub.path,
			ChangedPath: changedPath,
			Value:       deepcopy.Copy(newV),
			Previous:    deepcopy.Copy(oldV),
			Source:      source,
		}})
	}
	sortNotifications(pending)
	return pending
}

// deliver runs callbacks outside the lock, isolating each subscriber.
func (s *Store) deliver(pending []notification) {
	for _, n := range pending {
		s.invoke(n)
	}
	s.metrics.StoreNotified(len(pending))
}

func (s *Store) invoke(n notification) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.StoreSubscriberFailed()
			s.logger.Error("subscriber panicked",
				zap.String("path", n.sub.path),
				zap.Uint64("subscription", n.sub.id),
				zap.Any("panic", r))
		}
	}()
	if err := n.sub.callback(n.change); err != nil {
		s.metrics.StoreSubscriberFailed()
		s.logger.Error("subscriber failed",
			zap.String("path", n.sub.path),
			zap.Uint64("subscription", n.sub.id),
			zap.Error(err))
	}
}

func sortNotifications(pending []notification) {
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].sub.id < pending[j].sub.id
	})
}

// overlaps reports whether a write at b can change the value resolved at a:
// a is b, an ancestor of b, or a descendant of b.
func overlaps(a, b string) bool {
	return isPrefix(a, b) || isPrefix(b, a)
}

func isPrefix(prefix, path string) bool {
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+".")
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segments, nil
}

func resolve(root map[string]any, path string) (any, bool) {
	if root == nil {
		return nil, false
	}
	if path == "" {
		return root, true
	}
	var current any = root
	for _, seg := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// assign writes value, replacing any non-map intermediate with a fresh map.
func assign(root map[string]any, segments []string, value any) {
	node := root
	for _, seg := range segments[:len(segments)-1] {
		next, ok := node[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[seg] = next
		}
		node = next
	}
	node[segments[len(segments)-1]] = value
}

func remove(root map[string]any, segments []string) {
	node := root
	for _, seg := range segments[:len(segments)-1] {
		next, ok := node[seg].(map[string]any)
		if !ok {
			return
		}
		node = next
	}
	delete(node, segments[len(segments)-1])
}

func copyTree(tree map[string]any) map[string]any {
	if tree == nil {
		return make(map[string]any)
	}
	return deepcopy.Copy(tree).(map[string]any)
}
