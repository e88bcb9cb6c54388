// Package session assembles the editor services for one open design and
// owns their lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/config"
	"github.com/OpenTraceLab/OpenTraceCircuit/internal/metrics"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/canvas"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/catalog"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/command"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/persist"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/ratsnest"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/store"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/wiretool"
)

// ErrNoBackend is returned by Open and Save when persistence is disabled.
var ErrNoBackend = errors.New("session: no persistence backend configured")

// Option customizes a Session.
type Option func(*Session)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.Logger = logger
		}
	}
}

// WithRegistry registers the session metrics on reg.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(s *Session) { s.registry = reg }
}

// WithBackend replaces the backend selected by the configuration.
func WithBackend(b persist.Backend) Option {
	return func(s *Session) { s.Backend = b }
}

// WithCatalog replaces the configured catalog.
func WithCatalog(c *catalog.MemoryCatalog) Option {
	return func(s *Session) { s.Catalog = c }
}

// WithIDGenerator makes model ids predictable, for tests and scripts.
func WithIDGenerator(gen func() string) Option {
	return func(s *Session) { s.idGen = gen }
}

// Session is one open design: the store, the model, the command executor
// and both canvases, wired so that every edit flows
// executor -> model -> store -> synchronizer -> graphs.
type Session struct {
	Config   config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Store    *store.Store
	Catalog  *catalog.MemoryCatalog
	Model    *circuit.Model
	Executor *command.Executor
	Loader   *canvas.Loader
	Ratsnest *ratsnest.Renderer
	Sync     *canvas.Synchronizer
	WireTool *wiretool.Tool
	Backend  persist.Backend

	Schematic *scene.MemoryGraph
	Board     *scene.MemoryGraph
	Viewport  *scene.Viewport

	registry prometheus.Registerer
	idGen    func() string
	autosave *persist.Debouncer

	mu          sync.Mutex
	view        circuit.View
	unsubscribe func()
	closers     []func()
}

// New builds the services. Nothing is subscribed or loaded until Init.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Session, error) {
	s := &Session{
		Config: cfg,
		Logger: zap.NewNop(),
		view:   circuit.View(cfg.Canvas.DefaultView),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.view == "" {
		s.view = circuit.ViewSchematic
	}
	s.Metrics = metrics.New(s.registry)

	if s.Catalog == nil {
		if cfg.Catalog.Builtins {
			s.Catalog = catalog.NewBuiltinCatalog()
		} else {
			s.Catalog = catalog.NewMemoryCatalog()
		}
	}
	if s.Backend == nil {
		b, closer, err := NewBackend(ctx, cfg.Persistence, s.Logger)
		if err != nil {
			return nil, err
		}
		s.Backend = b
		if closer != nil {
			s.closers = append(s.closers, closer)
		}
	}

	s.Store = store.New(cfg.Store, store.WithLogger(s.Logger), store.WithMetrics(s.Metrics))
	modelOpts := []circuit.Option{
		circuit.WithStore(s.Store),
		circuit.WithLogger(s.Logger),
		circuit.WithMetrics(s.Metrics),
	}
	if s.idGen != nil {
		modelOpts = append(modelOpts, circuit.WithIDGenerator(s.idGen))
	}
	s.Model = circuit.NewModel(s.Catalog, modelOpts...)
	s.Executor = command.NewExecutor(cfg.Commands, command.WithLogger(s.Logger), command.WithMetrics(s.Metrics))
	if err := circuit.RegisterCommands(s.Executor, s.Model); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s.Loader = canvas.NewLoader(s.Catalog,
		canvas.WithLoaderLogger(s.Logger),
		canvas.WithLoaderMetrics(s.Metrics),
		canvas.WithFetchConcurrency(cfg.Canvas.FetchConcurrency))
	s.Ratsnest = ratsnest.NewRenderer(s.Catalog, ratsnest.WithLogger(s.Logger), ratsnest.WithMetrics(s.Metrics))

	s.Schematic = scene.NewMemoryGraph()
	s.Board = scene.NewMemoryGraph()
	s.Viewport = scene.NewViewport(cfg.UI.Width, cfg.UI.Height)
	s.Sync = canvas.NewSynchronizer(canvas.SyncConfig{
		Model:     s.Model,
		Store:     s.Store,
		Catalog:   s.Catalog,
		Ratsnest:  s.Ratsnest,
		Logger:    s.Logger,
		Schematic: s.Schematic,
		Board:     s.Board,
	})
	s.WireTool = wiretool.New(cfg.WireTool, s.Schematic, s.Viewport, s.Executor, wiretool.WithLogger(s.Logger))
	s.Sync.OnProjected(func(view circuit.View, _ scene.Graph) {
		if view == circuit.ViewSchematic {
			s.WireTool.Reapply()
		}
	})

	if s.Backend != nil {
		s.autosave = persist.NewDebouncer(s.Backend, cfg.Persistence.Debounce, s.Marshal,
			persist.WithDebounceLogger(s.Logger),
			persist.WithDebounceMetrics(s.Metrics))
	}
	return s, nil
}

// NewBackend opens the backend selected by cfg. The returned closer, when
// non-nil, releases its connections.
func NewBackend(ctx context.Context, cfg config.PersistenceConfig, logger *zap.Logger) (persist.Backend, func(), error) {
	switch cfg.Backend {
	case "", config.BackendNone:
		return nil, nil, nil
	case config.BackendMemory:
		return persist.NewMemory(), nil, nil
	case config.BackendFile:
		return persist.NewFile(cfg.Path), nil, nil
	case config.BackendPostgres:
		pg, err := persist.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("session: %w", err)
		}
		return pg, pg.Close, nil
	case config.BackendS3:
		b, err := persist.NewS3(ctx, cfg.S3, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("session: %w", err)
		}
		return b, nil, nil
	}
	return nil, nil, fmt.Errorf("session: unknown persistence backend %q", cfg.Backend)
}

// Init loads the configured KiCad libraries and starts the services. The
// model subscribes before the synchronizer so that snapshot restores reach
// the model before the canvases re-project.
func (s *Session) Init(ctx context.Context) error {
	kicad := &catalog.KiCadLoader{FootprintDirs: s.Config.Catalog.FootprintDirs, Logger: s.Logger}
	for _, dir := range s.Config.Catalog.KiCadDirs {
		n, err := kicad.LoadDir(ctx, s.Catalog, dir)
		if err != nil {
			return fmt.Errorf("session: load catalog %s: %w", dir, err)
		}
		s.Logger.Info("catalog library loaded", zap.String("dir", dir), zap.Int("definitions", n))
	}

	if _, err := s.Store.Init(nil); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := s.Model.Init(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := s.Sync.Init(ctx); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if s.autosave != nil {
		unsub, err := s.Store.Subscribe(circuit.StorePath, func(store.Change) error {
			s.autosave.Trigger()
			return nil
		}, store.SubscribeOptions{})
		if err != nil {
			return fmt.Errorf("session: %w", err)
		}
		s.unsubscribe = unsub
	}
	s.Logger.Debug("session started",
		zap.Int("catalog", s.Catalog.Len()),
		zap.String("view", string(s.View())))
	return nil
}

// Dispose flushes a pending autosave and tears the services down in reverse
// order.
func (s *Session) Dispose(ctx context.Context) error {
	var err error
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.autosave != nil {
		err = s.autosave.Close(ctx)
	}
	s.Sync.Dispose()
	s.Model.Dispose()
	s.Store.Dispose()
	for _, closer := range s.closers {
		closer()
	}
	s.closers = nil
	_ = s.Logger.Sync()
	return err
}

// View returns the active view.
func (s *Session) View() circuit.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// SetView switches the active view. Leaving the schematic cancels any wire
// being drawn.
func (s *Session) SetView(v circuit.View) {
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
	if v != circuit.ViewSchematic && s.WireTool.State() != wiretool.Idle {
		s.WireTool.Cancel()
	}
}

// ActiveGraph returns the graph of the active view.
func (s *Session) ActiveGraph() *scene.MemoryGraph {
	if s.View() == circuit.ViewBoard {
		return s.Board
	}
	return s.Schematic
}

// RenderView draws view of the current design into a fresh graph through
// the loader's ordered restore, leaving the live graphs untouched. Board
// renders carry ratsnest lines.
func (s *Session) RenderView(ctx context.Context, view circuit.View) (*scene.MemoryGraph, *canvas.LoadResult, error) {
	state := s.Model.State()
	g := scene.NewMemoryGraph()
	res, err := s.Loader.LoadLogicalCircuit(ctx, g, canvas.FromState(state), view)
	if err != nil {
		return nil, nil, fmt.Errorf("session: render %s: %w", view, err)
	}
	if view == circuit.ViewBoard {
		if _, err := s.Ratsnest.Render(g, state.Connections, state.Components, view); err != nil {
			return nil, nil, fmt.Errorf("session: render %s: %w", view, err)
		}
	}
	return g, res, nil
}

// Marshal encodes the model in the logical save format.
func (s *Session) Marshal() ([]byte, error) {
	return canvas.MarshalCircuit(canvas.FromState(s.Model.State()))
}

// Save writes the design to the backend now.
func (s *Session) Save(ctx context.Context) error {
	if s.Backend == nil {
		return ErrNoBackend
	}
	blob, err := s.Marshal()
	if err != nil {
		return err
	}
	if err := s.Backend.Save(ctx, blob); err != nil {
		s.Metrics.PersistSaved(s.Backend.Name(), metrics.ResultError)
		return fmt.Errorf("session: save: %w", err)
	}
	s.Metrics.PersistSaved(s.Backend.Name(), metrics.ResultSuccess)
	return nil
}

// Open loads the design from the backend. A missing design is not an error;
// the session simply starts empty.
func (s *Session) Open(ctx context.Context) (*canvas.LoadResult, error) {
	if s.Backend == nil {
		return nil, ErrNoBackend
	}
	blob, err := s.Backend.Load(ctx)
	if errors.Is(err, persist.ErrNotFound) {
		return &canvas.LoadResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: open: %w", err)
	}
	return s.OpenBlob(ctx, blob)
}

// OpenBlob replaces the model with the design in blob, logical or raw.
// Undo history from the previous design is dropped.
func (s *Session) OpenBlob(ctx context.Context, blob []byte) (*canvas.LoadResult, error) {
	format, err := canvas.DetectFormat(blob)
	if err != nil {
		return nil, err
	}
	var pc canvas.PartialCircuit
	switch format {
	case canvas.FormatLogical:
		pc, err = canvas.UnmarshalCircuit(blob)
		if err != nil {
			return nil, err
		}
	case canvas.FormatRaw:
		scratch := scene.NewMemoryGraph()
		if _, err := s.Loader.RestoreRawSceneState(ctx, scratch, blob); err != nil {
			return nil, err
		}
		pc = canvas.SerializeToCircuit(scratch, nil)
	}

	if s.WireTool.State() != wiretool.Idle {
		s.WireTool.Cancel()
	}
	res, err := s.Loader.Hydrate(ctx, s.Model, pc)
	if err != nil {
		return nil, err
	}
	s.Executor.ClearHistory()
	s.Logger.Info("design opened",
		zap.String("format", string(format)),
		zap.Int("components", res.Components),
		zap.Int("connections", res.Connections),
		zap.Int("warnings", len(res.Warnings)))
	return res, nil
}
