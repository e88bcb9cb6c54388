// Package command wraps editor mutations as named commands with a bounded,
// linear undo/redo history.
package command

import (
	"context"
	"errors"
	"fmt"
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
	// ErrBusy is returned when Execute, Undo or Redo is called while another
	// command is still running, including calls made from inside a command.
	ErrBusy = errors.New("command: executor busy")
	// ErrUnknownCommand is returned for an id that was never registered.
	ErrUnknownCommand = errors.New("command: unknown command")
	// ErrNothingToUndo is returned by Undo at the start of history.
	ErrNothingToUndo = errors.New("command: nothing to undo")
	// ErrNothingToRedo is returned by Redo at the end of history.
	ErrNothingToRedo = errors.New("command: nothing to redo")
)

// NotExecutableError reports that a command's CanExecute check refused the
// given parameters. It is distinct from a failure inside Execute.
type NotExecutableError struct {
	CommandID string
}

func (e *NotExecutableError) Error() string {
	return fmt.Sprintf("command: %s is not executable in the current context", e.CommandID)
}

// Params carries the arguments of one invocation.
type Params map[string]any

// String returns a string parameter or "".
func (p Params) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Float returns a numeric parameter as float64.
func (p Params) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Bool returns a boolean parameter or false.
func (p Params) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// Command is a registered editor action. Commands without Undo are side-effect
// only and never enter history.
type Command struct {
	ID       string
	Name     string
	Category string
	Shortcut string
	Keywords []string

	Execute    func(ctx context.Context, params Params) (any, error)
	Undo       func(ctx context.Context, params Params, result any) error
	CanExecute func(params Params) bool
}

// Undoable reports whether the command participates in history.
func (c *Command) Undoable() bool {
	return c.Undo != nil
}

// Execution records one successful undoable invocation.
type Execution struct {
	ID        string
	CommandID string
	Timestamp time.Time
	Params    Params
	Result    any
	Undoable  bool
}

// Config bounds the undo history.
type Config struct {
	MaxHistory int `yaml:"max_history"`
}

// DefaultConfig returns the history bound used when nothing is configured.
func DefaultConfig() Config {
	return Config{MaxHistory: 200}
}

// Option customizes an Executor.
type Option func(*Executor)

// WithLogger routes executor diagnostics to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger.Named("command")
		}
	}
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithClock overrides time.Now for execution timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// Executor runs registered commands one at a time and keeps the undo history.
type Executor struct {
	mu sync.Mutex

	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	commands map[string]*Command
	history  []Execution
	cursor   int // number of applied entries in history
	busy     bool
}

// NewExecutor returns an executor with no registered commands.
func NewExecutor(cfg Config, opts ...Option) *Executor {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultConfig().MaxHistory
	}
	e := &Executor{
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
		commands: make(map[string]*Command),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds cmd to the registry.
func (e *Executor) Register(cmd Command) error {
	if cmd.ID == "" {
		return errors.New("command: empty command id")
	}
	if cmd.Execute == nil {
		return fmt.Errorf("command: %s has no Execute", cmd.ID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.commands[cmd.ID]; exists {
		return fmt.Errorf("command: %s already registered", cmd.ID)
	}
	c := cmd
	e.commands[cmd.ID] = &c
	return nil
}

// Execute runs the command registered under id. The command receives a
// private copy of params and may record generated values in it; that copy is
// what Redo replays.
func (e *Executor) Execute(ctx context.Context, id string, params Params) (any, error) {
	e.mu.Lock()
	cmd, ok := e.commands[id]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, id)
	}
	if e.busy {
		e.mu.Unlock()
		e.metrics.CommandExecuted(id, metrics.ResultBusy, 0)
		return nil, ErrBusy
	}
	e.busy = true
	e.mu.Unlock()
	defer e.release()

	params = copyParams(params)
	if cmd.CanExecute != nil && !cmd.CanExecute(params) {
		e.metrics.CommandExecuted(id, metrics.ResultNotExecutable, 0)
		return nil, &NotExecutableError{CommandID: id}
	}

	start := e.now()
	result, err := cmd.Execute(ctx, params)
	elapsed := e.now().Sub(start)
	if err != nil {
		e.metrics.CommandExecuted(id, metrics.ResultError, elapsed)
		e.logger.Debug("command failed", zap.String("command", id), zap.Error(err))
		return nil, err
	}
	e.metrics.CommandExecuted(id, metrics.ResultSuccess, elapsed)

	if cmd.Undoable() {
		e.push(Execution{
			ID:        uuid.NewString(),
			CommandID: id,
			Timestamp: start,
			Params:    params,
			Result:    result,
			Undoable:  true,
		})
	}
	return result, nil
}

// Undo reverts the most recently applied execution.
func (e *Executor) Undo(ctx context.Context) error {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return ErrBusy
	}
	if e.cursor == 0 {
		e.mu.Unlock()
		return ErrNothingToUndo
	}
	entry := e.history[e.cursor-1]
	cmd := e.commands[entry.CommandID]
	e.busy = true
	e.mu.Unlock()
	defer e.release()

	if err := cmd.Undo(ctx, copyParams(entry.Params), entry.Result); err != nil {
		return fmt.Errorf("command: undo %s: %w", entry.CommandID, err)
	}

	e.mu.Lock()
	e.cursor--
	e.mu.Unlock()
	e.metrics.CommandUndone()
	e.logger.Debug("undo", zap.String("command", entry.CommandID), zap.String("execution", entry.ID))
	return nil
}

// Redo re-runs Execute for the next undone execution with its recorded
// params and stores the fresh result.
func (e *Executor) Redo(ctx context.Context) error {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return ErrBusy
	}
	if e.cursor >= len(e.history) {
		e.mu.Unlock()
		return ErrNothingToRedo
	}
	index := e.cursor
	entry := e.history[index]
	cmd := e.commands[entry.CommandID]
	e.busy = true
	e.mu.Unlock()
	defer e.release()

	result, err := cmd.Execute(ctx, copyParams(entry.Params))
	if err != nil {
		return fmt.Errorf("command: redo %s: %w", entry.CommandID, err)
	}

	e.mu.Lock()
	e.history[index].Result = result
	e.history[index].Timestamp = e.now()
	e.cursor++
	e.mu.Unlock()
	e.metrics.CommandRedone()
	return nil
}

// CanUndo reports whether an applied execution exists.
func (e *Executor) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor > 0
}

// CanRedo reports whether an undone execution can be re-applied.
func (e *Executor) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor < len(e.history)
}

// Busy reports whether a command is in flight.
func (e *Executor) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// History returns the applied executions, oldest first.
func (e *Executor) History() []Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Execution, e.cursor)
	copy(out, e.history[:e.cursor])
	return out
}

// ClearHistory forgets every execution, applied or undone.
func (e *Executor) ClearHistory() {
	e.mu.Lock()
	e.history = nil
	e.cursor = 0
	e.mu.Unlock()
}

// Command returns the registered command with id.
func (e *Executor) Command(id string) (Command, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cmd, ok := e.commands[id]
	if !ok {
		return Command{}, false
	}
	return *cmd, true
}

// Commands lists every registered command sorted by category, then id.
func (e *Executor) Commands() []Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Command, 0, len(e.commands))
	for _, cmd := range e.commands {
		out = append(out, *cmd)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Search returns the commands matching query, best match first. Id matches
// rank above name matches, which rank above category and keyword matches.
// An empty query returns every command.
func (e *Executor) Search(query string) []Command {
	all := e.Commands()
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return all
	}

	type scored struct {
		cmd   Command
		score int
	}
	var hits []scored
	for _, cmd := range all {
		if s := matchScore(cmd, query); s > 0 {
			hits = append(hits, scored{cmd: cmd, score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})
	out := make([]Command, len(hits))
	for i, h := range hits {
		out[i] = h.cmd
	}
	return out
}

func matchScore(cmd Command, query string) int {
	id := strings.ToLower(cmd.ID)
	name := strings.ToLower(cmd.Name)
	switch {
	case id == query:
		return 100
	case strings.HasPrefix(id, query):
		return 80
	case strings.HasPrefix(name, query):
		return 70
	case strings.Contains(id, query):
		return 60
	case strings.Contains(name, query):
		return 50
	case strings.Contains(strings.ToLower(cmd.Category), query):
		return 30
	}
	for _, kw := range cmd.Keywords {
		if strings.Contains(strings.ToLower(kw), query) {
			return 20
		}
	}
	return 0
}

func (e *Executor) push(entry Execution) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history[:e.cursor], entry)
	if over := len(e.history) - e.cfg.MaxHistory; over > 0 {
		e.history = append([]Execution(nil), e.history[over:]...)
	}
	e.cursor = len(e.history)
}

func (e *Executor) release() {
	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}

func copyParams(p Params) Params {
	if p == nil {
		return Params{}
	}
	return deepcopy.Copy(p).(Params)
}
