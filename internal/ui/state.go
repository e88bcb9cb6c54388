package ui

import (
	"sync"
	"time"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
)

// Mode is what a primary click on the canvas does.
type Mode int

const (
	ModeSelect Mode = iota
	ModePlace
	ModeWire
)

func (m Mode) String() string {
	switch m {
	case ModePlace:
		return "place"
	case ModeWire:
		return "wire"
	default:
		return "select"
	}
}

// StateSnapshot captures a copy of the state data for rendering without
// requiring the UI to hold locks while laying out widgets.
type StateSnapshot struct {
	Busy      bool
	LastError error
	Status    string

	View      circuit.View
	Mode      Mode
	PlaceKind string
	Selected  string

	Violations []string

	LeftPanelVisible  bool
	RightPanelVisible bool
	AppVersion        string

	Logs []string

	LastUpdated time.Time
}

// AppState tracks the mutable state shared between the Gio event loop and
// background goroutines (saves, catalog loads).
type AppState struct {
	mu sync.RWMutex

	busy      bool
	lastError error
	status    string

	view      circuit.View
	mode      Mode
	placeKind string
	selected  string

	violations []string

	leftPanelVisible  bool
	rightPanelVisible bool
	appVersion        string

	logs     []string
	logLimit int

	lastUpdated time.Time
}

// NewState returns a baseline AppState with safe defaults.
func NewState() *AppState {
	return &AppState{
		logLimit:          200,
		status:            "Idle",
		view:              circuit.ViewSchematic,
		leftPanelVisible:  true,
		rightPanelVisible: true,
		appVersion:        "dev",
		lastUpdated:       time.Now(),
	}
}

// Snapshot returns a copy of the mutable state for rendering.
func (s *AppState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logCopy := make([]string, len(s.logs))
	copy(logCopy, s.logs)

	return StateSnapshot{
		Busy:              s.busy,
		LastError:         s.lastError,
		Status:            s.status,
		View:              s.view,
		Mode:              s.mode,
		PlaceKind:         s.placeKind,
		Selected:          s.selected,
		Violations:        append([]string(nil), s.violations...),
		LeftPanelVisible:  s.leftPanelVisible,
		RightPanelVisible: s.rightPanelVisible,
		AppVersion:        s.appVersion,
		Logs:              logCopy,
		LastUpdated:       s.lastUpdated,
	}
}

func (s *AppState) touch() { s.lastUpdated = time.Now() }

func (s *AppState) SetBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = busy
	s.touch()
}

func (s *AppState) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy
}

// SetStatus updates the user-facing status message.
func (s *AppState) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.touch()
}

// SetError stores the latest error surfaced to the UI and mirrors it in the
// status line.
func (s *AppState) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err
	if err != nil {
		s.status = err.Error()
	}
	s.touch()
}

// AppendLog appends a log message, trimming the oldest entries past the limit.
func (s *AppState) AppendLog(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = append(s.logs, msg)
	if s.logLimit > 0 && len(s.logs) > s.logLimit {
		offset := len(s.logs) - s.logLimit
		s.logs = append([]string(nil), s.logs[offset:]...)
	}
	s.touch()
}

func (s *AppState) SetView(view circuit.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = view
	s.touch()
}

func (s *AppState) View() circuit.View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// SetMode switches the canvas mode. Entering place mode needs a kind.
func (s *AppState) SetMode(mode Mode, placeKind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	if mode == ModePlace {
		s.placeKind = placeKind
	} else {
		s.placeKind = ""
	}
	s.touch()
}

func (s *AppState) Mode() (Mode, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode, s.placeKind
}

// Select marks a component as selected; "" clears the selection.
func (s *AppState) Select(componentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = componentID
	s.touch()
}

func (s *AppState) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// SetViolations records the last validation result as display strings.
func (s *AppState) SetViolations(v []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = append([]string(nil), v...)
	s.touch()
}

// SetAppVersion records the running UI/application version string.
func (s *AppState) SetAppVersion(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version == "" {
		version = "dev"
	}
	s.appVersion = version
	s.touch()
}

func (s *AppState) SetLeftPanelVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leftPanelVisible = visible
	s.touch()
}

func (s *AppState) SetRightPanelVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rightPanelVisible = visible
	s.touch()
}
