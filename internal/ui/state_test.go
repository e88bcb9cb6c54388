package ui

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
)

func TestAppendLogTrimsOldest(t *testing.T) {
	s := NewState()
	for i := 0; i < 250; i++ {
		s.AppendLog(fmt.Sprintf("line %d", i))
	}
	logs := s.Snapshot().Logs
	require.Len(t, logs, 200)
	assert.Equal(t, "line 50", logs[0])
	assert.Equal(t, "line 249", logs[199])
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewState()
	s.AppendLog("first")
	s.SetViolations([]string{"v1"})

	snap := s.Snapshot()
	snap.Logs[0] = "changed"
	snap.Violations[0] = "changed"

	again := s.Snapshot()
	assert.Equal(t, "first", again.Logs[0])
	assert.Equal(t, "v1", again.Violations[0])
}

func TestStateDefaults(t *testing.T) {
	snap := NewState().Snapshot()
	assert.Equal(t, "Idle", snap.Status)
	assert.Equal(t, circuit.ViewSchematic, snap.View)
	assert.Equal(t, ModeSelect, snap.Mode)
	assert.True(t, snap.LeftPanelVisible)
	assert.True(t, snap.RightPanelVisible)
	assert.Equal(t, "dev", snap.AppVersion)
}

func TestSetModeKeepsKindOnlyWhenPlacing(t *testing.T) {
	s := NewState()
	s.SetMode(ModePlace, "resistor")
	mode, kind := s.Mode()
	assert.Equal(t, ModePlace, mode)
	assert.Equal(t, "resistor", kind)

	s.SetMode(ModeWire, "resistor")
	mode, kind = s.Mode()
	assert.Equal(t, ModeWire, mode)
	assert.Empty(t, kind)
	assert.Equal(t, "wire", mode.String())
}

func TestSetErrorMirrorsStatus(t *testing.T) {
	s := NewState()
	s.SetError(errors.New("boom"))
	snap := s.Snapshot()
	assert.EqualError(t, snap.LastError, "boom")
	assert.Equal(t, "boom", snap.Status)

	s.SetError(nil)
	assert.Nil(t, s.Snapshot().LastError)
	assert.Equal(t, "boom", s.Snapshot().Status, "clearing the error keeps the status")
}

func TestLogPane(t *testing.T) {
	s := NewState()
	logger := s.WithLogPane(zap.NewNop(), zap.InfoLevel).Named("persist").With(zap.String("backend", "file"))

	logger.Debug("hidden")
	logger.Info("saved", zap.Int("bytes", 42))

	logs := s.Snapshot().Logs
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], "INFO [persist] saved")
	assert.Contains(t, logs[0], "backend=file bytes=42")
}
