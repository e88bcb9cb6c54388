package ui

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logCore mirrors log entries into the AppState log pane.
type logCore struct {
	zapcore.LevelEnabler
	state  *AppState
	fields []zapcore.Field
}

// LogCore returns a zap core feeding entries at or above level into the log
// pane. Tee it with the regular core:
//
//	logger = zap.New(zapcore.NewTee(logger.Core(), state.LogCore(zap.InfoLevel)))
func (s *AppState) LogCore(level zapcore.LevelEnabler) zapcore.Core {
	return &logCore{LevelEnabler: level, state: s}
}

// WithLogPane returns logger with its entries also shown in the log pane.
func (s *AppState) WithLogPane(logger *zap.Logger, level zapcore.LevelEnabler) *zap.Logger {
	return zap.New(zapcore.NewTee(logger.Core(), s.LogCore(level)))
}

func (c *logCore) With(fields []zapcore.Field) zapcore.Core {
	return &logCore{
		LevelEnabler: c.LevelEnabler,
		state:        c.state,
		fields:       append(append([]zapcore.Field(nil), c.fields...), fields...),
	}
}

func (c *logCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *logCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	var b strings.Builder
	b.WriteString(e.Time.Format("15:04:05"))
	b.WriteByte(' ')
	b.WriteString(e.Level.CapitalString())
	if e.LoggerName != "" {
		b.WriteString(" [")
		b.WriteString(e.LoggerName)
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)
	for _, k := range sortedKeys(enc.Fields) {
		fmt.Fprintf(&b, " %s=%v", k, enc.Fields[k])
	}
	c.state.AppendLog(b.String())
	return nil
}

func (c *logCore) Sync() error { return nil }

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
