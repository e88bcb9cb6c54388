package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(Config{HistoryLimit: 5, SnapshotLimit: 3})
	_, err := s.Init(map[string]any{
		"editor": map[string]any{"zoom": 1.0},
	})
	require.NoError(t, err)
	return s
}

func TestGetSet(t *testing.T) {
	s := newTestStore(t)

	assert.Equal(t, 1.0, s.Get("editor.zoom", nil))
	assert.Equal(t, "fallback", s.Get("editor.missing", "fallback"))

	require.NoError(t, s.Set("editor.grid.size", 2.54, "test"))
	assert.Equal(t, 2.54, s.Get("editor.grid.size", nil))
	assert.Equal(t, []string{"grid", "zoom"}, s.Keys("editor"))
	assert.True(t, s.Has("editor.grid"))
}

func TestGetReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("circuit.components", map[string]any{"R1": map[string]any{"kind": "resistor"}}, "test"))

	got := s.Get("circuit.components", nil).(map[string]any)
	got["R2"] = "intruder"

	assert.False(t, s.Has("circuit.components.R2"))
}

func TestSetSameValueNotifiesOnce(t *testing.T) {
	s := newTestStore(t)
	calls := 0
	_, err := s.Subscribe("editor.zoom", func(Change) error {
		calls++
		return nil
	}, SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Set("editor.zoom", 2.0, "test"))
	require.NoError(t, s.Set("editor.zoom", 2.0, "test"))

	assert.Equal(t, 1, calls)
	history := s.History(0)
	require.NotEmpty(t, history)
	assert.Equal(t, "editor.zoom", history[len(history)-1].Path)
	setCount := 0
	for _, h := range history {
		if h.Op == "set" {
			setCount++
		}
	}
	assert.Equal(t, 1, setCount)
}

func TestParentSubscriberReceivesResolvedValue(t *testing.T) {
	s := newTestStore(t)

	var got []Change
	_, err := s.Subscribe("circuit.components", func(c Change) error {
		got = append(got, c)
		return nil
	}, SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Set("circuit.components.R1", map[string]any{"kind": "resistor"}, "model"))

	require.Len(t, got, 1)
	assert.Equal(t, "circuit.components", got[0].Path)
	assert.Equal(t, "circuit.components.R1", got[0].ChangedPath)
	assert.Equal(t, map[string]any{"R1": map[string]any{"kind": "resistor"}}, got[0].Value)
	assert.Nil(t, got[0].Previous)
	assert.Equal(t, "model", got[0].Source)
}

func TestDescendantSubscriberSeesAncestorReplace(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("circuit", map[string]any{"revision": 1, "name": "amp"}, "test"))

	var values []any
	_, err := s.Subscribe("circuit.name", func(c Change) error {
		values = append(values, c.Value)
		return nil
	}, SubscribeOptions{})
	require.NoError(t, err)

	// name unchanged: no notification
	require.NoError(t, s.Set("circuit", map[string]any{"revision": 2, "name": "amp"}, "test"))
	// name changed through an ancestor write
	require.NoError(t, s.Set("circuit", map[string]any{"revision": 3, "name": "buffer"}, "test"))

	assert.Equal(t, []any{"buffer"}, values)
}

func TestSiblingSubscriberNotNotified(t *testing.T) {
	s := newTestStore(t)
	calls := 0
	_, err := s.Subscribe("editor.zoomFactor", func(Change) error {
		calls++
		return nil
	}, SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Set("editor.zoom", 3.0, "test"))
	assert.Zero(t, calls)
}

func TestFailingSubscriberIsolated(t *testing.T) {
	s := newTestStore(t)
	order := []string{}

	_, err := s.Subscribe("editor", func(Change) error {
		order = append(order, "first")
		return errors.New("boom")
	}, SubscribeOptions{})
	require.NoError(t, err)
	_, err = s.Subscribe("editor", func(Change) error {
		order = append(order, "second")
		panic("worse")
	}, SubscribeOptions{})
	require.NoError(t, err)
	_, err = s.Subscribe("editor.zoom", func(Change) error {
		order = append(order, "third")
		return nil
	}, SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Set("editor.zoom", 4.0, "test"))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestSubscribeImmediateAndUnsubscribe(t *testing.T) {
	s := newTestStore(t)
	var values []any
	cancel, err := s.Subscribe("editor.zoom", func(c Change) error {
		values = append(values, c.Value)
		return nil
	}, SubscribeOptions{Immediate: true})
	require.NoError(t, err)

	require.NoError(t, s.Set("editor.zoom", 1.5, "test"))
	cancel()
	require.NoError(t, s.Set("editor.zoom", 3.0, "test"))

	assert.Equal(t, []any{1.0, 1.5}, values)
}

func TestUpdateAndDelete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Update("editor.zoom", func(cur any) any {
		return cur.(float64) * 2
	}, "test"))
	assert.Equal(t, 2.0, s.Get("editor.zoom", nil))

	var last Change
	_, err := s.Subscribe("editor", func(c Change) error {
		last = c
		return nil
	}, SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Delete("editor.zoom"))
	assert.False(t, s.Has("editor.zoom"))
	assert.Equal(t, map[string]any{}, last.Value)

	// deleting a missing path is silent
	require.NoError(t, s.Delete("editor.zoom"))
}

func TestHistoryIsBoundedFIFO(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Set("counter", i, "test"))
	}
	history := s.History(0)
	require.Len(t, history, 5)
	assert.Equal(t, 9, history[4].Value)
	assert.Equal(t, 5, history[0].Value)

	assert.Len(t, s.History(2), 2)
}

func TestSnapshotRestoreDiffNotifies(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("circuit.name", "amp", "test"))
	id, err := s.CreateSnapshot("before edits")
	require.NoError(t, err)

	require.NoError(t, s.Set("circuit.name", "filter", "test"))
	require.NoError(t, s.Set("editor.zoom", 8.0, "test"))

	var nameChanges, untouched int
	_, err = s.Subscribe("circuit.name", func(c Change) error {
		nameChanges++
		assert.Equal(t, "amp", c.Value)
		assert.Equal(t, "filter", c.Previous)
		return nil
	}, SubscribeOptions{})
	require.NoError(t, err)
	_, err = s.Subscribe("editor.theme", func(Change) error {
		untouched++
		return nil
	}, SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, s.RestoreSnapshot(id))
	assert.Equal(t, 1, nameChanges)
	assert.Zero(t, untouched)
	assert.Equal(t, 1.0, s.Get("editor.zoom", nil))

	err = s.RestoreSnapshot("nope")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("circuit.components.R1.name", "R1", "test"))
	id, err := s.CreateSnapshot("")
	require.NoError(t, err)
	require.NoError(t, s.Set("circuit.components.R1.name", "R100", "test"))

	require.NoError(t, s.RestoreSnapshot(id))
	assert.Equal(t, "R1", s.Get("circuit.components.R1.name", nil))
}

func TestSnapshotLimit(t *testing.T) {
	s := newTestStore(t) // one snapshot from Init
	for i := 0; i < 4; i++ {
		_, err := s.CreateSnapshot("")
		require.NoError(t, err)
	}
	assert.Len(t, s.Snapshots(), 3)
}

func TestInvalidPathAndDispose(t *testing.T) {
	s := newTestStore(t)
	assert.ErrorIs(t, s.Set("a..b", 1, "test"), ErrInvalidPath)

	s.Dispose()
	assert.ErrorIs(t, s.Set("editor.zoom", 1.0, "test"), ErrDisposed)
	assert.Equal(t, "def", s.Get("editor.zoom", "def"))
	_, err := s.Subscribe("editor", func(Change) error { return nil }, SubscribeOptions{})
	assert.ErrorIs(t, err, ErrDisposed)
}
