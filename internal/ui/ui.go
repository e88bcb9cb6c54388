package ui

import (
	"context"
	"os"

	"gioui.org/app"
	"gioui.org/unit"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/session"
)

// Run launches the Gio UI and blocks until the window closes. The session
// is disposed, flushing any pending autosave, before the process exits.
func Run(sess *session.Session, state *AppState) error {
	if state == nil {
		state = NewState()
	}

	go func() {
		w := new(app.Window)
		w.Option(
			app.Title("OpenTrace Circuit"),
			app.Size(unit.Dp(float32(sess.Config.UI.Width)), unit.Dp(float32(sess.Config.UI.Height))),
		)
		ui := New(w, sess, state)
		code := 0
		if err := ui.Run(); err != nil {
			sess.Logger.Error("ui stopped", zap.Error(err))
			code = 1
		}
		if err := sess.Dispose(context.Background()); err != nil {
			sess.Logger.Error("dispose session", zap.Error(err))
			code = 1
		}
		os.Exit(code)
	}()

	app.Main()
	return nil
}
