package canvas

import (
	"errors"
	"strings"
)

// ErrEndpointSkipped marks a connection dropped because one of its
// components could not be restored.
var ErrEndpointSkipped = errors.New("endpoint component was not restored")

// RestoreWarning describes one item a restore had to skip. The restore itself
// still succeeds.
type RestoreWarning struct {
	ComponentID  string
	CatalogID    string
	ConnectionID string
	Err          error
}

func (w *RestoreWarning) Error() string {
	var b strings.Builder
	b.WriteString("canvas: skipped ")
	switch {
	case w.ConnectionID != "":
		b.WriteString("connection " + w.ConnectionID)
	default:
		b.WriteString("component " + w.ComponentID)
		if w.CatalogID != "" {
			b.WriteString(" (" + w.CatalogID + ")")
		}
	}
	if w.Err != nil {
		b.WriteString(": " + w.Err.Error())
	}
	return b.String()
}

func (w *RestoreWarning) Unwrap() error { return w.Err }
