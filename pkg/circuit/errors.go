package circuit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownComponent    = errors.New("unknown component")
	ErrUnknownPin          = errors.New("unknown pin")
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrDuplicateConnection = errors.New("duplicate connection")
	ErrDuplicateComponent  = errors.New("duplicate component id")
	ErrSelfConnection      = errors.New("connection from a pin to itself")
	ErrUnknownKind         = errors.New("unknown component kind")
	ErrPinSetImmutable     = errors.New("pin set cannot change")
)

// ValidationError reports a violated model invariant. Err is one of the
// sentinel errors above, so callers can test with errors.Is.
type ValidationError struct {
	Err          error
	ComponentID  string
	ConnectionID string
	PinID        string
	Detail       string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("circuit: ")
	b.WriteString(e.Err.Error())
	var ctx []string
	if e.ComponentID != "" {
		ctx = append(ctx, "component "+e.ComponentID)
	}
	if e.PinID != "" {
		ctx = append(ctx, "pin "+e.PinID)
	}
	if e.ConnectionID != "" {
		ctx = append(ctx, "connection "+e.ConnectionID)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }
