// Package action implements the named-action dispatch table shared by
// every device variant (spec.md §4.4): validates argument arity/domain
// and routes to a handler.
package action

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jangala-dev/firmata-gateway/internal/model"
)

// ErrActionUnavailable is returned when the action name is not in the
// device's table.
var ErrActionUnavailable = errors.New("action: unavailable")

// ErrActionMalformed is returned when a required parameter is missing or
// cannot be parsed, or is out of domain.
var ErrActionMalformed = errors.New("action: malformed")

// Device is the surface a handler needs from the owning session. Keeping
// it as an interface (rather than importing the session package
// directly) is what lets the variant/action/ledcontroller packages stay
// free of an import cycle back to session.
type Device interface {
	Identity() string
	WriteFrame(b []byte) error
	DigitalWrite(pin int, value int) error
	Pin(index int) (model.PinDescriptor, bool)
	PinCount() int
	PinMap() model.PinMap
	SetBusy(program string)
	ClearBusy()
	StartBlink() error
	StopBlink()
	Logger() *slog.Logger
}

// Handler performs one named action against d, given its raw string
// parameters.
type Handler func(d Device, params []string) error

// Entry is one row of a variant's action table.
type Entry struct {
	RequiresParams bool
	Handler        Handler
}

// Table maps an uppercase action name to its entry.
type Table map[string]Entry

// Names lists the table's action names, for the discrete snapshot's
// commands array (spec.md §4.4).
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	return names
}

// Execute validates and dispatches name against params, per spec.md
// §4.4: unknown names fail with ErrActionUnavailable, missing/invalid
// params fail with ErrActionMalformed. The caller (the device session)
// emits the outward `update` event after a successful dispatch.
func (t Table) Execute(d Device, name string, params []string) error {
	entry, ok := t[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrActionUnavailable, name)
	}
	if entry.RequiresParams && len(params) == 0 {
		return fmt.Errorf("%w: %q requires parameters", ErrActionMalformed, name)
	}
	return entry.Handler(d, params)
}
