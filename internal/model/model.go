// Package model holds the data types shared across the connection engine:
// pin descriptors, pin maps, and the discrete snapshot shipped to
// outside subscribers (spec.md §3).
package model

import (
	"strconv"

	"github.com/jangala-dev/firmata-gateway/internal/firmata"
)

// SessionState is one state of the device session state machine
// (spec.md §4.3): OPENING -> IDENTIFYING -> READY -> CLOSING -> CLOSED.
type SessionState int

const (
	StateOpening SessionState = iota
	StateIdentifying
	StateReady
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateOpening:
		return "OPENING"
	case StateIdentifying:
		return "IDENTIFYING"
	case StateReady:
		return "READY"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// PinDescriptor is the host-side cache of one hardware pin's
// capabilities and last observed value (spec.md §3).
type PinDescriptor struct {
	SupportedModes []firmata.PinMode
	AnalogChannel  int // firmata.NotAnalog (127) if this pin has no analog channel
	Mode           firmata.PinMode
	Value          int
}

// IsDigital is true for pins that expose no analog channel, support at
// least one mode, and do not support ANALOG - the derived predicate from
// spec.md §3.
func (p PinDescriptor) IsDigital() bool {
	return p.AnalogChannel == firmata.NotAnalog &&
		len(p.SupportedModes) > 0 &&
		!firmata.HasMode(p.SupportedModes, firmata.ModeAnalog)
}

// IsAnalog is true when the pin supports the ANALOG mode.
func (p PinDescriptor) IsAnalog() bool {
	return firmata.HasMode(p.SupportedModes, firmata.ModeAnalog)
}

// PinMap names a board architecture's conventional pins, used by
// handlers that refer to pins symbolically (spec.md §3).
type PinMap struct {
	LED int
	RX  int
	TX  int
}

// FirmwareIdentity is the (name, version) pair returned by a device's
// queryFirmware response (spec.md §3).
type FirmwareIdentity struct {
	Name    string
	Major   byte
	Minor   byte
}

// Version renders the firmware identity as "major.minor".
func (f FirmwareIdentity) Version() string {
	return strconv.Itoa(int(f.Major)) + "." + strconv.Itoa(int(f.Minor))
}

// PinSnapshot is the value-typed projection of one pin for the discrete
// snapshot.
type PinSnapshot struct {
	Index  int    `json:"index"`
	Mode   string `json:"mode"`
	Value  int    `json:"value"`
	Analog bool   `json:"analog"`
}

// Snapshot is the discrete, value-typed projection of a session shipped
// to external subscribers (spec.md §3): derived on demand, never
// mutated, never carrying references into live session state.
type Snapshot struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Version          string        `json:"version"`
	VendorID         string        `json:"vendorId"`
	ProductID        string        `json:"productId"`
	Type             string        `json:"type"`
	CurrentProgram   string        `json:"currentProgram"`
	Online           bool          `json:"online"`
	HeartbeatPending bool          `json:"heartbeatPending"`
	Commands         []string      `json:"commands"`
	Pins             []PinSnapshot `json:"pins"`
}
