// Package variant is the sole point where a firmware name becomes a
// device's variant identity (spec.md §4.5): a session's variant is fixed
// for its lifetime, chosen once at identification.
package variant

import (
	"strings"

	"github.com/jangala-dev/firmata-gateway/internal/action"
	"github.com/jangala-dev/firmata-gateway/internal/ledcontroller"
	"github.com/jangala-dev/firmata-gateway/internal/model"
)

// Tag names a resolved device variant. Design Notes §9: modeled as a
// tagged variant plus a plain action-table map, not subtype
// polymorphism.
type Tag string

const (
	Generic       Tag = "Generic"
	LedController Tag = "LedController"
	MajorTom      Tag = "MajorTom"
)

// Resolve strips a trailing ".ino" token from name and maps the
// remaining prefix to a variant tag (spec.md §4.5). Any name it does not
// recognize resolves to Generic.
func Resolve(firmwareName string) (Tag, string) {
	name := strings.TrimSuffix(firmwareName, ".ino")

	switch {
	case strings.HasPrefix(name, string(MajorTom)):
		return MajorTom, name
	case strings.HasPrefix(name, string(LedController)):
		return LedController, name
	default:
		return Generic, name
	}
}

// ActionTable builds the action table for tag, starting from the
// built-in generic actions and layering the variant's own on top
// (spec.md §4.4/§4.6). MajorTom is generic-plus-resolver-only per Design
// Notes §9: its extended actions are not specified anywhere visible in
// the source material, so none are added.
func ActionTable(tag Tag, d action.Device) action.Table {
	table := action.GenericActions()
	switch tag {
	case LedController:
		for name, entry := range ledcontroller.Actions() {
			table[name] = entry
		}
	}
	return table
}

// PinMapFor derives the conventional LED/RX/TX pins for a board from its
// pin count. This is a supplemental mapping (spec.md §3 "Pin map"): the
// pack carries no per-architecture pin table for Firmata boards, so a
// coarse split between small 8-bit AVR boards (Uno-class, <=20 pins)
// and every larger board, which gets the ESP-style map.
func PinMapFor(pinCount int) model.PinMap {
	if pinCount <= 20 {
		return model.PinMap{LED: 13, RX: 0, TX: 1}
	}
	return model.PinMap{LED: 2, RX: 3, TX: 1}
}
