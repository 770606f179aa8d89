package action

import (
	"fmt"
	"strconv"

	"github.com/jangala-dev/firmata-gateway/internal/firmata"
)

// GenericActions returns the built-in action table every variant starts
// from (spec.md §4.4): BLINKON, BLINKOFF, TOGGLELED, SETPINVALUE.
func GenericActions() Table {
	return Table{
		"BLINKON": {
			RequiresParams: false,
			Handler: func(d Device, _ []string) error {
				if err := d.StartBlink(); err != nil {
					d.Logger().Warn("blink already running", "identity", d.Identity())
				}
				return nil
			},
		},
		"BLINKOFF": {
			RequiresParams: false,
			Handler: func(d Device, _ []string) error {
				d.StopBlink()
				return nil
			},
		},
		"TOGGLELED": {
			RequiresParams: false,
			Handler: func(d Device, _ []string) error {
				led := d.PinMap().LED
				pin, ok := d.Pin(led)
				if !ok {
					return fmt.Errorf("%w: no LED pin on this board", ErrActionMalformed)
				}
				next := firmata.High
				if pin.Value != 0 {
					next = firmata.Low
				}
				return d.DigitalWrite(led, next)
			},
		},
		"SETPINVALUE": {
			RequiresParams: true,
			Handler: func(d Device, params []string) error {
				pin, value, err := parsePinValue(params)
				if err != nil {
					return err
				}
				// A digital pin only carries 0/1; out-of-domain values
				// are refused without erroring the caller, matching the
				// concrete scenario in spec §8.
				if value != firmata.Low && value != firmata.High {
					d.Logger().Warn("SETPINVALUE: value out of domain, not writing",
						"identity", d.Identity(), "pin", pin, "value", value)
					return nil
				}
				return d.DigitalWrite(pin, value)
			},
		},
	}
}

func parsePinValue(params []string) (pin, value int, err error) {
	if len(params) < 2 {
		return 0, 0, fmt.Errorf("%w: SETPINVALUE requires pin and value", ErrActionMalformed)
	}
	pin, err = strconv.Atoi(params[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad pin %q", ErrActionMalformed, params[0])
	}
	value, err = strconv.Atoi(params[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad value %q", ErrActionMalformed, params[1])
	}
	return pin, value, nil
}
