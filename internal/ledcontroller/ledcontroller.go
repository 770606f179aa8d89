// Package ledcontroller implements the LedController device variant
// (spec.md §4.6): a generic session plus a serial-framed command
// emitter addressed through the device's software serial passthrough.
package ledcontroller

import (
	"fmt"
	"strconv"

	"github.com/jangala-dev/firmata-gateway/internal/action"
	"github.com/jangala-dev/firmata-gateway/internal/firmata"
)

// SoftSerialPort is the device's software serial port index the
// controller firmware listens on; fixed for this variant (spec.md
// §4.6).
const SoftSerialPort = 0

// BaudRate is the fixed baud for the LedController's downstream UART.
const BaudRate = 9600

// Command letters, one per action.
const (
	cmdSetColor      = 'C'
	cmdPulseColor    = 'P'
	cmdSetBrightness = 'B'
	cmdRainbow       = 'R'
	cmdKITT          = 'K'
)

// Configure sends SERIAL_CONFIG for the software serial port at
// BaudRate, using the variant's RX/TX pins (spec.md §4.6). Called once,
// on entering READY.
func Configure(d action.Device) error {
	pm := d.PinMap()
	return d.WriteFrame(firmata.EncodeSerialConfig(SoftSerialPort, BaudRate, pm.RX, pm.TX))
}

// Actions returns the LedController's action table: RAINBOW, KITT,
// PULSECOLOR, SETCOLOR.
func Actions() action.Table {
	return action.Table{
		"RAINBOW": {
			RequiresParams: false,
			Handler: func(d action.Device, params []string) error {
				return send(d, cmdRainbow)
			},
		},
		"KITT": {
			RequiresParams: true,
			Handler: func(d action.Device, params []string) error {
				return send(d, cmdKITT, params...)
			},
		},
		"PULSECOLOR": {
			RequiresParams: true,
			Handler: func(d action.Device, params []string) error {
				return send(d, cmdPulseColor, params...)
			},
		},
		"SETCOLOR": {
			RequiresParams: true,
			Handler: func(d action.Device, params []string) error {
				return send(d, cmdSetColor, params...)
			},
		},
	}
}

// send builds the '[' <cmd> <params...> ']' payload and writes it
// through the SERIAL_WRITE passthrough (spec.md §4.6). Each parameter
// must fit in a byte; violation is ActionMalformed.
func send(d action.Device, cmd byte, params ...string) error {
	values, err := parseByteParams(params)
	if err != nil {
		return err
	}

	payload := make([]byte, 0, len(values)+3)
	payload = append(payload, '[', cmd)
	payload = append(payload, values...)
	payload = append(payload, ']')

	return d.WriteFrame(firmata.EncodeSerialWrite(SoftSerialPort, payload))
}

func parseByteParams(params []string) ([]byte, error) {
	values := make([]byte, len(params))
	for i, p := range params {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %q is not an integer", action.ErrActionMalformed, p)
		}
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("%w: parameter %d out of 8-bit range [0,255]", action.ErrActionMalformed, n)
		}
		values[i] = byte(n)
	}
	return values, nil
}
