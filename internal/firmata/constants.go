// Package firmata implements the subset of the Firmata v2.x wire protocol
// needed to identify, sample and actuate a device over a byte stream.
package firmata

// Command is a top-level Firmata command byte, or the high nibble of a
// port-addressed command (DigitalMessage, AnalogMessage, ReportDigital,
// ReportAnalog all OR the low nibble with a port/pin/channel number).
type Command byte

const (
	DigitalMessage   Command = 0x90 // send data for a digital port
	AnalogMessage    Command = 0xE0 // send data for an analog pin (or PWM)
	ReportAnalog     Command = 0xC0 // enable/disable analog input by pin
	ReportDigital    Command = 0xD0 // enable/disable digital input by port
	SetPinMode       Command = 0xF4 // set a pin to INPUT/OUTPUT/ANALOG/PWM/etc
	ReportVersion    Command = 0xF9 // report protocol version
	SystemReset      Command = 0xFF // reset from MIDI
	StartSysex       Command = 0xF0 // start a MIDI sysex message
	EndSysex         Command = 0xF7 // end a MIDI sysex message
)

// SysexCommand is the first data byte of a sysex frame, naming the
// extended command being carried.
type SysexCommand byte

const (
	ServoConfig          SysexCommand = 0x70
	StringData           SysexCommand = 0x71
	SerialMessage        SysexCommand = 0x60
	I2CRequest           SysexCommand = 0x76
	I2CReply             SysexCommand = 0x77
	I2CConfig            SysexCommand = 0x78
	ReportFirmware       SysexCommand = 0x79
	SamplingInterval     SysexCommand = 0x7A
	AnalogMappingQuery   SysexCommand = 0x69
	AnalogMappingResponse SysexCommand = 0x6A
	CapabilityQuery      SysexCommand = 0x6B
	CapabilityResponse   SysexCommand = 0x6C
	PinStateQuery        SysexCommand = 0x6D
	PinStateResponse     SysexCommand = 0x6E
)

// SerialSubCommand selects the operation carried by a SerialMessage sysex
// frame (§4.2/§4.6): the high nibble of the first data byte after the
// command, combined with the target serial port number in the low nibble.
type SerialSubCommand byte

const (
	SerialConfig SerialSubCommand = 0x10
	SerialWrite  SerialSubCommand = 0x20
	SerialRead   SerialSubCommand = 0x30
)

// PinMode values as reported in CAPABILITY_RESPONSE and set via
// SET_PIN_MODE.
type PinMode int

const (
	ModeInput  PinMode = 0
	ModeOutput PinMode = 1
	ModeAnalog PinMode = 2
	ModePWM    PinMode = 3
	ModeServo  PinMode = 4
)

func (m PinMode) String() string {
	switch m {
	case ModeInput:
		return "INPUT"
	case ModeOutput:
		return "OUTPUT"
	case ModeAnalog:
		return "ANALOG"
	case ModePWM:
		return "PWM"
	case ModeServo:
		return "SERVO"
	default:
		return "UNKNOWN"
	}
}

// NotAnalog is the analog-channel sentinel meaning "this pin has no
// analog channel assigned" in ANALOG_MAPPING_RESPONSE.
const NotAnalog = 127

// High/low digital levels.
const (
	Low  = 0
	High = 1
)

// DefaultSamplingIntervalMS is the value the core always requests
// (spec.md §4.3 READY transition): 1000ms digital/analog sample rate.
const DefaultSamplingIntervalMS = 1000
