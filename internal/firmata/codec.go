package firmata

import (
	"errors"
	"fmt"
)

// ErrMalformedFrame is wrapped into the error returned by Feed when a
// sysex frame cannot be parsed; the caller (the device session) logs and
// discards it per spec §7 CodecError - the decoder has already reset
// itself by the time it returns and resynchronizes at the next
// StartSysex or recognized command byte.
var ErrMalformedFrame = errors.New("firmata: malformed frame")

// PinCapability is one pin's entry from a CAPABILITY_RESPONSE: the set of
// modes the board says it supports for that pin.
type PinCapability struct {
	SupportedModes []PinMode
}

// Event is produced by Decoder.Feed as complete frames are recognized.
// The device session is the sole consumer of the codec-internal event
// stream (Design Notes §9 - split from the outward snapshot channel).
type Event interface{ isEvent() }

type FirmwareEvent struct {
	Major, Minor byte
	Name         string
}

type CapabilityEvent struct{ Pins []PinCapability }

type AnalogMappingEvent struct{ Channels []int } // index = pin, value = channel or NotAnalog

type DigitalPortEvent struct {
	Port  int
	Value int // packed 8 bits (LSB = pin Port*8)
}

type AnalogEvent struct {
	Channel int
	Value   int // 10/14-bit reading
}

type StringDataEvent struct{ Text string }

type RawSysexEvent struct {
	Cmd  byte
	Data []byte
}

func (FirmwareEvent) isEvent()      {}
func (CapabilityEvent) isEvent()    {}
func (AnalogMappingEvent) isEvent() {}
func (DigitalPortEvent) isEvent()   {}
func (AnalogEvent) isEvent()        {}
func (StringDataEvent) isEvent()    {}
func (RawSysexEvent) isEvent()      {}

// Decoder is a byte-at-a-time Firmata frame recognizer. It is not
// goroutine-safe; one Decoder belongs to exactly one device session,
// fed from that session's Link-reading loop.
type Decoder struct {
	inSysex  bool
	sysexBuf []byte

	pendingCmd byte
	pendingBuf []byte
	pendingLen int
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes one wire byte and returns an Event once a complete frame
// has been recognized, or (nil, nil) while a frame is still in progress.
// A non-nil error indicates a malformed frame; the decoder has already
// reset itself and will resynchronize at the next StartSysex or
// recognized command byte.
func (d *Decoder) Feed(b byte) (Event, error) {
	if d.inSysex {
		if b == byte(EndSysex) {
			d.inSysex = false
			data := d.sysexBuf
			d.sysexBuf = nil
			return d.parseSysex(data)
		}
		if b&0x80 != 0 {
			d.inSysex = false
			d.sysexBuf = nil
			return nil, fmt.Errorf("%w: sysex data byte 0x%02X has MSB set", ErrMalformedFrame, b)
		}
		d.sysexBuf = append(d.sysexBuf, b)
		return nil, nil
	}

	if d.pendingLen > 0 {
		d.pendingBuf = append(d.pendingBuf, b)
		d.pendingLen--
		if d.pendingLen == 0 {
			return d.finishPending()
		}
		return nil, nil
	}

	switch {
	case b == byte(StartSysex):
		d.inSysex = true
		d.sysexBuf = nil
		return nil, nil
	case Command(b&0xF0) == DigitalMessage:
		d.pendingCmd = b
		d.pendingBuf = d.pendingBuf[:0]
		d.pendingLen = 2
		return nil, nil
	case Command(b&0xF0) == AnalogMessage:
		d.pendingCmd = b
		d.pendingBuf = d.pendingBuf[:0]
		d.pendingLen = 2
		return nil, nil
	case b == byte(ReportVersion):
		d.pendingCmd = b
		d.pendingBuf = d.pendingBuf[:0]
		d.pendingLen = 2
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unexpected command byte 0x%02X", ErrMalformedFrame, b)
	}
}

func (d *Decoder) finishPending() (Event, error) {
	cmd := d.pendingCmd
	buf := d.pendingBuf
	d.pendingBuf = nil

	switch {
	case Command(cmd&0xF0) == DigitalMessage:
		port := int(cmd & 0x0F)
		value := int(buf[0]) | int(buf[1])<<7
		return DigitalPortEvent{Port: port, Value: value}, nil
	case Command(cmd&0xF0) == AnalogMessage:
		channel := int(cmd & 0x0F)
		value := int(buf[0]) | int(buf[1])<<7
		return AnalogEvent{Channel: channel, Value: value}, nil
	case cmd == byte(ReportVersion):
		// protocol version byte pair is informational only; the core
		// relies on REPORT_FIRMWARE (sysex) for identity, not this.
		return nil, nil
	}
	return nil, fmt.Errorf("%w: unreachable pending command 0x%02X", ErrMalformedFrame, cmd)
}

func (d *Decoder) parseSysex(data []byte) (Event, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty sysex frame", ErrMalformedFrame)
	}
	cmd := data[0]
	data = data[1:]

	switch SysexCommand(cmd) {
	case ReportFirmware:
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: short REPORT_FIRMWARE", ErrMalformedFrame)
		}
		major, minor := data[0], data[1]
		name := DecodeString(data[2:])
		return FirmwareEvent{Major: major, Minor: minor, Name: name}, nil

	case CapabilityResponse:
		pins, err := decodeCapability(data)
		if err != nil {
			return nil, err
		}
		return CapabilityEvent{Pins: pins}, nil

	case AnalogMappingResponse:
		channels := make([]int, len(data))
		for i, v := range data {
			channels[i] = int(v)
		}
		return AnalogMappingEvent{Channels: channels}, nil

	case StringData:
		return StringDataEvent{Text: DecodeString(data)}, nil

	default:
		return RawSysexEvent{Cmd: cmd, Data: append([]byte(nil), data...)}, nil
	}
}

// decodeCapability parses the CAPABILITY_RESPONSE body: for each pin, a
// run of (mode, resolution) byte pairs terminated by a single 0x7F. A mode
// byte outside allModes is a malformed frame.
func decodeCapability(data []byte) ([]PinCapability, error) {
	var pins []PinCapability
	var modes []PinMode
	even := true
	for _, v := range data {
		if v == NotAnalog {
			pins = append(pins, PinCapability{SupportedModes: modes})
			modes = nil
			even = true
			continue
		}
		if even {
			m := PinMode(v)
			if !HasMode(allModes, m) {
				return nil, fmt.Errorf("%w: unrecognized pin mode 0x%02X", ErrMalformedFrame, v)
			}
			modes = append(modes, m)
		}
		even = !even
	}
	return pins, nil
}

// allModes is the full, ordered set of modes the decoder recognizes.
var allModes = []PinMode{ModeInput, ModeOutput, ModeAnalog, ModePWM, ModeServo}

// HasMode reports whether modes contains m.
func HasMode(modes []PinMode, m PinMode) bool {
	for _, x := range modes {
		if x == m {
			return true
		}
	}
	return false
}
