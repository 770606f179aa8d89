package firmata

import (
	"math/rand"
	"testing"
)

func feedAll(t *testing.T, d *Decoder, frame []byte) (Event, error) {
	t.Helper()
	var ev Event
	var err error
	for _, b := range frame {
		ev, err = d.Feed(b)
		if ev != nil || err != nil {
			return ev, err
		}
	}
	return nil, nil
}

func TestDecodeFirmwareName(t *testing.T) {
	d := NewDecoder()
	frame := EncodeSysex(append([]byte{byte(ReportFirmware), 2, 5}, EncodeString("GenericBoard.ino")...))

	ev, err := feedAll(t, d, frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fw, ok := ev.(FirmwareEvent)
	if !ok {
		t.Fatalf("expected FirmwareEvent, got %#v", ev)
	}
	if fw.Major != 2 || fw.Minor != 5 {
		t.Fatalf("expected version 2.5, got %d.%d", fw.Major, fw.Minor)
	}
	if fw.Name != "GenericBoard.ino" {
		t.Fatalf("expected name GenericBoard.ino, got %q", fw.Name)
	}
}

func TestDecodeCapabilityResponse(t *testing.T) {
	d := NewDecoder()
	// Pin 0: INPUT, OUTPUT. Pin 1: ANALOG only.
	body := []byte{byte(CapabilityResponse)}
	body = append(body, byte(ModeInput), 1, byte(ModeOutput), 1, NotAnalog)
	body = append(body, byte(ModeAnalog), 10, NotAnalog)
	frame := EncodeSysex(body)

	ev, err := feedAll(t, d, frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cap, ok := ev.(CapabilityEvent)
	if !ok {
		t.Fatalf("expected CapabilityEvent, got %#v", ev)
	}
	if len(cap.Pins) != 2 {
		t.Fatalf("expected 2 pins, got %d", len(cap.Pins))
	}
	if !HasMode(cap.Pins[0].SupportedModes, ModeInput) || !HasMode(cap.Pins[0].SupportedModes, ModeOutput) {
		t.Fatalf("pin 0 missing expected modes: %#v", cap.Pins[0].SupportedModes)
	}
	if !HasMode(cap.Pins[1].SupportedModes, ModeAnalog) {
		t.Fatalf("pin 1 missing ANALOG: %#v", cap.Pins[1].SupportedModes)
	}
}

func TestDecodeAnalogMapping(t *testing.T) {
	d := NewDecoder()
	frame := EncodeSysex([]byte{byte(AnalogMappingResponse), 127, 127, 0, 1})

	ev, err := feedAll(t, d, frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	am, ok := ev.(AnalogMappingEvent)
	if !ok {
		t.Fatalf("expected AnalogMappingEvent, got %#v", ev)
	}
	want := []int{127, 127, 0, 1}
	if len(am.Channels) != len(want) {
		t.Fatalf("expected %d channels, got %d", len(want), len(am.Channels))
	}
	for i, c := range want {
		if am.Channels[i] != c {
			t.Fatalf("channel %d: expected %d, got %d", i, c, am.Channels[i])
		}
	}
}

func TestDecodeDigitalMessage(t *testing.T) {
	d := NewDecoder()
	// Port 0, pin 2 set (bit 2 -> value 0x04).
	frame := EncodeDigitalWrite(0, 0x04)

	ev, err := feedAll(t, d, frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dm, ok := ev.(DigitalPortEvent)
	if !ok {
		t.Fatalf("expected DigitalPortEvent, got %#v", ev)
	}
	if dm.Port != 0 || dm.Value != 0x04 {
		t.Fatalf("expected port 0 value 4, got port %d value %d", dm.Port, dm.Value)
	}
}

func TestDecodeAnalogMessage(t *testing.T) {
	d := NewDecoder()
	frame := []byte{byte(AnalogMessage) | 3, 0x55, 0x02} // channel 3, value 0x55 | 2<<7 = 341

	ev, err := feedAll(t, d, frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	am, ok := ev.(AnalogEvent)
	if !ok {
		t.Fatalf("expected AnalogEvent, got %#v", ev)
	}
	if am.Channel != 3 {
		t.Fatalf("expected channel 3, got %d", am.Channel)
	}
	wantValue := int(0x55) | int(0x02)<<7
	if am.Value != wantValue {
		t.Fatalf("expected value %d, got %d", wantValue, am.Value)
	}
}

// TestSysexRoundTrip is the universally-quantified round-trip property
// from spec §8.4: decode(encode_sysex(s)) == s for any byte sequence
// with all bytes < 128, when the sysex command is one the decoder does
// not specially interpret (it falls through to RawSysexEvent, preserving
// the payload verbatim).
func TestSysexRoundTrip(t *testing.T) {
	for trial := 0; trial < 20; trial++ {
		n := rand.Intn(16)
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(rand.Intn(128))
		}

		const unhandledCmd = 0x01
		frame := EncodeSysex(append([]byte{unhandledCmd}, payload...))

		d := NewDecoder()
		ev, err := feedAll(t, d, frame)
		if err != nil {
			t.Fatalf("trial %d: unexpected error: %v", trial, err)
		}
		raw, ok := ev.(RawSysexEvent)
		if !ok {
			t.Fatalf("trial %d: expected RawSysexEvent, got %#v", trial, ev)
		}
		if len(raw.Data) != len(payload) {
			t.Fatalf("trial %d: expected %d bytes, got %d", trial, len(payload), len(raw.Data))
		}
		for i := range payload {
			if raw.Data[i] != payload[i] {
				t.Fatalf("trial %d: byte %d: expected %d, got %d", trial, i, payload[i], raw.Data[i])
			}
		}
	}
}

func TestDecoderResyncsAfterMalformedSysex(t *testing.T) {
	d := NewDecoder()

	// Feed a sysex data byte with the MSB set - malformed.
	if _, err := d.Feed(byte(StartSysex)); err != nil {
		t.Fatalf("unexpected error starting sysex: %v", err)
	}
	if _, err := d.Feed(0xFF); err == nil {
		t.Fatalf("expected malformed frame error")
	}

	// The decoder should now be ready for a fresh, well-formed frame.
	frame := EncodeSysex([]byte{0x01, 0x2A})
	for i, b := range frame[:len(frame)-1] {
		if ev, err := d.Feed(b); ev != nil || err != nil {
			t.Fatalf("byte %d: unexpected early result ev=%#v err=%v", i, ev, err)
		}
	}
	ev, err := d.Feed(frame[len(frame)-1])
	if err != nil {
		t.Fatalf("unexpected error after resync: %v", err)
	}
	raw, ok := ev.(RawSysexEvent)
	if !ok {
		t.Fatalf("expected RawSysexEvent after resync, got %#v", ev)
	}
	if len(raw.Data) != 1 || raw.Data[0] != 0x2A {
		t.Fatalf("expected payload [0x2A], got %#v", raw.Data)
	}
}
