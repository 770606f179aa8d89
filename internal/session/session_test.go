package session

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/jangala-dev/firmata-gateway/internal/firmata"
	"github.com/jangala-dev/firmata-gateway/internal/mocklink"
	"github.com/jangala-dev/firmata-gateway/internal/model"
	"github.com/jangala-dev/firmata-gateway/internal/repository"
)

// fakeRoster records the Joined/Updated/Left calls a Session makes.
type fakeRoster struct {
	mu      sync.Mutex
	joined  []string
	updated []model.Snapshot
	left    []string
}

func (r *fakeRoster) Joined(identity string, _ *Session, snap model.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined = append(r.joined, identity)
	r.updated = append(r.updated, snap)
}

func (r *fakeRoster) Updated(_ string, snap model.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, snap)
}

func (r *fakeRoster) Left(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left = append(r.left, identity)
}

func (r *fakeRoster) lastSnapshot() model.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updated[len(r.updated)-1]
}

func (r *fakeRoster) leftCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.left)
}

// fakeDevice answers the identification sequence (and, optionally,
// subsequent heartbeat queries) from the far end of a mocklink.Pair,
// standing in for a real board during session tests.
type fakeDevice struct {
	end               *mocklink.End
	buf               []byte
	suppressHeartbeat bool
	capability        []byte
	mapping           []byte
}

func newFakeDevice(end *mocklink.End) *fakeDevice {
	return &fakeDevice{
		end: end,
		// one INPUT/OUTPUT-capable digital pin (pin 0), one ANALOG pin (pin 1)
		capability: []byte{0, 1, 1, 1, firmata.NotAnalog, 2, 10, firmata.NotAnalog},
		mapping:    []byte{firmata.NotAnalog, 0},
	}
}

func (f *fakeDevice) run() {
	for {
		b, err := f.end.Read()
		if err != nil {
			return
		}
		f.buf = append(f.buf, b...)
		for {
			frame, rest, ok := extractFrame(f.buf)
			if !ok {
				break
			}
			f.buf = rest
			f.respond(frame)
		}
	}
}

func extractFrame(buf []byte) (frame, rest []byte, ok bool) {
	start := bytes.IndexByte(buf, byte(firmata.StartSysex))
	if start < 0 {
		return nil, buf, false
	}
	end := bytes.IndexByte(buf[start:], byte(firmata.EndSysex))
	if end < 0 {
		return nil, buf, false
	}
	end += start
	return buf[start : end+1], buf[end+1:], true
}

func (f *fakeDevice) respond(frame []byte) {
	switch {
	case bytes.Equal(frame, firmata.EncodeQueryFirmware()):
		if f.suppressHeartbeat {
			return
		}
		_ = f.end.Write(buildFirmwareFrame(2, 5, "Generic"))
	case bytes.Equal(frame, firmata.EncodeCapabilityQuery()):
		data := append([]byte{byte(firmata.CapabilityResponse)}, f.capability...)
		_ = f.end.Write(firmata.EncodeSysex(data))
	case bytes.Equal(frame, firmata.EncodeAnalogMappingQuery()):
		data := append([]byte{byte(firmata.AnalogMappingResponse)}, f.mapping...)
		_ = f.end.Write(firmata.EncodeSysex(data))
	}
}

func buildFirmwareFrame(major, minor byte, name string) []byte {
	data := []byte{byte(firmata.ReportFirmware), major, minor}
	data = append(data, firmata.EncodeString(name)...)
	return firmata.EncodeSysex(data)
}

func waitReady(t *testing.T, resultCh chan error, timeout time.Duration) {
	t.Helper()
	select {
	case err := <-resultCh:
		if err != nil {
			t.Fatalf("expected successful identification, got %v", err)
		}
	case <-time.After(timeout):
		t.Fatal("timed out waiting for identification result")
	}
}

func newTestSession(roster *fakeRoster) (*Session, *fakeDevice, chan error) {
	sessionSide, deviceSide := mocklink.NewPair("test-device")
	dev := newFakeDevice(deviceSide)
	go dev.run()

	resultCh := make(chan error, 1)
	s := New(sessionSide, roster, repository.NewInMemory(),
		WithConnectResult(func(_ string, err error) { resultCh <- err }),
	)
	return s, dev, resultCh
}

func TestIdentificationReachesReady(t *testing.T) {
	roster := &fakeRoster{}
	s, _, resultCh := newTestSession(roster)
	s.Start()

	waitReady(t, resultCh, time.Second)

	snap := s.Snapshot()
	if !snap.Online {
		t.Fatal("expected snapshot to report online")
	}
	if snap.Name != "Generic" {
		t.Fatalf("expected firmware name Generic, got %q", snap.Name)
	}
	if len(snap.Pins) != 2 {
		t.Fatalf("expected 2 pins, got %d", len(snap.Pins))
	}
	if !snap.Pins[1].Analog {
		t.Fatal("expected pin 1 to be reported analog")
	}
	if roster.leftCount() != 0 {
		t.Fatal("did not expect Left before disconnect")
	}
}

func TestIdentificationTimeout(t *testing.T) {
	old := identificationTimeout
	identificationTimeout = 30 * time.Millisecond
	defer func() { identificationTimeout = old }()

	sessionSide, deviceSide := mocklink.NewPair("silent-device")
	go func() {
		// drain without ever answering
		for {
			if _, err := deviceSide.Read(); err != nil {
				return
			}
		}
	}()

	resultCh := make(chan error, 1)
	s := New(sessionSide, &fakeRoster{}, repository.NewInMemory(),
		WithConnectResult(func(_ string, err error) { resultCh <- err }),
	)
	s.Start()

	select {
	case err := <-resultCh:
		if err == nil {
			t.Fatal("expected a timeout error")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for identification-timeout callback")
	}
}

func TestHeartbeatTimeoutClosesSession(t *testing.T) {
	oldInterval, oldDeadline := defaultHeartbeat, heartbeatDeadline
	heartbeatDeadline = 30 * time.Millisecond
	defer func() { defaultHeartbeat, heartbeatDeadline = oldInterval, oldDeadline }()

	roster := &fakeRoster{}
	sessionSide, deviceSide := mocklink.NewPair("flaky-device")
	dev := newFakeDevice(deviceSide)
	go dev.run()

	resultCh := make(chan error, 1)
	s := New(sessionSide, roster, repository.NewInMemory(),
		WithHeartbeatInterval(20*time.Millisecond),
		WithConnectResult(func(_ string, err error) { resultCh <- err }),
	)
	s.Start()
	waitReady(t, resultCh, time.Second)

	// Stop answering further firmware queries: the next heartbeat query
	// goes unanswered and its deadline should fire.
	dev.suppressHeartbeat = true

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if roster.leftCount() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected roster.Left after heartbeat timeout")
}

func TestExecuteActionSetPinValue(t *testing.T) {
	roster := &fakeRoster{}
	s, _, resultCh := newTestSession(roster)
	s.Start()
	waitReady(t, resultCh, time.Second)

	if err := s.ExecuteAction("SETPINVALUE", []string{"0", "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := roster.lastSnapshot()
	if snap.Pins[0].Value != 1 {
		t.Fatalf("expected pin 0 value 1, got %d", snap.Pins[0].Value)
	}
}

func TestExecuteActionSetPinValueOutOfDomainIsNoopNotError(t *testing.T) {
	roster := &fakeRoster{}
	s, _, resultCh := newTestSession(roster)
	s.Start()
	waitReady(t, resultCh, time.Second)

	if err := s.ExecuteAction("SETPINVALUE", []string{"0", "2"}); err != nil {
		t.Fatalf("expected no error for an out-of-domain value, got %v", err)
	}
}

func TestExecuteActionUnknownNameFails(t *testing.T) {
	roster := &fakeRoster{}
	s, _, resultCh := newTestSession(roster)
	s.Start()
	waitReady(t, resultCh, time.Second)

	if err := s.ExecuteAction("NOSUCHACTION", nil); err == nil {
		t.Fatal("expected an error for an unknown action")
	}
}

func TestDisconnectNotifiesRoster(t *testing.T) {
	roster := &fakeRoster{}
	s, _, resultCh := newTestSession(roster)
	s.Start()
	waitReady(t, resultCh, time.Second)

	s.Disconnect()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if roster.leftCount() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected roster.Left after Disconnect")
}
