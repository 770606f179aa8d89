// Package session implements the per-device connection engine (spec.md
// §4.3): the state machine that brings a device from raw link to
// identified, sampling, heartbeat-monitored operation.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jangala-dev/firmata-gateway/internal/action"
	"github.com/jangala-dev/firmata-gateway/internal/firmata"
	"github.com/jangala-dev/firmata-gateway/internal/ledcontroller"
	"github.com/jangala-dev/firmata-gateway/internal/link"
	"github.com/jangala-dev/firmata-gateway/internal/model"
	"github.com/jangala-dev/firmata-gateway/internal/repository"
	"github.com/jangala-dev/firmata-gateway/internal/variant"
)

// These are mutable (not const) so package tests can shrink the
// timings instead of sleeping real-world seconds; production code never
// assigns them.
var (
	identificationTimeout = 10 * time.Second
	heartbeatDeadline     = 2 * time.Second
	defaultHeartbeat      = 3 * time.Second
	blinkInterval         = 500 * time.Millisecond
)

// RosterPort is the surface a session uses to notify the Roster of its
// lifecycle (spec.md §4.7). Defined here, implemented by *roster.Roster,
// so this package never imports roster back.
type RosterPort interface {
	Joined(identity string, sess *Session, snap model.Snapshot)
	Updated(identity string, snap model.Snapshot)
	Left(identity string)
}

// ConnectResultFunc is called exactly once per session, when
// identification completes (err == nil) or the session closes before
// READY (err != nil: identification timeout, link failure or Disconnect),
// mirroring the Listener's connect-callback (spec.md §4.3/§4.8).
type ConnectResultFunc func(identity string, err error)

// Option configures a Session at construction.
type Option func(*Session)

// WithHeartbeatInterval overrides the default 3s heartbeat interval
// (Design Notes §9: configurable, default matches the shorter of the two
// source revisions).
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Session) { s.heartbeatInterval = d }
}

// WithConnectResult registers the identification-outcome callback.
func WithConnectResult(f ConnectResultFunc) Option {
	return func(s *Session) { s.onConnectResult = f }
}

// WithLogger overrides the session's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

type actionRequest struct {
	name   string
	params []string
	reply  chan error
}

// Session is one device's connection engine instance. All mutable state
// below the "loop-owned" marker is touched only by the run() goroutine -
// the cooperative single-threaded event loop spec.md §5 calls for.
// External callers interact exclusively through the channel-backed
// methods (ExecuteAction, Disconnect) and the mutex-guarded Snapshot.
type Session struct {
	identity string
	lnk      link.Link
	roster   RosterPort
	repo     repository.DeviceRepository
	log      *slog.Logger

	heartbeatInterval time.Duration
	onConnectResult   ConnectResultFunc

	actionCh  chan actionRequest
	disconnCh chan struct{}
	rawCh     chan []byte
	readErrCh chan error
	doneCh    chan struct{}

	// loop-owned
	state          model.SessionState
	dec            *firmata.Decoder
	firmware       model.FirmwareIdentity
	tag            variant.Tag
	actions        action.Table
	pins           []model.PinDescriptor
	analogChToPin  map[int]int
	capabilityDone bool
	mappingDone    bool
	pinMap         model.PinMap
	currentProgram string
	awaitingHB     bool
	blinking       bool

	idTimer       *time.Timer
	heartbeatTick *time.Ticker
	heartbeatDead *time.Timer
	blinkTick     *time.Ticker

	snapMu sync.RWMutex
	snap   model.Snapshot

	closeOnce sync.Once
}

// New constructs a Session bound to lnk, not yet started.
func New(lnk link.Link, roster RosterPort, repo repository.DeviceRepository, opts ...Option) *Session {
	s := &Session{
		identity:          lnk.Identity(),
		lnk:               lnk,
		roster:            roster,
		repo:              repo,
		log:               slog.Default(),
		heartbeatInterval: defaultHeartbeat,
		actionCh:          make(chan actionRequest),
		disconnCh:         make(chan struct{}, 1),
		rawCh:             make(chan []byte, 16),
		readErrCh:         make(chan error, 1),
		doneCh:            make(chan struct{}),
		state:             model.StateOpening,
		dec:               firmata.NewDecoder(),
		currentProgram:    "idle",
		analogChToPin:     make(map[int]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Identity is the stable string naming this session's link (spec.md §3).
func (s *Session) Identity() string { return s.identity }

// Start begins the connection engine: OPENING, then the read loop and
// the identification deadline.
func (s *Session) Start() {
	go s.readLoop()
	go s.run()
}

// readLoop pumps bytes off the Link into rawCh until it closes or
// errors. It never touches session-owned state directly.
func (s *Session) readLoop() {
	for {
		b, err := s.lnk.Read()
		if len(b) > 0 {
			select {
			case s.rawCh <- b:
			case <-s.doneCh:
				return
			}
		}
		if err != nil {
			select {
			case s.readErrCh <- err:
			default:
			}
			return
		}
	}
}

// run is the session's single-threaded event loop (spec.md §5): every
// observable effect (dispatch, pin-change emission, heartbeat) is
// totally ordered because it all happens on this one goroutine.
func (s *Session) run() {
	s.idTimer = time.NewTimer(identificationTimeout)
	if err := s.sendFrame(firmata.EncodeQueryFirmware()); err != nil {
		s.beginClosing(err)
	}

	for s.state != model.StateClosed {
		var idC, hbTickC, hbDeadC, blinkC <-chan time.Time
		if s.idTimer != nil {
			idC = s.idTimer.C
		}
		if s.heartbeatTick != nil {
			hbTickC = s.heartbeatTick.C
		}
		if s.heartbeatDead != nil {
			hbDeadC = s.heartbeatDead.C
		}
		if s.blinkTick != nil {
			blinkC = s.blinkTick.C
		}

		select {
		case b, ok := <-s.rawCh:
			if !ok {
				continue
			}
			s.feedBytes(b)

		case err := <-s.readErrCh:
			s.beginClosing(fmt.Errorf("%w: %v", ErrLinkClosed, err))

		case <-idC:
			if s.state != model.StateReady {
				s.log.Warn("identification timeout", "identity", s.identity)
				s.beginClosing(ErrConnectionTimeout)
			}

		case <-hbTickC:
			s.sendHeartbeat()

		case <-hbDeadC:
			s.log.Warn("heartbeat timeout", "identity", s.identity)
			s.beginClosing(ErrHeartbeatTimeout)

		case <-blinkC:
			s.toggleBlink()

		case req := <-s.actionCh:
			req.reply <- s.dispatchAction(req.name, req.params)

		case <-s.disconnCh:
			s.beginClosing(nil)
		}
	}
}

func (s *Session) feedBytes(b []byte) {
	for _, by := range b {
		ev, err := s.dec.Feed(by)
		if err != nil {
			// CodecError (spec.md §7): logged, frame discarded, session
			// continues - the decoder has already resynchronized.
			s.log.Debug("codec error, discarding frame", "identity", s.identity, "error", err)
			continue
		}
		if ev != nil {
			s.handleEvent(ev)
		}
	}
}

func (s *Session) handleEvent(ev firmata.Event) {
	switch e := ev.(type) {
	case firmata.FirmwareEvent:
		s.onFirmware(e)
	case firmata.CapabilityEvent:
		s.onCapability(e)
	case firmata.AnalogMappingEvent:
		s.onAnalogMapping(e)
	case firmata.DigitalPortEvent:
		s.onDigital(e)
	case firmata.AnalogEvent:
		s.onAnalog(e)
	case firmata.StringDataEvent:
		s.log.Debug("device string", "identity", s.identity, "text", e.Text)
	case firmata.RawSysexEvent:
		s.log.Debug("unhandled sysex", "identity", s.identity, "cmd", e.Cmd)
	}
}

func (s *Session) onFirmware(e firmata.FirmwareEvent) {
	if s.state == model.StateReady {
		// A firmware reply while READY is the heartbeat's response.
		if s.heartbeatDead != nil {
			s.heartbeatDead.Stop()
			s.heartbeatDead = nil
		}
		s.awaitingHB = false
		return
	}

	if s.state != model.StateOpening {
		return
	}

	s.firmware = model.FirmwareIdentity{Name: e.Name, Major: e.Major, Minor: e.Minor}
	s.state = model.StateIdentifying

	tag, cleanName := variant.Resolve(e.Name)
	s.tag = tag
	s.firmware.Name = cleanName
	s.actions = variant.ActionTable(tag, s)

	if err := s.sendFrame(firmata.EncodeCapabilityQuery()); err != nil {
		return
	}
	if err := s.sendFrame(firmata.EncodeAnalogMappingQuery()); err != nil {
		return
	}
}

func (s *Session) onCapability(e firmata.CapabilityEvent) {
	if s.state != model.StateIdentifying {
		return
	}
	pins := make([]model.PinDescriptor, len(e.Pins))
	for i, p := range e.Pins {
		pins[i] = model.PinDescriptor{SupportedModes: p.SupportedModes, AnalogChannel: firmata.NotAnalog}
	}
	s.pins = pins
	s.capabilityDone = true
	s.maybeEnterReady()
}

func (s *Session) onAnalogMapping(e firmata.AnalogMappingEvent) {
	if s.state != model.StateIdentifying {
		return
	}
	for i, ch := range e.Channels {
		if i >= len(s.pins) {
			break
		}
		s.pins[i].AnalogChannel = ch
		if ch != firmata.NotAnalog {
			s.analogChToPin[ch] = i
		}
	}
	s.mappingDone = true
	s.maybeEnterReady()
}

func (s *Session) maybeEnterReady() {
	if !s.capabilityDone || !s.mappingDone {
		return
	}
	s.enterReady()
}

func (s *Session) enterReady() {
	s.pinMap = variant.PinMapFor(len(s.pins))

	if s.idTimer != nil {
		s.idTimer.Stop()
		s.idTimer = nil
	}

	if err := s.sendFrame(firmata.EncodeSamplingInterval(firmata.DefaultSamplingIntervalMS)); err != nil {
		return
	}

	ports := make(map[int]bool)
	for i, p := range s.pins {
		if p.IsDigital() && firmata.HasMode(p.SupportedModes, firmata.ModeInput) {
			if err := s.sendFrame(firmata.EncodeSetPinMode(i, firmata.ModeInput)); err != nil {
				return
			}
			s.pins[i].Mode = firmata.ModeInput
			ports[i/8] = true
		}
	}
	for port := range ports {
		if err := s.sendFrame(firmata.EncodeReportDigital(port, true)); err != nil {
			return
		}
	}

	for i, p := range s.pins {
		if p.IsAnalog() {
			if err := s.sendFrame(firmata.EncodeReportAnalog(p.AnalogChannel, true)); err != nil {
				return
			}
			s.pins[i].Value = -1 // sentinel: forces the first reading to look like a transition
		}
	}

	if s.tag == variant.LedController {
		if err := ledcontroller.Configure(s); err != nil {
			return
		}
	}

	s.state = model.StateReady
	s.currentProgram = "idle"
	s.armHeartbeat()

	if s.repo != nil {
		_ = s.repo.Upsert(s.identity, s.firmware.Name, string(s.tag))
	}

	snap := s.buildSnapshot()
	s.setSnapshot(snap)
	if s.roster != nil {
		s.roster.Joined(s.identity, s, snap)
	}
	if s.onConnectResult != nil {
		s.onConnectResult(s.identity, nil)
	}
}

func (s *Session) armHeartbeat() {
	s.heartbeatTick = time.NewTicker(s.heartbeatInterval)
}

func (s *Session) sendHeartbeat() {
	if err := s.sendFrame(firmata.EncodeQueryFirmware()); err != nil {
		return
	}
	s.awaitingHB = true
	// Keep an already-armed deadline: re-arming it on every tick would
	// push it out forever whenever the interval is shorter than the
	// deadline.
	if s.heartbeatDead == nil {
		s.heartbeatDead = time.NewTimer(heartbeatDeadline)
	}
}

func (s *Session) onDigital(e firmata.DigitalPortEvent) {
	if s.state != model.StateReady {
		return
	}
	changed := false
	for i := 0; i < 8; i++ {
		pin := e.Port*8 + i
		if pin >= len(s.pins) {
			break
		}
		if s.pins[pin].Mode != firmata.ModeInput {
			continue
		}
		s.pins[pin].Value = (e.Value >> uint(i)) & 0x01
		changed = true
	}
	if changed {
		s.emitUpdate()
	}
}

func (s *Session) onAnalog(e firmata.AnalogEvent) {
	if s.state != model.StateReady {
		return
	}
	pin, ok := s.analogChToPin[e.Channel]
	if !ok || pin >= len(s.pins) {
		return
	}
	if s.pins[pin].Value == e.Value {
		return
	}
	s.pins[pin].Value = e.Value
	s.emitUpdate()
}

func (s *Session) toggleBlink() {
	led := s.pinMap.LED
	if led >= len(s.pins) {
		return
	}
	next := firmata.High
	if s.pins[led].Value != 0 {
		next = firmata.Low
	}
	_ = s.DigitalWrite(led, next)
}

func (s *Session) dispatchAction(name string, params []string) error {
	if s.state != model.StateReady {
		return fmt.Errorf("%w", ErrNotReady)
	}
	err := s.actions.Execute(s, name, params)
	if err == nil {
		s.emitUpdate()
	}
	return err
}

// ExecuteAction routes name/params to the session's action table
// (spec.md §4.4), from any goroutine.
func (s *Session) ExecuteAction(name string, params []string) error {
	reply := make(chan error, 1)
	req := actionRequest{name: name, params: params, reply: reply}
	select {
	case s.actionCh <- req:
	case <-s.doneCh:
		return fmt.Errorf("%w", ErrNotReady)
	}
	select {
	case err := <-reply:
		return err
	case <-s.doneCh:
		return fmt.Errorf("%w", ErrNotReady)
	}
}

// Disconnect requests an orderly close (spec.md §4.3 CLOSING transition).
func (s *Session) Disconnect() {
	select {
	case s.disconnCh <- struct{}{}:
	default:
	}
}

// beginClosing performs the CLOSING transition: cancel every timer,
// close the link, notify the Roster, and mark CLOSED - the central
// leak-prevention invariant (spec.md §3, §5).
func (s *Session) beginClosing(reason error) {
	if s.state == model.StateClosing || s.state == model.StateClosed {
		return
	}
	wasReady := s.state == model.StateReady
	s.state = model.StateClosing

	if s.idTimer != nil {
		s.idTimer.Stop()
		s.idTimer = nil
	}
	if s.heartbeatTick != nil {
		s.heartbeatTick.Stop()
		s.heartbeatTick = nil
	}
	if s.heartbeatDead != nil {
		s.heartbeatDead.Stop()
		s.heartbeatDead = nil
	}
	if s.blinkTick != nil {
		s.blinkTick.Stop()
		s.blinkTick = nil
	}

	_ = s.lnk.Close()

	if wasReady {
		if s.roster != nil {
			s.roster.Left(s.identity)
		}
	} else if s.onConnectResult != nil {
		if reason == nil {
			reason = errors.New("session: closed before identification")
		}
		s.onConnectResult(s.identity, reason)
	}

	s.state = model.StateClosed
	s.closeOnce.Do(func() { close(s.doneCh) })
}

// --- action.Device implementation ---

func (s *Session) WriteFrame(b []byte) error { return s.sendFrame(b) }

func (s *Session) sendFrame(b []byte) error {
	if err := s.lnk.Write(b); err != nil {
		s.beginClosing(fmt.Errorf("%w: %v", ErrLinkClosed, err))
		return err
	}
	return nil
}

func (s *Session) DigitalWrite(pin int, value int) error {
	if pin < 0 || pin >= len(s.pins) {
		return fmt.Errorf("%w: pin %d out of range", action.ErrActionMalformed, pin)
	}
	if s.pins[pin].Mode != firmata.ModeOutput {
		if err := s.sendFrame(firmata.EncodeSetPinMode(pin, firmata.ModeOutput)); err != nil {
			return err
		}
		s.pins[pin].Mode = firmata.ModeOutput
	}
	s.pins[pin].Value = value

	port := pin / 8
	var portValue byte
	base := port * 8
	for i := 0; i < 8; i++ {
		idx := base + i
		if idx >= len(s.pins) {
			break
		}
		if s.pins[idx].Mode == firmata.ModeOutput && s.pins[idx].Value != 0 {
			portValue |= 1 << uint(i)
		}
	}
	return s.sendFrame(firmata.EncodeDigitalWrite(port, portValue))
}

func (s *Session) Pin(index int) (model.PinDescriptor, bool) {
	if index < 0 || index >= len(s.pins) {
		return model.PinDescriptor{}, false
	}
	return s.pins[index], true
}

func (s *Session) PinCount() int { return len(s.pins) }

func (s *Session) PinMap() model.PinMap { return s.pinMap }

func (s *Session) SetBusy(program string) {
	s.currentProgram = program
	s.emitUpdate()
}

func (s *Session) ClearBusy() {
	s.currentProgram = "idle"
	s.emitUpdate()
}

func (s *Session) StartBlink() error {
	if s.blinking {
		return ErrAlreadyBlinking
	}
	s.blinking = true
	s.blinkTick = time.NewTicker(blinkInterval)
	s.currentProgram = "blink"
	s.emitUpdate()
	return nil
}

func (s *Session) StopBlink() {
	if !s.blinking {
		return
	}
	s.blinking = false
	if s.blinkTick != nil {
		s.blinkTick.Stop()
		s.blinkTick = nil
	}
	s.currentProgram = "idle"
	s.emitUpdate()
}

func (s *Session) Logger() *slog.Logger { return s.log }

// --- snapshot ---

func (s *Session) buildSnapshot() model.Snapshot {
	pins := make([]model.PinSnapshot, len(s.pins))
	for i, p := range s.pins {
		pins[i] = model.PinSnapshot{
			Index:  i,
			Mode:   p.Mode.String(),
			Value:  p.Value,
			Analog: p.IsAnalog(),
		}
	}
	var commands []string
	if s.actions != nil {
		commands = s.actions.Names()
	}
	return model.Snapshot{
		ID:               s.identity,
		Name:             s.firmware.Name,
		Version:          s.firmware.Version(),
		Type:             string(s.tag),
		CurrentProgram:   s.currentProgram,
		Online:           s.state == model.StateReady,
		HeartbeatPending: s.awaitingHB,
		Commands:         commands,
		Pins:             pins,
	}
}

func (s *Session) setSnapshot(snap model.Snapshot) {
	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()
}

// Snapshot returns a value-typed copy safe for any goroutine (spec.md
// §3/§5: subscribers receive copies, not references into session state).
func (s *Session) Snapshot() model.Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

func (s *Session) emitUpdate() {
	if s.state != model.StateReady {
		return
	}
	snap := s.buildSnapshot()
	s.setSnapshot(snap)
	if s.roster != nil {
		s.roster.Updated(s.identity, snap)
	}
}
