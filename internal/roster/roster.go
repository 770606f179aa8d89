// Package roster is the single piece of state shared across every device
// session (spec.md §4.7): the live set of READY devices, kept current by
// each session's Joined/Updated/Left calls and fanned out to subscribers.
// Generalizes the teacher's BasicDeviceManager (a devicesById map guarded
// by one mutex, plus broadcast channels per event kind) to Firmata
// sessions and their discrete snapshots.
package roster

import (
	"fmt"
	"sync"

	"github.com/jangala-dev/firmata-gateway/internal/model"
	"github.com/jangala-dev/firmata-gateway/internal/session"
)

// EventKind names which roster transition an Event reports.
type EventKind int

const (
	EventJoined EventKind = iota
	EventUpdated
	EventLeft
)

func (k EventKind) String() string {
	switch k {
	case EventJoined:
		return "joined"
	case EventUpdated:
		return "updated"
	case EventLeft:
		return "left"
	default:
		return "unknown"
	}
}

// Event is one roster transition, broadcast to every subscriber.
type Event struct {
	Kind     EventKind
	ID       string
	Snapshot model.Snapshot // zero value on EventLeft
}

type entry struct {
	sess *session.Session
	snap model.Snapshot
}

// Roster is the registry of live device sessions. The zero value is not
// usable; construct with New.
type Roster struct {
	mu      sync.RWMutex
	devices map[string]entry

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// New returns an empty Roster.
func New() *Roster {
	return &Roster{
		devices: make(map[string]entry),
		subs:    make(map[chan Event]struct{}),
	}
}

// Joined implements session.RosterPort: a session reached READY.
// Spec.md §4.7: a second join under an identity already present (a
// reconnect that raced the previous session's teardown) replaces the
// stale entry outright - the newest session always wins.
func (r *Roster) Joined(identity string, sess *session.Session, snap model.Snapshot) {
	r.mu.Lock()
	r.devices[identity] = entry{sess: sess, snap: snap}
	r.mu.Unlock()
	r.broadcast(Event{Kind: EventJoined, ID: identity, Snapshot: snap})
}

// Updated implements session.RosterPort: a READY session's observable
// state changed (a pin reading, a busy program).
func (r *Roster) Updated(identity string, snap model.Snapshot) {
	r.mu.Lock()
	e, ok := r.devices[identity]
	if ok {
		e.snap = snap
		r.devices[identity] = e
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.broadcast(Event{Kind: EventUpdated, ID: identity, Snapshot: snap})
}

// Left implements session.RosterPort: a session disconnected or failed.
// Idempotent - a second Left for the same identity (or one that raced a
// replacing Joined) is a silent no-op.
func (r *Roster) Left(identity string) {
	r.mu.Lock()
	_, ok := r.devices[identity]
	if ok {
		delete(r.devices, identity)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.broadcast(Event{Kind: EventLeft, ID: identity})
}

// FindAll returns a value-typed snapshot of every currently-READY device,
// safe to range over without holding any roster lock.
func (r *Roster) FindAll() []model.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Snapshot, 0, len(r.devices))
	for _, e := range r.devices {
		out = append(out, e.snap)
	}
	return out
}

// Get returns the named device's current snapshot.
func (r *Roster) Get(identity string) (model.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.devices[identity]
	return e.snap, ok
}

// errUnknownDevice is returned by ExecuteAction for an identity not
// currently in the roster.
var errUnknownDevice = fmt.Errorf("roster: unknown device")

// ExecuteAction forwards a named action to the identified device's
// session (spec.md §4.4), the roster being the only place external
// callers (the HTTP surface, a future MQTT bridge) can reach a session
// by identity.
func (r *Roster) ExecuteAction(identity, name string, params []string) error {
	r.mu.RLock()
	e, ok := r.devices[identity]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownDevice, identity)
	}
	return e.sess.ExecuteAction(name, params)
}

// Subscribe registers a new event listener with the given buffer depth.
// The returned cancel func must be called to stop receiving events and
// release the channel; it is safe to call more than once.
func (r *Roster) Subscribe(buffer int) (events <-chan Event, cancel func()) {
	ch := make(chan Event, buffer)
	r.subMu.Lock()
	r.subs[ch] = struct{}{}
	r.subMu.Unlock()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, ch)
			r.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// broadcast fans ev out to every current subscriber without blocking on
// a slow one: a full channel drops the event rather than stalling every
// device session in the system.
func (r *Roster) broadcast(ev Event) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
