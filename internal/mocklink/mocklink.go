// Package mocklink provides an in-memory link.Link pair for exercising
// the connection engine without a real transport, mirroring the
// teacher's in-memory mock device used to drive manager tests.
package mocklink

import (
	"errors"
	"io"
	"sync"
)

// Pair is a connected pair of in-memory links: one end is handed to a
// Session, the other is driven by a test to script device behaviour.
type Pair struct {
	toDevice   chan []byte
	fromDevice chan []byte
	closeOnce  sync.Once
	closed     chan struct{}
	identity   string
}

// NewPair returns the two ends of an in-memory link, addressed as
// identity.
func NewPair(identity string) (sessionSide *End, deviceSide *End) {
	p := &Pair{
		toDevice:   make(chan []byte, 256),
		fromDevice: make(chan []byte, 256),
		closed:     make(chan struct{}),
		identity:   identity,
	}
	return &End{p: p, out: p.toDevice, in: p.fromDevice},
		&End{p: p, out: p.fromDevice, in: p.toDevice}
}

// End is one side of a Pair, implementing link.Link.
type End struct {
	p   *Pair
	out chan []byte
	in  chan []byte
}

func (e *End) Identity() string { return e.p.identity }

func (e *End) Write(b []byte) error {
	cp := append([]byte(nil), b...)
	select {
	case e.out <- cp:
		return nil
	case <-e.p.closed:
		return errors.New("mocklink: closed")
	}
}

func (e *End) Read() ([]byte, error) {
	select {
	case b := <-e.in:
		return b, nil
	case <-e.p.closed:
		return nil, io.EOF
	}
}

func (e *End) Close() error {
	e.p.closeOnce.Do(func() { close(e.p.closed) })
	return nil
}
