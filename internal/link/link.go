// Package link abstracts the byte-level transport to one device, over
// either a TCP connection or a serial port (spec.md §4.1).
package link

import "errors"

// ErrClosed is returned by Write when the underlying transport is down.
var ErrClosed = errors.New("link: closed")

// Link is a bidirectional byte stream to exactly one device. It is owned
// by exactly one device session - no sharing (spec.md §5).
type Link interface {
	// Identity is the stable string naming this endpoint: "host:port"
	// for TCP, the port path for serial.
	Identity() string

	// Write enqueues bytes for transmission. It fails with ErrClosed if
	// the transport is already down.
	Write(b []byte) error

	// Read blocks until at least one byte is available, returning it.
	// It returns an error (io.EOF or a transport error) once the link
	// is closed or fails.
	Read() ([]byte, error)

	// Close is idempotent and releases OS resources.
	Close() error
}
