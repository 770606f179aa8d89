package link

import (
	"sync"
	"time"

	"github.com/goburrow/serial"
)

// SerialLink wraps a serial.Port opened at a given baud. The port path is
// the device's identity (spec.md §3), stable across session restarts for
// the same physical endpoint.
type SerialLink struct {
	path string
	port serial.Port

	mu     sync.Mutex
	closed bool
}

// OpenSerialLink opens path at baud and wraps it as a Link.
func OpenSerialLink(path string, baud int) (*SerialLink, error) {
	port, err := serial.Open(&serial.Config{
		Address:  path,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  500 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	return &SerialLink{path: path, port: port}, nil
}

func (l *SerialLink) Identity() string {
	return l.path
}

func (l *SerialLink) Write(b []byte) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	_, err := l.port.Write(b)
	return err
}

func (l *SerialLink) Read() ([]byte, error) {
	buf := make([]byte, 256)
	for {
		n, err := l.port.Read(buf)
		if n > 0 {
			return buf[:n], nil
		}
		if err != nil {
			return nil, err
		}
		// goburrow/serial returns (0, nil) on read timeout; loop so
		// the session's read goroutine doesn't busy-spin on Close().
		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}
	}
}

func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.port.Close()
}
