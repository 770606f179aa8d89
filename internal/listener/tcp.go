// Package listener discovers devices on the two transports spec.md §4.1
// names - TCP and serial - and hands each one off to a new session.
// Generalizes the teacher's AddNewDeviceHook (add the device manager
// entry on session-established, remove it on disconnect) to a listener
// that itself owns accept/scan loops instead of riding on an MQTT
// broker's connection hooks.
package listener

import (
	"log/slog"
	"net"
	"time"

	"github.com/jangala-dev/firmata-gateway/internal/link"
	"github.com/jangala-dev/firmata-gateway/internal/repository"
	"github.com/jangala-dev/firmata-gateway/internal/roster"
	"github.com/jangala-dev/firmata-gateway/internal/session"
)

// TCPListener accepts raw Firmata-over-TCP connections and spins up one
// Session per connection (spec.md §4.1/§4.8).
type TCPListener struct {
	addr      string
	roster    *roster.Roster
	repo      repository.DeviceRepository
	log       *slog.Logger
	heartbeat time.Duration
}

// NewTCPListener builds a listener bound to addr (e.g. ":3030"), arming
// every session it creates with the given heartbeat interval.
func NewTCPListener(addr string, r *roster.Roster, repo repository.DeviceRepository, log *slog.Logger, heartbeat time.Duration) *TCPListener {
	if log == nil {
		log = slog.Default()
	}
	return &TCPListener{addr: addr, roster: r, repo: repo, log: log, heartbeat: heartbeat}
}

// Serve blocks accepting connections until ln is closed or accept fails
// terminally. Each accepted connection becomes a Session whose
// identification-timeout outcome is logged, mirroring AddNewDeviceHook's
// "close the connection and skip the add" failure path.
func (l *TCPListener) Serve() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	l.log.Info("tcp listener started", "addr", l.addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		l.handle(conn)
	}
}

func (l *TCPListener) handle(conn net.Conn) {
	lnk := link.NewTCPLink(conn)
	identity := lnk.Identity()
	l.log.Info("tcp connection accepted", "identity", identity)

	sess := session.New(lnk, l.roster, l.repo,
		session.WithLogger(l.log.With("identity", identity)),
		session.WithHeartbeatInterval(l.heartbeat),
		session.WithConnectResult(func(id string, err error) {
			if err != nil {
				l.log.Warn("device failed to identify, closing", "identity", id, "error", err)
				return
			}
			l.log.Info("device identified", "identity", id)
		}),
	)
	sess.Start()
}
