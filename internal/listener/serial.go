package listener

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/jangala-dev/firmata-gateway/internal/link"
	"github.com/jangala-dev/firmata-gateway/internal/repository"
	"github.com/jangala-dev/firmata-gateway/internal/roster"
	"github.com/jangala-dev/firmata-gateway/internal/session"
)

// SerialListener periodically scans a glob pattern for serial ports and
// opens a Session for every port it has not already claimed (spec.md
// §4.1/§4.8). A port that fails to identify within the deadline is
// released back to the scan so it can be retried on the next pass.
type SerialListener struct {
	glob         string
	baud         int
	scanInterval time.Duration
	roster       *roster.Roster
	repo         repository.DeviceRepository
	log          *slog.Logger
	heartbeat    time.Duration

	mu     sync.Mutex
	opened map[string]bool
}

// NewSerialListener builds a listener scanning glob every scanInterval,
// opening newly-seen ports at baud and arming every session with the
// given heartbeat interval.
func NewSerialListener(glob string, baud int, scanInterval time.Duration, r *roster.Roster, repo repository.DeviceRepository, log *slog.Logger, heartbeat time.Duration) *SerialListener {
	if log == nil {
		log = slog.Default()
	}
	return &SerialListener{
		glob:         glob,
		baud:         baud,
		scanInterval: scanInterval,
		roster:       r,
		repo:         repo,
		log:          log,
		heartbeat:    heartbeat,
		opened:       make(map[string]bool),
	}
}

// Serve scans until ctx is cancelled. It also watches the roster for a
// previously-identified port going away so a later reconnect (the board
// resets, or is unplugged and replugged) is re-scanned rather than
// permanently considered claimed.
func (l *SerialListener) Serve(ctx context.Context) {
	events, cancel := l.roster.Subscribe(16)
	defer cancel()

	ticker := time.NewTicker(l.scanInterval)
	defer ticker.Stop()

	l.scan()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.scan()
		case ev := <-events:
			if ev.Kind == roster.EventLeft {
				l.mu.Lock()
				delete(l.opened, ev.ID)
				l.mu.Unlock()
			}
		}
	}
}

func (l *SerialListener) scan() {
	matches, err := filepath.Glob(l.glob)
	if err != nil {
		l.log.Warn("serial glob failed", "glob", l.glob, "error", err)
		return
	}
	for _, path := range matches {
		l.mu.Lock()
		already := l.opened[path]
		l.mu.Unlock()
		if already {
			continue
		}
		l.open(path)
	}
}

func (l *SerialListener) open(path string) {
	lnk, err := link.OpenSerialLink(path, l.baud)
	if err != nil {
		l.log.Debug("failed to open serial port", "path", path, "error", err)
		return
	}

	l.mu.Lock()
	l.opened[path] = true
	l.mu.Unlock()

	sess := session.New(lnk, l.roster, l.repo,
		session.WithLogger(l.log.With("identity", path)),
		session.WithHeartbeatInterval(l.heartbeat),
		session.WithConnectResult(func(id string, err error) {
			if err != nil {
				l.log.Warn("serial device failed to identify, releasing port", "path", id, "error", err)
				l.mu.Lock()
				delete(l.opened, id)
				l.mu.Unlock()
				return
			}
			l.log.Info("serial device identified", "path", id)
		}),
	)
	sess.Start()
}
