// Command gatewayd is the Firmata gateway process: it loads
// configuration, starts the TCP and serial listeners, serves the
// reference HTTP API, and runs until SIGINT/SIGTERM. Grounded on the
// teacher's main.go/app.go split (process entry vs. application wiring).
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jangala-dev/firmata-gateway/internal/config"
	"github.com/jangala-dev/firmata-gateway/internal/httpapi"
	"github.com/jangala-dev/firmata-gateway/internal/listener"
	"github.com/jangala-dev/firmata-gateway/internal/repository"
	"github.com/jangala-dev/firmata-gateway/internal/roster"
	"github.com/jangala-dev/firmata-gateway/internal/system"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gatewayd exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	r := roster.New()
	repo := repository.NewInMemory()

	ctx, stop := system.NotifyShutdown()
	defer stop()

	heartbeat := time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond

	if cfg.TCPEnabled {
		tcp := listener.NewTCPListener(fmt.Sprintf(":%d", cfg.TCPPort), r, repo, log.With("component", "tcp-listener"), heartbeat)
		go func() {
			if err := tcp.Serve(); err != nil {
				log.Error("tcp listener stopped", "error", err)
			}
		}()
	}

	if cfg.SerialGlob != "" {
		serial := listener.NewSerialListener(
			cfg.SerialGlob,
			cfg.SerialBaud,
			time.Duration(cfg.SerialScanInterval)*time.Millisecond,
			r, repo, log.With("component", "serial-listener"), heartbeat,
		)
		go serial.Serve(ctx)
	}

	e := httpapi.New(r)
	go httpapi.Serve(e, fmt.Sprintf(":%d", cfg.HTTPPort), log.With("component", "http"))

	log.Info("gatewayd started", "tcp_port", cfg.TCPPort, "http_port", cfg.HTTPPort, "serial_glob", cfg.SerialGlob)

	<-ctx.Done()
	log.Info("shutting down")
	return e.Close()
}
