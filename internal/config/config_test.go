package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"SERIAL_GLOB", "SERIAL_BAUD", "SERIAL_SCAN_INTERVAL_MS",
		"TCP_ENABLED", "TCP_PORT", "HTTP_PORT", "HEARTBEAT_INTERVAL_MS", "DEBUG",
	} {
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SerialBaud != 57600 {
		t.Errorf("expected default SerialBaud 57600, got %d", cfg.SerialBaud)
	}
	if cfg.TCPPort != 3030 {
		t.Errorf("expected default TCPPort 3030, got %d", cfg.TCPPort)
	}
	if !cfg.TCPEnabled {
		t.Error("expected TCPEnabled to default true")
	}
	if cfg.HeartbeatIntervalMS != 3000 {
		t.Errorf("expected default heartbeat 3000ms, got %d", cfg.HeartbeatIntervalMS)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("TCP_PORT", "9999")
	t.Setenv("DEBUG", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TCPPort != 9999 {
		t.Errorf("expected overridden TCPPort 9999, got %d", cfg.TCPPort)
	}
	if !cfg.Debug {
		t.Error("expected Debug to be true")
	}
}
