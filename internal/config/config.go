// Package config loads the gateway's runtime configuration from the
// process environment, grounded on the teacher pack's env-tag/struct
// pattern (CodedInternet-godynastat's main.go ENV struct).
package config

import "github.com/caarlos0/env/v6"

// Config holds every environment-tunable setting the gateway reads at
// startup (spec.md §1/§6).
type Config struct {
	// SerialGlob is a glob pattern the serial listener scans periodically
	// for newly-attached boards (spec.md §4.8).
	SerialGlob string `env:"SERIAL_GLOB" envDefault:"/dev/ttyACM*"`
	// SerialBaud is the baud rate used to open a discovered serial port.
	SerialBaud int `env:"SERIAL_BAUD" envDefault:"57600"`
	// SerialScanInterval controls how often the serial listener re-scans
	// SerialGlob for ports it has not already claimed.
	SerialScanInterval int `env:"SERIAL_SCAN_INTERVAL_MS" envDefault:"2000"`

	// TCPEnabled turns the raw-TCP listener on.
	TCPEnabled bool `env:"TCP_ENABLED" envDefault:"1"`
	// TCPPort is the port the TCP listener binds to.
	TCPPort int `env:"TCP_PORT" envDefault:"3030"`

	// HTTPPort is the port the reference HTTP surface binds to.
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// HeartbeatIntervalMS overrides the session heartbeat interval
	// (Design Notes §9: configurable, default 3000ms).
	HeartbeatIntervalMS int `env:"HEARTBEAT_INTERVAL_MS" envDefault:"3000"`

	// Debug enables verbose (debug-level) structured logging.
	Debug bool `env:"DEBUG" envDefault:"0"`
}

// Load parses Config from the process environment, applying every
// envDefault for a variable left unset.
func Load() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
