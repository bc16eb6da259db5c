// Package config holds the runtime settings shared by the scriptcast
// command-line tools, replacing the package-scope globals the original
// ScriptInterpreter C sources carried (debug_output, typescriptbuffer,
// the open file handles) with one explicit, constructor-built value.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration for the scriptcast tools.
type Config struct {
	// Debug enables verbose tracing to stderr, mirroring the original
	// tool's --debug flag.
	Debug bool

	// Buffer sizing for the decoder, replacing the C sources'
	// roundup_powerof2-grown typescriptbuffer.
	BufferInitialSize int
	ParamBufferCap    int
	IntermediateCap   int
	StringBufferCap   int // OSC/DCS string collection cap

	// Terminal defaults used by the recorder when none are detected
	// from the controlling tty.
	DefaultCols int
	DefaultRows int
	DefaultTerm string

	// RecordingDir is where scriptcast-record writes per-session
	// timing/typescript pairs.
	RecordingDir string

	// WebSocketPingInterval governs the --live-ws relay's keepalive.
	WebSocketPingInterval time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	recordingDir := filepath.Join(homeDir, ".scriptcast", "recordings")

	return &Config{
		BufferInitialSize: 16,
		ParamBufferCap:    1024,
		IntermediateCap:   1024,
		StringBufferCap:   16384,

		DefaultCols: 80,
		DefaultRows: 24,
		DefaultTerm: "xterm-256color",

		RecordingDir: recordingDir,

		WebSocketPingInterval: 30 * time.Second,
	}
}

// LoadFromEnv overlays environment variables on top of the defaults.
func (c *Config) LoadFromEnv() {
	if dir := os.Getenv("SCRIPTCAST_RECORDING_DIR"); dir != "" {
		c.RecordingDir = dir
	}
	if term := os.Getenv("TERM"); term != "" {
		c.DefaultTerm = term
	}
	if os.Getenv("SCRIPTCAST_DEBUG") != "" {
		c.Debug = true
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BufferInitialSize < 1 {
		return fmt.Errorf("invalid buffer initial size: %d", c.BufferInitialSize)
	}
	if c.ParamBufferCap < 1 || c.IntermediateCap < 1 || c.StringBufferCap < 1 {
		return fmt.Errorf("buffer capacities must be positive")
	}
	if c.DefaultCols < 1 || c.DefaultCols > 1000 {
		return fmt.Errorf("invalid default columns: %d", c.DefaultCols)
	}
	if c.DefaultRows < 1 || c.DefaultRows > 1000 {
		return fmt.Errorf("invalid default rows: %d", c.DefaultRows)
	}
	return nil
}
