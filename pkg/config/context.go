package config

import (
	"io"
	"log"
	"os"
)

// Context carries the per-run, read-only settings that the original
// ScriptInterpreter C sources kept as module-scope globals (debug_output
// and the open file handles). It is passed explicitly through the
// decoder, interpreter, timing driver and coalescer instead.
type Context struct {
	Debug  bool
	Logger *log.Logger
}

// NewContext builds a Context from a Config. When Debug is false, the
// logger discards everything so call sites never need to guard their
// own Printf calls.
func NewContext(cfg *Config) *Context {
	out := io.Discard
	if cfg.Debug {
		out = os.Stderr
	}
	return &Context{
		Debug:  cfg.Debug,
		Logger: log.New(out, "", log.LstdFlags),
	}
}

// Tracef logs a debug trace line when Debug is enabled.
func (c *Context) Tracef(format string, args ...any) {
	if c == nil || c.Logger == nil {
		return
	}
	c.Logger.Printf(format, args...)
}
