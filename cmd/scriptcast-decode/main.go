// Command scriptcast-decode converts a script(1) timing/typescript
// file pair into an XML timeline document. It is the top-level
// orchestrator: open the three files, build a timing.Driver, run it.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/thfi/scriptcast/internal/buildinfo"
	"github.com/thfi/scriptcast/pkg/config"
	"github.com/thfi/scriptcast/pkg/timing"
)

// exitError carries the specific process exit code assigned to each
// failure class, distinct from cobra's default exit-1-on-any-error
// behavior.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error {
	return &exitError{code: code, err: err}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

var cfg = config.DefaultConfig()

var rootCmd = &cobra.Command{
	Use:     "scriptcast-decode [--debug] TIMINGFILE TYPESCRIPTFILE XMLOUT",
	Short:   "Decode a script(1) timing/typescript pair into XML timeline events",
	Version: buildinfo.String(),
	Args:    cobra.ExactArgs(3),
	RunE:    runDecode,
}

func init() {
	rootCmd.Flags().BoolVar(&cfg.Debug, "debug", false, "enable verbose tracing to stderr")
}

func runDecode(cmd *cobra.Command, args []string) error {
	cfg.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return fail(1, fmt.Errorf("invalid configuration: %w", err))
	}
	ctx := config.NewContext(cfg)

	timingFile, err := os.Open(args[0])
	if err != nil {
		return fail(2, fmt.Errorf("opening timing file: %w", err))
	}
	defer timingFile.Close()

	typescriptFile, err := os.Open(args[1])
	if err != nil {
		return fail(2, fmt.Errorf("opening typescript file: %w", err))
	}
	defer typescriptFile.Close()

	var out io.Writer
	if args[2] == "-" {
		out = os.Stdout
	} else {
		outFile, err := os.Create(args[2])
		if err != nil {
			return fail(2, fmt.Errorf("opening XML output file: %w", err))
		}
		defer outFile.Close()
		out = outFile
	}

	driver := timing.NewDriver(cfg, timingFile, typescriptFile)
	if err := driver.Run(ctx, out); err != nil {
		return fail(1, err)
	}
	return nil
}
