// Command scriptcast-coalesce merges consecutive empty <timestep>
// elements produced by scriptcast-decode.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/thfi/scriptcast/internal/buildinfo"
	"github.com/thfi/scriptcast/pkg/coalesce"
	"github.com/thfi/scriptcast/pkg/config"
)

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
	Use:     "scriptcast-coalesce [--debug] [INPUT_XML [OUTPUT_XML]]",
	Short:   "Merge runs of empty <timestep> elements in a scriptcast XML document",
	Version: buildinfo.String(),
	Args:    cobra.MaximumNArgs(2),
	RunE:    runCoalesce,
}

func init() {
	rootCmd.Flags().BoolVar(&cfg.Debug, "debug", false, "enable verbose tracing to stderr")
}

func runCoalesce(cmd *cobra.Command, args []string) error {
	ctx := config.NewContext(cfg)

	var in io.Reader = os.Stdin
	if len(args) >= 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fail(2, fmt.Errorf("opening input XML: %w", err))
		}
		defer f.Close()
		in = f
	}

	var out io.Writer = os.Stdout
	if len(args) >= 2 && args[1] != "-" {
		f, err := os.Create(args[1])
		if err != nil {
			return fail(3, fmt.Errorf("opening output XML: %w", err))
		}
		defer f.Close()
		out = f
	}

	if err := coalesce.Coalesce(ctx, in, out); err != nil {
		if errors.Is(err, coalesce.ErrBadRoot) {
			return fail(4, err)
		}
		return fail(1, err)
	}
	return nil
}
