// Command scriptcast-record spawns a command inside a PTY and records
// it as a timing/typescript file pair, the input pkg/timing consumes.
// Its PTY lifecycle and raw-mode stdin handling follow vibetunnel-fwd,
// with asciinema streaming replaced by scriptcast's own recorder
// package, an optional --live-ws relay of decoded XML events, and a
// --watch mode that tails an already-running session's directory
// instead of spawning a new command.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/thfi/scriptcast/internal/buildinfo"
	"github.com/thfi/scriptcast/pkg/config"
	"github.com/thfi/scriptcast/pkg/recorder"
	"github.com/thfi/scriptcast/pkg/xrecord"
)

var (
	monitorOnly bool
	liveWSAddr  string
	watchDir    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "scriptcast-record [flags] -- <command> [args...]",
	Short:   "Record a command's PTY session as a scriptcast timing/typescript pair",
	Long: `scriptcast-record spawns <command> inside a pseudo-terminal and
captures its output as a timing file plus a typescript file, the same
pair scriptcast-decode converts into XML.

Examples:
  scriptcast-record -- bash -l
  scriptcast-record --monitor-only -- long-running-build
  scriptcast-record --live-ws :8080 -- python3 -i
  scriptcast-record --watch ~/.scriptcast/recordings/<id>`,
	Version: buildinfo.String(),
	Args:    validateArgs,
	RunE:    runRecord,
}

func init() {
	rootCmd.Flags().BoolVar(&monitorOnly, "monitor-only", false, "record without forwarding the controlling terminal's stdin")
	rootCmd.Flags().StringVar(&liveWSAddr, "live-ws", "", "serve a live WebSocket relay of decoded XML events on ADDR")
	rootCmd.Flags().StringVar(&watchDir, "watch", "", "tail an already-running session's recording directory and print decoded XML as it grows, instead of spawning a command")
}

// validateArgs requires a command to run unless --watch names a
// session directory to tail instead.
func validateArgs(cmd *cobra.Command, args []string) error {
	if watchDir != "" {
		return cobra.NoArgs(cmd, args)
	}
	return cobra.MinimumNArgs(1)(cmd, args)
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	cfg.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	ctx := config.NewContext(cfg)

	if watchDir != "" {
		return recorder.TailSession(ctx, cfg, watchDir, os.Stdout)
	}

	if err := os.MkdirAll(cfg.RecordingDir, 0755); err != nil {
		return fmt.Errorf("creating recording directory: %w", err)
	}

	cols, rows := getTerminalSize()
	recOpts := recorder.Options{Cols: cols, Rows: rows}

	var hub *xrecord.Hub
	if liveWSAddr != "" {
		hub = xrecord.NewHub(cfg)
		recOpts.LiveSink = hub
		server := &http.Server{Addr: liveWSAddr, Handler: hub}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				ctx.Tracef("scriptcast-record: live-ws server stopped: %v", err)
			}
		}()
		defer server.Close()
	}

	rec, err := recorder.Start(ctx, cfg, args, recOpts)
	if err != nil {
		return fmt.Errorf("starting recording: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Recording session %s in %s\n", rec.ID(), rec.Dir())

	done := make(chan error, 1)
	go func() {
		done <- rec.Copy(ctx)
	}()

	if !monitorOnly && term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("setting raw mode: %w", err)
		}
		defer term.Restore(int(os.Stdin.Fd()), oldState)

		go forwardStdin(ctx, rec)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		fmt.Fprintf(os.Stderr, "\nreceived %v, leaving the recording for the child process to finish\n", sig)
	case err := <-done:
		if err != nil {
			return fmt.Errorf("copying pty output: %w", err)
		}
	}

	exitCode, err := rec.Wait()
	if err != nil {
		return fmt.Errorf("finalizing recording: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Session exited with code %d\n", exitCode)
	return nil
}

func forwardStdin(ctx *config.Context, rec *recorder.Recorder) {
	buf := make([]byte, 1024)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			if _, werr := rec.Write(buf[:n]); werr != nil {
				ctx.Tracef("scriptcast-record: forwarding stdin: %v", werr)
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				ctx.Tracef("scriptcast-record: reading stdin: %v", err)
			}
			return
		}
	}
}

func getTerminalSize() (int, int) {
	cols, rows := 80, 24
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		if w, h, err := term.GetSize(fd); err == nil {
			cols, rows = w, h
		}
	}
	return cols, rows
}
