// Package recorder captures a live PTY session as a script(1)-style
// timing/typescript file pair, the input format pkg/timing consumes.
// It adapts the PTY-manager session-spawning code in pkg/pty/manager.go
// (creack/pty and google/uuid) away from asciinema JSON events and
// toward scriptcast's own on-disk format.
package recorder

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/thfi/scriptcast/pkg/ansi"
	"github.com/thfi/scriptcast/pkg/config"
)

// Options configures a recorded session, defaulting unset fields from
// the shared Config the way pty.Manager.CreateSession does.
type Options struct {
	WorkingDir string
	Term       string
	Cols, Rows int

	// LiveSink, if set, receives each chunk of PTY output decoded into
	// the same XML event vocabulary scriptcast-decode produces, wrapped
	// in its own <timestep>, as soon as it is captured. Used by
	// scriptcast-record --live-ws to feed xrecord.Hub.
	LiveSink io.Writer
}

// Meta is the on-disk session descriptor written alongside the
// timing/typescript pair, replacing the original TypeScript-compatible
// session.json with a plain scriptcast-native shape.
type Meta struct {
	ID         string    `json:"id"`
	Command    []string  `json:"command"`
	WorkingDir string    `json:"workingDir"`
	Term       string    `json:"term"`
	Cols       int       `json:"cols"`
	Rows       int       `json:"rows"`
	StartedAt  time.Time `json:"startedAt"`
	Status     string    `json:"status"`
	ExitCode   int       `json:"exitCode,omitempty"`
}

// Recorder spawns a command inside a PTY and captures its output as a
// timing/typescript file pair under the configured recording directory.
type Recorder struct {
	cfg  *config.Config
	dir  string
	meta Meta

	ptmx       *os.File
	cmd        *exec.Cmd
	timing     *os.File
	typescript *os.File

	liveSink io.Writer
	decoder  *ansi.Decoder

	mu        sync.Mutex
	lastWrite time.Time
}

// Start spawns command inside a PTY and begins capturing its output.
func Start(ctx *config.Context, cfg *config.Config, command []string, opts Options) (*Recorder, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("recorder: command cannot be empty")
	}
	if opts.Cols == 0 {
		opts.Cols = cfg.DefaultCols
	}
	if opts.Rows == 0 {
		opts.Rows = cfg.DefaultRows
	}
	if opts.Term == "" {
		opts.Term = cfg.DefaultTerm
	}
	if opts.WorkingDir == "" {
		opts.WorkingDir, _ = os.Getwd()
	}

	id := uuid.New().String()
	dir := filepath.Join(cfg.RecordingDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("recorder: creating session directory: %w", err)
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = opts.WorkingDir
	cmd.Env = append(os.Environ(), "TERM="+opts.Term)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(opts.Rows), Cols: uint16(opts.Cols)})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("recorder: starting pty: %w", err)
	}

	typescriptFile, err := os.Create(filepath.Join(dir, "typescript"))
	if err != nil {
		ptmx.Close()
		cmd.Process.Kill()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("recorder: creating typescript file: %w", err)
	}
	fmt.Fprintf(typescriptFile, "Script started on %s [command=\"%s\"]\n",
		time.Now().Format(time.ANSIC), strings.Join(command, " "))

	timingFile, err := os.Create(filepath.Join(dir, "timing"))
	if err != nil {
		typescriptFile.Close()
		ptmx.Close()
		cmd.Process.Kill()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("recorder: creating timing file: %w", err)
	}

	r := &Recorder{
		cfg:        cfg,
		dir:        dir,
		ptmx:       ptmx,
		cmd:        cmd,
		timing:     timingFile,
		typescript: typescriptFile,
		liveSink:   opts.LiveSink,
		lastWrite:  time.Now(),
	}
	if opts.LiveSink != nil {
		r.decoder = ansi.NewDecoder(cfg)
	}
	r.meta = Meta{
		ID:         id,
		Command:    command,
		WorkingDir: opts.WorkingDir,
		Term:       opts.Term,
		Cols:       opts.Cols,
		Rows:       opts.Rows,
		StartedAt:  time.Now(),
		Status:     "running",
	}
	if err := r.saveMeta(); err != nil {
		ctx.Tracef("recorder: saving initial metadata: %v", err)
	}

	return r, nil
}

// Dir returns the session's recording directory.
func (r *Recorder) Dir() string { return r.dir }

// ID returns the session's UUID.
func (r *Recorder) ID() string { return r.meta.ID }

// Copy drains PTY output into the timing/typescript pair until the PTY
// closes, normally because the child exited. It replaces
// pty.Manager.handlePTYOutput's asciinema-event read loop with
// script(1)'s timing-file format.
func (r *Recorder) Copy(ctx *config.Context) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.ptmx.Read(buf)
		if n > 0 {
			if werr := r.writeChunk(ctx, buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			ctx.Tracef("recorder: pty read ended: %v", err)
			return nil
		}
	}
}

func (r *Recorder) writeChunk(ctx *config.Context, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	delay := now.Sub(r.lastWrite).Seconds()
	r.lastWrite = now

	if _, err := fmt.Fprintf(r.timing, "%.6f %d\n", delay, len(data)); err != nil {
		return fmt.Errorf("recorder: writing timing record: %w", err)
	}
	if _, err := r.typescript.Write(data); err != nil {
		return fmt.Errorf("recorder: writing typescript data: %w", err)
	}

	if r.liveSink != nil {
		if err := r.decodeLive(ctx, delay, data); err != nil {
			ctx.Tracef("recorder: live relay decode failed: %v", err)
		}
	}
	return nil
}

// decodeLive wraps data in the same <timestep> shape scriptcast-decode
// produces and runs it through the decoder straight to liveSink. A
// relay failure is never fatal to the recording itself.
func (r *Recorder) decodeLive(ctx *config.Context, delay float64, data []byte) error {
	if _, err := fmt.Fprintf(r.liveSink, "<timestep delay=\"%.3f\">", delay); err != nil {
		return err
	}
	if err := r.decoder.Decode(ctx, r.liveSink, data); err != nil {
		return err
	}
	_, err := io.WriteString(r.liveSink, "</timestep>\n")
	return err
}

// Wait blocks until the child process exits, finalizes the on-disk
// metadata, and closes the timing/typescript files.
func (r *Recorder) Wait() (int, error) {
	err := r.cmd.Wait()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				exitCode = status.ExitStatus()
			}
		}
	}

	r.meta.Status = "exited"
	r.meta.ExitCode = exitCode
	saveErr := r.saveMeta()

	r.ptmx.Close()
	r.timing.Close()
	r.typescript.Close()

	return exitCode, saveErr
}

// Write sends input bytes to the PTY master, forwarding terminal input
// from the controlling process to the recorded command.
func (r *Recorder) Write(p []byte) (int, error) {
	return r.ptmx.Write(p)
}

// Resize adjusts the PTY's window size.
func (r *Recorder) Resize(cols, rows int) error {
	return pty.Setsize(r.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

func (r *Recorder) saveMeta() error {
	data, err := json.MarshalIndent(r.meta, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(r.dir, "meta.json.tmp")
	final := filepath.Join(r.dir, "meta.json")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}
