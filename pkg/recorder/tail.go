package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/thfi/scriptcast/pkg/ansi"
	"github.com/thfi/scriptcast/pkg/config"
)

// pendingRecord is a timing record this Tailer has already parsed but
// whose typescript bytes were not yet fully written to disk when it
// last tried to decode it.
type pendingRecord struct {
	delay     float64
	byteCount int
}

// Tailer incrementally decodes a timing/typescript pair as it grows on
// disk, re-invoking pkg/ansi's decoder on exactly the bytes each newly
// complete timing record names instead of waiting for the whole file,
// the way scriptcast-decode's batch pkg/timing.Driver does. It is the
// live-tail counterpart SPEC_FULL.md's --watch mode drives.
type Tailer struct {
	timingFile     *os.File
	typescriptFile *os.File
	timingBuf      *bufio.Reader
	typescriptBuf  *bufio.Reader
	decoder        *ansi.Decoder

	commentDiscarded  bool
	pendingTimingLine []byte
	pendingBytes      []byte
	pending           *pendingRecord
}

// NewTailer opens dir's timing and typescript files for incremental
// reading. Both must already exist — scriptcast-record creates them
// before the recorded command produces any output.
func NewTailer(cfg *config.Config, dir string) (*Tailer, error) {
	timingFile, err := os.Open(filepath.Join(dir, "timing"))
	if err != nil {
		return nil, fmt.Errorf("recorder: opening timing file for tailing: %w", err)
	}
	typescriptFile, err := os.Open(filepath.Join(dir, "typescript"))
	if err != nil {
		timingFile.Close()
		return nil, fmt.Errorf("recorder: opening typescript file for tailing: %w", err)
	}
	return &Tailer{
		timingFile:     timingFile,
		typescriptFile: typescriptFile,
		timingBuf:      bufio.NewReader(timingFile),
		typescriptBuf:  bufio.NewReader(typescriptFile),
		decoder:        ansi.NewDecoder(cfg),
	}, nil
}

// Close releases the Tailer's open files.
func (t *Tailer) Close() {
	t.timingFile.Close()
	t.typescriptFile.Close()
}

// readTimingLine returns the next complete "<delay> <byte_count>\n"
// line, buffering a still-incomplete trailing write across calls
// rather than losing it, since a growing file can be read mid-write.
func (t *Tailer) readTimingLine() (line string, ok bool, err error) {
	for {
		b, rerr := t.timingBuf.ReadByte()
		if rerr != nil {
			if rerr == io.EOF {
				return "", false, nil
			}
			return "", false, rerr
		}
		t.pendingTimingLine = append(t.pendingTimingLine, b)
		if b == '\n' {
			line = string(t.pendingTimingLine)
			t.pendingTimingLine = nil
			return line, true, nil
		}
	}
}

// readTypescriptBytes returns exactly n bytes once that many have been
// written, buffering whatever is available so far across calls.
func (t *Tailer) readTypescriptBytes(n int) (chunk []byte, ok bool, err error) {
	for len(t.pendingBytes) < n {
		b, rerr := t.typescriptBuf.ReadByte()
		if rerr != nil {
			if rerr == io.EOF {
				return nil, false, nil
			}
			return nil, false, rerr
		}
		t.pendingBytes = append(t.pendingBytes, b)
	}
	chunk = t.pendingBytes[:n]
	t.pendingBytes = t.pendingBytes[n:]
	return chunk, true, nil
}

// discardComment consumes the typescript file's mandatory first
// comment line, once, the same way pkg/timing.Driver does for a
// complete file.
func (t *Tailer) discardComment() (bool, error) {
	if t.commentDiscarded {
		return true, nil
	}
	for {
		b, err := t.typescriptBuf.ReadByte()
		if err != nil {
			if err == io.EOF {
				return false, nil
			}
			return false, err
		}
		if b == '\n' {
			t.commentDiscarded = true
			return true, nil
		}
	}
}

// Poll decodes every timing record that has become fully available
// since the last call and writes the resulting <timestep> elements to
// w, in order. It returns as soon as no further complete record is
// available; callers drive it again on the next filesystem
// notification (or a final drain once the session has exited).
func (t *Tailer) Poll(ctx *config.Context, w io.Writer) error {
	ready, err := t.discardComment()
	if err != nil {
		return fmt.Errorf("recorder: tailing typescript comment line: %w", err)
	}
	if !ready {
		return nil
	}

	for {
		var rec pendingRecord
		if t.pending != nil {
			rec = *t.pending
		} else {
			line, ok, rerr := t.readTimingLine()
			if rerr != nil {
				return fmt.Errorf("recorder: tailing timing file: %w", rerr)
			}
			if !ok {
				return nil
			}
			delay, byteCount, perr := parseTailRecord(line)
			if perr != nil {
				return fmt.Errorf("recorder: tailing timing file: %w", perr)
			}
			rec = pendingRecord{delay: delay, byteCount: byteCount}
		}

		chunk, ok, rerr := t.readTypescriptBytes(rec.byteCount)
		if rerr != nil {
			return fmt.Errorf("recorder: tailing typescript file: %w", rerr)
		}
		if !ok {
			// The timing line landed before its typescript bytes were
			// flushed; keep the record pending and retry on the next
			// Poll instead of treating this as a short read.
			t.pending = &rec
			return nil
		}
		t.pending = nil

		if _, err := fmt.Fprintf(w, "<timestep delay=\"%.3f\">", rec.delay); err != nil {
			return err
		}
		if err := t.decoder.Decode(ctx, w, chunk); err != nil {
			return fmt.Errorf("recorder: tailing decode: %w", err)
		}
		if _, err := io.WriteString(w, "</timestep>\n"); err != nil {
			return err
		}
	}
}

func parseTailRecord(line string) (delay float64, byteCount int, err error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("malformed record %q: want 2 fields, got %d", line, len(fields))
	}
	delay, err = strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed delay %q: %w", fields[0], err)
	}
	byteCount, err = strconv.Atoi(fields[1])
	if err != nil || byteCount < 0 {
		return 0, 0, fmt.Errorf("malformed byte count %q", fields[1])
	}
	return delay, byteCount, nil
}

// sessionDone reports whether dir's meta.json records a finished
// session (Status != "running"). A missing or unparsable meta.json is
// treated as still running: the writer may not have flushed it yet.
func sessionDone(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return false
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return false
	}
	return m.Status != "" && m.Status != "running"
}

// TailSession drives a Tailer against dir, woken by a Watcher on dir
// whenever the timing or typescript file is written to, until the
// recorded session's metadata reports it has exited. It implements
// SPEC_FULL.md's --watch live-tail mode: the decoder is re-invoked
// incrementally as the pair grows on disk rather than only consuming
// finished files, writing the same `<?xml ...?><script>...</script>`
// document pkg/timing.Driver produces in the batch case.
func TailSession(ctx *config.Context, cfg *config.Config, dir string, w io.Writer) error {
	tailer, err := NewTailer(cfg, dir)
	if err != nil {
		return err
	}
	defer tailer.Close()

	notify := make(chan struct{}, 1)
	wake := func() {
		select {
		case notify <- struct{}{}:
		default:
		}
	}

	watcher, err := NewWatcher(dir, func(string) { wake() })
	if err != nil {
		return fmt.Errorf("recorder: watching session directory: %w", err)
	}
	defer watcher.Stop()
	go watcher.Run(ctx)

	if _, err := io.WriteString(w, "<?xml version=\"1.0\" encoding=\"UTF-8\" ?>\n<script>\n"); err != nil {
		return fmt.Errorf("recorder: writing document header: %w", err)
	}

	for {
		if err := tailer.Poll(ctx, w); err != nil {
			return err
		}
		if sessionDone(dir) {
			// Drain whatever landed between the last event and the
			// session's exit before closing the document.
			if err := tailer.Poll(ctx, w); err != nil {
				return err
			}
			break
		}
		<-notify
	}

	_, err = io.WriteString(w, "</script>\n")
	return err
}
