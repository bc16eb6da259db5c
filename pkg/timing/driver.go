// Package timing implements the timing-driven stream slicer: it reads
// a timing file line by line and, for each (delay, byte_count) record,
// slices exactly byte_count bytes off the typescript file and hands
// them to the ANSI decoder inside a <timestep> element. It replaces
// process_timefile/main's read loop from the original C sources with
// an explicit Driver that holds its two input readers and one
// reusable, geometrically-grown buffer instead of module-scope state;
// the XML output is the writer passed to Run.
package timing

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/thfi/scriptcast/pkg/ansi"
	"github.com/thfi/scriptcast/pkg/config"
)

// Driver drives the decoder across a timing file's records. It is built
// once per conversion run and discarded afterward; its buffer is never
// shared across Driver instances.
type Driver struct {
	timing     *bufio.Reader
	typescript *bufio.Reader
	buf        []byte
	decoder    *ansi.Decoder
}

// NewDriver builds a Driver reading timing records from timingR and
// typescript bytes from typescriptR, sized according to cfg.
func NewDriver(cfg *config.Config, timingR, typescriptR io.Reader) *Driver {
	return &Driver{
		timing:     bufio.NewReader(timingR),
		typescript: bufio.NewReader(typescriptR),
		buf:        make([]byte, cfg.BufferInitialSize),
		decoder:    ansi.NewDecoder(cfg),
	}
}

// nextPowerOfTwo returns the smallest power of two >= n, matching the
// original sources' roundup_powerof2 buffer growth policy. n <= 1
// always yields 1.
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// chunk returns a slice of exactly n bytes read from the typescript
// file, growing the Driver's reusable buffer to the next power of two
// when it is too small. A short read is fatal.
func (d *Driver) chunk(n int) ([]byte, error) {
	if cap(d.buf) < n {
		d.buf = make([]byte, nextPowerOfTwo(n))
	}
	buf := d.buf[:n]
	if _, err := io.ReadFull(d.typescript, buf); err != nil {
		return nil, fmt.Errorf("timing: short read of %d typescript bytes: %w", n, err)
	}
	return buf, nil
}

// discardComment consumes the typescript file's mandatory first
// comment line.
func (d *Driver) discardComment() error {
	if _, err := d.typescript.ReadString('\n'); err != nil && err != io.EOF {
		return fmt.Errorf("timing: discarding typescript comment line: %w", err)
	}
	return nil
}

// parseRecord parses one timing-file line of the form
// "<delay> <byte_count>\n" into its two fields.
func parseRecord(line string) (delay float64, byteCount int, err error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("timing: malformed record %q: want 2 fields, got %d", line, len(fields))
	}
	delay, err = strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("timing: malformed delay %q: %w", fields[0], err)
	}
	byteCount, err = strconv.Atoi(fields[1])
	if err != nil || byteCount < 0 {
		return 0, 0, fmt.Errorf("timing: malformed byte count %q", fields[1])
	}
	return delay, byteCount, nil
}

// Run drives the full conversion: document wrapper, then one
// <timestep> per timing-file record, then the closing wrapper. The
// document framing lives here rather than in a separate top-level
// orchestrator.
func (d *Driver) Run(ctx *config.Context, w io.Writer) error {
	if err := d.discardComment(); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "<?xml version=\"1.0\" encoding=\"UTF-8\" ?>\n<script>\n"); err != nil {
		return fmt.Errorf("timing: writing document header: %w", err)
	}

	lineNo := 0
	for {
		line, readErr := d.timing.ReadString('\n')
		if line == "" {
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				return fmt.Errorf("timing: reading timing file: %w", readErr)
			}
		}
		if strings.TrimSpace(line) == "" && readErr == io.EOF {
			break
		}
		lineNo++

		delay, byteCount, perr := parseRecord(line)
		if perr != nil {
			return fmt.Errorf("timing: line %d: %w", lineNo, perr)
		}

		if _, err := fmt.Fprintf(w, "<timestep delay=\"%.3f\">", delay); err != nil {
			return fmt.Errorf("timing: writing timestep open at line %d: %w", lineNo, err)
		}

		body, cerr := d.chunk(byteCount)
		if cerr != nil {
			return fmt.Errorf("timing: line %d: %w", lineNo, cerr)
		}
		if err := d.decoder.Decode(ctx, w, body); err != nil {
			return fmt.Errorf("timing: decoding chunk at line %d: %w", lineNo, err)
		}

		if _, err := io.WriteString(w, "</timestep>\n"); err != nil {
			return fmt.Errorf("timing: writing timestep close at line %d: %w", lineNo, err)
		}

		if readErr == io.EOF {
			break
		}
	}

	if _, err := io.WriteString(w, "</script>\n"); err != nil {
		return fmt.Errorf("timing: writing document footer: %w", err)
	}
	return nil
}
