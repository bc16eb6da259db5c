// Package ansi implements the ECMA-48 / ANSI escape-sequence decoder:
// a byte-oriented state machine that classifies a typescript chunk
// into printable-text runs, line-break events and ECMA-48 control
// structures (CSI, OSC, DCS, bare 2-byte escapes), and maps them onto
// the small XML event vocabulary consumed by the timing driver.
//
// It replaces process_typescript_step from the original C sources: the
// "--i" index-decrement-after-consuming trick of that loop is gone in
// favor of each state returning the cursor position explicitly.
package ansi

import (
	"fmt"
	"io"

	"github.com/thfi/scriptcast/pkg/config"
	"github.com/thfi/scriptcast/pkg/xmlevents"
)

// Decoder scans one typescript chunk at a time. The only state that
// survives across Decode calls is configuration; insideText is local
// to a single call and is always false again once Decode returns, so
// a run of control sequences never straddles a timestep boundary.
type Decoder struct {
	cfg *config.Config
}

// NewDecoder builds a Decoder bound to cfg's buffer-capacity settings.
func NewDecoder(cfg *config.Config) *Decoder {
	return &Decoder{cfg: cfg}
}

// Decode scans chunk byte by byte, writing XML events to w. Malformed
// control sequences are skipped silently (optionally traced via ctx)
// and never produce malformed XML; the only errors Decode returns are
// write failures from w.
func (d *Decoder) Decode(ctx *config.Context, w io.Writer, chunk []byte) error {
	insideText := false
	pos := 0
	n := len(chunk)

	closeText := func() error {
		if insideText {
			insideText = false
			if _, err := io.WriteString(w, "</text>\n"); err != nil {
				return err
			}
		}
		return nil
	}

	for pos < n {
		b := chunk[pos]
		switch {
		case b == 0x0A: // LF
			if err := closeText(); err != nil {
				return err
			}
			if _, err := io.WriteString(w, "<newline />\n"); err != nil {
				return err
			}
			pos++

		case b == 0x0D: // CR
			if err := closeText(); err != nil {
				return err
			}
			// A lone trailing CR at end of chunk still emits a
			// newline; only a following LF suppresses it.
			if pos+1 >= n || chunk[pos+1] != 0x0A {
				if _, err := io.WriteString(w, "<newline />\n"); err != nil {
					return err
				}
			}
			pos++

		case b >= 0x20 && b <= 0x7E: // printable ASCII
			if !insideText {
				insideText = true
				if _, err := io.WriteString(w, "<text>"); err != nil {
					return err
				}
			}
			if err := xmlevents.WriteEscaped(w, b); err != nil {
				return err
			}
			pos++

		case b == 0x1B && pos+1 < n: // ESC, more bytes follow
			if err := closeText(); err != nil {
				return err
			}
			next, err := d.handleEscape(ctx, w, chunk, pos)
			if err != nil {
				return err
			}
			pos = next

		default: // other controls, 0x80+, or a lone trailing ESC
			if err := closeText(); err != nil {
				return err
			}
			if ctx.Debug {
				ctx.Tracef("ansi: dropping unrecognized byte 0x%02x at offset %d", b, pos)
			}
			pos++
		}
	}

	return closeText()
}

// handleEscape dispatches the byte following ESC and returns the
// cursor position to resume scanning from.
func (d *Decoder) handleEscape(ctx *config.Context, w io.Writer, chunk []byte, pos int) (int, error) {
	next := chunk[pos+1]
	switch next {
	case 0x5B: // '[' CSI
		return d.handleCSI(ctx, w, chunk, pos+2)
	case 0x5D: // ']' OSC
		return d.handleOSC(ctx, w, chunk, pos+2)
	case 0x50: // 'P' DCS
		return d.handleDCS(ctx, w, chunk, pos+2)
	default:
		if next >= 0x3C && next <= 0x3F {
			ctx.Tracef("ansi: private parameter string escape 0x%02x, no event", next)
		} else {
			ctx.Tracef("ansi: unknown 2-byte escape 0x%02x, no event", next)
		}
		// Both cases are 2-byte sequences (ESC + this byte); no XML.
		return pos + 2, nil
	}
}

// collectByteRange consumes bytes in [lo, hi] starting at pos and
// reports whether the run exceeded cap (overflow truncates rather than
// reading unbounded attacker-controlled input).
func collectByteRange(chunk []byte, pos int, lo, hi byte, cap int) (newPos int, body []byte, overflow bool) {
	start := pos
	n := len(chunk)
	for pos < n && chunk[pos] >= lo && chunk[pos] <= hi {
		pos++
	}
	body = chunk[start:pos]
	if len(body) > cap {
		return pos, body[:cap], true
	}
	return pos, body, false
}

// handleCSI collects a CSI triple (parameter bytes, intermediate
// bytes, final byte) and hands it to Interpret. A missing final byte,
// an out-of-range final byte, or a buffer overflow aborts the
// sequence without emitting XML; the decoder resumes scanning at the
// offending byte rather than consuming it.
func (d *Decoder) handleCSI(ctx *config.Context, w io.Writer, chunk []byte, pos int) (int, error) {
	pos, paramBytes, paramOverflow := collectByteRange(chunk, pos, 0x30, 0x3F, d.cfg.ParamBufferCap)
	pos, interBytes, interOverflow := collectByteRange(chunk, pos, 0x20, 0x2F, d.cfg.IntermediateCap)

	if paramOverflow || interOverflow {
		ctx.Tracef("ansi: CSI sequence aborted, parameter/intermediate buffer overflow")
		return pos, nil
	}

	if pos >= len(chunk) {
		ctx.Tracef("ansi: CSI sequence aborted, final byte expected but chunk ended")
		return pos, nil
	}

	final := chunk[pos]
	if final < 0x40 || final > 0x7F {
		ctx.Tracef("ansi: CSI sequence aborted, byte 0x%02x is not a valid final byte", final)
		return pos, nil
	}
	pos++

	if err := Interpret(ctx, w, final, interBytes, paramBytes); err != nil {
		return pos, fmt.Errorf("ansi: interpreting CSI final byte 0x%02x: %w", final, err)
	}
	return pos, nil
}

// collectStringSeq is a single generic OSC/DCS string collector,
// parameterized by the caller's emission policy rather than duplicated
// per structure.
func (d *Decoder) collectStringSeq(ctx *config.Context, chunk []byte, pos int) (newPos int, body []byte, overflow bool) {
	start := pos
	n := len(chunk)
	for pos < n {
		b := chunk[pos]
		if (b >= 0x08 && b <= 0x0D) || (b >= 0x20 && b <= 0x7E) {
			pos++
			continue
		}
		break
	}
	body = chunk[start:pos]
	if len(body) > d.cfg.StringBufferCap {
		overflow = true
		body = body[:d.cfg.StringBufferCap]
	}

	switch {
	case pos < n && chunk[pos] == 0x9C: // 8-bit single-byte ST
		pos++
	case pos+1 < n && chunk[pos] == 0x1B && chunk[pos+1] == 0x5C: // 7-bit ESC \
		pos += 2
	case pos < n && chunk[pos] == 0x07: // BEL accepted as alternative
		pos++
	case pos < n:
		ctx.Tracef("ansi: string terminator expected but byte 0x%02x found", chunk[pos])
	}
	return pos, body, overflow
}

// handleOSC collects an OSC string and, if it sets the window title
// (begins with "0;" and is longer than 3 bytes), emits it; all other
// OSCs produce no XML.
func (d *Decoder) handleOSC(ctx *config.Context, w io.Writer, chunk []byte, pos int) (int, error) {
	newPos, body, overflow := d.collectStringSeq(ctx, chunk, pos)
	if overflow {
		ctx.Tracef("ansi: OSC string aborted, buffer overflow")
		return newPos, nil
	}

	if len(body) > 3 && body[0] == '0' && body[1] == ';' {
		if _, err := io.WriteString(w, `<osc type="windowtitle">`); err != nil {
			return newPos, err
		}
		printable := make([]byte, 0, len(body)-2)
		for _, b := range body[2:] {
			if b >= 0x20 && b <= 0x7E {
				printable = append(printable, b)
			}
		}
		if err := xmlevents.WriteEscapedBytes(w, printable); err != nil {
			return newPos, err
		}
		if _, err := io.WriteString(w, "</osc>\n"); err != nil {
			return newPos, err
		}
	}
	return newPos, nil
}

// handleDCS collects a DCS string and discards it; DCS never produces
// XML output.
func (d *Decoder) handleDCS(ctx *config.Context, w io.Writer, chunk []byte, pos int) (int, error) {
	newPos, _, overflow := d.collectStringSeq(ctx, chunk, pos)
	if overflow {
		ctx.Tracef("ansi: DCS string aborted, buffer overflow")
	}
	return newPos, nil
}
