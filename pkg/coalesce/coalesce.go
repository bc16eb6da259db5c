// Package coalesce implements the empty-timestep coalescer: a
// single-pass token-stream rewrite that merges runs of whitespace-only
// <timestep> elements into the next non-empty one, summing their delay
// attributes. It replaces the expat SAX handlers (start_element,
// end_element) from the original C sources with a plain
// encoding/xml.Decoder token loop — no suitable third-party XML
// tree-mutation library in the pack can rewrite an attribute value and
// splice sibling nodes, so the standard library's streaming decoder is
// the idiomatic choice here.
package coalesce

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"encoding/xml"

	"github.com/thfi/scriptcast/pkg/config"
)

// ErrBadRoot is returned when the document's root element is missing
// or is not named "script".
var ErrBadRoot = errors.New("coalesce: root element is not <script>")

// timestep buffers one <timestep>...</timestep> element's children so
// its emptiness can be judged before any output is written.
type timestep struct {
	delay  float64
	tokens []xml.Token
	empty  bool
}

// Coalesce reads one XML document from r and writes the coalesced
// document to w.
func Coalesce(ctx *config.Context, r io.Reader, w io.Writer) error {
	dec := xml.NewDecoder(r)

	root, err := nextStart(dec)
	if err != nil {
		return err
	}
	if root.Name.Local != "script" {
		return fmt.Errorf("%w: got %q", ErrBadRoot, root.Name.Local)
	}

	if _, err := io.WriteString(w, "<?xml version=\"1.0\" encoding=\"UTF-8\" ?>\n<script>\n"); err != nil {
		return fmt.Errorf("coalesce: writing document header: %w", err)
	}

	var accumulated float64
loop:
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("coalesce: reading token: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "timestep" {
				ctx.Tracef("coalesce: ignoring unexpected element %q at document level", t.Name.Local)
				continue
			}
			ts, err := readTimestep(dec, t)
			if err != nil {
				return fmt.Errorf("coalesce: reading timestep: %w", err)
			}
			if ts.empty {
				accumulated += ts.delay
				continue
			}
			delay := ts.delay + accumulated
			accumulated = 0
			if err := writeTimestep(w, ts, delay); err != nil {
				return fmt.Errorf("coalesce: writing timestep: %w", err)
			}
		case xml.EndElement:
			if t.Name.Local == "script" {
				break loop
			}
		}
	}

	if _, err := io.WriteString(w, "</script>\n"); err != nil {
		return fmt.Errorf("coalesce: writing document footer: %w", err)
	}
	return nil
}

// nextStart scans for the document's first StartElement. An empty
// document, or one with no element at all, has no element root, so
// EOF here is reported as ErrBadRoot rather than a generic read
// failure.
func nextStart(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return xml.StartElement{}, fmt.Errorf("%w: document has no element root", ErrBadRoot)
		}
		if err != nil {
			return xml.StartElement{}, fmt.Errorf("coalesce: reading root element: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}

// readTimestep consumes tokens up to and including the timestep's
// matching EndElement, buffering everything in between and deciding
// emptiness: no child elements, and any text content consists solely
// of bytes <= 0x20.
func readTimestep(dec *xml.Decoder, start xml.StartElement) (*timestep, error) {
	ts := &timestep{}
	for _, a := range start.Attr {
		if a.Name.Local == "delay" {
			v, err := strconv.ParseFloat(a.Value, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing delay %q: %w", a.Value, err)
			}
			ts.delay = v
		}
	}

	depth := 0
	hasChildElement := false
	hasNonWhitespaceText := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if end, ok := tok.(xml.EndElement); ok && depth == 0 {
			_ = end
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			hasChildElement = true
			depth++
			ts.tokens = append(ts.tokens, xml.CopyToken(t))
		case xml.EndElement:
			depth--
			ts.tokens = append(ts.tokens, xml.CopyToken(t))
		case xml.CharData:
			if !isWhitespace(t) {
				hasNonWhitespaceText = true
			}
			ts.tokens = append(ts.tokens, xml.CopyToken(t))
		default:
			ts.tokens = append(ts.tokens, xml.CopyToken(t))
		}
	}
	ts.empty = !hasChildElement && !hasNonWhitespaceText
	return ts, nil
}

func isWhitespace(data []byte) bool {
	for _, b := range data {
		if b > 0x20 {
			return false
		}
	}
	return true
}

func writeTimestep(w io.Writer, ts *timestep, delay float64) error {
	if _, err := fmt.Fprintf(w, "<timestep delay=\"%.3f\">", delay); err != nil {
		return err
	}
	if err := writeTokens(w, ts.tokens); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</timestep>\n")
	return err
}

// writeTokens re-renders a flat token slice, collapsing an immediately
// adjacent Start/End pair for the same element into a self-closing
// tag to match the decoder's own output shape.
func writeTokens(w io.Writer, tokens []xml.Token) error {
	for i := 0; i < len(tokens); i++ {
		switch t := tokens[i].(type) {
		case xml.StartElement:
			if i+1 < len(tokens) {
				if end, ok := tokens[i+1].(xml.EndElement); ok && end.Name == t.Name {
					if err := writeTag(w, t, true); err != nil {
						return err
					}
					i++
					continue
				}
			}
			if err := writeTag(w, t, false); err != nil {
				return err
			}
		case xml.EndElement:
			if _, err := fmt.Fprintf(w, "</%s>", t.Name.Local); err != nil {
				return err
			}
		case xml.CharData:
			if err := xml.EscapeText(w, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeTag(w io.Writer, t xml.StartElement, selfClose bool) error {
	if _, err := fmt.Fprintf(w, "<%s", t.Name.Local); err != nil {
		return err
	}
	for _, a := range t.Attr {
		if _, err := fmt.Fprintf(w, " %s=\"%s\"", a.Name.Local, a.Value); err != nil {
			return err
		}
	}
	closing := ">"
	if selfClose {
		closing = " />"
	}
	_, err := io.WriteString(w, closing)
	return err
}
