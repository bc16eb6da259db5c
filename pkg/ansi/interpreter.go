package ansi

import (
	"fmt"
	"io"

	"github.com/thfi/scriptcast/pkg/config"
	"github.com/thfi/scriptcast/pkg/xmlevents"
)

// SGRState tracks the weight/inversion flags that persist only across
// the codes of a single SGR (CSI ... m) control sequence. It is always
// constructed fresh at the start of Interpret's SGR branch, so no flag
// ever survives from one SGR run to the next.
type SGRState struct {
	Intense  bool
	Faint    bool
	Inverted bool
}

// colorName maps an SGR color code onto the name ScriptInterpreter's
// colortostring produced, keyed by color % 10.
func colorName(color int) string {
	switch color % 10 {
	case 0:
		return "black"
	case 1:
		return "red"
	case 2:
		return "green"
	case 3:
		return "yellow"
	case 4:
		return "blue"
	case 5:
		return "magenta"
	case 6:
		return "cyan"
	case 7:
		return "white"
	case 9:
		return "default"
	default:
		return "unknown"
	}
}

func writeElem(w io.Writer, s string) error {
	_, err := io.WriteString(w, s+"\n")
	return err
}

// Interpret dispatches a parsed CSI triple onto the XML event
// vocabulary.
func Interpret(ctx *config.Context, w io.Writer, final byte, intermediate, parameter []byte) error {
	switch final {
	case 0x48: // H — CUP, Cursor Position
		return interpretCUP(w, parameter)
	case 0x4A: // J — ED, Erase in Page
		return interpretErase(w, parameter, "in_page")
	case 0x4B: // K — EL, Erase in Line
		return interpretErase(w, parameter, "in_line")
	case 0x68: // h — SM, Set Mode
		if len(intermediate) != 0 {
			return nil
		}
		params, _ := xmlevents.ParseParamList(parameter)
		return dispatchMode(w, params, true)
	case 0x6C: // l — RM, Reset Mode
		params, _ := xmlevents.ParseParamList(parameter)
		return dispatchMode(w, params, false)
	case 0x6D: // m — SGR, Select Graphics Rendition
		return interpretSGR(w, parameter)
	case 0x6E: // n — DSR, Device Status Report: diagnostic only
		ctx.Tracef("ansi: DSR request, no XML emitted")
		return nil
	default:
		ctx.Tracef("ansi: no handler for CSI final byte 0x%02x", final)
		return nil
	}
}

func interpretCUP(w io.Writer, parameter []byte) error {
	params, _ := xmlevents.ParseParamList(parameter)
	row, col := 1, 1
	if len(params) >= 1 {
		row = params[0]
	}
	if len(params) >= 2 {
		col = params[1]
	}
	_, err := fmt.Fprintf(w, "<cursor absoluterow=\"%d\" absolutecolumn=\"%d\" />\n", row, col)
	return err
}

// singleDigitParam parses the single optional decimal parameter that
// ED/EL accept, defaulting to 0 when absent. A multi-digit value
// is rejected outright (no XML).
func singleDigitParam(parameter []byte) (value int, ok bool) {
	if len(parameter) == 0 {
		return 0, true
	}
	v, n := xmlevents.ParseDecimal(parameter, 2)
	if v < 0 {
		return 0, false
	}
	if n == 0 {
		return 0, true
	}
	if n > 1 {
		return 0, false
	}
	return v, true
}

func interpretErase(w io.Writer, parameter []byte, scope string) error {
	param, ok := singleDigitParam(parameter)
	if !ok {
		return nil
	}
	rangeName := "cur_to_end"
	switch param {
	case 1:
		rangeName = "begin_to_cur"
	case 2:
		rangeName = "all"
	}
	_, err := fmt.Fprintf(w, "<erase scope=\"%s\" range=\"%s\" />\n", scope, rangeName)
	return err
}

// dispatchMode implements the SM/RM behavior table. It only fires for
// a single, unambiguous parameter.
func dispatchMode(w io.Writer, params []int, isSet bool) error {
	if len(params) != 1 {
		return nil
	}
	switch params[0] {
	case 1:
		if isSet {
			return writeElem(w, `<cursor key-control="application" />`)
		}
		return writeElem(w, `<cursor key-control="terminal" />`)
	case 12:
		if isSet {
			return writeElem(w, `<cursor blinking="true" />`)
		}
		return writeElem(w, `<cursor blinking="false" />`)
	case 25:
		if isSet {
			return writeElem(w, `<cursor show="false" />`)
		}
		return writeElem(w, `<cursor show="true" />`)
	case 47, 1047:
		if isSet {
			return writeElem(w, `<screen switchto="1" />`)
		}
		return writeElem(w, `<screen switchto="0" />`)
	case 1049:
		if isSet {
			if err := writeElem(w, `<cursor state="save" />`); err != nil {
				return err
			}
			return writeElem(w, `<screen switchto="1" />`)
		}
		if err := writeElem(w, `<cursor state="restore" />`); err != nil {
			return err
		}
		return writeElem(w, `<screen switchto="0" />`)
	case 1034:
		if isSet {
			return writeElem(w, `<special state="8bit" />`)
		}
		return nil
	case 1048:
		if isSet {
			return writeElem(w, `<cursor state="save" />`)
		}
		return writeElem(w, `<cursor state="restore" />`)
	}
	return nil
}

// sgrCodes splits an SGR parameter string into its exactly-two-digit
// codes, stopping at the first code that isn't exactly two digits —
// matching the fixed-width scan the original C sources perform.
func sgrCodes(parameter []byte) []int {
	var codes []int
	buf := parameter
	for len(buf) >= 2 {
		v, n := xmlevents.ParseDecimal(buf, 2)
		if n != 2 {
			break
		}
		codes = append(codes, v)
		if len(buf) > 2 && buf[2] == ';' {
			buf = buf[3:]
		} else {
			break
		}
	}
	return codes
}

func writeColorReset(w io.Writer) error {
	return writeElem(w, `<color operation="reset" />`)
}

// role computes the XML attribute name a foreground/background color
// change should use, swapping under inversion.
func role(isBackgroundCode bool, inverted bool) string {
	fg := !isBackgroundCode
	if inverted {
		fg = !fg
	}
	if fg {
		return "foreground"
	}
	return "background"
}

func writeColorSet(w io.Writer, sgr *SGRState, isBackgroundCode bool, code int) error {
	weight := "normal"
	if sgr.Intense {
		weight = "intense"
	} else if sgr.Faint {
		weight = "faint"
	}
	_, err := fmt.Fprintf(w, "<color %s=\"%s-%s\" />\n", role(isBackgroundCode, sgr.Inverted), weight, colorName(code))
	return err
}

func writeColorNormalDefault(w io.Writer, sgr *SGRState, isBackgroundCode bool) error {
	_, err := fmt.Fprintf(w, "<color %s=\"normal-default\" />\n", role(isBackgroundCode, sgr.Inverted))
	return err
}

// interpretSGR walks the two-digit codes of one SGR run, tracking
// intense/faint/inverted locally. Code 38 aborts the run after
// emitting a foreground default-color event; code 48 does the
// equivalent for background but does NOT abort. This asymmetry is
// preserved intentionally.
func interpretSGR(w io.Writer, parameter []byte) error {
	sgr := &SGRState{}
	for _, color := range sgrCodes(parameter) {
		if (color >= 90 && color <= 97) || (color >= 100 && color <= 107) {
			sgr.Intense = true
			color -= 60
		}

		switch {
		case color == 0:
			if err := writeColorReset(w); err != nil {
				return err
			}
			sgr.Intense, sgr.Faint, sgr.Inverted = false, false, false
		case color == 1:
			sgr.Intense, sgr.Faint = true, false
		case color == 2:
			sgr.Faint, sgr.Intense = true, false
		case color == 3, color == 4, color == 5, color == 6:
			// italic/underline/blink: unsupported, no XML
		case color == 7:
			sgr.Inverted = true
		case color == 27:
			sgr.Inverted = false
		case (color >= 30 && color <= 37) || color == 39:
			if err := writeColorSet(w, sgr, false, color); err != nil {
				return err
			}
		case color == 38:
			if err := writeColorNormalDefault(w, sgr, false); err != nil {
				return err
			}
			return nil
		case (color >= 40 && color <= 47) || color == 49:
			if err := writeColorSet(w, sgr, true, color); err != nil {
				return err
			}
		case color == 48:
			if err := writeColorNormalDefault(w, sgr, true); err != nil {
				return err
			}
		default:
			if err := writeColorReset(w); err != nil {
				return err
			}
		}
	}
	return nil
}
