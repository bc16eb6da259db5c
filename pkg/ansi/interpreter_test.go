package ansi

import (
	"bytes"
	"testing"
)

func TestColorNameRoundTrip(t *testing.T) {
	want := map[int]string{
		30: "black", 31: "red", 32: "green", 33: "yellow",
		34: "blue", 35: "magenta", 36: "cyan", 37: "white",
	}
	for code, name := range want {
		if got := colorName(code); got != name {
			t.Errorf("colorName(%d) = %q, want %q", code, got, name)
		}
		// Background codes select the same name via mod 10.
		if got := colorName(code + 10); got != name {
			t.Errorf("colorName(%d) = %q, want %q", code+10, got, name)
		}
	}
	if got := colorName(38); got != "unknown" {
		t.Errorf("colorName(38) = %q, want unknown", got)
	}
}

func TestInterpretSGR38AbortsRunButNot48(t *testing.T) {
	var buf bytes.Buffer
	if err := interpretSGR(&buf, []byte("38;31")); err != nil {
		t.Fatalf("interpretSGR returned error: %v", err)
	}
	want := `<color foreground="normal-default" />` + "\n"
	if buf.String() != want {
		t.Errorf("SGR 38 should abort before processing 31: got %q, want %q", buf.String(), want)
	}

	buf.Reset()
	if err := interpretSGR(&buf, []byte("48;31")); err != nil {
		t.Fatalf("interpretSGR returned error: %v", err)
	}
	want = `<color background="normal-default" />` + "\n" + `<color foreground="normal-red" />` + "\n"
	if buf.String() != want {
		t.Errorf("SGR 48 should not abort: got %q, want %q", buf.String(), want)
	}
}

func TestInterpretSGRUnknownCodeResets(t *testing.T) {
	var buf bytes.Buffer
	if err := interpretSGR(&buf, []byte("59")); err != nil {
		t.Fatalf("interpretSGR returned error: %v", err)
	}
	want := `<color operation="reset" />` + "\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestInterpretSGRInvertedSwapsRole(t *testing.T) {
	var buf bytes.Buffer
	if err := interpretSGR(&buf, []byte("07;31")); err != nil {
		t.Fatalf("interpretSGR returned error: %v", err)
	}
	want := `<color background="normal-red" />` + "\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestInterpretSGRAixtermBrightForeground(t *testing.T) {
	var buf bytes.Buffer
	if err := interpretSGR(&buf, []byte("91")); err != nil {
		t.Fatalf("interpretSGR returned error: %v", err)
	}
	want := `<color foreground="intense-red" />` + "\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
