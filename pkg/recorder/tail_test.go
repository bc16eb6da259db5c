package recorder

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/thfi/scriptcast/pkg/config"
)

func newTailFiles(t *testing.T) (dir, timingPath, typescriptPath string) {
	t.Helper()
	dir = t.TempDir()
	timingPath = filepath.Join(dir, "timing")
	typescriptPath = filepath.Join(dir, "typescript")
	if err := os.WriteFile(timingPath, nil, 0644); err != nil {
		t.Fatalf("creating timing file: %v", err)
	}
	if err := os.WriteFile(typescriptPath, nil, 0644); err != nil {
		t.Fatalf("creating typescript file: %v", err)
	}
	return dir, timingPath, typescriptPath
}

func appendFile(t *testing.T, path string, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("opening %s for append: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(data); err != nil {
		t.Fatalf("appending to %s: %v", path, err)
	}
}

func TestTailerPollDecodesRecordsAsTheyAppear(t *testing.T) {
	dir, timingPath, typescriptPath := newTailFiles(t)
	cfg := config.DefaultConfig()
	ctx := config.NewContext(cfg)

	tailer, err := NewTailer(cfg, dir)
	if err != nil {
		t.Fatalf("NewTailer returned error: %v", err)
	}
	defer tailer.Close()

	appendFile(t, typescriptPath, "# comment\nhello\n")
	appendFile(t, timingPath, "0.500 6\n")

	var buf bytes.Buffer
	if err := tailer.Poll(ctx, &buf); err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	want := `<timestep delay="0.500">` + "<text>hello</text>\n<newline />\n" + "</timestep>\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	buf.Reset()
	appendFile(t, typescriptPath, "bye\n")
	appendFile(t, timingPath, "0.100 4\n")
	if err := tailer.Poll(ctx, &buf); err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	want = `<timestep delay="0.100">` + "<text>bye</text>\n<newline />\n" + "</timestep>\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestTailerPollWaitsForTypescriptBytesBeforeConsumingTimingLine(t *testing.T) {
	dir, timingPath, typescriptPath := newTailFiles(t)
	cfg := config.DefaultConfig()
	ctx := config.NewContext(cfg)

	tailer, err := NewTailer(cfg, dir)
	if err != nil {
		t.Fatalf("NewTailer returned error: %v", err)
	}
	defer tailer.Close()

	// The timing line lands before its typescript bytes are flushed.
	appendFile(t, typescriptPath, "# comment\n")
	appendFile(t, timingPath, "0.250 5\n")

	var buf bytes.Buffer
	if err := tailer.Poll(ctx, &buf); err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output before typescript bytes arrive, got %q", buf.String())
	}

	appendFile(t, typescriptPath, "abcde")
	if err := tailer.Poll(ctx, &buf); err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	want := `<timestep delay="0.250">` + "<text>abcde</text>\n" + "</timestep>\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestTailerPollWaitsForPartialTimingLine(t *testing.T) {
	dir, timingPath, typescriptPath := newTailFiles(t)
	cfg := config.DefaultConfig()
	ctx := config.NewContext(cfg)

	tailer, err := NewTailer(cfg, dir)
	if err != nil {
		t.Fatalf("NewTailer returned error: %v", err)
	}
	defer tailer.Close()

	appendFile(t, typescriptPath, "# comment\nhi\n")
	appendFile(t, timingPath, "0.500 3")

	var buf bytes.Buffer
	if err := tailer.Poll(ctx, &buf); err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output for an incomplete timing line, got %q", buf.String())
	}

	appendFile(t, timingPath, "\n")
	if err := tailer.Poll(ctx, &buf); err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	want := `<timestep delay="0.500">` + "<text>hi</text>\n<newline />\n" + "</timestep>\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestSessionDoneReflectsMetaStatus(t *testing.T) {
	dir := t.TempDir()
	if sessionDone(dir) {
		t.Error("expected sessionDone to be false with no meta.json yet")
	}

	writeMeta := func(status string) {
		data, _ := json.Marshal(Meta{ID: "s", Status: status})
		if err := os.WriteFile(filepath.Join(dir, "meta.json"), data, 0644); err != nil {
			t.Fatalf("writing meta.json: %v", err)
		}
	}

	writeMeta("running")
	if sessionDone(dir) {
		t.Error("expected sessionDone to be false while status is running")
	}

	writeMeta("exited")
	if !sessionDone(dir) {
		t.Error("expected sessionDone to be true once status is exited")
	}
}
