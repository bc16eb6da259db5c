package coalesce

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/thfi/scriptcast/pkg/config"
)

func run(t *testing.T, input string) string {
	t.Helper()
	cfg := config.DefaultConfig()
	ctx := config.NewContext(cfg)
	var buf bytes.Buffer
	if err := Coalesce(ctx, strings.NewReader(input), &buf); err != nil {
		t.Fatalf("Coalesce returned error: %v", err)
	}
	return buf.String()
}

func TestCoalesceMergesEmptyTimesteps(t *testing.T) {
	input := `<?xml version="1.0" encoding="UTF-8" ?>
<script>
<timestep delay="0.100"></timestep>
<timestep delay="0.200"></timestep>
<timestep delay="0.300"><text>x</text></timestep>
</script>
`
	got := run(t, input)
	want := "<?xml version=\"1.0\" encoding=\"UTF-8\" ?>\n<script>\n" +
		`<timestep delay="0.600">` + "<text>x</text>" + "</timestep>\n" +
		"</script>\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCoalesceWhitespaceOnlyTextIsEmpty(t *testing.T) {
	input := `<script><timestep delay="0.100">   </timestep><timestep delay="0.050"><newline /></timestep></script>`
	got := run(t, input)
	want := "<?xml version=\"1.0\" encoding=\"UTF-8\" ?>\n<script>\n" +
		`<timestep delay="0.150">` + "<newline />" + "</timestep>\n" +
		"</script>\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCoalesceTrailingEmptyTimestepsAreDropped(t *testing.T) {
	input := `<script><timestep delay="0.100"><text>a</text></timestep><timestep delay="0.200"></timestep></script>`
	got := run(t, input)
	want := "<?xml version=\"1.0\" encoding=\"UTF-8\" ?>\n<script>\n" +
		`<timestep delay="0.100">` + "<text>a</text>" + "</timestep>\n" +
		"</script>\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCoalesceIsIdempotent(t *testing.T) {
	input := `<script>
<timestep delay="0.100"></timestep>
<timestep delay="0.200"><text>hi</text></timestep>
<timestep delay="0.300"></timestep>
</script>`
	once := run(t, input)
	twice := run(t, once)
	if once != twice {
		t.Errorf("coalescing an already-coalesced document changed it:\nonce:  %q\ntwice: %q", once, twice)
	}
}

func TestCoalesceRejectsWrongRootElement(t *testing.T) {
	cfg := config.DefaultConfig()
	ctx := config.NewContext(cfg)
	var buf bytes.Buffer
	err := Coalesce(ctx, strings.NewReader(`<notscript></notscript>`), &buf)
	if !errors.Is(err, ErrBadRoot) {
		t.Fatalf("expected ErrBadRoot for a non-script root element, got %v", err)
	}
}

func TestCoalesceRejectsEmptyDocument(t *testing.T) {
	cfg := config.DefaultConfig()
	ctx := config.NewContext(cfg)
	var buf bytes.Buffer
	err := Coalesce(ctx, strings.NewReader(``), &buf)
	if !errors.Is(err, ErrBadRoot) {
		t.Fatalf("expected ErrBadRoot for an empty document, got %v", err)
	}
}

func TestCoalesceRejectsNonElementRoot(t *testing.T) {
	cfg := config.DefaultConfig()
	ctx := config.NewContext(cfg)
	var buf bytes.Buffer
	err := Coalesce(ctx, strings.NewReader(`<?xml version="1.0" encoding="UTF-8" ?>`), &buf)
	if !errors.Is(err, ErrBadRoot) {
		t.Fatalf("expected ErrBadRoot for a document with only a prolog, got %v", err)
	}
}

func TestCoalescePreservesEscapedText(t *testing.T) {
	input := `<script><timestep delay="0.100"><text>a&lt;b&amp;c</text></timestep></script>`
	got := run(t, input)
	if !strings.Contains(got, "<text>a&lt;b&amp;c</text>") {
		t.Errorf("expected escaped text preserved, got %q", got)
	}
}
