package render

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestBuiltinRender(t *testing.T) {
	r, err := New("", false, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if !r.Has("index.html") {
		t.Fatal("builtin index.html missing")
	}
	buf := &bytes.Buffer{}
	err = r.Render(buf, "index.html", map[string]interface{}{
		"pageTitle": "Test | Home",
		"form":      struct{ Name, Email, Message string }{"<Alice>", "a@b.c", "hi"},
		"flashes":   []struct{ Text, Category string }{{"All fields are required!", "error"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"<title>Test | Home</title>",
		`value="&lt;Alice&gt;"`,
		`class="flash flash-error"`,
		"All fields are required!",
		`name="message"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q", want)
		}
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	r, err := New("", false, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	buf := &bytes.Buffer{}
	if err := r.Render(buf, "nope.html", nil); err == nil {
		t.Fatal("expected error")
	}
	if buf.Len() != 0 {
		t.Fatalf("wrote %d bytes on error", buf.Len())
	}
}

func TestMinified(t *testing.T) {
	plain, err := New("", false, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	small, err := New("", true, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	data := map[string]interface{}{
		"pageTitle": "x",
		"form":      struct{ Name, Email, Message string }{},
	}
	a, b := &bytes.Buffer{}, &bytes.Buffer{}
	if err := plain.Render(a, "index.html", data); err != nil {
		t.Fatal(err)
	}
	if err := small.Render(b, "index.html", data); err != nil {
		t.Fatal(err)
	}
	if b.Len() >= a.Len() {
		t.Errorf("minified output is %d bytes, plain is %d", b.Len(), a.Len())
	}
	if !strings.Contains(b.String(), `name="email"`) && !strings.Contains(b.String(), `name=email`) {
		t.Error("minified output lost the email field")
	}
}

func TestTemplateDirReload(t *testing.T) {
	dir := t.TempDir()
	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write(`first {{ .x }}`)
	r, err := New(dir, false, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	render := func() string {
		buf := &bytes.Buffer{}
		if err := r.Render(buf, "index.html", map[string]string{"x": "y"}); err != nil {
			t.Fatal(err)
		}
		return buf.String()
	}
	if got := render(); got != "first y" {
		t.Fatalf("got %q", got)
	}

	write(`second {{ .x | upper }}`)
	if err := r.Reload(); err != nil {
		t.Fatal(err)
	}
	if got := render(); got != "second Y" {
		t.Fatalf("got %q", got)
	}

	write(`broken {{ .x `)
	if err := r.Reload(); err == nil {
		t.Fatal("expected parse error")
	}
	if got := render(); got != "second Y" {
		t.Fatalf("failed reload replaced templates: %q", got)
	}
}
