package templates

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestRenderBundledWelcomeEmail(t *testing.T) {
	e := NewEngine("")
	out, err := e.Render("welcome_email.txt", map[string]any{
		"user_name":  "Alice",
		"user_email": "a@x.com",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "Hello Alice") || !strings.Contains(out, "a@x.com") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "<no value>") {
		t.Fatalf("optional fields leaked into output:\n%s", out)
	}
}

func TestRenderOptionalFields(t *testing.T) {
	e := NewEngine("")
	out, err := e.Render("daily_stats.txt", map[string]any{
		"date":            "2026-03-01",
		"total_users":     1200,
		"new_signups":     15,
		"active_sessions": 88,
		"revenue":         "$1,024",
		"top_events": []any{
			map[string]any{"name": "login", "count": 900},
			map[string]any{"name": "purchase", "count": 42},
		},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{"2026-03-01", "Revenue:", "$1,024", "- login: 900", "- purchase: 42"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRenderMissingVariableIsError(t *testing.T) {
	e := NewEngine("")
	_, err := e.Render("welcome_email.txt", map[string]any{"user_email": "a@x.com"})
	if err == nil {
		t.Fatal("expected error for missing user_name")
	}
	if !errors.Is(err, ErrTemplate) {
		t.Fatalf("expected ErrTemplate, got %v", err)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	e := NewEngine(t.TempDir())
	if _, err := e.Render("nope.txt", nil); !errors.Is(err, ErrTemplate) {
		t.Fatalf("expected ErrTemplate, got %v", err)
	}
	if e.Has("nope.txt") {
		t.Fatal("Has should be false for unknown template")
	}
	if e.Has("../secret.txt") {
		t.Fatal("path traversal must be rejected")
	}
}

func TestUserTemplateShadowsBundled(t *testing.T) {
	dir := t.TempDir()
	src := "---\nsubject: Custom\noptions:\n  from_email: team@example.com\n---\nHi {{ .user_name }}"
	if err := os.WriteFile(filepath.Join(dir, "welcome_email.txt"), []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	e := NewEngine(dir)

	out, err := e.Render("welcome_email.txt", map[string]any{"user_name": "Bob"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "Hi Bob" {
		t.Fatalf("expected user template output, got %q", out)
	}

	opts := e.Options("welcome_email.txt")
	if opts["subject"] != "Custom" || opts["from_email"] != "team@example.com" {
		t.Fatalf("unexpected options: %v", opts)
	}

	list, err := e.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var found bool
	for _, tmpl := range list {
		if tmpl.Name == "welcome_email.txt" {
			found = true
			if tmpl.Bundled {
				t.Fatal("user template should shadow the bundled one")
			}
		}
	}
	if !found {
		t.Fatal("welcome_email.txt missing from List")
	}
}

func TestTemplateWithoutFrontmatter(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "plain.txt"), []byte("Plain {{ .x }}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	e := NewEngine(dir)
	out, err := e.Render("plain.txt", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "Plain 1" {
		t.Fatalf("got %q", out)
	}
	if e.Options("plain.txt") != nil {
		t.Fatal("expected nil options without frontmatter")
	}
}

func TestUnterminatedFrontmatter(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.txt"), []byte("---\nsubject: x\nbody"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewEngine(dir).Load("bad.txt"); !errors.Is(err, ErrTemplate) {
		t.Fatalf("expected ErrTemplate, got %v", err)
	}
}

func TestRenderStringAndValidate(t *testing.T) {
	e := NewEngine("")
	out, err := e.RenderString("{{ upper .name }} / {{ default \"n/a\" (index . \"missing\") }}", map[string]any{"name": "alice"})
	if err != nil {
		t.Fatalf("RenderString: %v", err)
	}
	if out != "ALICE / n/a" {
		t.Fatalf("got %q", out)
	}
	if err := e.Validate("{{ .ok }}"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := e.Validate("{{ .broken "); !errors.Is(err, ErrTemplate) {
		t.Fatalf("expected ErrTemplate, got %v", err)
	}
}

func TestVariables(t *testing.T) {
	e := NewEngine("")
	vars, err := e.Variables("daily_stats.txt")
	if err != nil {
		t.Fatalf("Variables: %v", err)
	}
	want := []string{"active_sessions", "date", "new_signups", "revenue", "top_events", "total_users"}
	if !reflect.DeepEqual(vars, want) {
		t.Fatalf("got %v, want %v", vars, want)
	}
}

func TestInitCopiesDefaultsWithoutOverwriting(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "templates")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	custom := filepath.Join(dir, "slack_welcome.txt")
	if err := os.WriteFile(custom, []byte("mine"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := NewEngine(dir).Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, name := range []string{"welcome_email.txt", "daily_stats.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to be copied: %v", name, err)
		}
	}
	data, _ := os.ReadFile(custom)
	if string(data) != "mine" {
		t.Fatalf("Init overwrote an existing template: %q", data)
	}
}
