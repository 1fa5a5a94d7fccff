// Package templates loads and renders notification message templates.
//
// A template is a text/template file with optional YAML frontmatter:
//
//	---
//	description: Welcome email
//	subject: Welcome aboard!
//	options:
//	  from_email: hello@example.com
//	---
//	Hello {{ .user_name }}!
//
// Templates are looked up in the user template directory first and then in
// the bundled defaults. Rendering is strict: referencing a variable the event
// does not carry is an error. Use {{ index . "key" }} for optional values.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"

	"go.yaml.in/yaml/v3"
)

//go:embed defaults/*.txt
var defaultsFS embed.FS

// ErrTemplate is wrapped by every load or render failure.
var ErrTemplate = errors.New("template error")

// Renderer is the capability the registry needs from a template engine.
type Renderer interface {
	Render(name string, vars map[string]any) (string, error)
}

// Template is a parsed template file.
type Template struct {
	// Name is the file name, e.g. "welcome_email.txt".
	Name        string `yaml:"-"`
	Description string `yaml:"description"`
	// Subject is merged into channel options as "subject".
	Subject string `yaml:"subject"`
	// Options are merged into channel options. Config metadata takes precedence.
	Options map[string]any `yaml:"options"`
	Body    string         `yaml:"-"`
	Bundled bool           `yaml:"-"`
}

// Engine renders templates from a directory with bundled fallbacks.
type Engine struct {
	dir   string
	funcs template.FuncMap
}

// NewEngine returns an Engine reading user templates from dir. An empty dir
// means bundled templates only.
func NewEngine(dir string) *Engine {
	return &Engine{dir: dir, funcs: funcMap()}
}

// Dir returns the user template directory.
func (e *Engine) Dir() string { return e.dir }

// Load reads a template by name from the user directory, falling back to the
// bundled defaults.
func (e *Engine) Load(name string) (*Template, error) {
	if name == "" || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: invalid template name %q", ErrTemplate, name)
	}

	if e.dir != "" {
		path := filepath.Join(e.dir, name)
		if data, err := os.ReadFile(path); err == nil {
			t, err := parseFile(data)
			if err != nil {
				return nil, fmt.Errorf("%w: parse %q: %v", ErrTemplate, path, err)
			}
			t.Name = name
			return t, nil
		}
	}

	data, err := defaultsFS.ReadFile("defaults/" + name)
	if err != nil {
		return nil, fmt.Errorf("%w: template %q not found", ErrTemplate, name)
	}
	t, err := parseFile(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse bundled %q: %v", ErrTemplate, name, err)
	}
	t.Name = name
	t.Bundled = true
	return t, nil
}

// Has reports whether a template with this name can be loaded.
func (e *Engine) Has(name string) bool {
	_, err := e.Load(name)
	return err == nil
}

// Render executes the named template with vars.
func (e *Engine) Render(name string, vars map[string]any) (string, error) {
	t, err := e.Load(name)
	if err != nil {
		return "", err
	}
	out, err := e.execute(name, t.Body, vars)
	if err != nil {
		return "", fmt.Errorf("%w: failed to render template %s: %v", ErrTemplate, name, err)
	}
	return out, nil
}

// RenderString executes src directly, without a template file.
func (e *Engine) RenderString(src string, vars map[string]any) (string, error) {
	out, err := e.execute("inline", src, vars)
	if err != nil {
		return "", fmt.Errorf("%w: failed to render template string: %v", ErrTemplate, err)
	}
	return out, nil
}

// Validate reports whether src parses as a template.
func (e *Engine) Validate(src string) error {
	if _, err := e.newTemplate("validate").Parse(src); err != nil {
		return fmt.Errorf("%w: %v", ErrTemplate, err)
	}
	return nil
}

// Variables returns the top-level field names the named template references,
// sorted and without duplicates. Fields inside range or with blocks that
// refer to the inner dot are not included.
func (e *Engine) Variables(name string) ([]string, error) {
	t, err := e.Load(name)
	if err != nil {
		return nil, err
	}
	tmpl, err := e.newTemplate(name).Parse(t.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplate, err)
	}
	seen := make(map[string]bool)
	if tmpl.Tree != nil {
		walk(tmpl.Tree.Root, seen, 0)
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// walk collects field and index references at the top-level dot. depth counts
// enclosing range/with blocks, inside which dot is rebound.
func walk(node parse.Node, seen map[string]bool, depth int) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			walk(c, seen, depth)
		}
	case *parse.ActionNode:
		walkPipe(n.Pipe, seen, depth)
	case *parse.IfNode:
		walkPipe(n.Pipe, seen, depth)
		walk(n.List, seen, depth)
		walk(n.ElseList, seen, depth)
	case *parse.RangeNode:
		walkPipe(n.Pipe, seen, depth)
		walk(n.List, seen, depth+1)
		walk(n.ElseList, seen, depth)
	case *parse.WithNode:
		walkPipe(n.Pipe, seen, depth)
		walk(n.List, seen, depth+1)
		walk(n.ElseList, seen, depth)
	}
}

func walkPipe(p *parse.PipeNode, seen map[string]bool, depth int) {
	if p == nil {
		return
	}
	for _, cmd := range p.Cmds {
		args := cmd.Args
		for i, arg := range args {
			switch a := arg.(type) {
			case *parse.FieldNode:
				if depth == 0 && len(a.Ident) > 0 {
					seen[a.Ident[0]] = true
				}
			case *parse.PipeNode:
				walkPipe(a, seen, depth)
			case *parse.IdentifierNode:
				// index . "key"
				if a.Ident == "index" && depth == 0 && i+2 < len(args) {
					if _, ok := args[i+1].(*parse.DotNode); ok {
						if s, ok := args[i+2].(*parse.StringNode); ok {
							seen[s.Text] = true
						}
					}
				}
			}
		}
	}
}

// Options returns the channel options declared in a template's frontmatter.
// Unknown templates yield nil.
func (e *Engine) Options(name string) map[string]any {
	t, err := e.Load(name)
	if err != nil {
		return nil
	}
	if t.Subject == "" && len(t.Options) == 0 {
		return nil
	}
	out := make(map[string]any, len(t.Options)+1)
	for k, v := range t.Options {
		out[k] = v
	}
	if t.Subject != "" {
		out["subject"] = t.Subject
	}
	return out
}

// List returns all available templates sorted by name. User templates shadow
// bundled ones of the same name.
func (e *Engine) List() ([]Template, error) {
	byName := make(map[string]Template)

	entries, err := defaultsFS.ReadDir("defaults")
	if err != nil {
		return nil, fmt.Errorf("templates: reading embedded defaults: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := defaultsFS.ReadFile("defaults/" + entry.Name())
		if err != nil {
			continue
		}
		t, err := parseFile(data)
		if err != nil {
			slog.Warn("templates: skipping malformed bundled template", "file", entry.Name(), "error", err)
			continue
		}
		t.Name = entry.Name()
		t.Bundled = true
		byName[t.Name] = *t
	}

	if e.dir != "" {
		_ = filepath.WalkDir(e.dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			t, err := parseFile(data)
			if err != nil {
				slog.Warn("templates: skipping malformed user template", "file", path, "error", err)
				return nil
			}
			rel, err := filepath.Rel(e.dir, path)
			if err != nil {
				return nil
			}
			t.Name = filepath.ToSlash(rel)
			byName[t.Name] = *t
			return nil
		})
	}

	out := make([]Template, 0, len(byName))
	for _, t := range byName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Init creates the template directory and copies any missing bundled
// templates into it. Existing files are left alone.
func (e *Engine) Init() error {
	if e.dir == "" {
		return fmt.Errorf("templates: no template directory configured")
	}
	if err := os.MkdirAll(e.dir, 0o750); err != nil {
		return fmt.Errorf("templates: create dir %s: %w", e.dir, err)
	}

	entries, err := defaultsFS.ReadDir("defaults")
	if err != nil {
		return fmt.Errorf("templates: reading embedded defaults: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		dest := filepath.Join(e.dir, entry.Name())
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		data, err := defaultsFS.ReadFile("defaults/" + entry.Name())
		if err != nil {
			continue
		}
		if err := os.WriteFile(dest, data, 0o640); err != nil {
			slog.Warn("templates: failed to write default template", "file", dest, "error", err)
		}
	}
	return nil
}

func (e *Engine) newTemplate(name string) *template.Template {
	return template.New(name).Funcs(e.funcs).Option("missingkey=error")
}

func (e *Engine) execute(name, src string, vars map[string]any) (string, error) {
	tmpl, err := e.newTemplate(name).Parse(src)
	if err != nil {
		return "", err
	}
	if vars == nil {
		vars = map[string]any{}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// parseFile extracts YAML frontmatter and the body from a template file.
func parseFile(data []byte) (*Template, error) {
	const delim = "---"

	trimmed := bytes.TrimLeft(data, " \t\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return &Template{Body: strings.TrimSpace(string(data))}, nil
	}

	rest := bytes.TrimPrefix(trimmed, []byte(delim))
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, fmt.Errorf("unterminated YAML frontmatter (missing closing ---)")
	}

	frontmatter := rest[:idx]
	body := strings.TrimSpace(string(rest[idx+len("\n"+delim):]))

	var t Template
	if err := yaml.Unmarshal(frontmatter, &t); err != nil {
		return nil, fmt.Errorf("invalid YAML frontmatter: %w", err)
	}
	t.Body = body
	return &t, nil
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"trim":  strings.TrimSpace,
		"join": func(sep string, items []any) string {
			parts := make([]string, len(items))
			for i, it := range items {
				parts[i] = fmt.Sprint(it)
			}
			return strings.Join(parts, sep)
		},
		"default": func(def, v any) any {
			if v == nil {
				return def
			}
			if s, ok := v.(string); ok && s == "" {
				return def
			}
			return v
		},
	}
}
