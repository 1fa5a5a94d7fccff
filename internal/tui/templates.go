package tui

import (
	"strings"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/CosmoTheDev/ctrlnotify/internal/templates"
)

// TemplateSource is the part of templates.Engine the browser needs.
type TemplateSource interface {
	List() ([]templates.Template, error)
	Variables(name string) ([]string, error)
}

// TemplatesModel lists available templates with a preview of the selected one.
type TemplatesModel struct {
	src     TemplateSource
	items   []templates.Template
	vars    map[string][]string
	width   int
	height  int
	cursor  int
	err     error
	loading bool
}

type templatesLoadedMsg struct {
	items []templates.Template
	vars  map[string][]string
	err   error
}

// NewTemplatesModel creates a TemplatesModel. A nil src shows an empty list.
func NewTemplatesModel(src TemplateSource) TemplatesModel {
	return TemplatesModel{src: src, loading: src != nil}
}

func (t TemplatesModel) Init() tea.Cmd {
	return t.loadCmd()
}

func (t TemplatesModel) loadCmd() tea.Cmd {
	if t.src == nil {
		return nil
	}
	src := t.src
	return func() tea.Msg {
		items, err := src.List()
		vars := make(map[string][]string, len(items))
		for _, it := range items {
			if v, verr := src.Variables(it.Name); verr == nil {
				vars[it.Name] = v
			}
		}
		return templatesLoadedMsg{items: items, vars: vars, err: err}
	}
}

func (t TemplatesModel) Update(msg tea.Msg) (TemplatesModel, tea.Cmd) {
	switch msg := msg.(type) {
	case templatesLoadedMsg:
		t.items, t.vars, t.err = msg.items, msg.vars, msg.err
		t.loading = false
		if t.cursor >= len(t.items) {
			t.cursor = max(0, len(t.items)-1)
		}
	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			if t.cursor < len(t.items)-1 {
				t.cursor++
			}
		case "k", "up":
			if t.cursor > 0 {
				t.cursor--
			}
		case "r":
			t.loading = true
			return t, t.loadCmd()
		}
	}
	return t, nil
}

func (t *TemplatesModel) SetSize(w, h int) {
	t.width = w
	t.height = h
}

func (t TemplatesModel) View() string {
	if t.loading && len(t.items) == 0 {
		return panelStyle.Width(max(20, t.width-2)).Render("Loading templates...")
	}

	rows := ""
	for i, it := range t.items {
		cursor := " "
		if i == t.cursor {
			cursor = "▌"
		}
		origin := okStyle.Render("user")
		if it.Bundled {
			origin = dimStyle.Render("bundled")
		}
		line := lipgloss.JoinHorizontal(lipgloss.Left,
			lipgloss.NewStyle().Width(2).Foreground(accent).Render(cursor),
			lipgloss.NewStyle().Width(26).Foreground(ink).Render(truncate(it.Name, 24)),
			lipgloss.NewStyle().Width(10).Render(origin),
			dimStyle.Render(truncate(it.Description, 48)),
		)
		if i == t.cursor {
			line = selectedRowStyle.Width(max(20, t.width-6)).Render(line)
		}
		rows += line + "\n"
	}
	if rows == "" {
		rows = dimStyle.Render("No templates found. Run: ctrlnotify templates init\n")
	}
	if t.err != nil {
		rows += errStyle.Render("list failed: "+t.err.Error()) + "\n"
	}

	preview := ""
	if len(t.items) > 0 {
		it := t.items[t.cursor]
		header := panelHeaderStyle.Render(it.Name)
		if it.Subject != "" {
			header += dimStyle.Render("  subject: " + it.Subject)
		}
		previewLines := t.height - len(t.items) - 16
		if previewLines < 4 {
			previewLines = 4
		}
		preview = lipgloss.JoinVertical(lipgloss.Left,
			"",
			header,
			dimStyle.Render("variables: "+strings.Join(t.vars[it.Name], ", ")),
			lipgloss.NewStyle().Foreground(ink).Render(firstLines(it.Body, previewLines)),
		)
	}

	return panelStyle.Width(max(20, t.width-2)).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			panelHeaderStyle.Render("Templates"),
			"",
			rows,
			preview,
			"",
			dimStyle.Render("j/k navigate  r reload"),
		),
	)
}
