package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Tab represents a TUI navigation tab.
type Tab int

const (
	TabOverview Tab = iota
	TabConfigs
	TabHistory
	TabTemplates
)

var tabNames = []string{"Overview", "Configurations", "History", "Templates"}
var tabCompactNames = []string{"Overview", "Configs", "History", "Tmpl"}
var tabTinyNames = []string{"O", "C", "H", "T"}

const refreshInterval = 10 * time.Second

// App is the root bubbletea model.
type App struct {
	backend   Backend
	width     int
	height    int
	activeTab Tab
	overview  OverviewModel
	configs   ConfigsModel
	history   HistoryModel
	templates TemplatesModel
	statusMsg string
}

type snapshotMsg struct {
	snap Snapshot
	err  error
}

type refreshTickMsg struct{}

type historyClearedMsg struct {
	n   int
	err error
}

// NewApp creates the TUI application.
func NewApp(backend Backend, tmpl TemplateSource) *App {
	return &App{
		backend:   backend,
		templates: NewTemplatesModel(tmpl),
	}
}

// Run starts the bubbletea program.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.loadCmd(),
		a.templates.Init(),
	)
}

func (a *App) loadCmd() tea.Cmd {
	backend := a.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		snap, err := backend.Snapshot(ctx)
		return snapshotMsg{snap: snap, err: err}
	}
}

func (a *App) clearCmd() tea.Cmd {
	backend := a.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n, err := backend.ClearHistory(ctx)
		return historyClearedMsg{n: n, err: err}
	}
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		contentW := msg.Width - 2
		if contentW < 20 {
			contentW = 20
		}
		contentH := msg.Height - 7
		if contentH < 8 {
			contentH = 8
		}
		a.overview.SetSize(contentW, contentH)
		a.configs.SetSize(contentW, contentH)
		a.history.SetSize(contentW, contentH)
		a.templates.SetSize(contentW, contentH)

	case snapshotMsg:
		a.overview.SetSnapshot(msg.snap, msg.err)
		if msg.err == nil {
			a.configs.SetConfigs(msg.snap.Configurations)
			a.history.SetItems(msg.snap.History)
		}
		return a, tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshTickMsg{} })

	case refreshTickMsg:
		return a, a.loadCmd()

	case historyClearedMsg:
		if msg.err != nil {
			a.statusMsg = "clear failed: " + msg.err.Error()
			return a, nil
		}
		a.statusMsg = fmt.Sprintf("cleared %d history entries", msg.n)
		return a, a.loadCmd()

	case tea.KeyMsg:
		a.statusMsg = ""
		switch msg.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		case "1":
			a.activeTab = TabOverview
		case "2":
			a.activeTab = TabConfigs
		case "3":
			a.activeTab = TabHistory
		case "4":
			a.activeTab = TabTemplates
		case "tab":
			a.activeTab = (a.activeTab + 1) % Tab(len(tabNames))
		case "shift+tab":
			a.activeTab--
			if a.activeTab < 0 {
				a.activeTab = Tab(len(tabNames) - 1)
			}
		case "r":
			if a.activeTab != TabTemplates {
				return a, a.loadCmd()
			}
		case "x":
			if a.activeTab == TabHistory {
				return a, a.clearCmd()
			}
		}
	}

	// Delegate to the active view; templates also needs its load message.
	var cmd tea.Cmd
	switch a.activeTab {
	case TabConfigs:
		a.configs, cmd = a.configs.Update(msg)
	case TabHistory:
		a.history, cmd = a.history.Update(msg)
	}
	cmds = append(cmds, cmd)
	if _, ok := msg.(templatesLoadedMsg); ok || a.activeTab == TabTemplates {
		a.templates, cmd = a.templates.Update(msg)
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

// View implements tea.Model.
func (a *App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	nav := a.renderTabs()

	// Active view content.
	var content string
	switch a.activeTab {
	case TabOverview:
		content = a.overview.View()
	case TabConfigs:
		content = a.configs.View()
	case TabHistory:
		content = a.history.View()
	case TabTemplates:
		content = a.templates.View()
	}

	contentBox := lipgloss.NewStyle().
		Width(a.width).
		Padding(0, 1).
		MaxHeight(max(1, a.height-4)).
		Render(content)

	hint := "tab next  shift+tab prev  1-4 jump  r refresh  q quit"
	if a.statusMsg != "" {
		hint = a.statusMsg
	}
	status := lipgloss.NewStyle().
		Width(a.width).
		Padding(0, 1).
		Foreground(slateDim).
		Render(hint)

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		nav,
		contentBox,
		status,
	)
}

func (a *App) renderHeader() string {
	row := lipgloss.JoinHorizontal(lipgloss.Left,
		titleStyle.Render("ctrlnotify"),
		"  ",
		dimStyle.Render("event-driven notification dispatcher"),
		"  ",
		mutedBadgeStyle.Render(" "+tabNames[a.activeTab]+" "),
	)
	return lipgloss.NewStyle().
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(line).
		Width(a.width).
		Padding(0, 1).
		Render(row)
}

func (a *App) renderTabs() string {
	labels := tabNames
	rendered := a.renderTabLabels(labels)
	maxWidth := a.width - 2
	if maxWidth < 10 {
		maxWidth = 10
	}
	if lipgloss.Width(rendered) > maxWidth {
		labels = tabCompactNames
		rendered = a.renderTabLabels(labels)
	}
	if lipgloss.Width(rendered) > maxWidth {
		rendered = a.renderTabLabels(tabTinyNames)
	}

	return lipgloss.NewStyle().
		Width(a.width).
		Padding(0, 1).
		Foreground(slate).
		Render(rendered)
}

func (a *App) renderTabLabels(labels []string) string {
	parts := make([]string, 0, len(labels))
	for i, name := range labels {
		label := fmt.Sprintf("%d:%s", i+1, name)
		if Tab(i) == a.activeTab {
			parts = append(parts, lipgloss.NewStyle().Bold(true).Foreground(accent).Render(label))
		} else {
			parts = append(parts, dimStyle.Render(label))
		}
		if i < len(labels)-1 {
			parts = append(parts, dimStyle.Render("  ·  "))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
