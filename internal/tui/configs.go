package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/CosmoTheDev/ctrlnotify/models"
)

// ConfigsModel lists registered notification configurations.
type ConfigsModel struct {
	configs []models.NotificationConfig
	width   int
	height  int
	cursor  int
}

func (c *ConfigsModel) SetConfigs(configs []models.NotificationConfig) {
	c.configs = configs
	if c.cursor >= len(configs) {
		c.cursor = max(0, len(configs)-1)
	}
}

func (c *ConfigsModel) SetSize(w, h int) {
	c.width = w
	c.height = h
}

func (c ConfigsModel) Update(msg tea.Msg) (ConfigsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "j", "down":
			if c.cursor < len(c.configs)-1 {
				c.cursor++
			}
		case "k", "up":
			if c.cursor > 0 {
				c.cursor--
			}
		}
	}
	return c, nil
}

func (c ConfigsModel) View() string {
	lineLimit := c.height - 14
	if lineLimit < 5 {
		lineLimit = 5
	}

	rows := ""
	for i, cfg := range c.configs {
		if i >= lineLimit {
			break
		}
		cursor := " "
		if i == c.cursor {
			cursor = "▌"
		}
		policy := cfg.DeduplicationPolicy
		if policy == "" {
			policy = "none"
		}
		line := lipgloss.JoinHorizontal(lipgloss.Left,
			lipgloss.NewStyle().Width(2).Foreground(accent).Render(cursor),
			lipgloss.NewStyle().Width(22).Foreground(ink).Render(truncate(cfg.EventType, 20)),
			lipgloss.NewStyle().Width(10).Render(channelStyle(cfg.Channel).Render(cfg.Channel)),
			lipgloss.NewStyle().Width(24).Foreground(slate).Render(truncate(cfg.Template, 22)),
			lipgloss.NewStyle().Width(16).Foreground(slate).Render(truncate(cfg.RecipientField, 14)),
			dimStyle.Render(policy),
		)
		if i == c.cursor {
			line = selectedRowStyle.Width(max(20, c.width-6)).Render(line)
		}
		rows += line + "\n"
	}
	if rows == "" {
		rows = dimStyle.Render("No notifications registered.\n")
	}

	detail := ""
	if len(c.configs) > 0 {
		detail = lipgloss.JoinVertical(lipgloss.Left, "", renderMetadata(c.configs[c.cursor].Metadata))
	}

	return panelStyle.Width(max(20, c.width-2)).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			panelHeaderStyle.Render(fmt.Sprintf("Notification Configurations (%d)", len(c.configs))),
			"",
			dimStyle.Render("  Event type            Channel   Template                Recipient       Dedup"),
			rows,
			detail,
			"",
			dimStyle.Render("j/k navigate"),
		),
	)
}

func renderMetadata(meta map[string]any) string {
	if len(meta) == 0 {
		return dimStyle.Render("no metadata")
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, meta[k]))
	}
	return dimStyle.Render("metadata ") + lipgloss.NewStyle().Foreground(ink).Render(strings.Join(parts, "  "))
}

func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = append(lines[:n], "…")
	}
	return strings.Join(lines, "\n")
}
