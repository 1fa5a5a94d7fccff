package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/CosmoTheDev/ctrlnotify/models"
)

// HistoryModel lists sent messages, newest first, with a channel filter.
type HistoryModel struct {
	items  []models.NotificationMessage
	width  int
	height int
	cursor int
	filter string // "email" | "slack" | "webhook" | "" (all)
}

func (h *HistoryModel) SetItems(items []models.NotificationMessage) {
	h.items = make([]models.NotificationMessage, len(items))
	for i, m := range items {
		h.items[len(items)-1-i] = m
	}
	h.clampCursor()
}

func (h *HistoryModel) SetSize(w, hh int) {
	h.width = w
	h.height = hh
}

func (h HistoryModel) Update(msg tea.Msg) (HistoryModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "j", "down":
			h.cursor++
		case "k", "up":
			if h.cursor > 0 {
				h.cursor--
			}
		case "e":
			h.filter, h.cursor = "email", 0
		case "s":
			h.filter, h.cursor = "slack", 0
		case "w":
			h.filter, h.cursor = "webhook", 0
		case "0":
			h.filter, h.cursor = "", 0
		}
	}
	h.clampCursor()
	return h, nil
}

func (h HistoryModel) visible() []models.NotificationMessage {
	if h.filter == "" {
		return h.items
	}
	var out []models.NotificationMessage
	for _, m := range h.items {
		if m.Channel == h.filter {
			out = append(out, m)
		}
	}
	return out
}

func (h *HistoryModel) clampCursor() {
	total := len(h.visible())
	if h.cursor >= total {
		h.cursor = total - 1
	}
	if h.cursor < 0 {
		h.cursor = 0
	}
}

func (h HistoryModel) View() string {
	lineLimit := h.height - 14
	if lineLimit < 5 {
		lineLimit = 5
	}
	items := h.visible()

	rows := ""
	for i, m := range items {
		if i >= lineLimit {
			break
		}
		rows += h.renderRow(i, m)
	}
	if rows == "" {
		rows = dimStyle.Render("Nothing sent yet.\n")
	}

	counts := map[string]int{}
	for _, m := range h.items {
		counts[m.Channel]++
	}
	filterBar := lipgloss.JoinHorizontal(lipgloss.Left,
		h.filterChip("All", "", len(h.items), "0"),
		" ",
		h.filterChip("Email", "email", counts["email"], "e"),
		" ",
		h.filterChip("Slack", "slack", counts["slack"], "s"),
		" ",
		h.filterChip("Webhook", "webhook", counts["webhook"], "w"),
	)

	detail := ""
	if len(items) > 0 {
		m := items[h.cursor]
		detail = lipgloss.JoinVertical(lipgloss.Left,
			"",
			panelHeaderStyle.Render(fmt.Sprintf("%s → %s", m.Template, m.Recipient)),
			lipgloss.NewStyle().Foreground(ink).Width(max(20, h.width-8)).Render(firstLines(m.Content, 6)),
		)
	}

	return panelStyle.Width(max(20, h.width-2)).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			panelHeaderStyle.Render("Sent History"),
			filterBar,
			"",
			dimStyle.Render("  Time      Channel   Recipient                     Event"),
			rows,
			detail,
			"",
			dimStyle.Render("j/k navigate  e email  s slack  w webhook  0 all  x clear history"),
		),
	)
}

func (h HistoryModel) renderRow(idx int, m models.NotificationMessage) string {
	cursor := " "
	if idx == h.cursor {
		cursor = "▌"
	}
	line := lipgloss.JoinHorizontal(lipgloss.Left,
		lipgloss.NewStyle().Width(2).Foreground(accent).Render(cursor),
		lipgloss.NewStyle().Width(10).Foreground(slate).Render(m.CreatedAt.Local().Format("15:04:05")),
		lipgloss.NewStyle().Width(10).Render(channelStyle(m.Channel).Render(m.Channel)),
		lipgloss.NewStyle().Width(30).Foreground(ink).Render(truncate(m.Recipient, 28)),
		dimStyle.Render(truncate(m.EventType, 24)),
	)
	if idx == h.cursor {
		return selectedRowStyle.Width(max(20, h.width-6)).Render(line) + "\n"
	}
	return line + "\n"
}

func (h HistoryModel) filterChip(label, value string, count int, key string) string {
	text := fmt.Sprintf("%s %d", label, count)
	if h.filter == value {
		return activeTabStyle.Render(text)
	}
	return tabStyle.Render(text + " [" + key + "]")
}
