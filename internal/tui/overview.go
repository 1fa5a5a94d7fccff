package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// OverviewModel shows registry totals and per-channel counts.
type OverviewModel struct {
	snap     Snapshot
	width    int
	height   int
	lastLoad time.Time
	loaded   bool
	err      error
}

func (o *OverviewModel) SetSnapshot(s Snapshot, err error) {
	o.err = err
	if err != nil {
		return
	}
	o.snap = s
	o.loaded = true
	o.lastLoad = time.Now()
}

func (o *OverviewModel) SetSize(w, h int) {
	o.width = w
	o.height = h
}

func (o OverviewModel) View() string {
	if !o.loaded && o.err == nil {
		return panelStyle.Width(max(20, o.width-2)).Render("Loading registry...")
	}

	sent := make(map[string]int)
	for _, m := range o.snap.History {
		sent[m.Channel]++
	}

	cardW := 18
	if o.width >= 100 {
		cardW = 20
	}
	summary := lipgloss.JoinHorizontal(lipgloss.Top,
		renderCounter("Configs", o.snap.Summary.TotalConfigs, infoStyle, cardW),
		renderCounter("Event types", len(o.snap.Summary.EventTypes), infoStyle, cardW),
		renderCounter("Channels", len(o.snap.Summary.Channels), warnStyle, cardW),
		renderCounter("Sent", o.snap.Summary.SentCount, okStyle, cardW),
	)

	rows := ""
	for _, ch := range sortedKeys(o.snap.Summary.Channels) {
		line := lipgloss.JoinHorizontal(lipgloss.Left,
			lipgloss.NewStyle().Width(14).Render(channelStyle(ch).Render(ch)),
			lipgloss.NewStyle().Width(14).Foreground(ink).Render(fmt.Sprintf("%d configs", o.snap.Summary.Channels[ch])),
			dimStyle.Render(fmt.Sprintf("%d sent", sent[ch])),
		)
		rows += line + "\n"
	}
	if rows == "" {
		rows = dimStyle.Render("No notifications registered. Add entries under \"notifications\" in the config file.\n")
	}

	events := ""
	for _, et := range sortedKeys(o.snap.Summary.EventTypes) {
		events += lipgloss.JoinHorizontal(lipgloss.Left,
			lipgloss.NewStyle().Width(28).Foreground(ink).Render(truncate(et, 26)),
			dimStyle.Render(fmt.Sprintf("%d", o.snap.Summary.EventTypes[et])),
		) + "\n"
	}

	source := "local registry"
	if o.snap.Remote {
		source = "gateway"
	}
	updated := "never"
	if !o.lastLoad.IsZero() {
		updated = o.lastLoad.Format("15:04:05")
	}
	footer := lipgloss.JoinHorizontal(lipgloss.Left,
		keycapStyle.Render("r"),
		" ",
		dimStyle.Render("refresh"),
		"   ",
		dimStyle.Render("source "+source+"  updated "+updated),
	)
	if o.err != nil {
		footer = lipgloss.JoinVertical(lipgloss.Left, footer, errStyle.Render("load failed: "+o.err.Error()))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Padding(0, 1).Render(summary),
		panelStyle.Width(max(20, o.width-2)).Render(
			lipgloss.JoinVertical(lipgloss.Left,
				panelHeaderStyle.Render("Channels"),
				rows,
				panelHeaderStyle.Render("Event types"),
				events,
				footer,
			),
		),
	)
}

func renderCounter(label string, count int, style lipgloss.Style, width int) string {
	return boxStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Center,
			style.Bold(true).Render(fmt.Sprintf("%d", count)),
			dimStyle.Render(strings.ToUpper(label)),
		),
	) + "  "
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "…" + s[len(s)-max+1:]
}
