package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/CosmoTheDev/ctrlnotify/models"
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#14B8A6")).
	MarginBottom(1)

var successStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#10B981"))

var warnStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#F59E0B"))

var errorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#EF4444"))

var dimStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#6B7280"))

// formatResult renders one result as a single terminal line.
func formatResult(r models.NotificationResult) string {
	target := fmt.Sprintf("%s → %s", r.Channel, r.Recipient)
	if r.Recipient == "" {
		target = r.Channel
	}
	switch {
	case r.Success:
		return successStyle.Render("✓ "+target) + dimStyle.Render("  "+r.Template+"  "+r.Message)
	case r.Suppressed():
		return warnStyle.Render("= "+target) + dimStyle.Render("  duplicate suppressed")
	default:
		return errorStyle.Render("✗ "+target) + dimStyle.Render(fmt.Sprintf("  %s: %s", r.Reason, r.Error))
	}
}
