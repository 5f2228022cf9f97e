package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type SummaryRow struct {
	Label string
	Value string
}

func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := 0
	for _, row := range rows {
		if len(row.Label) > labelWidth {
			labelWidth = len(row.Label)
		}
		if len(row.Value) > valueWidth {
			valueWidth = len(row.Value)
		}
	}

	hline := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := []string{hline}

	for _, row := range rows {
		label := padRight(row.Label, labelWidth)
		value := padRight(row.Value, valueWidth)
		line := fmt.Sprintf("%s | %s", labelStyle.Render(label), valueStyle.Render(value))
		lines = append(lines, line)
	}

	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

// FailureRow is one failed unit in the post-run report.
type FailureRow struct {
	Unit  string
	Kind  string
	Error string
}

// RenderFailures lists failures as "- unit [kind] error", one per line.
func RenderFailures(rows []FailureRow) string {
	if len(rows) == 0 {
		return ""
	}
	kindWidth := 0
	for _, row := range rows {
		if len(row.Kind) > kindWidth {
			kindWidth = len(row.Kind)
		}
	}

	lines := []string{failHeadStyle.Render(fmt.Sprintf("Failures (%d):", len(rows)))}
	for _, row := range rows {
		lines = append(lines, fmt.Sprintf("  %s %s %s %s",
			dimStyle.Render("-"),
			labelStyle.Render(row.Unit),
			warnStyle.Render("["+padRight(row.Kind, kindWidth)+"]"),
			dimStyle.Render(row.Error),
		))
	}
	return strings.Join(lines, "\n")
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

var (
	valueStyle    = lipgloss.NewStyle().Foreground(ColorInk).Bold(true)
	failHeadStyle = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
)
