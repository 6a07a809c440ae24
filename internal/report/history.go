package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/hddsync/internal/domain"
)

type column struct {
	title string
	width int
}

var historyColumns = []column{
	{"STARTED", 20},
	{"VOLUME", 38},
	{"OUTCOME", 16},
	{"DEL", 5},
	{"COPY", 5},
	{"FAIL", 5},
	{"TOOK", 9},
	{"MAIL", 5},
}

// RenderHistory formats cycle results as a table, in the order given
func RenderHistory(results []domain.CycleResult) string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Recent sync cycles"))
	b.WriteString("\n\n")

	if len(results) == 0 {
		b.WriteString(DimStyle.Render("No cycles recorded yet."))
		b.WriteString("\n")
		return b.String()
	}

	headers := make([]string, len(historyColumns))
	for i, col := range historyColumns {
		headers[i] = HeaderStyle.Width(col.width).Render(col.title)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, headers...))
	b.WriteString("\n")

	for _, r := range results {
		cells := []string{
			r.StartedAt.Local().Format(time.DateTime),
			r.VolumeUUID,
			outcomeStyle(r.Outcome).Render(string(r.Outcome)),
			strconv.Itoa(r.Deleted),
			strconv.Itoa(r.Copied),
			strconv.Itoa(r.Failed),
			formatDuration(r.Duration()),
			notifiedMark(r),
		}
		row := make([]string, len(cells))
		for i, cell := range cells {
			row[i] = lipgloss.NewStyle().Width(historyColumns[i].width).Render(cell)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, row...))
		b.WriteString("\n")

		if r.Error != "" {
			b.WriteString(DimStyle.Render("  " + r.Error))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func outcomeStyle(o domain.CycleOutcome) lipgloss.Style {
	switch {
	case o.Succeeded():
		return SuccessStyle
	case o == domain.OutcomeCancelled:
		return WarnStyle
	default:
		return ErrorStyle
	}
}

func notifiedMark(r domain.CycleResult) string {
	switch {
	case r.Notified:
		return SuccessStyle.Render(OKChar)
	case r.Outcome.Succeeded():
		return ErrorStyle.Render(FailChar)
	default:
		return DimStyle.Render(SkipChar)
	}
}

// formatDuration renders a duration as 42s, 3m07s or 1h02m
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
