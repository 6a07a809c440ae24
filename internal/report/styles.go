package report

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	EmbyGreen = lipgloss.Color("#52B54B")
	DimGray   = lipgloss.Color("#6B7280")
	LightGray = lipgloss.Color("#9CA3AF")
	White     = lipgloss.Color("#F9FAFB")
	Amber     = lipgloss.Color("#E5A00D")
	Red       = lipgloss.Color("#EF4444")
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(LightGray).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(EmbyGreen)

	WarnStyle = lipgloss.NewStyle().
			Foreground(Amber)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red)
)

// Status characters
const (
	OKChar   = "✓"
	FailChar = "✗"
	SkipChar = "-"
)
