package watch

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/crabitat/crabitat/internal/domain"
)

var (
	// Semantic color names - Text hierarchy
	textPrimaryColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#CCCCCC"}
	textMutedColor   = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"}

	// Semantic color names - Border
	borderDefaultColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"}

	// Semantic color names - Status
	statusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	statusWarningColor = lipgloss.AdaptiveColor{Light: "#FECA57", Dark: "#FECA57"}
	statusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	statusActiveColor  = lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"}

	// Loading spinner color
	spinnerColor = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#FFF"}

	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(textPrimaryColor)
	headerRowStyle = lipgloss.NewStyle().Foreground(textMutedColor)
	mutedStyle     = lipgloss.NewStyle().Foreground(textMutedColor)
	errorStyle     = lipgloss.NewStyle().Foreground(statusErrorColor).Bold(true)

	successStyle = lipgloss.NewStyle().Foreground(statusSuccessColor)
	warningStyle = lipgloss.NewStyle().Foreground(statusWarningColor)
	failedStyle  = lipgloss.NewStyle().Foreground(statusErrorColor)
	activeStyle  = lipgloss.NewStyle().Foreground(statusActiveColor)
)

// statusStyle picks a color for mission, task, and run status cells.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case string(domain.RunRunning):
		return activeStyle
	case string(domain.RunCompleted):
		return successStyle
	case string(domain.RunFailed):
		return failedStyle
	case string(domain.MissionPending), string(domain.TaskQueued):
		return mutedStyle
	default:
		return mutedStyle
	}
}

// crabStateStyle picks a color for a crab state cell.
func crabStateStyle(state domain.CrabState) lipgloss.Style {
	switch state {
	case domain.CrabBusy:
		return warningStyle
	case domain.CrabIdle:
		return successStyle
	default:
		return mutedStyle
	}
}
