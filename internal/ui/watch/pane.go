package watch

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Border characters (rounded)
const (
	borderTopLeft     = "╭"
	borderTopRight    = "╮"
	borderBottomLeft  = "╰"
	borderBottomRight = "╯"
	borderHorizontal  = "─"
	borderVertical    = "│"
)

// borderedPane renders content inside a rounded border with the title
// embedded in the top edge. Width and height include the border cells.
func borderedPane(title, content string, width, height int) string {
	if width < 4 || height < 3 {
		return ""
	}

	borderStyle := lipgloss.NewStyle().Foreground(borderDefaultColor)

	innerWidth := width - 2
	contentHeight := height - 2

	topBorder := buildTitleBorder(title, innerWidth, borderStyle)
	bottomBorder := borderStyle.Render(borderBottomLeft + strings.Repeat(borderHorizontal, innerWidth) + borderBottomRight)

	contentLines := strings.Split(content, "\n")
	paddedLines := make([]string, contentHeight)
	for i := range contentHeight {
		var line string
		if i < len(contentLines) {
			line = contentLines[i]
		}

		// Pad to innerWidth so the right border aligns
		lineWidth := lipgloss.Width(line)
		if lineWidth < innerWidth {
			line += strings.Repeat(" ", innerWidth-lineWidth)
		}

		paddedLines[i] = borderStyle.Render(borderVertical) + line + borderStyle.Render(borderVertical)
	}

	var b strings.Builder
	b.WriteString(topBorder)
	b.WriteString("\n")
	b.WriteString(strings.Join(paddedLines, "\n"))
	b.WriteString("\n")
	b.WriteString(bottomBorder)
	return b.String()
}

// buildTitleBorder creates the top border with an embedded title.
// Format: ╭─ Title ──────╮
func buildTitleBorder(title string, innerWidth int, borderStyle lipgloss.Style) string {
	if title == "" || innerWidth < 5 {
		return borderStyle.Render(borderTopLeft + strings.Repeat(borderHorizontal, innerWidth) + borderTopRight)
	}

	displayTitle := truncateCell(title, innerWidth-4)
	remaining := max(innerWidth-3-lipgloss.Width(displayTitle), 0)

	return borderStyle.Render(borderTopLeft+borderHorizontal+" ") +
		titleStyle.Render(displayTitle) +
		borderStyle.Render(" "+strings.Repeat(borderHorizontal, remaining)+borderTopRight)
}
