package watch

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
)

// column defines a single table column. Render callbacks may return
// styled text; cells are truncated ANSI-aware.
type column struct {
	header    string
	width     int // fixed width (0 = flex)
	minWidth  int // minimum width for flex columns
	hideBelow int // hide when the table is narrower than this (0 = always show)
	render    func(row any, width int) string
}

// renderTable renders a header row plus data rows into a width x height
// cell. Rows beyond the height are dropped, remaining lines are padded.
func renderTable(cols []column, rows []any, width, height int, emptyMessage string) string {
	if width <= 0 || height <= 0 {
		return ""
	}

	visible := visibleColumns(cols, width)
	widths := columnWidths(visible, width)

	var lines []string
	lines = append(lines, headerRowStyle.Render(renderHeaderRow(visible, widths)))

	if len(rows) == 0 {
		lines = append(lines, mutedStyle.Render("  "+emptyMessage))
	}

	maxRows := height - 1
	for i, row := range rows {
		if i >= maxRows {
			break
		}
		lines = append(lines, renderDataRow(row, visible, widths))
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines[:height], "\n")
}

// visibleColumns drops columns whose hideBelow threshold exceeds the
// available table width.
func visibleColumns(cols []column, tableWidth int) []column {
	visible := make([]column, 0, len(cols))
	for _, col := range cols {
		if col.hideBelow > 0 && tableWidth < col.hideBelow {
			continue
		}
		visible = append(visible, col)
	}
	return visible
}

// columnWidths distributes innerWidth across the columns. Fixed columns
// keep their width, the rest is split evenly among flex columns with
// minWidth as the floor. One space separates adjacent columns.
func columnWidths(cols []column, innerWidth int) []int {
	widths := make([]int, len(cols))
	if len(cols) == 0 {
		return widths
	}

	separators := len(cols) - 1
	available := innerWidth - separators

	flexCount := 0
	for i, col := range cols {
		if col.width > 0 {
			widths[i] = col.width
			available -= col.width
		} else {
			flexCount++
		}
	}

	if flexCount == 0 {
		return widths
	}

	share := available / flexCount
	remainder := available % flexCount
	for i, col := range cols {
		if col.width > 0 {
			continue
		}
		w := share
		if remainder > 0 {
			w++
			remainder--
		}
		minW := col.minWidth
		if minW == 0 {
			minW = 3
		}
		widths[i] = max(w, minW)
	}
	return widths
}

func renderHeaderRow(cols []column, widths []int) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = padCell(runewidth.Truncate(col.header, widths[i], "…"), widths[i])
	}
	return strings.Join(parts, " ")
}

func renderDataRow(row any, cols []column, widths []int) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		cell := col.render(row, widths[i])
		parts[i] = padCell(truncateCell(cell, widths[i]), widths[i])
	}
	return strings.Join(parts, " ")
}

// truncateCell shortens possibly-styled cell content to the given width.
func truncateCell(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	return truncate.StringWithTail(s, uint(width), "…")
}

// padCell left-aligns cell content within its column width.
func padCell(s string, width int) string {
	gap := width - lipgloss.Width(s)
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}
