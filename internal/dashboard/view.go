package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/victorarias/gerrit-view/internal/board"
	"github.com/victorarias/gerrit-view/internal/format"
)

var sortColumns = map[board.SortField]board.Column{
	board.SortCreated:  board.ColCreated,
	board.SortSubject:  board.ColSubject,
	board.SortUsername: board.ColUsername,
	board.SortProject:  board.ColProject,
	board.SortTopic:    board.ColTopic,
}

// header(1) + separator(1) + separator(1) + footer(1) + help(1) + flash(1)
const reservedLines = 6

// View renders the dashboard
func (m *Model) View() string {
	now := m.now()
	entries := m.board.Rows()
	cells := make([][]string, len(entries))
	for i, e := range entries {
		cells[i] = e.Row(now)
	}
	titles := m.titles()
	widths := columnWidths(titles, cells)

	var b strings.Builder
	header := make([]string, len(titles))
	for i, title := range titles {
		header[i] = pad(headerStyle.Render(title), title, widths[i], i == len(titles)-1)
	}
	b.WriteString(m.clip("  "+strings.Join(header, " ")) + "\n")
	b.WriteString(m.clip(sepStyle.Render(strings.Repeat("─", m.lineWidth(widths)))) + "\n")

	if len(entries) == 0 {
		b.WriteString("  No open changes yet\n")
	}
	start, end := m.visibleRange(len(entries))
	for i := start; i < end; i++ {
		b.WriteString(m.clip(m.renderRow(entries[i], cells[i], widths, i == m.cursor, now)) + "\n")
	}

	b.WriteString(m.clip(sepStyle.Render(strings.Repeat("─", m.lineWidth(widths)))) + "\n")
	b.WriteString(m.clip(m.renderFooter()) + "\n")
	if m.flash != "" && now.Before(m.flashUntil) {
		style := flashStyle
		if m.flashErr {
			style = errorStyle
		}
		b.WriteString(m.clip(style.Render(m.flash)) + "\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// titles returns the column headers with the sort indicator attached.
func (m *Model) titles() []string {
	mode := m.board.SortMode()
	sorted, hasSort := sortColumns[mode.Field]
	titles := make([]string, len(board.Columns))
	for i, col := range board.Columns {
		titles[i] = col.String()
		if hasSort && col == sorted {
			arrow := "▲"
			if mode.Descending {
				arrow = "▼"
			}
			titles[i] += " " + arrow
		}
	}
	return titles
}

func columnWidths(titles []string, rows [][]string) []int {
	widths := make([]int, len(titles))
	for i, title := range titles {
		widths[i] = runewidth.StringWidth(title)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	return widths
}

func (m *Model) lineWidth(widths []int) int {
	total := 2 + len(widths) - 1
	for _, w := range widths {
		total += w
	}
	if m.width > 0 {
		total = min(total, m.width)
	}
	return total
}

func (m *Model) visibleRange(n int) (int, int) {
	if m.height <= reservedLines {
		return 0, n
	}
	visible := m.height - reservedLines
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	return start, min(n, start+visible)
}

func (m *Model) renderRow(e *board.Entry, cells []string, widths []int, selected bool, now time.Time) string {
	bold := e.RecentlyChanged(now, HighlightWindow)
	parts := make([]string, len(cells))
	for i, col := range board.Columns {
		text := cells[i]
		styled := text
		if !selected {
			styled = renderCell(col, text, bold)
		}
		parts[i] = pad(styled, text, widths[i], i == len(cells)-1)
	}
	line := strings.Join(parts, " ")
	if selected {
		return selectedStyle.Render("> " + line)
	}
	return "  " + line
}

// renderCell colors one cell. Selected rows skip this so the selection
// style stays uniform.
func renderCell(col board.Column, text string, bold bool) string {
	if text == "" {
		return ""
	}
	switch col {
	case board.ColStatus:
		style, ok := statusStyles[text]
		if !ok {
			style = lipgloss.NewStyle()
		}
		return style.Bold(bold).Render(text)
	case board.ColComment:
		var b strings.Builder
		for _, tok := range format.Tokenize(text) {
			style, ok := tagStyles[tok.Tag]
			switch {
			case ok:
				b.WriteString(style.Bold(bold).Render(tok.Text))
			case bold && strings.TrimSpace(tok.Text) != "":
				b.WriteString(boldStyle.Render(tok.Text))
			default:
				b.WriteString(tok.Text)
			}
		}
		return b.String()
	}
	if bold {
		return boldStyle.Render(text)
	}
	return text
}

// pad right-fills styled to width using the plain text's cell width, since
// lipgloss strips trailing spaces.
func pad(styled, plain string, width int, last bool) string {
	if last {
		return styled
	}
	gap := width - runewidth.StringWidth(plain)
	if gap <= 0 {
		return styled
	}
	return styled + strings.Repeat(" ", gap)
}

func (m *Model) renderFooter() string {
	right := m.details
	if n := m.dispatcher.Rejected(); n > 0 {
		right += fmt.Sprintf(", %d rejected", n)
	}
	left := m.statusLine
	gap := 1
	if m.width > 0 {
		gap = max(1, m.width-lipgloss.Width(left)-lipgloss.Width(right))
	}
	return footerStyle.Render(left + strings.Repeat(" ", gap) + right)
}

func (m *Model) clip(line string) string {
	if m.width <= 0 {
		return line
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(line)
}
