package dashboard

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/victorarias/gerrit-view/internal/format"
	"github.com/victorarias/gerrit-view/internal/protocol"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	boldStyle     = lipgloss.NewStyle().Bold(true)
	sepStyle      = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "250", Dark: "240"})
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "242", Dark: "246"})
	flashStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "46"})
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "124", Dark: "196"}).Bold(true)

	positiveStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "46"})   // Green
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "124", Dark: "196"}) // Red
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "136", Dark: "226"}) // Yellow
)

var statusStyles = map[string]lipgloss.Style{
	protocol.StatusMerged:    lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "33"}), // Blue
	protocol.StatusApproved:  positiveStyle,
	protocol.StatusSucceeded: positiveStyle,
	protocol.StatusFailed:    negativeStyle,
	protocol.StatusRejected:  negativeStyle,
	protocol.StatusAbandoned: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "244", Dark: "245"}), // Gray
	protocol.StatusRestored:  noticeStyle,
}

var tagStyles = map[format.Tag]lipgloss.Style{
	format.TagPositive: positiveStyle,
	format.TagNegative: negativeStyle,
	format.TagNotice:   noticeStyle,
}
