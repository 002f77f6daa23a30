package styles

import (
	"github.com/charmbracelet/lipgloss/v2"
)

// Listing styles for the passes command and the viewer chrome.
var (
	Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		Bold(true)

	PassName = lipgloss.NewStyle().
			Foreground(lipgloss.Color(Heading)).
			Bold(true)

	Category = lipgloss.NewStyle().
			Foreground(lipgloss.Color(InlineCode))

	Dim = lipgloss.NewStyle().
		Foreground(lipgloss.Color(Muted))

	Spinner = lipgloss.NewStyle().
		Foreground(lipgloss.Color("170"))

	MenuBar = lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1)
)

// Plain drops every listing style; used when color is disabled.
func Plain() {
	Title = lipgloss.NewStyle()
	PassName = lipgloss.NewStyle()
	Category = lipgloss.NewStyle()
	Dim = lipgloss.NewStyle()
	Spinner = lipgloss.NewStyle()
	MenuBar = lipgloss.NewStyle().Padding(0, 1)
}
