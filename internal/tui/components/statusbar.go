package components

import (
	"fmt"

	"github.com/theirongolddev/kas/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// Status is what the bottom bar reports about the connection to the store.
type Status struct {
	Origin  string // "remote", "cache" or "default"
	Pending int    // debounced edits not yet sent
	Message string // last alert or confirmation, shown in the middle
	IsAlert bool
}

// RenderStatusBar renders the bottom status bar.
func RenderStatusBar(width int, st Status) string {
	t := theme.Active

	base := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	warn := lipgloss.NewStyle().Foreground(t.Warning).Background(t.Surface).Bold(true)
	ok := lipgloss.NewStyle().Foreground(t.Income).Background(t.Surface)
	pending := lipgloss.NewStyle().Foreground(t.Pending).Background(t.Surface)

	left := base.Render(" [?]help  [q]uit")

	msg := ""
	if st.Message != "" {
		if st.IsAlert {
			msg = warn.Render(st.Message)
		} else {
			msg = ok.Render(st.Message)
		}
	}

	var right string
	switch st.Origin {
	case "remote":
		right = ok.Render("● synced")
	case "cache":
		right = warn.Render("● offline (cached)")
	case "default":
		right = warn.Render("● offline (defaults)")
	}
	if st.Pending > 0 {
		right = pending.Render(fmt.Sprintf("%d unsent  ", st.Pending)) + right
	}
	right += base.Render(" ")

	gap := width - lipgloss.Width(left) - lipgloss.Width(msg) - lipgloss.Width(right)
	if gap < 2 {
		msg = ""
		gap = max(width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	}
	lgap := gap / 2
	bar := left + base.Render(spaces(lgap)) + msg + base.Render(spaces(gap-lgap)) + right
	style := lipgloss.NewStyle().Background(t.Surface)
	if lipgloss.Width(bar) > width {
		return style.MaxWidth(width).Render(bar)
	}
	return style.Width(width).Render(bar)
}

func spaces(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("%*s", n, "")
}
