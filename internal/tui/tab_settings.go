package tui

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/kas/internal/config"
	"github.com/theirongolddev/kas/internal/tui/components"
	"github.com/theirongolddev/kas/internal/tui/theme"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// settingsState tracks the theme picker.
type settingsState struct {
	cursor  int
	saveErr error
	saved   bool
}

func (a App) updateSettingsKey(key string) (App, tea.Cmd, bool) {
	switch key {
	case "j", "down":
		if a.settings.cursor < len(theme.All)-1 {
			a.settings.cursor++
		}
		a.settings.saved = false
		return a, nil, true
	case "k", "up":
		if a.settings.cursor > 0 {
			a.settings.cursor--
		}
		a.settings.saved = false
		return a, nil, true
	case "enter":
		a.applyTheme(theme.All[a.settings.cursor].Name)
		return a, nil, true
	}
	return a, nil, false
}

// applyTheme switches the palette and persists it. Other settings are
// re-read from disk so edits made by `kas setup` meanwhile survive.
func (a *App) applyTheme(name string) {
	theme.SetActive(name)
	a.spinner.Style = a.spinner.Style.Foreground(theme.Active.Accent).Background(theme.Active.Surface)
	a.cfg.Appearance.Theme = name

	cfg, err := config.Load()
	if err != nil {
		a.settings.saveErr = err
		a.settings.saved = false
		return
	}
	cfg.Appearance.Theme = name
	a.settings.saveErr = config.Save(cfg)
	a.settings.saved = a.settings.saveErr == nil
}

func (a App) renderSettingsTab(cw int) string {
	t := theme.Active
	innerW := components.CardInnerWidth(cw)

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	selectedStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.SurfaceHover).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)

	var themes strings.Builder
	for i, th := range theme.All {
		mark := "  "
		if th.Name == t.Name {
			mark = "● "
		}
		swatch := ""
		for _, c := range []lipgloss.Color{th.Accent, th.Income, th.Expense, th.Pending} {
			swatch += lipgloss.NewStyle().Foreground(c).Background(t.Surface).Render("■")
		}
		line := fmt.Sprintf("%s%-18s", mark, th.Name)
		if i == a.settings.cursor {
			pad := max(innerW-lipgloss.Width(line)-lipgloss.Width(swatch)-1, 0)
			themes.WriteString(selectedStyle.Render(line+" ") + swatch + selectedStyle.Render(strings.Repeat(" ", pad)))
		} else {
			themes.WriteString(valueStyle.Render(line+" ") + swatch)
		}
		themes.WriteString("\n")
	}

	switch {
	case a.settings.saveErr != nil:
		themes.WriteString("\n")
		themes.WriteString(lipgloss.NewStyle().Foreground(t.Warning).Background(t.Surface).
			Render(fmt.Sprintf("Save failed: %s", a.settings.saveErr)))
		themes.WriteString("\n")
	case a.settings.saved:
		themes.WriteString("\n")
		themes.WriteString(lipgloss.NewStyle().Foreground(t.Income).Background(t.Surface).Render("Saved"))
		themes.WriteString("\n")
	}
	themes.WriteString("\n")
	themes.WriteString(dimStyle.Render("[j/k] navigate  [Enter] apply"))

	cachePath := a.cfg.Cache.Path
	switch {
	case a.cfg.Cache.Disabled:
		cachePath = "(disabled)"
	case cachePath == "":
		cachePath = "(default)"
	}

	rows := []struct{ label, value string }{
		{"Store URL:", a.cfg.Remote.BaseURL},
		{"Request timeout:", a.cfg.Remote.Timeout().String()},
		{"Debounce:", a.cfg.Ledger.Debounce().String()},
		{"Snapshot cache:", cachePath},
		{"Loaded from:", string(a.origin)},
		{"Load time:", fmt.Sprintf("%.1fs", a.loadTime.Seconds())},
		{"Config file:", config.Path()},
	}
	var info strings.Builder
	for i, r := range rows {
		info.WriteString(labelStyle.Render(fmt.Sprintf("%-18s", r.label)))
		info.WriteString(valueStyle.Render(truncStr(r.value, max(innerW-18, 8))))
		if i < len(rows)-1 {
			info.WriteString("\n")
		}
	}
	info.WriteString("\n\n")
	info.WriteString(dimStyle.Render("Run `kas setup` to change connection settings."))

	var b strings.Builder
	b.WriteString(components.ContentCard("Theme", themes.String(), cw))
	b.WriteString("\n")
	b.WriteString(components.ContentCard("Connection", info.String(), cw))
	return b.String()
}
