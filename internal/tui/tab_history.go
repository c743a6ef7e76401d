package tui

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/kas/internal/cli"
	"github.com/theirongolddev/kas/internal/model"
	"github.com/theirongolddev/kas/internal/pipeline"
	"github.com/theirongolddev/kas/internal/tui/components"
	"github.com/theirongolddev/kas/internal/tui/theme"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// historyState holds the history tab state.
type historyState struct {
	tab         string // pipeline.TabAll, pipeline.TabPool or a member id
	txType      model.TxType
	cursor      int
	searching   bool
	searchInput textinput.Model
	query       string
	confirmDel  string // id awaiting a second D
}

func newHistoryState() historyState {
	return historyState{tab: pipeline.TabAll}
}

func newSearchInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "description or source..."
	ti.CharLimit = 64
	ti.Width = 40
	ti.Prompt = "/ "
	return ti
}

func (h *historyState) move(delta, n int) {
	h.cursor += delta
	h.confirmDel = ""
	h.clamp(n)
}

func (h *historyState) clamp(n int) {
	if h.cursor >= n {
		h.cursor = n - 1
	}
	if h.cursor < 0 {
		h.cursor = 0
	}
}

// historyTabs lists the sub-tabs: all, pool, then each member.
func (a App) historyTabs() []string {
	tabs := []string{pipeline.TabAll, pipeline.TabPool}
	for _, m := range a.state.Members {
		tabs = append(tabs, m.ID)
	}
	return tabs
}

func (a App) historyRows() []model.Tx {
	return pipeline.History(a.state, pipeline.Filter{
		Tab:   a.history.tab,
		Type:  a.history.txType,
		Query: a.history.query,
	})
}

func (a App) historyTabLabel(tab string) string {
	switch tab {
	case pipeline.TabAll:
		return "All"
	case pipeline.TabPool:
		return "Pool"
	}
	return a.state.SourceLabel(model.PersonalSource(tab))
}

func (a App) cycleHistoryTab(delta int) App {
	tabs := a.historyTabs()
	cur := 0
	for i, tab := range tabs {
		if tab == a.history.tab {
			cur = i
			break
		}
	}
	a.history.tab = tabs[(cur+delta+len(tabs))%len(tabs)]
	a.history.cursor = 0
	a.history.confirmDel = ""
	return a
}

func (a App) updateHistoryKey(key string) (App, tea.Cmd, bool) {
	rows := a.historyRows()

	switch key {
	case "/":
		a.history.searching = true
		a.history.searchInput = newSearchInput()
		a.history.searchInput.SetValue(a.history.query)
		a.history.searchInput.Focus()
		return a, a.history.searchInput.Cursor.BlinkCmd(), true
	case "esc":
		if a.history.query != "" {
			a.history.query = ""
			a.history.cursor = 0
		}
		a.history.confirmDel = ""
		return a, nil, true
	case "]":
		return a.cycleHistoryTab(1), nil, true
	case "[":
		return a.cycleHistoryTab(-1), nil, true
	case "i":
		switch a.history.txType {
		case "":
			a.history.txType = model.Income
		case model.Income:
			a.history.txType = model.Expense
		default:
			a.history.txType = ""
		}
		a.history.cursor = 0
		return a, nil, true
	case "j", "down":
		a.history.move(1, len(rows))
		return a, nil, true
	case "k", "up":
		a.history.move(-1, len(rows))
		return a, nil, true
	case "g":
		a.history.cursor = 0
		return a, nil, true
	case "G":
		a.history.cursor = len(rows) - 1
		a.history.clamp(len(rows))
		return a, nil, true
	case "D":
		if a.history.cursor >= len(rows) {
			return a, nil, true
		}
		tx := rows[a.history.cursor]
		if a.history.confirmDel != tx.ID {
			a.history.confirmDel = tx.ID
			a.flash("Press D again to delete this transaction", false)
			return a, nil, true
		}
		a.history.confirmDel = ""
		p, err := a.engine.RemoveTransaction(a.writeCtx(), tx.ID)
		if err != nil {
			a.flash(describeError(err), true)
			return a, nil, true
		}
		what := fmt.Sprintf("%s %s from %s", tx.Type, cli.FormatIDR(tx.Amount), a.state.SourceLabel(tx.Source))
		a.refresh()
		return a, waitForWrite(p, "Removed", what), true
	}
	return a, nil, false
}

// updateHistorySearch handles key events while in search mode.
func (a App) updateHistorySearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		a.history.query = strings.TrimSpace(a.history.searchInput.Value())
		a.history.searching = false
		a.history.cursor = 0
		return a, nil
	case "esc":
		a.history.searching = false
		return a, nil
	}

	var cmd tea.Cmd
	a.history.searchInput, cmd = a.history.searchInput.Update(msg)
	return a, cmd
}

func (a App) renderHistoryTab(cw, h int) string {
	t := theme.Active
	hs := a.history
	rows := a.historyRows()

	active := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.SurfaceHover).Bold(true)
	inactive := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	dim := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)
	space := lipgloss.NewStyle().Background(t.Surface).Render(" ")

	// Sub-tabs
	var sub strings.Builder
	for i, tab := range a.historyTabs() {
		if i > 0 {
			sub.WriteString(space)
		}
		label := " " + a.historyTabLabel(tab) + " "
		if tab == hs.tab {
			sub.WriteString(active.Render(label))
		} else {
			sub.WriteString(inactive.Render(label))
		}
	}

	var filters []string
	if hs.txType != "" {
		filters = append(filters, string(hs.txType))
	}
	if hs.query != "" {
		filters = append(filters, fmt.Sprintf("%q", hs.query))
	}
	filterLine := dim.Render("[ ] source  i type  / search  D delete")
	if len(filters) > 0 {
		filterLine = inactive.Render("filter: "+strings.Join(filters, ", ")) + dim.Render("  esc to clear")
	}
	if hs.searching {
		filterLine = hs.searchInput.View()
	}

	innerW := components.CardInnerWidth(cw)
	visible := max(h-6, 3) // border, sub-tabs, filter line
	offset := 0
	if hs.cursor >= visible {
		offset = hs.cursor - visible + 1
	}

	var body string
	if len(rows) == 0 {
		body = dim.Render("No transactions match.")
	} else {
		end := min(offset+visible, len(rows))
		body = a.renderTxLines(rows[offset:end], innerW, hs.cursor-offset)
	}

	title := fmt.Sprintf("History (%s)", cli.FormatCount(len(rows), "transaction"))
	return components.ContentCard(title, sub.String()+"\n"+filterLine+"\n"+body, cw)
}
