package tui

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/kas/internal/cli"
	"github.com/theirongolddev/kas/internal/ledger"
	"github.com/theirongolddev/kas/internal/model"
	"github.com/theirongolddev/kas/internal/pipeline"
	"github.com/theirongolddev/kas/internal/tui/components"
	"github.com/theirongolddev/kas/internal/tui/theme"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	terminAmount = 4_000_000
	flowDays     = 14
	recentCount  = 5
)

func (a App) updateOverviewKey(key string) (App, tea.Cmd, bool) {
	if key != "t" {
		return a, nil, false
	}
	a, cmd := a.applyIntent(ledger.Intent{
		Type:   model.Income,
		Source: model.PoolSource(),
		Amount: terminAmount,
		Desc:   "Termin",
	})
	return a, cmd, true
}

// applyIntent records a transaction and returns a command that reports the
// store's verdict. The optimistic result is visible immediately.
func (a App) applyIntent(in ledger.Intent) (App, tea.Cmd) {
	p, err := a.engine.ApplyTransaction(a.writeCtx(), in)
	if err != nil {
		a.flash(describeError(err), true)
		return a, nil
	}
	a.refresh()
	what := fmt.Sprintf("%s %s on %s", in.Type, cli.FormatIDR(in.Amount), a.state.SourceLabel(in.Source))
	return a, waitForWrite(p, "Recorded", what)
}

func (a App) renderOverviewTab(cw int) string {
	t := theme.Active
	sum := pipeline.Summarize(a.state)

	var b strings.Builder

	// Row 1: pool + totals
	b.WriteString(components.BalanceRow([]components.Balance{
		{Label: "Pool", Value: cli.FormatIDR(sum.Pool), Detail: flowDetail(sum.Sources[0])},
		{Label: "Total personal", Value: cli.FormatIDR(sum.TotalPersonal), Detail: cli.FormatCount(len(a.state.Members), "member")},
		{Label: "Grand total", Value: cli.FormatIDR(sum.GrandTotal), Detail: cli.FormatCount(sum.TxCount, "transaction"), Accent: true},
	}, cw))
	b.WriteString("\n")

	// Row 2: one card per member
	var members []components.Balance
	for _, src := range sum.Sources[1:] {
		if src.Dangling {
			continue
		}
		members = append(members, components.Balance{
			Label:  src.Label,
			Value:  cli.FormatIDR(src.Balance),
			Detail: flowDetail(src),
		})
	}
	if len(members) > 0 {
		b.WriteString(components.BalanceRow(members, cw))
		b.WriteString("\n")
	}

	// Row 3: share of grand total + daily flows
	halves := components.LayoutRow(cw, 2)
	b.WriteString(components.CardRow([]string{
		components.ContentCard("Share of total", a.renderShares(sum, components.CardInnerWidth(halves[0])), halves[0]),
		components.ContentCard(fmt.Sprintf("Last %d days", flowDays), a.renderFlows(components.CardInnerWidth(halves[1])), halves[1]),
	}))
	b.WriteString("\n")

	// Row 4: recent transactions
	recent := pipeline.History(a.state, pipeline.Filter{Tab: pipeline.TabAll})
	if len(recent) > recentCount {
		recent = recent[:recentCount]
	}
	body := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface).Render("No transactions yet. Press a to add one, t for a Termin payment.")
	if len(recent) > 0 {
		body = a.renderTxLines(recent, components.CardInnerWidth(cw), -1)
	}
	b.WriteString(components.ContentCard("Recent", body, cw))
	return b.String()
}

func flowDetail(s pipeline.SourceSummary) string {
	if s.Income == 0 && s.Expense == 0 {
		return "no activity"
	}
	return fmt.Sprintf("+%s / -%s", cli.FormatIDR(s.Income), cli.FormatIDR(s.Expense))
}

func (a App) renderShares(sum pipeline.Summary, innerW int) string {
	labelW := 10
	barW := innerW - labelW - 6
	lines := make([]string, 0, len(sum.Sources))
	for _, src := range sum.Sources {
		if src.Dangling {
			continue
		}
		pct := 0.0
		if sum.GrandTotal > 0 {
			pct = float64(src.Balance) / float64(sum.GrandTotal)
		}
		lines = append(lines, components.ShareBar(src.Label, pct, labelW, barW))
	}
	return strings.Join(lines, "\n")
}

func (a App) renderFlows(innerW int) string {
	t := theme.Active
	flows := pipeline.DailyFlows(a.state, cli.Today(), flowDays)

	in := make([]int64, len(flows))
	out := make([]int64, len(flows))
	var totalIn, totalOut int64
	for i, f := range flows {
		in[i], out[i] = f.Income, f.Expense
		totalIn += f.Income
		totalOut += f.Expense
	}

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	space := lipgloss.NewStyle().Background(t.Surface).Render(" ")

	line := func(label string, vals []int64, color lipgloss.Color, total int64) string {
		s := labelStyle.Render(fmt.Sprintf("%-4s", label)) + space + components.Sparkline(vals, color)
		rest := innerW - lipgloss.Width(s) - 1
		if rest > 0 {
			s += space + valueStyle.Render(fmt.Sprintf("%*s", rest, cli.FormatIDR(total)))
		}
		return s
	}

	return line("In", in, t.Income, totalIn) + "\n" +
		line("Out", out, t.Expense, totalOut) + "\n" +
		labelStyle.Render(fmt.Sprintf("%s → %s", flows[0].Date, flows[len(flows)-1].Date))
}

// renderTxLines renders one line per transaction; cursor highlights a row
// (-1 for none).
func (a App) renderTxLines(txs []model.Tx, innerW, cursor int) string {
	t := theme.Active

	const dateW, amountW, sourceW = 10, 16, 12
	descW := max(innerW-dateW-amountW-sourceW-3, 8)

	lines := make([]string, 0, len(txs))
	for i, tx := range txs {
		bg := t.Surface
		if i == cursor {
			bg = t.SurfaceHover
		}
		base := lipgloss.NewStyle().Background(bg)
		dim := base.Foreground(t.TextMuted)
		text := base.Foreground(t.TextPrimary)
		amountColor := t.Income
		if tx.Type == model.Expense {
			amountColor = t.Expense
		}
		desc := tx.Desc
		if desc == "" {
			desc = "-"
		}
		if strings.HasPrefix(tx.ID, "local-") {
			desc += " …"
		}
		lines = append(lines,
			dim.Render(fmt.Sprintf("%-*s ", dateW, tx.Date))+
				text.Render(fmt.Sprintf("%-*s ", descW, truncStr(desc, descW)))+
				dim.Render(fmt.Sprintf("%-*s ", sourceW, truncStr(a.state.SourceLabel(tx.Source), sourceW)))+
				base.Foreground(amountColor).Render(fmt.Sprintf("%*s", amountW, cli.FormatSigned(tx.Type, tx.Amount))))
	}
	return strings.Join(lines, "\n")
}
