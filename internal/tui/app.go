// Package tui provides the interactive Bubble Tea dashboard for kas.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/theirongolddev/kas/internal/config"
	"github.com/theirongolddev/kas/internal/ledger"
	"github.com/theirongolddev/kas/internal/model"
	"github.com/theirongolddev/kas/internal/tui/components"
	"github.com/theirongolddev/kas/internal/tui/theme"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	tabOverview = iota
	tabHistory
	tabAdd
	tabSetup
	tabSettings
)

const (
	minTerminalWidth = 70
	maxContentWidth  = 160
	minContentHeight = 5

	tickInterval = 250 * time.Millisecond
	messageTTL   = 6 * time.Second
)

// Options wires the dashboard to a ledger.
type Options struct {
	Engine  *ledger.Engine
	Fetcher ledger.Fetcher     // may be nil
	Cache   ledger.Snapshotter // may be nil
	Alerts  <-chan error       // rolled-back writes reported by the engine
	Config  config.Config
}

// hydratedMsg is sent when the initial load finishes.
type hydratedMsg struct {
	Origin   ledger.Origin
	Err      error
	LoadTime time.Duration
}

// alertMsg carries a user-visible failure from the engine.
type alertMsg struct{ Err error }

// writeDoneMsg reports the outcome of a transaction write.
type writeDoneMsg struct {
	Verb string // "Recorded" or "Removed"
	What string
	Err  error
}

type tickMsg struct{}

// App is the root Bubble Tea model.
type App struct {
	engine  *ledger.Engine
	fetcher ledger.Fetcher
	cache   ledger.Snapshotter
	alerts  <-chan error
	cfg     config.Config

	// Canceled on quit so an unfinished initial fetch is abandoned.
	ctx    context.Context
	cancel context.CancelFunc

	// Data
	state    model.AppState
	origin   ledger.Origin
	loaded   bool
	loadTime time.Duration
	pending  int

	// Transient status line message
	message   string
	isAlert   bool
	messageAt time.Time

	// UI state
	width     int
	height    int
	activeTab int
	showHelp  bool
	spinner   spinner.Model

	// Per-tab state
	history  historyState
	add      addState
	setup    setupState
	settings settingsState
}

// NewApp creates the dashboard model.
func NewApp(opts Options) App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent).Background(theme.Active.Surface)

	ctx, cancel := context.WithCancel(context.Background())
	return App{
		engine:   opts.Engine,
		fetcher:  opts.Fetcher,
		cache:    opts.Cache,
		alerts:   opts.Alerts,
		cfg:      opts.Config,
		ctx:      ctx,
		cancel:   cancel,
		state:    opts.Engine.State(),
		spinner:  sp,
		history:  newHistoryState(),
		settings: settingsState{cursor: theme.Index(opts.Config.Appearance.Theme)},
	}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnableMouseCellMotion,
		hydrateCmd(a.ctx, a.engine, a.fetcher, a.cache),
		a.spinner.Tick,
		tickCmd(),
	}
	if a.alerts != nil {
		cmds = append(cmds, waitForAlert(a.alerts))
	}
	return tea.Batch(cmds...)
}

func (a App) quit() (tea.Model, tea.Cmd) {
	a.cancel()
	return a, tea.Quit
}

// refresh pulls the latest snapshot from the engine. The engine is the
// single owner of state; the model only ever holds a copy.
func (a *App) refresh() {
	a.state = a.engine.State()
	a.pending = len(a.engine.PendingEdits())
	a.history.clamp(len(a.historyRows()))
}

func (a *App) flash(msg string, alert bool) {
	a.message = msg
	a.isAlert = alert
	a.messageAt = time.Now()
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		if a.add.form != nil {
			a.add.form = a.add.form.WithWidth(a.formWidth())
		}
		return a, nil

	case tea.MouseMsg:
		if !a.loaded || a.showHelp {
			return a, nil
		}
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			if a.activeTab == tabHistory {
				a.history.move(-1, len(a.historyRows()))
			}
		case tea.MouseButtonWheelDown:
			if a.activeTab == tabHistory {
				a.history.move(1, len(a.historyRows()))
			}
		case tea.MouseButtonLeft:
			if msg.Y == 0 && msg.Action == tea.MouseActionPress {
				if tab := a.tabAtX(msg.X); tab >= 0 {
					return a.switchTab(tab)
				}
			}
		}
		return a, nil

	case tea.KeyMsg:
		return a.updateKey(msg)

	case hydratedMsg:
		if errors.Is(msg.Err, context.Canceled) {
			return a, nil
		}
		a.loaded = true
		a.origin = msg.Origin
		a.loadTime = msg.LoadTime
		a.refresh()
		switch msg.Origin {
		case ledger.OriginCache:
			a.flash("Store unreachable, showing cached state", true)
		case ledger.OriginDefault:
			a.flash("Store unreachable, showing defaults", true)
		}
		return a, nil

	case alertMsg:
		a.refresh()
		a.flash(msg.Err.Error(), true)
		return a, waitForAlert(a.alerts)

	case writeDoneMsg:
		a.refresh()
		if msg.Err != nil {
			a.flash(msg.Err.Error(), true)
			return a, nil
		}
		a.flash(fmt.Sprintf("%s %s", msg.Verb, msg.What), false)
		return a, nil

	case spinner.TickMsg:
		if !a.loaded {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			return a, cmd
		}
		return a, nil

	case tickMsg:
		if a.loaded {
			a.refresh()
		}
		if a.message != "" && time.Since(a.messageAt) > messageTTL {
			a.message = ""
		}
		return a, tickCmd()
	}

	// Cursor blinks and other internal messages for the embedded widgets.
	if a.activeTab == tabAdd && a.add.form != nil {
		return a.updateAddForm(msg)
	}
	return a, nil
}

func (a App) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return a.quit()
	}

	if !a.loaded {
		if key == "q" || key == "esc" {
			return a.quit()
		}
		return a, nil
	}

	// Widgets that take text input get every key first.
	switch {
	case a.activeTab == tabAdd && a.add.form != nil:
		return a.updateAddForm(msg)
	case a.activeTab == tabHistory && a.history.searching:
		return a.updateHistorySearch(msg)
	case a.activeTab == tabSetup && a.setup.editing:
		return a.updateSetupInput(msg)
	}

	if key == "?" {
		a.showHelp = !a.showHelp
		return a, nil
	}
	if a.showHelp {
		a.showHelp = false
		return a, nil
	}

	if key == "q" {
		return a.quit()
	}

	var (
		handled bool
		cmd     tea.Cmd
	)
	switch a.activeTab {
	case tabOverview:
		a, cmd, handled = a.updateOverviewKey(key)
	case tabHistory:
		a, cmd, handled = a.updateHistoryKey(key)
	case tabAdd:
		a, cmd, handled = a.updateAddKey(key)
	case tabSetup:
		a, cmd, handled = a.updateSetupKey(key)
	case tabSettings:
		a, cmd, handled = a.updateSettingsKey(key)
	}
	if handled {
		return a, cmd
	}

	switch key {
	case "left", "shift+tab":
		return a.switchTab((a.activeTab - 1 + len(components.Tabs)) % len(components.Tabs))
	case "right", "tab":
		return a.switchTab((a.activeTab + 1) % len(components.Tabs))
	}
	if r := []rune(key); len(r) == 1 {
		if idx := components.TabIdxByKey(r[0]); idx >= 0 {
			return a.switchTab(idx)
		}
	}
	return a, nil
}

func (a App) switchTab(tab int) (tea.Model, tea.Cmd) {
	a.activeTab = tab
	if tab == tabAdd && a.add.form == nil {
		a.add = newAddState(a.state, a.formWidth())
		return a, a.add.form.Init()
	}
	return a, nil
}

func (a App) contentWidth() int {
	return min(a.width, maxContentWidth)
}

func (a App) formWidth() int {
	return max(min(a.contentWidth()-4, 72), 30)
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.width < minTerminalWidth {
		return a.viewTooNarrow()
	}
	if !a.loaded {
		return a.viewLoading()
	}
	if a.showHelp {
		return a.viewHelp()
	}
	return a.viewMain()
}

func (a App) viewTooNarrow() string {
	h := max(a.height, 5)
	msg := fmt.Sprintf(
		"\n  Terminal too narrow (%d cols)\n\n  kas needs at least %d columns.\n",
		a.width, minTerminalWidth,
	)
	return padHeight(truncateHeight(msg, h), h)
}

func (a App) viewLoading() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(2, 4)

	logoStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface).Bold(true)
	subtitleStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)

	var b strings.Builder
	b.WriteString(logoStyle.Render("◈ kas"))
	b.WriteString(subtitleStyle.Render(" · Kas Bareng Tracker"))
	b.WriteString("\n\n")
	b.WriteString(a.spinner.View())
	b.WriteString(subtitleStyle.Render(" Loading ledger from " + a.cfg.Remote.BaseURL))
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("q to cancel"))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewHelp() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(1, 3)

	titleStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface).Bold(true)
	sectionStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	keyStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)

	sections := []struct {
		title    string
		bindings []struct{ key, desc string }
	}{
		{"Navigation", []struct{ key, desc string }{
			{"o h a e x", "Jump to tab"},
			{"← → tab", "Previous / Next tab"},
			{"j k", "Move through lists"},
		}},
		{"Ledger", []struct{ key, desc string }{
			{"t", "Record a Termin payment (overview)"},
			{"[ ]", "Cycle history source"},
			{"i", "Cycle income/expense filter"},
			{"/", "Search history"},
			{"D", "Delete selected transaction"},
			{"R", "Reset to defaults, this device only (setup)"},
			{"Enter", "Edit field / Confirm"},
			{"Esc", "Back / Cancel"},
		}},
		{"General", []struct{ key, desc string }{
			{"?", "Toggle help"},
			{"q", "Quit"},
		}},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("◈ Keyboard Shortcuts"))
	b.WriteString("\n")
	for _, sec := range sections {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render(sec.title))
		b.WriteString("\n")
		for _, bind := range sec.bindings {
			fmt.Fprintf(&b, "  %s  %s\n",
				keyStyle.Render(fmt.Sprintf("%-10s", bind.key)),
				descStyle.Render(bind.desc))
		}
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Press any key to close"))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewMain() string {
	t := theme.Active
	w := a.width
	cw := a.contentWidth()
	h := a.height

	header := components.RenderTabBar(a.activeTab, w)
	statusBar := components.RenderStatusBar(w, components.Status{
		Origin:  string(a.origin),
		Pending: a.pending,
		Message: a.message,
		IsAlert: a.isAlert,
	})

	contentH := max(h-lipgloss.Height(header)-lipgloss.Height(statusBar), minContentHeight)

	var content string
	switch a.activeTab {
	case tabOverview:
		content = a.renderOverviewTab(cw)
	case tabHistory:
		content = a.renderHistoryTab(cw, contentH)
	case tabAdd:
		content = a.renderAddTab(cw)
	case tabSetup:
		content = a.renderSetupTab(cw)
	case tabSettings:
		content = a.renderSettingsTab(cw)
	}

	content = padHeight(truncateHeight(content, contentH), contentH)
	content = fillLinesWithBackground(content, cw, t.Background)
	content = lipgloss.Place(w, contentH, lipgloss.Center, lipgloss.Top, content,
		lipgloss.WithWhitespaceBackground(t.Background))

	output := lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
	return lipgloss.Place(w, h, lipgloss.Left, lipgloss.Top, output,
		lipgloss.WithWhitespaceBackground(t.Background))
}

// ─── Commands ───────────────────────────────────────────────────

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// hydrateCmd runs the initial load. Quitting cancels ctx, which makes
// Hydrate return without touching state.
func hydrateCmd(ctx context.Context, e *ledger.Engine, f ledger.Fetcher, c ledger.Snapshotter) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		origin, err := e.Hydrate(ctx, f, c)
		return hydratedMsg{Origin: origin, Err: err, LoadTime: time.Since(start)}
	}
}

func waitForAlert(ch <-chan error) tea.Cmd {
	return func() tea.Msg {
		err, ok := <-ch
		if !ok {
			return nil
		}
		return alertMsg{Err: err}
	}
}

// waitForWrite blocks until the store confirms or rejects p.
func waitForWrite(p *ledger.Pending, verb, what string) tea.Cmd {
	return func() tea.Msg {
		return writeDoneMsg{Verb: verb, What: what, Err: p.Wait(context.Background())}
	}
}

// ─── Mouse Support ──────────────────────────────────────────────

// tabAtX returns the tab index at the given X coordinate, or -1 if none.
func (a App) tabAtX(x int) int {
	pos := 0
	for i, tab := range components.Tabs {
		tabW := components.TabVisualWidth(tab, i == a.activeTab)
		if x >= pos && x < pos+tabW {
			return i
		}
		pos += tabW + 1 // separator
	}
	return -1
}

// ─── Helpers ────────────────────────────────────────────────────

func truncStr(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func truncateHeight(s string, limit int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}
	return strings.Join(lines[:limit], "\n")
}

func padHeight(s string, h int) string {
	lines := strings.Split(s, "\n")
	if len(lines) >= h {
		return s
	}
	return s + strings.Repeat("\n", h-len(lines))
}

// fillLinesWithBackground pads each line to width w with background color.
func fillLinesWithBackground(s string, w int, bg lipgloss.Color) string {
	lines := strings.Split(s, "\n")
	var result strings.Builder
	for i, line := range lines {
		result.WriteString(lipgloss.PlaceHorizontal(w, lipgloss.Left, line,
			lipgloss.WithWhitespaceBackground(bg)))
		if i < len(lines)-1 {
			result.WriteString("\n")
		}
	}
	return result.String()
}
