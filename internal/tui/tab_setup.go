package tui

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/theirongolddev/kas/internal/cli"
	"github.com/theirongolddev/kas/internal/tui/components"
	"github.com/theirongolddev/kas/internal/tui/theme"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type setupFieldKind int

const (
	fieldPool setupFieldKind = iota
	fieldMemberName
	fieldMemberBalance
)

// setupField is one editable row: the pool balance, or a member's name or
// balance.
type setupField struct {
	kind     setupFieldKind
	memberID string
}

// setupState tracks the setup tab. Edits are pushed to the engine on every
// keystroke; the engine coalesces them into one store write per target.
type setupState struct {
	cursor       int
	editing      bool
	input        textinput.Model
	confirmReset bool
}

func (a App) setupFields() []setupField {
	fields := []setupField{{kind: fieldPool}}
	for _, m := range a.state.Members {
		fields = append(fields,
			setupField{kind: fieldMemberName, memberID: m.ID},
			setupField{kind: fieldMemberBalance, memberID: m.ID},
		)
	}
	return fields
}

func (a App) fieldValue(f setupField) string {
	switch f.kind {
	case fieldPool:
		return strconv.FormatInt(a.state.Pool, 10)
	case fieldMemberName:
		m, _ := a.state.Member(f.memberID)
		return m.Name
	case fieldMemberBalance:
		m, _ := a.state.Member(f.memberID)
		return strconv.FormatInt(m.Balance, 10)
	}
	return ""
}

func (a App) updateSetupKey(key string) (App, tea.Cmd, bool) {
	fields := a.setupFields()
	if key != "R" {
		a.setup.confirmReset = false
	}
	switch key {
	case "R":
		if !a.setup.confirmReset {
			a.setup.confirmReset = true
			a.flash("Press R again to reset to the default ledger (this device only)", false)
			return a, nil, true
		}
		a.setup.confirmReset = false
		a.setup.cursor = 0
		a.engine.Reset()
		a.refresh()
		a.flash("Ledger reset to defaults on this device", false)
		return a, nil, true
	case "j", "down":
		if a.setup.cursor < len(fields)-1 {
			a.setup.cursor++
		}
		return a, nil, true
	case "k", "up":
		if a.setup.cursor > 0 {
			a.setup.cursor--
		}
		return a, nil, true
	case "enter":
		if a.setup.cursor >= len(fields) {
			return a, nil, true
		}
		f := fields[a.setup.cursor]
		ti := textinput.New()
		ti.CharLimit = 32
		ti.Width = 24
		ti.Prompt = ""
		ti.SetValue(a.fieldValue(f))
		ti.CursorEnd()
		ti.Focus()
		a.setup.input = ti
		a.setup.editing = true
		return a, ti.Cursor.BlinkCmd(), true
	}
	return a, nil, false
}

// updateSetupInput forwards keys to the input and applies the value live.
func (a App) updateSetupInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		a.setup.editing = false
		a.setup.input.Blur()
		return a, nil
	}

	fields := a.setupFields()
	if a.setup.cursor >= len(fields) {
		a.setup.editing = false
		return a, nil
	}

	f := fields[a.setup.cursor]
	if f.kind != fieldMemberName && msg.Type == tea.KeyRunes && !allDigits(msg.Runes) {
		return a, nil
	}

	var cmd tea.Cmd
	a.setup.input, cmd = a.setup.input.Update(msg)
	a.applySetupValue(f, a.setup.input.Value())
	a.refresh()
	return a, cmd
}

func (a *App) applySetupValue(f setupField, raw string) {
	var err error
	switch f.kind {
	case fieldPool:
		a.engine.SetPoolBalance(cli.ParseAmount(raw))
	case fieldMemberName:
		err = a.engine.SetMemberName(f.memberID, raw)
	case fieldMemberBalance:
		err = a.engine.SetMemberBalance(f.memberID, cli.ParseAmount(raw))
	}
	if err != nil {
		a.setup.editing = false
		a.flash(describeError(err), true)
	}
}

func allDigits(rs []rune) bool {
	for _, r := range rs {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (a App) renderSetupTab(cw int) string {
	t := theme.Active
	fields := a.setupFields()
	pending := a.engine.PendingEdits()

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	selectedStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.SurfaceHover).Bold(true)
	pendingStyle := lipgloss.NewStyle().Foreground(t.Pending).Background(t.Surface)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)

	const labelW = 22
	var b strings.Builder
	for i, f := range fields {
		label, key := a.setupLabel(f)
		value := a.fieldValue(f)
		if f.kind != fieldMemberName {
			n, _ := strconv.ParseInt(value, 10, 64)
			value = cli.FormatIDR(n)
		}

		line := fmt.Sprintf("%-*s ", labelW, truncStr(label, labelW))
		switch {
		case i == a.setup.cursor && a.setup.editing:
			b.WriteString(selectedStyle.Render(line))
			b.WriteString(a.setup.input.View())
		case i == a.setup.cursor:
			b.WriteString(selectedStyle.Render(line + value))
		default:
			b.WriteString(labelStyle.Render(line))
			b.WriteString(valueStyle.Render(value))
		}
		if slices.Contains(pending, key) {
			b.WriteString(pendingStyle.Render("  ● unsent"))
		}
		b.WriteString("\n")
		if f.kind == fieldPool || f.kind == fieldMemberBalance {
			b.WriteString("\n")
		}
	}

	hint := "j/k select  Enter edit  Enter/Esc done  R reset"
	if a.setup.editing {
		hint = "Changes apply as you type and are sent once you pause"
	}
	b.WriteString(dimStyle.Render(hint))

	return components.ContentCard("Balances & members", b.String(), cw)
}

// setupLabel returns the row label and the engine's pending-edit key.
func (a App) setupLabel(f setupField) (string, string) {
	if f.kind == fieldPool {
		return "Pool balance", "pool"
	}
	m, _ := a.state.Member(f.memberID)
	key := "member:" + f.memberID
	if f.kind == fieldMemberName {
		return "Member name", key
	}
	return "  " + m.Name + " balance", key
}
