package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/theirongolddev/kas/internal/cli"
	"github.com/theirongolddev/kas/internal/ledger"
	"github.com/theirongolddev/kas/internal/model"
	"github.com/theirongolddev/kas/internal/tui/components"
	"github.com/theirongolddev/kas/internal/tui/theme"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// addValues is bound to the form fields. It lives behind a pointer so the
// bindings survive App being copied on every update.
type addValues struct {
	txType model.TxType
	source string // "pool" or a member id
	amount string
	desc   string
	date   string
}

type addState struct {
	form *huh.Form
	vals *addValues
}

func newAddState(st model.AppState, width int) addState {
	vals := &addValues{
		txType: model.Expense,
		source: string(model.SourcePool),
		date:   cli.Today(),
	}

	sources := []huh.Option[string]{huh.NewOption("Pool", string(model.SourcePool))}
	for _, m := range st.Members {
		sources = append(sources, huh.NewOption(m.Name, m.ID))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[model.TxType]().
				Title("Type").
				Options(
					huh.NewOption("Expense", model.Expense),
					huh.NewOption("Income", model.Income),
				).
				Value(&vals.txType),
			huh.NewSelect[string]().
				Title("Source").
				Options(sources...).
				Value(&vals.source),
			huh.NewInput().
				Title("Amount (Rp)").
				Placeholder("150.000").
				Value(&vals.amount).
				Validate(func(s string) error {
					if cli.ParseAmount(s) <= 0 {
						return errors.New("enter an amount above zero")
					}
					return nil
				}),
			huh.NewInput().
				Title("Description").
				Placeholder("makan bareng").
				Value(&vals.desc),
			huh.NewInput().
				Title("Date").
				Description("YYYY-MM-DD").
				Value(&vals.date).
				Validate(func(s string) error {
					_, err := cli.ParseDate(s)
					return err
				}),
		),
	).WithWidth(width).WithShowHelp(true).WithTheme(formTheme())

	return addState{form: form, vals: vals}
}

// formTheme maps the active palette onto huh's base theme.
func formTheme() *huh.Theme {
	t := theme.Active
	ft := huh.ThemeBase()
	ft.Focused.Title = ft.Focused.Title.Foreground(t.Accent).Bold(true)
	ft.Focused.Description = ft.Focused.Description.Foreground(t.TextMuted)
	ft.Focused.SelectSelector = ft.Focused.SelectSelector.Foreground(t.AccentBright)
	ft.Focused.SelectedOption = ft.Focused.SelectedOption.Foreground(t.TextPrimary)
	ft.Focused.ErrorMessage = ft.Focused.ErrorMessage.Foreground(t.Expense)
	ft.Focused.ErrorIndicator = ft.Focused.ErrorIndicator.Foreground(t.Expense)
	ft.Blurred.Title = ft.Blurred.Title.Foreground(t.TextMuted)
	return ft
}

// intent converts the submitted values.
func (v addValues) intent() (ledger.Intent, error) {
	src := model.PoolSource()
	if v.source != string(model.SourcePool) {
		src = model.PersonalSource(v.source)
	}
	date, err := cli.ParseDate(v.date)
	if err != nil {
		return ledger.Intent{}, err
	}
	return ledger.Intent{
		Type:   v.txType,
		Source: src,
		Amount: cli.ParseAmount(v.amount),
		Desc:   strings.TrimSpace(v.desc),
		Date:   date,
	}, nil
}

func (a App) updateAddKey(key string) (App, tea.Cmd, bool) {
	if key == "enter" && a.add.form == nil {
		a.add = newAddState(a.state, a.formWidth())
		return a, a.add.form.Init(), true
	}
	return a, nil, false
}

func (a App) updateAddForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok && km.String() == "esc" {
		a.add = addState{}
		a.activeTab = tabOverview
		return a, nil
	}

	form, cmd := a.add.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.add.form = f
	}

	switch a.add.form.State {
	case huh.StateCompleted:
		in, err := a.add.vals.intent()
		if err != nil {
			a.flash(err.Error(), true)
			return a, nil
		}
		var write tea.Cmd
		a, write = a.applyIntent(in)
		a.add = newAddState(a.state, a.formWidth())
		return a, tea.Batch(write, a.add.form.Init())

	case huh.StateAborted:
		a.add = addState{}
		a.activeTab = tabOverview
		return a, nil
	}
	return a, cmd
}

func (a App) renderAddTab(cw int) string {
	t := theme.Active
	if a.add.form == nil {
		hint := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface).Render("Press Enter to start a new transaction.")
		return components.ContentCard("New transaction", hint, cw)
	}

	hint := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface).
		Render("Balances update as soon as you submit; the store confirms in the background. Esc to leave.")
	return components.ContentCard("New transaction", a.add.form.View()+"\n\n"+hint, cw)
}

// writeCtx is the context for store writes. It is not tied to the UI, so
// quitting does not abort a write that is already in flight.
func (a App) writeCtx() context.Context {
	return context.Background()
}

func describeError(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "Insufficient funds in that source"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "Amount must be greater than zero"
	case errors.Is(err, ledger.ErrMemberNotFound):
		return "That member no longer exists"
	case errors.Is(err, ledger.ErrTxNotFound):
		return "Transaction no longer exists"
	case errors.Is(err, ledger.ErrTxUnconfirmed):
		return "Still saving that transaction, try again in a moment"
	}
	return err.Error()
}
