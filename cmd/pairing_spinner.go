package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/multisession/internal/adapters/notify"
	"github.com/bnema/multisession/internal/domain"
	"github.com/bnema/multisession/internal/ports"
)

type pairingStatusMsg struct {
	event domain.StatusEvent
}

type pairingDoneMsg struct {
	status domain.StatusEvent
	err    error
}

type pairingSpinnerModel struct {
	spinner   spinner.Model
	account   domain.AccountID
	label     string
	wait      tea.Cmd
	codeStyle lipgloss.Style
	status    domain.StatusEvent
	err       error
	done      bool
}

func newPairingSpinnerModel(account domain.AccountID, wait tea.Cmd) pairingSpinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return pairingSpinnerModel{
		spinner:   s,
		account:   account,
		label:     fmt.Sprintf("Connecting bot %s...", account),
		wait:      wait,
		codeStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("159")),
	}
}

func (m pairingSpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.wait)
}

func (m pairingSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case pairingStatusMsg:
		switch msg.event.Kind {
		case domain.StatusPairingCode:
			code := notify.FormatPairingCode(msg.event.PairingCode)
			m.label = "Waiting for the code to be entered on the phone..."
			return m, tea.Printf("Pairing code for %s: %s\nOpen Linked devices > Link with phone number and enter it.",
				m.account, m.codeStyle.Render(code))
		case domain.StatusReconnecting:
			m.label = fmt.Sprintf("Reconnecting bot %s (attempt %d)...", m.account, msg.event.Attempt)
		}
		return m, nil
	case pairingDoneMsg:
		m.done = true
		m.status = msg.status
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m pairingSpinnerModel) View() string {
	if m.done {
		return ""
	}

	return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
}

// runPairingSpinner shows progress while pair runs. pair receives a notifier
// that feeds status events into the spinner.
func runPairingSpinner(ctx context.Context, output io.Writer, account domain.AccountID, pair func(context.Context, ports.Notifier) (domain.StatusEvent, error)) (domain.StatusEvent, error) {
	var p *tea.Program
	notifier := ports.NotifierFunc(func(_ domain.AccountID, event domain.StatusEvent) {
		p.Send(pairingStatusMsg{event: event})
	})

	waitCmd := func() tea.Msg {
		status, err := pair(ctx, notifier)
		return pairingDoneMsg{status: status, err: err}
	}

	p = tea.NewProgram(
		newPairingSpinnerModel(account, waitCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return domain.StatusEvent{}, err
	}

	result, ok := finalModel.(pairingSpinnerModel)
	if !ok {
		return domain.StatusEvent{}, fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}

	return result.status, result.err
}
