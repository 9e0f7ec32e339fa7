// Package tui provides the terminal user interface for focus sessions
// using the Bubbletea framework.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/xvierd/stepflow/internal/config"
	"github.com/xvierd/stepflow/internal/domain"
	"github.com/xvierd/stepflow/internal/services"
)

// Toggler switches desktop notifications on and off.
type Toggler interface {
	SetEnabled(enabled bool)
	IsEnabled() bool
}

// Deps are the services the focus screen drives.
type Deps struct {
	Focus  *services.FocusController
	Breaks *services.BreakOrchestrator
	Tasks  *services.TaskService
	Guard  *services.UnloadGuard
	// Notifications is optional.
	Notifications Toggler
	Theme         config.ThemeConfig
}

type inputMode int

const (
	inputNone inputMode = iota
	inputDistraction
	inputStopReason
	inputStep
)

// stopReasons are picked with 1-3 while the stop reason is still empty.
var stopReasons = []string{
	"Got interrupted",
	"Blocked on something",
	"Switching tasks",
}

// tickMsg is sent on every refresh tick.
type tickMsg time.Time

// Model is the focus screen.
type Model struct {
	ctx   context.Context
	deps  Deps
	state domain.CurrentState

	input textinput.Model
	mode  inputMode

	confirmQuit bool
	breakPaused bool
	status      string

	width  int
	height int

	unload services.UnloadDecision
}

// NewModel creates the focus screen.
func NewModel(ctx context.Context, deps Deps) Model {
	ti := textinput.New()
	ti.CharLimit = 200
	ti.Width = 40

	m := Model{
		ctx:   ctx,
		deps:  deps,
		input: ti,
	}
	m.refresh()
	return m
}

// Unload returns what the unload guard did when the screen closed.
func (m Model) Unload() services.UnloadDecision {
	return m.unload
}

// Init starts the refresh loop.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.refresh()
		if m.state.Prompt == domain.PromptStopReason && m.mode == inputNone {
			return m, tea.Batch(tickCmd(), m.openInput(inputStopReason))
		}
		return m, tickCmd()

	case tea.KeyMsg:
		m.refresh()
		if m.mode != inputNone {
			return m.updateInput(msg)
		}
		return m.handleKey(msg.String())
	}
	return m, nil
}

func (m *Model) refresh() {
	m.state = m.deps.Focus.State()
	if !m.state.Break.Active {
		m.breakPaused = false
	}
}

func (m *Model) report(err error) {
	if err != nil {
		m.status = err.Error()
	} else {
		m.status = ""
	}
}

func (m Model) handleKey(k string) (tea.Model, tea.Cmd) {
	if k == "ctrl+c" {
		return m.leave()
	}
	if m.confirmQuit {
		m.confirmQuit = false
		if k == "y" || k == "q" {
			return m.leave()
		}
		return m, nil
	}
	if k == "q" {
		if m.deps.Guard.Preview().Confirm {
			m.confirmQuit = true
			return m, nil
		}
		return m.leave()
	}
	if k == "tab" && m.deps.Notifications != nil {
		m.deps.Notifications.SetEnabled(!m.deps.Notifications.IsEnabled())
		return m, nil
	}

	switch m.state.Prompt {
	case domain.PromptCompletion, domain.PromptCelebration:
		return m.handleCompletionKey(k)
	case domain.PromptBreakComplete:
		return m.handleBreakCompleteKey(k)
	}

	switch {
	case m.state.Break.Active:
		return m.handleBreakKey(k)
	case m.state.IsSessionActive():
		return m.handleSessionKey(k)
	}

	if k == "b" {
		m.report(m.deps.Breaks.TakeBreak())
		m.refresh()
	}
	return m, nil
}

func (m Model) handleSessionKey(k string) (tea.Model, tea.Cmd) {
	switch k {
	case "p":
		if m.state.Timer.Paused {
			m.report(m.deps.Focus.Resume())
		} else {
			m.report(m.deps.Focus.Pause())
		}
	case "s":
		if err := m.deps.Focus.RequestStop(); err != nil {
			m.report(err)
			break
		}
		m.refresh()
		return m, m.openInput(inputStopReason)
	case "d":
		return m, m.openInput(inputDistraction)
	case "a":
		return m, m.openInput(inputStep)
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		m.toggleStep(int(k[0] - '1'))
	}
	m.refresh()
	return m, nil
}

func (m *Model) toggleStep(index int) {
	task := m.deps.Focus.ActiveTask()
	if task == nil || index < 0 || index >= len(task.Steps) {
		return
	}
	_, err := m.deps.Tasks.ToggleStep(task, task.Steps[index].ID)
	m.report(err)
}

func (m Model) handleBreakKey(k string) (tea.Model, tea.Cmd) {
	switch k {
	case "e":
		m.report(m.deps.Breaks.EndBreak())
	case "p":
		if m.breakPaused {
			m.deps.Breaks.ResumeBreak()
		} else {
			m.deps.Breaks.PauseBreak()
		}
		m.breakPaused = !m.breakPaused
	}
	m.refresh()
	return m, nil
}

func (m Model) handleCompletionKey(k string) (tea.Model, tea.Cmd) {
	switch k {
	case "b":
		m.report(m.deps.Breaks.TakeBreak())
	case "c":
		_, err := m.deps.Breaks.ContinueTask(m.ctx)
		m.report(err)
	case "esc", "x":
		m.deps.Breaks.Dismiss()
	}
	m.refresh()
	return m, nil
}

func (m Model) handleBreakCompleteKey(k string) (tea.Model, tea.Cmd) {
	switch k {
	case "r", "enter":
		_, err := m.deps.Breaks.ResumeAfterBreak(m.ctx)
		m.report(err)
	case "n", "esc":
		m.deps.Breaks.DeclineResume()
	}
	m.refresh()
	return m, nil
}

func (m *Model) openInput(mode inputMode) tea.Cmd {
	m.mode = mode
	m.input.Reset()
	switch mode {
	case inputDistraction:
		m.input.Placeholder = "what pulled you away?"
	case inputStopReason:
		m.input.Placeholder = "why stop early? (optional)"
	case inputStep:
		m.input.Placeholder = "next step"
	}
	return m.input.Focus()
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if m.mode == inputStopReason {
			m.deps.Focus.CancelStop()
		}
		m.closeInput()
		m.refresh()
		return m, nil
	case tea.KeyEnter:
		m.submitInput(m.input.Value())
		m.closeInput()
		m.refresh()
		return m, nil
	case tea.KeyCtrlC:
		m.closeInput()
		return m.leave()
	}
	if reason, ok := quickReason(m.mode, m.input.Value(), msg.String()); ok {
		m.submitInput(reason)
		m.closeInput()
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submitInput(value string) {
	switch m.mode {
	case inputDistraction:
		m.report(m.deps.Focus.LogDistraction(value))
	case inputStopReason:
		_, err := m.deps.Focus.ConfirmStop(value)
		m.report(err)
	case inputStep:
		task := m.deps.Focus.ActiveTask()
		if task == nil {
			m.report(domain.ErrNoActiveSession)
			return
		}
		_, err := m.deps.Tasks.AddStep(task, value)
		m.report(err)
	}
}

// quickReason maps a digit key to a preset stop reason. Digits typed after
// other text stay part of the free-text reason.
func quickReason(mode inputMode, typed, key string) (string, bool) {
	if mode != inputStopReason || typed != "" || len(key) != 1 {
		return "", false
	}
	i := int(key[0] - '1')
	if i < 0 || i >= len(stopReasons) {
		return "", false
	}
	return stopReasons[i], true
}

func (m *Model) closeInput() {
	m.mode = inputNone
	m.input.Blur()
	m.input.Reset()
}

// leave runs the unload guard and quits.
func (m Model) leave() (tea.Model, tea.Cmd) {
	m.unload = m.deps.Guard.OnUnload()
	return m, tea.Quit
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
