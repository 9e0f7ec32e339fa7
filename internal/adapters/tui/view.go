package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/xvierd/stepflow/internal/domain"
)

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(m.deps.Theme.ColorWork)).MarginBottom(1)
	sections := []string{titleStyle.Render("stepflow")}

	switch {
	case m.state.Break.Active:
		sections = m.viewBreak(sections)
	case m.state.IsSessionActive():
		sections = m.viewSession(sections)
	case m.state.Prompt == domain.PromptCompletion:
		sections = m.viewCompletion(sections)
	case m.state.Prompt == domain.PromptCelebration:
		sections = m.viewCelebration(sections)
	case m.state.Prompt == domain.PromptBreakComplete:
		sections = m.viewBreakComplete(sections)
	default:
		sections = append(sections, m.dim().Render("No active session"), "", m.help().Render("[b]reak  [q]uit"))
	}

	if m.confirmQuit {
		warn := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(m.deps.Theme.ColorBreak))
		sections = append(sections, "", warn.Render("Session still running. Quit and mark it interrupted? [y/n]"))
	}
	if m.status != "" {
		sections = append(sections, "", lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75")).Render(m.status))
	}

	content := lipgloss.JoinVertical(lipgloss.Center, sections...)
	if m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m Model) help() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(m.deps.Theme.ColorHelp))
}

func (m Model) dim() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(m.deps.Theme.ColorPaused))
}

func (m Model) bar(color string, ratio float64) string {
	p := progress.New(progress.WithSolidFill(color), progress.WithoutPercentage())
	p.Width = m.width - 4
	if p.Width > 60 {
		p.Width = 60
	}
	return p.ViewAs(ratio)
}

func (m Model) viewSession(sections []string) []string {
	timer := m.state.Timer
	color := m.deps.Theme.ColorWork
	if timer.Paused {
		color = m.deps.Theme.ColorPaused
	}

	if task := m.state.ActiveTask; task != nil {
		sections = append(sections, lipgloss.NewStyle().Bold(true).Render(task.Title))
	}
	session := m.state.ActiveSession
	sections = append(sections, m.dim().Render(domain.GetStatusLabel(session.Status)))
	sections = append(sections, "", bigClock(timer.Remaining, lipgloss.Color(color), m.width))
	if timer.Paused {
		badge := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color(m.deps.Theme.ColorPaused)).Padding(0, 1).Render("PAUSED")
		sections = append(sections, "", badge)
	}
	sections = append(sections, "", m.bar(color, timer.Progress()))

	if task := m.state.ActiveTask; task != nil {
		sections = append(sections, "", m.viewSteps(task))
	}
	if n := len(session.Distractions); n > 0 {
		sections = append(sections, m.help().Render(fmt.Sprintf("distractions: %d", n)))
	}
	if session.GitBranch != "" {
		sections = append(sections, m.help().Render(fmt.Sprintf("%s (%s)", session.GitBranch, session.GitCommit)))
	}

	sections = append(sections, "")
	if m.mode != inputNone {
		return append(sections, m.viewInput()...)
	}
	pause := "[p]ause"
	if timer.Paused {
		pause = "[p] resume"
	}
	return append(sections, m.help().Render(pause+"  [1-9] toggle step  [a]dd step  [d]istraction  [s]top  [q]uit"))
}

func (m Model) viewSteps(task *domain.Task) string {
	done := lipgloss.NewStyle().Foreground(lipgloss.Color(m.deps.Theme.ColorHelp)).Strikethrough(true)
	lines := make([]string, 0, len(task.Steps))
	for i, step := range task.Steps {
		line := fmt.Sprintf("%d. [ ] %s", i+1, step.Title)
		if step.Done {
			line = done.Render(fmt.Sprintf("%d. [x] %s", i+1, step.Title))
		}
		lines = append(lines, line)
	}
	return lipgloss.NewStyle().Align(lipgloss.Left).Render(strings.Join(lines, "\n"))
}

func (m Model) viewInput() []string {
	var label string
	switch m.mode {
	case inputDistraction:
		label = "Distraction: "
	case inputStopReason:
		label = "Stop reason: "
	case inputStep:
		label = "New step: "
	}
	hint := "enter save · esc cancel"
	lines := []string{m.help().Render(label) + m.input.View()}
	if m.mode == inputStopReason {
		hint = "enter stop session · esc keep going"
		for i, reason := range stopReasons {
			lines = append(lines, m.dim().Render(fmt.Sprintf("%d. %s", i+1, reason)))
		}
	}
	return append(lines, m.help().Render(hint))
}

func (m Model) viewBreak(sections []string) []string {
	brk := m.state.Break
	color := m.deps.Theme.ColorBreak
	if m.breakPaused {
		color = m.deps.Theme.ColorPaused
	}
	ratio := 0.0
	if brk.Total > 0 {
		ratio = float64(brk.Total-brk.Remaining) / float64(brk.Total)
	}

	sections = append(sections,
		lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(brk.Type.Label()),
		"",
		bigClock(brk.Remaining, lipgloss.Color(color), m.width),
		"",
		m.bar(color, ratio),
		"",
	)
	pause := "[p]ause"
	if m.breakPaused {
		pause = "[p] resume"
	}
	return append(sections, m.help().Render(pause+"  [e]nd break  [q]uit"))
}

func (m Model) summaryLine(s *domain.CompletionSummary) string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%s focused · %d/%d steps", clock(s.Duration), s.CompletedSteps, s.TotalSteps)
}

func (m Model) viewCompletion(sections []string) []string {
	status := lipgloss.NewStyle().Foreground(lipgloss.Color(m.deps.Theme.ColorWork))
	sections = append(sections, status.Render("Session complete!"))
	if s := m.state.Summary; s != nil {
		sections = append(sections, m.help().Render(s.TaskTitle), m.help().Render(m.summaryLine(s)))
	}
	return append(sections, "", m.help().Render("[b]reak  [c]ontinue task  [x] dismiss  [q]uit"))
}

func (m Model) viewCelebration(sections []string) []string {
	status := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(m.deps.Theme.ColorBreak))
	sections = append(sections, status.Render("Task complete!"))
	if s := m.state.Summary; s != nil {
		sections = append(sections, m.help().Render(s.TaskTitle), m.help().Render(m.summaryLine(s)))
		if s.Streak > 0 {
			sections = append(sections, status.Render(fmt.Sprintf("%d day streak", s.Streak)))
		}
	}
	return append(sections, "", m.help().Render("[b]reak  [c] work on it again  [x] dismiss  [q]uit"))
}

func (m Model) viewBreakComplete(sections []string) []string {
	sections = append(sections, lipgloss.NewStyle().Foreground(lipgloss.Color(m.deps.Theme.ColorBreak)).Render("Break over!"))
	if task := m.deps.Breaks.ResumeTask(); task != nil {
		sections = append(sections, m.help().Render("Back to: "+task.Title), "", m.help().Render("[r]esume  [n]o thanks  [q]uit"))
		return sections
	}
	return append(sections, "", m.help().Render("[n] dismiss  [q]uit"))
}
