package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"github.com/xvierd/stepflow/internal/config"
	"github.com/xvierd/stepflow/internal/domain"
)

// ErrAborted is returned when the user leaves a prompt without choosing.
var ErrAborted = errors.New("aborted")

const pickerRows = 8

// taskTitles adapts a task list to fuzzy.Source.
type taskTitles []*domain.Task

func (t taskTitles) String(i int) string { return t[i].Title }
func (t taskTitles) Len() int            { return len(t) }

type pickerModel struct {
	tasks   []*domain.Task
	filter  textinput.Model
	visible []*domain.Task
	cursor  int
	chosen  *domain.Task
	aborted bool
	theme   config.ThemeConfig
}

func newPickerModel(tasks []*domain.Task, theme config.ThemeConfig) pickerModel {
	ti := textinput.New()
	ti.Placeholder = "type to filter"
	ti.CharLimit = 80
	ti.Width = 40
	ti.Focus()

	m := pickerModel{tasks: tasks, filter: ti, theme: theme}
	m.applyFilter()
	return m
}

func (m *pickerModel) applyFilter() {
	query := strings.TrimSpace(m.filter.Value())
	if query == "" {
		m.visible = m.tasks
	} else {
		matches := fuzzy.FindFrom(query, taskTitles(m.tasks))
		m.visible = make([]*domain.Task, 0, len(matches))
		for _, match := range matches {
			m.visible = append(m.visible, m.tasks[match.Index])
		}
	}
	if m.cursor >= len(m.visible) {
		m.cursor = 0
	}
}

func (m pickerModel) Init() tea.Cmd { return textinput.Blink }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyUp:
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case tea.KeyDown:
			if m.cursor < len(m.visible)-1 {
				m.cursor++
			}
			return m, nil
		case tea.KeyEnter:
			if len(m.visible) == 0 {
				return m, nil
			}
			m.chosen = m.visible[m.cursor]
			return m, tea.Quit
		case tea.KeyEsc, tea.KeyCtrlC:
			m.aborted = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m pickerModel) View() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(m.theme.ColorWork))
	activeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.ColorWork)).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.ColorHelp))

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("  Pick a task ") + m.filter.View() + "\n\n")

	if len(m.visible) == 0 {
		b.WriteString(dimStyle.Render("    no matching tasks") + "\n")
	}
	for i, task := range m.visible {
		if i >= pickerRows {
			b.WriteString(dimStyle.Render(fmt.Sprintf("    … %d more", len(m.visible)-pickerRows)) + "\n")
			break
		}
		done, total := progressOf(task)
		line := fmt.Sprintf("%-40s %d/%d steps", task.Title, done, total)
		if i == m.cursor {
			b.WriteString(activeStyle.Render("  ▸ "+line) + "\n")
		} else {
			b.WriteString(dimStyle.Render("    "+line) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  ↑/↓ navigate · enter start · esc back") + "\n")
	return b.String()
}

func progressOf(task *domain.Task) (done, total int) {
	for _, s := range task.Steps {
		if s.Done {
			done++
		}
	}
	return done, len(task.Steps)
}

// PickTask lets the user choose one of tasks with a fuzzy filter.
func PickTask(tasks []*domain.Task, theme config.ThemeConfig) (*domain.Task, error) {
	if len(tasks) == 0 {
		return nil, domain.ErrTaskNotFound
	}
	result, err := tea.NewProgram(newPickerModel(tasks, theme)).Run()
	if err != nil {
		return nil, err
	}
	final := result.(pickerModel)
	if final.aborted || final.chosen == nil {
		return nil, ErrAborted
	}
	return final.chosen, nil
}

type textPromptModel struct {
	title   string
	input   textinput.Model
	aborted bool
	theme   config.ThemeConfig
}

func (m textPromptModel) Init() tea.Cmd { return textinput.Blink }

func (m textPromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyEnter:
			return m, tea.Quit
		case tea.KeyEsc, tea.KeyCtrlC:
			m.aborted = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m textPromptModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(m.theme.ColorWork))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.ColorHelp))
	return "\n" + titleStyle.Render("  "+m.title) + " " + m.input.View() + "\n\n" +
		dimStyle.Render("  enter confirm · esc back") + "\n"
}

// Prompt asks for one line of text.
func Prompt(title, placeholder string, theme config.ThemeConfig) (string, error) {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 120
	ti.Width = 50
	ti.Focus()

	result, err := tea.NewProgram(textPromptModel{title: title, input: ti, theme: theme}).Run()
	if err != nil {
		return "", err
	}
	final := result.(textPromptModel)
	if final.aborted {
		return "", ErrAborted
	}
	return strings.TrimSpace(final.input.Value()), nil
}
