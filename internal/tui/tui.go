package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/dgtool/model"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))            // Green
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))           // Orange
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// Executor is the work the view waits on.
type Executor interface {
	SetProgressCallback(model.ProgressUpdate)
	Execute(ctx context.Context) (model.Summary, error)
}

// --- Messages ---
type summaryMsg struct {
	model.Summary
}

type errorMsg struct {
	model.Summary
	err error
}

type progressMsg struct {
	current, total int
	name           string
}

// --- Model ---
type Model struct {
	ctx     context.Context
	cancel  context.CancelFunc
	exec    Executor
	spinner spinner.Model
	state   state
	title   string
	stage   progressMsg
	done    []string
	summary model.Summary
	err     error
	program *tea.Program
}

type state int

const (
	stateProcessing state = iota
	stateSummary
	stateError
)

// New returns a view that runs exec and shows its stages as they start.
func New(ctx context.Context, exec Executor, title string) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	ctx, cancel := context.WithCancel(ctx)
	return &Model{
		ctx:     ctx,
		cancel:  cancel,
		exec:    exec,
		spinner: s,
		state:   stateProcessing,
		title:   title,
	}
}

// SetProgram wires stage updates into p. It must be called before p.Run.
func (m *Model) SetProgram(p *tea.Program) {
	m.program = p
	m.exec.SetProgressCallback(func(current, total int, name string) {
		p.Send(progressMsg{current: current, total: total, name: name})
	})
}

// Err returns the error the executor finished with, if any.
func (m *Model) Err() error { return m.err }

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runApp)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			// Stop running tools; runApp reports the cancellation.
			m.cancel()
		}

	case progressMsg:
		if m.stage.name != "" {
			m.done = append(m.done, m.stage.name)
		}
		m.stage = msg

	case summaryMsg:
		m.state = stateSummary
		m.summary = msg.Summary
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.summary = msg.Summary
		m.err = msg.err
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == stateProcessing {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m *Model) View() string {
	switch m.state {
	case stateProcessing:
		return m.renderProgress()
	case stateError:
		return m.renderProgress() + errorStyle.Render("Error: "+m.err.Error()) + "\n"
	case stateSummary:
		return m.renderSummary()
	default:
		return ""
	}
}

func (m *Model) renderProgress() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(m.title))
	b.WriteString("\n")
	for _, name := range m.done {
		b.WriteString(successStyle.Render("✓ "))
		b.WriteString(faintStyle.Render(name))
		b.WriteString("\n")
	}
	if m.state == stateProcessing {
		if m.stage.name == "" {
			b.WriteString(fmt.Sprintf("%s Starting...\n", m.spinner.View()))
		} else {
			b.WriteString(fmt.Sprintf("%s [%d/%d] %s...\n", m.spinner.View(), m.stage.current, m.stage.total, m.stage.name))
		}
	} else if m.stage.name != "" {
		b.WriteString(errorStyle.Render("✗ " + m.stage.name))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderSummary() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(m.title))
	b.WriteString("\n")
	if m.summary.Message != "" {
		b.WriteString(m.summary.Message)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	section := func(style lipgloss.Style, label string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString(style.Render(label + ":"))
		b.WriteString("\n")
		for _, f := range items {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	section(successStyle, "Done", m.summary.Done)
	section(warningStyle, "Skipped", m.summary.Skipped)
	section(errorStyle, "Failed", m.summary.Failed)

	if m.summary.Empty() && m.summary.Message == "" {
		b.WriteString(faintStyle.Render("Nothing to do."))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) runApp() tea.Msg {
	defer m.cancel()
	summary, err := m.exec.Execute(m.ctx)
	if err != nil {
		return errorMsg{Summary: summary, err: err}
	}
	return summaryMsg{Summary: summary}
}
