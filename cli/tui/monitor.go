package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/warden/runtime"
	"github.com/pithecene-io/warden/state"
	"github.com/pithecene-io/warden/types"
)

// Monitor defaults.
const (
	// MaxOutputLines is how many worker output lines the monitor keeps.
	MaxOutputLines = 100
	// DefaultLinger keeps the final screen visible after the run ends.
	DefaultLinger = 3 * time.Second
)

// MonitorOptions configures the live run monitor.
type MonitorOptions struct {
	RunID         string
	Task          string
	MaxIterations int
	// Notifications is the observer channel fed by the control loop.
	Notifications <-chan runtime.Notification
	// Interrupt is called once when the user quits before the run ends.
	Interrupt func()
	// Linger is how long the final screen stays up (default 3s, <0 disables).
	Linger time.Duration
}

// FinishedMsg tells the monitor the run is over.
type FinishedMsg struct {
	Outcome string
	Message string
	Err     error
}

// notificationMsg wraps a control loop notification.
type notificationMsg struct {
	n runtime.Notification
}

// channelClosedMsg reports that the notification channel closed.
type channelClosedMsg struct{}

// lingerDoneMsg ends the program after the final screen.
type lingerDoneMsg struct{}

// activityLine is one rendered decision.
type activityLine struct {
	text   string
	action types.Action
}

// monitorState is the pure, testable part of the monitor.
type monitorState struct {
	output        []string
	activity      []activityLine
	status        string
	iteration     int
	maxIterations int
	continues     int
	aborts        int
	finished      bool
	result        string
	resultOutcome string
}

func newMonitorState(maxIterations int) monitorState {
	return monitorState{status: "Initializing...", maxIterations: maxIterations}
}

// apply folds one notification into the state.
func (s monitorState) apply(n runtime.Notification) monitorState {
	if n.Iteration > s.iteration {
		s.iteration = n.Iteration
	}
	switch n.Kind {
	case runtime.NotificationWorkerOutput:
		for line := range strings.SplitSeq(strings.TrimRight(n.Text, "\n"), "\n") {
			s.output = append(s.output, line)
		}
		if over := len(s.output) - MaxOutputLines; over > 0 {
			s.output = append([]string(nil), s.output[over:]...)
		}
	case runtime.NotificationDecision:
		if n.Record == nil {
			return s
		}
		rec := *n.Record
		s.activity = append(s.activity, activityLine{
			text:   state.FormatActivity(rec, s.iteration),
			action: rec.Decision.Action,
		})
		if rec.Decision.Action == types.ActionAbort {
			s.aborts++
		} else {
			s.continues++
		}
		s.status = fmt.Sprintf("%s: %s", rec.Decision.Action.Label(), rec.Decision.Reason)
	case runtime.NotificationStatus:
		s.status = n.Text
	}
	return s
}

func (s monitorState) finish(msg FinishedMsg) monitorState {
	s.finished = true
	switch {
	case msg.Err != nil:
		s.result = "Run failed: " + msg.Err.Error()
		s.resultOutcome = string(types.OutcomeAborted)
	default:
		s.result = fmt.Sprintf("Run finished: %s - %s", msg.Outcome, msg.Message)
		s.resultOutcome = msg.Outcome
	}
	s.status = s.result
	return s
}

// MonitorModel is the live Bubble Tea view of a supervised run.
type MonitorModel struct {
	opts        MonitorOptions
	state       monitorState
	output      viewport.Model
	spinner     spinner.Model
	follow      bool
	interrupted bool
	width       int
	height      int
	ready       bool
}

// NewMonitorModel creates a monitor model.
func NewMonitorModel(opts MonitorOptions) MonitorModel {
	if opts.Linger == 0 {
		opts.Linger = DefaultLinger
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = WarningStyle
	return MonitorModel{
		opts:    opts,
		state:   newMonitorState(opts.MaxIterations),
		output:  viewport.New(80, 10),
		spinner: sp,
		follow:  true,
	}
}

// Init implements tea.Model.
func (m MonitorModel) Init() tea.Cmd {
	return tea.Batch(waitForNotification(m.opts.Notifications), m.spinner.Tick)
}

// waitForNotification blocks until the control loop sends something.
func waitForNotification(ch <-chan runtime.Notification) tea.Cmd {
	return func() tea.Msg {
		if ch == nil {
			return nil
		}
		n, ok := <-ch
		if !ok {
			return channelClosedMsg{}
		}
		return notificationMsg{n: n}
	}
}

// Update implements tea.Model.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			if !m.state.finished && !m.interrupted && m.opts.Interrupt != nil {
				m.interrupted = true
				m.opts.Interrupt()
			}
			return m, tea.Quit
		case key.Matches(msg, keys.Follow):
			m.follow = true
			m.output.GotoBottom()
			return m, nil
		case key.Matches(msg, keys.ScrollUp, keys.ScrollDn):
			m.follow = false
		}
		var cmd tea.Cmd
		m.output, cmd = m.output.Update(msg)
		if m.output.AtBottom() {
			m.follow = true
		}
		return m, cmd

	case notificationMsg:
		m.state = m.state.apply(msg.n)
		m.refreshOutput()
		return m, waitForNotification(m.opts.Notifications)

	case channelClosedMsg:
		return m, nil

	case FinishedMsg:
		m.state = m.state.finish(msg)
		if m.opts.Linger < 0 {
			return m, tea.Quit
		}
		return m, tea.Tick(m.opts.Linger, func(time.Time) tea.Msg { return lingerDoneMsg{} })

	case lingerDoneMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *MonitorModel) layout() {
	// header + status + footer + borders
	const chrome = 8
	leftWidth := max(m.width*6/10-2, 20)
	m.output.Width = leftWidth
	m.output.Height = max(m.height-chrome, 3)
	m.refreshOutput()
}

func (m *MonitorModel) refreshOutput() {
	m.output.SetContent(strings.Join(m.state.output, "\n"))
	if m.follow {
		m.output.GotoBottom()
	}
}

// View implements tea.Model.
func (m MonitorModel) View() string {
	if !m.ready {
		return m.spinner.View() + " Starting warden..."
	}

	header := HeaderStyle.Width(m.width).Render(fmt.Sprintf("warden  run %s  •  iteration %d/%d  •  %d continue / %d abort",
		shortID(m.opts.RunID), m.state.iteration, m.state.maxIterations, m.state.continues, m.state.aborts))
	task := MutedStyle.Render("Task: " + truncate(m.opts.Task, max(m.width-8, 10)))

	outBox := ActiveBoxStyle
	if !m.follow {
		outBox = BoxStyle
	}
	left := outBox.Width(m.output.Width).Render(TitleStyle.MarginBottom(0).Render("Worker output") + "\n" + m.output.View())

	rightWidth := max(m.width-m.output.Width-6, 20)
	right := BoxStyle.Width(rightWidth).Height(m.output.Height + 1).Render(
		TitleStyle.MarginBottom(0).Render("Activity") + "\n" + m.renderActivity(rightWidth, m.output.Height))

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	var status string
	if m.state.finished {
		status = OutcomeStyle(m.state.resultOutcome).Bold(true).Render(m.state.result)
	} else {
		status = m.spinner.View() + " " + ValueStyle.Render(truncate(m.state.status, max(m.width-4, 10)))
	}

	help := HelpStyle.Render("q quit (cancels the run) • ↑/↓ scroll output • f follow")
	return lipgloss.JoinVertical(lipgloss.Left, header, task, body, status, help)
}

func (m MonitorModel) renderActivity(width, height int) string {
	if len(m.state.activity) == 0 {
		return MutedStyle.Render("No iterations yet")
	}
	lines := m.state.activity
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(ActionStyle(line.action).Render(truncate(line.text, width)))
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Monitor owns a running monitor program.
type Monitor struct {
	program *tea.Program
}

// NewMonitor creates a monitor program using the alternate screen.
func NewMonitor(opts MonitorOptions, progOpts ...tea.ProgramOption) *Monitor {
	progOpts = append([]tea.ProgramOption{tea.WithAltScreen()}, progOpts...)
	return &Monitor{program: tea.NewProgram(NewMonitorModel(opts), progOpts...)}
}

// Run blocks until the monitor exits.
func (m *Monitor) Run() error {
	_, err := m.program.Run()
	return err
}

// Finish delivers the run result. Safe to call after the program exited.
func (m *Monitor) Finish(msg FinishedMsg) {
	m.program.Send(msg)
}
