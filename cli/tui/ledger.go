package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/warden/lode"
	"github.com/pithecene-io/warden/types"
)

// LedgerModel is a read-only Bubble Tea model for inspect views.
type LedgerModel struct {
	viewType string
	data     any
	table    table.Model
	width    int
	height   int
	quitting bool
}

// NewLedgerModel creates a ledger model for viewType.
func NewLedgerModel(viewType string, data any) LedgerModel {
	m := LedgerModel{viewType: viewType, data: data}

	var cols []table.Column
	var rows []table.Row
	switch d := data.(type) {
	case *lode.RunLedger:
		cols, rows = iterationTable(d.Iterations)
	case []lode.RunSummary:
		cols, rows = runsTable(d)
	}
	m.table = table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(tableHeight(len(rows), maxTableRows)),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(lipgloss.Color("252")).Bold(true)
	styles.Selected = styles.Selected.Foreground(highlightColor)
	m.table.SetStyles(styles)
	return m
}

// maxTableRows caps the table height before a window size is known.
const maxTableRows = 15

// tableHeight is the table height for n rows, header included.
func tableHeight(n, limit int) int {
	return min(max(n, 1), limit) + 2
}

func iterationTable(recs []types.IterationRecord) ([]table.Column, []table.Row) {
	cols := []table.Column{
		{Title: "#", Width: 4},
		{Title: "Time", Width: 9},
		{Title: "Lines", Width: 6},
		{Title: "Action", Width: 9},
		{Title: "Retries", Width: 7},
		{Title: "Reason", Width: 50},
	}
	rows := make([]table.Row, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", rec.Number),
			rec.Timestamp.Local().Format("15:04:05"),
			fmt.Sprintf("%d", rec.SampleSize),
			rec.Decision.Action.Label(),
			fmt.Sprintf("%d", rec.RetryCount),
			rec.Decision.Reason,
		})
	}
	return cols, rows
}

func runsTable(runs []lode.RunSummary) ([]table.Column, []table.Row) {
	cols := []table.Column{
		{Title: "Run ID", Width: 36},
		{Title: "Started", Width: 19},
		{Title: "Outcome", Width: 14},
		{Title: "Iter", Width: 5},
		{Title: "Duration", Width: 10},
		{Title: "Task", Width: 30},
	}
	rows := make([]table.Row, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, table.Row{
			r.RunID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Outcome,
			fmt.Sprintf("%d", r.Iterations),
			(time.Duration(r.DurationMs) * time.Millisecond).String(),
			truncate(r.Task, 30),
		})
	}
	return cols, rows
}

// Init implements tea.Model.
func (m LedgerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m LedgerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(tableHeight(len(m.table.Rows()), max(msg.Height-16, 1)))
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m LedgerModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewInspectRun:
		content = m.renderRun()
	case ViewInspectRuns:
		content = m.renderRuns()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("↑/↓ scroll • q quit")
	return content + "\n" + help
}

func (m LedgerModel) renderRun() string {
	data, ok := m.data.(*lode.RunLedger)
	if !ok {
		return "Invalid data type for " + ViewInspectRun
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Run " + data.RunID))
	b.WriteString("\n")

	if s := data.Summary; s != nil {
		field(&b, "Task:", ValueStyle.Render(truncate(s.Task, 60)))
		field(&b, "Session:", ValueStyle.Render(s.SessionID))
		field(&b, "Outcome:", OutcomeStyle(s.Outcome).Render(s.Outcome))
		field(&b, "Message:", ValueStyle.Render(s.Message))
		field(&b, "Exit code:", ValueStyle.Render(fmt.Sprintf("%d", s.ExitCode)))
		field(&b, "Started:", ValueStyle.Render(s.StartedAt.Local().Format("2006-01-02 15:04:05")))
		field(&b, "Duration:", ValueStyle.Render((time.Duration(s.DurationMs) * time.Millisecond).String()))
		field(&b, "Lines sampled:", ValueStyle.Render(fmt.Sprintf("%d", s.TotalLinesSampled)))
		field(&b, "Retries:", ValueStyle.Render(fmt.Sprintf("%d", s.TotalRetries)))
	} else {
		b.WriteString(WarningStyle.Render("No run summary recorded (run did not finish cleanly)"))
		b.WriteString("\n")
	}

	header := BoxStyle.Render(strings.TrimRight(b.String(), "\n"))
	if len(data.Iterations) == 0 {
		return header + "\n" + MutedStyle.Render("(no iterations recorded)")
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, m.table.View())
}

func (m LedgerModel) renderRuns() string {
	data, ok := m.data.([]lode.RunSummary)
	if !ok {
		return "Invalid data type for " + ViewInspectRuns
	}

	counts := make(map[types.OutcomeStatus]int)
	for _, r := range data {
		counts[types.OutcomeStatus(r.Outcome)]++
	}
	boxes := lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Runs", len(data), highlightColor),
		renderStatBox("Aborted", counts[types.OutcomeAborted], errorColor),
		renderStatBox("Max iter", counts[types.OutcomeMaxIterations], warningColor),
		renderStatBox("Completed", counts[types.OutcomeCompleted], successColor),
	)

	title := TitleStyle.Render("Recorded Runs")
	if len(data) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, boxes, MutedStyle.Render("(no runs recorded)"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, boxes, m.table.View())
}

func renderStatBox(label string, value int, color lipgloss.Color) string {
	content := StatValueStyle.Render(fmt.Sprintf("%d", value)) + "\n" + StatLabelStyle.Render(label)
	return StatBoxStyle.BorderForeground(color).Render(content)
}

func field(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%s %s\n", LabelStyle.Render(label), value)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

// RunLedgerTUI runs a ledger view in the alternate screen.
func RunLedgerTUI(viewType string, data any) error {
	p := tea.NewProgram(NewLedgerModel(viewType, data), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderLedgerStatic renders a ledger view once, without a terminal program.
func RenderLedgerStatic(viewType string, data any) string {
	m := NewLedgerModel(viewType, data)
	m.width = 100
	m.height = 30
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View())
}
