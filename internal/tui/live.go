// Package tui renders a live tuning session in the terminal: process
// value and error charts, the active gains, and a rolling round log.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/kingston115/pidtune/internal/control"
	"github.com/kingston115/pidtune/internal/telemetry"
	"github.com/kingston115/pidtune/internal/tune"
)

const (
	chartWidth      = 60
	historyCapacity = 600
	roundLogSize    = 6
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	chartStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 2)
	statsStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(1, 2).Width(42)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	roundStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

// Session events delivered to the UI as bubbletea messages.
type (
	TickEvent struct {
		Sample telemetry.Sample
		Gains  control.Gains
	}
	RoundEvent struct{ Round tune.Round }
	FinishEvent struct{ Report tune.Report }
)

// ChannelObserver forwards orchestrator events into the UI without
// blocking the control loop; events are dropped when the UI lags.
type ChannelObserver struct {
	events chan tea.Msg
}

func NewChannelObserver() *ChannelObserver {
	return &ChannelObserver{events: make(chan tea.Msg, 256)}
}

func (c *ChannelObserver) Events() <-chan tea.Msg { return c.events }

func (c *ChannelObserver) send(msg tea.Msg) {
	select {
	case c.events <- msg:
	default:
	}
}

func (c *ChannelObserver) OnTick(s telemetry.Sample, g control.Gains) {
	c.send(TickEvent{Sample: s, Gains: g})
}
func (c *ChannelObserver) OnRound(r tune.Round)   { c.send(RoundEvent{Round: r}) }
func (c *ChannelObserver) OnFinish(r tune.Report) { c.send(FinishEvent{Report: r}) }

// Model is the bubbletea model for a live session.
type Model struct {
	events <-chan tea.Msg
	cancel context.CancelFunc

	setpoint float64
	measured []float64
	errs     []float64
	output   float64
	elapsed  float64
	gains    control.Gains
	ticks    int
	rounds   []tune.Round
	report   *tune.Report
}

func NewModel(events <-chan tea.Msg, cancel context.CancelFunc, setpoint float64) Model {
	return Model{
		events:   events,
		cancel:   cancel,
		setpoint: setpoint,
		measured: make([]float64, 0, historyCapacity),
		errs:     make([]float64, 0, historyCapacity),
	}
}

func (m Model) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg { return <-m.events }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		}

	case TickEvent:
		m.measured = append(m.measured, msg.Sample.Measured)
		m.errs = append(m.errs, msg.Sample.Error)
		if len(m.measured) > historyCapacity {
			m.measured = m.measured[1:]
			m.errs = m.errs[1:]
		}
		m.output = msg.Sample.Output
		m.elapsed = msg.Sample.Elapsed.Seconds()
		m.gains = msg.Gains
		m.ticks++
		return m, m.waitForEvent()

	case RoundEvent:
		m.rounds = append(m.rounds, msg.Round)
		if len(m.rounds) > roundLogSize {
			m.rounds = m.rounds[1:]
		}
		if msg.Round.Outcome == tune.OutcomeApplied || msg.Round.Outcome == tune.OutcomeConverged {
			m.gains = msg.Round.Gains
		}
		return m, m.waitForEvent()

	case FinishEvent:
		rep := msg.Report
		m.report = &rep
		return m, m.waitForEvent()
	}
	return m, nil
}

func (m Model) View() string {
	var charts strings.Builder
	if len(m.measured) > 1 {
		charts.WriteString(asciigraph.Plot(m.measured,
			asciigraph.Height(8), asciigraph.Width(chartWidth),
			asciigraph.Caption(fmt.Sprintf("measured (setpoint %.1f)", m.setpoint))))
		charts.WriteString("\n\n")
		charts.WriteString(asciigraph.Plot(m.errs,
			asciigraph.Height(4), asciigraph.Width(chartWidth),
			asciigraph.Caption("error")))
	} else {
		charts.WriteString("collecting telemetry...")
	}
	chartView := chartStyle.Render(charts.String())

	var s strings.Builder
	s.WriteString(headerStyle.Render("PID TUNING") + "\n")
	s.WriteString(m.statusLine() + "\n\n")

	s.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.1fs", m.elapsed)) + "\n")
	s.WriteString(labelStyle.Render("Output") + valueStyle.Render(fmt.Sprintf("%.1f", m.output)) + "\n")
	s.WriteString(labelStyle.Render("Ticks") + valueStyle.Render(fmt.Sprintf("%d", m.ticks)) + "\n")
	s.WriteString(labelStyle.Render("Gains") + valueStyle.Render(
		fmt.Sprintf("P=%.3f I=%.3f D=%.3f", m.gains.Kp, m.gains.Ki, m.gains.Kd)) + "\n")

	s.WriteString("\nROUNDS\n")
	if len(m.rounds) == 0 {
		s.WriteString(labelStyle.Render("  (none yet)") + "\n")
	}
	for _, r := range m.rounds {
		line := fmt.Sprintf("#%d %-15s mean=%.2f", r.Number, r.Outcome, r.MeanAbsError)
		s.WriteString(roundStyle.Render(line) + "\n")
	}

	s.WriteString(helpStyle.Render("\nQ: stop session"))
	statsView := statsStyle.Render(s.String())

	return lipgloss.JoinHorizontal(lipgloss.Top, chartView, statsView)
}

func (m Model) statusLine() string {
	if m.report == nil {
		return "RUNNING"
	}
	line := fmt.Sprintf("%s after %d rounds", m.report.State, m.report.Rounds)
	if m.report.State == tune.StateConverged {
		return doneStyle.Render(line)
	}
	return line
}
