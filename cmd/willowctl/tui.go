package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/danmuck/willowblossom/internal/bridge"
)

const timelineLimit = 200

type tickMsg time.Time

func tickEvery(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type uiTheme struct {
	header      lipgloss.Style
	panel       lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	help        lipgloss.Style
	states      map[bridge.State]lipgloss.Style
}

func newTheme() uiTheme {
	green := lipgloss.Color("#7bd88f")
	amber := lipgloss.Color("#fcd566")
	red := lipgloss.Color("#fc618d")
	muted := lipgloss.Color("#8b888f")
	return uiTheme{
		header:      lipgloss.NewStyle().Bold(true).Padding(0, 1),
		panel:       lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(muted).Padding(0, 1),
		status:      lipgloss.NewStyle().Foreground(muted),
		errorStatus: lipgloss.NewStyle().Foreground(red).Bold(true),
		help:        lipgloss.NewStyle().Foreground(muted).Italic(true),
		states: map[bridge.State]lipgloss.Style{
			bridge.StateDisconnected: lipgloss.NewStyle().Foreground(muted),
			bridge.StateConnecting:   lipgloss.NewStyle().Foreground(amber),
			bridge.StateConnected:    lipgloss.NewStyle().Foreground(green).Bold(true),
			bridge.StateClosed:       lipgloss.NewStyle().Foreground(red).Bold(true),
		},
	}
}

// model hosts the frame loop: every tickMsg runs one adapter tick on the
// bubbletea update goroutine.
type model struct {
	app      *app
	interval time.Duration
	input    textinput.Model
	timeline viewport.Model
	theme    uiTheme

	lines      []string
	statusLine string
	statusErr  bool
	width      int
	height     int
}

func newModel(a *app) model {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 2000
	input.Placeholder = "message, /restart or /quit"
	input.Focus()

	m := model{
		app:        a,
		interval:   a.cfg.TickInterval,
		input:      input,
		timeline:   viewport.New(80, 20),
		theme:      newTheme(),
		statusLine: "starting",
	}
	for _, e := range a.store.Tail(timelineLimit) {
		m.lines = append(m.lines, e.Line())
	}
	m.renderTimeline()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tickEvery(m.interval))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tickMsg:
		m.tick()
		cmds = append(cmds, tickEvery(m.interval))
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := m.input.Value()
			m.input.SetValue("")
			if cmd := m.handleInput(text); cmd != nil {
				return m, cmd
			}
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) tick() {
	rep := m.app.adapter.Tick()
	added := false
	for _, line := range m.app.takePending() {
		if line == "" {
			continue
		}
		m.lines = append(m.lines, line)
		added = true
	}
	if len(m.lines) > timelineLimit {
		m.lines = m.lines[len(m.lines)-timelineLimit:]
	}
	if added {
		m.renderTimeline()
	}
	switch {
	case rep.Installed:
		m.setStatus("connected", false)
	case rep.Closed:
		cause := "session closed"
		if err := m.app.adapter.Err(); err != nil {
			cause = err.Error()
		}
		m.setStatus(cause+" (/restart to reconnect)", true)
	case rep.State == bridge.StateConnecting && m.statusLine == "starting":
		m.setStatus("connecting to "+m.app.cfg.Endpoint.URL, false)
	}
}

func (m *model) handleInput(text string) tea.Cmd {
	switch strings.TrimSpace(text) {
	case "/quit":
		return tea.Quit
	case "/restart":
		if err := m.app.adapter.Restart(); err != nil {
			m.setStatus(err.Error(), true)
			return nil
		}
		m.setStatus("restarting", false)
		return nil
	}
	if err := m.app.submit(text); err != nil {
		if err != errEmptyInput {
			m.setStatus("send failed: "+err.Error(), true)
		}
		return nil
	}
	m.setStatus("sent", false)
	return nil
}

func (m *model) setStatus(line string, isErr bool) {
	m.statusLine = line
	m.statusErr = isErr
}

func (m *model) resize() {
	width := maxInt(20, m.width-4)
	m.input.Width = maxInt(10, width-4)
	m.timeline.Width = width
	m.timeline.Height = maxInt(5, m.height-8)
	m.renderTimeline()
}

func (m *model) renderTimeline() {
	if len(m.lines) == 0 {
		m.timeline.SetContent(m.theme.help.Render("No messages yet."))
		return
	}
	m.timeline.SetContent(strings.Join(m.lines, "\n"))
	m.timeline.GotoBottom()
}

func (m model) View() string {
	state := m.app.adapter.State()
	snap := m.app.adapter.Snapshot()
	header := m.theme.header.Render(fmt.Sprintf("willowctl  %s  ticks=%d recv=%d sent=%d",
		m.theme.states[state].Render(state.String()), snap.Ticks, snap.Delivered, snap.Sent))

	statusStyle := m.theme.status
	if m.statusErr {
		statusStyle = m.theme.errorStatus
	}
	footer := statusStyle.Render(m.statusLine) + "\n" +
		m.theme.help.Render("Enter send · /restart · PgUp/PgDn scroll · Esc quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.theme.panel.Render(m.timeline.View()),
		m.input.View(),
		footer,
	)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func runTUI(ctx context.Context, a *app) error {
	p := tea.NewProgram(newModel(a), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
