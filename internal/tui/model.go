// Package tui is the interactive two-pane view of a generation run.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/muhammadolammi/coverletter/internal/domain"
	"github.com/muhammadolammi/coverletter/internal/generation"
	"github.com/muhammadolammi/coverletter/internal/session"
)

// UI configuration constants
const (
	defaultWindowWidth  = 120
	defaultWindowHeight = 40
	eventBuffer         = 256
	chromeHeight        = 6 // header, pane title, borders, help
	minPaneHeight       = 5
	minPaneWidth        = 20
)

// Style definitions
var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	focusedPaneStyle = paneStyle.BorderForeground(lipgloss.Color("63"))
)

// Generator runs one generation flow into the given sinks.
type Generator interface {
	Generate(ctx context.Context, st *session.State, sinks generation.Sinks) (generation.Report, error)
}

type paneState int

const (
	paneWaiting paneState = iota
	paneStreaming
	paneDone
)

type pane struct {
	title   string
	view    viewport.Model
	content *strings.Builder
	state   paneState
	err     error
}

func newPane(title string) pane {
	return pane{
		title:   title,
		view:    viewport.New(defaultWindowWidth/2-4, defaultWindowHeight-chromeHeight),
		content: &strings.Builder{},
	}
}

// Model is the Bubble Tea model of the generation screen.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	gen    Generator
	st     *session.State

	events   chan tea.Msg
	quit     chan struct{}
	quitOnce *sync.Once

	panes   [2]pane
	focus   paneID
	run     int
	running bool
	notice  string
	runErr  error

	renderer *glamour.TermRenderer
	width    int
	height   int
	initCmd  tea.Cmd
}

// New builds the model. When st is ready the first run is started by Init;
// otherwise the model only shows what is missing.
func New(ctx context.Context, gen Generator, st *session.State) Model {
	ctx, cancel := context.WithCancel(ctx)
	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(defaultWindowWidth/2-6),
	)
	m := Model{
		ctx:      ctx,
		cancel:   cancel,
		gen:      gen,
		st:       st,
		events:   make(chan tea.Msg, eventBuffer),
		quit:     make(chan struct{}),
		quitOnce: &sync.Once{},
		panes:    [2]pane{newPane("Key points"), newPane("Cover Letter")},
		renderer: r,
		width:    defaultWindowWidth,
		height:   defaultWindowHeight,
	}
	if err := st.Validate(); err != nil {
		m.runErr = err
		m.notice = sessionNotice(err)
	} else {
		m.initCmd = m.start()
	}
	return m
}

// Run starts the TUI program and blocks until the user quits.
func Run(ctx context.Context, gen Generator, st *session.State) error {
	m := New(ctx, gen, st)
	program := tea.NewProgram(m, tea.WithAltScreen())
	_, err := program.Run()
	m.shutdown()
	return err
}

// Init initializes the model (Bubble Tea interface)
func (m Model) Init() tea.Cmd {
	return m.initCmd
}

// start resets both panes and returns the commands of a fresh run.
func (m *Model) start() tea.Cmd {
	m.run++
	m.running = true
	m.runErr = nil
	m.notice = ""
	for i := range m.panes {
		p := newPane(m.panes[i].title)
		p.view.Width, p.view.Height = m.panes[i].view.Width, m.panes[i].view.Height
		m.panes[i] = p
	}

	run := m.run
	sinks := generation.Sinks{
		Links:       &paneSink{pane: paneLinks, run: run, events: m.events, quit: m.quit},
		CoverLetter: &paneSink{pane: paneLetter, run: run, events: m.events, quit: m.quit},
	}
	gen, st, ctx := m.gen, m.st, m.ctx
	generate := func() tea.Msg {
		_, err := gen.Generate(ctx, st, sinks)
		return runDoneMsg{run: run, err: err}
	}
	return tea.Batch(generate, waitForEvent(m.events, m.quit))
}

func (m Model) finished() bool {
	return m.panes[paneLinks].state == paneDone && m.panes[paneLetter].state == paneDone
}

func (m *Model) shutdown() {
	m.quitOnce.Do(func() {
		close(m.quit)
		m.cancel()
	})
}

// Update processes messages and updates the model (Bubble Tea interface)
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.shutdown()
			return m, tea.Quit
		case "ctrl+r":
			if !m.running && m.st.Ready() {
				cmds = append(cmds, m.start())
			}
		case "tab":
			m.focus = 1 - m.focus
		default:
			var cmd tea.Cmd
			m.panes[m.focus].view, cmd = m.panes[m.focus].view.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.handleWindowResize(msg)

	case fragmentMsg:
		if msg.run == m.run {
			p := &m.panes[msg.pane]
			p.state = paneStreaming
			p.content.WriteString(msg.text)
			m.refreshPane(msg.pane)
		}
		cmds = append(cmds, waitForEvent(m.events, m.quit))

	case paneErrMsg:
		if msg.run == m.run {
			m.panes[msg.pane].err = msg.err
			m.refreshPane(msg.pane)
		}
		cmds = append(cmds, waitForEvent(m.events, m.quit))

	case paneDoneMsg:
		if msg.run == m.run {
			m.panes[msg.pane].state = paneDone
			m.refreshPane(msg.pane)
			if m.finished() {
				m.running = false
			}
		}
		if !m.finished() {
			cmds = append(cmds, waitForEvent(m.events, m.quit))
		}

	case runDoneMsg:
		if msg.run == m.run && msg.err != nil {
			// nothing was dispatched
			m.running = false
			m.runErr = msg.err
			m.notice = sessionNotice(msg.err)
		}
	}

	return m, tea.Batch(cmds...)
}

// handleWindowResize splits the window into two equal panes
func (m *Model) handleWindowResize(msg tea.WindowSizeMsg) {
	m.width, m.height = msg.Width, msg.Height

	w := msg.Width/2 - paneStyle.GetHorizontalFrameSize()
	if w < minPaneWidth {
		w = minPaneWidth
	}
	h := msg.Height - chromeHeight
	if h < minPaneHeight {
		h = minPaneHeight
	}
	for i := range m.panes {
		m.panes[i].view.Width = w
		m.panes[i].view.Height = h
	}

	m.renderer, _ = glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(w-2),
	)
	m.refreshPane(paneLinks)
	m.refreshPane(paneLetter)
}

// refreshPane refreshes the display content of one pane. A finished pane
// without errors is rendered as markdown.
func (m *Model) refreshPane(id paneID) {
	p := &m.panes[id]
	display := p.content.String()

	if p.state == paneDone && p.err == nil && m.renderer != nil {
		if out, err := m.renderer.Render(display); err == nil {
			display = out
		}
	} else if p.view.Width > 0 {
		display = lipgloss.NewStyle().Width(p.view.Width).Render(display)
	}
	if p.err != nil {
		display += "\n\n" + errorStyle.Render(generation.ErrorMarker(p.err))
	}

	p.view.SetContent(display)
	if p.state != paneDone {
		p.view.GotoBottom()
	}
}

// View renders the UI (Bubble Tea interface)
func (m Model) View() string {
	status := accentStyle.Render("coverletter")
	switch {
	case m.notice != "":
		status += " " + infoStyle.Render(m.notice)
	case m.running:
		status += dimStyle.Render(" • generating...")
	case m.finished():
		status += dimStyle.Render(" • done")
	}

	var views []string
	for i, p := range m.panes {
		style := paneStyle
		if paneID(i) == m.focus {
			style = focusedPaneStyle
		}
		title := boldStyle.Render(p.title) + dimStyle.Render(paneStatus(p))
		views = append(views, style.Render(lipgloss.JoinVertical(lipgloss.Left, title, p.view.View())))
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, views...)

	help := "tab switch pane • ↑↓ scroll • q quit"
	if !m.running && m.notice == "" {
		help = "ctrl+r regenerate • " + help
	}

	return lipgloss.JoinVertical(lipgloss.Left, status, body, dimStyle.Render(help))
}

func paneStatus(p pane) string {
	switch {
	case p.err != nil:
		return " • failed"
	case p.state == paneDone:
		return " • done"
	case p.state == paneStreaming:
		return " • streaming"
	default:
		return " • waiting"
	}
}

func sessionNotice(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("ℹ %s", domain.UserMessage(err))
}
