package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muhammadolammi/coverletter/internal/domain"
	"github.com/muhammadolammi/coverletter/internal/generation"
	"github.com/muhammadolammi/coverletter/internal/session"
)

// scriptedGenerator writes fixed output into the sinks.
type scriptedGenerator struct {
	links  []string
	letter []string
	letErr error
	calls  int
}

func (g *scriptedGenerator) Generate(_ context.Context, st *session.State, sinks generation.Sinks) (generation.Report, error) {
	if err := st.Validate(); err != nil {
		return generation.Report{}, err
	}
	g.calls++
	for _, f := range g.links {
		sinks.Links.Append(f)
	}
	sinks.Links.Close()
	for _, f := range g.letter {
		sinks.CoverLetter.Append(f)
	}
	if g.letErr != nil {
		sinks.CoverLetter.Fail(g.letErr)
	}
	sinks.CoverLetter.Close()
	return generation.Report{}, nil
}

func readySession() *session.State {
	st := session.New("")
	st.SetCV("cv.txt", "Go developer")
	st.SetOffer(strings.Repeat("Backend engineer wanted. ", 6))
	return st
}

// drain runs a full generation synchronously and feeds every event into m.
func drain(t *testing.T, m Model) Model {
	t.Helper()
	_, err := m.gen.Generate(m.ctx, m.st, generation.Sinks{
		Links:       &paneSink{pane: paneLinks, run: m.run, events: m.events, quit: m.quit},
		CoverLetter: &paneSink{pane: paneLetter, run: m.run, events: m.events, quit: m.quit},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for {
		select {
		case msg := <-m.events:
			next, _ := m.Update(msg)
			m = next.(Model)
		default:
			return m
		}
	}
}

func TestPaneSinkForwardsInOrder(t *testing.T) {
	events := make(chan tea.Msg, 8)
	s := &paneSink{pane: paneLetter, run: 3, events: events, quit: make(chan struct{})}
	s.Append("Hel")
	s.Append("lo")
	s.Close()

	want := []tea.Msg{
		fragmentMsg{pane: paneLetter, run: 3, text: "Hel"},
		fragmentMsg{pane: paneLetter, run: 3, text: "lo"},
		paneDoneMsg{pane: paneLetter, run: 3},
	}
	for i, w := range want {
		if got := <-events; got != w {
			t.Fatalf("event %d = %#v, want %#v", i, got, w)
		}
	}
}

func TestPaneSinkDoesNotBlockAfterQuit(t *testing.T) {
	quit := make(chan struct{})
	s := &paneSink{events: make(chan tea.Msg), quit: quit}
	close(quit)

	done := make(chan struct{})
	go func() {
		s.Append("lost")
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sink blocked after quit")
	}
}

func TestModelNotReadyShowsNotice(t *testing.T) {
	gen := &scriptedGenerator{}
	st := session.New("")
	m := New(context.Background(), gen, st)

	if m.Init() != nil {
		t.Fatal("no run may start without a CV and an offer")
	}
	if !strings.Contains(m.View(), "upload your CV first") {
		t.Fatalf("view missing notice:\n%s", m.View())
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	if next.(Model).running || gen.calls != 0 {
		t.Fatal("ctrl+r must not start an unready session")
	}
}

func TestModelStreamsIntoSeparatePanes(t *testing.T) {
	gen := &scriptedGenerator{links: []string{"1. ", "**Go**"}, letter: []string{"Dear ", "team"}}
	m := New(context.Background(), gen, readySession())
	if m.Init() == nil || !m.running {
		t.Fatal("ready session must start a run")
	}

	m = drain(t, m)

	if got := m.panes[paneLinks].content.String(); got != "1. **Go**" {
		t.Errorf("links pane = %q", got)
	}
	if got := m.panes[paneLetter].content.String(); got != "Dear team" {
		t.Errorf("letter pane = %q", got)
	}
	if m.running || !m.finished() {
		t.Fatal("run must be finished once both panes closed")
	}
	view := m.View()
	if !strings.Contains(view, "Key points") || !strings.Contains(view, "Cover Letter") {
		t.Fatalf("view missing pane titles:\n%s", view)
	}
}

func TestModelShowsErrorInFailedPaneOnly(t *testing.T) {
	gen := &scriptedGenerator{
		links:  []string{"1. ok"},
		letter: []string{"Dear "},
		letErr: domain.NewAuthenticationError("invalid Replicate API token", nil),
	}
	m := drain(t, New(context.Background(), gen, readySession()))

	if m.panes[paneLinks].err != nil {
		t.Fatal("links pane must not see the letter failure")
	}
	if !domain.IsAuthenticationFailure(m.panes[paneLetter].err) {
		t.Fatalf("letter err = %v", m.panes[paneLetter].err)
	}
	if !strings.Contains(m.panes[paneLetter].view.View(), "AUTHENTICATION_FAILURE") {
		t.Fatal("failed pane must show the error marker")
	}
}

func TestModelIgnoresStaleRunMessages(t *testing.T) {
	m := New(context.Background(), &scriptedGenerator{}, readySession())
	next, _ := m.Update(fragmentMsg{pane: paneLinks, run: m.run - 1, text: "old"})
	if got := next.(Model).panes[paneLinks].content.String(); got != "" {
		t.Fatalf("stale fragment rendered: %q", got)
	}
}

func TestModelRegenerateAfterFinish(t *testing.T) {
	gen := &scriptedGenerator{links: []string{"a"}, letter: []string{"b"}}
	m := drain(t, New(context.Background(), gen, readySession()))
	first := m.run

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	m = next.(Model)
	if cmd == nil || m.run != first+1 || !m.running {
		t.Fatalf("ctrl+r did not start a new run: run=%d running=%v", m.run, m.running)
	}
	if m.panes[paneLinks].content.Len() != 0 {
		t.Fatal("panes must be cleared for the new run")
	}

	m = drain(t, m)
	if m.panes[paneLetter].content.String() != "b" {
		t.Fatalf("letter = %q", m.panes[paneLetter].content.String())
	}
}

func TestModelQuit(t *testing.T) {
	m := New(context.Background(), &scriptedGenerator{}, readySession())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q must quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q must return tea.Quit")
	}
	select {
	case <-m.quit:
	default:
		t.Fatal("quit channel must be closed")
	}
	if m.ctx.Err() == nil {
		t.Fatal("context must be cancelled on quit")
	}
}

func TestWindowResizeSplitsPanes(t *testing.T) {
	m := New(context.Background(), &scriptedGenerator{}, readySession())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(Model)
	if m.panes[paneLinks].view.Width != m.panes[paneLetter].view.Width {
		t.Fatal("panes must have equal width")
	}
	if m.panes[paneLinks].view.Width >= 50 || m.panes[paneLinks].view.Height != 24 {
		t.Fatalf("pane size = %dx%d", m.panes[paneLinks].view.Width, m.panes[paneLinks].view.Height)
	}
}
