package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

type paneID int

const (
	paneLinks paneID = iota
	paneLetter
)

// Message type definitions
type (
	fragmentMsg struct {
		pane paneID
		run  int
		text string
	}
	paneErrMsg struct {
		pane paneID
		run  int
		err  error
	}
	paneDoneMsg struct {
		pane paneID
		run  int
	}
	runDoneMsg struct {
		run int
		err error
	}
)

// paneSink forwards a task's output to the bubbletea event loop. Sends
// give up once the program has quit so tasks never block on a dead UI.
type paneSink struct {
	pane   paneID
	run    int
	events chan<- tea.Msg
	quit   <-chan struct{}
}

func (s *paneSink) Append(fragment string) {
	s.send(fragmentMsg{pane: s.pane, run: s.run, text: fragment})
}

func (s *paneSink) Fail(err error) {
	s.send(paneErrMsg{pane: s.pane, run: s.run, err: err})
}

func (s *paneSink) Close() {
	s.send(paneDoneMsg{pane: s.pane, run: s.run})
}

func (s *paneSink) send(msg tea.Msg) {
	select {
	case s.events <- msg:
	case <-s.quit:
	}
}

// waitForEvent waits for the next message from either pane
func waitForEvent(events <-chan tea.Msg, quit <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-events:
			return msg
		case <-quit:
			return nil
		}
	}
}
