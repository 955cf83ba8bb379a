package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/connect4/rules"
	"github.com/brensch/connect4/selfplay"
)

type doneMsg struct{ err error }

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type progressModel struct {
	startTime time.Time
	games     int
	plies     int
	outcomes  map[rules.Outcome]int
	recent    []string
	updates   <-chan selfplay.GameSummary
	done      <-chan error
	finished  bool
	err       error
}

func newProgressModel(updates <-chan selfplay.GameSummary, done <-chan error) progressModel {
	return progressModel{
		startTime: time.Now(),
		outcomes:  map[rules.Outcome]int{},
		updates:   updates,
		done:      done,
	}
}

func waitForUpdate(updates <-chan selfplay.GameSummary, done <-chan error) tea.Cmd {
	return func() tea.Msg {
		select {
		case u := <-updates:
			return u
		case err := <-done:
			return doneMsg{err: err}
		}
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates, m.done), tickCmd())
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		if m.finished {
			return m, nil
		}
		return m, tickCmd()
	case selfplay.GameSummary:
		m.games++
		m.plies += msg.Plies
		m.outcomes[msg.Outcome]++
		line := fmt.Sprintf("%s: %s started, %s after %d plies (%s)", msg.ID[:8], msg.Starter, msg.Outcome, msg.Plies, msg.Duration.Round(time.Millisecond))
		m.recent = append([]string{line}, m.recent...)
		if len(m.recent) > 10 {
			m.recent = m.recent[:10]
		}
		return m, waitForUpdate(m.updates, m.done)
	case doneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	duration := time.Since(m.startTime)
	gamesPerSec := 0.0
	if duration.Seconds() >= 1 {
		gamesPerSec = float64(m.games) / duration.Seconds()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Games Played:   %d\n", m.games)
	fmt.Fprintf(&b, "Total Plies:    %d\n", m.plies)
	fmt.Fprintf(&b, "Duration:       %s\n", duration.Round(time.Second))
	fmt.Fprintf(&b, "Games/Sec:      %.2f\n", gamesPerSec)
	fmt.Fprintf(&b, "Computer wins:  %d\n", m.outcomes[rules.ComputerWin])
	fmt.Fprintf(&b, "Human wins:     %d\n", m.outcomes[rules.HumanWin])
	fmt.Fprintf(&b, "Draws:          %d\n\n", m.outcomes[rules.Draw])

	b.WriteString("Recent Games:\n")
	for _, g := range m.recent {
		b.WriteString(g + "\n")
	}
	if m.err != nil {
		fmt.Fprintf(&b, "\nError: %v\n", m.err)
	}
	b.WriteString("\nPress q to quit.\n")
	return b.String()
}
