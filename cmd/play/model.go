package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/connect4/game"
	"github.com/brensch/connect4/mcts"
	"github.com/brensch/connect4/rules"
)

type engineMoveMsg struct {
	move game.Move
	res  mcts.Result
	err  error
}

type model struct {
	ctx    context.Context
	engine *mcts.Engine
	pos    *game.Position

	thinking bool
	status   string
	last     *mcts.Result
	outcome  rules.Outcome
	err      error
}

func newModel(ctx context.Context, engine *mcts.Engine, start game.Side) model {
	return model{ctx: ctx, engine: engine, pos: game.Initial(start)}
}

func (m model) Init() tea.Cmd {
	if m.pos.Turn == game.Computer {
		return m.think()
	}
	return nil
}

// think searches on a copy so the view can keep reading m.pos.
func (m model) think() tea.Cmd {
	pos := m.pos.Clone()
	eng := m.engine
	ctx := m.ctx
	return func() tea.Msg {
		mv, res, err := eng.ChooseMove(ctx, pos)
		return engineMoveMsg{move: mv, res: res, err: err}
	}
}

func (m model) over() bool { return m.outcome != rules.Ongoing || m.err != nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		if m.over() {
			return m, tea.Quit
		}
		if m.thinking || m.pos.Turn != game.Human {
			return m, nil
		}
		mv, err := game.ParseMove(msg.String())
		if err != nil {
			m.status = fmt.Sprintf("Press 1-%d to drop a disc.", game.Cols)
			return m, nil
		}
		if !m.pos.Apply(mv) {
			m.status = fmt.Sprintf("Column %d is full, pick another.", int(mv)+1)
			return m, nil
		}
		m.status = ""
		if m.outcome = rules.Evaluate(m.pos); m.outcome != rules.Ongoing {
			return m, nil
		}
		m.thinking = true
		return m, m.think()

	case engineMoveMsg:
		m.thinking = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		if !m.pos.Apply(msg.move) {
			m.err = fmt.Errorf("engine played full column %d", int(msg.move)+1)
			return m, nil
		}
		res := msg.res
		m.last = &res
		m.outcome = rules.Evaluate(m.pos)
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString("Connect 4: you are X, the computer is O\n\n")
	b.WriteString(game.Render(m.pos))
	b.WriteString("\n")

	if m.last != nil {
		how := fmt.Sprintf("%d simulations, %.1f%% computer wins", m.last.Simulations, m.last.WinRate)
		if m.last.ShortCircuit {
			how = "immediate win"
		}
		fmt.Fprintf(&b, "Computer played column %d (%s)\n", int(m.last.Move)+1, how)
	}

	switch {
	case m.err != nil:
		fmt.Fprintf(&b, "Error: %v\n", m.err)
	case m.outcome == rules.ComputerWin:
		b.WriteString("The computer won.\n")
	case m.outcome == rules.HumanWin:
		b.WriteString("You won!\n")
	case m.outcome == rules.Draw:
		b.WriteString("Draw: the board is full.\n")
	case m.thinking:
		b.WriteString("Computer is thinking...\n")
	default:
		fmt.Fprintf(&b, "Your move (1-%d).\n", game.Cols)
	}
	if m.status != "" {
		b.WriteString(m.status + "\n")
	}

	if m.over() {
		b.WriteString("\nPress any key to exit.\n")
	} else {
		b.WriteString("\nPress q to quit.\n")
	}
	return b.String()
}
