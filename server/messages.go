package server

import "encoding/json"

// Message is the WebSocket envelope in both directions.
type Message struct {
	Type string `json:"type"` // move|state|error|end
	Data any    `json:"data,omitempty"`
}

type inMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type MovePayload struct {
	Col int `json:"col"`
}

type StatePayload struct {
	GameID   string  `json:"game_id"`
	Board    [][]int `json:"board"`
	Turn     string  `json:"turn"`
	Outcome  string  `json:"outcome"`
	LastMove *int    `json:"last_move,omitempty"`
	LastSide string  `json:"last_side,omitempty"`
	// Search statistics of the computer's last move.
	Simulations int     `json:"simulations,omitempty"`
	WinRate     float64 `json:"win_rate,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

type EndPayload struct {
	GameID  string `json:"game_id"`
	Outcome string `json:"outcome"`
	Message string `json:"message"`
}

// MoveRequest asks for the engine's move in an arbitrary position.
type MoveRequest struct {
	Board    [][]int `json:"board" binding:"required"`
	Turn     string  `json:"turn"`
	BudgetMS int     `json:"budget_ms"`
}

type MoveResponse struct {
	Column       int     `json:"column"`
	Simulations  int     `json:"simulations"`
	WinRate      float64 `json:"win_rate"`
	ShortCircuit bool    `json:"short_circuit"`
	ElapsedMS    int64   `json:"elapsed_ms"`
}
