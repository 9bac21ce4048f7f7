package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/gravity-tictactoe/internal/entity"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/tictactoe"
)

const (
	actionConnect     = "connect"
	actionGameNew     = "game:new"
	actionGameJoin    = "game:join"
	actionGameTurn    = "game:turn"
	actionGameRematch = "game:rematch"
	actionGameLeave   = "game:leave"
	actionGameEvent   = "game:event"
	actionError       = "error"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Payload struct {
	Player *entity.Player        `json:"player,omitempty"`
	Game   *entity.Match         `json:"game,omitempty"`
	Cell   *int                  `json:"cell,omitempty"`
	Result *tictactoe.MoveResult `json:"result,omitempty"`
	Event  *tictactoe.Event      `json:"event,omitempty"`
	Error  string                `json:"error,omitempty"`
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func encodeMessage(action string, payload Payload) []byte {
	return mustMarshal(Message{
		Action:  action,
		Payload: json.RawMessage(mustMarshal(payload)),
	})
}
