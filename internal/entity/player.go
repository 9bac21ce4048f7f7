package entity

const botIDPrefix = "bot:"

type Player struct {
	ID     string `json:"id"`
	Mark   Mark   `json:"mark,omitempty"`
	GameID string `json:"game_id,omitempty"`
}

func NewBotPlayer(gameID string, mark Mark) *Player {
	return &Player{
		ID:     botIDPrefix + gameID,
		Mark:   mark,
		GameID: gameID,
	}
}

func (that *Player) IsBot() bool {
	return len(that.ID) > len(botIDPrefix) && that.ID[:len(botIDPrefix)] == botIDPrefix
}

// LeaveGame - detaches the player from its game.
func (that *Player) LeaveGame() {
	that.GameID = ""
	that.Mark = MarkNone
}
