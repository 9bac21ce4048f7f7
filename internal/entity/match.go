package entity

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/rocketscienceinc/gravity-tictactoe/internal/apperror"
)

type Status string

const (
	StatusWaiting Status = "waiting"
	StatusOngoing Status = "ongoing"
	StatusWon     Status = "won"
	StatusDrawn   Status = "drawn"
	// StatusAbandoned ends a match that a player left; it cannot be rematched.
	StatusAbandoned Status = "abandoned"
)

const (
	PublicType  = "public"
	PrivateType = "private"
	WithBotType = "bot"
)

type Variant string

const (
	// ClassicVariant places pieces forever; a full board is a draw.
	ClassicVariant Variant = "classic"
	// ExpiringVariant keeps at most PieceCap pieces per mark and evicts the oldest.
	ExpiringVariant Variant = "expiring"
)

const PieceCap = 3

type Difficulty string

const (
	EasyDifficulty   Difficulty = "easy"
	MediumDifficulty Difficulty = "medium"
	HardDifficulty   Difficulty = "hard"
)

var ErrUnknownGameStatus = errors.New("unknown game status")

// MistakeProbability - returns the chance in percent that the bot plays a random move.
func (that Difficulty) MistakeProbability() float64 {
	switch that {
	case EasyDifficulty:
		return 40
	case HardDifficulty:
		return 0
	default:
		return 10
	}
}

func (that Difficulty) IsValid() bool {
	switch that {
	case EasyDifficulty, MediumDifficulty, HardDifficulty:
		return true
	default:
		return false
	}
}

func (that Variant) IsValid() bool {
	return that == ClassicVariant || that == ExpiringVariant
}

func (that Variant) Cap() int {
	if that == ExpiringVariant {
		return PieceCap
	}
	return 0
}

type MoveRecord struct {
	Index int  `json:"index"`
	Mark  Mark `json:"mark"`
}

// Moves holds the placement order of each mark, oldest first.
type Moves struct {
	X []MoveRecord `json:"x"`
	O []MoveRecord `json:"o"`
}

func (that *Moves) For(mark Mark) []MoveRecord {
	if mark == MarkX {
		return that.X
	}
	return that.O
}

func (that *Moves) Set(mark Mark, records []MoveRecord) {
	if mark == MarkX {
		that.X = records
		return
	}
	that.O = records
}

type Scores struct {
	X int `json:"x"`
	O int `json:"o"`
}

func (that *Scores) Increment(mark Mark) {
	switch mark {
	case MarkX:
		that.X++
	case MarkO:
		that.O++
	}
}

// Match is the authoritative state of one match.
type Match struct {
	ID         string     `json:"id"`
	Generation uint64     `json:"generation"`
	Board      Board      `json:"board"`
	Turn       Mark       `json:"player_turn"`
	Moves      Moves      `json:"moves"`
	Winner     Mark       `json:"winner"`
	WinLine    *Line      `json:"win_line,omitempty"`
	Status     Status     `json:"status"`
	Scores     Scores     `json:"scores"`
	Players    []*Player  `json:"players,omitempty"`
	Type       string     `json:"type,omitempty"`
	Variant    Variant    `json:"variant"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
}

func NewMatch(id, gameType string, variant Variant) *Match {
	return &Match{
		ID:      id,
		Turn:    MarkX,
		Status:  StatusWaiting,
		Type:    gameType,
		Variant: variant,
	}
}

// Clone - returns a deep copy that shares nothing with the receiver.
func (that *Match) Clone() *Match {
	clone := *that

	clone.Moves.X = append([]MoveRecord(nil), that.Moves.X...)
	clone.Moves.O = append([]MoveRecord(nil), that.Moves.O...)

	if that.WinLine != nil {
		line := *that.WinLine
		clone.WinLine = &line
	}

	if that.Players != nil {
		clone.Players = make([]*Player, len(that.Players))
		for i, player := range that.Players {
			p := *player
			clone.Players[i] = &p
		}
	}

	return &clone
}

func (that *Match) IsFinished() bool {
	return that.Status == StatusWon || that.Status == StatusDrawn || that.Status == StatusAbandoned
}

func (that *Match) IsOngoing() bool {
	return that.Status == StatusOngoing
}

func (that *Match) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Match) ConfirmOngoingState() error {
	switch {
	case that.IsWaiting():
		return apperror.ErrGameIsNotStarted
	case that.IsFinished():
		return apperror.ErrGameFinished
	case that.IsOngoing():
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownGameStatus, that.Status)
	}
}

func (that *Match) IsPublic() bool {
	return that.Type == PublicType
}

func (that *Match) IsWithBot() bool {
	return that.Type == WithBotType
}

func (that *Match) PlayerByID(id string) (*Player, bool) {
	for _, player := range that.Players {
		if player.ID == id {
			return player, true
		}
	}
	return nil, false
}

func (that *Match) Bot() (*Player, bool) {
	for _, player := range that.Players {
		if player.IsBot() {
			return player, true
		}
	}
	return nil, false
}

// RandomMarks - returns a human mark and a bot mark in random order.
func RandomMarks() (Mark, Mark) {
	if rand.Intn(2) == 0 { //nolint: gosec // it's ok
		return MarkX, MarkO
	}
	return MarkO, MarkX
}
