package apperror

import (
	"errors"
	"fmt"
)

// ErrInvalidMove is the family of rejected move requests. Every rejection wraps it.
var ErrInvalidMove = errors.New("invalid move")

var (
	ErrGameFinished     = fmt.Errorf("%w: game is already finished", ErrInvalidMove)
	ErrGameIsNotStarted = fmt.Errorf("%w: game is not started", ErrInvalidMove)
	ErrNotYourTurn      = fmt.Errorf("%w: it's not your turn", ErrInvalidMove)
	ErrCellOccupied     = fmt.Errorf("%w: cell is already occupied", ErrInvalidMove)
	ErrInvalidCell      = fmt.Errorf("%w: invalid cell index", ErrInvalidMove)
	ErrStaleGeneration  = fmt.Errorf("%w: move belongs to a previous round", ErrInvalidMove)
)

var (
	ErrInvalidState       = errors.New("no legal moves left")
	ErrInvalidProbability = errors.New("mistake probability must be within [0, 100]")
)

var (
	ErrNoActiveGames     = errors.New("no active games")
	ErrGameAlreadyExists = errors.New("game already exists")
	ErrGameIsFull        = errors.New("game already has two players")
	ErrGameAlreadyBegun  = errors.New("game has already started")
	ErrNotBotTurn        = errors.New("it's not the bot's turn")
)
