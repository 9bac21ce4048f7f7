package service

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/gravity-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/entity"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/tictactoe"
)

var ErrBotNotFound = errors.New("bot player not found")

type BotService interface {
	MakeTurn(ctrl MatchController) (tictactoe.MoveResult, error)
}

// MatchController is the part of *tictactoe.MatchController the bot needs.
type MatchController interface {
	Snapshot() *entity.Match
	ApplyMoveAt(generation uint64, index int, mark entity.Mark) (tictactoe.MoveResult, error)
}

type searchEngine interface {
	ChooseMove(board entity.Board, self, opponent entity.Mark, mistakeProbability float64) (int, error)
	ChooseCappedMove(board entity.Board, moves entity.Moves, limit int, self, opponent entity.Mark, mistakeProbability float64) (int, error)
}

type botService struct {
	logger *slog.Logger
	engine searchEngine
}

func NewBotService(logger *slog.Logger, engine searchEngine) BotService {
	return &botService{
		logger: logger.With("component", "bot"),
		engine: engine,
	}
}

// MakeTurn - searches a private snapshot and applies the answer only if the
// match is still in the same round.
func (that *botService) MakeTurn(ctrl MatchController) (tictactoe.MoveResult, error) {
	snapshot := ctrl.Snapshot()
	log := that.logger.With("gameID", snapshot.ID, "generation", snapshot.Generation)

	bot, ok := snapshot.Bot()
	if !ok {
		return tictactoe.MoveResult{}, fmt.Errorf("%w: game id %s", ErrBotNotFound, snapshot.ID)
	}

	if !snapshot.IsOngoing() || snapshot.Turn != bot.Mark {
		return tictactoe.MoveResult{}, apperror.ErrNotBotTurn
	}

	probability := snapshot.Difficulty.MistakeProbability()

	cell, err := that.chooseMove(snapshot, bot.Mark, probability)
	if err != nil {
		if errors.Is(err, apperror.ErrInvalidState) {
			log.Error("search called without legal moves", "board", snapshot.Board)
		}

		return tictactoe.MoveResult{}, fmt.Errorf("bot failed to choose move: %w", err)
	}

	result, err := ctrl.ApplyMoveAt(snapshot.Generation, cell, bot.Mark)
	if err != nil {
		if errors.Is(err, apperror.ErrStaleGeneration) {
			log.Debug("dropped stale bot move", "cell", cell)
		}

		return result, fmt.Errorf("bot failed to make turn: %w", err)
	}

	log.Debug("bot made turn", "cell", cell, "mark", bot.Mark)

	return result, nil
}

// chooseMove - searches with the rules of the match variant.
func (that *botService) chooseMove(snapshot *entity.Match, mark entity.Mark, probability float64) (int, error) {
	if limit := snapshot.Variant.Cap(); limit > 0 {
		return that.engine.ChooseCappedMove(snapshot.Board, snapshot.Moves, limit, mark, mark.Opponent(), probability)
	}

	return that.engine.ChooseMove(snapshot.Board, mark, mark.Opponent(), probability)
}
