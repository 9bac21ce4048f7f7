package tictactoe

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/rocketscienceinc/gravity-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/entity"
)

const (
	winScore     = 10
	bestMoveNone = -1
)

// SearchEngine picks moves with an exhaustive minimax search.
// It is safe for concurrent use.
type SearchEngine struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSearchEngine(src rand.Source) *SearchEngine {
	return &SearchEngine{
		rnd: rand.New(src), //nolint: gosec // game randomness
	}
}

// ChooseMove - returns the cell self should play. With probability
// mistakeProbability/100 the answer is a uniformly random legal move.
func (that *SearchEngine) ChooseMove(board entity.Board, self, opponent entity.Mark, mistakeProbability float64) (int, error) {
	if mistakeProbability < 0 || mistakeProbability > 100 {
		return bestMoveNone, fmt.Errorf("%w: got %v", apperror.ErrInvalidProbability, mistakeProbability)
	}

	moves := LegalMoves(board)
	if len(moves) == 0 {
		return bestMoveNone, apperror.ErrInvalidState
	}

	if move, ok := that.mistake(moves, mistakeProbability); ok {
		return move, nil
	}

	bestVal := -1001
	bestMove := bestMoveNone

	for _, move := range moves {
		next := board
		next[move] = self

		if moveVal := Minimax(next, 0, false, self, opponent); moveVal > bestVal {
			bestVal = moveVal
			bestMove = move
		}
	}

	return bestMove, nil
}

func (that *SearchEngine) mistake(moves []int, probability float64) (int, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.rnd.Float64()*100 >= probability {
		return bestMoveNone, false
	}

	return moves[that.rnd.Intn(len(moves))], true
}

// Minimax - scores board from self's point of view. Faster wins and slower
// losses score higher.
func Minimax(board entity.Board, depth int, maximizing bool, self, opponent entity.Mark) int {
	switch WinningMark(board) {
	case self:
		return winScore - depth
	case opponent:
		return depth - winScore
	}

	moves := LegalMoves(board)
	if len(moves) == 0 {
		return 0
	}

	if maximizing {
		best := -1000
		for _, move := range moves {
			next := board
			next[move] = self
			best = max(best, Minimax(next, depth+1, false, self, opponent))
		}
		return best
	}

	best := 1000
	for _, move := range moves {
		next := board
		next[move] = opponent
		best = min(best, Minimax(next, depth+1, true, self, opponent))
	}
	return best
}

// cappedSearchDepth bounds the expiring-variant search, whose game tree has
// no natural end.
const cappedSearchDepth = 7

// ChooseCappedMove - ChooseMove for the expiring variant, where a mark that
// already has limit pieces loses its oldest one when it places another.
// moves holds each mark's pieces oldest first. Lines not decided within
// cappedSearchDepth plies score as a draw.
func (that *SearchEngine) ChooseCappedMove(board entity.Board, moves entity.Moves, limit int, self, opponent entity.Mark, mistakeProbability float64) (int, error) {
	if mistakeProbability < 0 || mistakeProbability > 100 {
		return bestMoveNone, fmt.Errorf("%w: got %v", apperror.ErrInvalidProbability, mistakeProbability)
	}

	legal := LegalMoves(board)
	if len(legal) == 0 {
		return bestMoveNone, apperror.ErrInvalidState
	}

	if move, ok := that.mistake(legal, mistakeProbability); ok {
		return move, nil
	}

	pos := cappedPosition{
		board:    board,
		self:     cellsOf(moves.For(self)),
		opponent: cellsOf(moves.For(opponent)),
	}

	bestVal := -1001
	bestMove := bestMoveNone

	for _, move := range legal {
		next := pos.place(move, true, self, limit)

		if moveVal := cappedMinimax(next, 1, false, self, opponent, limit); moveVal > bestVal {
			bestVal = moveVal
			bestMove = move
		}
	}

	return bestMove, nil
}

// cappedPosition is a board plus the placement order of each side, oldest first.
type cappedPosition struct {
	board    entity.Board
	self     []int
	opponent []int
}

// place - returns the position after mark plays index, evicting the mover's
// oldest piece when it is at the limit. The receiver is not modified.
func (that cappedPosition) place(index int, bySelf bool, mark entity.Mark, limit int) cappedPosition {
	next := that

	queue := that.opponent
	if bySelf {
		queue = that.self
	}
	queue = append([]int(nil), queue...)

	if limit > 0 && len(queue) >= limit {
		next.board[queue[0]] = entity.EmptyCell
		queue = queue[1:]
	}

	next.board[index] = mark
	queue = append(queue, index)

	if bySelf {
		next.self = queue
	} else {
		next.opponent = queue
	}

	return next
}

func cappedMinimax(pos cappedPosition, depth int, maximizing bool, self, opponent entity.Mark, limit int) int {
	switch WinningMark(pos.board) {
	case self:
		return winScore - depth
	case opponent:
		return depth - winScore
	}

	if depth >= cappedSearchDepth {
		return 0
	}

	moves := LegalMoves(pos.board)
	if len(moves) == 0 {
		return 0
	}

	if maximizing {
		best := -1000
		for _, move := range moves {
			best = max(best, cappedMinimax(pos.place(move, true, self, limit), depth+1, false, self, opponent, limit))
		}
		return best
	}

	best := 1000
	for _, move := range moves {
		best = min(best, cappedMinimax(pos.place(move, false, opponent, limit), depth+1, true, self, opponent, limit))
	}
	return best
}

func cellsOf(records []entity.MoveRecord) []int {
	cells := make([]int, 0, len(records))
	for _, record := range records {
		cells = append(cells, record.Index)
	}

	return cells
}
