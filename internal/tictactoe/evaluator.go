package tictactoe

import "github.com/rocketscienceinc/gravity-tictactoe/internal/entity"

// WinningLine - returns the first completed line in scan order.
func WinningLine(board entity.Board) (entity.Line, bool) {
	for _, line := range entity.Lines {
		a, b, c := board[line.Cells[0]], board[line.Cells[1]], board[line.Cells[2]]
		if a != entity.EmptyCell && a == b && b == c {
			return line, true
		}
	}

	return entity.Line{}, false
}

// WinningMark - returns the mark owning a completed line, or MarkNone.
func WinningMark(board entity.Board) entity.Mark {
	line, ok := WinningLine(board)
	if !ok {
		return entity.MarkNone
	}

	return board[line.Center]
}

func IsFull(board entity.Board) bool {
	for _, cell := range board {
		if cell == entity.EmptyCell {
			return false
		}
	}

	return true
}

// LegalMoves - returns the empty cells in ascending order.
func LegalMoves(board entity.Board) []int {
	moves := make([]int, 0, len(board))
	for i, cell := range board {
		if cell == entity.EmptyCell {
			moves = append(moves, i)
		}
	}

	return moves
}
