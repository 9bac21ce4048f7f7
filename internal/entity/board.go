package entity

// Mark is a player's symbol on the board.
type Mark string

const (
	MarkNone Mark = ""
	MarkX    Mark = "X"
	MarkO    Mark = "O"

	EmptyCell = MarkNone
)

const BoardSize = 9

// Opponent - returns the other mark. MarkNone has no opponent.
func (that Mark) Opponent() Mark {
	switch that {
	case MarkX:
		return MarkO
	case MarkO:
		return MarkX
	default:
		return MarkNone
	}
}

func (that Mark) IsValid() bool {
	return that == MarkX || that == MarkO
}

// Board is a row-major 3x3 grid.
type Board [BoardSize]Mark

type Orientation string

const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
	DiagonalA  Orientation = "diagonal_a"
	DiagonalB  Orientation = "diagonal_b"
)

// Line is one of the eight winning triples.
type Line struct {
	Cells       [3]int      `json:"cells"`
	Center      int         `json:"center"`
	Orientation Orientation `json:"orientation"`
}

// Lines are scanned in this order: rows, columns, then the two diagonals.
var Lines = [8]Line{
	{Cells: [3]int{0, 1, 2}, Center: 1, Orientation: Horizontal},
	{Cells: [3]int{3, 4, 5}, Center: 4, Orientation: Horizontal},
	{Cells: [3]int{6, 7, 8}, Center: 7, Orientation: Horizontal},
	{Cells: [3]int{0, 3, 6}, Center: 3, Orientation: Vertical},
	{Cells: [3]int{1, 4, 7}, Center: 4, Orientation: Vertical},
	{Cells: [3]int{2, 5, 8}, Center: 5, Orientation: Vertical},
	{Cells: [3]int{0, 4, 8}, Center: 4, Orientation: DiagonalA},
	{Cells: [3]int{2, 4, 6}, Center: 4, Orientation: DiagonalB},
}

func IsValidCell(cell int) bool {
	return cell >= 0 && cell < BoardSize
}
