package tictactoe

import (
	"fmt"
	"sync"

	"github.com/rocketscienceinc/gravity-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/entity"
)

const maxPlayers = 2

// StartingMark always opens a rematch.
const StartingMark = entity.MarkX

// Outcome describes where a match stands after a move.
type Outcome struct {
	Status entity.Status `json:"status"`
	Winner entity.Mark   `json:"winner,omitempty"`
	Line   *entity.Line  `json:"line,omitempty"`
}

type MoveResult struct {
	Accepted bool    `json:"accepted"`
	Evicted  *int    `json:"evicted,omitempty"`
	Outcome  Outcome `json:"outcome"`
}

type Option func(match *entity.Match)

func WithVariant(variant entity.Variant) Option {
	return func(match *entity.Match) {
		match.Variant = variant
	}
}

func WithDifficulty(difficulty entity.Difficulty) Option {
	return func(match *entity.Match) {
		match.Difficulty = difficulty
	}
}

// MatchController owns one match and is the only writer of its state.
// Observers may use the read accessors but must not call mutating methods
// from Notify.
type MatchController struct {
	// dispatchMu is taken before mu by every mutation and held until its
	// events are delivered, so batches never interleave.
	dispatchMu sync.Mutex
	observers  []Observer

	mu    sync.Mutex
	match *entity.Match
}

func NewMatchController(id, gameType string, opts ...Option) *MatchController {
	match := entity.NewMatch(id, gameType, entity.ExpiringVariant)
	for _, opt := range opts {
		opt(match)
	}

	return &MatchController{match: match}
}

// RestoreMatchController - rebuilds a controller from a persisted snapshot.
func RestoreMatchController(match *entity.Match) *MatchController {
	return &MatchController{match: match.Clone()}
}

func (that *MatchController) Subscribe(observer Observer) {
	that.dispatchMu.Lock()
	defer that.dispatchMu.Unlock()

	that.observers = append(that.observers, observer)
}

func (that *MatchController) AddPlayer(player *entity.Player) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.match.PlayerByID(player.ID); ok {
		return nil
	}

	if len(that.match.Players) >= maxPlayers {
		return fmt.Errorf("%w: game id %s", apperror.ErrGameIsFull, that.match.ID)
	}

	seated := *player
	that.match.Players = append(that.match.Players, &seated)

	return nil
}

// Start - moves a waiting match into play with startMark to move.
func (that *MatchController) Start(startMark entity.Mark) error {
	that.lock()

	if !that.match.IsWaiting() {
		that.unlock()
		return fmt.Errorf("%w: game id %s", apperror.ErrGameAlreadyBegun, that.match.ID)
	}

	that.match.Status = entity.StatusOngoing
	that.match.Turn = startMark

	events := []Event{
		markEvent(EventStarted, that.match, startMark),
		markEvent(EventTurnChanged, that.match, startMark),
	}

	that.dispatch(events)

	return nil
}

// ApplyMove - validates and applies a move for mark. A rejected move leaves
// the match untouched and emits nothing.
func (that *MatchController) ApplyMove(index int, mark entity.Mark) (MoveResult, error) {
	that.lock()

	result, events, err := that.apply(index, mark)
	if err != nil {
		that.unlock()
		return result, err
	}

	that.dispatch(events)

	return result, nil
}

// ApplyMoveAt - like ApplyMove, but only for the given generation of the match.
func (that *MatchController) ApplyMoveAt(generation uint64, index int, mark entity.Mark) (MoveResult, error) {
	that.lock()

	if that.match.Generation != generation {
		current := that.match.Generation
		that.unlock()
		return MoveResult{}, fmt.Errorf("%w: got %d, current %d", apperror.ErrStaleGeneration, generation, current)
	}

	result, events, err := that.apply(index, mark)
	if err != nil {
		that.unlock()
		return result, err
	}

	that.dispatch(events)

	return result, nil
}

// Rematch - resets the board for a new round. Scores and players survive.
// A match that never started or was abandoned cannot be rematched.
func (that *MatchController) Rematch() error {
	that.lock()

	match := that.match
	switch match.Status {
	case entity.StatusWaiting:
		that.unlock()
		return fmt.Errorf("%w: game id %s", apperror.ErrGameIsNotStarted, match.ID)
	case entity.StatusAbandoned:
		that.unlock()
		return fmt.Errorf("%w: game id %s", apperror.ErrGameFinished, match.ID)
	}

	match.Board = entity.Board{}
	match.Moves = entity.Moves{}
	match.Winner = entity.MarkNone
	match.WinLine = nil
	match.Status = entity.StatusOngoing
	match.Turn = StartingMark
	match.Generation++

	events := []Event{
		markEvent(EventRematch, match, entity.MarkNone),
		markEvent(EventTurnChanged, match, StartingMark),
	}

	that.dispatch(events)

	return nil
}

// Abandon - ends the match for good. Moves computed for the current round
// become stale and later moves are rejected. Nothing is emitted.
func (that *MatchController) Abandon() {
	that.lock()
	defer that.unlock()

	that.match.Status = entity.StatusAbandoned
	that.match.Turn = entity.MarkNone
	that.match.Generation++
}

func (that *MatchController) ID() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.match.ID
}

func (that *MatchController) ActiveMark() entity.Mark {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.match.Turn
}

func (that *MatchController) CellAt(index int) (entity.Mark, error) {
	if !entity.IsValidCell(index) {
		return entity.MarkNone, fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, index)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	return that.match.Board[index], nil
}

func (that *MatchController) Scores() entity.Scores {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.match.Scores
}

func (that *MatchController) Generation() uint64 {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.match.Generation
}

// NextToRemove - returns the cell the next placement of mark would evict.
func (that *MatchController) NextToRemove(mark entity.Mark) (int, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return nextToRemove(that.match, mark)
}

// Snapshot - returns a deep copy of the match state.
func (that *MatchController) Snapshot() *entity.Match {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.match.Clone()
}

func nextToRemove(match *entity.Match, mark entity.Mark) (int, bool) {
	limit := match.Variant.Cap()
	records := match.Moves.For(mark)

	if limit == 0 || len(records) < limit {
		return 0, false
	}

	return records[0].Index, true
}

// apply must be called with mu held.
func (that *MatchController) apply(index int, mark entity.Mark) (MoveResult, []Event, error) {
	match := that.match

	if err := validateMove(match, index, mark); err != nil {
		return MoveResult{Outcome: outcomeOf(match)}, nil, err
	}

	var events []Event
	result := MoveResult{Accepted: true}

	records := match.Moves.For(mark)
	if evict, ok := nextToRemove(match, mark); ok {
		records = append([]entity.MoveRecord(nil), records[1:]...)
		match.Board[evict] = entity.EmptyCell
		result.Evicted = &evict
		events = append(events, cellEvent(EventRemoved, match, evict, mark))
	}

	match.Board[index] = mark
	match.Moves.Set(mark, append(records, entity.MoveRecord{Index: index, Mark: mark}))
	events = append(events, cellEvent(EventPlaced, match, index, mark))

	if line, ok := WinningLine(match.Board); ok {
		winner := match.Board[line.Center]

		match.Status = entity.StatusWon
		match.Winner = winner
		match.WinLine = &line
		match.Turn = entity.MarkNone
		match.Scores.Increment(winner)

		win := markEvent(EventWin, match, winner)
		win.Line = &line
		events = append(events, win)
	} else if IsFull(match.Board) {
		match.Status = entity.StatusDrawn
		match.Turn = entity.MarkNone

		events = append(events, markEvent(EventDraw, match, entity.MarkNone))
	} else {
		match.Turn = mark.Opponent()

		events = append(events, markEvent(EventTurnChanged, match, match.Turn))
	}

	result.Outcome = outcomeOf(match)

	return result, events, nil
}

func validateMove(match *entity.Match, index int, mark entity.Mark) error {
	if !entity.IsValidCell(index) {
		return fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, index)
	}

	if err := match.ConfirmOngoingState(); err != nil {
		return err
	}

	if match.Turn != mark {
		return apperror.ErrNotYourTurn
	}

	if match.Board[index] != entity.EmptyCell {
		return apperror.ErrCellOccupied
	}

	return nil
}

func outcomeOf(match *entity.Match) Outcome {
	outcome := Outcome{Status: match.Status, Winner: match.Winner}
	if match.WinLine != nil {
		line := *match.WinLine
		outcome.Line = &line
	}

	return outcome
}

func (that *MatchController) lock() {
	that.dispatchMu.Lock()
	that.mu.Lock()
}

func (that *MatchController) unlock() {
	that.mu.Unlock()
	that.dispatchMu.Unlock()
}

// dispatch must be called after lock; it releases mu before notifying so
// observers may use the read accessors.
func (that *MatchController) dispatch(events []Event) {
	that.mu.Unlock()
	defer that.dispatchMu.Unlock()

	for _, event := range events {
		for _, observer := range that.observers {
			observer.Notify(event)
		}
	}
}
