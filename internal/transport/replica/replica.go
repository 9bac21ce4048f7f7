package replica

import (
	"context"
	"fmt"
	"sync"

	"github.com/rocketscienceinc/gravity-tictactoe/internal/entity"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/repository"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/tictactoe"
)

// View is a read-only copy of a match rebuilt from its events.
type View struct {
	MatchID    string
	Generation uint64
	Board      entity.Board
	Turn       entity.Mark
	Status     entity.Status
	Winner     entity.Mark
	Line       *entity.Line
}

// Replica mirrors matches from their event streams. It never validates moves;
// the publishing server is authoritative.
type Replica struct {
	mu    sync.RWMutex
	views map[string]*View
}

func NewReplica() *Replica {
	return &Replica{views: make(map[string]*View)}
}

// Apply - folds event into the view of its match. Events of older rounds and
// events naming a cell off the board are ignored.
func (that *Replica) Apply(event tictactoe.Event) {
	if event.Index != nil && !entity.IsValidCell(*event.Index) {
		return
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	view, ok := that.views[event.MatchID]
	if !ok {
		view = &View{MatchID: event.MatchID, Generation: event.Generation, Status: entity.StatusWaiting}
		that.views[event.MatchID] = view
	}

	if event.Generation < view.Generation {
		return
	}

	if event.Generation > view.Generation {
		resetView(view, event.Generation)
	}

	switch event.Kind {
	case tictactoe.EventStarted:
		view.Status = entity.StatusOngoing
	case tictactoe.EventRematch:
		resetView(view, event.Generation)
	case tictactoe.EventPlaced:
		if event.Index != nil {
			view.Board[*event.Index] = event.Mark
		}
	case tictactoe.EventRemoved:
		if event.Index != nil {
			view.Board[*event.Index] = entity.EmptyCell
		}
	case tictactoe.EventTurnChanged:
		view.Turn = event.Mark
	case tictactoe.EventWin:
		view.Status = entity.StatusWon
		view.Winner = event.Mark
		view.Line = event.Line
		view.Turn = entity.MarkNone
	case tictactoe.EventDraw:
		view.Status = entity.StatusDrawn
		view.Turn = entity.MarkNone
	}
}

func (that *Replica) View(matchID string) (View, bool) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	view, ok := that.views[matchID]
	if !ok {
		return View{}, false
	}

	return *view, true
}

// GetMatch - returns the mirrored state of a match. Seats and move order are
// not part of the event stream and stay empty.
func (that *Replica) GetMatch(_ context.Context, id string) (*entity.Match, error) {
	view, ok := that.View(id)
	if !ok {
		return nil, fmt.Errorf("%w: game id %s", repository.ErrGameNotFound, id)
	}

	return &entity.Match{
		ID:         view.MatchID,
		Generation: view.Generation,
		Board:      view.Board,
		Turn:       view.Turn,
		Status:     view.Status,
		Winner:     view.Winner,
		WinLine:    view.Line,
	}, nil
}

func resetView(view *View, generation uint64) {
	view.Generation = generation
	view.Board = entity.Board{}
	view.Status = entity.StatusOngoing
	view.Winner = entity.MarkNone
	view.Line = nil
}
