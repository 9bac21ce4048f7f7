package tictactoe

import "github.com/rocketscienceinc/gravity-tictactoe/internal/entity"

type EventKind string

const (
	EventStarted     EventKind = "started"
	EventPlaced      EventKind = "placed"
	EventRemoved     EventKind = "removed"
	EventWin         EventKind = "win"
	EventDraw        EventKind = "draw"
	EventRematch     EventKind = "rematch"
	EventTurnChanged EventKind = "turn_changed"
)

// Event is a one-way notification about a match change.
type Event struct {
	Kind       EventKind    `json:"kind"`
	MatchID    string       `json:"match_id"`
	Generation uint64       `json:"generation"`
	Index      *int         `json:"index,omitempty"`
	Mark       entity.Mark  `json:"mark,omitempty"`
	Line       *entity.Line `json:"line,omitempty"`
}

// Observer receives match events in emission order.
type Observer interface {
	Notify(event Event)
}

type ObserverFunc func(event Event)

func (that ObserverFunc) Notify(event Event) {
	that(event)
}

func cellEvent(kind EventKind, match *entity.Match, index int, mark entity.Mark) Event {
	return Event{
		Kind:       kind,
		MatchID:    match.ID,
		Generation: match.Generation,
		Index:      &index,
		Mark:       mark,
	}
}

func markEvent(kind EventKind, match *entity.Match, mark entity.Mark) Event {
	return Event{
		Kind:       kind,
		MatchID:    match.ID,
		Generation: match.Generation,
		Mark:       mark,
	}
}
