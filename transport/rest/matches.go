package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rocketscienceinc/gravity-tictactoe/internal/entity"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/repository"
)

type matchUseCase interface {
	GetMatch(ctx context.Context, id string) (*entity.Match, error)
}

type matchHandler struct {
	logger  *slog.Logger
	matches matchUseCase
}

// getMatch - returns the public view of a match, without its seats.
func (that *matchHandler) getMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := that.logger.With("method", "getMatch", "gameID", id)

	match, err := that.matches.GetMatch(r.Context(), id)
	if errors.Is(err, repository.ErrGameNotFound) {
		http.Error(w, "match not found", http.StatusNotFound)
		return
	}

	if err != nil {
		log.Error("failed to get match", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	view := match.Clone()
	view.Players = nil
	view.Type = ""

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(view); err != nil {
		log.Error("failed to encode match", "error", err)
	}
}
