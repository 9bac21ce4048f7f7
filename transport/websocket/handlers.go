package websocket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rocketscienceinc/gravity-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/entity"
)

const (
	gameStatusOpponentOut entity.Status = "opponent_out"
	gameStatusLeave       entity.Status = "leave"
)

func (that *Server) handleConnect(ctx context.Context, client *client, req Payload) error {
	log := that.logger.With("method", "handleConnect")

	id := client.sessionID
	if req.Player != nil && req.Player.ID != "" {
		id = req.Player.ID
	}

	player, err := that.gameUseCase.GetOrCreatePlayer(ctx, id)
	if err != nil {
		log.Error("failed to create or get", "player", id, "error", err)
		that.sendErrorResponse(client, actionConnect, "failed to create a new player")
		return err
	}

	that.bind(client, player.ID)

	resp := Payload{Player: player}

	if player.GameID != "" {
		game, err := that.gameUseCase.CurrentGame(ctx, player.ID)
		switch {
		case err == nil:
			that.track(game)
			if seated, ok := game.PlayerByID(player.ID); ok {
				resp.Player = seated
			}
			resp.Game = maskGameDetails(game)
		case errors.Is(err, apperror.ErrNoActiveGames):
		default:
			log.Error("failed to get game", "gameID", player.GameID, "error", err)
		}
	}

	that.reply(client, actionConnect, resp)

	log.Info("successfully connected player", "playerID", player.ID)

	return nil
}

func (that *Server) handleNewGame(ctx context.Context, client *client, req Payload) error {
	log := that.logger.With("method", "handleNewGame")

	playerID, err := that.playerID(client, req)
	if err != nil {
		that.sendErrorResponse(client, actionGameNew, "Player is required")
		return err
	}

	if req.Game == nil {
		that.sendErrorResponse(client, actionGameNew, "Game is required")
		return errors.New("game is missing in payload")
	}

	game, err := that.gameUseCase.GetOrCreateGame(ctx, playerID, req.Game.Type, req.Game.Difficulty)
	if err != nil {
		log.Error("failed to create or get game", "playerID", playerID, "error", err)
		that.sendErrorResponse(client, actionGameNew, "failed to create a new game")
		return err
	}

	that.track(game)
	that.broadcast(game, actionGameNew, nil)

	log.Info("player is in game", "playerID", playerID, "gameID", game.ID)

	return nil
}

func (that *Server) handleJoinGame(ctx context.Context, client *client, req Payload) error {
	log := that.logger.With("method", "handleJoinGame")

	playerID, err := that.playerID(client, req)
	if err != nil {
		that.sendErrorResponse(client, actionGameJoin, "Player is required")
		return err
	}

	if req.Game == nil || req.Game.ID == "" {
		that.sendErrorResponse(client, actionGameJoin, "Game is required")
		return errors.New("game is missing in payload")
	}

	game, err := that.gameUseCase.JoinGame(ctx, req.Game.ID, playerID)
	if err != nil {
		log.Error("failed to join game", "gameID", req.Game.ID, "error", err)
		that.sendErrorResponse(client, actionGameJoin, fmt.Sprintf("game %s: %v", req.Game.ID, err))
		return err
	}

	that.track(game)
	that.broadcast(game, actionGameJoin, nil)

	log.Info("player joined game", "playerID", playerID, "gameID", game.ID)

	return nil
}

func (that *Server) handleGameTurn(ctx context.Context, client *client, req Payload) error {
	log := that.logger.With("method", "handleGameTurn")

	playerID, err := that.playerID(client, req)
	if err != nil {
		that.sendErrorResponse(client, actionGameTurn, "Player is required")
		return err
	}

	if req.Cell == nil {
		that.sendErrorResponse(client, actionGameTurn, "Cell is required")
		return errors.New("cell is missing in payload")
	}

	game, result, err := that.gameUseCase.MakeTurn(ctx, playerID, *req.Cell)
	if errors.Is(err, apperror.ErrInvalidMove) {
		log.Debug("rejected turn", "playerID", playerID, "cell", *req.Cell, "error", err)
		that.reply(client, actionGameTurn, Payload{
			Game:   maskGameDetails(game),
			Result: &result,
			Error:  err.Error(),
		})
		return nil
	}

	if err != nil {
		log.Error("failed to make turn", "playerID", playerID, "error", err)
		that.sendErrorResponse(client, actionGameTurn, fmt.Sprintf("failed to turn in game: %v", err))
		return err
	}

	that.broadcast(game, actionGameTurn, func(resp *Payload) {
		resp.Result = &result
	})

	log.Info("player made a turn", "playerID", playerID, "gameID", game.ID)

	return nil
}

func (that *Server) handleRematch(ctx context.Context, client *client, req Payload) error {
	log := that.logger.With("method", "handleRematch")

	playerID, err := that.playerID(client, req)
	if err != nil {
		that.sendErrorResponse(client, actionGameRematch, "Player is required")
		return err
	}

	game, err := that.gameUseCase.Rematch(ctx, playerID)
	if err != nil {
		log.Error("failed to start rematch", "playerID", playerID, "error", err)
		that.sendErrorResponse(client, actionGameRematch, fmt.Sprintf("failed to start rematch: %v", err))
		return err
	}

	that.broadcast(game, actionGameRematch, nil)

	log.Info("rematch started", "gameID", game.ID, "generation", game.Generation)

	return nil
}

func (that *Server) handleGameLeave(ctx context.Context, client *client, req Payload) error {
	log := that.logger.With("method", "handleGameLeave")

	playerID, err := that.playerID(client, req)
	if err != nil {
		that.sendErrorResponse(client, actionGameLeave, "Player is required")
		return err
	}

	game, err := that.gameUseCase.LeaveGame(ctx, playerID)
	if err != nil {
		log.Error("failed to leave game", "playerID", playerID, "error", err)
		that.sendErrorResponse(client, actionGameLeave, "game doesn't exist")
		return err
	}

	that.broadcast(game, actionGameLeave, func(resp *Payload) {
		resp.Game.Status = gameStatusLeave
	})
	that.untrack(game.ID)

	log.Info("player left", "playerID", playerID, "gameID", game.ID)

	return nil
}

func (that *Server) handleDisconnect(client *client) {
	log := that.logger.With("method", "handleDisconnect")

	playerID := client.PlayerID()
	if playerID == "" {
		return
	}

	that.connectionsMutex.Lock()
	current, ok := that.connections[playerID]
	if !ok || current != client {
		that.connectionsMutex.Unlock()
		return
	}
	delete(that.connections, playerID)
	that.connectionsMutex.Unlock()

	that.disconnectedMutex.Lock()
	that.disconnectedPlayers[playerID] = time.Now()
	that.disconnectedMutex.Unlock()

	log.Info("player disconnected", "playerID", playerID)
}

// handleOpponentOut - ends the game of a player gone for longer than the grace period.
func (that *Server) handleOpponentOut(ctx context.Context, playerID string) {
	log := that.logger.With("method", "handleOpponentOut")

	game, err := that.gameUseCase.LeaveGame(ctx, playerID)
	if errors.Is(err, apperror.ErrNoActiveGames) {
		return
	}

	if err != nil {
		log.Error("failed to finish game", "playerID", playerID, "error", err)
		return
	}

	that.broadcast(game, actionGameLeave, func(resp *Payload) {
		resp.Game.Status = gameStatusOpponentOut
	})
	that.untrack(game.ID)

	log.Info("handled opponent out", "gameID", game.ID, "playerID", playerID)
}

func (that *Server) playerReconnected(playerID string) {
	that.disconnectedMutex.Lock()
	defer that.disconnectedMutex.Unlock()

	delete(that.disconnectedPlayers, playerID)
}

// playerID - resolves who sent the message. A player named in the payload
// takes over this connection.
func (that *Server) playerID(client *client, req Payload) (string, error) {
	if req.Player != nil && req.Player.ID != "" {
		if req.Player.ID != client.PlayerID() {
			that.bind(client, req.Player.ID)
		}

		return req.Player.ID, nil
	}

	if id := client.PlayerID(); id != "" {
		return id, nil
	}

	return "", errNotConnected
}

func (that *Server) bind(client *client, playerID string) {
	client.bind(playerID)

	that.connectionsMutex.Lock()
	that.connections[playerID] = client
	that.connectionsMutex.Unlock()

	that.playerReconnected(playerID)
}

// track - subscribes the human players of game to its events.
func (that *Server) track(game *entity.Match) {
	that.connectionsMutex.Lock()
	defer that.connectionsMutex.Unlock()

	room, ok := that.rooms[game.ID]
	if !ok {
		room = make(map[string]struct{})
		that.rooms[game.ID] = room
	}

	for _, player := range game.Players {
		if !player.IsBot() {
			room[player.ID] = struct{}{}
		}
	}
}

func (that *Server) untrack(gameID string) {
	that.connectionsMutex.Lock()
	defer that.connectionsMutex.Unlock()

	delete(that.rooms, gameID)
}

// broadcast - sends game to each connected human player with that player's seat.
func (that *Server) broadcast(game *entity.Match, action string, decorate func(resp *Payload)) {
	for _, player := range game.Players {
		if player.IsBot() {
			continue
		}

		that.connectionsMutex.RLock()
		conn, ok := that.connections[player.ID]
		that.connectionsMutex.RUnlock()

		if !ok {
			that.logger.Warn("connection not found for player", "playerID", player.ID, "gameID", game.ID)
			continue
		}

		resp := Payload{
			Player: player,
			Game:   maskGameDetails(game),
		}
		if decorate != nil {
			decorate(&resp)
		}

		that.reply(conn, action, resp)
	}
}

func (that *Server) reply(client *client, action string, payload Payload) {
	if !client.enqueue(encodeMessage(action, payload)) {
		that.logger.Warn("failed to queue message", "action", action, "playerID", client.PlayerID())
	}
}

// maskGameDetails hides sensitive details from the game payload.
func maskGameDetails(game *entity.Match) *entity.Match {
	if game == nil {
		return nil
	}

	masked := game.Clone()
	masked.Players = nil
	masked.Type = ""

	return masked
}

func (that *Server) sendErrorResponse(client *client, action, errorMsg string) {
	that.reply(client, action, Payload{Error: errorMsg})
}
