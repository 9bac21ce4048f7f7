package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/gravity-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/entity"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/pkg"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/repository"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/service"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/tictactoe"
)

var ErrUnknownGameType = errors.New("unknown game type")

type playerRepoDep interface {
	CreateOrUpdate(ctx context.Context, player *entity.Player) error
	GetByID(ctx context.Context, id string) (*entity.Player, error)
}

type matchRepoDep interface {
	CreateOrUpdate(ctx context.Context, match *entity.Match) error
	GetByID(ctx context.Context, id string) (*entity.Match, error)
	GetWaitingPublic(ctx context.Context) (*entity.Match, error)
	DeleteByID(ctx context.Context, id string) error
}

type Options struct {
	ThinkDelay        time.Duration
	DefaultVariant    entity.Variant
	DefaultDifficulty entity.Difficulty
}

// GameManager is the single owner of every live match. Clients only reach
// a MatchController through it.
type GameManager struct {
	logger     *slog.Logger
	playerRepo playerRepoDep
	matchRepo  matchRepoDep
	bot        service.BotService
	opts       Options

	randomMarks func() (entity.Mark, entity.Mark)

	mu          sync.Mutex
	controllers map[string]*tictactoe.MatchController
	observers   []tictactoe.Observer

	// persistMu keeps snapshot writes in the order they were taken.
	persistMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewGameManager(logger *slog.Logger, playerRepo playerRepoDep, matchRepo matchRepoDep, bot service.BotService, opts Options) *GameManager {
	if opts.DefaultVariant == "" {
		opts.DefaultVariant = entity.ExpiringVariant
	}

	if opts.DefaultDifficulty == "" {
		opts.DefaultDifficulty = entity.MediumDifficulty
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &GameManager{
		logger:      logger.With("component", "game_manager"),
		playerRepo:  playerRepo,
		matchRepo:   matchRepo,
		bot:         bot,
		opts:        opts,
		randomMarks: entity.RandomMarks,
		controllers: make(map[string]*tictactoe.MatchController),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Subscribe - attaches observer to every current and future match.
func (that *GameManager) Subscribe(observer tictactoe.Observer) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.observers = append(that.observers, observer)
	for _, ctrl := range that.controllers {
		ctrl.Subscribe(observer)
	}
}

// Close - stops pending bot turns and waits for running ones.
func (that *GameManager) Close() {
	that.cancel()
	that.wg.Wait()
}

func (that *GameManager) GetOrCreatePlayer(ctx context.Context, id string) (*entity.Player, error) {
	if id == "" {
		player, err := that.createPlayer(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create new player: %w", err)
		}

		return player, nil
	}

	player, err := that.playerRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrPlayerNotFound) {
		player = &entity.Player{ID: id}
		if err = that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
			return nil, fmt.Errorf("failed to create player: %w", err)
		}

		return player, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get player by id: %w", err)
	}

	return player, nil
}

// GetOrCreateGame - returns the player's current match or starts a new one.
// Public games are matched with a waiting opponent when there is one.
func (that *GameManager) GetOrCreateGame(ctx context.Context, playerID, gameType string, difficulty entity.Difficulty) (*entity.Match, error) {
	player, err := that.getPlayerByID(ctx, playerID)
	if err != nil {
		return nil, err
	}

	if player.GameID != "" {
		ctrl, err := that.controller(ctx, player.GameID)
		if err == nil {
			return ctrl.Snapshot(), nil
		}

		if !errors.Is(err, repository.ErrGameNotFound) {
			return nil, fmt.Errorf("failed to get game: %w", err)
		}

		player.LeaveGame()
	}

	switch gameType {
	case entity.PublicType:
		return that.joinOrCreatePublicGame(ctx, player)
	case entity.PrivateType, entity.WithBotType:
		return that.createGame(ctx, player, gameType, difficulty)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGameType, gameType)
	}
}

func (that *GameManager) JoinGame(ctx context.Context, gameID, playerID string) (*entity.Match, error) {
	player, err := that.getPlayerByID(ctx, playerID)
	if err != nil {
		return nil, err
	}

	ctrl, err := that.controller(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	if player.GameID == gameID {
		return ctrl.Snapshot(), nil
	}

	if player.GameID != "" {
		return nil, fmt.Errorf("%w: player is in game %s", apperror.ErrGameAlreadyExists, player.GameID)
	}

	snapshot := ctrl.Snapshot()
	if snapshot.IsWithBot() || !snapshot.IsWaiting() {
		return nil, fmt.Errorf("%w: game id %s", apperror.ErrGameIsFull, gameID)
	}

	player.GameID = gameID
	player.Mark = entity.MarkO

	if err = ctrl.AddPlayer(player); err != nil {
		return nil, err
	}

	if err = that.updatePlayer(ctx, player); err != nil {
		return nil, err
	}

	if err = ctrl.Start(entity.MarkX); err != nil {
		return nil, fmt.Errorf("failed to start game: %w", err)
	}

	if err = that.persist(ctx, ctrl); err != nil {
		return nil, err
	}

	return ctrl.Snapshot(), nil
}

// MakeTurn - applies the player's move and, in bot games, schedules the answer.
func (that *GameManager) MakeTurn(ctx context.Context, playerID string, cell int) (*entity.Match, tictactoe.MoveResult, error) {
	ctrl, player, err := that.playerController(ctx, playerID)
	if err != nil {
		return nil, tictactoe.MoveResult{}, err
	}

	result, err := ctrl.ApplyMove(cell, player.Mark)
	if err != nil {
		return ctrl.Snapshot(), result, fmt.Errorf("failed to make turn: %w", err)
	}

	if err = that.persist(ctx, ctrl); err != nil {
		return nil, result, err
	}

	that.scheduleBot(ctrl)

	return ctrl.Snapshot(), result, nil
}

// Rematch - starts a new round of the player's match with the score kept.
func (that *GameManager) Rematch(ctx context.Context, playerID string) (*entity.Match, error) {
	ctrl, _, err := that.playerController(ctx, playerID)
	if err != nil {
		return nil, err
	}

	if err = ctrl.Rematch(); err != nil {
		return nil, fmt.Errorf("failed to start rematch: %w", err)
	}

	if err = that.persist(ctx, ctrl); err != nil {
		return nil, err
	}

	that.scheduleBot(ctrl)

	return ctrl.Snapshot(), nil
}

// LeaveGame - ends the player's match for everybody in it and returns its
// final state.
func (that *GameManager) LeaveGame(ctx context.Context, playerID string) (*entity.Match, error) {
	ctrl, player, err := that.playerController(ctx, playerID)
	if errors.Is(err, repository.ErrGameNotFound) {
		player.LeaveGame()
		if err = that.updatePlayer(ctx, player); err != nil {
			return nil, err
		}

		return nil, apperror.ErrNoActiveGames
	}

	if err != nil {
		return nil, err
	}

	snapshot := ctrl.Snapshot()
	that.endGame(ctx, ctrl, snapshot)

	return snapshot, nil
}

// CurrentGame - returns the match the player is seated in.
func (that *GameManager) CurrentGame(ctx context.Context, playerID string) (*entity.Match, error) {
	ctrl, _, err := that.playerController(ctx, playerID)
	if err != nil {
		return nil, err
	}

	return ctrl.Snapshot(), nil
}

func (that *GameManager) GetMatch(ctx context.Context, id string) (*entity.Match, error) {
	ctrl, err := that.controller(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	return ctrl.Snapshot(), nil
}

func (that *GameManager) joinOrCreatePublicGame(ctx context.Context, player *entity.Player) (*entity.Match, error) {
	waiting, err := that.matchRepo.GetWaitingPublic(ctx)
	switch {
	case errors.Is(err, repository.ErrGameNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to find public game: %w", err)
	default:
		match, err := that.JoinGame(ctx, waiting.ID, player.ID)
		if err == nil {
			return match, nil
		}

		if !errors.Is(err, apperror.ErrGameIsFull) {
			return nil, err
		}
	}

	return that.createGame(ctx, player, entity.PublicType, "")
}

func (that *GameManager) createGame(ctx context.Context, player *entity.Player, gameType string, difficulty entity.Difficulty) (*entity.Match, error) {
	gameID, err := pkg.GenerateGameID()
	if err != nil {
		return nil, fmt.Errorf("error generating game ID: %w", err)
	}

	opts := []tictactoe.Option{tictactoe.WithVariant(that.opts.DefaultVariant)}

	if gameType == entity.WithBotType {
		if difficulty == "" {
			difficulty = that.opts.DefaultDifficulty
		}
		opts = append(opts, tictactoe.WithDifficulty(difficulty))
	}

	ctrl := tictactoe.NewMatchController(gameID, gameType, opts...)

	player.GameID = gameID
	player.Mark = entity.MarkX

	var bot *entity.Player
	if gameType == entity.WithBotType {
		var botMark entity.Mark
		player.Mark, botMark = that.randomMarks()
		bot = entity.NewBotPlayer(gameID, botMark)
	}

	if err = ctrl.AddPlayer(player); err != nil {
		return nil, err
	}

	if bot != nil {
		if err = ctrl.AddPlayer(bot); err != nil {
			return nil, err
		}
	}

	if err = that.updatePlayer(ctx, player); err != nil {
		return nil, err
	}

	that.register(ctrl)

	if bot != nil {
		if err = ctrl.Start(entity.MarkX); err != nil {
			return nil, fmt.Errorf("failed to start game: %w", err)
		}
	}

	if err = that.persist(ctx, ctrl); err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}

	that.logger.Info("game created", "gameID", gameID, "type", gameType)

	that.scheduleBot(ctrl)

	return ctrl.Snapshot(), nil
}

// scheduleBot - lets the bot answer after the think delay if it is its turn.
func (that *GameManager) scheduleBot(ctrl *tictactoe.MatchController) {
	snapshot := ctrl.Snapshot()

	bot, ok := snapshot.Bot()
	if !ok || !snapshot.IsOngoing() || snapshot.Turn != bot.Mark {
		return
	}

	if that.opts.ThinkDelay <= 0 {
		that.botTurn(ctrl)
		return
	}

	that.wg.Add(1)
	go func() {
		defer that.wg.Done()

		timer := time.NewTimer(that.opts.ThinkDelay)
		defer timer.Stop()

		select {
		case <-that.ctx.Done():
			return
		case <-timer.C:
		}

		that.botTurn(ctrl)
	}()
}

func (that *GameManager) botTurn(ctrl *tictactoe.MatchController) {
	log := that.logger.With("method", "botTurn", "gameID", ctrl.ID())

	if _, err := that.bot.MakeTurn(ctrl); err != nil {
		if errors.Is(err, apperror.ErrInvalidMove) || errors.Is(err, apperror.ErrNotBotTurn) {
			log.Debug("bot turn skipped", "error", err)
			return
		}

		log.Error("bot failed to make turn", "error", err)
		return
	}

	if err := that.persist(that.ctx, ctrl); err != nil {
		log.Error("failed to save game after bot turn", "error", err)
	}
}

// endGame - stops ctrl so pending bot turns are dropped, then forgets the
// match and frees its players.
func (that *GameManager) endGame(ctx context.Context, ctrl *tictactoe.MatchController, match *entity.Match) {
	log := that.logger.With("method", "endGame", "gameID", match.ID)

	ctrl.Abandon()

	that.mu.Lock()
	if that.controllers[match.ID] == ctrl {
		delete(that.controllers, match.ID)
	}
	that.mu.Unlock()

	that.persistMu.Lock()
	err := that.matchRepo.DeleteByID(ctx, match.ID)
	that.persistMu.Unlock()

	if err != nil {
		log.Error("failed to delete game", "error", err)
	}

	for _, player := range match.Players {
		if player.IsBot() {
			continue
		}

		detached := *player
		detached.LeaveGame()

		if err := that.playerRepo.CreateOrUpdate(ctx, &detached); err != nil {
			log.Error("failed to update", "player", player.ID, "error", err)
		}
	}

	log.Info("game ended")
}

// controller - returns the live controller of a match, restoring it from
// storage after a restart.
func (that *GameManager) controller(ctx context.Context, id string) (*tictactoe.MatchController, error) {
	that.mu.Lock()
	ctrl, ok := that.controllers[id]
	that.mu.Unlock()

	if ok {
		return ctrl, nil
	}

	match, err := that.matchRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load game: %w", err)
	}

	return that.register(tictactoe.RestoreMatchController(match)), nil
}

// register - indexes ctrl unless another goroutine got there first, and
// returns the controller that won.
func (that *GameManager) register(ctrl *tictactoe.MatchController) *tictactoe.MatchController {
	that.mu.Lock()
	defer that.mu.Unlock()

	id := ctrl.ID()
	if existing, ok := that.controllers[id]; ok {
		return existing
	}

	for _, observer := range that.observers {
		ctrl.Subscribe(observer)
	}
	that.controllers[id] = ctrl

	return ctrl
}

func (that *GameManager) isRegistered(ctrl *tictactoe.MatchController) bool {
	id := ctrl.ID()

	that.mu.Lock()
	defer that.mu.Unlock()

	return that.controllers[id] == ctrl
}

func (that *GameManager) playerController(ctx context.Context, playerID string) (*tictactoe.MatchController, *entity.Player, error) {
	player, err := that.getPlayerByID(ctx, playerID)
	if err != nil {
		return nil, nil, err
	}

	if player.GameID == "" {
		return nil, nil, apperror.ErrNoActiveGames
	}

	ctrl, err := that.controller(ctx, player.GameID)
	if err != nil {
		return nil, player, fmt.Errorf("failed to get game by id: %w", err)
	}

	return ctrl, player, nil
}

func (that *GameManager) persist(ctx context.Context, ctrl *tictactoe.MatchController) error {
	that.persistMu.Lock()
	defer that.persistMu.Unlock()

	// An ended match must not be written back.
	if !that.isRegistered(ctrl) {
		return nil
	}

	if err := that.matchRepo.CreateOrUpdate(ctx, ctrl.Snapshot()); err != nil {
		return fmt.Errorf("failed to update game: %w", err)
	}

	return nil
}

func (that *GameManager) createPlayer(ctx context.Context) (*entity.Player, error) {
	player := &entity.Player{
		ID: pkg.GenerateNewSessionID(),
	}

	if err := that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	return player, nil
}

func (that *GameManager) getPlayerByID(ctx context.Context, id string) (*entity.Player, error) {
	player, err := that.playerRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	return player, nil
}

func (that *GameManager) updatePlayer(ctx context.Context, player *entity.Player) error {
	if err := that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}

	return nil
}
