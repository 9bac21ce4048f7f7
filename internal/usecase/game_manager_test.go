package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/gravity-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/entity"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/repository"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/service"
	"github.com/rocketscienceinc/gravity-tictactoe/internal/tictactoe"
	mockedUseCase "github.com/rocketscienceinc/gravity-tictactoe/mocks/usecase"
)

var errRedisDown = errors.New("redis down")

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestBot() service.BotService {
	return service.NewBotService(newTestLogger(), tictactoe.NewSearchEngine(rand.NewSource(1)))
}

// store backs both repository mocks with maps so scenarios can run end to end.
type store struct {
	mu      sync.Mutex
	players map[string]entity.Player
	matches map[string]*entity.Match

	playerRepo *mockedUseCase.MockplayerRepoDep
	matchRepo  *mockedUseCase.MockmatchRepoDep
}

func newStore(t *testing.T) *store {
	t.Helper()

	st := &store{
		players:    make(map[string]entity.Player),
		matches:    make(map[string]*entity.Match),
		playerRepo: mockedUseCase.NewMockplayerRepoDep(t),
		matchRepo:  mockedUseCase.NewMockmatchRepoDep(t),
	}

	st.playerRepo.EXPECT().
		CreateOrUpdate(mock.Anything, mock.AnythingOfType("*entity.Player")).
		RunAndReturn(func(_ context.Context, player *entity.Player) error {
			st.mu.Lock()
			defer st.mu.Unlock()
			st.players[player.ID] = *player
			return nil
		}).
		Maybe()

	st.playerRepo.EXPECT().
		GetByID(mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, id string) (*entity.Player, error) {
			st.mu.Lock()
			defer st.mu.Unlock()
			player, ok := st.players[id]
			if !ok {
				return &entity.Player{}, repository.ErrPlayerNotFound
			}
			return &player, nil
		}).
		Maybe()

	st.matchRepo.EXPECT().
		CreateOrUpdate(mock.Anything, mock.AnythingOfType("*entity.Match")).
		RunAndReturn(func(_ context.Context, match *entity.Match) error {
			st.mu.Lock()
			defer st.mu.Unlock()
			st.matches[match.ID] = match.Clone()
			return nil
		}).
		Maybe()

	st.matchRepo.EXPECT().
		GetByID(mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, id string) (*entity.Match, error) {
			st.mu.Lock()
			defer st.mu.Unlock()
			match, ok := st.matches[id]
			if !ok {
				return &entity.Match{}, repository.ErrGameNotFound
			}
			return match.Clone(), nil
		}).
		Maybe()

	st.matchRepo.EXPECT().
		GetWaitingPublic(mock.Anything).
		RunAndReturn(func(context.Context) (*entity.Match, error) {
			st.mu.Lock()
			defer st.mu.Unlock()
			for _, match := range st.matches {
				if match.IsPublic() && match.IsWaiting() && len(match.Players) < 2 {
					return match.Clone(), nil
				}
			}
			return nil, repository.ErrGameNotFound
		}).
		Maybe()

	st.matchRepo.EXPECT().
		DeleteByID(mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, id string) error {
			st.mu.Lock()
			defer st.mu.Unlock()
			delete(st.matches, id)
			return nil
		}).
		Maybe()

	return st
}

func (that *store) player(id string) entity.Player {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.players[id]
}

func (that *store) match(id string) (*entity.Match, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	match, ok := that.matches[id]
	return match, ok
}

func (that *store) newManager(t *testing.T, opts Options) *GameManager {
	t.Helper()

	manager := NewGameManager(newTestLogger(), that.playerRepo, that.matchRepo, newTestBot(), opts)
	t.Cleanup(manager.Close)

	return manager
}

func newPlayer(t *testing.T, manager *GameManager) *entity.Player {
	t.Helper()

	player, err := manager.GetOrCreatePlayer(context.Background(), "")
	require.NoError(t, err)

	return player
}

// humanVsHuman seats two players in a started private match.
func humanVsHuman(t *testing.T, manager *GameManager) (*entity.Match, *entity.Player, *entity.Player) {
	t.Helper()
	ctx := context.Background()

	host, guest := newPlayer(t, manager), newPlayer(t, manager)

	match, err := manager.GetOrCreateGame(ctx, host.ID, entity.PrivateType, "")
	require.NoError(t, err)

	match, err = manager.JoinGame(ctx, match.ID, guest.ID)
	require.NoError(t, err)

	return match, host, guest
}

func TestGameManager_GetOrCreatePlayer(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates a new player when playerID is empty", func(t *testing.T) {
		// Given: a player repository that accepts writes
		mockPlayerRepo := mockedUseCase.NewMockplayerRepoDep(t)
		mockMatchRepo := mockedUseCase.NewMockmatchRepoDep(t)
		manager := NewGameManager(newTestLogger(), mockPlayerRepo, mockMatchRepo, newTestBot(), Options{})

		mockPlayerRepo.EXPECT().
			CreateOrUpdate(mock.Anything, mock.AnythingOfType("*entity.Player")).
			Return(nil).
			Once()

		// When: calling GetOrCreatePlayer with an empty playerID
		player, err := manager.GetOrCreatePlayer(ctx, "")

		// Then: a new player with a session id is created
		require.NoError(t, err)
		assert.NotEmpty(t, player.ID)
	})

	t.Run("Returns existing player when playerID is known", func(t *testing.T) {
		// Given: a player repository that returns an existing player
		mockPlayerRepo := mockedUseCase.NewMockplayerRepoDep(t)
		mockMatchRepo := mockedUseCase.NewMockmatchRepoDep(t)
		manager := NewGameManager(newTestLogger(), mockPlayerRepo, mockMatchRepo, newTestBot(), Options{})

		existingPlayer := &entity.Player{ID: "player123", GameID: "ABC"}
		mockPlayerRepo.EXPECT().
			GetByID(mock.Anything, "player123").
			Return(existingPlayer, nil).
			Once()

		// When: calling GetOrCreatePlayer with a known playerID
		player, err := manager.GetOrCreatePlayer(ctx, "player123")

		// Then: the existing player is returned
		require.NoError(t, err)
		assert.Equal(t, existingPlayer, player)
	})

	t.Run("Registers an unknown playerID", func(t *testing.T) {
		// Given: a session id that storage no longer knows
		mockPlayerRepo := mockedUseCase.NewMockplayerRepoDep(t)
		mockMatchRepo := mockedUseCase.NewMockmatchRepoDep(t)
		manager := NewGameManager(newTestLogger(), mockPlayerRepo, mockMatchRepo, newTestBot(), Options{})

		mockPlayerRepo.EXPECT().
			GetByID(mock.Anything, "lost").
			Return(&entity.Player{}, repository.ErrPlayerNotFound).
			Once()
		mockPlayerRepo.EXPECT().
			CreateOrUpdate(mock.Anything, &entity.Player{ID: "lost"}).
			Return(nil).
			Once()

		// When: calling GetOrCreatePlayer with it
		player, err := manager.GetOrCreatePlayer(ctx, "lost")

		// Then: the player is recreated under the same id
		require.NoError(t, err)
		assert.Equal(t, "lost", player.ID)
	})

	t.Run("Returns error if playerRepo.GetByID fails", func(t *testing.T) {
		// Given: a player repository that is down
		mockPlayerRepo := mockedUseCase.NewMockplayerRepoDep(t)
		mockMatchRepo := mockedUseCase.NewMockmatchRepoDep(t)
		manager := NewGameManager(newTestLogger(), mockPlayerRepo, mockMatchRepo, newTestBot(), Options{})

		mockPlayerRepo.EXPECT().
			GetByID(mock.Anything, "playerErr").
			Return((*entity.Player)(nil), errRedisDown).
			Once()

		// When: calling GetOrCreatePlayer
		player, err := manager.GetOrCreatePlayer(ctx, "playerErr")

		// Then: the error is returned and no player
		require.ErrorIs(t, err, errRedisDown)
		assert.Nil(t, player)
	})
}

func TestGameManager_PrivateGame(t *testing.T) {
	ctx := context.Background()

	t.Run("Host waits as X until a guest joins as O", func(t *testing.T) {
		// Given: a host and a guest
		st := newStore(t)
		manager := st.newManager(t, Options{})
		host, guest := newPlayer(t, manager), newPlayer(t, manager)

		// When: the host creates a private game
		match, err := manager.GetOrCreateGame(ctx, host.ID, entity.PrivateType, "")

		// Then: the match waits with the host seated as X
		require.NoError(t, err)
		assert.Equal(t, entity.StatusWaiting, match.Status)
		assert.Equal(t, entity.ExpiringVariant, match.Variant)
		require.Len(t, match.Players, 1)
		assert.Equal(t, entity.MarkX, match.Players[0].Mark)
		assert.Equal(t, match.ID, st.player(host.ID).GameID)

		// When: the guest joins by id
		match, err = manager.JoinGame(ctx, match.ID, guest.ID)

		// Then: the match is ongoing with X to move and persisted
		require.NoError(t, err)
		assert.Equal(t, entity.StatusOngoing, match.Status)
		assert.Equal(t, entity.MarkX, match.Turn)
		assert.Equal(t, entity.MarkO, st.player(guest.ID).Mark)

		stored, ok := st.match(match.ID)
		require.True(t, ok)
		assert.Equal(t, entity.StatusOngoing, stored.Status)
	})

	t.Run("Asking again returns the current game", func(t *testing.T) {
		st := newStore(t)
		manager := st.newManager(t, Options{})
		match, host, _ := humanVsHuman(t, manager)

		again, err := manager.GetOrCreateGame(ctx, host.ID, entity.PrivateType, "")

		require.NoError(t, err)
		assert.Equal(t, match.ID, again.ID)
	})

	t.Run("Third player cannot join", func(t *testing.T) {
		st := newStore(t)
		manager := st.newManager(t, Options{})
		match, _, _ := humanVsHuman(t, manager)
		third := newPlayer(t, manager)

		_, err := manager.JoinGame(ctx, match.ID, third.ID)

		require.ErrorIs(t, err, apperror.ErrGameIsFull)
	})

	t.Run("Unknown game type is rejected", func(t *testing.T) {
		st := newStore(t)
		manager := st.newManager(t, Options{})
		player := newPlayer(t, manager)

		_, err := manager.GetOrCreateGame(ctx, player.ID, "ranked", "")

		require.ErrorIs(t, err, ErrUnknownGameType)
	})
}

func TestGameManager_PublicGame(t *testing.T) {
	ctx := context.Background()

	// Given: two players looking for a public game
	st := newStore(t)
	manager := st.newManager(t, Options{})
	first, second := newPlayer(t, manager), newPlayer(t, manager)

	// When: the first one asks
	created, err := manager.GetOrCreateGame(ctx, first.ID, entity.PublicType, "")
	require.NoError(t, err)

	// Then: a new public game waits for an opponent
	assert.Equal(t, entity.StatusWaiting, created.Status)

	// When: the second one asks
	joined, err := manager.GetOrCreateGame(ctx, second.ID, entity.PublicType, "")

	// Then: both end up in the same started game
	require.NoError(t, err)
	assert.Equal(t, created.ID, joined.ID)
	assert.Equal(t, entity.StatusOngoing, joined.Status)
	assert.Len(t, joined.Players, 2)
}

func TestGameManager_MakeTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("Win is scored and persisted", func(t *testing.T) {
		// Given: a started game between two humans
		st := newStore(t)
		manager := st.newManager(t, Options{})
		match, host, guest := humanVsHuman(t, manager)

		// When: X completes the top row
		for i, cell := range []int{0, 3, 1, 4} {
			playerID := host.ID
			if i%2 == 1 {
				playerID = guest.ID
			}
			_, _, err := manager.MakeTurn(ctx, playerID, cell)
			require.NoError(t, err)
		}
		final, result, err := manager.MakeTurn(ctx, host.ID, 2)

		// Then: X wins and storage holds the finished state
		require.NoError(t, err)
		assert.Equal(t, entity.StatusWon, result.Outcome.Status)
		assert.Equal(t, entity.MarkX, final.Winner)

		stored, ok := st.match(match.ID)
		require.True(t, ok)
		assert.Equal(t, entity.Scores{X: 1}, stored.Scores)
	})

	t.Run("Rejected move returns the unchanged game", func(t *testing.T) {
		// Given: a started game where it's X's turn
		st := newStore(t)
		manager := st.newManager(t, Options{})
		_, _, guest := humanVsHuman(t, manager)

		// When: O tries to move
		match, result, err := manager.MakeTurn(ctx, guest.ID, 4)

		// Then: the move is refused and the board is empty
		require.ErrorIs(t, err, apperror.ErrNotYourTurn)
		assert.False(t, result.Accepted)
		assert.Equal(t, entity.Board{}, match.Board)
	})

	t.Run("Player without a game", func(t *testing.T) {
		st := newStore(t)
		manager := st.newManager(t, Options{})
		player := newPlayer(t, manager)

		_, _, err := manager.MakeTurn(ctx, player.ID, 4)

		require.ErrorIs(t, err, apperror.ErrNoActiveGames)
	})

	t.Run("Game survives a restart", func(t *testing.T) {
		// Given: a started game and a fresh manager over the same storage
		st := newStore(t)
		_, host, guest := humanVsHuman(t, st.newManager(t, Options{}))
		restarted := st.newManager(t, Options{})

		// When: both players keep playing through the new manager
		_, _, err := restarted.MakeTurn(ctx, host.ID, 4)
		require.NoError(t, err)
		match, _, err := restarted.MakeTurn(ctx, guest.ID, 0)

		// Then: the match continues where it was
		require.NoError(t, err)
		assert.Equal(t, entity.MarkX, match.Board[4])
		assert.Equal(t, entity.MarkO, match.Board[0])
	})
}

func TestGameManager_BotGame(t *testing.T) {
	ctx := context.Background()

	t.Run("Bot opens when it plays X", func(t *testing.T) {
		// Given: a manager whose bot always gets X in a classic match
		st := newStore(t)
		manager := st.newManager(t, Options{DefaultVariant: entity.ClassicVariant})
		manager.randomMarks = func() (entity.Mark, entity.Mark) { return entity.MarkO, entity.MarkX }
		player := newPlayer(t, manager)

		// When: the player starts a hard bot game
		match, err := manager.GetOrCreateGame(ctx, player.ID, entity.WithBotType, entity.HardDifficulty)

		// Then: the bot has already opened in the first cell
		require.NoError(t, err)
		assert.Equal(t, entity.StatusOngoing, match.Status)
		assert.Equal(t, entity.HardDifficulty, match.Difficulty)
		assert.Equal(t, entity.MarkX, match.Board[0])
		assert.Equal(t, entity.MarkO, match.Turn)

		// When: the player answers
		match, _, err = manager.MakeTurn(ctx, player.ID, 4)

		// Then: the bot replies right away
		require.NoError(t, err)
		assert.Equal(t, entity.MarkO, match.Turn)
		assert.Len(t, match.Moves.X, 2)

		stored, ok := st.match(match.ID)
		require.True(t, ok)
		assert.Len(t, stored.Moves.X, 2)
	})

	t.Run("Default difficulty is used", func(t *testing.T) {
		st := newStore(t)
		manager := st.newManager(t, Options{DefaultDifficulty: entity.EasyDifficulty})
		player := newPlayer(t, manager)

		match, err := manager.GetOrCreateGame(ctx, player.ID, entity.WithBotType, "")

		require.NoError(t, err)
		assert.Equal(t, entity.EasyDifficulty, match.Difficulty)
	})

	t.Run("Bot thinks before answering", func(t *testing.T) {
		// Given: a bot with a short think delay playing O
		st := newStore(t)
		manager := st.newManager(t, Options{ThinkDelay: 10 * time.Millisecond})
		manager.randomMarks = func() (entity.Mark, entity.Mark) { return entity.MarkX, entity.MarkO }
		player := newPlayer(t, manager)

		match, err := manager.GetOrCreateGame(ctx, player.ID, entity.WithBotType, entity.HardDifficulty)
		require.NoError(t, err)

		// When: the player moves
		_, _, err = manager.MakeTurn(ctx, player.ID, 4)
		require.NoError(t, err)

		// Then: the bot answers after the delay
		assert.Eventually(t, func() bool {
			current, err := manager.GetMatch(ctx, match.ID)
			return err == nil && current.Turn == entity.MarkX && len(current.Moves.O) == 1
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("Close cancels a pending bot turn", func(t *testing.T) {
		// Given: a bot that would think for an hour
		st := newStore(t)
		manager := st.newManager(t, Options{ThinkDelay: time.Hour})
		manager.randomMarks = func() (entity.Mark, entity.Mark) { return entity.MarkX, entity.MarkO }
		player := newPlayer(t, manager)

		match, err := manager.GetOrCreateGame(ctx, player.ID, entity.WithBotType, entity.HardDifficulty)
		require.NoError(t, err)
		_, _, err = manager.MakeTurn(ctx, player.ID, 4)
		require.NoError(t, err)

		// When: the manager is closed
		manager.Close()

		// Then: the bot never moved
		current, err := manager.GetMatch(ctx, match.ID)
		require.NoError(t, err)
		assert.Empty(t, current.Moves.O)
	})

	t.Run("Nobody can join a bot game", func(t *testing.T) {
		st := newStore(t)
		manager := st.newManager(t, Options{})
		player, other := newPlayer(t, manager), newPlayer(t, manager)

		match, err := manager.GetOrCreateGame(ctx, player.ID, entity.WithBotType, "")
		require.NoError(t, err)

		_, err = manager.JoinGame(ctx, match.ID, other.ID)
		require.ErrorIs(t, err, apperror.ErrGameIsFull)
	})
}

func TestGameManager_Rematch(t *testing.T) {
	ctx := context.Background()

	t.Run("Score survives a rematch", func(t *testing.T) {
		// Given: X has won a round
		st := newStore(t)
		manager := st.newManager(t, Options{})
		_, host, guest := humanVsHuman(t, manager)

		for i, cell := range []int{0, 3, 1, 4, 2} {
			playerID := host.ID
			if i%2 == 1 {
				playerID = guest.ID
			}
			_, _, err := manager.MakeTurn(ctx, playerID, cell)
			require.NoError(t, err)
		}

		// When: the loser asks for a rematch
		match, err := manager.Rematch(ctx, guest.ID)

		// Then: a fresh round starts with X and the score kept
		require.NoError(t, err)
		assert.Equal(t, entity.StatusOngoing, match.Status)
		assert.Equal(t, entity.Board{}, match.Board)
		assert.Equal(t, entity.MarkX, match.Turn)
		assert.Equal(t, uint64(1), match.Generation)
		assert.Equal(t, entity.Scores{X: 1}, match.Scores)
	})

	t.Run("Waiting game cannot be rematched", func(t *testing.T) {
		st := newStore(t)
		manager := st.newManager(t, Options{})
		player := newPlayer(t, manager)

		_, err := manager.GetOrCreateGame(ctx, player.ID, entity.PrivateType, "")
		require.NoError(t, err)

		_, err = manager.Rematch(ctx, player.ID)
		require.ErrorIs(t, err, apperror.ErrGameIsNotStarted)
	})
}

func TestGameManager_LeaveGame(t *testing.T) {
	ctx := context.Background()

	t.Run("Leaving ends the game for both players", func(t *testing.T) {
		// Given: a started game
		st := newStore(t)
		manager := st.newManager(t, Options{})
		match, host, guest := humanVsHuman(t, manager)

		// When: the guest leaves
		final, err := manager.LeaveGame(ctx, guest.ID)

		// Then: the game is gone and both players are free
		require.NoError(t, err)
		assert.Equal(t, match.ID, final.ID)

		_, ok := st.match(match.ID)
		assert.False(t, ok)
		assert.Empty(t, st.player(host.ID).GameID)
		assert.Empty(t, st.player(guest.ID).GameID)

		_, err = manager.GetMatch(ctx, match.ID)
		require.ErrorIs(t, err, repository.ErrGameNotFound)
	})

	t.Run("Leaving drops a pending bot turn", func(t *testing.T) {
		// Given: a bot game where the bot is still thinking
		st := newStore(t)
		manager := st.newManager(t, Options{ThinkDelay: 20 * time.Millisecond})
		manager.randomMarks = func() (entity.Mark, entity.Mark) { return entity.MarkX, entity.MarkO }
		player := newPlayer(t, manager)

		match, err := manager.GetOrCreateGame(ctx, player.ID, entity.WithBotType, entity.HardDifficulty)
		require.NoError(t, err)
		_, _, err = manager.MakeTurn(ctx, player.ID, 4)
		require.NoError(t, err)

		// When: the player leaves before the bot answers
		_, err = manager.LeaveGame(ctx, player.ID)
		require.NoError(t, err)

		// Then: the bot's timer fires without bringing the match back
		assert.Never(t, func() bool {
			_, ok := st.match(match.ID)
			return ok
		}, 150*time.Millisecond, 5*time.Millisecond)

		_, err = manager.GetMatch(ctx, match.ID)
		require.ErrorIs(t, err, repository.ErrGameNotFound)
	})

	t.Run("Leaving without a game", func(t *testing.T) {
		st := newStore(t)
		manager := st.newManager(t, Options{})
		player := newPlayer(t, manager)

		_, err := manager.LeaveGame(ctx, player.ID)

		require.ErrorIs(t, err, apperror.ErrNoActiveGames)
	})
}

func TestGameManager_Subscribe(t *testing.T) {
	ctx := context.Background()

	// Given: an observer subscribed before any game exists
	st := newStore(t)
	manager := st.newManager(t, Options{})

	var mu sync.Mutex
	var kinds []tictactoe.EventKind
	manager.Subscribe(tictactoe.ObserverFunc(func(event tictactoe.Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, event.Kind)
	}))

	// When: a game is started and a move made
	_, host, _ := humanVsHuman(t, manager)
	_, _, err := manager.MakeTurn(ctx, host.ID, 4)
	require.NoError(t, err)

	// Then: the observer saw every event in order
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []tictactoe.EventKind{
		tictactoe.EventStarted,
		tictactoe.EventTurnChanged,
		tictactoe.EventPlaced,
		tictactoe.EventTurnChanged,
	}, kinds)
}
