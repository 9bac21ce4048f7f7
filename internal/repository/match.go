package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/gravity-tictactoe/internal/entity"
)

var ErrGameNotFound = errors.New("game not found")

const (
	matchKeyPrefix   = "match:"
	waitingPublicKey = "matches:public:waiting"
)

// MatchRepository stores the current snapshot of each match, never its history.
type MatchRepository interface {
	CreateOrUpdate(ctx context.Context, match *entity.Match) error
	GetByID(ctx context.Context, id string) (*entity.Match, error)
	GetWaitingPublic(ctx context.Context) (*entity.Match, error)
	DeleteByID(ctx context.Context, id string) error
}

type dbMatch struct {
	client *redis.Client
}

func NewMatchRepository(client *redis.Client) MatchRepository {
	return &dbMatch{
		client: client,
	}
}

func (that *dbMatch) CreateOrUpdate(ctx context.Context, match *entity.Match) error {
	matchJSON, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("could not marshal match: %w", err)
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, matchKeyPrefix+match.ID, matchJSON, 0)

		if isJoinable(match) {
			pipe.SAdd(ctx, waitingPublicKey, match.ID)
		} else {
			pipe.SRem(ctx, waitingPublicKey, match.ID)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set match: %w", err)
	}

	return nil
}

func (that *dbMatch) GetByID(ctx context.Context, id string) (*entity.Match, error) {
	response, err := that.client.Get(ctx, matchKeyPrefix+id).Result()

	if errors.Is(err, redis.Nil) {
		return &entity.Match{}, ErrGameNotFound
	}

	if err != nil {
		return &entity.Match{}, fmt.Errorf("failed to get match by id: %w", err)
	}

	var existingMatch entity.Match
	if err = json.Unmarshal([]byte(response), &existingMatch); err != nil {
		return &entity.Match{}, fmt.Errorf("failed to unmarshal match: %w", err)
	}

	return &existingMatch, nil
}

// GetWaitingPublic - returns any public match still waiting for a second player.
func (that *dbMatch) GetWaitingPublic(ctx context.Context) (*entity.Match, error) {
	ids, err := that.client.SMembers(ctx, waitingPublicKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting matches: %w", err)
	}

	for _, id := range ids {
		match, err := that.GetByID(ctx, id)
		if errors.Is(err, ErrGameNotFound) {
			that.client.SRem(ctx, waitingPublicKey, id)
			continue
		}

		if err != nil {
			return nil, err
		}

		if isJoinable(match) {
			return match, nil
		}
	}

	return nil, ErrGameNotFound
}

func (that *dbMatch) DeleteByID(ctx context.Context, id string) error {
	_, err := that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, matchKeyPrefix+id)
		pipe.SRem(ctx, waitingPublicKey, id)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete match by id: %w", err)
	}

	return nil
}

func isJoinable(match *entity.Match) bool {
	return match.IsPublic() && match.IsWaiting() && len(match.Players) < 2
}
