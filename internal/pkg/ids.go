package pkg

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	gameIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	gameIDLength   = 6
)

// GenerateGameID - returns a short code players can type to join a private game.
func GenerateGameID() (string, error) {
	id := make([]byte, gameIDLength)
	limit := big.NewInt(int64(len(gameIDAlphabet)))

	for i := range id {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to read random: %w", err)
		}
		id[i] = gameIDAlphabet[n.Int64()]
	}

	return string(id), nil
}

func GenerateNewSessionID() string {
	return uuid.NewString()
}
