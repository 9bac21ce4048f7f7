package pkg

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateGameID(t *testing.T) {
	seen := make(map[string]struct{})

	for iter := 0; iter < 100; iter++ {
		id, err := GenerateGameID()
		require.NoError(t, err)

		assert.Len(t, id, gameIDLength)
		for _, r := range id {
			assert.True(t, strings.ContainsRune(gameIDAlphabet, r), "unexpected rune %q", r)
		}

		seen[id] = struct{}{}
	}

	assert.Greater(t, len(seen), 90)
}

func TestGenerateNewSessionID(t *testing.T) {
	id := GenerateNewSessionID()

	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, GenerateNewSessionID())
}
