package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/tyler-smith/go-bip39/wordlists"
)

// shareWords is the BIP39 English wordlist (2048 words). Two words plus a
// number gives 2048 × 2048 × 100 = 419 million combinations.
var shareWords = wordlists.English

// ShareKeyChecker reports whether a candidate share key is already taken.
type ShareKeyChecker interface {
	ShareKeyInUse(ctx context.Context, key string) (bool, error)
}

// ShareKeyService generates unique, human-readable keys for session sharing.
// Keys follow the pattern "word-word-number" (e.g., "apple-river-42").
type ShareKeyService struct {
	checker ShareKeyChecker
	mu      sync.Mutex // guards rng, which is not safe for concurrent use
	rng     *rand.Rand
}

// NewShareKeyService creates a ShareKeyService with its own random source.
func NewShareKeyService(checker ShareKeyChecker) *ShareKeyService {
	return &ShareKeyService{
		checker: checker,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Generate creates a unique share key, retrying if collisions occur.
// Returns an error if no unique key can be found after 100 attempts.
func (s *ShareKeyService) Generate(ctx context.Context) (string, error) {
	maxAttempts := 100
	for i := 0; i < maxAttempts; i++ {
		key := s.candidate()

		taken, err := s.checker.ShareKeyInUse(ctx, key)
		if err != nil {
			return "", fmt.Errorf("failed to check key existence: %w", err)
		}
		if !taken {
			return key, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique key after %d attempts", maxAttempts)
}

func (s *ShareKeyService) candidate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	word1 := shareWords[s.rng.Intn(len(shareWords))]
	word2 := shareWords[s.rng.Intn(len(shareWords))]
	num := s.rng.Intn(100)
	return fmt.Sprintf("%s-%s-%d", word1, word2, num)
}
