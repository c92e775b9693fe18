package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

const (
	accountNumberPrefix = "7"
	accountNumberDigits = 11
	maxNumberAttempts   = 16
)

// RandomAccountNumbers issues "7" followed by 11 random digits, retrying on collision.
type RandomAccountNumbers struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomAccountNumbers seeds a generator. A nil source uses a random seed.
func NewRandomAccountNumbers(src rand.Source) *RandomAccountNumbers {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &RandomAccountNumbers{rng: rand.New(src)}
}

// NewAccountNumber implements IDGenerator.
func (g *RandomAccountNumbers) NewAccountNumber(ctx context.Context, exists func(string) (bool, error)) (string, error) {
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := g.candidate()
		taken, err := exists(candidate)
		if err != nil {
			return "", fmt.Errorf("NewAccountNumber: checking %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("NewAccountNumber: no free number after %d attempts", maxNumberAttempts)
}

func (g *RandomAccountNumbers) candidate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var b strings.Builder
	b.WriteString(accountNumberPrefix)
	for i := 0; i < accountNumberDigits; i++ {
		b.WriteByte(byte('0' + g.rng.IntN(10)))
	}
	return b.String()
}

// SequentialAccountNumbers issues predictable numbers ("700000000001", ...). Useful in tests and demos.
type SequentialAccountNumbers struct {
	mu   sync.Mutex
	next int64
}

// NewSequentialAccountNumbers starts the sequence at start.
func NewSequentialAccountNumbers(start int64) *SequentialAccountNumbers {
	return &SequentialAccountNumbers{next: start}
}

// NewAccountNumber implements IDGenerator.
func (g *SequentialAccountNumbers) NewAccountNumber(ctx context.Context, exists func(string) (bool, error)) (string, error) {
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		g.mu.Lock()
		candidate := fmt.Sprintf("%s%0*d", accountNumberPrefix, accountNumberDigits, g.next)
		g.next++
		g.mu.Unlock()

		taken, err := exists(candidate)
		if err != nil {
			return "", fmt.Errorf("NewAccountNumber: checking %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("NewAccountNumber: no free number after %d attempts", maxNumberAttempts)
}

var (
	_ IDGenerator = (*RandomAccountNumbers)(nil)
	_ IDGenerator = (*SequentialAccountNumbers)(nil)
)
