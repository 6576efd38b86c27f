package pipeline

import (
	"errors"
	"sync"
)

// ErrBudgetExceeded is recorded for topics skipped after the token budget ran out.
var ErrBudgetExceeded = errors.New("token budget exceeded")

// Budget tracks the USD cost of a single guide. A non-positive limit means
// unlimited.
type Budget struct {
	mu         sync.Mutex
	limitUSD   float64
	pricePer1K float64
	spentUSD   float64
}

func NewBudget(limitUSD, pricePer1K float64) *Budget {
	return &Budget{limitUSD: limitUSD, pricePer1K: pricePer1K}
}

// Charge adds the cost of tokens and returns that cost.
func (b *Budget) Charge(tokens int) float64 {
	cost := float64(tokens) / 1000 * b.pricePer1K
	b.mu.Lock()
	b.spentUSD += cost
	b.mu.Unlock()
	return cost
}

// Exceeded reports whether spending has gone over the limit.
func (b *Budget) Exceeded() bool {
	if b.limitUSD <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spentUSD > b.limitUSD
}

func (b *Budget) Spent() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spentUSD
}
