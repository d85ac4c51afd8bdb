package cachesvc

import (
	"context"
	"sync"

	"github.com/sautiplus/backoffice/core/award"
	"github.com/sautiplus/backoffice/core/credit"
)

// MemoryBalanceCache is the process-local credit.BalanceCache used without redis.
type MemoryBalanceCache struct {
	mu       sync.RWMutex
	balances map[string]int64
}

var _ credit.BalanceCache = (*MemoryBalanceCache)(nil)

func NewMemoryBalanceCache() *MemoryBalanceCache {
	return &MemoryBalanceCache{balances: make(map[string]int64)}
}

func (c *MemoryBalanceCache) Get(_ context.Context, userID string) (int64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bal, ok := c.balances[userID]
	return bal, ok, nil
}

func (c *MemoryBalanceCache) Set(_ context.Context, userID string, balance int64) error {
	c.mu.Lock()
	c.balances[userID] = balance
	c.mu.Unlock()
	return nil
}

func (c *MemoryBalanceCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	delete(c.balances, userID)
	c.mu.Unlock()
	return nil
}

// MemoryTallyCache is the process-local award.TallyCache used without redis.
type MemoryTallyCache struct {
	mu      sync.Mutex
	tallies map[string]map[string]int64
}

var _ award.TallyCache = (*MemoryTallyCache)(nil)

func NewMemoryTallyCache() *MemoryTallyCache {
	return &MemoryTallyCache{tallies: make(map[string]map[string]int64)}
}

func (c *MemoryTallyCache) Incr(_ context.Context, categoryID, nomineeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tally, ok := c.tallies[categoryID]; ok {
		tally[nomineeID]++
	}
	return nil
}

func (c *MemoryTallyCache) Counts(_ context.Context, categoryID string) (map[string]int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tally, ok := c.tallies[categoryID]
	if !ok {
		return nil, false, nil
	}
	counts := make(map[string]int64, len(tally))
	for k, v := range tally {
		counts[k] = v
	}
	return counts, true, nil
}

func (c *MemoryTallyCache) Load(_ context.Context, categoryID string, counts map[string]int64) error {
	tally := make(map[string]int64, len(counts))
	for k, v := range counts {
		tally[k] = v
	}
	c.mu.Lock()
	c.tallies[categoryID] = tally
	c.mu.Unlock()
	return nil
}
