// Package cachesvc implements the credit balance cache and the award vote tally.
package cachesvc

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/sautiplus/backoffice/core/award"
	"github.com/sautiplus/backoffice/core/credit"
)

const (
	balanceTTL = 10 * time.Minute
	tallyTTL   = 24 * time.Hour

	// tallyLoaded marks a tally hash as complete.
	tallyLoaded = "_loaded"
)

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, errors.Wrap(err, "parsing redis url")
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

// RedisBalanceCache caches wallet balances under credit:balance:<user>.
type RedisBalanceCache struct {
	client *redis.Client
}

var _ credit.BalanceCache = (*RedisBalanceCache)(nil)

func NewRedisBalanceCache(client *redis.Client) *RedisBalanceCache {
	return &RedisBalanceCache{client: client}
}

func balanceKey(userID string) string { return "credit:balance:" + userID }

func (c *RedisBalanceCache) Get(ctx context.Context, userID string) (int64, bool, error) {
	bal, err := c.client.Get(ctx, balanceKey(userID)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return bal, true, nil
}

func (c *RedisBalanceCache) Set(ctx context.Context, userID string, balance int64) error {
	return c.client.Set(ctx, balanceKey(userID), balance, balanceTTL).Err()
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, balanceKey(userID)).Err()
}

// RedisTallyCache keeps the vote counts of a category in the hash award:tally:<category>.
// Increments are dropped until the tally is loaded, so a present hash is always complete.
type RedisTallyCache struct {
	client *redis.Client
}

var _ award.TallyCache = (*RedisTallyCache)(nil)

func NewRedisTallyCache(client *redis.Client) *RedisTallyCache {
	return &RedisTallyCache{client: client}
}

func tallyKey(categoryID string) string { return "award:tally:" + categoryID }

var incrIfLoaded = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 then
	return redis.call("HINCRBY", KEYS[1], ARGV[2], 1)
end
return false
`)

func (c *RedisTallyCache) Incr(ctx context.Context, categoryID, nomineeID string) error {
	err := incrIfLoaded.Run(ctx, c.client, []string{tallyKey(categoryID)}, tallyLoaded, nomineeID).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}

func (c *RedisTallyCache) Counts(ctx context.Context, categoryID string) (map[string]int64, bool, error) {
	vals, err := c.client.HGetAll(ctx, tallyKey(categoryID)).Result()
	if err != nil {
		return nil, false, err
	}
	if _, ok := vals[tallyLoaded]; !ok {
		return nil, false, nil
	}

	counts := make(map[string]int64, len(vals)-1)
	for nomineeID, raw := range vals {
		if nomineeID == tallyLoaded {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, false, errors.Wrapf(err, "parsing tally of %s", nomineeID)
		}
		counts[nomineeID] = n
	}
	return counts, true, nil
}

func (c *RedisTallyCache) Load(ctx context.Context, categoryID string, counts map[string]int64) error {
	key := tallyKey(categoryID)
	values := make([]interface{}, 0, 2*len(counts)+2)
	values = append(values, tallyLoaded, 1)
	for nomineeID, n := range counts {
		values = append(values, nomineeID, n)
	}

	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, values...)
		p.Expire(ctx, key, tallyTTL)
		return nil
	})
	return err
}
