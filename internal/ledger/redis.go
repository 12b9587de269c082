package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Server-side scripts keep each composite operation a single indivisible step.
// Return codes: 1 = committed, 0 = cooldown active, -1 = out of stock.
var (
	scriptCooldownOnly = redis.NewScript(`
local cd = KEYS[1]
local ttl = tonumber(ARGV[1])
if redis.call('EXISTS', cd) == 1 then
    return 0
end
redis.call('SET', cd, '1', 'EX', ttl, 'NX')
return 1
`)

	scriptCooldownAndDecr = redis.NewScript(`
local cd = KEYS[1]
local stock = KEYS[2]
local sold = KEYS[3]
local ttl = tonumber(ARGV[1])
if redis.call('EXISTS', cd) == 1 then
    return 0
end
local n = tonumber(redis.call('GET', stock) or '0')
if n <= 0 then
    redis.call('SET', cd, '1', 'EX', ttl, 'NX')
    return -1
end
redis.call('DECR', stock)
redis.call('INCR', sold)
redis.call('SET', cd, '1', 'EX', ttl, 'NX')
return 1
`)
)

type RedisLedger struct {
	rdb *redis.Client
}

func NewRedisLedger(rdb *redis.Client) *RedisLedger {
	return &RedisLedger{rdb: rdb}
}

func cooldownKey(userID uuid.UUID) string { return "lottery:cooldown:" + userID.String() }
func stockKey(prizeID uuid.UUID) string   { return "lottery:stock:" + prizeID.String() }
func soldKey(prizeID uuid.UUID) string    { return "lottery:sold:" + prizeID.String() }

func ttlSeconds(ttl time.Duration) int64 {
	s := int64(ttl / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

func (l *RedisLedger) CooldownOnly(ctx context.Context, userID uuid.UUID, ttl time.Duration) (Result, error) {
	r, err := scriptCooldownOnly.Run(ctx, l.rdb, []string{cooldownKey(userID)}, ttlSeconds(ttl)).Int64()
	if err != nil {
		return Denied, fmt.Errorf("ledger cooldown script: %w", err)
	}
	if r == 0 {
		return Denied, nil
	}
	return Committed, nil
}

func (l *RedisLedger) CooldownAndDecrement(ctx context.Context, userID, prizeID uuid.UUID, ttl time.Duration) (Result, error) {
	keys := []string{cooldownKey(userID), stockKey(prizeID), soldKey(prizeID)}
	r, err := scriptCooldownAndDecr.Run(ctx, l.rdb, keys, ttlSeconds(ttl)).Int64()
	if err != nil {
		return Denied, fmt.Errorf("ledger decrement script: %w", err)
	}
	switch r {
	case 0:
		return Denied, nil
	case -1:
		return OutOfStock, nil
	default:
		return Committed, nil
	}
}

func (l *RedisLedger) Stock(ctx context.Context, prizeID uuid.UUID) (int64, error) {
	n, err := l.rdb.Get(ctx, stockKey(prizeID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger stock get: %w", err)
	}
	return n, nil
}

func (l *RedisLedger) SeedStock(ctx context.Context, prizeID uuid.UUID, remaining int64) error {
	pipe := l.rdb.TxPipeline()
	pipe.Set(ctx, stockKey(prizeID), remaining, 0)
	pipe.Del(ctx, soldKey(prizeID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ledger stock seed: %w", err)
	}
	return nil
}

func (l *RedisLedger) DrainSold(ctx context.Context, prizeID uuid.UUID) (int64, error) {
	n, err := l.rdb.GetDel(ctx, soldKey(prizeID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger sold drain: %w", err)
	}
	return n, nil
}

func (l *RedisLedger) AddSold(ctx context.Context, prizeID uuid.UUID, n int64) error {
	if err := l.rdb.IncrBy(ctx, soldKey(prizeID), n).Err(); err != nil {
		return fmt.Errorf("ledger sold add: %w", err)
	}
	return nil
}
