package capital

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultPoolKey is the Redis key holding the pool balance.
const DefaultPoolKey = "trading-agent-lab:capital-pool"

// allocateScript deducts ARGV[1] from KEYS[1] only if the balance covers it.
// Returns {status, balance}: 1 granted, 0 refused, -1 negative balance.
// Balances travel as strings because Lua numbers are truncated to integers on reply.
var allocateScript = redis.NewScript(`
local bal = tonumber(redis.call('GET', KEYS[1]) or '0')
local amt = tonumber(ARGV[1])
if bal < 0 then
	return {-1, tostring(bal)}
end
if bal < amt then
	return {0, tostring(bal)}
end
local nb = redis.call('INCRBYFLOAT', KEYS[1], -amt)
return {1, nb}
`)

// RedisPoolOptions contains configuration for creating a RedisPool.
type RedisPoolOptions struct {
	Client *redis.Client
	Key    string // DefaultPoolKey when empty
	Logger zerolog.Logger
}

// RedisPool is a Pool shared between processes through Redis.
type RedisPool struct {
	client *redis.Client
	key    string
	logger zerolog.Logger
}

// Compile-time interface check.
var _ Pool = (*RedisPool)(nil)

// NewRedisPool creates a pool on an existing client and verifies connectivity.
func NewRedisPool(ctx context.Context, opts RedisPoolOptions) (*RedisPool, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Key == "" {
		opts.Key = DefaultPoolKey
	}
	if err := opts.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisPool{
		client: opts.Client,
		key:    opts.Key,
		logger: opts.Logger.With().Str("component", "RedisCapitalPool").Str("key", opts.Key).Logger(),
	}, nil
}

// Reset overwrites the balance. Used when a run starts.
func (p *RedisPool) Reset(ctx context.Context, balance float64) error {
	if err := validAmount(balance); err != nil {
		return err
	}
	if err := p.client.Set(ctx, p.key, formatAmount(balance), 0).Err(); err != nil {
		return fmt.Errorf("reset pool: %w", err)
	}
	p.logger.Info().Float64("balance", balance).Msg("capital pool reset")
	return nil
}

// Allocate implements Pool.
func (p *RedisPool) Allocate(ctx context.Context, amount float64) (float64, bool, error) {
	if err := validAmount(amount); err != nil {
		return 0, false, err
	}

	res, err := allocateScript.Run(ctx, p.client, []string{p.key}, formatAmount(amount)).Slice()
	if err != nil {
		return 0, false, fmt.Errorf("allocate from pool: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("allocate from pool: unexpected reply %v", res)
	}

	status, _ := res[0].(int64)
	balance, _ := res[1].(string)
	switch status {
	case 1:
		return amount, true, nil
	case 0:
		p.logger.Debug().Float64("requested", amount).Str("balance", balance).Msg("allocation refused")
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("%w: %s", ErrNegativePool, balance)
	}
}

// Return implements Pool.
func (p *RedisPool) Return(ctx context.Context, amount float64) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if err := p.client.IncrByFloat(ctx, p.key, amount).Err(); err != nil {
		return fmt.Errorf("return to pool: %w", err)
	}
	return nil
}

// Balance implements Pool. A missing key is an empty pool.
func (p *RedisPool) Balance(ctx context.Context) (float64, error) {
	s, err := p.client.Get(ctx, p.key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read pool balance: %w", err)
	}

	bal, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse pool balance %q: %w", s, err)
	}
	if bal < 0 {
		return bal, fmt.Errorf("%w: %v", ErrNegativePool, bal)
	}
	return bal, nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
