package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/strwt/UniclaimRepo-sub001/internal/auditor"
)

type Client struct {
	rdb *redis.Client
}

func NewRedis(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &Client{rdb: rdb}, nil
}

const luaRateLimit = `
local current = redis.call("incr", KEYS[1])
if current == 1 then
  redis.call("expire", KEYS[1], ARGV[1])
end
return current
`

// AllowSend rate-limits message sends per user with a rolling INCR window.
func (c *Client) AllowSend(ctx context.Context, userID string, limit int, window time.Duration) (bool, error) {
	key := "rate:send:" + userID
	count, err := c.rdb.Eval(ctx, luaRateLimit, []string{key}, int(window.Seconds())).Int()
	if err != nil {
		return false, err
	}
	return count <= limit, nil
}

const healthKey = "auditor:health"

func (c *Client) GetHealthSnapshot(ctx context.Context) (*auditor.HealthReport, error) {
	raw, err := c.rdb.Get(ctx, healthKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r auditor.HealthReport
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) SetHealthSnapshot(ctx context.Context, r *auditor.HealthReport, ttl time.Duration) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, healthKey, b, ttl).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
