package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// delIfValue removes KEYS[1] only while it still holds ARGV[1].
var delIfValue = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Get returns redis.Nil when key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.store == nil {
		return "", errNotInitialized
	}
	return c.store.Get(ctx, key).Result()
}

// Set writes value under key. A zero ttl keeps the key forever.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.store == nil {
		return errNotInitialized
	}
	return c.store.Set(ctx, key, value, ttl).Err()
}

// SetNX reports whether this call created the key.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.store == nil {
		return errNotInitialized
	}
	if len(keys) == 0 {
		return nil
	}
	return c.store.Del(ctx, keys...).Err()
}

// DelIfValue deletes key atomically when it still holds value and reports
// whether anything was removed.
func (c *Client) DelIfValue(ctx context.Context, key, value string) (bool, error) {
	if c.scripter == nil {
		return false, errNotInitialized
	}
	n, err := delIfValue.Run(ctx, c.scripter, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
