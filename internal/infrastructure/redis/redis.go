// Package redis mirrors ephemeral chat state (who is online, who is
// typing) into a store shared with the other ScholarConnect services.
package redis

import (
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisClient wraps the shared presence store. Presence and typing keys
// live in the default database alongside the backend's session cache.
type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(host, port, password string) *RedisClient {
	return &RedisClient{client: redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})}
}
