package redis

import (
	"context"
	"fmt"
	"time"
)

const (
	onlineKey = "presence:online"
	typingTTL = 30 * time.Second
)

// SetUserOnline adds the user to the shared online hash other
// ScholarConnect services read.
func (r *RedisClient) SetUserOnline(ctx context.Context, userID string) error {
	return r.client.HSet(ctx, onlineKey, userID, time.Now().Format(time.RFC3339)).Err()
}

func (r *RedisClient) SetUserOffline(ctx context.Context, userID string) error {
	return r.client.HDel(ctx, onlineKey, userID).Err()
}

// GetOnlineUsers returns userID -> connected-since for every user in the
// online hash.
func (r *RedisClient) GetOnlineUsers(ctx context.Context) (map[string]string, error) {
	return r.client.HGetAll(ctx, onlineKey).Result()
}

// SetUserTyping keeps a TTL'd key per (room, user) so a typing indicator
// expires on its own even if the stop never arrives.
func (r *RedisClient) SetUserTyping(ctx context.Context, roomID, userID string, isTyping bool) error {
	key := fmt.Sprintf("room:%s:typing:%s", roomID, userID)
	if isTyping {
		return r.client.Set(ctx, key, "true", typingTTL).Err()
	}
	return r.client.Del(ctx, key).Err()
}

// GetTypingUsers lists the users currently typing in the room.
func (r *RedisClient) GetTypingUsers(ctx context.Context, roomID string) ([]string, error) {
	pattern := fmt.Sprintf("room:%s:typing:*", roomID)
	keys, err := r.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("room:%s:typing:", roomID)
	var typingUsers []string
	for _, key := range keys {
		if len(key) > len(prefix) {
			typingUsers = append(typingUsers, key[len(prefix):])
		}
	}
	return typingUsers, nil
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
