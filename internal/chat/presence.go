package chat

import (
	"context"
	"log"
	"sync"
	"time"
)

type presenceEntry struct {
	connID string
	gen    uint64
}

// Registry tracks which users currently hold a live connection. Each
// registration bumps a per-user generation counter; an offline request
// only lands if it carries the generation currently on record, so a
// superseded connection's late disconnect handler cannot mark a
// re-connected user offline.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]presenceEntry

	repo    *Repo
	live    LiveStore
	emitter Emitter
	relay   Relay
}

func NewRegistry(repo *Repo, live LiveStore, emitter Emitter, relay Relay) *Registry {
	return &Registry{
		entries: make(map[string]presenceEntry),
		repo:    repo,
		live:    live,
		emitter: emitter,
		relay:   relay,
	}
}

// RegisterOnline records the connection as the user's current one and
// returns the generation the caller must present at disconnect.
// Re-authentication simply overwrites. Persistence and the redis mirror
// are best-effort; the broadcast always goes out.
func (p *Registry) RegisterOnline(ctx context.Context, userID, connID string) uint64 {
	p.mu.Lock()
	gen := p.entries[userID].gen + 1
	p.entries[userID] = presenceEntry{connID: connID, gen: gen}
	p.mu.Unlock()

	now := time.Now()
	if err := p.repo.UpsertPresence(ctx, userID, PresenceOnline, now); err != nil {
		log.Printf("presence: failed to persist online status for %s: %v", userID, err)
	}
	if err := p.live.SetUserOnline(ctx, userID); err != nil {
		log.Printf("presence: failed to mirror online status for %s: %v", userID, err)
	}

	p.emitter.Broadcast(userID, "user_online", map[string]any{
		"user_id":   userID,
		"status":    PresenceOnline,
		"timestamp": now.Format(time.RFC3339),
	})
	if err := p.relay.Publish(ctx, PresenceEvent{UserID: userID, Status: PresenceOnline, Timestamp: now}); err != nil {
		log.Printf("presence: failed to relay online event for %s: %v", userID, err)
	}
	return gen
}

// RegisterOffline flips the user offline only when gen matches the
// registration currently on record. A stale disconnect is a no-op.
func (p *Registry) RegisterOffline(ctx context.Context, userID string, gen uint64) {
	p.mu.Lock()
	entry, ok := p.entries[userID]
	if !ok || entry.gen != gen {
		p.mu.Unlock()
		return
	}
	delete(p.entries, userID)
	p.mu.Unlock()

	now := time.Now()
	if err := p.repo.UpsertPresence(ctx, userID, PresenceOffline, now); err != nil {
		log.Printf("presence: failed to persist offline status for %s: %v", userID, err)
	}
	if err := p.live.SetUserOffline(ctx, userID); err != nil {
		log.Printf("presence: failed to mirror offline status for %s: %v", userID, err)
	}

	p.emitter.Broadcast(userID, "user_offline", map[string]any{
		"user_id":   userID,
		"status":    PresenceOffline,
		"last_seen": now.Format(time.RFC3339),
	})
	if err := p.relay.Publish(ctx, PresenceEvent{UserID: userID, Status: PresenceOffline, Timestamp: now}); err != nil {
		log.Printf("presence: failed to relay offline event for %s: %v", userID, err)
	}
}

// IsOnline reports whether the user has a registered connection.
func (p *Registry) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entries[userID]
	return ok
}

// OnlineUsers returns the ids of all users currently on record.
func (p *Registry) OnlineUsers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.entries))
	for id := range p.entries {
		out = append(out, id)
	}
	return out
}
