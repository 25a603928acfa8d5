package riot

import (
	"context"
	"sync"
)

// Resolver maps player tags to provider ids.
type Resolver interface {
	ResolvePUUID(ctx context.Context, tag string) (string, error)
}

// IdentityCache memoizes successful tag lookups. One cache lives for one update cycle;
// failures are not cached.
type IdentityCache struct {
	next    Resolver
	mu      sync.RWMutex
	entries map[string]string
}

// NewIdentityCache wraps next.
func NewIdentityCache(next Resolver) *IdentityCache {
	return &IdentityCache{next: next, entries: make(map[string]string)}
}

// ResolvePUUID implements Resolver.
func (c *IdentityCache) ResolvePUUID(ctx context.Context, tag string) (string, error) {
	c.mu.RLock()
	puuid, ok := c.entries[tag]
	c.mu.RUnlock()
	if ok {
		return puuid, nil
	}
	puuid, err := c.next.ResolvePUUID(ctx, tag)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.entries[tag] = puuid
	c.mu.Unlock()
	return puuid, nil
}

// Len returns the number of cached identities.
func (c *IdentityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CycleGateway is the client as seen by one update cycle: identity lookups go
// through the cycle's cache, everything else straight to the shared client.
type CycleGateway struct {
	*Client
	identities *IdentityCache
}

// ForCycle returns a gateway with a fresh identity cache.
func (c *Client) ForCycle() *CycleGateway {
	return &CycleGateway{Client: c, identities: NewIdentityCache(c)}
}

// ResolvePUUID implements Resolver using the cycle cache.
func (g *CycleGateway) ResolvePUUID(ctx context.Context, tag string) (string, error) {
	return g.identities.ResolvePUUID(ctx, tag)
}
