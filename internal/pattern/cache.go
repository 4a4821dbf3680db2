package pattern

import (
	"context"
	"sync"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/service"
)

// DefaultCacheTTL bounds how stale cached rules may become when another
// process writes to the store.
const DefaultCacheTTL = 5 * time.Minute

// cacheEntry holds one scope's active rules.
type cacheEntry struct {
	expiry time.Time
	rules  []model.CategorizationRule
}

// CachedRuleStore is a read-through cache over a RuleStore. Active rules are
// cached per scope and every write through the cache invalidates the
// affected scope.
//
// Each invalidation bumps a generation counter. A load only populates the
// cache if no invalidation touched its scope while it ran, so a write that
// lands mid-load is never masked for a whole TTL.
type CachedRuleStore struct {
	service.RuleStore
	entries map[model.Scope]cacheEntry
	scopes  map[string]model.Scope
	gens    map[model.Scope]uint64
	stopCh  chan struct{}
	now     func() time.Time
	ttl     time.Duration
	epoch   uint64
	mu      sync.RWMutex
	once    sync.Once
}

// generation identifies the cache state a load started from.
type generation struct {
	scope uint64
	epoch uint64
}

// NewCachedRuleStore wraps store with a TTL cache.
func NewCachedRuleStore(store service.RuleStore, ttl time.Duration) *CachedRuleStore {
	return newCachedRuleStore(store, ttl, time.Now)
}

func newCachedRuleStore(store service.RuleStore, ttl time.Duration, now func() time.Time) *CachedRuleStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	cache := &CachedRuleStore{
		RuleStore: store,
		entries:   make(map[model.Scope]cacheEntry),
		scopes:    make(map[string]model.Scope),
		gens:      make(map[model.Scope]uint64),
		stopCh:    make(chan struct{}),
		now:       now,
		ttl:       ttl,
	}

	go cache.cleanup()

	return cache
}

// FindActiveRules serves from the cache, loading the scope on a miss.
func (c *CachedRuleStore) FindActiveRules(ctx context.Context, scope model.Scope) ([]model.CategorizationRule, error) {
	c.mu.RLock()
	entry, ok := c.entries[scope]
	started := generation{scope: c.gens[scope], epoch: c.epoch}
	c.mu.RUnlock()

	if ok && c.now().Before(entry.expiry) {
		return cloneRules(entry.rules), nil
	}

	rules, err := c.RuleStore.FindActiveRules(ctx, scope)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rule := range rules {
		c.scopes[rule.ID] = scope
	}
	if (generation{scope: c.gens[scope], epoch: c.epoch}) != started {
		return rules, nil
	}
	c.entries[scope] = cacheEntry{rules: cloneRules(rules), expiry: c.now().Add(c.ttl)}

	return rules, nil
}

// InsertRule writes through and invalidates the rule's scope.
func (c *CachedRuleStore) InsertRule(ctx context.Context, rule *model.CategorizationRule) error {
	err := c.RuleStore.InsertRule(ctx, rule)
	if rule != nil {
		c.Invalidate(rule.Scope)
	}
	return err
}

// UpdateRuleConfidence writes through and invalidates the rule's scope.
func (c *CachedRuleStore) UpdateRuleConfidence(ctx context.Context, id string, confidence float64) error {
	err := c.RuleStore.UpdateRuleConfidence(ctx, id, confidence)
	c.invalidateRule(id)
	return err
}

// RecordRuleOutcome writes through and invalidates the rule's scope.
func (c *CachedRuleStore) RecordRuleOutcome(ctx context.Context, id string, correct bool) error {
	err := c.RuleStore.RecordRuleOutcome(ctx, id, correct)
	c.invalidateRule(id)
	return err
}

// SetRuleActive writes through and invalidates scope.
func (c *CachedRuleStore) SetRuleActive(ctx context.Context, scope model.Scope, id string, active bool) error {
	err := c.RuleStore.SetRuleActive(ctx, scope, id, active)
	c.Invalidate(scope)
	return err
}

// IncrementRuleUsage writes through and bumps the cached copy so usage
// tie-breaks stay current without a reload.
func (c *CachedRuleStore) IncrementRuleUsage(ctx context.Context, id string) error {
	if err := c.RuleStore.IncrementRuleUsage(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	scope, ok := c.scopes[id]
	if !ok {
		return nil
	}
	entry, ok := c.entries[scope]
	if !ok {
		return nil
	}
	for i := range entry.rules {
		if entry.rules[i].ID == id {
			entry.rules[i].UsageCount++
		}
	}
	return nil
}

// Invalidate drops the cached rules for scope.
func (c *CachedRuleStore) Invalidate(scope model.Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(scope)
}

// invalidateRule drops the scope that owns id. When the owner is unknown
// every in-flight load is discarded instead.
func (c *CachedRuleStore) invalidateRule(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if scope, ok := c.scopes[id]; ok {
		c.invalidateLocked(scope)
		return
	}
	c.epoch++
}

func (c *CachedRuleStore) invalidateLocked(scope model.Scope) {
	delete(c.entries, scope)
	c.gens[scope]++
}

// size returns the number of cached scopes.
func (c *CachedRuleStore) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cleanup periodically removes expired entries.
func (c *CachedRuleStore) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := c.now()
			for scope, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, scope)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine.
func (c *CachedRuleStore) Close() {
	c.once.Do(func() { close(c.stopCh) })
}

func cloneRules(rules []model.CategorizationRule) []model.CategorizationRule {
	if rules == nil {
		return nil
	}
	out := make([]model.CategorizationRule, len(rules))
	copy(out, rules)
	return out
}
