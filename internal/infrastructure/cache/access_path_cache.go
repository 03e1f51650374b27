// Package cache holds the in-process cache of subject authorization paths.
package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/turtacn/psn/internal/config"
	"github.com/turtacn/psn/internal/domain/service"
	"github.com/turtacn/psn/pkg/logger"
)

const (
	lookupHit     = "hit"
	lookupMiss    = "miss"
	lookupTimeout = "timeout"
	lookupError   = "error"
)

// AccessPathCache maps a subject to the domain paths it may act on.
// One lock guards population of every entry. The lock is a one-slot channel so
// that waiting for it can be bounded by a deadline.
type AccessPathCache struct {
	entries  *gocache.Cache
	provider service.IdentityProvider
	lock     chan struct{}

	ttl          time.Duration
	waitTimeout  time.Duration
	pollInterval time.Duration

	metrics service.Metrics
	logger  logger.Logger
}

// NewAccessPathCache creates an AccessPathCache refilled from provider.
func NewAccessPathCache(provider service.IdentityProvider, cfg config.AccessCacheConfig, metrics service.Metrics, log logger.Logger) *AccessPathCache {
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	return &AccessPathCache{
		entries:      gocache.New(cfg.TTL, 2*cfg.TTL),
		provider:     provider,
		lock:         make(chan struct{}, 1),
		ttl:          cfg.TTL,
		waitTimeout:  cfg.WaitTimeout,
		pollInterval: cfg.PollInterval,
		metrics:      metrics,
		logger:       log.WithComponent("AccessPathCache"),
	}
}

// Get returns the paths of subject. While another caller holds the lock it
// waits for that caller, at most the wait timeout in total; past it the
// provider answer is served uncached.
func (c *AccessPathCache) Get(ctx context.Context, subject string) []string {
	if paths, ok := c.lookup(subject); ok {
		c.metrics.RecordAccessCacheLookup(lookupHit)
		return paths
	}

	deadline := time.Now().Add(c.waitTimeout)
	if err := c.wait(ctx, deadline); err != nil {
		c.metrics.RecordAccessCacheLookup(lookupTimeout)
		return []string{}
	}

	if paths, ok := c.lookup(subject); ok {
		c.metrics.RecordAccessCacheLookup(lookupHit)
		return paths
	}
	c.metrics.RecordAccessCacheLookup(lookupMiss)
	return c.populate(ctx, subject, deadline)
}

// wait blocks while another caller holds the lock, until deadline. It only
// fails when ctx ends first.
func (c *AccessPathCache) wait(ctx context.Context, deadline time.Time) error {
	if !c.locked() {
		return nil
	}
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for c.locked() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// Invalidate drops the entry of subject when force is set or one of its paths
// matches, then fills it again from the provider.
func (c *AccessPathCache) Invalidate(ctx context.Context, subject string, match func(path string) bool, force bool) {
	if !c.acquire(ctx, time.Now().Add(c.waitTimeout)) {
		c.logger.Warn(ctx, "Access cache lock not acquired, invalidation skipped", logger.String("subject", subject))
		return
	}
	defer c.release()

	paths, ok := c.lookup(subject)
	if !force && (!ok || !anyMatch(paths, match)) {
		return
	}
	c.entries.Delete(subject)
	c.fill(ctx, subject)
}

// InvalidateMatching runs Invalidate for every cached subject.
func (c *AccessPathCache) InvalidateMatching(ctx context.Context, match func(path string) bool) {
	for subject := range c.entries.Items() {
		c.Invalidate(ctx, subject, match, false)
	}
}

// Len returns the number of cached subjects, expired ones included until the janitor runs.
func (c *AccessPathCache) Len() int {
	return c.entries.ItemCount()
}

// populate fills the entry under the lock. If the lock stays busy past
// deadline the provider answer is served without being stored.
func (c *AccessPathCache) populate(ctx context.Context, subject string, deadline time.Time) []string {
	if !c.acquire(ctx, deadline) {
		c.metrics.RecordAccessCacheLookup(lookupTimeout)
		c.logger.Warn(ctx, "Access cache lock wait timed out", logger.String("subject", subject))
		paths, err := c.provider.GetAuthorizationPaths(ctx, subject)
		if err != nil {
			return []string{}
		}
		return normalizePaths(paths)
	}
	defer c.release()

	if paths, ok := c.lookup(subject); ok {
		return paths
	}
	return c.fill(ctx, subject)
}

// fill queries the provider and stores the answer. The caller holds the lock.
// A provider error stores an empty set so a failing provider is not hammered.
func (c *AccessPathCache) fill(ctx context.Context, subject string) []string {
	paths, err := c.provider.GetAuthorizationPaths(ctx, subject)
	if err != nil {
		c.metrics.RecordAccessCacheLookup(lookupError)
		c.logger.Warn(ctx, "Identity provider lookup failed, caching empty path set",
			logger.String("subject", subject),
			logger.Error(err),
		)
		paths = nil
	}
	paths = normalizePaths(paths)
	c.entries.Set(subject, paths, c.ttl)
	c.logger.Debug(ctx, "Access paths cached",
		logger.String("subject", subject),
		logger.Int("paths", len(paths)),
	)
	return paths
}

func (c *AccessPathCache) lookup(subject string) ([]string, bool) {
	v, ok := c.entries.Get(subject)
	if !ok {
		return nil, false
	}
	paths, ok := v.([]string)
	return paths, ok
}

func (c *AccessPathCache) locked() bool {
	return len(c.lock) == cap(c.lock)
}

// acquire takes the lock, giving up at deadline. A deadline already passed
// still gets one attempt.
func (c *AccessPathCache) acquire(ctx context.Context, deadline time.Time) bool {
	select {
	case c.lock <- struct{}{}:
		return true
	default:
	}
	wait := time.Until(deadline)
	if wait <= 0 {
		return false
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case c.lock <- struct{}{}:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *AccessPathCache) release() {
	<-c.lock
}

func anyMatch(paths []string, match func(string) bool) bool {
	if match == nil {
		return false
	}
	for _, p := range paths {
		if match(p) {
			return true
		}
	}
	return false
}

// normalizePaths trims slashes, drops empty entries and duplicates.
func normalizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		p = strings.Trim(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

var _ service.AccessPathCache = (*AccessPathCache)(nil)
