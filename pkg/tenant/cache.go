// Package tenant resolves tenant identifiers into cached tenant contexts.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/crypto"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/metrics"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/repositories"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tracing"
)

const (
	// DefaultTTL is how long a resolved tenant stays fresh
	DefaultTTL = 15 * time.Minute

	// DefaultSweepInterval is the period of the expired-entry sweep
	DefaultSweepInterval = 5 * time.Minute
)

var (
	// ErrNotFound is returned for unknown or inactive tenants
	ErrNotFound = errors.New("tenant not found")

	// ErrCacheAlreadyRunning is returned when Start is called twice
	ErrCacheAlreadyRunning = errors.New("tenant cache sweep already running")
)

// Option configures a Cache
type Option func(*Cache)

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithSweepInterval overrides DefaultSweepInterval
func WithSweepInterval(interval time.Duration) Option {
	return func(c *Cache) {
		if interval > 0 {
			c.sweepInterval = interval
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithBroadcaster publishes invalidations to other replicas
func WithBroadcaster(b Broadcaster) Option {
	return func(c *Cache) {
		c.broadcaster = b
	}
}

// ConfigCheck inspects a freshly loaded tenant. A returned error is logged and
// the tenant is still served.
type ConfigCheck func(cfg *models.TenantConfig) error

// WithConfigCheck runs check on every tenant load
func WithConfigCheck(check ConfigCheck) Option {
	return func(c *Cache) {
		c.check = check
	}
}

// Cache keeps tenant contexts keyed by both slug and id.
type Cache struct {
	repo        repositories.TenantRepo
	decrypter   crypto.Decrypter
	broadcaster Broadcaster
	check       ConfigCheck
	logger      ectologger.Logger

	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu      sync.RWMutex
	entries map[string]*TenantContext
	// generation is bumped by every invalidation so loads that started earlier
	// do not write their result back.
	generation uint64
	group      singleflight.Group

	runMu    sync.Mutex
	running  bool
	stopCh   chan struct{}
	stoppedC chan struct{}
}

// NewCache creates a tenant cache. decrypter may be nil, in which case no tenant has credentials.
func NewCache(repo repositories.TenantRepo, decrypter crypto.Decrypter, logger ectologger.Logger, opts ...Option) *Cache {
	c := &Cache{
		repo:          repo,
		decrypter:     decrypter,
		logger:        logger,
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		entries:       make(map[string]*TenantContext),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func idKey(id uuid.UUID) string { return "id:" + id.String() }

func slugKey(slug string) string { return "slug:" + slug }

func keyFor(identifier string) (string, uuid.UUID, bool) {
	if id, err := uuid.Parse(identifier); err == nil {
		return idKey(id), id, true
	}
	return slugKey(identifier), uuid.Nil, false
}

// Resolve returns the tenant context for a slug or UUID identifier.
func (c *Cache) Resolve(ctx context.Context, identifier string, forceRefresh bool) (*TenantContext, error) {
	ctx, span := tracing.StartSpan(ctx, "TenantCache.Resolve")
	defer span.End()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		metrics.TenantCacheLookups.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}

	key, _, _ := keyFor(identifier)

	if !forceRefresh {
		c.mu.RLock()
		tc, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && !tc.Expired(c.now()) {
			metrics.TenantCacheLookups.WithLabelValues("hit").Inc()
			return tc, nil
		}
		metrics.TenantCacheLookups.WithLabelValues("miss").Inc()
	} else {
		metrics.TenantCacheLookups.WithLabelValues("refresh").Inc()
	}

	// Loads are shared per generation, so a Resolve issued after an invalidation
	// never joins a load that started before it.
	c.mu.RLock()
	generation := c.generation
	c.mu.RUnlock()

	flightKey := key + "#" + strconv.FormatUint(generation, 10)
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		return c.load(context.WithoutCancel(ctx), identifier, generation)
	})
	if err != nil {
		return nil, err
	}
	return v.(*TenantContext), nil
}

func (c *Cache) load(ctx context.Context, identifier string, generation uint64) (*TenantContext, error) {
	key, id, isID := keyFor(identifier)

	var (
		cfg *models.TenantConfig
		err error
	)
	if isID {
		cfg, err = c.repo.GetByID(ctx, id)
	} else {
		cfg, err = c.repo.GetBySlug(ctx, identifier)
	}
	if err != nil {
		if repositories.IsNotFound(err) {
			c.evictKey(key, "not_found")
			metrics.TenantCacheLookups.WithLabelValues("not_found").Inc()
			return nil, ErrNotFound
		}
		metrics.TenantCacheLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to load tenant %q: %w", identifier, err)
	}

	if !cfg.Active {
		c.evictKey(key, "inactive")
		metrics.TenantCacheLookups.WithLabelValues("not_found").Inc()
		c.logger.WithContext(ctx).WithField("tenant_id", cfg.ID).Info("Tenant is inactive")
		return nil, ErrNotFound
	}

	if c.check != nil {
		if err := c.check(cfg); err != nil {
			metrics.TenantConfigProblems.Inc()
			c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"tenant_id":   cfg.ID,
				"tenant_slug": cfg.Slug,
			}).Warn("tenant configuration is invalid")
		}
	}

	tc := newTenantContext(cfg, c.openCredentials(ctx, cfg), c.now(), c.ttl)

	c.mu.Lock()
	if c.generation == generation {
		c.entries[idKey(cfg.ID)] = tc
		c.entries[slugKey(cfg.Slug)] = tc
	}
	size := len(c.entries)
	c.mu.Unlock()
	metrics.TenantCacheEntries.Set(float64(size))

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":       cfg.ID,
		"tenant_slug":     cfg.Slug,
		"has_credentials": tc.HasCredentials(),
	}).Debug("Loaded tenant context")

	return tc, nil
}

func (c *Cache) openCredentials(ctx context.Context, cfg *models.TenantConfig) *models.Credentials {
	if len(cfg.EncryptedCredentials) == 0 || c.decrypter == nil {
		return nil
	}

	creds, err := c.decrypter.Decrypt(cfg.EncryptedCredentials)
	if err != nil {
		metrics.TenantCredentialFailures.Inc()
		c.logger.WithContext(ctx).WithError(err).WithField("tenant_id", cfg.ID).Warn("failed to decrypt tenant credentials; continuing without external access")
		return nil
	}
	return creds
}

// evictKey removes the entry under key together with the tenant's other key.
func (c *Cache) evictKey(key, reason string) {
	c.mu.Lock()
	removed := c.removeLocked(key)
	size := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		metrics.TenantCacheEvictions.WithLabelValues(reason).Add(float64(removed))
		metrics.TenantCacheEntries.Set(float64(size))
	}
}

func (c *Cache) removeLocked(key string) int {
	tc, ok := c.entries[key]
	if !ok {
		return 0
	}
	removed := 0
	for _, k := range []string{idKey(tc.Tenant.ID), slugKey(tc.Tenant.Slug), key} {
		if _, ok := c.entries[k]; ok {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Invalidate drops every key of the tenant identifier refers to, here and on other replicas.
func (c *Cache) Invalidate(ctx context.Context, identifier string) {
	identifier = strings.TrimSpace(identifier)
	c.invalidateLocal(identifier)

	if c.broadcaster != nil {
		if err := c.broadcaster.Publish(ctx, identifier); err != nil {
			c.logger.WithContext(ctx).WithError(err).Warn("failed to broadcast tenant invalidation")
		}
	}
}

// InvalidateAll clears the cache here and on other replicas.
func (c *Cache) InvalidateAll(ctx context.Context) {
	c.invalidateAllLocal()

	if c.broadcaster != nil {
		if err := c.broadcaster.Publish(ctx, invalidateAllMessage); err != nil {
			c.logger.WithContext(ctx).WithError(err).Warn("failed to broadcast tenant invalidation")
		}
	}
}

func (c *Cache) invalidateLocal(identifier string) {
	key, _, _ := keyFor(identifier)

	c.mu.Lock()
	c.generation++
	removed := c.removeLocked(key)
	size := len(c.entries)
	c.mu.Unlock()

	metrics.TenantCacheEvictions.WithLabelValues("invalidate").Add(float64(removed))
	metrics.TenantCacheEntries.Set(float64(size))
}

func (c *Cache) invalidateAllLocal() {
	c.mu.Lock()
	c.generation++
	removed := len(c.entries)
	c.entries = make(map[string]*TenantContext)
	c.mu.Unlock()

	metrics.TenantCacheEvictions.WithLabelValues("invalidate").Add(float64(removed))
	metrics.TenantCacheEntries.Set(0)
}

// Sweep removes expired entries and returns how many keys were dropped.
func (c *Cache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	removed := 0
	for key, tc := range c.entries {
		if tc.Expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		metrics.TenantCacheEvictions.WithLabelValues("expired").Add(float64(removed))
	}
	metrics.TenantCacheEntries.Set(float64(size))
	return removed
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Start launches the periodic sweep.
func (c *Cache) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return ErrCacheAlreadyRunning
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.stoppedC = make(chan struct{})

	c.logger.WithContext(ctx).Infof("Starting tenant cache sweep: interval=%s ttl=%s", c.sweepInterval, c.ttl)

	go c.sweepLoop(c.stopCh, c.stoppedC)
	return nil
}

// Stop ends the sweep and waits for the loop to exit. Calling Stop again is a no-op.
func (c *Cache) Stop(ctx context.Context) error {
	c.runMu.Lock()
	if !c.running {
		c.runMu.Unlock()
		return nil
	}
	c.running = false
	stopCh, stoppedC := c.stopCh, c.stoppedC
	c.runMu.Unlock()

	close(stopCh)

	select {
	case <-stoppedC:
		c.logger.WithContext(ctx).Info("Tenant cache sweep stopped")
	case <-ctx.Done():
		c.logger.WithContext(ctx).Warn("Tenant cache sweep shutdown timed out")
		return ctx.Err()
	}
	return nil
}

func (c *Cache) sweepLoop(stopCh <-chan struct{}, stoppedC chan<- struct{}) {
	defer close(stoppedC)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				c.logger.Debugf("Swept %d expired tenant cache keys", removed)
			}
		}
	}
}
