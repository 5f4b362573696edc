package tenant

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/database"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/redis"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/repositories"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type fakeTenantRepo struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*models.TenantConfig
	calls   atomic.Int32
	gate    chan struct{}
	started chan struct{}
	err     error
}

func newFakeTenantRepo(tenants ...*models.TenantConfig) *fakeTenantRepo {
	r := &fakeTenantRepo{tenants: make(map[uuid.UUID]*models.TenantConfig)}
	for _, t := range tenants {
		r.tenants[t.ID] = t
	}
	return r
}

func (r *fakeTenantRepo) wait() {
	if r.started != nil {
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
	if r.gate != nil {
		<-r.gate
	}
}

func (r *fakeTenantRepo) GetBySlug(_ context.Context, slug string) (*models.TenantConfig, error) {
	r.calls.Add(1)
	r.wait()
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repositories.NotFound("tenant slug %s does not exist", slug)
}

func (r *fakeTenantRepo) GetByID(_ context.Context, id uuid.UUID) (*models.TenantConfig, error) {
	r.calls.Add(1)
	r.wait()
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tenants[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, repositories.NotFound("tenant id %s does not exist", id)
}

func (r *fakeTenantRepo) setActive(id uuid.UUID, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[id].Active = active
}

type fakeDecrypter struct {
	err error
}

func (d fakeDecrypter) Decrypt(blob []byte) (*models.Credentials, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &models.Credentials{Username: "api", Password: string(blob)}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testTenant(slug string) *models.TenantConfig {
	return &models.TenantConfig{
		ID:                   uuid.New(),
		Slug:                 slug,
		Name:                 "Association " + slug,
		ExternalBaseURL:      "https://" + slug + ".example/wp-json/api/",
		EncryptedCredentials: []byte("secret"),
		Active:               true,
		AIDirectives:         database.NewJSONB([]string{"be kind"}),
		Display:              database.NewJSONB(models.TenantDisplay{WelcomeMessage: "hi"}),
	}
}

func TestCache_ResolveHitAndMiss(t *testing.T) {
	tenant := testTenant("acme")
	repo := newFakeTenantRepo(tenant)
	clock := &fakeClock{now: time.Now()}
	cache := NewCache(repo, fakeDecrypter{}, getTestLogger(), WithClock(clock.Now), WithTTL(time.Minute))
	ctx := context.Background()

	tc, err := cache.Resolve(ctx, "acme", false)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, tc.ID())
	assert.Equal(t, "https://acme.example/wp-json/api", tc.BaseURL)
	require.True(t, tc.HasCredentials())
	assert.Equal(t, "secret", tc.Credentials.Password)
	assert.Equal(t, 2, cache.Len())

	// Both keys are served from the same entry.
	_, err = cache.Resolve(ctx, "acme", false)
	require.NoError(t, err)
	byID, err := cache.Resolve(ctx, tenant.ID.String(), false)
	require.NoError(t, err)
	assert.Same(t, tc, byID)
	assert.Equal(t, int32(1), repo.calls.Load())

	clock.Advance(time.Minute)
	_, err = cache.Resolve(ctx, "acme", false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.calls.Load(), "entry at exactly ttl is still fresh")

	clock.Advance(time.Second)
	_, err = cache.Resolve(ctx, "acme", false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.calls.Load())
}

func TestCache_ForceRefresh(t *testing.T) {
	tenant := testTenant("acme")
	repo := newFakeTenantRepo(tenant)
	cache := NewCache(repo, fakeDecrypter{}, getTestLogger())
	ctx := context.Background()

	_, err := cache.Resolve(ctx, "acme", false)
	require.NoError(t, err)
	_, err = cache.Resolve(ctx, "acme", true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.calls.Load())
}

func TestCache_NotFoundAndInactive(t *testing.T) {
	tenant := testTenant("acme")
	repo := newFakeTenantRepo(tenant)
	clock := &fakeClock{now: time.Now()}
	cache := NewCache(repo, fakeDecrypter{}, getTestLogger(), WithClock(clock.Now))
	ctx := context.Background()

	_, err := cache.Resolve(ctx, "missing", false)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = cache.Resolve(ctx, "", false)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = cache.Resolve(ctx, "acme", false)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	repo.setActive(tenant.ID, false)
	_, err = cache.Resolve(ctx, "acme", true)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, cache.Len(), "stale entries of a deactivated tenant are evicted")
}

func TestCache_StoreErrorPropagates(t *testing.T) {
	repo := newFakeTenantRepo()
	repo.err = errors.New("connection refused")
	cache := NewCache(repo, fakeDecrypter{}, getTestLogger())

	_, err := cache.Resolve(context.Background(), "acme", false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestCache_DecryptFailureYieldsNoCredentials(t *testing.T) {
	repo := newFakeTenantRepo(testTenant("acme"))
	cache := NewCache(repo, fakeDecrypter{err: errors.New("bad blob")}, getTestLogger())

	tc, err := cache.Resolve(context.Background(), "acme", false)
	require.NoError(t, err)
	assert.False(t, tc.HasCredentials())
	assert.False(t, tc.PublicView().HasExternalSystem)
}

func TestCache_NilDecrypter(t *testing.T) {
	repo := newFakeTenantRepo(testTenant("acme"))
	cache := NewCache(repo, nil, getTestLogger())

	tc, err := cache.Resolve(context.Background(), "acme", false)
	require.NoError(t, err)
	assert.Nil(t, tc.Credentials)
}

func TestCache_Invalidate(t *testing.T) {
	acme := testTenant("acme")
	other := testTenant("other")
	repo := newFakeTenantRepo(acme, other)
	cache := NewCache(repo, fakeDecrypter{}, getTestLogger())
	ctx := context.Background()

	_, err := cache.Resolve(ctx, "acme", false)
	require.NoError(t, err)
	_, err = cache.Resolve(ctx, "other", false)
	require.NoError(t, err)
	assert.Equal(t, 4, cache.Len())

	cache.Invalidate(ctx, acme.ID.String())
	assert.Equal(t, 2, cache.Len(), "both keys of the tenant are removed")

	_, err = cache.Resolve(ctx, "acme", false)
	require.NoError(t, err)
	assert.Equal(t, int32(3), repo.calls.Load())

	cache.InvalidateAll(ctx)
	assert.Equal(t, 0, cache.Len())
}

func TestCache_ConcurrentMissesLoadOnce(t *testing.T) {
	repo := newFakeTenantRepo(testTenant("acme"))
	repo.gate = make(chan struct{})
	repo.started = make(chan struct{}, 1)
	cache := NewCache(repo, fakeDecrypter{}, getTestLogger())

	var wg sync.WaitGroup
	results := make([]*TenantContext, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tc, err := cache.Resolve(context.Background(), "acme", false)
			assert.NoError(t, err)
			results[i] = tc
		}(i)
	}

	<-repo.started
	time.Sleep(20 * time.Millisecond)
	close(repo.gate)
	wg.Wait()

	assert.Equal(t, int32(1), repo.calls.Load())
	for _, tc := range results {
		assert.Same(t, results[0], tc)
	}
}

func TestCache_ResolveAfterInvalidateDoesNotJoinEarlierLoad(t *testing.T) {
	tests := []struct {
		name       string
		invalidate func(ctx context.Context, cache *Cache)
	}{
		{"invalidate", func(ctx context.Context, cache *Cache) { cache.Invalidate(ctx, "acme") }},
		{"invalidate all", func(ctx context.Context, cache *Cache) { cache.InvalidateAll(ctx) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeTenantRepo(testTenant("acme"))
			repo.gate = make(chan struct{})
			repo.started = make(chan struct{}, 1)
			cache := NewCache(repo, fakeDecrypter{}, getTestLogger())
			ctx := context.Background()

			var before, after *TenantContext
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				tc, err := cache.Resolve(ctx, "acme", false)
				assert.NoError(t, err)
				before = tc
			}()
			<-repo.started

			tt.invalidate(ctx, cache)

			go func() {
				defer wg.Done()
				tc, err := cache.Resolve(ctx, "acme", false)
				assert.NoError(t, err)
				after = tc
			}()
			<-repo.started

			close(repo.gate)
			wg.Wait()

			assert.Equal(t, int32(2), repo.calls.Load(), "the second resolve reads the store again")
			assert.NotSame(t, before, after)

			cached, err := cache.Resolve(ctx, "acme", false)
			require.NoError(t, err)
			assert.Same(t, after, cached, "the load that started before the invalidation is not cached")
		})
	}
}

func TestCache_SweepAndLifecycle(t *testing.T) {
	repo := newFakeTenantRepo(testTenant("acme"), testTenant("other"))
	clock := &fakeClock{now: time.Now()}
	cache := NewCache(repo, fakeDecrypter{}, getTestLogger(),
		WithClock(clock.Now), WithTTL(time.Minute), WithSweepInterval(5*time.Millisecond))
	ctx := context.Background()

	_, err := cache.Resolve(ctx, "acme", false)
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = cache.Resolve(ctx, "other", false)
	require.NoError(t, err)

	clock.Advance(45 * time.Second)
	assert.Equal(t, 2, cache.Sweep())
	assert.Equal(t, 2, cache.Len())

	require.NoError(t, cache.Start(ctx))
	assert.ErrorIs(t, cache.Start(ctx), ErrCacheAlreadyRunning)

	clock.Advance(time.Hour)
	assert.Eventually(t, func() bool { return cache.Len() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, cache.Stop(ctx))
	require.NoError(t, cache.Stop(ctx))
}

func TestPublicView(t *testing.T) {
	tenant := testTenant("acme")
	tc := newTenantContext(tenant, &models.Credentials{Username: "u", Password: "p"}, time.Now(), time.Minute)

	view := tc.PublicView()
	assert.Equal(t, "acme", view.Slug)
	assert.Equal(t, []string{"be kind"}, view.AIDirectives)
	assert.Equal(t, "hi", view.Display.WelcomeMessage)
	assert.True(t, view.HasExternalSystem)
}

func TestCache_ConfigCheckRunsOnLoad(t *testing.T) {
	repo := newFakeTenantRepo(testTenant("acme"))
	var checked []string
	cache := NewCache(repo, fakeDecrypter{}, getTestLogger(), WithConfigCheck(func(cfg *models.TenantConfig) error {
		checked = append(checked, cfg.Slug)
		return errors.New("field phone: bad expression")
	}))
	ctx := context.Background()

	tc, err := cache.Resolve(ctx, "acme", false)
	require.NoError(t, err, "an invalid configuration is logged, not fatal")
	assert.Equal(t, "acme", tc.Tenant.Slug)

	_, err = cache.Resolve(ctx, "acme", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, checked, "cached hits are not re-checked")
}

func TestTenantContext_Nil(t *testing.T) {
	var tc *TenantContext
	assert.Equal(t, uuid.Nil, tc.ID())
	assert.False(t, tc.HasCredentials())
}

func TestRedisBroadcaster_InvalidatesOtherReplicas(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })
		return redis.NewClientFromRedis(rdb, getTestLogger())
	}
	ctx := context.Background()
	tenant := testTenant("acme")

	publisher := NewRedisBroadcaster(newClient(), getTestLogger())
	cacheA := NewCache(newFakeTenantRepo(tenant), fakeDecrypter{}, getTestLogger(), WithBroadcaster(publisher))

	listener := NewRedisBroadcaster(newClient(), getTestLogger())
	cacheB := NewCache(newFakeTenantRepo(tenant), fakeDecrypter{}, getTestLogger())
	sub, err := listener.Listen(ctx, cacheB)
	require.NoError(t, err)
	defer sub.Close()

	_, err = cacheB.Resolve(ctx, "acme", false)
	require.NoError(t, err)
	assert.Equal(t, 2, cacheB.Len())

	cacheA.Invalidate(ctx, "acme")
	assert.Eventually(t, func() bool { return cacheB.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	_, err = cacheB.Resolve(ctx, "acme", false)
	require.NoError(t, err)
	cacheA.InvalidateAll(ctx)
	assert.Eventually(t, func() bool { return cacheB.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
