package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"levelup-engine/internal/cache"
	"levelup-engine/internal/metrics"
	"levelup-engine/internal/notify"
	"levelup-engine/internal/pkg/lock"
	"levelup-engine/internal/reward"
)

const company = "biz_1"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingAnnouncer struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (a *recordingAnnouncer) Notify(_ context.Context, n notify.Notification) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notes = append(a.notes, n)
}

func (a *recordingAnnouncer) titles() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.notes))
	for i, n := range a.notes {
		out[i] = n.Title
	}
	return out
}

type testEnv struct {
	clock       *fakeClock
	store       *memStore
	cache       *cache.MemoryCache
	reg         *prometheus.Registry
	metrics     *metrics.Metrics
	announcer   *recordingAnnouncer
	xp          *XPService
	badges      *BadgeService
	events      *EventService
	leaderboard *LeaderboardService
	rewards     *RewardService
	handlers    *reward.Registry
	queries     *QueryService
}

// Tuesday, midday UTC.
var testStart = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()

	clock := &fakeClock{t: testStart}
	store := newMemStore(clock.Now)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := cache.NewMemoryCache()
	announcer := &recordingAnnouncer{}
	locks := lock.NewKeyLock()
	logger := zerolog.Nop()

	env := &testEnv{
		clock:     clock,
		store:     store,
		cache:     c,
		reg:       reg,
		metrics:   m,
		announcer: announcer,
	}

	env.badges = NewBadgeService(store, store, store, m, time.UTC, logger)
	env.badges.now = clock.Now

	env.leaderboard = NewLeaderboardService(store, store, c, m, LeaderboardOptions{
		CacheTTL: 5 * time.Minute, DefaultLimit: 50, MaxLimit: 100,
	}, logger)
	env.leaderboard.now = clock.Now

	env.xp = NewXPService(store, store, env.badges, env.leaderboard, announcer, m, XPOptions{
		MaxPerGrant: 10000, SideEffectTimeout: time.Second, BaseURL: "https://app.example",
	}, logger)
	env.xp.now = clock.Now

	env.events = NewEventService(store, store, store, env.xp, nil, locks, m, EventOptions{
		LockTimeout: time.Second, Location: time.UTC,
	}, logger)
	env.events.now = clock.Now

	env.handlers = reward.NewDefaultRegistry(logger)
	env.rewards = NewRewardService(store, store, store, env.handlers, locks, announcer, "https://app.example", time.Second, logger)
	env.rewards.now = clock.Now

	env.queries = NewQueryService(store, store, store)
	return env
}
