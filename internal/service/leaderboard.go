package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"levelup-engine/internal/cache"
	"levelup-engine/internal/metrics"
	"levelup-engine/internal/model"
)

const weeklyWindow = 7 * 24 * time.Hour

var (
	rankTypes = map[string]bool{
		model.RankTotalXP:      true,
		model.RankLevel:        true,
		model.RankWeeklyXP:     true,
		model.RankBadgesEarned: true,
	}
	timeframes = map[string]bool{
		model.TimeframeAllTime: true,
		model.TimeframeWeekly:  true,
		model.TimeframeMonthly: true,
	}
)

// LeaderboardOptions holds leaderboard settings.
type LeaderboardOptions struct {
	CacheTTL     time.Duration
	DefaultLimit int
	MaxLimit     int
}

// LeaderboardStats summarises a company's members.
type LeaderboardStats struct {
	TotalMembers int64                   `json:"totalMembers"`
	AverageLevel float64                 `json:"averageLevel"`
	TopMember    *model.LeaderboardEntry `json:"topMember,omitempty"`
}

// LeaderboardService ranks members and caches the rankings.
type LeaderboardService struct {
	members MemberStore
	ranking RankingStore
	cache   cache.Cache
	metrics *metrics.Metrics
	opts    LeaderboardOptions
	group   singleflight.Group
	logger  zerolog.Logger
	now     func() time.Time

	// gens counts invalidations per company. A computation started under an
	// older generation must not be written back or shared with later reads.
	genMu sync.RWMutex
	gens  map[string]uint64
}

// NewLeaderboardService creates a new LeaderboardService instance.
func NewLeaderboardService(
	members MemberStore,
	ranking RankingStore,
	c cache.Cache,
	m *metrics.Metrics,
	opts LeaderboardOptions,
	logger zerolog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		members: members,
		ranking: ranking,
		cache:   c,
		metrics: m,
		opts:    opts,
		logger:  logger.With().Str("component", "leaderboard").Logger(),
		now:     time.Now,
		gens:    make(map[string]uint64),
	}
}

func (s *LeaderboardService) generation(companyID string) uint64 {
	s.genMu.RLock()
	defer s.genMu.RUnlock()
	return s.gens[companyID]
}

func cachePrefix(companyID string) string {
	return "leaderboard:" + companyID + ":"
}

func cacheKey(companyID, rankType, timeframe string) string {
	return cachePrefix(companyID) + rankType + ":" + timeframe
}

func (s *LeaderboardService) clamp(limit int) int {
	switch {
	case limit <= 0:
		return s.opts.DefaultLimit
	case limit > s.opts.MaxLimit:
		return s.opts.MaxLimit
	}
	return limit
}

// Generate returns the company's top members for a ranking type. Ranks are
// 1-based positions in the ranking's total order.
func (s *LeaderboardService) Generate(ctx context.Context, companyID, rankType, timeframe string, limit int) ([]model.LeaderboardEntry, error) {
	if companyID == "" {
		return nil, missing("company id")
	}
	if !rankTypes[rankType] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRanking, rankType)
	}
	if !timeframes[timeframe] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimeframe, timeframe)
	}
	limit = s.clamp(limit)
	key := cacheKey(companyID, rankType, timeframe)

	var cached []model.LeaderboardEntry
	found, err := s.cache.Get(ctx, key, &cached)
	switch {
	case err != nil:
		s.metrics.LeaderboardCache(metrics.CacheError)
		s.logger.Warn().Err(err).Str("key", key).Msg("Leaderboard cache read failed")
	case found:
		s.metrics.LeaderboardCache(metrics.CacheHit)
		return prefix(cached, limit), nil
	default:
		s.metrics.LeaderboardCache(metrics.CacheMiss)
	}

	// Waiters share one computation, so it must not die with the first caller.
	shared := context.WithoutCancel(ctx)
	gen := s.generation(companyID)
	v, err, _ := s.group.Do(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		entries, err := s.compute(shared, companyID, rankType)
		if err != nil {
			return nil, err
		}
		s.store(shared, companyID, key, gen, entries)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return prefix(v.([]model.LeaderboardEntry), limit), nil
}

// store caches entries unless the company was invalidated after gen was read.
// Invalidate bumps the generation under the write lock, so a write that passes
// the check always lands before the invalidation's delete.
func (s *LeaderboardService) store(ctx context.Context, companyID, key string, gen uint64, entries []model.LeaderboardEntry) {
	s.genMu.RLock()
	defer s.genMu.RUnlock()
	if s.gens[companyID] != gen {
		s.logger.Debug().Str("key", key).Msg("Leaderboard invalidated during computation, not caching")
		return
	}
	if err := s.cache.Set(ctx, key, entries, s.opts.CacheTTL); err != nil {
		s.metrics.LeaderboardCache(metrics.CacheError)
		s.logger.Warn().Err(err).Str("key", key).Msg("Leaderboard cache write failed")
	}
}

func (s *LeaderboardService) compute(ctx context.Context, companyID, rankType string) ([]model.LeaderboardEntry, error) {
	entries, err := s.ranking.Top(ctx, companyID, rankType, s.now().Add(-weeklyWindow), s.opts.MaxLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to compute leaderboard: %w", ErrPersistence, err)
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

func prefix(entries []model.LeaderboardEntry, limit int) []model.LeaderboardEntry {
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]model.LeaderboardEntry, len(entries))
	copy(out, entries)
	return out
}

// MemberRank returns the member's 1-based position within their company.
func (s *LeaderboardService) MemberRank(ctx context.Context, memberID, rankType string) (int64, error) {
	if !rankTypes[rankType] {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRanking, rankType)
	}
	if _, err := s.members.FindMember(ctx, memberID); err != nil {
		return 0, notFoundOr(err, "find member")
	}

	ahead, err := s.ranking.CountAhead(ctx, memberID, rankType, s.now().Add(-weeklyWindow))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to rank member: %w", ErrPersistence, err)
	}
	return ahead + 1, nil
}

// Invalidate drops every cached leaderboard of the company. Computations
// already in flight are neither cached nor shared with later reads.
func (s *LeaderboardService) Invalidate(ctx context.Context, companyID string) error {
	s.genMu.Lock()
	s.gens[companyID]++
	s.genMu.Unlock()

	if err := s.cache.DeleteByPrefix(ctx, cachePrefix(companyID)); err != nil {
		return fmt.Errorf("failed to invalidate leaderboards: %w", err)
	}
	return nil
}

// Stats summarises the company's members.
func (s *LeaderboardService) Stats(ctx context.Context, companyID string) (*LeaderboardStats, error) {
	if companyID == "" {
		return nil, missing("company id")
	}
	count, avg, err := s.members.CountByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count members: %w", ErrPersistence, err)
	}

	stats := &LeaderboardStats{TotalMembers: count, AverageLevel: avg}
	top, err := s.Generate(ctx, companyID, model.RankTotalXP, model.TimeframeAllTime, 1)
	if err != nil {
		return nil, err
	}
	if len(top) > 0 {
		stats.TopMember = &top[0]
	}
	return stats, nil
}
