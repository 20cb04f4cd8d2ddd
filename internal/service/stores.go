package service

import (
	"context"
	"time"

	"levelup-engine/internal/model"
	"levelup-engine/internal/repository"
)

// MemberStore is the member side of the ledger store.
type MemberStore interface {
	FindMember(ctx context.Context, memberID string) (*model.Member, error)
	FindByExternal(ctx context.Context, externalUserID, companyID string) (*model.Member, error)
	UpsertMember(ctx context.Context, id model.MemberIdentity) (*model.Member, bool, error)
	CountByCompany(ctx context.Context, companyID string) (int64, float64, error)
}

// LedgerStore records XP transactions and answers ledger queries.
type LedgerStore interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) error
	CountTransactions(ctx context.Context, memberID, eventType string, since *time.Time) (int64, error)
	LastTransactionAt(ctx context.Context, memberID, eventType string) (*time.Time, error)
	SumTransactions(ctx context.Context, memberID string, since time.Time) (int64, error)
	ActiveDays(ctx context.Context, memberID string, since time.Time, loc *time.Location) ([]time.Time, error)
	History(ctx context.Context, memberID string, limit, offset int) ([]model.XPTransaction, int64, error)
	EventStats(ctx context.Context, companyID string, since time.Time) (map[string]model.EventStat, error)
}

// BadgeStore holds badge definitions and awards.
type BadgeStore interface {
	FindBadge(ctx context.Context, badgeID string) (*model.Badge, error)
	ActiveBadges(ctx context.Context, companyID string) ([]model.Badge, error)
	EarnedBadgeIDs(ctx context.Context, memberID string) (map[string]struct{}, error)
	Award(ctx context.Context, memberID, badgeID string, earnedAt time.Time) (bool, error)
	MemberBadges(ctx context.Context, memberID string) ([]model.EarnedBadge, error)
}

// RuleStore holds XP rules.
type RuleStore interface {
	ActiveRules(ctx context.Context, companyID, eventType string) ([]model.XPRule, error)
}

// RewardStore holds rewards and their claims.
type RewardStore interface {
	FindReward(ctx context.Context, rewardID string) (*model.Reward, error)
	CreateClaim(ctx context.Context, c *model.RewardClaim) error
	UpdateClaimStatus(ctx context.Context, claimID, status string) error
	HasCompletedClaim(ctx context.Context, memberID, rewardID string) (bool, error)
	ClaimedSince(ctx context.Context, memberID, rewardID string, since time.Time) (bool, error)
}

// RankingStore runs leaderboard queries.
type RankingStore interface {
	Top(ctx context.Context, companyID, rankType string, since time.Time, limit int) ([]model.LeaderboardEntry, error)
	CountAhead(ctx context.Context, memberID, rankType string, since time.Time) (int64, error)
}

var (
	_ MemberStore  = (*repository.MemberRepository)(nil)
	_ LedgerStore  = (*repository.LedgerRepository)(nil)
	_ BadgeStore   = (*repository.BadgeRepository)(nil)
	_ RuleStore    = (*repository.RuleRepository)(nil)
	_ RewardStore  = (*repository.RewardRepository)(nil)
	_ RankingStore = (*repository.LeaderboardRepository)(nil)
)
