package service

import (
	"context"
	"fmt"

	"levelup-engine/internal/level"
	"levelup-engine/internal/model"
)

const maxHistoryLimit = 100

// MemberProfile is a member with level progress and earned badges.
type MemberProfile struct {
	Member   *model.Member       `json:"member"`
	Progress level.Progress      `json:"progress"`
	Badges   []model.EarnedBadge `json:"badges"`
}

// HistoryPage is one page of a member's XP history.
type HistoryPage struct {
	Transactions []model.XPTransaction `json:"transactions"`
	Total        int64                 `json:"total"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

// QueryService answers read-only member queries.
type QueryService struct {
	members MemberStore
	ledger  LedgerStore
	badges  BadgeStore
}

// NewQueryService creates a new QueryService instance.
func NewQueryService(members MemberStore, ledger LedgerStore, badges BadgeStore) *QueryService {
	return &QueryService{members: members, ledger: ledger, badges: badges}
}

// History returns the member's transactions, newest first.
func (s *QueryService) History(ctx context.Context, memberID string, limit, offset int) (*HistoryPage, error) {
	if memberID == "" {
		return nil, missing("member id")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	if _, err := s.members.FindMember(ctx, memberID); err != nil {
		return nil, notFoundOr(err, "find member")
	}
	txs, total, err := s.ledger.History(ctx, memberID, limit, offset)
	if err != nil {
		return nil, notFoundOr(err, "get history")
	}
	if txs == nil {
		txs = []model.XPTransaction{}
	}
	return &HistoryPage{Transactions: txs, Total: total, Limit: limit, Offset: offset}, nil
}

// Profile returns the member with level progress and earned badges.
func (s *QueryService) Profile(ctx context.Context, memberID string) (*MemberProfile, error) {
	member, err := s.members.FindMember(ctx, memberID)
	if err != nil {
		return nil, notFoundOr(err, "find member")
	}
	badges, err := s.badges.MemberBadges(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load badges: %w", ErrPersistence, err)
	}
	if badges == nil {
		badges = []model.EarnedBadge{}
	}
	return &MemberProfile{
		Member:   member,
		Progress: level.FromTotalXP(member.TotalXP),
		Badges:   badges,
	}, nil
}
