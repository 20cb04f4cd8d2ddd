package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"levelup-engine/internal/level"
	"levelup-engine/internal/model"
	"levelup-engine/internal/repository"
)

// memStore is an in-memory stand-in for the PostgreSQL repositories.
// InTx holds the store lock for the whole unit of work and discards staged
// writes when fn fails.
type memStore struct {
	mu        sync.Mutex
	seq       int
	members   map[string]*model.Member
	txs       []model.XPTransaction
	rules     []model.XPRule
	badges    []model.Badge
	awards    map[string]map[string]time.Time
	rewards   map[string]*model.Reward
	claims    []*model.RewardClaim
	commitErr error
	now       func() time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		members: make(map[string]*model.Member),
		awards:  make(map[string]map[string]time.Time),
		rewards: make(map[string]*model.Reward),
		now:     now,
	}
}

func (s *memStore) nextID() string {
	s.seq++
	return fmt.Sprintf("id-%04d", s.seq)
}

func (s *memStore) addMember(companyID, externalID string, totalXP int64) *model.Member {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := level.FromTotalXP(totalXP)
	m := &model.Member{
		ID:             s.nextID(),
		CompanyID:      companyID,
		ExternalUserID: externalID,
		DisplayName:    externalID,
		TotalXP:        totalXP,
		Level:          p.Level,
		CurrentLevelXP: p.CurrentLevelXP,
		CreatedAt:      s.now(),
	}
	s.members[m.ID] = m
	cp := *m
	return &cp
}

func (s *memStore) addTx(memberID string, amount int64, eventType string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, model.XPTransaction{
		ID: s.nextID(), MemberID: memberID, Amount: amount, Reason: "seed", EventType: eventType, CreatedAt: at,
	})
}

func (s *memStore) addRule(r model.XPRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextID()
	r.IsActive = true
	s.rules = append(s.rules, r)
}

// addBadge stores an active badge. Requirements are parsed on the way in,
// as the repository does on load.
func (s *memStore) addBadge(companyID, name, requirement string) model.Badge {
	req, err := model.ParseRequirement([]byte(requirement))
	if err != nil {
		panic(fmt.Sprintf("badge %q: %v", name, err))
	}
	return s.putBadge(model.Badge{CompanyID: companyID, Name: name, Requirement: req})
}

func (s *memStore) putBadge(b model.Badge) model.Badge {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.nextID()
	b.Description = b.Name + " description"
	b.IsActive = true
	b.Rarity = model.RarityCommon
	s.badges = append(s.badges, b)
	return b
}

func (s *memStore) addReward(r model.Reward) *model.Reward {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextID()
	s.rewards[r.ID] = &r
	cp := r
	return &cp
}

func (s *memStore) member(id string) model.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.members[id]
}

func (s *memStore) transactions(memberID string) []model.XPTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.XPTransaction
	for _, t := range s.txs {
		if t.MemberID == memberID {
			out = append(out, t)
		}
	}
	return out
}

func (s *memStore) memberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// MemberStore

func (s *memStore) FindMember(_ context.Context, memberID string) (*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberID]
	if !ok {
		return nil, repository.ErrMemberNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) FindByExternal(_ context.Context, externalUserID, companyID string) (*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.ExternalUserID == externalUserID && m.CompanyID == companyID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repository.ErrMemberNotFound
}

func (s *memStore) UpsertMember(_ context.Context, id model.MemberIdentity) (*model.Member, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.ExternalUserID == id.ExternalUserID && m.CompanyID == id.CompanyID {
			cp := *m
			return &cp, false, nil
		}
	}
	m := &model.Member{
		ID:             s.nextID(),
		CompanyID:      id.CompanyID,
		ExternalUserID: id.ExternalUserID,
		MembershipID:   id.MembershipID,
		DisplayName:    id.DisplayName,
		AvatarURL:      id.AvatarURL,
		Level:          1,
		CreatedAt:      s.now(),
	}
	s.members[m.ID] = m
	cp := *m
	return &cp, true, nil
}

func (s *memStore) CountByCompany(_ context.Context, companyID string) (int64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n, levels int64
	for _, m := range s.members {
		if m.CompanyID == companyID {
			n++
			levels += int64(m.Level)
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return n, float64(levels) / float64(n), nil
}

// LedgerStore

type memTx struct {
	s       *memStore
	members map[string]*model.Member
	txs     []model.XPTransaction
}

func (t *memTx) get(id string) *model.Member {
	if m, ok := t.members[id]; ok {
		return m
	}
	m, ok := t.s.members[id]
	if !ok {
		return nil
	}
	cp := *m
	t.members[id] = &cp
	return &cp
}

func (t *memTx) Increment(_ context.Context, memberID string, delta int64) (int64, int, error) {
	m := t.get(memberID)
	if m == nil {
		return 0, 0, repository.ErrMemberNotFound
	}
	old := m.Level
	m.TotalXP += delta
	return m.TotalXP, old, nil
}

func (t *memTx) SetLevel(_ context.Context, memberID string, p level.Progress) (*model.Member, error) {
	m := t.get(memberID)
	if m == nil {
		return nil, repository.ErrMemberNotFound
	}
	m.Level = p.Level
	m.CurrentLevelXP = p.CurrentLevelXP
	cp := *m
	return &cp, nil
}

func (t *memTx) AppendTransaction(_ context.Context, rec *model.XPTransaction) error {
	rec.ID = t.s.nextID()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = t.s.now()
	}
	t.txs = append(t.txs, *rec)
	return nil
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, members: make(map[string]*model.Member)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if s.commitErr != nil {
		return s.commitErr
	}
	for id, m := range tx.members {
		s.members[id] = m
	}
	s.txs = append(s.txs, tx.txs...)
	return nil
}

func (s *memStore) CountTransactions(_ context.Context, memberID, eventType string, since *time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.txs {
		if t.MemberID == memberID && t.EventType == eventType && (since == nil || !t.CreatedAt.Before(*since)) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) LastTransactionAt(_ context.Context, memberID, eventType string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *time.Time
	for _, t := range s.txs {
		if t.MemberID == memberID && t.EventType == eventType && (last == nil || t.CreatedAt.After(*last)) {
			at := t.CreatedAt
			last = &at
		}
	}
	return last, nil
}

func (s *memStore) SumTransactions(_ context.Context, memberID string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, t := range s.txs {
		if t.MemberID == memberID && !t.CreatedAt.Before(since) {
			sum += t.Amount
		}
	}
	return sum, nil
}

func (s *memStore) ActiveDays(_ context.Context, memberID string, since time.Time, loc *time.Location) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[time.Time]bool)
	var days []time.Time
	for _, t := range s.txs {
		if t.MemberID != memberID || t.CreatedAt.Before(since) {
			continue
		}
		local := t.CreatedAt.In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })
	return days, nil
}

func (s *memStore) History(_ context.Context, memberID string, limit, offset int) ([]model.XPTransaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []model.XPTransaction
	for _, t := range s.txs {
		if t.MemberID == memberID {
			all = append(all, t)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (s *memStore) EventStats(_ context.Context, companyID string, since time.Time) (map[string]model.EventStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make(map[string]model.EventStat)
	for _, t := range s.txs {
		m, ok := s.members[t.MemberID]
		if !ok || m.CompanyID != companyID || t.CreatedAt.Before(since) {
			continue
		}
		st := stats[t.EventType]
		st.Count++
		st.TotalXP += t.Amount
		stats[t.EventType] = st
	}
	return stats, nil
}

// BadgeStore

func (s *memStore) FindBadge(_ context.Context, badgeID string) (*model.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.badges {
		if b.ID == badgeID {
			cp := b
			return &cp, nil
		}
	}
	return nil, repository.ErrBadgeNotFound
}

func (s *memStore) ActiveBadges(_ context.Context, companyID string) ([]model.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Badge
	for _, b := range s.badges {
		if b.CompanyID == companyID && b.IsActive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) EarnedBadgeIDs(_ context.Context, memberID string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{})
	for id := range s.awards[memberID] {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *memStore) Award(_ context.Context, memberID, badgeID string, earnedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awards[memberID] == nil {
		s.awards[memberID] = make(map[string]time.Time)
	}
	if _, ok := s.awards[memberID][badgeID]; ok {
		return false, nil
	}
	s.awards[memberID][badgeID] = earnedAt
	return true, nil
}

func (s *memStore) MemberBadges(_ context.Context, memberID string) ([]model.EarnedBadge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.EarnedBadge
	for _, b := range s.badges {
		if at, ok := s.awards[memberID][b.ID]; ok {
			out = append(out, model.EarnedBadge{Badge: b, EarnedAt: at})
		}
	}
	return out, nil
}

// RuleStore

func (s *memStore) ActiveRules(_ context.Context, companyID, eventType string) ([]model.XPRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.XPRule
	for _, r := range s.rules {
		if r.CompanyID == companyID && r.EventType == eventType && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

// RewardStore

func (s *memStore) FindReward(_ context.Context, rewardID string) (*model.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rewards[rewardID]
	if !ok {
		return nil, repository.ErrRewardNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) CreateClaim(_ context.Context, c *model.RewardClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextID()
	c.ClaimedAt = s.now()
	cp := *c
	s.claims = append(s.claims, &cp)
	return nil
}

func (s *memStore) UpdateClaimStatus(_ context.Context, claimID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.claims {
		if c.ID == claimID {
			c.Status = status
			return nil
		}
	}
	return repository.ErrClaimNotFound
}

func (s *memStore) HasCompletedClaim(_ context.Context, memberID, rewardID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.claims {
		if c.MemberID == memberID && c.RewardID == rewardID && c.Status == model.ClaimCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ClaimedSince(_ context.Context, memberID, rewardID string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.claims {
		if c.MemberID == memberID && c.RewardID == rewardID && c.Status != model.ClaimFailed && !c.ClaimedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// RankingStore

func (s *memStore) ranked(companyID, rankType string, since time.Time) []model.LeaderboardEntry {
	var entries []model.LeaderboardEntry
	for _, m := range s.members {
		if m.CompanyID != companyID {
			continue
		}
		e := model.LeaderboardEntry{
			MemberID: m.ID, DisplayName: m.DisplayName, TotalXP: m.TotalXP, Level: m.Level,
		}
		switch rankType {
		case model.RankWeeklyXP:
			for _, t := range s.txs {
				if t.MemberID == m.ID && !t.CreatedAt.Before(since) {
					e.WeeklyXP += t.Amount
				}
			}
		case model.RankBadgesEarned:
			e.BadgeCount = len(s.awards[m.ID])
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch rankType {
		case model.RankLevel:
			if a.Level != b.Level {
				return a.Level > b.Level
			}
			if a.TotalXP != b.TotalXP {
				return a.TotalXP > b.TotalXP
			}
		case model.RankWeeklyXP:
			if a.WeeklyXP != b.WeeklyXP {
				return a.WeeklyXP > b.WeeklyXP
			}
		case model.RankBadgesEarned:
			if a.BadgeCount != b.BadgeCount {
				return a.BadgeCount > b.BadgeCount
			}
			if a.TotalXP != b.TotalXP {
				return a.TotalXP > b.TotalXP
			}
		default:
			if a.TotalXP != b.TotalXP {
				return a.TotalXP > b.TotalXP
			}
		}
		return a.MemberID < b.MemberID
	})
	return entries
}

func (s *memStore) Top(_ context.Context, companyID, rankType string, since time.Time, limit int) ([]model.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.ranked(companyID, rankType, since)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *memStore) CountAhead(_ context.Context, memberID, rankType string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberID]
	if !ok {
		return 0, repository.ErrMemberNotFound
	}
	for i, e := range s.ranked(m.CompanyID, rankType, since) {
		if e.MemberID == memberID {
			return int64(i), nil
		}
	}
	return 0, repository.ErrMemberNotFound
}

var (
	_ MemberStore  = (*memStore)(nil)
	_ LedgerStore  = (*memStore)(nil)
	_ BadgeStore   = (*memStore)(nil)
	_ RuleStore    = (*memStore)(nil)
	_ RewardStore  = (*memStore)(nil)
	_ RankingStore = (*memStore)(nil)
)
