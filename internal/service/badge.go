package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"levelup-engine/internal/metrics"
	"levelup-engine/internal/model"
	"levelup-engine/internal/repository"
)

const dayLayout = "2006-01-02"

// BadgeService evaluates and awards badges.
type BadgeService struct {
	members MemberStore
	badges  BadgeStore
	ledger  LedgerStore
	metrics *metrics.Metrics
	loc     *time.Location
	logger  zerolog.Logger
	now     func() time.Time
}

// NewBadgeService creates a new BadgeService instance. loc decides calendar
// days for streaks.
func NewBadgeService(
	members MemberStore,
	badges BadgeStore,
	ledger LedgerStore,
	m *metrics.Metrics,
	loc *time.Location,
	logger zerolog.Logger,
) *BadgeService {
	return &BadgeService{
		members: members,
		badges:  badges,
		ledger:  ledger,
		metrics: m,
		loc:     loc,
		logger:  logger.With().Str("component", "badge-engine").Logger(),
		now:     time.Now,
	}
}

func badgeLoadError(err error, what string) error {
	if repository.IsDatabaseError(err) {
		return fmt.Errorf("%w: failed to %s: %w", ErrBadgePersistence, what, err)
	}
	return fmt.Errorf("failed to %s: %w", what, err)
}

// CheckAchievements awards every active badge of the member's company whose
// requirement the member now meets, and returns the badges newly earned by this
// call. A badge that fails to evaluate is skipped.
func (s *BadgeService) CheckAchievements(ctx context.Context, member *model.Member) ([]model.Badge, error) {
	active, err := s.badges.ActiveBadges(ctx, member.CompanyID)
	if err != nil {
		return nil, badgeLoadError(err, "load badges")
	}
	earned, err := s.badges.EarnedBadgeIDs(ctx, member.ID)
	if err != nil {
		return nil, badgeLoadError(err, "load earned badges")
	}
	earnedBefore := int64(len(earned))

	var newly []model.Badge
	for _, b := range active {
		if _, ok := earned[b.ID]; ok {
			continue
		}

		ok, err := s.meets(ctx, member, b, earnedBefore)
		if err != nil {
			s.partial(b, member, err)
			continue
		}
		if !ok {
			continue
		}

		created, err := s.badges.Award(ctx, member.ID, b.ID, s.now())
		if err != nil {
			s.partial(b, member, err)
			continue
		}
		if created {
			newly = append(newly, b)
			s.logger.Info().Str("member_id", member.ID).Str("badge", b.Name).Msg("Badge earned")
		}
	}

	s.metrics.BadgesAwarded(len(newly))
	return newly, nil
}

func (s *BadgeService) partial(b model.Badge, member *model.Member, err error) {
	s.metrics.BadgeEvaluationError()
	s.logger.Warn().Err(err).
		Str("badge_id", b.ID).
		Str("member_id", member.ID).
		Msg("Partial evaluation: badge skipped")
}

func (s *BadgeService) meets(ctx context.Context, m *model.Member, b model.Badge, earnedCount int64) (bool, error) {
	req := b.Requirement
	switch req.Type {
	case model.RequirementXPTotal:
		return m.TotalXP >= req.Value, nil
	case model.RequirementLevel:
		return int64(m.Level) >= req.Value, nil
	case model.RequirementBadgeCount:
		return earnedCount >= req.Value, nil
	case model.RequirementMessageCount, model.RequirementPurchaseCount:
		n, err := s.ledger.CountTransactions(ctx, m.ID, countedEvent(req.Type), nil)
		if err != nil {
			return false, err
		}
		return n >= req.Value, nil
	case model.RequirementStreak:
		streak, err := s.streak(ctx, m.ID, req.Days)
		if err != nil {
			return false, err
		}
		return streak >= req.Days, nil
	case model.RequirementCustom:
		for _, rule := range req.Rules {
			since := s.now().AddDate(0, 0, -rule.Days)
			sum, err := s.ledger.SumTransactions(ctx, m.ID, since)
			if err != nil {
				return false, err
			}
			if sum < rule.Value {
				return false, nil
			}
		}
		return true, nil
	}
	return false, fmt.Errorf("%w: %q", model.ErrUnknownRequirement, req.Type)
}

func countedEvent(requirementType string) string {
	if requirementType == model.RequirementPurchaseCount {
		return model.EventPurchaseCompleted
	}
	return model.EventMessageCreated
}

// streak counts consecutive active days ending today, looking back at most
// limit days. A day without activity ends the streak, including today.
func (s *BadgeService) streak(ctx context.Context, memberID string, limit int) (int, error) {
	today := s.now().In(s.loc)
	start := time.Date(today.Year(), today.Month(), today.Day()-(limit-1), 0, 0, 0, 0, s.loc)

	days, err := s.ledger.ActiveDays(ctx, memberID, start, s.loc)
	if err != nil {
		return 0, err
	}
	active := make(map[string]struct{}, len(days))
	for _, d := range days {
		active[d.Format(dayLayout)] = struct{}{}
	}

	n := 0
	for n < limit {
		if _, ok := active[today.AddDate(0, 0, -n).Format(dayLayout)]; !ok {
			break
		}
		n++
	}
	return n, nil
}

// Progress returns how close the member is to a badge, 0 to 100. Earned
// badges report 100; requirement kinds without a linear measure report 0.
func (s *BadgeService) Progress(ctx context.Context, memberID, badgeID string) (int, error) {
	member, err := s.members.FindMember(ctx, memberID)
	if err != nil {
		return 0, notFoundOr(err, "find member")
	}
	badge, err := s.badges.FindBadge(ctx, badgeID)
	if err != nil {
		if model.IsRequirementError(err) {
			return 0, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return 0, notFoundOr(err, "find badge")
	}
	earned, err := s.badges.EarnedBadgeIDs(ctx, memberID)
	if err != nil {
		return 0, notFoundOr(err, "load earned badges")
	}
	if _, ok := earned[badgeID]; ok {
		return 100, nil
	}

	req := badge.Requirement
	var current int64
	switch req.Type {
	case model.RequirementXPTotal:
		current = member.TotalXP
	case model.RequirementLevel:
		current = int64(member.Level)
	case model.RequirementBadgeCount:
		current = int64(len(earned))
	case model.RequirementMessageCount, model.RequirementPurchaseCount:
		current, err = s.ledger.CountTransactions(ctx, memberID, countedEvent(req.Type), nil)
		if err != nil {
			return 0, notFoundOr(err, "count transactions")
		}
	default:
		return 0, nil
	}

	return percent(current, req.Value), nil
}

func percent(current, target int64) int {
	if target <= 0 || current >= target {
		return 100
	}
	return int(current * 100 / target)
}
