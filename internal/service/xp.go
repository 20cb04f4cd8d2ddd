// Package service implements the XP engine: grants, badges, event rules,
// leaderboards and reward claims.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"levelup-engine/internal/level"
	"levelup-engine/internal/metrics"
	"levelup-engine/internal/model"
	"levelup-engine/internal/notify"
	"levelup-engine/internal/repository"
)

// GrantParams describes one XP grant.
type GrantParams struct {
	MemberID  string
	Amount    int64
	Reason    string
	EventType string
	Metadata  map[string]any
}

// GrantResult reports the outcome of a grant. When Success is false nothing
// was applied and Error explains why.
type GrantResult struct {
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
	Err          error         `json:"-"`
	LeveledUp    bool          `json:"leveledUp"`
	NewLevel     int           `json:"newLevel,omitempty"`
	Member       *model.Member `json:"member,omitempty"`
	BadgesEarned []model.Badge `json:"badgesEarned,omitempty"`
}

func failed(err error) GrantResult {
	return GrantResult{Error: err.Error(), Err: err}
}

// AchievementChecker evaluates badges after a grant.
type AchievementChecker interface {
	CheckAchievements(ctx context.Context, member *model.Member) ([]model.Badge, error)
}

// CacheInvalidator drops cached leaderboards of a company.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, companyID string) error
}

// Announcer delivers notifications without blocking the caller.
type Announcer interface {
	Notify(ctx context.Context, n notify.Notification)
}

// XPOptions holds grant engine settings.
type XPOptions struct {
	MaxPerGrant       int64
	SideEffectTimeout time.Duration
	BaseURL           string
}

// XPService applies XP grants.
type XPService struct {
	members      MemberStore
	ledger       LedgerStore
	achievements AchievementChecker
	leaderboards CacheInvalidator
	announcer    Announcer
	metrics      *metrics.Metrics
	opts         XPOptions
	logger       zerolog.Logger
	now          func() time.Time
}

// NewXPService creates a new XPService instance. announcer may be nil to
// disable notifications.
func NewXPService(
	members MemberStore,
	ledger LedgerStore,
	achievements AchievementChecker,
	leaderboards CacheInvalidator,
	announcer Announcer,
	m *metrics.Metrics,
	opts XPOptions,
	logger zerolog.Logger,
) *XPService {
	return &XPService{
		members:      members,
		ledger:       ledger,
		achievements: achievements,
		leaderboards: leaderboards,
		announcer:    announcer,
		metrics:      m,
		opts:         opts,
		logger:       logger.With().Str("component", "xp-engine").Logger(),
		now:          time.Now,
	}
}

func (s *XPService) validate(p GrantParams) error {
	if p.MemberID == "" {
		return missing("member id")
	}
	if p.Amount < 1 || p.Amount > s.opts.MaxPerGrant {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidAmount, p.Amount, s.opts.MaxPerGrant)
	}
	if p.Reason == "" {
		return missing("reason")
	}
	if p.EventType == "" {
		return missing("event type")
	}
	return nil
}

// Grant adds XP to a member. The ledger entry, the new total and the derived
// level are committed together or not at all. Badge evaluation, cache
// invalidation and notifications run after the commit and never undo it.
func (s *XPService) Grant(ctx context.Context, p GrantParams) GrantResult {
	if err := s.validate(p); err != nil {
		s.metrics.GrantResult(metrics.ResultInvalid)
		return failed(err)
	}

	if _, err := s.members.FindMember(ctx, p.MemberID); err != nil {
		return s.grantFailed(p, notFoundOr(err, "find member"))
	}

	var (
		member   *model.Member
		oldLevel int
		progress level.Progress
	)
	err := s.ledger.InTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		total, old, err := tx.Increment(ctx, p.MemberID, p.Amount)
		if err != nil {
			return err
		}
		oldLevel = old
		progress = level.FromTotalXP(total)

		member, err = tx.SetLevel(ctx, p.MemberID, progress)
		if err != nil {
			return err
		}

		return tx.AppendTransaction(ctx, &model.XPTransaction{
			MemberID:  p.MemberID,
			Amount:    p.Amount,
			Reason:    p.Reason,
			EventType: p.EventType,
			Metadata:  p.Metadata,
			CreatedAt: s.now(),
		})
	})
	if err != nil {
		return s.grantFailed(p, notFoundOr(err, "commit grant"))
	}

	leveledUp := progress.Level > oldLevel
	s.metrics.GrantResult(metrics.ResultSuccess)
	s.metrics.Granted(p.Amount, leveledUp)

	s.logger.Info().
		Str("member_id", member.ID).
		Int64("amount", p.Amount).
		Str("event_type", p.EventType).
		Int64("total_xp", member.TotalXP).
		Int("level", member.Level).
		Bool("leveled_up", leveledUp).
		Msg("XP granted")

	result := GrantResult{
		Success:   true,
		LeveledUp: leveledUp,
		NewLevel:  progress.Level,
		Member:    member,
	}
	result.BadgesEarned = s.afterCommit(ctx, member, leveledUp)
	return result
}

func (s *XPService) grantFailed(p GrantParams, err error) GrantResult {
	if errors.Is(err, ErrNotFound) {
		s.metrics.GrantResult(metrics.ResultNotFound)
	} else {
		s.metrics.GrantResult(metrics.ResultError)
		s.logger.Error().Err(err).Str("member_id", p.MemberID).Int64("amount", p.Amount).Msg("XP grant failed")
	}
	return failed(err)
}

// afterCommit runs the post-commit steps and returns newly earned badges.
func (s *XPService) afterCommit(ctx context.Context, member *model.Member, leveledUp bool) []model.Badge {
	var badges []model.Badge
	alive := ctx.Err() == nil

	if alive && s.achievements != nil {
		var err error
		badges, err = s.achievements.CheckAchievements(ctx, member)
		if err != nil {
			s.metrics.SideEffectError("badge_check")
			s.logger.Warn().Err(err).Str("member_id", member.ID).Msg("Badge check after grant failed")
		}
	}

	// Invalidation runs even when the caller is gone.
	if s.leaderboards != nil {
		invCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SideEffectTimeout)
		if err := s.leaderboards.Invalidate(invCtx, member.CompanyID); err != nil {
			s.metrics.SideEffectError("cache_invalidation")
			s.logger.Warn().Err(err).Str("company_id", member.CompanyID).Msg("Leaderboard invalidation failed")
		}
		cancel()
	}

	if !alive {
		s.logger.Debug().Str("member_id", member.ID).Msg("Caller gone, skipping badge check and notifications")
		return nil
	}

	if s.announcer != nil {
		if leveledUp {
			s.announcer.Notify(ctx, notify.LevelUp(member, member.Level, s.opts.BaseURL))
		}
		if n, ok := notify.BadgesEarned(member, badges, s.opts.BaseURL); ok {
			s.announcer.Notify(ctx, n)
		}
	}
	return badges
}

// GrantMany applies grants one after another. Each grant succeeds or fails on its own.
func (s *XPService) GrantMany(ctx context.Context, grants []GrantParams) []GrantResult {
	results := make([]GrantResult, len(grants))
	for i, p := range grants {
		results[i] = s.Grant(ctx, p)
	}
	return results
}
