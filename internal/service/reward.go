package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"levelup-engine/internal/model"
	"levelup-engine/internal/notify"
	"levelup-engine/internal/pkg/lock"
	"levelup-engine/internal/reward"
)

// RewardService checks reward requirements and records claims.
type RewardService struct {
	members   MemberStore
	badges    BadgeStore
	rewards   RewardStore
	handlers  *reward.Registry
	locks     *lock.KeyLock
	announcer Announcer
	baseURL   string
	timeout   time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewRewardService creates a new RewardService instance. announcer may be nil.
func NewRewardService(
	members MemberStore,
	badges BadgeStore,
	rewards RewardStore,
	handlers *reward.Registry,
	locks *lock.KeyLock,
	announcer Announcer,
	baseURL string,
	lockTimeout time.Duration,
	logger zerolog.Logger,
) *RewardService {
	return &RewardService{
		members:   members,
		badges:    badges,
		rewards:   rewards,
		handlers:  handlers,
		locks:     locks,
		announcer: announcer,
		baseURL:   baseURL,
		timeout:   lockTimeout,
		logger:    logger.With().Str("component", "reward").Logger(),
		now:       time.Now,
	}
}

// Claim claims a reward for a member. The returned claim is completed when
// the fulfilment handler succeeded and failed otherwise.
func (s *RewardService) Claim(ctx context.Context, memberID, rewardID string) (*model.RewardClaim, error) {
	if memberID == "" {
		return nil, missing("member id")
	}
	if rewardID == "" {
		return nil, missing("reward id")
	}

	var claim *model.RewardClaim
	err := s.locks.WithLock(ctx, "reward:"+memberID, s.timeout, func() error {
		var err error
		claim, err = s.claim(ctx, memberID, rewardID)
		return err
	})
	return claim, err
}

func (s *RewardService) claim(ctx context.Context, memberID, rewardID string) (*model.RewardClaim, error) {
	member, err := s.members.FindMember(ctx, memberID)
	if err != nil {
		return nil, notFoundOr(err, "find member")
	}
	rw, err := s.rewards.FindReward(ctx, rewardID)
	if err != nil {
		return nil, notFoundOr(err, "find reward")
	}
	if !rw.IsActive || rw.CompanyID != member.CompanyID {
		return nil, ErrRewardInactive
	}

	if err := s.checkRequirements(ctx, member, rw); err != nil {
		return nil, err
	}

	claim := &model.RewardClaim{MemberID: memberID, RewardID: rewardID, Status: model.ClaimPending}
	if err := s.rewards.CreateClaim(ctx, claim); err != nil {
		return nil, notFoundOr(err, "record claim")
	}

	handler, ok := s.handlers.Get(rw.Type)
	if !ok {
		s.finish(ctx, claim, model.ClaimFailed)
		return claim, fmt.Errorf("%w: %q", ErrUnknownRewardType, rw.Type)
	}

	if err := handler.Fulfil(ctx, reward.Request{Member: member, Reward: rw, Claim: claim}); err != nil {
		s.logger.Error().Err(err).Str("claim_id", claim.ID).Str("reward_type", rw.Type).Msg("Reward fulfilment failed")
		s.finish(ctx, claim, model.ClaimFailed)
		return claim, nil
	}

	s.finish(ctx, claim, model.ClaimCompleted)
	if s.announcer != nil && claim.Status == model.ClaimCompleted {
		s.announcer.Notify(ctx, notify.RewardClaimed(member, rw, s.baseURL))
	}
	return claim, nil
}

func (s *RewardService) finish(ctx context.Context, claim *model.RewardClaim, status string) {
	if err := s.rewards.UpdateClaimStatus(context.WithoutCancel(ctx), claim.ID, status); err != nil {
		s.logger.Error().Err(err).Str("claim_id", claim.ID).Str("status", status).Msg("Failed to update claim status")
		return
	}
	claim.Status = status
}

func (s *RewardService) checkRequirements(ctx context.Context, member *model.Member, rw *model.Reward) error {
	if rw.RequiredLevel != nil && member.Level < *rw.RequiredLevel {
		return fmt.Errorf("%w: level %d required", ErrRequirementsNotMet, *rw.RequiredLevel)
	}
	if rw.RequiredXP != nil && member.TotalXP < *rw.RequiredXP {
		return fmt.Errorf("%w: %d XP required", ErrRequirementsNotMet, *rw.RequiredXP)
	}
	if len(rw.RequiredBadges) > 0 {
		earned, err := s.badges.EarnedBadgeIDs(ctx, member.ID)
		if err != nil {
			return notFoundOr(err, "load earned badges")
		}
		for _, id := range rw.RequiredBadges {
			if _, ok := earned[id]; !ok {
				return fmt.Errorf("%w: badge %s required", ErrRequirementsNotMet, id)
			}
		}
	}

	if !rw.IsRepeatable {
		done, err := s.rewards.HasCompletedClaim(ctx, member.ID, rw.ID)
		if err != nil {
			return notFoundOr(err, "check claims")
		}
		if done {
			return ErrAlreadyClaimed
		}
	}
	if rw.CooldownDays > 0 {
		recent, err := s.rewards.ClaimedSince(ctx, member.ID, rw.ID, s.now().AddDate(0, 0, -rw.CooldownDays))
		if err != nil {
			return notFoundOr(err, "check claims")
		}
		if recent {
			return ErrClaimCooldown
		}
	}
	return nil
}
