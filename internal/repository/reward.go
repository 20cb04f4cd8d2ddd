package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"levelup-engine/internal/model"
)

// RewardRepository handles rewards and their claims.
type RewardRepository struct {
	pool *pgxpool.Pool
}

// NewRewardRepository creates a new RewardRepository instance.
func NewRewardRepository(pool *pgxpool.Pool) *RewardRepository {
	return &RewardRepository{pool: pool}
}

// Create stores a reward.
func (r *RewardRepository) Create(ctx context.Context, rw *model.Reward) error {
	if rw.ID == "" {
		rw.ID = uuid.NewString()
	}
	if rw.Config == nil {
		rw.Config = map[string]any{}
	}
	if rw.RequiredBadges == nil {
		rw.RequiredBadges = []string{}
	}

	const query = `
		INSERT INTO rewards (id, company_id, name, description, type, config, required_level, required_xp,
			required_badges, is_active, is_repeatable, cooldown_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.pool.Exec(ctx, query,
		rw.ID, rw.CompanyID, rw.Name, rw.Description, rw.Type, rw.Config, rw.RequiredLevel, rw.RequiredXP,
		rw.RequiredBadges, rw.IsActive, rw.IsRepeatable, rw.CooldownDays)
	if err != nil {
		return wrapDuplicate(err, "create reward")
	}
	return nil
}

// FindReward retrieves a reward by ID.
func (r *RewardRepository) FindReward(ctx context.Context, rewardID string) (*model.Reward, error) {
	if !validID(rewardID) {
		return nil, ErrRewardNotFound
	}

	const query = `
		SELECT id, company_id, name, description, type, config, required_level, required_xp,
			required_badges, is_active, is_repeatable, cooldown_days
		FROM rewards
		WHERE id = $1
	`

	var rw model.Reward
	err := r.pool.QueryRow(ctx, query, rewardID).Scan(
		&rw.ID,
		&rw.CompanyID,
		&rw.Name,
		&rw.Description,
		&rw.Type,
		&rw.Config,
		&rw.RequiredLevel,
		&rw.RequiredXP,
		&rw.RequiredBadges,
		&rw.IsActive,
		&rw.IsRepeatable,
		&rw.CooldownDays,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRewardNotFound
		}
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}
	return &rw, nil
}

// CreateClaim records a claim attempt and fills in its ID and timestamp.
func (r *RewardRepository) CreateClaim(ctx context.Context, c *model.RewardClaim) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO reward_claims (id, member_id, reward_id, status, claimed_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING claimed_at
	`
	if err := r.pool.QueryRow(ctx, query, c.ID, c.MemberID, c.RewardID, c.Status).Scan(&c.ClaimedAt); err != nil {
		return fmt.Errorf("failed to create claim: %w", err)
	}
	return nil
}

// UpdateClaimStatus sets the claim status.
func (r *RewardRepository) UpdateClaimStatus(ctx context.Context, claimID, status string) error {
	const query = `UPDATE reward_claims SET status = $2 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, claimID, status)
	if err != nil {
		return fmt.Errorf("failed to update claim status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimNotFound
	}
	return nil
}

// HasCompletedClaim reports whether the member has a completed claim for the reward.
func (r *RewardRepository) HasCompletedClaim(ctx context.Context, memberID, rewardID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM reward_claims
			WHERE member_id = $1 AND reward_id = $2 AND status = 'completed'
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, memberID, rewardID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check claims: %w", err)
	}
	return exists, nil
}

// ClaimedSince reports whether the member has a claim for the reward that did
// not fail, made at or after since.
func (r *RewardRepository) ClaimedSince(ctx context.Context, memberID, rewardID string, since time.Time) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM reward_claims
			WHERE member_id = $1 AND reward_id = $2 AND status <> 'failed' AND claimed_at >= $3
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, memberID, rewardID, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check recent claims: %w", err)
	}
	return exists, nil
}
