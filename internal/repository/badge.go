package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"levelup-engine/internal/model"
)

const badgeColumns = `id, company_id, name, description, image_url, rarity, requirement, is_active, is_secret`

// BadgeRepository handles badge definitions and member awards.
type BadgeRepository struct {
	pool *pgxpool.Pool
}

// NewBadgeRepository creates a new BadgeRepository instance.
func NewBadgeRepository(pool *pgxpool.Pool) *BadgeRepository {
	return &BadgeRepository{pool: pool}
}

// scanBadge reads a badge row and parses its requirement. On a requirement
// error the badge is returned along with the error.
func scanBadge(row pgx.Row, extra ...any) (*model.Badge, error) {
	var b model.Badge
	var requirement []byte
	dest := []any{
		&b.ID,
		&b.CompanyID,
		&b.Name,
		&b.Description,
		&b.ImageURL,
		&b.Rarity,
		&requirement,
		&b.IsActive,
		&b.IsSecret,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	req, err := model.ParseRequirement(requirement)
	if err != nil {
		return &b, fmt.Errorf("badge %s: %w", b.ID, err)
	}
	b.Requirement = req
	return &b, nil
}

// Create stores a badge definition.
func (r *BadgeRepository) Create(ctx context.Context, b *model.Badge) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Rarity == "" {
		b.Rarity = model.RarityCommon
	}

	requirement, err := json.Marshal(b.Requirement)
	if err != nil {
		return fmt.Errorf("failed to encode requirement: %w", err)
	}

	const query = `
		INSERT INTO badges (id, company_id, name, description, image_url, rarity, requirement, is_active, is_secret)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		b.ID, b.CompanyID, b.Name, b.Description, b.ImageURL, b.Rarity, requirement, b.IsActive, b.IsSecret)
	if err != nil {
		return wrapDuplicate(err, "create badge")
	}
	return nil
}

// FindBadge retrieves a badge by ID.
func (r *BadgeRepository) FindBadge(ctx context.Context, badgeID string) (*model.Badge, error) {
	if !validID(badgeID) {
		return nil, ErrBadgeNotFound
	}

	const query = `SELECT ` + badgeColumns + ` FROM badges WHERE id = $1`

	b, err := scanBadge(r.pool.QueryRow(ctx, query, badgeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBadgeNotFound
		}
		return nil, fmt.Errorf("failed to get badge: %w", err)
	}
	return b, nil
}

// ActiveBadges returns the company's active badge definitions in creation order.
func (r *BadgeRepository) ActiveBadges(ctx context.Context, companyID string) ([]model.Badge, error) {
	const query = `
		SELECT ` + badgeColumns + `
		FROM badges
		WHERE company_id = $1 AND is_active
		ORDER BY created_at, id
	`

	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active badges: %w", err)
	}
	defer rows.Close()

	var badges []model.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			if model.IsRequirementError(err) {
				log.Error().Err(err).Str("badge_id", b.ID).Str("badge", b.Name).
					Msg("Skipping badge with invalid requirement")
				continue
			}
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		badges = append(badges, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating badges: %w", err)
	}
	return badges, nil
}

// EarnedBadgeIDs returns the IDs of badges the member already holds.
func (r *BadgeRepository) EarnedBadgeIDs(ctx context.Context, memberID string) (map[string]struct{}, error) {
	const query = `SELECT badge_id FROM member_badges WHERE member_id = $1`

	rows, err := r.pool.Query(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to get earned badges: %w", err)
	}
	defer rows.Close()

	earned := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan earned badge: %w", err)
		}
		earned[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating earned badges: %w", err)
	}
	return earned, nil
}

// Award records that the member earned the badge. It reports true only when
// this call created the record; awarding an already held badge is a no-op.
func (r *BadgeRepository) Award(ctx context.Context, memberID, badgeID string, earnedAt time.Time) (bool, error) {
	const query = `
		INSERT INTO member_badges (member_id, badge_id, earned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (member_id, badge_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query, memberID, badgeID, earnedAt)
	if err != nil {
		return false, fmt.Errorf("failed to award badge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MemberBadges returns the member's earned badges, newest first.
func (r *BadgeRepository) MemberBadges(ctx context.Context, memberID string) ([]model.EarnedBadge, error) {
	if !validID(memberID) {
		return nil, ErrMemberNotFound
	}

	const query = `
		SELECT b.id, b.company_id, b.name, b.description, b.image_url, b.rarity, b.requirement,
			b.is_active, b.is_secret, mb.earned_at
		FROM member_badges mb
		JOIN badges b ON b.id = mb.badge_id
		WHERE mb.member_id = $1
		ORDER BY mb.earned_at DESC, b.id
	`

	rows, err := r.pool.Query(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to get member badges: %w", err)
	}
	defer rows.Close()

	var badges []model.EarnedBadge
	for rows.Next() {
		var earnedAt time.Time
		b, err := scanBadge(rows, &earnedAt)
		if err != nil {
			// An earned badge stays listed even if its definition went bad.
			if !model.IsRequirementError(err) {
				return nil, fmt.Errorf("failed to scan member badge: %w", err)
			}
			log.Warn().Err(err).Str("badge_id", b.ID).Msg("Earned badge has an invalid requirement")
		}
		badges = append(badges, model.EarnedBadge{Badge: *b, EarnedAt: earnedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member badges: %w", err)
	}
	return badges, nil
}
