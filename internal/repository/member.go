package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"levelup-engine/internal/model"
)

const memberColumns = `id, company_id, external_user_id, membership_id, display_name, avatar_url,
	total_xp, level, current_level_xp, last_activity_at, created_at, updated_at`

func scanMember(row pgx.Row) (*model.Member, error) {
	var m model.Member
	err := row.Scan(
		&m.ID,
		&m.CompanyID,
		&m.ExternalUserID,
		&m.MembershipID,
		&m.DisplayName,
		&m.AvatarURL,
		&m.TotalXP,
		&m.Level,
		&m.CurrentLevelXP,
		&m.LastActivityAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MemberRepository handles member persistence.
type MemberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository creates a new MemberRepository instance.
func NewMemberRepository(pool *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

// FindMember retrieves a member by ID.
// Returns ErrMemberNotFound if the member does not exist.
func (r *MemberRepository) FindMember(ctx context.Context, memberID string) (*model.Member, error) {
	if !validID(memberID) {
		return nil, ErrMemberNotFound
	}

	const query = `SELECT ` + memberColumns + ` FROM members WHERE id = $1`

	m, err := scanMember(r.pool.QueryRow(ctx, query, memberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// FindByExternal retrieves a member by external user ID within a company.
func (r *MemberRepository) FindByExternal(ctx context.Context, externalUserID, companyID string) (*model.Member, error) {
	const query = `SELECT ` + memberColumns + ` FROM members WHERE external_user_id = $1 AND company_id = $2`

	m, err := scanMember(r.pool.QueryRow(ctx, query, externalUserID, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member by external id: %w", err)
	}
	return m, nil
}

// UpsertMember returns the member for the identity, creating it on first sight.
// Display fields are only written when the member is created.
func (r *MemberRepository) UpsertMember(ctx context.Context, id model.MemberIdentity) (*model.Member, bool, error) {
	const insert = `
		INSERT INTO members (id, company_id, external_user_id, membership_id, display_name, avatar_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (external_user_id, company_id) DO NOTHING
		RETURNING ` + memberColumns

	m, err := scanMember(r.pool.QueryRow(ctx, insert,
		uuid.NewString(), id.CompanyID, id.ExternalUserID, id.MembershipID, id.DisplayName, id.AvatarURL))
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to upsert member: %w", err)
	}

	// Conflict: another event already created the member.
	m, err = r.FindByExternal(ctx, id.ExternalUserID, id.CompanyID)
	if err != nil {
		return nil, false, err
	}
	return m, false, nil
}

// CountByCompany returns the number of members and their average level.
func (r *MemberRepository) CountByCompany(ctx context.Context, companyID string) (int64, float64, error) {
	const query = `
		SELECT COUNT(*), COALESCE(AVG(level), 0)::float8
		FROM members
		WHERE company_id = $1
	`

	var count int64
	var avg float64
	if err := r.pool.QueryRow(ctx, query, companyID).Scan(&count, &avg); err != nil {
		return 0, 0, fmt.Errorf("failed to count members: %w", err)
	}
	return count, avg, nil
}
