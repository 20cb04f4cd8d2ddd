package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"levelup-engine/internal/model"
)

// Every ranking is a total order ending in member id, so Top and CountAhead agree.
var topQueries = map[string]string{
	model.RankTotalXP: `
		SELECT id, display_name, avatar_url, total_xp, level, 0::bigint, 0::bigint
		FROM members
		WHERE company_id = $1
		ORDER BY total_xp DESC, id ASC
		LIMIT $2
	`,
	model.RankLevel: `
		SELECT id, display_name, avatar_url, total_xp, level, 0::bigint, 0::bigint
		FROM members
		WHERE company_id = $1
		ORDER BY level DESC, total_xp DESC, id ASC
		LIMIT $2
	`,
	model.RankWeeklyXP: `
		SELECT m.id, m.display_name, m.avatar_url, m.total_xp, m.level,
			COALESCE(SUM(t.amount), 0)::bigint AS weekly_xp, 0::bigint
		FROM members m
		LEFT JOIN xp_transactions t ON t.member_id = m.id AND t.created_at >= $3
		WHERE m.company_id = $1
		GROUP BY m.id
		ORDER BY weekly_xp DESC, m.id ASC
		LIMIT $2
	`,
	model.RankBadgesEarned: `
		SELECT m.id, m.display_name, m.avatar_url, m.total_xp, m.level,
			0::bigint, COUNT(mb.badge_id) AS badge_count
		FROM members m
		LEFT JOIN member_badges mb ON mb.member_id = m.id
		WHERE m.company_id = $1
		GROUP BY m.id
		ORDER BY badge_count DESC, m.total_xp DESC, m.id ASC
		LIMIT $2
	`,
}

var aheadQueries = map[string]string{
	model.RankTotalXP: `
		WITH me AS (SELECT id, company_id, total_xp FROM members WHERE id = $1)
		SELECT COUNT(*)
		FROM members o, me
		WHERE o.company_id = me.company_id
			AND (-o.total_xp, o.id) < (-me.total_xp, me.id)
	`,
	model.RankLevel: `
		WITH me AS (SELECT id, company_id, level, total_xp FROM members WHERE id = $1)
		SELECT COUNT(*)
		FROM members o, me
		WHERE o.company_id = me.company_id
			AND (-o.level, -o.total_xp, o.id) < (-me.level, -me.total_xp, me.id)
	`,
	model.RankWeeklyXP: `
		WITH scores AS (
			SELECT m.id, COALESCE(SUM(t.amount), 0)::bigint AS score
			FROM members m
			LEFT JOIN xp_transactions t ON t.member_id = m.id AND t.created_at >= $2
			WHERE m.company_id = (SELECT company_id FROM members WHERE id = $1)
			GROUP BY m.id
		), me AS (SELECT id, score FROM scores WHERE id = $1)
		SELECT COUNT(*)
		FROM scores o, me
		WHERE (-o.score, o.id) < (-me.score, me.id)
	`,
	model.RankBadgesEarned: `
		WITH scores AS (
			SELECT m.id, m.total_xp, COUNT(mb.badge_id) AS score
			FROM members m
			LEFT JOIN member_badges mb ON mb.member_id = m.id
			WHERE m.company_id = (SELECT company_id FROM members WHERE id = $1)
			GROUP BY m.id
		), me AS (SELECT id, total_xp, score FROM scores WHERE id = $1)
		SELECT COUNT(*)
		FROM scores o, me
		WHERE (-o.score, -o.total_xp, o.id) < (-me.score, -me.total_xp, me.id)
	`,
}

// LeaderboardRepository runs the ranking queries.
type LeaderboardRepository struct {
	pool *pgxpool.Pool
}

// NewLeaderboardRepository creates a new LeaderboardRepository instance.
func NewLeaderboardRepository(pool *pgxpool.Pool) *LeaderboardRepository {
	return &LeaderboardRepository{pool: pool}
}

// Top returns the first limit members of the company in the ranking's order,
// without ranks. since bounds the weekly window and is ignored by other rankings.
func (r *LeaderboardRepository) Top(ctx context.Context, companyID, rankType string, since time.Time, limit int) ([]model.LeaderboardEntry, error) {
	query, ok := topQueries[rankType]
	if !ok {
		return nil, fmt.Errorf("unknown ranking type %q", rankType)
	}

	args := []any{companyID, limit}
	if rankType == model.RankWeeklyXP {
		args = append(args, since)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]model.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e model.LeaderboardEntry
		var badges int64
		err := rows.Scan(
			&e.MemberID,
			&e.DisplayName,
			&e.AvatarURL,
			&e.TotalXP,
			&e.Level,
			&e.WeeklyXP,
			&badges,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		e.BadgeCount = int(badges)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}
	return entries, nil
}

// CountAhead counts the company members ranked strictly before the member.
func (r *LeaderboardRepository) CountAhead(ctx context.Context, memberID, rankType string, since time.Time) (int64, error) {
	query, ok := aheadQueries[rankType]
	if !ok {
		return 0, fmt.Errorf("unknown ranking type %q", rankType)
	}

	args := []any{memberID}
	if rankType == model.RankWeeklyXP {
		args = append(args, since)
	}

	var count int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count members ahead: %w", err)
	}
	return count, nil
}
