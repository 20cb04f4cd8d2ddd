package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"levelup-engine/internal/model"
)

// RuleRepository handles XP rule definitions.
type RuleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository creates a new RuleRepository instance.
func NewRuleRepository(pool *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

// Create stores an XP rule.
func (r *RuleRepository) Create(ctx context.Context, rule *model.XPRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO xp_rules (id, company_id, name, event_type, xp_amount, cooldown_seconds, max_per_day, is_active, conditions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var conditions any
	if len(rule.Conditions) > 0 {
		conditions = rule.Conditions
	}
	_, err := r.pool.Exec(ctx, query,
		rule.ID, rule.CompanyID, rule.Name, rule.EventType, rule.XPAmount,
		rule.CooldownSeconds, rule.MaxPerDay, rule.IsActive, conditions)
	if err != nil {
		return wrapDuplicate(err, "create rule")
	}
	return nil
}

// ActiveRules returns the company's active rules for an event type in creation order.
func (r *RuleRepository) ActiveRules(ctx context.Context, companyID, eventType string) ([]model.XPRule, error) {
	const query = `
		SELECT id, company_id, name, event_type, xp_amount, cooldown_seconds, max_per_day, is_active, conditions
		FROM xp_rules
		WHERE company_id = $1 AND event_type = $2 AND is_active
		ORDER BY created_at, id
	`

	rows, err := r.pool.Query(ctx, query, companyID, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to get active rules: %w", err)
	}
	defer rows.Close()

	var rules []model.XPRule
	for rows.Next() {
		var rule model.XPRule
		err := rows.Scan(
			&rule.ID,
			&rule.CompanyID,
			&rule.Name,
			&rule.EventType,
			&rule.XPAmount,
			&rule.CooldownSeconds,
			&rule.MaxPerDay,
			&rule.IsActive,
			&rule.Conditions,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}
