package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"levelup-engine/internal/level"
	"levelup-engine/internal/model"
)

// LedgerTx is the write side of the ledger, valid for one transaction.
type LedgerTx interface {
	// Increment adds delta to the member's total and returns the new total
	// together with the level stored before the increment, both read under the row lock.
	Increment(ctx context.Context, memberID string, delta int64) (newTotal int64, oldLevel int, err error)
	SetLevel(ctx context.Context, memberID string, p level.Progress) (*model.Member, error)
	AppendTransaction(ctx context.Context, rec *model.XPTransaction) error
}

// LedgerRepository owns XP transactions and the member XP aggregate.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository instance.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// InTx runs fn inside a database transaction. The transaction commits when
// fn returns nil and rolls back otherwise.
func (r *LedgerRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &ledgerTx{db: tx})
	})
}

type ledgerTx struct {
	db DBTX
}

func (t *ledgerTx) Increment(ctx context.Context, memberID string, delta int64) (int64, int, error) {
	if !validID(memberID) {
		return 0, 0, ErrMemberNotFound
	}

	const query = `
		WITH cur AS (
			SELECT id, level FROM members WHERE id = $1 FOR UPDATE
		)
		UPDATE members m
		SET total_xp = m.total_xp + $2, last_activity_at = NOW(), updated_at = NOW()
		FROM cur
		WHERE m.id = cur.id
		RETURNING m.total_xp, cur.level
	`

	var total int64
	var oldLevel int
	err := t.db.QueryRow(ctx, query, memberID, delta).Scan(&total, &oldLevel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrMemberNotFound
		}
		return 0, 0, fmt.Errorf("failed to increment xp: %w", err)
	}
	return total, oldLevel, nil
}

func (t *ledgerTx) SetLevel(ctx context.Context, memberID string, p level.Progress) (*model.Member, error) {
	const query = `
		UPDATE members
		SET level = $2, current_level_xp = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + memberColumns

	m, err := scanMember(t.db.QueryRow(ctx, query, memberID, p.Level, p.CurrentLevelXP))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to set level: %w", err)
	}
	return m, nil
}

func (t *ledgerTx) AppendTransaction(ctx context.Context, rec *model.XPTransaction) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var createdAt *time.Time
	if !rec.CreatedAt.IsZero() {
		createdAt = &rec.CreatedAt
	}

	const query = `
		INSERT INTO xp_transactions (id, member_id, amount, reason, event_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		RETURNING created_at
	`

	err := t.db.QueryRow(ctx, query,
		rec.ID, rec.MemberID, rec.Amount, rec.Reason, rec.EventType, rec.Metadata, createdAt,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// CountTransactions counts the member's transactions of eventType, optionally since a time.
func (r *LedgerRepository) CountTransactions(ctx context.Context, memberID, eventType string, since *time.Time) (int64, error) {
	const query = `
		SELECT COUNT(*)
		FROM xp_transactions
		WHERE member_id = $1 AND event_type = $2 AND ($3::timestamptz IS NULL OR created_at >= $3)
	`

	var count int64
	if err := r.pool.QueryRow(ctx, query, memberID, eventType, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// LastTransactionAt returns the time of the member's newest transaction of eventType,
// or nil if there is none.
func (r *LedgerRepository) LastTransactionAt(ctx context.Context, memberID, eventType string) (*time.Time, error) {
	const query = `
		SELECT MAX(created_at)
		FROM xp_transactions
		WHERE member_id = $1 AND event_type = $2
	`

	var last *time.Time
	if err := r.pool.QueryRow(ctx, query, memberID, eventType).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to get last transaction: %w", err)
	}
	return last, nil
}

// SumTransactions sums the member's transaction amounts since a time.
func (r *LedgerRepository) SumTransactions(ctx context.Context, memberID string, since time.Time) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)::bigint
		FROM xp_transactions
		WHERE member_id = $1 AND created_at >= $2
	`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, memberID, since).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}

// ActiveDays returns the distinct calendar days in loc, newest first, on which
// the member has at least one transaction since the given time.
func (r *LedgerRepository) ActiveDays(ctx context.Context, memberID string, since time.Time, loc *time.Location) ([]time.Time, error) {
	const query = `
		SELECT DISTINCT (created_at AT TIME ZONE $3)::date AS day
		FROM xp_transactions
		WHERE member_id = $1 AND created_at >= $2
		ORDER BY day DESC
	`

	rows, err := r.pool.Query(ctx, query, memberID, since, loc.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get active days: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan active day: %w", err)
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active days: %w", err)
	}
	return days, nil
}

// History returns a page of the member's transactions, newest first, and the total count.
func (r *LedgerRepository) History(ctx context.Context, memberID string, limit, offset int) ([]model.XPTransaction, int64, error) {
	if !validID(memberID) {
		return nil, 0, ErrMemberNotFound
	}

	const query = `
		SELECT id, member_id, amount, reason, event_type, metadata, created_at
		FROM xp_transactions
		WHERE member_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, memberID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	txs := make([]model.XPTransaction, 0, limit)
	for rows.Next() {
		var tx model.XPTransaction
		err := rows.Scan(
			&tx.ID,
			&tx.MemberID,
			&tx.Amount,
			&tx.Reason,
			&tx.EventType,
			&tx.Metadata,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating transactions: %w", err)
	}

	var total int64
	const count = `SELECT COUNT(*) FROM xp_transactions WHERE member_id = $1`
	if err := r.pool.QueryRow(ctx, count, memberID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count history: %w", err)
	}

	return txs, total, nil
}

// EventStats aggregates the company's transactions per event type since a time.
func (r *LedgerRepository) EventStats(ctx context.Context, companyID string, since time.Time) (map[string]model.EventStat, error) {
	const query = `
		SELECT t.event_type, COUNT(*), COALESCE(SUM(t.amount), 0)::bigint
		FROM xp_transactions t
		JOIN members m ON m.id = t.member_id
		WHERE m.company_id = $1 AND t.created_at >= $2
		GROUP BY t.event_type
	`

	rows, err := r.pool.Query(ctx, query, companyID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get event stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]model.EventStat)
	for rows.Next() {
		var eventType string
		var stat model.EventStat
		if err := rows.Scan(&eventType, &stat.Count, &stat.TotalXP); err != nil {
			return nil, fmt.Errorf("failed to scan event stat: %w", err)
		}
		stats[eventType] = stat
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event stats: %w", err)
	}
	return stats, nil
}
