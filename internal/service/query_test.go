package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelup-engine/internal/model"
)

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.store.addMember(company, "u1", 0)
	for i := 0; i < 5; i++ {
		env.store.addTx(m.ID, int64(i+1), model.EventMessageCreated, testStart.Add(time.Duration(i)*time.Minute))
	}

	page, err := env.queries.History(ctx, m.ID, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	require.Len(t, page.Transactions, 2)
	assert.Equal(t, int64(4), page.Transactions[0].Amount)
	assert.Equal(t, int64(3), page.Transactions[1].Amount)

	page, err = env.queries.History(ctx, m.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 50, page.Limit)
	assert.NotNil(t, page.Transactions)
	assert.Empty(t, page.Transactions)

	page, err = env.queries.History(ctx, m.ID, 1000, -1)
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	assert.Equal(t, 0, page.Offset)

	_, err = env.queries.History(ctx, "missing", 10, 0)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.store.addMember(company, "u1", 400)
	env.store.addBadge(company, "First Steps", `{"type":"xp_total","value":100}`)
	_, err := env.badges.CheckAchievements(ctx, m)
	require.NoError(t, err)

	p, err := env.queries.Profile(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, p.Member.ID)
	assert.Equal(t, 2, p.Progress.Level)
	assert.Equal(t, int64(400-282), p.Progress.CurrentLevelXP)
	assert.Equal(t, int64(519), p.Progress.XPForNextLevel)
	require.Len(t, p.Badges, 1)
	assert.Equal(t, "First Steps", p.Badges[0].Name)
	assert.Equal(t, testStart, p.Badges[0].EarnedAt)

	_, err = env.queries.Profile(ctx, "missing")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}
