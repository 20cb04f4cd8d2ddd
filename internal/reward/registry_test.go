package reward

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelup-engine/internal/model"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(NewLogHandler("", zerolog.Nop())))

	require.NoError(t, r.Register(NewLogHandler("role", zerolog.Nop())))
	require.NoError(t, r.Register(NewLogHandler("custom", zerolog.Nop())))

	h, ok := r.Get("role")
	require.True(t, ok)
	assert.Equal(t, "role", h.Type())

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"custom", "role"}, r.Types())
}

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry(zerolog.Nop())
	assert.Equal(t, []string{
		model.RewardCustom, model.RewardDiscountCode, model.RewardFreeDays, model.RewardRole,
	}, r.Types())
}

func TestLogHandler_Fulfil(t *testing.T) {
	var buf bytes.Buffer
	h := NewLogHandler(model.RewardFreeDays, zerolog.New(&buf))

	err := h.Fulfil(context.Background(), Request{
		Member: &model.Member{ID: "m-1"},
		Reward: &model.Reward{ID: "r-1", Config: map[string]any{"days": 7}},
		Claim:  &model.RewardClaim{ID: "c-1"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"reward_id":"r-1"`)
	assert.Contains(t, out, `"claim_id":"c-1"`)
	assert.Contains(t, out, `"days":7`)
}
