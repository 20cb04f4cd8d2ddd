package reward

import (
	"context"

	"github.com/rs/zerolog"

	"levelup-engine/internal/model"
)

// LogHandler records a fulfilment request without delivering anything.
// External systems pick the request up from the log stream.
type LogHandler struct {
	rewardType string
	logger     zerolog.Logger
}

// NewLogHandler creates a LogHandler for rewardType.
func NewLogHandler(rewardType string, logger zerolog.Logger) *LogHandler {
	return &LogHandler{rewardType: rewardType, logger: logger}
}

// Type implements Handler.
func (h *LogHandler) Type() string { return h.rewardType }

// Fulfil implements Handler.
func (h *LogHandler) Fulfil(_ context.Context, req Request) error {
	h.logger.Info().
		Str("reward_type", h.rewardType).
		Str("reward_id", req.Reward.ID).
		Str("member_id", req.Member.ID).
		Str("claim_id", req.Claim.ID).
		Interface("config", req.Reward.Config).
		Msg("Reward fulfilment requested")
	return nil
}

// NewDefaultRegistry returns a registry with log handlers for the built-in reward types.
func NewDefaultRegistry(logger zerolog.Logger) *Registry {
	r := NewRegistry()
	logger = logger.With().Str("component", "reward").Logger()
	for _, t := range []string{model.RewardRole, model.RewardFreeDays, model.RewardDiscountCode, model.RewardCustom} {
		_ = r.Register(NewLogHandler(t, logger))
	}
	return r
}
