package handler

import (
	"errors"
	"net/http"

	"levelup-engine/internal/service"
)

// RewardHandler serves reward claims.
type RewardHandler struct {
	rewards RewardClaimer
}

// NewRewardHandler creates a new RewardHandler instance.
func NewRewardHandler(rewards RewardClaimer) *RewardHandler {
	return &RewardHandler{rewards: rewards}
}

type claimRequest struct {
	MemberID string `json:"memberId"`
	RewardID string `json:"rewardId"`
}

// HandleClaim handles POST /api/rewards/claim.
func (h *RewardHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claim, err := h.rewards.Claim(r.Context(), req.MemberID, req.RewardID)
	if err != nil {
		if errors.Is(err, service.ErrUnknownRewardType) && claim != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "claim": claim})
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}
