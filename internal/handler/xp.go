package handler

import (
	"net/http"

	"levelup-engine/internal/model"
	"levelup-engine/internal/service"
)

// XPHandler serves manual grants and XP history.
type XPHandler struct {
	granter Granter
	members MemberReader
}

// NewXPHandler creates a new XPHandler instance.
func NewXPHandler(granter Granter, members MemberReader) *XPHandler {
	return &XPHandler{granter: granter, members: members}
}

type grantRequest struct {
	MemberID string `json:"memberId"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
}

// HandleGrant handles POST /api/xp/grant.
func (h *XPHandler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res := h.granter.Grant(r.Context(), service.GrantParams{
		MemberID:  req.MemberID,
		Amount:    req.Amount,
		Reason:    req.Reason,
		EventType: model.EventManualGrant,
		Metadata:  map[string]any{"grantedBy": "admin"},
	})
	if !res.Success {
		if statusFor(res.Err) == http.StatusInternalServerError {
			writeServiceError(w, r, res.Err)
			return
		}
		writeJSON(w, statusFor(res.Err), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleHistory handles GET /api/xp/history.
func (h *XPHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	memberID := r.URL.Query().Get("memberId")
	if memberID == "" {
		writeError(w, http.StatusBadRequest, "memberId is required")
		return
	}
	limit, ok := intParam(r, "limit", 50)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, ok := intParam(r, "offset", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	page, err := h.members.History(r.Context(), memberID, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
