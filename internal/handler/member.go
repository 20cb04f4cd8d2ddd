package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"levelup-engine/internal/model"
)

// MemberHandler serves leaderboards, profiles, badge progress and statistics.
type MemberHandler struct {
	members      MemberReader
	leaderboards Leaderboards
	badges       BadgeProgress
	stats        EventStats
}

// NewMemberHandler creates a new MemberHandler instance.
func NewMemberHandler(members MemberReader, leaderboards Leaderboards, badges BadgeProgress, stats EventStats) *MemberHandler {
	return &MemberHandler{members: members, leaderboards: leaderboards, badges: badges, stats: stats}
}

type leaderboardResponse struct {
	Leaderboard []model.LeaderboardEntry `json:"leaderboard"`
	MemberRank  *int64                   `json:"memberRank,omitempty"`
}

// HandleLeaderboard handles GET /api/members/leaderboard.
func (h *MemberHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	companyID := q.Get("companyId")
	if companyID == "" {
		writeError(w, http.StatusBadRequest, "companyId is required")
		return
	}
	rankType := q.Get("type")
	if rankType == "" {
		rankType = model.RankTotalXP
	}
	timeframe := q.Get("timeframe")
	if timeframe == "" {
		timeframe = model.TimeframeAllTime
	}
	limit, ok := intParam(r, "limit", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	entries, err := h.leaderboards.Generate(r.Context(), companyID, rankType, timeframe, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := leaderboardResponse{Leaderboard: entries}
	if memberID := q.Get("memberId"); memberID != "" {
		rank, err := h.leaderboards.MemberRank(r.Context(), memberID, rankType)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp.MemberRank = &rank
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleLeaderboardStats handles GET /api/members/leaderboard/stats.
func (h *MemberHandler) HandleLeaderboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.leaderboards.Stats(r.Context(), r.URL.Query().Get("companyId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleProfile handles GET /api/members/{id}.
func (h *MemberHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.members.Profile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleBadgeProgress handles GET /api/members/{id}/badges/{badgeId}/progress.
func (h *MemberHandler) HandleBadgeProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.badges.Progress(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "badgeId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"progress": progress})
}

// HandleEventStats handles GET /api/stats/events.
func (h *MemberHandler) HandleEventStats(w http.ResponseWriter, r *http.Request) {
	days, ok := intParam(r, "days", 7)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid days")
		return
	}
	stats, err := h.stats.EventStats(r.Context(), r.URL.Query().Get("companyId"), days)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
