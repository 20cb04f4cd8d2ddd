// Package handler provides the HTTP handlers of the XP engine API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"levelup-engine/internal/model"
	"levelup-engine/internal/service"
)

const maxBodyBytes = 1 << 20

// EventProcessor handles inbound activity events.
type EventProcessor interface {
	Handle(ctx context.Context, ev model.ActivityEvent) error
}

// Granter applies XP grants.
type Granter interface {
	Grant(ctx context.Context, p service.GrantParams) service.GrantResult
}

// MemberReader answers member queries.
type MemberReader interface {
	History(ctx context.Context, memberID string, limit, offset int) (*service.HistoryPage, error)
	Profile(ctx context.Context, memberID string) (*service.MemberProfile, error)
}

// Leaderboards ranks members.
type Leaderboards interface {
	Generate(ctx context.Context, companyID, rankType, timeframe string, limit int) ([]model.LeaderboardEntry, error)
	MemberRank(ctx context.Context, memberID, rankType string) (int64, error)
	Stats(ctx context.Context, companyID string) (*service.LeaderboardStats, error)
}

// BadgeProgress reports progress towards a badge.
type BadgeProgress interface {
	Progress(ctx context.Context, memberID, badgeID string) (int, error)
}

// EventStats aggregates ledger activity.
type EventStats interface {
	EventStats(ctx context.Context, companyID string, days int) (map[string]model.EventStat, error)
}

// RewardClaimer claims rewards.
type RewardClaimer interface {
	Claim(ctx context.Context, memberID, rewardID string) (*model.RewardClaim, error)
}

// HealthChecker checks a backing dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps service error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with the status of its kind. Internal errors
// are logged and replaced with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// intParam parses an optional integer query parameter.
func intParam(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
