package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelup-engine/internal/model"
	"levelup-engine/internal/service"
)

type fakeEvents struct {
	mu     sync.Mutex
	events []model.ActivityEvent
	err    error
	ctxErr error
}

func (f *fakeEvents) Handle(ctx context.Context, ev model.ActivityEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	f.ctxErr = ctx.Err()
	return f.err
}

func (f *fakeEvents) received() []model.ActivityEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ActivityEvent(nil), f.events...)
}

func TestWebhook_Signature(t *testing.T) {
	secret := "s3cret"
	body := []byte(`{"action":"message.created","data":{"company_id":"biz_1","user_id":"u1"}}`)

	tests := []struct {
		name      string
		signature string
		status    int
		processed bool
	}{
		{"valid", Sign(body, []byte(secret)), http.StatusOK, true},
		{"missing", "", http.StatusUnauthorized, false},
		{"wrong secret", Sign(body, []byte("other")), http.StatusUnauthorized, false},
		{"not hex", "zz", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &fakeEvents{}
			h := NewWebhookHandler(events, secret, time.Second, zerolog.Nop())

			req := httptest.NewRequest(http.MethodPost, "/api/webhooks", bytes.NewReader(body))
			if tt.signature != "" {
				req.Header.Set(SignatureHeader, tt.signature)
			}
			rec := httptest.NewRecorder()
			h.HandleWebhook(rec, req)
			require.NoError(t, h.Wait(context.Background()))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.processed, len(events.received()) == 1)
			if tt.processed {
				assert.JSONEq(t, `{"received":true}`, rec.Body.String())
				assert.Equal(t, "u1", events.received()[0].Data["user_id"])
			}
		})
	}
}

func TestWebhook_NoSecretAcceptsUnsigned(t *testing.T) {
	events := &fakeEvents{err: errors.New("handler failed")}
	h := NewWebhookHandler(events, "", time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks", bytes.NewBufferString(`{"action":"payment.succeeded","data":{}}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)
	cancel()
	require.NoError(t, h.Wait(context.Background()))

	assert.Equal(t, http.StatusOK, rec.Code, "processing errors are not reported to the sender")
	require.Len(t, events.received(), 1)
	assert.NoError(t, events.ctxErr, "processing outlives the request")
}

func TestWebhook_InvalidBody(t *testing.T) {
	h := NewWebhookHandler(&fakeEvents{}, "", time.Second, zerolog.Nop())

	for _, body := range []string{`not json`, `{"data":{}}`} {
		rec := httptest.NewRecorder()
		h.HandleWebhook(rec, httptest.NewRequest(http.MethodPost, "/api/webhooks", bytes.NewBufferString(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

type fakeGranter struct {
	got service.GrantParams
	res service.GrantResult
}

func (f *fakeGranter) Grant(_ context.Context, p service.GrantParams) service.GrantResult {
	f.got = p
	return f.res
}

type fakeMembers struct {
	page    *service.HistoryPage
	profile *service.MemberProfile
	err     error
	limit   int
	offset  int
}

func (f *fakeMembers) History(_ context.Context, _ string, limit, offset int) (*service.HistoryPage, error) {
	f.limit, f.offset = limit, offset
	return f.page, f.err
}

func (f *fakeMembers) Profile(_ context.Context, memberID string) (*service.MemberProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.profile.Member.ID = memberID
	return f.profile, nil
}

func TestGrant(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		g := &fakeGranter{res: service.GrantResult{Success: true, LeveledUp: true, NewLevel: 2}}
		h := NewXPHandler(g, nil)

		rec := httptest.NewRecorder()
		h.HandleGrant(rec, httptest.NewRequest(http.MethodPost, "/api/xp/grant",
			bytes.NewBufferString(`{"memberId":"m1","amount":50,"reason":"bonus"}`)))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, service.GrantParams{
			MemberID: "m1", Amount: 50, Reason: "bonus", EventType: model.EventManualGrant,
			Metadata: map[string]any{"grantedBy": "admin"},
		}, g.got)
		assert.JSONEq(t, `{"success":true,"leveledUp":true,"newLevel":2}`, rec.Body.String())
	})

	tests := []struct {
		err    error
		status int
	}{
		{service.ErrInvalidAmount, http.StatusBadRequest},
		{service.ErrMemberNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: boom", service.ErrPersistence), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			g := &fakeGranter{res: service.GrantResult{Error: tt.err.Error(), Err: tt.err}}
			rec := httptest.NewRecorder()
			NewXPHandler(g, nil).HandleGrant(rec, httptest.NewRequest(http.MethodPost, "/api/xp/grant",
				bytes.NewBufferString(`{"memberId":"m1","amount":50,"reason":"bonus"}`)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHistory(t *testing.T) {
	members := &fakeMembers{page: &service.HistoryPage{Transactions: []model.XPTransaction{}, Total: 0, Limit: 5, Offset: 10}}
	h := NewXPHandler(nil, members)

	rec := httptest.NewRecorder()
	h.HandleHistory(rec, httptest.NewRequest(http.MethodGet, "/api/xp/history?memberId=m1&limit=5&offset=10", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, members.limit)
	assert.Equal(t, 10, members.offset)

	rec = httptest.NewRecorder()
	h.HandleHistory(rec, httptest.NewRequest(http.MethodGet, "/api/xp/history", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleHistory(rec, httptest.NewRequest(http.MethodGet, "/api/xp/history?memberId=m1&limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeLeaderboards struct {
	entries  []model.LeaderboardEntry
	rank     int64
	err      error
	gotType  string
	gotFrame string
	gotLimit int
}

func (f *fakeLeaderboards) Generate(_ context.Context, _, rankType, timeframe string, limit int) ([]model.LeaderboardEntry, error) {
	f.gotType, f.gotFrame, f.gotLimit = rankType, timeframe, limit
	return f.entries, f.err
}

func (f *fakeLeaderboards) MemberRank(context.Context, string, string) (int64, error) {
	return f.rank, nil
}

func (f *fakeLeaderboards) Stats(context.Context, string) (*service.LeaderboardStats, error) {
	return &service.LeaderboardStats{TotalMembers: 3, AverageLevel: 1.5}, nil
}

func TestLeaderboard(t *testing.T) {
	lb := &fakeLeaderboards{entries: []model.LeaderboardEntry{{MemberID: "m1", TotalXP: 10, Level: 1, Rank: 1}}, rank: 4}
	h := NewMemberHandler(nil, lb, nil, nil)

	rec := httptest.NewRecorder()
	h.HandleLeaderboard(rec, httptest.NewRequest(http.MethodGet, "/api/members/leaderboard?companyId=biz_1&memberId=m9", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.RankTotalXP, lb.gotType)
	assert.Equal(t, model.TimeframeAllTime, lb.gotFrame)
	assert.Equal(t, 0, lb.gotLimit)

	var resp struct {
		Leaderboard []model.LeaderboardEntry `json:"leaderboard"`
		MemberRank  int64                    `json:"memberRank"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Leaderboard, 1)
	assert.Equal(t, int64(4), resp.MemberRank)

	rec = httptest.NewRecorder()
	h.HandleLeaderboard(rec, httptest.NewRequest(http.MethodGet, "/api/members/leaderboard", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	lb.err = service.ErrUnknownRanking
	rec = httptest.NewRecorder()
	h.HandleLeaderboard(rec, httptest.NewRequest(http.MethodGet, "/api/members/leaderboard?companyId=biz_1&type=karma", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"unknown leaderboard type"}`, rec.Body.String())
}

func TestProfile(t *testing.T) {
	members := &fakeMembers{profile: &service.MemberProfile{Member: &model.Member{}}}
	r := chi.NewRouter()
	r.Get("/api/members/{id}", NewMemberHandler(members, nil, nil, nil).HandleProfile)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/members/m42", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"m42"`)

	members.err = service.ErrMemberNotFound
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/members/m42", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeClaimer struct {
	claim *model.RewardClaim
	err   error
}

func (f *fakeClaimer) Claim(context.Context, string, string) (*model.RewardClaim, error) {
	return f.claim, f.err
}

func TestClaim(t *testing.T) {
	tests := []struct {
		name   string
		fake   *fakeClaimer
		status int
	}{
		{"completed", &fakeClaimer{claim: &model.RewardClaim{ID: "c1", Status: model.ClaimCompleted}}, http.StatusOK},
		{"requirements", &fakeClaimer{err: service.ErrRequirementsNotMet}, http.StatusBadRequest},
		{"missing reward", &fakeClaimer{err: service.ErrRewardNotFound}, http.StatusNotFound},
		{"unknown type", &fakeClaimer{claim: &model.RewardClaim{ID: "c1", Status: model.ClaimFailed}, err: service.ErrUnknownRewardType}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewRewardHandler(tt.fake).HandleClaim(rec, httptest.NewRequest(http.MethodPost, "/api/rewards/claim",
				bytes.NewBufferString(`{"memberId":"m1","rewardId":"r1"}`)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context, time.Duration) error { return f.err }

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(fakeHealth{}, time.Second).HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(fakeHealth{err: errors.New("down")}, time.Second).HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
