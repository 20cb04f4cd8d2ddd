package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"levelup-engine/internal/model"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Whop-Signature"

// WebhookHandler accepts activity events from the community platform.
type WebhookHandler struct {
	events  EventProcessor
	secret  []byte
	timeout time.Duration
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

// NewWebhookHandler creates a new WebhookHandler. An empty secret disables
// signature verification.
func NewWebhookHandler(events EventProcessor, secret string, timeout time.Duration, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		events:  events,
		secret:  []byte(secret),
		timeout: timeout,
		logger:  logger.With().Str("component", "webhook").Logger(),
	}
}

// VerifySignature reports whether signature is the hex HMAC-SHA256 of body under secret.
func VerifySignature(body []byte, signature string, secret []byte) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HandleWebhook handles POST /api/webhooks. The event is processed after the
// response is written.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if len(h.secret) > 0 {
		sig := r.Header.Get(SignatureHeader)
		if sig == "" {
			writeError(w, http.StatusUnauthorized, "missing signature")
			return
		}
		if !VerifySignature(body, sig, h.secret) {
			h.logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("Invalid webhook signature")
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var ev model.ActivityEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.Action == "" {
		writeError(w, http.StatusBadRequest, "invalid event")
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
		defer cancel()

		if err := h.events.Handle(ctx, ev); err != nil {
			h.logger.Error().Err(err).Str("action", ev.Action).Msg("Webhook event failed")
		}
	}()

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// HandleStatus handles GET /api/webhooks.
func (h *WebhookHandler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Wait blocks until events accepted so far are processed or ctx is done.
func (h *WebhookHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
