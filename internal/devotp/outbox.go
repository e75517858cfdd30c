// Package devotp provides a development-only dispatcher that keeps the last code per phone
// instead of sending it, so it can be read back through GET /dev/otp.
package devotp

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/render"
	"go.uber.org/zap"
)

const devOTPNote = "DEV MODE ONLY"

type entry struct {
	code      string
	expiresAt time.Time
}

// Outbox records codes by phone. Not used in production.
type Outbox struct {
	mu     sync.RWMutex
	m      map[string]entry
	nowF   func() time.Time
	logger *zap.Logger
}

// NewOutbox returns an empty Outbox.
func NewOutbox(logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbox{m: make(map[string]entry), nowF: time.Now, logger: logger}
}

// SendOTP records code for phone until validFor elapses. It always succeeds.
func (o *Outbox) SendOTP(_ context.Context, phone, code string, validFor time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.m[phone] = entry{code: code, expiresAt: o.nowF().Add(validFor)}
	o.logger.Debug("devotp: code captured", zap.String("phone", phone))
	return nil
}

// Get returns the last code for phone if present and not expired.
func (o *Outbox) Get(_ context.Context, phone string) (string, time.Time, bool) {
	o.mu.RLock()
	e, ok := o.m[phone]
	o.mu.RUnlock()
	if !ok {
		return "", time.Time{}, false
	}
	if !e.expiresAt.After(o.nowF()) {
		o.mu.Lock()
		if cur, ok := o.m[phone]; ok && cur == e {
			delete(o.m, phone)
		}
		o.mu.Unlock()
		return "", time.Time{}, false
	}
	return e.code, e.expiresAt, true
}

type otpResponse struct {
	Phone     string    `json:"phone"`
	OTP       string    `json:"otp"`
	ExpiresAt time.Time `json:"expires_at"`
	Note      string    `json:"note"`
}

// ServeHTTP implements GET /dev/otp?phone=.
func (o *Outbox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "invalid_input", "message": "phone is required"})
		return
	}
	code, exp, ok := o.Get(r.Context(), phone)
	if !ok {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "not_found", "message": "OTP not found or expired"})
		return
	}
	render.JSON(w, r, otpResponse{Phone: phone, OTP: code, ExpiresAt: exp, Note: devOTPNote})
}
