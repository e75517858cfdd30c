package devotp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

func TestOutbox_SendThenGet(t *testing.T) {
	o := NewOutbox(nil)
	ctx := context.Background()
	if err := o.SendOTP(ctx, "+919999999999", "123456", 5*time.Minute); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	code, _, ok := o.Get(ctx, "+919999999999")
	if !ok {
		t.Fatal("Get should return the code after SendOTP")
	}
	if code != "123456" {
		t.Errorf("code = %q, want %q", code, "123456")
	}
	if _, _, ok := o.Get(ctx, "+910000000000"); ok {
		t.Error("Get should return false for another phone")
	}
}

func TestOutbox_LatestCodeWins(t *testing.T) {
	o := NewOutbox(nil)
	ctx := context.Background()
	_ = o.SendOTP(ctx, "+91", "111111", time.Minute)
	_ = o.SendOTP(ctx, "+91", "222222", time.Minute)
	if code, _, _ := o.Get(ctx, "+91"); code != "222222" {
		t.Errorf("code = %q, want %q", code, "222222")
	}
}

func TestOutbox_ExpirationBoundary(t *testing.T) {
	o := NewOutbox(nil)
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	o.nowF = func() time.Time { return now }
	ctx := context.Background()
	_ = o.SendOTP(ctx, "+91", "123456", time.Minute)

	now = now.Add(time.Minute)
	if _, _, ok := o.Get(ctx, "+91"); ok {
		t.Error("code at its expiry instant should be gone")
	}
	o.mu.RLock()
	n := len(o.m)
	o.mu.RUnlock()
	if n != 0 {
		t.Errorf("expired entry should be cleaned up, %d left", n)
	}
}

func TestOutbox_ExpiredGetKeepsNewerCode(t *testing.T) {
	o := NewOutbox(nil)
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	o.nowF = func() time.Time { return now }
	ctx := context.Background()
	_ = o.SendOTP(ctx, "+91", "111111", time.Minute)
	now = now.Add(time.Minute)

	resent := false
	o.nowF = func() time.Time {
		if !resent {
			resent = true
			_ = o.SendOTP(ctx, "+91", "222222", time.Minute)
		}
		return now
	}
	if _, _, ok := o.Get(ctx, "+91"); ok {
		t.Error("Get should report the expired code as missing")
	}
	code, _, ok := o.Get(ctx, "+91")
	if !ok || code != "222222" {
		t.Errorf("Get = %q, %v; want the newer code", code, ok)
	}
}

func TestOutbox_ConcurrentAccess(t *testing.T) {
	o := NewOutbox(nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = o.SendOTP(ctx, "+91", "123456", time.Minute)
		}()
		go func() {
			defer wg.Done()
			o.Get(ctx, "+91")
		}()
	}
	wg.Wait()
}

func TestOutbox_ServeHTTP(t *testing.T) {
	o := NewOutbox(nil)
	_ = o.SendOTP(context.Background(), "+919999999999", "483920", time.Minute)

	rec := httptest.NewRecorder()
	o.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/otp?phone="+url.QueryEscape("+919999999999"), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body otpResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.OTP != "483920" || body.Note != devOTPNote {
		t.Errorf("body = %+v", body)
	}

	rec = httptest.NewRecorder()
	o.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/otp?phone=%2B1", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing phone status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	o.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/otp", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty phone status = %d, want 400", rec.Code)
	}
}
