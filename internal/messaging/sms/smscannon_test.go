package sms

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(url string) *SMSCannonClient {
	return NewSMSCannonClient(SMSCannonConfig{APIKey: "key-1", SenderID: "CLINIC", TemplateID: "tpl-9", BaseURL: url})
}

func TestNewSMSCannonClient_Defaults(t *testing.T) {
	c := NewSMSCannonClient(SMSCannonConfig{APIKey: "k"})
	if c.cfg.BaseURL != DefaultSMSCannonURL {
		t.Errorf("BaseURL = %q, want default", c.cfg.BaseURL)
	}
	if c.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.HTTPClient.Timeout, defaultTimeout)
	}
}

func TestSendOTP_WireFormat(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if h := r.Header.Get("Authorization"); h != "Key key-1" {
			t.Errorf("Authorization = %q, want %q", h, "Key key-1")
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = io.WriteString(w, `{"success":true}`)
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).SendOTP(context.Background(), "+919999999999", "483920", 5*time.Minute); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	want := map[string]string{
		"api_key":      "key-1",
		"msg":          "Your OTP for verification is 483920. Valid for 5 minutes.",
		"senderid":     "CLINIC",
		"templateID":   "tpl-9",
		"coding":       "1",
		"to":           "+919999999999",
		"callbackData": "cb",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
	if len(got) != len(want) {
		t.Errorf("payload has %d fields, want %d", len(got), len(want))
	}
}

func TestSendOTP_ResponseContract(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		ok     bool
	}{
		{"bool true", 200, `{"success":true}`, true},
		{"number one", 200, `{"success":1}`, true},
		{"string true", 200, `{"success":"true"}`, true},
		{"string one", 200, `{"success":"1"}`, true},
		{"bool false", 200, `{"success":false}`, false},
		{"zero", 200, `{"success":0}`, false},
		{"missing", 200, `{"status":"ok"}`, false},
		{"null", 200, `{"success":null}`, false},
		{"not json", 200, `OK`, false},
		{"error status with success", 500, `{"success":false,"error":"quota"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()
			err := newTestClient(srv.URL).SendOTP(context.Background(), "+919999999999", "123456", 5*time.Minute)
			if tt.ok && err != nil {
				t.Errorf("SendOTP: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("SendOTP should fail")
			}
		})
	}
}

func TestSendOTP_ErrorDoesNotLeakSecrets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false}`)
	}))
	defer srv.Close()
	err := newTestClient(srv.URL).SendOTP(context.Background(), "+919999999999", "483920", 5*time.Minute)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "483920") || strings.Contains(err.Error(), "key-1") {
		t.Errorf("error leaks secrets: %v", err)
	}
}

func TestSendOTP_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()
	if err := newTestClient(url).SendOTP(context.Background(), "+91", "123456", time.Minute); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestSendOTP_NoAPIKey(t *testing.T) {
	c := NewSMSCannonClient(SMSCannonConfig{})
	if err := c.SendOTP(context.Background(), "+91", "123456", time.Minute); err != ErrNotConfigured {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestFormatOTPMessage(t *testing.T) {
	if got := FormatOTPMessage("111111", 10*time.Minute); got != "Your OTP for verification is 111111. Valid for 10 minutes." {
		t.Errorf("got %q", got)
	}
	if got := FormatOTPMessage("111111", 30*time.Second); !strings.Contains(got, "Valid for 1 minutes") {
		t.Errorf("sub-minute window should round up to 1, got %q", got)
	}
}
