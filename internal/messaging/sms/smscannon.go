package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultSMSCannonURL is the provider endpoint.
	DefaultSMSCannonURL = "https://smscannon.com/api/api.php"

	defaultTimeout = 15 * time.Second
	// maxResponseBody bounds how much of a provider reply is read.
	maxResponseBody = 64 << 10
)

// SMSCannonConfig holds the provider credentials, supplied explicitly at construction.
type SMSCannonConfig struct {
	APIKey     string
	SenderID   string
	TemplateID string
	BaseURL    string
}

// SMSCannonClient sends OTP SMS through the SMS Cannon JSON API.
type SMSCannonClient struct {
	cfg        SMSCannonConfig
	HTTPClient *http.Client
}

// NewSMSCannonClient returns a client for cfg. An empty BaseURL selects DefaultSMSCannonURL.
func NewSMSCannonClient(cfg SMSCannonConfig) *SMSCannonClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSMSCannonURL
	}
	return &SMSCannonClient{cfg: cfg, HTTPClient: &http.Client{Timeout: defaultTimeout}}
}

type smsCannonRequest struct {
	APIKey       string `json:"api_key"`
	Msg          string `json:"msg"`
	SenderID     string `json:"senderid"`
	TemplateID   string `json:"templateID"`
	Coding       string `json:"coding"`
	To           string `json:"to"`
	CallbackData string `json:"callbackData"`
}

type smsCannonResponse struct {
	Success json.RawMessage `json:"success"`
}

// SendOTP posts the code to phone. It succeeds only when the reply is JSON with a truthy success field.
// The code and API key are never logged or included in errors.
func (c *SMSCannonClient) SendOTP(ctx context.Context, phone, code string, validFor time.Duration) error {
	if c.cfg.APIKey == "" {
		return ErrNotConfigured
	}
	raw, err := json.Marshal(smsCannonRequest{
		APIKey:       c.cfg.APIKey,
		Msg:          FormatOTPMessage(code, validFor),
		SenderID:     c.cfg.SenderID,
		TemplateID:   c.cfg.TemplateID,
		Coding:       "1",
		To:           phone,
		CallbackData: "cb",
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+c.cfg.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms: request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("sms: read response: %w", err)
	}
	var out smsCannonResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("sms: non-JSON response status=%d", resp.StatusCode)
	}
	if !truthy(out.Success) {
		return fmt.Errorf("sms: provider rejected message status=%d", resp.StatusCode)
	}
	return nil
}

// truthy accepts true, non-zero numbers and the strings "true"/"1".
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s == "true" || s == "1"
	}
	return false
}
