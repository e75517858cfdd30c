package sms

import (
	"context"
	"fmt"
	"time"

	twilio "github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the part of the Twilio REST API used here.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioConfig holds Twilio credentials and the sending number.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromPhone  string
}

// TwilioClient sends OTP SMS through the Twilio Messages API.
type TwilioClient struct {
	api  messageCreator
	from string
}

// NewTwilioClient returns a client for cfg.
func NewTwilioClient(cfg TwilioConfig) (*TwilioClient, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromPhone == "" {
		return nil, ErrNotConfigured
	}
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioClient{api: rc.Api, from: cfg.FromPhone}, nil
}

// SendOTP sends the code to phone. The Twilio SDK has no context support; ctx is only checked up front.
func (c *TwilioClient) SendOTP(ctx context.Context, phone, code string, validFor time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(phone)
	params.SetFrom(c.from)
	params.SetBody(FormatOTPMessage(code, validFor))
	if _, err := c.api.CreateMessage(params); err != nil {
		if restErr, ok := err.(*twilioclient.TwilioRestError); ok {
			return fmt.Errorf("sms: twilio rejected message: %d %s", restErr.Status, restErr.Error())
		}
		return fmt.Errorf("sms: twilio: %w", err)
	}
	return nil
}
