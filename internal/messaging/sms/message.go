// Package sms implements the messaging collaborators that deliver verification codes.
package sms

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotConfigured is returned when a client lacks credentials.
var ErrNotConfigured = errors.New("sms: provider not configured")

// FormatOTPMessage renders the text sent to the patient.
func FormatOTPMessage(code string, validFor time.Duration) string {
	minutes := int(validFor / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("Your OTP for verification is %s. Valid for %d minutes.", code, minutes)
}
