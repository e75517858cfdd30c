// Package security issues and validates the bearer tokens that bind a client to its form session.
package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
)

const (
	formTokenPurpose = "form-token"
	// DefaultIssuer is the iss claim of form tokens.
	DefaultIssuer = "booking-intake"
)

// FormClaims holds JWT claims for a form token.
type FormClaims struct {
	jwt.RegisteredClaims
	FormID string `json:"form_id"`
}

// TokenProvider issues and validates HS256 form tokens.
type TokenProvider struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenProvider derives the signing key from secret. Tokens expire after ttl.
func NewTokenProvider(secret, issuer string, ttl time.Duration) (*TokenProvider, error) {
	key, err := DeriveKey(secret, formTokenPurpose)
	if err != nil {
		return nil, err
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &TokenProvider{key: key, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue returns a token bound to formID and its expiry.
func (p *TokenProvider) Issue(formID string) (string, time.Time, error) {
	now := p.now().UTC()
	expiresAt := now.Add(p.ttl)
	claims := FormClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   formID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		FormID: formID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate parses the token (signature, exp, iss) and returns its form id.
func (p *TokenProvider) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &FormClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.key, nil
	}, jwt.WithIssuer(p.issuer), jwt.WithTimeFunc(p.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*FormClaims)
	if !ok || !token.Valid || claims.FormID == "" {
		return "", ErrInvalidToken
	}
	return claims.FormID, nil
}
