// Package auth owns the authentication credential for the booking API:
// claim decoding, validity checks, refresh, and persistence.
//
// Access tokens are decoded without signature verification. They are issued
// by the upstream identity provider and only consumed locally to read expiry
// and member identity; this is a trust boundary, not a security control.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hspbot/hspbot/errors"
)

// validityMargin is subtracted from the token expiry when judging validity.
// A token within 60s of expiry is treated as expired so an in-flight refresh
// can complete before the real expiry hits mid-attempt.
const validityMargin = 60 * time.Second

// Credential is the persisted authentication material plus cached member identity
type Credential struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	IDToken      string `json:"idToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	MemberID     int64  `json:"memberId"`
	MemberEmail  string `json:"memberEmail"`
	MemberName   string `json:"memberName"`
}

// TokenInfo summarizes the decoded claims of an access token
type TokenInfo struct {
	Email     string
	Name      string
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
	Remaining time.Duration
	Valid     bool
}

// DecodeToken decodes the claims of a JWT without verifying its signature
func DecodeToken(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(err, "failed to decode token")
	}
	return claims, nil
}

// Info decodes a token and evaluates its validity at the given instant
func Info(token string, now time.Time) (*TokenInfo, error) {
	claims, err := DecodeToken(token)
	if err != nil {
		return nil, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, errors.New("token has no expiry claim")
	}

	info := &TokenInfo{
		ExpiresAt: exp.Time,
		Remaining: exp.Time.Sub(now),
		Valid:     exp.Time.Sub(now) > validityMargin,
	}

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	if email, ok := claims["email"].(string); ok {
		info.Email = email
	}
	if sub, ok := claims["sub"].(float64); ok {
		info.UserID = int64(sub)
	}
	info.Name = claimName(claims)

	return info, nil
}

// claimName assembles "firstName lastName" from token claims
func claimName(claims jwt.MapClaims) string {
	first, _ := claims["firstName"].(string)
	last, _ := claims["lastName"].(string)
	return strings.TrimSpace(first + " " + last)
}

// MemberInfo resolves member identity, falling back to token claims for
// fields the cached credential doesn't carry
func (c *Credential) MemberInfo() (id int64, email, name string) {
	id = c.MemberID
	email = c.MemberEmail
	name = c.MemberName

	if id != 0 && email != "" && name != "" {
		return id, email, name
	}

	claims, err := DecodeToken(c.AccessToken)
	if err != nil {
		return id, email, name
	}

	if id == 0 {
		if sub, ok := claims["sub"].(float64); ok {
			id = int64(sub)
		}
	}
	if email == "" {
		email, _ = claims["email"].(string)
	}
	if name == "" {
		name = claimName(claims)
	}
	return id, email, name
}
