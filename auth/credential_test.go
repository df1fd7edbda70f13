package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mintToken creates a signed test token; the signature is never verified
func mintToken(t *testing.T, email string, sub int64, issuedAt, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"email":     email,
		"firstName": "Anna",
		"lastName":  "Schmidt",
		"sub":       sub,
		"tokenType": "user",
		"iat":       issuedAt.Unix(),
		"exp":       expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestInfoValidityMargin(t *testing.T) {
	now := time.Date(2024, 6, 4, 18, 0, 0, 0, time.UTC)

	// 30s remaining: treated as expired to absorb refresh latency
	token := mintToken(t, "anna@example.com", 1441, now.Add(-time.Hour), now.Add(30*time.Second))
	info, err := Info(token, now)
	require.NoError(t, err)
	assert.False(t, info.Valid)

	// 120s remaining: valid
	token = mintToken(t, "anna@example.com", 1441, now.Add(-time.Hour), now.Add(120*time.Second))
	info, err = Info(token, now)
	require.NoError(t, err)
	assert.True(t, info.Valid)
	assert.Equal(t, 120*time.Second, info.Remaining)
}

func TestInfoClaims(t *testing.T) {
	now := time.Date(2024, 6, 4, 18, 0, 0, 0, time.UTC)
	token := mintToken(t, "anna@example.com", 1441, now.Add(-time.Hour), now.Add(time.Hour))

	info, err := Info(token, now)
	require.NoError(t, err)
	assert.Equal(t, "anna@example.com", info.Email)
	assert.Equal(t, "Anna Schmidt", info.Name)
	assert.Equal(t, int64(1441), info.UserID)
	assert.Equal(t, now.Add(time.Hour), info.ExpiresAt)
	assert.Equal(t, now.Add(-time.Hour), info.IssuedAt)
}

func TestInfoRejectsGarbage(t *testing.T) {
	_, err := Info("not-a-token", time.Now())
	assert.Error(t, err)
}

func TestMemberInfoFallsBackToClaims(t *testing.T) {
	now := time.Now()
	cred := &Credential{
		AccessToken: mintToken(t, "anna@example.com", 1441, now, now.Add(time.Hour)),
	}

	id, email, name := cred.MemberInfo()
	assert.Equal(t, int64(1441), id)
	assert.Equal(t, "anna@example.com", email)
	assert.Equal(t, "Anna Schmidt", name)
}

func TestMemberInfoPrefersCachedIdentity(t *testing.T) {
	now := time.Now()
	cred := &Credential{
		AccessToken: mintToken(t, "claims@example.com", 99, now, now.Add(time.Hour)),
		MemberID:    1441,
		MemberEmail: "cached@example.com",
		MemberName:  "Cached Name",
	}

	id, email, name := cred.MemberInfo()
	assert.Equal(t, int64(1441), id)
	assert.Equal(t, "cached@example.com", email)
	assert.Equal(t, "Cached Name", name)
}
