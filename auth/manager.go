package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hspbot/hspbot/errors"
	"github.com/hspbot/hspbot/internal/httpclient"
)

// Manager owns the credential lifecycle: validity checks, refresh against the
// upstream auth endpoint, and persistence. Safe for concurrent use; the
// refresh path is single-flight so concurrent polling loops that detect an
// expired token trigger exactly one upstream refresh call.
type Manager struct {
	store   *Store
	baseURL string
	client  *httpclient.SaferClient
	group   singleflight.Group
	log     *zap.SugaredLogger
	nowFn   func() time.Time
}

// NewManager creates a credential manager against the given API base URL
func NewManager(store *Store, baseURL string, client *httpclient.SaferClient, log *zap.SugaredLogger) *Manager {
	return &Manager{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log,
		nowFn:   time.Now,
	}
}

// ValidCredential returns a credential whose access token is valid for at
// least the safety margin, refreshing it first if necessary. On refresh
// failure the stored state is left untouched and an auth error is returned.
func (m *Manager) ValidCredential(ctx context.Context) (*Credential, error) {
	cred, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if cred.AccessToken == "" {
		return nil, errors.Wrap(errors.ErrNoCredential, "import a token bundle first")
	}

	info, err := Info(cred.AccessToken, m.nowFn())
	if err != nil {
		return nil, errors.Wrap(errors.ErrAuth, err.Error())
	}
	if info.Valid {
		return cred, nil
	}

	m.log.Infow("Access token expired, refreshing",
		"expires_at", info.ExpiresAt,
		"member", info.Email)

	// Collapse concurrent refresh attempts into one upstream call
	v, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		return m.refresh(ctx, cred)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Credential), nil
}

// TokenStatus reports on the stored credential without refreshing it
func (m *Manager) TokenStatus() (*Credential, *TokenInfo, error) {
	cred, err := m.store.Load()
	if err != nil {
		return nil, nil, err
	}
	if cred.AccessToken == "" {
		return cred, nil, nil
	}
	info, err := Info(cred.AccessToken, m.nowFn())
	if err != nil {
		return cred, nil, err
	}
	return cred, info, nil
}

// refreshResponse is the upstream auth-refresh payload
type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// refresh exchanges the stored refresh token for a new token triple.
// Transient transport errors are retried with backoff; an upstream refusal
// (revoked or malformed refresh token) is permanent.
func (m *Manager) refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	if cred.RefreshToken == "" {
		return nil, errors.Wrap(errors.ErrAuth, "no refresh token stored")
	}

	body, err := json.Marshal(map[string]string{"refreshToken": cred.RefreshToken})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal refresh request")
	}

	operation := func() (*refreshResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/auth/refresh", bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(errors.Wrap(err, "failed to build refresh request"))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := m.client.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "refresh request failed")
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read refresh response")
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			// The refresh token was refused; retrying won't help
			return nil, backoff.Permanent(errors.Wrapf(errors.ErrAuth,
				"token refresh rejected: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
		}

		var parsed refreshResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, backoff.Permanent(errors.Wrap(err, "failed to parse refresh response"))
		}
		if parsed.AccessToken == "" {
			return nil, backoff.Permanent(errors.Wrap(errors.ErrAuth, "refresh response missing access token"))
		}
		return &parsed, nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	parsed, err := backoff.RetryWithData(operation, policy)
	if err != nil {
		if errors.IsAuthError(err) {
			return nil, err
		}
		return nil, errors.Wrap(errors.ErrAuth, err.Error())
	}

	refreshed := &Credential{
		AccessToken:  parsed.AccessToken,
		IDToken:      parsed.IDToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresIn:    parsed.ExpiresIn,
		MemberID:     cred.MemberID,
		MemberEmail:  cred.MemberEmail,
		MemberName:   cred.MemberName,
	}
	// Some providers rotate the refresh token, some omit it; keep the old one then
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.RefreshToken
	}

	if err := m.store.Save(refreshed); err != nil {
		return nil, err
	}

	m.log.Infow("Access token refreshed", "member_id", refreshed.MemberID)
	return refreshed, nil
}

// ImportBundle is the localStorage export from a browser session:
// the token response plus the member record.
type ImportBundle struct {
	TokenResponse struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		IDToken      string `json:"idToken"`
		ExpiresIn    int64  `json:"expiresIn"`
	} `json:"tokenResponse"`
	Member struct {
		ID        int64  `json:"id"`
		Email     string `json:"email"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"member"`
}

// Import persists an externally obtained token bundle with member identity
func (m *Manager) Import(bundle ImportBundle) (*Credential, error) {
	if bundle.TokenResponse.AccessToken == "" {
		return nil, errors.NewInvalidRequestError("bundle has no access token")
	}

	cred := &Credential{
		AccessToken:  bundle.TokenResponse.AccessToken,
		RefreshToken: bundle.TokenResponse.RefreshToken,
		IDToken:      bundle.TokenResponse.IDToken,
		ExpiresIn:    bundle.TokenResponse.ExpiresIn,
		MemberID:     bundle.Member.ID,
		MemberEmail:  bundle.Member.Email,
		MemberName:   strings.TrimSpace(bundle.Member.FirstName + " " + bundle.Member.LastName),
	}

	if err := m.store.Save(cred); err != nil {
		return nil, err
	}

	m.log.Infow("Credential imported",
		"member_id", cred.MemberID,
		"member_email", cred.MemberEmail)
	return cred, nil
}
