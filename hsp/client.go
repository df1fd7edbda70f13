// Package hsp is the client for the sports-platform booking API:
// registration attempts, course search, and the lookups that enrich
// search results with supervisor and location names.
package hsp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hspbot/hspbot/errors"
	"github.com/hspbot/hspbot/internal/httpclient"
)

// participationWaitlisted is the participation status the API returns when
// the member was queued instead of confirmed
const participationWaitlisted = 3

// Client talks to the booking API. All outbound calls pass through a
// client-side rate limiter so a misconfigured polling interval cannot
// hammer the upstream beyond maxRPS.
type Client struct {
	baseURL string
	http    *httpclient.SaferClient
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// NewClient creates a booking-API client. maxRPS bounds the outbound request
// rate; zero or negative disables the limiter.
func NewClient(baseURL string, client *httpclient.SaferClient, maxRPS float64, log *zap.SugaredLogger) *Client {
	var limiter *rate.Limiter
	if maxRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(maxRPS), 1)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		limiter: limiter,
		log:     log,
	}
}

// RegisterResult is the interpreted outcome of one registration attempt.
// Exactly one attempt maps to exactly one result; transport failures are
// returned as errors instead.
type RegisterResult struct {
	Success             bool
	IsWaitlist          bool
	RateLimited         bool
	AlreadyRegistered   bool
	StatusCode          int
	ParticipationID     int64
	ParticipationStatus int
	ClaimCode           string
	RetryAfter          time.Duration
	Message             string
}

// participationResponse is the 201 body of POST /participations
type participationResponse struct {
	ID        int64  `json:"id"`
	Status    int    `json:"status"`
	ClaimCode string `json:"claimCode"`
	Message   string `json:"message"`
}

// Register submits one registration attempt for (memberID, bookingID).
//
// Interpretation of the upstream response:
//   - 201 with participation status 3: waitlisted, not a success
//   - 201 with any other status: confirmed
//   - 403: already registered (or not permitted), terminal for the booking
//   - 429: rate limited, Retry-After surfaced when present
//   - anything else: generic failure with the upstream message
func (c *Client) Register(ctx context.Context, accessToken string, memberID, bookingID int64) (*RegisterResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"memberId":       memberID,
		"bookingId":      bookingID,
		"organizationId": nil,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal registration payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/participations", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build registration request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "registration request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read registration response")
	}

	result := &RegisterResult{StatusCode: resp.StatusCode}

	var parsed participationResponse
	if len(body) > 0 {
		// Non-JSON error bodies are kept verbatim as the message
		if err := json.Unmarshal(body, &parsed); err != nil {
			parsed.Message = strings.TrimSpace(string(body))
		}
	}

	switch {
	case resp.StatusCode == http.StatusCreated:
		result.ParticipationID = parsed.ID
		result.ParticipationStatus = parsed.Status
		result.ClaimCode = parsed.ClaimCode
		result.IsWaitlist = parsed.Status == participationWaitlisted
		result.Success = !result.IsWaitlist
		if result.IsWaitlist {
			result.Message = "placed on waitlist"
		}
	case resp.StatusCode == http.StatusForbidden:
		result.AlreadyRegistered = true
		result.Message = parsed.Message
		if result.Message == "" {
			result.Message = "already registered"
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		result.RateLimited = true
		result.Message = parsed.Message
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				result.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	default:
		result.Message = parsed.Message
		if result.Message == "" {
			result.Message = "registration failed with status " + strconv.Itoa(resp.StatusCode)
		}
	}

	return result, nil
}

// wait blocks until the rate limiter admits another request
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait aborted")
	}
	return nil
}

// get performs a GET against path (already including any query string) and
// decodes the JSON response into out
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Newf("unexpected status %d from %s: %s", resp.StatusCode, path, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}
