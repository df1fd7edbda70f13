package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hspbot/hspbot/auth"
	"github.com/hspbot/hspbot/booking/events"
	"github.com/hspbot/hspbot/booking/schedule"
	"github.com/hspbot/hspbot/config"
	"github.com/hspbot/hspbot/hsp"
	"github.com/hspbot/hspbot/internal/httpclient"
	"github.com/hspbot/hspbot/logger"
)

type serverFixture struct {
	server      *Server
	web         *httptest.Server
	broadcaster *events.Broadcaster
	authStore   *auth.Store
}

// newServerFixture builds a server against a stub upstream API
func newServerFixture(t *testing.T, upstream http.HandlerFunc) *serverFixture {
	t.Helper()

	api := httptest.NewServer(upstream)
	t.Cleanup(api.Close)

	cfg := &config.Config{}
	cfg.API.BaseURL = api.URL
	cfg.Booking.ProductID = 285
	cfg.Booking.PollIntervalMS = 500
	cfg.Server.ListenAddr = ":0"
	cfg.Data.Dir = t.TempDir()

	client := httpclient.WrapClient(api.Client())
	authStore := auth.NewStore(cfg.Data.Dir)
	authManager := auth.NewManager(authStore, api.URL, client, logger.Logger)
	apiClient := hsp.NewClient(api.URL, client, 0, logger.Logger)

	broadcaster := events.NewBroadcaster(logger.Logger)
	store := schedule.NewStore(cfg.Data.Dir)
	executor := schedule.NewExecutor(authManager, apiClient, store, broadcaster, schedule.NewClock(), cfg.PollInterval(), logger.Logger)
	scheduler := schedule.NewScheduler(store, executor, broadcaster, schedule.NewClock(), cfg.OpenOffset(), logger.Logger)
	t.Cleanup(scheduler.Shutdown)

	srv := NewServer(cfg, authManager, scheduler, apiClient, broadcaster, logger.Logger)
	web := httptest.NewServer(srv.routes())
	t.Cleanup(web.Close)

	return &serverFixture{server: srv, web: web, broadcaster: broadcaster, authStore: authStore}
}

func noUpstream(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "unexpected upstream call", http.StatusBadGateway)
}

func (f *serverFixture) getJSON(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(f.web.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *serverFixture) postJSON(t *testing.T, path string, body interface{}, out interface{}) int {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.web.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func mintToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       1441,
		"email":     "anna@example.com",
		"firstName": "Anna",
		"lastName":  "Schmidt",
		"iat":       time.Now().Unix(),
		"exp":       expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestStatusUnauthenticated(t *testing.T) {
	f := newServerFixture(t, noUpstream)

	var status statusResponse
	code := f.getJSON(t, "/api/status", &status)

	assert.Equal(t, http.StatusOK, code)
	assert.False(t, status.Authenticated)
	assert.Zero(t, status.ActiveJobs)
}

func TestAuthImportAndStatus(t *testing.T) {
	f := newServerFixture(t, noUpstream)

	bundle := map[string]interface{}{
		"tokenResponse": map[string]interface{}{
			"accessToken":  mintToken(t, time.Now().Add(time.Hour)),
			"refreshToken": "ref",
			"expiresIn":    3600,
		},
		"member": map[string]interface{}{
			"id": 1441, "email": "anna@example.com",
			"firstName": "Anna", "lastName": "Schmidt",
		},
	}

	code := f.postJSON(t, "/api/auth/import", bundle, nil)
	require.Equal(t, http.StatusOK, code)

	var status statusResponse
	require.Equal(t, http.StatusOK, f.getJSON(t, "/api/status", &status))
	assert.True(t, status.Authenticated)
	assert.True(t, status.TokenValid)
	assert.Equal(t, int64(1441), status.MemberID)
	assert.Equal(t, "Anna Schmidt", status.MemberName)
}

func TestScheduleLifecycleViaAPI(t *testing.T) {
	f := newServerFixture(t, noUpstream)
	courseStart := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)

	var job schedule.Job
	code := f.postJSON(t, "/api/schedule", map[string]interface{}{
		"bookingId":       36432,
		"courseStartTime": courseStart.Format(time.RFC3339),
		"description":     "Volleyball Level 2",
	}, &job)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, schedule.StatusPending, job.Status)
	assert.True(t, strings.HasPrefix(job.ID, "schedule-36432-"))

	// Duplicate rejected with conflict
	code = f.postJSON(t, "/api/schedule", map[string]interface{}{
		"bookingId":       36432,
		"courseStartTime": courseStart.Format(time.RFC3339),
	}, nil)
	assert.Equal(t, http.StatusConflict, code)

	var listing struct {
		Count int             `json:"count"`
		Jobs  []*schedule.Job `json:"jobs"`
	}
	require.Equal(t, http.StatusOK, f.getJSON(t, "/api/jobs", &listing))
	require.Equal(t, 1, listing.Count)

	req, err := http.NewRequest(http.MethodDelete, f.web.URL+"/api/schedule/"+job.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, http.StatusOK, f.getJSON(t, "/api/jobs", &listing))
	assert.Zero(t, listing.Count)
}

func TestScheduleExpiredWindowRejectedViaAPI(t *testing.T) {
	f := newServerFixture(t, noUpstream)

	code := f.postJSON(t, "/api/schedule", map[string]interface{}{
		"bookingId":       36432,
		"courseStartTime": "2024-06-10T19:00:00Z",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestScheduleValidation(t *testing.T) {
	f := newServerFixture(t, noUpstream)

	code := f.postJSON(t, "/api/schedule", map[string]interface{}{"bookingId": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCancelUnknownJob(t *testing.T) {
	f := newServerFixture(t, noUpstream)

	req, err := http.NewRequest(http.MethodDelete, f.web.URL+"/api/schedule/schedule-1-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSchedulePreview(t *testing.T) {
	f := newServerFixture(t, noUpstream)

	var preview struct {
		BookingAvailableAt time.Time `json:"bookingAvailableAt"`
		PollingStopAt      time.Time `json:"pollingStopAt"`
		Expired            bool      `json:"expired"`
	}
	code := f.getJSON(t, "/api/schedule/preview?courseStartTime=2024-06-10T19:00:00Z", &preview)

	require.Equal(t, http.StatusOK, code)
	assert.True(t, preview.BookingAvailableAt.Equal(time.Date(2024, 6, 4, 19, 0, 0, 0, time.UTC)))
	assert.True(t, preview.PollingStopAt.Equal(time.Date(2024, 6, 4, 19, 0, 20, 0, time.UTC)))
	assert.True(t, preview.Expired)
}

func TestRegisterOneShot(t *testing.T) {
	f := newServerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/participations", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 9001, "status": 1, "claimCode": "AB12"})
	})

	// Seed a valid credential directly
	require.NoError(t, f.authStore.Save(&auth.Credential{
		AccessToken: mintToken(t, time.Now().Add(time.Hour)),
		MemberID:    1441,
	}))

	var result struct {
		Success   bool   `json:"success"`
		ClaimCode string `json:"claimCode"`
	}
	code := f.postJSON(t, "/api/register", map[string]interface{}{"bookingId": 36432}, &result)

	require.Equal(t, http.StatusOK, code)
	assert.True(t, result.Success)
	assert.Equal(t, "AB12", result.ClaimCode)
}

func TestRegisterWithoutCredential(t *testing.T) {
	f := newServerFixture(t, noUpstream)

	code := f.postJSON(t, "/api/register", map[string]interface{}{"bookingId": 36432}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCoursesEndpoint(t *testing.T) {
	futureStart := time.Now().Add(48 * time.Hour).UTC()
	f := newServerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bookings":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{
					{"id": 100, "description": "Volleyball Level 2",
						"startDate": futureStart.Format(time.RFC3339), "availableParticipantCount": 3},
				},
			})
		default:
			json.NewEncoder(w).Encode(map[string]interface{}{})
		}
	})

	var result struct {
		Count   int          `json:"count"`
		Courses []hsp.Course `json:"courses"`
	}
	code := f.getJSON(t, "/api/courses?level=2&minAvailable=1", &result)

	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, result.Count)
	assert.Equal(t, int64(100), result.Courses[0].ID)
}

func TestWebSocketReceivesEvents(t *testing.T) {
	f := newServerFixture(t, noUpstream)

	wsURL := "ws" + strings.TrimPrefix(f.web.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Subscription happens during the upgrade handler; wait for it
	require.Eventually(t, func() bool {
		return f.broadcaster.Subscribers() == 1
	}, time.Second, 5*time.Millisecond)

	f.broadcaster.Publish(events.Event{
		Kind:      events.KindScheduleTriggered,
		JobID:     "schedule-36432-1",
		BookingID: 36432,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received events.Event
	require.NoError(t, conn.ReadJSON(&received))
	assert.Equal(t, events.KindScheduleTriggered, received.Kind)
	assert.Equal(t, "schedule-36432-1", received.JobID)
	assert.Equal(t, int64(36432), received.BookingID)
}

func TestWebSocketStartAndStopPolling(t *testing.T) {
	f := newServerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		// Manual polling attempts land here and fail without a credential;
		// the loop keeps running until stopped
		http.Error(w, "no", http.StatusBadGateway)
	})

	wsURL := "ws" + strings.TrimPrefix(f.web.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":        "startPolling",
		"bookingId":   36432,
		"intervalMs":  50,
		"maxAttempts": 0,
	}))

	// First the jobStarted broadcast or the direct acceptance, order varies
	var jobID string
	deadline := time.Now().Add(2 * time.Second)
	for jobID == "" {
		require.True(t, time.Now().Before(deadline), "no pollingAccepted received")
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["type"] == "pollingAccepted" {
			jobID, _ = msg["jobId"].(string)
		}
	}
	assert.True(t, strings.HasPrefix(jobID, "36432-"))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":  "stopPolling",
		"jobId": jobID,
	}))

	require.Eventually(t, func() bool {
		return f.server.scheduler.ActiveCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
