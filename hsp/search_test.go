package hsp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, 3, ParseLevel("Volleyball Level 3"))
	assert.Equal(t, 1, ParseLevel("level 1 (Anf.)"))
	assert.Equal(t, -1, ParseLevel("Freies Spiel"))
}

func TestSearchFilterEncoding(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 9, 23, 59, 59, 0, time.UTC)

	encoded, err := encodeFilter(from, to, []int64{285})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(encoded), &decoded))

	startDate := decoded["startDate"].(map[string]interface{})
	assert.Equal(t, "2024-06-01T00:00:00Z", startDate["$gte"])
	assert.Equal(t, "2024-06-09T23:59:59Z", startDate["$lte"])

	linked := decoded["linkedProductId"].(map[string]interface{})
	assert.Equal(t, []interface{}{float64(285)}, linked["$in"])

	status := decoded["status"].(map[string]interface{})
	assert.Equal(t, float64(2), status["$ne"])
}

func TestSearchCoursesFiltersAndEnriches(t *testing.T) {
	futureStart := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bookings":
			assert.NotEmpty(t, r.URL.Query().Get("s"))
			assert.Equal(t, "startDate,ASC", r.URL.Query().Get("sort"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{
					{
						"id": 100, "description": "Volleyball Level 2",
						"startDate": futureStart.Format(time.RFC3339),
						"productId": 7, "availableParticipantCount": 4,
					},
					{
						"id": 101, "description": "Volleyball Level 3",
						"startDate": futureStart.Format(time.RFC3339),
						"productId": 7, "availableParticipantCount": 4,
					},
					{
						"id": 102, "description": "Volleyball Level 2",
						"startDate": futureStart.Format(time.RFC3339),
						"productId": 7, "availableParticipantCount": 0,
					},
				},
			})
		case "/bookings/query/supervisorNamesByBookingId":
			assert.Equal(t, "100", r.URL.Query().Get("bookingIds"))
			json.NewEncoder(w).Encode(map[string][]map[string]string{
				"100": {{"firstName": "Max", "lastName": "Trainer"}},
			})
		case "/products":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{
					{"id": 7, "description": "Halle Nord"},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer upstream.Close()

	courses, err := newTestClient(upstream).SearchCourses(context.Background(), SearchQuery{
		ProductIDs:   []int64{285},
		Level:        2,
		LevelSet:     true,
		MinAvailable: 1,
		Pages:        1,
	})
	require.NoError(t, err)

	require.Len(t, courses, 1)
	assert.Equal(t, int64(100), courses[0].ID)
	assert.Equal(t, "Halle Nord", courses[0].Location)
	require.Len(t, courses[0].Supervisors, 1)
	assert.Equal(t, "Max", courses[0].Supervisors[0].FirstName)
}

func TestSearchCoursesExcludesPastCourses(t *testing.T) {
	pastStart := time.Now().Add(-24 * time.Hour).UTC()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bookings" {
			json.NewEncoder(w).Encode(map[string]interface{}{})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"id": 100, "description": "x", "startDate": pastStart.Format(time.RFC3339), "availableParticipantCount": 2},
			},
		})
	}))
	defer upstream.Close()

	courses, err := newTestClient(upstream).SearchCourses(context.Background(), SearchQuery{Pages: 1})
	require.NoError(t, err)
	assert.Empty(t, courses)
}
