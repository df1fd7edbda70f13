package hsp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hspbot/hspbot/errors"
)

// Course is one bookable course slot as returned by the bookings search,
// enriched with supervisor and location names.
type Course struct {
	ID                        int64        `json:"id"`
	Description               string       `json:"description"`
	StartDate                 time.Time    `json:"startDate"`
	EndDate                   time.Time    `json:"endDate"`
	Status                    int          `json:"status"`
	ProductID                 int64        `json:"productId"`
	LinkedProductID           int64        `json:"linkedProductId"`
	AvailableParticipantCount int          `json:"availableParticipantCount"`
	Location                  string       `json:"location"`
	Supervisors               []Supervisor `json:"supervisors"`
}

// Supervisor is a course instructor
type Supervisor struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// SearchQuery selects courses. Zero values mean "no filter" except for the
// date range, which defaults to the next 8 days.
type SearchQuery struct {
	ProductIDs      []int64
	StartOffsetDays int
	EndOffsetDays   int
	Pages           int
	Limit           int
	Level           int  // course level parsed from the description
	LevelSet        bool // distinguishes Level 0 from "no level filter"
	MinAvailable    int
	IncludePast     bool
}

const (
	defaultEndOffsetDays = 8
	defaultSearchPages   = 2
	defaultSearchLimit   = 50

	// cancelled courses carry status 2 and are excluded from results
	statusCancelled = 2
)

var levelPattern = regexp.MustCompile(`(?i)Level\s+(\d+)`)

// ParseLevel extracts the numeric level from a course description,
// returning -1 when the description names no level
func ParseLevel(description string) int {
	m := levelPattern.FindStringSubmatch(description)
	if m == nil {
		return -1
	}
	level, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return level
}

// searchFilter is the JSON filter document the bookings endpoint accepts in
// its "s" query parameter
type searchFilter struct {
	StartDate       map[string]string  `json:"startDate"`
	LinkedProductID map[string][]int64 `json:"linkedProductId"`
	Status          map[string]int     `json:"status"`
}

// encodeFilter builds the "s" parameter for the date range and product set
func encodeFilter(from, to time.Time, productIDs []int64) (string, error) {
	f := searchFilter{
		StartDate: map[string]string{
			"$gte": from.Format(time.RFC3339),
			"$lte": to.Format(time.RFC3339),
		},
		LinkedProductID: map[string][]int64{"$in": productIDs},
		Status:          map[string]int{"$ne": statusCancelled},
	}
	encoded, err := jsonMarshal(f)
	if err != nil {
		return "", err
	}
	return encoded, nil
}

// bookingsPage is one page of the bookings listing
type bookingsPage struct {
	Data []Course `json:"data"`
}

// SearchCourses queries the bookings endpoint page by page, applies the
// level and availability filters locally, and enriches the surviving
// courses with supervisor and location names.
func (c *Client) SearchCourses(ctx context.Context, q SearchQuery) ([]Course, error) {
	if q.EndOffsetDays == 0 {
		q.EndOffsetDays = defaultEndOffsetDays
	}
	if q.Pages <= 0 {
		q.Pages = defaultSearchPages
	}
	if q.Limit <= 0 {
		q.Limit = defaultSearchLimit
	}

	now := time.Now()
	from := startOfDay(now.AddDate(0, 0, q.StartOffsetDays))
	to := endOfDay(now.AddDate(0, 0, q.EndOffsetDays))

	filter, err := encodeFilter(from, to, q.ProductIDs)
	if err != nil {
		return nil, err
	}

	var all []Course
	for page := 1; page <= q.Pages; page++ {
		path := fmt.Sprintf("/bookings?s=%s&limit=%d&page=%d&sort=%s",
			url.QueryEscape(filter), q.Limit, page, url.QueryEscape("startDate,ASC"))

		var result bookingsPage
		if err := c.get(ctx, path, &result); err != nil {
			return nil, err
		}
		all = append(all, result.Data...)
		if len(result.Data) < q.Limit {
			break
		}
	}

	filtered := all[:0:0]
	for _, course := range all {
		if q.LevelSet && ParseLevel(course.Description) != q.Level {
			continue
		}
		if course.AvailableParticipantCount < q.MinAvailable {
			continue
		}
		if !q.IncludePast && !course.StartDate.After(now) {
			continue
		}
		filtered = append(filtered, course)
	}

	if len(filtered) > 0 {
		c.enrich(ctx, filtered)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].StartDate.Before(filtered[j].StartDate)
	})
	return filtered, nil
}

// enrich fills in supervisor and location names. Lookup failures are logged
// and leave the courses unenriched; search results are still useful without.
func (c *Client) enrich(ctx context.Context, courses []Course) {
	bookingIDs := make([]int64, len(courses))
	productIDSet := map[int64]struct{}{}
	for i, course := range courses {
		bookingIDs[i] = course.ID
		if course.ProductID != 0 {
			productIDSet[course.ProductID] = struct{}{}
		}
	}

	supervisors, err := c.SupervisorNames(ctx, bookingIDs)
	if err != nil {
		c.log.Warnw("Supervisor lookup failed", "error", err)
	}

	var locations map[int64]string
	if len(productIDSet) > 0 {
		productIDs := make([]int64, 0, len(productIDSet))
		for id := range productIDSet {
			productIDs = append(productIDs, id)
		}
		locations, err = c.ProductDescriptions(ctx, productIDs)
		if err != nil {
			c.log.Warnw("Location lookup failed", "error", err)
		}
	}

	for i := range courses {
		if s, ok := supervisors[courses[i].ID]; ok {
			courses[i].Supervisors = s
		}
		if loc, ok := locations[courses[i].ProductID]; ok {
			courses[i].Location = loc
		}
	}
}

// SupervisorNames resolves instructor names for a set of booking IDs
func (c *Client) SupervisorNames(ctx context.Context, bookingIDs []int64) (map[int64][]Supervisor, error) {
	if len(bookingIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(bookingIDs))
	for i, id := range bookingIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}

	var raw map[string][]Supervisor
	path := "/bookings/query/supervisorNamesByBookingId?bookingIds=" + strings.Join(ids, ",")
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, err
	}

	result := make(map[int64][]Supervisor, len(raw))
	for key, supervisors := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		result[id] = supervisors
	}
	return result, nil
}

// productsPage is the products listing response
type productsPage struct {
	Data []struct {
		ID          int64  `json:"id"`
		Description string `json:"description"`
	} `json:"data"`
}

// ProductDescriptions resolves product descriptions (used as location names)
// for a set of product IDs
func (c *Client) ProductDescriptions(ctx context.Context, productIDs []int64) (map[int64]string, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	filter, err := jsonMarshal(map[string]interface{}{
		"id": map[string][]int64{"$in": productIDs},
	})
	if err != nil {
		return nil, err
	}

	var result productsPage
	if err := c.get(ctx, "/products?s="+url.QueryEscape(filter), &result); err != nil {
		return nil, err
	}

	descriptions := make(map[int64]string, len(result.Data))
	for _, p := range result.Data {
		descriptions[p.ID] = p.Description
	}
	return descriptions, nil
}

func jsonMarshal(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode filter")
	}
	return string(b), nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
