package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hspbot/hspbot/auth"
	"github.com/hspbot/hspbot/errors"
	"github.com/hspbot/hspbot/hsp"
)

// statusResponse summarizes bot health for the UI header
type statusResponse struct {
	Authenticated bool   `json:"authenticated"`
	MemberID      int64  `json:"memberId,omitempty"`
	MemberEmail   string `json:"memberEmail,omitempty"`
	MemberName    string `json:"memberName,omitempty"`
	TokenExpires  string `json:"tokenExpiresAt,omitempty"`
	TokenValid    bool   `json:"tokenValid"`
	ActiveJobs    int    `json:"activeJobs"`
	Clients       int    `json:"connectedClients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		ActiveJobs: s.scheduler.ActiveCount(),
		Clients:    s.ClientCount(),
	}

	cred, info, err := s.auth.TokenStatus()
	if err == nil && cred.AccessToken != "" {
		resp.Authenticated = true
		resp.MemberID, resp.MemberEmail, resp.MemberName = cred.MemberInfo()
		if info != nil {
			resp.TokenExpires = info.ExpiresAt.Format(time.RFC3339)
			resp.TokenValid = info.Valid
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAuthImport(w http.ResponseWriter, r *http.Request) {
	var bundle auth.ImportBundle
	if err := decodeBody(r, &bundle); err != nil {
		s.writeError(w, err)
		return
	}

	cred, err := s.auth.Import(bundle)
	if err != nil {
		s.writeError(w, err)
		return
	}

	id, email, name := cred.MemberInfo()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"imported":    true,
		"memberId":    id,
		"memberEmail": email,
		"memberName":  name,
	})
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	query := hsp.SearchQuery{
		ProductIDs: []int64{s.cfg.Booking.ProductID},
	}

	q := r.URL.Query()
	if v := q.Get("level"); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, errors.NewInvalidRequestError("level must be numeric"))
			return
		}
		query.Level = level
		query.LevelSet = true
	}
	if v := q.Get("minAvailable"); v != "" {
		min, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, errors.NewInvalidRequestError("minAvailable must be numeric"))
			return
		}
		query.MinAvailable = min
	}
	if v := q.Get("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			s.writeError(w, errors.NewInvalidRequestError("days must be a positive number"))
			return
		}
		query.EndOffsetDays = days
	}

	courses, err := s.api.SearchCourses(r.Context(), query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(courses),
		"courses": courses,
	})
}

type registerRequest struct {
	BookingID int64 `json:"bookingId"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.BookingID <= 0 {
		s.writeError(w, errors.NewInvalidRequestError("bookingId required"))
		return
	}

	cred, err := s.auth.ValidCredential(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	memberID, _, _ := cred.MemberInfo()
	result, err := s.api.Register(r.Context(), cred.AccessToken, memberID, req.BookingID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":           result.Success,
		"isWaitlist":        result.IsWaitlist,
		"rateLimited":       result.RateLimited,
		"alreadyRegistered": result.AlreadyRegistered,
		"status":            result.StatusCode,
		"participationId":   result.ParticipationID,
		"claimCode":         result.ClaimCode,
		"message":           result.Message,
	})
}

type pollingRequest struct {
	BookingID   int64 `json:"bookingId"`
	IntervalMS  int   `json:"intervalMs"`
	MaxAttempts int   `json:"maxAttempts"`
}

func (s *Server) handleStartPolling(w http.ResponseWriter, r *http.Request) {
	var req pollingRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	interval := time.Duration(req.IntervalMS) * time.Millisecond
	jobID, err := s.scheduler.StartManualPolling(req.BookingID, interval, req.MaxAttempts)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobId":     jobID,
		"bookingId": req.BookingID,
	})
}

type stopPollingRequest struct {
	JobID string `json:"jobId"`
}

func (s *Server) handleStopPolling(w http.ResponseWriter, r *http.Request) {
	var req stopPollingRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.JobID == "" {
		s.writeError(w, errors.NewInvalidRequestError("jobId required"))
		return
	}

	if err := s.scheduler.Cancel(req.JobID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"stopped": true, "jobId": req.JobID})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.scheduler.Jobs()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(jobs),
		"jobs":  jobs,
	})
}

type scheduleRequest struct {
	BookingID       int64     `json:"bookingId"`
	CourseStartTime time.Time `json:"courseStartTime"`
	Description     string    `json:"description"`
}

func (s *Server) handleScheduleBooking(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.BookingID <= 0 || req.CourseStartTime.IsZero() {
		s.writeError(w, errors.NewInvalidRequestError("bookingId and courseStartTime required"))
		return
	}

	job, err := s.scheduler.ScheduleBooking(req.BookingID, req.CourseStartTime, req.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleSchedulePreview(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("courseStartTime")
	if raw == "" {
		s.writeError(w, errors.NewInvalidRequestError("courseStartTime query parameter required"))
		return
	}
	courseStart, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		s.writeError(w, errors.NewInvalidRequestError("courseStartTime must be RFC3339"))
		return
	}

	w2 := s.scheduler.Preview(courseStart)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"courseStartTime":    courseStart,
		"bookingAvailableAt": w2.BookingAvailableAt,
		"pollingStartAt":     w2.PollingStartAt,
		"pollingStopAt":      w2.PollingStopAt,
		"expired":            w2.Expired(time.Now()),
	})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if err := s.scheduler.Cancel(jobID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"cancelled": true, "jobId": jobID})
}
