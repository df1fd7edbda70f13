package schedule

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hspbot/hspbot/errors"
)

const (
	jobsFileName = "scheduled-jobs.json"

	// terminalRetention is how long finished jobs stay visible in listings
	terminalRetention = 24 * time.Hour
)

// Store is the durable job list: a single JSON file rewritten in full on
// every mutation. A single writer lock serializes the load-mutate-save
// sequence so concurrent status updates from different jobs cannot overwrite
// each other with stale reads.
type Store struct {
	path  string
	mu    sync.Mutex
	nowFn func() time.Time
}

// NewStore creates a job store backed by <dataDir>/scheduled-jobs.json.
// The file and directory are created lazily on first write.
func NewStore(dataDir string) *Store {
	return &Store{
		path:  filepath.Join(dataDir, jobsFileName),
		nowFn: time.Now,
	}
}

// readAll loads every persisted job. Caller must hold mu.
func (s *Store) readAll() ([]*Job, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read job store")
	}
	if len(data) == 0 {
		return nil, nil
	}

	var jobs []*Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, errors.Wrap(err, "failed to parse job store")
	}
	return jobs, nil
}

// writeAll rewrites the whole file. Caller must hold mu.
func (s *Store) writeAll(jobs []*Job) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create data directory")
	}

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode job store")
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write job store")
	}
	return nil
}

// List returns all jobs except terminal ones older than the retention
// period. The expired records stay in the file; they are only filtered
// from view.
func (s *Store) List() ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.readAll()
	if err != nil {
		return nil, err
	}

	cutoff := s.nowFn().Add(-terminalRetention)
	visible := make([]*Job, 0, len(jobs))
	for _, job := range jobs {
		if job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
			continue
		}
		visible = append(visible, job)
	}
	return visible, nil
}

// Upsert inserts the job or replaces the record with the same ID,
// refreshing UpdatedAt.
func (s *Store) Upsert(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.readAll()
	if err != nil {
		return err
	}

	job.UpdatedAt = s.nowFn()
	replaced := false
	for i, existing := range jobs {
		if existing.ID == job.ID {
			jobs[i] = job
			replaced = true
			break
		}
	}
	if !replaced {
		jobs = append(jobs, job)
	}
	return s.writeAll(jobs)
}

// InsertPending adds a new pending job, rejecting the insert when the
// booking already has one. The duplicate check and the write happen under
// the same lock, so two concurrent schedule requests for the same booking
// cannot both pass validation.
func (s *Store) InsertPending(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.readAll()
	if err != nil {
		return err
	}

	for _, existing := range jobs {
		if existing.BookingID == job.BookingID && existing.Status == StatusPending {
			return errors.Wrapf(errors.ErrDuplicateJob,
				"booking %d already has pending job %s", job.BookingID, existing.ID)
		}
	}

	job.UpdatedAt = s.nowFn()
	return s.writeAll(append(jobs, job))
}

// Remove deletes the job record
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.readAll()
	if err != nil {
		return err
	}

	for i, job := range jobs {
		if job.ID == id {
			return s.writeAll(append(jobs[:i], jobs[i+1:]...))
		}
	}
	return errors.NewNotFoundError("job %s", id)
}

// FindPendingByBookingID returns the pending job for a booking, or nil
// when the booking has none
func (s *Store) FindPendingByBookingID(bookingID int64) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.readAll()
	if err != nil {
		return nil, err
	}

	for _, job := range jobs {
		if job.BookingID == bookingID && job.Status == StatusPending {
			return job, nil
		}
	}
	return nil, nil
}

// UpdateStatus transitions the job's status and message. Unknown IDs are a
// no-op: the job may have been cancelled (and removed) while its executor
// was mid-attempt.
func (s *Store) UpdateStatus(id string, status Status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.readAll()
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if job.ID == id {
			job.Status = status
			job.StatusMessage = message
			job.UpdatedAt = s.nowFn()
			return s.writeAll(jobs)
		}
	}
	return nil
}
