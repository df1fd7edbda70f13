package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelWrapping(t *testing.T) {
	err := Wrap(ErrDuplicateJob, "booking 285")
	assert.True(t, Is(err, ErrDuplicateJob))
	assert.True(t, IsDuplicateJobError(err))
	assert.False(t, IsNotFoundError(err))
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(Wrap(ErrAuth, "refresh failed")))
	assert.True(t, IsAuthError(ErrNoCredential))
	assert.False(t, IsAuthError(ErrRateLimited))
	assert.False(t, IsAuthError(nil))
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("job %s", "schedule-42-1")
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "schedule-42-1")
}

func TestWindowExpired(t *testing.T) {
	err := Wrapf(ErrWindowExpired, "stop was %s", "2024-06-04T19:00:20Z")
	assert.True(t, IsWindowExpiredError(err))
}
