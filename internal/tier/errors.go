package tier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/parsascontentcorner/discordlitesync/internal/models"
)

var (
	// ErrNotFound is returned when no tier produced a value for a key
	ErrNotFound = errors.New("entity not found")

	// ErrLockFault is returned by the cache when a previous holder of a
	// shard lock panicked. Callers treat it as a miss
	ErrLockFault = errors.New("cache lock fault")
)

// Operation names used in DriverError and log fields
const (
	OpGet    = "store.get"
	OpUpsert = "store.upsert"
	OpFetch  = "remote.fetch"
)

// DriverError wraps a failure of the entity store
type DriverError struct {
	Kind models.Kind
	Key  string
	Op   string
	Err  error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Kind, e.Key, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// RemoteError wraps a failure of the remote source. Status is the HTTP status
// when one was received and zero for transport failures
type RemoteError struct {
	Kind       models.Kind
	Key        string
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote.fetch %s %s: status %d: %v", e.Kind, e.Key, e.Status, e.Err)
	}
	return fmt.Sprintf("remote.fetch %s %s: %v", e.Kind, e.Key, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// RateLimited reports whether the remote rejected the request with 429
func (e *RemoteError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// Timeout reports whether the request timed out
func (e *RemoteError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// IsNotFound reports whether err is, or wraps, ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
