package sensor

import (
	"context"
	"io"

	"github.com/juju/errors"
)

// Source is hardware capability producing readings.
// Acquire blocks until next reading. Errors with Timeout()=true are transient.
type Source[R any] interface {
	io.Closer
	Acquire() (R, error)
}

// OpenFunc acquires hardware capability. Error is fatal for the loop.
type OpenFunc[R any] func(ctx context.Context) (Source[R], error)

var ErrTimeout error = errTimeout{}

type errTimeout struct{}

func (errTimeout) Error() string   { return "timeout" }
func (errTimeout) Timeout() bool   { return true }
func (errTimeout) Temporary() bool { return true }

// IsTimeout reports transient acquisition errors, looking through annotations.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	for _, e := range []error{err, errors.Cause(err)} {
		if t, ok := e.(interface{ Timeout() bool }); ok && t.Timeout() {
			return true
		}
	}
	return false
}
