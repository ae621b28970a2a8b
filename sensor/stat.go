package sensor

// Values are read and modified atomically, but not consistently.

import (
	"expvar"
	"fmt"

	"github.com/temoto/rover/helpers/atomic_clock"
)

type Stat struct {
	Acquired    expvar.Int
	Timeouts    expvar.Int
	Skipped     expvar.Int
	Sent        expvar.Int
	Dropped     expvar.Int // produced in discard mode
	WriteErrors expvar.Int
	Bytes       expvar.Int
	LastSent    atomic_clock.Clock
}

func (s *Stat) String() string {
	return fmt.Sprintf(`{"acquired":%d,"timeouts":%d,"skipped":%d,"sent":%d,"dropped":%d,"write_errors":%d,"bytes":%d,"last_sent":%d}`,
		s.Acquired.Value(), s.Timeouts.Value(), s.Skipped.Value(),
		s.Sent.Value(), s.Dropped.Value(), s.WriteErrors.Value(),
		s.Bytes.Value(), s.LastSent.UnixNano())
}
