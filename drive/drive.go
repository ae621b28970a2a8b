// Package drive maps operator events to actuator commands.
// Layout owns vehicle command state and actuators, only control loop goroutine may call Apply.
package drive

import (
	"expvar"
	"fmt"
	"math"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/rover/control"
	"github.com/temoto/rover/log2"
)

// Channel is one throttle output, value in [-1,1], 0 = neutral.
type Channel interface {
	Set(v float32) error
}

type ChannelFunc func(v float32) error

func (f ChannelFunc) Set(v float32) error { return f(v) }

// Servo accepts pulse width in its native range.
type Servo interface {
	SetPulse(pulse time.Duration) error
}

type Layout interface {
	Apply(e control.Event)
	Stat() *Stat
	String() string
}

const (
	LayoutDriveSteer   = "drive-steer"
	LayoutDifferential = "differential"
)

// Actuators available to layouts. Unused for a layout may be nil.
type Actuators struct {
	Drive    Channel
	Left     Channel
	Right    Channel
	Steer    Servo
	Steering SteerCalibration
}

func NewLayout(name string, a Actuators, log *log2.Log) (Layout, error) {
	switch name {
	case LayoutDriveSteer, "":
		if a.Drive == nil || a.Steer == nil {
			return nil, errors.NotValidf("layout=%s requires drive channel and steering servo", LayoutDriveSteer)
		}
		return NewDriveAndSteer(a.Drive, a.Steer, a.Steering, log), nil
	case LayoutDifferential:
		if a.Left == nil || a.Right == nil {
			return nil, errors.NotValidf("layout=%s requires left and right channel", LayoutDifferential)
		}
		return NewDifferential(a.Left, a.Right, log), nil
	}
	return nil, errors.NotSupportedf("layout=%s", name)
}

type Stat struct {
	Applied      expvar.Int
	Ignored      expvar.Int
	ThrottleErrs expvar.Int
	SteerErrs    expvar.Int
	Neutralized  expvar.Int // fail-safe activations
}

func (s *Stat) String() string {
	return fmt.Sprintf(`{"applied":%d,"ignored":%d,"throttle_errors":%d,"steer_errors":%d,"neutralized":%d}`,
		s.Applied.Value(), s.Ignored.Value(), s.ThrottleErrs.Value(), s.SteerErrs.Value(), s.Neutralized.Value())
}

// Clamp limits v to [-1,1], NaN becomes 0.
func Clamp(v float32) float32 {
	switch {
	case math.IsNaN(float64(v)):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

type throttle struct {
	name string
	ch   Channel
}

// failsafe commands every throttle to neutral once, errors are only logged.
type failsafe struct {
	log       *log2.Log
	stat      *Stat
	throttles []throttle
}

func (f *failsafe) set(t throttle, v float32) bool {
	err := t.ch.Set(v)
	if err == nil {
		return true
	}
	f.stat.ThrottleErrs.Add(1)
	f.log.Errorf("throttle=%s value=%v err=%v", t.name, v, err)
	f.neutralize()
	return false
}

func (f *failsafe) neutralize() {
	f.stat.Neutralized.Add(1)
	for _, t := range f.throttles {
		if err := t.ch.Set(0); err != nil {
			f.log.Errorf("fail-safe throttle=%s neutral err=%v", t.name, err)
		}
	}
}
