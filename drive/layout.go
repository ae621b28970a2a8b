package drive

import (
	"time"

	"github.com/temoto/rover/control"
	"github.com/temoto/rover/log2"
)

const (
	DefaultSteerMin = 1300 * time.Microsecond
	DefaultSteerMax = 1700 * time.Microsecond
)

// SteerCalibration is servo pulse range, measured on the vehicle.
type SteerCalibration struct {
	Min time.Duration
	Max time.Duration
}

// SteerPulse maps axis v in [-1,1] to pulse: v=1 -> Min, v=-1 -> Max.
func SteerPulse(v float32, c SteerCalibration) time.Duration {
	if c.Min == 0 && c.Max == 0 {
		c.Min, c.Max = DefaultSteerMin, DefaultSteerMax
	}
	norm := (-Clamp(v) + 1) / 2
	return c.Min + time.Duration(float64(c.Max-c.Min)*float64(norm))
}

type DriveSteerState struct {
	Drive float32
	Turn  float32
}

// DriveAndSteer is single drive motor with steering servo.
// LeftStickX steers, LeftTrigger2 reverse, RightTrigger2 forward.
type DriveAndSteer struct {
	log   *log2.Log
	steer Servo
	cal   SteerCalibration
	state DriveSteerState
	stat  Stat
	fs    failsafe
	drive throttle
}

var _ Layout = &DriveAndSteer{}

func NewDriveAndSteer(motor Channel, steer Servo, cal SteerCalibration, log *log2.Log) *DriveAndSteer {
	d := &DriveAndSteer{
		log:   log.Named(LayoutDriveSteer),
		steer: steer,
		cal:   cal,
		drive: throttle{"drive", motor},
	}
	d.fs = failsafe{log: d.log, stat: &d.stat, throttles: []throttle{d.drive}}
	return d
}

func (d *DriveAndSteer) String() string         { return LayoutDriveSteer }
func (d *DriveAndSteer) Stat() *Stat            { return &d.stat }
func (d *DriveAndSteer) State() DriveSteerState { return d.state }

func (d *DriveAndSteer) Apply(e control.Event) {
	switch {
	case e.Kind == control.KindAxisChanged && e.Axis == control.LeftStickX:
		d.state.Turn = Clamp(e.Value)
		pulse := SteerPulse(d.state.Turn, d.cal)
		if err := d.steer.SetPulse(pulse); err != nil {
			// servo holds last position
			d.stat.SteerErrs.Add(1)
			d.log.Errorf("steer turn=%v pulse=%v err=%v", d.state.Turn, pulse, err)
		}

	case e.Kind == control.KindButtonChanged && e.Button == control.LeftTrigger2:
		d.throttle(-Clamp(e.Value))

	case e.Kind == control.KindButtonChanged && e.Button == control.RightTrigger2:
		d.throttle(Clamp(e.Value))

	default:
		d.stat.Ignored.Add(1)
		return
	}
	d.stat.Applied.Add(1)
}

func (d *DriveAndSteer) throttle(v float32) {
	d.state.Drive = v
	if !d.fs.set(d.drive, v) {
		d.state = DriveSteerState{}
	}
}

type DifferentialState struct {
	Left  float32
	Right float32
}

// Differential is two independent tread motors on stick Y axes.
// Right motor is mounted mirrored, its command is negated.
type Differential struct {
	log   *log2.Log
	state DifferentialState
	stat  Stat
	fs    failsafe
	left  throttle
	right throttle
}

var _ Layout = &Differential{}

func NewDifferential(left, right Channel, log *log2.Log) *Differential {
	d := &Differential{
		log:   log.Named(LayoutDifferential),
		left:  throttle{"left", left},
		right: throttle{"right", right},
	}
	d.fs = failsafe{log: d.log, stat: &d.stat, throttles: []throttle{d.left, d.right}}
	return d
}

func (d *Differential) String() string           { return LayoutDifferential }
func (d *Differential) Stat() *Stat              { return &d.stat }
func (d *Differential) State() DifferentialState { return d.state }

func (d *Differential) Apply(e control.Event) {
	if e.Kind != control.KindAxisChanged {
		d.stat.Ignored.Add(1)
		return
	}
	var ok bool
	switch e.Axis {
	case control.LeftStickY:
		d.state.Left = Clamp(e.Value)
		ok = d.fs.set(d.left, d.state.Left)
	case control.RightStickY:
		d.state.Right = -Clamp(e.Value)
		ok = d.fs.set(d.right, d.state.Right)
	default:
		d.stat.Ignored.Add(1)
		return
	}
	d.stat.Applied.Add(1)
	if !ok {
		d.state = DifferentialState{}
	}
}
