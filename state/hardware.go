package state

import (
	"context"
	"io"

	"github.com/juju/errors"
	"github.com/temoto/rover/control"
	"github.com/temoto/rover/drive"
	"github.com/temoto/rover/hardware/motorhat"
	"github.com/temoto/rover/hardware/servo"
	"github.com/temoto/rover/helpers"
)

type closers []io.Closer

// Close in reverse open order.
func (cs closers) Close() error {
	errs := make([]error, 0, len(cs))
	for i := len(cs) - 1; i >= 0; i-- {
		errs = append(errs, cs[i].Close())
	}
	return helpers.FoldErrors(errs)
}

func (g *Global) openActuators(ctx context.Context) (drive.Actuators, io.Closer, error) {
	var a drive.Actuators
	c := &g.Config.Actuator
	hat, err := motorhat.Open(motorhat.Config{Bus: c.I2CBus, Addr: uint16(c.I2CAddr), Freq: c.PWMFreq}, g.Log.Named("motorhat"))
	if err != nil {
		return a, nil, err
	}
	cs := closers{hat}
	fail := func(err error) (drive.Actuators, io.Closer, error) {
		if cerr := cs.Close(); cerr != nil {
			g.Log.Errorf("actuators close after error err=%v", cerr)
		}
		return drive.Actuators{}, nil, err
	}

	switch g.Config.Controller.Layout {
	case drive.LayoutDriveSteer:
		if a.Drive, err = motorChannel(hat, c.DriveMotor); err != nil {
			return fail(err)
		}
		s := &c.Steering
		sv, err := servo.Open(servo.Config{Chip: s.Chip, Line: uint32(s.Line), Period: s.Period()}, g.Log.Named("steer"))
		if err != nil {
			return fail(err)
		}
		cs = append(cs, sv)
		a.Steer = sv
		a.Steering = s.Calibration()

	case drive.LayoutDifferential:
		if a.Left, err = motorChannel(hat, c.LeftMotor); err != nil {
			return fail(err)
		}
		if a.Right, err = motorChannel(hat, c.RightMotor); err != nil {
			return fail(err)
		}

	default:
		return fail(errors.NotSupportedf("layout=%s", g.Config.Controller.Layout))
	}
	return a, cs, nil
}

func motorChannel(hat *motorhat.Hat, n int) (drive.Channel, error) {
	m, err := hat.Motor(n)
	if err != nil {
		return nil, err
	}
	return m, nil
}

type controlStat struct {
	receiver *control.ReceiverStat
	layout   *drive.Stat
}

func (s *controlStat) String() string {
	if s.receiver == nil {
		return "{}"
	}
	return "{\"receiver\":" + s.receiver.String() + ",\"layout\":" + s.layout.String() + "}"
}

// controlTask owns actuators for its lifetime, they are released when receiver stops.
type controlTask struct {
	g    *Global
	stat controlStat
}

func (t *controlTask) String() string { return "control" }

func (t *controlTask) Run(ctx context.Context) error {
	g := t.g
	cfg := &g.Config.Controller
	a, closer, err := g.Hardware.Actuators(ctx)
	if err != nil {
		return errors.Annotate(err, "control actuators")
	}
	defer func() {
		if err := closer.Close(); err != nil {
			g.Log.Errorf("control actuators close err=%v", err)
		}
	}()

	layout, err := drive.NewLayout(cfg.Layout, a, g.Log.Named(cfg.Layout))
	if err != nil {
		return errors.Annotate(err, "control layout")
	}
	receiver, err := control.NewReceiver(control.ReceiverOptions{
		Address:   cfg.ListenAddress(),
		ReadLimit: uint32(cfg.ReadLimit),
		Handler:   layout,
		Listen:    g.Hardware.Listen,
		Log:       g.Log,
	})
	if err != nil {
		return err
	}
	t.stat = controlStat{receiver: receiver.Stat(), layout: layout.Stat()}
	return receiver.Run(ctx)
}
