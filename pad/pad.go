package pad

import (
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/inputevent-go"
	"github.com/temoto/rover/control"
)

// Pad reads one evdev gamepad device.
type Pad struct {
	f     io.ReadCloser
	m     *Mapper
	queue []control.Event
}

func Open(c Config) (*Pad, error) {
	f, err := os.Open(c.Device)
	if err != nil {
		return nil, errors.Annotate(err, "pad open")
	}
	if c.Grab {
		if err = grab(f); err != nil {
			_ = f.Close()
			return nil, errors.Annotatef(err, "pad grab device=%s", c.Device)
		}
	}
	return New(f, NewMapper(c)), nil
}

func New(r io.ReadCloser, m *Mapper) *Pad {
	return &Pad{f: r, m: m}
}

// Next blocks until mapped control event is available.
// Input events without mapping are skipped.
func (p *Pad) Next() (control.Event, error) {
	for len(p.queue) == 0 {
		ie, err := inputevent.ReadOne(p.f)
		if err != nil {
			if errors.Cause(err) == io.EOF {
				return control.Event{}, io.EOF
			}
			return control.Event{}, errors.Annotate(err, "pad read")
		}
		p.queue = p.m.Map(p.queue[:0], ie)
	}
	e := p.queue[0]
	p.queue = p.queue[1:]
	return e, nil
}

func (p *Pad) Close() error { return p.f.Close() }

// Forward sends Connected, then every pad event, then Disconnected when the pad is gone.
// Returns first send error or pad read error.
func Forward(p *Pad, send func(control.Event) error) error {
	if err := send(control.Lifecycle(control.KindConnected)); err != nil {
		return err
	}
	for {
		e, err := p.Next()
		if err != nil {
			if sendErr := send(control.Lifecycle(control.KindDisconnected)); sendErr != nil {
				return errors.Wrap(err, sendErr)
			}
			return err
		}
		if err = send(e); err != nil {
			return err
		}
	}
}
