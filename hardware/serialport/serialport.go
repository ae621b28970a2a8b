// Package serialport opens UART devices for sensor drivers.
// Read on timeout returns sensor.ErrTimeout instead of zero bytes.
package serialport

import (
	"io"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/rover/sensor"
	"go.bug.st/serial"
)

const DefaultReadTimeout = time.Second

// Port is the part of serial.Port drivers use, also implemented by test fakes.
type Port interface {
	io.ReadWriteCloser
	SetDTR(dtr bool) error
	ResetInputBuffer() error
}

type Options struct {
	Baud        int
	ReadTimeout time.Duration
}

type port struct {
	serial.Port
	path string
}

func Open(path string, opt Options) (Port, error) {
	if path == "" {
		return nil, errors.NotValidf("serial device path empty")
	}
	if opt.Baud <= 0 {
		return nil, errors.NotValidf("serial device=%s baud=%d", path, opt.Baud)
	}
	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = DefaultReadTimeout
	}
	mode := &serial.Mode{
		BaudRate: opt.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	sp, err := serial.Open(path, mode)
	if err != nil {
		return nil, errors.Annotatef(err, "serial open device=%s", path)
	}
	if err = sp.SetReadTimeout(opt.ReadTimeout); err != nil {
		_ = sp.Close()
		return nil, errors.Annotatef(err, "serial device=%s SetReadTimeout", path)
	}
	return &port{Port: sp, path: path}, nil
}

func (p *port) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if err != nil {
		return n, errors.Annotatef(err, "serial read device=%s", p.path)
	}
	if n == 0 && len(b) != 0 {
		return 0, sensor.ErrTimeout
	}
	return n, nil
}

func (p *port) Write(b []byte) (int, error) {
	n, err := p.Port.Write(b)
	return n, errors.Annotatef(err, "serial write device=%s", p.path)
}
