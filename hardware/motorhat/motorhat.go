// Package motorhat drives DC motors via PCA9685 PWM controller on I2C, Adafruit motor hat wiring.
package motorhat

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/rover/helpers"
	"github.com/temoto/rover/log2"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

const (
	DefaultAddr = 0x60
	DefaultFreq = 1600

	oscillator = 25000000
	fullOn     = 0x1000

	regMode1    = 0x00
	regMode2    = 0x01
	regLed0OnL  = 0x06
	regAllOnL   = 0xfa
	regPrescale = 0xfe

	mode1Restart = 0x80
	mode1AI      = 0x20
	mode1Sleep   = 0x10
	mode1AllCall = 0x01
	mode2OutDrv  = 0x04
)

// Device is I2C connection to PCA9685, *i2c.Dev in production.
type Device interface {
	Tx(w, r []byte) error
}

type Hat struct {
	sync.Mutex
	dev    Device
	closer io.Closer
	log    *log2.Log
	motors [4]*Motor
}

type Config struct {
	Bus  string // periph bus name, empty = first available
	Addr uint16
	Freq int
}

func Open(c Config, log *log2.Log) (*Hat, error) {
	if c.Addr == 0 {
		c.Addr = DefaultAddr
	}
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}
	bus, err := i2creg.Open(c.Bus)
	if err != nil {
		return nil, errors.Annotatef(err, "I2C Open bus=%s", c.Bus)
	}
	h, err := New(&i2c.Dev{Bus: bus, Addr: c.Addr}, c.Freq, log)
	if err != nil {
		_ = bus.Close()
		return nil, errors.Annotatef(err, "motorhat bus=%s addr=%02x", c.Bus, c.Addr)
	}
	h.closer = bus
	return h, nil
}

func New(dev Device, freq int, log *log2.Log) (*Hat, error) {
	if freq == 0 {
		freq = DefaultFreq
	}
	h := &Hat{dev: dev, log: log}
	if err := h.init(freq); err != nil {
		return nil, err
	}
	return h, nil
}

func Prescale(freq int) (byte, error) {
	if freq <= 0 {
		return 0, errors.NotValidf("pwm freq=%d", freq)
	}
	v := math.Round(oscillator/(4096*float64(freq))) - 1
	if v < 3 || v > 255 {
		return 0, errors.NotValidf("pwm freq=%d prescale=%v", freq, v)
	}
	return byte(v), nil
}

func (h *Hat) init(freq int) error {
	prescale, err := Prescale(freq)
	if err != nil {
		return err
	}
	if err = h.write(regAllOnL, 0, 0, 0, 0); err != nil {
		return errors.Annotate(err, "all off")
	}
	if err = h.write(regMode2, mode2OutDrv); err != nil {
		return errors.Annotate(err, "mode2")
	}
	if err = h.write(regMode1, mode1AllCall); err != nil {
		return errors.Annotate(err, "mode1")
	}
	time.Sleep(5 * time.Millisecond)

	var mode [1]byte
	if err = h.dev.Tx([]byte{regMode1}, mode[:]); err != nil {
		return errors.Annotate(err, "read mode1")
	}
	old := mode[0] &^ mode1Sleep
	if err = h.write(regMode1, (old&^mode1Restart)|mode1Sleep); err != nil {
		return errors.Annotate(err, "sleep")
	}
	if err = h.write(regPrescale, prescale); err != nil {
		return errors.Annotate(err, "prescale")
	}
	if err = h.write(regMode1, old); err != nil {
		return errors.Annotate(err, "wake")
	}
	time.Sleep(5 * time.Millisecond)
	if err = h.write(regMode1, old|mode1Restart|mode1AI); err != nil {
		return errors.Annotate(err, "restart")
	}
	h.log.Debugf("motorhat freq=%d prescale=%d", freq, prescale)
	return nil
}

func (h *Hat) write(reg byte, data ...byte) error {
	return h.dev.Tx(append([]byte{reg}, data...), nil)
}

func (h *Hat) setPWM(channel uint8, on, off uint16) error {
	return h.write(regLed0OnL+4*channel, byte(on), byte(on>>8), byte(off), byte(off>>8))
}

func (h *Hat) setPin(channel uint8, high bool) error {
	if high {
		return h.setPWM(channel, fullOn, 0)
	}
	return h.setPWM(channel, 0, fullOn)
}

// PCA9685 channels per motor terminal
var wiring = [4]struct{ pwm, in1, in2 uint8 }{
	{pwm: 8, in1: 10, in2: 9},
	{pwm: 13, in1: 11, in2: 12},
	{pwm: 2, in1: 4, in2: 3},
	{pwm: 7, in1: 5, in2: 6},
}

// Motor returns DC motor on terminal n=1..4.
func (h *Hat) Motor(n int) (*Motor, error) {
	if n < 1 || n > len(wiring) {
		return nil, errors.NotValidf("motor=%d", n)
	}
	h.Lock()
	defer h.Unlock()
	if h.motors[n-1] == nil {
		w := wiring[n-1]
		h.motors[n-1] = &Motor{hat: h, n: n, pwm: w.pwm, in1: w.in1, in2: w.in2}
	}
	return h.motors[n-1], nil
}

// Close releases motors that were used and closes bus.
func (h *Hat) Close() error {
	errs := make([]error, 0, len(h.motors)+1)
	for _, m := range h.motors {
		if m != nil {
			errs = append(errs, m.Set(0))
		}
	}
	if h.closer != nil {
		errs = append(errs, h.closer.Close())
	}
	return helpers.FoldErrors(errs)
}

type Motor struct {
	hat           *Hat
	n             int
	pwm, in1, in2 uint8
}

// Set throttle in [-1,1]: positive forward, negative reverse, 0 coast.
func (m *Motor) Set(t float32) error {
	if math.IsNaN(float64(t)) || t < -1 || t > 1 {
		return errors.NotValidf("motor=%d throttle=%v", m.n, t)
	}
	m.hat.Lock()
	defer m.hat.Unlock()
	var err error
	switch {
	case t > 0:
		err = m.drive(true, false, t)
	case t < 0:
		err = m.drive(false, true, -t)
	default:
		err = m.drive(false, false, 0)
	}
	return errors.Annotatef(err, "motor=%d throttle=%v", m.n, t)
}

func (m *Motor) drive(in1, in2 bool, speed float32) error {
	if err := m.hat.setPin(m.in2, in2); err != nil {
		return err
	}
	if err := m.hat.setPin(m.in1, in1); err != nil {
		return err
	}
	duty := uint16(math.Round(float64(speed) * 4095))
	return m.hat.setPWM(m.pwm, 0, duty)
}
