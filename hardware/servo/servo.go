// Package servo generates hobby servo pulses on one GPIO line in software.
package servo

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	gpio "github.com/temoto/gpio-cdev-go"
	"github.com/temoto/rover/helpers"
	"github.com/temoto/rover/log2"
)

const DefaultPeriod = 20 * time.Millisecond

type Config struct {
	Chip   string // like /dev/gpiochip0
	Line   uint32
	Period time.Duration
}

type Servo struct {
	alive  *alive.Alive
	log    *log2.Log
	chip   io.Closer
	lines  gpio.Lineser
	set    gpio.LineSetFunc
	period time.Duration
	pulse  int64 // atomic, nanoseconds, 0 = line low
	err    helpers.AtomicError
	cycles int64
}

func Open(c Config, log *log2.Log) (*Servo, error) {
	chip, err := gpio.Open(c.Chip, "rover")
	if err != nil {
		return nil, errors.Annotatef(err, "servo open chip=%s", c.Chip)
	}
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, "rover-steer", c.Line)
	if err != nil {
		_ = chip.Close()
		return nil, errors.Annotatef(err, "servo chip=%s line=%d", c.Chip, c.Line)
	}
	s := New(lines, c.Line, c.Period, log)
	s.chip = chip
	return s, nil
}

// New starts pulse goroutine on already opened output line.
func New(lines gpio.Lineser, line uint32, period time.Duration, log *log2.Log) *Servo {
	if period <= 0 {
		period = DefaultPeriod
	}
	s := &Servo{
		alive:  alive.NewAlive(),
		log:    log,
		lines:  lines,
		set:    lines.SetFunc(line),
		period: period,
	}
	s.alive.Add(1)
	go s.run()
	return s
}

// SetPulse changes high time of each period. Line error from pulse goroutine is returned here.
func (s *Servo) SetPulse(pulse time.Duration) error {
	if err, ok := s.err.Load(); ok {
		return err
	}
	if !s.alive.IsRunning() {
		return errors.Errorf("servo closed")
	}
	if pulse <= 0 || pulse >= s.period {
		return errors.NotValidf("servo pulse=%v period=%v", pulse, s.period)
	}
	atomic.StoreInt64(&s.pulse, int64(pulse))
	return nil
}

func (s *Servo) Pulse() time.Duration { return time.Duration(atomic.LoadInt64(&s.pulse)) }

func (s *Servo) run() {
	defer s.alive.Done()
	stopch := s.alive.StopChan()
	timer := time.NewTimer(0)
	defer timer.Stop()
	wait := func(d time.Duration) bool {
		timer.Reset(d)
		select {
		case <-timer.C:
			return true
		case <-stopch:
			return false
		}
	}
	<-timer.C

	for s.alive.IsRunning() {
		pulse := time.Duration(atomic.LoadInt64(&s.pulse))
		if pulse <= 0 {
			if !wait(s.period) {
				break
			}
			continue
		}
		if !s.write(1) || !wait(pulse) {
			break
		}
		if !s.write(0) || !wait(s.period-pulse) {
			break
		}
		atomic.AddInt64(&s.cycles, 1)
	}
	s.set(0)
	_ = s.lines.Flush()
}

func (s *Servo) write(v byte) bool {
	s.set(v)
	if err := s.lines.Flush(); err != nil {
		err = errors.Annotate(err, "servo line flush")
		if _, found := s.err.StoreOnce(err); !found {
			s.log.Errorf("%v", err)
		}
		return false
	}
	return true
}

// Close stops pulses, drives line low and releases it.
func (s *Servo) Close() error {
	s.alive.Stop()
	s.alive.Wait()
	errs := []error{s.lines.Close()}
	if s.chip != nil {
		errs = append(errs, s.chip.Close())
	}
	return helpers.FoldErrors(errs)
}
