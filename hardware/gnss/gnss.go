// Package gnss reads NMEA sentences from serial position receiver.
package gnss

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/rover/hardware/serialport"
	"github.com/temoto/rover/sensor"
)

const (
	DefaultBaud = 9600
	// NMEA 0183 limit is 82, some receivers exceed it
	maxLine = 1024
)

type Config struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

// Receiver yields one line per Acquire, with "\r\n" terminator.
type Receiver struct {
	port    serialport.Port
	r       *bufio.Reader
	pending []byte
}

var _ sensor.Source[string] = &Receiver{}

func Opener(c Config) sensor.OpenFunc[string] {
	return func(ctx context.Context) (sensor.Source[string], error) {
		baud := c.Baud
		if baud == 0 {
			baud = DefaultBaud
		}
		port, err := serialport.Open(c.Device, serialport.Options{Baud: baud, ReadTimeout: c.ReadTimeout})
		if err != nil {
			return nil, err
		}
		return NewReceiver(port), nil
	}
}

func NewReceiver(port serialport.Port) *Receiver {
	return &Receiver{port: port, r: bufio.NewReaderSize(port, maxLine)}
}

func (g *Receiver) Acquire() (string, error) {
	for {
		chunk, err := g.r.ReadSlice('\n')
		g.pending = append(g.pending, chunk...)
		switch {
		case err == nil:
			line := strings.TrimRight(string(g.pending), "\r\n")
			g.pending = g.pending[:0]
			if line == "" {
				continue
			}
			return line + "\r\n", nil
		case err == bufio.ErrBufferFull || len(g.pending) > maxLine:
			// noise without terminator, drop
			g.pending = g.pending[:0]
			return "", sensor.ErrTimeout
		case sensor.IsTimeout(err):
			return "", err
		case err == io.EOF:
			return "", errors.Annotate(io.ErrUnexpectedEOF, "gnss")
		default:
			return "", errors.Annotate(err, "gnss read")
		}
	}
}

func (g *Receiver) Close() error { return g.port.Close() }
