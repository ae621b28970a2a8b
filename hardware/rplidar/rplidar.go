// Package rplidar drives Slamtec RPLIDAR A-series range scanner in standard scan mode.
package rplidar

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/rover/hardware/serialport"
	"github.com/temoto/rover/helpers"
	"github.com/temoto/rover/log2"
	"github.com/temoto/rover/sensor"
)

const (
	DefaultBaud = 115200

	syncByte  = 0xa5
	cmdStop   = 0x25
	cmdScan   = 0x20
	nodeSize  = 5
	maxPoints = 8192
)

// Scan response descriptor: sync, length=5 multiple response, data type 0x81.
var scanDescriptor = []byte{0xa5, 0x5a, 0x05, 0x00, 0x00, 0x40, 0x81}

var ErrDescriptor = errors.New("rplidar unexpected response descriptor")

type Config struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

type Driver struct {
	log  *log2.Log
	port serialport.Port
	node [nodeSize]byte
	have int
	rev  sensor.Scan
	// bytes skipped while looking for valid node
	resync int64
}

var _ sensor.Source[sensor.Scan] = &Driver{}

// Opener adapts Config to sensor loop OpenFunc.
func Opener(c Config, log *log2.Log) sensor.OpenFunc[sensor.Scan] {
	return func(ctx context.Context) (sensor.Source[sensor.Scan], error) {
		baud := c.Baud
		if baud == 0 {
			baud = DefaultBaud
		}
		port, err := serialport.Open(c.Device, serialport.Options{Baud: baud, ReadTimeout: c.ReadTimeout})
		if err != nil {
			return nil, err
		}
		d, err := Start(port, log)
		if err != nil {
			_ = port.Close()
			return nil, err
		}
		return d, nil
	}
}

// Start spins motor and requests scan on opened port.
func Start(port serialport.Port, log *log2.Log) (*Driver, error) {
	d := &Driver{log: log, port: port}
	// DTR low = motor on for USB adapter board
	if err := port.SetDTR(false); err != nil {
		return nil, errors.Annotate(err, "rplidar motor on")
	}
	if _, err := port.Write([]byte{syncByte, cmdStop}); err != nil {
		return nil, errors.Annotate(err, "rplidar stop")
	}
	time.Sleep(2 * time.Millisecond)
	if err := port.ResetInputBuffer(); err != nil {
		return nil, errors.Annotate(err, "rplidar reset input")
	}
	if _, err := port.Write([]byte{syncByte, cmdScan}); err != nil {
		return nil, errors.Annotate(err, "rplidar scan")
	}
	if err := d.readDescriptor(); err != nil {
		return nil, err
	}
	d.log.Debugf("rplidar scan started")
	return d, nil
}

func (d *Driver) readDescriptor() error {
	var b [7]byte
	got := 0
	for got < len(b) {
		n, err := d.port.Read(b[got:])
		got += n
		if err != nil {
			return errors.Annotatef(err, "rplidar descriptor read=%d", got)
		}
	}
	if !bytes.Equal(b[:], scanDescriptor) {
		return errors.Annotatef(ErrDescriptor, "received=%x", b[:])
	}
	return nil
}

// Acquire returns one complete revolution. Partial revolution survives timeouts.
func (d *Driver) Acquire() (sensor.Scan, error) {
	for {
		if err := d.readNode(); err != nil {
			return nil, err
		}
		p, start := parseNode(d.node)
		d.have = 0
		if start && len(d.rev) != 0 {
			rev := d.rev
			d.rev = make(sensor.Scan, 0, cap(rev))
			d.rev = append(d.rev, p)
			return rev, nil
		}
		d.rev = append(d.rev, p)
		if len(d.rev) >= maxPoints {
			rev := d.rev
			d.rev = nil
			d.log.Errorf("rplidar revolution without start flag points=%d", len(rev))
			return rev, nil
		}
	}
}

func (d *Driver) readNode() error {
	for {
		for d.have < nodeSize {
			n, err := d.port.Read(d.node[d.have:])
			d.have += n
			if err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return err
			}
		}
		if validNode(d.node) {
			return nil
		}
		copy(d.node[:], d.node[1:])
		d.have = nodeSize - 1
		d.resync++
		if d.resync%1024 == 1 {
			d.log.Debugf("rplidar resync skipped=%d", d.resync)
		}
	}
}

// Node layout:
// b0: quality<<2 | !S<<1 | S
// b1: angle_q6[6:0]<<1 | C(=1)
// b2: angle_q6[14:7]
// b3,b4: distance_q2 LE
func validNode(b [nodeSize]byte) bool {
	s := b[0] & 1
	ns := (b[0] >> 1) & 1
	return s^ns == 1 && b[1]&1 == 1
}

func parseNode(b [nodeSize]byte) (sensor.ScanSample, bool) {
	angleQ6 := uint16(b[1]>>1) | uint16(b[2])<<7
	distQ2 := uint16(b[3]) | uint16(b[4])<<8
	return sensor.ScanSample{
		Angle:    float32(angleQ6) / 64,
		Distance: float32(distQ2) / 4 / 1000,
	}, b[0]&1 == 1
}

// Close stops scan and motor, then closes port.
func (d *Driver) Close() error {
	errs := []error{}
	if _, err := d.port.Write([]byte{syncByte, cmdStop}); err != nil {
		errs = append(errs, errors.Annotate(err, "rplidar stop"))
	}
	if err := d.port.SetDTR(true); err != nil {
		errs = append(errs, errors.Annotate(err, "rplidar motor off"))
	}
	if err := d.port.Close(); err != nil {
		errs = append(errs, err)
	}
	return helpers.FoldErrors(errs)
}
