package sensor

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/juju/errors"
)

type Kind uint8

const (
	KindInvalid Kind = iota
	KindImage
	KindScan
	KindPosition
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindScan:
		return "scan"
	case KindPosition:
		return "position"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

const (
	ImageHeaderSize  = 8
	ScanHeaderSize   = 4
	ScanPointSize    = 8
	PositionSize     = 8
	DefaultImageMax  = 16 << 20
	DefaultScanLimit = 1 << 16
)

// Frame is one unit of telemetry on the wire.
type Frame interface {
	Kind() Kind
	// AppendWire appends complete wire form including length/count prefix.
	AppendWire(b []byte) []byte
	WireSize() int
}

// ImageFrame wire: [length u64 LE][payload]
type ImageFrame struct {
	Payload []byte
}

func (ImageFrame) Kind() Kind      { return KindImage }
func (f ImageFrame) WireSize() int { return ImageHeaderSize + len(f.Payload) }
func (f ImageFrame) AppendWire(b []byte) []byte {
	b = binary.LittleEndian.AppendUint64(b, uint64(len(f.Payload)))
	return append(b, f.Payload...)
}

// ScanPoint angle in degrees, distance in millimeters.
type ScanPoint struct {
	Angle    float32
	Distance float32
}

// ScanFrame wire: [count u32 LE][count x (angle f32 LE, distance f32 LE)]
type ScanFrame struct {
	Points []ScanPoint
}

func (ScanFrame) Kind() Kind      { return KindScan }
func (f ScanFrame) WireSize() int { return ScanHeaderSize + ScanPointSize*len(f.Points) }
func (f ScanFrame) AppendWire(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(f.Points)))
	for _, p := range f.Points {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(p.Angle))
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(p.Distance))
	}
	return b
}

// PositionFrame wire: [latitude f32 LE][longitude f32 LE], no prefix.
type PositionFrame struct {
	Latitude  float32
	Longitude float32
}

func (PositionFrame) Kind() Kind    { return KindPosition }
func (PositionFrame) WireSize() int { return PositionSize }
func (f PositionFrame) AppendWire(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f.Latitude))
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(f.Longitude))
}

// readHeader returns io.EOF only when stream ended cleanly before first byte.
func readHeader(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	switch err {
	case nil, io.EOF:
		return err
	}
	return errors.Annotate(err, "header")
}

func readBody(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return errors.Annotate(err, "body")
	}
	return nil
}

func ReadImageFrame(r io.Reader, max uint64) (ImageFrame, error) {
	var hdr [ImageHeaderSize]byte
	if err := readHeader(r, hdr[:]); err != nil {
		return ImageFrame{}, err
	}
	length := binary.LittleEndian.Uint64(hdr[:])
	if max != 0 && length > max {
		return ImageFrame{}, errors.Errorf("image length=%d exceeds max=%d", length, max)
	}
	f := ImageFrame{Payload: make([]byte, length)}
	if err := readBody(r, f.Payload); err != nil {
		return ImageFrame{}, err
	}
	return f, nil
}

func ReadScanFrame(r io.Reader, maxPoints uint32) (ScanFrame, error) {
	var hdr [ScanHeaderSize]byte
	if err := readHeader(r, hdr[:]); err != nil {
		return ScanFrame{}, err
	}
	count := binary.LittleEndian.Uint32(hdr[:])
	if maxPoints != 0 && count > maxPoints {
		return ScanFrame{}, errors.Errorf("scan count=%d exceeds max=%d", count, maxPoints)
	}
	body := make([]byte, int(count)*ScanPointSize)
	if err := readBody(r, body); err != nil {
		return ScanFrame{}, err
	}
	f := ScanFrame{Points: make([]ScanPoint, count)}
	for i := range f.Points {
		p := body[i*ScanPointSize:]
		f.Points[i].Angle = math.Float32frombits(binary.LittleEndian.Uint32(p[0:]))
		f.Points[i].Distance = math.Float32frombits(binary.LittleEndian.Uint32(p[4:]))
	}
	return f, nil
}

func ReadPositionFrame(r io.Reader) (PositionFrame, error) {
	var b [PositionSize]byte
	if err := readHeader(r, b[:]); err != nil {
		return PositionFrame{}, err
	}
	return PositionFrame{
		Latitude:  math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		Longitude: math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
	}, nil
}

// ReadFrame reads one frame of given kind.
func ReadFrame(r io.Reader, kind Kind) (Frame, error) {
	var f Frame
	var err error
	switch kind {
	case KindImage:
		f, err = ReadImageFrame(r, DefaultImageMax)
	case KindScan:
		f, err = ReadScanFrame(r, DefaultScanLimit)
	case KindPosition:
		f, err = ReadPositionFrame(r)
	default:
		err = errors.NotSupportedf("frame kind=%s", kind)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}
