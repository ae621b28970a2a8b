package sensor

import (
	"strings"

	"github.com/adrianmo/go-nmea"
	"github.com/juju/errors"
)

var ErrNoFrame = errors.New("no frame")

// Result of one encode: either Produced(frame) or Skipped(reason).
// Skipped is not an error of the loop, it only means this cycle has nothing to send.
type Result struct {
	Frame Frame
	Skip  error
}

func Produced(f Frame) Result { return Result{Frame: f} }
func Skipped(reason error) Result {
	if reason == nil {
		reason = ErrNoFrame
	}
	return Result{Skip: reason}
}

func (r Result) Ok() bool { return r.Frame != nil && r.Skip == nil }

// Encoder turns one hardware reading into a frame. Implementations do no I/O.
type Encoder[R any] interface {
	Encode(reading R) Result
}

type PixelFormat uint8

const (
	PixelInvalid PixelFormat = iota
	PixelMJPEG
	PixelYUYV
)

// RawImage is one camera capture as delivered by the driver.
type RawImage struct {
	Format PixelFormat
	Width  int
	Height int
	Data   []byte
}

type ImageCodec interface {
	Compress(raw RawImage) ([]byte, error)
}

type ImageEncoder struct {
	Codec ImageCodec
}

var _ Encoder[RawImage] = ImageEncoder{}

func (e ImageEncoder) Encode(raw RawImage) Result {
	b, err := e.Codec.Compress(raw)
	if err != nil {
		return Skipped(errors.Annotate(err, "image compress"))
	}
	if len(b) == 0 {
		return Skipped(errors.Annotate(ErrNoFrame, "image compress empty"))
	}
	return Produced(ImageFrame{Payload: b})
}

// ScanSample as reported by range scanner driver: angle in degrees, distance in meters.
// Non-positive distance marks invalid measurement.
type ScanSample struct {
	Angle    float32
	Distance float32
}

type Scan []ScanSample

const millimetersPerMeter = 1000

type ScanEncoder struct{}

var _ Encoder[Scan] = ScanEncoder{}

// Encode drops samples with distance <= 0 (NaN included), keeps driver order.
func (ScanEncoder) Encode(scan Scan) Result {
	points := make([]ScanPoint, 0, len(scan))
	for _, s := range scan {
		if !(s.Distance > 0) {
			continue
		}
		points = append(points, ScanPoint{Angle: s.Angle, Distance: s.Distance * millimetersPerMeter})
	}
	return Produced(ScanFrame{Points: points})
}

type SentenceParser interface {
	Parse(line string) (nmea.Sentence, error)
}

type NMEAParser struct{}

func (NMEAParser) Parse(line string) (nmea.Sentence, error) {
	return nmea.Parse(strings.TrimSpace(line))
}

// PositionEncoder emits frame only for valid RMC fix sentences.
type PositionEncoder struct {
	Parser SentenceParser
}

var _ Encoder[string] = PositionEncoder{}

func (e PositionEncoder) Encode(line string) Result {
	parser := e.Parser
	if parser == nil {
		parser = NMEAParser{}
	}
	s, err := parser.Parse(line)
	if err != nil {
		return Skipped(errors.Annotate(err, "nmea parse"))
	}
	rmc, ok := s.(nmea.RMC)
	if !ok {
		return Skipped(errors.Errorf("sentence=%s is not fix", s.DataType()))
	}
	if rmc.Validity != nmea.ValidRMC {
		return Skipped(errors.Errorf("rmc validity=%s", rmc.Validity))
	}
	return Produced(PositionFrame{
		Latitude:  float32(rmc.Latitude),
		Longitude: float32(rmc.Longitude),
	})
}
