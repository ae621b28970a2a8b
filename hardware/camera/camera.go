// Package camera captures V4L2 frames.
package camera

import (
	"context"
	"fmt"
	"time"

	"github.com/blackjack/webcam"
	"github.com/juju/errors"
	"github.com/temoto/rover/log2"
	"github.com/temoto/rover/sensor"
)

const (
	DefaultWidth   = 640
	DefaultHeight  = 480
	DefaultTimeout = time.Second
)

// V4L2 fourcc codes
const (
	fourccMJPEG webcam.PixelFormat = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24
	fourccYUYV  webcam.PixelFormat = 'Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24
)

type Config struct {
	Device  string
	Width   uint32
	Height  uint32
	Timeout time.Duration
}

// Device is the part of *webcam.Webcam used after setup.
type Device interface {
	WaitForFrame(timeout uint32) error
	ReadFrame() ([]byte, error)
	Close() error
}

type Camera struct {
	dev     Device
	format  sensor.PixelFormat
	width   int
	height  int
	timeout uint32
}

var _ sensor.Source[sensor.RawImage] = &Camera{}

func Opener(c Config, log *log2.Log) sensor.OpenFunc[sensor.RawImage] {
	return func(ctx context.Context) (sensor.Source[sensor.RawImage], error) {
		return Open(c, log)
	}
}

// Open prefers MJPEG, falls back to YUYV.
func Open(c Config, log *log2.Log) (*Camera, error) {
	if c.Width == 0 || c.Height == 0 {
		c.Width, c.Height = DefaultWidth, DefaultHeight
	}
	cam, err := webcam.Open(c.Device)
	if err != nil {
		return nil, errors.Annotatef(err, "camera open device=%s", c.Device)
	}
	formats := cam.GetSupportedFormats()
	var want webcam.PixelFormat
	switch {
	case formats[fourccMJPEG] != "":
		want = fourccMJPEG
	case formats[fourccYUYV] != "":
		want = fourccYUYV
	default:
		_ = cam.Close()
		return nil, errors.NotSupportedf("camera device=%s formats=%v", c.Device, formats)
	}
	got, w, h, err := cam.SetImageFormat(want, c.Width, c.Height)
	if err != nil {
		_ = cam.Close()
		return nil, errors.Annotatef(err, "camera device=%s set format=%s", c.Device, formats[want])
	}
	if got != want {
		_ = cam.Close()
		return nil, errors.NotSupportedf("camera device=%s driver replaced format=%s with %08x", c.Device, formats[want], uint32(got))
	}
	if err = cam.StartStreaming(); err != nil {
		_ = cam.Close()
		return nil, errors.Annotatef(err, "camera device=%s start streaming", c.Device)
	}
	log.Infof("camera device=%s format=%s size=%dx%d", c.Device, formats[want], w, h)
	return New(cam, pixelFormat(want), int(w), int(h), c.Timeout), nil
}

func New(dev Device, format sensor.PixelFormat, width, height int, timeout time.Duration) *Camera {
	sec := uint32(timeout / time.Second)
	if sec == 0 {
		sec = uint32(DefaultTimeout / time.Second)
	}
	return &Camera{dev: dev, format: format, width: width, height: height, timeout: sec}
}

func pixelFormat(f webcam.PixelFormat) sensor.PixelFormat {
	switch f {
	case fourccMJPEG:
		return sensor.PixelMJPEG
	case fourccYUYV:
		return sensor.PixelYUYV
	}
	return sensor.PixelInvalid
}

func (c *Camera) String() string {
	return fmt.Sprintf("camera(%dx%d)", c.width, c.height)
}

func (c *Camera) Acquire() (sensor.RawImage, error) {
	err := c.dev.WaitForFrame(c.timeout)
	switch err.(type) {
	case nil:
	case *webcam.Timeout:
		return sensor.RawImage{}, sensor.ErrTimeout
	default:
		return sensor.RawImage{}, errors.Annotate(err, "camera wait")
	}
	b, err := c.dev.ReadFrame()
	if err != nil {
		return sensor.RawImage{}, errors.Annotate(err, "camera read")
	}
	if len(b) == 0 {
		return sensor.RawImage{}, sensor.ErrTimeout
	}
	// driver buffer is reused on next read
	data := make([]byte, len(b))
	copy(data, b)
	return sensor.RawImage{Format: c.format, Width: c.width, Height: c.height, Data: data}, nil
}

func (c *Camera) Close() error { return c.dev.Close() }
