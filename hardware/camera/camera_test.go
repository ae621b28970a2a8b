package camera

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/blackjack/webcam"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/rover/sensor"
)

type fakeDevice struct {
	waits  []error
	frames [][]byte
	closed bool
}

func (d *fakeDevice) WaitForFrame(uint32) error {
	err := d.waits[0]
	d.waits = d.waits[1:]
	return err
}

func (d *fakeDevice) ReadFrame() ([]byte, error) {
	f := d.frames[0]
	d.frames = d.frames[1:]
	return f, nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func TestAcquire(t *testing.T) {
	t.Parallel()
	frame := []byte{0xff, 0xd8, 0xff, 0xd9}
	dev := &fakeDevice{
		waits:  []error{&webcam.Timeout{}, nil, nil, errors.New("device removed")},
		frames: [][]byte{{}, frame},
	}
	c := New(dev, sensor.PixelMJPEG, 4, 2, 0)

	_, err := c.Acquire()
	assert.True(t, sensor.IsTimeout(err))
	_, err = c.Acquire()
	assert.True(t, sensor.IsTimeout(err), "empty frame")

	raw, err := c.Acquire()
	require.NoError(t, err)
	assert.Equal(t, sensor.RawImage{Format: sensor.PixelMJPEG, Width: 4, Height: 2, Data: frame}, raw)
	frame[0] = 0
	assert.Equal(t, byte(0xff), raw.Data[0], "frame must be copied")

	_, err = c.Acquire()
	require.Error(t, err)
	assert.False(t, sensor.IsTimeout(err))

	require.NoError(t, c.Close())
	assert.True(t, dev.closed)
}

func TestNewTimeout(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint32(1), New(&fakeDevice{}, sensor.PixelYUYV, 2, 2, 0).timeout)
	assert.Equal(t, uint32(3), New(&fakeDevice{}, sensor.PixelYUYV, 2, 2, 3*time.Second).timeout)
}

func testJPEG(t testing.TB) []byte {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestJPEGCodecMJPEG(t *testing.T) {
	t.Parallel()
	data := testJPEG(t)
	out, err := JPEGCodec{}.Compress(sensor.RawImage{Format: sensor.PixelMJPEG, Data: data})
	require.NoError(t, err)
	assert.Equal(t, data, out)

	_, err = JPEGCodec{}.Compress(sensor.RawImage{Format: sensor.PixelMJPEG, Data: []byte("garbage")})
	assert.Error(t, err)
	_, err = JPEGCodec{}.Compress(sensor.RawImage{Format: sensor.PixelMJPEG})
	assert.Error(t, err)
}

func TestJPEGCodecYUYV(t *testing.T) {
	t.Parallel()
	const w, h = 4, 2
	data := bytes.Repeat([]byte{200, 128, 100, 128}, w*h/2)
	out, err := JPEGCodec{Quality: 90}.Compress(sensor.RawImage{Format: sensor.PixelYUYV, Width: w, Height: h, Data: data})
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, w, h), img.Bounds())
}

func TestJPEGCodecInvalid(t *testing.T) {
	t.Parallel()
	cases := []sensor.RawImage{
		{Format: sensor.PixelYUYV, Width: 3, Height: 2, Data: make([]byte, 12)},
		{Format: sensor.PixelYUYV, Width: 4, Height: 2, Data: make([]byte, 15)},
		{Format: sensor.PixelYUYV},
		{Format: sensor.PixelInvalid, Width: 2, Height: 2, Data: make([]byte, 8)},
	}
	for _, raw := range cases {
		_, err := JPEGCodec{}.Compress(raw)
		assert.Error(t, err, "raw=%+v", raw)
	}
}

func TestImageEncoderSkip(t *testing.T) {
	t.Parallel()
	r := sensor.ImageEncoder{Codec: JPEGCodec{}}.Encode(sensor.RawImage{Format: sensor.PixelMJPEG, Data: []byte{1}})
	assert.False(t, r.Ok())
	r = sensor.ImageEncoder{Codec: JPEGCodec{}}.Encode(sensor.RawImage{Format: sensor.PixelMJPEG, Data: testJPEG(t)})
	assert.True(t, r.Ok())
}
