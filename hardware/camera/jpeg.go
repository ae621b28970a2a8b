package camera

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/juju/errors"
	"github.com/temoto/rover/sensor"
)

const DefaultQuality = 80

// JPEGCodec passes MJPEG through after header check, encodes YUYV.
type JPEGCodec struct {
	Quality int
}

var _ sensor.ImageCodec = JPEGCodec{}

func (c JPEGCodec) Compress(raw sensor.RawImage) ([]byte, error) {
	switch raw.Format {
	case sensor.PixelMJPEG:
		if _, err := jpeg.DecodeConfig(bytes.NewReader(raw.Data)); err != nil {
			return nil, errors.Annotate(err, "mjpeg frame")
		}
		return raw.Data, nil

	case sensor.PixelYUYV:
		img, err := yuyvImage(raw)
		if err != nil {
			return nil, err
		}
		q := c.Quality
		if q <= 0 || q > 100 {
			q = DefaultQuality
		}
		var buf bytes.Buffer
		if err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, errors.Annotate(err, "jpeg encode")
		}
		return buf.Bytes(), nil
	}
	return nil, errors.NotSupportedf("pixel format=%d", raw.Format)
}

// YUYV is packed 4:2:2: Y0 U Y1 V per two pixels.
func yuyvImage(raw sensor.RawImage) (*image.YCbCr, error) {
	w, h := raw.Width, raw.Height
	if w <= 0 || h <= 0 || w%2 != 0 {
		return nil, errors.NotValidf("yuyv size=%dx%d", w, h)
	}
	if len(raw.Data) < w*h*2 {
		return nil, errors.NotValidf("yuyv length=%d size=%dx%d", len(raw.Data), w, h)
	}
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio422)
	for y := 0; y < h; y++ {
		row := raw.Data[y*w*2 : (y+1)*w*2]
		for x := 0; x < w; x += 2 {
			p := row[x*2 : x*2+4]
			img.Y[y*img.YStride+x] = p[0]
			img.Y[y*img.YStride+x+1] = p[2]
			ci := y*img.CStride + x/2
			img.Cb[ci] = p[1]
			img.Cr[ci] = p[3]
		}
	}
	return img, nil
}
